// Package ledger is the authoritative side of the protocol: it accepts
// certificates and revocation records through the append topic, keeps their
// state in a storage backend and answers revocation queries.
package ledger

import (
	"errors"
	"time"

	"github.com/danmuck/ndnrevoke/internal/appender"
	"github.com/danmuck/ndnrevoke/internal/naming"
	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/protocol"
	"github.com/danmuck/ndnrevoke/internal/protocol/session"
	"github.com/danmuck/ndnrevoke/internal/revocation"
	"github.com/danmuck/ndnrevoke/internal/security"
	"github.com/danmuck/ndnrevoke/internal/storage"
	"github.com/rs/zerolog/log"
)

var ErrLedgerClosed = errors.New("ledger: closed")

type Config struct {
	Prefix ndn.Name
	// RecordZones are the namespaces whose queries this ledger answers.
	// Defaults to Prefix.
	RecordZones   []ndn.Name
	NackFreshness time.Duration
	Signing       security.SigningInfo
	Session       session.Config
}

// CertificateValidator validates submissions and learns submitted
// certificates as chain links.
type CertificateValidator interface {
	security.Validator
	AddCertificate(cert *ndn.Data)
}

// Ledger wires a face, a store and the append listener together. Its NDN
// handlers run on the face's loop; Store is safe to read from other
// goroutines.
type Ledger struct {
	face      ndn.Face
	signer    security.Signer
	validator CertificateValidator
	store     storage.Store
	cfg       Config
	listener  *appender.Listener
	filters   []ndn.FilterHandle
	closed    bool
}

func New(face ndn.Face, signer security.Signer, validator CertificateValidator, store storage.Store, cfg Config) (*Ledger, error) {
	if len(cfg.Prefix) == 0 {
		return nil, protocol.Errorf(protocol.KindInvalidArgument, "ledger: empty prefix")
	}
	if store == nil {
		return nil, protocol.Errorf(protocol.KindInvalidArgument, "ledger: nil store")
	}
	if len(cfg.RecordZones) == 0 {
		cfg.RecordZones = []ndn.Name{cfg.Prefix}
	}
	if cfg.NackFreshness <= 0 {
		cfg.NackFreshness = revocation.DefaultNackFreshness
	}
	if len(cfg.Signing.Identity) == 0 && len(cfg.Signing.CertName) == 0 && len(cfg.Signing.KeyName) == 0 {
		cfg.Signing = security.SignWithIdentity(cfg.Prefix)
	}
	cfg.Session = cfg.Session.WithDefaults()
	listener := appender.NewListener(face, signer, validator, appender.ListenerConfig{
		Signing: cfg.Signing,
		Session: cfg.Session,
	})
	return &Ledger{
		face:      face,
		signer:    signer,
		validator: validator,
		store:     store,
		cfg:       cfg,
		listener:  listener,
	}, nil
}

// Start announces the ledger prefix, installs the query responders and
// listens on the append topic.
func (l *Ledger) Start() error {
	if l.closed {
		return ErrLedgerClosed
	}
	if err := l.face.RegisterPrefix(l.cfg.Prefix); err != nil {
		return err
	}
	for _, zone := range l.cfg.RecordZones {
		h, err := l.face.SetInterestFilter(zone, l.onQuery)
		if err != nil {
			return err
		}
		l.filters = append(l.filters, h)
	}
	if err := l.listener.Listen(l.Topic(), l.update); err != nil {
		return err
	}
	log.Info().
		Stringer("prefix", l.cfg.Prefix).
		Stringer("topic", l.Topic()).
		Int("zones", len(l.cfg.RecordZones)).
		Msg("ledger started")
	return nil
}

func (l *Ledger) Topic() ndn.Name { return naming.AppendTopic(l.cfg.Prefix) }

func (l *Ledger) Prefix() ndn.Name { return l.cfg.Prefix }

func (l *Ledger) Store() storage.Store { return l.store }

// Close unregisters every responder. The store stays open; its owner closes it.
func (l *Ledger) Close() {
	if l.closed {
		return
	}
	l.closed = true
	l.listener.Close()
	for _, h := range l.filters {
		l.face.UnsetInterestFilter(h)
	}
	l.filters = nil
}
