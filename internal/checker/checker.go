// Package checker asks a ledger whether a certificate has been revoked by its
// owner or its issuer. An answer is either a signed nack (not revoked) or the
// signed revocation record.
package checker

import (
	"errors"
	"time"

	"github.com/danmuck/ndnrevoke/internal/naming"
	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/observability"
	"github.com/danmuck/ndnrevoke/internal/protocol"
	"github.com/danmuck/ndnrevoke/internal/protocol/session"
	"github.com/danmuck/ndnrevoke/internal/revocation"
	"github.com/danmuck/ndnrevoke/internal/security"
	"github.com/rs/zerolog/log"
)

var ErrCheckerClosed = errors.New("checker: closed")

// Callbacks receive the outcome of one Check. Exactly one fires.
type Callbacks struct {
	OnValid   func(cert ndn.Name, nack *revocation.Nack)
	OnRevoked func(cert ndn.Name, record *revocation.Record)
	// OnFailure gets a *protocol.Error whose kind is Validation,
	// ProtocolFormat, TransportNack or TransportTimeout.
	OnFailure func(cert ndn.Name, err error)
}

type Config struct {
	Session session.Config
}

type query struct {
	id      uint64
	cert    ndn.Name
	revoker ndn.Component
	name    ndn.Name
	retry   session.RetryCounter
	pending *ndn.PendingInterest
	started time.Time
	cb      Callbacks
}

// Checker runs revocation queries. Methods run on the face's loop.
type Checker struct {
	face      ndn.Face
	validator security.Validator
	cfg       Config
	queries   *session.Registry[uint64, *query]
	next      uint64
	closed    bool
}

func New(face ndn.Face, validator security.Validator, cfg Config) *Checker {
	cfg.Session = cfg.Session.WithDefaults()
	return &Checker{
		face:      face,
		validator: validator,
		cfg:       cfg,
		queries:   session.NewRegistry[uint64, *query](),
	}
}

func (c *Checker) CheckAsOwner(ledgerPrefix, cert ndn.Name, cb Callbacks) (uint64, error) {
	return c.Check(ledgerPrefix, cert, naming.RoleOwner, cb)
}

func (c *Checker) CheckAsIssuer(ledgerPrefix, cert ndn.Name, cb Callbacks) (uint64, error) {
	return c.Check(ledgerPrefix, cert, naming.RoleIssuer, cb)
}

// Check queries ledgerPrefix about the revocation of cert published by role.
// It returns a query id usable with Pending bookkeeping.
func (c *Checker) Check(ledgerPrefix, cert ndn.Name, role naming.Role, cb Callbacks) (uint64, error) {
	if c.closed {
		return 0, ErrCheckerClosed
	}
	if len(ledgerPrefix) == 0 {
		return 0, protocol.Errorf(protocol.KindInvalidArgument, "checker: empty ledger prefix")
	}
	name, err := naming.QueryName(cert, role)
	if err != nil {
		return 0, err
	}
	revoker, _ := naming.RevokerComponent(cert, role)

	c.next++
	q := &query{
		id:      c.next,
		cert:    cert.Clone(),
		revoker: revoker,
		name:    name,
		retry:   session.RetryCounter{Max: c.cfg.Session.CheckerMaxRetries},
		started: c.face.Loop().Now(),
		cb:      cb,
	}
	interest := ndn.NewInterest(name)
	interest.CanBePrefix = true
	interest.MustBeFresh = true
	interest.ForwardingHint = []ndn.Name{ledgerPrefix.Clone()}
	interest.Lifetime = c.cfg.Session.InterestLifetime

	if err := c.queries.Insert(q.id, q); err != nil {
		return 0, err
	}
	if err := c.express(q, interest); err != nil {
		c.queries.Take(q.id)
		return 0, err
	}
	log.Debug().Uint64("query", q.id).Stringer("name", name).Stringer("ledger", ledgerPrefix).Msg("checker query sent")
	return q.id, nil
}

func (c *Checker) express(q *query, interest *ndn.Interest) error {
	p, err := c.face.Express(interest, ndn.ExpressCallbacks{
		OnData:    func(_ *ndn.Interest, d *ndn.Data) { c.onData(q.id, d) },
		OnNack:    func(_ *ndn.Interest, r ndn.NackReason) { c.onNack(q.id, r) },
		OnTimeout: func(i *ndn.Interest) { c.onTimeout(q.id, i) },
	})
	if err != nil {
		return err
	}
	q.pending = p
	return nil
}

func (c *Checker) live(id uint64) (*query, bool) {
	if c.closed {
		return nil, false
	}
	return c.queries.Get(id)
}

func (c *Checker) onTimeout(id uint64, interest *ndn.Interest) {
	q, ok := c.live(id)
	if !ok {
		return
	}
	if q.retry.Next() {
		retry := interest.Clone()
		retry.RefreshNonce()
		log.Debug().Uint64("query", id).Int("attempt", q.retry.Count).Msg("checker query retry")
		if err := c.express(q, retry); err == nil {
			return
		}
	}
	c.fail(q, "timeout", protocol.Errorf(protocol.KindTransportTimeout, "checker: no answer for %s after %d retries", q.name, q.retry.Count))
}

func (c *Checker) onNack(id uint64, reason ndn.NackReason) {
	q, ok := c.live(id)
	if !ok {
		return
	}
	c.fail(q, "nack", protocol.Errorf(protocol.KindTransportNack, "checker: %s nacked: %s", q.name, reason))
}

func (c *Checker) onData(id uint64, d *ndn.Data) {
	q, ok := c.live(id)
	if !ok {
		return
	}
	if err := c.validator.Validate(d); err != nil {
		c.fail(q, "invalid", err)
		return
	}
	switch {
	case naming.IsNackName(d.Name):
		nack, err := revocation.ParseNack(d)
		if err != nil {
			c.fail(q, "unrecognized", err)
			return
		}
		if !nack.CertName.Equal(q.cert) || !nack.Revoker.Equal(q.revoker) {
			c.fail(q, "unrecognized", protocol.Errorf(protocol.KindProtocolFormat, "checker: nack %s answers another query", d.Name))
			return
		}
		c.finish(q, "valid")
		log.Debug().Uint64("query", id).Stringer("cert", q.cert).Msg("checker certificate not revoked")
		if q.cb.OnValid != nil {
			q.cb.OnValid(q.cert, nack)
		}
	case naming.IsRecordName(d.Name):
		rec, err := revocation.ParseRecord(d)
		if err != nil {
			c.fail(q, "unrecognized", err)
			return
		}
		if !rec.CertName.Equal(q.cert) || !rec.Revoker.Equal(q.revoker) {
			c.fail(q, "unrecognized", protocol.Errorf(protocol.KindProtocolFormat, "checker: record %s answers another query", d.Name))
			return
		}
		c.finish(q, "revoked")
		log.Info().Uint64("query", id).Stringer("cert", q.cert).Stringer("reason", rec.Reason).Msg("checker certificate revoked")
		if q.cb.OnRevoked != nil {
			q.cb.OnRevoked(q.cert, rec)
		}
	default:
		c.fail(q, "unrecognized", protocol.Errorf(protocol.KindProtocolFormat, "checker: unrecognized format %s", d.Name))
	}
}

func (c *Checker) fail(q *query, outcome string, err error) {
	c.finish(q, outcome)
	log.Warn().Uint64("query", q.id).Stringer("cert", q.cert).Err(err).Msg("checker query failed")
	if q.cb.OnFailure != nil {
		q.cb.OnFailure(q.cert, err)
	}
}

func (c *Checker) finish(q *query, outcome string) {
	c.queries.Take(q.id)
	if q.pending != nil {
		q.pending.Cancel()
	}
	observability.RecordCheck(outcome, c.face.Loop().Now().Sub(q.started))
}

// Pending is the number of unanswered queries.
func (c *Checker) Pending() int { return c.queries.Len() }

// Close cancels every query without invoking callbacks.
func (c *Checker) Close() {
	if c.closed {
		return
	}
	c.closed = true
	for _, q := range c.queries.Drain() {
		if q.pending != nil {
			q.pending.Cancel()
		}
	}
}
