package revocation

import (
	"errors"
	"time"

	"github.com/danmuck/ndnrevoke/internal/appender"
	"github.com/danmuck/ndnrevoke/internal/naming"
	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/protocol"
	"github.com/danmuck/ndnrevoke/internal/security"
	"github.com/rs/zerolog/log"
)

var ErrNoClient = errors.New("revocation: revoker has no append client")

type Options struct {
	// Freshness of produced records; DefaultRecordFreshness when zero.
	Freshness time.Duration
	Now       func() time.Time
	// Client publishes records. Optional when records are only produced.
	Client *appender.Client
}

// Revoker signs revocation records and submits them to a ledger.
type Revoker struct {
	signer security.Signer
	opts   Options
}

func NewRevoker(signer security.Signer, opts Options) *Revoker {
	if opts.Freshness <= 0 {
		opts.Freshness = DefaultRecordFreshness
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Revoker{signer: signer, opts: opts}
}

// RevokeAsOwner produces a record published by the certificate's own key.
func (r *Revoker) RevokeAsOwner(cert *ndn.Data, reason protocol.ReasonCode, notBefore *time.Time) (*ndn.Data, error) {
	if cert == nil {
		return nil, protocol.Errorf(protocol.KindInvalidArgument, "revocation: nil certificate")
	}
	return r.revoke(cert, naming.RoleOwner, reason, notBefore, security.SignWithCertificate(cert.Name))
}

// RevokeAsIssuer produces a record signed with the key that issued cert.
func (r *Revoker) RevokeAsIssuer(cert *ndn.Data, reason protocol.ReasonCode, notBefore *time.Time) (*ndn.Data, error) {
	if cert == nil {
		return nil, protocol.Errorf(protocol.KindInvalidArgument, "revocation: nil certificate")
	}
	locator := cert.SigInfo.KeyLocator
	if len(locator) == 0 {
		return nil, protocol.Errorf(protocol.KindInvalidArgument, "revocation: %s has no key locator", cert.Name)
	}
	info := security.SignWithKey(locator)
	if naming.IsCertificateName(locator) {
		info = security.SignWithCertificate(locator)
	}
	return r.revoke(cert, naming.RoleIssuer, reason, notBefore, info)
}

func (r *Revoker) revoke(cert *ndn.Data, role naming.Role, reason protocol.ReasonCode, notBefore *time.Time, info security.SigningInfo) (*ndn.Data, error) {
	if !security.IsCertificate(cert) {
		return nil, protocol.Errorf(protocol.KindInvalidArgument, "revocation: %s is not a certificate", cert.Name)
	}
	if reason == protocol.ReasonInvalid {
		return nil, protocol.Errorf(protocol.KindInvalidArgument, "revocation: reason %s cannot be published", reason)
	}
	name, err := naming.RecordName(cert.Name, role)
	if err != nil {
		return nil, err
	}
	content := protocol.RecordContent{
		RevocationTimestamp: uint64(r.opts.Now().UnixMilli()),
		PublicKeyHash:       security.PublicKeyHash(cert),
		Reason:              reason,
	}
	if notBefore != nil {
		nb := uint64(notBefore.UnixMilli())
		content.NotBefore = &nb
	}
	raw, err := protocol.EncodeRecordContent(content)
	if err != nil {
		return nil, err
	}
	record := ndn.NewData(name, raw)
	record.ContentType = ndn.ContentTypeKey
	record.FreshnessPeriod = r.opts.Freshness
	if err := r.signer.Sign(record, info); err != nil {
		return nil, err
	}
	log.Debug().Stringer("record", name).Stringer("reason", reason).Stringer("signer", info).Msg("revocation record signed")
	return record, nil
}

// Publish submits records to topic through the append client.
func (r *Revoker) Publish(topic ndn.Name, records []*ndn.Data, cb appender.Callbacks) (uint64, error) {
	if r.opts.Client == nil {
		return 0, ErrNoClient
	}
	for _, rec := range records {
		if rec == nil || !naming.IsRecordName(rec.Name) {
			return 0, protocol.Errorf(protocol.KindInvalidArgument, "revocation: publish accepts revocation records only")
		}
	}
	return r.opts.Client.Append(topic, records, cb)
}

// PublishToLedger submits records to the ledger's append topic.
func (r *Revoker) PublishToLedger(ledgerPrefix ndn.Name, records []*ndn.Data, cb appender.Callbacks) (uint64, error) {
	return r.Publish(naming.AppendTopic(ledgerPrefix), records, cb)
}
