package ledger

import (
	"bytes"
	"errors"

	"github.com/danmuck/ndnrevoke/internal/naming"
	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/observability"
	"github.com/danmuck/ndnrevoke/internal/protocol"
	"github.com/danmuck/ndnrevoke/internal/revocation"
	"github.com/danmuck/ndnrevoke/internal/security"
	"github.com/danmuck/ndnrevoke/internal/storage"
	"github.com/rs/zerolog/log"
)

// update stores one submitted object. Certificates become VALID, records
// move their certificate to REVOKED. The first record on file wins.
func (l *Ledger) update(obj *ndn.Data) protocol.StatusCode {
	kind, status := l.apply(obj)
	observability.RecordSubmission(l.cfg.Prefix.String(), kind, status.String())
	return status
}

func (l *Ledger) apply(obj *ndn.Data) (string, protocol.StatusCode) {
	if err := l.validator.Validate(obj); err != nil {
		log.Warn().Err(err).Stringer("name", obj.Name).Msg("ledger rejected submission")
		return "unknown", protocol.StatusFailureValidationApp
	}
	switch {
	case security.IsCertificate(obj):
		return "certificate", l.applyCertificate(obj)
	case naming.IsRecordName(obj.Name):
		return "record", l.applyRecord(obj)
	default:
		log.Warn().Stringer("name", obj.Name).Msg("ledger rejected submission of unknown shape")
		return "unknown", protocol.StatusFailureValidationApp
	}
}

func (l *Ledger) applyCertificate(cert *ndn.Data) protocol.StatusCode {
	l.validator.AddCertificate(cert)
	_, err := l.store.Get(cert.Name)
	switch {
	case err == nil:
		log.Debug().Stringer("cert", cert.Name).Msg("ledger certificate already known")
		return protocol.StatusSuccess
	case !errors.Is(err, storage.ErrNotFound):
		log.Error().Err(err).Stringer("cert", cert.Name).Msg("ledger store lookup")
		return protocol.StatusFailureStorage
	}
	cn, _ := naming.ParseCertificateName(cert.Name)
	st := storage.CertificateState{
		CertName:      cert.Name,
		LedgerPrefix:  l.cfg.Prefix,
		Status:        storage.StatusValid,
		PublisherID:   cn.IssuerID,
		PublicKeyHash: security.PublicKeyHash(cert),
	}
	if err := l.store.Put(st); err != nil {
		log.Error().Err(err).Stringer("cert", cert.Name).Msg("ledger store certificate")
		return protocol.StatusFailureStorage
	}
	log.Info().Stringer("cert", cert.Name).Msg("ledger certificate logged")
	return protocol.StatusSuccess
}

func (l *Ledger) applyRecord(obj *ndn.Data) protocol.StatusCode {
	rec, err := revocation.ParseRecord(obj)
	if err != nil {
		log.Warn().Err(err).Stringer("record", obj.Name).Msg("ledger rejected record")
		return protocol.StatusFailureValidationApp
	}
	if rec.Reason == protocol.ReasonInvalid {
		log.Warn().Stringer("record", obj.Name).Msg("ledger rejected record with invalid reason")
		return protocol.StatusFailureValidationApp
	}
	current, err := l.store.Get(rec.CertName)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		log.Error().Err(err).Stringer("cert", rec.CertName).Msg("ledger store lookup")
		return protocol.StatusFailureStorage
	case current.Status == storage.StatusRevoked:
		log.Info().
			Stringer("cert", rec.CertName).
			Stringer("record", obj.Name).
			Stringer("publisher", current.PublisherID).
			Msg("ledger already holds a record for certificate")
		return protocol.StatusSuccess
	case len(current.PublicKeyHash) > 0 && !bytes.Equal(current.PublicKeyHash, rec.PublicKeyHash):
		log.Warn().Stringer("record", obj.Name).Msg("ledger rejected record for a different key")
		return protocol.StatusFailureValidationApp
	}

	st := storage.CertificateState{
		CertName:            rec.CertName,
		LedgerPrefix:        l.cfg.Prefix,
		Status:              storage.StatusRevoked,
		Reason:              rec.Reason,
		PublisherID:         rec.Revoker,
		PublicKeyHash:       rec.PublicKeyHash,
		RevocationTimestamp: rec.RevocationTimestamp,
		Record:              obj,
	}
	if err := l.store.Put(st); err != nil {
		log.Error().Err(err).Stringer("record", obj.Name).Msg("ledger store record")
		return protocol.StatusFailureStorage
	}
	log.Info().
		Stringer("cert", rec.CertName).
		Stringer("revoker", rec.Revoker).
		Stringer("reason", rec.Reason).
		Msg("ledger certificate revoked")
	return protocol.StatusSuccess
}
