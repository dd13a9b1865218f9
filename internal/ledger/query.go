package ledger

import (
	"errors"

	"github.com/danmuck/ndnrevoke/internal/naming"
	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/observability"
	"github.com/danmuck/ndnrevoke/internal/revocation"
	"github.com/danmuck/ndnrevoke/internal/storage"
	"github.com/rs/zerolog/log"
)

// onQuery answers /<id>/REVOKE/<keyId>/<issuerId>/<version>/<revoker>.
// Certificates the ledger has no opinion on get no reply at all.
func (l *Ledger) onQuery(interest *ndn.Interest) {
	if l.closed {
		return
	}
	name := interest.Name
	if !naming.IsRecordName(name) {
		log.Trace().Stringer("name", name).Msg("ledger ignored non-query interest")
		return
	}
	cert, err := naming.CertificateFromRecord(name)
	if err != nil {
		log.Debug().Err(err).Stringer("name", name).Msg("ledger ignored malformed query")
		return
	}
	revoker, _ := naming.RevokerOf(name)

	st, err := l.store.Get(cert)
	if errors.Is(err, storage.ErrNotFound) {
		l.silent(name, "unknown certificate")
		return
	}
	if err != nil {
		log.Error().Err(err).Stringer("cert", cert).Msg("ledger store lookup")
		l.silent(name, "store error")
		return
	}

	switch st.Status {
	case storage.StatusRevoked:
		if st.Record != nil && st.PublisherID.Equal(revoker) {
			if err := l.face.Put(st.Record); err != nil {
				log.Warn().Err(err).Stringer("record", st.Record.Name).Msg("ledger put record")
				return
			}
			observability.RecordLedgerReply(l.cfg.Prefix.String(), "record")
			log.Debug().Stringer("record", st.Record.Name).Msg("ledger answered with record")
			return
		}
		l.replyNack(name)
	case storage.StatusValid:
		l.replyNack(name)
	default:
		l.silent(name, "not initialized")
	}
}

func (l *Ledger) replyNack(query ndn.Name) {
	nack, err := revocation.NewNack(query, l.face.Loop().Now(), l.cfg.NackFreshness)
	if err != nil {
		log.Warn().Err(err).Stringer("query", query).Msg("ledger build nack")
		return
	}
	if err := l.signer.Sign(nack, l.cfg.Signing); err != nil {
		log.Error().Err(err).Stringer("nack", nack.Name).Msg("ledger sign nack")
		return
	}
	if err := l.face.Put(nack); err != nil {
		log.Warn().Err(err).Stringer("nack", nack.Name).Msg("ledger put nack")
		return
	}
	observability.RecordLedgerReply(l.cfg.Prefix.String(), "nack")
	log.Debug().Stringer("nack", nack.Name).Msg("ledger answered with nack")
}

func (l *Ledger) silent(query ndn.Name, why string) {
	observability.RecordLedgerReply(l.cfg.Prefix.String(), "silent")
	log.Debug().Stringer("query", query).Str("why", why).Msg("ledger has no opinion")
}
