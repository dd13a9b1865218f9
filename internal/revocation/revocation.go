// Package revocation holds the two signed answers a ledger gives about a
// certificate: a revocation record and a "not revoked" nack.
package revocation

import (
	"bytes"
	"time"

	"github.com/danmuck/ndnrevoke/internal/naming"
	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/protocol"
	"github.com/danmuck/ndnrevoke/internal/security"
)

const (
	DefaultRecordFreshness = 100 * time.Hour
	DefaultNackFreshness   = 24 * time.Hour
)

// Record is a parsed revocation record.
type Record struct {
	Data     *ndn.Data
	CertName ndn.Name
	Revoker  ndn.Component
	protocol.RecordContent
}

func formatErr(format string, args ...any) error {
	return protocol.Errorf(protocol.KindProtocolFormat, format, args...)
}

// ParseRecord checks the record name and decodes its content. It does not
// verify the signature.
func ParseRecord(d *ndn.Data) (*Record, error) {
	if d == nil {
		return nil, protocol.Errorf(protocol.KindInvalidArgument, "revocation: nil record")
	}
	if !naming.IsRecordName(d.Name) {
		return nil, formatErr("revocation: %s is not a record name", d.Name)
	}
	cert, err := naming.CertificateFromRecord(d.Name)
	if err != nil {
		return nil, formatErr("revocation: %v", err)
	}
	revoker, _ := naming.RevokerOf(d.Name)
	content, err := protocol.DecodeRecordContent(d.Content)
	if err != nil {
		return nil, err
	}
	return &Record{Data: d, CertName: cert, Revoker: revoker, RecordContent: content}, nil
}

// Time is the revocation timestamp.
func (r *Record) Time() time.Time {
	return time.UnixMilli(int64(r.RevocationTimestamp)).UTC()
}

// Covers reports whether the record revokes cert: same name and same key.
func (r *Record) Covers(cert *ndn.Data) bool {
	return r.CertName.Equal(cert.Name) && bytes.Equal(r.PublicKeyHash, security.PublicKeyHash(cert))
}

// IsOwner reports whether the certificate owner published the record.
func (r *Record) IsOwner() bool {
	return r.Revoker.Is(naming.SelfRevoker)
}

// Nack is a parsed "not revoked" answer.
type Nack struct {
	Data      *ndn.Data
	CertName  ndn.Name
	Revoker   ndn.Component
	Timestamp uint64
	Reason    protocol.NackCode
}

func ParseNack(d *ndn.Data) (*Nack, error) {
	if d == nil {
		return nil, protocol.Errorf(protocol.KindInvalidArgument, "revocation: nil nack")
	}
	if !naming.IsNackName(d.Name) {
		return nil, formatErr("revocation: %s is not a nack name", d.Name)
	}
	cert, err := naming.CertificateFromNack(d.Name)
	if err != nil {
		return nil, formatErr("revocation: %v", err)
	}
	revoker, _ := naming.RevokerOf(d.Name)
	ts, err := naming.TimestampOfNack(d.Name)
	if err != nil {
		return nil, formatErr("revocation: %v", err)
	}
	content, err := protocol.DecodeNackContent(d.Content)
	if err != nil {
		return nil, err
	}
	return &Nack{Data: d, CertName: cert, Revoker: revoker, Timestamp: ts, Reason: content.Reason}, nil
}

func (n *Nack) Time() time.Time {
	return time.UnixMilli(int64(n.Timestamp)).UTC()
}

// NewNack builds an unsigned NOT_REVOKED answer to query, stamped at.
func NewNack(query ndn.Name, at time.Time, freshness time.Duration) (*ndn.Data, error) {
	name, err := naming.NackName(query, uint64(at.UnixMilli()))
	if err != nil {
		return nil, err
	}
	d := ndn.NewData(name, protocol.EncodeNackContent(protocol.NackContent{Reason: protocol.NackNotRevoked}))
	d.ContentType = ndn.ContentTypeNack
	d.FreshnessPeriod = freshness
	return d, nil
}
