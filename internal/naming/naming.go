// Package naming maps certificates to revocation record, nack and append
// exchange names. Every function is pure.
package naming

import (
	"fmt"

	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/protocol"
)

const (
	KeyMarker    = "KEY"
	RevokeMarker = "REVOKE"
	NackMarker   = "nack"
	SelfRevoker  = "self"
)

// Offsets from the end of each name shape.
const (
	certKeyOffset         = -4
	certIssuerOffset      = -2
	recordRevokeOffset    = -5
	recordPublisherOffset = -1
	nackTimestampOffset   = -1
	nackMarkerOffset      = -2
	nackPublisherOffset   = -3
	nackRevokeOffset      = -7
)

// Role selects whose revocation a query asks about.
type Role int

const (
	RoleOwner Role = iota
	RoleIssuer
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleIssuer:
		return "issuer"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// CertificateName is /<identity>/KEY/<keyId>/<issuerId>/<version>.
type CertificateName struct {
	Identity ndn.Name
	KeyID    ndn.Component
	IssuerID ndn.Component
	Version  ndn.Component
}

func (c CertificateName) Name() ndn.Name {
	return c.Identity.Append(ndn.NewGenericComponent(KeyMarker), c.KeyID, c.IssuerID, c.Version)
}

// KeyName is /<identity>/KEY/<keyId>.
func (c CertificateName) KeyName() ndn.Name {
	return c.Identity.Append(ndn.NewGenericComponent(KeyMarker), c.KeyID)
}

func invalid(format string, args ...any) error {
	return protocol.Errorf(protocol.KindInvalidArgument, format, args...)
}

func ParseCertificateName(n ndn.Name) (CertificateName, error) {
	if n.Len() < 5 {
		return CertificateName{}, invalid("certificate name %s too short", n)
	}
	if c, _ := n.At(certKeyOffset); !c.Is(KeyMarker) {
		return CertificateName{}, invalid("certificate name %s lacks KEY component", n)
	}
	version, _ := n.At(-1)
	if !version.IsVersion() {
		return CertificateName{}, invalid("certificate name %s lacks version component", n)
	}
	keyID, _ := n.At(-3)
	issuerID, _ := n.At(certIssuerOffset)
	return CertificateName{
		Identity: n.Prefix(certKeyOffset),
		KeyID:    keyID,
		IssuerID: issuerID,
		Version:  version,
	}, nil
}

func IsCertificateName(n ndn.Name) bool {
	_, err := ParseCertificateName(n)
	return err == nil
}

func ValidateCertificateName(n ndn.Name) error {
	_, err := ParseCertificateName(n)
	return err
}

// IdentityOfKeyName strips /KEY/<keyId> from a key or certificate name.
func IdentityOfKeyName(n ndn.Name) (ndn.Name, bool) {
	for i := n.Len() - 2; i >= 0; i-- {
		if n[i].Is(KeyMarker) {
			return n.Prefix(i), true
		}
	}
	return nil, false
}

// RevokerComponent is "self" for the owner and the issuer id for the issuer.
func RevokerComponent(cert ndn.Name, role Role) (ndn.Component, error) {
	cn, err := ParseCertificateName(cert)
	if err != nil {
		return ndn.Component{}, err
	}
	switch role {
	case RoleOwner:
		return ndn.NewGenericComponent(SelfRevoker), nil
	case RoleIssuer:
		return cn.IssuerID, nil
	default:
		return ndn.Component{}, invalid("unknown revoker role %d", int(role))
	}
}

// RecordName is /<identity>/REVOKE/<keyId>/<issuerId>/<version>/<revoker>.
func RecordName(cert ndn.Name, role Role) (ndn.Name, error) {
	revoker, err := RevokerComponent(cert, role)
	if err != nil {
		return nil, err
	}
	return RecordNameFor(cert, revoker)
}

func RecordNameFor(cert ndn.Name, revoker ndn.Component) (ndn.Name, error) {
	if _, err := ParseCertificateName(cert); err != nil {
		return nil, err
	}
	if len(revoker.Value) == 0 {
		return nil, invalid("empty revoker component")
	}
	name, err := cert.Set(certKeyOffset, ndn.NewGenericComponent(RevokeMarker))
	if err != nil {
		return nil, invalid("%v", err)
	}
	return name.Append(revoker), nil
}

// QueryName is the name a checker asks for; it equals the record name.
func QueryName(cert ndn.Name, role Role) (ndn.Name, error) {
	return RecordName(cert, role)
}

func IsRecordName(n ndn.Name) bool {
	if n.Len() < 6 {
		return false
	}
	revoke, _ := n.At(recordRevokeOffset)
	version, _ := n.At(-2)
	return revoke.Is(RevokeMarker) && version.IsVersion()
}

func IsNackName(n ndn.Name) bool {
	if n.Len() < 8 {
		return false
	}
	marker, _ := n.At(nackMarkerOffset)
	ts, _ := n.At(nackTimestampOffset)
	revoke, _ := n.At(nackRevokeOffset)
	return marker.Is(NackMarker) && ts.IsTimestamp() && revoke.Is(RevokeMarker)
}

// NackName is <query>/nack/<timestamp>.
func NackName(query ndn.Name, timestampMillis uint64) (ndn.Name, error) {
	if !IsRecordName(query) {
		return nil, invalid("%s is not a revocation query name", query)
	}
	return query.Append(ndn.NewGenericComponent(NackMarker), ndn.NewTimestampComponent(timestampMillis)), nil
}

func CertificateFromRecord(n ndn.Name) (ndn.Name, error) {
	if !IsRecordName(n) {
		return nil, invalid("%s is not a revocation record name", n)
	}
	cert, err := n.Prefix(recordPublisherOffset).Set(certKeyOffset, ndn.NewGenericComponent(KeyMarker))
	if err != nil {
		return nil, invalid("%v", err)
	}
	return cert, nil
}

func CertificateFromNack(n ndn.Name) (ndn.Name, error) {
	if !IsNackName(n) {
		return nil, invalid("%s is not a revocation nack name", n)
	}
	return CertificateFromRecord(n.Prefix(nackMarkerOffset))
}

// RecordFromNack strips /nack/<timestamp>.
func RecordFromNack(n ndn.Name) (ndn.Name, error) {
	if !IsNackName(n) {
		return nil, invalid("%s is not a revocation nack name", n)
	}
	return n.Prefix(nackMarkerOffset), nil
}

// RevokerOf returns the publisher component of a record or nack name.
func RevokerOf(n ndn.Name) (ndn.Component, error) {
	switch {
	case IsNackName(n):
		c, _ := n.At(nackPublisherOffset)
		return c, nil
	case IsRecordName(n):
		c, _ := n.At(recordPublisherOffset)
		return c, nil
	default:
		return ndn.Component{}, invalid("%s has no revoker component", n)
	}
}

// TimestampOfNack returns the nack's timestamp in milliseconds.
func TimestampOfNack(n ndn.Name) (uint64, error) {
	if !IsNackName(n) {
		return 0, invalid("%s is not a revocation nack name", n)
	}
	c, _ := n.At(nackTimestampOffset)
	return c.Number()
}
