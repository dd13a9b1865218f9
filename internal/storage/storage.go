// Package storage defines the ledger's certificate state store and the
// factory that opens a backend by name.
package storage

import (
	"errors"
	"fmt"

	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/protocol"
)

var (
	ErrNotFound         = errors.New("storage: not found")
	ErrStatusRegression = errors.New("storage: status regression")
	ErrClosed           = errors.New("storage: closed")
)

// Status only moves forward: NOTINITIALIZED < VALID < REVOKED.
type Status uint8

const (
	StatusNotInitialized Status = iota
	StatusValid
	StatusRevoked
)

func (s Status) String() string {
	switch s {
	case StatusNotInitialized:
		return "NOTINITIALIZED"
	case StatusValid:
		return "VALID"
	case StatusRevoked:
		return "REVOKED"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// CertificateState is the ledger's view of one certificate.
type CertificateState struct {
	CertName            ndn.Name
	LedgerPrefix        ndn.Name
	Status              Status
	Reason              protocol.ReasonCode
	PublisherID         ndn.Component
	PublicKeyHash       []byte
	RevocationTimestamp uint64
	Record              *ndn.Data
}

func (s CertificateState) Clone() CertificateState {
	out := s
	out.CertName = s.CertName.Clone()
	out.LedgerPrefix = s.LedgerPrefix.Clone()
	out.PublisherID.Value = append([]byte(nil), s.PublisherID.Value...)
	out.PublicKeyHash = append([]byte(nil), s.PublicKeyHash...)
	if s.Record != nil {
		out.Record = s.Record.Clone()
	}
	return out
}

// Store is the capability every backend provides.
type Store interface {
	// Get returns ErrNotFound for unknown certificates.
	Get(cert ndn.Name) (CertificateState, error)
	// Put inserts or overwrites; a lower status than the stored one fails
	// with a storage error wrapping ErrStatusRegression.
	Put(state CertificateState) error
	// List returns states under prefix that fall inside the configured
	// prefix set, ordered by certificate name in NDN canonical order (see
	// SortStates). An empty prefix lists all.
	List(prefix ndn.Name) ([]CertificateState, error)
	Close() error
}

// CheckPut validates next against the currently stored state, if any.
func CheckPut(current *CertificateState, next CertificateState) error {
	if len(next.CertName) == 0 {
		return protocol.Errorf(protocol.KindInvalidArgument, "storage: empty certificate name")
	}
	if current != nil && next.Status < current.Status {
		return protocol.NewError(protocol.KindStorage,
			fmt.Sprintf("%s: %s -> %s", next.CertName, current.Status, next.Status), ErrStatusRegression)
	}
	return nil
}

// PrefixSet restricts enumeration to a ledger's configured namespaces.
type PrefixSet []ndn.Name

// Contains is true for any name when the set is empty.
func (p PrefixSet) Contains(n ndn.Name) bool {
	if len(p) == 0 {
		return true
	}
	for _, prefix := range p {
		if prefix.IsPrefixOf(n) {
			return true
		}
	}
	return false
}

// Selects reports whether a state belongs in List(prefix).
func (p PrefixSet) Selects(prefix, n ndn.Name) bool {
	return prefix.IsPrefixOf(n) && p.Contains(n)
}

// NotFound wraps ErrNotFound with the certificate name.
func NotFound(cert ndn.Name) error {
	return fmt.Errorf("%w: %s", ErrNotFound, cert)
}
