package protocol

import (
	"fmt"

	"github.com/danmuck/ndnrevoke/internal/ndn"
)

// StatusCode is the per-object outcome reported in a notify ack.
type StatusCode uint64

const (
	StatusSuccess                StatusCode = 0
	StatusFailureNack            StatusCode = 1
	StatusFailureTimeout         StatusCode = 2
	StatusFailureValidationApp   StatusCode = 4
	StatusFailureValidationProto StatusCode = 5
	StatusFailureStorage         StatusCode = 98
)

func (s StatusCode) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailureNack:
		return "failure-nack"
	case StatusFailureTimeout:
		return "failure-timeout"
	case StatusFailureValidationApp:
		return "failure-validation-app"
	case StatusFailureValidationProto:
		return "failure-validation-proto"
	case StatusFailureStorage:
		return "failure-storage"
	default:
		return fmt.Sprintf("status(%d)", uint64(s))
	}
}

// AllSuccess reports whether every status is SUCCESS; an empty list is not.
func AllSuccess(statuses []StatusCode) bool {
	if len(statuses) == 0 {
		return false
	}
	for _, s := range statuses {
		if s != StatusSuccess {
			return false
		}
	}
	return true
}

// ReasonCode explains a revocation.
type ReasonCode uint64

const (
	ReasonUnspecified   ReasonCode = 0
	ReasonKeyCompromise ReasonCode = 1
	ReasonCACompromise  ReasonCode = 2
	ReasonSuperseded    ReasonCode = 4
	ReasonInvalid       ReasonCode = 99
)

func (r ReasonCode) String() string {
	switch r {
	case ReasonUnspecified:
		return "unspecified"
	case ReasonKeyCompromise:
		return "key-compromise"
	case ReasonCACompromise:
		return "ca-compromise"
	case ReasonSuperseded:
		return "superseded"
	case ReasonInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("reason(%d)", uint64(r))
	}
}

// Known reports whether r is one of the defined reason codes.
func (r ReasonCode) Known() bool {
	switch r {
	case ReasonUnspecified, ReasonKeyCompromise, ReasonCACompromise, ReasonSuperseded, ReasonInvalid:
		return true
	}
	return false
}

// ParseReasonCode accepts the String form of a reason.
func ParseReasonCode(s string) (ReasonCode, error) {
	for _, r := range []ReasonCode{ReasonUnspecified, ReasonKeyCompromise, ReasonCACompromise, ReasonSuperseded} {
		if r.String() == s {
			return r, nil
		}
	}
	return ReasonInvalid, Errorf(KindInvalidArgument, "unknown revocation reason %q", s)
}

// NackCode explains a negative revocation answer.
type NackCode uint64

const NackNotRevoked NackCode = 0

// AppendParameters is carried by the notify interest.
type AppendParameters struct {
	HolderPrefix   ndn.Name
	ForwardingHint ndn.Name
	Nonce          uint64
}

// AppendCommand answers the ledger's command fetch.
type AppendCommand struct {
	PayloadName    ndn.Name
	ForwardingHint ndn.Name
}

// RecordContent is the content of a revocation record.
type RecordContent struct {
	RevocationTimestamp uint64
	PublicKeyHash       []byte
	Reason              ReasonCode
	NotBefore           *uint64
}

// NackContent is the content of a revocation nack.
type NackContent struct {
	Reason NackCode
}
