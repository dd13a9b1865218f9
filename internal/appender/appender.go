// Package appender runs the append exchange: a holder notifies a ledger
// topic, the ledger pulls the command and payload bundle from the holder,
// stores each object and acknowledges with one status per object.
//
// Both sides keep one registry entry per in-flight nonce. Every entry leaves
// its registry exactly once, on a terminal phase, and nothing fires after
// Close.
package appender

import (
	"fmt"

	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/protocol"
)

// Phase is the state of one exchange.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseNotifySent
	PhaseNotifyReceived
	PhaseFetchPending
	PhaseFetchRetry
	PhaseAcked
	PhaseTimedOut
	PhaseNacked
	PhaseValidationFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseNotifySent:
		return "notify-sent"
	case PhaseNotifyReceived:
		return "notify-received"
	case PhaseFetchPending:
		return "fetch-pending"
	case PhaseFetchRetry:
		return "fetch-retry"
	case PhaseAcked:
		return "acked"
	case PhaseTimedOut:
		return "timed-out"
	case PhaseNacked:
		return "nacked"
	case PhaseValidationFailed:
		return "validation-failed"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

func (p Phase) Terminal() bool {
	return p >= PhaseAcked
}

// Callbacks receive the outcome of one Append. Exactly one fires.
type Callbacks struct {
	OnSuccess func(nonce uint64, statuses []protocol.StatusCode)
	// OnFailure gets the ack's statuses when the ledger rejected an object,
	// or a nil list and a *protocol.Error when the ack itself was unusable.
	OnFailure func(nonce uint64, statuses []protocol.StatusCode, err error)
	OnTimeout func(nonce uint64)
	OnNack    func(nonce uint64, reason ndn.NackReason)
}

// UpdateFunc stores one submitted object and reports its status.
type UpdateFunc func(obj *ndn.Data) protocol.StatusCode
