package naming

import (
	"github.com/danmuck/ndnrevoke/internal/ndn"
)

const (
	LedgerMarker     = "LEDGER"
	AppendMarker     = "append"
	NotifyMarker     = "notify"
	MsgMarker        = "msg"
	SubmissionMarker = "submission"
)

// AppendTopic is the ledger's submission topic, <ledgerPrefix>/LEDGER/append.
func AppendTopic(ledgerPrefix ndn.Name) ndn.Name {
	return ledgerPrefix.AppendString(LedgerMarker, AppendMarker)
}

// NotifyName is <topic>/notify; the interest appends its parameters digest.
func NotifyName(topic ndn.Name) ndn.Name {
	return topic.AppendString(NotifyMarker)
}

// MsgPrefix is the holder's pull endpoint, <holderPrefix>/msg.
func MsgPrefix(holderPrefix ndn.Name) ndn.Name {
	return holderPrefix.AppendString(MsgMarker)
}

// CommandName is <holderPrefix>/msg/<topic...>/<nonce>.
func CommandName(holderPrefix, topic ndn.Name, nonce uint64) ndn.Name {
	return MsgPrefix(holderPrefix).AppendName(topic).Append(ndn.NewNumberComponent(nonce))
}

// BundleName is <command name>/submission.
func BundleName(command ndn.Name) ndn.Name {
	return command.AppendString(SubmissionMarker)
}

// CommandNonce reads the trailing nonce of a command fetch name.
func CommandNonce(name ndn.Name) (uint64, error) {
	last, ok := name.At(-1)
	if !ok || !last.IsGeneric() {
		return 0, invalid("%s has no nonce component", name)
	}
	v, err := last.Number()
	if err != nil {
		return 0, invalid("%s: %v", name, err)
	}
	return v, nil
}
