package protocol

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced to callbacks and callers.
type ErrorKind uint8

const (
	KindInvalidArgument ErrorKind = iota + 1
	KindProtocolFormat
	KindValidation
	KindTransportTimeout
	KindTransportNack
	KindStorage
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid-argument"
	case KindProtocolFormat:
		return "protocol-format"
	case KindValidation:
		return "validation"
	case KindTransportTimeout:
		return "transport-timeout"
	case KindTransportNack:
		return "transport-nack"
	case KindStorage:
		return "storage"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Error is a classified failure with a human-readable detail.
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := "protocol: " + e.Kind.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the Err* sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Detail == "" || t.Detail == e.Detail)
}

var (
	ErrInvalidArgument  = &Error{Kind: KindInvalidArgument}
	ErrProtocolFormat   = &Error{Kind: KindProtocolFormat}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrTransportTimeout = &Error{Kind: KindTransportTimeout}
	ErrTransportNack    = &Error{Kind: KindTransportNack}
	ErrStorage          = &Error{Kind: KindStorage}
)

func NewError(kind ErrorKind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
