package schema

import (
	"fmt"

	"github.com/danmuck/ndnrevoke/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Payload identifies one application payload layout.
type Payload uint8

const (
	PayloadAppendParameters Payload = iota + 1
	PayloadAppendCommand
	PayloadNotifyAck
	PayloadRecordContent
	PayloadNackContent
)

func (p Payload) String() string {
	switch p {
	case PayloadAppendParameters:
		return "append-parameters"
	case PayloadAppendCommand:
		return "append-command"
	case PayloadNotifyAck:
		return "notify-ack"
	case PayloadRecordContent:
		return "record-content"
	case PayloadNackContent:
		return "nack-content"
	default:
		return fmt.Sprintf("payload(%d)", uint8(p))
	}
}

// Field types used inside application payloads.
const (
	FieldName           uint64 = 7
	FieldForwardingHint uint64 = 30

	FieldRevocationTimestamp uint64 = 201
	FieldPublicKeyHash       uint64 = 202
	FieldRevocationReason    uint64 = 203
	FieldNackReason          uint64 = 204
	FieldNotBefore           uint64 = 205

	FieldAppendStatusCode uint64 = 252
	FieldAppenderPrefix   uint64 = 261
	FieldAppenderNonce    uint64 = 262

	// FieldAppenderDataName shares the number of FieldAppenderPrefix; the two never
	// appear in the same payload.
	FieldAppenderDataName uint64 = 261
)

type Requirement struct {
	Type     uint64
	Required bool
	Repeated bool
}

type ValidationError struct {
	Payload   Payload
	FieldType uint64
	Reason    string
}

func (e ValidationError) Error() string {
	if e.FieldType == 0 {
		return fmt.Sprintf("schema: payload=%s: %s", e.Payload, e.Reason)
	}
	return fmt.Sprintf("schema: payload=%s field=%d: %s", e.Payload, e.FieldType, e.Reason)
}

var requirements = map[Payload][]Requirement{
	PayloadAppendParameters: {
		{Type: FieldAppenderPrefix, Required: true},
		{Type: FieldForwardingHint},
		{Type: FieldAppenderNonce, Required: true},
	},
	PayloadAppendCommand: {
		{Type: FieldAppenderDataName, Required: true},
		{Type: FieldForwardingHint},
	},
	PayloadNotifyAck: {
		{Type: FieldAppendStatusCode, Repeated: true},
	},
	PayloadRecordContent: {
		{Type: FieldRevocationTimestamp, Required: true},
		{Type: FieldPublicKeyHash, Required: true},
		{Type: FieldRevocationReason, Required: true},
		{Type: FieldNotBefore},
	},
	PayloadNackContent: {
		{Type: FieldNackReason, Required: true},
	},
}

// Validate enforces required fields, field multiplicity and the critical-type rule.
// Unknown non-critical fields are ignored.
func Validate(payload Payload, fields []tlv.Field) error {
	reqs, ok := requirements[payload]
	if !ok {
		log.Error().Stringer("payload", payload).Msg("schema.Validate unknown payload")
		return ValidationError{Payload: payload, Reason: "unknown payload"}
	}
	known := make(map[uint64]Requirement, len(reqs))
	for _, req := range reqs {
		known[req.Type] = req
	}
	seen := make(map[uint64]int, len(fields))
	for _, f := range fields {
		req, ok := known[f.Type]
		if !ok {
			if tlv.IsCritical(f.Type) {
				log.Debug().Stringer("payload", payload).Uint64("field", f.Type).Msg("schema.Validate critical unknown field")
				return ValidationError{Payload: payload, FieldType: f.Type, Reason: "unrecognized critical field"}
			}
			continue
		}
		seen[f.Type]++
		if seen[f.Type] > 1 && !req.Repeated {
			return ValidationError{Payload: payload, FieldType: f.Type, Reason: "duplicate field"}
		}
	}
	for _, req := range reqs {
		if req.Required && seen[req.Type] == 0 {
			return ValidationError{Payload: payload, FieldType: req.Type, Reason: "missing required field"}
		}
	}
	return nil
}
