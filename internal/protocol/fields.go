package protocol

import (
	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/protocol/schema"
	"github.com/danmuck/ndnrevoke/internal/protocol/tlv"
)

// nameField wraps a Name element inside an element of type typ.
func nameField(typ uint64, n ndn.Name) tlv.Field {
	return tlv.Field{Type: typ, Value: n.Encode()}
}

func nestedName(p schema.Payload, f tlv.Field) (ndn.Name, error) {
	n, err := ndn.DecodeName(f.Value)
	if err != nil {
		return nil, formatError(p, err)
	}
	return n, nil
}

func uintField(p schema.Payload, f tlv.Field) (uint64, error) {
	v, err := tlv.DecodeNonNegativeInteger(f.Value)
	if err != nil {
		return 0, formatError(p, err)
	}
	return v, nil
}

func formatError(p schema.Payload, err error) *Error {
	return NewError(KindProtocolFormat, p.String(), err)
}

// decodePayload splits b into elements and applies the payload's schema.
func decodePayload(p schema.Payload, b []byte) ([]tlv.Field, error) {
	fields, err := tlv.DecodeFields(b)
	if err != nil {
		return nil, formatError(p, err)
	}
	if err := schema.Validate(p, fields); err != nil {
		return nil, formatError(p, err)
	}
	return fields, nil
}
