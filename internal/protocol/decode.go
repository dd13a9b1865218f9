package protocol

import (
	"fmt"

	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/protocol/schema"
	"github.com/danmuck/ndnrevoke/internal/protocol/tlv"
)

func DecodeAppendParameters(b []byte) (AppendParameters, error) {
	const p = schema.PayloadAppendParameters
	fields, err := decodePayload(p, b)
	if err != nil {
		return AppendParameters{}, err
	}
	var out AppendParameters
	for _, f := range fields {
		switch f.Type {
		case schema.FieldAppenderPrefix:
			out.HolderPrefix, err = nestedName(p, f)
		case schema.FieldForwardingHint:
			out.ForwardingHint, err = nestedName(p, f)
		case schema.FieldAppenderNonce:
			out.Nonce, err = uintField(p, f)
		}
		if err != nil {
			return AppendParameters{}, err
		}
	}
	if len(out.HolderPrefix) == 0 {
		return AppendParameters{}, Errorf(KindProtocolFormat, "%s: empty holder prefix", p)
	}
	return out, nil
}

func DecodeAppendCommand(b []byte) (AppendCommand, error) {
	const p = schema.PayloadAppendCommand
	fields, err := decodePayload(p, b)
	if err != nil {
		return AppendCommand{}, err
	}
	var out AppendCommand
	for _, f := range fields {
		switch f.Type {
		case schema.FieldAppenderDataName:
			out.PayloadName, err = nestedName(p, f)
		case schema.FieldForwardingHint:
			out.ForwardingHint, err = nestedName(p, f)
		}
		if err != nil {
			return AppendCommand{}, err
		}
	}
	if len(out.PayloadName) == 0 {
		return AppendCommand{}, Errorf(KindProtocolFormat, "%s: empty payload name", p)
	}
	return out, nil
}

func DecodeStatusList(b []byte) ([]StatusCode, error) {
	const p = schema.PayloadNotifyAck
	fields, err := decodePayload(p, b)
	if err != nil {
		return nil, err
	}
	out := make([]StatusCode, 0, len(fields))
	for _, f := range fields {
		if f.Type != schema.FieldAppendStatusCode {
			continue
		}
		v, err := uintField(p, f)
		if err != nil {
			return nil, err
		}
		out = append(out, StatusCode(v))
	}
	return out, nil
}

func DecodeRecordContent(b []byte) (RecordContent, error) {
	const p = schema.PayloadRecordContent
	fields, err := decodePayload(p, b)
	if err != nil {
		return RecordContent{}, err
	}
	var out RecordContent
	for _, f := range fields {
		var v uint64
		switch f.Type {
		case schema.FieldRevocationTimestamp:
			out.RevocationTimestamp, err = uintField(p, f)
		case schema.FieldPublicKeyHash:
			out.PublicKeyHash = f.Value
		case schema.FieldRevocationReason:
			v, err = uintField(p, f)
			out.Reason = ReasonCode(v)
			if err == nil && !out.Reason.Known() {
				err = Errorf(KindProtocolFormat, "record content: unknown revocation reason %d", v)
			}
		case schema.FieldNotBefore:
			v, err = uintField(p, f)
			out.NotBefore = &v
		}
		if err != nil {
			return RecordContent{}, err
		}
	}
	return out, nil
}

func DecodeNackContent(b []byte) (NackContent, error) {
	const p = schema.PayloadNackContent
	fields, err := decodePayload(p, b)
	if err != nil {
		return NackContent{}, err
	}
	f, _ := tlv.GetField(fields, schema.FieldNackReason)
	v, err := uintField(p, f)
	if err != nil {
		return NackContent{}, err
	}
	return NackContent{Reason: NackCode(v)}, nil
}

// DecodeBundle splits concatenated Data objects. Unknown non-critical
// elements between objects are skipped.
func DecodeBundle(b []byte) ([]*ndn.Data, error) {
	out := make([]*ndn.Data, 0)
	for i := 0; i < len(b); {
		f, n, err := tlv.ReadField(b[i:])
		if err != nil {
			return nil, NewError(KindProtocolFormat, "bundle", err)
		}
		switch {
		case f.Type == ndn.TypeData:
			d, err := ndn.DecodeData(b[i : i+n])
			if err != nil {
				return nil, NewError(KindProtocolFormat, fmt.Sprintf("bundle object %d", len(out)), err)
			}
			out = append(out, d)
		case tlv.IsCritical(f.Type):
			return nil, Errorf(KindProtocolFormat, "bundle: unrecognized critical element %d", f.Type)
		}
		i += n
	}
	return out, nil
}
