package protocol

import (
	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/protocol/schema"
	"github.com/danmuck/ndnrevoke/internal/protocol/tlv"
)

func EncodeAppendParameters(p AppendParameters) ([]byte, error) {
	if len(p.HolderPrefix) == 0 {
		return nil, Errorf(KindInvalidArgument, "append parameters: empty holder prefix")
	}
	fields := []tlv.Field{nameField(schema.FieldAppenderPrefix, p.HolderPrefix)}
	if len(p.ForwardingHint) > 0 {
		fields = append(fields, nameField(schema.FieldForwardingHint, p.ForwardingHint))
	}
	fields = append(fields, tlv.NonNegativeIntegerField(schema.FieldAppenderNonce, p.Nonce))
	return tlv.EncodeFields(fields), nil
}

func EncodeAppendCommand(c AppendCommand) ([]byte, error) {
	if len(c.PayloadName) == 0 {
		return nil, Errorf(KindInvalidArgument, "append command: empty payload name")
	}
	fields := []tlv.Field{nameField(schema.FieldAppenderDataName, c.PayloadName)}
	if len(c.ForwardingHint) > 0 {
		fields = append(fields, nameField(schema.FieldForwardingHint, c.ForwardingHint))
	}
	return tlv.EncodeFields(fields), nil
}

// EncodeStatusList keeps statuses in payload order.
func EncodeStatusList(statuses []StatusCode) []byte {
	fields := make([]tlv.Field, 0, len(statuses))
	for _, s := range statuses {
		fields = append(fields, tlv.NonNegativeIntegerField(schema.FieldAppendStatusCode, uint64(s)))
	}
	return tlv.EncodeFields(fields)
}

func EncodeRecordContent(c RecordContent) ([]byte, error) {
	if len(c.PublicKeyHash) == 0 {
		return nil, Errorf(KindInvalidArgument, "record content: empty public key hash")
	}
	if !c.Reason.Known() {
		return nil, Errorf(KindInvalidArgument, "record content: unknown revocation reason %d", uint64(c.Reason))
	}
	fields := []tlv.Field{
		tlv.NonNegativeIntegerField(schema.FieldRevocationTimestamp, c.RevocationTimestamp),
		{Type: schema.FieldPublicKeyHash, Value: c.PublicKeyHash},
		tlv.NonNegativeIntegerField(schema.FieldRevocationReason, uint64(c.Reason)),
	}
	if c.NotBefore != nil {
		fields = append(fields, tlv.NonNegativeIntegerField(schema.FieldNotBefore, *c.NotBefore))
	}
	return tlv.EncodeFields(fields), nil
}

func EncodeNackContent(c NackContent) []byte {
	return tlv.EncodeField(tlv.NonNegativeIntegerField(schema.FieldNackReason, uint64(c.Reason)))
}

// EncodeBundle concatenates the wire form of each object.
func EncodeBundle(objects []*ndn.Data) []byte {
	out := make([]byte, 0)
	for _, d := range objects {
		out = append(out, d.Encode()...)
	}
	return out
}
