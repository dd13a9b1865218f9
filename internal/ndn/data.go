package ndn

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/ndnrevoke/internal/protocol/tlv"
)

var ErrInvalidData = errors.New("ndn: invalid data")

type SignatureInfo struct {
	Type       SignatureType
	KeyLocator Name
}

// Data is a named, signed content object.
type Data struct {
	Name            Name
	ContentType     ContentType
	FreshnessPeriod time.Duration
	Content         []byte
	SigInfo         SignatureInfo
	SigValue        []byte
}

func NewData(name Name, content []byte) *Data {
	return &Data{Name: name.Clone(), Content: append([]byte(nil), content...)}
}

func (d *Data) metaInfoField() (tlv.Field, bool) {
	fields := make([]tlv.Field, 0, 2)
	if d.ContentType != ContentTypeBlob {
		fields = append(fields, tlv.NonNegativeIntegerField(TypeContentType, uint64(d.ContentType)))
	}
	if d.FreshnessPeriod > 0 {
		fields = append(fields, tlv.NonNegativeIntegerField(TypeFreshnessPeriod, uint64(d.FreshnessPeriod/time.Millisecond)))
	}
	if len(fields) == 0 {
		return tlv.Field{}, false
	}
	return tlv.Field{Type: TypeMetaInfo, Value: tlv.EncodeFields(fields)}, true
}

func (d *Data) sigInfoField() tlv.Field {
	fields := []tlv.Field{tlv.NonNegativeIntegerField(TypeSignatureType, uint64(d.SigInfo.Type))}
	if len(d.SigInfo.KeyLocator) > 0 {
		fields = append(fields, tlv.Field{Type: TypeKeyLocator, Value: d.SigInfo.KeyLocator.Encode()})
	}
	return tlv.Field{Type: TypeSignatureInfo, Value: tlv.EncodeFields(fields)}
}

// SignedPortion is Name, MetaInfo, Content and SignatureInfo in wire order.
func (d *Data) SignedPortion() []byte {
	out := tlv.AppendField(nil, d.Name.Field())
	if meta, ok := d.metaInfoField(); ok {
		out = tlv.AppendField(out, meta)
	}
	out = tlv.AppendField(out, tlv.Field{Type: TypeContent, Value: d.Content})
	return tlv.AppendField(out, d.sigInfoField())
}

func (d *Data) Encode() []byte {
	value := tlv.AppendField(d.SignedPortion(), tlv.Field{Type: TypeSignatureValue, Value: d.SigValue})
	return tlv.EncodeField(tlv.Field{Type: TypeData, Value: value})
}

func (d *Data) Clone() *Data {
	out := *d
	out.Name = d.Name.Clone()
	out.Content = append([]byte(nil), d.Content...)
	out.SigInfo.KeyLocator = d.SigInfo.KeyLocator.Clone()
	out.SigValue = append([]byte(nil), d.SigValue...)
	return &out
}

// DecodeData parses one complete Data element.
func DecodeData(wire []byte) (*Data, error) {
	outer, err := tlv.DecodeElement(wire, TypeData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return decodeDataValue(outer.Value)
}

func decodeDataValue(value []byte) (*Data, error) {
	fields, err := tlv.DecodeFields(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	d := &Data{}
	hasName, hasSigInfo := false, false
	for _, f := range fields {
		switch f.Type {
		case TypeName:
			d.Name, err = DecodeNameValue(f.Value)
			hasName = true
		case TypeMetaInfo:
			err = d.decodeMetaInfo(f.Value)
		case TypeContent:
			d.Content = f.Value
		case TypeSignatureInfo:
			err = d.decodeSigInfo(f.Value)
			hasSigInfo = true
		case TypeSignatureValue:
			d.SigValue = f.Value
		default:
			if tlv.IsCritical(f.Type) {
				return nil, fmt.Errorf("%w: unrecognized critical element %d", ErrInvalidData, f.Type)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
	}
	if !hasName || !hasSigInfo {
		return nil, fmt.Errorf("%w: missing name or signature info", ErrInvalidData)
	}
	return d, nil
}

func (d *Data) decodeMetaInfo(value []byte) error {
	fields, err := tlv.DecodeFields(value)
	if err != nil {
		return err
	}
	for _, f := range fields {
		switch f.Type {
		case TypeContentType:
			v, err := tlv.DecodeNonNegativeInteger(f.Value)
			if err != nil {
				return err
			}
			d.ContentType = ContentType(v)
		case TypeFreshnessPeriod:
			v, err := tlv.DecodeNonNegativeInteger(f.Value)
			if err != nil {
				return err
			}
			d.FreshnessPeriod = time.Duration(v) * time.Millisecond
		}
	}
	return nil
}

func (d *Data) decodeSigInfo(value []byte) error {
	fields, err := tlv.DecodeFields(value)
	if err != nil {
		return err
	}
	for _, f := range fields {
		switch f.Type {
		case TypeSignatureType:
			v, err := tlv.DecodeNonNegativeInteger(f.Value)
			if err != nil {
				return err
			}
			d.SigInfo.Type = SignatureType(v)
		case TypeKeyLocator:
			inner, err := tlv.DecodeFields(f.Value)
			if err != nil {
				return err
			}
			if nameField, ok := tlv.GetField(inner, TypeName); ok {
				d.SigInfo.KeyLocator, err = DecodeNameValue(nameField.Value)
				if err != nil {
					return err
				}
			}
		}
	}
	return nil
}
