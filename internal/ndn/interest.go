package ndn

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/danmuck/ndnrevoke/internal/protocol/tlv"
)

const DefaultInterestLifetime = 4 * time.Second

var ErrInvalidInterest = errors.New("ndn: invalid interest")

// Interest is a request for named Data.
type Interest struct {
	Name           Name
	CanBePrefix    bool
	MustBeFresh    bool
	ForwardingHint []Name
	Nonce          uint32
	Lifetime       time.Duration
	AppParameters  []byte
}

func NewInterest(name Name) *Interest {
	return &Interest{
		Name:     name.Clone(),
		Nonce:    rand.Uint32(),
		Lifetime: DefaultInterestLifetime,
	}
}

// RefreshNonce draws a new message-level nonce for retransmission.
func (i *Interest) RefreshNonce() {
	prev := i.Nonce
	for i.Nonce == prev {
		i.Nonce = rand.Uint32()
	}
}

// SetAppParameters stores p and appends (or replaces) the trailing
// ParametersSha256Digest component so the name is unique per parameter set.
func (i *Interest) SetAppParameters(p []byte) {
	i.AppParameters = append([]byte(nil), p...)
	name := i.Name
	if last, ok := name.At(-1); ok && last.Type == TypeParametersSha256Digest {
		name = name.Prefix(-1)
	}
	sum := sha256.Sum256(i.AppParameters)
	i.Name = name.Append(Component{Type: TypeParametersSha256Digest, Value: sum[:]})
}

// NameWithoutDigest strips a trailing ParametersSha256Digest component.
func (i *Interest) NameWithoutDigest() Name {
	if last, ok := i.Name.At(-1); ok && last.Type == TypeParametersSha256Digest {
		return i.Name.Prefix(-1)
	}
	return i.Name
}

func (i *Interest) Clone() *Interest {
	out := *i
	out.Name = i.Name.Clone()
	out.ForwardingHint = make([]Name, len(i.ForwardingHint))
	for k, h := range i.ForwardingHint {
		out.ForwardingHint[k] = h.Clone()
	}
	out.AppParameters = append([]byte(nil), i.AppParameters...)
	return &out
}

// Matches reports whether d satisfies the interest.
func (i *Interest) Matches(d *Data) bool {
	if i.CanBePrefix {
		return i.Name.IsPrefixOf(d.Name)
	}
	return i.Name.Equal(d.Name)
}

func (i *Interest) Encode() []byte {
	fields := []tlv.Field{i.Name.Field()}
	if i.CanBePrefix {
		fields = append(fields, tlv.Field{Type: TypeCanBePrefix})
	}
	if i.MustBeFresh {
		fields = append(fields, tlv.Field{Type: TypeMustBeFresh})
	}
	if len(i.ForwardingHint) > 0 {
		hint := make([]tlv.Field, 0, len(i.ForwardingHint))
		for _, h := range i.ForwardingHint {
			hint = append(hint, h.Field())
		}
		fields = append(fields, tlv.Field{Type: TypeForwardingHint, Value: tlv.EncodeFields(hint)})
	}
	fields = append(fields, tlv.Field{Type: TypeNonce, Value: binary.BigEndian.AppendUint32(nil, i.Nonce)})
	if i.Lifetime > 0 {
		fields = append(fields, tlv.NonNegativeIntegerField(TypeInterestLifetime, uint64(i.Lifetime/time.Millisecond)))
	}
	if i.AppParameters != nil {
		fields = append(fields, tlv.Field{Type: TypeApplicationParameters, Value: i.AppParameters})
	}
	return tlv.EncodeField(tlv.Field{Type: TypeInterest, Value: tlv.EncodeFields(fields)})
}

func DecodeInterest(wire []byte) (*Interest, error) {
	outer, err := tlv.DecodeElement(wire, TypeInterest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInterest, err)
	}
	fields, err := tlv.DecodeFields(outer.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInterest, err)
	}
	in := &Interest{}
	hasName := false
	for _, f := range fields {
		switch f.Type {
		case TypeName:
			in.Name, err = DecodeNameValue(f.Value)
			hasName = true
		case TypeCanBePrefix:
			in.CanBePrefix = true
		case TypeMustBeFresh:
			in.MustBeFresh = true
		case TypeForwardingHint:
			in.ForwardingHint, err = decodeNameList(f.Value)
		case TypeNonce:
			if len(f.Value) != 4 {
				return nil, fmt.Errorf("%w: nonce length %d", ErrInvalidInterest, len(f.Value))
			}
			in.Nonce = binary.BigEndian.Uint32(f.Value)
		case TypeInterestLifetime:
			var ms uint64
			ms, err = tlv.DecodeNonNegativeInteger(f.Value)
			in.Lifetime = time.Duration(ms) * time.Millisecond
		case TypeApplicationParameters:
			in.AppParameters = f.Value
		default:
			if tlv.IsCritical(f.Type) {
				return nil, fmt.Errorf("%w: unrecognized critical element %d", ErrInvalidInterest, f.Type)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInterest, err)
		}
	}
	if !hasName {
		return nil, fmt.Errorf("%w: missing name", ErrInvalidInterest)
	}
	return in, nil
}

func decodeNameList(value []byte) ([]Name, error) {
	fields, err := tlv.DecodeFields(value)
	if err != nil {
		return nil, err
	}
	out := make([]Name, 0, len(fields))
	for _, f := range fields {
		if f.Type != TypeName {
			continue
		}
		n, err := DecodeNameValue(f.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
