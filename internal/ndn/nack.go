package ndn

import (
	"errors"
	"fmt"

	"github.com/danmuck/ndnrevoke/internal/protocol/tlv"
)

var ErrInvalidNack = errors.New("ndn: invalid nack")

// NackReason is the network-level reason attached to an application NACK.
type NackReason uint64

const (
	NackNone       NackReason = 0
	NackCongestion NackReason = 50
	NackDuplicate  NackReason = 100
	NackNoRoute    NackReason = 150
)

func (r NackReason) String() string {
	switch r {
	case NackNone:
		return "none"
	case NackCongestion:
		return "congestion"
	case NackDuplicate:
		return "duplicate"
	case NackNoRoute:
		return "no-route"
	default:
		return fmt.Sprintf("nack(%d)", uint64(r))
	}
}

// EncodeNack wraps the rejected interest with its reason for link transport.
func EncodeNack(interest *Interest, reason NackReason) []byte {
	value := tlv.AppendField(nil, tlv.NonNegativeIntegerField(TypeNackReason, uint64(reason)))
	value = append(value, interest.Encode()...)
	return tlv.EncodeField(tlv.Field{Type: TypeNack, Value: value})
}

func DecodeNack(wire []byte) (*Interest, NackReason, error) {
	outer, err := tlv.DecodeElement(wire, TypeNack)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidNack, err)
	}
	fields, err := tlv.DecodeFields(outer.Value)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidNack, err)
	}
	var reason NackReason
	if f, ok := tlv.GetField(fields, TypeNackReason); ok {
		v, err := tlv.DecodeNonNegativeInteger(f.Value)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrInvalidNack, err)
		}
		reason = NackReason(v)
	}
	f, ok := tlv.GetField(fields, TypeInterest)
	if !ok {
		return nil, 0, fmt.Errorf("%w: missing interest", ErrInvalidNack)
	}
	interest, err := DecodeInterest(tlv.EncodeField(f))
	if err != nil {
		return nil, 0, err
	}
	return interest, reason, nil
}
