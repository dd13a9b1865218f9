package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
	ErrTypeMismatch     = errors.New("tlv: unexpected field type")
	ErrInvalidInteger   = errors.New("tlv: invalid non-negative integer")
)

// Field is one decoded TLV element. Wire form: VAR-NUMBER type, VAR-NUMBER length, value.
type Field struct {
	Type  uint64
	Value []byte
}

// IsCritical reports whether an unrecognized element of type t must abort parsing.
func IsCritical(t uint64) bool {
	return t < 32 || t&1 == 1
}

// VarNumberLen is the encoded size of v as a VAR-NUMBER.
func VarNumberLen(v uint64) int {
	switch {
	case v < 253:
		return 1
	case v <= 0xFFFF:
		return 3
	case v <= 0xFFFFFFFF:
		return 5
	default:
		return 9
	}
}

func AppendVarNumber(dst []byte, v uint64) []byte {
	switch {
	case v < 253:
		return append(dst, byte(v))
	case v <= 0xFFFF:
		return binary.BigEndian.AppendUint16(append(dst, 253), uint16(v))
	case v <= 0xFFFFFFFF:
		return binary.BigEndian.AppendUint32(append(dst, 254), uint32(v))
	default:
		return binary.BigEndian.AppendUint64(append(dst, 255), v)
	}
}

// ReadVarNumber decodes one VAR-NUMBER and returns it with the bytes consumed.
func ReadVarNumber(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, ErrShortFieldHeader
	}
	switch first := b[0]; {
	case first < 253:
		return uint64(first), 1, nil
	case first == 253:
		if len(b) < 3 {
			return 0, 0, ErrShortFieldHeader
		}
		return uint64(binary.BigEndian.Uint16(b[1:3])), 3, nil
	case first == 254:
		if len(b) < 5 {
			return 0, 0, ErrShortFieldHeader
		}
		return uint64(binary.BigEndian.Uint32(b[1:5])), 5, nil
	default:
		if len(b) < 9 {
			return 0, 0, ErrShortFieldHeader
		}
		return binary.BigEndian.Uint64(b[1:9]), 9, nil
	}
}

func AppendField(dst []byte, f Field) []byte {
	dst = AppendVarNumber(dst, f.Type)
	dst = AppendVarNumber(dst, uint64(len(f.Value)))
	return append(dst, f.Value...)
}

func EncodeField(f Field) []byte {
	return AppendField(make([]byte, 0, VarNumberLen(f.Type)+VarNumberLen(uint64(len(f.Value)))+len(f.Value)), f)
}

// EncodeFields concatenates elements in order.
func EncodeFields(fields []Field) []byte {
	out := make([]byte, 0)
	for _, f := range fields {
		out = AppendField(out, f)
	}
	return out
}

// ReadField decodes the first element of b and returns its total wire size.
func ReadField(b []byte) (Field, int, error) {
	typ, n, err := ReadVarNumber(b)
	if err != nil {
		return Field{}, 0, err
	}
	l, m, err := ReadVarNumber(b[n:])
	if err != nil {
		return Field{}, 0, err
	}
	start := n + m
	if uint64(len(b)-start) < l {
		return Field{}, 0, ErrShortFieldValue
	}
	val := make([]byte, l)
	copy(val, b[start:start+int(l)])
	return Field{Type: typ, Value: val}, start + int(l), nil
}

func DecodeFields(payload []byte) ([]Field, error) {
	fields := make([]Field, 0)
	i := 0
	for i < len(payload) {
		f, n, err := ReadField(payload[i:])
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
		i += n
	}
	return fields, nil
}

// DecodeElement parses b as exactly one element of the expected type.
func DecodeElement(b []byte, expected uint64) (Field, error) {
	f, n, err := ReadField(b)
	if err != nil {
		return Field{}, err
	}
	if n != len(b) {
		return Field{}, fmt.Errorf("%w: %d trailing bytes after type %d", ErrShortFieldValue, len(b)-n, f.Type)
	}
	if err := MustType(f, expected); err != nil {
		return Field{}, err
	}
	return f, nil
}

func GetField(fields []Field, typ uint64) (Field, bool) {
	for _, f := range fields {
		if f.Type == typ {
			return f, true
		}
	}
	return Field{}, false
}

func MustType(f Field, expected uint64) error {
	if f.Type != expected {
		return fmt.Errorf("%w: got %d want %d", ErrTypeMismatch, f.Type, expected)
	}
	return nil
}

// EncodeNonNegativeInteger uses the shortest of 1, 2, 4 or 8 bytes.
func EncodeNonNegativeInteger(v uint64) []byte {
	switch {
	case v <= 0xFF:
		return []byte{byte(v)}
	case v <= 0xFFFF:
		return binary.BigEndian.AppendUint16(nil, uint16(v))
	case v <= 0xFFFFFFFF:
		return binary.BigEndian.AppendUint32(nil, uint32(v))
	default:
		return binary.BigEndian.AppendUint64(nil, v)
	}
}

func DecodeNonNegativeInteger(b []byte) (uint64, error) {
	switch len(b) {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.BigEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.BigEndian.Uint32(b)), nil
	case 8:
		return binary.BigEndian.Uint64(b), nil
	default:
		return 0, fmt.Errorf("%w: length %d", ErrInvalidInteger, len(b))
	}
}

func NonNegativeIntegerField(typ, v uint64) Field {
	return Field{Type: typ, Value: EncodeNonNegativeInteger(v)}
}
