package ndn

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/ndnrevoke/internal/protocol/tlv"
)

var ErrInvalidComponent = errors.New("ndn: invalid name component")

// Component is one typed name component.
type Component struct {
	Type  uint64
	Value []byte
}

func NewGenericComponent(s string) Component {
	return Component{Type: TypeGenericComponent, Value: []byte(s)}
}

// NewNumberComponent stores v as a NonNegativeInteger in a generic component.
func NewNumberComponent(v uint64) Component {
	return Component{Type: TypeGenericComponent, Value: tlv.EncodeNonNegativeInteger(v)}
}

func NewVersionComponent(v uint64) Component {
	return Component{Type: TypeVersionComponent, Value: tlv.EncodeNonNegativeInteger(v)}
}

func NewTimestampComponent(v uint64) Component {
	return Component{Type: TypeTimestampComponent, Value: tlv.EncodeNonNegativeInteger(v)}
}

func (c Component) IsGeneric() bool   { return c.Type == TypeGenericComponent }
func (c Component) IsVersion() bool   { return c.Type == TypeVersionComponent }
func (c Component) IsTimestamp() bool { return c.Type == TypeTimestampComponent }

// Number decodes the component value as a NonNegativeInteger.
func (c Component) Number() (uint64, error) {
	v, err := tlv.DecodeNonNegativeInteger(c.Value)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidComponent, err)
	}
	return v, nil
}

// Is reports whether c is a generic component with text s.
func (c Component) Is(s string) bool {
	return c.Type == TypeGenericComponent && string(c.Value) == s
}

func (c Component) Equal(o Component) bool {
	return c.Type == o.Type && bytes.Equal(c.Value, o.Value)
}

// Compare orders by type, then length, then bytes.
func (c Component) Compare(o Component) int {
	switch {
	case c.Type < o.Type:
		return -1
	case c.Type > o.Type:
		return 1
	case len(c.Value) < len(o.Value):
		return -1
	case len(c.Value) > len(o.Value):
		return 1
	}
	return bytes.Compare(c.Value, o.Value)
}

func (c Component) Field() tlv.Field {
	return tlv.Field{Type: c.Type, Value: c.Value}
}

func (c Component) String() string {
	switch c.Type {
	case TypeGenericComponent:
		return escapeComponent(c.Value)
	case TypeVersionComponent, TypeTimestampComponent:
		v, err := c.Number()
		if err != nil {
			return fmt.Sprintf("%d=%s", c.Type, escapeComponent(c.Value))
		}
		if c.Type == TypeVersionComponent {
			return "v=" + strconv.FormatUint(v, 10)
		}
		return "t=" + strconv.FormatUint(v, 10)
	case TypeParametersSha256Digest:
		return "params-sha256=" + hex.EncodeToString(c.Value)
	case TypeImplicitSha256Digest:
		return "sha256digest=" + hex.EncodeToString(c.Value)
	default:
		return strconv.FormatUint(c.Type, 10) + "=" + escapeComponent(c.Value)
	}
}

// ParseComponent is the inverse of Component.String.
func ParseComponent(s string) (Component, error) {
	if s == "" {
		return Component{}, fmt.Errorf("%w: empty", ErrInvalidComponent)
	}
	key, rest, typed := strings.Cut(s, "=")
	if !typed {
		v, err := unescapeComponent(s)
		if err != nil {
			return Component{}, err
		}
		return Component{Type: TypeGenericComponent, Value: v}, nil
	}
	switch key {
	case "v", "t":
		n, err := strconv.ParseUint(rest, 10, 64)
		if err != nil {
			return Component{}, fmt.Errorf("%w: %q", ErrInvalidComponent, s)
		}
		if key == "v" {
			return NewVersionComponent(n), nil
		}
		return NewTimestampComponent(n), nil
	case "params-sha256", "sha256digest":
		v, err := hex.DecodeString(rest)
		if err != nil {
			return Component{}, fmt.Errorf("%w: %q", ErrInvalidComponent, s)
		}
		typ := TypeParametersSha256Digest
		if key == "sha256digest" {
			typ = TypeImplicitSha256Digest
		}
		return Component{Type: typ, Value: v}, nil
	}
	typ, err := strconv.ParseUint(key, 10, 64)
	if err != nil {
		// "=" inside an untyped generic component
		v, err := unescapeComponent(s)
		if err != nil {
			return Component{}, err
		}
		return Component{Type: TypeGenericComponent, Value: v}, nil
	}
	v, err := unescapeComponent(rest)
	if err != nil {
		return Component{}, err
	}
	return Component{Type: typ, Value: v}, nil
}

func isUnreserved(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') ||
		b == '-' || b == '.' || b == '_' || b == '~'
}

func escapeComponent(v []byte) string {
	var sb strings.Builder
	allDots := len(v) > 0
	for _, b := range v {
		if b != '.' {
			allDots = false
		}
		if isUnreserved(b) {
			sb.WriteByte(b)
			continue
		}
		fmt.Fprintf(&sb, "%%%02X", b)
	}
	if allDots || len(v) == 0 {
		return "..." + sb.String()
	}
	return sb.String()
}

func unescapeComponent(s string) ([]byte, error) {
	if strings.Trim(s, ".") == "" {
		if len(s) < 3 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidComponent, s)
		}
		return []byte(s[3:]), nil
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			out = append(out, s[i])
			continue
		}
		if i+2 >= len(s) {
			return nil, fmt.Errorf("%w: bad escape in %q", ErrInvalidComponent, s)
		}
		b, err := hex.DecodeString(s[i+1 : i+3])
		if err != nil {
			return nil, fmt.Errorf("%w: bad escape in %q", ErrInvalidComponent, s)
		}
		out = append(out, b[0])
		i += 2
	}
	return out, nil
}
