package ndn

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/ndnrevoke/internal/protocol/tlv"
)

var ErrInvalidName = errors.New("ndn: invalid name")

// Name is an ordered sequence of components. Methods never mutate the receiver.
type Name []Component

// ParseName accepts URI form with or without the ndn: scheme.
func ParseName(uri string) (Name, error) {
	uri = strings.TrimSpace(uri)
	uri = strings.TrimPrefix(uri, "ndn:")
	if !strings.HasPrefix(uri, "/") {
		return nil, fmt.Errorf("%w: %q must start with /", ErrInvalidName, uri)
	}
	parts := strings.Split(strings.Trim(uri, "/"), "/")
	name := make(Name, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		c, err := ParseComponent(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidName, err)
		}
		name = append(name, c)
	}
	return name, nil
}

// MustParseName panics on malformed input; for constants and tests.
func MustParseName(uri string) Name {
	n, err := ParseName(uri)
	if err != nil {
		panic(err)
	}
	return n
}

func (n Name) String() string {
	if len(n) == 0 {
		return "/"
	}
	var sb strings.Builder
	for _, c := range n {
		sb.WriteByte('/')
		sb.WriteString(c.String())
	}
	return sb.String()
}

func (n Name) Len() int { return len(n) }

// index resolves a possibly negative index.
func (n Name) index(i int) (int, bool) {
	if i < 0 {
		i += len(n)
	}
	return i, i >= 0 && i < len(n)
}

// At returns component i; negative i counts from the end.
func (n Name) At(i int) (Component, bool) {
	idx, ok := n.index(i)
	if !ok {
		return Component{}, false
	}
	return n[idx], true
}

// Append returns a new name with comps added.
func (n Name) Append(comps ...Component) Name {
	out := make(Name, 0, len(n)+len(comps))
	out = append(out, n...)
	return append(out, comps...)
}

// AppendName returns n followed by every component of suffix.
func (n Name) AppendName(suffix Name) Name {
	return n.Append(suffix...)
}

func (n Name) AppendString(parts ...string) Name {
	comps := make([]Component, 0, len(parts))
	for _, p := range parts {
		comps = append(comps, NewGenericComponent(p))
	}
	return n.Append(comps...)
}

// Set returns a copy of n with component i replaced.
func (n Name) Set(i int, c Component) (Name, error) {
	idx, ok := n.index(i)
	if !ok {
		return nil, fmt.Errorf("%w: index %d out of range for %s", ErrInvalidName, i, n)
	}
	out := n.Clone()
	out[idx] = c
	return out, nil
}

// Prefix returns the first k components; negative k drops -k components from the end.
func (n Name) Prefix(k int) Name {
	if k < 0 {
		k += len(n)
	}
	if k <= 0 {
		return Name{}
	}
	if k > len(n) {
		k = len(n)
	}
	return n[:k:k].Clone()
}

func (n Name) Clone() Name {
	out := make(Name, len(n))
	copy(out, n)
	return out
}

func (n Name) IsPrefixOf(o Name) bool {
	if len(n) > len(o) {
		return false
	}
	for i := range n {
		if !n[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

func (n Name) Equal(o Name) bool {
	return len(n) == len(o) && n.IsPrefixOf(o)
}

func (n Name) Compare(o Name) int {
	for i := 0; i < len(n) && i < len(o); i++ {
		if c := n[i].Compare(o[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(n) < len(o):
		return -1
	case len(n) > len(o):
		return 1
	}
	return 0
}

// Field returns the Name element (type 7).
func (n Name) Field() tlv.Field {
	return tlv.Field{Type: TypeName, Value: n.encodeValue()}
}

func (n Name) Encode() []byte {
	return tlv.EncodeField(n.Field())
}

func (n Name) encodeValue() []byte {
	out := make([]byte, 0)
	for _, c := range n {
		out = tlv.AppendField(out, c.Field())
	}
	return out
}

// DecodeNameValue parses the value of a Name element.
func DecodeNameValue(value []byte) (Name, error) {
	fields, err := tlv.DecodeFields(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	name := make(Name, 0, len(fields))
	for _, f := range fields {
		if f.Type == 0 || f.Type > 0xFFFF {
			return nil, fmt.Errorf("%w: component type %d", ErrInvalidName, f.Type)
		}
		name = append(name, Component{Type: f.Type, Value: f.Value})
	}
	return name, nil
}

// DecodeName parses one complete Name element.
func DecodeName(wire []byte) (Name, error) {
	f, err := tlv.DecodeElement(wire, TypeName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	return DecodeNameValue(f.Value)
}
