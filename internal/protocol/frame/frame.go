// Package frame carries NDN packets over message-oriented links such as a
// websocket connection to the hub.
package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	Magic          uint32 = 0x4E444E52 // "NDNR"
	Version        uint16 = 1
	FixedHeaderLen        = 24
)

// Type identifies the packet carried in a frame payload.
type Type uint16

const (
	TypeInterest Type = iota + 1
	TypeData
	TypeNack
	// TypeRegister and TypeUnregister carry a Name announcing or withdrawing a route.
	TypeRegister
	TypeUnregister
)

func (t Type) String() string {
	switch t {
	case TypeInterest:
		return "interest"
	case TypeData:
		return "data"
	case TypeNack:
		return "nack"
	case TypeRegister:
		return "register"
	case TypeUnregister:
		return "unregister"
	default:
		return fmt.Sprintf("frame(%d)", uint16(t))
	}
}

var (
	ErrShortHeader     = errors.New("frame: short fixed header")
	ErrInvalidMagic    = errors.New("frame: invalid magic")
	ErrVersion         = errors.New("frame: unsupported version")
	ErrUnknownType     = errors.New("frame: unknown frame type")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
	ErrTrailingBytes   = errors.New("frame: trailing bytes after payload")
)

// Header is the fixed wire header.
type Header struct {
	Magic      uint32
	Version    uint16
	Type       Type
	Sequence   uint64
	PayloadLen uint64
}

// Frame is one complete link message.
type Frame struct {
	Header  Header
	Payload []byte
}

func New(t Type, seq uint64, payload []byte) Frame {
	return Frame{Header: Header{Magic: Magic, Version: Version, Type: t, Sequence: seq}, Payload: payload}
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint64
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 8 * 1024 * 1024}
}

func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [FixedHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}
	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return Frame{}, ErrPayloadTooLarge
	}
	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Header: h, Payload: payload}, nil
}

func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	payloadLen := uint64(len(f.Payload))
	if payloadLen > limits.MaxPayloadBytes {
		return ErrPayloadTooLarge
	}
	h := f.Header
	h.PayloadLen = payloadLen
	if _, err := w.Write(EncodeHeader(h)); err != nil {
		return err
	}
	if payloadLen > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return err
		}
	}
	return nil
}

// Marshal encodes f as one self-contained message.
func Marshal(f Frame, limits Limits) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, f, limits); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes exactly one frame from b.
func Unmarshal(b []byte, limits Limits) (Frame, error) {
	r := bytes.NewReader(b)
	f, err := ReadFrame(r, limits)
	if err != nil {
		return Frame{}, err
	}
	if r.Len() != 0 {
		return Frame{}, ErrTrailingBytes
	}
	return f, nil
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, FixedHeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint64(buf[8:16], h.Sequence)
	binary.BigEndian.PutUint64(buf[16:24], h.PayloadLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != FixedHeaderLen {
		return Header{}, fmt.Errorf("frame: invalid fixed header length: %d", len(b))
	}
	h := Header{
		Magic:      binary.BigEndian.Uint32(b[0:4]),
		Version:    binary.BigEndian.Uint16(b[4:6]),
		Type:       Type(binary.BigEndian.Uint16(b[6:8])),
		Sequence:   binary.BigEndian.Uint64(b[8:16]),
		PayloadLen: binary.BigEndian.Uint64(b[16:24]),
	}
	if h.Magic != Magic {
		return Header{}, ErrInvalidMagic
	}
	if h.Version != Version {
		return Header{}, ErrVersion
	}
	if h.Type < TypeInterest || h.Type > TypeUnregister {
		return Header{}, fmt.Errorf("%w: %d", ErrUnknownType, h.Type)
	}
	return h, nil
}
