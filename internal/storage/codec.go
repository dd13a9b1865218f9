package storage

import (
	"errors"
	"fmt"

	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/protocol"
	"github.com/tchajed/marshal"
)

var ErrCorruptState = errors.New("storage: corrupt state encoding")

const stateEncodingVersion uint64 = 1

func writeSlice(b, data []byte) []byte {
	b = marshal.WriteInt(b, uint64(len(data)))
	return marshal.WriteBytes(b, data)
}

func readInt(b []byte) (uint64, []byte, bool) {
	if len(b) < 8 {
		return 0, nil, false
	}
	v, rest := marshal.ReadInt(b)
	return v, rest, true
}

func readSlice(b []byte) ([]byte, []byte, bool) {
	n, b, ok := readInt(b)
	if !ok || uint64(len(b)) < n {
		return nil, nil, false
	}
	data, rest := marshal.ReadBytes(b, n)
	return data, rest, true
}

// EncodeState serializes a state for durable backends.
func EncodeState(s CertificateState) []byte {
	b := make([]byte, 0, 256)
	b = marshal.WriteInt(b, stateEncodingVersion)
	b = writeSlice(b, s.CertName.Encode())
	b = writeSlice(b, s.LedgerPrefix.Encode())
	b = marshal.WriteInt(b, uint64(s.Status))
	b = marshal.WriteInt(b, uint64(s.Reason))
	b = marshal.WriteInt(b, s.PublisherID.Type)
	b = writeSlice(b, s.PublisherID.Value)
	b = writeSlice(b, s.PublicKeyHash)
	b = marshal.WriteInt(b, s.RevocationTimestamp)
	if s.Record == nil {
		return marshal.WriteInt(b, 0)
	}
	b = marshal.WriteInt(b, 1)
	return writeSlice(b, s.Record.Encode())
}

func corrupt(field string) error {
	return fmt.Errorf("%w: %s", ErrCorruptState, field)
}

func DecodeState(b []byte) (CertificateState, error) {
	var (
		s   CertificateState
		raw []byte
		v   uint64
		ok  bool
		err error
	)
	if v, b, ok = readInt(b); !ok || v != stateEncodingVersion {
		return s, corrupt("version")
	}
	if raw, b, ok = readSlice(b); !ok {
		return s, corrupt("cert name")
	}
	if s.CertName, err = ndn.DecodeName(raw); err != nil {
		return s, fmt.Errorf("%w: cert name: %v", ErrCorruptState, err)
	}
	if raw, b, ok = readSlice(b); !ok {
		return s, corrupt("ledger prefix")
	}
	if s.LedgerPrefix, err = ndn.DecodeName(raw); err != nil {
		return s, fmt.Errorf("%w: ledger prefix: %v", ErrCorruptState, err)
	}
	if v, b, ok = readInt(b); !ok || v > uint64(StatusRevoked) {
		return s, corrupt("status")
	}
	s.Status = Status(v)
	if v, b, ok = readInt(b); !ok || !protocol.ReasonCode(v).Known() {
		return s, corrupt("reason")
	}
	s.Reason = protocol.ReasonCode(v)
	if s.PublisherID.Type, b, ok = readInt(b); !ok {
		return s, corrupt("publisher type")
	}
	if s.PublisherID.Value, b, ok = readSlice(b); !ok {
		return s, corrupt("publisher")
	}
	if s.PublicKeyHash, b, ok = readSlice(b); !ok {
		return s, corrupt("public key hash")
	}
	if s.RevocationTimestamp, b, ok = readInt(b); !ok {
		return s, corrupt("revocation timestamp")
	}
	if v, b, ok = readInt(b); !ok || v > 1 {
		return s, corrupt("record flag")
	}
	if v == 1 {
		if raw, b, ok = readSlice(b); !ok {
			return s, corrupt("record")
		}
		if s.Record, err = ndn.DecodeData(raw); err != nil {
			return s, fmt.Errorf("%w: record: %v", ErrCorruptState, err)
		}
	}
	if len(b) != 0 {
		return s, corrupt("trailing bytes")
	}
	return s, nil
}
