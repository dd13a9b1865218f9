// Package leveldbstore is the durable certificate state backend. Every Put
// appends an entry to a hash-chained log and moves a point-lookup index to it.
package leveldbstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/protocol"
	"github.com/danmuck/ndnrevoke/internal/storage"
	"github.com/rs/zerolog/log"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/tchajed/marshal"
	"github.com/zeebo/blake3"
)

const (
	BackendName = "leveldb"
	DigestLen   = 32
)

var ErrLogCorrupt = errors.New("leveldbstore: log chain corrupt")

var (
	logPrefix = []byte("log/")
	idxPrefix = []byte("idx/")
	headKey   = []byte("meta/head")
)

// Head identifies the newest log entry.
type Head struct {
	Seq    uint64
	Digest []byte
}

type entry struct {
	seq   uint64
	prev  []byte
	state []byte
}

func (e entry) encode() []byte {
	b := make([]byte, 0, 16+DigestLen+len(e.state))
	b = marshal.WriteInt(b, e.seq)
	b = marshal.WriteBytes(b, e.prev)
	b = marshal.WriteInt(b, uint64(len(e.state)))
	return marshal.WriteBytes(b, e.state)
}

func decodeEntry(b []byte) (entry, error) {
	if len(b) < 16+DigestLen {
		return entry{}, fmt.Errorf("%w: short entry", ErrLogCorrupt)
	}
	var e entry
	e.seq, b = marshal.ReadInt(b)
	e.prev, b = marshal.ReadBytes(b, DigestLen)
	n, b := marshal.ReadInt(b)
	if uint64(len(b)) != n {
		return entry{}, fmt.Errorf("%w: entry %d length", ErrLogCorrupt, e.seq)
	}
	e.state = b
	return e, nil
}

// digest links an entry to its predecessor.
func (e entry) digest() []byte {
	h := blake3.New()
	h.Write(e.prev)
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], e.seq)
	h.Write(seq[:])
	h.Write(e.state)
	return h.Sum(nil)[:DigestLen]
}

func logKey(seq uint64) []byte {
	k := make([]byte, len(logPrefix)+8)
	copy(k, logPrefix)
	binary.BigEndian.PutUint64(k[len(logPrefix):], seq)
	return k
}

func idxKey(cert ndn.Name) []byte {
	return append(append([]byte(nil), idxPrefix...), cert.String()...)
}

// Store wraps a leveldb handle.
type Store struct {
	mu       sync.Mutex
	db       *leveldb.DB
	prefixes storage.PrefixSet
	head     Head
	sync     bool
}

// Open opens (or creates) a store at opts.Path.
func Open(opts storage.Options) (storage.Store, error) {
	if opts.Path == "" {
		return nil, protocol.Errorf(protocol.KindInvalidArgument, "leveldbstore: empty path")
	}
	db, err := leveldb.OpenFile(opts.Path, nil)
	if err != nil {
		return nil, protocol.NewError(protocol.KindStorage, "leveldbstore: open "+opts.Path, err)
	}
	s, err := Wrap(db, opts.Prefixes, true)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenMemory backs the store with goleveldb's in-memory storage.
func OpenMemory(prefixes storage.PrefixSet) (*Store, error) {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return Wrap(db, prefixes, false)
}

// Wrap adopts an open database and loads its log head.
func Wrap(db *leveldb.DB, prefixes storage.PrefixSet, syncWrites bool) (*Store, error) {
	s := &Store{db: db, prefixes: prefixes, sync: syncWrites, head: Head{Digest: make([]byte, DigestLen)}}
	raw, err := db.Get(headKey, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
	case err != nil:
		return nil, protocol.NewError(protocol.KindStorage, "leveldbstore: read head", err)
	default:
		if len(raw) != 8+DigestLen {
			return nil, fmt.Errorf("%w: head length %d", ErrLogCorrupt, len(raw))
		}
		seq, rest := marshal.ReadInt(raw)
		s.head = Head{Seq: seq, Digest: append([]byte(nil), rest...)}
	}
	log.Debug().Uint64("seq", s.head.Seq).Msg("leveldbstore opened")
	return s, nil
}

func (s *Store) writeOptions() *opt.WriteOptions {
	return &opt.WriteOptions{Sync: s.sync}
}

func storageErr(op string, err error) error {
	return protocol.NewError(protocol.KindStorage, "leveldbstore: "+op, err)
}

func (s *Store) readState(seqRaw []byte) (storage.CertificateState, error) {
	if len(seqRaw) != 8 {
		return storage.CertificateState{}, fmt.Errorf("%w: index value length %d", ErrLogCorrupt, len(seqRaw))
	}
	raw, err := s.db.Get(logKey(binary.BigEndian.Uint64(seqRaw)), nil)
	if err != nil {
		return storage.CertificateState{}, storageErr("read log entry", err)
	}
	e, err := decodeEntry(raw)
	if err != nil {
		return storage.CertificateState{}, err
	}
	return storage.DecodeState(e.state)
}

func (s *Store) Get(cert ndn.Name) (storage.CertificateState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return storage.CertificateState{}, storage.ErrClosed
	}
	seqRaw, err := s.db.Get(idxKey(cert), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return storage.CertificateState{}, storage.NotFound(cert)
	}
	if err != nil {
		return storage.CertificateState{}, storageErr("read index", err)
	}
	return s.readState(seqRaw)
}

func (s *Store) Put(next storage.CertificateState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return storage.ErrClosed
	}
	var current *storage.CertificateState
	seqRaw, err := s.db.Get(idxKey(next.CertName), nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
	case err != nil:
		return storageErr("read index", err)
	default:
		st, err := s.readState(seqRaw)
		if err != nil {
			return err
		}
		current = &st
	}
	if err := storage.CheckPut(current, next); err != nil {
		return err
	}

	e := entry{seq: s.head.Seq + 1, prev: s.head.Digest, state: storage.EncodeState(next)}
	digest := e.digest()
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], e.seq)

	batch := new(leveldb.Batch)
	batch.Put(logKey(e.seq), e.encode())
	batch.Put(idxKey(next.CertName), seq[:])
	batch.Put(headKey, marshal.WriteBytes(marshal.WriteInt(nil, e.seq), digest))
	if err := s.db.Write(batch, s.writeOptions()); err != nil {
		return storageErr("write entry", err)
	}
	s.head = Head{Seq: e.seq, Digest: digest}
	log.Trace().Uint64("seq", e.seq).Stringer("cert", next.CertName).Stringer("status", next.Status).Msg("leveldbstore appended")
	return nil
}

func (s *Store) List(prefix ndn.Name) ([]storage.CertificateState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, storage.ErrClosed
	}
	it := s.db.NewIterator(util.BytesPrefix(idxPrefix), nil)
	defer it.Release()
	out := make([]storage.CertificateState, 0)
	for it.Next() {
		st, err := s.readState(append([]byte(nil), it.Value()...))
		if err != nil {
			return nil, err
		}
		if s.prefixes.Selects(prefix, st.CertName) {
			out = append(out, st)
		}
	}
	if err := it.Error(); err != nil {
		return nil, storageErr("iterate index", err)
	}
	storage.SortStates(out)
	return out, nil
}

// Head returns the newest log position.
func (s *Store) Head() Head {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Head{Seq: s.head.Seq, Digest: append([]byte(nil), s.head.Digest...)}
}

// Verify replays the log, checking sequence continuity, every chain link,
// the stored head and that each index entry points at its newest state.
func (s *Store) Verify() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return storage.ErrClosed
	}
	it := s.db.NewIterator(util.BytesPrefix(logPrefix), nil)
	defer it.Release()

	prev := make([]byte, DigestLen)
	var seq uint64
	latest := make(map[string]uint64)
	for it.Next() {
		e, err := decodeEntry(append([]byte(nil), it.Value()...))
		if err != nil {
			return err
		}
		if e.seq != seq+1 {
			return fmt.Errorf("%w: expected entry %d, found %d", ErrLogCorrupt, seq+1, e.seq)
		}
		if !bytes.Equal(e.prev, prev) {
			return fmt.Errorf("%w: entry %d does not link to its predecessor", ErrLogCorrupt, e.seq)
		}
		st, err := storage.DecodeState(e.state)
		if err != nil {
			return fmt.Errorf("%w: entry %d: %v", ErrLogCorrupt, e.seq, err)
		}
		latest[string(idxKey(st.CertName))] = e.seq
		prev = e.digest()
		seq = e.seq
	}
	if err := it.Error(); err != nil {
		return storageErr("iterate log", err)
	}
	if seq != s.head.Seq || !bytes.Equal(prev, s.head.Digest) {
		return fmt.Errorf("%w: head mismatch at %d", ErrLogCorrupt, seq)
	}

	idx := s.db.NewIterator(util.BytesPrefix(idxPrefix), nil)
	defer idx.Release()
	indexed := 0
	for idx.Next() {
		want, ok := latest[string(idx.Key())]
		if !ok || len(idx.Value()) != 8 || binary.BigEndian.Uint64(idx.Value()) != want {
			return fmt.Errorf("%w: stale index for %s", ErrLogCorrupt, idx.Key()[len(idxPrefix):])
		}
		indexed++
	}
	if err := idx.Error(); err != nil {
		return storageErr("iterate index", err)
	}
	if indexed != len(latest) {
		return fmt.Errorf("%w: %d certificates logged, %d indexed", ErrLogCorrupt, len(latest), indexed)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
