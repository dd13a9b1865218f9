package leveldbstore

import (
	"errors"
	"testing"

	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/storage"
	"github.com/danmuck/ndnrevoke/internal/storage/storagetest"
	"github.com/danmuck/ndnrevoke/internal/testutil/testlog"
	"github.com/syndtr/goleveldb/leveldb"
)

func TestStoreConformance(t *testing.T) {
	testlog.Start(t)
	storagetest.Run(t, func(t *testing.T, prefixes storage.PrefixSet) storage.Store {
		s, err := OpenMemory(prefixes)
		if err != nil {
			t.Fatalf("open memory leveldb: %v", err)
		}
		return s
	})
}

func TestLogChainSurvivesReopen(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	opened, err := Open(storage.Options{Path: dir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s := opened.(*Store)
	alice := "/ndn/site1/alice/KEY/k1/ndn/v=1"
	for _, st := range []storage.CertificateState{
		storagetest.State(alice, storage.StatusValid),
		storagetest.State("/ndn/site1/bob/KEY/k2/ndn/v=1", storage.StatusValid),
		storagetest.State(alice, storage.StatusRevoked),
	} {
		if err := s.Put(st); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	head := s.Head()
	if head.Seq != 3 {
		t.Fatalf("head seq got=%d", head.Seq)
	}
	if err := s.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(storage.Options{Path: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	r := reopened.(*Store)
	if got := r.Head(); got.Seq != head.Seq || string(got.Digest) != string(head.Digest) {
		t.Fatalf("head changed across reopen: got=%d", got.Seq)
	}
	st, err := r.Get(ndn.MustParseName(alice))
	if err != nil || st.Status != storage.StatusRevoked {
		t.Fatalf("alice after reopen: status=%s err=%v", st.Status, err)
	}
	if err := r.Verify(); err != nil {
		t.Fatalf("verify after reopen: %v", err)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	testlog.Start(t)
	s, err := OpenMemory(nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	for _, uri := range []string{"/ndn/a/KEY/k/ndn/v=1", "/ndn/b/KEY/k/ndn/v=1"} {
		if err := s.Put(storagetest.State(uri, storage.StatusValid)); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	raw, err := s.db.Get(logKey(1), nil)
	if err != nil {
		t.Fatalf("read entry: %v", err)
	}
	e, _ := decodeEntry(raw)
	forged := storagetest.State("/ndn/a/KEY/k/ndn/v=1", storage.StatusRevoked)
	e.state = storage.EncodeState(forged)
	if err := s.db.Put(logKey(1), e.encode(), nil); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if err := s.Verify(); !errors.Is(err, ErrLogCorrupt) {
		t.Fatalf("expected ErrLogCorrupt, got=%v", err)
	}
}

func TestVerifyDetectsStaleIndex(t *testing.T) {
	testlog.Start(t)
	s, err := OpenMemory(nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	uri := "/ndn/a/KEY/k/ndn/v=1"
	_ = s.Put(storagetest.State(uri, storage.StatusValid))
	_ = s.Put(storagetest.State(uri, storage.StatusRevoked))
	batch := new(leveldb.Batch)
	batch.Put(idxKey(ndn.MustParseName(uri)), []byte{0, 0, 0, 0, 0, 0, 0, 1})
	if err := s.db.Write(batch, nil); err != nil {
		t.Fatalf("tamper index: %v", err)
	}
	if err := s.Verify(); !errors.Is(err, ErrLogCorrupt) {
		t.Fatalf("expected ErrLogCorrupt, got=%v", err)
	}
}
