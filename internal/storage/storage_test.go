package storage_test

import (
	"errors"
	"testing"

	"github.com/danmuck/ndnrevoke/internal/storage"
	"github.com/danmuck/ndnrevoke/internal/storage/backends"
	"github.com/danmuck/ndnrevoke/internal/storage/storagetest"
	"github.com/danmuck/ndnrevoke/internal/testutil/testlog"
)

func TestFactoryOpensBackendsByName(t *testing.T) {
	testlog.Start(t)
	f := backends.NewFactory()
	if got := f.Backends(); len(got) != 2 || got[0] != "leveldb" || got[1] != "memory" {
		t.Fatalf("unexpected backends: %v", got)
	}
	mem, err := f.Open("memory", storage.Options{})
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	defer mem.Close()
	disk, err := f.Open("leveldb", storage.Options{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer disk.Close()

	if _, err := f.Open("redis", storage.Options{}); !errors.Is(err, storage.ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got=%v", err)
	}
	if err := f.Register("memory", func(storage.Options) (storage.Store, error) { return nil, nil }); !errors.Is(err, storage.ErrBackendExists) {
		t.Fatalf("expected ErrBackendExists, got=%v", err)
	}
	if err := f.Register("nil", nil); !errors.Is(err, storage.ErrOpenerNil) {
		t.Fatalf("expected ErrOpenerNil, got=%v", err)
	}
}

func TestStateCodecRejectsTruncation(t *testing.T) {
	testlog.Start(t)
	st := storagetest.State("/ndn/a/KEY/k/ndn/v=1", storage.StatusRevoked)
	raw := storage.EncodeState(st)
	got, err := storage.DecodeState(raw)
	if err != nil || got.Record == nil || got.Status != storage.StatusRevoked {
		t.Fatalf("decode: %+v err=%v", got, err)
	}
	for _, cut := range []int{0, 7, len(raw) / 2, len(raw) - 1} {
		if _, err := storage.DecodeState(raw[:cut]); !errors.Is(err, storage.ErrCorruptState) {
			t.Fatalf("cut=%d: expected ErrCorruptState, got=%v", cut, err)
		}
	}
	if _, err := storage.DecodeState(append(raw, 0)); !errors.Is(err, storage.ErrCorruptState) {
		t.Fatalf("trailing byte: expected ErrCorruptState, got=%v", err)
	}
}

func TestStateCodecRecordFlag(t *testing.T) {
	testlog.Start(t)
	st := storagetest.State("/ndn/a/KEY/k/ndn/v=1", storage.StatusValid)
	st.Record = nil
	raw := storage.EncodeState(st)
	got, err := storage.DecodeState(raw)
	if err != nil || got.Record != nil || !got.CertName.Equal(st.CertName) {
		t.Fatalf("decode without record: %+v err=%v", got, err)
	}

	bad := append([]byte(nil), raw...)
	bad[len(bad)-1] = 2
	if _, err := storage.DecodeState(bad); !errors.Is(err, storage.ErrCorruptState) {
		t.Fatalf("flag outside 0/1: expected ErrCorruptState, got=%v", err)
	}
}
