// Package storagetest holds the behavior every storage backend must share.
package storagetest

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/protocol"
	"github.com/danmuck/ndnrevoke/internal/storage"
)

// Opener returns a fresh store restricted to prefixes.
type Opener func(t *testing.T, prefixes storage.PrefixSet) storage.Store

// State builds a state for cert URI with the given status.
func State(uri string, status storage.Status) storage.CertificateState {
	st := storage.CertificateState{
		CertName:      ndn.MustParseName(uri),
		LedgerPrefix:  ndn.MustParseName("/ndn"),
		Status:        status,
		PublicKeyHash: bytes.Repeat([]byte{0xAB}, 32),
	}
	if status == storage.StatusRevoked {
		st.Reason = protocol.ReasonSuperseded
		st.PublisherID = ndn.NewGenericComponent("self")
		st.RevocationTimestamp = 1700000000000
		rec := ndn.NewData(ndn.MustParseName(uri+"/REVOKED"), []byte{1, 2, 3})
		rec.SigInfo.Type = ndn.SignatureEd25519
		rec.SigValue = []byte{9}
		st.Record = rec
	}
	return st
}

const (
	aliceCert = "/ndn/site1/alice/KEY/k1/ndn/v=1"
	bobCert   = "/ndn/site1/bob/KEY/k2/ndn/v=1"
	eveCert   = "/other/eve/KEY/k3/other/v=1"
)

// Run exercises the Store contract.
func Run(t *testing.T, open Opener) {
	t.Run("GetUnknown", func(t *testing.T) {
		s := open(t, nil)
		defer s.Close()
		if _, err := s.Get(ndn.MustParseName(aliceCert)); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got=%v", err)
		}
	})

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		s := open(t, nil)
		defer s.Close()
		want := State(aliceCert, storage.StatusRevoked)
		if err := s.Put(want); err != nil {
			t.Fatalf("put: %v", err)
		}
		got, err := s.Get(want.CertName)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status != storage.StatusRevoked || got.Reason != protocol.ReasonSuperseded ||
			!got.PublisherID.Is("self") || got.RevocationTimestamp != want.RevocationTimestamp ||
			!bytes.Equal(got.PublicKeyHash, want.PublicKeyHash) || !got.LedgerPrefix.Equal(want.LedgerPrefix) {
			t.Fatalf("round trip mismatch: got=%+v", got)
		}
		if got.Record == nil || !bytes.Equal(got.Record.Encode(), want.Record.Encode()) {
			t.Fatalf("record lost in round trip")
		}
	})

	t.Run("PutIsIdempotent", func(t *testing.T) {
		s := open(t, nil)
		defer s.Close()
		st := State(aliceCert, storage.StatusValid)
		for i := 0; i < 3; i++ {
			if err := s.Put(st); err != nil {
				t.Fatalf("put #%d: %v", i, err)
			}
		}
		all, err := s.List(nil)
		if err != nil || len(all) != 1 {
			t.Fatalf("expected one state, got=%d err=%v", len(all), err)
		}
	})

	t.Run("StatusNeverRegresses", func(t *testing.T) {
		s := open(t, nil)
		defer s.Close()
		if err := s.Put(State(aliceCert, storage.StatusValid)); err != nil {
			t.Fatalf("put valid: %v", err)
		}
		if err := s.Put(State(aliceCert, storage.StatusRevoked)); err != nil {
			t.Fatalf("put revoked: %v", err)
		}
		err := s.Put(State(aliceCert, storage.StatusValid))
		if !errors.Is(err, storage.ErrStatusRegression) || !errors.Is(err, protocol.ErrStorage) {
			t.Fatalf("expected storage regression error, got=%v", err)
		}
		got, _ := s.Get(ndn.MustParseName(aliceCert))
		if got.Status != storage.StatusRevoked {
			t.Fatalf("status regressed to %s", got.Status)
		}
	})

	t.Run("PutRejectsEmptyName", func(t *testing.T) {
		s := open(t, nil)
		defer s.Close()
		if err := s.Put(storage.CertificateState{}); !errors.Is(err, protocol.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got=%v", err)
		}
	})

	t.Run("ListHonorsPrefixSet", func(t *testing.T) {
		s := open(t, storage.PrefixSet{ndn.MustParseName("/ndn")})
		defer s.Close()
		for _, uri := range []string{bobCert, eveCert, aliceCert} {
			if err := s.Put(State(uri, storage.StatusValid)); err != nil {
				t.Fatalf("put %s: %v", uri, err)
			}
		}
		all, err := s.List(nil)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		// Canonical order: the shorter "bob" component sorts before "alice".
		if len(all) != 2 || all[0].CertName.String() != bobCert || all[1].CertName.String() != aliceCert {
			t.Fatalf("unexpected list: %v", names(all))
		}
		bob, _ := s.List(ndn.MustParseName("/ndn/site1/bob"))
		if len(bob) != 1 {
			t.Fatalf("prefix list got=%v", names(bob))
		}
		other, _ := s.List(ndn.MustParseName("/other"))
		if len(other) != 0 {
			t.Fatalf("states outside the prefix set leaked: %v", names(other))
		}
	})

	t.Run("ClosedStoreFails", func(t *testing.T) {
		s := open(t, nil)
		if err := s.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		if _, err := s.Get(ndn.MustParseName(aliceCert)); !errors.Is(err, storage.ErrClosed) {
			t.Fatalf("expected ErrClosed, got=%v", err)
		}
	})
}

func names(states []storage.CertificateState) []string {
	out := make([]string, 0, len(states))
	for _, st := range states {
		out = append(out, st.CertName.String())
	}
	return out
}
