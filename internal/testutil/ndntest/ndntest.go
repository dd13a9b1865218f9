// Package ndntest builds an in-process network with a small trust hierarchy
// on a virtual clock.
package ndntest

import (
	"testing"
	"time"

	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/ndn/memface"
	"github.com/danmuck/ndnrevoke/internal/security"
)

var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Fixture is a virtual loop, a memface network and a keychain holding
// /ndn (anchor), /ndn/ledger, /ndn/site1/alice and /ndn/site1/bob.
type Fixture struct {
	Loop      *ndn.Loop
	Net       *memface.Network
	KeyChain  *security.KeyChain
	Schema    *security.TrustSchema
	Validator *security.SchemaValidator

	Root   *security.Identity
	Ledger *security.Identity
	Alice  *security.Identity
	Bob    *security.Identity
}

func New(t testing.TB) *Fixture {
	t.Helper()
	loop := ndn.NewVirtualLoop(Epoch)
	kc := security.NewKeyChain()
	kc.SetClock(loop.Now)
	f := &Fixture{Loop: loop, Net: memface.NewNetwork(loop), KeyChain: kc}
	f.Root = f.identity(t, "/ndn", nil)
	f.Ledger = f.identity(t, "/ndn/ledger", f.Root)
	f.Alice = f.identity(t, "/ndn/site1/alice", f.Root)
	f.Bob = f.identity(t, "/ndn/site1/bob", f.Root)
	f.Schema = security.DefaultTrustSchema(f.Root.Certificate)
	f.Validator = security.NewValidator(f.Schema, kc)
	return f
}

func (f *Fixture) identity(t testing.TB, uri string, issuer *security.Identity) *security.Identity {
	t.Helper()
	id, err := f.KeyChain.CreateIdentity(ndn.MustParseName(uri), issuer)
	if err != nil {
		t.Fatalf("create identity %s: %v", uri, err)
	}
	return id
}

// Identity issues an extra identity under the root.
func (f *Fixture) Identity(t testing.TB, uri string) *security.Identity {
	t.Helper()
	return f.identity(t, uri, f.Root)
}

// Rogue returns a keychain whose identities chain to no trusted anchor.
func (f *Fixture) Rogue(t testing.TB, uri string) (*security.KeyChain, *security.Identity) {
	t.Helper()
	kc := security.NewKeyChain()
	root, err := kc.CreateIdentity(ndn.MustParseName("/ndn"), nil)
	if err != nil {
		t.Fatalf("rogue root: %v", err)
	}
	id, err := kc.CreateIdentity(ndn.MustParseName(uri), root)
	if err != nil {
		t.Fatalf("rogue identity: %v", err)
	}
	return kc, id
}

func (f *Fixture) Face(label string) *memface.Face { return f.Net.NewFace(label) }

// Drain runs the loop to quiescence, jumping the clock over every timer.
func (f *Fixture) Drain() { f.Loop.Drain() }

// Advance runs the loop for d of virtual time.
func (f *Fixture) Advance(d time.Duration) { f.Loop.RunFor(d) }
