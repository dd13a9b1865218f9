package checker

import (
	"errors"
	"testing"

	"github.com/danmuck/ndnrevoke/internal/appender"
	"github.com/danmuck/ndnrevoke/internal/ledger"
	"github.com/danmuck/ndnrevoke/internal/naming"
	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/protocol"
	"github.com/danmuck/ndnrevoke/internal/revocation"
	"github.com/danmuck/ndnrevoke/internal/security"
	"github.com/danmuck/ndnrevoke/internal/storage/memory"
	"github.com/danmuck/ndnrevoke/internal/testutil/ndntest"
	"github.com/danmuck/ndnrevoke/internal/testutil/testlog"
)

var ledgerPrefix = ndn.MustParseName("/ndn")

type result struct {
	valid   []*revocation.Nack
	revoked []*revocation.Record
	failed  []error
}

func (r *result) total() int { return len(r.valid) + len(r.revoked) + len(r.failed) }

func (r *result) callbacks() Callbacks {
	return Callbacks{
		OnValid:   func(_ ndn.Name, n *revocation.Nack) { r.valid = append(r.valid, n) },
		OnRevoked: func(_ ndn.Name, rec *revocation.Record) { r.revoked = append(r.revoked, rec) },
		OnFailure: func(_ ndn.Name, err error) { r.failed = append(r.failed, err) },
	}
}

type harness struct {
	fx      *ndntest.Fixture
	ledger  *ledger.Ledger
	revoker *revocation.Revoker
	checker *Checker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fx := ndntest.New(t)
	l, err := ledger.New(fx.Face("ledger"), fx.KeyChain, fx.Validator, memory.New(nil), ledger.Config{
		Prefix:  ledgerPrefix,
		Signing: security.SignWithIdentity(fx.Ledger.Name),
	})
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if err := l.Start(); err != nil {
		t.Fatalf("start ledger: %v", err)
	}
	return &harness{
		fx:      fx,
		ledger:  l,
		revoker: revocation.NewRevoker(fx.KeyChain, revocation.Options{Now: fx.Loop.Now}),
		checker: New(fx.Face("checker"), fx.Validator, Config{}),
	}
}

// submit hands objects to the ledger over the append exchange.
func (h *harness) submit(t *testing.T, objects ...*ndn.Data) {
	t.Helper()
	client, err := appender.NewClient(h.fx.Face("holder"), h.fx.KeyChain, h.fx.Validator, appender.ClientConfig{
		Prefix:  h.fx.Alice.Name,
		Signing: security.SignWithIdentity(h.fx.Alice.Name),
	})
	if err != nil {
		t.Fatalf("append client: %v", err)
	}
	defer client.Close()
	acked := false
	if _, err := client.Append(h.ledger.Topic(), objects, appender.Callbacks{
		OnSuccess: func(uint64, []protocol.StatusCode) { acked = true },
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	h.fx.Drain()
	if !acked {
		t.Fatalf("ledger did not accept %d objects", len(objects))
	}
}

func TestCertificateWithoutRecordIsValid(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	cert := h.fx.Alice.CertName()
	h.submit(t, h.fx.Alice.Certificate)

	var r result
	if _, err := h.checker.CheckAsOwner(ledgerPrefix, cert, r.callbacks()); err != nil {
		t.Fatalf("check: %v", err)
	}
	h.fx.Drain()
	if len(r.valid) != 1 || r.total() != 1 {
		t.Fatalf("expected one valid outcome, got=%+v", r)
	}
	derived, err := naming.CertificateFromNack(r.valid[0].Data.Name)
	if err != nil || !derived.Equal(cert) {
		t.Fatalf("nack resolves to %s (%v), want %s", derived, err, cert)
	}
	if r.valid[0].Reason != protocol.NackNotRevoked {
		t.Fatalf("nack reason got=%d", r.valid[0].Reason)
	}
	if h.checker.Pending() != 0 {
		t.Fatalf("pending queries left: %d", h.checker.Pending())
	}
}

func TestSupersededRecordIsRevoked(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	cert := h.fx.Alice.Certificate
	rec, err := h.revoker.RevokeAsOwner(cert, protocol.ReasonSuperseded, nil)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	h.submit(t, cert, rec)

	var r result
	if _, err := h.checker.CheckAsOwner(ledgerPrefix, cert.Name, r.callbacks()); err != nil {
		t.Fatalf("check: %v", err)
	}
	h.fx.Drain()
	if len(r.revoked) != 1 || r.total() != 1 {
		t.Fatalf("expected one revoked outcome, got=%+v", r)
	}
	if r.revoked[0].Reason != protocol.ReasonSuperseded || !r.revoked[0].IsOwner() {
		t.Fatalf("unexpected record: reason=%s owner=%v", r.revoked[0].Reason, r.revoked[0].IsOwner())
	}

	// The issuer has published nothing.
	var issuer result
	if _, err := h.checker.CheckAsIssuer(ledgerPrefix, cert.Name, issuer.callbacks()); err != nil {
		t.Fatalf("check as issuer: %v", err)
	}
	h.fx.Drain()
	if len(issuer.valid) != 1 || issuer.total() != 1 {
		t.Fatalf("issuer query expected valid, got=%+v", issuer)
	}
}

func TestConcurrentQueriesCompleteIndependently(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	alice, bob := h.fx.Alice.Certificate, h.fx.Bob.Certificate
	rec, err := h.revoker.RevokeAsIssuer(alice, protocol.ReasonKeyCompromise, nil)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	h.submit(t, alice, bob, rec)

	var ra, rb result
	if _, err := h.checker.CheckAsIssuer(ledgerPrefix, alice.Name, ra.callbacks()); err != nil {
		t.Fatalf("check alice: %v", err)
	}
	if _, err := h.checker.CheckAsIssuer(ledgerPrefix, bob.Name, rb.callbacks()); err != nil {
		t.Fatalf("check bob: %v", err)
	}
	if h.checker.Pending() != 2 {
		t.Fatalf("expected two pending queries, got=%d", h.checker.Pending())
	}
	h.fx.Drain()
	if len(ra.revoked) != 1 || ra.total() != 1 || !ra.revoked[0].CertName.Equal(alice.Name) {
		t.Fatalf("alice outcome: %+v", ra)
	}
	if len(rb.valid) != 1 || rb.total() != 1 || !rb.valid[0].CertName.Equal(bob.Name) {
		t.Fatalf("bob outcome: %+v", rb)
	}
}

func TestQueryRetriesThenTimesOut(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	cert := h.fx.Alice.Certificate
	h.submit(t, cert)
	queryName, _ := naming.QueryName(cert.Name, naming.RoleOwner)
	h.fx.Net.DropInterests(queryName, -1)

	var r result
	if _, err := h.checker.CheckAsOwner(ledgerPrefix, cert.Name, r.callbacks()); err != nil {
		t.Fatalf("check: %v", err)
	}
	h.fx.Drain()
	if len(r.failed) != 1 || r.total() != 1 {
		t.Fatalf("expected one failure, got=%+v", r)
	}
	if !errors.Is(r.failed[0], protocol.ErrTransportTimeout) {
		t.Fatalf("expected ErrTransportTimeout, got=%v", r.failed[0])
	}
	want := 1 + h.checker.cfg.Session.CheckerMaxRetries
	if got := h.fx.Net.Dropped(); got != want {
		t.Fatalf("expected %d attempts, got=%d", want, got)
	}
}

func TestQueryRecoversFromDroppedInterests(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	cert := h.fx.Alice.Certificate
	h.submit(t, cert)
	queryName, _ := naming.QueryName(cert.Name, naming.RoleOwner)
	h.fx.Net.DropInterests(queryName, 2)

	var r result
	if _, err := h.checker.CheckAsOwner(ledgerPrefix, cert.Name, r.callbacks()); err != nil {
		t.Fatalf("check: %v", err)
	}
	h.fx.Drain()
	if len(r.valid) != 1 || r.total() != 1 {
		t.Fatalf("expected valid after retries, got=%+v", r)
	}
}

func TestUnknownCertificateTimesOut(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	var r result
	if _, err := h.checker.CheckAsOwner(ledgerPrefix, h.fx.Bob.CertName(), r.callbacks()); err != nil {
		t.Fatalf("check: %v", err)
	}
	h.fx.Drain()
	if len(r.failed) != 1 || !errors.Is(r.failed[0], protocol.ErrTransportTimeout) {
		t.Fatalf("expected timeout for unknown certificate, got=%+v", r)
	}
}

// class names the outcome of a single check.
func (r *result) class() string {
	switch {
	case r.total() != 1:
		return "ambiguous"
	case len(r.valid) == 1:
		return "valid"
	case len(r.revoked) == 1:
		return "revoked"
	case errors.Is(r.failed[0], protocol.ErrTransportTimeout):
		return "timeout"
	default:
		return "failed"
	}
}

func TestRepeatedChecksKeepOutcomeClass(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	alice := h.fx.Alice.Certificate
	rec, err := h.revoker.RevokeAsIssuer(alice, protocol.ReasonCACompromise, nil)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	h.submit(t, alice, rec)

	cases := []struct {
		name string
		cert ndn.Name
		role naming.Role
		want string
	}{
		{"valid", alice.Name, naming.RoleOwner, "valid"},
		{"revoked", alice.Name, naming.RoleIssuer, "revoked"},
		{"unknown", h.fx.Bob.CertName(), naming.RoleOwner, "timeout"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for round := 0; round < 3; round++ {
				var r result
				var err error
				if tc.role == naming.RoleIssuer {
					_, err = h.checker.CheckAsIssuer(ledgerPrefix, tc.cert, r.callbacks())
				} else {
					_, err = h.checker.CheckAsOwner(ledgerPrefix, tc.cert, r.callbacks())
				}
				if err != nil {
					t.Fatalf("round %d check: %v", round, err)
				}
				h.fx.Drain()
				if got := r.class(); got != tc.want {
					t.Fatalf("round %d: expected %s, got=%s (%+v)", round, tc.want, got, r)
				}
			}
		})
	}
}

func TestNoRouteIsTransportNack(t *testing.T) {
	testlog.Start(t)
	fx := ndntest.New(t)
	c := New(fx.Face("checker"), fx.Validator, Config{})
	var r result
	if _, err := c.CheckAsOwner(ndn.MustParseName("/nowhere"), fx.Alice.CertName(), r.callbacks()); err != nil {
		t.Fatalf("check: %v", err)
	}
	fx.Drain()
	if len(r.failed) != 1 || !errors.Is(r.failed[0], protocol.ErrTransportNack) {
		t.Fatalf("expected ErrTransportNack, got=%+v", r)
	}
}

// responder answers every query under /ndn from a face reachable at hint.
func responder(t *testing.T, fx *ndntest.Fixture, hint string, answer func(i *ndn.Interest) *ndn.Data) {
	t.Helper()
	face := fx.Face("responder")
	if err := face.RegisterPrefix(ndn.MustParseName(hint)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := face.SetInterestFilter(ledgerPrefix, func(i *ndn.Interest) {
		if d := answer(i); d != nil {
			_ = face.Put(d)
		}
	}); err != nil {
		t.Fatalf("filter: %v", err)
	}
}

func TestUntrustedAnswerFailsValidation(t *testing.T) {
	testlog.Start(t)
	fx := ndntest.New(t)
	rogue, id := fx.Rogue(t, "/ndn/ledger")
	responder(t, fx, "/rogue", func(i *ndn.Interest) *ndn.Data {
		nack, err := revocation.NewNack(i.Name, fx.Loop.Now(), revocation.DefaultNackFreshness)
		if err != nil {
			t.Errorf("nack: %v", err)
			return nil
		}
		if err := rogue.Sign(nack, security.SignWithIdentity(id.Name)); err != nil {
			t.Errorf("sign: %v", err)
			return nil
		}
		return nack
	})
	c := New(fx.Face("checker"), fx.Validator, Config{})
	var r result
	if _, err := c.CheckAsOwner(ndn.MustParseName("/rogue"), fx.Alice.CertName(), r.callbacks()); err != nil {
		t.Fatalf("check: %v", err)
	}
	fx.Drain()
	if len(r.failed) != 1 || !errors.Is(r.failed[0], protocol.ErrValidation) {
		t.Fatalf("expected ErrValidation, got=%+v", r)
	}
}

func TestUnrecognizedAnswerIsProtocolFormat(t *testing.T) {
	testlog.Start(t)
	fx := ndntest.New(t)
	responder(t, fx, "/odd", func(i *ndn.Interest) *ndn.Data {
		d := ndn.NewData(i.Name.AppendString("extra"), []byte("hello"))
		if err := fx.KeyChain.Sign(d, security.SignWithIdentity(fx.Alice.Name)); err != nil {
			t.Errorf("sign: %v", err)
			return nil
		}
		return d
	})
	c := New(fx.Face("checker"), fx.Validator, Config{})
	var r result
	if _, err := c.CheckAsOwner(ndn.MustParseName("/odd"), fx.Alice.CertName(), r.callbacks()); err != nil {
		t.Fatalf("check: %v", err)
	}
	fx.Drain()
	if len(r.failed) != 1 || !errors.Is(r.failed[0], protocol.ErrProtocolFormat) {
		t.Fatalf("expected ErrProtocolFormat, got=%+v", r)
	}
}

func TestCheckRejectsInvalidArguments(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	var r result
	if _, err := h.checker.CheckAsOwner(nil, h.fx.Alice.CertName(), r.callbacks()); !errors.Is(err, protocol.ErrInvalidArgument) {
		t.Fatalf("empty ledger prefix got=%v", err)
	}
	if _, err := h.checker.CheckAsOwner(ledgerPrefix, ndn.MustParseName("/ndn/site1/alice"), r.callbacks()); !errors.Is(err, protocol.ErrInvalidArgument) {
		t.Fatalf("non-certificate name got=%v", err)
	}
	if h.checker.Pending() != 0 || r.total() != 0 {
		t.Fatalf("rejected checks must leave no trace")
	}
}

func TestCloseCancelsQueries(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	cert := h.fx.Alice.Certificate
	h.submit(t, cert)
	queryName, _ := naming.QueryName(cert.Name, naming.RoleOwner)
	h.fx.Net.DropInterests(queryName, -1)

	var r result
	if _, err := h.checker.CheckAsOwner(ledgerPrefix, cert.Name, r.callbacks()); err != nil {
		t.Fatalf("check: %v", err)
	}
	h.checker.Close()
	h.fx.Drain()
	if r.total() != 0 || h.checker.Pending() != 0 {
		t.Fatalf("closed checker fired callbacks: %+v", r)
	}
	if _, err := h.checker.CheckAsOwner(ledgerPrefix, cert.Name, r.callbacks()); !errors.Is(err, ErrCheckerClosed) {
		t.Fatalf("expected ErrCheckerClosed, got=%v", err)
	}
}
