package revocation

import (
	"errors"
	"testing"
	"time"

	"github.com/danmuck/ndnrevoke/internal/appender"
	"github.com/danmuck/ndnrevoke/internal/naming"
	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/protocol"
	"github.com/danmuck/ndnrevoke/internal/security"
	"github.com/danmuck/ndnrevoke/internal/testutil/ndntest"
	"github.com/danmuck/ndnrevoke/internal/testutil/testlog"
)

func newRevoker(f *ndntest.Fixture, client *appender.Client) *Revoker {
	return NewRevoker(f.KeyChain, Options{Now: f.Loop.Now, Client: client})
}

func TestRevokeAsOwner(t *testing.T) {
	testlog.Start(t)
	f := ndntest.New(t)
	cert := f.Alice.Certificate
	rec, err := newRevoker(f, nil).RevokeAsOwner(cert, protocol.ReasonKeyCompromise, nil)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if rec.ContentType != ndn.ContentTypeKey || rec.FreshnessPeriod != DefaultRecordFreshness {
		t.Fatalf("unexpected meta info: type=%d freshness=%s", rec.ContentType, rec.FreshnessPeriod)
	}
	if !rec.SigInfo.KeyLocator.Equal(cert.Name) {
		t.Fatalf("owner record must be signed by the certificate, got=%s", rec.SigInfo.KeyLocator)
	}
	if err := f.Validator.Validate(rec); err != nil {
		t.Fatalf("validate: %v", err)
	}
	parsed, err := ParseRecord(rec)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !parsed.CertName.Equal(cert.Name) || !parsed.IsOwner() || !parsed.Covers(cert) {
		t.Fatalf("record does not resolve to its certificate: %+v", parsed)
	}
	if parsed.Reason != protocol.ReasonKeyCompromise || parsed.NotBefore != nil {
		t.Fatalf("unexpected content: %+v", parsed.RecordContent)
	}
	if !parsed.Time().Equal(ndntest.Epoch) {
		t.Fatalf("timestamp got=%s", parsed.Time())
	}
}

func TestRevokeAsIssuer(t *testing.T) {
	testlog.Start(t)
	f := ndntest.New(t)
	cert := f.Alice.Certificate
	notBefore := ndntest.Epoch.Add(-time.Hour)
	rec, err := newRevoker(f, nil).RevokeAsIssuer(cert, protocol.ReasonSuperseded, &notBefore)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if !rec.SigInfo.KeyLocator.Equal(f.Root.CertName()) {
		t.Fatalf("issuer record signed by %s", rec.SigInfo.KeyLocator)
	}
	if err := f.Validator.Validate(rec); err != nil {
		t.Fatalf("validate: %v", err)
	}
	parsed, err := ParseRecord(rec)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.IsOwner() || !parsed.Revoker.Is("ndn") {
		t.Fatalf("revoker component got=%s", parsed.Revoker)
	}
	if parsed.NotBefore == nil || *parsed.NotBefore != uint64(notBefore.UnixMilli()) {
		t.Fatalf("not-before lost: %v", parsed.NotBefore)
	}
	want, _ := naming.RecordName(cert.Name, naming.RoleIssuer)
	if !rec.Name.Equal(want) {
		t.Fatalf("name got=%s want=%s", rec.Name, want)
	}
}

func TestIssuerRevocationSignedWithKeyName(t *testing.T) {
	testlog.Start(t)
	f := ndntest.New(t)
	cert := f.Alice.Certificate.Clone()
	if err := f.KeyChain.Sign(cert, security.SignWithKey(f.Root.KeyName())); err != nil {
		t.Fatalf("re-sign: %v", err)
	}
	rec, err := newRevoker(f, nil).RevokeAsIssuer(cert, protocol.ReasonCACompromise, nil)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if !rec.SigInfo.KeyLocator.Equal(f.Root.KeyName()) {
		t.Fatalf("expected key-name locator, got=%s", rec.SigInfo.KeyLocator)
	}
}

func TestRevokeRejectsBadInput(t *testing.T) {
	testlog.Start(t)
	f := ndntest.New(t)
	r := newRevoker(f, nil)
	blob := ndn.NewData(ndn.MustParseName("/ndn/site1/alice/file"), []byte("x"))
	if _, err := r.RevokeAsOwner(blob, protocol.ReasonUnspecified, nil); !errors.Is(err, protocol.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for non-certificate, got=%v", err)
	}
	if _, err := r.RevokeAsOwner(nil, protocol.ReasonUnspecified, nil); !errors.Is(err, protocol.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for nil, got=%v", err)
	}
	if _, err := r.RevokeAsOwner(f.Alice.Certificate, protocol.ReasonInvalid, nil); !errors.Is(err, protocol.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for invalid reason, got=%v", err)
	}
}

func TestForeignRevocationFailsValidation(t *testing.T) {
	testlog.Start(t)
	f := ndntest.New(t)
	rec, err := newRevoker(f, nil).RevokeAsOwner(f.Alice.Certificate, protocol.ReasonUnspecified, nil)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := f.KeyChain.Sign(rec, security.SignWithIdentity(f.Bob.Name)); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := f.Validator.Validate(rec); !errors.Is(err, protocol.ErrValidation) {
		t.Fatalf("bob must not revoke alice, got=%v", err)
	}
}

func TestNackRoundTrip(t *testing.T) {
	testlog.Start(t)
	f := ndntest.New(t)
	query, err := naming.QueryName(f.Alice.CertName(), naming.RoleIssuer)
	if err != nil {
		t.Fatalf("query name: %v", err)
	}
	at := ndntest.Epoch.Add(90 * time.Minute)
	d, err := NewNack(query, at, DefaultNackFreshness)
	if err != nil {
		t.Fatalf("new nack: %v", err)
	}
	if err := f.KeyChain.Sign(d, security.SignWithIdentity(f.Ledger.Name)); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := f.Validator.Validate(d); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if d.ContentType != ndn.ContentTypeNack {
		t.Fatalf("content type got=%d", d.ContentType)
	}
	n, err := ParseNack(d)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !n.CertName.Equal(f.Alice.CertName()) || !n.Revoker.Is("ndn") || !n.Time().Equal(at) || n.Reason != protocol.NackNotRevoked {
		t.Fatalf("unexpected nack: %+v", n)
	}
	if _, err := ParseRecord(d); !errors.Is(err, protocol.ErrProtocolFormat) {
		t.Fatalf("nack parsed as record: %v", err)
	}
	if _, err := NewNack(f.Alice.CertName(), at, 0); !errors.Is(err, protocol.ErrInvalidArgument) {
		t.Fatalf("nack for a certificate name: %v", err)
	}
}

func TestParseNackRejectsRecord(t *testing.T) {
	testlog.Start(t)
	f := ndntest.New(t)
	rec, err := newRevoker(f, nil).RevokeAsOwner(f.Alice.Certificate, protocol.ReasonUnspecified, nil)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := ParseNack(rec); !errors.Is(err, protocol.ErrProtocolFormat) {
		t.Fatalf("record parsed as nack: %v", err)
	}
	rec.Content = []byte{0x01, 0x00}
	if _, err := ParseRecord(rec); !errors.Is(err, protocol.ErrProtocolFormat) {
		t.Fatalf("garbage content parsed: %v", err)
	}
}

func TestPublishThroughAppendClient(t *testing.T) {
	testlog.Start(t)
	f := ndntest.New(t)
	ledgerPrefix := ndn.MustParseName("/ndn")
	var received []*ndn.Data
	listener := appender.NewListener(f.Face("ledger"), f.KeyChain, f.Validator, appender.ListenerConfig{
		Signing: security.SignWithIdentity(f.Ledger.Name),
	})
	if err := listener.Listen(naming.AppendTopic(ledgerPrefix), func(d *ndn.Data) protocol.StatusCode {
		received = append(received, d)
		return protocol.StatusSuccess
	}); err != nil {
		t.Fatalf("listen: %v", err)
	}
	client, err := appender.NewClient(f.Face("alice"), f.KeyChain, f.Validator, appender.ClientConfig{
		Prefix:  f.Alice.Name,
		Signing: security.SignWithIdentity(f.Alice.Name),
	})
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	if _, err := newRevoker(f, nil).PublishToLedger(ledgerPrefix, nil, appender.Callbacks{}); !errors.Is(err, ErrNoClient) {
		t.Fatalf("expected ErrNoClient, got=%v", err)
	}
	r := newRevoker(f, client)
	if _, err := r.PublishToLedger(ledgerPrefix, []*ndn.Data{f.Alice.Certificate}, appender.Callbacks{}); !errors.Is(err, protocol.ErrInvalidArgument) {
		t.Fatalf("certificate published as record: %v", err)
	}
	rec, err := r.RevokeAsOwner(f.Alice.Certificate, protocol.ReasonSuperseded, nil)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	successes := 0
	if _, err := r.PublishToLedger(ledgerPrefix, []*ndn.Data{rec}, appender.Callbacks{
		OnSuccess: func(uint64, []protocol.StatusCode) { successes++ },
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	f.Drain()
	if successes != 1 || len(received) != 1 || !received[0].Name.Equal(rec.Name) {
		t.Fatalf("publish outcome: successes=%d received=%d", successes, len(received))
	}
}
