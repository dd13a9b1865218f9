package naming

import (
	"errors"
	"testing"

	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/protocol"
	"github.com/danmuck/ndnrevoke/internal/testutil/testlog"
)

var certName = ndn.MustParseName("/ndn/site1/alice/KEY/%AA%BB/ndn-issuer/v=1700000000000")

func TestParseCertificateName(t *testing.T) {
	testlog.Start(t)
	cn, err := ParseCertificateName(certName)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cn.Identity.String() != "/ndn/site1/alice" || !cn.IssuerID.Is("ndn-issuer") {
		t.Fatalf("unexpected parse: %+v", cn)
	}
	if !cn.Name().Equal(certName) {
		t.Fatalf("name round trip: %s", cn.Name())
	}
	if cn.KeyName().String() != "/ndn/site1/alice/KEY/%AA%BB" {
		t.Fatalf("unexpected key name: %s", cn.KeyName())
	}
}

func TestParseCertificateNameRejectsMalformed(t *testing.T) {
	testlog.Start(t)
	for _, uri := range []string{
		"/ndn/alice",
		"/ndn/alice/CERT/k/self/v=1",
		"/ndn/alice/KEY/k/self/1",
	} {
		if err := ValidateCertificateName(ndn.MustParseName(uri)); !errors.Is(err, protocol.ErrInvalidArgument) {
			t.Fatalf("%s: expected ErrInvalidArgument, got %v", uri, err)
		}
	}
}

func TestRecordNamesForBothRoles(t *testing.T) {
	testlog.Start(t)
	owner, err := RecordName(certName, RoleOwner)
	if err != nil {
		t.Fatalf("owner record: %v", err)
	}
	if owner.String() != "/ndn/site1/alice/REVOKE/%AA%BB/ndn-issuer/v=1700000000000/self" {
		t.Fatalf("unexpected owner record name: %s", owner)
	}
	issuer, err := RecordName(certName, RoleIssuer)
	if err != nil {
		t.Fatalf("issuer record: %v", err)
	}
	if last, _ := issuer.At(-1); !last.Is("ndn-issuer") {
		t.Fatalf("unexpected issuer revoker: %s", issuer)
	}
	for _, rec := range []ndn.Name{owner, issuer} {
		if !IsRecordName(rec) || IsNackName(rec) {
			t.Fatalf("classification failed for %s", rec)
		}
		back, err := CertificateFromRecord(rec)
		if err != nil || !back.Equal(certName) {
			t.Fatalf("record %s resolved to %s err=%v", rec, back, err)
		}
	}
}

func TestNackNameResolvesToQueriedCertificate(t *testing.T) {
	testlog.Start(t)
	query, _ := QueryName(certName, RoleIssuer)
	nack, err := NackName(query, 1700000005000)
	if err != nil {
		t.Fatalf("nack name: %v", err)
	}
	if !IsNackName(nack) || IsRecordName(nack) {
		t.Fatalf("classification failed for %s", nack)
	}
	back, err := CertificateFromNack(nack)
	if err != nil || !back.Equal(certName) {
		t.Fatalf("nack resolved to %s err=%v", back, err)
	}
	rec, _ := RecordFromNack(nack)
	if !rec.Equal(query) {
		t.Fatalf("record from nack: %s", rec)
	}
	revoker, _ := RevokerOf(nack)
	if !revoker.Is("ndn-issuer") {
		t.Fatalf("unexpected revoker: %v", revoker)
	}
	ts, err := TimestampOfNack(nack)
	if err != nil || ts != 1700000005000 {
		t.Fatalf("timestamp: %d err=%v", ts, err)
	}
	if _, err := NackName(certName, 1); !errors.Is(err, protocol.ErrInvalidArgument) {
		t.Fatalf("expected nack of certificate name to fail, got %v", err)
	}
}

func TestAppendNames(t *testing.T) {
	testlog.Start(t)
	topic := AppendTopic(ndn.MustParseName("/ndn"))
	if topic.String() != "/ndn/LEDGER/append" {
		t.Fatalf("unexpected topic: %s", topic)
	}
	if NotifyName(topic).String() != "/ndn/LEDGER/append/notify" {
		t.Fatalf("unexpected notify name: %s", NotifyName(topic))
	}
	holder := ndn.MustParseName("/ndn/site1/alice")
	cmd := CommandName(holder, topic, 0xCAFEBABE)
	if !MsgPrefix(holder).IsPrefixOf(cmd) {
		t.Fatalf("command %s outside msg prefix", cmd)
	}
	nonce, err := CommandNonce(cmd)
	if err != nil || nonce != 0xCAFEBABE {
		t.Fatalf("nonce: %d err=%v", nonce, err)
	}
	bundle := BundleName(cmd)
	if _, err := CommandNonce(bundle); err == nil {
		t.Fatalf("bundle name must not parse as a command")
	}
}
