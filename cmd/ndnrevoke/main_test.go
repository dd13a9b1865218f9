package main

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/danmuck/ndnrevoke/internal/naming"
	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/security"
	"github.com/danmuck/ndnrevoke/internal/testutil/testlog"
)

func TestKeygenBuildsTrustedChain(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	if err := keygen(dir, "/ndn", ""); err != nil {
		t.Fatalf("root keygen: %v", err)
	}
	if err := keygen(dir, "/ndn/site1/alice", "/ndn"); err != nil {
		t.Fatalf("alice keygen: %v", err)
	}
	if err := keygen(dir, "/ndn/site1/bob", "/ndn/missing"); err == nil {
		t.Fatalf("expected unknown issuer error")
	}
	if err := keygen(dir, "/ndn", ""); err == nil {
		t.Fatalf("expected duplicate identity error")
	}

	kc, validator, err := trust(dir, "")
	if err != nil {
		t.Fatalf("trust: %v", err)
	}
	alice, ok := kc.Identity(ndn.MustParseName("/ndn/site1/alice"))
	if !ok {
		t.Fatalf("alice missing from keychain")
	}
	if err := validator.Validate(alice.Certificate); err != nil {
		t.Fatalf("alice certificate not trusted: %v", err)
	}
}

func TestTrustRequiresAnchor(t *testing.T) {
	testlog.Start(t)
	if _, _, err := trust(t.TempDir(), ""); err == nil {
		t.Fatalf("expected error for empty keychain")
	}
	if _, _, err := trust(filepath.Join(t.TempDir(), "missing"), ""); err == nil {
		t.Fatalf("expected error for missing keychain")
	}
}

func TestCertificateArg(t *testing.T) {
	testlog.Start(t)
	name := "/ndn/site1/alice/KEY/%01/ndn/v=1"
	got, err := certificateArg(name)
	if err != nil || !got.Equal(ndn.MustParseName(name)) {
		t.Fatalf("name argument got=%s err=%v", got, err)
	}

	dir := t.TempDir()
	kc := security.NewKeyChain()
	id, err := kc.CreateIdentity(ndn.MustParseName("/ndn"), nil)
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	path := filepath.Join(dir, "ndn.cert")
	if err := security.WriteCertificateFile(path, id.Certificate); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if got, err = certificateArg(path); err != nil || !got.Equal(id.CertName()) {
		t.Fatalf("file argument got=%s err=%v", got, err)
	}
	if !naming.IsCertificateName(got) {
		t.Fatalf("expected a certificate name, got=%s", got)
	}
	if _, err := certificateArg(filepath.Join(dir, "missing.cert")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("missing file must fail, got=%v", err)
	}
	if got, err := certificateArg("/ndn/site1/alice"); err == nil {
		t.Fatalf("non-certificate name accepted, got=%s", got)
	}
}

func TestRoleFlag(t *testing.T) {
	testlog.Start(t)
	for as, want := range map[string]naming.Role{"owner": naming.RoleOwner, "issuer": naming.RoleIssuer} {
		if err := checkCmd.Flags().Set("as", as); err != nil {
			t.Fatalf("set flag: %v", err)
		}
		got, err := roleFlag(checkCmd)
		if err != nil || got != want {
			t.Fatalf("role %s got=%v err=%v", as, got, err)
		}
	}
	_ = checkCmd.Flags().Set("as", "ledger")
	if _, err := roleFlag(checkCmd); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}
