package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/storage/leveldbstore"
	"github.com/danmuck/ndnrevoke/internal/testutil/testlog"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadLedgerConfigOverridesDefaults(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "ledger.toml", `
prefix = "/example"
record_zones = ["/example", "/other"]
nack_freshness = "1h"

[storage]
backend = "leveldb"
path = "/var/lib/ndnrevoke"
prefixes = ["/example"]

[admin]
tokens = ["a", "b"]

[session]
ledger_max_retries = 2
interest_lifetime = "1500ms"
`)
	cfg, err := LoadLedgerConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Prefix.Equal(ndn.MustParseName("/example")) || len(cfg.RecordZones) != 2 {
		t.Fatalf("unexpected names: prefix=%s zones=%v", cfg.Prefix, cfg.RecordZones)
	}
	if cfg.NackFreshness != time.Hour {
		t.Fatalf("nack freshness got=%s", cfg.NackFreshness)
	}
	if cfg.Storage.Backend != leveldbstore.BackendName || cfg.Storage.Path != "/var/lib/ndnrevoke" || len(cfg.Storage.Prefixes) != 1 {
		t.Fatalf("unexpected storage: %+v", cfg.Storage)
	}
	if len(cfg.Admin.Tokens) != 2 || cfg.Admin.Addr != DefaultAdminAddr {
		t.Fatalf("unexpected admin: %+v", cfg.Admin)
	}
	if cfg.Session.LedgerMaxRetries != 2 || cfg.Session.InterestLifetime != 1500*time.Millisecond {
		t.Fatalf("unexpected session: %+v", cfg.Session)
	}
	if cfg.Session.HolderMaxRetries != DefaultLedgerConfig().Session.HolderMaxRetries {
		t.Fatalf("undefined keys must keep defaults, got=%d", cfg.Session.HolderMaxRetries)
	}
	if cfg.HubURL != DefaultHubURL || cfg.KeyChainDir != DefaultKeyDir {
		t.Fatalf("unexpected defaults: hub=%s keys=%s", cfg.HubURL, cfg.KeyChainDir)
	}

	lc := cfg.Ledger()
	if lc.Session.NackFreshness != time.Hour || !lc.Signing.Identity.Equal(cfg.Prefix) {
		t.Fatalf("unexpected ledger config: %+v", lc)
	}
	if opts := cfg.StorageOptions(); opts.Path != cfg.Storage.Path {
		t.Fatalf("unexpected storage options: %+v", opts)
	}
}

func TestLoadLedgerConfigRejectsInvalidValues(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"bad duration":       `nack_freshness = "soon"`,
		"durable w/o path":   "[storage]\nbackend = \"leveldb\"",
		"empty hub":          `hub_url = ""`,
		"bad name":           `prefix = "/a/%zz"`,
		"negative freshness": `nack_freshness = "-1s"`,
	}
	for name, body := range cases {
		if _, err := LoadLedgerConfig(writeFile(t, "ledger.toml", body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := LoadLedgerConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadClientConfig(t *testing.T) {
	testlog.Start(t)
	cfg, err := LoadClientConfig(writeFile(t, "client.toml", `
identity = "/ndn/site1/alice"
ledger = "/ledger"
[session]
checker_max_retries = 5
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Identity.Equal(ndn.MustParseName("/ndn/site1/alice")) || !cfg.Ledger.Equal(ndn.MustParseName("/ledger")) {
		t.Fatalf("unexpected names: %s %s", cfg.Identity, cfg.Ledger)
	}
	if cfg.Session.CheckerMaxRetries != 5 {
		t.Fatalf("checker retries got=%d", cfg.Session.CheckerMaxRetries)
	}
}

func TestLoadHubConfig(t *testing.T) {
	testlog.Start(t)
	cfg, err := LoadHubConfig(writeFile(t, "hub.toml", "addr = \":7000\"\nping_interval = \"5s\""))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7000" || cfg.PingInterval != 5*time.Second || cfg.Path != DefaultHubPath {
		t.Fatalf("unexpected hub config: %+v", cfg)
	}
	if _, err := LoadHubConfig(writeFile(t, "hub.toml", `path = "ndn"`)); err == nil {
		t.Fatalf("expected relative path to be rejected")
	}
	if _, err := LoadHubConfig(writeFile(t, "hub.toml", `tls_cert_file = "hub.crt"`)); err == nil {
		t.Fatalf("expected a certificate without key to be rejected")
	}
}

func TestTemplatesLoadBack(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	for _, kind := range Kinds() {
		path := filepath.Join(dir, kind+".toml")
		if err := WriteTemplate(path, kind, false); err != nil {
			t.Fatalf("write %s template: %v", kind, err)
		}
		var err error
		switch kind {
		case KindHub:
			_, err = LoadHubConfig(path)
		case KindLedger:
			var cfg LedgerConfig
			cfg, err = LoadLedgerConfig(path)
			if err == nil && cfg.Session != DefaultLedgerConfig().Session {
				t.Fatalf("ledger template session drifted: %+v", cfg.Session)
			}
		case KindClient:
			_, err = LoadClientConfig(path)
		}
		if err != nil {
			t.Fatalf("load %s template: %v", kind, err)
		}
		if err := WriteTemplate(path, kind, false); err == nil || !strings.Contains(err.Error(), "already exists") {
			t.Fatalf("expected refusal to overwrite, got=%v", err)
		}
		if err := WriteTemplate(path, kind, true); err != nil {
			t.Fatalf("overwrite %s: %v", kind, err)
		}
	}
	if _, err := Template("relay"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
