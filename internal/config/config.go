// Package config loads the TOML files of the hub, ledger and client tools.
// Every Load* starts from the Default* value and overrides only the keys
// present in the file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/ndnrevoke/internal/ledger"
	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/protocol/session"
	"github.com/danmuck/ndnrevoke/internal/revocation"
	"github.com/danmuck/ndnrevoke/internal/storage"
	"github.com/danmuck/ndnrevoke/internal/storage/memory"
)

const (
	DefaultHubAddr   = ":6363"
	DefaultHubPath   = "/ndn"
	DefaultHubURL    = "ws://127.0.0.1:6363/ndn"
	DefaultKeyDir    = "./keys"
	DefaultAdminAddr = "127.0.0.1:7070"
)

type HubConfig struct {
	Addr            string
	Path            string
	MaxPayloadBytes uint64
	PingInterval    time.Duration
	// TLSCertFile and TLSKeyFile switch the hub to wss when both are set.
	TLSCertFile string
	TLSKeyFile  string
}

type StorageConfig struct {
	Backend  string
	Path     string
	Prefixes storage.PrefixSet
}

type LedgerConfig struct {
	Prefix        ndn.Name
	RecordZones   []ndn.Name
	NackFreshness time.Duration
	// Identity signs acks and nacks; empty means Prefix.
	Identity    ndn.Name
	KeyChainDir string
	// TrustSchema is a YAML file; empty means the built-in schema anchored
	// at the keychain's self-signed certificates.
	TrustSchema string
	HubURL      string
	// HubCAFile verifies a wss hub's certificate.
	HubCAFile string
	Storage   StorageConfig
	Admin     ledger.AdminConfig
	Session   session.Config
}

type ClientConfig struct {
	Identity    ndn.Name
	Ledger      ndn.Name
	KeyChainDir string
	TrustSchema string
	HubURL      string
	HubCAFile   string
	Session     session.Config
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		Addr:            DefaultHubAddr,
		Path:            DefaultHubPath,
		MaxPayloadBytes: 8 * 1024 * 1024,
		PingInterval:    60 * time.Second,
	}
}

func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		Prefix:        ndn.MustParseName("/ndn"),
		NackFreshness: revocation.DefaultNackFreshness,
		KeyChainDir:   DefaultKeyDir,
		HubURL:        DefaultHubURL,
		Storage:       StorageConfig{Backend: memory.BackendName},
		Admin: ledger.AdminConfig{
			Addr:        DefaultAdminAddr,
			CorsOrigins: []string{"http://localhost:3000"},
		},
		Session: session.DefaultConfig(),
	}
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Ledger:      ndn.MustParseName("/ndn"),
		KeyChainDir: DefaultKeyDir,
		HubURL:      DefaultHubURL,
		Session:     session.DefaultConfig(),
	}
}

func ValidateHubConfig(cfg HubConfig) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("hub config missing addr")
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		return fmt.Errorf("hub config path must start with /")
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return fmt.Errorf("hub config needs both tls_cert_file and tls_key_file")
	}
	return nil
}

func ValidateLedgerConfig(cfg LedgerConfig) error {
	if len(cfg.Prefix) == 0 {
		return fmt.Errorf("ledger config missing prefix")
	}
	if strings.TrimSpace(cfg.HubURL) == "" {
		return fmt.Errorf("ledger config missing hub_url")
	}
	if strings.TrimSpace(cfg.KeyChainDir) == "" {
		return fmt.Errorf("ledger config missing keychain_dir")
	}
	if strings.TrimSpace(cfg.Storage.Backend) == "" {
		return fmt.Errorf("ledger config missing storage.backend")
	}
	if cfg.Storage.Backend != memory.BackendName && strings.TrimSpace(cfg.Storage.Path) == "" {
		return fmt.Errorf("ledger config storage.path required for backend %q", cfg.Storage.Backend)
	}
	if cfg.NackFreshness <= 0 {
		return fmt.Errorf("ledger config nack_freshness must be positive")
	}
	return nil
}

func ValidateClientConfig(cfg ClientConfig) error {
	if len(cfg.Ledger) == 0 {
		return fmt.Errorf("client config missing ledger")
	}
	if strings.TrimSpace(cfg.HubURL) == "" {
		return fmt.Errorf("client config missing hub_url")
	}
	if strings.TrimSpace(cfg.KeyChainDir) == "" {
		return fmt.Errorf("client config missing keychain_dir")
	}
	return nil
}
