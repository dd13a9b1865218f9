package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/protocol/session"
	"github.com/danmuck/ndnrevoke/internal/storage"
)

type hubFile struct {
	Addr            string `toml:"addr"`
	Path            string `toml:"path"`
	MaxPayloadBytes uint64 `toml:"max_payload_bytes"`
	PingInterval    string `toml:"ping_interval"`
	TLSCertFile     string `toml:"tls_cert_file"`
	TLSKeyFile      string `toml:"tls_key_file"`
}

type storageFile struct {
	Backend  string   `toml:"backend"`
	Path     string   `toml:"path"`
	Prefixes []string `toml:"prefixes"`
}

type adminFile struct {
	Addr        string   `toml:"addr"`
	Tokens      []string `toml:"tokens"`
	CorsOrigins []string `toml:"cors_origins"`
}

type sessionFile struct {
	InterestLifetime  string `toml:"interest_lifetime"`
	HolderMaxRetries  int    `toml:"holder_max_retries"`
	LedgerMaxRetries  int    `toml:"ledger_max_retries"`
	CheckerMaxRetries int    `toml:"checker_max_retries"`
	ReconnectDelay    string `toml:"reconnect_delay"`
	ReconnectMaxDelay string `toml:"reconnect_max_delay"`
}

type ledgerFile struct {
	Prefix        string      `toml:"prefix"`
	RecordZones   []string    `toml:"record_zones"`
	NackFreshness string      `toml:"nack_freshness"`
	Identity      string      `toml:"identity"`
	KeyChainDir   string      `toml:"keychain_dir"`
	TrustSchema   string      `toml:"trust_schema"`
	HubURL        string      `toml:"hub_url"`
	HubCAFile     string      `toml:"hub_ca_file"`
	Storage       storageFile `toml:"storage"`
	Admin         adminFile   `toml:"admin"`
	Session       sessionFile `toml:"session"`
}

type clientFile struct {
	Identity    string      `toml:"identity"`
	Ledger      string      `toml:"ledger"`
	KeyChainDir string      `toml:"keychain_dir"`
	TrustSchema string      `toml:"trust_schema"`
	HubURL      string      `toml:"hub_url"`
	HubCAFile   string      `toml:"hub_ca_file"`
	Session     sessionFile `toml:"session"`
}

func LoadHubConfig(path string) (HubConfig, error) {
	cfg := DefaultHubConfig()
	var raw hubFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return HubConfig{}, fmt.Errorf("load hub config: %w", err)
	}
	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("path") {
		cfg.Path = strings.TrimSpace(raw.Path)
	}
	if meta.IsDefined("max_payload_bytes") {
		cfg.MaxPayloadBytes = raw.MaxPayloadBytes
	}
	if meta.IsDefined("ping_interval") {
		if cfg.PingInterval, err = parseDuration("ping_interval", raw.PingInterval); err != nil {
			return HubConfig{}, err
		}
	}
	if meta.IsDefined("tls_cert_file") {
		cfg.TLSCertFile = strings.TrimSpace(raw.TLSCertFile)
	}
	if meta.IsDefined("tls_key_file") {
		cfg.TLSKeyFile = strings.TrimSpace(raw.TLSKeyFile)
	}
	if err := ValidateHubConfig(cfg); err != nil {
		return HubConfig{}, err
	}
	return cfg, nil
}

func LoadLedgerConfig(path string) (LedgerConfig, error) {
	cfg := DefaultLedgerConfig()
	var raw ledgerFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return LedgerConfig{}, fmt.Errorf("load ledger config: %w", err)
	}

	if meta.IsDefined("prefix") {
		if cfg.Prefix, err = parseName("prefix", raw.Prefix); err != nil {
			return LedgerConfig{}, err
		}
	}
	if meta.IsDefined("record_zones") {
		cfg.RecordZones = nil
		for _, z := range raw.RecordZones {
			n, err := parseName("record_zones", z)
			if err != nil {
				return LedgerConfig{}, err
			}
			cfg.RecordZones = append(cfg.RecordZones, n)
		}
	}
	if meta.IsDefined("nack_freshness") {
		if cfg.NackFreshness, err = parseDuration("nack_freshness", raw.NackFreshness); err != nil {
			return LedgerConfig{}, err
		}
	}
	if meta.IsDefined("identity") && strings.TrimSpace(raw.Identity) != "" {
		if cfg.Identity, err = parseName("identity", raw.Identity); err != nil {
			return LedgerConfig{}, err
		}
	}
	if meta.IsDefined("keychain_dir") {
		cfg.KeyChainDir = strings.TrimSpace(raw.KeyChainDir)
	}
	if meta.IsDefined("trust_schema") {
		cfg.TrustSchema = strings.TrimSpace(raw.TrustSchema)
	}
	if meta.IsDefined("hub_url") {
		cfg.HubURL = strings.TrimSpace(raw.HubURL)
	}
	if meta.IsDefined("hub_ca_file") {
		cfg.HubCAFile = strings.TrimSpace(raw.HubCAFile)
	}

	if meta.IsDefined("storage", "backend") {
		cfg.Storage.Backend = strings.TrimSpace(raw.Storage.Backend)
	}
	if meta.IsDefined("storage", "path") {
		cfg.Storage.Path = strings.TrimSpace(raw.Storage.Path)
	}
	if meta.IsDefined("storage", "prefixes") && len(raw.Storage.Prefixes) > 0 {
		if cfg.Storage.Prefixes, err = storage.ParsePrefixes(raw.Storage.Prefixes); err != nil {
			return LedgerConfig{}, fmt.Errorf("parse storage.prefixes: %w", err)
		}
	}

	if meta.IsDefined("admin", "addr") {
		cfg.Admin.Addr = strings.TrimSpace(raw.Admin.Addr)
	}
	if meta.IsDefined("admin", "tokens") {
		cfg.Admin.Tokens = raw.Admin.Tokens
	}
	if meta.IsDefined("admin", "cors_origins") {
		cfg.Admin.CorsOrigins = raw.Admin.CorsOrigins
	}

	if cfg.Session, err = applySession(meta, cfg.Session, raw.Session); err != nil {
		return LedgerConfig{}, err
	}
	if err := ValidateLedgerConfig(cfg); err != nil {
		return LedgerConfig{}, err
	}
	return cfg, nil
}

func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	var raw clientFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("load client config: %w", err)
	}
	if meta.IsDefined("identity") && strings.TrimSpace(raw.Identity) != "" {
		if cfg.Identity, err = parseName("identity", raw.Identity); err != nil {
			return ClientConfig{}, err
		}
	}
	if meta.IsDefined("ledger") {
		if cfg.Ledger, err = parseName("ledger", raw.Ledger); err != nil {
			return ClientConfig{}, err
		}
	}
	if meta.IsDefined("keychain_dir") {
		cfg.KeyChainDir = strings.TrimSpace(raw.KeyChainDir)
	}
	if meta.IsDefined("trust_schema") {
		cfg.TrustSchema = strings.TrimSpace(raw.TrustSchema)
	}
	if meta.IsDefined("hub_url") {
		cfg.HubURL = strings.TrimSpace(raw.HubURL)
	}
	if meta.IsDefined("hub_ca_file") {
		cfg.HubCAFile = strings.TrimSpace(raw.HubCAFile)
	}
	if cfg.Session, err = applySession(meta, cfg.Session, raw.Session); err != nil {
		return ClientConfig{}, err
	}
	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func applySession(meta toml.MetaData, cfg session.Config, raw sessionFile) (session.Config, error) {
	var err error
	if meta.IsDefined("session", "interest_lifetime") {
		if cfg.InterestLifetime, err = parseDuration("session.interest_lifetime", raw.InterestLifetime); err != nil {
			return cfg, err
		}
	}
	if meta.IsDefined("session", "holder_max_retries") {
		cfg.HolderMaxRetries = raw.HolderMaxRetries
	}
	if meta.IsDefined("session", "ledger_max_retries") {
		cfg.LedgerMaxRetries = raw.LedgerMaxRetries
	}
	if meta.IsDefined("session", "checker_max_retries") {
		cfg.CheckerMaxRetries = raw.CheckerMaxRetries
	}
	if meta.IsDefined("session", "reconnect_delay") {
		if cfg.Backoff.InitialDelay, err = parseDuration("session.reconnect_delay", raw.ReconnectDelay); err != nil {
			return cfg, err
		}
	}
	if meta.IsDefined("session", "reconnect_max_delay") {
		if cfg.Backoff.MaxDelay, err = parseDuration("session.reconnect_max_delay", raw.ReconnectMaxDelay); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func parseDuration(key, v string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func parseName(key, v string) (ndn.Name, error) {
	n, err := ndn.ParseName(strings.TrimSpace(v))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}
