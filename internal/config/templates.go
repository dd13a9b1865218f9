package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danmuck/ndnrevoke/internal/protocol/session"
	"github.com/pelletier/go-toml/v2"
)

const (
	KindHub    = "hub"
	KindLedger = "ledger"
	KindClient = "client"
)

func Kinds() []string { return []string{KindHub, KindLedger, KindClient} }

func sessionTemplate(cfg session.Config) sessionFile {
	return sessionFile{
		InterestLifetime:  cfg.InterestLifetime.String(),
		HolderMaxRetries:  cfg.HolderMaxRetries,
		LedgerMaxRetries:  cfg.LedgerMaxRetries,
		CheckerMaxRetries: cfg.CheckerMaxRetries,
		ReconnectDelay:    cfg.Backoff.InitialDelay.String(),
		ReconnectMaxDelay: cfg.Backoff.MaxDelay.String(),
	}
}

func hubTemplate() hubFile {
	cfg := DefaultHubConfig()
	return hubFile{
		Addr:            cfg.Addr,
		Path:            cfg.Path,
		MaxPayloadBytes: cfg.MaxPayloadBytes,
		PingInterval:    cfg.PingInterval.String(),
	}
}

func ledgerTemplate() ledgerFile {
	cfg := DefaultLedgerConfig()
	return ledgerFile{
		Prefix:        cfg.Prefix.String(),
		RecordZones:   []string{cfg.Prefix.String()},
		NackFreshness: cfg.NackFreshness.String(),
		Identity:      cfg.Prefix.String(),
		KeyChainDir:   cfg.KeyChainDir,
		HubURL:        cfg.HubURL,
		Storage: storageFile{
			Backend:  cfg.Storage.Backend,
			Prefixes: []string{},
		},
		Admin: adminFile{
			Addr:        cfg.Admin.Addr,
			Tokens:      []string{},
			CorsOrigins: cfg.Admin.CorsOrigins,
		},
		Session: sessionTemplate(cfg.Session),
	}
}

func clientTemplate() clientFile {
	cfg := DefaultClientConfig()
	return clientFile{
		Identity:    "/ndn/site1/alice",
		Ledger:      cfg.Ledger.String(),
		KeyChainDir: cfg.KeyChainDir,
		HubURL:      cfg.HubURL,
		Session:     sessionTemplate(cfg.Session),
	}
}

// Template renders the default configuration of kind as TOML.
func Template(kind string) ([]byte, error) {
	var v any
	switch strings.TrimSpace(strings.ToLower(kind)) {
	case KindHub:
		v = hubTemplate()
	case KindLedger:
		v = ledgerTemplate()
	case KindClient:
		v = clientTemplate()
	default:
		return nil, fmt.Errorf("unknown config kind %q (want one of %s)", kind, strings.Join(Kinds(), ", "))
	}
	out, err := toml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("render %s template: %w", kind, err)
	}
	return out, nil
}

// WriteTemplate writes the template of kind to path, refusing to replace an
// existing file unless overwrite is set.
func WriteTemplate(path, kind string, overwrite bool) error {
	body, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	return os.WriteFile(path, body, 0o644)
}

// ValidateFile loads path as kind and reports the first problem.
func ValidateFile(kind, path string) error {
	var err error
	switch strings.TrimSpace(strings.ToLower(kind)) {
	case KindHub:
		_, err = LoadHubConfig(path)
	case KindLedger:
		_, err = LoadLedgerConfig(path)
	case KindClient:
		_, err = LoadClientConfig(path)
	default:
		err = fmt.Errorf("unknown config kind %q", kind)
	}
	return err
}
