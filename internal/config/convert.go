package config

import (
	"github.com/danmuck/ndnrevoke/internal/ledger"
	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/security"
	"github.com/danmuck/ndnrevoke/internal/storage"
)

// SigningIdentity is the identity that signs the ledger's answers.
func (c LedgerConfig) SigningIdentity() ndn.Name {
	if len(c.Identity) > 0 {
		return c.Identity
	}
	return c.Prefix
}

func (c LedgerConfig) Ledger() ledger.Config {
	sess := c.Session
	sess.NackFreshness = c.NackFreshness
	return ledger.Config{
		Prefix:        c.Prefix,
		RecordZones:   c.RecordZones,
		NackFreshness: c.NackFreshness,
		Signing:       security.SignWithIdentity(c.SigningIdentity()),
		Session:       sess,
	}
}

func (c LedgerConfig) StorageOptions() storage.Options {
	return storage.Options{Path: c.Storage.Path, Prefixes: c.Storage.Prefixes}
}
