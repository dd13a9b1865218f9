package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/ndnrevoke/internal/config"
	"github.com/danmuck/ndnrevoke/internal/ledger"
	"github.com/danmuck/ndnrevoke/internal/storage/backends"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Run a revocation ledger attached to a hub",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.DefaultLedgerConfig()
		if path := configPath(cmd); path != "" {
			var err error
			if cfg, err = config.LoadLedgerConfig(path); err != nil {
				return err
			}
		}
		return runLedger(cfg)
	},
}

func runLedger(cfg config.LedgerConfig) error {
	kc, validator, err := trust(cfg.KeyChainDir, cfg.TrustSchema)
	if err != nil {
		return err
	}
	if _, ok := kc.Identity(cfg.SigningIdentity()); !ok {
		return fmt.Errorf("keychain %s has no key for %s (run ndnrevoke keygen first)", cfg.KeyChainDir, cfg.SigningIdentity())
	}

	factory := backends.NewFactory()
	store, err := factory.Open(cfg.Storage.Backend, cfg.StorageOptions())
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := attach(runCtx, cfg.HubURL, cfg.HubCAFile, cfg.Session)
	if err != nil {
		return err
	}
	var l *ledger.Ledger
	err = n.do(func() error {
		var err error
		if l, err = ledger.New(n.face, kc, validator, store, cfg.Ledger()); err != nil {
			return err
		}
		return l.Start()
	})
	if err != nil {
		n.close()
		return err
	}

	if cfg.Admin.Addr != "" {
		admin := ledger.NewAdmin(cfg.Prefix, store, cfg.Admin)
		go func() {
			if err := admin.Serve(cfg.Admin.Addr); err != nil {
				log.Error().Err(err).Msg("ledger admin stopped")
				stop()
			}
		}()
	}

	log.Info().
		Stringer("prefix", cfg.Prefix).
		Str("backend", cfg.Storage.Backend).
		Str("hub", cfg.HubURL).
		Msg("ledger running")
	<-ctx.Done()

	_ = n.do(func() error {
		l.Close()
		return nil
	})
	n.close()
	log.Info().Msg("ledger stopped")
	return nil
}
