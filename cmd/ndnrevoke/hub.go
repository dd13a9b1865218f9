package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/ndnrevoke/internal/config"
	"github.com/danmuck/ndnrevoke/internal/hub"
	"github.com/danmuck/ndnrevoke/internal/protocol/frame"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Run the websocket forwarder that ledgers and clients attach to",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.DefaultHubConfig()
		if path := configPath(cmd); path != "" {
			var err error
			if cfg, err = config.LoadHubConfig(path); err != nil {
				return err
			}
		}
		return runHub(cfg)
	},
}

func runHub(cfg config.HubConfig) error {
	h := hub.New(hub.Config{
		Limits:       frame.Limits{MaxPayloadBytes: cfg.MaxPayloadBytes},
		PingInterval: cfg.PingInterval,
	})
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, h)
	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		h.Close()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	tlsOn := cfg.TLSCertFile != ""
	log.Info().Str("addr", cfg.Addr).Str("path", cfg.Path).Bool("tls", tlsOn).Msg("hub listening")
	var err error
	if tlsOn {
		err = srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("hub stopped")
	return nil
}
