package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/ndnrevoke/internal/appender"
	"github.com/danmuck/ndnrevoke/internal/config"
	"github.com/danmuck/ndnrevoke/internal/naming"
	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/protocol"
	"github.com/danmuck/ndnrevoke/internal/revocation"
	"github.com/danmuck/ndnrevoke/internal/security"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var revokeCmd = &cobra.Command{
	Use:   "revoke <certificate-file>",
	Short: "Sign a revocation record for a certificate and append it to the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadClientConfig(cmd)
		if err != nil {
			return err
		}
		role, err := roleFlag(cmd)
		if err != nil {
			return err
		}
		reasonText, _ := cmd.Flags().GetString("reason")
		reason, err := protocol.ParseReasonCode(reasonText)
		if err != nil {
			return err
		}
		var notBefore *time.Time
		if nb, _ := cmd.Flags().GetString("not-before"); nb != "" {
			t, err := time.Parse(time.RFC3339, nb)
			if err != nil {
				return fmt.Errorf("parse --not-before: %w", err)
			}
			notBefore = &t
		}
		cert, err := security.ReadCertificateFile(args[0])
		if err != nil {
			return err
		}
		return revoke(cfg, cert, role, reason, notBefore)
	},
}

func init() {
	revokeCmd.Flags().String("as", naming.RoleOwner.String(), "revoke as owner or issuer")
	revokeCmd.Flags().String("reason", protocol.ReasonUnspecified.String(), "unspecified|key-compromise|ca-compromise|superseded")
	revokeCmd.Flags().String("not-before", "", "RFC3339 time the revocation takes effect (defaults to now)")
}

func loadClientConfig(cmd *cobra.Command) (config.ClientConfig, error) {
	if path := configPath(cmd); path != "" {
		return config.LoadClientConfig(path)
	}
	return config.DefaultClientConfig(), nil
}

func roleFlag(cmd *cobra.Command) (naming.Role, error) {
	as, _ := cmd.Flags().GetString("as")
	switch as {
	case naming.RoleOwner.String():
		return naming.RoleOwner, nil
	case naming.RoleIssuer.String():
		return naming.RoleIssuer, nil
	default:
		return 0, fmt.Errorf("--as must be %s or %s", naming.RoleOwner, naming.RoleIssuer)
	}
}

type appendOutcome struct {
	statuses []protocol.StatusCode
	err      error
}

func revoke(cfg config.ClientConfig, cert *ndn.Data, role naming.Role, reason protocol.ReasonCode, notBefore *time.Time) error {
	if len(cfg.Identity) == 0 {
		return fmt.Errorf("client config needs an identity to publish from")
	}
	kc, validator, err := trust(cfg.KeyChainDir, cfg.TrustSchema)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n, err := attach(runCtx, cfg.HubURL, cfg.HubCAFile, cfg.Session)
	if err != nil {
		return err
	}
	defer n.close()

	done := make(chan appendOutcome, 1)
	var record *ndn.Data
	err = n.do(func() error {
		client, err := appender.NewClient(n.face, kc, validator, appender.ClientConfig{
			Prefix:  cfg.Identity,
			Signing: security.SignWithIdentity(cfg.Identity),
			Session: cfg.Session,
		})
		if err != nil {
			return err
		}
		r := revocation.NewRevoker(kc, revocation.Options{Client: client})
		if role == naming.RoleIssuer {
			record, err = r.RevokeAsIssuer(cert, reason, notBefore)
		} else {
			record, err = r.RevokeAsOwner(cert, reason, notBefore)
		}
		if err != nil {
			return err
		}
		_, err = r.PublishToLedger(cfg.Ledger, []*ndn.Data{record}, appender.Callbacks{
			OnSuccess: func(_ uint64, statuses []protocol.StatusCode) {
				done <- appendOutcome{statuses: statuses}
			},
			OnFailure: func(_ uint64, statuses []protocol.StatusCode, err error) {
				if err == nil {
					err = fmt.Errorf("ledger rejected the record")
				}
				done <- appendOutcome{statuses: statuses, err: err}
			},
			OnTimeout: func(uint64) {
				done <- appendOutcome{err: protocol.Errorf(protocol.KindTransportTimeout, "ledger %s did not answer", cfg.Ledger)}
			},
			OnNack: func(_ uint64, reason ndn.NackReason) {
				done <- appendOutcome{err: protocol.Errorf(protocol.KindTransportNack, "append nacked: %s", reason)}
			},
		})
		return err
	})
	if err != nil {
		return err
	}

	select {
	case out := <-done:
		if out.err != nil {
			color.Red("revocation of %s failed: %v %v", cert.Name, out.err, out.statuses)
			return out.err
		}
		color.Green("revoked %s", cert.Name)
		fmt.Fprintf(os.Stdout, "  record: %s\n  ledger: %s\n  status: %v\n", record.Name, cfg.Ledger, out.statuses)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
