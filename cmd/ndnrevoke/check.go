package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/ndnrevoke/internal/checker"
	"github.com/danmuck/ndnrevoke/internal/config"
	"github.com/danmuck/ndnrevoke/internal/naming"
	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/revocation"
	"github.com/danmuck/ndnrevoke/internal/security"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var errRevoked = errors.New("certificate revoked")

var checkCmd = &cobra.Command{
	Use:   "check <certificate-file|certificate-name>",
	Short: "Ask the ledger whether a certificate has been revoked",
	Long: `Ask the ledger whether a certificate has been revoked by its owner or issuer.

Exits 0 when the certificate is valid, 1 when it is revoked or the check failed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadClientConfig(cmd)
		if err != nil {
			return err
		}
		role, err := roleFlag(cmd)
		if err != nil {
			return err
		}
		cert, err := certificateArg(args[0])
		if err != nil {
			return err
		}
		return check(cfg, cert, role)
	},
}

func init() {
	checkCmd.Flags().String("as", naming.RoleOwner.String(), "look for a record published by the owner or the issuer")
}

// certificateArg accepts a certificate name or a file written by keygen. A
// path that does not exist is taken as a name only if it has the
// certificate name layout.
func certificateArg(arg string) (ndn.Name, error) {
	if strings.HasPrefix(arg, "/") || strings.HasPrefix(arg, "ndn:") {
		_, statErr := os.Stat(arg)
		if statErr != nil {
			name, err := ndn.ParseName(arg)
			if err != nil || naming.ValidateCertificateName(name) != nil {
				return nil, fmt.Errorf("%s is neither a certificate file nor a certificate name: %w", arg, statErr)
			}
			return name, nil
		}
	}
	cert, err := security.ReadCertificateFile(arg)
	if err != nil {
		return nil, err
	}
	return cert.Name, nil
}

type checkOutcome struct {
	nack   *revocation.Nack
	record *revocation.Record
	err    error
}

func check(cfg config.ClientConfig, cert ndn.Name, role naming.Role) error {
	_, validator, err := trust(cfg.KeyChainDir, cfg.TrustSchema)
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

	done := make(chan checkOutcome, 1)
	started := time.Now()
	err = n.do(func() error {
		c := checker.New(n.face, validator, checker.Config{Session: cfg.Session})
		_, err := c.Check(cfg.Ledger, cert, role, checker.Callbacks{
			OnValid:   func(_ ndn.Name, nack *revocation.Nack) { done <- checkOutcome{nack: nack} },
			OnRevoked: func(_ ndn.Name, rec *revocation.Record) { done <- checkOutcome{record: rec} },
			OnFailure: func(_ ndn.Name, err error) { done <- checkOutcome{err: err} },
		})
		return err
	})
	if err != nil {
		return err
	}

	select {
	case out := <-done:
		elapsed := time.Since(started).Round(time.Millisecond)
		switch {
		case out.err != nil:
			color.Yellow("UNKNOWN %s (%s)", cert, elapsed)
			return out.err
		case out.record != nil:
			color.Red("REVOKED %s (%s)", cert, elapsed)
			fmt.Fprintf(os.Stdout, "  by:     %s\n  reason: %s\n  since:  %s\n",
				out.record.Revoker, out.record.Reason,
				time.UnixMilli(int64(out.record.RevocationTimestamp)).UTC().Format(time.RFC3339))
			return errRevoked
		default:
			color.Green("VALID %s (%s)", cert, elapsed)
			fmt.Fprintf(os.Stdout, "  ledger: %s\n  answer: %s\n", cfg.Ledger, out.nack.Data.Name)
			return nil
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
