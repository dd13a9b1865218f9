// Command ndnrevoke runs the hub and the ledger, and revokes or checks
// certificates against a ledger.
package main

import (
	"fmt"
	"os"

	"github.com/danmuck/ndnrevoke/internal/observability"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "ndnrevoke",
	Short:         "NDN certificate revocation ledger and tools",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		observability.InitLogger("ndnrevoke-" + cmd.Name())
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to a TOML config file (defaults apply when empty)")
	rootCmd.AddCommand(hubCmd, ledgerCmd, keygenCmd, revokeCmd, checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ndnrevoke: %v\n", err)
		os.Exit(1)
	}
}
