package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/danmuck/ndnrevoke/internal/config"
	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/security"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen <identity>",
	Short: "Create a key and certificate for an identity in the keychain",
	Long: `Create an Ed25519 key and a certificate for <identity>.

The certificate is self-signed unless --issuer names an identity already in
the keychain. Key and certificate files are written to the keychain directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		issuer, _ := cmd.Flags().GetString("issuer")
		return keygen(dir, args[0], issuer)
	},
}

func init() {
	keygenCmd.Flags().String("dir", config.DefaultKeyDir, "keychain directory")
	keygenCmd.Flags().String("issuer", "", "identity that signs the new certificate")
}

func keygen(dir, identity, issuer string) error {
	name, err := ndn.ParseName(identity)
	if err != nil {
		return err
	}
	kc := security.NewKeyChain()
	if err := kc.Load(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load keychain %s: %w", dir, err)
	}
	var signer *security.Identity
	if issuer != "" {
		issuerName, err := ndn.ParseName(issuer)
		if err != nil {
			return err
		}
		var ok bool
		if signer, ok = kc.Identity(issuerName); !ok {
			return fmt.Errorf("issuer %s not in keychain %s", issuerName, dir)
		}
	}
	id, err := kc.CreateIdentity(name, signer)
	if err != nil {
		return err
	}
	if err := kc.Save(dir); err != nil {
		return err
	}
	color.Green("created %s", id.CertName())
	fmt.Fprintf(os.Stdout, "  keychain: %s\n", dir)
	return nil
}
