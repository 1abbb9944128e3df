package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bitfsorg/ledgerfs-go/keycustody"
	"github.com/bitfsorg/ledgerfs-go/tx"
)

func keygenCmd(g *globalFlags) *cobra.Command {
	var ref string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a sealed operator key and print its funding address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if ref == "" {
				ref = cfg.OperatorKey
			}
			if cfg.OperatorPassphrase == "" {
				return fmt.Errorf("set LEDGERFS_OPERATOR_PASSPHRASE to seal the key")
			}

			pub, err := keycustody.NewFileCustody(cfg.KeyDirOrDefault(), cfg.OperatorPassphrase).Generate(ref)
			if err != nil {
				return err
			}
			addr, err := tx.AddressFor(pub, cfg.Network == "mainnet")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "key:     %s\n", ref)
			fmt.Fprintf(out, "pubkey:  %s\n", hex.EncodeToString(pub.Compressed()))
			fmt.Fprintf(out, "address: %s\n", addr)
			return nil
		},
	}
	cmd.Flags().StringVar(&ref, "ref", "", "custody reference (default: operatorkey from config)")
	return cmd
}
