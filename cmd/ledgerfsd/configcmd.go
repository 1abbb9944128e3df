package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bitfsorg/ledgerfs-go/config"
)

func configCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "init",
			Short: "Write a default configuration file",
			RunE: func(cmd *cobra.Command, _ []string) error {
				path := config.ConfigPath(g.dataDir)
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists", path)
				} else if !errors.Is(err, os.ErrNotExist) {
					return err
				}
				cfg := config.DefaultConfig()
				cfg.DataDir = g.dataDir
				if err := config.SaveConfig(path, cfg); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := g.load()
				if err != nil {
					return err
				}
				cfg.RPCPass = redact(cfg.RPCPass)
				cfg.OperatorPassphrase = redact(cfg.OperatorPassphrase)
				cfg.JWTSecret = redact(cfg.JWTSecret)
				cfg.PostgresDSN = redact(cfg.PostgresDSN)
				return printJSON(cmd.OutOrStdout(), cfg)
			},
		},
	)
	return cmd
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
