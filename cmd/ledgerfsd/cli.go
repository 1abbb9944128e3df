package main

import (
	"flag"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bitfsorg/ledgerfs-go/config"
)

const version = "0.1.0"

// globalFlags are the flags shared by every command. Empty values leave the
// config file and environment in charge.
type globalFlags struct {
	dataDir  string
	logLevel string
	ledger   string
	index    string
}

func newCLI() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "ledgerfsd",
		Short:         "Ledger-backed folder and file store",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.dataDir, "datadir", config.DefaultDataDir(), "data directory")
	root.PersistentFlags().StringVar(&g.logLevel, "loglevel", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&g.ledger, "ledger", "", "ledger backend (bsv, memory)")
	root.PersistentFlags().StringVar(&g.index, "index", "", "index backend (bolt, postgres, memory)")

	root.AddCommand(
		serveCmd(g),
		verifyCmd(g),
		sweepCmd(g),
		keygenCmd(g),
		configCmd(g),
	)
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	return root
}

// load reads the configuration for dataDir and applies flag overrides.
func (g *globalFlags) load() (config.Config, error) {
	cfg, err := config.Load(g.dataDir)
	if err != nil {
		return cfg, err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if g.ledger != "" {
		cfg.Ledger = g.ledger
	}
	if g.index != "" {
		cfg.Index = g.index
	}
	return cfg, config.ValidateConfig(cfg)
}
