package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func verifyCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <object-id>...",
		Short: "Check objects against the ledger and the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			invalid := 0
			for _, id := range args {
				res, err := a.verifier.Verify(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !res.IntegrityValid {
					invalid++
				}
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d objects failed verification", invalid, len(args))
			}
			return nil
		},
	}
}

func sweepCmd(g *globalFlags) *cobra.Command {
	var repair bool
	cmd := &cobra.Command{
		Use:   "sweep <owner-id>",
		Short: "Verify every indexed object of an owner and report dangling pointers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			report, err := a.verifier.Sweep(cmd.Context(), args[0], repair)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "delete index pointers to burned or unknown objects")
	return cmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
