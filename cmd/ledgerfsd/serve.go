package main

import (
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/bitfsorg/ledgerfs-go/httpapi"
)

func serveCmd(g *globalFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.ListenAddr = listen
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if cfg.LogLevel != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}
			srv, err := httpapi.New(httpapi.Config{
				Manager:   a.manager,
				Verifier:  a.verifier,
				JWTSecret: cfg.JWTSecret,
				Logger:    a.log.WithField("component", "http"),
				Metrics:   a.metrics,
			})
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				a.log.Warn("jwtsecret is not set; bearer tokens are trusted without signature checks")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.Serve(ctx, cfg.ListenAddr)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	return cmd
}
