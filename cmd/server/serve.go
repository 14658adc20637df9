package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ridehail/internal/app"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != "" {
			cfg.Server.Port = servePort
		}

		srv, err := app.NewServer(ctx, cfg)
		if err != nil {
			return err
		}
		defer srv.Close()

		if err := srv.Run(ctx); err != nil {
			return err
		}
		zap.L().Info("server exited")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (overrides SERVER_PORT)")
	rootCmd.AddCommand(serveCmd)
}
