package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"payledger/internal/app/server"
	"payledger/internal/platform/config"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address, overrides APP_ADDR")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Addr = addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := server.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	return app.Run(ctx)
}
