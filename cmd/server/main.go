package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "server",
	Short:         "Payroll record ledger",
	Long:          `Employee salary ledger with OTP-authorized edits and legacy record migration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}
