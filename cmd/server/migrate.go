package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"payledger/internal/domain/audit"
	"payledger/internal/domain/payroll"
	"payledger/internal/platform/config"
	cryptoutil "payledger/internal/platform/crypto"
	"payledger/internal/platform/db"
	"payledger/internal/platform/jobs"
)

const cliActor = "cli"

func init() {
	rootCmd.AddCommand(dbMigrateCmd)
	rootCmd.AddCommand(migrateLegacyCmd)

	migrateLegacyCmd.Flags().StringP("file", "f", "", "JSON export of legacy employees to import before migrating")
	migrateLegacyCmd.Flags().Bool("import-only", false, "Import the file without upgrading records")
}

var dbMigrateCmd = &cobra.Command{
	Use:   "db-migrate",
	Short: "Apply pending SQL schema migrations",
	RunE:  runDBMigrate,
}

var migrateLegacyCmd = &cobra.Command{
	Use:   "migrate-legacy",
	Short: "Upgrade month-only salary records to typed periods",
	Long: `Upgrade every legacy month-only salary record in the database. With
--file, employees from a JSON export of the old system are imported first
with their identities preserved. Both steps are safe to rerun.`,
	RunE: runMigrateLegacy,
}

func runDBMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	pool, err := db.Connect(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	applied, err := db.Migrate(cmd.Context(), pool)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
	return nil
}

func runMigrateLegacy(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	importOnly, _ := cmd.Flags().GetBool("import-only")
	if importOnly && file == "" {
		return fmt.Errorf("--import-only requires --file")
	}

	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	crypto, err := cryptoutil.New(cfg.DataEncryptionKey)
	if err != nil {
		return fmt.Errorf("encryption key: %w", err)
	}
	ctx := cmd.Context()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()
	if _, err := db.Migrate(ctx, pool); err != nil {
		return err
	}

	svc := payroll.NewService(payroll.NewStore(pool, crypto), payroll.Options{
		Audit:  audit.New(pool),
		Logger: slog.Default(),
	})
	out := json.NewEncoder(cmd.OutOrStdout())
	out.SetIndent("", "  ")

	if file != "" {
		employees, err := readLegacyExport(file)
		if err != nil {
			return err
		}
		summary, err := svc.ImportLegacy(ctx, employees, cliActor)
		if err != nil {
			return err
		}
		if err := out.Encode(summary); err != nil {
			return err
		}
	}
	if importOnly {
		return nil
	}

	runner := jobs.New(pool, nil)
	summary, err := runner.RunNow(ctx, jobs.JobLegacyMigration, func(ctx context.Context) (any, error) {
		return svc.MigrateAll(ctx, cliActor)
	})
	if err != nil {
		return err
	}
	return out.Encode(summary)
}

func readLegacyExport(path string) ([]payroll.Employee, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var employees []payroll.Employee
	if err := json.Unmarshal(raw, &employees); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return employees, nil
}
