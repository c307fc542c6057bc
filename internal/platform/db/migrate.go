package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies every embedded migration that is not yet recorded in
// schema_migrations, each in its own transaction, in file name order.
func Migrate(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	if err := ensureMigrationsTable(ctx, pool); err != nil {
		return 0, err
	}

	files, err := migrationNames(migrationFiles)
	if err != nil {
		return 0, err
	}

	var applied int
	for _, file := range files {
		version := strings.TrimSuffix(file, ".sql")
		done, err := migrationApplied(ctx, pool, version)
		if err != nil {
			return applied, err
		}
		if done {
			continue
		}

		sqlBytes, err := migrationFiles.ReadFile("migrations/" + file)
		if err != nil {
			return applied, err
		}

		tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return applied, err
		}
		if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
			_ = tx.Rollback(ctx)
			return applied, fmt.Errorf("migration %s failed: %w", version, err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			_ = tx.Rollback(ctx)
			return applied, err
		}
		if err := tx.Commit(ctx); err != nil {
			return applied, err
		}
		slog.Info("migration applied", "version", version)
		applied++
	}
	return applied, nil
}

func migrationNames(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func ensureMigrationsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())")
	return err
}

func migrationApplied(ctx context.Context, pool *pgxpool.Pool, version string) (bool, error) {
	var count int
	err := pool.QueryRow(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = $1", version).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
