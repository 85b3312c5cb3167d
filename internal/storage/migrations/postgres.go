package migrations

import (
	"context"
	"fmt"
	"strings"

	"trade-analytics-lab/internal/storage/postgres"
)

const createVersionsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version     TEXT PRIMARY KEY,
		applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// RunPostgresMigrations applies embedded SQL files in lexical order. Each
// file runs in its own transaction and is recorded in schema_migrations so
// it is applied once. Returns the files applied by this call.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) ([]string, error) {
	if _, err := pool.Exec(ctx, createVersionsTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	files, err := sqlFiles(PostgresFS, "postgres")
	if err != nil {
		return nil, fmt.Errorf("read embedded postgres migrations: %w", err)
	}

	var applied []string
	for _, f := range files {
		if strings.TrimSpace(f.body) == "" {
			continue
		}
		ok, err := applyPostgres(ctx, pool, f)
		if err != nil {
			return applied, err
		}
		if ok {
			applied = append(applied, f.name)
		}
	}
	return applied, nil
}

func applyPostgres(ctx context.Context, pool *postgres.Pool, f sqlFile) (bool, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin migration %s: %w", f.name, err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, f.name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", f.name, err)
	}
	if exists {
		return false, nil
	}

	if _, err := tx.Exec(ctx, f.body); err != nil {
		return false, fmt.Errorf("apply migration %s: %w", f.name, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, f.name); err != nil {
		return false, fmt.Errorf("record migration %s: %w", f.name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit migration %s: %w", f.name, err)
	}
	return true, nil
}
