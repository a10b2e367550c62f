package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
)

// SchemaVersion is the newest schema shipped in schema/.
const SchemaVersion = 1

//go:embed schema/*.sql
var schemaFS embed.FS

// migrate brings the database to SchemaVersion. Each version is applied in
// its own transaction and recorded in schema_migrations.
func migrate(ctx context.Context, db *sql.DB, d dialect) (applied int, err error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)`); err != nil {
		return 0, fmt.Errorf("migrate: create schema_migrations: %w", err)
	}
	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return 0, fmt.Errorf("migrate: read version: %w", err)
	}
	for v := current + 1; v <= SchemaVersion; v++ {
		body, err := schemaFS.ReadFile(fmt.Sprintf("schema/%s_%03d.sql", d.name, v))
		if err != nil {
			return applied, fmt.Errorf("migrate: load v%d: %w", v, err)
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return applied, fmt.Errorf("migrate: begin v%d: %w", v, err)
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("migrate: apply v%d: %w", v, err)
		}
		if _, err := tx.ExecContext(ctx, d.rebind(`INSERT INTO schema_migrations(version) VALUES (?)`), v); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("migrate: record v%d: %w", v, err)
		}
		if err := tx.Commit(); err != nil {
			return applied, fmt.Errorf("migrate: commit v%d: %w", v, err)
		}
		applied++
	}
	return applied, nil
}

// Migrate opens the configured SQL store, applies migrations and closes it.
// It reports how many versions were applied.
func Migrate(ctx context.Context, cfg Config) (int, error) {
	db, d, err := openDB(cfg)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	return migrate(ctx, db, d)
}
