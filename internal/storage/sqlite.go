package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"postbot/pkg/logx"
)

func openSQLiteDB(cfg Config) (*sql.DB, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: sqlite serializes writers anyway and this keeps
	// transactions from hitting SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	return db, nil
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	db, err := openSQLiteDB(cfg)
	if err != nil {
		return nil, err
	}
	if n, err := migrate(context.Background(), db, sqliteDialect); err != nil {
		_ = db.Close()
		return nil, err
	} else if n > 0 {
		log.Info("storage migrated", logx.String("driver", "sqlite"), logx.Int("versions", n))
	}
	return newSQLStore(db, sqliteDialect, log), nil
}
