package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"postbot/pkg/logx"
)

func openPostgresDB(cfg Config) (*sql.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	n := cfg.MaxOpenConns
	if n <= 0 {
		n = 4
	}
	db.SetMaxOpenConns(n)
	db.SetMaxIdleConns(n)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	db, err := openPostgresDB(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if n, err := migrate(ctx, db, postgresDialect); err != nil {
		_ = db.Close()
		return nil, err
	} else if n > 0 {
		log.Info("storage migrated", logx.String("driver", "postgres"), logx.Int("versions", n))
	}
	return newSQLStore(db, postgresDialect, log), nil
}

// openDB opens the raw database for the configured SQL driver.
func openDB(cfg Config) (*sql.DB, dialect, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite", "sqlite3":
		db, err := openSQLiteDB(cfg)
		return db, sqliteDialect, err
	case "postgres", "postgresql", "pg":
		db, err := openPostgresDB(cfg)
		return db, postgresDialect, err
	}
	return nil, dialect{}, fmt.Errorf("driver %q has no schema to migrate", cfg.Driver)
}
