package storage

import (
	"fmt"
	"strings"

	"postbot/pkg/logx"
)

// Open initializes the configured store and applies pending migrations.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "postgresql", "pg":
		return openPostgres(cfg, log)
	case "memory", "mem":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
