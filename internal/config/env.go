package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Secrets that may live outside the config file.
const (
	EnvTelegramToken  = "POSTBOT_TELEGRAM_TOKEN"
	EnvStorageDSN     = "POSTBOT_STORAGE_DSN"
	EnvValkeyPassword = "POSTBOT_VALKEY_PASSWORD"
)

// LookupEnv mirrors os.LookupEnv; tests swap it per manager.
type LookupEnv func(key string) (string, bool)

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are skipped and variables already set are kept.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// applyEnv overrides secrets from the environment. A set but empty
// variable does not clear the file value.
func applyEnv(cfg *Config, lookup LookupEnv) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	if v, ok := get(EnvTelegramToken); ok {
		cfg.Telegram.Token = v
	}
	if v, ok := get(EnvStorageDSN); ok {
		cfg.Storage.DSN = v
	}
	if v, ok := get(EnvValkeyPassword); ok {
		cfg.Sessions.Valkey.Password = v
	}
}
