package app

import (
	"context"

	"postbot/internal/config"
	"postbot/internal/storage"
	"postbot/pkg/logx"
)

// Check loads and validates the config at path without opening anything.
func Check(ctx context.Context, path string) (*config.Config, error) {
	cfgm := config.NewManager(path)
	cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validateMapped(cfg) })
	return cfgm.Load(ctx)
}

// Migrate opens the configured store, which applies pending schema
// migrations, and closes it again.
func Migrate(ctx context.Context, path string, log logx.Logger) (driver string, err error) {
	cfg, err := Check(ctx, path)
	if err != nil {
		return "", err
	}
	sc, err := mapStorage(cfg)
	if err != nil {
		return "", err
	}
	st, err := storage.Open(sc, log.With(logx.Component("storage")))
	if err != nil {
		return sc.Driver, err
	}
	if err := st.Ping(ctx); err != nil {
		_ = st.Close()
		return sc.Driver, err
	}
	return sc.Driver, st.Close()
}
