package app

import (
	"strconv"
	"strings"
	"time"

	"postbot/internal/config"
	"postbot/internal/notifier"
	"postbot/internal/observability/ops"
	"postbot/internal/prefs"
	"postbot/internal/publish"
	"postbot/internal/router"
	"postbot/internal/storage"
	"postbot/internal/task/engine"
	"postbot/internal/task/scheduler"
	"postbot/internal/transport/telegram"
	"postbot/internal/valkey"
	"postbot/pkg/logx"
)

// Defaults that are not owned by a component package.
const (
	defaultSessionTTL   = 24 * time.Hour
	defaultHousekeeping = "@every 10m"
	defaultDatePattern  = "YYYY-MM-DD"
	defaultTimePattern  = "HH:MM"
)

func mapLogging(cfg *config.Config) logx.Config {
	var chatID int64
	if s := strings.TrimSpace(cfg.Telegram.GroupLog); s != "" {
		chatID, _ = strconv.ParseInt(s, 10, 64)
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     chatID,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapTelegram(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.Duration("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: cfg.Telegram.Token, PollTimeout: poll, APIURL: cfg.Telegram.APIURL}, nil
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.Duration("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:       strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:         strings.TrimSpace(sc.Path),
		DSN:          strings.TrimSpace(sc.DSN),
		BusyTimeout:  busy,
		MaxOpenConns: sc.MaxOpenConns,
	}, nil
}

// mapEngine applies the engine defaults. An omitted task_engine section
// follows scheduler.enabled.
func mapEngine(cfg *config.Config) (engine.Config, error) {
	out := engine.Config{
		Enabled:     cfg.Scheduler.Enabled,
		Workers:     2,
		QueueSize:   64,
		HistorySize: 100,
	}
	te := cfg.TaskEngine
	if te == nil {
		return out, nil
	}
	if te.Enabled != nil {
		out.Enabled = *te.Enabled
	}
	if te.Workers > 0 {
		out.Workers = te.Workers
	}
	if te.QueueSize > 0 {
		out.QueueSize = te.QueueSize
	}
	if te.HistorySize > 0 {
		out.HistorySize = te.HistorySize
	}
	out.RetryMax = te.RetryMax
	var err error
	if out.DefaultTimeout, err = config.Duration("task_engine.default_timeout", te.DefaultTimeout, 0); err != nil {
		return engine.Config{}, err
	}
	if out.MaxQueueDelay, err = config.Duration("task_engine.max_queue_delay", te.MaxQueueDelay, 0); err != nil {
		return engine.Config{}, err
	}
	return out, nil
}

func mapScheduler(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Enabled: cfg.Scheduler.Enabled, Timezone: strings.TrimSpace(cfg.Scheduler.Timezone)}
}

func mapPublish(cfg *config.Config) (publish.Config, error) {
	every, err := config.Duration("scheduler.poll_interval", cfg.Scheduler.PollInterval, 5*time.Second)
	if err != nil {
		return publish.Config{}, err
	}
	timeout, err := config.Duration("scheduler.pass_timeout", cfg.Scheduler.PassTimeout, 0)
	if err != nil {
		return publish.Config{}, err
	}
	return publish.Config{PollInterval: every, PassTimeout: timeout, BatchLimit: cfg.Scheduler.BatchLimit}, nil
}

// housekeepingSpec returns the session sweep schedule; "" means disabled.
func housekeepingSpec(cfg *config.Config) string {
	s := strings.TrimSpace(cfg.Scheduler.Housekeeping)
	switch {
	case s == "":
		return defaultHousekeeping
	case strings.EqualFold(s, "off"):
		return ""
	}
	return s
}

// mapNotifier defaults to enabled when the section is omitted.
func mapNotifier(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	if n == nil {
		return notifier.Config{Enabled: true}, nil
	}
	out := notifier.Config{
		Enabled:         n.Enabled,
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		DedupMaxEntries: n.DedupMaxEntries,
		PersistDedup:    n.PersistDedup,
	}
	var err error
	if out.RetryBase, err = config.Duration("notifier.retry_base", n.RetryBase, 0); err != nil {
		return notifier.Config{}, err
	}
	if out.RetryMaxDelay, err = config.Duration("notifier.retry_max_delay", n.RetryMaxDelay, 0); err != nil {
		return notifier.Config{}, err
	}
	if out.DedupWindow, err = config.Duration("notifier.dedup_window", n.DedupWindow, 0); err != nil {
		return notifier.Config{}, err
	}
	if out.SendTimeout, err = config.Duration("notifier.send_timeout", n.SendTimeout, 0); err != nil {
		return notifier.Config{}, err
	}
	return out, nil
}

func mapRouter(cfg *config.Config) (router.Config, error) {
	timeout, err := config.Duration("router.timeout", cfg.Router.Timeout, 30*time.Second)
	if err != nil {
		return router.Config{}, err
	}
	return router.Config{Workers: cfg.Router.Workers, QueueSize: cfg.Router.QueueSize, Timeout: timeout}, nil
}

// mapDefaults builds the preference defaults and validates them the way a
// /settings change would be.
func mapDefaults(cfg *config.Config) (prefs.Defaults, error) {
	d := cfg.Defaults
	lead, err := config.Duration("defaults.reminder_lead", d.ReminderLead, 0)
	if err != nil {
		return prefs.Defaults{}, err
	}
	out := prefs.Defaults{
		Timezone:     strings.TrimSpace(d.Timezone),
		DatePattern:  strings.TrimSpace(d.DateFormat),
		TimePattern:  strings.TrimSpace(d.TimeFormat),
		ReminderLead: lead,
	}
	if out.Timezone == "" {
		out.Timezone = "UTC"
	}
	if out.DatePattern == "" {
		out.DatePattern = defaultDatePattern
	}
	if out.TimePattern == "" {
		out.TimePattern = defaultTimePattern
	}
	if err := out.Validate(); err != nil {
		return prefs.Defaults{}, err
	}
	return out, nil
}

func mapSessions(cfg *config.Config) (store string, ttl time.Duration, vc valkey.Config, err error) {
	sc := cfg.Sessions
	if ttl, err = config.Duration("sessions.ttl", sc.TTL, defaultSessionTTL); err != nil {
		return "", 0, valkey.Config{}, err
	}
	connect, err := config.Duration("sessions.valkey.connect_timeout", sc.Valkey.ConnectTimeout, valkey.DefaultConnectTimeout)
	if err != nil {
		return "", 0, valkey.Config{}, err
	}
	store = strings.ToLower(strings.TrimSpace(sc.Store))
	if store == "" {
		store = "memory"
	}
	prefix := sc.Valkey.KeyPrefix
	if prefix == "" {
		prefix = "postbot"
	}
	vc = valkey.Config{
		Address:        sc.Valkey.Address,
		Password:       sc.Valkey.Password,
		DB:             sc.Valkey.DB,
		KeyPrefix:      prefix,
		ConnectTimeout: connect,
	}
	return store, ttl, vc, nil
}

func mapOps(cfg *config.Config) (ops.Config, error) {
	o := cfg.Ops
	read, err := config.Duration("ops.read_timeout", o.ReadTimeout, 10*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	idle, err := config.Duration("ops.idle_timeout", o.IdleTimeout, time.Minute)
	if err != nil {
		return ops.Config{}, err
	}
	return ops.Config{
		Enabled:       o.Enabled,
		Addr:          o.Addr,
		Token:         o.Token,
		AllowInsecure: o.AllowInsecure,
		Pprof:         o.Pprof,
		ReadTimeout:   read,
		IdleTimeout:   idle,
	}, nil
}

// validateMapped rejects configs that pass field validation but cannot be
// mapped onto the components (e.g. defaults outside the /settings bounds).
func validateMapped(cfg *config.Config) error {
	if _, err := mapDefaults(cfg); err != nil {
		return err
	}
	if _, err := mapEngine(cfg); err != nil {
		return err
	}
	if _, err := mapNotifier(cfg); err != nil {
		return err
	}
	if _, err := mapPublish(cfg); err != nil {
		return err
	}
	_, err := mapOps(cfg)
	return err
}
