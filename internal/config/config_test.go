package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"postbot/pkg/logx"
)

const baseYAML = `
telegram:
  token: file-token
  owner_user_ids: [42]
logging:
  level: info
  console: true
scheduler:
  enabled: true
  poll_interval: 5s
storage:
  driver: sqlite
  path: ./postbot.db
defaults:
  timezone: Europe/Berlin
  date_format: DD.MM.YYYY
  time_format: HH:MM
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func envMap(m map[string]string) LookupEnv {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadYAMLWithEnvOverrides(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "postbot.yaml", baseYAML)
	m := NewManager(p)
	m.SetEnv(envMap(map[string]string{
		EnvTelegramToken:  "env-token",
		EnvStorageDSN:     "postgres://u@h/db",
		EnvValkeyPassword: "  ",
	}))

	cfg, err := m.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("token = %q, want env override", cfg.Telegram.Token)
	}
	if cfg.Storage.DSN != "postgres://u@h/db" {
		t.Fatalf("dsn = %q", cfg.Storage.DSN)
	}
	if cfg.Sessions.Valkey.Password != "" {
		t.Fatalf("blank env value must not override, got %q", cfg.Sessions.Valkey.Password)
	}
	if len(cfg.Telegram.OwnerUserIDs) != 1 || cfg.Telegram.OwnerUserIDs[0] != 42 {
		t.Fatalf("owners = %v", cfg.Telegram.OwnerUserIDs)
	}
	if cfg.Defaults.DateFormat != "DD.MM.YYYY" || !cfg.Scheduler.Enabled {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if m.Get() != cfg {
		t.Fatalf("Load must commit the config")
	}
}

func TestParseIsStrict(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name, file, body string
	}{
		{"unknown yaml key", "c.yaml", baseYAML + "plugins: {}\n"},
		{"unknown nested key", "c.json", `{"telegram":{"token":"x","chat":1}}`},
		{"trailing json", "c.json", `{"telegram":{"token":"x"}} {}`},
		{"broken yaml", "c.yml", "telegram: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := NewManager(writeFile(t, t.TempDir(), tc.file, tc.body))
			m.SetEnv(envMap(nil))
			if _, err := m.Parse(); err == nil {
				t.Fatalf("Parse accepted %q", tc.body)
			}
		})
	}
}

func valid() Config {
	return Config{
		Telegram: TelegramConfig{Token: "t", OwnerUserIDs: []int64{1}},
		Storage:  StorageConfig{Driver: "sqlite", Path: "x.db"},
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	off := false
	cases := []struct {
		name   string
		mutate func(c *Config)
		field  string // substring of the error; "" means valid
	}{
		{"minimal", func(*Config) {}, ""},
		{"memory store", func(c *Config) { c.Storage = StorageConfig{Driver: "memory"} }, ""},
		{"upper case level", func(c *Config) { c.Logging.Level = "WARN" }, ""},
		{"no token", func(c *Config) { c.Telegram.Token = "" }, "token"},
		{"bad owner", func(c *Config) { c.Telegram.OwnerUserIDs = []int64{0} }, "owner_user_ids"},
		{"bad group log", func(c *Config) { c.Telegram.GroupLog = "@logs" }, "group_log"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "level"},
		{"file without path", func(c *Config) { c.Logging.File.Enabled = true }, "path"},
		{"bad poll", func(c *Config) { c.Scheduler.PollInterval = "often" }, "poll_interval"},
		{"negative timeout", func(c *Config) { c.Scheduler.PassTimeout = "-1s" }, "pass_timeout"},
		{"bad cron", func(c *Config) { c.Scheduler.Housekeeping = "every day" }, "housekeeping"},
		{"bad tz", func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, "timezone"},
		{"sqlite without path", func(c *Config) { c.Storage.Path = "" }, "path"},
		{"postgres without dsn", func(c *Config) { c.Storage = StorageConfig{Driver: "postgres"} }, "dsn"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }, "driver"},
		{"valkey without address", func(c *Config) { c.Sessions.Store = "valkey" }, "address"},
		{"memory ignores valkey", func(c *Config) { c.Sessions.Valkey.DB = -1 }, ""},
		{"bad date format", func(c *Config) { c.Defaults.DateFormat = "DD.MM" }, "date_format"},
		{"time format without minutes", func(c *Config) { c.Defaults.TimeFormat = "HH" }, "time_format"},
		{"fixed width time format", func(c *Config) { c.Defaults.TimeFormat = "HHMM" }, ""},
		{"negative engine workers", func(c *Config) { c.TaskEngine = &TaskEngineConfig{Workers: -1} }, "workers"},
		{"engine off under scheduler", func(c *Config) {
			c.Scheduler.Enabled = true
			c.TaskEngine = &TaskEngineConfig{Enabled: &off}
		}, "task_engine.enabled"},
		{"bad ops addr", func(c *Config) { c.Ops.Addr = "nowhere" }, "addr"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := valid()
			tc.mutate(&c)
			err := c.Validate()
			if tc.field == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.field) {
				t.Fatalf("Validate = %v, want error mentioning %q", err, tc.field)
			}
		})
	}
}

func TestSummarizeHidesSecrets(t *testing.T) {
	t.Parallel()
	a := valid()
	b := valid()
	b.Telegram.Token = "rotated-secret"
	b.Scheduler.PollInterval = "10s"
	b.Storage.Path = "other.db"

	ch := Summarize(&a, &b)
	want := []string{"scheduler", "storage", "telegram.token"}
	if strings.Join(ch.Sections, ",") != strings.Join(want, ",") {
		t.Fatalf("sections = %v, want %v", ch.Sections, want)
	}
	if got := strings.Join(ch.NeedsRestart(), ","); got != "storage,telegram.token" {
		t.Fatalf("NeedsRestart = %q", got)
	}
	var buf bytes.Buffer
	logx.NewWriter(&buf, "debug").Info("config reloaded", ch.Attrs...)
	if strings.Contains(buf.String(), "rotated-secret") {
		t.Fatalf("attrs leak the token: %s", buf.String())
	}
	if !Summarize(&a, &a).Empty() {
		t.Fatalf("identical configs must summarize empty")
	}
}

func TestWatchPublishesAcceptedReloads(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "postbot.yaml", baseYAML)
	m := NewManager(p)
	m.SetEnv(envMap(nil))
	if _, err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(4)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	time.Sleep(200 * time.Millisecond)

	// Invalid content is rejected and the previous config stays current.
	writeFile(t, dir, "postbot.yaml", strings.Replace(baseYAML, "poll_interval: 5s", "poll_interval: soon", 1))
	time.Sleep(700 * time.Millisecond)
	if got := m.Get().Scheduler.PollInterval; got != "5s" {
		t.Fatalf("rejected reload committed poll_interval %q", got)
	}

	writeFile(t, dir, "postbot.yaml", strings.Replace(baseYAML, "poll_interval: 5s", "poll_interval: 15s", 1))
	select {
	case cfg := <-sub:
		if cfg.Scheduler.PollInterval != "15s" {
			t.Fatalf("published poll_interval %q", cfg.Scheduler.PollInterval)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no reload published")
	}

	cancel()
	<-done
}

func TestDuration(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw  string
		want time.Duration
		err  bool
	}{
		{"", time.Minute, false},
		{"0s", time.Minute, false},
		{" 90s ", 90 * time.Second, false},
		{"-1s", 0, true},
		{"soon", 0, true},
	}
	for _, tc := range cases {
		got, err := Duration("x", tc.raw, time.Minute)
		if (err != nil) != tc.err || got != tc.want {
			t.Fatalf("Duration(%q) = %v, %v", tc.raw, got, err)
		}
	}
}
