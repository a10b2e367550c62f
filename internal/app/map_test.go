package app

import (
	"testing"
	"time"

	"postbot/internal/config"
)

func TestMapEngine(t *testing.T) {
	t.Parallel()
	off := false
	cases := []struct {
		name string
		cfg  config.Config
		want func(t *testing.T, enabled bool, workers, queue, retry int, timeout time.Duration)
	}{
		{
			name: "omitted section follows scheduler",
			cfg:  config.Config{Scheduler: config.SchedulerConfig{Enabled: true}},
			want: func(t *testing.T, enabled bool, workers, queue, retry int, timeout time.Duration) {
				if !enabled || workers != 2 || queue != 64 || retry != 0 || timeout != 0 {
					t.Fatalf("defaults: enabled=%v workers=%d queue=%d retry=%d timeout=%v", enabled, workers, queue, retry, timeout)
				}
			},
		},
		{
			name: "explicit values",
			cfg: config.Config{TaskEngine: &config.TaskEngineConfig{
				Enabled: &off, Workers: 5, QueueSize: 10, RetryMax: 2, DefaultTimeout: "30s",
			}},
			want: func(t *testing.T, enabled bool, workers, queue, retry int, timeout time.Duration) {
				if enabled || workers != 5 || queue != 10 || retry != 2 || timeout != 30*time.Second {
					t.Fatalf("explicit: enabled=%v workers=%d queue=%d retry=%d timeout=%v", enabled, workers, queue, retry, timeout)
				}
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ec, err := mapEngine(&tc.cfg)
			if err != nil {
				t.Fatalf("mapEngine: %v", err)
			}
			tc.want(t, ec.Enabled, ec.Workers, ec.QueueSize, ec.RetryMax, ec.DefaultTimeout)
		})
	}
}

func TestMapNotifierDefaultsToEnabled(t *testing.T) {
	t.Parallel()
	nc, err := mapNotifier(&config.Config{})
	if err != nil || !nc.Enabled {
		t.Fatalf("omitted notifier: %+v, %v", nc, err)
	}
	nc, err = mapNotifier(&config.Config{Notifier: &config.NotifierConfig{Enabled: false, DedupWindow: "1m"}})
	if err != nil || nc.Enabled || nc.DedupWindow != time.Minute {
		t.Fatalf("explicit notifier: %+v, %v", nc, err)
	}
}

func TestMapPublish(t *testing.T) {
	t.Parallel()
	pc, err := mapPublish(&config.Config{})
	if err != nil || pc.PollInterval != 5*time.Second || pc.PassTimeout != 0 {
		t.Fatalf("defaults: %+v, %v", pc, err)
	}
	pc, err = mapPublish(&config.Config{Scheduler: config.SchedulerConfig{PollInterval: "1m", PassTimeout: "20s", BatchLimit: 50}})
	if err != nil || pc.PollInterval != time.Minute || pc.PassTimeout != 20*time.Second || pc.BatchLimit != 50 {
		t.Fatalf("explicit: %+v, %v", pc, err)
	}
}

func TestMapDefaults(t *testing.T) {
	t.Parallel()
	d, err := mapDefaults(&config.Config{})
	if err != nil {
		t.Fatalf("mapDefaults: %v", err)
	}
	if d.Timezone != "UTC" || d.DatePattern != "YYYY-MM-DD" || d.TimePattern != "HH:MM" || d.ReminderLead != 0 {
		t.Fatalf("defaults = %+v", d)
	}

	d, err = mapDefaults(&config.Config{Defaults: config.DefaultsConfig{Timezone: "UTC+3", ReminderLead: "15m"}})
	if err != nil || d.Timezone != "UTC+3" || d.ReminderLead != 15*time.Minute {
		t.Fatalf("explicit = %+v, %v", d, err)
	}

	cfg := &config.Config{Defaults: config.DefaultsConfig{ReminderLead: "200h"}}
	if _, err := mapDefaults(cfg); err == nil {
		t.Fatalf("lead above the /settings bound accepted")
	}
	if err := validateMapped(cfg); err == nil {
		t.Fatalf("validateMapped accepted an out-of-range reminder lead")
	}
}

func TestHousekeepingSpec(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"":          defaultHousekeeping,
		"off":       "",
		"OFF":       "",
		"0 3 * * *": "0 3 * * *",
	}
	for in, want := range cases {
		cfg := &config.Config{Scheduler: config.SchedulerConfig{Housekeeping: in}}
		if got := housekeepingSpec(cfg); got != want {
			t.Fatalf("housekeepingSpec(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMapSessionsAndLogging(t *testing.T) {
	t.Parallel()
	kind, ttl, vc, err := mapSessions(&config.Config{})
	if err != nil || kind != "memory" || ttl != defaultSessionTTL || vc.KeyPrefix != "postbot" {
		t.Fatalf("sessions defaults: %q %v %+v %v", kind, ttl, vc, err)
	}
	kind, ttl, vc, err = mapSessions(&config.Config{Sessions: config.SessionsConfig{
		Store: "Valkey", TTL: "2h",
		Valkey: config.ValkeyConfig{Address: "127.0.0.1:6379", Password: "pw", KeyPrefix: "pb"},
	}})
	if err != nil || kind != "valkey" || ttl != 2*time.Hour || vc.Password != "pw" || vc.KeyPrefix != "pb" {
		t.Fatalf("sessions valkey: %q %v %+v %v", kind, ttl, vc, err)
	}

	lc := mapLogging(&config.Config{
		Telegram: config.TelegramConfig{GroupLog: "-100123"},
		Logging:  config.LoggingConfig{Level: "debug", Telegram: config.LoggingTelegram{Enabled: true, ThreadID: 7}},
	})
	if lc.Telegram.ChatID != -100123 || lc.Telegram.ThreadID != 7 || !lc.Telegram.Enabled || lc.Level != "debug" {
		t.Fatalf("logging = %+v", lc)
	}
}
