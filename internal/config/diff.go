package config

import (
	"reflect"
	"sort"
	"strings"

	"postbot/pkg/logx"
)

// restartOnly lists sections whose changes take effect on the next start.
var restartOnly = map[string]bool{"storage": true, "sessions": true, "telegram.token": true, "router": true}

// Change summarizes a reload for logging. Attrs never carry secrets.
type Change struct {
	Sections []string
	Attrs    []logx.Field
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

// NeedsRestart returns the changed sections a reload cannot apply.
func (c Change) NeedsRestart() []string {
	var out []string
	for _, s := range c.Sections {
		if restartOnly[s] {
			out = append(out, s)
		}
	}
	return out
}

// Summarize compares two configs section by section.
func Summarize(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, attrs ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		ch.Attrs = append(ch.Attrs, attrs...)
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token {
		mark("telegram.token")
	}
	ot.Token, nt.Token = "", ""
	if !reflect.DeepEqual(ot, nt) {
		mark("telegram",
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.String("telegram.poll_timeout", strings.TrimSpace(nt.PollTimeout)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nt.GroupLog) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		mark("logging",
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		s := newCfg.Scheduler
		mark("scheduler",
			logx.Bool("scheduler.enabled", s.Enabled),
			logx.String("scheduler.timezone", s.Timezone),
			logx.String("scheduler.poll_interval", s.PollInterval),
			logx.String("scheduler.housekeeping", s.Housekeeping),
		)
	}

	if !reflect.DeepEqual(deref(oldCfg.TaskEngine), deref(newCfg.TaskEngine)) {
		te := deref(newCfg.TaskEngine)
		mark("task_engine",
			logx.Int("task_engine.workers", te.Workers),
			logx.Int("task_engine.queue_size", te.QueueSize),
			logx.String("task_engine.default_timeout", te.DefaultTimeout),
		)
	}

	if !reflect.DeepEqual(deref(oldCfg.Notifier), deref(newCfg.Notifier)) {
		n := deref(newCfg.Notifier)
		mark("notifier",
			logx.Bool("notifier.enabled", newCfg.Notifier == nil || n.Enabled),
			logx.Int("notifier.rate_per_sec", n.RatePerSec),
			logx.Bool("notifier.persist_dedup", n.PersistDedup),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		ns := newCfg.Storage
		mark("storage",
			logx.String("storage.driver", ns.Driver),
			logx.Bool("storage.dsn_set", ns.DSN != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Sessions, newCfg.Sessions) {
		mark("sessions", logx.String("sessions.store", newCfg.Sessions.Store), logx.String("sessions.ttl", newCfg.Sessions.TTL))
	}

	if !reflect.DeepEqual(oldCfg.Defaults, newCfg.Defaults) {
		d := newCfg.Defaults
		mark("defaults",
			logx.String("defaults.timezone", d.Timezone),
			logx.String("defaults.date_format", d.DateFormat),
			logx.String("defaults.time_format", d.TimeFormat),
			logx.String("defaults.reminder_lead", d.ReminderLead),
		)
	}

	if !reflect.DeepEqual(oldCfg.Router, newCfg.Router) {
		mark("router", logx.Int("router.workers", newCfg.Router.Workers))
	}

	oo, no := oldCfg.Ops, newCfg.Ops
	if oo.Token != no.Token {
		mark("ops.token")
	}
	oo.Token, no.Token = "", ""
	if !reflect.DeepEqual(oo, no) {
		mark("ops", logx.Bool("ops.enabled", no.Enabled), logx.String("ops.addr", no.Addr), logx.Bool("ops.pprof", no.Pprof))
	}

	sort.Strings(ch.Sections)
	return ch
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
