package config

import (
	"errors"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/robfig/cron/v3"

	"postbot/internal/timefmt"
)

var chatIDRe = regexp.MustCompile(`^-?\d+$`)

var levels = []any{"", "trace", "debug", "info", "warn", "warning", "error"}

// cronParser matches the scheduler's parser (optional seconds, descriptors).
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func lower(v any) string {
	s, _ := v.(string)
	return strings.ToLower(strings.TrimSpace(s))
}

// oneOf is validation.In over trimmed, lower-cased strings.
func oneOf(values ...any) validation.Rule {
	in := validation.In(values...)
	return validation.By(func(v any) error { return in.Validate(lower(v)) })
}

var isZone = validation.By(func(v any) error {
	s, _ := v.(string)
	if _, err := timefmt.LoadZone(s); err != nil {
		return validation.NewError("validation_timezone", err.Error())
	}
	return nil
})

var isCron = validation.By(func(v any) error {
	s, _ := v.(string)
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "off") {
		return nil
	}
	if _, err := cronParser.Parse(s); err != nil {
		return validation.NewError("validation_cron", "must be a cron spec or @every <duration>")
	}
	return nil
})

func pattern(check func(string) error) validation.Rule {
	return validation.By(func(v any) error {
		s, _ := v.(string)
		if strings.TrimSpace(s) == "" {
			return nil
		}
		if err := check(s); err != nil {
			return validation.NewError("validation_pattern", err.Error())
		}
		return nil
	})
}

// Validate checks the whole config. Errors are keyed by the JSON path of the
// offending field.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Telegram),
		validation.Field(&c.Logging),
		validation.Field(&c.Scheduler),
		validation.Field(&c.TaskEngine),
		validation.Field(&c.Notifier),
		validation.Field(&c.Storage),
		validation.Field(&c.Sessions),
		validation.Field(&c.Defaults),
		validation.Field(&c.Router),
		validation.Field(&c.Ops),
	)
	if err != nil {
		return err
	}
	if c.Scheduler.Enabled && c.TaskEngine != nil && c.TaskEngine.Enabled != nil && !*c.TaskEngine.Enabled {
		return errors.New("task_engine.enabled cannot be false while scheduler.enabled is true")
	}
	return nil
}

func (t TelegramConfig) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Token, validation.Required),
		validation.Field(&t.OwnerUserIDs, validation.Each(validation.Required, validation.Min(int64(1)))),
		validation.Field(&t.GroupLog, validation.Match(chatIDRe).Error("must be a numeric chat id")),
		validation.Field(&t.PollTimeout, isDuration),
		validation.Field(&t.APIURL, is.URL),
	)
}

func (l LoggingConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, oneOf(levels...)),
		validation.Field(&l.File),
		validation.Field(&l.Telegram),
	)
}

func (f LoggingFile) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Path, validation.When(f.Enabled, validation.Required)),
	)
}

func (t LoggingTelegram) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.ThreadID, validation.Min(0)),
		validation.Field(&t.MinLevel, oneOf(levels...)),
		validation.Field(&t.RatePerSec, validation.Min(0)),
	)
}

func (s SchedulerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Timezone, isZone),
		validation.Field(&s.PollInterval, isDuration),
		validation.Field(&s.PassTimeout, isDuration),
		validation.Field(&s.BatchLimit, validation.Min(0)),
		validation.Field(&s.Housekeeping, isCron),
	)
}

func (t TaskEngineConfig) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Workers, validation.Min(0)),
		validation.Field(&t.QueueSize, validation.Min(0)),
		validation.Field(&t.DefaultTimeout, isDuration),
		validation.Field(&t.MaxQueueDelay, isDuration),
		validation.Field(&t.HistorySize, validation.Min(0)),
		validation.Field(&t.RetryMax, validation.Min(0)),
	)
}

func (n NotifierConfig) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.Workers, validation.Min(0)),
		validation.Field(&n.QueueSize, validation.Min(0)),
		validation.Field(&n.RatePerSec, validation.Min(0)),
		validation.Field(&n.RetryMax, validation.Min(0)),
		validation.Field(&n.RetryBase, isDuration),
		validation.Field(&n.RetryMaxDelay, isDuration),
		validation.Field(&n.DedupWindow, isDuration),
		validation.Field(&n.DedupMaxEntries, validation.Min(0)),
		validation.Field(&n.SendTimeout, isDuration),
	)
}

func (s StorageConfig) Validate() error {
	driver := lower(s.Driver)
	sqlite := driver == "" || driver == "sqlite" || driver == "sqlite3"
	postgres := driver == "postgres" || driver == "postgresql" || driver == "pg"
	return validation.ValidateStruct(&s,
		validation.Field(&s.Driver, oneOf("", "sqlite", "sqlite3", "postgres", "postgresql", "pg", "memory", "mem")),
		validation.Field(&s.Path, validation.When(sqlite, validation.Required)),
		validation.Field(&s.DSN, validation.When(postgres, validation.Required.Error("is required (or set POSTBOT_STORAGE_DSN)"))),
		validation.Field(&s.BusyTimeout, isDuration),
		validation.Field(&s.MaxOpenConns, validation.Min(0)),
	)
}

func (s SessionsConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Store, oneOf("", "memory", "valkey")),
		validation.Field(&s.TTL, isDuration),
		validation.Field(&s.Valkey, validation.Skip.When(lower(s.Store) != "valkey")),
	)
}

func (v ValkeyConfig) Validate() error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.Address, validation.Required, is.DialString),
		validation.Field(&v.DB, validation.Min(0)),
		validation.Field(&v.ConnectTimeout, isDuration),
	)
}

func (d DefaultsConfig) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Timezone, isZone),
		validation.Field(&d.DateFormat, pattern(timefmt.ValidateDatePattern)),
		validation.Field(&d.TimeFormat, pattern(timefmt.ValidateTimePattern)),
		validation.Field(&d.ReminderLead, isDuration),
	)
}

func (r RouterConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Workers, validation.Min(0)),
		validation.Field(&r.QueueSize, validation.Min(0)),
		validation.Field(&r.Timeout, isDuration),
	)
}

func (o OpsConfig) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Addr, is.DialString),
		validation.Field(&o.ReadTimeout, isDuration),
		validation.Field(&o.IdleTimeout, isDuration),
	)
}
