package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("500ms", "10s", "1m"); an empty string means the component default.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Scheduler controls the trigger side and the scheduler loop pass.
	Scheduler SchedulerConfig `json:"scheduler"`

	// TaskEngine controls execution of scheduled passes. If omitted the
	// engine follows scheduler.enabled with built-in defaults.
	TaskEngine *TaskEngineConfig `json:"task_engine,omitempty"`

	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  StorageConfig   `json:"storage"`
	Sessions SessionsConfig  `json:"sessions"`
	Defaults DefaultsConfig  `json:"defaults"`
	Router   RouterConfig    `json:"router"`
	Ops      OpsConfig       `json:"ops,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is the chat id the Telegram log sink posts to.
	GroupLog    string `json:"group_log,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
	// APIURL points at a self-hosted Bot API server.
	APIURL string `json:"api_url,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// SchedulerConfig controls the cron trigger service and the pass that
// dispatches due posts.
//
// Defaults:
//   - poll_interval: "5s"
//   - pass_timeout: "0s" (none)
//   - batch_limit: 0 (all due posts)
//   - housekeeping: "@every 10m" (session sweep)
type SchedulerConfig struct {
	Enabled      bool   `json:"enabled"`
	Timezone     string `json:"timezone,omitempty"`
	PollInterval string `json:"poll_interval,omitempty"`
	PassTimeout  string `json:"pass_timeout,omitempty"`
	BatchLimit   int    `json:"batch_limit,omitempty"`
	Housekeeping string `json:"housekeeping,omitempty"`
}

// TaskEngineConfig controls the task execution engine.
//
// Enabled is a pointer so an omitted value can follow scheduler.enabled.
//
// Defaults: workers 2, queue_size 64, history_size 100, retry_max 0.
// The scheduler loop never retries regardless of retry_max.
type TaskEngineConfig struct {
	Enabled        *bool  `json:"enabled,omitempty"`
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	RetryMax       int    `json:"retry_max,omitempty"`
}

// NotifierConfig controls the owner notice queue. If the section is
// omitted the notifier is enabled with defaults.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base,omitempty"`
	RetryMaxDelay   string `json:"retry_max_delay,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
	SendTimeout     string `json:"send_timeout,omitempty"`
}

// StorageConfig selects the post record store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./postbot.db" }
type StorageConfig struct {
	Driver       string `json:"driver"`
	Path         string `json:"path,omitempty"`
	DSN          string `json:"dsn,omitempty"` // postgres; POSTBOT_STORAGE_DSN wins
	BusyTimeout  string `json:"busy_timeout,omitempty"`
	MaxOpenConns int    `json:"max_open_conns,omitempty"`
}

// SessionsConfig selects where open compose sessions live.
type SessionsConfig struct {
	// Store is "memory" (default) or "valkey".
	Store  string       `json:"store,omitempty"`
	TTL    string       `json:"ttl,omitempty"`
	Valkey ValkeyConfig `json:"valkey,omitempty"`
}

type ValkeyConfig struct {
	Address        string `json:"address,omitempty"`
	Password       string `json:"password,omitempty"` // POSTBOT_VALKEY_PASSWORD wins
	DB             int    `json:"db,omitempty"`
	KeyPrefix      string `json:"key_prefix,omitempty"`
	ConnectTimeout string `json:"connect_timeout,omitempty"`
}

// DefaultsConfig are the preferences of users that never ran /settings.
type DefaultsConfig struct {
	Timezone     string `json:"timezone,omitempty"`
	DateFormat   string `json:"date_format,omitempty"`
	TimeFormat   string `json:"time_format,omitempty"`
	ReminderLead string `json:"reminder_lead,omitempty"`
}

type RouterConfig struct {
	Workers   int    `json:"workers,omitempty"`
	QueueSize int    `json:"queue_size,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
}

// OpsConfig controls the operator HTTP endpoint (health, status, pprof).
//
// Prefer a loopback address. A non-loopback bind needs a token or
// allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"` // default "127.0.0.1:6060"
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	IdleTimeout   string `json:"idle_timeout,omitempty"`
}
