package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"postbot/internal/task/engine"
	"postbot/pkg/logx"
)

type Config struct {
	Enabled bool
	// Timezone is the IANA zone cron expressions are evaluated in.
	Timezone string
}

type (
	OverlapPolicy = engine.OverlapPolicy
	TaskOptions   = engine.TaskOptions
	HistoryItem   = engine.HistoryItem
)

const (
	OverlapAllow         = engine.OverlapAllow
	OverlapSkipIfRunning = engine.OverlapSkipIfRunning
)

// Job is what a trigger hands to the engine.
type Job = func(ctx context.Context) error

type scheduleDef struct {
	name          string
	spec          string // cron spec or @every
	timeout       time.Duration
	job           Job
	entryID       cron.EntryID
	startupSpread time.Duration
	opt           TaskOptions
	state         *engine.RunState
}

// Enqueuer is the slice of the engine the scheduler needs.
type Enqueuer interface {
	Enqueue(t engine.Task) error
	Snapshot() engine.Snapshot
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	engine Enqueuer

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

type Snapshot struct {
	Enabled  bool
	Running  bool
	Timezone string

	Workers        int
	InFlight       int
	QueueLen       int
	QueueCap       int
	Dropped        uint64
	Skipped        uint64
	RetryMax       int
	DefaultTimeout time.Duration
	Schedules      []ScheduleInfo
	History        []HistoryItem
}
