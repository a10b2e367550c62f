package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"postbot/internal/task/engine"
	"postbot/pkg/logx"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw    string
		kind   SpecKind
		source string
		every  time.Duration
	}{
		{"*/5 * * * *", SpecCron, "cron", 0},
		{"cron:0 0 * * *", SpecCron, "cron", 0},
		{"@hourly", SpecCron, "cron", 0},
		{"5s", SpecInterval, "duration", 5 * time.Second},
		{"interval:45s", SpecInterval, "duration", 45 * time.Second},
		{"every:00:10", SpecInterval, "hhmm", 10 * time.Minute},
		{"01:30", SpecInterval, "hhmm", 90 * time.Minute},
	}
	for _, tt := range tests {
		got, err := ParseSchedule(tt.raw)
		if err != nil {
			t.Fatalf("ParseSchedule(%q): %v", tt.raw, err)
		}
		if got.Kind != tt.kind || got.Source != tt.source || got.Every != tt.every {
			t.Fatalf("ParseSchedule(%q) = %+v", tt.raw, got)
		}
	}

	for _, raw := range []string{"", "banana", "0s", "-5m", "00:75", "cron:"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q) accepted", raw)
		}
	}
}

func TestSpreadDelaysFirstRunOnly(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sched, spread := makeIntervalScheduleWithSpread(10*time.Second, now, "publish")
	if spread < 0 || spread >= 10*time.Second || spread%time.Second != 0 {
		t.Fatalf("spread %s out of window or not whole seconds", spread)
	}
	first := sched.Next(now)
	if want := now.Add(10*time.Second + spread); !first.Equal(want) {
		t.Fatalf("first=%s want %s", first, want)
	}
	if second := sched.Next(first); second.Sub(first) != 10*time.Second {
		t.Fatalf("second run %s after first", second.Sub(first))
	}
}

type fakeEngine struct {
	mu    sync.Mutex
	tasks []engine.Task
}

func (f *fakeEngine) Enqueue(t engine.Task) error {
	f.mu.Lock()
	f.tasks = append(f.tasks, t)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) Snapshot() engine.Snapshot { return engine.Snapshot{Workers: 3} }

func TestAddUpsertsByName(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Timezone: "UTC"}, &fakeEngine{}, logx.Nop())
	job := func(context.Context) error { return nil }
	if err := s.AddSchedule("sweep", "*/10 * * * *", 0, job); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddInterval("sweep", time.Minute, 0, job); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if err := s.AddCron("bad", "not a cron", 0, job); err == nil {
		t.Fatalf("invalid cron accepted")
	}

	s.Start(context.Background())
	defer s.Stop(context.Background())

	snap := s.Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Spec != "@every 1m0s" || snap.Workers != 3 {
		t.Fatalf("snapshot %+v", snap)
	}
	if snap.Schedules[0].Next.IsZero() {
		t.Fatalf("next run not computed")
	}
	if !s.Remove("sweep") || s.Remove("sweep") {
		t.Fatalf("remove not idempotent")
	}
}

func TestIntervalEnqueuesOnEngine(t *testing.T) {
	t.Parallel()

	fe := &fakeEngine{}
	s := New(Config{Enabled: true}, fe, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.AddInterval("publish", time.Second, 0, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("add: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		fe.mu.Lock()
		n := len(fe.tasks)
		var got engine.Task
		if n > 0 {
			got = fe.tasks[0]
		}
		fe.mu.Unlock()
		if n > 0 {
			if got.Name != "publish" || got.Opt.Overlap != OverlapSkipIfRunning || got.State == nil {
				t.Fatalf("task %+v", got)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("interval never fired")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
