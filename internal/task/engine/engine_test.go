package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"postbot/internal/eventbus"
	"postbot/pkg/logx"
)

func startEngine(t *testing.T, cfg Config) *Service {
	t.Helper()
	cfg.Enabled = true
	s := New(cfg, logx.Nop(), eventbus.New())
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEnqueueDisabledAndStopped(t *testing.T) {
	t.Parallel()

	s := New(Config{}, logx.Nop(), nil)
	run := func(context.Context) error { return nil }
	if err := s.Enqueue(Task{Name: "x", Run: run}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("disabled: %v", err)
	}
	s = New(Config{Enabled: true}, logx.Nop(), nil)
	if err := s.Enqueue(Task{Name: "x", Run: run}); !errors.Is(err, ErrStopped) {
		t.Fatalf("not started: %v", err)
	}
	if err := s.Enqueue(Task{Name: "", Run: run}); err == nil {
		t.Fatalf("empty name accepted")
	}
}

func TestOverlapSkipWhileRunning(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 2})
	release := make(chan struct{})
	var runs atomic.Int32
	task := Task{Name: "pass", Opt: TaskOptions{Overlap: OverlapSkipIfRunning}, Run: func(context.Context) error {
		runs.Add(1)
		<-release
		return nil
	}}

	if err := s.Enqueue(task); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	waitFor(t, func() bool { return runs.Load() == 1 })
	if err := s.Enqueue(task); !errors.Is(err, ErrOverlapSkip) {
		t.Fatalf("second enqueue: %v", err)
	}
	close(release)
	waitFor(t, func() bool { return len(s.Snapshot().History) == 1 })
	if err := s.Enqueue(task); err != nil {
		t.Fatalf("enqueue after finish: %v", err)
	}
	waitFor(t, func() bool { return runs.Load() == 2 })
	if s.Snapshot().Skipped != 1 {
		t.Fatalf("skipped=%d", s.Snapshot().Skipped)
	}
}

func TestRetryPolicy(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		opt      TaskOptions
		err      error
		attempts int32
	}{
		{"engine default", TaskOptions{RetryBase: time.Millisecond}, errors.New("boom"), 3},
		{"no retry wrapper", TaskOptions{RetryBase: time.Millisecond}, NoRetry(errors.New("boom")), 1},
		{"retries disabled", TaskOptions{RetryMax: -1}, errors.New("boom"), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := startEngine(t, Config{Workers: 1, RetryMax: 2})
			var n atomic.Int32
			err := s.Enqueue(Task{Name: tc.name, Opt: tc.opt, Run: func(context.Context) error {
				n.Add(1)
				return tc.err
			}})
			if err != nil {
				t.Fatalf("enqueue: %v", err)
			}
			waitFor(t, func() bool { return len(s.Snapshot().History) == 1 })
			h := s.Snapshot().History[0]
			if n.Load() != tc.attempts || h.Attempts != int(tc.attempts) || h.Error != "boom" {
				t.Fatalf("attempts=%d history=%+v", n.Load(), h)
			}
		})
	}
}

func TestPanicBecomesError(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1})
	_ = s.Enqueue(Task{Name: "bad", Opt: TaskOptions{RetryMax: -1}, Run: func(context.Context) error { panic("oops") }})
	waitFor(t, func() bool { return len(s.Snapshot().History) == 1 })

	var ok atomic.Bool
	_ = s.Enqueue(Task{Name: "good", Run: func(context.Context) error { ok.Store(true); return nil }})
	waitFor(t, ok.Load)
	if got := s.Snapshot().History[0].Error; got != "panic: oops" {
		t.Fatalf("history error %q", got)
	}
}

func TestTimeoutReachesTask(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1, DefaultTimeout: 20 * time.Millisecond})
	_ = s.Enqueue(Task{Name: "slow", Opt: TaskOptions{RetryMax: -1}, Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	waitFor(t, func() bool { return len(s.Snapshot().History) == 1 })
	if got := s.Snapshot().History[0].Error; got != context.DeadlineExceeded.Error() {
		t.Fatalf("error %q", got)
	}
}

func TestBackoffDelayBounded(t *testing.T) {
	t.Parallel()

	opt := TaskOptions{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}.withDefaults(Config{})
	opt.RetryJitter = 0
	for retry, want := range map[int]time.Duration{1: 100 * time.Millisecond, 2: 200 * time.Millisecond, 3: 400 * time.Millisecond, 10: time.Second} {
		if got := backoffDelay(opt, retry, nil); got != want {
			t.Fatalf("retry %d: got %s want %s", retry, got, want)
		}
	}
}
