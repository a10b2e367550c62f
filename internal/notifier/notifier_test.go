package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"postbot/internal/eventbus"
	"postbot/internal/storage"
	"postbot/internal/transport"
	"postbot/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	texts []string
	calls int
	err   error
}

func (f *fakeSender) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return transport.MessageRef{}, f.err
	}
	f.texts = append(f.texts, text)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: f.calls}, nil
}

func (f *fakeSender) snapshot() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...), f.calls
}

func notice(chat int64, text string) transport.Notification {
	return transport.Notification{Channel: "telegram", Target: transport.ChatTarget{ChatID: chat}, Text: text}
}

func drain(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestNotifyDelivers(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{}
	s := New(Config{Enabled: true, RatePerSec: 100}, fs, logx.Nop(), nil, nil)
	s.Start(context.Background())
	for _, txt := range []string{"one", "two"} {
		if err := s.Notify(context.Background(), notice(5, txt)); err != nil {
			t.Fatalf("notify: %v", err)
		}
	}
	drain(t, s)

	texts, _ := fs.snapshot()
	if len(texts) != 2 {
		t.Fatalf("sent %v", texts)
	}
	if h := s.History(); len(h) != 2 || h[0].ChatID != 5 {
		t.Fatalf("history %+v", h)
	}
	if err := s.Notify(context.Background(), notice(5, "late")); !errors.Is(err, ErrStopped) {
		t.Fatalf("notify after stop: %v", err)
	}
}

func TestDisabled(t *testing.T) {
	t.Parallel()

	s := New(Config{}, &fakeSender{}, logx.Nop(), nil, nil)
	s.Start(context.Background())
	if err := s.Notify(context.Background(), notice(1, "x")); !errors.Is(err, ErrDisabled) {
		t.Fatalf("got %v", err)
	}
}

func TestFailedNoticeIsOneShot(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{err: errors.New("forbidden")}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	s := New(Config{Enabled: true, RatePerSec: 100}, fs, logx.Nop(), bus, nil)
	s.Start(context.Background())
	_ = s.Notify(context.Background(), notice(9, "reminder"))
	drain(t, s)

	if _, calls := fs.snapshot(); calls != 1 {
		t.Fatalf("calls=%d, want exactly one attempt", calls)
	}
	failed := false
	for len(events) > 0 {
		if e := <-events; e.Type == TopicFailed {
			failed = e.Data.(Event).Error == "forbidden"
		}
	}
	if !failed {
		t.Fatalf("no failure event")
	}
}

func TestDedupWindowPersists(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	cfg := Config{Enabled: true, RatePerSec: 100, DedupWindow: time.Hour, PersistDedup: true}

	first := &fakeSender{}
	s := New(cfg, first, logx.Nop(), nil, store)
	s.Start(context.Background())
	_ = s.Notify(context.Background(), notice(3, "Post #1 failed"))
	_ = s.Notify(context.Background(), notice(3, "Post #1 failed"))
	_ = s.Notify(context.Background(), notice(4, "Post #1 failed"))
	drain(t, s)
	if texts, _ := first.snapshot(); len(texts) != 2 {
		t.Fatalf("in-process dedup: %v", texts)
	}

	// A fresh process sharing the store still suppresses the notice.
	second := &fakeSender{}
	s2 := New(cfg, second, logx.Nop(), nil, store)
	s2.Start(context.Background())
	_ = s2.Notify(context.Background(), notice(3, "Post #1 failed"))
	drain(t, s2)
	if texts, _ := second.snapshot(); len(texts) != 0 {
		t.Fatalf("persisted dedup ignored: %v", texts)
	}
}

func TestDedupCachePrune(t *testing.T) {
	t.Parallel()

	c := newDedupCache()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for i, k := range []string{"a", "b", "c"} {
		if !c.allow(ctx, k, time.Duration(i+1)*time.Minute, 2, nil) {
			t.Fatalf("%s suppressed", k)
		}
	}
	if len(c.until) != 2 {
		t.Fatalf("cap not enforced: %v", c.until)
	}
	if _, ok := c.until["a"]; ok {
		t.Fatalf("earliest-expiring key kept")
	}
	now = now.Add(10 * time.Minute)
	if !c.allow(ctx, "b", time.Minute, 2, nil) {
		t.Fatalf("expired key still suppressed")
	}
}
