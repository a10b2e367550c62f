package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"postbot/internal/eventbus"
	rtsup "postbot/internal/runtime/supervisor"
	"postbot/internal/storage"
	"postbot/internal/transport"
	"postbot/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

const historySize = 100

type job struct {
	n   transport.Notification
	key string
}

// Service is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	sender Sender
	bus    eventbus.Bus
	store  storage.Dedup

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan job
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping

	dedup *dedupCache

	hmu     sync.Mutex
	history []HistoryItem
}

// New builds a notifier. store may be nil; then dedup is memory-only.
func New(cfg Config, sender Sender, log logx.Logger, bus eventbus.Bus, store storage.Dedup) *Service {
	if bus == nil {
		bus = eventbus.Nop()
	}
	s := &Service{
		sender: sender,
		log:    log.With(logx.Component("notifier")),
		bus:    bus,
		store:  store,
		dedup:  newDedupCache(),
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// SetSender swaps the transport, e.g. once the adapter is connected.
func (s *Service) SetSender(sender Sender) {
	s.mu.Lock()
	s.sender = sender
	s.mu.Unlock()
}

// Apply updates limits in place. Worker and queue sizes apply on the next
// Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	s.cfg = cfg
	// burst = rate so short spikes pass without waiting.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	s.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	sup, q, workers := s.sup, s.queue, s.cfg.Workers
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			s.mu.Lock()
			stopping := s.stopDone != nil
			s.mu.Unlock()
			if stopping {
				return context.Canceled
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("notifier worker exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}
	s.log.Info("notifier started", logx.Int("workers", workers), logx.Int("queue", cap(q)))
}

// Stop closes intake and drains the queue until ctx ends.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	q, sup := s.queue, s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		// In-flight Notify calls finish before the queue closes.
		s.sendWG.Wait()
		close(q)
		_ = sup.Wait(context.Background())
		s.mu.Lock()
		s.queue = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

// Notify queues n. A duplicate inside the dedup window is dropped silently
// and reported as success.
func (s *Service) Notify(ctx context.Context, n transport.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q, cfg := s.queue, s.cfg
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	key := dedupKey(n)
	ev := Event{Channel: n.Channel, ChatID: n.Target.ChatID, Key: key, At: time.Now()}
	if cfg.DedupWindow > 0 && key != "" {
		var st storage.Dedup
		if cfg.PersistDedup {
			st = s.store
		}
		if !s.dedup.allow(ctx, key, cfg.DedupWindow, cfg.DedupMaxEntries, st) {
			s.bus.Publish(eventbus.Event{Type: TopicDeduped, Data: ev})
			s.log.Debug("notice deduplicated", logx.Int64("chat", n.Target.ChatID))
			return nil
		}
	}

	select {
	case q <- job{n: n, key: key}:
		s.bus.Publish(eventbus.Event{Type: TopicQueued, Data: ev})
		return nil
	default:
		ev.Error = ErrQueueFull.Error()
		s.bus.Publish(eventbus.Event{Type: TopicDropped, Data: ev})
		return ErrQueueFull
	}
}

// History returns the most recent send attempts, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(item HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.send(ctx, j)
		}
	}
}

func (s *Service) send(ctx context.Context, j job) {
	s.mu.Lock()
	cfg, lim, sender := s.cfg, s.limiter, s.sender
	s.mu.Unlock()
	if sender == nil {
		return
	}
	text := prefixForPriority(j.n.Priority) + j.n.Text
	ev := Event{Channel: j.n.Channel, ChatID: j.n.Target.ChatID, Key: j.key}

	var err error
	attempts := 1 + cfg.RetryMax
	for attempt := 1; attempt <= attempts; attempt++ {
		if werr := lim.Wait(ctx); werr != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		_, err = sender.SendText(callCtx, j.n.Target, text, j.n.Options)
		cancel()
		if err == nil {
			ev.At = time.Now()
			s.appendHistory(HistoryItem{At: ev.At, ChatID: j.n.Target.ChatID, Text: text})
			s.bus.Publish(eventbus.Event{Type: TopicSent, Data: ev})
			return
		}
		s.log.Debug("notice send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", attempts))
		if attempt == attempts {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}

	ev.At, ev.Error = time.Now(), err.Error()
	s.appendHistory(HistoryItem{At: ev.At, ChatID: j.n.Target.ChatID, Text: text, Error: ev.Error})
	s.bus.Publish(eventbus.Event{Type: TopicFailed, Data: ev})
	s.log.Warn("notice not delivered", logx.Int64("chat", j.n.Target.ChatID), logx.Err(err))
}

func prefixForPriority(p int) string {
	switch {
	case p >= 9:
		return "🚨 "
	case p >= 7:
		return "⚠️ "
	default:
		return ""
	}
}

// retryDelay is base * 2^(attempt-1), capped.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	return min(d, cfg.RetryMaxDelay)
}
