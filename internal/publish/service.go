// Package publish is the scheduler loop. Each pass dispatches every due
// post once and then sends pre-publish reminders.
//
// A pass reads due posts from the store and handles them one at a time.
// Every state write is conditional on the post still being scheduled, which
// is also what keeps two overlapping writers from double-publishing the same
// record. Passes never overlap when driven through the task engine.
package publish

import (
	"context"
	"errors"
	"sync"
	"time"

	"postbot/internal/channels"
	"postbot/internal/eventbus"
	"postbot/internal/post"
	"postbot/internal/prefs"
	"postbot/internal/storage"
	"postbot/internal/task/engine"
	"postbot/internal/transport"
	"postbot/pkg/logx"
)

// TaskName is the schedule and task name of the pass.
const TaskName = "publish.pass"

type Config struct {
	PollInterval time.Duration
	// PassTimeout bounds one pass; 0 means none.
	PassTimeout time.Duration
	// BatchLimit caps the due posts handled per pass; 0 means all.
	BatchLimit int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BatchLimit < 0 {
		c.BatchLimit = 0
	}
	return c
}

// Resolver maps a channel id to its destination.
type Resolver interface {
	Resolve(ctx context.Context, channelID int64) (channels.Target, bool, error)
}

// PrefsSource yields an owner's reminder lead.
type PrefsSource interface {
	Get(ctx context.Context, actor int64) (prefs.Prefs, error)
}

// Notifier carries owner notices.
type Notifier interface {
	Notify(ctx context.Context, n transport.Notification) error
}

// IntervalScheduler is the trigger side of the task scheduler.
type IntervalScheduler interface {
	AddIntervalOpt(name string, every, timeout time.Duration, opt engine.TaskOptions, job func(ctx context.Context) error) error
	Remove(name string) bool
}

type Service struct {
	posts    storage.Posts
	channels Resolver
	gateway  transport.Gateway
	notifier Notifier
	prefs    PrefsSource
	bus      eventbus.Bus
	log      logx.Logger
	now      func() time.Time

	mu      sync.Mutex
	cfg     Config
	sched   IntervalScheduler
	reports []Report
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }
func WithBus(bus eventbus.Bus) Option       { return func(s *Service) { s.bus = bus } }

func New(cfg Config, posts storage.Posts, ch Resolver, gw transport.Gateway, n Notifier, pr PrefsSource, log logx.Logger, opts ...Option) *Service {
	s := &Service{
		posts:    posts,
		channels: ch,
		gateway:  gw,
		notifier: n,
		prefs:    pr,
		bus:      eventbus.Nop(),
		log:      log.With(logx.Component("publish")),
		now:      time.Now,
		cfg:      cfg.withDefaults(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start registers the pass as an interval task: skip if running, never
// retried by the engine.
func (s *Service) Start(sched IntervalScheduler) error {
	s.mu.Lock()
	s.sched = sched
	cfg := s.cfg
	s.mu.Unlock()
	return s.register(sched, cfg)
}

func (s *Service) register(sched IntervalScheduler, cfg Config) error {
	opt := engine.TaskOptions{Overlap: engine.OverlapSkipIfRunning, RetryMax: -1}
	err := sched.AddIntervalOpt(TaskName, cfg.PollInterval, cfg.PassTimeout, opt, func(ctx context.Context) error {
		_, err := s.RunPass(ctx, s.now())
		return engine.NoRetry(err)
	})
	if err == nil {
		s.log.Info("scheduler loop registered", logx.Duration("every", cfg.PollInterval), logx.Duration("timeout", cfg.PassTimeout))
	}
	return err
}

// Stop unregisters the pass. A pass already running finishes on its own.
func (s *Service) Stop() {
	s.mu.Lock()
	sched := s.sched
	s.sched = nil
	s.mu.Unlock()
	if sched != nil {
		sched.Remove(TaskName)
	}
}

// Apply swaps the config and re-registers the trigger if it changed.
func (s *Service) Apply(cfg Config) error {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	sched := s.sched
	s.mu.Unlock()
	if sched == nil || (prev.PollInterval == cfg.PollInterval && prev.PassTimeout == cfg.PassTimeout) {
		return nil
	}
	return s.register(sched, cfg)
}

// Run drives passes from a plain ticker until ctx is cancelled. Failed
// passes are logged; the next tick retries naturally.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	t := time.NewTicker(cfg.PollInterval)
	defer t.Stop()
	for {
		pctx, cancel := ctx, context.CancelFunc(func() {})
		if cfg.PassTimeout > 0 {
			pctx, cancel = context.WithTimeout(ctx, cfg.PassTimeout)
		}
		_, _ = s.RunPass(pctx, s.now())
		cancel()
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// RunPass runs Phase A (dispatch) and Phase B (reminders) once at now.
// It returns an error only when the store is unreachable while listing;
// per-post failures are logged and counted.
func (s *Service) RunPass(ctx context.Context, now time.Time) (Report, error) {
	now = now.UTC()
	start := time.Now()
	rep := Report{Started: now}
	err := s.dispatch(ctx, now, &rep)
	if err == nil {
		err = s.remind(ctx, now, &rep)
	}
	rep.Took = time.Since(start)
	rep.Err = err
	s.record(rep)

	data := eventbus.PassData{Dispatched: rep.Dispatched, Failed: rep.Failed, Reminded: rep.Reminded, Took: rep.Took}
	if err != nil {
		data.Err = err.Error()
		s.log.Warn("pass aborted", logx.Err(err))
	} else if rep.busy() {
		s.log.Info("pass finished", rep.fields()...)
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.PassFinished, Data: data})
	return rep, err
}

func (s *Service) dispatch(ctx context.Context, now time.Time, rep *Report) error {
	s.mu.Lock()
	limit := s.cfg.BatchLimit
	s.mu.Unlock()

	due, err := s.posts.ListPosts(ctx, post.Filter{
		States: []post.State{post.StateScheduled},
		DueBy:  &now,
		Limit:  limit,
	})
	if err != nil {
		return post.Unavailable("list due posts", err)
	}
	for _, p := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.dispatchOne(ctx, now, p, rep)
	}
	return nil
}

func (s *Service) dispatchOne(ctx context.Context, now time.Time, p post.Post, rep *Report) {
	log := s.log.With(logx.Int64("post", p.ID), logx.Int64("channel", p.ChannelID))

	target, ok, err := s.channels.Resolve(ctx, p.ChannelID)
	if err != nil {
		// The record stays scheduled and is retried next pass.
		log.Warn("channel lookup failed", logx.Err(err))
		rep.Errors++
		return
	}
	if !ok {
		cerr := &post.ChannelUnresolvedError{ChannelID: p.ChannelID}
		if s.transition(ctx, log, p, post.Patch{State: post.Ptr(post.StateFailed)}) {
			rep.Failed++
			log.Warn("post failed", logx.Err(cerr))
			s.emit(eventbus.PostFailed, p, post.StateFailed, cerr)
			s.notify(ctx, p.Owner, 7, unresolvedText(p.ID, p.ChannelID))
		}
		return
	}

	rep.Dispatched++
	_, sendErr := s.gateway.SendPost(ctx, transport.ChatTarget{ChatID: target.ChatID}, Render(p))

	var patch post.Patch
	next := post.StatePublished
	if sendErr == nil && p.Repeat > 0 && p.At != nil {
		at := p.At.Add(p.Repeat)
		next = post.StateScheduled
		patch = post.Patch{At: &at, Notified: post.Ptr(false)}
	} else {
		// A failed send still consumes the post.
		patch = post.Patch{State: post.Ptr(post.StatePublished)}
	}
	if !s.transition(ctx, log, p, patch) {
		return
	}

	switch {
	case sendErr != nil:
		derr := &post.DeliveryError{PostID: p.ID, ChannelID: p.ChannelID, Err: sendErr}
		rep.DeliveryFailed++
		log.Warn("delivery failed, post consumed", logx.Err(derr))
		s.emit(eventbus.PostDeliveryFailed, p, next, derr)
		s.notify(ctx, p.Owner, 7, failureText(p.ID, target.DisplayName, sendErr))
	case next == post.StateScheduled:
		rep.Rescheduled++
		log.Info("post sent and rescheduled", logx.Time("next", *patch.At))
		s.emit(eventbus.PostRescheduled, p, next, nil)
	default:
		rep.Published++
		log.Info("post published")
		s.emit(eventbus.PostPublished, p, next, nil)
	}
}

// transition writes patch only while p is still scheduled. It reports
// whether the write happened.
func (s *Service) transition(ctx context.Context, log logx.Logger, p post.Post, patch post.Patch) bool {
	_, err := s.posts.UpdatePostIf(ctx, p.ID, post.StateScheduled, patch)
	var ce *post.ConcurrentEditError
	switch {
	case err == nil:
		return true
	case errors.As(err, &ce):
		log.Info("post changed during dispatch, leaving it", logx.String("state", string(ce.Actual)))
	case errors.Is(err, post.ErrNotFound):
		log.Info("post deleted during dispatch")
	default:
		log.Warn("post state write failed", logx.Err(err))
	}
	return false
}

func (s *Service) remind(ctx context.Context, now time.Time, rep *Report) error {
	pending, err := s.posts.ListPosts(ctx, post.Filter{
		States:      []post.State{post.StateScheduled},
		NotNotified: true,
	})
	if err != nil {
		return post.Unavailable("list reminders", err)
	}

	leads := map[int64]time.Duration{}
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.At == nil || !now.Before(*p.At) {
			continue
		}
		lead, ok := leads[p.Owner]
		if !ok {
			pr, err := s.prefs.Get(ctx, p.Owner)
			if err != nil {
				s.log.Warn("prefs lookup failed", logx.Int64("owner", p.Owner), logx.Err(err))
				rep.Errors++
				continue
			}
			lead = pr.ReminderLead
			leads[p.Owner] = lead
		}
		if lead <= 0 || now.Before(p.At.Add(-lead)) {
			continue
		}
		s.remindOne(ctx, now, p, rep)
	}
	return nil
}

func (s *Service) remindOne(ctx context.Context, now time.Time, p post.Post, rep *Report) {
	log := s.log.With(logx.Int64("post", p.ID))
	name := ""
	if target, ok, err := s.channels.Resolve(ctx, p.ChannelID); err == nil && ok {
		name = target.DisplayName
	} else {
		name = "#" + itoa(p.ChannelID)
	}

	// Marked first: a reminder is one-shot even if the notice is lost.
	if _, err := s.posts.UpdatePostIf(ctx, p.ID, post.StateScheduled, post.Patch{Notified: post.Ptr(true)}); err != nil {
		log.Info("reminder skipped, post changed", logx.Err(err))
		return
	}
	rep.Reminded++
	s.notify(ctx, p.Owner, 0, ReminderText(p.ID, name, p.At.Sub(now)))
	log.Debug("reminder sent", logx.Duration("left", p.At.Sub(now)))
	s.emit(eventbus.PostReminded, p, post.StateScheduled, nil)
}

func (s *Service) notify(ctx context.Context, owner int64, priority int, text string) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Notify(ctx, transport.Notification{
		Channel:  "telegram",
		Priority: priority,
		Target:   transport.ChatTarget{ChatID: owner},
		Text:     text,
	})
	if err != nil {
		s.log.Warn("owner notice dropped", logx.Int64("owner", owner), logx.Err(err))
	}
}

func (s *Service) emit(topic string, p post.Post, state post.State, err error) {
	d := eventbus.PostData{PostID: p.ID, Owner: p.Owner, ChannelID: p.ChannelID, State: string(state)}
	if err != nil {
		d.Err = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: topic, Data: d})
}
