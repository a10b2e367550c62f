package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"postbot/internal/task/engine"
	"postbot/internal/timefmt"
	"postbot/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

func New(cfg Config, eng Enqueuer, log logx.Logger) *Service {
	return &Service{
		cfg:    cfg,
		log:    log.With(logx.Component("scheduler")),
		engine: eng,
		// SecondOptional accepts both 5-field and 6-field specs.
		parser:      cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		lastEnqWarn: map[string]time.Time{},
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps the config; a timezone change re-registers every schedule.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	if s.c != nil && oldTZ != strings.TrimSpace(cfg.Timezone) {
		s.restartLocked()
	}
}

// Start begins triggering. Schedules added before Start are registered now.
func (s *Service) Start(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return
	}
	s.startLocked()
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

func (s *Service) startLocked() {
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for i := range s.defs {
		if err := s.addCronLocked(&s.defs[i]); err != nil {
			s.log.Error("schedule register failed", logx.String("name", s.defs[i].name), logx.Err(err))
		}
	}
	s.c.Start()
}

func (s *Service) restartLocked() {
	<-s.c.Stop().Done()
	s.startLocked()
	s.log.Info("service restarted", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

// Stop halts triggering. Definitions are kept for the next Start.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	for i := range s.defs {
		s.defs[i].entryID = 0
	}
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("service stopped")
}

// AddSchedule parses schedule (see ParseSchedule) and registers the job with
// the skip-if-running overlap policy.
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job Job) error {
	return s.AddScheduleOpt(name, schedule, timeout, TaskOptions{Overlap: OverlapSkipIfRunning}, job)
}

func (s *Service) AddScheduleOpt(name, schedule string, timeout time.Duration, opt TaskOptions, job Job) error {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	if ps.Kind == SpecInterval {
		return s.AddIntervalOpt(name, ps.Every, timeout, opt, job)
	}
	return s.add(name, ps.Cron, timeout, opt, job)
}

func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) error {
	return s.add(name, spec, timeout, TaskOptions{Overlap: OverlapSkipIfRunning}, job)
}

func (s *Service) AddInterval(name string, every, timeout time.Duration, job Job) error {
	return s.AddIntervalOpt(name, every, timeout, TaskOptions{Overlap: OverlapSkipIfRunning}, job)
}

func (s *Service) AddIntervalOpt(name string, every, timeout time.Duration, opt TaskOptions, job Job) error {
	if every <= 0 {
		return errors.New("interval must be > 0")
	}
	return s.add(name, "@every "+every.String(), timeout, opt, job)
}

// add upserts by name, so re-registering after a config reload replaces the
// old trigger.
func (s *Service) add(name, spec string, timeout time.Duration, opt TaskOptions, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	if !strings.HasPrefix(spec, "@every") {
		if _, err := s.parser.Parse(spec); err != nil {
			return fmt.Errorf("schedule %s: %w", name, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	s.defs = append(s.defs, scheduleDef{
		name:    name,
		spec:    spec,
		timeout: timeout,
		job:     job,
		opt:     opt,
		state:   &engine.RunState{},
	})
	if s.c == nil {
		return nil
	}
	d := &s.defs[len(s.defs)-1]
	if err := s.addCronLocked(d); err != nil {
		return err
	}
	fields := []logx.Field{logx.String("name", name), logx.String("spec", spec), logx.Duration("timeout", timeout)}
	if next := s.previewNextRunsLocked(spec, 3); next != "" {
		fields = append(fields, logx.String("next", next))
	}
	s.log.Debug("schedule registered", fields...)
	return nil
}

// Remove unregisters the named schedule and reports whether it existed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := s.removeLocked(strings.TrimSpace(name))
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

func (s *Service) removeLocked(name string) bool {
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			continue
		}
		s.defs[n] = d
		n++
	}
	removed := n < len(s.defs)
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	name, timeout, job, opt, state := d.name, d.timeout, d.job, d.opt, d.state
	fire := cron.FuncJob(func() {
		if s.engine == nil {
			return
		}
		err := s.engine.Enqueue(engine.Task{Name: name, Timeout: timeout, Run: job, Opt: opt, State: state})
		s.reportEnqueueError(name, err)
	})

	// Interval schedules get a random first-run spread so they do not all
	// fire together right after start.
	if every, ok := strings.CutPrefix(d.spec, "@every "); ok {
		if dur, err := time.ParseDuration(every); err == nil && dur > 0 {
			sched, spread := makeIntervalScheduleWithSpread(dur, time.Now().In(s.loc), name)
			d.startupSpread = spread
			d.entryID = s.c.Schedule(sched, fire)
			return nil
		}
	}
	d.startupSpread = 0
	id, err := s.c.AddJob(d.spec, fire)
	if err != nil {
		return err
	}
	d.entryID = id
	return nil
}

func (s *Service) reportEnqueueError(name string, err error) {
	if err == nil {
		return
	}
	// Overlap skips are normal when a run outlasts its interval.
	if errors.Is(err, engine.ErrOverlapSkip) {
		s.log.Debug("schedule trigger skipped", logx.String("schedule", name))
		return
	}
	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[name]
	throttled := !last.IsZero() && now.Sub(last) < enqueueWarnThrottle
	if !throttled {
		s.lastEnqWarn[name] = now
	}
	s.enqMu.Unlock()
	if !throttled {
		s.log.Warn("schedule failed to enqueue task", logx.String("schedule", name), logx.Err(err))
	}
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.UTC
	}
	loc, err := timefmt.LoadZone(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to UTC", logx.String("tz", tz), logx.Err(err))
		return time.UTC
	}
	return loc
}

// previewNextRunsLocked lists upcoming fire times for debug logging.
func (s *Service) previewNextRunsLocked(spec string, n int) string {
	if !s.log.Enabled(logx.LevelDebug) {
		return ""
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return ""
	}
	t := time.Now().In(s.loc)
	runs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if t = sched.Next(t); t.IsZero() {
			break
		}
		runs = append(runs, t.Format("2006-01-02 15:04:05"))
	}
	return strings.Join(runs, ", ")
}
