// Package app wires the post store, the compose flow, the scheduler loop and
// the Telegram surface into one process with hot-reloadable config.
package app

import (
	"context"
	"fmt"
	"time"

	"postbot/internal/bot"
	"postbot/internal/channels"
	"postbot/internal/compose"
	"postbot/internal/config"
	"postbot/internal/eventbus"
	"postbot/internal/notifier"
	"postbot/internal/observability/ops"
	"postbot/internal/prefs"
	"postbot/internal/publish"
	"postbot/internal/router"
	"postbot/internal/runtime/supervisor"
	"postbot/internal/storage"
	"postbot/internal/task/engine"
	"postbot/internal/task/scheduler"
	"postbot/internal/transport"
	"postbot/internal/transport/telegram"
	"postbot/internal/valkey"
	"postbot/pkg/logx"
)

// SweepTask is the housekeeping schedule that drops expired sessions.
const SweepTask = "sessions.sweep"

// Mode selects which surfaces a process runs.
type Mode int

const (
	// ModeBot runs everything: chat surface, scheduler loop, notices.
	ModeBot Mode = iota
	// ModeDispatch runs only the scheduler loop on a plain ticker. No
	// updates are polled, so it can run beside a bot that owns polling.
	ModeDispatch
)

type App struct {
	mode Mode
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter

	sessions    compose.Store
	sweeper     *compose.MemoryStore
	valkey      *valkey.Client
	sweepSpec   string
	prefs       *prefs.Provider
	channels    *channels.Registry
	compose     *compose.Service
	engine      *engine.Service
	sched       *scheduler.Service
	notif       *notifier.Service
	publish     *publish.Service
	router      *router.Manager
	ops         *ops.Service
	startedAt   time.Time
	updates     chan transport.Update
	closeOnFail []func()
}

// New loads the config and builds every component without starting any.
func New(ctx context.Context, cfgPath string, mode Mode) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validateMapped(cfg) })
	cfg, err := cfgm.Load(ctx)
	if err != nil {
		return nil, err
	}

	logs, root := logx.New(mapLogging(cfg), nil)
	cfgm.SetLogger(root)
	a := &App{
		mode:    mode,
		cfgm:    cfgm,
		log:     root.With(logx.Component("app")),
		logs:    logs,
		bus:     eventbus.New(),
		updates: make(chan transport.Update, 256),
	}
	if err := a.build(cfg, root); err != nil {
		for i := len(a.closeOnFail) - 1; i >= 0; i-- {
			a.closeOnFail[i]()
		}
		_ = logs.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, root logx.Logger) error {
	tc, err := mapTelegram(cfg)
	if err != nil {
		return err
	}
	ad, err := telegram.New(tc, root)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	a.adapter = ad
	a.logs.SetSender(ad)

	sc, err := mapStorage(cfg)
	if err != nil {
		return err
	}
	st, err := storage.Open(sc, root.With(logx.Component("storage")))
	if err != nil {
		return err
	}
	a.store = st
	a.closeOnFail = append(a.closeOnFail, func() { _ = st.Close() })
	a.log.Info("storage ready", logx.String("driver", sc.Driver))

	if err := a.buildSessions(cfg); err != nil {
		return err
	}

	defaults, err := mapDefaults(cfg)
	if err != nil {
		return err
	}
	a.prefs = prefs.New(st, defaults)
	a.channels = channels.New(st, ad, root)
	a.compose = compose.NewService(a.sessions, st, a.channels, a.prefs, root, compose.WithBus(a.bus))

	ec, err := mapEngine(cfg)
	if err != nil {
		return err
	}
	a.engine = engine.New(ec, root, a.bus)
	a.sched = scheduler.New(mapScheduler(cfg), a.engine, root)

	nc, err := mapNotifier(cfg)
	if err != nil {
		return err
	}
	a.notif = notifier.New(nc, ad, root, a.bus, st)

	pc, err := mapPublish(cfg)
	if err != nil {
		return err
	}
	a.publish = publish.New(pc, st, a.channels, ad, a.notif, a.prefs, root, publish.WithBus(a.bus))

	rc, err := mapRouter(cfg)
	if err != nil {
		return err
	}
	a.router = router.New(rc, root, ad, cfg.Telegram.OwnerUserIDs)
	bot.New(bot.Deps{
		Compose:   a.compose,
		Posts:     st,
		Channels:  a.channels,
		Prefs:     a.prefs,
		Gateway:   ad,
		Bus:       a.bus,
		Scheduler: a.sched,
		Passes:    a.publish,
		Notices:   a.notif,
	}, root).Register(a.router)

	oc, err := mapOps(cfg)
	if err != nil {
		return err
	}
	a.ops = ops.New(oc, root, st, a.status)
	return nil
}

func (a *App) buildSessions(cfg *config.Config) error {
	kind, ttl, vc, err := mapSessions(cfg)
	if err != nil {
		return err
	}
	if kind == "valkey" {
		client, err := valkey.NewClient(vc)
		if err != nil {
			return err
		}
		a.valkey = client
		a.closeOnFail = append(a.closeOnFail, client.Close)
		a.sessions = compose.NewValkeyStore(client, ttl)
		a.log.Info("sessions stored in valkey", logx.String("addr", vc.Address), logx.Duration("ttl", ttl))
		return nil
	}
	mem := compose.NewMemoryStore(ttl)
	a.sessions, a.sweeper = mem, mem
	a.sweepSpec = housekeepingSpec(cfg)
	return nil
}

// Done is closed when the app supervisor ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.startedAt = time.Now()
	run := a.sup.Context()

	if a.notif.Enabled() {
		a.notif.Start(run)
	}

	switch a.mode {
	case ModeDispatch:
		a.sup.Go("publish.loop", a.publish.Run)
	default:
		if err := a.startBot(run); err != nil {
			return err
		}
	}

	if a.ops.Enabled() {
		a.ops.Start(run)
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started", logx.Bool("dispatch_only", a.mode == ModeDispatch))
	return nil
}

func (a *App) startBot(run context.Context) error {
	if a.engine.Enabled() {
		a.engine.Start(run)
	}
	if err := a.publish.Start(a.sched); err != nil {
		return fmt.Errorf("register scheduler loop: %w", err)
	}
	if err := a.registerSweep(a.sweepSpec); err != nil {
		return err
	}
	if a.sched.Enabled() {
		a.sched.Start(run)
	} else {
		a.log.Warn("scheduler disabled; due posts will not be dispatched")
	}

	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})

	mctx, cancel := context.WithTimeout(run, 10*time.Second)
	defer cancel()
	if err := a.adapter.UpdateMenuCommands(mctx, a.router.MenuCommands()); err != nil {
		a.log.Warn("command menu update failed", logx.Err(err))
	}
	return nil
}

// registerSweep schedules the memory session sweep; valkey expires keys
// on its own.
func (a *App) registerSweep(spec string) error {
	a.sched.Remove(SweepTask)
	if a.sweeper == nil || spec == "" {
		return nil
	}
	mem := a.sweeper
	return a.sched.AddSchedule(SweepTask, spec, 30*time.Second, func(ctx context.Context) error {
		n, err := mem.Sweep(ctx)
		if n > 0 {
			a.log.Debug("expired sessions swept", logx.Int("count", n))
		}
		return err
	})
}

// Stop shuts components down in dependency order, each step bounded.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	a.step(ctx, "publish", time.Second, func(context.Context) error { a.publish.Stop(); return nil })
	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "taskengine", 2*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	a.step(ctx, "ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	a.step(ctx, "notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	a.step(ctx, "adapter", 2*time.Second, a.adapter.Stop)
	a.step(ctx, "sessions", time.Second, func(context.Context) error {
		if a.valkey != nil {
			a.valkey.Close()
		}
		return nil
	})
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	return a.logs.Close()
}
