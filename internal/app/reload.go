package app

import (
	"context"
	"strings"
	"time"

	"postbot/internal/config"
	"postbot/pkg/logx"
)

// reloadLoop applies accepted config versions to the running components.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: only the newest version matters.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					drained = true
				}
			}
			a.apply(ctx, last, next)
			last = next
		}
	}
}

func (a *App) apply(ctx context.Context, prev, next *config.Config) {
	ch := config.Summarize(prev, next)
	if ch.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := ch.NeedsRestart(); len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLogging(next))
	a.router.SetOwners(next.Telegram.OwnerUserIDs)

	if d, err := mapDefaults(next); err == nil {
		a.prefs.Apply(d)
	} else {
		a.log.Warn("invalid defaults; keeping previous", logx.Err(err))
	}

	if a.mode == ModeBot {
		a.applyScheduling(ctx, next)
	}
	if err := a.applyPublish(next); err != nil {
		a.log.Warn("invalid scheduler loop config; keeping previous", logx.Err(err))
	}

	if nc, err := mapNotifier(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		was := a.notif.Enabled()
		a.notif.Apply(nc)
		switch {
		case was && !nc.Enabled:
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		case !was && nc.Enabled:
			a.log.Info("notifier enabled via config")
			a.notif.Start(ctx)
		}
	}

	if oc, err := mapOps(next); err != nil {
		a.log.Warn("invalid ops config; keeping previous", logx.Err(err))
	} else {
		a.ops.Reconfigure(ctx, oc)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Attrs...)
	a.log.Info("config reloaded", fields...)
}

// applyScheduling updates engine and triggers. The engine starts before the
// scheduler and stops after it.
func (a *App) applyScheduling(ctx context.Context, next *config.Config) {
	ec, err := mapEngine(next)
	if err != nil {
		a.log.Warn("invalid task_engine config; keeping previous", logx.Err(err))
		return
	}
	wasSched := a.sched.Enabled()
	sc := mapScheduler(next)

	if wasSched && !sc.Enabled {
		a.log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
	}
	a.engine.Apply(ctx, ec)
	a.sched.Apply(sc)
	if !wasSched && sc.Enabled {
		a.log.Info("scheduler enabled via config")
		a.sched.Start(ctx)
	}

	if spec := housekeepingSpec(next); spec != a.sweepSpec {
		if err := a.registerSweep(spec); err != nil {
			a.log.Warn("invalid housekeeping schedule; sweep disabled", logx.Err(err))
			return
		}
		a.sweepSpec = spec
	}
}

func (a *App) applyPublish(next *config.Config) error {
	pc, err := mapPublish(next)
	if err != nil {
		return err
	}
	return a.publish.Apply(pc)
}
