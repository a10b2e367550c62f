package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"postbot/internal/router"
	"postbot/pkg/tgui"
)

func (b *Bot) onStatus(ctx context.Context, req *router.Request) error {
	now := b.now()
	rel := func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return humanize.RelTime(t, now, "ago", "from now")
	}

	ui := tgui.New().Title("📊", "Status")
	ui.KV("Up since", rel(b.started))

	if b.deps.Scheduler != nil {
		s := b.deps.Scheduler.Snapshot()
		ui.Blank().Line("Scheduler")
		ui.KV("Running", fmt.Sprintf("%v (%s)", s.Running, s.Timezone))
		ui.KV("Workers", fmt.Sprintf("%d, %d in flight", s.Workers, s.InFlight))
		ui.KV("Queue", fmt.Sprintf("%d/%d, %s dropped, %s skipped", s.QueueLen, s.QueueCap,
			humanize.Comma(int64(s.Dropped)), humanize.Comma(int64(s.Skipped))))
		for _, it := range s.Schedules {
			ui.KV(it.Name, it.Spec+", next "+rel(it.Next))
		}
	}

	if b.deps.Passes != nil {
		ui.Blank().Line("Last pass")
		if r, ok := b.deps.Passes.Last(); ok {
			ui.KV("Started", rel(r.Started)+", took "+r.Took.Round(time.Millisecond).String())
			ui.KV("Dispatched", fmt.Sprintf("%d (published %d, rescheduled %d, delivery failed %d)",
				r.Dispatched, r.Published, r.Rescheduled, r.DeliveryFailed))
			ui.KV("Failed", fmt.Sprint(r.Failed))
			ui.KV("Reminders", fmt.Sprint(r.Reminded))
			if r.Err != nil {
				ui.KV("Error", r.Err.Error())
			}
		} else {
			ui.Line("no pass yet")
		}
		var sent, reminded int
		for _, r := range b.deps.Passes.Reports() {
			sent += r.Dispatched
			reminded += r.Reminded
		}
		ui.KV("Recent passes", fmt.Sprintf("%d sent, %d reminders", sent, reminded))
	}

	if b.deps.Notices != nil {
		var failed int
		hist := b.deps.Notices.History()
		for _, h := range hist {
			if h.Error != "" {
				failed++
			}
		}
		ui.KV("Notices", fmt.Sprintf("%d recent, %d failed", len(hist), failed))
	}

	if n, err := b.deps.Compose.Count(ctx); err == nil {
		ui.KV("Open sessions", humanize.Comma(int64(n)))
	}
	_, err := req.ReplyMsg(ctx, ui.Build())
	return err
}
