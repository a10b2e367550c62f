package bot

import (
	"context"
	"strings"
	"time"

	"postbot/internal/post"
	"postbot/internal/prefs"
	"postbot/internal/router"
	"postbot/pkg/tgui"
)

func (b *Bot) onSettings(ctx context.Context, req *router.Request) error {
	p, err := b.deps.Prefs.Get(ctx, req.FromID)
	if err != nil {
		return b.fail(ctx, req, err)
	}
	_, err = req.ReplyMsg(ctx, settingsCard(p, b.now()).Build())
	return err
}

func settingsCard(p prefs.Prefs, now time.Time) *tgui.Builder {
	ui := tgui.New().Title("⚙️", "Settings")
	ui.KV("Timezone", p.Timezone)
	ui.KV("Date format", p.DatePattern)
	ui.KV("Time format", p.TimePattern)
	ui.KV("Reminder", reminderLabel(p.ReminderLead))
	if tr, err := p.Translator(); err == nil {
		ui.KV("Now", tr.Render(now))
	}
	ui.Blank().Line("Change with /settings tz|datefmt|timefmt|notify <value>.")
	return ui
}

func reminderLabel(d time.Duration) string {
	if d <= 0 {
		return "off"
	}
	return post.FormatRepeat(d) + " before publishing"
}

type setter func(ctx context.Context, actor int64, value string) (prefs.Prefs, error)

func (b *Bot) updateSetting(ctx context.Context, req *router.Request, usage string, set setter) error {
	value := strings.TrimSpace(strings.Join(req.Args, " "))
	if value == "" {
		return b.reply(ctx, req, "Usage: "+usage)
	}
	p, err := set(ctx, req.FromID, value)
	if err != nil {
		return b.fail(ctx, req, err)
	}
	_, err = req.ReplyMsg(ctx, settingsCard(p, b.now()).Build())
	return err
}

func (b *Bot) onSetTimezone(ctx context.Context, req *router.Request) error {
	return b.updateSetting(ctx, req, "/settings tz Europe/Berlin", b.deps.Prefs.SetTimezone)
}

func (b *Bot) onSetDatePattern(ctx context.Context, req *router.Request) error {
	return b.updateSetting(ctx, req, "/settings datefmt DD.MM.YYYY", b.deps.Prefs.SetDatePattern)
}

func (b *Bot) onSetTimePattern(ctx context.Context, req *router.Request) error {
	return b.updateSetting(ctx, req, "/settings timefmt HH:MM", b.deps.Prefs.SetTimePattern)
}

func (b *Bot) onSetReminder(ctx context.Context, req *router.Request) error {
	return b.updateSetting(ctx, req, "/settings notify 10m|off", func(ctx context.Context, actor int64, v string) (prefs.Prefs, error) {
		lead := time.Duration(0)
		if !strings.EqualFold(v, "off") {
			d, err := post.ParseRepeat(v)
			if err != nil {
				return prefs.Prefs{}, &post.ValidationError{Field: "reminder", Reason: "expected off or a lead like 10m, 2h or 1d"}
			}
			lead = d
		}
		return b.deps.Prefs.SetReminderLead(ctx, actor, lead)
	})
}
