// Package bot is the chat command surface: it maps commands, buttons and
// free-form messages onto the compose, storage, channel and preference
// services.
package bot

import (
	"context"
	"time"

	"postbot/internal/channels"
	"postbot/internal/compose"
	"postbot/internal/eventbus"
	"postbot/internal/notifier"
	"postbot/internal/prefs"
	"postbot/internal/publish"
	"postbot/internal/router"
	"postbot/internal/storage"
	"postbot/internal/task/scheduler"
	"postbot/internal/transport"
	"postbot/pkg/logx"
)

const composeScope = "compose"

// SchedulerView exposes trigger and engine state for /status.
type SchedulerView interface {
	Snapshot() scheduler.Snapshot
}

// PassView exposes recent scheduler loop passes for /status.
type PassView interface {
	Last() (publish.Report, bool)
	Reports() []publish.Report
}

// NoticeView exposes recent owner notices for /status.
type NoticeView interface {
	History() []notifier.HistoryItem
}

type Deps struct {
	Compose  *compose.Service
	Posts    storage.Posts
	Channels *channels.Registry
	Prefs    *prefs.Provider
	// Gateway renders the post preview at the confirm step; optional.
	Gateway transport.Gateway
	Bus     eventbus.Bus

	Scheduler SchedulerView
	Passes    PassView
	Notices   NoticeView
}

type Bot struct {
	deps    Deps
	log     logx.Logger
	started time.Time
	now     func() time.Time
}

func New(deps Deps, log logx.Logger) *Bot {
	if deps.Bus == nil {
		deps.Bus = eventbus.Nop()
	}
	return &Bot{deps: deps, log: log.With(logx.Component("bot")), started: time.Now(), now: time.Now}
}

// Register installs the commands, buttons and message fallback on m.
func (b *Bot) Register(m *router.Manager) {
	m.SetRegistry(b.Commands(), b.Callbacks())
	m.SetFallback(b.onMessage)
}

// Commands is the command tree. Every command except the session controls
// closes an open compose session first.
func (b *Bot) Commands() []router.Command {
	d := b.discarding
	return []router.Command{
		{Route: "start", Description: "introduction", Handle: d(b.onStart)},
		{Route: "create", Aliases: []string{"new"}, Description: "compose a new post", Menu: true, Handle: b.onCreate},
		{Route: "edit", Description: "edit a pending post", Usage: "/edit <id>", Menu: true, Handle: b.onEdit},
		{Route: "list", Aliases: []string{"posts"}, Description: "show drafts and scheduled posts", Menu: true, Handle: d(b.onList)},
		{Route: "delete", Description: "delete a post", Usage: "/delete <id>", Menu: true, Handle: d(b.onDelete)},
		{Route: "skip", Description: "keep the default for this step", Handle: b.onSkip},
		{Route: "back", Description: "go to the previous step", Handle: b.onBack},
		{Route: "cancel", Description: "abandon the post being composed", Menu: true, Handle: b.onCancel},
		{Route: "channels", Description: "show your channels", Menu: true, Handle: d(b.onChannels)},
		{Route: "channels add", Description: "register a channel", Usage: "/channels add <chat id or @username>", Handle: d(b.onChannelAdd)},
		{Route: "channels remove", Aliases: []string{"unlink"}, Description: "unregister a channel", Usage: "/channels remove <number or chat id>", Handle: d(b.onChannelRemove)},
		{Route: "settings", Description: "show your settings", Menu: true, Handle: d(b.onSettings)},
		{Route: "settings tz", Description: "set the timezone", Usage: "/settings tz Europe/Berlin", Handle: d(b.onSetTimezone)},
		{Route: "settings datefmt", Description: "set the date pattern", Usage: "/settings datefmt DD.MM.YYYY", Handle: d(b.onSetDatePattern)},
		{Route: "settings timefmt", Description: "set the time pattern", Usage: "/settings timefmt HH:MM", Handle: d(b.onSetTimePattern)},
		{Route: "settings notify", Description: "set the reminder lead", Usage: "/settings notify 10m|off", Handle: d(b.onSetReminder)},
		{Route: "status", Description: "scheduler status", Access: router.AccessOwnerOnly, Handle: b.onStatus},
	}
}

func (b *Bot) Callbacks() []router.CallbackRoute {
	cb := func(action string, h router.CallbackHandlerFunc) router.CallbackRoute {
		return router.CallbackRoute{Scope: composeScope, Action: action, Handle: h}
	}
	return []router.CallbackRoute{
		cb("skip", func(ctx context.Context, req *router.Request, id string) error {
			t, err := b.deps.Compose.Skip(ctx, req.FromID, id)
			return b.replyTurn(ctx, req, t, err)
		}),
		cb("back", func(ctx context.Context, req *router.Request, id string) error {
			t, err := b.deps.Compose.Back(ctx, req.FromID, id)
			return b.replyTurn(ctx, req, t, err)
		}),
		cb("cancel", func(ctx context.Context, req *router.Request, id string) error {
			t, err := b.deps.Compose.Cancel(ctx, req.FromID, id)
			return b.replyTurn(ctx, req, t, err)
		}),
		cb("accept", func(ctx context.Context, req *router.Request, id string) error {
			t, err := b.deps.Compose.Accept(ctx, req.FromID, id)
			return b.replyTurn(ctx, req, t, err)
		}),
		cb("reject", func(ctx context.Context, req *router.Request, id string) error {
			t, err := b.deps.Compose.Reject(ctx, req.FromID, id)
			return b.replyTurn(ctx, req, t, err)
		}),
	}
}

// discarding closes the actor's open session before running h.
func (b *Bot) discarding(h router.HandlerFunc) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		if err := b.deps.Compose.Discard(ctx, req.FromID); err != nil {
			req.Logger.Warn("session discard failed", logx.Err(err))
		}
		return h(ctx, req)
	}
}

func (b *Bot) onStart(ctx context.Context, req *router.Request) error {
	_, err := req.Reply(ctx, "Hi! I publish posts to your channels on schedule.\n\n"+
		"1. Add me to a channel as an administrator.\n"+
		"2. Register it with /channels add <chat id or @username>.\n"+
		"3. Compose a post with /create.\n\n"+
		"See /help for all commands.", nil)
	return err
}

// reply sends text and reports a failed send as the handler error.
func (b *Bot) reply(ctx context.Context, req *router.Request, text string) error {
	_, err := req.Reply(ctx, text, &transport.SendOptions{DisablePreview: true})
	return err
}
