package bot

import (
	"context"
	"fmt"
	"strings"

	"postbot/internal/channels"
	"postbot/internal/post"
	"postbot/internal/router"
	"postbot/pkg/tgui"
)

func (b *Bot) onChannels(ctx context.Context, req *router.Request) error {
	list, err := b.deps.Channels.List(ctx, req.FromID)
	if err != nil {
		return b.fail(ctx, req, err)
	}
	if len(list) == 0 {
		return b.reply(ctx, req, "No channels yet. Add the bot to a channel as an administrator, then send /channels add <chat id or @username>.")
	}
	ui := tgui.New().Title("📣", "Your channels")
	for i, c := range list {
		ui.Line(fmt.Sprintf("%d. %s (chat %d)", i+1, channels.DisplayName(c), c.ChatID))
	}
	ui.Blank().Line("Add with /channels add, remove with /channels remove <number>.")
	_, err = req.ReplyMsg(ctx, ui.Build())
	return err
}

func (b *Bot) onChannelAdd(ctx context.Context, req *router.Request) error {
	ref := strings.TrimSpace(strings.Join(req.Args, " "))
	if ref == "" {
		return b.reply(ctx, req, "Usage: /channels add <chat id or @username>")
	}
	c, created, err := b.deps.Channels.Register(ctx, req.FromID, ref)
	if err != nil {
		return b.fail(ctx, req, err)
	}
	if !created {
		return b.reply(ctx, req, "Channel "+channels.DisplayName(c)+" is already registered.")
	}
	return b.reply(ctx, req, "Channel "+channels.DisplayName(c)+" added. It is now offered at the channel step of /create.")
}

func (b *Bot) onChannelRemove(ctx context.Context, req *router.Request) error {
	input := strings.TrimSpace(strings.Join(req.Args, " "))
	if input == "" {
		return b.reply(ctx, req, "Usage: /channels remove <number or chat id>")
	}
	list, err := b.deps.Channels.List(ctx, req.FromID)
	if err != nil {
		return b.fail(ctx, req, err)
	}
	c, ok := channels.Match(list, input)
	if !ok {
		return b.reply(ctx, req, "No such channel. See /channels.")
	}
	if err := b.deps.Channels.Remove(ctx, req.FromID, c.ID); err != nil {
		return b.fail(ctx, req, err)
	}

	msg := "Channel " + channels.DisplayName(c) + " removed."
	if pending, err := b.deps.Posts.ListPosts(ctx, post.Pending(req.FromID)); err == nil {
		n := 0
		for _, p := range pending {
			if p.ChannelID == c.ID && p.State == post.StateScheduled {
				n++
			}
		}
		if n > 0 {
			msg += fmt.Sprintf(" %d scheduled post(s) still point at it and will fail unless you /edit them.", n)
		}
	}
	return b.reply(ctx, req, msg)
}
