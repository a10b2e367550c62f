package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"postbot/internal/channels"
	"postbot/internal/eventbus"
	"postbot/internal/post"
	"postbot/internal/router"
	"postbot/pkg/tgui"
)

const previewRunes = 30

// NoText marks posts without text in listings.
const NoText = "(no text)"

func textPreview(p post.Post) string {
	t := strings.Join(strings.Fields(p.Text), " ")
	if t == "" {
		t = NoText
	}
	t = tgui.TruncRunes(t, previewRunes)
	if p.Media != nil {
		t = "[" + string(p.Media.Kind) + "] " + t
	}
	return t
}

func (b *Bot) onList(ctx context.Context, req *router.Request) error {
	posts, err := b.deps.Posts.ListPosts(ctx, post.Pending(req.FromID))
	if err != nil {
		return b.fail(ctx, req, err)
	}
	if len(posts) == 0 {
		return b.reply(ctx, req, "You have no drafts or scheduled posts. Start one with /create.")
	}
	tr, err := b.deps.Prefs.Translator(ctx, req.FromID)
	if err != nil {
		return b.fail(ctx, req, err)
	}

	names := map[int64]string{}
	channelName := func(id int64) string {
		if n, ok := names[id]; ok {
			return n
		}
		n := fmt.Sprintf("#%d (removed)", id)
		if c, err := b.deps.Channels.Get(ctx, id); err == nil {
			n = channels.DisplayName(c)
		}
		names[id] = n
		return n
	}

	now := b.now()
	ui := tgui.New().Title("🗂", fmt.Sprintf("Pending posts (%d)", len(posts)))
	for _, p := range posts {
		ui.Blank()
		ui.RawLine(tgui.B(fmt.Sprintf("#%d", p.ID)).String() + " " + tgui.Esc(textPreview(p)).String())
		ui.Line("Channel: " + channelName(p.ChannelID))
		if p.At == nil {
			ui.Line("Draft, not scheduled")
			continue
		}
		when := tr.Render(*p.At) + ", " + humanize.RelTime(*p.At, now, "ago", "from now")
		if p.Repeat > 0 {
			when += ", every " + post.FormatRepeat(p.Repeat)
		}
		ui.Line("When: " + when)
	}
	ui.Blank().Line("Times are in " + tr.Location().String() + ". Change with /edit <id>, remove with /delete <id>.")
	_, err = req.ReplyMsg(ctx, ui.Build())
	return err
}

func (b *Bot) onDelete(ctx context.Context, req *router.Request) error {
	id, ok := postID(req.Args)
	if !ok {
		return b.reply(ctx, req, "Usage: /delete <id>. See /list for ids.")
	}
	p, err := b.deps.Posts.GetPost(ctx, id)
	if err != nil || p.Owner != req.FromID {
		if err == nil {
			err = post.ErrNotFound
		}
		return b.fail(ctx, req, err)
	}
	if p.State == post.StatePublished {
		return b.reply(ctx, req, fmt.Sprintf("Post #%d is already published and cannot be deleted.", id))
	}
	if err := b.deps.Posts.DeletePost(ctx, id); err != nil {
		return b.fail(ctx, req, err)
	}
	b.deps.Bus.Publish(eventbus.Event{Type: eventbus.PostDeleted, Time: b.now(), Data: eventbus.PostData{
		PostID: p.ID, Owner: p.Owner, ChannelID: p.ChannelID, State: string(p.State),
	}})
	return b.reply(ctx, req, fmt.Sprintf("Post #%d deleted.", id))
}

// fail replies with a user-facing message for known errors and returns the
// rest to the router for logging.
func (b *Bot) fail(ctx context.Context, req *router.Request, err error) error {
	if msg, ok := userMessage(err); ok {
		return b.reply(ctx, req, msg)
	}
	_ = b.reply(ctx, req, "Something went wrong, try again later.")
	return err
}
