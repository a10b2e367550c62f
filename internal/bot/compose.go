package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"postbot/internal/compose"
	"postbot/internal/post"
	"postbot/internal/publish"
	"postbot/internal/router"
	"postbot/internal/transport"
	"postbot/pkg/logx"
	"postbot/pkg/tgui"
)

func (b *Bot) onCreate(ctx context.Context, req *router.Request) error {
	t, err := b.deps.Compose.Start(ctx, req.FromID)
	return b.replyTurn(ctx, req, t, err)
}

func (b *Bot) onEdit(ctx context.Context, req *router.Request) error {
	id, ok := postID(req.Args)
	if !ok {
		return b.reply(ctx, req, "Usage: /edit <id>. See /list for ids.")
	}
	t, err := b.deps.Compose.StartEdit(ctx, req.FromID, id)
	return b.replyTurn(ctx, req, t, err)
}

func (b *Bot) onSkip(ctx context.Context, req *router.Request) error {
	t, err := b.deps.Compose.Skip(ctx, req.FromID, "")
	return b.replyTurn(ctx, req, t, err)
}

func (b *Bot) onBack(ctx context.Context, req *router.Request) error {
	t, err := b.deps.Compose.Back(ctx, req.FromID, "")
	return b.replyTurn(ctx, req, t, err)
}

func (b *Bot) onCancel(ctx context.Context, req *router.Request) error {
	t, err := b.deps.Compose.Cancel(ctx, req.FromID, "")
	return b.replyTurn(ctx, req, t, err)
}

// onMessage feeds free text and attachments to the open session. Group
// chatter is ignored.
func (b *Bot) onMessage(ctx context.Context, req *router.Request) error {
	msg := req.Message()
	if msg == nil || msg.IsGroup {
		return nil
	}
	in := compose.Input{Text: msg.Text}
	if msg.Media != nil {
		in.Media = &post.Media{Kind: msg.Media.Kind, Ref: msg.Media.FileID}
	}
	t, err := b.deps.Compose.Input(ctx, req.FromID, in)
	if errors.Is(err, compose.ErrNoSession) {
		return b.reply(ctx, req, "Nothing to do with that. Start a post with /create or see /help.")
	}
	return b.replyTurn(ctx, req, t, err)
}

// replyTurn renders the outcome of one compose signal.
func (b *Bot) replyTurn(ctx context.Context, req *router.Request, t compose.Turn, err error) error {
	if err != nil && !t.Closed {
		return b.fail(ctx, req, err)
	}
	if t.Closed {
		return b.reply(ctx, req, b.closedText(ctx, req.FromID, t, err))
	}

	var text strings.Builder
	if t.Result.Kind == compose.Rejected {
		text.WriteString(t.Explain())
		text.WriteString("\n\n")
	}
	if t.Preview != nil && !t.Preview.Empty && b.deps.Gateway != nil && t.Session != nil {
		b.sendPreview(ctx, req, t.Session)
	}
	text.WriteString(t.Prompt)

	opt := &transport.SendOptions{DisablePreview: true, Keyboard: turnKeyboard(t).Rows()}
	_, rerr := req.Reply(ctx, text.String(), opt)
	return rerr
}

func (b *Bot) closedText(ctx context.Context, owner int64, t compose.Turn, err error) string {
	if err != nil {
		msg, _ := userMessage(err)
		return msg
	}
	if t.Post == nil {
		return "Cancelled. Nothing was saved."
	}
	p := *t.Post
	if p.At == nil {
		return fmt.Sprintf("Post #%d saved as a draft.", p.ID)
	}
	when := p.At.UTC().Format("2006-01-02 15:04 MST")
	if tr, terr := b.deps.Prefs.Translator(ctx, owner); terr == nil {
		when = tr.Render(*p.At) + " (" + tr.Location().String() + ")"
	}
	s := fmt.Sprintf("Post #%d scheduled for %s.", p.ID, when)
	if p.Repeat > 0 {
		s += " It repeats every " + post.FormatRepeat(p.Repeat) + "."
	}
	return s
}

// sendPreview shows the post exactly as the channel will receive it.
func (b *Bot) sendPreview(ctx context.Context, req *router.Request, s *compose.Session) {
	out := publish.Render(s.Post())
	if _, err := b.deps.Gateway.SendPost(ctx, req.Chat, out); err != nil {
		req.Logger.Warn("preview failed", logx.Err(err))
		_ = b.reply(ctx, req, "The preview could not be rendered: "+err.Error()+
			"\nCheck the format, or go /back and fix the text.")
	}
}

func turnKeyboard(t compose.Turn) *tgui.Inline {
	kb := tgui.NewInline()
	if t.Session == nil {
		return kb
	}
	id := t.Session.ID
	btn := func(label, action string) transport.Button {
		return tgui.Btn(label, tgui.Data(composeScope, action, id))
	}
	if t.Step == compose.StepConfirm {
		kb.Row(btn("✅ Accept", "accept"), btn("✖️ Reject", "reject"))
		kb.Row(btn("⬅️ Back", "back"))
		return kb
	}
	kb.Row(btn("Skip", "skip"), btn("⬅️ Back", "back"), btn("Cancel", "cancel"))
	return kb
}

func postID(args []string) (int64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	return id, err == nil && id > 0
}
