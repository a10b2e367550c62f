package telegram

import (
	"context"
	"strings"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	"postbot/internal/transport"
	"postbot/pkg/tgui"
)

// NoText replaces an empty text-only post, which Telegram would refuse.
const NoText = "(no text)"

// part is one Telegram message of a delivered post.
type part struct {
	media   *transport.Media
	text    string
	buttons bool
}

// plan lays a post out as Telegram messages. Media carries the text as its
// caption when it fits; otherwise the media goes first and the text follows
// in message-sized chunks. Buttons ride on the last message.
func plan(out transport.Outgoing) []part {
	text := out.Text
	if out.Media != nil {
		if utf8.RuneCountInString(text) <= tgui.MaxCaptionLen {
			return []part{{media: out.Media, text: text, buttons: true}}
		}
		parts := []part{{media: out.Media}}
		for _, c := range tgui.SplitText(text, tgui.MaxMessageLen) {
			parts = append(parts, part{text: c})
		}
		parts[len(parts)-1].buttons = true
		return parts
	}
	if strings.TrimSpace(text) == "" {
		return []part{{text: NoText, buttons: true}}
	}
	var parts []part
	for _, c := range tgui.SplitText(text, tgui.MaxMessageLen) {
		parts = append(parts, part{text: c})
	}
	parts[len(parts)-1].buttons = true
	return parts
}

// SendPost delivers a rendered post. The returned ref points at the first
// message. A failure midway returns the error; parts already sent stay.
func (a *Adapter) SendPost(ctx context.Context, to transport.ChatTarget, out transport.Outgoing) (transport.MessageRef, error) {
	var first transport.MessageRef
	chat := &tele.Chat{ID: to.ChatID}
	for i, p := range plan(out) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		opt := &transport.SendOptions{ParseMode: out.ParseMode}
		if p.buttons {
			opt.Keyboard = tgui.Column(out.Buttons)
		}
		so := sendOptions(to, opt)
		if p.text == NoText && out.Media == nil {
			so.ParseMode = tele.ModeDefault
		}

		var what any = p.text
		if p.media != nil {
			what = mediaValue(p.media, p.text)
		}
		msg, err := a.bot.Send(chat, what, so)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func mediaValue(m *transport.Media, caption string) any {
	f := tele.File{FileID: m.FileID}
	if m.Kind == transport.MediaVideo {
		return &tele.Video{File: f, Caption: caption}
	}
	return &tele.Photo{File: f, Caption: caption}
}
