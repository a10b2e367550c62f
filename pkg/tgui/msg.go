package tgui

import (
	"context"
	"strings"

	"postbot/internal/transport"
)

// Message is a rendered UI payload: text + send options.
type Message struct {
	Text string
	Opt  *transport.SendOptions

	// More are follow-up chunks of a text too long for one message.
	More []string
}

// Send sends the Message via the provided adapter.
// The keyboard is only attached to the first message.
func (m Message) Send(ctx context.Context, ad transport.Adapter, to transport.ChatTarget) (transport.MessageRef, error) {
	if m.Opt == nil {
		m.Opt = &transport.SendOptions{}
	}
	ref, err := ad.SendText(ctx, to, m.Text, m.Opt)
	if err != nil {
		return ref, err
	}
	return ref, m.sendMore(ctx, ad, to)
}

// Edit replaces the message at ref. Follow-up chunks are sent as new
// messages since Telegram cannot edit several messages at once.
func (m Message) Edit(ctx context.Context, ad transport.Adapter, ref transport.MessageRef) error {
	if m.Opt == nil {
		m.Opt = &transport.SendOptions{}
	}
	if err := ad.EditText(ctx, ref, m.Text, m.Opt); err != nil {
		return err
	}
	return m.sendMore(ctx, ad, transport.ChatTarget{ChatID: ref.ChatID, ThreadID: ref.ThreadID})
}

func (m Message) sendMore(ctx context.Context, ad transport.Adapter, to transport.ChatTarget) error {
	if len(m.More) == 0 {
		return nil
	}
	opt2 := *m.Opt
	opt2.Keyboard = nil
	for _, t := range m.More {
		if strings.TrimSpace(t) == "" {
			continue
		}
		if _, err := ad.SendText(ctx, to, t, &opt2); err != nil {
			return err
		}
	}
	return nil
}

// Builder is the main ergonomic UI builder.
// Default: ParseMode=HTML, DisablePreview=true.
type Builder struct {
	parseMode      string
	disablePreview bool
	keyboard       [][]transport.Button
	lines          []string
}

// New creates a new builder with sensible defaults for Telegram.
func New() *Builder {
	return &Builder{parseMode: "HTML", disablePreview: true}
}

// ParseMode overrides Telegram parse mode ("HTML", "Markdown", or empty).
func (b *Builder) ParseMode(mode string) *Builder {
	b.parseMode = strings.TrimSpace(mode)
	return b
}

func (b *Builder) html() bool { return strings.EqualFold(b.parseMode, "HTML") }

// Inline attaches an inline keyboard.
func (b *Builder) Inline(kb *Inline) *Builder {
	if kb == nil {
		b.keyboard = nil
		return b
	}
	b.keyboard = kb.Rows()
	return b
}

// Title adds a bold title line. Emoji is optional.
func (b *Builder) Title(emoji, title string) *Builder {
	e := strings.TrimSpace(emoji)
	t := strings.TrimSpace(title)
	if t == "" {
		return b
	}
	if b.html() {
		t = B(t).String()
	}
	if e != "" {
		t = e + " " + t
	}
	b.lines = append(b.lines, t)
	return b
}

// Line adds a single line, escaping when ParseMode is HTML.
func (b *Builder) Line(s string) *Builder {
	if strings.TrimSpace(s) == "" {
		b.lines = append(b.lines, "")
		return b
	}
	if b.html() {
		s = Esc(s).String()
	}
	b.lines = append(b.lines, s)
	return b
}

// RawLine appends a line without escaping. Only use if you know what you're doing.
func (b *Builder) RawLine(s string) *Builder {
	b.lines = append(b.lines, s)
	return b
}

// Blank inserts an empty line.
func (b *Builder) Blank() *Builder { return b.Line("") }

// KV adds a "key: value" row with consistent formatting.
func (b *Builder) KV(key, value string) *Builder {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" {
		return b
	}
	if b.html() {
		b.lines = append(b.lines, "• "+B(key).String()+": "+Esc(value).String())
		return b
	}
	b.lines = append(b.lines, "• "+key+": "+value)
	return b
}

// Build produces a ready-to-send Message. Text over the Telegram limit is
// split on line boundaries into follow-up chunks.
func (b *Builder) Build() Message {
	text := strings.Trim(strings.Join(b.lines, "\n"), "\n")
	opt := &transport.SendOptions{ParseMode: b.parseMode, DisablePreview: b.disablePreview, Keyboard: b.keyboard}
	chunks := SplitText(text, MaxMessageLen)
	m := Message{Text: chunks[0], Opt: opt}
	if len(chunks) > 1 {
		m.More = chunks[1:]
	}
	return m
}
