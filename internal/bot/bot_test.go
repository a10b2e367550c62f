package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"postbot/internal/channels"
	"postbot/internal/compose"
	"postbot/internal/post"
	"postbot/internal/prefs"
	"postbot/internal/router"
	"postbot/internal/storage"
	"postbot/internal/transport"
	"postbot/pkg/logx"
)

const (
	owner   = int64(1)
	visitor = int64(2)
)

var now = time.Date(2024, 12, 31, 12, 0, 0, 0, time.UTC)

type fakeChat struct {
	mu    sync.Mutex
	texts []string
	posts []transport.Outgoing
}

func (f *fakeChat) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeChat) Stop(context.Context) error                          { return nil }
func (f *fakeChat) EditText(context.Context, transport.MessageRef, string, *transport.SendOptions) error {
	return nil
}
func (f *fakeChat) AnswerCallback(context.Context, string, string) error { return nil }

func (f *fakeChat) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.texts)}, nil
}

func (f *fakeChat) SendPost(_ context.Context, to transport.ChatTarget, out transport.Outgoing) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, out)
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeChat) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

type harness struct {
	t    *testing.T
	db   *storage.Memory
	chat *fakeChat
	cs   *compose.Service
	pr   *prefs.Provider
	bot  *Bot
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := storage.NewMemory()
	db.SetClock(func() time.Time { return now })
	reg := channels.New(db, nil, logx.Nop())
	pr := prefs.New(db, prefs.Prefs{Timezone: "UTC", DatePattern: "YYYY-MM-DD", TimePattern: "HH:MM"})
	cs := compose.NewService(compose.NewMemoryStore(time.Hour), db, reg, pr, logx.Nop(),
		compose.WithClock(func() time.Time { return now }))
	chat := &fakeChat{}
	b := New(Deps{Compose: cs, Posts: db, Channels: reg, Prefs: pr, Gateway: chat}, logx.Nop())
	b.now = func() time.Time { return now }
	return &harness{t: t, db: db, chat: chat, cs: cs, pr: pr, bot: b}
}

// send routes updates through a fresh dispatcher and waits for them.
func (h *harness) send(ups ...transport.Update) {
	h.t.Helper()
	m := router.New(router.Config{Workers: 1}, logx.Nop(), h.chat, []int64{owner})
	h.bot.Register(m)
	ch := make(chan transport.Update, len(ups))
	for _, u := range ups {
		ch <- u
	}
	close(ch)
	if err := m.Run(context.Background(), ch); err != nil {
		h.t.Fatalf("run: %v", err)
	}
}

func text(from int64, s string) transport.Update {
	return transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{ChatID: from, FromID: from, Text: s}}
}

func button(from int64, data string) transport.Update {
	return transport.Update{Kind: transport.UpdateCallback, Callback: &transport.Callback{ID: "cb", ChatID: from, FromID: from, Data: data}}
}

func (h *harness) session(actor int64) *compose.Session {
	h.t.Helper()
	s, ok, err := h.cs.Current(context.Background(), actor)
	if err != nil || !ok {
		h.t.Fatalf("no open session: %v", err)
	}
	return s
}

func (h *harness) seed(p post.Post) post.Post {
	h.t.Helper()
	out, err := h.db.CreatePost(context.Background(), p)
	if err != nil {
		h.t.Fatalf("seed: %v", err)
	}
	if p.State.Terminal() {
		out, err = h.db.UpdatePost(context.Background(), out.ID, post.Patch{State: post.Ptr(p.State)})
		if err != nil {
			h.t.Fatalf("seed state: %v", err)
		}
	}
	return out
}

func TestComposeThroughChat(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.send(
		text(owner, "/channels add -1001"),
		text(owner, "/create"),
		text(owner, "Hello"),
		text(owner, "/skip"),
		text(owner, "markdown"),
		text(owner, "none"),
		text(owner, "2024-12-31 11:00"),
	)
	if got := h.chat.last(); !strings.Contains(got, "already in the past") || !strings.Contains(got, "Step 5/8") {
		t.Fatalf("past time reply %q", got)
	}

	h.send(text(owner, "2025-01-01 10:00"), text(owner, "1d"), text(owner, "1"))
	s := h.session(owner)
	if s.Step != compose.StepConfirm {
		t.Fatalf("step %s", s.Step)
	}
	if len(h.chat.posts) != 1 || h.chat.posts[0].Text != "Hello" || h.chat.posts[0].ParseMode != "Markdown" {
		t.Fatalf("preview %+v", h.chat.posts)
	}

	h.send(button(owner, "compose:accept:"+s.ID))
	if got := h.chat.last(); got != "Post #1 scheduled for 2025-01-01 10:00 (UTC). It repeats every 1d." {
		t.Fatalf("saved reply %q", got)
	}
	p, err := h.db.GetPost(context.Background(), 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	if p.Text != "Hello" || p.Format != post.FormatMarkdown || p.State != post.StateScheduled ||
		!p.At.Equal(want) || p.Repeat != 24*time.Hour || p.ChannelID != 1 || len(p.Actions) != 0 {
		t.Fatalf("stored %+v", p)
	}
}

func TestStaleButtonAndCancel(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.send(text(owner, "/create"))
	first := h.session(owner).ID
	h.send(text(owner, "/create"))

	h.send(button(owner, "compose:cancel:"+first))
	if got := h.chat.last(); !strings.Contains(got, "earlier post") {
		t.Fatalf("stale reply %q", got)
	}
	h.send(text(owner, "/cancel"))
	if got := h.chat.last(); got != "Cancelled. Nothing was saved." {
		t.Fatalf("cancel reply %q", got)
	}
	if posts, _ := h.db.ListPosts(context.Background(), post.Filter{}); len(posts) != 0 {
		t.Fatalf("cancel wrote %d posts", len(posts))
	}
}

func TestOtherCommandsDiscardSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.send(text(owner, "/create"), text(owner, "/skip"), text(owner, "/back"))
	if s := h.session(owner); s.Step != compose.StepText {
		t.Fatalf("controls moved to %s", s.Step)
	}
	h.send(text(owner, "/list"))
	if _, ok, _ := h.cs.Current(context.Background(), owner); ok {
		t.Fatalf("session survived /list")
	}
	h.send(text(owner, "hello?"))
	if got := h.chat.last(); !strings.Contains(got, "/create") {
		t.Fatalf("no-session reply %q", got)
	}
}

func TestList(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	at := now.Add(2 * time.Hour)
	h.seed(post.Post{Owner: owner, ChannelID: 9, Text: "An announcement that is definitely longer than thirty runes", At: &at, Repeat: time.Hour})
	h.seed(post.Post{Owner: owner, ChannelID: 9, Media: &post.Media{Kind: post.MediaPhoto, Ref: "x"}})
	h.seed(post.Post{Owner: owner, ChannelID: 9, Text: "gone", At: &at, State: post.StatePublished})
	h.seed(post.Post{Owner: visitor, ChannelID: 9, Text: "not mine"})

	h.send(text(owner, "/list"))
	got := h.chat.last()
	for _, want := range []string{
		"Pending posts (2)",
		"<b>#1</b> An announcement that is defini…",
		"2024-12-31 14:00, 2 hours from now, every 1h",
		"#9 (removed)",
		"<b>#2</b> [photo] (no text)",
		"Draft, not scheduled",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("list missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "gone") || strings.Contains(got, "not mine") {
		t.Fatalf("list leaks posts:\n%s", got)
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	draft := h.seed(post.Post{Owner: owner, ChannelID: 9, Text: "draft"})
	pub := h.seed(post.Post{Owner: owner, ChannelID: 9, Text: "pub", State: post.StatePublished})
	foreign := h.seed(post.Post{Owner: visitor, ChannelID: 9, Text: "x"})

	h.send(text(owner, "/delete 2"))
	if got := h.chat.last(); !strings.Contains(got, "already published") {
		t.Fatalf("published delete %q", got)
	}
	h.send(text(owner, "/delete 3"))
	if got := h.chat.last(); !strings.Contains(got, "Post not found") {
		t.Fatalf("foreign delete %q", got)
	}
	h.send(text(owner, "/delete #1"))
	if _, err := h.db.GetPost(context.Background(), draft.ID); err != post.ErrNotFound {
		t.Fatalf("draft still there: %v", err)
	}
	for _, id := range []int64{pub.ID, foreign.ID} {
		if _, err := h.db.GetPost(context.Background(), id); err != nil {
			t.Fatalf("post %d removed: %v", id, err)
		}
	}
}

func TestChannelsAndSettings(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	at := now.Add(time.Hour)
	h.send(text(owner, "/channels add -1001"), text(owner, "/channels add -1001"))
	if got := h.chat.last(); !strings.Contains(got, "already registered") {
		t.Fatalf("duplicate add %q", got)
	}
	h.seed(post.Post{Owner: owner, ChannelID: 1, At: &at})
	h.send(text(owner, "/channels remove 1"))
	if got := h.chat.last(); !strings.Contains(got, "1 scheduled post(s)") {
		t.Fatalf("remove reply %q", got)
	}

	h.send(text(owner, "/settings tz Mars/Olympus"))
	if got := h.chat.last(); !strings.HasPrefix(got, "Invalid settings") {
		t.Fatalf("bad tz reply %q", got)
	}
	h.send(text(owner, "/settings tz Europe/Berlin"), text(owner, "/settings notify 10m"))
	p, err := h.pr.Get(context.Background(), owner)
	if err != nil || p.Timezone != "Europe/Berlin" || p.ReminderLead != 10*time.Minute {
		t.Fatalf("prefs %+v %v", p, err)
	}
	if got := h.chat.last(); !strings.Contains(got, "10m before publishing") || !strings.Contains(got, "2024-12-31 13:00") {
		t.Fatalf("settings card %q", got)
	}
	h.send(text(owner, "/settings notify off"))
	if p, _ := h.pr.Get(context.Background(), owner); p.ReminderLead != 0 {
		t.Fatalf("notify off kept %v", p.ReminderLead)
	}
}

func TestStatusOwnerOnly(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.send(text(visitor, "/status"))
	if got := h.chat.last(); got != "unauthorized" {
		t.Fatalf("visitor status %q", got)
	}
	h.send(text(owner, "/create"), text(owner, "/status"))
	got := h.chat.last()
	if !strings.Contains(got, "Status") || !strings.Contains(got, "Open sessions</b>: 1") {
		t.Fatalf("status %q", got)
	}
}
