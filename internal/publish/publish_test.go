package publish

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"postbot/internal/channels"
	"postbot/internal/eventbus"
	"postbot/internal/post"
	"postbot/internal/prefs"
	"postbot/internal/storage"
	"postbot/internal/task/engine"
	"postbot/internal/transport"
	"postbot/pkg/logx"
)

const owner = int64(42)

type sent struct {
	to  transport.ChatTarget
	out transport.Outgoing
}

type fakeGateway struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (g *fakeGateway) SendPost(_ context.Context, to transport.ChatTarget, out transport.Outgoing) (transport.MessageRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, sent{to: to, out: out})
	if g.err != nil {
		return transport.MessageRef{}, g.err
	}
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(g.sent)}, nil
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

type fakeNotifier struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (n *fakeNotifier) Notify(_ context.Context, note transport.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if note.Target.ChatID != owner {
		return errors.New("notice to wrong chat")
	}
	n.texts = append(n.texts, note.Text)
	return n.err
}

func (n *fakeNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.texts...)
}

type fixture struct {
	svc   *Service
	db    *storage.Memory
	gw    *fakeGateway
	notes *fakeNotifier
	prefs *prefs.Provider
	ch    channels.Channel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storage.NewMemory()
	reg := channels.New(db, nil, logx.Nop())
	ch, _, err := reg.Register(context.Background(), owner, "-100500")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	pr := prefs.New(db, prefs.Prefs{Timezone: "UTC", DatePattern: "YYYY-MM-DD", TimePattern: "HH:MM"})
	f := &fixture{db: db, gw: &fakeGateway{}, notes: &fakeNotifier{}, prefs: pr, ch: ch}
	f.svc = New(Config{}, db, reg, f.gw, f.notes, pr, logx.Nop())
	return f
}

func (f *fixture) seed(t *testing.T, at time.Time, repeat time.Duration) post.Post {
	t.Helper()
	p, err := f.db.CreatePost(context.Background(), post.Post{
		Owner: owner, ChannelID: f.ch.ID, Text: "Hello", Format: post.FormatPlain,
		Actions: []post.Action{}, At: &at, Repeat: repeat,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return p
}

func (f *fixture) get(t *testing.T, id int64) post.Post {
	t.Helper()
	p, err := f.db.GetPost(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return p
}

var at = time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

func TestOneShotPostPublishedOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p := f.seed(t, at, 0)
	ctx := context.Background()

	if _, err := f.svc.RunPass(ctx, at.Add(-time.Second)); err != nil || f.gw.count() != 0 {
		t.Fatalf("dispatched before due: %v %d", err, f.gw.count())
	}

	rep, err := f.svc.RunPass(ctx, at.Add(time.Second))
	if err != nil {
		t.Fatalf("pass: %v", err)
	}
	if rep.Published != 1 || f.get(t, p.ID).State != post.StatePublished {
		t.Fatalf("report %+v state %s", rep, f.get(t, p.ID).State)
	}
	g := f.gw.sent[0]
	if g.to.ChatID != -100500 || g.out.Text != "Hello" || g.out.ParseMode != "" {
		t.Fatalf("sent %+v", g)
	}

	for i := 2; i < 5; i++ {
		_, _ = f.svc.RunPass(ctx, at.Add(time.Duration(i)*time.Hour))
	}
	if f.gw.count() != 1 || f.get(t, p.ID).State != post.StatePublished {
		t.Fatalf("re-sent a published post: %d", f.gw.count())
	}
}

func TestRepeatingPostAdvancesByInterval(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p := f.seed(t, at, 24*time.Hour)
	_, _ = f.db.UpdatePost(context.Background(), p.ID, post.Patch{Notified: post.Ptr(true)})

	rep, err := f.svc.RunPass(context.Background(), at.Add(time.Second))
	if err != nil || rep.Rescheduled != 1 {
		t.Fatalf("pass: %+v %v", rep, err)
	}
	got := f.get(t, p.ID)
	want := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	if got.State != post.StateScheduled || !got.At.Equal(want) || got.Notified {
		t.Fatalf("after repeat: state=%s at=%v notified=%v", got.State, got.At, got.Notified)
	}

	// A late pass still advances from the stored time, not from now.
	_, _ = f.svc.RunPass(context.Background(), want.Add(3*time.Hour))
	if got := f.get(t, p.ID); !got.At.Equal(want.Add(24 * time.Hour)) {
		t.Fatalf("second repeat at %v", got.At)
	}
	if f.gw.count() != 2 {
		t.Fatalf("sends=%d", f.gw.count())
	}
}

func TestUnresolvedChannelFailsPost(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p := f.seed(t, at, time.Hour)
	if err := f.db.DeleteChannel(context.Background(), owner, f.ch.ID); err != nil {
		t.Fatalf("delete channel: %v", err)
	}

	rep, err := f.svc.RunPass(context.Background(), at)
	if err != nil || rep.Failed != 1 || rep.Dispatched != 0 {
		t.Fatalf("pass: %+v %v", rep, err)
	}
	if f.get(t, p.ID).State != post.StateFailed || f.gw.count() != 0 {
		t.Fatalf("state %s, sends %d", f.get(t, p.ID).State, f.gw.count())
	}
	if notes := f.notes.all(); len(notes) != 1 || !strings.Contains(notes[0], "no longer registered") {
		t.Fatalf("notices %v", notes)
	}
}

func TestDeliveryErrorConsumesPost(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.gw.err = errors.New("chat not found")
	one := f.seed(t, at, 0)
	rep := f.seed(t, at, time.Hour)

	r, err := f.svc.RunPass(context.Background(), at)
	if err != nil || r.DeliveryFailed != 2 {
		t.Fatalf("pass %+v %v", r, err)
	}
	for _, id := range []int64{one.ID, rep.ID} {
		if s := f.get(t, id).State; s != post.StatePublished {
			t.Fatalf("post %d state %s", id, s)
		}
	}
	notes := f.notes.all()
	want := "Failed to send post #1 to channel -100500: chat not found"
	if len(notes) != 2 || notes[0] != want {
		t.Fatalf("notices %q", notes)
	}
	_, _ = f.svc.RunPass(context.Background(), at.Add(time.Hour))
	if f.gw.count() != 2 {
		t.Fatalf("failed post retried")
	}
}

func TestReminderSentOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.prefs.SetReminderLead(ctx, owner, 10*time.Minute); err != nil {
		t.Fatalf("lead: %v", err)
	}
	now := at.Add(-20 * time.Minute)
	p := f.seed(t, now.Add(9*time.Minute), 0)
	early := f.seed(t, now.Add(30*time.Minute), 0)

	rep, err := f.svc.RunPass(ctx, now)
	if err != nil || rep.Reminded != 1 {
		t.Fatalf("pass %+v %v", rep, err)
	}
	if !f.get(t, p.ID).Notified || f.get(t, early.ID).Notified {
		t.Fatalf("notified flags wrong")
	}
	want := "⌛️ Post #1 in channel -100500 will be posted in 9 min."
	if notes := f.notes.all(); len(notes) != 1 || notes[0] != want {
		t.Fatalf("notices %q", notes)
	}

	_, _ = f.svc.RunPass(ctx, now.Add(30*time.Second))
	_, _ = f.svc.RunPass(ctx, now.Add(8*time.Minute+30*time.Second))
	if notes := f.notes.all(); len(notes) != 1 {
		t.Fatalf("second reminder sent: %q", notes)
	}
}

func TestReminderFailureStillMarksNotified(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.notes.err = errors.New("blocked by user")
	_, _ = f.prefs.SetReminderLead(context.Background(), owner, time.Hour)
	p := f.seed(t, at, 0)

	if _, err := f.svc.RunPass(context.Background(), at.Add(-30*time.Second)); err != nil {
		t.Fatalf("pass: %v", err)
	}
	if got := f.get(t, p.ID); !got.Notified || got.State != post.StateScheduled {
		t.Fatalf("post %+v", got)
	}
	if notes := f.notes.all(); len(notes) != 1 || !strings.HasSuffix(notes[0], "less than a minute.") {
		t.Fatalf("notices %q", notes)
	}
}

func TestNoReminderWithoutLead(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p := f.seed(t, at, 0)
	_, _ = f.svc.RunPass(context.Background(), at.Add(-time.Minute))
	if f.get(t, p.ID).Notified || len(f.notes.all()) != 0 {
		t.Fatalf("reminded with lead 0")
	}
}

func TestStoreUnavailableAbortsPass(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p := f.seed(t, at, 0)
	f.db.SetFail(errors.New("connection refused"))

	_, err := f.svc.RunPass(context.Background(), at)
	if !post.IsStoreUnavailable(err) || f.gw.count() != 0 {
		t.Fatalf("err=%v sends=%d", err, f.gw.count())
	}
	last, ok := f.svc.Last()
	if !ok || last.Err == nil {
		t.Fatalf("aborted pass not recorded")
	}

	f.db.SetFail(nil)
	if _, err := f.svc.RunPass(context.Background(), at); err != nil {
		t.Fatalf("recovered pass: %v", err)
	}
	if f.get(t, p.ID).State != post.StatePublished {
		t.Fatalf("post not published after recovery")
	}
}

// demotingGateway edits the post back to draft while the send is in flight.
type demotingGateway struct {
	db *storage.Memory
	id int64
}

func (g *demotingGateway) SendPost(ctx context.Context, to transport.ChatTarget, _ transport.Outgoing) (transport.MessageRef, error) {
	_, err := g.db.UpdatePost(ctx, g.id, post.Patch{ClearAt: true, State: post.Ptr(post.StateDraft)})
	return transport.MessageRef{ChatID: to.ChatID}, err
}

func TestConcurrentEditNotOverwritten(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p := f.seed(t, at, 0)
	reg := channels.New(f.db, nil, logx.Nop())
	svc := New(Config{}, f.db, reg, &demotingGateway{db: f.db, id: p.ID}, f.notes, f.prefs, logx.Nop())

	rep, err := svc.RunPass(context.Background(), at)
	if err != nil || rep.Published != 0 {
		t.Fatalf("pass %+v %v", rep, err)
	}
	if got := f.get(t, p.ID); got.State != post.StateDraft {
		t.Fatalf("edit overwritten: %s", got.State)
	}
}

func TestPassEventsPublished(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()
	reg := channels.New(f.db, nil, logx.Nop())
	svc := New(Config{}, f.db, reg, f.gw, f.notes, f.prefs, logx.Nop(), WithBus(bus))
	f.seed(t, at, 0)

	_, _ = svc.RunPass(context.Background(), at)
	var topics []string
	for len(events) > 0 {
		topics = append(topics, (<-events).Type)
	}
	if strings.Join(topics, ",") != eventbus.PostPublished+","+eventbus.PassFinished {
		t.Fatalf("topics %v", topics)
	}
}

func TestRenderMapsFormatMediaAndActions(t *testing.T) {
	t.Parallel()

	out := Render(post.Post{
		Text:    "*hi*",
		Format:  post.FormatMarkdown,
		Media:   &post.Media{Kind: post.MediaPhoto, Ref: "AgAD"},
		Actions: []post.Action{{Label: "Go", URL: "https://go.dev"}, {Label: "Docs", URL: "https://pkg.go.dev"}},
	})
	if out.ParseMode != "Markdown" || out.Media == nil || out.Media.FileID != "AgAD" || out.Media.Kind != transport.MediaPhoto {
		t.Fatalf("render %+v", out)
	}
	if len(out.Buttons) != 2 || out.Buttons[1].URL != "https://pkg.go.dev" || out.Buttons[0].Data != "" {
		t.Fatalf("buttons %+v", out.Buttons)
	}
	if Render(post.Post{Format: post.FormatRichText}).ParseMode != "HTML" {
		t.Fatalf("richtext parse mode")
	}
}

type fakeScheduler struct {
	name    string
	every   time.Duration
	opt     engine.TaskOptions
	job     func(context.Context) error
	removed bool
}

func (s *fakeScheduler) AddIntervalOpt(name string, every, _ time.Duration, opt engine.TaskOptions, job func(ctx context.Context) error) error {
	s.name, s.every, s.opt, s.job = name, every, opt, job
	return nil
}

func (s *fakeScheduler) Remove(name string) bool {
	s.removed = name == s.name
	return s.removed
}

func TestStartRegistersNonOverlappingTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.svc.now = func() time.Time { return at }
	f.seed(t, at, 0)
	sched := &fakeScheduler{}
	if err := f.svc.Start(sched); err != nil {
		t.Fatalf("start: %v", err)
	}
	if sched.name != TaskName || sched.every != 5*time.Second || sched.opt.Overlap != engine.OverlapSkipIfRunning || sched.opt.RetryMax >= 0 {
		t.Fatalf("registration %+v", sched)
	}
	if err := sched.job(context.Background()); err != nil || f.gw.count() != 1 {
		t.Fatalf("job: %v sends=%d", err, f.gw.count())
	}

	f.db.SetFail(errors.New("down"))
	if err := sched.job(context.Background()); !engine.IsNoRetry(err) {
		t.Fatalf("store error should not be retried by the engine: %v", err)
	}

	_ = f.svc.Apply(Config{PollInterval: time.Minute})
	if sched.every != time.Minute {
		t.Fatalf("apply did not re-register")
	}
	f.svc.Stop()
	if !sched.removed {
		t.Fatalf("stop did not unregister")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	svc := New(Config{PollInterval: 10 * time.Millisecond}, f.db, channels.New(f.db, nil, logx.Nop()), f.gw, f.notes, f.prefs, logx.Nop(),
		WithClock(func() time.Time { return at }))
	f.seed(t, at, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(svc.Reports()) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("loop not ticking")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
	if f.gw.count() != 1 {
		t.Fatalf("sends=%d", f.gw.count())
	}
}
