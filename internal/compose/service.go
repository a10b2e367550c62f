// Package compose runs the guided input flow that assembles a post field by
// field: Text, Media, Format, Actions, Time, Repeat, Channel, Confirm.
//
// Every step is a typed validator returning Accepted, Skipped or Rejected.
// A Rejected input leaves the collected fields untouched and re-prompts the
// same step. Sessions are plain data kept in a Store keyed by owner, one
// per owner; starting a new flow replaces the old one.
package compose

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"postbot/internal/channels"
	"postbot/internal/eventbus"
	"postbot/internal/post"
	"postbot/internal/storage"
	"postbot/internal/timefmt"
	"postbot/pkg/logx"
)

var (
	// ErrNoSession is returned by signals sent without an open session.
	ErrNoSession = errors.New("no open session")
	// ErrStaleSession is returned when a signal names a replaced session.
	ErrStaleSession = errors.New("session was replaced")
)

// ChannelSource lists and fetches the owner's registered channels.
type ChannelSource interface {
	List(ctx context.Context, owner int64) ([]channels.Channel, error)
	Get(ctx context.Context, id int64) (channels.Channel, error)
}

// TranslatorSource returns the actor's time translator.
type TranslatorSource interface {
	Translator(ctx context.Context, actor int64) (timefmt.Translator, error)
}

// Turn is the reply to one signal.
type Turn struct {
	// Session is nil once the flow is closed.
	Session *Session
	Step    Step
	Result  Result
	// Prompt is the text for the step now waiting for input.
	Prompt string
	// Example is a valid time in the actor's pattern, for error messages.
	Example string
	// Preview is set when the flow reached the confirm step.
	Preview *Preview
	// Post is the stored record after a successful confirm.
	Post   *post.Post
	Closed bool
}

// Explain renders a Rejected reason for the actor.
func (t Turn) Explain() string { return Explain(t.Result.Reason, t.Example) }

type Service struct {
	store    Store
	posts    storage.Posts
	channels ChannelSource
	prefs    TranslatorSource
	bus      eventbus.Bus
	log      logx.Logger
	now      func() time.Time

	locks sync.Map // owner -> *sync.Mutex
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }
func WithBus(bus eventbus.Bus) Option       { return func(s *Service) { s.bus = bus } }

func NewService(store Store, posts storage.Posts, ch ChannelSource, prefs TranslatorSource, log logx.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		posts:    posts,
		channels: ch,
		prefs:    prefs,
		bus:      eventbus.Nop(),
		log:      log.With(logx.Component("compose")),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// lock serializes turns of one owner.
func (s *Service) lock(owner int64) func() {
	v, _ := s.locks.LoadOrStore(owner, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *Service) env(ctx context.Context, owner int64) (turnEnv, error) {
	tr, err := s.prefs.Translator(ctx, owner)
	if err != nil {
		return turnEnv{}, err
	}
	cands, err := s.channels.List(ctx, owner)
	if err != nil {
		return turnEnv{}, err
	}
	return turnEnv{ctx: ctx, now: s.now().UTC(), translator: tr.WithClock(s.now), candidates: cands}, nil
}

// Start opens a create-mode session, replacing any open one.
func (s *Service) Start(ctx context.Context, owner int64) (Turn, error) {
	defer s.lock(owner)()
	now := s.now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		Owner:     owner,
		Mode:      ModeCreate,
		Step:      StepText,
		History:   []Step{},
		Fields:    createDefaults(),
		Touched:   []Step{},
		StartedAt: now,
		UpdatedAt: now,
	}
	return s.open(ctx, sess)
}

// StartEdit opens an edit-mode session for one of owner's posts.
func (s *Service) StartEdit(ctx context.Context, owner, postID int64) (Turn, error) {
	defer s.lock(owner)()
	p, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return Turn{}, err
	}
	if p.Owner != owner {
		return Turn{}, post.ErrNotFound
	}
	if p.State.Terminal() {
		return Turn{}, post.ErrTerminal
	}
	now := s.now().UTC()
	orig := p
	sess := &Session{
		ID:        uuid.NewString(),
		Owner:     owner,
		Mode:      ModeEdit,
		PostID:    p.ID,
		Step:      StepText,
		History:   []Step{},
		Fields:    editDefaults(p),
		Touched:   []Step{},
		Original:  &orig,
		StartedAt: now,
		UpdatedAt: now,
	}
	if c, err := s.channels.Get(ctx, p.ChannelID); err == nil {
		sess.Fields.ChannelName = channels.DisplayName(c)
	}
	return s.open(ctx, sess)
}

func (s *Service) open(ctx context.Context, sess *Session) (Turn, error) {
	if err := s.store.Put(ctx, sess); err != nil {
		return Turn{}, err
	}
	env, err := s.env(ctx, sess.Owner)
	if err != nil {
		return Turn{}, err
	}
	s.log.Debug("session started", logx.Int64("owner", sess.Owner), logx.String("mode", string(sess.Mode)),
		logx.Int64("post", sess.PostID), logx.String("session", sess.ID))
	return s.turn(env, sess, Result{}), nil
}

// Current returns the owner's open session, if any.
func (s *Service) Current(ctx context.Context, owner int64) (*Session, bool, error) {
	return s.store.Get(ctx, owner)
}

// load fetches the open session. A non-empty id must match it, so buttons
// from an older session cannot act on a newer one.
func (s *Service) load(ctx context.Context, owner int64, id string) (*Session, error) {
	sess, ok, err := s.store.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSession
	}
	if id != "" && sess.ID != id {
		return nil, ErrStaleSession
	}
	return sess, nil
}

// Input feeds free text or an attachment to the current step.
func (s *Service) Input(ctx context.Context, owner int64, in Input) (Turn, error) {
	return s.step(ctx, owner, "", func(env turnEnv, sess *Session, v stepValidator) outcome {
		return v.input(env, sess, in)
	})
}

// Skip stores the current step's default and advances.
func (s *Service) Skip(ctx context.Context, owner int64, sessionID string) (Turn, error) {
	return s.step(ctx, owner, sessionID, func(env turnEnv, sess *Session, v stepValidator) outcome {
		return v.skip(env, sess)
	})
}

func (s *Service) step(ctx context.Context, owner int64, id string, run func(turnEnv, *Session, stepValidator) outcome) (Turn, error) {
	defer s.lock(owner)()
	sess, err := s.load(ctx, owner, id)
	if err != nil {
		return Turn{}, err
	}
	env, err := s.env(ctx, owner)
	if err != nil {
		return Turn{}, err
	}
	v, ok := validators[sess.Step]
	if !ok {
		// Confirm takes accept or reject only.
		res := rejected(&post.ValidationError{Field: "confirm", Reason: "use accept or reject"})
		return s.turn(env, sess, res), nil
	}

	out := run(env, sess, v)
	if out.Kind == Rejected {
		s.log.Debug("input rejected", logx.Int64("owner", owner), logx.String("step", sess.Step.String()), logx.Err(out.Reason))
		return s.turn(env, sess, out.Result), nil
	}
	out.set(&sess.Fields)
	if out.touch {
		sess.touch(sess.Step)
	} else {
		sess.untouch(sess.Step)
	}
	sess.advance()
	sess.UpdatedAt = env.now
	if err := s.store.Put(ctx, sess); err != nil {
		return Turn{}, err
	}
	return s.turn(env, sess, out.Result), nil
}

// Back returns to the previous step and discards the value it collected.
// With an empty history it only repeats the current prompt.
func (s *Service) Back(ctx context.Context, owner int64, sessionID string) (Turn, error) {
	defer s.lock(owner)()
	sess, err := s.load(ctx, owner, sessionID)
	if err != nil {
		return Turn{}, err
	}
	env, err := s.env(ctx, owner)
	if err != nil {
		return Turn{}, err
	}
	if n := len(sess.History); n > 0 {
		prev := sess.History[n-1]
		sess.History = sess.History[:n-1]
		sess.Step = prev
		sess.reset(prev)
		sess.UpdatedAt = env.now
		if err := s.store.Put(ctx, sess); err != nil {
			return Turn{}, err
		}
	}
	return s.turn(env, sess, Result{}), nil
}

// Cancel destroys the owner's session without writing anything.
func (s *Service) Cancel(ctx context.Context, owner int64, sessionID string) (Turn, error) {
	defer s.lock(owner)()
	if _, err := s.load(ctx, owner, sessionID); err != nil {
		return Turn{}, err
	}
	if err := s.store.Delete(ctx, owner); err != nil {
		return Turn{}, err
	}
	s.log.Debug("session cancelled", logx.Int64("owner", owner))
	return Turn{Closed: true}, nil
}

// Discard drops any open session silently. Used when the actor starts an
// unrelated command.
func (s *Service) Discard(ctx context.Context, owner int64) error {
	defer s.lock(owner)()
	return s.store.Delete(ctx, owner)
}

// Reject at the confirm step discards the draft like Cancel.
func (s *Service) Reject(ctx context.Context, owner int64, sessionID string) (Turn, error) {
	return s.Cancel(ctx, owner, sessionID)
}

// Accept commits the session at the confirm step. Create mode writes every
// field; edit mode writes the touched fields only, and only while the
// record is still in the state it had when editing began.
func (s *Service) Accept(ctx context.Context, owner int64, sessionID string) (Turn, error) {
	defer s.lock(owner)()
	sess, err := s.load(ctx, owner, sessionID)
	if err != nil {
		return Turn{}, err
	}
	env, err := s.env(ctx, owner)
	if err != nil {
		return Turn{}, err
	}
	if sess.Step != StepConfirm {
		res := rejected(&post.ValidationError{Field: "confirm", Reason: "the post is not complete yet"})
		return s.turn(env, sess, res), nil
	}
	if c, err := s.channels.Get(ctx, sess.Fields.ChannelID); err != nil || c.Owner != owner {
		if err != nil && !errors.Is(err, storage.ErrChannelNotFound) {
			return Turn{}, err
		}
		return s.turn(env, sess, rejected(&post.ChannelUnresolvedError{ChannelID: sess.Fields.ChannelID})), nil
	}

	var saved post.Post
	switch sess.Mode {
	case ModeEdit:
		saved, err = s.commitEdit(ctx, sess)
	default:
		saved, err = s.posts.CreatePost(ctx, sess.Post())
	}
	var ce *post.ConcurrentEditError
	if errors.As(err, &ce) {
		_ = s.store.Delete(ctx, owner)
		s.log.Info("edit discarded, post changed meanwhile", logx.Int64("post", sess.PostID),
			logx.String("state", string(ce.Actual)))
		return Turn{Closed: true, Result: rejected(err)}, err
	}
	if err != nil {
		return Turn{}, err
	}
	if err := s.store.Delete(ctx, owner); err != nil {
		s.log.Warn("session delete failed", logx.Int64("owner", owner), logx.Err(err))
	}

	topic := eventbus.PostCreated
	if sess.Mode == ModeEdit {
		topic = eventbus.PostUpdated
	}
	s.bus.Publish(eventbus.Event{Type: topic, Data: eventbus.PostData{
		PostID: saved.ID, Owner: saved.Owner, ChannelID: saved.ChannelID, State: string(saved.State),
	}})
	s.log.Info("post saved", logx.Int64("post", saved.ID), logx.Int64("owner", owner),
		logx.String("mode", string(sess.Mode)), logx.String("state", string(saved.State)))
	return Turn{Closed: true, Result: accepted(), Post: &saved}, nil
}

func (s *Service) commitEdit(ctx context.Context, sess *Session) (post.Post, error) {
	if sess.Original == nil {
		return post.Post{}, fmt.Errorf("edit session %s has no original", sess.ID)
	}
	patch := sess.Patch()
	if patch.Empty() {
		cur, err := s.posts.GetPost(ctx, sess.PostID)
		if err != nil {
			return cur, err
		}
		if cur.State != sess.Original.State {
			return cur, &post.ConcurrentEditError{PostID: cur.ID, Expected: sess.Original.State, Actual: cur.State}
		}
		return cur, nil
	}
	return s.posts.UpdatePostIf(ctx, sess.PostID, sess.Original.State, patch)
}

func (s *Service) turn(env turnEnv, sess *Session, res Result) Turn {
	t := Turn{
		Session: sess,
		Step:    sess.Step,
		Result:  res,
		Prompt:  promptFor(env, sess),
		Example: env.translator.Example(env.now),
	}
	if sess.Step == StepConfirm {
		pv := buildPreview(sess, env.translator)
		t.Preview = &pv
	}
	return t
}

// Count reports open sessions, for status output.
func (s *Service) Count(ctx context.Context) (int, error) { return s.store.Count(ctx) }
