package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"postbot/internal/post"
)

// Memory is a map-backed Store. It is used by tests and by the "memory"
// driver; nothing survives a restart.
type Memory struct {
	mu       sync.Mutex
	now      func() time.Time
	seq      int64
	posts    map[int64]post.Post
	chSeq    int64
	channels map[int64]Channel
	prefs    map[int64]Prefs
	dedup    map[string]time.Time

	failErr error
}

func NewMemory() *Memory {
	return &Memory{
		now:      time.Now,
		posts:    map[int64]post.Post{},
		channels: map[int64]Channel{},
		prefs:    map[int64]Prefs{},
		dedup:    map[string]time.Time{},
	}
}

// SetClock overrides the timestamp source for created_at/updated_at.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// SetFail makes every following call return a StoreUnavailableError
// wrapping err. Tests use it to simulate an unreachable store; nil heals.
func (m *Memory) SetFail(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

func (m *Memory) fail(op string) error {
	if m.failErr != nil {
		return &post.StoreUnavailableError{Op: op, Err: m.failErr}
	}
	return nil
}

func clonePost(p post.Post) post.Post {
	if p.Media != nil {
		md := *p.Media
		p.Media = &md
	}
	if p.At != nil {
		t := *p.At
		p.At = &t
	}
	p.Actions = append([]post.Action{}, p.Actions...)
	return p
}

func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fail("ping")
}

func (m *Memory) Close() error { return nil }

func (m *Memory) CreatePost(ctx context.Context, p post.Post) (post.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("create post"); err != nil {
		return p, err
	}
	p, err := prepareCreate(ctx, clonePost(p), m.now().UTC().Truncate(time.Second))
	if err != nil {
		return p, err
	}
	m.seq++
	p.ID = m.seq
	m.posts[p.ID] = p
	return clonePost(p), nil
}

func (m *Memory) GetPost(_ context.Context, id int64) (post.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get post"); err != nil {
		return post.Post{}, err
	}
	p, ok := m.posts[id]
	if !ok {
		return post.Post{}, post.ErrNotFound
	}
	return clonePost(p), nil
}

func (m *Memory) ListPosts(_ context.Context, f post.Filter) ([]post.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("list posts"); err != nil {
		return nil, err
	}
	out := []post.Post{}
	for _, p := range m.posts {
		if f.Match(p) {
			out = append(out, clonePost(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.At == nil && b.At != nil:
			return false
		case a.At != nil && b.At == nil:
			return true
		case a.At != nil && !a.At.Equal(*b.At):
			return a.At.Before(*b.At)
		}
		return a.ID < b.ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) UpdatePost(ctx context.Context, id int64, patch post.Patch) (post.Post, error) {
	return m.update(ctx, id, nil, patch)
}

func (m *Memory) UpdatePostIf(ctx context.Context, id int64, expect post.State, patch post.Patch) (post.Post, error) {
	return m.update(ctx, id, &expect, patch)
}

func (m *Memory) update(ctx context.Context, id int64, expect *post.State, patch post.Patch) (post.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("update post"); err != nil {
		return post.Post{}, err
	}
	cur, ok := m.posts[id]
	if !ok {
		return post.Post{}, post.ErrNotFound
	}
	next, err := applyPatch(ctx, clonePost(cur), expect, patch, m.now().UTC().Truncate(time.Second))
	if err != nil {
		return clonePost(cur), err
	}
	m.posts[id] = next
	return clonePost(next), nil
}

func (m *Memory) DeletePost(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("delete post"); err != nil {
		return err
	}
	if _, ok := m.posts[id]; !ok {
		return post.ErrNotFound
	}
	delete(m.posts, id)
	return nil
}

func (m *Memory) CreateChannel(_ context.Context, c Channel) (Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("create channel"); err != nil {
		return c, err
	}
	m.chSeq++
	c.ID = m.chSeq
	c.CreatedAt = m.now().UTC().Truncate(time.Second)
	m.channels[c.ID] = c
	return c, nil
}

func (m *Memory) GetChannel(_ context.Context, id int64) (Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get channel"); err != nil {
		return Channel{}, err
	}
	c, ok := m.channels[id]
	if !ok {
		return Channel{}, ErrChannelNotFound
	}
	return c, nil
}

func (m *Memory) FindChannel(_ context.Context, owner, chatID int64) (Channel, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("find channel"); err != nil {
		return Channel{}, false, err
	}
	for _, c := range m.channels {
		if c.Owner == owner && c.ChatID == chatID {
			return c, true, nil
		}
	}
	return Channel{}, false, nil
}

func (m *Memory) ListChannels(_ context.Context, owner int64) ([]Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("list channels"); err != nil {
		return nil, err
	}
	out := []Channel{}
	for _, c := range m.channels {
		if c.Owner == owner {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DeleteChannel(_ context.Context, owner, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("delete channel"); err != nil {
		return err
	}
	c, ok := m.channels[id]
	if !ok || c.Owner != owner {
		return ErrChannelNotFound
	}
	delete(m.channels, id)
	return nil
}

func (m *Memory) GetPrefs(_ context.Context, actor int64) (Prefs, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get prefs"); err != nil {
		return Prefs{}, false, err
	}
	p, ok := m.prefs[actor]
	if !ok {
		return Prefs{Actor: actor}, false, nil
	}
	return p, true, nil
}

func (m *Memory) PutPrefs(_ context.Context, p Prefs) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("put prefs"); err != nil {
		return err
	}
	m.prefs[p.Actor] = p
	return nil
}

func (m *Memory) PutDedup(_ context.Context, key string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("put dedup"); err != nil {
		return err
	}
	if key != "" {
		m.dedup[key] = until
	}
	return nil
}

func (m *Memory) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get dedup"); err != nil {
		return time.Time{}, false, err
	}
	until, ok := m.dedup[key]
	return until, ok, nil
}
