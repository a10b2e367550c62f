package compose

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"

	"postbot/internal/valkey"
)

// Store holds at most one open session per owner.
type Store interface {
	Get(ctx context.Context, owner int64) (*Session, bool, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, owner int64) error
	Count(ctx context.Context) (int, error)
}

// MemoryStore keeps sessions in process. Expired sessions are invisible to
// Get and dropped by Sweep.
type MemoryStore struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time
	m   map[int64]memEntry
}

type memEntry struct {
	data    []byte
	expires time.Time
}

// DefaultTTL bounds how long an idle session survives.
const DefaultTTL = 24 * time.Hour

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, m: map[int64]memEntry{}}
}

func (m *MemoryStore) live(e memEntry) bool {
	return m.ttl <= 0 || m.now().Before(e.expires)
}

// Sessions are stored serialized so callers never share state with the store.
func (m *MemoryStore) Get(_ context.Context, owner int64) (*Session, bool, error) {
	m.mu.Lock()
	e, ok := m.m[owner]
	m.mu.Unlock()
	if !ok || !m.live(e) {
		return nil, false, nil
	}
	var s Session
	if err := json.Unmarshal(e.data, &s); err != nil {
		return nil, false, err
	}
	return &s, true, nil
}

func (m *MemoryStore) Put(_ context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.m[s.Owner] = memEntry{data: data, expires: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, owner int64) error {
	m.mu.Lock()
	delete(m.m, owner)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.m {
		if m.live(e) {
			n++
		}
	}
	return n, nil
}

// Sweep drops expired sessions and reports how many were removed.
func (m *MemoryStore) Sweep(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.m {
		if !m.live(e) {
			delete(m.m, k)
			n++
		}
	}
	return n, nil
}

// ValkeyStore keeps sessions as JSON strings with a TTL, so they survive a
// restart and expire on their own.
type ValkeyStore struct {
	client *valkey.Client
	ttl    time.Duration
}

func NewValkeyStore(client *valkey.Client, ttl time.Duration) *ValkeyStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ValkeyStore{client: client, ttl: ttl}
}

func (v *ValkeyStore) key(owner int64) string {
	return v.client.Key("session", strconv.FormatInt(owner, 10))
}

func (v *ValkeyStore) inner() valkeylib.Client { return v.client.Inner() }

func (v *ValkeyStore) Get(ctx context.Context, owner int64) (*Session, bool, error) {
	data, err := v.inner().Do(ctx, v.inner().B().Get().Key(v.key(owner)).Build()).AsBytes()
	if valkey.IsNil(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, fmt.Errorf("decode session: %w", err)
	}
	return &s, true, nil
}

func (v *ValkeyStore) Put(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	cmd := v.inner().B().Set().Key(v.key(s.Owner)).Value(string(data)).Ex(v.ttl).Build()
	if err := v.inner().Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (v *ValkeyStore) Delete(ctx context.Context, owner int64) error {
	if err := v.inner().Do(ctx, v.inner().B().Del().Key(v.key(owner)).Build()).Error(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Count walks the session keys with SCAN.
func (v *ValkeyStore) Count(ctx context.Context) (int, error) {
	pattern := v.client.Key("session", "*")
	n := 0
	var cursor uint64
	for {
		cmd := v.inner().B().Scan().Cursor(cursor).Match(pattern).Count(100).Build()
		res, err := v.inner().Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return n, fmt.Errorf("scan sessions: %w", err)
		}
		n += len(res.Elements)
		cursor = res.Cursor
		if cursor == 0 {
			return n, nil
		}
	}
}
