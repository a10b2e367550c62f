package storage

import (
	"context"
	"errors"
	"time"

	"postbot/internal/post"
)

var ErrChannelNotFound = errors.New("channel not found")

type Config struct {
	// Driver is one of "sqlite", "postgres" or "memory".
	Driver string
	// Path is the sqlite database file.
	Path string
	// DSN is the postgres connection string.
	DSN          string
	BusyTimeout  time.Duration // sqlite only; 0 means default
	MaxOpenConns int           // postgres only
}

// Channel is a delivery destination registered by an owner.
type Channel struct {
	ID        int64
	Owner     int64
	ChatID    int64
	Title     string
	Username  string
	CreatedAt time.Time
}

// Prefs are per-user presentation and reminder settings.
type Prefs struct {
	Actor        int64
	Timezone     string
	DatePattern  string
	TimePattern  string
	ReminderLead time.Duration
}

type Posts interface {
	CreatePost(ctx context.Context, p post.Post) (post.Post, error)
	GetPost(ctx context.Context, id int64) (post.Post, error)
	ListPosts(ctx context.Context, f post.Filter) ([]post.Post, error)
	// UpdatePost applies a sparse patch.
	UpdatePost(ctx context.Context, id int64, patch post.Patch) (post.Post, error)
	// UpdatePostIf applies patch only while the stored state equals expect,
	// otherwise it returns *post.ConcurrentEditError.
	UpdatePostIf(ctx context.Context, id int64, expect post.State, patch post.Patch) (post.Post, error)
	DeletePost(ctx context.Context, id int64) error
}

type Channels interface {
	CreateChannel(ctx context.Context, c Channel) (Channel, error)
	GetChannel(ctx context.Context, id int64) (Channel, error)
	FindChannel(ctx context.Context, owner, chatID int64) (Channel, bool, error)
	ListChannels(ctx context.Context, owner int64) ([]Channel, error)
	DeleteChannel(ctx context.Context, owner, id int64) error
}

type PrefsStore interface {
	GetPrefs(ctx context.Context, actor int64) (Prefs, bool, error)
	PutPrefs(ctx context.Context, p Prefs) error
}

// Dedup backs the notifier's persistent dedup window.
type Dedup interface {
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
}

type Store interface {
	Posts
	Channels
	PrefsStore
	Dedup
	Ping(ctx context.Context) error
	Close() error
}

// prepareCreate validates and normalizes a post before insertion.
func prepareCreate(ctx context.Context, p post.Post, now time.Time) (post.Post, error) {
	p.ID = 0
	p.Normalize()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Owner == 0 {
		return p, &post.ValidationError{Field: "owner", Reason: "required"}
	}
	if p.ChannelID == 0 {
		return p, &post.ValidationError{Field: "channel", Reason: "required"}
	}
	if err := post.ValidateActions(ctx, p.Actions); err != nil {
		return p, err
	}
	return p, nil
}

// applyPatch is the shared read-modify-write step of both backends.
func applyPatch(ctx context.Context, cur post.Post, expect *post.State, patch post.Patch, now time.Time) (post.Post, error) {
	if expect != nil && cur.State != *expect {
		return cur, &post.ConcurrentEditError{PostID: cur.ID, Expected: *expect, Actual: cur.State}
	}
	next := cur
	patch.Apply(&next)
	next.Normalize()
	if err := post.ValidateActions(ctx, next.Actions); err != nil {
		return cur, err
	}
	next.UpdatedAt = now
	return next, nil
}
