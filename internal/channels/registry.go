// Package channels is the registry of delivery destinations owned by users.
package channels

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"postbot/internal/post"
	"postbot/internal/storage"
	"postbot/internal/transport"
	"postbot/pkg/logx"
)

var ErrUnknownChat = errors.New("chat not found or bot has no access")

type Channel = storage.Channel

// Target is a resolved destination.
type Target struct {
	ChatID      int64
	DisplayName string
}

type Registry struct {
	store  storage.Channels
	lookup transport.ChatLookup
	log    logx.Logger
}

// New builds a registry. lookup may be nil, in which case only numeric chat
// ids can be registered and titles default to the id.
func New(store storage.Channels, lookup transport.ChatLookup, log logx.Logger) *Registry {
	return &Registry{store: store, lookup: lookup, log: log.With(logx.Component("channels"))}
}

// Resolve maps a registered channel id to its destination. ok is false when
// the channel no longer exists.
func (r *Registry) Resolve(ctx context.Context, channelID int64) (Target, bool, error) {
	c, err := r.store.GetChannel(ctx, channelID)
	if errors.Is(err, storage.ErrChannelNotFound) {
		return Target{}, false, nil
	}
	if err != nil {
		return Target{}, false, err
	}
	return Target{ChatID: c.ChatID, DisplayName: DisplayName(c)}, true, nil
}

func (r *Registry) List(ctx context.Context, owner int64) ([]Channel, error) {
	return r.store.ListChannels(ctx, owner)
}

func (r *Registry) Get(ctx context.Context, id int64) (Channel, error) {
	return r.store.GetChannel(ctx, id)
}

// Register adds ref (numeric chat id or @username) for owner. Registering
// the same chat twice returns the existing record.
func (r *Registry) Register(ctx context.Context, owner int64, ref string) (Channel, bool, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Channel{}, false, &post.ValidationError{Field: "channel", Reason: "expected a chat id or @username"}
	}
	info, err := r.describe(ctx, ref)
	if err != nil {
		return Channel{}, false, err
	}
	if existing, ok, err := r.store.FindChannel(ctx, owner, info.ID); err != nil {
		return Channel{}, false, err
	} else if ok {
		return existing, false, nil
	}
	c, err := r.store.CreateChannel(ctx, Channel{
		Owner:    owner,
		ChatID:   info.ID,
		Title:    info.Title,
		Username: info.Username,
	})
	if err != nil {
		return Channel{}, false, err
	}
	r.log.Info("channel registered", logx.Int64("owner", owner), logx.Int64("chat", c.ChatID), logx.Int64("id", c.ID))
	return c, true, nil
}

func (r *Registry) describe(ctx context.Context, ref string) (transport.ChatInfo, error) {
	if r.lookup != nil {
		info, err := r.lookup.LookupChat(ctx, ref)
		if err != nil {
			return info, fmt.Errorf("%w: %v", ErrUnknownChat, err)
		}
		if info.Title == "" {
			info.Title = strconv.FormatInt(info.ID, 10)
		}
		return info, nil
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return transport.ChatInfo{}, &post.ValidationError{Field: "channel", Reason: "expected a numeric chat id"}
	}
	return transport.ChatInfo{ID: id, Title: ref}, nil
}

func (r *Registry) Remove(ctx context.Context, owner, id int64) error {
	if err := r.store.DeleteChannel(ctx, owner, id); err != nil {
		return err
	}
	r.log.Info("channel removed", logx.Int64("owner", owner), logx.Int64("id", id))
	return nil
}

// DisplayName prefers @username, then the title.
func DisplayName(c Channel) string {
	if c.Username != "" {
		return "@" + strings.TrimPrefix(c.Username, "@")
	}
	if c.Title != "" {
		return c.Title
	}
	return strconv.FormatInt(c.ChatID, 10)
}

// Match finds the candidate selected by input: a 1-based index into the
// list, the chat id, @username or the exact title (case-insensitive).
func Match(candidates []Channel, input string) (Channel, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return Channel{}, false
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= len(candidates) {
		return candidates[n-1], true
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		for _, c := range candidates {
			if c.ChatID == id {
				return c, true
			}
		}
		return Channel{}, false
	}
	name := strings.TrimPrefix(s, "@")
	for _, c := range candidates {
		if c.Username != "" && strings.EqualFold(strings.TrimPrefix(c.Username, "@"), name) {
			return c, true
		}
	}
	for _, c := range candidates {
		if strings.EqualFold(c.Title, s) {
			return c, true
		}
	}
	return Channel{}, false
}
