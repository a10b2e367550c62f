package notifier

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"postbot/internal/storage"
	"postbot/internal/transport"
)

// dedupKey hashes (channel, target, priority, text). Notices without a
// channel tag are never deduplicated.
func dedupKey(n transport.Notification) string {
	if n.Channel == "" {
		return ""
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d:%d:%d|%s", n.Channel, n.Target.ChatID, n.Target.ThreadID, n.Priority, n.Text)
	return fmt.Sprintf("%x", h.Sum64())
}

type dedupCache struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

func newDedupCache() *dedupCache {
	return &dedupCache{until: map[string]time.Time{}, now: time.Now}
}

// allow reports whether key may be sent now and, if so, opens a new
// suppression window. st, when set, extends the window across restarts.
func (c *dedupCache) allow(ctx context.Context, key string, window time.Duration, maxEntries int, st storage.Dedup) bool {
	now := c.now()
	c.mu.Lock()
	if until, ok := c.until[key]; ok && now.Before(until) {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	if st != nil {
		qctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
		until, ok, err := st.GetDedup(qctx, key)
		cancel()
		if err == nil && ok && now.Before(until) {
			c.mu.Lock()
			c.until[key] = until
			c.mu.Unlock()
			return false
		}
	}

	until := now.Add(window)
	c.mu.Lock()
	c.until[key] = until
	c.pruneLocked(now, maxEntries)
	c.mu.Unlock()

	if st != nil {
		wctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
		_ = st.PutDedup(wctx, key, until)
		cancel()
	}
	return true
}

// pruneLocked drops expired keys, then the earliest-expiring ones until the
// cache fits maxEntries.
func (c *dedupCache) pruneLocked(now time.Time, maxEntries int) {
	for k, until := range c.until {
		if !now.Before(until) {
			delete(c.until, k)
		}
	}
	for maxEntries > 0 && len(c.until) > maxEntries {
		var oldest string
		var oldestAt time.Time
		for k, t := range c.until {
			if oldest == "" || t.Before(oldestAt) {
				oldest, oldestAt = k, t
			}
		}
		delete(c.until, oldest)
	}
}
