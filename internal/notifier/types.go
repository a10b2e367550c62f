package notifier

import (
	"context"
	"time"

	"postbot/internal/transport"
)

// Config controls the async notification pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	PersistDedup    bool
	// SendTimeout bounds one send call.
	SendTimeout time.Duration
}

// Sender is the transport the notices leave through.
type Sender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

type HistoryItem struct {
	At     time.Time
	ChatID int64
	Text   string
	Error  string
}

// Event is the payload of notifier.* bus events.
type Event struct {
	Channel string    `json:"channel"`
	ChatID  int64     `json:"chat_id"`
	Key     string    `json:"key"`
	At      time.Time `json:"at"`
	Error   string    `json:"error,omitempty"`
}

const (
	TopicQueued  = "notifier.queued"
	TopicSent    = "notifier.sent"
	TopicFailed  = "notifier.failed"
	TopicDeduped = "notifier.deduped"
	TopicDropped = "notifier.dropped"
)
