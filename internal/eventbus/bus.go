// Package eventbus is an in-process fan-out of lifecycle signals.
//
// Publish never blocks; subscribers use buffered channels and a slow
// subscriber loses events rather than stalling the publisher.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Post lifecycle topics.
const (
	PostCreated        = "post.created"
	PostUpdated        = "post.updated"
	PostDeleted        = "post.deleted"
	PostPublished      = "post.published"
	PostRescheduled    = "post.rescheduled"
	PostFailed         = "post.failed"
	PostDeliveryFailed = "post.delivery_failed"
	PostReminded       = "post.reminded"

	PassFinished = "scheduler.pass_finished"
)

type Event struct {
	Type string
	Time time.Time
	Data any
}

// PostData is the payload of post.* events.
type PostData struct {
	PostID    int64  `json:"post_id"`
	Owner     int64  `json:"owner"`
	ChannelID int64  `json:"channel_id"`
	State     string `json:"state"`
	Err       string `json:"err,omitempty"`
}

// PassData is the payload of scheduler.pass_finished.
type PassData struct {
	Dispatched int           `json:"dispatched"`
	Failed     int           `json:"failed"`
	Reminded   int           `json:"reminded"`
	Took       time.Duration `json:"took"`
	Err        string        `json:"err,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

// Nop discards every event.
func Nop() Bus { return nopBus{} }

type nopBus struct{}

func (nopBus) Publish(Event) {}
func (nopBus) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	return ch, func() {}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sending under the read lock keeps unsubscribe (which closes the
	// channel under the write lock) from racing a send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}
