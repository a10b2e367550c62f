package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"postbot/internal/transport"
)

const (
	tgMaxText  = 3500
	tgMaxField = 600
)

// telegramSink is a zerolog.LevelWriter that forwards lines to a chat.
// Writes never block: lines beyond the limiter or the queue are dropped.
type telegramSink struct {
	mu       sync.Mutex
	sender   Sender
	target   transport.ChatTarget
	minLevel zerolog.Level
	limiter  *rate.Limiter

	queue  chan string
	cancel context.CancelFunc
	done   chan struct{}
}

func newTelegramSink(sender Sender) *telegramSink {
	ctx, cancel := context.WithCancel(context.Background())
	t := &telegramSink{
		sender:   sender,
		minLevel: zerolog.WarnLevel,
		queue:    make(chan string, 256),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go t.run(ctx)
	return t
}

func (t *telegramSink) configure(target transport.ChatTarget, minLevel zerolog.Level, lim *rate.Limiter) {
	t.mu.Lock()
	t.target, t.minLevel, t.limiter = target, minLevel, lim
	t.mu.Unlock()
}

func (t *telegramSink) setSender(s Sender) {
	t.mu.Lock()
	t.sender = s
	t.mu.Unlock()
}

func (t *telegramSink) close() {
	t.cancel()
	<-t.done
}

func (t *telegramSink) run(ctx context.Context) {
	defer close(t.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-t.queue:
			t.mu.Lock()
			sender, to := t.sender, t.target
			t.mu.Unlock()
			if sender == nil || to.ChatID == 0 {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_, _ = sender.SendText(sctx, to, msg, &transport.SendOptions{DisablePreview: true})
			cancel()
		}
	}
}

func (t *telegramSink) Write(p []byte) (int, error) {
	return t.WriteLevel(zerolog.InfoLevel, p)
}

func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	t.mu.Lock()
	ok := t.sender != nil && t.target.ChatID != 0 && t.limiter != nil && level >= t.minLevel
	lim := t.limiter
	t.mu.Unlock()
	if !ok || !lim.Allow() {
		return len(p), nil
	}
	if msg := formatLine(p); msg != "" {
		select {
		case t.queue <- msg:
		default:
		}
	}
	return len(p), nil
}

// formatLine turns a zerolog JSON line into "[LEVEL] msg" followed by
// one "- key=value" line per field, in key order.
func formatLine(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return truncate(strings.TrimSpace(string(p)), tgMaxText)
	}
	var b strings.Builder
	if lvl, _ := m["level"].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	msg, _ := m[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", zerolog.MessageFieldName:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n- " + k + "=")
		b.WriteString(truncate(fmt.Sprint(m[k]), tgMaxField))
	}
	return truncate(b.String(), tgMaxText)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n < 10 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
