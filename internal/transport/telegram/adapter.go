// Package telegram is the telebot.v4 adapter: it turns Telegram updates into
// transport.Update values, sends replies and owner notices, and delivers
// rendered posts to channels.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"postbot/internal/transport"
	"postbot/pkg/logx"
	"postbot/pkg/tgui"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// APIURL overrides the Bot API endpoint (local bot API servers).
	APIURL string
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot       *tele.Bot
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
	runMu     sync.Mutex
	running   bool

	// droppedUpdates counts updates dropped because the consumer was slower than the Telegram poll loop.
	// This is logged periodically to avoid per-update log spam.
	droppedUpdates uint64

	menuMu   sync.Mutex
	menuHash uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:    strings.TrimSpace(cfg.APIURL),
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log.With(logx.Component("telegram")), bot: b}, nil
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runWG.Add(2)
	a.runMu.Unlock()

	// Periodic summary for dropped updates (avoid noisy per-update logs).
	go func() {
		defer a.runWG.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-rctx.Done():
				a.flushDropped(cap(out))
				return
			case <-ticker.C:
				a.flushDropped(cap(out))
			}
		}
	}()

	push := func(up transport.Update) {
		select {
		case out <- up:
		default:
			atomic.AddUint64(&a.droppedUpdates, 1)
		}
	}

	onMessage := func(c tele.Context) error {
		if m := c.Message(); m != nil && m.Sender != nil {
			push(transport.Update{Kind: transport.UpdateMessage, Message: toMessage(m)})
		}
		return nil
	}
	a.bot.Handle(tele.OnText, onMessage)
	a.bot.Handle(tele.OnPhoto, onMessage)
	a.bot.Handle(tele.OnVideo, onMessage)

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || m == nil || cb.Sender == nil {
			return nil
		}
		push(transport.Update{
			Kind: transport.UpdateCallback,
			Callback: &transport.Callback{
				ID:        cb.ID,
				ChatID:    m.Chat.ID,
				ThreadID:  m.ThreadID,
				FromID:    cb.Sender.ID,
				MessageID: m.ID,
				Data:      cb.Data,
			},
		})
		return nil
	})

	go func() {
		defer a.runWG.Done()
		// Ensure we stop telebot when context is cancelled.
		go func() {
			<-rctx.Done()
			a.bot.Stop()
		}()
		a.log.Info("polling started")
		a.bot.Start() // blocks until Stop() called
	}()

	return nil
}

func (a *Adapter) flushDropped(capacity int) {
	if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
		a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", capacity))
	}
}

func toMessage(m *tele.Message) *transport.Message {
	msg := &transport.Message{
		ID:           m.ID,
		ChatID:       m.Chat.ID,
		ThreadID:     m.ThreadID,
		FromID:       m.Sender.ID,
		FromUsername: m.Sender.Username,
		Text:         m.Text,
		IsGroup:      m.Chat.Type != tele.ChatPrivate,
	}
	switch {
	case m.Photo != nil:
		msg.Media = &transport.Media{Kind: transport.MediaPhoto, FileID: m.Photo.FileID}
		msg.Text = m.Caption
	case m.Video != nil:
		msg.Media = &transport.Media{Kind: transport.MediaVideo, FileID: m.Video.FileID}
		msg.Text = m.Caption
	}
	return msg
}

func (a *Adapter) Stop(ctx context.Context) error {
	// Best-effort graceful stop. Never block shutdown for too long on Telegram long-poll.
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning {
		a.log.Debug("telegram stop called but not running")
		return nil
	}
	a.log.Info("stopping", logx.Uint64("dropped_updates_pending", atomic.LoadUint64(&a.droppedUpdates)))
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()

	// Grace window: keep shutdown snappy even if getUpdates long-poll is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		a.log.Info("polling stopped")
		return nil
	case <-ctx.Done():
		a.log.Warn("telegram stop cancelled", logx.Err(ctx.Err()))
		return ctx.Err()
	case <-t.C:
		a.log.Warn("telegram stop grace elapsed; continuing shutdown")
		return nil
	}
}

func sendOptions(to transport.ChatTarget, opt *transport.SendOptions) *tele.SendOptions {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	so := &tele.SendOptions{
		ParseMode:             tele.ParseMode(opt.ParseMode),
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              to.ThreadID,
	}
	if rm := tgui.Markup(opt.Keyboard); rm != nil {
		so.ReplyMarkup = rm
	}
	return so
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return transport.MessageRef{}, err
	}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, text, sendOptions(to, opt))
	if err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

func (a *Adapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	so := sendOptions(transport.ChatTarget{}, opt)
	_, err := a.bot.Edit(m, text, so)
	return err
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}
