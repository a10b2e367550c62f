package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"postbot/internal/transport"
)

type Config struct {
	Level    string
	Console  bool
	File     FileConfig
	Telegram TelegramConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

type TelegramConfig struct {
	Enabled    bool
	ChatID     int64
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

// Sender is the slice of the transport adapter the Telegram sink needs.
type Sender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

// Service owns the sinks and swaps them on Apply.
type Service struct {
	mu   sync.Mutex
	root atomic.Pointer[zerolog.Logger]
	file *os.File

	sender Sender
	tg     *telegramSink
}

// New applies cfg immediately and returns the service with its root logger.
// sender may be nil, in which case the Telegram sink stays silent.
func New(cfg Config, sender Sender) (*Service, Logger) {
	setGlobals()
	s := &Service{sender: sender}
	boot := zerolog.New(newConsoleWriter(Stdout())).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&boot)
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// SetSender attaches the transport once it exists. The adapter is usually
// built after the logger, so the sink starts detached.
func (s *Service) SetSender(sender Sender) {
	s.mu.Lock()
	s.sender = sender
	if s.tg != nil {
		s.tg.setSender(sender)
	}
	s.mu.Unlock()
}

// Apply swaps outputs and levels at runtime. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	writers := make([]io.Writer, 0, 3)
	if cfg.Console {
		writers = append(writers, newConsoleWriter(Stdout()))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = "./postbot.log"
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(Stderr(), "logx: open log file %q: %v\n", path, err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if cfg.Telegram.Enabled {
		if s.tg == nil {
			s.tg = newTelegramSink(s.sender)
		}
		rps := cfg.Telegram.RatePerSec
		if rps <= 0 {
			rps = 1
		}
		s.tg.configure(
			transport.ChatTarget{ChatID: cfg.Telegram.ChatID, ThreadID: cfg.Telegram.ThreadID},
			parseLevel(cfg.Telegram.MinLevel, zerolog.WarnLevel),
			rate.NewLimiter(rate.Limit(rps), rps),
		)
		if cfg.Telegram.ChatID == 0 {
			fmt.Fprintln(Stderr(), "logx: telegram sink enabled without telegram.log_chat_id")
		}
		writers = append(writers, s.tg)
	}
	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(Stdout()))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
}

func (s *Service) Close() error {
	s.mu.Lock()
	f, tg := s.file, s.tg
	s.file, s.tg = nil, nil
	s.mu.Unlock()

	if tg != nil {
		tg.close()
	}
	if f != nil {
		return f.Close()
	}
	return nil
}
