// Package ops serves the operator HTTP endpoint: liveness backed by a store
// ping, a JSON status document and optionally net/http/pprof.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	"postbot/internal/runtime/supervisor"
	"postbot/pkg/logx"
)

const DefaultAddr = "127.0.0.1:6060"

type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	Pprof         bool
	ReadTimeout   time.Duration
	IdleTimeout   time.Duration
}

// Prober reports whether a dependency is reachable.
type Prober interface {
	Ping(ctx context.Context) error
}

// StatusFunc builds the /status document.
type StatusFunc func(ctx context.Context) any

type Service struct {
	health Prober
	status StatusFunc

	mu       sync.Mutex
	log      logx.Logger
	cfg      Config
	sup      *supervisor.Supervisor
	srv      *http.Server
	stopDone chan struct{}
}

func New(cfg Config, log logx.Logger, health Prober, status StatusFunc) *Service {
	return &Service{cfg: cfg, log: log.With(logx.Component("ops")), health: health, status: status}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Reconfigure applies cfg, starting, stopping or restarting the listener
// as needed. Safe during hot reload.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	running := s.sup != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		if running {
			s.Stop(ctx)
		}
	case !running:
		s.Start(ctx)
	case prev != cfg:
		s.Stop(ctx)
		s.Start(ctx)
	}
}

// Start is idempotent. The listener runs under a restart loop so a failed
// bind is retried with backoff instead of taking the bot down.
func (s *Service) Start(ctx context.Context) {
	for {
		s.mu.Lock()
		if done := s.stopDone; done != nil {
			s.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return
			}
		}
		if s.sup != nil || !s.cfg.Enabled {
			s.mu.Unlock()
			return
		}
		s.sup = supervisor.NewSupervisor(ctx,
			supervisor.WithLogger(s.log),
			supervisor.WithCancelOnError(false),
		)
		sup := s.sup
		s.mu.Unlock()

		sup.GoRestart("http.serve", s.serveOnce,
			supervisor.WithPublishFirstError(true),
			supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		)
		return
	}
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.sup == nil {
		s.mu.Unlock()
		return
	}
	if done := s.stopDone; done != nil {
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	srv, sup := s.srv, s.sup
	s.mu.Unlock()

	go func() {
		defer close(done)
		if srv != nil {
			_ = srv.Shutdown(ctx)
			_ = srv.Close()
		}
		sup.Cancel()
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.srv, s.sup, s.stopDone = nil, nil, nil
		s.mu.Unlock()
		s.log.Info("ops endpoint stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

func (s *Service) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	cur := s.cfg
	s.mu.Unlock()
	if !cur.Enabled {
		return context.Canceled
	}

	addr := strings.TrimSpace(cur.Addr)
	if addr == "" {
		addr = DefaultAddr
	}
	if cur.Token == "" && !isLoopback(addr) {
		if !cur.AllowInsecure {
			s.log.Error("ops endpoint refused: non-loopback addr requires token or allow_insecure", logx.String("addr", addr))
			return errors.New("ops: insecure bind")
		}
		s.log.Warn("ops endpoint running without token on non-loopback addr", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		return err
	}
	srv := &http.Server{
		Handler:     s.Handler(cur),
		ReadTimeout: cur.ReadTimeout,
		IdleTimeout: cur.IdleTimeout,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("ops endpoint started", logx.String("addr", ln.Addr().String()), logx.Bool("pprof", cur.Pprof), logx.Bool("token_set", cur.Token != ""))
	err = srv.Serve(ln)

	s.mu.Lock()
	if s.srv == srv {
		s.srv = nil
	}
	stopping := s.stopDone != nil
	s.mu.Unlock()
	if stopping || ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("ops server exited unexpectedly")
	}
	return err
}

// Handler builds the mux for cfg. Exposed for tests.
func (s *Service) Handler(cfg Config) http.Handler {
	mux := http.NewServeMux()
	auth := func(h http.HandlerFunc) http.HandlerFunc { return withToken(cfg.Token, h) }

	mux.HandleFunc("/healthz", auth(s.healthz))
	mux.HandleFunc("/status", auth(s.statusz))
	if cfg.Pprof {
		mux.HandleFunc("/debug/pprof/", auth(hpprof.Index))
		mux.HandleFunc("/debug/pprof/cmdline", auth(hpprof.Cmdline))
		mux.HandleFunc("/debug/pprof/profile", auth(hpprof.Profile))
		mux.HandleFunc("/debug/pprof/symbol", auth(hpprof.Symbol))
		mux.HandleFunc("/debug/pprof/trace", auth(hpprof.Trace))
	}
	return mux
}

func (s *Service) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			http.Error(w, "store unavailable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	_, _ = w.Write([]byte("ok"))
}

func (s *Service) statusz(w http.ResponseWriter, r *http.Request) {
	var doc any = struct{}{}
	if s.status != nil {
		doc = s.status(r.Context())
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		s.log.Warn("status encode failed", logx.Err(err))
	}
}

// withToken accepts "Authorization: Bearer <token>" or ?token=<token>.
func withToken(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if got == "" {
			got = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		}
		if got != tok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

func isLoopback(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil || strings.TrimSpace(h) == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
