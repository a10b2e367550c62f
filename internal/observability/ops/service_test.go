package ops

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"postbot/pkg/logx"
)

type probe struct{ err error }

func (p probe) Ping(context.Context) error { return p.err }

func get(t *testing.T, h http.Handler, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthzFollowsStore(t *testing.T) {
	t.Parallel()
	ok := New(Config{}, logx.Nop(), probe{}, nil)
	if rec := get(t, ok.Handler(Config{}), "/healthz", nil); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthy store: %d %q", rec.Code, rec.Body.String())
	}
	down := New(Config{}, logx.Nop(), probe{err: errors.New("disk gone")}, nil)
	rec := get(t, down.Handler(Config{}), "/healthz", nil)
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "disk gone") {
		t.Fatalf("failing store: %d %q", rec.Code, rec.Body.String())
	}
}

func TestStatusAndToken(t *testing.T) {
	t.Parallel()
	status := func(context.Context) any { return map[string]int{"scheduled": 3} }
	cfg := Config{Token: "s3cret"}
	h := New(cfg, logx.Nop(), probe{}, status).Handler(cfg)

	cases := []struct {
		name   string
		target string
		header map[string]string
		code   int
	}{
		{"no token", "/status", nil, http.StatusUnauthorized},
		{"wrong token", "/status?token=nope", nil, http.StatusUnauthorized},
		{"query token", "/status?token=s3cret", nil, http.StatusOK},
		{"bearer token", "/status", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
	}
	for _, tc := range cases {
		rec := get(t, h, tc.target, tc.header)
		if rec.Code != tc.code {
			t.Fatalf("%s: code %d, want %d", tc.name, rec.Code, tc.code)
		}
		if tc.code == http.StatusOK && !strings.Contains(rec.Body.String(), `"scheduled": 3`) {
			t.Fatalf("%s: body %q", tc.name, rec.Body.String())
		}
	}
}

func TestPprofOnlyWhenEnabled(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil, nil)
	if rec := get(t, s.Handler(Config{}), "/debug/pprof/", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("pprof disabled: code %d", rec.Code)
	}
	if rec := get(t, s.Handler(Config{Pprof: true}), "/debug/pprof/", nil); rec.Code != http.StatusOK {
		t.Fatalf("pprof enabled: code %d", rec.Code)
	}
}

func TestIsLoopback(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":6060":          false,
		"0.0.0.0:6060":   false,
		"10.0.0.1:80":    false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := isLoopback(addr); got != want {
			t.Fatalf("isLoopback(%q) = %v, want %v", addr, got, want)
		}
	}
}
