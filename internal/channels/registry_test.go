package channels

import (
	"context"
	"errors"
	"testing"

	"postbot/internal/storage"
	"postbot/internal/transport"
	"postbot/pkg/logx"
)

type fakeLookup map[string]transport.ChatInfo

func (f fakeLookup) LookupChat(_ context.Context, ref string) (transport.ChatInfo, error) {
	if info, ok := f[ref]; ok {
		return info, nil
	}
	return transport.ChatInfo{}, errors.New("chat not found")
}

func TestRegisterResolveRemove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	lookup := fakeLookup{"@news": {ID: -1001, Title: "News", Username: "news"}}
	r := New(storage.NewMemory(), lookup, logx.Nop())

	c, created, err := r.Register(ctx, 7, "@news")
	if err != nil || !created {
		t.Fatalf("register: %v created=%v", err, created)
	}
	again, created, err := r.Register(ctx, 7, "@news")
	if err != nil || created || again.ID != c.ID {
		t.Fatalf("duplicate register: %+v created=%v err=%v", again, created, err)
	}

	tgt, ok, err := r.Resolve(ctx, c.ID)
	if err != nil || !ok || tgt.ChatID != -1001 || tgt.DisplayName != "@news" {
		t.Fatalf("resolve: %+v %v %v", tgt, ok, err)
	}

	if err := r.Remove(ctx, 7, c.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, err := r.Resolve(ctx, c.ID); ok || err != nil {
		t.Fatalf("removed channel resolved: ok=%v err=%v", ok, err)
	}
}

func TestRegisterUnknownChat(t *testing.T) {
	t.Parallel()

	r := New(storage.NewMemory(), fakeLookup{}, logx.Nop())
	if _, _, err := r.Register(context.Background(), 1, "@ghost"); !errors.Is(err, ErrUnknownChat) {
		t.Fatalf("want ErrUnknownChat, got %v", err)
	}
}

func TestRegisterWithoutLookupNeedsNumericID(t *testing.T) {
	t.Parallel()

	r := New(storage.NewMemory(), nil, logx.Nop())
	if _, _, err := r.Register(context.Background(), 1, "@name"); err == nil {
		t.Fatalf("username accepted without lookup")
	}
	c, _, err := r.Register(context.Background(), 1, "-100500")
	if err != nil || c.ChatID != -100500 {
		t.Fatalf("numeric register: %+v %v", c, err)
	}
}

func TestMatch(t *testing.T) {
	t.Parallel()

	cands := []Channel{
		{ID: 10, ChatID: -1001, Title: "News", Username: "news"},
		{ID: 11, ChatID: -1002, Title: "Blog"},
	}
	cases := []struct {
		in     string
		wantID int64
		ok     bool
	}{
		{"1", 10, true},
		{"2", 11, true},
		{"3", 0, false},
		{"-1002", 11, true},
		{"@NEWS", 10, true},
		{"blog", 11, true},
		{"", 0, false},
		{"C9", 0, false},
	}
	for _, tc := range cases {
		got, ok := Match(cands, tc.in)
		if ok != tc.ok || got.ID != tc.wantID {
			t.Fatalf("Match(%q)=%d,%v want %d,%v", tc.in, got.ID, ok, tc.wantID, tc.ok)
		}
	}
}
