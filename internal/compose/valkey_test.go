package compose

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"postbot/internal/valkey"
)

// newValkeyStore connects to POSTBOT_TEST_VALKEY (default localhost:6379)
// under a per-test key prefix, or skips when no server answers.
func newValkeyStore(t *testing.T) *ValkeyStore {
	t.Helper()
	addr := os.Getenv("POSTBOT_TEST_VALKEY")
	if addr == "" {
		addr = "localhost:6379"
	}
	client, err := valkey.NewClient(valkey.Config{
		Address:        addr,
		KeyPrefix:      fmt.Sprintf("postbot-test-%d", time.Now().UnixNano()),
		ConnectTimeout: time.Second,
	})
	if err != nil {
		t.Skipf("no valkey at %s: %v", addr, err)
	}
	t.Cleanup(client.Close)
	return NewValkeyStore(client, time.Minute)
}

func TestValkeyStoreRoundTrip(t *testing.T) {
	st := newValkeyStore(t)
	ctx := context.Background()

	if _, ok, err := st.Get(ctx, owner); ok || err != nil {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}
	at := now.Add(time.Hour)
	in := &Session{ID: "s-1", Owner: owner, Step: StepRepeat, History: []Step{StepText, StepTime},
		Fields: Fields{Text: "Hello", At: &at}, StartedAt: now, UpdatedAt: now}
	if err := st.Put(ctx, in); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := st.Get(ctx, owner)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.ID != "s-1" || got.Step != StepRepeat || len(got.History) != 2 ||
		got.Fields.Text != "Hello" || got.Fields.At == nil || !got.Fields.At.Equal(at) {
		t.Fatalf("session changed on the way through valkey: %+v", got)
	}

	if err := st.Delete(ctx, owner); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := st.Get(ctx, owner); ok {
		t.Fatalf("session survived delete")
	}
}

func TestValkeyStoreCountWalksEveryScanPage(t *testing.T) {
	st := newValkeyStore(t)
	ctx := context.Background()

	const total = 250
	for i := int64(1); i <= total; i++ {
		if err := st.Put(ctx, &Session{ID: fmt.Sprint(i), Owner: i, StartedAt: now, UpdatedAt: now}); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	t.Cleanup(func() {
		for i := int64(1); i <= total; i++ {
			_ = st.Delete(context.Background(), i)
		}
	})
	n, err := st.Count(ctx)
	if err != nil || n != total {
		t.Fatalf("count = %d, %v; want %d", n, err, total)
	}
}
