package prefs

import (
	"context"
	"errors"
	"testing"
	"time"

	"postbot/internal/post"
	"postbot/internal/storage"
)

var defaults = Prefs{Timezone: "UTC", DatePattern: "YYYY-MM-DD", TimePattern: "HH:MM"}

func TestGetFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	p := New(storage.NewMemory(), defaults)
	got, err := p.Get(context.Background(), 42)
	if err != nil || got != defaults {
		t.Fatalf("got %+v err=%v", got, err)
	}
}

func TestSettersValidateAndPersist(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := New(storage.NewMemory(), defaults)

	if _, err := p.SetTimezone(ctx, 1, "Europe/Moscow"); err != nil {
		t.Fatalf("tz: %v", err)
	}
	if _, err := p.SetDatePattern(ctx, 1, "DD.MM.YYYY"); err != nil {
		t.Fatalf("date: %v", err)
	}
	if _, err := p.SetReminderLead(ctx, 1, 10*time.Minute); err != nil {
		t.Fatalf("lead: %v", err)
	}

	for _, bad := range []func() error{
		func() error { _, err := p.SetTimezone(ctx, 1, "Nowhere/City"); return err },
		func() error { _, err := p.SetDatePattern(ctx, 1, "DD.MM"); return err },
		func() error { _, err := p.SetTimePattern(ctx, 1, "HH"); return err },
		func() error { _, err := p.SetReminderLead(ctx, 1, -time.Minute); return err },
	} {
		var ve *post.ValidationError
		if err := bad(); !errors.As(err, &ve) {
			t.Fatalf("want ValidationError, got %v", err)
		}
	}

	got, _ := p.Get(ctx, 1)
	want := Prefs{Timezone: "Europe/Moscow", DatePattern: "DD.MM.YYYY", TimePattern: "HH:MM", ReminderLead: 10 * time.Minute}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}

	tr, err := p.Translator(ctx, 1)
	if err != nil {
		t.Fatalf("translator: %v", err)
	}
	if tr.Layout() != "DD.MM.YYYY HH:MM" {
		t.Fatalf("layout %q", tr.Layout())
	}
}

func TestApplySwapsDefaults(t *testing.T) {
	t.Parallel()

	p := New(storage.NewMemory(), defaults)
	next := defaults
	next.Timezone = "Asia/Tokyo"
	p.Apply(next)
	got, _ := p.Get(context.Background(), 5)
	if got.Timezone != "Asia/Tokyo" {
		t.Fatalf("defaults not applied: %+v", got)
	}
}
