// Package prefs provides per-user timezone, date/time patterns and
// reminder lead, falling back to configured defaults.
package prefs

import (
	"context"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"postbot/internal/post"
	"postbot/internal/storage"
	"postbot/internal/timefmt"
)

const MaxReminderLead = 7 * 24 * time.Hour

type Prefs struct {
	Timezone     string
	DatePattern  string
	TimePattern  string
	ReminderLead time.Duration
}

// Defaults apply to users that never changed a setting.
type Defaults = Prefs

func (p Prefs) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Timezone, validation.By(func(any) error {
			_, err := timefmt.LoadZone(p.Timezone)
			return err
		})),
		validation.Field(&p.DatePattern, validation.Required, validation.By(func(any) error {
			return timefmt.ValidateDatePattern(p.DatePattern)
		})),
		validation.Field(&p.TimePattern, validation.Required, validation.By(func(any) error {
			return timefmt.ValidateTimePattern(p.TimePattern)
		})),
		validation.Field(&p.ReminderLead, validation.Min(time.Duration(0)), validation.Max(MaxReminderLead)),
	)
}

// Translator builds the time translator for these preferences.
func (p Prefs) Translator() (timefmt.Translator, error) {
	return timefmt.New(p.DatePattern, p.TimePattern, p.Timezone)
}

type Provider struct {
	store storage.PrefsStore

	mu       sync.RWMutex
	defaults Prefs
}

func New(store storage.PrefsStore, defaults Prefs) *Provider {
	return &Provider{store: store, defaults: defaults}
}

// Apply swaps the defaults on config reload.
func (p *Provider) Apply(defaults Prefs) {
	p.mu.Lock()
	p.defaults = defaults
	p.mu.Unlock()
}

func (p *Provider) Defaults() Prefs {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.defaults
}

// Get returns the stored preferences of actor or the defaults.
func (p *Provider) Get(ctx context.Context, actor int64) (Prefs, error) {
	d := p.Defaults()
	st, ok, err := p.store.GetPrefs(ctx, actor)
	if err != nil {
		return d, err
	}
	if !ok {
		return d, nil
	}
	return Prefs{
		Timezone:     st.Timezone,
		DatePattern:  st.DatePattern,
		TimePattern:  st.TimePattern,
		ReminderLead: st.ReminderLead,
	}, nil
}

// Translator returns the actor's translator. A stored preference that no
// longer validates falls back to the defaults.
func (p *Provider) Translator(ctx context.Context, actor int64) (timefmt.Translator, error) {
	pr, err := p.Get(ctx, actor)
	if err != nil {
		return timefmt.Translator{}, err
	}
	tr, err := pr.Translator()
	if err != nil {
		return p.Defaults().Translator()
	}
	return tr, nil
}

func (p *Provider) update(ctx context.Context, actor int64, mutate func(*Prefs)) (Prefs, error) {
	cur, err := p.Get(ctx, actor)
	if err != nil {
		return cur, err
	}
	next := cur
	mutate(&next)
	if err := next.Validate(); err != nil {
		return cur, &post.ValidationError{Field: "settings", Reason: err.Error()}
	}
	err = p.store.PutPrefs(ctx, storage.Prefs{
		Actor:        actor,
		Timezone:     next.Timezone,
		DatePattern:  next.DatePattern,
		TimePattern:  next.TimePattern,
		ReminderLead: next.ReminderLead,
	})
	if err != nil {
		return cur, err
	}
	return next, nil
}

func (p *Provider) SetTimezone(ctx context.Context, actor int64, tz string) (Prefs, error) {
	return p.update(ctx, actor, func(pr *Prefs) { pr.Timezone = strings.TrimSpace(tz) })
}

func (p *Provider) SetDatePattern(ctx context.Context, actor int64, pattern string) (Prefs, error) {
	return p.update(ctx, actor, func(pr *Prefs) { pr.DatePattern = strings.TrimSpace(pattern) })
}

func (p *Provider) SetTimePattern(ctx context.Context, actor int64, pattern string) (Prefs, error) {
	return p.update(ctx, actor, func(pr *Prefs) { pr.TimePattern = strings.TrimSpace(pattern) })
}

func (p *Provider) SetReminderLead(ctx context.Context, actor int64, lead time.Duration) (Prefs, error) {
	return p.update(ctx, actor, func(pr *Prefs) { pr.ReminderLead = lead })
}
