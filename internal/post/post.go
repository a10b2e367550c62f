// Package post holds the scheduled post entity, its states and the typed
// errors shared by the compose flow, the store and the scheduler.
package post

import (
	"time"

	"postbot/internal/transport"
)

type State string

const (
	StateDraft     State = "draft"
	StateScheduled State = "scheduled"
	StatePublished State = "published"
	StateFailed    State = "failed"
)

func (s State) Valid() bool {
	switch s {
	case StateDraft, StateScheduled, StatePublished, StateFailed:
		return true
	}
	return false
}

// Terminal states are never touched by the scheduler again.
func (s State) Terminal() bool { return s == StatePublished || s == StateFailed }

type MediaKind = transport.MediaKind

const (
	MediaPhoto = transport.MediaPhoto
	MediaVideo = transport.MediaVideo
)

type Media struct {
	Kind MediaKind `json:"kind"`
	Ref  string    `json:"ref"`
}

type Post struct {
	ID        int64         `json:"id"`
	Owner     int64         `json:"owner"`
	ChannelID int64         `json:"channel_id"`
	Text      string        `json:"text"`
	Media     *Media        `json:"media"`
	Format    Format        `json:"format"`
	Actions   []Action      `json:"actions"`
	At        *time.Time    `json:"scheduled_at"`
	Repeat    time.Duration `json:"repeat"`
	State     State         `json:"state"`
	Notified  bool          `json:"notified"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Normalize enforces draft <=> no scheduled time and drops the repeat of
// drafts. Terminal states are left as they are.
func (p *Post) Normalize() {
	if p.Format == "" {
		p.Format = FormatPlain
	}
	if p.Actions == nil {
		p.Actions = []Action{}
	}
	if p.At != nil {
		t := p.At.UTC()
		p.At = &t
	}
	if p.Repeat < 0 {
		p.Repeat = 0
	}
	if p.State.Terminal() {
		return
	}
	if p.At == nil {
		p.State = StateDraft
		p.Repeat = 0
		return
	}
	p.State = StateScheduled
}

// Due reports whether the scheduler should dispatch p at now.
func (p Post) Due(now time.Time) bool {
	return p.State == StateScheduled && p.At != nil && !p.At.After(now)
}

// Patch is a sparse update: nil fields are left untouched. ClearMedia and
// ClearAt exist because a nil pointer already means "unchanged".
type Patch struct {
	ChannelID  *int64
	Text       *string
	Media      *Media
	ClearMedia bool
	Format     *Format
	Actions    *[]Action
	At         *time.Time
	ClearAt    bool
	Repeat     *time.Duration
	State      *State
	Notified   *bool
}

func (pt Patch) Empty() bool {
	return pt.ChannelID == nil && pt.Text == nil && pt.Media == nil && !pt.ClearMedia &&
		pt.Format == nil && pt.Actions == nil && pt.At == nil && !pt.ClearAt &&
		pt.Repeat == nil && pt.State == nil && pt.Notified == nil
}

// Apply writes the set fields onto p. It does not normalize.
func (pt Patch) Apply(p *Post) {
	if pt.ChannelID != nil {
		p.ChannelID = *pt.ChannelID
	}
	if pt.Text != nil {
		p.Text = *pt.Text
	}
	if pt.ClearMedia {
		p.Media = nil
	}
	if pt.Media != nil {
		m := *pt.Media
		p.Media = &m
	}
	if pt.Format != nil {
		p.Format = *pt.Format
	}
	if pt.Actions != nil {
		p.Actions = append([]Action{}, (*pt.Actions)...)
	}
	if pt.ClearAt {
		p.At = nil
	}
	if pt.At != nil {
		t := pt.At.UTC()
		p.At = &t
	}
	if pt.Repeat != nil {
		p.Repeat = *pt.Repeat
	}
	if pt.State != nil {
		p.State = *pt.State
	}
	if pt.Notified != nil {
		p.Notified = *pt.Notified
	}
}

// Filter selects posts for ListPosts. Zero fields do not filter.
type Filter struct {
	Owner int64
	// States restricts to the given states; empty means any.
	States []State
	// DueBy keeps posts with scheduled_at <= DueBy.
	DueBy *time.Time
	// NotNotified keeps posts whose reminder has not been sent.
	NotNotified bool
	Limit       int
}

// Pending is the filter used by listings: drafts and scheduled posts.
func Pending(owner int64) Filter {
	return Filter{Owner: owner, States: []State{StateDraft, StateScheduled}}
}

func (f Filter) Match(p Post) bool {
	if f.Owner != 0 && p.Owner != f.Owner {
		return false
	}
	if len(f.States) > 0 {
		ok := false
		for _, s := range f.States {
			if p.State == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.DueBy != nil && (p.At == nil || p.At.After(*f.DueBy)) {
		return false
	}
	if f.NotNotified && p.Notified {
		return false
	}
	return true
}

func Ptr[T any](v T) *T { return &v }
