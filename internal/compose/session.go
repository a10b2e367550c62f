package compose

import (
	"slices"
	"time"

	"postbot/internal/post"
)

// Fields is the partially assembled post.
type Fields struct {
	Text        string        `json:"text"`
	Media       *post.Media   `json:"media,omitempty"`
	Format      post.Format   `json:"format"`
	Actions     []post.Action `json:"actions"`
	At          *time.Time    `json:"at,omitempty"`
	Repeat      time.Duration `json:"repeat"`
	ChannelID   int64         `json:"channel_id"`
	ChannelName string        `json:"channel_name,omitempty"`
}

// Session is one actor's open guided input flow. It is plain data so it can
// live in an external store between turns.
type Session struct {
	ID      string `json:"id"`
	Owner   int64  `json:"owner"`
	Mode    Mode   `json:"mode"`
	PostID  int64  `json:"post_id,omitempty"`
	Step    Step   `json:"step"`
	History []Step `json:"history"`
	Fields  Fields `json:"fields"`
	// Touched lists the steps whose value was explicitly entered. Edit mode
	// writes only these.
	Touched []Step `json:"touched"`
	// Original is the record being edited.
	Original  *post.Post `json:"original,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (s *Session) touched(step Step) bool { return slices.Contains(s.Touched, step) }

func (s *Session) touch(step Step) {
	if !s.touched(step) {
		s.Touched = append(s.Touched, step)
	}
}

func (s *Session) untouch(step Step) {
	s.Touched = slices.DeleteFunc(s.Touched, func(x Step) bool { return x == step })
}

// advance records step in the history and moves to the next one.
func (s *Session) advance() {
	s.History = append(s.History, s.Step)
	s.Step = s.Step.next()
}

// createDefaults are the values a new post starts from.
func createDefaults() Fields {
	return Fields{Format: post.FormatPlain, Actions: []post.Action{}}
}

// editDefaults copies the record being edited.
func editDefaults(p post.Post) Fields {
	f := Fields{
		Text:      p.Text,
		Format:    p.Format,
		Actions:   append([]post.Action{}, p.Actions...),
		Repeat:    p.Repeat,
		ChannelID: p.ChannelID,
	}
	if p.Media != nil {
		m := *p.Media
		f.Media = &m
	}
	if p.At != nil {
		t := *p.At
		f.At = &t
	}
	if f.Format == "" {
		f.Format = post.FormatPlain
	}
	return f
}

func (s *Session) defaults() Fields {
	if s.Mode == ModeEdit && s.Original != nil {
		return editDefaults(*s.Original)
	}
	return createDefaults()
}

// reset puts the field owned by step back to the mode default.
func (s *Session) reset(step Step) {
	d := s.defaults()
	switch step {
	case StepText:
		s.Fields.Text = d.Text
	case StepMedia:
		s.Fields.Media = d.Media
	case StepFormat:
		s.Fields.Format = d.Format
	case StepActions:
		s.Fields.Actions = d.Actions
	case StepTime:
		s.Fields.At = d.At
	case StepRepeat:
		s.Fields.Repeat = d.Repeat
	case StepChannel:
		s.Fields.ChannelID = d.ChannelID
		s.Fields.ChannelName = d.ChannelName
	}
	s.untouch(step)
}

// Post assembles the record a create-mode confirm writes.
func (s *Session) Post() post.Post {
	f := s.Fields
	p := post.Post{
		Owner:     s.Owner,
		ChannelID: f.ChannelID,
		Text:      f.Text,
		Format:    f.Format,
		Actions:   append([]post.Action{}, f.Actions...),
		Repeat:    f.Repeat,
	}
	if f.Media != nil {
		m := *f.Media
		p.Media = &m
	}
	if f.At != nil {
		t := f.At.UTC()
		p.At = &t
	} else {
		p.Repeat = 0
	}
	p.Normalize()
	return p
}

// Patch is the sparse update an edit-mode confirm writes.
func (s *Session) Patch() post.Patch {
	f := s.Fields
	var pt post.Patch
	if s.touched(StepText) {
		pt.Text = post.Ptr(f.Text)
	}
	if s.touched(StepMedia) {
		if f.Media == nil {
			pt.ClearMedia = true
		} else {
			m := *f.Media
			pt.Media = &m
		}
	}
	if s.touched(StepFormat) {
		pt.Format = post.Ptr(f.Format)
	}
	if s.touched(StepActions) {
		actions := append([]post.Action{}, f.Actions...)
		pt.Actions = &actions
	}
	if s.touched(StepTime) {
		if f.At == nil {
			pt.ClearAt = true
			pt.Repeat = post.Ptr(time.Duration(0))
		} else {
			pt.At = post.Ptr(f.At.UTC())
		}
		pt.Notified = post.Ptr(false)
	}
	if s.touched(StepRepeat) && f.At != nil {
		pt.Repeat = post.Ptr(f.Repeat)
	}
	if s.touched(StepChannel) {
		pt.ChannelID = post.Ptr(f.ChannelID)
	}
	return pt
}
