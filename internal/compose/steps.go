package compose

import (
	"context"
	"errors"
	"strings"
	"time"

	"postbot/internal/channels"
	"postbot/internal/post"
	"postbot/internal/timefmt"
)

// Input is one raw actor turn: free text, an attachment, or both (a caption).
type Input struct {
	Text  string
	Media *post.Media
}

func (in Input) word() string { return strings.ToLower(strings.TrimSpace(in.Text)) }

const (
	noneToken = "none"
	nowToken  = "now"
)

// turnEnv carries what a step validator may consult.
type turnEnv struct {
	ctx        context.Context
	now        time.Time
	translator timefmt.Translator
	candidates []channels.Channel
}

// outcome is a step result plus the field mutation to apply when the
// result is not Rejected.
type outcome struct {
	Result
	set   func(*Fields)
	touch bool
}

func accept(set func(*Fields)) outcome { return outcome{Result: accepted(), set: set, touch: true} }

// skipTo stores a default value. Skips never count as touched.
func skipTo(set func(*Fields)) outcome { return outcome{Result: skipped(), set: set} }

func reject(err error) outcome { return outcome{Result: rejected(err)} }

func invalid(field, reason string) outcome {
	return reject(&post.ValidationError{Field: field, Reason: reason})
}

type stepValidator struct {
	input func(env turnEnv, s *Session, in Input) outcome
	skip  func(env turnEnv, s *Session) outcome
}

var validators = map[Step]stepValidator{
	StepText:    {input: textInput, skip: keepDefault(StepText)},
	StepMedia:   {input: mediaInput, skip: keepDefault(StepMedia)},
	StepFormat:  {input: formatInput, skip: keepDefault(StepFormat)},
	StepActions: {input: actionsInput, skip: keepDefault(StepActions)},
	StepTime:    {input: timeInput, skip: keepDefault(StepTime)},
	StepRepeat:  {input: repeatInput, skip: repeatSkip},
	StepChannel: {input: channelInput, skip: channelSkip},
}

// keepDefault skips to the mode default: empty/none when creating, the
// current value when editing.
func keepDefault(step Step) func(turnEnv, *Session) outcome {
	return func(_ turnEnv, s *Session) outcome {
		return skipTo(func(f *Fields) {
			tmp := Session{Mode: s.Mode, Original: s.Original, Fields: *f}
			tmp.reset(step)
			*f = tmp.Fields
		})
	}
}

func textInput(_ turnEnv, _ *Session, in Input) outcome {
	if in.Media != nil {
		return invalid("text", "send text here, media comes in the next step")
	}
	text := in.Text
	return accept(func(f *Fields) { f.Text = text })
}

func mediaInput(_ turnEnv, _ *Session, in Input) outcome {
	if in.Media != nil {
		if in.Media.Kind != post.MediaPhoto && in.Media.Kind != post.MediaVideo {
			return invalid("media", "only a photo or a video is supported")
		}
		m := *in.Media
		return accept(func(f *Fields) { f.Media = &m })
	}
	if in.word() == noneToken {
		return accept(func(f *Fields) { f.Media = nil })
	}
	return invalid("media", "expected a photo or a video")
}

func formatInput(_ turnEnv, s *Session, in Input) outcome {
	fallback := post.FormatPlain
	if s.Mode == ModeEdit && s.Original != nil && s.Original.Format != "" {
		fallback = s.Original.Format
	}
	format, ok := post.ParseFormat(in.Text, fallback)
	if !ok {
		// Unrecognized input falls back without rejecting.
		return skipTo(func(f *Fields) { f.Format = format })
	}
	return accept(func(f *Fields) { f.Format = format })
}

func actionsInput(env turnEnv, _ *Session, in Input) outcome {
	if in.word() == noneToken {
		return accept(func(f *Fields) { f.Actions = []post.Action{} })
	}
	actions := post.ParseActions(env.ctx, in.Text)
	return accept(func(f *Fields) { f.Actions = actions })
}

func timeInput(env turnEnv, _ *Session, in Input) outcome {
	if in.word() == noneToken {
		return accept(func(f *Fields) {
			f.At = nil
			f.Repeat = 0
		})
	}
	if in.word() == nowToken {
		// Due at once: the next scheduler pass picks it up.
		at := env.now.Truncate(time.Minute)
		return accept(func(f *Fields) { f.At = &at })
	}
	at, err := env.translator.Parse(in.Text)
	if err != nil {
		var fe *timefmt.FormatError
		if errors.As(err, &fe) {
			return reject(&post.ValidationError{Field: "time", Reason: fe.Reason})
		}
		return invalid("time", err.Error())
	}
	if !at.After(env.now) {
		return reject(&post.PastTimeError{At: at, Now: env.now})
	}
	return accept(func(f *Fields) { f.At = &at })
}

func repeatInput(_ turnEnv, s *Session, in Input) outcome {
	if s.Fields.At == nil {
		// A draft never repeats, whatever was typed.
		return skipTo(func(f *Fields) { f.Repeat = 0 })
	}
	d, err := post.ParseRepeat(in.Text)
	if err != nil {
		return reject(err)
	}
	return accept(func(f *Fields) { f.Repeat = d })
}

func repeatSkip(env turnEnv, s *Session) outcome {
	if s.Fields.At == nil {
		return skipTo(func(f *Fields) { f.Repeat = 0 })
	}
	return keepDefault(StepRepeat)(env, s)
}

func channelInput(env turnEnv, _ *Session, in Input) outcome {
	if len(env.candidates) == 0 {
		return invalid("channel", "no channels registered yet")
	}
	c, ok := channels.Match(env.candidates, in.Text)
	if !ok {
		return invalid("channel", "no such channel in the list")
	}
	return accept(func(f *Fields) {
		f.ChannelID = c.ID
		f.ChannelName = channels.DisplayName(c)
	})
}

func channelSkip(env turnEnv, s *Session) outcome {
	if s.Mode != ModeEdit || s.Original == nil {
		return invalid("channel", "a channel is required")
	}
	id := s.Original.ChannelID
	name := ""
	for _, c := range env.candidates {
		if c.ID == id {
			name = channels.DisplayName(c)
		}
	}
	return skipTo(func(f *Fields) {
		f.ChannelID = id
		f.ChannelName = name
	})
}
