package compose

import (
	"errors"
	"fmt"
	"strings"

	"postbot/internal/channels"
	"postbot/internal/post"
	"postbot/internal/timefmt"
)

// NoContent stands in for a post with neither text nor media.
const NoContent = "(no content)"

// Preview is what the actor sees at the confirm step.
type Preview struct {
	Text     string
	Media    *post.Media
	Format   post.Format
	Actions  []post.Action
	Schedule string
	Channel  string
	// Empty is true when the post has neither text nor media.
	Empty bool
}

func buildPreview(s *Session, tr timefmt.Translator) Preview {
	f := s.Fields
	pv := Preview{
		Text:     f.Text,
		Media:    f.Media,
		Format:   f.Format,
		Actions:  f.Actions,
		Schedule: describeSchedule(f, tr),
		Channel:  f.ChannelName,
	}
	if strings.TrimSpace(f.Text) == "" && f.Media == nil {
		pv.Empty = true
		pv.Text = NoContent
	}
	if pv.Channel == "" && f.ChannelID != 0 {
		pv.Channel = fmt.Sprintf("#%d", f.ChannelID)
	}
	return pv
}

func describeSchedule(f Fields, tr timefmt.Translator) string {
	if f.At == nil {
		return "draft, not scheduled"
	}
	s := fmt.Sprintf("%s (%s)", tr.Render(*f.At), tr.Location())
	if f.Repeat > 0 {
		s += ", repeats every " + post.FormatRepeat(f.Repeat)
	}
	return s
}

// Summary is the plain-text confirmation card.
func (p Preview) Summary() string {
	var b strings.Builder
	b.WriteString("Step 8/8: check the post.\n\n")
	if p.Empty {
		b.WriteString(NoContent + "\n")
	}
	if p.Media != nil {
		fmt.Fprintf(&b, "Media: %s\n", p.Media.Kind)
	}
	fmt.Fprintf(&b, "Format: %s\n", p.Format)
	if len(p.Actions) > 0 {
		b.WriteString("Buttons:\n" + post.FormatActions(p.Actions) + "\n")
	} else {
		b.WriteString("Buttons: none\n")
	}
	fmt.Fprintf(&b, "Channel: %s\n", p.Channel)
	fmt.Fprintf(&b, "When: %s\n\n", p.Schedule)
	b.WriteString("Accept to save, reject to discard.")
	return b.String()
}

func promptFor(env turnEnv, s *Session) string {
	n := fmt.Sprintf("Step %d/%d: ", s.Step.Number(), stepCount)
	edit := s.Mode == ModeEdit
	keep := " (or /skip)"
	if edit {
		keep = " (or /skip to keep the current value)"
	}
	switch s.Step {
	case StepText:
		return n + "send the post text" + keep + "."
	case StepMedia:
		return n + "send a photo or a video" + keep + ". Send none for no media."
	case StepFormat:
		return n + "choose the format: plain, markdown or html" + keep + "."
	case StepActions:
		return n + "send buttons, one button per line in format: Text | URL" + keep +
			". Send none for no buttons."
	case StepTime:
		return n + fmt.Sprintf("send the publish time in format %s, for example %s",
			env.translator.Layout(), env.translator.Example(env.now)) + keep +
			". Send now to publish right away or none to keep it as a draft."
	case StepRepeat:
		if s.Fields.At == nil {
			return n + "the post has no time, so it will not repeat. Send anything or /skip."
		}
		return n + "repeat interval? Examples: 0, 1d, 12h, 30m" + keep + "."
	case StepChannel:
		if len(env.candidates) == 0 {
			return n + "you have no channels yet. Add one with /channels add <channel_id or @username>, then send its number."
		}
		var b strings.Builder
		b.WriteString(n + "choose a channel for posting (enter number)")
		if edit {
			b.WriteString(" or /skip to keep the current one")
		}
		b.WriteString(":")
		for i, c := range env.candidates {
			fmt.Fprintf(&b, "\n%d. %s", i+1, channels.DisplayName(c))
		}
		return b.String()
	case StepConfirm:
		return buildPreview(s, env.translator).Summary()
	}
	return ""
}

// Explain turns a Rejected reason into a reply line.
func Explain(reason error, example string) string {
	var (
		ve *post.ValidationError
		pt *post.PastTimeError
		cu *post.ChannelUnresolvedError
	)
	switch {
	case errors.As(reason, &pt):
		return "That time is already in the past. Example: " + example + "."
	case errors.As(reason, &ve) && ve.Field == "time":
		return "Invalid format. Example: " + example + "."
	case errors.As(reason, &ve):
		return "Invalid " + ve.Field + ": " + ve.Reason + "."
	case errors.As(reason, &cu):
		return "That channel is no longer available, go /back and pick another one."
	case reason != nil:
		return reason.Error()
	}
	return ""
}
