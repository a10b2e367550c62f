package compose

import "fmt"

// Step is one stage of the guided input flow, in order.
type Step int

const (
	StepText Step = iota
	StepMedia
	StepFormat
	StepActions
	StepTime
	StepRepeat
	StepChannel
	StepConfirm
)

const stepCount = int(StepConfirm) + 1

var stepNames = [...]string{"text", "media", "format", "actions", "time", "repeat", "channel", "confirm"}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

// Number is the 1-based position shown to users.
func (s Step) Number() int { return int(s) + 1 }

func (s Step) next() Step {
	if s >= StepConfirm {
		return StepConfirm
	}
	return s + 1
}

type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

type ResultKind int

const (
	Accepted ResultKind = iota + 1
	Skipped
	Rejected
)

func (k ResultKind) String() string {
	switch k {
	case Accepted:
		return "accepted"
	case Skipped:
		return "skipped"
	case Rejected:
		return "rejected"
	}
	return "none"
}

// Result is the outcome of feeding one input to the current step. Reason
// is set for Rejected results and is one of *post.ValidationError,
// *post.PastTimeError or *post.ChannelUnresolvedError.
type Result struct {
	Kind   ResultKind
	Reason error
}

func accepted() Result          { return Result{Kind: Accepted} }
func skipped() Result           { return Result{Kind: Skipped} }
func rejected(err error) Result { return Result{Kind: Rejected, Reason: err} }
