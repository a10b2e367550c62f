package post

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("post not found")
	// ErrTerminal is returned when editing a published or failed post.
	ErrTerminal = errors.New("post already published")
)

// ValidationError is malformed input for one field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PastTimeError is a well-formed time that is not in the future.
type PastTimeError struct {
	At  time.Time
	Now time.Time
}

func (e *PastTimeError) Error() string {
	return fmt.Sprintf("time %s is not in the future", e.At.UTC().Format(time.RFC3339))
}

// ChannelUnresolvedError means the destination vanished before dispatch.
type ChannelUnresolvedError struct {
	ChannelID int64
}

func (e *ChannelUnresolvedError) Error() string {
	return fmt.Sprintf("channel %d cannot be resolved", e.ChannelID)
}

// DeliveryError wraps a gateway failure for one post.
type DeliveryError struct {
	PostID    int64
	ChannelID int64
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver post %d to channel %d: %v", e.PostID, e.ChannelID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// ConcurrentEditError is returned when a conditional write finds the record
// in another state than the writer expected.
type ConcurrentEditError struct {
	PostID   int64
	Expected State
	Actual   State
}

func (e *ConcurrentEditError) Error() string {
	return fmt.Sprintf("post %d changed state from %s to %s", e.PostID, e.Expected, e.Actual)
}

// StoreUnavailableError is a connectivity or driver failure.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable (%s): %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// Unavailable wraps err unless it is nil or already a domain error.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		su *StoreUnavailableError
		ce *ConcurrentEditError
		ve *ValidationError
	)
	if errors.Is(err, ErrNotFound) || errors.As(err, &su) || errors.As(err, &ce) || errors.As(err, &ve) {
		return err
	}
	return &StoreUnavailableError{Op: op, Err: err}
}

func IsStoreUnavailable(err error) bool {
	var su *StoreUnavailableError
	return errors.As(err, &su)
}
