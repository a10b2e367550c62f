package engine

import "errors"

// Enqueue refusals. Scheduler triggers log them and move on.
var (
	ErrDisabled    = errors.New("task engine disabled")
	ErrStopped     = errors.New("task engine stopped")
	ErrStopping    = errors.New("task engine stopping")
	ErrQueueFull   = errors.New("task engine queue full")
	ErrOverlapSkip = errors.New("task skipped: previous run still active")
)

// NoRetry makes a failed run final. Scheduler loop passes wrap every error
// with it: a due post is picked up again by the next pass, never by a retry.
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return &finalError{err: err}
}

func IsNoRetry(err error) bool {
	var f *finalError
	return errors.As(err, &f)
}

type finalError struct{ err error }

func (e *finalError) Error() string { return e.err.Error() }
func (e *finalError) Unwrap() error { return e.err }
