package logx

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Field decorates a single log event. Later fields win on duplicate keys.
type Field func(e *zerolog.Event)

func String(k, v string) Field         { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field        { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field    { return func(e *zerolog.Event) { e.Int64(k, v) } }
func Uint64(k string, v uint64) Field  { return func(e *zerolog.Event) { e.Uint64(k, v) } }
func Bool(k string, v bool) Field      { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Float64(k string, v float64) Field { return func(e *zerolog.Event) { e.Float64(k, v) } }
func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}
func Any(k string, v any) Field { return func(e *zerolog.Event) { e.Interface(k, v) } }

// Time logs t in UTC; zero times are logged as an empty string.
func Time(k string, v time.Time) Field {
	return func(e *zerolog.Event) {
		if v.IsZero() {
			e.Str(k, "")
			return
		}
		e.Time(k, v.UTC())
	}
}

func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

func Stack(stack string) Field {
	return func(e *zerolog.Event) {
		if strings.TrimSpace(stack) != "" {
			e.Str("stack", stack)
		}
	}
}

// Component tags a logger with the owning subsystem.
func Component(name string) Field { return String("comp", name) }
