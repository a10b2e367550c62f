package config

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Duration parses a duration field. Empty or zero yields def; negative
// values are rejected.
func Duration(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}

// isDuration is the ozzo rule for optional duration strings.
var isDuration = validation.By(func(v any) error {
	s, _ := v.(string)
	if strings.TrimSpace(s) == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return validation.NewError("validation_duration", "must be a duration like 10s or 5m")
	}
	if d < 0 {
		return validation.NewError("validation_duration_negative", "must not be negative")
	}
	return nil
})
