package post

import (
	"strconv"
	"strings"
	"time"
)

const (
	day = 24 * time.Hour
	// MaxRepeat bounds repeat intervals to a year.
	MaxRepeat = 366 * day
)

// ParseRepeat accepts "0" or a magnitude with a unit suffix: d, h or m.
func ParseRepeat(token string) (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(token))
	if s == "0" {
		return 0, nil
	}
	if len(s) < 2 {
		return 0, &ValidationError{Field: "repeat", Reason: "expected 0 or a number with d, h or m"}
	}
	var unit time.Duration
	switch s[len(s)-1] {
	case 'd':
		unit = day
	case 'h':
		unit = time.Hour
	case 'm':
		unit = time.Minute
	default:
		return 0, &ValidationError{Field: "repeat", Reason: "unknown unit, use d, h or m"}
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return 0, &ValidationError{Field: "repeat", Reason: "expected a non-negative whole number"}
	}
	if time.Duration(n) > MaxRepeat/unit {
		return 0, &ValidationError{Field: "repeat", Reason: "interval is longer than a year"}
	}
	return time.Duration(n) * unit, nil
}

// FormatRepeat is the display inverse of ParseRepeat.
func FormatRepeat(d time.Duration) string {
	switch {
	case d <= 0:
		return "off"
	case d%day == 0:
		return strconv.FormatInt(int64(d/day), 10) + "d"
	case d%time.Hour == 0:
		return strconv.FormatInt(int64(d/time.Hour), 10) + "h"
	default:
		return strconv.FormatInt(int64(d/time.Minute), 10) + "m"
	}
}
