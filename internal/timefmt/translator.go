// Package timefmt converts between a user's localized date/time text and
// UTC instants.
//
// Patterns are compiled per segment so that MM is a month in the date
// pattern and a minute in the time pattern.
package timefmt

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

type Translator struct {
	datePattern string
	timePattern string
	date        []token
	clock       []token
	loc         *time.Location
	now         func() time.Time
}

// FormatError is returned by Parse when the text does not fit the layout.
type FormatError struct {
	Input   string
	Layout  string
	Example string
	Reason  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%q does not match %s (%s)", e.Input, e.Layout, e.Reason)
}

func New(datePattern, timePattern, timezone string) (Translator, error) {
	if err := ValidateDatePattern(datePattern); err != nil {
		return Translator{}, fmt.Errorf("date pattern %q: %w", datePattern, err)
	}
	if err := ValidateTimePattern(timePattern); err != nil {
		return Translator{}, fmt.Errorf("time pattern %q: %w", timePattern, err)
	}
	loc, err := LoadZone(timezone)
	if err != nil {
		return Translator{}, err
	}
	date, _ := compile(datePattern, dateSegment)
	clock, _ := compile(timePattern, timeSegment)
	return Translator{
		datePattern: datePattern,
		timePattern: timePattern,
		date:        date,
		clock:       clock,
		loc:         loc,
	}, nil
}

// MustNew panics on invalid input. For defaults and tests.
func MustNew(datePattern, timePattern, timezone string) Translator {
	tr, err := New(datePattern, timePattern, timezone)
	if err != nil {
		panic(err)
	}
	return tr
}

func (t Translator) Location() *time.Location { return t.loc }

// WithClock sets the clock behind FormatError examples.
func (t Translator) WithClock(now func() time.Time) Translator {
	t.now = now
	return t
}

func (t Translator) clockNow() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

// Layout is the human form of the combined pattern, e.g. "DD.MM.YYYY HH:MM".
func (t Translator) Layout() string { return t.datePattern + " " + t.timePattern }

// Example renders an instant one hour after now, for prompts.
func (t Translator) Example(now time.Time) string {
	return t.Render(now.Add(time.Hour).Truncate(time.Minute))
}

type parts struct {
	year, month, day, hour, minute, second int
}

// Parse reads "<date> <time>" in the translator's zone and returns UTC.
// Any whitespace run separates the two segments.
func (t Translator) Parse(text string) (time.Time, error) {
	in := strings.TrimSpace(text)
	fail := func(reason string) (time.Time, error) {
		return time.Time{}, &FormatError{
			Input:   in,
			Layout:  t.Layout(),
			Example: t.Example(t.clockNow()),
			Reason:  reason,
		}
	}

	var p parts
	rest, err := scan(in, t.date, &p)
	if err != nil {
		return fail(err.Error())
	}
	trimmed := strings.TrimLeftFunc(rest, unicode.IsSpace)
	if len(trimmed) == len(rest) {
		return fail("expected a space between date and time")
	}
	rest, err = scan(trimmed, t.clock, &p)
	if err != nil {
		return fail(err.Error())
	}
	if rest != "" {
		return fail("unexpected trailing text " + strconv.Quote(rest))
	}

	switch {
	case p.month < 1 || p.month > 12:
		return fail("month out of range")
	case p.day < 1 || p.day > 31:
		return fail("day out of range")
	case p.hour > 23:
		return fail("hour out of range")
	case p.minute > 59:
		return fail("minute out of range")
	case p.second > 59:
		return fail("second out of range")
	}
	at := time.Date(p.year, time.Month(p.month), p.day, p.hour, p.minute, p.second, 0, t.loc)
	if at.Day() != p.day || int(at.Month()) != p.month {
		return fail("no such date")
	}
	if at.Hour() != p.hour || at.Minute() != p.minute {
		return fail("time does not exist in " + t.loc.String())
	}
	return at.UTC(), nil
}

func scan(in string, toks []token, p *parts) (string, error) {
	for _, tok := range toks {
		if tok.field == fLiteral {
			if !strings.HasPrefix(in, tok.lit) {
				return in, fmt.Errorf("expected %q", tok.lit)
			}
			in = in[len(tok.lit):]
			continue
		}
		n := 0
		for n < len(in) && in[n] >= '0' && in[n] <= '9' {
			n++
		}
		switch {
		case tok.width == 0 && n > 2:
			n = 2
		case tok.width > 0 && n >= tok.width:
			n = tok.width
		}
		if n == 0 || (tok.width > 0 && n != tok.width) {
			return in, fmt.Errorf("expected %s as %s", tok.field, digits(tok.width))
		}
		v, _ := strconv.Atoi(in[:n])
		in = in[n:]
		switch tok.field {
		case fYear:
			if tok.width == 2 {
				v += 2000
			}
			p.year = v
		case fMonth:
			p.month = v
		case fDay:
			p.day = v
		case fHour:
			p.hour = v
		case fMinute:
			p.minute = v
		case fSecond:
			p.second = v
		}
	}
	return in, nil
}

func digits(width int) string {
	if width == 0 {
		return "1-2 digits"
	}
	return strconv.Itoa(width) + " digits"
}

// Render formats at in the translator's zone.
func (t Translator) Render(at time.Time) string {
	at = at.In(t.loc)
	var b strings.Builder
	render(&b, t.date, at)
	b.WriteByte(' ')
	render(&b, t.clock, at)
	return b.String()
}

func render(b *strings.Builder, toks []token, at time.Time) {
	for _, tok := range toks {
		var v int
		switch tok.field {
		case fLiteral:
			b.WriteString(tok.lit)
			continue
		case fYear:
			v = at.Year()
			if tok.width == 2 {
				v %= 100
			}
		case fMonth:
			v = int(at.Month())
		case fDay:
			v = at.Day()
		case fHour:
			v = at.Hour()
		case fMinute:
			v = at.Minute()
		case fSecond:
			v = at.Second()
		}
		s := strconv.Itoa(v)
		for len(s) < tok.width {
			s = "0" + s
		}
		b.WriteString(s)
	}
}
