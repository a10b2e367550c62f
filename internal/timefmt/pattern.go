package timefmt

import (
	"fmt"
	"strings"
	"unicode"
)

type field uint8

const (
	fLiteral field = iota
	fYear
	fMonth
	fDay
	fHour
	fMinute
	fSecond
)

func (f field) String() string {
	switch f {
	case fYear:
		return "year"
	case fMonth:
		return "month"
	case fDay:
		return "day"
	case fHour:
		return "hour"
	case fMinute:
		return "minute"
	case fSecond:
		return "second"
	}
	return "literal"
}

// token is one element of a compiled pattern. width 0 on a numeric field
// means "1 or 2 digits".
type token struct {
	field field
	width int
	lit   string
}

type segment int

const (
	dateSegment segment = iota
	timeSegment
)

// compile tokenizes one segment. The same letters mean different fields
// depending on the segment: M is the month in a date and the minute in a
// time.
func compile(pattern string, seg segment) ([]token, error) {
	rs := []rune(pattern)
	var out []token
	for i := 0; i < len(rs); {
		r := rs[i]
		n := 1
		for i+n < len(rs) && rs[i+n] == r {
			n++
		}
		var (
			tok token
			ok  bool
		)
		if unicode.IsLetter(r) {
			tok, ok = letterToken(unicode.ToUpper(r), n, seg)
			if !ok {
				return nil, fmt.Errorf("unsupported token %q", string(rs[i:i+n]))
			}
		} else {
			tok = token{field: fLiteral, lit: string(rs[i : i+n])}
		}
		out = append(out, tok)
		i += n
	}
	return out, nil
}

func letterToken(r rune, n int, seg segment) (token, bool) {
	one := func(f field) (token, bool) {
		switch n {
		case 1:
			return token{field: f}, true
		case 2:
			return token{field: f, width: 2}, true
		}
		return token{}, false
	}
	if seg == dateSegment {
		switch r {
		case 'Y':
			if n == 2 || n == 4 {
				return token{field: fYear, width: n}, true
			}
			return token{}, false
		case 'M':
			return one(fMonth)
		case 'D':
			return one(fDay)
		}
		return token{}, false
	}
	switch r {
	case 'H':
		return one(fHour)
	case 'M':
		return one(fMinute)
	case 'S':
		if n == 2 {
			return token{field: fSecond, width: 2}, true
		}
	}
	return token{}, false
}

func checkRequired(toks []token, need ...field) error {
	seen := map[field]bool{}
	for i, t := range toks {
		if t.field == fLiteral {
			continue
		}
		if seen[t.field] {
			return fmt.Errorf("%s appears twice", t.field)
		}
		seen[t.field] = true
		// A 1-or-2 digit field must be followed by a literal, otherwise
		// the digit run cannot be split.
		if t.width == 0 && i+1 < len(toks) && toks[i+1].field != fLiteral {
			return fmt.Errorf("%s needs a separator after it", t.field)
		}
	}
	var missing []string
	for _, f := range need {
		if !seen[f] {
			missing = append(missing, f.String())
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// ValidateDatePattern checks that pattern carries year, month and day.
func ValidateDatePattern(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return fmt.Errorf("date pattern is empty")
	}
	toks, err := compile(pattern, dateSegment)
	if err != nil {
		return err
	}
	return checkRequired(toks, fYear, fMonth, fDay)
}

// ValidateTimePattern checks that pattern carries hour and minute.
func ValidateTimePattern(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return fmt.Errorf("time pattern is empty")
	}
	toks, err := compile(pattern, timeSegment)
	if err != nil {
		return err
	}
	return checkRequired(toks, fHour, fMinute)
}
