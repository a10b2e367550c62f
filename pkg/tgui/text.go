package tgui

import (
	"strings"
	"unicode/utf8"
)

// TruncRunes returns s truncated to at most n runes.
// It appends an ellipsis "…" when truncated.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	// Single-pass implementation:
	//  - remember the byte index after the n-th rune
	//  - if there is an (n+1)-th rune, truncate + ellipsis
	count := 0
	cut := 0
	for i, r := range s {
		count++
		if count == n {
			cut = i + utf8.RuneLen(r)
			continue
		}
		if count > n {
			if cut <= 0 {
				cut = i
			}
			return s[:cut] + "…"
		}
	}
	return s
}

// SplitText cuts s into chunks of at most limit runes, preferring a newline
// boundary in the last two thirds of each window. Chunks never start with a
// newline. A text that fits is returned as a single chunk.
func SplitText(s string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLen
	}
	if utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}
	var out []string
	start := 0 // byte index
	for start < len(s) {
		runes := 0
		end := start
		lastNL := -1 // byte index after the last newline in this window
		lastNLRunes := 0
		for end < len(s) && runes < limit {
			r, size := utf8.DecodeRuneInString(s[end:])
			if r == '\n' {
				lastNL = end + size
				lastNLRunes = runes + 1
			}
			runes++
			end += size
		}
		if end < len(s) && lastNL != -1 && lastNLRunes >= limit/3 {
			end = lastNL
		}
		if chunk := strings.TrimRight(s[start:end], "\n"); chunk != "" {
			out = append(out, chunk)
		}
		start = end
		for start < len(s) && s[start] == '\n' {
			start++
		}
	}
	return out
}
