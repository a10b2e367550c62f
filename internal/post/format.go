package post

import "strings"

type Format string

const (
	FormatPlain    Format = "plain"
	FormatMarkdown Format = "markdown"
	FormatRichText Format = "richtext"
)

// ParseFormat maps a free-form token case-insensitively. ok is false when the
// token is not recognized, in which case fallback is returned.
func ParseFormat(token string, fallback Format) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "plain", "text", "none":
		return FormatPlain, true
	case "markdown", "md":
		return FormatMarkdown, true
	case "richtext", "rich", "html":
		return FormatRichText, true
	}
	return fallback, false
}

// ParseMode is the Telegram parse mode for f.
func (f Format) ParseMode() string {
	switch f {
	case FormatMarkdown:
		return "Markdown"
	case FormatRichText:
		return "HTML"
	}
	return ""
}
