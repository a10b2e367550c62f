package post

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const MaxActionLabel = 64

// Action is an inline URL button under a post.
type Action struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

func (a Action) ValidateWithContext(ctx context.Context) error {
	return validation.ValidateStructWithContext(ctx, &a,
		validation.Field(&a.Label, validation.Required, validation.RuneLength(1, MaxActionLabel)),
		validation.Field(&a.URL, validation.Required, is.URL, validation.By(allowedScheme)),
	)
}

func allowedScheme(v any) error {
	s, _ := v.(string)
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "tg":
		return nil
	}
	return validation.NewError("validation_url_scheme", "must be an http, https or tg link")
}

// ValidateActions checks the persisted shape of a button list.
func ValidateActions(ctx context.Context, actions []Action) error {
	for i, a := range actions {
		if err := a.ValidateWithContext(ctx); err != nil {
			return &ValidationError{Field: fmt.Sprintf("actions[%d]", i), Reason: err.Error()}
		}
	}
	return nil
}

// ParseActions reads one "label | url" pair per line. Lines that do not
// form a valid pair are dropped.
func ParseActions(ctx context.Context, text string) []Action {
	out := []Action{}
	for _, line := range strings.Split(text, "\n") {
		label, link, ok := strings.Cut(line, "|")
		if !ok {
			continue
		}
		a := Action{Label: strings.TrimSpace(label), URL: strings.TrimSpace(link)}
		if utf8.RuneCountInString(a.Label) > MaxActionLabel {
			continue
		}
		if a.ValidateWithContext(ctx) != nil {
			continue
		}
		out = append(out, a)
	}
	return out
}

// FormatActions renders buttons as "label | url" lines for previews.
func FormatActions(actions []Action) string {
	lines := make([]string, 0, len(actions))
	for _, a := range actions {
		lines = append(lines, a.Label+" | "+a.URL)
	}
	return strings.Join(lines, "\n")
}
