package telegram

import (
	"strings"
	"testing"

	"postbot/internal/transport"
)

func TestPlan(t *testing.T) {
	t.Parallel()

	photo := &transport.Media{Kind: transport.MediaPhoto, FileID: "AgAD"}
	long := strings.Repeat("line of text\n", 400) // ~5200 runes

	cases := []struct {
		name    string
		out     transport.Outgoing
		parts   int
		first   string
		caption bool
	}{
		{"text", transport.Outgoing{Text: "Hello"}, 1, "Hello", false},
		{"empty text", transport.Outgoing{}, 1, NoText, false},
		{"blank text", transport.Outgoing{Text: "  \n"}, 1, NoText, false},
		{"media only", transport.Outgoing{Media: photo}, 1, "", true},
		{"media caption", transport.Outgoing{Media: photo, Text: "cap"}, 1, "cap", true},
		{"media long text", transport.Outgoing{Media: photo, Text: long}, 3, "", true},
		{"long text", transport.Outgoing{Text: long}, 2, "", false},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			parts := plan(c.out)
			if len(parts) != c.parts {
				t.Fatalf("parts=%d want %d", len(parts), c.parts)
			}
			if c.first != "" && parts[0].text != c.first {
				t.Fatalf("first text %q", parts[0].text)
			}
			if (parts[0].media != nil) != c.caption {
				t.Fatalf("media on first part = %v", parts[0].media != nil)
			}
			for i, p := range parts {
				if p.buttons != (i == len(parts)-1) {
					t.Fatalf("buttons on part %d of %d", i, len(parts))
				}
			}
		})
	}
}

func TestMenuCommands(t *testing.T) {
	t.Parallel()

	got := menuCommands([]transport.BotCommand{
		{Command: "/Create", Description: "new post"},
		{Command: " "},
		{Command: "list"},
		{Command: "help", Description: strings.Repeat("x", 300)},
	})
	if len(got) != 3 {
		t.Fatalf("commands %+v", got)
	}
	if got[0].Text != "create" || got[1].Description != "list" || len(got[2].Description) != 256 {
		t.Fatalf("commands %+v", got)
	}
	if menuHash(got) == menuHash(got[:2]) {
		t.Fatalf("hash ignores entries")
	}
}
