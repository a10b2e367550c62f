package tgui

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncRunes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 5, "hello…"},
		{"héllo wörld", 4, "héll…"},
		{"x", 0, ""},
	}
	for _, c := range cases {
		if got := TruncRunes(c.in, c.n); got != c.want {
			t.Fatalf("TruncRunes(%q, %d) = %q, want %q", c.in, c.n, got, c.want)
		}
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()

	line := strings.Repeat("a", 40)
	text := strings.Join([]string{line, line, line, line, line}, "\n")
	chunks := SplitText(text, 100)
	if len(chunks) != 3 {
		t.Fatalf("chunks=%d %q", len(chunks), chunks)
	}
	for _, c := range chunks {
		if utf8.RuneCountInString(c) > 100 {
			t.Fatalf("chunk too long: %d", utf8.RuneCountInString(c))
		}
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk keeps boundary newline: %q", c)
		}
	}
	if strings.Join(chunks, "\n") != text {
		t.Fatalf("split lost content")
	}
}

func TestSplitTextHardCut(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("я", 250)
	chunks := SplitText(text, 100)
	if len(chunks) != 3 || utf8.RuneCountInString(chunks[2]) != 50 {
		t.Fatalf("chunks %d", len(chunks))
	}
	if got := SplitText("", 10); len(got) != 1 || got[0] != "" {
		t.Fatalf("empty text %q", got)
	}
}

func TestCallbackData(t *testing.T) {
	t.Parallel()

	d := Data("compose", "skip", "abc:def")
	scope, action, payload, ok := ParseData(d)
	if !ok || scope != "compose" || action != "skip" || payload != "abc:def" {
		t.Fatalf("parse %q -> %q %q %q %v", d, scope, action, payload, ok)
	}
	if _, _, _, ok := ParseData("nocolon"); ok {
		t.Fatalf("accepted data without action")
	}
	if _, err := CheckedData("compose", "accept", strings.Repeat("x", 60)); err == nil {
		t.Fatalf("oversized data accepted")
	}
}

func TestMarkup(t *testing.T) {
	t.Parallel()

	if Markup(nil) != nil {
		t.Fatalf("empty keyboard should be nil")
	}
	kb := NewInline().Row(Btn("Skip", "compose:skip"), Btn("", "ignored")).Row().Row(URLBtn("Go", "https://go.dev"))
	rm := Markup(kb.Rows())
	if rm == nil || len(rm.InlineKeyboard) != 2 {
		t.Fatalf("markup %+v", rm)
	}
	if got := rm.InlineKeyboard[0]; len(got) != 1 || got[0].Data != "compose:skip" {
		t.Fatalf("row0 %+v", got)
	}
	if rm.InlineKeyboard[1][0].URL != "https://go.dev" {
		t.Fatalf("row1 %+v", rm.InlineKeyboard[1])
	}
}

func TestBuilderEscapesHTML(t *testing.T) {
	t.Parallel()

	m := New().Title("📋", "Posts <pending>").KV("a&b", "<x>").Line("1 < 2").Build()
	want := "📋 <b>Posts &lt;pending&gt;</b>\n• <b>a&amp;b</b>: &lt;x&gt;\n1 &lt; 2"
	if m.Text != want {
		t.Fatalf("text %q", m.Text)
	}
	if m.Opt.ParseMode != "HTML" || !m.Opt.DisablePreview {
		t.Fatalf("opts %+v", m.Opt)
	}

	plain := New().ParseMode("").Line("1 < 2").Build()
	if plain.Text != "1 < 2" {
		t.Fatalf("plain %q", plain.Text)
	}
}
