package tgui

import "html"

// H is text already escaped for ParseMode "HTML".
type H string

func (h H) String() string { return string(h) }

// Esc escapes user text (post previews, channel titles) for HTML mode.
func Esc(s string) H { return H(html.EscapeString(s)) }

// B escapes s and wraps it in <b>.
func B(s string) H { return H("<b>" + string(Esc(s)) + "</b>") }
