package tgui

import (
	tele "gopkg.in/telebot.v4"

	"postbot/internal/transport"
)

// Inline is a small builder for inline keyboards.
type Inline struct {
	rows [][]transport.Button
}

func NewInline() *Inline { return &Inline{} }

// Row appends a new row of buttons. Empty rows are ignored.
func (i *Inline) Row(btn ...transport.Button) *Inline {
	if len(btn) > 0 {
		i.rows = append(i.rows, append([]transport.Button(nil), btn...))
	}
	return i
}

// Rows returns the keyboard rows.
func (i *Inline) Rows() [][]transport.Button { return i.rows }

// Btn creates a callback button with raw callback_data (we do NOT encode it).
func Btn(text, data string) transport.Button {
	return transport.Button{Text: text, Data: data}
}

// URLBtn creates a URL button.
func URLBtn(text, url string) transport.Button {
	return transport.Button{Text: text, URL: url}
}

// Column puts every button on its own row.
func Column(buttons []transport.Button) [][]transport.Button {
	rows := make([][]transport.Button, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, []transport.Button{b})
	}
	return rows
}

// Markup converts rows to telebot reply markup. It returns nil for an empty
// keyboard so callers can pass it straight into SendOptions.
func Markup(rows [][]transport.Button) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	rm := &tele.ReplyMarkup{}
	kb := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		r := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			if b.Text == "" {
				continue
			}
			r = append(r, tele.InlineButton{Text: b.Text, URL: b.URL, Data: b.Data})
		}
		if len(r) > 0 {
			kb = append(kb, r)
		}
	}
	if len(kb) == 0 {
		return nil
	}
	rm.InlineKeyboard = kb
	return rm
}
