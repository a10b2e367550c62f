package telegram

import (
	"context"
	"hash/fnv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"postbot/internal/transport"
	"postbot/pkg/logx"
)

// menuCommands normalizes entries for setMyCommands: lowercase names, no
// empty entries, descriptions capped at 256 bytes, at most 100 commands.
func menuCommands(cmds []transport.BotCommand) []tele.Command {
	out := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Command), "/"))
		if name == "" {
			continue
		}
		d := strings.TrimSpace(c.Description)
		if d == "" {
			d = name
		}
		if len(d) > 256 {
			d = d[:256]
		}
		out = append(out, tele.Command{Text: name, Description: d})
		if len(out) >= 100 {
			break
		}
	}
	return out
}

func menuHash(cmds []tele.Command) uint64 {
	h := fnv.New64a()
	for _, c := range cmds {
		h.Write([]byte(c.Text))
		h.Write([]byte{0})
		h.Write([]byte(c.Description))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// UpdateMenuCommands updates Telegram's global /menu command list (setMyCommands).
// Best-effort: it only performs a network call when the command list changes.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []transport.BotCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	list := menuCommands(cmds)
	sum := menuHash(list)
	if sum == a.menuHash {
		return nil
	}
	if err := a.bot.SetCommands(list); err != nil {
		return err
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(list)))
	return nil
}
