package telegram

import (
	"context"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"postbot/internal/transport"
)

// LookupChat resolves "@username" or a numeric chat id through getChat.
// The bot must be able to see the chat, which for channels means it has
// been added as an administrator.
func (a *Adapter) LookupChat(ctx context.Context, ref string) (transport.ChatInfo, error) {
	if err := ctx.Err(); err != nil {
		return transport.ChatInfo{}, err
	}
	ref = strings.TrimSpace(ref)
	var (
		chat *tele.Chat
		err  error
	)
	if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil {
		chat, err = a.bot.ChatByID(id)
	} else {
		if !strings.HasPrefix(ref, "@") {
			ref = "@" + ref
		}
		chat, err = a.bot.ChatByUsername(ref)
	}
	if err != nil {
		return transport.ChatInfo{}, err
	}
	return transport.ChatInfo{
		ID:       chat.ID,
		Title:    chat.Title,
		Username: chat.Username,
		Type:     string(chat.Type),
	}, nil
}
