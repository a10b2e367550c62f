package publish

import (
	"fmt"
	"time"

	"postbot/internal/post"
	"postbot/internal/transport"
)

// Render turns a stored post into the message handed to the gateway.
// Actions become URL buttons, one per row.
func Render(p post.Post) transport.Outgoing {
	out := transport.Outgoing{Text: p.Text, ParseMode: p.Format.ParseMode()}
	if p.Media != nil && p.Media.Ref != "" {
		out.Media = &transport.Media{Kind: p.Media.Kind, FileID: p.Media.Ref}
	}
	for _, a := range p.Actions {
		out.Buttons = append(out.Buttons, transport.Button{Text: a.Label, URL: a.URL})
	}
	return out
}

// ReminderText is the owner notice sent lead time before publishing.
func ReminderText(id int64, channel string, left time.Duration) string {
	if mins := int(left / time.Minute); mins > 0 {
		return fmt.Sprintf("⌛️ Post #%d in channel %s will be posted in %d min.", id, channel, mins)
	}
	return fmt.Sprintf("⌛️ Post #%d in channel %s will be posted in less than a minute.", id, channel)
}

func failureText(id int64, channel string, err error) string {
	return fmt.Sprintf("Failed to send post #%d to channel %s: %v", id, channel, err)
}

func unresolvedText(id, channelID int64) string {
	return fmt.Sprintf("Post #%d was not sent: channel #%d is no longer registered.", id, channelID)
}
