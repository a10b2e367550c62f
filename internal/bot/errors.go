package bot

import (
	"errors"

	"postbot/internal/channels"
	"postbot/internal/compose"
	"postbot/internal/post"
	"postbot/internal/storage"
)

// userMessage maps domain errors to replies. ok is false for errors the
// user cannot act on.
func userMessage(err error) (string, bool) {
	var (
		ce *post.ConcurrentEditError
		ve *post.ValidationError
	)
	switch {
	case errors.Is(err, compose.ErrNoSession):
		return "There is no post being composed. Start one with /create.", true
	case errors.Is(err, compose.ErrStaleSession):
		return "That button belongs to an earlier post and no longer works.", true
	case errors.Is(err, post.ErrNotFound):
		return "Post not found. See /list for your posts.", true
	case errors.Is(err, post.ErrTerminal):
		return "That post was already published or has failed, it cannot be edited.", true
	case errors.As(err, &ce):
		return "The post changed while you were editing it (now " + string(ce.Actual) + "). Nothing was saved.", true
	case errors.Is(err, channels.ErrUnknownChat):
		return "I cannot see that chat. Add me to the channel as an administrator and try again.", true
	case errors.Is(err, storage.ErrChannelNotFound):
		return "Channel not found. See /channels.", true
	case errors.As(err, &ve):
		return compose.Explain(ve, ""), true
	case post.IsStoreUnavailable(err):
		return "Storage is unavailable right now, try again in a minute.", true
	}
	return "", false
}
