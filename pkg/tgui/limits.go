package tgui

import "errors"

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
// NOTE: This is the length of the full string: "scope:action:payload".
const MaxCallbackDataLen = 64

// Telegram message size limits, in runes.
const (
	MaxMessageLen = 4096
	MaxCaptionLen = 1024
)

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")
