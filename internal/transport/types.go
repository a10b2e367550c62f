package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
)

// Media is an attachment already uploaded to the platform; FileID is the
// platform's opaque reference to it.
type Media struct {
	Kind   MediaKind `json:"kind"`
	FileID string    `json:"file_id"`
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string // text, or caption when Media is set
	Media        *Media
	IsGroup      bool
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

// Button is an inline keyboard button. Exactly one of URL or Data is set.
type Button struct {
	Text string
	URL  string
	Data string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// Keyboard rows rendered as an inline keyboard under the message.
	Keyboard [][]Button
}

// Outgoing is a fully rendered channel post.
type Outgoing struct {
	Text      string
	Media     *Media
	ParseMode string
	// URL buttons, one per row.
	Buttons []Button
}

type Notification struct {
	Channel  string // "telegram" now
	Priority int    // 0 low.. 10 high
	Target   ChatTarget
	Text     string
	Options  *SendOptions
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// Gateway delivers rendered posts to a destination chat.
type Gateway interface {
	SendPost(ctx context.Context, to ChatTarget, out Outgoing) (MessageRef, error)
}

// ChatInfo describes a chat as seen by the platform.
type ChatInfo struct {
	ID       int64
	Title    string
	Username string
	Type     string
}

// ChatLookup resolves a user-supplied chat reference (numeric id or
// @username) to the platform chat.
type ChatLookup interface {
	LookupChat(ctx context.Context, ref string) (ChatInfo, error)
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
