// Package transport holds the platform-neutral messaging types the bot's
// command and delivery layers work with.
package transport

import "context"

type UpdateKind string

const (
	UpdateMessage     UpdateKind = "message"
	UpdateChannelPost UpdateKind = "channel_post"
)

type Update struct {
	ID      int
	Kind    UpdateKind
	Message *Message
}

// ChatType mirrors the Telegram chat kinds.
type ChatType string

const (
	ChatPrivate    ChatType = "private"
	ChatGroup      ChatType = "group"
	ChatSuperGroup ChatType = "supergroup"
	ChatChannel    ChatType = "channel"
)

type Message struct {
	ID           int
	ChatID       int64
	ChatType     ChatType
	ChatTitle    string
	ChatUsername string

	// FromID is 0 for channel posts, which have no sender.
	FromID       int64
	FromUsername string

	Text string

	// ReplyToFromID is the sender of the message this one replies to, or 0.
	ReplyToFromID       int64
	ReplyToFromUsername string

	IsChannel bool
}

func (m *Message) IsPrivate() bool { return m.ChatType == ChatPrivate }

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// ReplyTo is a message id in the target chat, or 0.
	ReplyTo int
}

// ChatInfo is what the platform knows about a chat.
type ChatInfo struct {
	ID        int64
	ShiftedID int64
	Type      ChatType
	Title     string
	Mention   string
	URL       string
}

// Me is the bot's own account.
type Me struct {
	ID       int64
	Username string
}

type Adapter interface {
	// Start begins receiving updates into out until Stop or ctx is done.
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	Me() Me

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, url string, opt *SendOptions) (MessageRef, error)
	ChatInfo(ctx context.Context, chatID int64) (ChatInfo, error)
}

// Sender is the sending half of Adapter.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, url string, opt *SendOptions) (MessageRef, error)
}
