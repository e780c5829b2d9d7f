package transport

import (
	"context"
	"errors"
)

// ErrNotMember is returned by Adapter.ResolveMember when the user is unknown
// to the chat or has left / been removed from it.
var ErrNotMember = errors.New("user is not a member of the chat")

type ChatType string

const (
	ChatPrivate    ChatType = "private"
	ChatGroup      ChatType = "group"
	ChatSuperGroup ChatType = "supergroup"
	ChatChannel    ChatType = "channel"
)

type Update struct {
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	ChatType     ChatType
	ChatTitle    string
	ChatUsername string
	ThreadID     int    // telegram forum topic thread id (0 if none)
	ThreadName   string // topic title when known

	FromID       int64
	FromUsername string
	FromIsBot    bool

	Text string

	// Link points back to the message, ThreadLink to the topic (or chat) it
	// was posted in. Both are empty when the chat has no public or internal
	// t.me address (legacy basic groups).
	Link       string
	ThreadLink string
}

// IsGroup reports whether the message was posted in a multi-user chat.
func (m *Message) IsGroup() bool {
	if m == nil {
		return false
	}
	return m.ChatType == ChatGroup || m.ChatType == ChatSuperGroup
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// Private addresses the one-to-one chat between the bot and a user.
func Private(userID int64) ChatTarget { return ChatTarget{ChatID: userID} }

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Member is the resolved view of a user inside a chat.
type Member struct {
	UserID   int64
	Username string
	Status   string
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	ResolveMember(ctx context.Context, chatID, userID int64) (Member, error)
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
