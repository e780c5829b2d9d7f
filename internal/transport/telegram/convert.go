package telegram

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "kwbot/internal/transport"
)

// supergroupOffset is the prefix Telegram adds to supergroup ids in the Bot
// API ("-100" followed by the internal id).
const supergroupOffset = 1000000000000

// toMessage converts a telebot message. Media captions are used as text.
func toMessage(m *tele.Message) *kit.Message {
	if m == nil || m.Chat == nil {
		return nil
	}
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	out := &kit.Message{
		ID:           m.ID,
		ChatID:       m.Chat.ID,
		ChatType:     kit.ChatType(m.Chat.Type),
		ChatTitle:    m.Chat.Title,
		ChatUsername: m.Chat.Username,
		ThreadID:     threadIDFromMsg(m),
		Text:         text,
	}
	if m.Sender != nil {
		out.FromID = m.Sender.ID
		out.FromUsername = m.Sender.Username
		out.FromIsBot = m.Sender.IsBot
	}
	if r := m.ReplyTo; r != nil && r.TopicCreated != nil {
		out.ThreadName = r.TopicCreated.Name
	}
	out.Link = messageLink(out.ChatID, out.ChatUsername, out.ThreadID, out.ID)
	out.ThreadLink = threadLink(out.ChatID, out.ChatUsername, out.ThreadID)
	return out
}

// threadIDFromMsg returns the forum topic of m. Reply threads in non-forum
// groups are not topics and map to 0.
func threadIDFromMsg(m *tele.Message) int {
	if m.Chat == nil || !m.Chat.IsForum {
		return 0
	}
	return m.ThreadID
}

// chatPath returns the t.me path segment addressing the chat, or "" when the
// chat has no link (basic groups, private chats).
func chatPath(chatID int64, username string) string {
	if u := strings.TrimPrefix(strings.TrimSpace(username), "@"); u != "" {
		return u
	}
	if chatID <= -supergroupOffset {
		return "c/" + strconv.FormatInt(-chatID-supergroupOffset, 10)
	}
	return ""
}

func messageLink(chatID int64, username string, threadID, msgID int) string {
	base := chatPath(chatID, username)
	if base == "" || msgID <= 0 {
		return ""
	}
	if threadID > 0 {
		return "https://t.me/" + base + "/" + strconv.Itoa(threadID) + "/" + strconv.Itoa(msgID)
	}
	return "https://t.me/" + base + "/" + strconv.Itoa(msgID)
}

func threadLink(chatID int64, username string, threadID int) string {
	base := chatPath(chatID, username)
	if base == "" {
		return ""
	}
	if threadID > 0 {
		return "https://t.me/" + base + "/" + strconv.Itoa(threadID)
	}
	if strings.HasPrefix(base, "c/") {
		// t.me/c/<id> alone does not resolve.
		return ""
	}
	return "https://t.me/" + base
}
