package telegram

import (
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "kwbot/internal/transport"
)

func TestMessageLink(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		chatID   int64
		username string
		thread   int
		msg      int
		want     string
	}{
		{"public", -1001234567890, "deals", 0, 42, "https://t.me/deals/42"},
		{"public topic", -1001234567890, "@deals", 7, 42, "https://t.me/deals/7/42"},
		{"private supergroup", -1001234567890, "", 0, 42, "https://t.me/c/1234567890/42"},
		{"private topic", -1001234567890, "", 7, 42, "https://t.me/c/1234567890/7/42"},
		{"basic group", -4567, "", 0, 42, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := messageLink(tc.chatID, tc.username, tc.thread, tc.msg); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestThreadLink(t *testing.T) {
	t.Parallel()
	if got := threadLink(-1001234567890, "", 7); got != "https://t.me/c/1234567890/7" {
		t.Fatalf("topic link=%q", got)
	}
	if got := threadLink(-1001234567890, "", 0); got != "" {
		t.Fatalf("internal main stream link=%q", got)
	}
	if got := threadLink(-1001234567890, "deals", 0); got != "https://t.me/deals" {
		t.Fatalf("public main stream link=%q", got)
	}
}

func TestToMessage(t *testing.T) {
	t.Parallel()
	m := &tele.Message{
		ID:       10,
		ThreadID: 55,
		Caption:  "Big SALE",
		Chat:     &tele.Chat{ID: -1009, Type: tele.ChatSuperGroup, Title: "Deals", IsForum: true},
		Sender:   &tele.User{ID: 1001, Username: "ann"},
		ReplyTo:  &tele.Message{TopicCreated: &tele.Topic{Name: "Offers"}},
	}
	got := toMessage(m)
	if got.Text != "Big SALE" || got.ThreadID != 55 || got.ThreadName != "Offers" || !got.IsGroup() {
		t.Fatalf("message=%+v", got)
	}

	m.Chat.IsForum = false
	if got := toMessage(m); got.ThreadID != 0 {
		t.Fatalf("reply thread in non-forum mapped to topic %d", got.ThreadID)
	}
	if toMessage(nil) != nil || toMessage(&tele.Message{}) != nil {
		t.Fatal("expected nil for empty message")
	}
}

func TestSplitText(t *testing.T) {
	t.Parallel()
	short := "hello"
	if got := splitText(short, 10, ""); len(got) != 1 || got[0] != short {
		t.Fatalf("short=%v", got)
	}

	long := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	got := splitText(long, 10, "")
	if len(got) != 2 || got[0] != strings.Repeat("a", 8) || got[1] != strings.Repeat("b", 8) {
		t.Fatalf("newline split=%q", got)
	}

	html := "abcdef<b>bold</b>"
	got = splitText(html, 8, "HTML")
	if got[0] != "abcdef" {
		t.Fatalf("html split cut inside tag: %q", got)
	}
	if strings.Join(got, "") != html {
		t.Fatalf("content lost: %q", got)
	}
}

func TestMemberFrom(t *testing.T) {
	t.Parallel()
	if _, err := memberFrom(&tele.ChatMember{Role: tele.Member, User: &tele.User{Username: "x"}}, 1); err != nil {
		t.Fatalf("member err=%v", err)
	}
	for _, role := range []tele.MemberStatus{tele.Left, tele.Kicked} {
		if _, err := memberFrom(&tele.ChatMember{Role: role}, 1); !errors.Is(err, kit.ErrNotMember) {
			t.Fatalf("role %s err=%v", role, err)
		}
	}
	if _, err := memberFrom(nil, 1); !errors.Is(err, kit.ErrNotMember) {
		t.Fatal("nil member must be not-member")
	}
}

func TestToTeleCommands(t *testing.T) {
	t.Parallel()
	got := toTeleCommands([]kit.BotCommand{{Command: "kw"}, {Command: ""}, {Command: "help", Description: "usage"}})
	if len(got) != 2 || got[0].Description != "kw" || got[1].Text != "help" {
		t.Fatalf("commands=%+v", got)
	}
	if menuHash(nil) == menuHash([]kit.BotCommand{{Command: "kw"}}) {
		t.Fatal("hash collision")
	}
}
