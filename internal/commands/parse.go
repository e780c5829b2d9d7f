package commands

import (
	"errors"
	"strconv"
	"strings"
	"unicode"

	"kwbot/internal/alert"
)

var errBadChannel = errors.New("channel must be chat_id or chat_id:thread_id")

// commandLine is a parsed "/cmd[@bot] sub rest..." line.
type commandLine struct {
	Name string // without slash and bot suffix, lowercased
	Bot  string // addressed bot username, if any
	Sub  string // first word after the command, lowercased
	Rest string // everything after Sub, untouched except for outer trimming
	Args string // everything after Name
}

// parseCommandLine splits a slash command. ok is false when text is not a
// command.
func parseCommandLine(text string) (cl commandLine, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return cl, false
	}
	head, args := cutSpace(text[1:])
	if i := strings.IndexByte(head, '@'); i >= 0 {
		cl.Bot = head[i+1:]
		head = head[:i]
	}
	if head == "" {
		return cl, false
	}
	cl.Name = strings.ToLower(head)
	cl.Args = args
	sub, rest := cutSpace(args)
	cl.Sub = strings.ToLower(sub)
	cl.Rest = rest
	return cl, true
}

// cutSpace splits s at the first run of whitespace.
func cutSpace(s string) (head, tail string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

// parseChannel parses "chat_id" or "chat_id:thread_id".
func parseChannel(s string) (alert.ChannelID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return alert.ChannelID{}, errBadChannel
	}
	chat, thread, hasThread := strings.Cut(s, ":")
	id, err := strconv.ParseInt(strings.TrimSpace(chat), 10, 64)
	if err != nil || id == 0 {
		return alert.ChannelID{}, errBadChannel
	}
	ch := alert.ChannelID{SpaceID: id}
	if hasThread {
		tid, err := strconv.Atoi(strings.TrimSpace(thread))
		if err != nil || tid < 0 {
			return alert.ChannelID{}, errBadChannel
		}
		ch.ThreadID = tid
	}
	return ch, nil
}
