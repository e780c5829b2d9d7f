package commands

import (
	"context"
	"errors"
	"fmt"

	"kwbot/internal/alert"
	"kwbot/pkg/tgui"
)

func (r *Router) handleKW(ctx context.Context, req *Request) error {
	switch req.Line.Sub {
	case "add":
		return r.kwAdd(ctx, req)
	case "remove", "rm", "del":
		return r.kwRemove(ctx, req)
	case "list", "ls":
		return r.kwList(ctx, req)
	case "exclude", "mute":
		return r.kwExclude(ctx, req, true)
	case "unexclude", "unmute":
		return r.kwExclude(ctx, req, false)
	case "exclusions":
		return r.kwExclusions(ctx, req)
	case "stats":
		if req.IsOwner && r.d.Stats != nil {
			r.reply(ctx, req, tgui.H(r.d.Stats()))
			return nil
		}
	}
	r.reply(ctx, req, kwUsage())
	return nil
}

func (r *Router) kwAdd(ctx context.Context, req *Request) error {
	kw := alert.Normalize(req.Line.Rest)
	if kw == "" {
		r.reply(ctx, req, tgui.Concat("Usage: ", tgui.Code("/kw add <keyword>")))
		return nil
	}
	err := r.d.Engine.Keywords().Add(ctx, req.Msg.FromID, kw)
	r.audit(ctx, req, "kw.add", kw, err)
	if err != nil {
		return fmt.Errorf("add keyword: %w", err)
	}
	r.reply(ctx, req, tgui.Concat("Added keyword: ", tgui.B(kw)))
	return nil
}

func (r *Router) kwRemove(ctx context.Context, req *Request) error {
	kw := alert.Normalize(req.Line.Rest)
	if kw == "" {
		r.reply(ctx, req, tgui.Concat("Usage: ", tgui.Code("/kw remove <keyword>")))
		return nil
	}
	err := r.d.Engine.Keywords().Remove(ctx, req.Msg.FromID, kw)
	r.audit(ctx, req, "kw.remove", kw, err)
	if err != nil {
		return fmt.Errorf("remove keyword: %w", err)
	}
	r.reply(ctx, req, tgui.Concat("Removed keyword: ", tgui.B(kw)))
	return nil
}

func (r *Router) kwList(ctx context.Context, req *Request) error {
	kws, err := r.d.Engine.Keywords().List(ctx, req.Msg.FromID)
	if err != nil {
		return fmt.Errorf("list keywords: %w", err)
	}
	if len(kws) == 0 {
		r.reply(ctx, req, tgui.Esc("You don't have any keywords yet."))
		return nil
	}
	lines := []tgui.H{tgui.B("Your keywords:")}
	for _, kw := range kws {
		lines = append(lines, tgui.Concat("• ", tgui.Code(kw)))
	}
	r.reply(ctx, req, tgui.Lines(lines...))
	return nil
}

// kwExclude mutes (or unmutes) a channel. Without an argument it targets the
// topic the command was sent in.
func (r *Router) kwExclude(ctx context.Context, req *Request, mute bool) error {
	ch, label, err := r.channelArg(req)
	if err != nil {
		verb := "exclude"
		if !mute {
			verb = "unexclude"
		}
		r.reply(ctx, req, tgui.Lines(
			tgui.Concat("Usage: ", tgui.Code("/kw "+verb+" [chat_id[:thread_id]]")),
			tgui.Esc("Without an argument, send it inside the group topic you want to "+verb+"."),
		))
		return nil
	}

	if mute {
		err = r.d.Engine.Exclusions().Add(ctx, req.Msg.FromID, ch)
		r.audit(ctx, req, "ex.add", ch.String(), err)
		if err != nil {
			return fmt.Errorf("add exclusion: %w", err)
		}
		r.reply(ctx, req, tgui.Concat("I'll ignore keyword alerts for you in ", label, "."))
		return nil
	}
	err = r.d.Engine.Exclusions().Remove(ctx, req.Msg.FromID, ch)
	r.audit(ctx, req, "ex.remove", ch.String(), err)
	if err != nil {
		return fmt.Errorf("remove exclusion: %w", err)
	}
	r.reply(ctx, req, tgui.Concat("I'll resume alerts for you in ", label, "."))
	return nil
}

func (r *Router) kwExclusions(ctx context.Context, req *Request) error {
	chs, err := r.d.Engine.Exclusions().List(ctx, req.Msg.FromID)
	if err != nil {
		return fmt.Errorf("list exclusions: %w", err)
	}
	if len(chs) == 0 {
		r.reply(ctx, req, tgui.Esc("You have no excluded channels."))
		return nil
	}
	lines := []tgui.H{tgui.B("Excluded channels:")}
	for _, ch := range chs {
		lines = append(lines, tgui.Concat("• ", tgui.Code(ch.String())))
	}
	r.reply(ctx, req, tgui.Lines(lines...))
	return nil
}

// channelArg resolves the target channel and a display label for it.
func (r *Router) channelArg(req *Request) (alert.ChannelID, tgui.H, error) {
	if req.Line.Rest != "" {
		ch, err := parseChannel(req.Line.Rest)
		if err != nil {
			return ch, "", err
		}
		return ch, tgui.Code(ch.String()), nil
	}
	m := req.Msg
	if !m.IsGroup() {
		return alert.ChannelID{}, "", errors.New("no channel in private chat")
	}
	ch := alert.ChannelID{SpaceID: m.ChatID, ThreadID: m.ThreadID}
	return ch, tgui.Link(channelLabel(m.ChatTitle, m.ThreadName, m.ThreadID), m.ThreadLink), nil
}

func channelLabel(title, topic string, threadID int) string {
	if title == "" {
		title = "this group"
	}
	switch {
	case topic != "":
		return title + " / " + topic
	case threadID > 0:
		return fmt.Sprintf("%s / topic %d", title, threadID)
	default:
		return title
	}
}
