package commands

import (
	"context"

	"kwbot/pkg/tgui"
)

func kwUsage() tgui.H {
	return tgui.Lines(
		tgui.B("Keyword alerts"),
		tgui.Concat(tgui.Code("/kw add <keyword>"), " alert me when a message contains it"),
		tgui.Concat(tgui.Code("/kw remove <keyword>"), " stop alerting on it"),
		tgui.Concat(tgui.Code("/kw list"), " show my keywords"),
		tgui.Concat(tgui.Code("/kw exclude [chat_id[:thread_id]]"), " mute alerts from a topic"),
		tgui.Concat(tgui.Code("/kw unexclude [chat_id[:thread_id]]"), " unmute it"),
		tgui.Concat(tgui.Code("/kw exclusions"), " show muted topics"),
	)
}

func (r *Router) handleHelp(ctx context.Context, req *Request) error {
	r.reply(ctx, req, tgui.Lines(
		tgui.Esc("I watch the groups I'm in and send you a private message when someone mentions one of your keywords."),
		tgui.Esc("Matching ignores case and finds keywords anywhere inside a message."),
		kwUsage(),
	))
	return nil
}
