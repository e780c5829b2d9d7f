package alert

import (
	"kwbot/pkg/tgui"
)

const maxLabelRunes = 64

// FormatAlert renders the private alert sent for a hit.
func FormatAlert(keyword string, msg Message) string {
	channel := msg.ChannelRef
	if channel == "" {
		channel = msg.Channel.String()
	}
	return tgui.Lines(
		tgui.Concat("🔔 ", tgui.B("Keyword hit:"), " ", tgui.Code(keyword)),
		tgui.Concat("Group: ", tgui.B(tgui.TruncRunes(msg.SpaceName, maxLabelRunes))),
		tgui.Concat("Channel: ", tgui.Link(tgui.TruncRunes(channel, maxLabelRunes), msg.ChannelLink)),
		jumpLine(msg.Link),
	).String()
}

func jumpLine(link string) tgui.H {
	if link == "" {
		return ""
	}
	return tgui.Concat("Jump: ", tgui.Link(link, link))
}
