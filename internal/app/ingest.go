package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kwbot/internal/alert"
	"kwbot/internal/eventbus"
	rtsup "kwbot/internal/runtime/supervisor"
	kit "kwbot/internal/transport"
	logx "kwbot/pkg/logx"
	"kwbot/pkg/tgui"
)

// generalTopic labels the main stream of a chat.
const generalTopic = "#general"

// startIngest runs n workers over the update channel. Each worker evaluates
// one message at a time.
func (a *App) startIngest(n int) {
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		a.sup.GoRestart(fmt.Sprintf("ingest.%d", i), a.ingestLoop,
			rtsup.WithRestartBackoff(100*time.Millisecond, 5*time.Second),
		)
	}
}

func (a *App) ingestLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-a.updates:
			if !ok {
				return nil
			}
			a.handleUpdate(ctx, up)
		}
	}
}

func (a *App) handleUpdate(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	cfg := a.cfgm.Get()
	if a.router.Handle(ctx, msg) && !cfg.Alerts.EvaluateCommands {
		return
	}
	if !msg.IsGroup() {
		return
	}

	am := toAlertMessage(msg, cfg.Tracked(msg.ChatID), alert.MemberResolverFunc(a.resolveMember))
	start := time.Now()
	sum := a.engine.EvaluateAndNotify(ctx, am)
	a.metrics.ObserveEvaluation(sum, time.Since(start))
	if sum.Hits > 0 {
		a.log.Debug("message evaluated",
			logx.Int64("chat_id", msg.ChatID),
			logx.Int("thread_id", msg.ThreadID),
			logx.Int("hits", sum.Hits),
			logx.Int("excluded", sum.Excluded),
			logx.Int("dispatched", sum.Dispatched),
			logx.Int("dropped", sum.Dropped),
		)
	}
}

func (a *App) resolveMember(ctx context.Context, spaceID, userID int64) error {
	_, err := a.adapter.ResolveMember(ctx, spaceID, userID)
	return err
}

// toAlertMessage maps a transport message onto the engine's view of it.
func toAlertMessage(m *kit.Message, tracked bool, resolver alert.MemberResolver) alert.Message {
	ref := strings.TrimSpace(m.ThreadName)
	if ref == "" {
		if m.ThreadID != 0 {
			ref = fmt.Sprintf("topic %d", m.ThreadID)
		} else {
			ref = generalTopic
		}
	}
	space := strings.TrimSpace(m.ChatTitle)
	if space == "" {
		space = fmt.Sprintf("%d", m.ChatID)
	}
	return alert.Message{
		AuthorID:       m.FromID,
		IsBot:          m.FromIsBot,
		InTrackedSpace: m.IsGroup() && tracked,
		SpaceID:        m.ChatID,
		SpaceName:      space,
		Channel:        alert.ChannelID{SpaceID: m.ChatID, ThreadID: m.ThreadID},
		ChannelRef:     ref,
		ChannelLink:    m.ThreadLink,
		Text:           m.Text,
		Link:           m.Link,
		Resolver:       resolver,
	}
}

// report receives every hit outcome, possibly from delivery goroutines.
func (a *App) report(r alert.Result) {
	a.metrics.ObserveResult(r)
	fields := []logx.Field{
		logx.Int64("user_id", r.Hit.UserID),
		logx.String("keyword", r.Hit.Keyword),
		logx.String("channel", r.Channel.String()),
		logx.String("outcome", string(r.Outcome)),
	}
	var typ string
	switch r.Outcome {
	case alert.OutcomeSent:
		typ = eventbus.TypeAlertSent
	case alert.OutcomeExcluded:
		typ = eventbus.TypeAlertExcluded
	case alert.OutcomeUnresolved:
		typ = eventbus.TypeAlertUnresolved
		a.log.Debug("alert recipient unresolved", append(fields, logx.Err(r.Err))...)
	case alert.OutcomeFailed:
		typ = eventbus.TypeAlertFailed
		a.log.Warn("alert delivery failed", append(fields, logx.Err(r.Err))...)
	case alert.OutcomeDropped:
		// The notifier already published alert.dropped.
		a.log.Warn("alert dropped", append(fields, logx.Err(r.Err))...)
		return
	}
	if typ != "" {
		eventbus.Emit(a.bus, typ, r)
	}
}

// statsText renders the owner-only /kw stats reply.
func (a *App) statsText() string {
	st := a.notif.Stats()
	var uptime time.Duration
	if !a.started.IsZero() {
		uptime = time.Since(a.started).Truncate(time.Second)
	}
	return tgui.Lines(
		tgui.B("kwbot stats"),
		tgui.Concat("Uptime: ", tgui.Code(uptime.String())),
		tgui.Concat("Keywords indexed: ", tgui.Code(fmt.Sprint(a.engine.Keywords().Size()))),
		tgui.Concat("Queue: ", tgui.Code(fmt.Sprintf("%d/%d", st.Queued, st.Capacity)),
			" workers ", tgui.Code(fmt.Sprint(st.Workers))),
		tgui.Concat("Delivered: ", tgui.Code(fmt.Sprint(st.Completed)),
			" dropped ", tgui.Code(fmt.Sprint(st.Dropped)),
			" panics ", tgui.Code(fmt.Sprint(st.Panics))),
		tgui.Concat("Bus drops: ", tgui.Code(fmt.Sprint(eventbus.Dropped(a.bus)))),
	).String()
}
