package commands

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"kwbot/internal/alert"
	"kwbot/internal/eventbus"
	"kwbot/internal/storage"
	kit "kwbot/internal/transport"
	logx "kwbot/pkg/logx"
	"kwbot/pkg/tgui"
)

// Request is one command invocation.
type Request struct {
	ID      string
	Msg     *kit.Message
	Line    commandLine
	IsOwner bool
	Log     logx.Logger
}

// Deps are the collaborators of the Router.
type Deps struct {
	Engine  *alert.Engine
	Audit   storage.Store // optional
	Adapter kit.Adapter
	Bus     eventbus.Bus // optional
	Log     logx.Logger

	// BotUsername filters "/cmd@otherbot" addressed to other bots.
	BotUsername string
	Owners      []int64
	// Stats renders the owner-only /kw stats reply.
	Stats func() string
	// Observe is told about every registry mutation attempt.
	Observe func(action string, err error)
	// Timeout bounds each command. 0 means 15s.
	Timeout time.Duration
}

type command struct {
	Description string
	Handle      HandlerFunc
}

// Router handles command messages.
type Router struct {
	d   Deps
	log logx.Logger

	mu     sync.RWMutex
	owners map[int64]struct{}

	cmds map[string]command
}

func NewRouter(d Deps) *Router {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Timeout <= 0 {
		d.Timeout = 15 * time.Second
	}
	r := &Router{d: d, log: d.Log.With(logx.String("comp", "commands"))}
	r.SetOwners(d.Owners)
	r.cmds = map[string]command{
		"kw":    {Description: "manage keyword alerts", Handle: r.handleKW},
		"start": {Description: "how this bot works", Handle: r.handleHelp},
		"help":  {Description: "show usage", Handle: r.handleHelp},
	}
	return r
}

// SetOwners replaces the owner list. Safe during hot reload.
func (r *Router) SetOwners(ids []int64) {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	r.mu.Lock()
	r.owners = m
	r.mu.Unlock()
}

func (r *Router) isOwner(id int64) bool {
	r.mu.RLock()
	_, ok := r.owners[id]
	r.mu.RUnlock()
	return ok
}

// MenuCommands lists the commands for the platform command menu.
func (r *Router) MenuCommands() []kit.BotCommand {
	return []kit.BotCommand{
		{Command: "kw", Description: r.cmds["kw"].Description},
		{Command: "help", Description: r.cmds["help"].Description},
	}
}

// Match reports whether text is a command this router handles.
func (r *Router) Match(text string) bool {
	cl, ok := parseCommandLine(text)
	if !ok {
		return false
	}
	if cl.Bot != "" && r.d.BotUsername != "" && !strings.EqualFold(cl.Bot, r.d.BotUsername) {
		return false
	}
	_, known := r.cmds[cl.Name]
	return known
}

// Handle runs msg as a command. It returns false when msg is not a command
// for this bot. Command errors are logged and answered, never returned.
func (r *Router) Handle(ctx context.Context, msg *kit.Message) bool {
	if msg == nil || !r.Match(msg.Text) {
		return false
	}
	cl, _ := parseCommandLine(msg.Text)
	cmd := r.cmds[cl.Name]

	rid := uuid.NewString()
	req := &Request{
		ID:      rid,
		Msg:     msg,
		Line:    cl,
		IsOwner: r.isOwner(msg.FromID),
		Log: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int("thread_id", msg.ThreadID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cl.Name+" "+cl.Sub),
		),
	}
	h := Chain(cmd.Handle, MWPanicRecover(), MWRequestLog(), MWTimeout(r.d.Timeout))
	if err := h(ctx, req); err != nil {
		r.reply(ctx, req, tgui.Esc("Something went wrong, please try again later."))
	}
	return true
}

// reply answers privately, falling back to the originating chat.
func (r *Router) reply(ctx context.Context, req *Request, body tgui.H) {
	opt := &kit.SendOptions{ParseMode: tgui.ModeHTML, DisablePreview: true}
	msg := req.Msg
	_, err := r.d.Adapter.SendText(ctx, kit.Private(msg.FromID), body.String(), opt)
	if err == nil || msg.ChatID == msg.FromID {
		if err != nil {
			req.Log.Warn("reply failed", logx.Err(err))
		}
		return
	}
	req.Log.Debug("private reply failed, answering in chat", logx.Err(err))
	if _, err := r.d.Adapter.SendText(ctx, kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, body.String(), opt); err != nil {
		req.Log.Warn("reply failed", logx.Err(err))
	}
}

func (r *Router) audit(ctx context.Context, req *Request, action, target string, err error) {
	if r.d.Observe != nil {
		r.d.Observe(action, err)
	}
	if err == nil {
		eventbus.Emit(r.d.Bus, eventbus.TypeRegistryChange, storage.AuditEntry{
			At: time.Now(), ActorID: req.Msg.FromID, Action: action, Target: target, OK: true,
		})
	}
	if r.d.Audit == nil {
		return
	}
	e := storage.AuditEntry{
		At:       time.Now(),
		ActorID:  req.Msg.FromID,
		ChatID:   req.Msg.ChatID,
		ThreadID: req.Msg.ThreadID,
		Action:   action,
		Target:   target,
		OK:       err == nil,
	}
	if err != nil {
		e.Error = err.Error()
	}
	if aerr := r.d.Audit.AppendAudit(ctx, e); aerr != nil {
		req.Log.Warn("audit write failed", logx.Err(aerr))
	}
}
