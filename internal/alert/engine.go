package alert

import (
	"context"
	"fmt"

	logx "kwbot/pkg/logx"
)

type Options struct {
	// Cache keeps in-memory indexes of both registries.
	Cache bool

	Sender   Sender
	Runner   Runner
	Reporter Reporter
	Logger   logx.Logger
}

// Engine ties the registries, the evaluator and the dispatcher together.
type Engine struct {
	keywords   *KeywordRegistry
	exclusions *ExclusionRegistry
	dispatch   *Dispatcher
	log        logx.Logger
}

func NewEngine(kw KeywordRepository, ex ExclusionRepository, opt Options) *Engine {
	log := opt.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	exclusions := NewExclusionRegistry(ex, opt.Cache)
	return &Engine{
		keywords:   NewKeywordRegistry(kw, opt.Cache),
		exclusions: exclusions,
		dispatch:   NewDispatcher(exclusions, opt.Sender, opt.Runner, opt.Reporter),
		log:        log,
	}
}

func (e *Engine) Keywords() *KeywordRegistry     { return e.keywords }
func (e *Engine) Exclusions() *ExclusionRegistry { return e.exclusions }

// Load (re)builds both registry indexes from storage.
func (e *Engine) Load(ctx context.Context) error {
	if err := e.keywords.Load(ctx); err != nil {
		return fmt.Errorf("load keywords: %w", err)
	}
	if err := e.exclusions.Load(ctx); err != nil {
		return fmt.Errorf("load exclusions: %w", err)
	}
	return nil
}

// EvaluateAndNotify matches msg against every registered keyword and
// dispatches an alert for each hit that is not excluded. Messages from bots
// or from untracked spaces, and messages that normalize to "", are ignored.
// Failures are absorbed; they show up only in the returned Summary and in
// Reporter results.
func (e *Engine) EvaluateAndNotify(ctx context.Context, msg Message) (sum Summary) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("evaluate panicked", logx.Any("panic", r), logx.Int64("space_id", msg.SpaceID))
		}
	}()

	if msg.IsBot || !msg.InTrackedSpace {
		return sum
	}
	text := Normalize(msg.Text)
	if text == "" {
		return sum
	}

	hits, err := e.keywords.Match(ctx, text)
	if err != nil {
		e.log.Warn("keyword match failed", logx.Err(err), logx.Int64("space_id", msg.SpaceID))
		return sum
	}
	sum.Hits = len(hits)
	for _, h := range hits {
		switch e.dispatch.Dispatch(ctx, h, msg) {
		case OutcomeExcluded:
			sum.Excluded++
		case OutcomeDropped:
			sum.Dropped++
		case OutcomeFailed:
		default:
			sum.Dispatched++
		}
	}
	return sum
}
