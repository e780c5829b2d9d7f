package alert

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// ErrUnresolved wraps Member Resolver failures in Result.Err.
var ErrUnresolved = errors.New("recipient not resolvable in space")

// Dispatcher turns hits into private alerts.
//
// The exclusion check runs synchronously. Resolution and sending run as one
// job per hit on the Runner, so a slow or failing send never holds up the
// next hit. Without a Runner jobs run inline.
type Dispatcher struct {
	exclusions *ExclusionRegistry
	sender     Sender
	runner     Runner
	report     Reporter
}

func NewDispatcher(exclusions *ExclusionRegistry, sender Sender, runner Runner, report Reporter) *Dispatcher {
	if report == nil {
		report = func(Result) {}
	}
	return &Dispatcher{exclusions: exclusions, sender: sender, runner: runner, report: report}
}

// Dispatch processes one hit and returns its synchronous outcome:
// OutcomeExcluded, OutcomeFailed (exclusion lookup error), OutcomeDropped
// (runner refused the job) or "" when the job was handed off.
func (d *Dispatcher) Dispatch(ctx context.Context, hit Hit, msg Message) Outcome {
	excluded, err := d.exclusions.IsExcluded(ctx, hit.UserID, msg.Channel)
	if err != nil {
		d.report(Result{Hit: hit, Channel: msg.Channel, Outcome: OutcomeFailed, Err: fmt.Errorf("exclusion lookup: %w", err)})
		return OutcomeFailed
	}
	if excluded {
		d.report(Result{Hit: hit, Channel: msg.Channel, Outcome: OutcomeExcluded})
		return OutcomeExcluded
	}

	job := func(jctx context.Context) { d.deliver(jctx, hit, msg) }
	if d.runner == nil {
		d.runInline(ctx, hit, msg, job)
		return ""
	}
	if err := d.runner.Submit("alert."+strconv.FormatInt(hit.UserID, 10), job); err != nil {
		d.report(Result{Hit: hit, Channel: msg.Channel, Outcome: OutcomeDropped, Err: err})
		return OutcomeDropped
	}
	return ""
}

// runInline runs job on the caller's goroutine. A panic fails this hit only.
func (d *Dispatcher) runInline(ctx context.Context, hit Hit, msg Message, job func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			d.report(Result{Hit: hit, Channel: msg.Channel, Outcome: OutcomeFailed, Err: fmt.Errorf("delivery panic: %v", r)})
		}
	}()
	job(ctx)
}

func (d *Dispatcher) deliver(ctx context.Context, hit Hit, msg Message) {
	res := Result{Hit: hit, Channel: msg.Channel}
	if msg.Resolver != nil {
		if err := msg.Resolver.ResolveMember(ctx, msg.SpaceID, hit.UserID); err != nil {
			res.Outcome = OutcomeUnresolved
			res.Err = fmt.Errorf("%w: %v", ErrUnresolved, err)
			d.report(res)
			return
		}
	}
	if d.sender == nil {
		res.Outcome = OutcomeFailed
		res.Err = errors.New("no sender configured")
		d.report(res)
		return
	}
	if err := d.sender.SendPrivate(ctx, hit.UserID, FormatAlert(hit.Keyword, msg)); err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		d.report(res)
		return
	}
	res.Outcome = OutcomeSent
	d.report(res)
}
