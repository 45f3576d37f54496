// Package durability bridges the Workflow Interpreter to a durable
// execution substrate guaranteeing crash-safe checkpoints, signal
// delivery, timers, and deterministic side-effect replay, built on
// go.temporal.io/sdk's workflow package (workflow.Sleep, workflow.SideEffect,
// workflow.GetSignalChannel, workflow.Go/Future).
package durability

import (
	"context"
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/aegis-run/orchestrator/internal/domain"
)

// TemporalRuntime implements domain.DurabilityRuntime over a single
// Temporal workflow execution's workflow.Context, captured once at
// construction. Every call after that ignores the context.Context
// argument threaded through domain.DurabilityRuntime's methods — using
// it instead of the captured workflow.Context would break replay
// determinism, since request-scoped contexts aren't replay-safe.
// TemporalRuntime is therefore workflow-scoped: a new one is built at
// the top of the registered Temporal workflow function and handed to the
// Interpreter for that single execution only.
type TemporalRuntime struct {
	wfCtx workflow.Context
}

// NewTemporalRuntime wraps a workflow.Context obtained inside a
// registered Temporal workflow function.
func NewTemporalRuntime(wfCtx workflow.Context) *TemporalRuntime {
	return &TemporalRuntime{wfCtx: wfCtx}
}

// RecordSideEffect executes fn exactly once and replays its recorded
// result on subsequent replays of this workflow execution, via
// workflow.SideEffect. fn is an arbitrary closure rather than a
// statically-registered Temporal Activity, so Activity-level retry
// policies aren't available for it; what replay observes is the recorded
// outcome, not a re-invocation of fn.
func (t *TemporalRuntime) RecordSideEffect(ctx context.Context, name string, fn domain.SideEffectFunc) (any, error) {
	type outcome struct {
		Value any
		Err   string
	}
	raw := workflow.SideEffect(t.wfCtx, func(wfCtx workflow.Context) any {
		val, err := fn(context.Background())
		if err != nil {
			return outcome{Err: err.Error()}
		}
		return outcome{Value: val}
	})

	var o outcome
	if err := raw.Get(&o); err != nil {
		return nil, err
	}
	if o.Err != "" {
		return nil, domain.NewDomainError(domain.ErrAgentInvocation, "side effect \""+name+"\" failed: "+o.Err, nil)
	}
	return o.Value, nil
}

// Sleep blocks the workflow for d, durably — on crash/replay the timer
// resumes from Temporal's own persisted clock rather than re-sleeping.
func (t *TemporalRuntime) Sleep(ctx context.Context, d time.Duration) error {
	return workflow.Sleep(t.wfCtx, d)
}

// AwaitSignal blocks until an external signal named name arrives or
// timeout elapses, returning domain.ErrSignalTimedOut on timeout. This is
// how a suspended Human state resumes once the respond_human webhook
// signals the workflow.
func (t *TemporalRuntime) AwaitSignal(ctx context.Context, name string, timeout time.Duration) (any, error) {
	selector := workflow.NewSelector(t.wfCtx)
	channel := workflow.GetSignalChannel(t.wfCtx, name)

	var payload any
	var received bool
	selector.AddReceive(channel, func(c workflow.ReceiveChannel, more bool) {
		c.Receive(t.wfCtx, &payload)
		received = true
	})

	timerCtx, cancelTimer := workflow.WithCancel(t.wfCtx)
	timer := workflow.NewTimer(timerCtx, timeout)
	var timedOut bool
	selector.AddFuture(timer, func(f workflow.Future) {
		timedOut = true
	})

	selector.Select(t.wfCtx)
	cancelTimer()

	if received {
		return payload, nil
	}
	if timedOut {
		return nil, domain.ErrSignalTimedOut
	}
	return nil, domain.ErrSignalTimedOut
}

// SpawnParallel runs every fn concurrently as a Temporal workflow
// coroutine (workflow.Go), collecting all results before returning. This
// is the durable substrate for a ParallelAgents state's branch fan-out.
func (t *TemporalRuntime) SpawnParallel(ctx context.Context, fns []func(ctx context.Context) (any, error)) ([]any, error) {
	results := make([]any, len(fns))
	errs := make([]error, len(fns))
	futures := make([]workflow.Future, len(fns))

	for i, fn := range fns {
		future, settable := workflow.NewFuture(t.wfCtx)
		futures[i] = future
		idx, f := i, fn
		workflow.Go(t.wfCtx, func(goCtx workflow.Context) {
			val, err := f(context.Background())
			settable.Set(val, err)
			_ = idx
		})
	}

	for i, future := range futures {
		var val any
		if err := future.Get(t.wfCtx, &val); err != nil {
			errs[i] = err
			continue
		}
		results[i] = val
	}

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
