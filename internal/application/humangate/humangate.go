// Package humangate implements the Human Gate: a registry of pending
// human-input requests that the Workflow Interpreter's Human state
// suspends on via the Durability Runtime's await_signal, and that external
// callers resolve through Respond. Idempotency (a second response to an
// already-resolved request returns a conflict without altering state)
// lives on the domain.HumanInputRequest aggregate itself; this package
// only wires that aggregate to storage and to signal delivery.
package humangate

import (
	"context"
	"time"

	"github.com/aegis-run/orchestrator/internal/domain"
	"github.com/aegis-run/orchestrator/internal/infrastructure/monitoring"
)

// SignalDeliverer delivers a value to whatever is awaiting the named signal
// on the given execution — the Durability Runtime's await_signal
// counterpart. executionID is carried alongside name because
// a production delivery path (Temporal's SignalWorkflow) addresses a
// specific workflow execution, not a global signal namespace; an in-process
// adapter is free to ignore it.
type SignalDeliverer interface {
	DeliverSignal(ctx context.Context, executionID domain.ID, name string, value any) error
}

// Gate is the application-layer façade over the Human Gate registry.
type Gate struct {
	store    domain.HumanGateStore
	signals  SignalDeliverer
	observer *monitoring.ObserverManager
}

// New constructs a Gate.
func New(store domain.HumanGateStore, signals SignalDeliverer, observer *monitoring.ObserverManager) *Gate {
	return &Gate{store: store, signals: signals, observer: observer}
}

// signalName is the await_signal name the interpreter's Human state waits
// on for a given request, scoped by request ID so concurrent Human states
// across executions never collide.
func signalName(requestID domain.ID) string {
	return "humanInput:" + requestID.String()
}

// Request creates a pending entry for a freshly entered Human state.
func (g *Gate) Request(ctx context.Context, executionID domain.ID, stateName, prompt string, timeout time.Duration) (*domain.HumanInputRequest, error) {
	req := domain.NewHumanInputRequest(executionID, stateName, prompt, timeout)
	if err := g.store.Create(ctx, req); err != nil {
		return nil, err
	}
	if g.observer != nil {
		g.observer.NotifyHumanRequested(executionID, req.RequestID, stateName)
	}
	return req, nil
}

// SignalName exposes the await_signal name for a request so the
// interpreter can pass it straight to DurabilityRuntime.AwaitSignal.
func (g *Gate) SignalName(requestID domain.ID) string {
	return signalName(requestID)
}

// Respond validates the request is pending, records the response, persists
// it, and delivers the signal to whatever await_signal call is suspended on
// it. A second call against an already-resolved request returns
// ERR_INVALID_STATE without touching storage or delivering a second signal.
func (g *Gate) Respond(ctx context.Context, requestID domain.ID, resp domain.HumanResponse) error {
	req, err := g.store.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if err := req.Respond(resp); err != nil {
		return err
	}
	if err := g.store.Update(ctx, req); err != nil {
		return err
	}
	if g.observer != nil {
		g.observer.NotifyHumanResolved(req.ExecutionID, req.RequestID, resp.TimedOut)
	}
	if g.signals != nil {
		return g.signals.DeliverSignal(ctx, req.ExecutionID, signalName(requestID), resp)
	}
	return nil
}

// ExpireOverdue finds every still-pending request past its timeout and
// resolves it: with its default_response if the caller supplies one via
// defaultFor, otherwise with an empty HumanResponse; either way the
// response has TimedOut set and the request's status becomes timed_out.
// It returns no ERR_HUMAN_TIMEOUT itself. main runs it on the same ticker
// cadence as the cortex pruning pass.
func (g *Gate) ExpireOverdue(ctx context.Context, now time.Time, defaultFor func(domain.ID) (domain.HumanResponse, bool)) error {
	overdue, err := g.store.ListPendingExpiredBefore(ctx, now)
	if err != nil {
		return err
	}
	for _, req := range overdue {
		resp := domain.HumanResponse{TimedOut: true}
		if defaultFor != nil {
			if dr, ok := defaultFor(req.RequestID); ok {
				resp = dr
				resp.TimedOut = true
			}
		}
		if err := req.Respond(resp); err != nil {
			continue
		}
		if err := g.store.Update(ctx, req); err != nil {
			continue
		}
		if g.observer != nil {
			g.observer.NotifyHumanResolved(req.ExecutionID, req.RequestID, true)
		}
		if g.signals != nil {
			_ = g.signals.DeliverSignal(ctx, req.ExecutionID, signalName(req.RequestID), resp)
		}
	}
	return nil
}
