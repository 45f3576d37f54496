package durability

import (
	"context"
	"sync"
	"time"

	"github.com/aegis-run/orchestrator/internal/domain"
)

// TestRuntime is a non-durable, in-process domain.DurabilityRuntime for
// running the interpreter without a live Temporal server — local
// development, CI, and tests.
// RecordSideEffect executes fn immediately and caches the result per
// name so a re-invocation of the same named side effect within a
// process's lifetime is idempotent the same way Temporal's replay
// is — but nothing here survives a process restart.
type TestRuntime struct {
	mu      sync.Mutex
	results map[string]sideEffectResult
	signals map[string]chan any
}

type sideEffectResult struct {
	value any
	err   error
}

// NewTestRuntime builds an empty TestRuntime.
func NewTestRuntime() *TestRuntime {
	return &TestRuntime{
		results: make(map[string]sideEffectResult),
		signals: make(map[string]chan any),
	}
}

func (t *TestRuntime) RecordSideEffect(ctx context.Context, name string, fn domain.SideEffectFunc) (any, error) {
	t.mu.Lock()
	if cached, ok := t.results[name]; ok {
		t.mu.Unlock()
		return cached.value, cached.err
	}
	t.mu.Unlock()

	value, err := fn(ctx)

	t.mu.Lock()
	t.results[name] = sideEffectResult{value: value, err: err}
	t.mu.Unlock()
	return value, err
}

func (t *TestRuntime) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *TestRuntime) AwaitSignal(ctx context.Context, name string, timeout time.Duration) (any, error) {
	ch := t.signalChannel(name)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload := <-ch:
		return payload, nil
	case <-timer.C:
		return nil, domain.ErrSignalTimedOut
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Signal delivers payload to any in-flight AwaitSignal call waiting on
// name — the TestRuntime's equivalent of Temporal's SignalWorkflow, used
// by the Human Gate's respond_human path in tests and local runs.
func (t *TestRuntime) Signal(name string, payload any) {
	ch := t.signalChannel(name)
	ch <- payload
}

// DeliverSignal implements humangate.SignalDeliverer directly over
// Signal, so a single TestRuntime can be handed to both the Interpreter
// (as its DurabilityRuntime) and the Human Gate (as its SignalDeliverer)
// in the non-Temporal dev/test server path. executionID is ignored: a
// TestRuntime's signal channels are already keyed by the globally-unique
// request-scoped name the Human Gate generates, so no execution-level
// routing is needed in-process.
func (t *TestRuntime) DeliverSignal(ctx context.Context, executionID domain.ID, name string, value any) error {
	t.Signal(name, value)
	return nil
}

func (t *TestRuntime) signalChannel(name string) chan any {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.signals[name]
	if !ok {
		ch = make(chan any, 1)
		t.signals[name] = ch
	}
	return ch
}

func (t *TestRuntime) SpawnParallel(ctx context.Context, fns []func(ctx context.Context) (any, error)) ([]any, error) {
	results := make([]any, len(fns))
	errs := make([]error, len(fns))

	var wg sync.WaitGroup
	wg.Add(len(fns))
	for i, fn := range fns {
		go func(i int, fn func(ctx context.Context) (any, error)) {
			defer wg.Done()
			results[i], errs[i] = fn(ctx)
		}(i, fn)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
