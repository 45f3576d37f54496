// Package monitoring provides the observer-pattern execution monitoring
// stack: an ExecutionObserver interface the interpreter, iteration loop,
// and Cortex notify on every meaningful event, an ObserverManager that
// fans out to many observers, and concrete observers (structured logging,
// in-process metrics, tracing).
package monitoring

import (
	"sync"
	"time"

	"github.com/aegis-run/orchestrator/internal/domain"
)

// ExecutionObserver receives notifications for every event kind the Event
// Log also records, so observers can drive logging, metrics and tracing
// without re-deriving state from the log themselves.
type ExecutionObserver interface {
	OnWorkflowStarted(executionID, workflowID domain.ID)
	OnWorkflowCompleted(executionID domain.ID, duration time.Duration)
	OnWorkflowFailed(executionID domain.ID, code domain.ErrorCode, err error, duration time.Duration)

	OnStateEntered(executionID domain.ID, stateName string, kind domain.StateKind)
	OnStateExited(executionID domain.ID, stateName string, duration time.Duration)

	OnIterationStarted(executionID, agentID domain.ID, index int)
	OnIterationCompleted(executionID, agentID domain.ID, index int, verdict domain.IterationVerdict, score float64)
	OnIterationFailed(executionID, agentID domain.ID, index int, err error)
	OnRefinementApplied(executionID, agentID domain.ID, index int)

	OnHumanRequested(executionID, requestID domain.ID, stateName string)
	OnHumanResolved(executionID, requestID domain.ID, timedOut bool)

	OnPatternInjected(executionID, patternID domain.ID, resonance float64)
	OnPatternReinforced(patternID domain.ID, newSuccessScore float64)
	OnPatternPruned(patternID domain.ID, finalWeight float64, reason string)

	OnVariableSet(executionID domain.ID, path string, value any)
}

// ObserverManager fans out notifications to a thread-safe set of
// observers; this is the attachment point the interpreter, iteration loop
// and Cortex hold, never a concrete observer directly.
type ObserverManager struct {
	mu        sync.RWMutex
	observers []ExecutionObserver
}

// NewObserverManager returns a manager with no observers attached.
func NewObserverManager() *ObserverManager {
	return &ObserverManager{}
}

// Add registers an observer.
func (m *ObserverManager) Add(o ExecutionObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

func (m *ObserverManager) snapshot() []ExecutionObserver {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ExecutionObserver, len(m.observers))
	copy(out, m.observers)
	return out
}

func (m *ObserverManager) NotifyWorkflowStarted(executionID, workflowID domain.ID) {
	for _, o := range m.snapshot() {
		o.OnWorkflowStarted(executionID, workflowID)
	}
}

func (m *ObserverManager) NotifyWorkflowCompleted(executionID domain.ID, duration time.Duration) {
	for _, o := range m.snapshot() {
		o.OnWorkflowCompleted(executionID, duration)
	}
}

func (m *ObserverManager) NotifyWorkflowFailed(executionID domain.ID, code domain.ErrorCode, err error, duration time.Duration) {
	for _, o := range m.snapshot() {
		o.OnWorkflowFailed(executionID, code, err, duration)
	}
}

func (m *ObserverManager) NotifyStateEntered(executionID domain.ID, stateName string, kind domain.StateKind) {
	for _, o := range m.snapshot() {
		o.OnStateEntered(executionID, stateName, kind)
	}
}

func (m *ObserverManager) NotifyStateExited(executionID domain.ID, stateName string, duration time.Duration) {
	for _, o := range m.snapshot() {
		o.OnStateExited(executionID, stateName, duration)
	}
}

func (m *ObserverManager) NotifyIterationStarted(executionID, agentID domain.ID, index int) {
	for _, o := range m.snapshot() {
		o.OnIterationStarted(executionID, agentID, index)
	}
}

func (m *ObserverManager) NotifyIterationCompleted(executionID, agentID domain.ID, index int, verdict domain.IterationVerdict, score float64) {
	for _, o := range m.snapshot() {
		o.OnIterationCompleted(executionID, agentID, index, verdict, score)
	}
}

func (m *ObserverManager) NotifyIterationFailed(executionID, agentID domain.ID, index int, err error) {
	for _, o := range m.snapshot() {
		o.OnIterationFailed(executionID, agentID, index, err)
	}
}

func (m *ObserverManager) NotifyRefinementApplied(executionID, agentID domain.ID, index int) {
	for _, o := range m.snapshot() {
		o.OnRefinementApplied(executionID, agentID, index)
	}
}

func (m *ObserverManager) NotifyHumanRequested(executionID, requestID domain.ID, stateName string) {
	for _, o := range m.snapshot() {
		o.OnHumanRequested(executionID, requestID, stateName)
	}
}

func (m *ObserverManager) NotifyHumanResolved(executionID, requestID domain.ID, timedOut bool) {
	for _, o := range m.snapshot() {
		o.OnHumanResolved(executionID, requestID, timedOut)
	}
}

func (m *ObserverManager) NotifyPatternInjected(executionID, patternID domain.ID, resonance float64) {
	for _, o := range m.snapshot() {
		o.OnPatternInjected(executionID, patternID, resonance)
	}
}

func (m *ObserverManager) NotifyPatternReinforced(patternID domain.ID, newSuccessScore float64) {
	for _, o := range m.snapshot() {
		o.OnPatternReinforced(patternID, newSuccessScore)
	}
}

func (m *ObserverManager) NotifyPatternPruned(patternID domain.ID, finalWeight float64, reason string) {
	for _, o := range m.snapshot() {
		o.OnPatternPruned(patternID, finalWeight, reason)
	}
}

func (m *ObserverManager) NotifyVariableSet(executionID domain.ID, path string, value any) {
	for _, o := range m.snapshot() {
		o.OnVariableSet(executionID, path, value)
	}
}

// CompositeObserver bundles the three concrete observers (structured
// logger, in-process metrics, trace) kept as distinct implementations,
// so callers can register one value with the ObserverManager instead of
// three.
type CompositeObserver struct {
	Logger  *LoggingObserver
	Metrics *MetricsCollector
	Trace   *ExecutionTrace
}

// NewCompositeObserver wires the three sub-observers together.
func NewCompositeObserver(logger *LoggingObserver, metrics *MetricsCollector, trace *ExecutionTrace) *CompositeObserver {
	return &CompositeObserver{Logger: logger, Metrics: metrics, Trace: trace}
}

func (c *CompositeObserver) OnWorkflowStarted(executionID, workflowID domain.ID) {
	c.Logger.OnWorkflowStarted(executionID, workflowID)
	c.Trace.OnWorkflowStarted(executionID, workflowID)
}

func (c *CompositeObserver) OnWorkflowCompleted(executionID domain.ID, duration time.Duration) {
	c.Logger.OnWorkflowCompleted(executionID, duration)
	c.Metrics.RecordExecution(duration, true)
	c.Trace.OnWorkflowCompleted(executionID, duration)
}

func (c *CompositeObserver) OnWorkflowFailed(executionID domain.ID, code domain.ErrorCode, err error, duration time.Duration) {
	c.Logger.OnWorkflowFailed(executionID, code, err, duration)
	c.Metrics.RecordExecution(duration, false)
	c.Trace.OnWorkflowFailed(executionID, code, err, duration)
}

func (c *CompositeObserver) OnStateEntered(executionID domain.ID, stateName string, kind domain.StateKind) {
	c.Logger.OnStateEntered(executionID, stateName, kind)
	c.Trace.OnStateEntered(executionID, stateName, kind)
}

func (c *CompositeObserver) OnStateExited(executionID domain.ID, stateName string, duration time.Duration) {
	c.Logger.OnStateExited(executionID, stateName, duration)
	c.Metrics.RecordState(stateName, duration)
	c.Trace.OnStateExited(executionID, stateName, duration)
}

func (c *CompositeObserver) OnIterationStarted(executionID, agentID domain.ID, index int) {
	c.Logger.OnIterationStarted(executionID, agentID, index)
}

func (c *CompositeObserver) OnIterationCompleted(executionID, agentID domain.ID, index int, verdict domain.IterationVerdict, score float64) {
	c.Logger.OnIterationCompleted(executionID, agentID, index, verdict, score)
	c.Metrics.RecordIteration(agentID.String(), string(verdict))
}

func (c *CompositeObserver) OnIterationFailed(executionID, agentID domain.ID, index int, err error) {
	c.Logger.OnIterationFailed(executionID, agentID, index, err)
}

func (c *CompositeObserver) OnRefinementApplied(executionID, agentID domain.ID, index int) {
	c.Logger.OnRefinementApplied(executionID, agentID, index)
}

func (c *CompositeObserver) OnHumanRequested(executionID, requestID domain.ID, stateName string) {
	c.Logger.OnHumanRequested(executionID, requestID, stateName)
}

func (c *CompositeObserver) OnHumanResolved(executionID, requestID domain.ID, timedOut bool) {
	c.Logger.OnHumanResolved(executionID, requestID, timedOut)
}

func (c *CompositeObserver) OnPatternInjected(executionID, patternID domain.ID, resonance float64) {
	c.Logger.OnPatternInjected(executionID, patternID, resonance)
}

func (c *CompositeObserver) OnPatternReinforced(patternID domain.ID, newSuccessScore float64) {
	c.Logger.OnPatternReinforced(patternID, newSuccessScore)
}

func (c *CompositeObserver) OnPatternPruned(patternID domain.ID, finalWeight float64, reason string) {
	c.Logger.OnPatternPruned(patternID, finalWeight, reason)
}

func (c *CompositeObserver) OnVariableSet(executionID domain.ID, path string, value any) {
	c.Logger.OnVariableSet(executionID, path, value)
}

var _ ExecutionObserver = (*CompositeObserver)(nil)
