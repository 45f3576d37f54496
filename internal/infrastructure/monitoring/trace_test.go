package monitoring

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/aegis-run/orchestrator/internal/domain"
)

func TestExecutionTrace_WorkflowLifecycle(t *testing.T) {
	tr := NewExecutionTrace()
	executionID := domain.NewID()
	workflowID := domain.NewID()

	assert.NotPanics(t, func() {
		tr.OnWorkflowStarted(executionID, workflowID)
		tr.OnStateEntered(executionID, "plan", domain.StateKindAgent)
		tr.OnStateExited(executionID, "plan", 10*time.Millisecond)
		tr.OnWorkflowCompleted(executionID, 50*time.Millisecond)
	})
}

func TestExecutionTrace_WorkflowFailedEndsSpanOnce(t *testing.T) {
	tr := NewExecutionTrace()
	executionID := domain.NewID()
	workflowID := domain.NewID()

	tr.OnWorkflowStarted(executionID, workflowID)
	tr.OnWorkflowFailed(executionID, domain.ErrInterpreterBudget, assert.AnError, 5*time.Millisecond)

	// ending an execution that was already closed must not panic or double-end.
	assert.NotPanics(t, func() {
		tr.OnWorkflowCompleted(executionID, time.Millisecond)
	})
}

func TestObserverManager_FanOut(t *testing.T) {
	manager := NewObserverManager()
	metrics := NewMetricsCollector()
	logger := NewLoggingObserver(zerolog.Nop())
	composite := NewCompositeObserver(logger, metrics, NewExecutionTrace())
	manager.Add(composite)

	executionID := domain.NewID()
	workflowID := domain.NewID()

	manager.NotifyWorkflowStarted(executionID, workflowID)
	manager.NotifyStateEntered(executionID, "plan", domain.StateKindAgent)
	manager.NotifyStateExited(executionID, "plan", 20*time.Millisecond)
	manager.NotifyIterationCompleted(executionID, domain.NewID(), 1, domain.VerdictPass, 0.9)
	manager.NotifyWorkflowCompleted(executionID, 100*time.Millisecond)

	summary := metrics.Summary()
	assert.Equal(t, 1, summary.TotalExecutions)
	assert.Equal(t, 1, summary.TotalSuccesses)
	assert.Equal(t, 1, summary.TotalIterations)

	state := metrics.StateMetricsFor("plan")
	if assert.NotNil(t, state) {
		assert.Equal(t, 1, state.VisitCount)
	}
}
