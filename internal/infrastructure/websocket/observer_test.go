package websocket

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-run/orchestrator/internal/domain"
)

type fakeBroadcaster struct {
	last *WSEvent
}

func (f *fakeBroadcaster) Broadcast(workflowID, executionID string, event *WSEvent) {
	f.last = event
}

func TestSocketObserver_OnWorkflowStarted(t *testing.T) {
	fb := &fakeBroadcaster{}
	obs := NewSocketObserver(fb)
	executionID, workflowID := uuid.New(), uuid.New()

	obs.OnWorkflowStarted(executionID, workflowID)

	require.NotNil(t, fb.last)
	assert.Equal(t, EventWorkflowStarted, fb.last.Type)
	assert.Equal(t, executionID.String(), fb.last.ExecutionID)
	assert.Equal(t, workflowID.String(), fb.last.WorkflowID)
}

func TestSocketObserver_OnWorkflowFailed(t *testing.T) {
	fb := &fakeBroadcaster{}
	obs := NewSocketObserver(fb)
	executionID := uuid.New()

	obs.OnWorkflowFailed(executionID, domain.ErrAgentInvocation, errors.New("boom"), 2*time.Second)

	require.NotNil(t, fb.last)
	assert.Equal(t, EventWorkflowFailed, fb.last.Type)
	assert.Equal(t, string(domain.ErrAgentInvocation), fb.last.ErrorCode)
	assert.Equal(t, "boom", fb.last.Error)
	assert.Equal(t, int64(2000), fb.last.DurationMs)
}

func TestSocketObserver_OnIterationCompleted(t *testing.T) {
	fb := &fakeBroadcaster{}
	obs := NewSocketObserver(fb)
	executionID, agentID := uuid.New(), uuid.New()

	obs.OnIterationCompleted(executionID, agentID, 2, domain.IterationVerdict("accepted"), 0.9)

	require.NotNil(t, fb.last)
	assert.Equal(t, EventIterationDone, fb.last.Type)
	assert.Equal(t, 2, fb.last.Index)
	assert.Equal(t, "accepted", fb.last.Verdict)
	assert.Equal(t, 0.9, fb.last.Score)
}

func TestSocketObserver_PatternReinforcedAndPrunedAreNoOps(t *testing.T) {
	fb := &fakeBroadcaster{}
	obs := NewSocketObserver(fb)

	obs.OnPatternReinforced(uuid.New(), 0.8)
	obs.OnPatternPruned(uuid.New(), 0.01, "below min_weight")

	assert.Nil(t, fb.last)
}

func TestSocketObserver_ImplementsExecutionObserver(t *testing.T) {
	fb := &fakeBroadcaster{}
	var _ = NewSocketObserver(fb)
}
