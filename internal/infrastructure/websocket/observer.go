package websocket

import (
	"time"

	"github.com/aegis-run/orchestrator/internal/domain"
	"github.com/aegis-run/orchestrator/internal/infrastructure/monitoring"
)

var _ monitoring.ExecutionObserver = (*SocketObserver)(nil)

// SocketObserver turns monitoring.ExecutionObserver callbacks into
// WSEvent broadcasts, so subscribe_events(execution_id) streams the same
// events the structured logger and tracer see.
type SocketObserver struct {
	hub Broadcaster
}

// NewSocketObserver wires a Broadcaster (normally a *Hub) into the
// observer set.
func NewSocketObserver(hub Broadcaster) *SocketObserver {
	return &SocketObserver{hub: hub}
}

func (s *SocketObserver) OnWorkflowStarted(executionID, workflowID domain.ID) {
	event := NewWSEvent(EventWorkflowStarted, executionID)
	event.WorkflowID = workflowID.String()
	s.hub.Broadcast(event.WorkflowID, event.ExecutionID, event)
}

func (s *SocketObserver) OnWorkflowCompleted(executionID domain.ID, duration time.Duration) {
	event := NewWSEvent(EventWorkflowCompleted, executionID)
	event.DurationMs = duration.Milliseconds()
	s.hub.Broadcast("", event.ExecutionID, event)
}

func (s *SocketObserver) OnWorkflowFailed(executionID domain.ID, code domain.ErrorCode, err error, duration time.Duration) {
	event := NewWSEvent(EventWorkflowFailed, executionID)
	event.DurationMs = duration.Milliseconds()
	event.ErrorCode = string(code)
	if err != nil {
		event.Error = err.Error()
	}
	s.hub.Broadcast("", event.ExecutionID, event)
}

func (s *SocketObserver) OnStateEntered(executionID domain.ID, stateName string, kind domain.StateKind) {
	event := NewWSEvent(EventStateEntered, executionID)
	event.StateName = stateName
	event.StateKind = string(kind)
	s.hub.Broadcast("", event.ExecutionID, event)
}

func (s *SocketObserver) OnStateExited(executionID domain.ID, stateName string, duration time.Duration) {
	event := NewWSEvent(EventStateExited, executionID)
	event.StateName = stateName
	event.DurationMs = duration.Milliseconds()
	s.hub.Broadcast("", event.ExecutionID, event)
}

func (s *SocketObserver) OnIterationStarted(executionID, agentID domain.ID, index int) {
	event := NewWSEvent(EventIterationStarted, executionID)
	event.AgentID = agentID.String()
	event.Index = index
	s.hub.Broadcast("", event.ExecutionID, event)
}

func (s *SocketObserver) OnIterationCompleted(executionID, agentID domain.ID, index int, verdict domain.IterationVerdict, score float64) {
	event := NewWSEvent(EventIterationDone, executionID)
	event.AgentID = agentID.String()
	event.Index = index
	event.Verdict = string(verdict)
	event.Score = score
	s.hub.Broadcast("", event.ExecutionID, event)
}

func (s *SocketObserver) OnIterationFailed(executionID, agentID domain.ID, index int, err error) {
	event := NewWSEvent(EventIterationFailed, executionID)
	event.AgentID = agentID.String()
	event.Index = index
	if err != nil {
		event.Error = err.Error()
	}
	s.hub.Broadcast("", event.ExecutionID, event)
}

func (s *SocketObserver) OnRefinementApplied(executionID, agentID domain.ID, index int) {
	event := NewWSEvent(EventRefinementApplied, executionID)
	event.AgentID = agentID.String()
	event.Index = index
	s.hub.Broadcast("", event.ExecutionID, event)
}

func (s *SocketObserver) OnHumanRequested(executionID, requestID domain.ID, stateName string) {
	event := NewWSEvent(EventHumanRequested, executionID)
	event.RequestID = requestID.String()
	event.StateName = stateName
	s.hub.Broadcast("", event.ExecutionID, event)
}

func (s *SocketObserver) OnHumanResolved(executionID, requestID domain.ID, timedOut bool) {
	event := NewWSEvent(EventHumanResolved, executionID)
	event.RequestID = requestID.String()
	event.TimedOut = timedOut
	s.hub.Broadcast("", event.ExecutionID, event)
}

func (s *SocketObserver) OnPatternInjected(executionID, patternID domain.ID, resonance float64) {
	event := NewWSEvent(EventPatternInjected, executionID)
	event.PatternID = patternID.String()
	event.Resonance = resonance
	s.hub.Broadcast("", event.ExecutionID, event)
}

// OnPatternReinforced and OnPatternPruned are not scoped to one execution
// (Cortex pattern reinforcement spans many workflow runs), so they have
// no subscribe_events(execution_id) audience and are intentionally
// no-ops here; monitoring.LoggingObserver still records them.
func (s *SocketObserver) OnPatternReinforced(patternID domain.ID, newSuccessScore float64) {}
func (s *SocketObserver) OnPatternPruned(patternID domain.ID, finalWeight float64, reason string) {
}

func (s *SocketObserver) OnVariableSet(executionID domain.ID, path string, value any) {
	event := NewWSEvent(EventVariableSet, executionID)
	event.VariablePath = path
	event.VariableValue = value
	s.hub.Broadcast("", event.ExecutionID, event)
}
