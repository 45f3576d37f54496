// Package websocket implements a subscribe_events(execution_id) ->
// stream<Event> live feed over gorilla/websocket: a Hub indexes connected
// clients by execution_id primarily and workflow_id as a secondary broad
// subscription, a Client pumps JSON frames over one gorilla/websocket.Conn,
// and a SocketObserver turns monitoring.ExecutionObserver callbacks into
// broadcast frames.
package websocket

import (
	"time"

	"github.com/aegis-run/orchestrator/internal/domain"
)

// Event types (server -> client), one per monitoring.ExecutionObserver
// callback that SocketObserver forwards; pattern reinforcement and pruning
// have none.
const (
	EventWorkflowStarted   = "workflow.started"
	EventWorkflowCompleted = "workflow.completed"
	EventWorkflowFailed    = "workflow.failed"
	EventStateEntered      = "state.entered"
	EventStateExited       = "state.exited"
	EventIterationStarted  = "iteration.started"
	EventIterationDone     = "iteration.completed"
	EventIterationFailed   = "iteration.failed"
	EventRefinementApplied = "refinement.applied"
	EventHumanRequested    = "human.requested"
	EventHumanResolved     = "human.resolved"
	EventPatternInjected   = "pattern.injected"
	EventVariableSet       = "variable.set"
)

// Command types (client -> server).
const (
	CmdSubscribe   = "subscribe"
	CmdUnsubscribe = "unsubscribe"
)

// WSEvent is one frame pushed from server to client.
type WSEvent struct {
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	ExecutionID string    `json:"execution_id"`
	WorkflowID  string    `json:"workflow_id,omitempty"`

	StateName string `json:"state_name,omitempty"`
	StateKind string `json:"state_kind,omitempty"`

	AgentID       string  `json:"agent_id,omitempty"`
	Index         int     `json:"index,omitempty"`
	Verdict       string  `json:"verdict,omitempty"`
	Score         float64 `json:"score,omitempty"`
	DurationMs    int64   `json:"duration_ms,omitempty"`
	ErrorCode     string  `json:"error_code,omitempty"`
	Error         string  `json:"error,omitempty"`
	RequestID     string  `json:"request_id,omitempty"`
	TimedOut      bool    `json:"timed_out,omitempty"`
	PatternID     string  `json:"pattern_id,omitempty"`
	Resonance     float64 `json:"resonance,omitempty"`
	VariablePath  string  `json:"variable_path,omitempty"`
	VariableValue any     `json:"variable_value,omitempty"`
}

// NewWSEvent builds a frame stamped with the current time.
func NewWSEvent(eventType string, executionID domain.ID) *WSEvent {
	return &WSEvent{Type: eventType, Timestamp: time.Now(), ExecutionID: executionID.String()}
}

// WSCommand is one frame sent from client to server.
type WSCommand struct {
	Action      string `json:"action"`
	ExecutionID string `json:"execution_id,omitempty"`
	WorkflowID  string `json:"workflow_id,omitempty"`
}

// WSResponse acknowledges a WSCommand.
type WSResponse struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewSuccessResponse builds an acked response.
func NewSuccessResponse(responseType, message string) *WSResponse {
	return &WSResponse{Type: responseType, Success: true, Message: message}
}

// NewErrorResponse builds a rejected response.
func NewErrorResponse(responseType, errorMsg string) *WSResponse {
	return &WSResponse{Type: responseType, Success: false, Error: errorMsg}
}
