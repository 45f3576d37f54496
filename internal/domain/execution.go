package domain

import "time"

// ExecutionStatus is the Workflow Execution's top-level state: pending →
// running ↔ waiting_human → {completed, failed, cancelled, timed_out}. Only
// the last four are final.
type ExecutionStatus string

const (
	ExecutionPending       ExecutionStatus = "pending"
	ExecutionRunning       ExecutionStatus = "running"
	ExecutionWaitingHuman  ExecutionStatus = "waiting_human"
	ExecutionCompleted     ExecutionStatus = "completed"
	ExecutionFailed        ExecutionStatus = "failed"
	ExecutionCancelled     ExecutionStatus = "cancelled"
	ExecutionTimedOut      ExecutionStatus = "timed_out"
)

// IsTerminal reports whether the status can no longer change.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled, ExecutionTimedOut:
		return true
	default:
		return false
	}
}

// workflowStartedPayload, stateEnteredPayload, etc. are the JSON payload
// shapes written to the Event Log. Kept unexported and narrow: the event
// log is the interface, not these Go types.
type workflowStartedPayload struct {
	WorkflowID ID             `json:"workflow_id"`
	Input      map[string]any `json:"input"`
}

type stateEnteredPayload struct {
	StateName string `json:"state_name"`
}

type stateExitedPayload struct {
	StateName string `json:"state_name"`
	Output    any    `json:"output,omitempty"`
}

type workflowCompletedPayload struct {
	FinalState string `json:"final_state"`
}

type workflowFailedPayload struct {
	ErrorCode ErrorCode `json:"error_code"`
	Message   string    `json:"message"`
	Reason    string    `json:"reason,omitempty"`
}

// WorkflowExecution is the event-sourced aggregate tracking one workflow
// run: mutated only by the interpreter, only at state entry/exit, and
// reconstructible purely from its event stream. It carries a single
// current_state pointer plus an ordered state_history rather than modeling
// a DAG of independently-tracked nodes.
type WorkflowExecution struct {
	executionID ID
	workflowID  ID
	input       map[string]any

	currentState    string
	stateHistory    []string
	blackboard      *Blackboard
	status          ExecutionStatus
	iterationCount  int
	startedAt       time.Time
	lastTransition  time.Time
	completedAt     *time.Time
	errorCode       ErrorCode
	errorMessage    string

	version           uint64
	uncommittedEvents []EventLogEntry
}

// NewWorkflowExecution starts a brand-new execution for the given workflow
// and input, raising WorkflowStarted + the first StateEntered.
func NewWorkflowExecution(workflowID ID, initialState string, input map[string]any) *WorkflowExecution {
	e := &WorkflowExecution{
		executionID: NewID(),
		workflowID:  workflowID,
		blackboard:  NewBlackboard(),
		status:      ExecutionPending,
	}
	e.raise(EventWorkflowStarted, workflowStartedPayload{WorkflowID: workflowID, Input: input}, nil)
	e.raise(EventStateEntered, stateEnteredPayload{StateName: initialState}, nil)
	return e
}

// RebuildWorkflowExecution replays a prior event stream to reconstruct an
// execution's current_state, blackboard, and state_history entirely from
// the Event Log, with no dependency on any other durable state.
func RebuildWorkflowExecution(executionID ID, events []EventLogEntry) (*WorkflowExecution, error) {
	e := &WorkflowExecution{executionID: executionID, blackboard: NewBlackboard(), status: ExecutionPending}
	for _, evt := range events {
		if err := e.apply(evt); err != nil {
			return nil, err
		}
		e.version = evt.SequenceNumber
	}
	return e, nil
}

func (e *WorkflowExecution) raise(eventType EventType, payload any, iteration *int) {
	e.version++
	entry, err := NewEventLogEntry(e.executionID, e.version, eventType, payload, iteration)
	if err != nil {
		// Payload shapes are internal and always marshal; a failure here is a
		// programming error, not a recoverable condition.
		panic(err)
	}
	_ = e.apply(entry)
	e.uncommittedEvents = append(e.uncommittedEvents, entry)
}

// apply is the single ApplyEvent dispatch used by both raise() (new
// commands) and RebuildWorkflowExecution (replay) — the same code path
// guarantees replay produces identical state to live execution.
func (e *WorkflowExecution) apply(entry EventLogEntry) error {
	switch entry.EventType {
	case EventWorkflowStarted:
		var p workflowStartedPayload
		if err := decodePayload(entry.Payload, &p); err != nil {
			return err
		}
		e.workflowID = p.WorkflowID
		e.input = p.Input
		e.startedAt = entry.CreatedAt
		e.status = ExecutionRunning

	case EventStateEntered:
		var p stateEnteredPayload
		if err := decodePayload(entry.Payload, &p); err != nil {
			return err
		}
		e.currentState = p.StateName
		e.stateHistory = append(e.stateHistory, p.StateName)
		e.lastTransition = entry.CreatedAt

	case EventStateExited:
		// state_history and current_state already reflect the active state;
		// exit is a bookkeeping marker only, consumed by readers of the log.

	case EventHumanInputRequested:
		e.status = ExecutionWaitingHuman

	case EventHumanInputReceived, EventHumanInputTimedOut:
		e.status = ExecutionRunning

	case EventWorkflowCompleted:
		e.status = ExecutionCompleted
		t := entry.CreatedAt
		e.completedAt = &t

	case EventWorkflowFailed:
		var p workflowFailedPayload
		if err := decodePayload(entry.Payload, &p); err != nil {
			return err
		}
		e.errorCode = p.ErrorCode
		e.errorMessage = p.Message
		t := entry.CreatedAt
		e.completedAt = &t
		switch p.Reason {
		case "cancelled":
			e.status = ExecutionCancelled
		case "timed_out":
			e.status = ExecutionTimedOut
		default:
			e.status = ExecutionFailed
		}
	}
	return nil
}

// EnterState records entry into a new state without yet deciding its
// outcome; used by the interpreter at the top of Step.
func (e *WorkflowExecution) EnterState(name string) error {
	if e.status.IsTerminal() {
		return NewDomainError(ErrCodeInvalidState, "cannot enter a state on a terminal execution", nil)
	}
	e.raise(EventStateEntered, stateEnteredPayload{StateName: name}, nil)
	return nil
}

// ExitState records the produced output summary for the active state and
// writes it to the blackboard at "<StateName>.output".
func (e *WorkflowExecution) ExitState(output any) {
	e.blackboard.Set(e.currentState+".output", output)
	e.raise(EventStateExited, stateExitedPayload{StateName: e.currentState, Output: output}, nil)
}

// Transition increments the safety counter and returns ErrInterpreterBudget
// once it exceeds the workflow's max_total_iterations.
func (e *WorkflowExecution) Transition(maxTotalIterations int) error {
	e.iterationCount++
	if e.iterationCount > maxTotalIterations {
		return &DomainError{Code: ErrInterpreterBudget, Message: "interpreter step budget exceeded"}
	}
	return nil
}

// RecordEvent appends a caller-supplied event that carries no execution-
// level status transition of its own (ParallelBranchStarted/Completed,
// ConsensusComputed, PatternInjected, StimulusReceived/Classified/Routed):
// these are still durable facts the interpreter must log, but apply() has
// nothing to mutate for them beyond what raise() already does.
func (e *WorkflowExecution) RecordEvent(eventType EventType, payload any) {
	e.raise(eventType, payload, nil)
}

// RequestHumanInput marks the execution as waiting on a Human Gate entry.
func (e *WorkflowExecution) RequestHumanInput() {
	e.raise(EventHumanInputRequested, struct{}{}, nil)
}

// ResumeFromHuman marks the execution running again after a human response
// or timeout-with-default was delivered.
func (e *WorkflowExecution) ResumeFromHuman(timedOut bool) {
	if timedOut {
		e.raise(EventHumanInputTimedOut, struct{}{}, nil)
	} else {
		e.raise(EventHumanInputReceived, struct{}{}, nil)
	}
}

// Complete marks the execution successfully terminal.
func (e *WorkflowExecution) Complete() {
	e.raise(EventWorkflowCompleted, workflowCompletedPayload{FinalState: e.currentState}, nil)
}

// Fail marks the execution terminally failed with a stable error kind.
// reason distinguishes cancelled/timed_out from ordinary failure.
func (e *WorkflowExecution) Fail(code ErrorCode, message string, reason string) {
	e.raise(EventWorkflowFailed, workflowFailedPayload{ErrorCode: code, Message: message, Reason: reason}, nil)
}

// Cancel is an idempotent external termination.
func (e *WorkflowExecution) Cancel() {
	if e.status.IsTerminal() {
		return
	}
	e.Fail(ErrCancelled, "execution cancelled", "cancelled")
}

// TimeOut is a cancellation with a specific reason.
func (e *WorkflowExecution) TimeOut() {
	if e.status.IsTerminal() {
		return
	}
	e.Fail(ErrTimedOut, "execution timed out", "timed_out")
}

// IncrementIteration bumps the safety counter without a full Transition
// check, so the budget still accrues. Nothing in this repository calls it.
func (e *WorkflowExecution) IncrementIteration() {
	e.iterationCount++
}

// --- accessors ---

func (e *WorkflowExecution) ExecutionID() ID                { return e.executionID }
func (e *WorkflowExecution) WorkflowID() ID                 { return e.workflowID }
func (e *WorkflowExecution) Input() map[string]any          { return e.input }
func (e *WorkflowExecution) CurrentState() string           { return e.currentState }
func (e *WorkflowExecution) StateHistory() []string          { return append([]string{}, e.stateHistory...) }
func (e *WorkflowExecution) Blackboard() *Blackboard         { return e.blackboard }
func (e *WorkflowExecution) Status() ExecutionStatus         { return e.status }
func (e *WorkflowExecution) IterationCount() int             { return e.iterationCount }
func (e *WorkflowExecution) StartedAt() time.Time             { return e.startedAt }
func (e *WorkflowExecution) LastTransitionAt() time.Time       { return e.lastTransition }
func (e *WorkflowExecution) CompletedAt() *time.Time          { return e.completedAt }
func (e *WorkflowExecution) ErrorCode() ErrorCode             { return e.errorCode }
func (e *WorkflowExecution) ErrorMessage() string             { return e.errorMessage }
func (e *WorkflowExecution) Version() uint64                  { return e.version }

// UncommittedEvents returns events raised since the last MarkCommitted,
// for the Event Log writer to append.
func (e *WorkflowExecution) UncommittedEvents() []EventLogEntry {
	return append([]EventLogEntry{}, e.uncommittedEvents...)
}

// MarkCommitted clears the uncommitted buffer after a successful append.
func (e *WorkflowExecution) MarkCommitted() {
	e.uncommittedEvents = nil
}
