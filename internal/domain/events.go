package domain

import (
	"encoding/json"
	"time"
)

// EventType names one of the kinds of fact the system records against an
// execution. These are the values persisted in EventLogEntry.EventType and
// are stable across versions: callers match on the string, not a Go type.
type EventType string

const (
	EventWorkflowStarted        EventType = "WorkflowStarted"
	EventStateEntered           EventType = "StateEntered"
	EventStateExited            EventType = "StateExited"
	EventIterationStarted       EventType = "IterationStarted"
	EventIterationOutput        EventType = "IterationOutput"
	EventIterationCompleted     EventType = "IterationCompleted"
	EventIterationFailed        EventType = "IterationFailed"
	EventRefinementApplied      EventType = "RefinementApplied"
	EventHumanInputRequested    EventType = "HumanInputRequested"
	EventHumanInputReceived     EventType = "HumanInputReceived"
	EventHumanInputTimedOut     EventType = "HumanInputTimedOut"
	EventParallelBranchStarted  EventType = "ParallelBranchStarted"
	EventParallelBranchComplete EventType = "ParallelBranchCompleted"
	EventConsensusComputed      EventType = "ConsensusComputed"
	EventPatternInjected        EventType = "PatternInjected"
	EventPatternInjectSkipped   EventType = "PatternInjectionSkipped"
	EventPatternReinforced      EventType = "PatternReinforced"
	EventPatternPruned          EventType = "PatternPruned"
	EventWorkflowCompleted      EventType = "WorkflowCompleted"
	EventWorkflowFailed         EventType = "WorkflowFailed"
	EventStimulusReceived       EventType = "StimulusReceived"
	EventStimulusClassified     EventType = "StimulusClassified"
	EventStimulusRouted         EventType = "StimulusRouted"
)

// EventLogEntry is one row of the durable Event Log. SequenceNumber is
// chosen by the writer (monotonic per ExecutionID); the store enforces
// UNIQUE(execution_id, sequence_number) as the idempotency key.
type EventLogEntry struct {
	ExecutionID     ID
	SequenceNumber  uint64
	EventType       EventType
	Payload         json.RawMessage
	IterationNumber *int
	CreatedAt       time.Time
}

// NewEventLogEntry constructs an entry with payload marshaled from v.
func NewEventLogEntry(executionID ID, seq uint64, eventType EventType, v any, iteration *int) (EventLogEntry, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return EventLogEntry{}, NewDomainError(ErrCodeInvalidInput, "failed to marshal event payload", err)
	}
	return EventLogEntry{
		ExecutionID:     executionID,
		SequenceNumber:  seq,
		EventType:       eventType,
		Payload:         payload,
		IterationNumber: iteration,
		CreatedAt:       time.Now(),
	}, nil
}

// SamePayload reports whether two entries with the same (execution, sequence)
// key carry byte-identical payloads — the idempotent-append test from §4.1
// and the "submitting the same tuple twice" property from §8.
func (e EventLogEntry) SamePayload(other EventLogEntry) bool {
	return string(e.Payload) == string(other.Payload)
}

// decodePayload unmarshals an event's payload into a typed struct.
func decodePayload(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return NewDomainError(ErrCodeInvalidInput, "failed to decode event payload", err)
	}
	return nil
}
