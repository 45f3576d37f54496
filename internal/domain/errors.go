package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable identifier for a class of failure, carried across
// process and replay boundaries (it is what gets written into the event
// log, not the freeform Go error string).
type ErrorCode string

const (
	// ErrCodeInvalidInput marks malformed caller input: bad IDs, missing
	// required fields, schema mismatches.
	ErrCodeInvalidInput ErrorCode = "ERR_INVALID_INPUT"
	// ErrCodeNotFound marks a lookup against an entity that does not exist.
	ErrCodeNotFound ErrorCode = "ERR_NOT_FOUND"
	// ErrCodeAlreadyExists marks a conflicting create, including a
	// same-sequence-different-payload event log append.
	ErrCodeAlreadyExists ErrorCode = "ERR_ALREADY_EXISTS"
	// ErrCodeInvariantViolated marks a broken aggregate invariant.
	ErrCodeInvariantViolated ErrorCode = "ERR_INVARIANT_VIOLATED"
	// ErrCodeInvalidState marks a command issued against an aggregate in a
	// state that cannot accept it (e.g. completing an already-terminal
	// execution).
	ErrCodeInvalidState ErrorCode = "ERR_INVALID_STATE"

	// ErrTemplate: rendering failed (missing key, bad expression).
	// Non-retryable, fails the state.
	ErrTemplate ErrorCode = "ERR_TEMPLATE"
	// ErrAgentInvocation: the isolation or model layer failed. Retryable
	// subclass if transport/timeout; non-retryable if policy violation,
	// bad manifest, or OOM-kill.
	ErrAgentInvocation ErrorCode = "ERR_AGENT_INVOCATION"
	// ErrJudgeUnparseable: judge output didn't conform. The validator
	// treats the offending judge as weight 0.
	ErrJudgeUnparseable ErrorCode = "ERR_JUDGE_UNPARSEABLE"
	// ErrValidationUnavailable: no valid judge remained after discarding
	// unparseable ones.
	ErrValidationUnavailable ErrorCode = "ERR_VALIDATION_UNAVAILABLE"
	// ErrRouterUnparseable: router agent output didn't parse.
	ErrRouterUnparseable ErrorCode = "ERR_ROUTER_UNPARSEABLE"
	// ErrNoTransition: no transition matched. Non-retryable, fails the
	// execution.
	ErrNoTransition ErrorCode = "ERR_NO_TRANSITION"
	// ErrInterpreterBudget: per-execution step budget exceeded.
	ErrInterpreterBudget ErrorCode = "ERR_INTERPRETER_BUDGET"
	// ErrHumanTimeout: Human gate timed out with no default_response.
	ErrHumanTimeout ErrorCode = "ERR_HUMAN_TIMEOUT"
	// ErrOverCapacity: backpressure rejection on start.
	ErrOverCapacity ErrorCode = "ERR_OVER_CAPACITY"
	// ErrCancelled: external termination via cancel.
	ErrCancelled ErrorCode = "ERR_CANCELLED"
	// ErrTimedOut: external termination via deadline.
	ErrTimedOut ErrorCode = "ERR_TIMED_OUT"
	// ErrDeterminism: replay observed a divergent recorded side-effect.
	// Fatal to the execution, always logged loudly.
	ErrDeterminism ErrorCode = "ERR_DETERMINISM"
)

// DomainError is the single error type returned across package boundaries.
// Code is what gets persisted to the event log and compared by callers;
// Message is human-oriented; Err is the wrapped cause, if any.
type DomainError struct {
	Code      ErrorCode
	Message   string
	Err       error
	Retryable bool
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError builds a non-retryable DomainError.
func NewDomainError(code ErrorCode, message string, cause error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: cause}
}

// NewRetryableError builds a DomainError marked retryable, used by the
// iteration loop to decide whether another attempt is warranted.
func NewRetryableError(code ErrorCode, message string, cause error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: cause, Retryable: true}
}

// CodeOf extracts the ErrorCode of err, or "" if err is not a *DomainError.
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsRetryable reports whether err is a DomainError explicitly marked
// retryable. Unrecognized errors are treated as non-retryable: the
// iteration loop and interpreter default to fast failure rather than
// silently retrying something they don't understand.
func IsRetryable(err error) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}
