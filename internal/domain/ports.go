package domain

import (
	"context"
	"time"
)

// EventLogStore is the Event Log persistence port. Append enforces UNIQUE(execution_id, sequence_number): a re-append of an
// already-stored (execution_id, sequence_number) with an identical payload
// succeeds idempotently; a differing payload returns an *DomainError with
// Code ErrCodeAlreadyExists.
type EventLogStore interface {
	Append(ctx context.Context, entries ...EventLogEntry) error
	ListByExecution(ctx context.Context, executionID ID) ([]EventLogEntry, error)
	ListByType(ctx context.Context, executionID ID, eventType EventType) ([]EventLogEntry, error)
}

// ExecutionStore persists Workflow Execution checkpoints. The Durability
// Runtime uses this alongside the Event Log to reconstruct an execution
// after a crash.
type ExecutionStore interface {
	Save(ctx context.Context, exec *WorkflowExecution) error
	Get(ctx context.Context, executionID ID) (*WorkflowExecution, error)
	ListRunning(ctx context.Context) ([]ID, error)
}

// WorkflowStore persists WorkflowDefinition rows.
type WorkflowStore interface {
	Register(ctx context.Context, def *WorkflowDefinition) error
	Get(ctx context.Context, workflowID ID) (*WorkflowDefinition, error)
	GetByName(ctx context.Context, name, version string) (*WorkflowDefinition, error)
}

// AgentStore persists Agent rows.
type AgentStore interface {
	Register(ctx context.Context, agent *Agent) error
	Get(ctx context.Context, agentID ID) (*Agent, error)
	GetByName(ctx context.Context, name string) (*Agent, error)
	UpdateStatus(ctx context.Context, agentID ID, status AgentStatus) error
}

// RegistrationStore persists the Workflow Registry; read-mostly, writes
// under a global short-lived lock.
type RegistrationStore interface {
	Add(ctx context.Context, reg *WorkflowRegistration) error
	ListEnabled(ctx context.Context) ([]WorkflowRegistration, error)
}

// HumanGateStore persists pending Human input requests.
type HumanGateStore interface {
	Create(ctx context.Context, req *HumanInputRequest) error
	Get(ctx context.Context, requestID ID) (*HumanInputRequest, error)
	Update(ctx context.Context, req *HumanInputRequest) error
	ListPendingExpiredBefore(ctx context.Context, cutoff time.Time) ([]*HumanInputRequest, error)
}

// IsolationResult is what the Isolation Provider returns from Wait.
type IsolationResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// IsolationHandle is an opaque reference to a running sandboxed invocation.
type IsolationHandle any

// IsolationProvider is the sandbox collaborator the core only ever
// consumes; the core's own test suite implements it with nothing more
// than a fake.
type IsolationProvider interface {
	Start(ctx context.Context, manifest AgentManifest, renderedInput string) (IsolationHandle, error)
	Wait(ctx context.Context, handle IsolationHandle) (IsolationResult, error)
	Cancel(ctx context.Context, handle IsolationHandle) error
}

// ModelInvocationResult is what the Model Invocation interface returns.
type ModelInvocationResult struct {
	Content      string
	PromptTokens int
	OutputTokens int
	Latency      time.Duration
}

// ModelInvoker is the LLM-provider collaborator. ResponseSchema, when
// non-nil, asks the provider to constrain output to that JSON schema;
// providers that cannot guarantee it degrade to best-effort prompting.
type ModelInvoker interface {
	Invoke(ctx context.Context, cfg LLMConfig, prompt string, responseSchema map[string]any) (ModelInvocationResult, error)
}

// PatternSearchResult pairs a pattern with its resonance score.
type PatternSearchResult struct {
	Pattern   *CortexPattern
	Resonance float64
}

// PatternStore is the vector-store collaborator. The Cortex application
// package owns the tuning parameters (dedup threshold, α, β, λ, weight
// bounds) and passes them per call; implementations compute similarity,
// resonance ranking, the reinforce EMA and decay/prune with them.
type PatternStore interface {
	Store(ctx context.Context, sig ErrorSignature, sol Solution, embedding []float32, tags []string, dedupThreshold float64, maxWeight float64) (ID, error)
	Search(ctx context.Context, queryEmbedding []float32, k int, minResonance float64, alpha float64) ([]PatternSearchResult, error)
	Reinforce(ctx context.Context, patternID ID, observedSuccess float64, beta float64, maxWeight float64) error
	DecayAndPrune(ctx context.Context, now time.Time, lambda float64, minWeight float64) ([]*CortexPattern, error)
	Delete(ctx context.Context, patternID ID) error
	ListAll(ctx context.Context) ([]*CortexPattern, error)
	FindByTags(ctx context.Context, tags []string) ([]*CortexPattern, error)
}

// SideEffectFunc is a recordable side effect: any non-pure operation
// (time, randomness, network I/O) the interpreter must perform exactly
// once and replay thereafter.
type SideEffectFunc func(ctx context.Context) (any, error)

// ErrSignalTimedOut is returned by DurabilityRuntime.AwaitSignal when the
// timeout elapses before a signal arrives.
var ErrSignalTimedOut = NewDomainError(ErrHumanTimeout, "signal wait timed out", nil)

// DurabilityRuntime is the durable-execution substrate: it bridges the
// interpreter to a system that guarantees task retries, crash-safe
// checkpoints, signal delivery, timers, and deterministic side-effect
// replay. All interpreter I/O is funneled through RecordSideEffect so
// control flow stays deterministic across restarts.
type DurabilityRuntime interface {
	RecordSideEffect(ctx context.Context, name string, fn SideEffectFunc) (any, error)
	Sleep(ctx context.Context, d time.Duration) error
	AwaitSignal(ctx context.Context, name string, timeout time.Duration) (any, error)
	SpawnParallel(ctx context.Context, fns []func(ctx context.Context) (any, error)) ([]any, error)
}
