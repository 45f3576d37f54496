package domain

import "time"

// IterationVerdict is the outcome the Multi-Judge Validator assigns to one
// iteration.
type IterationVerdict string

const (
	VerdictPass   IterationVerdict = "pass"
	VerdictRefine IterationVerdict = "refine"
	VerdictFail   IterationVerdict = "fail"
)

// JudgeScore is one judge's raw output, validated to have both Score and
// Confidence in [0,1].
type JudgeScore struct {
	JudgeID    string
	Score      float64
	Confidence float64
	Reasoning  string
	Weight     float64
}

// GradientResult is the Multi-Judge Validator's aggregated output for a
// single iteration.
type GradientResult struct {
	Score      float64
	Confidence float64
	Reasoning  string
	Individual []JudgeScore
	Variance   float64
	Verdict    IterationVerdict
}

// Iteration is one append-only entry of an Agent Execution's iteration
// list. Index is 1-based and monotonic.
type Iteration struct {
	Index             int
	RenderedInput     string
	Output            *string
	Validation        *GradientResult
	RefinementApplied bool
	StartedAt         time.Time
	EndedAt           *time.Time
	Err               *DomainError
}

// AgentExecutionStatus is the lifecycle status of an Agent Execution
// (iteration session).
type AgentExecutionStatus string

const (
	AgentExecRunning   AgentExecutionStatus = "running"
	AgentExecCompleted AgentExecutionStatus = "completed"
	AgentExecFailed    AgentExecutionStatus = "failed"
)

// AgentExecution is one instance of the Agent Iteration Loop: one per
// Agent state instance, or per ParallelAgents branch, or per router
// invocation — anywhere the loop is the entry point.
type AgentExecution struct {
	ExecID                   ID
	ParentWorkflowExecutionID *ID
	AgentID                  ID
	Input                    string
	Iterations               []Iteration
	CurrentIteration         int
	MaxIterations            int
	FinalOutput              *string
	Status                   AgentExecutionStatus
}

// NewAgentExecution starts a fresh iteration session.
func NewAgentExecution(agentID ID, parentExecutionID *ID, input string, maxIterations int) *AgentExecution {
	if maxIterations < 1 {
		maxIterations = 1
	}
	return &AgentExecution{
		ExecID:                    NewID(),
		ParentWorkflowExecutionID: parentExecutionID,
		AgentID:                   agentID,
		Input:                     input,
		MaxIterations:             maxIterations,
		Status:                    AgentExecRunning,
	}
}

// BeginIteration appends a new Iteration entry and returns its 1-based
// index. Returns ErrInvariantViolated if the session already exhausted its
// budget of at most MaxIterations model invocations.
func (a *AgentExecution) BeginIteration(renderedInput string) (int, error) {
	if a.CurrentIteration >= a.MaxIterations {
		return 0, NewDomainError(ErrCodeInvariantViolated, "iteration budget exhausted", nil)
	}
	a.CurrentIteration++
	a.Iterations = append(a.Iterations, Iteration{
		Index:         a.CurrentIteration,
		RenderedInput: renderedInput,
		StartedAt:     time.Now(),
	})
	return a.CurrentIteration, nil
}

// CompleteIteration records a successful model output (and optional
// validation) on the most recent iteration.
func (a *AgentExecution) CompleteIteration(output string, validation *GradientResult) {
	idx := len(a.Iterations) - 1
	if idx < 0 {
		return
	}
	now := time.Now()
	a.Iterations[idx].Output = &output
	a.Iterations[idx].Validation = validation
	a.Iterations[idx].EndedAt = &now
}

// FailIteration records a failed model invocation on the most recent
// iteration.
func (a *AgentExecution) FailIteration(derr *DomainError) {
	idx := len(a.Iterations) - 1
	if idx < 0 {
		return
	}
	now := time.Now()
	a.Iterations[idx].Err = derr
	a.Iterations[idx].EndedAt = &now
}

// ApplyRefinement marks the most recent iteration as having produced a
// refinement prompt for the next one.
func (a *AgentExecution) ApplyRefinement() {
	idx := len(a.Iterations) - 1
	if idx < 0 {
		return
	}
	a.Iterations[idx].RefinementApplied = true
}

// Finish completes the session with a final output: the last recorded
// output is always the session result.
func (a *AgentExecution) Finish(output string) {
	a.FinalOutput = &output
	a.Status = AgentExecCompleted
}

// FinishFailed completes the session without a usable output.
func (a *AgentExecution) FinishFailed() {
	a.Status = AgentExecFailed
}

// LastIteration returns the most recently appended iteration, if any.
func (a *AgentExecution) LastIteration() (Iteration, bool) {
	if len(a.Iterations) == 0 {
		return Iteration{}, false
	}
	return a.Iterations[len(a.Iterations)-1], true
}
