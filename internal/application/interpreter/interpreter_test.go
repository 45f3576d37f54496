package interpreter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-run/orchestrator/internal/application/blackboard"
	"github.com/aegis-run/orchestrator/internal/application/expreval"
	"github.com/aegis-run/orchestrator/internal/application/humangate"
	"github.com/aegis-run/orchestrator/internal/application/iteration"
	"github.com/aegis-run/orchestrator/internal/application/validator"
	"github.com/aegis-run/orchestrator/internal/domain"
)

// --- in-memory port fakes, grounded in the same style as the cortex/
// humangate package test fakes: a minimal map-backed implementation of
// each domain port, never exercising any infrastructure adapter. ---

type memEvents struct {
	mu      sync.Mutex
	entries []domain.EventLogEntry
}

func (m *memEvents) Append(ctx context.Context, entries ...domain.EventLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *memEvents) ListByExecution(ctx context.Context, executionID domain.ID) ([]domain.EventLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EventLogEntry
	for _, e := range m.entries {
		if e.ExecutionID == executionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEvents) ListByType(ctx context.Context, executionID domain.ID, eventType domain.EventType) ([]domain.EventLogEntry, error) {
	all, _ := m.ListByExecution(ctx, executionID)
	var out []domain.EventLogEntry
	for _, e := range all {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out, nil
}

type memExecutions struct {
	mu   sync.Mutex
	byID map[domain.ID]*domain.WorkflowExecution
}

func newMemExecutions() *memExecutions {
	return &memExecutions{byID: make(map[domain.ID]*domain.WorkflowExecution)}
}

func (m *memExecutions) Save(ctx context.Context, exec *domain.WorkflowExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[exec.ExecutionID()] = exec
	return nil
}

func (m *memExecutions) Get(ctx context.Context, executionID domain.ID) (*domain.WorkflowExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[executionID]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, "execution not found", nil)
	}
	return e, nil
}

func (m *memExecutions) ListRunning(ctx context.Context) ([]domain.ID, error) { return nil, nil }

type memAgents struct {
	byName map[string]*domain.Agent
}

func newMemAgents() *memAgents { return &memAgents{byName: make(map[string]*domain.Agent)} }

func (m *memAgents) Register(ctx context.Context, agent *domain.Agent) error {
	m.byName[agent.Name] = agent
	return nil
}

func (m *memAgents) Get(ctx context.Context, agentID domain.ID) (*domain.Agent, error) {
	for _, a := range m.byName {
		if a.AgentID == agentID {
			return a, nil
		}
	}
	return nil, domain.NewDomainError(domain.ErrCodeNotFound, "agent not found", nil)
}

func (m *memAgents) GetByName(ctx context.Context, name string) (*domain.Agent, error) {
	a, ok := m.byName[name]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, "agent not found", nil)
	}
	return a, nil
}

func (m *memAgents) UpdateStatus(ctx context.Context, agentID domain.ID, status domain.AgentStatus) error {
	for _, a := range m.byName {
		if a.AgentID == agentID {
			a.Status = status
			return nil
		}
	}
	return domain.NewDomainError(domain.ErrCodeNotFound, "agent not found", nil)
}

// fakeDurability runs side effects and parallel fan-out inline (this
// Step call's single goroutine), and resolves await_signal from a
// caller-seeded canned response or timeout.
type fakeDurability struct {
	humanResponse *domain.HumanResponse
}

func (f *fakeDurability) RecordSideEffect(ctx context.Context, name string, fn domain.SideEffectFunc) (any, error) {
	return fn(ctx)
}

func (f *fakeDurability) Sleep(ctx context.Context, d time.Duration) error { return nil }

func (f *fakeDurability) AwaitSignal(ctx context.Context, name string, timeout time.Duration) (any, error) {
	if f.humanResponse != nil {
		return *f.humanResponse, nil
	}
	return nil, domain.ErrSignalTimedOut
}

func (f *fakeDurability) SpawnParallel(ctx context.Context, fns []func(context.Context) (any, error)) ([]any, error) {
	out := make([]any, len(fns))
	for i, fn := range fns {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type fakeIsolation struct {
	result domain.IsolationResult
	err    error
}

func (f *fakeIsolation) Start(ctx context.Context, manifest domain.AgentManifest, renderedInput string) (domain.IsolationHandle, error) {
	return "handle", nil
}

func (f *fakeIsolation) Wait(ctx context.Context, handle domain.IsolationHandle) (domain.IsolationResult, error) {
	return f.result, f.err
}

func (f *fakeIsolation) Cancel(ctx context.Context, handle domain.IsolationHandle) error { return nil }

type fakeInvoker struct {
	output string
}

func (f *fakeInvoker) Invoke(ctx context.Context, cfg domain.LLMConfig, prompt string, schema map[string]any) (domain.ModelInvocationResult, error) {
	return domain.ModelInvocationResult{Content: f.output}, nil
}

type memHumanGate struct {
	byID map[domain.ID]*domain.HumanInputRequest
}

func newMemHumanGate() *memHumanGate {
	return &memHumanGate{byID: make(map[domain.ID]*domain.HumanInputRequest)}
}

func (m *memHumanGate) Create(ctx context.Context, req *domain.HumanInputRequest) error {
	m.byID[req.RequestID] = req
	return nil
}

func (m *memHumanGate) Get(ctx context.Context, requestID domain.ID) (*domain.HumanInputRequest, error) {
	r, ok := m.byID[requestID]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, "request not found", nil)
	}
	return r, nil
}

func (m *memHumanGate) Update(ctx context.Context, req *domain.HumanInputRequest) error {
	m.byID[req.RequestID] = req
	return nil
}

func (m *memHumanGate) ListPendingExpiredBefore(ctx context.Context, cutoff time.Time) ([]*domain.HumanInputRequest, error) {
	return nil, nil
}

type noopSignaler struct{}

func (noopSignaler) DeliverSignal(ctx context.Context, executionID domain.ID, name string, value any) error {
	return nil
}

func newInterpreter(agents *memAgents, invoker domain.ModelInvoker, isolation domain.IsolationProvider, durability domain.DurabilityRuntime, humanResponse *domain.HumanResponse) (*Interpreter, *memEvents, *memExecutions) {
	events := &memEvents{}
	executions := newMemExecutions()
	loop := &iteration.Loop{Invoker: invoker, Validator: validator.New(validator.DefaultThresholds())}
	gate := humangate.New(newMemHumanGate(), noopSignaler{}, nil)
	if durability == nil {
		durability = &fakeDurability{humanResponse: humanResponse}
	}
	return &Interpreter{
		Agents:     agents,
		Events:     events,
		Executions: executions,
		Durability: durability,
		Isolation:  isolation,
		Loop:       loop,
		Gate:       gate,
		Renderer:   blackboard.NewRenderer(),
		Eval:       expreval.New(),
	}, events, executions
}

func linearDef(t *testing.T, states map[string]domain.State, initial string) *domain.WorkflowDefinition {
	t.Helper()
	def, err := domain.NewWorkflowDefinition("wf", "v1", initial, states, nil)
	require.NoError(t, err)
	return def
}

func TestInterpreter_Run_AgentStateCompletesWorkflow(t *testing.T) {
	agents := newMemAgents()
	agents.Register(context.Background(), domain.NewAgent("planner", "v1", domain.AgentManifest{LLM: domain.LLMConfig{Provider: "openai"}}))

	in, events, executions := newInterpreter(agents, &fakeInvoker{output: "plan complete"}, nil, nil, nil)

	states := map[string]domain.State{
		"plan": {
			Name: "plan", Kind: domain.StateKindAgent,
			Agent:       &domain.AgentState{AgentRef: "planner", InputTemplate: "do the thing", MaxIterations: 1},
			Transitions: []domain.TransitionRule{{Condition: domain.Condition{Kind: domain.ConditionOnSuccess}, Target: "done"}},
		},
		"done": {Name: "done", Kind: domain.StateKindAgent, Agent: &domain.AgentState{AgentRef: "planner", InputTemplate: "x"}},
	}
	def := linearDef(t, states, "plan")

	exec := domain.NewWorkflowExecution(def.WorkflowID, def.InitialState, nil)
	require.NoError(t, in.Run(context.Background(), exec, def))

	assert.Equal(t, domain.ExecutionCompleted, exec.Status())
	assert.Equal(t, "done", exec.CurrentState())

	out, ok := exec.Blackboard().Get("plan.output")
	require.True(t, ok)
	assert.Equal(t, "plan complete", out)

	stored, err := executions.Get(context.Background(), exec.ExecutionID())
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionCompleted, stored.Status())

	logged, err := events.ListByExecution(context.Background(), exec.ExecutionID())
	require.NoError(t, err)
	assert.NotEmpty(t, logged)
}

func TestInterpreter_Run_SystemStateRoutesOnExitCode(t *testing.T) {
	agents := newMemAgents()
	isolation := &fakeIsolation{result: domain.IsolationResult{ExitCode: 1, Stdout: "boom"}}
	in, _, _ := newInterpreter(agents, &fakeInvoker{}, isolation, nil, nil)

	states := map[string]domain.State{
		"build": {
			Name: "build", Kind: domain.StateKindSystem,
			System: &domain.SystemState{CommandTemplate: "make build", Timeout: time.Second},
			Transitions: []domain.TransitionRule{
				{Condition: domain.Condition{Kind: domain.ConditionExitCodeEquals, ExitCode: 0}, Target: "done"},
				{Condition: domain.Condition{Kind: domain.ConditionOnFailure}, Target: "failed"},
			},
		},
		"done":   {Name: "done", Kind: domain.StateKindSystem, System: &domain.SystemState{}},
		"failed": {Name: "failed", Kind: domain.StateKindSystem, System: &domain.SystemState{}},
	}
	def := linearDef(t, states, "build")

	exec := domain.NewWorkflowExecution(def.WorkflowID, def.InitialState, nil)
	require.NoError(t, in.Run(context.Background(), exec, def))

	assert.Equal(t, "failed", exec.CurrentState())
	assert.Equal(t, domain.ExecutionCompleted, exec.Status())
	exitCode, ok := exec.Blackboard().Get("build.exit_code")
	require.True(t, ok)
	assert.Equal(t, 1, exitCode)
}

func TestInterpreter_Run_HumanStateDefaultsOnTimeout(t *testing.T) {
	agents := newMemAgents()
	durability := &fakeDurability{} // no canned response -> AwaitSignal times out
	in, _, _ := newInterpreter(agents, &fakeInvoker{}, nil, durability, nil)

	defaultResp := "approve"
	states := map[string]domain.State{
		"review": {
			Name: "review", Kind: domain.StateKindHuman,
			Human:       &domain.HumanState{PromptTemplate: "approve?", Timeout: time.Minute, DefaultResponse: &defaultResp},
			Transitions: []domain.TransitionRule{{Condition: domain.Condition{Kind: domain.ConditionAlways}, Target: "done"}},
		},
		"done": {Name: "done", Kind: domain.StateKindHuman, Human: &domain.HumanState{}},
	}
	def := linearDef(t, states, "review")

	exec := domain.NewWorkflowExecution(def.WorkflowID, def.InitialState, nil)
	require.NoError(t, in.Run(context.Background(), exec, def))

	assert.Equal(t, domain.ExecutionCompleted, exec.Status())
	decision, ok := exec.Blackboard().Get("review.decision")
	require.True(t, ok)
	assert.Equal(t, "approve", decision)
}

func TestInterpreter_Run_NoMatchingTransitionFails(t *testing.T) {
	agents := newMemAgents()
	agents.Register(context.Background(), domain.NewAgent("planner", "v1", domain.AgentManifest{}))
	in, _, _ := newInterpreter(agents, &fakeInvoker{output: "x"}, nil, nil, nil)

	states := map[string]domain.State{
		"plan": {
			Name: "plan", Kind: domain.StateKindAgent,
			Agent:       &domain.AgentState{AgentRef: "planner", InputTemplate: "x", MaxIterations: 1},
			Transitions: []domain.TransitionRule{{Condition: domain.Condition{Kind: domain.ConditionScoreAbove, Threshold: 2.0}, Target: "done"}},
		},
		"done": {Name: "done", Kind: domain.StateKindAgent, Agent: &domain.AgentState{AgentRef: "planner", InputTemplate: "x"}},
	}
	def := linearDef(t, states, "plan")
	exec := domain.NewWorkflowExecution(def.WorkflowID, def.InitialState, nil)

	err := in.Run(context.Background(), exec, def)
	require.Error(t, err)
	assert.Equal(t, domain.ErrNoTransition, domain.CodeOf(err))
	assert.Equal(t, domain.ExecutionFailed, exec.Status())
}
