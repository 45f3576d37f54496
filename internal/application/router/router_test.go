package router

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-run/orchestrator/internal/application/iteration"
	"github.com/aegis-run/orchestrator/internal/application/validator"
	"github.com/aegis-run/orchestrator/internal/domain"
)

// --- in-memory port fakes, the same minimal style as interpreter_test.go ---

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

func (m *memExecutions) ListRunning(ctx context.Context) ([]domain.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ID
	for id, e := range m.byID {
		if !e.Status().IsTerminal() {
			out = append(out, id)
		}
	}
	return out, nil
}

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

type memWorkflows struct {
	byID map[domain.ID]*domain.WorkflowDefinition
}

func newMemWorkflows() *memWorkflows { return &memWorkflows{byID: make(map[domain.ID]*domain.WorkflowDefinition)} }

func (m *memWorkflows) Register(ctx context.Context, def *domain.WorkflowDefinition) error {
	m.byID[def.WorkflowID] = def
	return nil
}

func (m *memWorkflows) Get(ctx context.Context, workflowID domain.ID) (*domain.WorkflowDefinition, error) {
	d, ok := m.byID[workflowID]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, "workflow not found", nil)
	}
	return d, nil
}

func (m *memWorkflows) GetByName(ctx context.Context, name, version string) (*domain.WorkflowDefinition, error) {
	for _, d := range m.byID {
		if d.Name == name && d.Version == version {
			return d, nil
		}
	}
	return nil, domain.NewDomainError(domain.ErrCodeNotFound, "workflow not found", nil)
}

type memRegistrations struct {
	regs []domain.WorkflowRegistration
}

func (m *memRegistrations) Add(ctx context.Context, reg *domain.WorkflowRegistration) error {
	m.regs = append(m.regs, *reg)
	return nil
}

func (m *memRegistrations) ListEnabled(ctx context.Context) ([]domain.WorkflowRegistration, error) {
	var out []domain.WorkflowRegistration
	for _, r := range m.regs {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

// fakeInvoker returns queued outputs in order, one per call, for
// simulating the router agent's classification attempts.
type fakeInvoker struct {
	mu      sync.Mutex
	outputs []string
	calls   int
}

func (f *fakeInvoker) Invoke(ctx context.Context, cfg domain.LLMConfig, prompt string, schema map[string]any) (domain.ModelInvocationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls >= len(f.outputs) {
		return domain.ModelInvocationResult{}, fmt.Errorf("no more queued outputs")
	}
	out := f.outputs[f.calls]
	f.calls++
	return domain.ModelInvocationResult{Content: out}, nil
}

func newRouter(t *testing.T, invoker domain.ModelInvoker, agents *memAgents, workflows *memWorkflows, regs *memRegistrations, maxConcurrent int) (*Router, *memEvents, *memExecutions) {
	t.Helper()
	events := &memEvents{}
	executions := newMemExecutions()
	loop := &iteration.Loop{Invoker: invoker, Validator: validator.New(validator.DefaultThresholds())}
	r := &Router{
		RouterAgentRef: "router-agent",
		MaxConcurrent:  maxConcurrent,
		Agents:         agents,
		Registrations:  regs,
		Workflows:      workflows,
		Executions:     executions,
		Events:         events,
		Loop:           loop,
	}
	return r, events, executions
}

func deployWorkflow(t *testing.T, workflows *memWorkflows) *domain.WorkflowDefinition {
	t.Helper()
	states := map[string]domain.State{
		"done": {Name: "done", Kind: domain.StateKindAgent, Agent: &domain.AgentState{AgentRef: "planner", InputTemplate: "x"}},
	}
	def, err := domain.NewWorkflowDefinition("deploy", "v1", "done", states, nil)
	require.NoError(t, err)
	require.NoError(t, workflows.Register(context.Background(), def))
	return def
}

func TestRouter_Route_HappyPath(t *testing.T) {
	agents := newMemAgents()
	agents.Register(context.Background(), domain.NewAgent("router-agent", "v1", domain.AgentManifest{}))

	workflows := newMemWorkflows()
	def := deployWorkflow(t, workflows)

	regs := &memRegistrations{regs: []domain.WorkflowRegistration{
		{RegistrationID: domain.NewID(), IntentPattern: "deploy", WorkflowID: def.WorkflowID, Priority: 1, Enabled: true},
	}}

	invoker := &fakeInvoker{outputs: []string{`{"intent":"deploy","confidence":0.9,"parameters":{"env":"prod"}}`}}
	r, events, executions := newRouter(t, invoker, agents, workflows, regs, 0)

	stim := domain.NewStimulus(domain.SourceWebhook, "deploy to prod", nil)
	exec, err := r.Route(context.Background(), stim)
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionRunning, exec.Status())
	assert.Equal(t, "done", exec.CurrentState())
	require.NotNil(t, stim.Classification)
	assert.Equal(t, "deploy", stim.Classification.Intent)
	assert.Equal(t, def.WorkflowID, stim.Classification.WorkflowID)

	stored, err := executions.Get(context.Background(), exec.ExecutionID())
	require.NoError(t, err)
	assert.Equal(t, exec.ExecutionID(), stored.ExecutionID())

	stimEvents, err := events.ListByExecution(context.Background(), stim.StimulusID)
	require.NoError(t, err)
	assert.Len(t, stimEvents, 2) // StimulusReceived, StimulusClassified

	routedEvents, err := events.ListByExecution(context.Background(), exec.ExecutionID())
	require.NoError(t, err)
	found := false
	for _, e := range routedEvents {
		if e.EventType == domain.EventStimulusRouted {
			found = true
		}
	}
	assert.True(t, found, "expected StimulusRouted recorded against the execution")
}

func TestRouter_Route_UnparseableFallsBackToDefaultIntent(t *testing.T) {
	agents := newMemAgents()
	agents.Register(context.Background(), domain.NewAgent("router-agent", "v1", domain.AgentManifest{}))

	workflows := newMemWorkflows()
	def := deployWorkflow(t, workflows)
	regs := &memRegistrations{regs: []domain.WorkflowRegistration{
		{RegistrationID: domain.NewID(), IntentPattern: "fallback", WorkflowID: def.WorkflowID, Priority: 1, Enabled: true},
	}}

	// three garbage responses -> exhausts retries -> falls back
	invoker := &fakeInvoker{outputs: []string{"not json", "still not json", "nope"}}
	r, _, _ := newRouter(t, invoker, agents, workflows, regs, 0)
	r.DefaultIntent = "fallback"

	stim := domain.NewStimulus(domain.SourceWebhook, "garble", nil)
	exec, err := r.Route(context.Background(), stim)
	require.NoError(t, err)
	assert.Equal(t, "fallback", stim.Classification.Intent)
	assert.Equal(t, "done", exec.CurrentState())
}

func TestRouter_Route_UnparseableNoDefaultFails(t *testing.T) {
	agents := newMemAgents()
	agents.Register(context.Background(), domain.NewAgent("router-agent", "v1", domain.AgentManifest{}))
	workflows := newMemWorkflows()
	regs := &memRegistrations{}

	invoker := &fakeInvoker{outputs: []string{"x", "y", "z"}}
	r, _, _ := newRouter(t, invoker, agents, workflows, regs, 0)

	stim := domain.NewStimulus(domain.SourceWebhook, "garble", nil)
	_, err := r.Route(context.Background(), stim)
	require.Error(t, err)
	assert.Equal(t, domain.ErrRouterUnparseable, domain.CodeOf(err))
}

func TestRouter_Route_NoEnabledRegistrationFails(t *testing.T) {
	agents := newMemAgents()
	agents.Register(context.Background(), domain.NewAgent("router-agent", "v1", domain.AgentManifest{}))
	workflows := newMemWorkflows()
	regs := &memRegistrations{}

	invoker := &fakeInvoker{outputs: []string{`{"intent":"unknown","confidence":0.9,"parameters":{}}`}}
	r, _, _ := newRouter(t, invoker, agents, workflows, regs, 0)

	stim := domain.NewStimulus(domain.SourceWebhook, "do something unknown", nil)
	_, err := r.Route(context.Background(), stim)
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeNotFound, domain.CodeOf(err))
}

func TestRouter_Route_WildcardPriorityTieBreak(t *testing.T) {
	agents := newMemAgents()
	agents.Register(context.Background(), domain.NewAgent("router-agent", "v1", domain.AgentManifest{}))

	workflows := newMemWorkflows()
	lowPriDef := deployWorkflow(t, workflows)

	states := map[string]domain.State{
		"done": {Name: "done", Kind: domain.StateKindAgent, Agent: &domain.AgentState{AgentRef: "planner", InputTemplate: "x"}},
	}
	highPriDef, err := domain.NewWorkflowDefinition("deploy-priority", "v1", "done", states, nil)
	require.NoError(t, err)
	require.NoError(t, workflows.Register(context.Background(), highPriDef))

	regs := &memRegistrations{regs: []domain.WorkflowRegistration{
		{RegistrationID: domain.NewID(), IntentPattern: "deploy*", WorkflowID: lowPriDef.WorkflowID, Priority: 1, Enabled: true},
		{RegistrationID: domain.NewID(), IntentPattern: "*service", WorkflowID: highPriDef.WorkflowID, Priority: 5, Enabled: true},
	}}

	invoker := &fakeInvoker{outputs: []string{`{"intent":"deploy-service","confidence":0.8,"parameters":{}}`}}
	r, _, _ := newRouter(t, invoker, agents, workflows, regs, 0)

	stim := domain.NewStimulus(domain.SourceWebhook, "deploy-service please", nil)
	exec, err := r.Route(context.Background(), stim)
	require.NoError(t, err)
	assert.Equal(t, highPriDef.WorkflowID, stim.Classification.WorkflowID)
	assert.Equal(t, "done", exec.CurrentState())
}

func TestRouter_Route_OverCapacityRejected(t *testing.T) {
	agents := newMemAgents()
	agents.Register(context.Background(), domain.NewAgent("router-agent", "v1", domain.AgentManifest{}))
	workflows := newMemWorkflows()
	def := deployWorkflow(t, workflows)
	regs := &memRegistrations{regs: []domain.WorkflowRegistration{
		{RegistrationID: domain.NewID(), IntentPattern: "deploy", WorkflowID: def.WorkflowID, Priority: 1, Enabled: true},
	}}

	invoker := &fakeInvoker{outputs: []string{`{"intent":"deploy","confidence":0.9,"parameters":{}}`}}
	r, _, executions := newRouter(t, invoker, agents, workflows, regs, 1)

	running := domain.NewWorkflowExecution(def.WorkflowID, def.InitialState, nil)
	require.NoError(t, executions.Save(context.Background(), running))

	stim := domain.NewStimulus(domain.SourceWebhook, "deploy to prod", nil)
	_, err := r.Route(context.Background(), stim)
	require.Error(t, err)
	assert.Equal(t, domain.ErrOverCapacity, domain.CodeOf(err))
}
