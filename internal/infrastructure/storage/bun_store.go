// Package storage is the Postgres-backed persistence for workflows, agents,
// the workflow registry, human input requests, and execution checkpoints —
// every entity except the event log (internal/infrastructure/eventlog) and
// the cortex pattern store (internal/infrastructure/cortexstore).
//
// Built on bun.DB + pgdialect + pgdriver, with jsonb columns for nested
// domain structs and an `ON CONFLICT (id) DO UPDATE` upsert for mutable
// aggregates. domain.WorkflowStore and domain.AgentStore each expose
// Get/GetByName with incompatible signatures, so each port gets its own
// small store type sharing one underlying connection via Open.
package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/aegis-run/orchestrator/internal/domain"
)

// Open connects to Postgres and wraps it in a bun.DB. The *bun.DB can
// back any number of the per-entity stores below.
func Open(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// InitSchema creates every table this package owns.
func InitSchema(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*workflowModel)(nil),
		(*agentModel)(nil),
		(*registrationModel)(nil),
		(*humanRequestModel)(nil),
		(*executionProjectionModel)(nil),
	}
	for _, m := range models {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func notFoundOr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return domain.NewDomainError(domain.ErrCodeNotFound, msg, nil)
	}
	return err
}

// --- WorkflowStore ---

type workflowModel struct {
	bun.BaseModel `bun:"table:workflows,alias:w"`

	WorkflowID            domain.ID               `bun:"workflow_id,pk"`
	Name                  string                  `bun:"name"`
	Version               string                  `bun:"version"`
	InitialState          string                  `bun:"initial_state"`
	States                map[string]domain.State `bun:"states,type:jsonb"`
	Context               map[string]any          `bun:"context,type:jsonb"`
	MaxTotalIterations    int                     `bun:"max_total_iterations"`
	TimeoutSeconds        int                     `bun:"timeout_seconds"`
	EnableCortexInjection bool                    `bun:"enable_cortex_injection"`
	RegisteredAt          time.Time               `bun:"registered_at"`
}

// WorkflowStore is the bun-backed domain.WorkflowStore implementation.
type WorkflowStore struct{ db *bun.DB }

func NewWorkflowStore(db *bun.DB) *WorkflowStore { return &WorkflowStore{db: db} }

func (s *WorkflowStore) Register(ctx context.Context, def *domain.WorkflowDefinition) error {
	model := &workflowModel{
		WorkflowID:            def.WorkflowID,
		Name:                  def.Name,
		Version:               def.Version,
		InitialState:          def.InitialState,
		States:                def.States,
		Context:               def.Context,
		MaxTotalIterations:    def.MaxTotalIterations,
		TimeoutSeconds:        def.TimeoutSeconds,
		EnableCortexInjection: def.EnableCortexInjection,
		RegisteredAt:          def.RegisteredAt,
	}
	_, err := s.db.NewInsert().Model(model).On("CONFLICT (workflow_id) DO UPDATE").Exec(ctx)
	return err
}

func (s *WorkflowStore) Get(ctx context.Context, workflowID domain.ID) (*domain.WorkflowDefinition, error) {
	model := new(workflowModel)
	if err := s.db.NewSelect().Model(model).Where("workflow_id = ?", workflowID).Scan(ctx); err != nil {
		return nil, notFoundOr(err, "workflow not found")
	}
	return model.toDomain(), nil
}

func (s *WorkflowStore) GetByName(ctx context.Context, name, version string) (*domain.WorkflowDefinition, error) {
	model := new(workflowModel)
	err := s.db.NewSelect().Model(model).
		Where("name = ?", name).Where("version = ?", version).Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, "workflow not found")
	}
	return model.toDomain(), nil
}

func (m *workflowModel) toDomain() *domain.WorkflowDefinition {
	return &domain.WorkflowDefinition{
		WorkflowID:            m.WorkflowID,
		Name:                  m.Name,
		Version:               m.Version,
		InitialState:          m.InitialState,
		States:                m.States,
		Context:               m.Context,
		MaxTotalIterations:    m.MaxTotalIterations,
		TimeoutSeconds:        m.TimeoutSeconds,
		EnableCortexInjection: m.EnableCortexInjection,
		RegisteredAt:          m.RegisteredAt,
	}
}

// --- AgentStore ---

type agentModel struct {
	bun.BaseModel `bun:"table:agents,alias:a"`

	AgentID  domain.ID            `bun:"agent_id,pk"`
	Name     string               `bun:"name"`
	Version  string               `bun:"version"`
	Manifest domain.AgentManifest `bun:"manifest,type:jsonb"`
	Status   domain.AgentStatus   `bun:"status"`
}

// AgentStore is the bun-backed domain.AgentStore implementation.
type AgentStore struct{ db *bun.DB }

func NewAgentStore(db *bun.DB) *AgentStore { return &AgentStore{db: db} }

func (s *AgentStore) Register(ctx context.Context, agent *domain.Agent) error {
	model := &agentModel{
		AgentID:  agent.AgentID,
		Name:     agent.Name,
		Version:  agent.Version,
		Manifest: agent.Manifest,
		Status:   agent.Status,
	}
	_, err := s.db.NewInsert().Model(model).On("CONFLICT (agent_id) DO UPDATE").Exec(ctx)
	return err
}

func (s *AgentStore) Get(ctx context.Context, agentID domain.ID) (*domain.Agent, error) {
	model := new(agentModel)
	if err := s.db.NewSelect().Model(model).Where("agent_id = ?", agentID).Scan(ctx); err != nil {
		return nil, notFoundOr(err, "agent not found")
	}
	return model.toDomain(), nil
}

func (s *AgentStore) GetByName(ctx context.Context, name string) (*domain.Agent, error) {
	model := new(agentModel)
	if err := s.db.NewSelect().Model(model).Where("name = ?", name).Scan(ctx); err != nil {
		return nil, notFoundOr(err, "agent not found")
	}
	return model.toDomain(), nil
}

func (s *AgentStore) UpdateStatus(ctx context.Context, agentID domain.ID, status domain.AgentStatus) error {
	_, err := s.db.NewUpdate().Model((*agentModel)(nil)).
		Set("status = ?", status).
		Where("agent_id = ?", agentID).
		Exec(ctx)
	return err
}

func (m *agentModel) toDomain() *domain.Agent {
	return &domain.Agent{AgentID: m.AgentID, Name: m.Name, Version: m.Version, Manifest: m.Manifest, Status: m.Status}
}

// --- RegistrationStore ---

type registrationModel struct {
	bun.BaseModel `bun:"table:workflow_registrations,alias:r"`

	RegistrationID domain.ID `bun:"registration_id,pk"`
	IntentPattern  string    `bun:"intent_pattern"`
	WorkflowID     domain.ID `bun:"workflow_id"`
	Priority       uint32    `bun:"priority"`
	Enabled        bool      `bun:"enabled"`
}

// RegistrationStore is the bun-backed domain.RegistrationStore implementation.
type RegistrationStore struct{ db *bun.DB }

func NewRegistrationStore(db *bun.DB) *RegistrationStore { return &RegistrationStore{db: db} }

func (s *RegistrationStore) Add(ctx context.Context, reg *domain.WorkflowRegistration) error {
	model := &registrationModel{
		RegistrationID: reg.RegistrationID,
		IntentPattern:  reg.IntentPattern,
		WorkflowID:     reg.WorkflowID,
		Priority:       reg.Priority,
		Enabled:        reg.Enabled,
	}
	_, err := s.db.NewInsert().Model(model).On("CONFLICT (registration_id) DO UPDATE").Exec(ctx)
	return err
}

func (s *RegistrationStore) ListEnabled(ctx context.Context) ([]domain.WorkflowRegistration, error) {
	var models []registrationModel
	if err := s.db.NewSelect().Model(&models).Where("enabled").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.WorkflowRegistration, len(models))
	for i, m := range models {
		out[i] = domain.WorkflowRegistration{
			RegistrationID: m.RegistrationID,
			IntentPattern:  m.IntentPattern,
			WorkflowID:     m.WorkflowID,
			Priority:       m.Priority,
			Enabled:        m.Enabled,
		}
	}
	return out, nil
}

// --- HumanGateStore ---

type humanRequestModel struct {
	bun.BaseModel `bun:"table:human_input_requests,alias:h"`

	RequestID   domain.ID                 `bun:"request_id,pk"`
	ExecutionID domain.ID                 `bun:"execution_id"`
	StateName   string                    `bun:"state_name"`
	Prompt      string                    `bun:"prompt"`
	Status      domain.HumanRequestStatus `bun:"status"`
	CreatedAt   time.Time                 `bun:"created_at"`
	TimeoutAt   time.Time                 `bun:"timeout_at"`
	Response    *domain.HumanResponse     `bun:"response,type:jsonb"`
}

// HumanGateStore is the bun-backed domain.HumanGateStore implementation.
type HumanGateStore struct{ db *bun.DB }

func NewHumanGateStore(db *bun.DB) *HumanGateStore { return &HumanGateStore{db: db} }

func (s *HumanGateStore) Create(ctx context.Context, req *domain.HumanInputRequest) error {
	model := toHumanModel(req)
	_, err := s.db.NewInsert().Model(model).Exec(ctx)
	return err
}

func (s *HumanGateStore) Get(ctx context.Context, requestID domain.ID) (*domain.HumanInputRequest, error) {
	model := new(humanRequestModel)
	if err := s.db.NewSelect().Model(model).Where("request_id = ?", requestID).Scan(ctx); err != nil {
		return nil, notFoundOr(err, "human input request not found")
	}
	return model.toDomain(), nil
}

func (s *HumanGateStore) Update(ctx context.Context, req *domain.HumanInputRequest) error {
	model := toHumanModel(req)
	_, err := s.db.NewUpdate().Model(model).Where("request_id = ?", req.RequestID).Exec(ctx)
	return err
}

func (s *HumanGateStore) ListPendingExpiredBefore(ctx context.Context, cutoff time.Time) ([]*domain.HumanInputRequest, error) {
	var models []humanRequestModel
	err := s.db.NewSelect().Model(&models).
		Where("status = ?", domain.HumanRequestPending).
		Where("timeout_at < ?", cutoff).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.HumanInputRequest, len(models))
	for i := range models {
		out[i] = models[i].toDomain()
	}
	return out, nil
}

func toHumanModel(r *domain.HumanInputRequest) *humanRequestModel {
	return &humanRequestModel{
		RequestID:   r.RequestID,
		ExecutionID: r.ExecutionID,
		StateName:   r.StateName,
		Prompt:      r.Prompt,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		TimeoutAt:   r.TimeoutAt,
		Response:    r.Response,
	}
}

func (m *humanRequestModel) toDomain() *domain.HumanInputRequest {
	return &domain.HumanInputRequest{
		RequestID:   m.RequestID,
		ExecutionID: m.ExecutionID,
		StateName:   m.StateName,
		Prompt:      m.Prompt,
		Status:      m.Status,
		CreatedAt:   m.CreatedAt,
		TimeoutAt:   m.TimeoutAt,
		Response:    m.Response,
	}
}

// --- ExecutionStore ---
//
// executionProjectionModel is a read-mostly status/workflow-id index over
// executions, NOT the aggregate's source of truth — that is the Event Log.
// Save upserts the projection row from the execution's current in-memory
// state (cheap: the caller already has it after replaying or advancing the
// aggregate); Get ignores the projection entirely and rebuilds from the
// full event stream, so a stale or missing projection row can never
// produce an incorrect execution, only a less efficient ListRunning scan.
type executionProjectionModel struct {
	bun.BaseModel `bun:"table:executions,alias:e"`

	ExecutionID domain.ID              `bun:"execution_id,pk"`
	WorkflowID  domain.ID              `bun:"workflow_id"`
	Status      domain.ExecutionStatus `bun:"status"`
	StartedAt   time.Time              `bun:"started_at"`
}

// ExecutionStore is the bun-backed domain.ExecutionStore implementation.
// It delegates to a domain.EventLogStore for reconstructing the full
// aggregate and only persists a status projection itself.
type ExecutionStore struct {
	db     *bun.DB
	events domain.EventLogStore
}

func NewExecutionStore(db *bun.DB, events domain.EventLogStore) *ExecutionStore {
	return &ExecutionStore{db: db, events: events}
}

func (s *ExecutionStore) Save(ctx context.Context, exec *domain.WorkflowExecution) error {
	model := &executionProjectionModel{
		ExecutionID: exec.ExecutionID(),
		WorkflowID:  exec.WorkflowID(),
		Status:      exec.Status(),
		StartedAt:   exec.StartedAt(),
	}
	_, err := s.db.NewInsert().Model(model).On("CONFLICT (execution_id) DO UPDATE").Exec(ctx)
	return err
}

func (s *ExecutionStore) Get(ctx context.Context, executionID domain.ID) (*domain.WorkflowExecution, error) {
	events, err := s.events.ListByExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, "execution not found", nil)
	}
	return domain.RebuildWorkflowExecution(executionID, events)
}

func (s *ExecutionStore) ListRunning(ctx context.Context) ([]domain.ID, error) {
	var models []executionProjectionModel
	err := s.db.NewSelect().Model(&models).
		Where("status IN (?)", bun.In([]domain.ExecutionStatus{domain.ExecutionPending, domain.ExecutionRunning, domain.ExecutionWaitingHuman})).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ID, len(models))
	for i, m := range models {
		out[i] = m.ExecutionID
	}
	return out, nil
}
