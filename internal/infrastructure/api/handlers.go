package api

import (
	"encoding/json"
	"net/http"

	"github.com/aegis-run/orchestrator/internal/domain"
)

type registerWorkflowRequest struct {
	Name                  string                  `json:"name"`
	Version               string                  `json:"version"`
	InitialState          string                  `json:"initial_state"`
	States                map[string]domain.State `json:"states"`
	Context               map[string]any          `json:"context"`
	MaxTotalIterations    int                     `json:"max_total_iterations"`
	MaxExecutionDurationS int                     `json:"max_execution_duration_seconds"`
}

func (s *Server) handleRegisterWorkflow(w http.ResponseWriter, r *http.Request) {
	var req registerWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, s.log, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	def, err := domain.NewWorkflowDefinition(req.Name, req.Version, req.InitialState, req.States, req.Context)
	if err != nil {
		writeJSON(w, s.log, statusForDomainErr(err), map[string]string{"error": err.Error()})
		return
	}
	if req.MaxTotalIterations > 0 {
		def.MaxTotalIterations = req.MaxTotalIterations
	}
	if req.MaxExecutionDurationS > 0 {
		def.TimeoutSeconds = req.MaxExecutionDurationS
	}
	if err := s.deps.Workflows.Register(r.Context(), def); err != nil {
		writeJSON(w, s.log, statusForDomainErr(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, s.log, http.StatusCreated, map[string]string{"workflow_id": def.WorkflowID.String()})
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseID(r.PathValue("id"))
	if err != nil {
		writeJSON(w, s.log, http.StatusBadRequest, map[string]string{"error": "invalid workflow id"})
		return
	}
	def, err := s.deps.Workflows.Get(r.Context(), id)
	if err != nil {
		writeJSON(w, s.log, statusForDomainErr(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, s.log, http.StatusOK, def)
}

type registerAgentRequest struct {
	Name     string               `json:"name"`
	Version  string               `json:"version"`
	Manifest domain.AgentManifest `json:"manifest"`
}

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req registerAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, s.log, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	agent := domain.NewAgent(req.Name, req.Version, req.Manifest)
	if err := s.deps.Agents.Register(r.Context(), agent); err != nil {
		writeJSON(w, s.log, statusForDomainErr(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, s.log, http.StatusCreated, map[string]string{"agent_id": agent.AgentID.String()})
}

type addRegistrationRequest struct {
	IntentPattern string `json:"intent_pattern"`
	WorkflowID    string `json:"workflow_id"`
	Priority      uint32 `json:"priority"`
	Enabled       bool   `json:"enabled"`
}

func (s *Server) handleAddRegistration(w http.ResponseWriter, r *http.Request) {
	var req addRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, s.log, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	workflowID, err := domain.ParseID(req.WorkflowID)
	if err != nil {
		writeJSON(w, s.log, http.StatusBadRequest, map[string]string{"error": "invalid workflow_id"})
		return
	}
	reg := &domain.WorkflowRegistration{
		RegistrationID: domain.NewID(),
		IntentPattern:  req.IntentPattern,
		WorkflowID:     workflowID,
		Priority:       req.Priority,
		Enabled:        req.Enabled,
	}
	if err := s.deps.Registrations.Add(r.Context(), reg); err != nil {
		writeJSON(w, s.log, statusForDomainErr(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, s.log, http.StatusCreated, map[string]string{"registration_id": reg.RegistrationID.String()})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseID(r.PathValue("id"))
	if err != nil {
		writeJSON(w, s.log, http.StatusBadRequest, map[string]string{"error": "invalid execution id"})
		return
	}
	exec, err := s.deps.Executions.Get(r.Context(), id)
	if err != nil {
		writeJSON(w, s.log, statusForDomainErr(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, s.log, http.StatusOK, map[string]any{
		"execution_id":   exec.ExecutionID().String(),
		"workflow_id":    exec.WorkflowID().String(),
		"status":         exec.Status(),
		"current_state":  exec.CurrentState(),
		"state_history":  exec.StateHistory(),
		"iteration_count": exec.IterationCount(),
		"error_code":     exec.ErrorCode(),
		"error_message":  exec.ErrorMessage(),
	})
}

type manualSubmitRequest struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) handleManualSubmit(w http.ResponseWriter, r *http.Request) {
	if s.deps.Manual == nil {
		writeJSON(w, s.log, http.StatusServiceUnavailable, map[string]string{"error": "manual intake not configured"})
		return
	}
	var req manualSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, s.log, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	exec, err := s.deps.Manual.Submit(r.Context(), req.Content, req.Metadata)
	if err != nil {
		writeJSON(w, s.log, statusForDomainErr(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, s.log, http.StatusAccepted, map[string]string{"execution_id": exec.ExecutionID().String()})
}

type respondHumanRequest struct {
	Decision string         `json:"decision"`
	Feedback *string        `json:"feedback"`
	Data     map[string]any `json:"data"`
}

// handleRespondHuman is the JWT-authenticated respond_human webhook: it
// resolves a pending Human state and signals the Durability Runtime to
// resume the suspended execution.
func (s *Server) handleRespondHuman(w http.ResponseWriter, r *http.Request) {
	requestID, err := domain.ParseID(r.PathValue("request_id"))
	if err != nil {
		writeJSON(w, s.log, http.StatusBadRequest, map[string]string{"error": "invalid request_id"})
		return
	}
	var req respondHumanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, s.log, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	resp := domain.HumanResponse{Decision: req.Decision, Feedback: req.Feedback, Data: req.Data}
	if err := s.deps.Gate.Respond(r.Context(), requestID, resp); err != nil {
		writeJSON(w, s.log, statusForDomainErr(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, s.log, http.StatusOK, map[string]string{"status": "resolved"})
}
