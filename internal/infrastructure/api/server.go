// Package api is AEGIS's HTTP surface: workflow/agent/registry
// registration, execution lookup, the respond_human webhook, and the
// stimulus/websocket intake points built separately in stimulussource and
// websocket. Server wraps an http.ServeMux behind ServeHTTP, with routes
// registered using Go 1.22 "METHOD /path" patterns and a small middleware
// chain applied once in NewServer.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aegis-run/orchestrator/internal/application/humangate"
	"github.com/aegis-run/orchestrator/internal/domain"
	"github.com/aegis-run/orchestrator/internal/infrastructure/stimulussource"
	"github.com/aegis-run/orchestrator/internal/infrastructure/websocket"
)

// Server is the composition root's HTTP façade.
type Server struct {
	mux  *http.ServeMux
	log  zerolog.Logger
	deps Dependencies
}

// Dependencies are every collaborator the HTTP layer needs; the
// composition root (cmd/server) builds these once at startup.
type Dependencies struct {
	Workflows     domain.WorkflowStore
	Agents        domain.AgentStore
	Registrations domain.RegistrationStore
	Executions    domain.ExecutionStore
	Gate          *humangate.Gate
	Webhook       *stimulussource.Webhook
	Manual        *stimulussource.Manual
	WSHandler     *websocket.Handler
	Auth          websocket.Authenticator
}

// Config tunes the middleware chain. CORS and panic recovery are always
// on; RequireAuthForHumanGate is the one switch left to the caller,
// since it depends on whether a JWT signing secret was configured.
type Config struct {
	RequireAuthForHumanGate bool
}

// NewServer builds the mux, registers every route, and wraps it in the
// middleware chain.
func NewServer(deps Dependencies, log zerolog.Logger, cfg Config) *Server {
	s := &Server{mux: http.NewServeMux(), log: log, deps: deps}
	s.routes(cfg)
	return s
}

func (s *Server) routes(cfg Config) {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("POST /api/v1/workflows", s.handleRegisterWorkflow)
	s.mux.HandleFunc("GET /api/v1/workflows/{id}", s.handleGetWorkflow)

	s.mux.HandleFunc("POST /api/v1/agents", s.handleRegisterAgent)
	s.mux.HandleFunc("POST /api/v1/registrations", s.handleAddRegistration)

	s.mux.HandleFunc("GET /api/v1/executions/{id}", s.handleGetExecution)
	s.mux.HandleFunc("POST /api/v1/executions/manual", s.handleManualSubmit)

	if s.deps.Webhook != nil {
		s.mux.Handle("POST /api/v1/stimuli", s.deps.Webhook.Handler())
	}
	if s.deps.WSHandler != nil {
		s.mux.Handle("GET /ws", s.deps.WSHandler)
	}

	respondHuman := http.HandlerFunc(s.handleRespondHuman)
	if cfg.RequireAuthForHumanGate && s.deps.Auth != nil {
		respondHuman = s.authenticated(respondHuman)
	}
	s.mux.Handle("POST /api/v1/human/{request_id}/respond", respondHuman)
}

// ServeHTTP applies the middleware chain and dispatches into the mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var h http.Handler = s.mux
	h = corsMiddleware(h)
	h = recoveryMiddleware(s.log, h)
	h = loggingMiddleware(s.log, h)
	h.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.log, http.StatusOK, map[string]string{"status": "ok"})
}

// authenticated wraps next so it only runs once s.deps.Auth approves the
// request — the same bearer-token check shared with the websocket
// upgrade boundary.
func (s *Server) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.deps.Auth.Authenticate(r); err != nil {
			writeJSON(w, s.log, http.StatusUnauthorized, map[string]string{"error": err.Error()})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, log zerolog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func statusForDomainErr(err error) int {
	switch domain.CodeOf(err) {
	case domain.ErrCodeNotFound:
		return http.StatusNotFound
	case domain.ErrCodeAlreadyExists:
		return http.StatusConflict
	case domain.ErrCodeInvalidState:
		return http.StatusConflict
	case domain.ErrCodeInvalidInput:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
