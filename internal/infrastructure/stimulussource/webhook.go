// Package stimulussource adapts external intake channels — an inbound HTTP
// request, a manually-submitted string — into domain.Stimulus values handed
// to the Stimulus Router. Each intake constructs a domain.Stimulus and hands
// it to a Router rather than passing along a bare map[string]any payload.
package stimulussource

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aegis-run/orchestrator/internal/domain"
)

// Router is the narrow seam stimulussource depends on instead of importing
// internal/application/router directly by concrete type — keeps this
// package testable with a fake and avoids tying intake wiring to the
// router's full construction (Loop, stores, observer).
type Router interface {
	Route(ctx context.Context, stim *domain.Stimulus) (*domain.WorkflowExecution, error)
}

// webhookRequest is the JSON body a webhook caller submits.
type webhookRequest struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

type webhookResponse struct {
	StimulusID  string `json:"stimulus_id"`
	ExecutionID string `json:"execution_id,omitempty"`
	Intent      string `json:"intent,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Webhook is an HTTP-request-triggered Stimulus-Router intake endpoint.
type Webhook struct {
	Router Router
	Log    zerolog.Logger
}

// Handler returns an http.HandlerFunc that decodes a webhook request into a
// domain.Stimulus, routes it, and replies with the resulting intent and
// execution id.
func (w *Webhook) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req webhookRequest
		if r.Body != nil {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(rw, http.StatusBadRequest, webhookResponse{Error: "invalid request body"})
				return
			}
		}
		if req.Content == "" {
			writeJSON(rw, http.StatusBadRequest, webhookResponse{Error: "content is required"})
			return
		}

		stim := domain.NewStimulus(domain.SourceWebhook, req.Content, req.Metadata)
		exec, err := w.Router.Route(r.Context(), stim)
		if err != nil {
			w.Log.Warn().Err(err).Str("stimulus_id", stim.StimulusID.String()).Msg("stimulus routing failed")
			writeJSON(rw, statusForError(err), webhookResponse{
				StimulusID: stim.StimulusID.String(),
				Error:      err.Error(),
			})
			return
		}

		resp := webhookResponse{StimulusID: stim.StimulusID.String(), ExecutionID: exec.ExecutionID().String()}
		if stim.Classification != nil {
			resp.Intent = stim.Classification.Intent
		}
		writeJSON(rw, http.StatusAccepted, resp)
	}
}

func statusForError(err error) int {
	switch domain.CodeOf(err) {
	case domain.ErrOverCapacity:
		return http.StatusTooManyRequests
	case domain.ErrCodeNotFound:
		return http.StatusNotFound
	case domain.ErrRouterUnparseable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
