// Package router implements the Stimulus Router: it classifies an incoming
// free-text Stimulus through a dedicated router agent run as a single-shot
// iteration session, matches the resulting intent against the workflow
// registry, and starts a new Workflow Execution.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aegis-run/orchestrator/internal/application/iteration"
	"github.com/aegis-run/orchestrator/internal/domain"
	"github.com/aegis-run/orchestrator/internal/infrastructure/monitoring"
)

// maxClassifyAttempts bounds the identical-input retry allowed on an
// unparseable router-agent response before falling back to a default
// intent or failing outright.
const maxClassifyAttempts = 3

// classification is the exact JSON shape the router agent must emit:
// {intent, confidence, parameters}.
type classification struct {
	Intent     string         `json:"intent"`
	Confidence float64        `json:"confidence"`
	Parameters map[string]any `json:"parameters"`
}

// Router owns the end-to-end Stimulus → Workflow Execution pipeline.
type Router struct {
	RouterAgentRef string
	DefaultIntent  string // optional fallback intent when classification stays unparseable
	MaxConcurrent  int    // backpressure limit on concurrently running executions; default handled by caller via config

	Agents        domain.AgentStore
	Registrations domain.RegistrationStore
	Workflows     domain.WorkflowStore
	Executions    domain.ExecutionStore
	Events        domain.EventLogStore

	Loop     *iteration.Loop
	Observer *monitoring.ObserverManager
}

// Route classifies stim, matches it to a registered workflow, and starts
// the execution. The stimulus itself is mutated with its Classification
// on success.
func (r *Router) Route(ctx context.Context, stim *domain.Stimulus) (*domain.WorkflowExecution, error) {
	if err := r.checkCapacity(ctx); err != nil {
		return nil, err
	}

	r.emit(ctx, stim.StimulusID, 1, domain.EventStimulusReceived, stimulusReceivedPayload{
		Source:  stim.Source,
		Content: stim.Content,
	})

	class, err := r.classify(ctx, stim)
	if err != nil {
		return nil, err
	}

	reg, err := r.lookupRegistration(ctx, class.Intent)
	if err != nil {
		return nil, err
	}

	stim.Classification = &domain.Classification{
		Intent:       class.Intent,
		Confidence:   class.Confidence,
		WorkflowID:   reg.WorkflowID,
		Parameters:   class.Parameters,
		ClassifiedAt: stim.ReceivedAt,
	}
	r.emit(ctx, stim.StimulusID, 2, domain.EventStimulusClassified, stimulusClassifiedPayload{
		Intent:     class.Intent,
		Confidence: class.Confidence,
		WorkflowID: reg.WorkflowID,
		LowConfidence: class.Confidence < 0.5,
	})

	def, err := r.Workflows.Get(ctx, reg.WorkflowID)
	if err != nil {
		return nil, err
	}

	input := map[string]any{
		"stimulus": map[string]any{
			"id":      stim.StimulusID.String(),
			"content": stim.Content,
			"source":  string(stim.Source),
		},
		"user_input":     stim.Content,
		"classification": class.Parameters,
	}
	exec := domain.NewWorkflowExecution(def.WorkflowID, def.InitialState, input)

	if err := r.persist(ctx, exec); err != nil {
		return nil, err
	}
	exec.RecordEvent(domain.EventStimulusRouted, stimulusRoutedPayload{
		StimulusID:  stim.StimulusID,
		ExecutionID: exec.ExecutionID(),
	})
	if err := r.persist(ctx, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// checkCapacity rejects new stimuli once running executions reach
// MaxConcurrent.
func (r *Router) checkCapacity(ctx context.Context) error {
	if r.MaxConcurrent <= 0 || r.Executions == nil {
		return nil
	}
	running, err := r.Executions.ListRunning(ctx)
	if err != nil {
		return err
	}
	if len(running) >= r.MaxConcurrent {
		return domain.NewDomainError(domain.ErrOverCapacity, "max_concurrent_executions reached", nil)
	}
	return nil
}

// classify invokes the router agent with max_iterations=1 and no judges,
// retrying on identical input up to maxClassifyAttempts when the response
// fails to parse, then falling back to DefaultIntent if configured.
func (r *Router) classify(ctx context.Context, stim *domain.Stimulus) (classification, error) {
	agent, err := r.Agents.GetByName(ctx, r.RouterAgentRef)
	if err != nil {
		return classification{}, err
	}
	if !agent.IsInvocable() {
		return classification{}, domain.NewDomainError(domain.ErrCodeInvalidState, "router agent is not invocable", nil)
	}

	var lastErr error
	for attempt := 0; attempt < maxClassifyAttempts; attempt++ {
		sess, runErr := r.Loop.Run(ctx, agent, stim.StimulusID, nil, stim.Content, nil, 1, false)
		if runErr != nil {
			lastErr = runErr
			continue
		}
		if sess.FinalOutput == nil {
			lastErr = fmt.Errorf("router agent produced no output")
			continue
		}
		class, parseErr := parseClassification(*sess.FinalOutput)
		if parseErr == nil {
			return class, nil
		}
		lastErr = parseErr
	}

	if r.DefaultIntent != "" {
		return classification{Intent: r.DefaultIntent, Confidence: 0, Parameters: map[string]any{}}, nil
	}
	return classification{}, domain.NewDomainError(domain.ErrRouterUnparseable, "router agent output did not parse after retries", lastErr)
}

func parseClassification(raw string) (classification, error) {
	var c classification
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &c); err != nil {
		return classification{}, err
	}
	if c.Intent == "" {
		return classification{}, fmt.Errorf("router output missing intent")
	}
	return c, nil
}

// lookupRegistration's match order: exact matches win over wildcard
// matches; within each tier, highest priority wins, ties broken by
// ascending registration_id.
func (r *Router) lookupRegistration(ctx context.Context, intent string) (domain.WorkflowRegistration, error) {
	regs, err := r.Registrations.ListEnabled(ctx)
	if err != nil {
		return domain.WorkflowRegistration{}, err
	}

	var exact, wildcard []domain.WorkflowRegistration
	for _, reg := range regs {
		if !reg.Matches(intent) {
			continue
		}
		if reg.IntentPattern == intent {
			exact = append(exact, reg)
		} else {
			wildcard = append(wildcard, reg)
		}
	}

	byPriorityThenID := func(list []domain.WorkflowRegistration) domain.WorkflowRegistration {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Priority != list[j].Priority {
				return list[i].Priority > list[j].Priority
			}
			return list[i].RegistrationID.String() < list[j].RegistrationID.String()
		})
		return list[0]
	}

	if len(exact) > 0 {
		return byPriorityThenID(exact), nil
	}
	if len(wildcard) > 0 {
		return byPriorityThenID(wildcard), nil
	}
	return domain.WorkflowRegistration{}, domain.NewDomainError(domain.ErrCodeNotFound, fmt.Sprintf("no enabled workflow registered for intent %q", intent), nil)
}

func (r *Router) persist(ctx context.Context, exec *domain.WorkflowExecution) error {
	if r.Events != nil {
		if err := r.Events.Append(ctx, exec.UncommittedEvents()...); err != nil {
			return err
		}
	}
	exec.MarkCommitted()
	if r.Executions != nil {
		return r.Executions.Save(ctx, exec)
	}
	return nil
}

// emit appends a stimulus-phase event directly to the Event Log, keyed by
// the stimulus id rather than an execution id: StimulusReceived and
// StimulusClassified happen before any execution exists, so the stimulus
// id is the only correlation key available yet.
// seq distinguishes the two stimulus-phase events under that shared key
// (the store enforces uniqueness per (execution_id, sequence_number), so
// each phase needs its own fixed sequence number: 1 for Received, 2 for
// Classified). StimulusRouted, by contrast, is raised through the
// execution aggregate itself once one exists (see Route above) so it
// takes its place in that execution's own versioned event stream.
func (r *Router) emit(ctx context.Context, stimulusID domain.ID, seq uint64, eventType domain.EventType, payload any) {
	if r.Events == nil {
		return
	}
	entry, err := domain.NewEventLogEntry(stimulusID, seq, eventType, payload, nil)
	if err != nil {
		return
	}
	_ = r.Events.Append(ctx, entry)
}

type stimulusReceivedPayload struct {
	Source  domain.StimulusSource `json:"source"`
	Content string                `json:"content"`
}

type stimulusClassifiedPayload struct {
	Intent        string    `json:"intent"`
	Confidence    float64   `json:"confidence"`
	WorkflowID    domain.ID `json:"workflow_id"`
	LowConfidence bool      `json:"low_confidence,omitempty"`
}

type stimulusRoutedPayload struct {
	StimulusID  domain.ID `json:"stimulus_id"`
	ExecutionID domain.ID `json:"execution_id"`
}
