// Package iteration implements the Agent Iteration Loop: it drives up to
// max_iterations Model Invocation calls for one agent, optionally injecting
// Cortex patterns before the first attempt, optionally validating each
// output through the Multi-Judge Validator, and reinforcing Cortex on a
// passing final iteration.
package iteration

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aegis-run/orchestrator/internal/application/validator"
	"github.com/aegis-run/orchestrator/internal/domain"
	"github.com/aegis-run/orchestrator/internal/infrastructure/monitoring"
)

// CortexParams configures the pattern-injection search: how many patterns
// to retrieve, the minimum resonance to consider, and α, the weight given
// to a pattern's success_score·weight in its resonance score.
type CortexParams struct {
	Alpha        float64
	K            int
	MinResonance float64
}

// DefaultCortexParams returns conservative defaults: top 5 patterns with
// resonance at least 0.7, α 0.1.
func DefaultCortexParams() CortexParams {
	return CortexParams{Alpha: 0.1, K: 5, MinResonance: 0.7}
}

// Loop drives the Agent Iteration Loop. A nil Patterns or Embedder disables
// Cortex injection/reinforcement entirely; Pattern Store unavailability is
// non-fatal to an iteration session.
type Loop struct {
	Invoker   domain.ModelInvoker
	Patterns  domain.PatternStore
	Embedder  Embedder
	Validator *validator.Validator
	Observer  *monitoring.ObserverManager
	Cortex    CortexParams
}

// Embedder turns free text into the embedding space the Pattern Store
// indexes on. The embedding model itself is an external collaborator, so
// this is a narrow seam the infrastructure layer satisfies however it
// wishes — a real embedding API, or a hash-based deterministic fake for
// tests.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Run executes the full C5 algorithm for one agent invocation, returning
// the completed AgentExecution. The returned error is non-nil only when the
// session fails outright (no iterations produced one); the 1-based
// iteration log is still inspectable via the returned AgentExecution.
func (l *Loop) Run(
	ctx context.Context,
	agent *domain.Agent,
	executionID domain.ID,
	parentExecutionID *domain.ID,
	initialInput string,
	judges []domain.JudgeConfig,
	maxIterations int,
	useCortex bool,
) (*domain.AgentExecution, error) {
	sess := domain.NewAgentExecution(agent.AgentID, parentExecutionID, initialInput, maxIterations)

	rendered := initialInput
	if useCortex && l.Patterns != nil && l.Embedder != nil {
		rendered = l.injectPatterns(ctx, executionID, rendered)
	}

	for i := 0; i < sess.MaxIterations; i++ {
		idx, err := sess.BeginIteration(rendered)
		if err != nil {
			break
		}
		if l.Observer != nil {
			l.Observer.NotifyIterationStarted(executionID, agent.AgentID, idx)
		}

		output, invokeErr := l.invoke(ctx, agent, rendered)
		if invokeErr != nil {
			derr := classifyInvocationError(invokeErr)
			sess.FailIteration(derr)
			if l.Observer != nil {
				l.Observer.NotifyIterationFailed(executionID, agent.AgentID, idx, derr)
			}
			if derr.Retryable && idx < sess.MaxIterations {
				continue
			}
			sess.FinishFailed()
			return sess, derr
		}

		if len(judges) == 0 {
			sess.CompleteIteration(output, nil)
			sess.Finish(output)
			if l.Observer != nil {
				l.Observer.NotifyIterationCompleted(executionID, agent.AgentID, idx, domain.VerdictPass, 1.0)
			}
			l.reinforce(ctx, rendered, output, 1.0)
			return sess, nil
		}

		gradient, err := l.validateOutput(ctx, agent, rendered, output, judges)
		if err != nil {
			sess.FailIteration(err)
			if l.Observer != nil {
				l.Observer.NotifyIterationFailed(executionID, agent.AgentID, idx, err)
			}
			sess.FinishFailed()
			return sess, err
		}
		if gradient.Verdict == domain.VerdictRefine && idx == sess.MaxIterations {
			// No iterations remain to act on a refine verdict, so the last
			// attempt is recorded as a fail rather than left to linger as an
			// unresolved refine.
			gradient.Verdict = domain.VerdictFail
		}
		sess.CompleteIteration(output, &gradient)
		if l.Observer != nil {
			l.Observer.NotifyIterationCompleted(executionID, agent.AgentID, idx, gradient.Verdict, gradient.Score)
		}

		switch gradient.Verdict {
		case domain.VerdictPass:
			sess.Finish(output)
			l.reinforce(ctx, rendered, output, gradient.Score)
			return sess, nil
		case domain.VerdictFail:
			sess.FinishFailed()
			return sess, nil
		default: // refine
			rendered = refinementPrompt(rendered, gradient)
			sess.ApplyRefinement()
			if l.Observer != nil {
				l.Observer.NotifyRefinementApplied(executionID, agent.AgentID, idx)
			}
		}
	}

	sess.FinishFailed()
	return sess, domain.NewDomainError(domain.ErrCodeInvariantViolated, "iteration budget exhausted without a verdict", nil)
}

func (l *Loop) invoke(ctx context.Context, agent *domain.Agent, rendered string) (string, error) {
	result, err := l.Invoker.Invoke(ctx, agent.Manifest.LLM, rendered, nil)
	if err != nil {
		return "", err
	}
	return result.Content, nil
}

// validateOutput invokes every configured judge through its own single-shot
// invocation against a fixed validation template, discarding any judge
// whose reply doesn't parse rather than failing the whole session.
func (l *Loop) validateOutput(ctx context.Context, agent *domain.Agent, task, output string, judges []domain.JudgeConfig) (domain.GradientResult, *domain.DomainError) {
	prompt := validationPrompt(task, output)
	var scores []domain.JudgeScore
	for _, j := range judges {
		judgeAgent := &domain.Agent{AgentID: domain.NewID(), Manifest: domain.AgentManifest{LLM: domain.LLMConfig{
			Provider:     "judge",
			Model:        j.AgentRef,
			SystemPrompt: "You are an impartial judge. Respond only with JSON: {\"score\":0..1,\"confidence\":0..1,\"reasoning\":\"...\"}.",
		}}}
		raw, err := l.invoke(ctx, judgeAgent, prompt)
		if err != nil {
			continue
		}
		score, err := validator.ParseJudgeOutput(j.AgentRef, j.Weight, raw)
		if err != nil {
			continue
		}
		scores = append(scores, score)
	}
	if len(scores) == 0 {
		return domain.GradientResult{}, domain.NewDomainError(domain.ErrValidationUnavailable, "no judge produced a usable score", nil)
	}
	return l.Validator.Aggregate(scores), nil
}

func validationPrompt(task, output string) string {
	return fmt.Sprintf("Task:\n%s\n\nOutput to evaluate:\n%s", task, output)
}

// refinementPrompt appends a structured critique derived from the
// aggregated judge reasoning.
func refinementPrompt(rendered string, gradient domain.GradientResult) string {
	var sb strings.Builder
	sb.WriteString(rendered)
	sb.WriteString("\n\n--- Revision requested ---\n")
	sb.WriteString(fmt.Sprintf("Prior score: %.2f. Critique: %s\n", gradient.Score, gradient.Reasoning))
	sb.WriteString("Revise the output to address the critique above.")
	return sb.String()
}

func classifyInvocationError(err error) *domain.DomainError {
	if domain.IsRetryable(err) {
		return domain.NewRetryableError(domain.ErrAgentInvocation, "agent invocation failed", err)
	}
	if domain.CodeOf(err) != "" {
		return domain.NewDomainError(domain.CodeOf(err), "agent invocation failed", err)
	}
	return domain.NewDomainError(domain.ErrAgentInvocation, "agent invocation failed", err)
}

// injectPatterns appends a "Prior patterns" block to rendered input,
// best-effort: a Pattern Store failure is non-fatal.
func (l *Loop) injectPatterns(ctx context.Context, executionID domain.ID, rendered string) string {
	embedding, err := l.Embedder.Embed(ctx, rendered)
	if err != nil {
		return rendered
	}
	results, err := l.Patterns.Search(ctx, embedding, l.Cortex.K, l.Cortex.MinResonance, l.Cortex.Alpha)
	if err != nil || len(results) == 0 {
		return rendered
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Resonance > results[j].Resonance })

	var sb strings.Builder
	sb.WriteString(rendered)
	sb.WriteString("\n\n--- Prior patterns ---\n")
	for _, r := range results {
		sb.WriteString(fmt.Sprintf("- [%s] %s (resonance %.2f)\n", r.Pattern.ErrorSignature.Type, r.Pattern.Solution.Description, r.Resonance))
		if l.Observer != nil {
			l.Observer.NotifyPatternInjected(executionID, r.Pattern.PatternID, r.Resonance)
		}
	}
	return sb.String()
}

// outputHint is the optional structured pattern an agent may surface in its
// output to make reinforcement targeted.
type outputHint struct {
	ErrorSignature *domain.ErrorSignature `json:"error_signature"`
	Solution       *domain.Solution       `json:"solution"`
}

// reinforce stores or reinforces a pattern derived from this session's
// final output, best-effort.
func (l *Loop) reinforce(ctx context.Context, rendered, output string, observedSuccess float64) {
	if l.Patterns == nil || l.Embedder == nil {
		return
	}
	var hint outputHint
	if err := json.Unmarshal([]byte(output), &hint); err != nil || hint.ErrorSignature == nil || hint.Solution == nil {
		return
	}
	embedding, err := l.Embedder.Embed(ctx, rendered)
	if err != nil {
		return
	}
	patternID, err := l.Patterns.Store(ctx, *hint.ErrorSignature, *hint.Solution, embedding, nil, 0.95, 10.0)
	if err != nil {
		return
	}
	_ = l.Patterns.Reinforce(ctx, patternID, observedSuccess, 0.2, 10.0)
	if l.Observer != nil {
		l.Observer.NotifyPatternReinforced(patternID, observedSuccess)
	}
}
