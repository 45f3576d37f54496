package monitoring

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aegis-run/orchestrator/internal/domain"
)

// LoggingObserver is the structured-logging ExecutionObserver: every
// workflow/state/agent lifecycle callback is logged through zerolog with
// a consistent execution/duration/error field vocabulary.
type LoggingObserver struct {
	log zerolog.Logger
}

// NewLoggingObserver returns an observer that writes through log, tagged
// with component=monitoring.
func NewLoggingObserver(log zerolog.Logger) *LoggingObserver {
	return &LoggingObserver{log: log.With().Str("component", "monitoring").Logger()}
}

func (l *LoggingObserver) OnWorkflowStarted(executionID, workflowID domain.ID) {
	l.log.Info().
		Str("execution_id", executionID.String()).
		Str("workflow_id", workflowID.String()).
		Msg("workflow execution started")
}

func (l *LoggingObserver) OnWorkflowCompleted(executionID domain.ID, duration time.Duration) {
	l.log.Info().
		Str("execution_id", executionID.String()).
		Dur("duration", duration).
		Msg("workflow execution completed")
}

func (l *LoggingObserver) OnWorkflowFailed(executionID domain.ID, code domain.ErrorCode, err error, duration time.Duration) {
	l.log.Error().
		Str("execution_id", executionID.String()).
		Str("error_code", string(code)).
		Err(err).
		Dur("duration", duration).
		Msg("workflow execution failed")
}

func (l *LoggingObserver) OnStateEntered(executionID domain.ID, stateName string, kind domain.StateKind) {
	l.log.Debug().
		Str("execution_id", executionID.String()).
		Str("state", stateName).
		Str("kind", string(kind)).
		Msg("state entered")
}

func (l *LoggingObserver) OnStateExited(executionID domain.ID, stateName string, duration time.Duration) {
	l.log.Debug().
		Str("execution_id", executionID.String()).
		Str("state", stateName).
		Dur("duration", duration).
		Msg("state exited")
}

func (l *LoggingObserver) OnIterationStarted(executionID, agentID domain.ID, index int) {
	l.log.Debug().
		Str("execution_id", executionID.String()).
		Str("agent_id", agentID.String()).
		Int("iteration", index).
		Msg("iteration started")
}

func (l *LoggingObserver) OnIterationCompleted(executionID, agentID domain.ID, index int, verdict domain.IterationVerdict, score float64) {
	l.log.Info().
		Str("execution_id", executionID.String()).
		Str("agent_id", agentID.String()).
		Int("iteration", index).
		Str("verdict", string(verdict)).
		Float64("score", score).
		Msg("iteration completed")
}

func (l *LoggingObserver) OnIterationFailed(executionID, agentID domain.ID, index int, err error) {
	l.log.Warn().
		Str("execution_id", executionID.String()).
		Str("agent_id", agentID.String()).
		Int("iteration", index).
		Err(err).
		Msg("iteration failed")
}

func (l *LoggingObserver) OnRefinementApplied(executionID, agentID domain.ID, index int) {
	l.log.Debug().
		Str("execution_id", executionID.String()).
		Str("agent_id", agentID.String()).
		Int("iteration", index).
		Msg("refinement applied for next iteration")
}

func (l *LoggingObserver) OnHumanRequested(executionID, requestID domain.ID, stateName string) {
	l.log.Info().
		Str("execution_id", executionID.String()).
		Str("request_id", requestID.String()).
		Str("state", stateName).
		Msg("human input requested")
}

func (l *LoggingObserver) OnHumanResolved(executionID, requestID domain.ID, timedOut bool) {
	l.log.Info().
		Str("execution_id", executionID.String()).
		Str("request_id", requestID.String()).
		Bool("timed_out", timedOut).
		Msg("human input resolved")
}

func (l *LoggingObserver) OnPatternInjected(executionID, patternID domain.ID, resonance float64) {
	l.log.Debug().
		Str("execution_id", executionID.String()).
		Str("pattern_id", patternID.String()).
		Float64("resonance", resonance).
		Msg("pattern injected")
}

func (l *LoggingObserver) OnPatternReinforced(patternID domain.ID, newSuccessScore float64) {
	l.log.Debug().
		Str("pattern_id", patternID.String()).
		Float64("success_score", newSuccessScore).
		Msg("pattern reinforced")
}

func (l *LoggingObserver) OnPatternPruned(patternID domain.ID, finalWeight float64, reason string) {
	l.log.Info().
		Str("pattern_id", patternID.String()).
		Float64("final_weight", finalWeight).
		Str("reason", reason).
		Msg("pattern pruned")
}

func (l *LoggingObserver) OnVariableSet(executionID domain.ID, path string, value any) {
	l.log.Trace().
		Str("execution_id", executionID.String()).
		Str("path", path).
		Interface("value", value).
		Msg("blackboard variable set")
}

var _ ExecutionObserver = (*LoggingObserver)(nil)
