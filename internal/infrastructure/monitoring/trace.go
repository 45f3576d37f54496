package monitoring

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aegis-run/orchestrator/internal/domain"
)

const tracerName = "github.com/aegis-run/orchestrator/internal/infrastructure/monitoring"

// ExecutionTrace is the OpenTelemetry-backed ExecutionObserver. It opens
// one span per workflow execution and one child span per state visit, so
// a trace backend renders one root span per execution and one child span
// per state without this package having to maintain its own event buffer.
type ExecutionTrace struct {
	tracer trace.Tracer

	mu         sync.Mutex
	rootSpans  map[domain.ID]trace.Span
	stateSpans map[stateSpanKey]trace.Span
}

type stateSpanKey struct {
	executionID domain.ID
	stateName   string
}

// NewExecutionTrace returns a trace observer using the global OTel tracer
// provider; call otel.SetTracerProvider before constructing it in
// production so spans reach a real exporter.
func NewExecutionTrace() *ExecutionTrace {
	return &ExecutionTrace{
		tracer:     otel.Tracer(tracerName),
		rootSpans:  make(map[domain.ID]trace.Span),
		stateSpans: make(map[stateSpanKey]trace.Span),
	}
}

func (t *ExecutionTrace) OnWorkflowStarted(executionID, workflowID domain.ID) {
	_, span := t.tracer.Start(context.Background(), "workflow.execution",
		trace.WithAttributes(
			attribute.String("execution_id", executionID.String()),
			attribute.String("workflow_id", workflowID.String()),
		))
	t.mu.Lock()
	t.rootSpans[executionID] = span
	t.mu.Unlock()
}

func (t *ExecutionTrace) OnWorkflowCompleted(executionID domain.ID, duration time.Duration) {
	t.mu.Lock()
	span, ok := t.rootSpans[executionID]
	delete(t.rootSpans, executionID)
	t.mu.Unlock()
	if ok {
		span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()))
		span.SetStatus(codes.Ok, "")
		span.End()
	}
}

func (t *ExecutionTrace) OnWorkflowFailed(executionID domain.ID, code domain.ErrorCode, err error, duration time.Duration) {
	t.mu.Lock()
	span, ok := t.rootSpans[executionID]
	delete(t.rootSpans, executionID)
	t.mu.Unlock()
	if ok {
		span.SetAttributes(
			attribute.Int64("duration_ms", duration.Milliseconds()),
			attribute.String("error_code", string(code)),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
	}
}

func (t *ExecutionTrace) OnStateEntered(executionID domain.ID, stateName string, kind domain.StateKind) {
	_, span := t.tracer.Start(context.Background(), "state."+stateName,
		trace.WithAttributes(
			attribute.String("execution_id", executionID.String()),
			attribute.String("state", stateName),
			attribute.String("kind", string(kind)),
		))
	t.mu.Lock()
	t.stateSpans[stateSpanKey{executionID, stateName}] = span
	t.mu.Unlock()
}

func (t *ExecutionTrace) OnStateExited(executionID domain.ID, stateName string, duration time.Duration) {
	key := stateSpanKey{executionID, stateName}
	t.mu.Lock()
	span, ok := t.stateSpans[key]
	delete(t.stateSpans, key)
	t.mu.Unlock()
	if ok {
		span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()))
		span.End()
	}
}
