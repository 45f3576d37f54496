package main

import (
	"context"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/workflow"

	"github.com/aegis-run/orchestrator/internal/domain"
	"github.com/aegis-run/orchestrator/internal/infrastructure/durability"
)

// newTemporalWorkflowFunc returns the function registered with the
// Temporal worker (cmd/server's only Temporal workflow type): it captures
// deps once at startup, builds a fresh TemporalRuntime from the
// workflow.Context Temporal hands it — workflow-scoped per
// durability.TemporalRuntime's own contract — and runs the interpreter
// against it. Store calls inside (executions.Get, workflows.Get, and
// everything the Interpreter itself does) run against context.Background()
// rather than wfCtx, since they're real I/O the workflow.Context's replay
// semantics were never meant to cover — the same compromise
// TemporalRuntime's RecordSideEffect doc comment already accepts in
// exchange for keeping the interpreter's own code oblivious to which
// DurabilityRuntime is backing it.
func newTemporalWorkflowFunc(deps interpreterDeps) func(workflow.Context, domain.ID, domain.ID) error {
	return func(wfCtx workflow.Context, executionID, workflowID domain.ID) error {
		rt := durability.NewTemporalRuntime(wfCtx)
		interp := deps.build(rt)

		ctx := context.Background()
		exec, err := deps.executions.Get(ctx, executionID)
		if err != nil {
			return err
		}
		def, err := deps.workflows.Get(ctx, workflowID)
		if err != nil {
			return err
		}
		return interp.Run(ctx, exec, def)
	}
}

// temporalDriver starts wfFn as a new Temporal workflow execution keyed by
// the AEGIS execution ID, so a later respond_human call can signal it by
// that same ID (see durability.TemporalSignaler).
func temporalDriver(c client.Client, taskQueue string, wfFn func(workflow.Context, domain.ID, domain.ID) error, log zerolog.Logger) executionDriver {
	return func(ctx context.Context, exec *domain.WorkflowExecution, def *domain.WorkflowDefinition) {
		opts := client.StartWorkflowOptions{
			ID:        exec.ExecutionID().String(),
			TaskQueue: taskQueue,
		}
		if _, err := c.ExecuteWorkflow(context.Background(), opts, wfFn, exec.ExecutionID(), exec.WorkflowID()); err != nil {
			log.Error().Err(err).Str("execution_id", exec.ExecutionID().String()).Msg("failed to start temporal workflow")
		}
	}
}
