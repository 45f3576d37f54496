package main

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aegis-run/orchestrator/internal/application/blackboard"
	"github.com/aegis-run/orchestrator/internal/application/expreval"
	"github.com/aegis-run/orchestrator/internal/application/humangate"
	"github.com/aegis-run/orchestrator/internal/application/interpreter"
	"github.com/aegis-run/orchestrator/internal/application/iteration"
	"github.com/aegis-run/orchestrator/internal/domain"
	"github.com/aegis-run/orchestrator/internal/infrastructure/durability"
	"github.com/aegis-run/orchestrator/internal/infrastructure/monitoring"
)

// interpreterDeps holds every Interpreter collaborator that stays fixed
// across executions; only Durability varies: a TemporalRuntime is built per
// Temporal workflow invocation (see durability.TemporalRuntime's own doc
// comment), while localDriver shares one TestRuntime across the whole
// process. build constructs a fresh
// Interpreter struct literal around a given runtime, the same way the
// teacher builds a fresh WorkflowEngine invocation per run rather than
// keeping mutable per-execution state on a shared singleton.
type interpreterDeps struct {
	workflows  domain.WorkflowStore
	agents     domain.AgentStore
	events     domain.EventLogStore
	executions domain.ExecutionStore
	isolation  domain.IsolationProvider
	loop       *iteration.Loop
	gate       *humangate.Gate
	renderer   *blackboard.Renderer
	eval       *expreval.Evaluator
	observer   *monitoring.ObserverManager
}

func (d interpreterDeps) build(rt domain.DurabilityRuntime) *interpreter.Interpreter {
	return &interpreter.Interpreter{
		Workflows:  d.workflows,
		Agents:     d.agents,
		Events:     d.events,
		Executions: d.executions,
		Durability: rt,
		Isolation:  d.isolation,
		Loop:       d.loop,
		Gate:       d.gate,
		Renderer:   d.renderer,
		Eval:       d.eval,
		Observer:   d.observer,
	}
}

// executionDriver advances a freshly-routed execution to completion (or to
// a human-gate suspension) once the Stimulus Router has persisted it.
// router.Router.Route only classifies, matches, and checkpoints a new
// WorkflowExecution — it never calls interpreter.Run itself (by design:
// the router and interpreter are independently testable C7/C6
// components) — so something downstream of routing has to close that
// gap. The two implementations below are that something: one drives the
// interpreter in-process against a TestRuntime, the other starts a
// Temporal workflow that does the same against a TemporalRuntime.
type executionDriver func(ctx context.Context, exec *domain.WorkflowExecution, def *domain.WorkflowDefinition)

// drivingRouter decorates a *router.Router with an executionDriver so
// stimulussource.Webhook and stimulussource.Manual — which only know
// about the narrow stimulussource.Router seam — transparently get a
// running execution out of every successful Route call.
type drivingRouter struct {
	inner     router
	workflows domain.WorkflowStore
	log       zerolog.Logger
	drive     executionDriver
}

// router is the narrow seam this file depends on instead of importing
// internal/application/router's concrete type by name in every signature
// below — Route is all drivingRouter needs.
type router interface {
	Route(ctx context.Context, stim *domain.Stimulus) (*domain.WorkflowExecution, error)
}

func newDrivingRouter(inner router, workflows domain.WorkflowStore, log zerolog.Logger, drive executionDriver) *drivingRouter {
	return &drivingRouter{inner: inner, workflows: workflows, log: log, drive: drive}
}

func (d *drivingRouter) Route(ctx context.Context, stim *domain.Stimulus) (*domain.WorkflowExecution, error) {
	exec, err := d.inner.Route(ctx, stim)
	if err != nil {
		return exec, err
	}
	def, err := d.workflows.Get(ctx, exec.WorkflowID())
	if err != nil {
		d.log.Error().Err(err).Str("execution_id", exec.ExecutionID().String()).Msg("routed execution but could not load its workflow definition; execution stays parked")
		return exec, nil
	}
	d.drive(context.Background(), exec, def)
	return exec, nil
}

// localDriver runs the interpreter in-process against a single shared
// TestRuntime — a non-Temporal path for local development, CI, and tests.
// One TestRuntime for the whole process is simpler than one per execution;
// the interpreter names each System-state side effect by execution id,
// state name and iteration count, so executions sharing the runtime's
// result cache never read each other's results.
func localDriver(deps interpreterDeps, rt *durability.TestRuntime, log zerolog.Logger) executionDriver {
	interp := deps.build(rt)
	return func(ctx context.Context, exec *domain.WorkflowExecution, def *domain.WorkflowDefinition) {
		go func() {
			if err := interp.Run(ctx, exec, def); err != nil {
				log.Error().Err(err).Str("execution_id", exec.ExecutionID().String()).Msg("execution run failed")
			}
		}()
	}
}
