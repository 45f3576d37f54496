// Package interpreter implements the Workflow Interpreter: the step
// function that advances one Workflow Execution by exactly one state unit.
// Each call to Step loads the active state, dispatches by its StateKind,
// records the produced output, evaluates the state's ordered transitions,
// and advances current_state — the same single-step-at-a-time shape the
// Durability Runtime checkpoints between calls.
//
// The FSM walks a named-state graph one current_state at a time: dispatch
// switches over domain.StateKind, and transitions.go's evaluator walks a
// state's ordered transition list.
package interpreter

import (
	"context"
	"fmt"
	"time"

	"github.com/aegis-run/orchestrator/internal/application/blackboard"
	"github.com/aegis-run/orchestrator/internal/application/expreval"
	"github.com/aegis-run/orchestrator/internal/application/humangate"
	"github.com/aegis-run/orchestrator/internal/application/iteration"
	"github.com/aegis-run/orchestrator/internal/domain"
	"github.com/aegis-run/orchestrator/internal/infrastructure/monitoring"
)

// Interpreter wires the Workflow Interpreter's dependencies: the
// aggregate/event stores, the Agent Iteration Loop it calls for Agent and
// ParallelAgents states, the Human Gate for Human states, the sandboxed
// process runner for System states, and the Durability Runtime every
// non-pure operation is funneled through.
type Interpreter struct {
	Workflows  domain.WorkflowStore
	Agents     domain.AgentStore
	Events     domain.EventLogStore
	Executions domain.ExecutionStore
	Durability domain.DurabilityRuntime
	Isolation  domain.IsolationProvider
	Loop       *iteration.Loop
	Gate       *humangate.Gate
	Renderer   *blackboard.Renderer
	Eval       *expreval.Evaluator
	Observer   *monitoring.ObserverManager
}

// stepResult is what dispatching a single state produces, independent of
// its kind, so evaluateTransitions can treat Agent/System/Human/
// ParallelAgents uniformly.
type stepResult struct {
	Output     any
	Success    bool
	ExitCode   int
	Score      float64
	Confidence float64
	Approved   []bool
}

// Run drives Step until the execution reaches a terminal status. A Human
// state does not return early: dispatchHuman blocks inside Step on the
// Durability Runtime's AwaitSignal until a response or the timeout.
func (in *Interpreter) Run(ctx context.Context, exec *domain.WorkflowExecution, def *domain.WorkflowDefinition) error {
	if in.Observer != nil && exec.IterationCount() == 0 {
		in.Observer.NotifyWorkflowStarted(exec.ExecutionID(), exec.WorkflowID())
	}
	for {
		done, err := in.Step(ctx, exec, def)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// Step advances exec by exactly one state. It always persists whatever
// events were raised, even when it returns an error, so a failed step
// still leaves a durable record of what was attempted.
func (in *Interpreter) Step(ctx context.Context, exec *domain.WorkflowExecution, def *domain.WorkflowDefinition) (done bool, err error) {
	defer func() {
		if perr := in.persist(ctx, exec); perr != nil && err == nil {
			err = perr
		}
	}()

	stateName := exec.CurrentState()
	state, ok := def.State(stateName)
	if !ok {
		exec.Fail(domain.ErrCodeInvalidState, fmt.Sprintf("unknown state %q", stateName), "")
		in.notifyFailed(exec, domain.ErrCodeInvalidState, nil)
		return true, domain.NewDomainError(domain.ErrCodeInvalidState, "unknown state", nil)
	}

	result, derr := in.dispatch(ctx, exec, state)
	if derr != nil {
		exec.Fail(domain.CodeOf(derr), derr.Error(), "")
		in.notifyFailed(exec, domain.CodeOf(derr), derr)
		return true, derr
	}

	exec.ExitState(result.Output)
	if in.Observer != nil {
		in.Observer.NotifyStateExited(exec.ExecutionID(), stateName, time.Since(exec.LastTransitionAt()))
	}

	if state.IsTerminal() {
		exec.Complete()
		if in.Observer != nil {
			in.Observer.NotifyWorkflowCompleted(exec.ExecutionID(), time.Since(exec.StartedAt()))
		}
		return true, nil
	}

	target, terr := evaluateTransitions(in.Eval, state.Transitions, result, exec.Blackboard())
	if terr != nil {
		exec.Fail(domain.ErrNoTransition, terr.Error(), "")
		in.notifyFailed(exec, domain.ErrNoTransition, terr)
		return true, terr
	}

	if err := exec.Transition(def.MaxTotalIterations); err != nil {
		code := domain.CodeOf(err)
		exec.Fail(code, err.Error(), "")
		in.notifyFailed(exec, code, err)
		return true, err
	}

	exec.EnterState(target)
	if in.Observer != nil {
		if targetState, ok := def.State(target); ok {
			in.Observer.NotifyStateEntered(exec.ExecutionID(), target, targetState.Kind)
		}
	}
	return false, nil
}

func (in *Interpreter) notifyFailed(exec *domain.WorkflowExecution, code domain.ErrorCode, err error) {
	if in.Observer == nil {
		return
	}
	in.Observer.NotifyWorkflowFailed(exec.ExecutionID(), code, err, time.Since(exec.StartedAt()))
}

// dispatch executes one state according to its StateKind.
func (in *Interpreter) dispatch(ctx context.Context, exec *domain.WorkflowExecution, state domain.State) (stepResult, error) {
	if in.Observer != nil {
		in.Observer.NotifyStateEntered(exec.ExecutionID(), state.Name, state.Kind)
	}
	switch state.Kind {
	case domain.StateKindAgent:
		return in.dispatchAgent(ctx, exec, state)
	case domain.StateKindSystem:
		return in.dispatchSystem(ctx, exec, state)
	case domain.StateKindHuman:
		return in.dispatchHuman(ctx, exec, state)
	case domain.StateKindParallelAgents:
		return in.dispatchParallel(ctx, exec, state)
	default:
		return stepResult{}, domain.NewDomainError(domain.ErrCodeInvalidInput, fmt.Sprintf("unknown state kind %q", state.Kind), nil)
	}
}

// judgesFor resolves the judge panel and iteration budget a state actually
// runs with: an explicit value on the state always wins; an unset or empty
// state-level value falls back to the invoked agent's own manifest default
// (manifest.Validation), so an agent can carry its own validation policy
// into any workflow that doesn't override it.
func judgesFor(stateJudges []domain.JudgeConfig, manifest domain.AgentManifest) []domain.JudgeConfig {
	if len(stateJudges) > 0 {
		return stateJudges
	}
	if manifest.Validation != nil && manifest.Validation.Enabled {
		return manifest.Validation.Judges
	}
	return nil
}

func maxIterFor(stateMaxIter int, manifest domain.AgentManifest) int {
	if stateMaxIter > 0 {
		return stateMaxIter
	}
	if manifest.Validation != nil && manifest.Validation.Enabled && manifest.Validation.MaxIterations > 0 {
		return manifest.Validation.MaxIterations
	}
	return 1
}

// dispatchAgent renders input_template over the blackboard and invokes the
// Agent Iteration Loop, writing <state>.output, <state>.gradient_score, and
// <state>.confidence to the blackboard on return.
func (in *Interpreter) dispatchAgent(ctx context.Context, exec *domain.WorkflowExecution, state domain.State) (stepResult, error) {
	cfg := state.Agent
	agent, err := in.lookupAgent(ctx, cfg.AgentRef)
	if err != nil {
		return stepResult{}, err
	}
	rendered, err := in.Renderer.Render(cfg.InputTemplate, exec.Blackboard())
	if err != nil {
		return stepResult{}, err
	}

	judges := judgesFor(cfg.Judges, agent.Manifest)
	maxIter := maxIterFor(cfg.MaxIterations, agent.Manifest)
	// Loop.Run always returns a non-nil session, even on a hard failure
	// (domain.NewAgentExecution is constructed before any error path).
	sess, runErr := in.Loop.Run(ctx, agent, exec.ExecutionID(), nil, rendered, judges, maxIter, true)

	result := stepResult{Success: sess.Status == domain.AgentExecCompleted}
	if sess.FinalOutput != nil {
		result.Output = *sess.FinalOutput
	}
	if last, ok := sess.LastIteration(); ok && last.Validation != nil {
		result.Score = last.Validation.Score
		result.Confidence = last.Validation.Confidence
	} else if result.Success {
		// No judges configured: an agent that simply completed counts as a
		// full-confidence pass for scoring transitions (score_above, etc.).
		result.Score, result.Confidence = 1.0, 1.0
	}
	exec.Blackboard().Set(state.Name+".gradient_score", result.Score)
	exec.Blackboard().Set(state.Name+".confidence", result.Confidence)

	if runErr != nil && !result.Success {
		// A hard C5 failure still lets the FSM route via on_failure rather
		// than aborting the whole execution outright; ERR_NO_TRANSITION
		// below is what actually fails the execution if nothing catches it.
		result.Output = runErr.Error()
	}
	return result, nil
}

// dispatchSystem renders the command and environment and invokes the host
// process runner through the Isolation Provider, recorded as a durable side
// effect so replay never re-executes the process.
func (in *Interpreter) dispatchSystem(ctx context.Context, exec *domain.WorkflowExecution, state domain.State) (stepResult, error) {
	cfg := state.System
	command, err := in.Renderer.Render(cfg.CommandTemplate, exec.Blackboard())
	if err != nil {
		return stepResult{}, err
	}
	env := make(map[string]string, len(cfg.EnvTemplates))
	for k, tmpl := range cfg.EnvTemplates {
		v, err := in.Renderer.Render(tmpl, exec.Blackboard())
		if err != nil {
			return stepResult{}, err
		}
		env[k] = v
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	manifest := domain.AgentManifest{
		Name: state.Name,
		LLM:  domain.LLMConfig{UserPromptTemplate: command},
	}

	sideEffectName := fmt.Sprintf("system:%s:%s:%d", exec.ExecutionID(), state.Name, exec.IterationCount())
	raw, err := in.Durability.RecordSideEffect(ctx, sideEffectName, func(sideCtx context.Context) (any, error) {
		runCtx, cancel := context.WithTimeout(sideCtx, timeout)
		defer cancel()
		handle, err := in.Isolation.Start(runCtx, manifest, command)
		if err != nil {
			return nil, err
		}
		result, err := in.Isolation.Wait(runCtx, handle)
		if err != nil {
			_ = in.Isolation.Cancel(runCtx, handle)
			return nil, err
		}
		return result, nil
	})
	if err != nil {
		return stepResult{Success: false, ExitCode: -1, Output: err.Error()}, nil
	}
	isoResult, ok := raw.(domain.IsolationResult)
	if !ok {
		return stepResult{}, domain.NewDomainError(domain.ErrDeterminism, "system side effect returned an unexpected type on replay", nil)
	}
	exec.Blackboard().Set(state.Name+".exit_code", isoResult.ExitCode)
	exec.Blackboard().Set(state.Name+".stdout", isoResult.Stdout)
	exec.Blackboard().Set(state.Name+".stderr", isoResult.Stderr)
	return stepResult{
		Output:   isoResult.Stdout,
		Success:  isoResult.ExitCode == 0,
		ExitCode: isoResult.ExitCode,
	}, nil
}

// dispatchHuman renders the prompt, opens a Human Gate entry, and suspends
// on the corresponding signal until a response arrives or the timeout
// elapses.
func (in *Interpreter) dispatchHuman(ctx context.Context, exec *domain.WorkflowExecution, state domain.State) (stepResult, error) {
	cfg := state.Human
	prompt, err := in.Renderer.Render(cfg.PromptTemplate, exec.Blackboard())
	if err != nil {
		return stepResult{}, err
	}

	req, err := in.Gate.Request(ctx, exec.ExecutionID(), state.Name, prompt, cfg.Timeout)
	if err != nil {
		return stepResult{}, err
	}
	exec.RequestHumanInput()

	raw, waitErr := in.Durability.AwaitSignal(ctx, in.Gate.SignalName(req.RequestID), cfg.Timeout)
	if waitErr != nil {
		if domain.CodeOf(waitErr) != domain.ErrHumanTimeout {
			return stepResult{}, waitErr
		}
		exec.ResumeFromHuman(true)
		if cfg.DefaultResponse != nil {
			exec.Blackboard().Set(state.Name+".decision", *cfg.DefaultResponse)
			return stepResult{Success: true, Output: *cfg.DefaultResponse}, nil
		}
		exec.Blackboard().Set(state.Name+".timed_out", true)
		return stepResult{Success: false, Output: "human gate timed out"}, nil
	}

	exec.ResumeFromHuman(false)
	resp, ok := raw.(domain.HumanResponse)
	if !ok {
		return stepResult{}, domain.NewDomainError(domain.ErrDeterminism, "human signal returned an unexpected type on replay", nil)
	}
	exec.Blackboard().Set(state.Name+".decision", resp.Decision)
	exec.Blackboard().Set(state.Name+".feedback", resp.Feedback)
	return stepResult{Success: resp.Decision != "reject", Output: resp.Decision}, nil
}

// branchOutcome is one ParallelAgents branch's result, carried through
// DurabilityRuntime.SpawnParallel as an opaque `any` and unpacked by
// dispatchParallel afterward. Score is graded when the branch agent's own
// manifest carries judges, and otherwise falls back to a binary 1.0/0.0
// reading of Success — the same fallback dispatchAgent applies when a
// state has no judges configured.
type branchOutcome struct {
	AgentRef string
	Output   string
	Success  bool
	Score    float64
	Weight   float64
}

// dispatchParallel fans out one concurrent agent invocation per branch,
// waits for all of them, and aggregates them via the configured consensus
// strategy. A ParallelBranch carries no judges or max_iterations of its
// own, so each branch runs as a single-shot invocation that falls back to
// its agent's own manifest-level validation config, if any.
func (in *Interpreter) dispatchParallel(ctx context.Context, exec *domain.WorkflowExecution, state domain.State) (stepResult, error) {
	cfg := state.Parallel
	// Each closure below only reads the blackboard (Blackboard.Get/All are
	// mutex-guarded) and calls the already-concurrency-safe Loop/Renderer —
	// none of them mutate exec itself, since SpawnParallel's in-memory test
	// adapter may run branches on real goroutines and exec carries no
	// locking of its own (by contract it is only ever touched by Step's
	// goroutine).
	fns := make([]func(context.Context) (any, error), len(cfg.Branches))
	for i, branch := range cfg.Branches {
		idx, branch := i, branch
		fns[idx] = func(branchCtx context.Context) (any, error) {
			weight := weightOrDefault(branch.Weight)
			agent, err := in.lookupAgent(branchCtx, branch.AgentRef)
			if err != nil {
				return branchOutcome{AgentRef: branch.AgentRef, Weight: weight}, nil
			}
			vars := exec.Blackboard().All()
			vars["branch_index"] = idx
			rendered, err := in.Renderer.RenderVars(branch.InputTemplate, vars)
			if err != nil {
				return branchOutcome{AgentRef: branch.AgentRef, Weight: weight}, nil
			}
			judges := judgesFor(nil, agent.Manifest)
			maxIter := maxIterFor(0, agent.Manifest)
			sess, runErr := in.Loop.Run(branchCtx, agent, exec.ExecutionID(), nil, rendered, judges, maxIter, true)
			outcome := branchOutcome{AgentRef: branch.AgentRef, Weight: weight}
			if runErr == nil && sess != nil && sess.FinalOutput != nil {
				outcome.Output = *sess.FinalOutput
				outcome.Success = sess.Status == domain.AgentExecCompleted
			}
			if last, ok := sess.LastIteration(); ok && last.Validation != nil {
				outcome.Score = last.Validation.Score
			} else if outcome.Success {
				outcome.Score = 1.0
			}
			return outcome, nil
		}
	}

	raw, err := in.Durability.SpawnParallel(ctx, fns)
	if err != nil {
		return stepResult{}, err
	}

	// Event recording and blackboard writes happen here, back on Step's
	// single goroutine, after every branch has returned — this is the only
	// place dispatchParallel touches exec.
	outcomes := make([]branchOutcome, 0, len(raw))
	for i, r := range raw {
		oc, ok := r.(branchOutcome)
		if !ok {
			continue
		}
		exec.RecordEvent(domain.EventParallelBranchStarted, map[string]any{"state": state.Name, "branch": i, "agent_ref": oc.AgentRef})
		exec.RecordEvent(domain.EventParallelBranchComplete, map[string]any{"state": state.Name, "branch": i, "success": oc.Success})
		exec.Blackboard().Set(fmt.Sprintf("%s.parallel.%s.output", state.Name, oc.AgentRef), oc.Output)
		outcomes = append(outcomes, oc)
	}

	score, success, approved := aggregateConsensus(outcomes, cfg.Consensus)
	exec.Blackboard().Set(state.Name+".gradient_score", score)
	exec.RecordEvent(domain.EventConsensusComputed, map[string]any{
		"state":    state.Name,
		"strategy": cfg.Consensus.Strategy,
		"score":    score,
		"success":  success,
	})

	return stepResult{
		Output:   outcomes,
		Success:  success,
		Score:    score,
		Approved: approved,
	}, nil
}

func weightOrDefault(w float64) float64 {
	if w <= 0 {
		return 1.0
	}
	return w
}

// lookupAgent resolves an agent reference by name and refuses paused or
// archived agents.
func (in *Interpreter) lookupAgent(ctx context.Context, ref string) (*domain.Agent, error) {
	agent, err := in.Agents.GetByName(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !agent.IsInvocable() {
		return nil, domain.NewDomainError(domain.ErrCodeInvalidState, fmt.Sprintf("agent %q is not invocable (status=%s)", ref, agent.Status), nil)
	}
	return agent, nil
}

// persist appends every event raised this step to the Event Log and
// checkpoints the execution aggregate so a crash between steps never loses
// more than the step in flight.
func (in *Interpreter) persist(ctx context.Context, exec *domain.WorkflowExecution) error {
	events := exec.UncommittedEvents()
	if len(events) > 0 {
		if err := in.Events.Append(ctx, events...); err != nil {
			return err
		}
		exec.MarkCommitted()
	}
	if in.Executions != nil {
		return in.Executions.Save(ctx, exec)
	}
	return nil
}
