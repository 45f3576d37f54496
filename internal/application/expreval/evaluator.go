// Package expreval provides a cached, pure boolean/value expression
// evaluator over a blackboard-shaped variable set. It backs both the
// Workflow Interpreter's custom(expression) transition condition and the
// Blackboard's {{#if expr}}...{{/if}} template blocks, so the two surfaces
// share one deterministic expression language built on expr-lang.
package expreval

import (
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Evaluator compiles and caches expr-lang programs. Expression text never
// changes across calls for a given transition/template, so caching the
// compiled *vm.Program avoids re-parsing on every step.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// New returns an empty evaluator.
func New() *Evaluator {
	return &Evaluator{cache: make(map[string]*vm.Program)}
}

// EvalBool compiles (or reuses) expression and runs it against vars,
// coercing the result to bool. Undefined-variable errors are treated as
// false rather than surfaced — a blackboard path that hasn't been written
// yet should read as "condition not met," not crash a step.
func (e *Evaluator) EvalBool(expression string, vars map[string]any) (bool, error) {
	out, err := e.Eval(expression, vars)
	if err != nil {
		if isUndefinedVariable(err) {
			return false, nil
		}
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q did not evaluate to a boolean: got %T", expression, out)
	}
	return b, nil
}

// Eval compiles (or reuses) expression and runs it against vars, returning
// the raw result.
func (e *Evaluator) Eval(expression string, vars map[string]any) (any, error) {
	program, err := e.compile(expression)
	if err != nil {
		return nil, err
	}
	return expr.Run(program, vars)
}

func (e *Evaluator) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if p, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return p, nil
	}
	e.mu.RUnlock()

	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression %q: %w", expression, err)
	}

	e.mu.Lock()
	e.cache[expression] = program
	e.mu.Unlock()
	return program, nil
}

func isUndefinedVariable(err error) bool {
	return strings.Contains(err.Error(), "unknown name") || strings.Contains(err.Error(), "cannot fetch")
}
