package domain

import (
	"strconv"
	"strings"
	"sync"
)

// Blackboard is the per-execution key/value context: a mutable mapping
// from dotted paths to JSON-ish values, scoped to one Workflow Execution.
// Canonical roots are workflow.input.*, workflow.name, workflow.version,
// <StateName>.output, <StateName>.gradient_score,
// <StateName>.parallel.<agent_ref>.output and cortex.injected_patterns.
//
// Internally it is a tree of nested maps addressed by "." separated
// segments, so a path of arbitrary depth can be read or written without
// the caller pre-declaring its shape.
type Blackboard struct {
	mu   sync.RWMutex
	root map[string]any
}

// NewBlackboard returns an empty blackboard.
func NewBlackboard() *Blackboard {
	return &Blackboard{root: make(map[string]any)}
}

// RestoreBlackboard reconstructs a blackboard from a previously snapshotted
// tree, used when replaying a Workflow Execution from its Event Log.
func RestoreBlackboard(tree map[string]any) *Blackboard {
	if tree == nil {
		tree = make(map[string]any)
	}
	return &Blackboard{root: tree}
}

// Snapshot returns the full tree, suitable for persistence. The returned
// map is a deep-enough copy that callers mutating it do not affect the
// blackboard; the blackboard's own mutations always go through Set.
func (b *Blackboard) Snapshot() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return deepCopyMap(b.root)
}

// Get resolves a dotted path. The second return is false if any segment
// along the path is missing — callers (principally the template renderer)
// treat that as "variable not found", not as an error, mirroring the
// teacher's condition evaluator's graceful handling of undefined variables.
func (b *Blackboard) Get(path string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return lookupPath(b.root, strings.Split(path, "."))
}

// Set writes a value at a dotted path, creating intermediate maps as needed.
func (b *Blackboard) Set(path string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	segments := strings.Split(path, ".")
	setPath(b.root, segments, value)
}

// All returns a read-only copy of the root tree for rendering.
func (b *Blackboard) All() map[string]any {
	return b.Snapshot()
}

func lookupPath(node any, segments []string) (any, bool) {
	if len(segments) == 0 {
		return node, true
	}
	m, ok := node.(map[string]any)
	if !ok {
		return nil, false
	}
	next, ok := m[segments[0]]
	if !ok {
		return nil, false
	}
	if len(segments) == 1 {
		return next, true
	}
	return lookupPath(next, segments[1:])
}

func setPath(m map[string]any, segments []string, value any) {
	if len(segments) == 1 {
		m[segments[0]] = value
		return
	}
	child, ok := m[segments[0]].(map[string]any)
	if !ok {
		child = make(map[string]any)
		m[segments[0]] = child
	}
	setPath(child, segments[1:], value)
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch vv := v.(type) {
		case map[string]any:
			out[k] = deepCopyMap(vv)
		case []any:
			out[k] = deepCopySlice(vv)
		default:
			out[k] = vv
		}
	}
	return out
}

func deepCopySlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		switch vv := v.(type) {
		case map[string]any:
			out[i] = deepCopyMap(vv)
		case []any:
			out[i] = deepCopySlice(vv)
		default:
			out[i] = vv
		}
	}
	return out
}

// formatPathIndex renders a 0-based array index as a dotted-path segment.
func formatPathIndex(i int) string {
	return strconv.Itoa(i)
}
