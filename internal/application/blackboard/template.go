// Package blackboard renders a single deterministic textual template
// language against a domain.Blackboard: {{path}} substitution, a small
// whitelist of side-effect-free helpers (length, upper, lower, trim), and
// {{#if expr}}...{{/if}} conditional blocks. Rendering never reads outside
// the blackboard and never performs I/O, so rendering the same template
// against the same blackboard twice always yields byte-identical output.
//
// Substitution works by regex over a fixed tag grammar rather than
// embedding a general expression-interpolation syntax, keeping template
// text free of anything resembling a scripting runtime.
package blackboard

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aegis-run/orchestrator/internal/application/expreval"
	"github.com/aegis-run/orchestrator/internal/domain"
)

var tagPattern = regexp.MustCompile(`\{\{(.*?)\}\}`)

// helperFuncs is the whitelist of template helpers: length, upper, lower, trim.
var helperFuncs = map[string]func(string) string{
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"trim":  strings.TrimSpace,
	"length": func(s string) string {
		return strconv.Itoa(len([]rune(s)))
	},
}

// Renderer compiles and renders templates against a Blackboard. It is
// stateless apart from its expression cache; the same Renderer is safe to
// reuse across executions.
type Renderer struct {
	eval *expreval.Evaluator
}

// NewRenderer constructs a Renderer backed by a fresh expression cache.
func NewRenderer() *Renderer {
	return &Renderer{eval: expreval.New()}
}

// node is one parsed piece of a template.
type node interface {
	render(vars map[string]any, eval *expreval.Evaluator) (string, error)
}

type textNode string

func (t textNode) render(map[string]any, *expreval.Evaluator) (string, error) {
	return string(t), nil
}

// refNode is a {{path}} or {{helper(path)}} reference.
type refNode struct {
	helper string // empty if plain substitution
	path   string
}

func (r refNode) render(vars map[string]any, _ *expreval.Evaluator) (string, error) {
	value, ok := lookup(vars, r.path)
	if !ok {
		return "", fmt.Errorf("undefined blackboard path %q", r.path)
	}
	s := stringify(value)
	if r.helper == "" {
		return s, nil
	}
	fn, ok := helperFuncs[r.helper]
	if !ok {
		return "", fmt.Errorf("unknown template helper %q", r.helper)
	}
	return fn(s), nil
}

// ifNode is an {{#if expr}}...{{/if}} conditional block.
type ifNode struct {
	expr     string
	children []node
}

func (n ifNode) render(vars map[string]any, eval *expreval.Evaluator) (string, error) {
	ok, err := eval.EvalBool(n.expr, vars)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	var sb strings.Builder
	for _, c := range n.children {
		out, err := c.render(vars, eval)
		if err != nil {
			return "", err
		}
		sb.WriteString(out)
	}
	return sb.String(), nil
}

// Render parses and renders template against the blackboard's current
// snapshot, returning domain.ErrTemplate on any failure (missing key, bad
// expression, malformed block nesting).
func (r *Renderer) Render(template string, bb *domain.Blackboard) (string, error) {
	return r.RenderVars(template, bb.All())
}

// RenderVars renders template against an arbitrary variable tree, used
// when the caller needs to merge in state-local values (e.g. a
// ParallelAgents branch's own index) before resolving paths.
func (r *Renderer) RenderVars(template string, vars map[string]any) (string, error) {
	nodes, err := parse(template)
	if err != nil {
		return "", domain.NewDomainError(domain.ErrTemplate, "failed to parse template", err)
	}
	var sb strings.Builder
	for _, n := range nodes {
		out, err := n.render(vars, r.eval)
		if err != nil {
			return "", domain.NewDomainError(domain.ErrTemplate, "failed to render template", err)
		}
		sb.WriteString(out)
	}
	return sb.String(), nil
}

// parse tokenizes template into a tree of nodes, tracking {{#if}}/{{/if}}
// nesting with an explicit stack so blocks may nest arbitrarily deep.
func parse(template string) ([]node, error) {
	type frame struct {
		expr     string
		children []node
	}

	root := &frame{}
	stack := []*frame{root}

	matches := tagPattern.FindAllStringSubmatchIndex(template, -1)
	pos := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		tagStart, tagEnd := m[2], m[3]

		if start > pos {
			top := stack[len(stack)-1]
			top.children = append(top.children, textNode(template[pos:start]))
		}

		tag := strings.TrimSpace(template[tagStart:tagEnd])
		switch {
		case strings.HasPrefix(tag, "#if "):
			stack = append(stack, &frame{expr: strings.TrimSpace(tag[len("#if "):])})
		case tag == "/if":
			if len(stack) == 1 {
				return nil, fmt.Errorf("unmatched {{/if}}")
			}
			closed := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			top := stack[len(stack)-1]
			top.children = append(top.children, ifNode{expr: closed.expr, children: closed.children})
		default:
			top := stack[len(stack)-1]
			top.children = append(top.children, parseRef(tag))
		}

		pos = end
	}
	if pos < len(template) {
		top := stack[len(stack)-1]
		top.children = append(top.children, textNode(template[pos:]))
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("unclosed {{#if}} block")
	}
	return root.children, nil
}

// parseRef recognizes "helper(path)" or a plain "path".
func parseRef(tag string) refNode {
	if idx := strings.Index(tag, "("); idx > 0 && strings.HasSuffix(tag, ")") {
		helper := strings.TrimSpace(tag[:idx])
		if _, ok := helperFuncs[helper]; ok {
			path := strings.TrimSpace(tag[idx+1 : len(tag)-1])
			return refNode{helper: helper, path: path}
		}
	}
	return refNode{path: tag}
}

func lookup(vars map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	var cur any = vars
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		next, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func stringify(v any) string {
	switch vv := v.(type) {
	case string:
		return vv
	case fmt.Stringer:
		return vv.String()
	default:
		return fmt.Sprintf("%v", vv)
	}
}
