// Package graph implements the action-dependency graph that gates which
// bot actions are currently legal within one conversation.
package graph

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Encoding selects how an action's preconditions were written in the
// workflow definition.
type Encoding string

const (
	// EncodingLegacy ("v1") stores preconditions as a loosely-structured
	// textual list that needs tolerant parsing.
	EncodingLegacy Encoding = "v1"
	// EncodingNative ("v2") stores preconditions as a proper string list.
	EncodingNative Encoding = "v2"
)

// Sentinel errors returned by Admit. Match with errors.Is / errors.As.
var (
	// ErrUnknownAction indicates the requested action is not a node.
	ErrUnknownAction = errors.New("unknown action")
	// ErrDuplicateAction indicates the same action name was declared twice.
	// Raised at construction, never at runtime.
	ErrDuplicateAction = errors.New("duplicate action")
	// ErrUnresolvedPrecondition indicates a precondition references an
	// action that does not exist. Raised eagerly by Validate.
	ErrUnresolvedPrecondition = errors.New("unresolved precondition")
)

// PreconditionError reports the first unmet precondition blocking an action.
type PreconditionError struct {
	Action   string
	Blocking string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition %q not activated for %q", e.Blocking, e.Action)
}

// ActionSpec is one action declaration as decoded from the workflow file.
// Precondition holds the raw YAML value: a string under EncodingLegacy,
// a string list under EncodingNative, or nil for none.
type ActionSpec struct {
	Name         string `yaml:"name"`
	Precondition any    `yaml:"precondition"`
}

// Node is one action in the graph. Activated flips to true the first time
// the action is successfully admitted and stays true for the conversation.
type Node struct {
	Name          string
	Preconditions []string
	Activated     bool
}

// Graph maps action names to nodes. It is scoped to a single conversation
// run and mutated only by Admit.
type Graph struct {
	nodes map[string]*Node
	order []string
}

// Build constructs a graph from action specs and validates it. Duplicate
// names and unresolved precondition references are fatal configuration
// errors.
func Build(specs []ActionSpec, enc Encoding) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*Node, len(specs))}
	for _, spec := range specs {
		pre, err := decodePreconditions(spec.Precondition, enc)
		if err != nil {
			return nil, fmt.Errorf("action %q: %w", spec.Name, err)
		}
		if _, exists := g.nodes[spec.Name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateAction, spec.Name)
		}
		g.nodes[spec.Name] = &Node{Name: spec.Name, Preconditions: pre}
		g.order = append(g.order, spec.Name)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate asserts that every precondition resolves to a node in the graph.
func (g *Graph) Validate() error {
	for _, name := range g.order {
		for _, pre := range g.nodes[name].Preconditions {
			if pre == "" {
				continue
			}
			if _, ok := g.nodes[pre]; !ok {
				return fmt.Errorf("%w: %q required by %q", ErrUnresolvedPrecondition, pre, name)
			}
		}
	}
	return nil
}

// Admit checks whether the named action is currently legal. Preconditions
// are checked in declaration order and the first unmet one is reported.
// On success the node is marked activated; re-admitting an activated node
// succeeds trivially.
func (g *Graph) Admit(name string) error {
	node, ok := g.nodes[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	for _, pre := range node.Preconditions {
		if pre == "" {
			continue
		}
		if !g.nodes[pre].Activated {
			return &PreconditionError{Action: name, Blocking: pre}
		}
	}
	node.Activated = true
	return nil
}

// Node returns the named node, or nil when absent.
func (g *Graph) Node(name string) *Node {
	return g.nodes[name]
}

// Len returns the number of actions in the graph.
func (g *Graph) Len() int {
	return len(g.order)
}

// decodePreconditions normalizes both supported encodings to a plain
// ordered list of action names.
func decodePreconditions(raw any, enc Encoding) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	switch enc {
	case EncodingLegacy:
		s, ok := raw.(string)
		if !ok {
			// Legacy files occasionally carry an already-structured list.
			return nativeList(raw)
		}
		return parseLegacyList(s), nil
	case EncodingNative:
		return nativeList(raw)
	default:
		return nil, fmt.Errorf("unknown precondition encoding %q", enc)
	}
}

func nativeList(raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("precondition entry %v is not a string", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("preconditions must be a string list, got %T", raw)
	}
}

// parseLegacyList tolerantly decodes the v1 textual encoding. A structured
// parse is attempted first; on failure brackets and quotes are stripped and
// the remainder is split on commas, discarding empty tokens. That leniency
// is intentional: legacy files mix well-formed lists with hand-written ones.
func parseLegacyList(s string) []string {
	var structured []string
	if err := yaml.Unmarshal([]byte(s), &structured); err == nil && structured != nil {
		return structured
	}

	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	var out []string
	for _, token := range strings.Split(s, ",") {
		token = strings.Trim(strings.TrimSpace(token), `'"`)
		token = strings.TrimSpace(token)
		if token != "" {
			out = append(out, token)
		}
	}
	return out
}
