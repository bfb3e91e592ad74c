// Package graph provides a typed, ordered-stage workflow graph. A StateGraph
// is built from named nodes and single-successor edges, compiled into an
// immutable Runnable, and invoked with a state value that flows through every
// stage from the entry point to END.
package graph

import (
	"context"
	"errors"
	"fmt"
)

// END is the terminal sentinel. An edge pointing at END marks the last stage
// of a chain.
const END = "__end__"

// Graph construction and validation errors.
var (
	ErrEmptyGraph      = errors.New("graph has no nodes")
	ErrNodeExists      = errors.New("node already exists")
	ErrNodeNotFound    = errors.New("node not found")
	ErrReservedName    = errors.New("node name is reserved")
	ErrNilNodeFunc     = errors.New("node function cannot be nil")
	ErrNoEntryPoint    = errors.New("entry point not set")
	ErrEdgeExists      = errors.New("edge already defined for node")
	ErrDanglingNode    = errors.New("node has no outgoing edge")
	ErrUnreachableNode = errors.New("node not reachable from entry point")
	ErrCycle           = errors.New("graph contains a cycle")
)

// NodeFunc transforms a state. Stage-level failures that should not abort the
// chain belong in the state itself; a returned error stops execution.
type NodeFunc[S any] func(ctx context.Context, state S) (S, error)

type node[S any] struct {
	name string
	fn   NodeFunc[S]
}

// StateGraph accumulates nodes and edges before compilation. Methods report
// construction mistakes immediately; structural checks run in Compile.
type StateGraph[S any] struct {
	name  string
	nodes map[string]node[S]
	order []string          // insertion order, kept for deterministic exports
	edges map[string]string // single successor per node
	entry string
	hook  StageHook[S]
}

// Option configures a StateGraph at construction.
type Option[S any] func(*StateGraph[S])

// WithStageHook installs a callback invoked after every stage with the stage
// name, elapsed time, and the stage's error (nil on success).
func WithStageHook[S any](hook StageHook[S]) Option[S] {
	return func(g *StateGraph[S]) {
		g.hook = hook
	}
}

// New creates an empty StateGraph with the given name.
func New[S any](name string, opts ...Option[S]) *StateGraph[S] {
	g := &StateGraph[S]{
		name:  name,
		nodes: make(map[string]node[S]),
		edges: make(map[string]string),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns the graph's name.
func (g *StateGraph[S]) Name() string {
	return g.name
}

// AddNode registers a named stage function.
func (g *StateGraph[S]) AddNode(name string, fn NodeFunc[S]) error {
	if name == "" || name == END {
		return fmt.Errorf("%w: %q", ErrReservedName, name)
	}
	if fn == nil {
		return fmt.Errorf("%w: %s", ErrNilNodeFunc, name)
	}
	if _, exists := g.nodes[name]; exists {
		return fmt.Errorf("%w: %s", ErrNodeExists, name)
	}

	g.nodes[name] = node[S]{name: name, fn: fn}
	g.order = append(g.order, name)
	return nil
}

// AddEdge declares the successor of a node. Each node has exactly one
// successor; to may be END. Existence of to is checked in Compile so edges
// can be declared before their target node.
func (g *StateGraph[S]) AddEdge(from, to string) error {
	if from == END {
		return fmt.Errorf("%w: cannot add edge from %s", ErrReservedName, END)
	}
	if _, exists := g.nodes[from]; !exists {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, from)
	}
	if to == "" {
		return fmt.Errorf("%w: edge target for %s", ErrReservedName, from)
	}
	if existing, ok := g.edges[from]; ok {
		return fmt.Errorf("%w: %s -> %s", ErrEdgeExists, from, existing)
	}

	g.edges[from] = to
	return nil
}

// SetEntryPoint marks the node execution starts from.
func (g *StateGraph[S]) SetEntryPoint(name string) error {
	if _, exists := g.nodes[name]; !exists {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, name)
	}

	g.entry = name
	return nil
}

// validate checks the assembled graph forms a single chain from the entry
// point to END covering every node.
func (g *StateGraph[S]) validate() ([]node[S], error) {
	if len(g.nodes) == 0 {
		return nil, ErrEmptyGraph
	}
	if g.entry == "" {
		return nil, ErrNoEntryPoint
	}

	for from, to := range g.edges {
		if to == END {
			continue
		}
		if _, exists := g.nodes[to]; !exists {
			return nil, fmt.Errorf("%w: edge %s -> %s", ErrNodeNotFound, from, to)
		}
	}

	// Walk the chain from the entry. Single-successor edges make this a
	// plain traversal; revisiting a node means a cycle.
	var chain []node[S]
	visited := make(map[string]bool, len(g.nodes))
	current := g.entry
	for current != END {
		if visited[current] {
			return nil, fmt.Errorf("%w: at %s", ErrCycle, current)
		}
		visited[current] = true
		chain = append(chain, g.nodes[current])

		next, ok := g.edges[current]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrDanglingNode, current)
		}
		current = next
	}

	for name := range g.nodes {
		if !visited[name] {
			return nil, fmt.Errorf("%w: %s", ErrUnreachableNode, name)
		}
	}

	return chain, nil
}

// Compile validates the graph and freezes it into a Runnable. The returned
// Runnable is immutable and safe for concurrent Invoke calls.
func (g *StateGraph[S]) Compile() (*Runnable[S], error) {
	chain, err := g.validate()
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", g.name, err)
	}

	return &Runnable[S]{
		name:   g.name,
		stages: chain,
		hook:   g.hook,
		topo:   g.describe(),
	}, nil
}
