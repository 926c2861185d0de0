package workflow

import (
	"errors"

	"go.uber.org/zap"
)

// GraphBuilder provides a fluent API for constructing workflow graphs.
// Errors are accumulated and surfaced by Build, so call chains stay linear.
type GraphBuilder struct {
	graph *WorkflowGraph
	errs  []error
}

// NewGraphBuilder creates a builder for a graph with the given name.
func NewGraphBuilder(name string, opts ...GraphOption) *GraphBuilder {
	return &GraphBuilder{graph: NewWorkflowGraph(name, opts...)}
}

// State creates a node from the executor and options and registers it.
func (b *GraphBuilder) State(name string, exec Executor, opts ...NodeOption) *GraphBuilder {
	node, err := NewNode(name, exec, opts...)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	return b.Node(node)
}

// Node registers a pre-built node.
func (b *GraphBuilder) Node(node *Node) *GraphBuilder {
	if err := b.graph.AddState(node); err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// Transition registers an edge from source to target guarded by cond. A nil
// condition is always taken.
func (b *GraphBuilder) Transition(source, target string, cond Condition) *GraphBuilder {
	if err := b.graph.AddTransition(source, target, cond); err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// Build validates the accumulated graph and returns it.
func (b *GraphBuilder) Build() (*WorkflowGraph, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	if err := b.graph.validate(); err != nil {
		return nil, err
	}
	b.graph.logger.Info("workflow graph built",
		zap.Int("states", len(b.graph.nodes)),
		zap.Strings("entry_states", b.graph.entryStates()),
	)
	return b.graph, nil
}
