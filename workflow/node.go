package workflow

import "context"

// Executor is the sole external boundary the engine consumes: an opaque
// callable supplied by the caller, invoked once per execution unit.
type Executor interface {
	Execute(ctx context.Context, input any) (any, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, input any) (any, error)

func (f ExecutorFunc) Execute(ctx context.Context, input any) (any, error) {
	return f(ctx, input)
}

// BatchExecutor is invoked instead of Execute when SplitInput produces
// multiple units and the node declares batch support. The result count must
// equal the input count.
type BatchExecutor interface {
	Batch(ctx context.Context, inputs []any) ([]any, error)
}

// BatchExecutorFunc adapts a function to the BatchExecutor interface.
type BatchExecutorFunc func(ctx context.Context, inputs []any) ([]any, error)

func (f BatchExecutorFunc) Batch(ctx context.Context, inputs []any) ([]any, error) {
	return f(ctx, inputs)
}

// Node wraps a caller-supplied execution callable together with the input
// mode, join strategy and merge strategy governing how converged branch
// outputs reach it. Nodes are registered once at graph build time and are
// read-only during execution; all mutable per-run state lives in the
// StateManager and the per-run join clones.
type Node struct {
	name      string
	exec      Executor
	batch     BatchExecutor
	inputMode InputMode
	join      JoinStrategy
	merge     MergeStrategy
}

// NodeOption configures a Node.
type NodeOption func(*Node)

// WithInputMode sets the node's input mode. The default is PreviousInput.
func WithInputMode(mode InputMode) NodeOption {
	return func(n *Node) {
		n.inputMode = mode
	}
}

// WithJoinStrategy sets the join strategy prototype for the node. Only
// meaningful when the state has two or more incoming transitions; states
// without one default to firing on every arrival.
func WithJoinStrategy(join JoinStrategy) NodeOption {
	return func(n *Node) {
		n.join = join
	}
}

// WithMergeStrategy sets how buffered branch outputs are combined at fire
// time. Without one, a single buffered value passes through unchanged and
// multiple values are delivered as a list.
func WithMergeStrategy(merge MergeStrategy) NodeOption {
	return func(n *Node) {
		n.merge = merge
	}
}

// WithBatchExecutor declares batch support for split fan-outs.
func WithBatchExecutor(batch BatchExecutor) NodeOption {
	return func(n *Node) {
		n.batch = batch
	}
}

// NewNode creates a node wrapping the given executor.
func NewNode(name string, exec Executor, opts ...NodeOption) (*Node, error) {
	if name == "" {
		return nil, newValidationErrorf("node name is required")
	}
	if exec == nil {
		return nil, newValidationErrorf("node %q: executor is required", name)
	}
	n := &Node{
		name:      name,
		exec:      exec,
		inputMode: PreviousInput{},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Name returns the node's unique state name.
func (n *Node) Name() string {
	return n.name
}

// InputMode returns the node's input mode.
func (n *Node) InputMode() InputMode {
	return n.inputMode
}

// JoinStrategy returns the node's join strategy prototype, or nil when none
// is configured.
func (n *Node) JoinStrategy() JoinStrategy {
	return n.join
}

// MergeStrategy returns the node's merge strategy, or nil when none is
// configured.
func (n *Node) MergeStrategy() MergeStrategy {
	return n.merge
}
