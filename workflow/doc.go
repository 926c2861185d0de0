/*
Package workflow implements a state-machine execution engine over a directed
graph of named states connected by conditional transitions.

Multiple transitions may converge on the same target state. Three
independently configurable policies govern each convergence point:

  - JoinStrategy decides when enough incoming branches have arrived for the
    state to fire (AllJoin, FirstJoin, NofMJoin, ConditionalJoin,
    AggregatorJoin, PerArrivalJoin).
  - MergeStrategy combines the buffered branch outputs into one value
    (ConcatMerge, DictMerge, ListMerge, FlattenMerge, CustomMerge).
  - InputMode reshapes the merged value into the final argument(s) for the
    node's execution call, optionally fanning a sequence out into
    independent execution units (PreviousInput, FirstInput, LastInput,
    AggregateInput, SplitInput).

The engine pops ready (state, data) units off a queue, evaluates outgoing
transitions in declaration order, buffers arrivals at convergence points via
the StateManager, and dispatches satisfied states to their Node. Run
executes sequentially and deterministically; RunParallel dispatches
independently-ready units onto a bounded worker pool while keeping all
shared-state mutation on a single writer.

Graphs can be assembled programmatically (WorkflowGraph, GraphBuilder) or
loaded from declarative YAML/JSON definitions bound to runtime behavior
through a Registry.
*/
package workflow
