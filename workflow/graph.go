package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/stateflow-go/stateflow/internal/metrics"
)

const tracerName = "github.com/stateflow-go/stateflow/workflow"

// Transition is a directed edge between two states, guarded by a Condition.
// A nil condition means the transition is always taken.
type Transition struct {
	Source    string
	Target    string
	Condition Condition
}

// workUnit is one (state, data) pair awaiting dispatch on the ready queue.
// When batch is non-nil the unit carries a whole split fan-out destined for
// the node's BatchExecutor.
type workUnit struct {
	state string
	data  any
	batch []any
}

// runState is the per-run context: the state manager, the ready queue, the
// per-run join strategy clones and the conditions re-anchored at run start.
// Keeping it per run means concurrent runs of the same graph definition never
// interfere.
type runState struct {
	id    string
	sm    *StateManager
	queue []workUnit
	joins map[string]JoinStrategy
	conds map[*Transition]Condition
}

// WorkflowGraph drives a directed graph of named states connected by
// conditional transitions, resolving the join, merge and input-mode policies
// of each converging state. Construction is not safe for concurrent use;
// once built, a graph may be run concurrently.
type WorkflowGraph struct {
	name     string
	nodes    map[string]*Node
	order    []string
	outgoing map[string][]*Transition
	incoming map[string][]*Transition

	logger    *zap.Logger
	tracer    trace.Tracer
	clock     Clock
	collector *metrics.Collector

	metricsNamespace string
	metricsReg       prometheus.Registerer
}

// GraphOption configures a WorkflowGraph.
type GraphOption func(*WorkflowGraph)

// WithLogger sets a custom logger.
func WithLogger(logger *zap.Logger) GraphOption {
	return func(g *WorkflowGraph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithClock injects the clock used for run-log timestamps and durations.
func WithClock(clock Clock) GraphOption {
	return func(g *WorkflowGraph) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithMetrics enables Prometheus instrumentation, registering collectors
// under the given namespace. A nil registerer uses the default one.
func WithMetrics(namespace string, reg prometheus.Registerer) GraphOption {
	return func(g *WorkflowGraph) {
		g.metricsNamespace = namespace
		g.metricsReg = reg
		if g.metricsReg == nil {
			g.metricsReg = prometheus.DefaultRegisterer
		}
	}
}

// NewWorkflowGraph creates an empty workflow graph.
func NewWorkflowGraph(name string, opts ...GraphOption) *WorkflowGraph {
	g := &WorkflowGraph{
		name:     name,
		nodes:    make(map[string]*Node),
		outgoing: make(map[string][]*Transition),
		incoming: make(map[string][]*Transition),
		logger:   zap.NewNop(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(
		zap.String("component", "workflow_graph"),
		zap.String("workflow", name),
	)
	g.tracer = otel.Tracer(tracerName)
	if g.metricsReg != nil {
		g.collector = metrics.NewCollector(g.metricsNamespace, g.metricsReg, g.logger)
	}
	return g
}

// Name returns the workflow name.
func (g *WorkflowGraph) Name() string {
	return g.name
}

// AddState registers a node under its unique state name.
func (g *WorkflowGraph) AddState(node *Node) error {
	if node == nil {
		return newValidationErrorf("cannot add nil node")
	}
	if _, exists := g.nodes[node.name]; exists {
		return newValidationErrorf("duplicate state %q", node.name)
	}
	g.nodes[node.name] = node
	g.order = append(g.order, node.name)
	return nil
}

// AddTransition registers a directed edge from source to target, guarded by
// cond. A nil condition is always taken. Unknown state names are caught by
// validation at run start.
func (g *WorkflowGraph) AddTransition(source, target string, cond Condition) error {
	if source == "" || target == "" {
		return newValidationErrorf("transition requires source and target state names")
	}
	t := &Transition{Source: source, Target: target, Condition: cond}
	g.outgoing[source] = append(g.outgoing[source], t)
	g.incoming[target] = append(g.incoming[target], t)
	return nil
}

// States returns the registered state names in registration order.
func (g *WorkflowGraph) States() []string {
	return append([]string(nil), g.order...)
}

// Transitions returns all registered transitions grouped by source state, in
// declaration order.
func (g *WorkflowGraph) Transitions(source string) []*Transition {
	return append([]*Transition(nil), g.outgoing[source]...)
}

// entryStates returns states with no incoming transitions, in registration
// order.
func (g *WorkflowGraph) entryStates() []string {
	var entries []string
	for _, name := range g.order {
		if len(g.incoming[name]) == 0 {
			entries = append(entries, name)
		}
	}
	return entries
}

// validate runs the static validation pass: every transition must reference
// a known state, every join dependency must be able to arrive, and at least
// one entry state must exist. Runs before any node executes.
func (g *WorkflowGraph) validate() error {
	if len(g.nodes) == 0 {
		return newValidationErrorf("graph has no states")
	}
	for _, name := range g.order {
		for _, t := range g.outgoing[name] {
			if _, ok := g.nodes[t.Target]; !ok {
				return newValidationErrorf("transition %s -> %s references unknown state %q", t.Source, t.Target, t.Target)
			}
		}
	}
	for source := range g.outgoing {
		if _, ok := g.nodes[source]; !ok {
			return newValidationErrorf("transition source references unknown state %q", source)
		}
	}
	if len(g.entryStates()) == 0 {
		return newValidationErrorf("graph has no entry state (every state has incoming transitions)")
	}
	for _, name := range g.order {
		join := g.nodes[name].join
		if join == nil {
			continue
		}
		be, ok := join.(BranchExpecter)
		if !ok {
			continue
		}
		expected := be.ExpectedBranches()
		if len(expected) == 0 {
			return newValidationErrorf("state %q: join strategy expects no branches", name)
		}
		sources := make(map[string]bool, len(g.incoming[name]))
		for _, t := range g.incoming[name] {
			sources[t.Source] = true
		}
		for _, b := range expected {
			if _, known := g.nodes[b]; !known {
				return newValidationErrorf("state %q: join dependency %q is not a known state", name, b)
			}
			if !sources[b] {
				return newValidationErrorf("state %q: join dependency %q can never arrive (no transition %s -> %s)", name, b, b, name)
			}
		}
		if nm, ok := join.(*NofMJoin); ok && (nm.n < 1 || nm.n > len(expected)) {
			return newValidationErrorf("state %q: nofm join requires 1 <= n <= %d, got %d", name, len(expected), nm.n)
		}
	}
	return nil
}

// newRun validates the graph and builds the per-run context, seeding the
// ready queue with the entry states and their inputs in registration order.
func (g *WorkflowGraph) newRun(entry map[string]any) (*runState, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}
	for name := range entry {
		if _, ok := g.nodes[name]; !ok {
			return nil, newValidationErrorf("entry input references unknown state %q", name)
		}
		if len(g.incoming[name]) > 0 {
			return nil, newValidationErrorf("entry input for state %q, which has incoming transitions", name)
		}
	}
	rs := &runState{
		id:    uuid.NewString(),
		sm:    NewStateManager(g.logger),
		joins: make(map[string]JoinStrategy, len(g.nodes)),
		conds: make(map[*Transition]Condition),
	}
	for _, name := range g.order {
		if join := g.nodes[name].join; join != nil {
			rs.joins[name] = join.Clone()
		} else {
			rs.joins[name] = NewPerArrivalJoin()
		}
	}
	start := g.clock()
	for _, name := range g.order {
		for _, t := range g.outgoing[name] {
			if ra, ok := t.Condition.(RunAnchored); ok {
				rs.conds[t] = ra.AnchorAt(start)
			}
		}
	}
	for _, name := range g.entryStates() {
		rs.queue = append(rs.queue, workUnit{state: name, data: entry[name]})
	}
	return rs, nil
}

// Report captures one run: its results, run log and timing.
type Report struct {
	RunID     string
	Results   Results
	Log       []LogEntry
	StartTime time.Time
	Duration  time.Duration
}

// Run executes the graph sequentially until the ready queue is empty and
// returns the results map. On failure the partial results accumulated up to
// the failure point are still returned alongside the error.
func (g *WorkflowGraph) Run(ctx context.Context, entry map[string]any) (Results, error) {
	report, err := g.RunWithReport(ctx, entry)
	if report == nil {
		return nil, err
	}
	return report.Results, err
}

// RunWithReport is Run with the full per-run report: run ID, run log and
// timing in addition to the results.
func (g *WorkflowGraph) RunWithReport(ctx context.Context, entry map[string]any) (*Report, error) {
	rs, err := g.newRun(entry)
	if err != nil {
		return nil, err
	}
	ctx, span := g.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.name", g.name),
		attribute.String("workflow.run_id", rs.id),
		attribute.String("workflow.mode", "sequential"),
	))
	defer span.End()

	start := g.clock()
	g.logger.Info("starting workflow run",
		zap.String("run_id", rs.id),
		zap.Int("entry_states", len(rs.queue)),
	)

	var runErr error
	for len(rs.queue) > 0 {
		unit := rs.queue[0]
		rs.queue = rs.queue[1:]
		if runErr = g.step(ctx, rs, unit); runErr != nil {
			break
		}
	}
	return g.finishRun(span, rs, start, "sequential", runErr)
}

// finishRun assembles the report and records the terminal outcome.
func (g *WorkflowGraph) finishRun(span trace.Span, rs *runState, start time.Time, mode string, runErr error) (*Report, error) {
	duration := g.clock().Sub(start)
	report := &Report{
		RunID:     rs.id,
		Results:   rs.sm.ResultsSnapshot(),
		Log:       rs.sm.RunLog(),
		StartTime: start,
		Duration:  duration,
	}
	status := "completed"
	if runErr != nil {
		status = "failed"
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		g.logger.Error("workflow run failed",
			zap.String("run_id", rs.id),
			zap.Duration("duration", duration),
			zap.Error(runErr),
		)
	} else {
		g.logger.Info("workflow run completed",
			zap.String("run_id", rs.id),
			zap.Duration("duration", duration),
			zap.Int("log_entries", len(report.Log)),
		)
	}
	if g.collector != nil {
		g.collector.RecordRun(mode, status, duration)
	}
	return report, runErr
}

// step executes one unit of work and propagates its output.
func (g *WorkflowGraph) step(ctx context.Context, rs *runState, unit workUnit) error {
	node := g.nodes[unit.state]
	if unit.batch != nil {
		outs, err := g.execBatch(ctx, node, unit.batch)
		if err != nil {
			return err
		}
		for i, out := range outs {
			g.record(rs, unit.state, unit.batch[i], out)
			if err := g.propagate(ctx, rs, unit.state, out); err != nil {
				return err
			}
		}
		return nil
	}
	out, err := g.execNode(ctx, node, unit.data)
	if err != nil {
		return err
	}
	g.record(rs, unit.state, unit.data, out)
	return g.propagate(ctx, rs, unit.state, out)
}

// execNode invokes the node's executor. Failures surface as node-execution
// WorkflowErrors and abort the run; retry policies are the caller's
// responsibility, layered around the Executor.
func (g *WorkflowGraph) execNode(ctx context.Context, node *Node, input any) (any, error) {
	ctx, span := g.tracer.Start(ctx, "workflow.node", trace.WithAttributes(
		attribute.String("workflow.state", node.name),
	))
	defer span.End()

	start := g.clock()
	out, err := node.exec.Execute(ctx, input)
	duration := g.clock().Sub(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if g.collector != nil {
			g.collector.RecordNodeExecution(node.name, "failed", duration)
		}
		g.logger.Error("node execution failed",
			zap.String("state", node.name),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, &WorkflowError{State: node.name, Kind: ErrKindNodeExecution, Err: err}
	}
	if g.collector != nil {
		g.collector.RecordNodeExecution(node.name, "completed", duration)
	}
	g.logger.Debug("node executed",
		zap.String("state", node.name),
		zap.Duration("duration", duration),
	)
	return out, nil
}

// execBatch invokes the node's batch executor for a whole split fan-out.
func (g *WorkflowGraph) execBatch(ctx context.Context, node *Node, inputs []any) ([]any, error) {
	ctx, span := g.tracer.Start(ctx, "workflow.node.batch", trace.WithAttributes(
		attribute.String("workflow.state", node.name),
		attribute.Int("workflow.batch_size", len(inputs)),
	))
	defer span.End()

	start := g.clock()
	outs, err := node.batch.Batch(ctx, inputs)
	duration := g.clock().Sub(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if g.collector != nil {
			g.collector.RecordNodeExecution(node.name, "failed", duration)
		}
		return nil, &WorkflowError{State: node.name, Kind: ErrKindNodeExecution, Err: err}
	}
	if len(outs) != len(inputs) {
		err := newShapeMismatch(node.name, len(inputs), len(outs))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if g.collector != nil {
			g.collector.RecordNodeExecution(node.name, "failed", duration)
		}
		return nil, err
	}
	if g.collector != nil {
		g.collector.RecordNodeExecution(node.name, "completed", duration)
	}
	return outs, nil
}

// record stores the node output in the results map and appends a run-log
// entry.
func (g *WorkflowGraph) record(rs *runState, state string, input, output any) {
	rs.sm.UpdateState(state, output)
	rs.sm.Log(LogEntry{
		State:     state,
		Input:     summarize(input),
		Output:    summarize(output),
		Timestamp: g.clock(),
	})
}

// propagate evaluates the outgoing transitions of a state, in declaration
// order, buffering the output at each target whose condition holds and
// firing any target whose join becomes satisfied.
func (g *WorkflowGraph) propagate(ctx context.Context, rs *runState, source string, output any) error {
	for _, t := range g.outgoing[source] {
		cond := t.Condition
		if anchored, ok := rs.conds[t]; ok {
			cond = anchored
		}
		if cond != nil {
			ok, err := cond.Evaluate(rs.sm.ResultsSnapshot())
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
		}
		rs.sm.BufferInput(t.Target, source, output)
		join := rs.joins[t.Target]
		join.MarkComplete(source)
		if !join.IsSatisfied() {
			continue
		}
		if err := g.fire(rs, t.Target, join); err != nil {
			return err
		}
	}
	return nil
}

// fire pops the target state's buffer, resets its join, runs the merge
// strategy and input mode, and pushes the resulting unit(s) onto the ready
// queue. With batch support and more than one unit, a single batch unit is
// queued instead.
func (g *WorkflowGraph) fire(rs *runState, state string, join JoinStrategy) error {
	node := g.nodes[state]
	entries := rs.sm.PopBuffer(state)
	join.Reset()

	values := make([]any, len(entries))
	for i, e := range entries {
		values[i] = e.Value
	}
	if agg, ok := join.(*AggregatorJoin); ok {
		values = agg.Aggregate(values)
	}
	merged := g.mergeValues(node, values)
	units := node.inputMode.Prepare(state, merged, rs.sm.ResultsSnapshot())

	if g.collector != nil {
		g.collector.RecordJoinSatisfied(state)
		if len(units) > 1 {
			g.collector.RecordFanOut(state, len(units))
		}
	}
	g.logger.Debug("state fired",
		zap.String("state", state),
		zap.Int("branches", len(entries)),
		zap.Int("units", len(units)),
	)

	if len(units) > 1 && node.batch != nil {
		rs.queue = append(rs.queue, workUnit{state: state, batch: units})
		return nil
	}
	for _, u := range units {
		rs.queue = append(rs.queue, workUnit{state: state, data: u})
	}
	return nil
}

// mergeValues applies the node's merge strategy. Without one, a single
// buffered value passes through unchanged and multiple values are delivered
// as a list.
func (g *WorkflowGraph) mergeValues(node *Node, values []any) any {
	if node.merge != nil {
		return node.merge.Merge(values)
	}
	if len(values) == 1 {
		return values[0]
	}
	return ListMerge{}.Merge(values)
}

func newShapeMismatch(state string, want, got int) *WorkflowError {
	return &WorkflowError{
		State: state,
		Kind:  ErrKindShapeMismatch,
		Err:   fmt.Errorf("batch returned %d results for %d inputs", got, want),
	}
}
