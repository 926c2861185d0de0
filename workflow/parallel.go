package workflow

import (
	"context"
	"runtime"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// parallelResult carries one completed unit back to the collector goroutine.
type parallelResult struct {
	unit     workUnit
	output   any
	batchOut []any
	err      error
}

// RunParallel executes the graph with independently-ready units dispatched
// concurrently onto a worker pool of at most maxWorkers goroutines
// (defaulting to GOMAXPROCS when maxWorkers <= 0). Node calls run outside
// the single-writer boundary; all StateManager mutation and join checks
// happen on the collector goroutine only. Across branches, arrival order at
// a convergence point is the order in which each Node call returns, so merge
// output order is nondeterministic in this mode.
func (g *WorkflowGraph) RunParallel(ctx context.Context, entry map[string]any, maxWorkers int) (Results, error) {
	report, err := g.RunParallelWithReport(ctx, entry, maxWorkers)
	if report == nil {
		return nil, err
	}
	return report.Results, err
}

// RunParallelWithReport is RunParallel with the full per-run report.
func (g *WorkflowGraph) RunParallelWithReport(ctx context.Context, entry map[string]any, maxWorkers int) (*Report, error) {
	if maxWorkers <= 0 {
		maxWorkers = runtime.GOMAXPROCS(0)
	}
	rs, err := g.newRun(entry)
	if err != nil {
		return nil, err
	}
	ctx, span := g.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.name", g.name),
		attribute.String("workflow.run_id", rs.id),
		attribute.String("workflow.mode", "parallel"),
		attribute.Int("workflow.max_workers", maxWorkers),
	))
	defer span.End()

	start := g.clock()
	g.logger.Info("starting parallel workflow run",
		zap.String("run_id", rs.id),
		zap.Int("entry_states", len(rs.queue)),
		zap.Int("max_workers", maxWorkers),
	)

	runErr := g.runWaves(ctx, rs, maxWorkers)
	return g.finishRun(span, rs, start, "parallel", runErr)
}

// runWaves repeatedly drains the ready queue: every currently-ready unit is
// dispatched onto the pool, completions are collected in return order, and
// propagation on the collector goroutine may enqueue the next wave. The only
// blocking point is waiting for outstanding Node calls to return.
func (g *WorkflowGraph) runWaves(ctx context.Context, rs *runState, maxWorkers int) error {
	for len(rs.queue) > 0 {
		wave := rs.queue
		rs.queue = nil

		resultCh := make(chan parallelResult, len(wave))
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(maxWorkers)
		for _, unit := range wave {
			eg.Go(func() error {
				if unit.batch != nil {
					outs, err := g.execBatch(egCtx, g.nodes[unit.state], unit.batch)
					resultCh <- parallelResult{unit: unit, batchOut: outs, err: err}
					return err
				}
				out, err := g.execNode(egCtx, g.nodes[unit.state], unit.data)
				resultCh <- parallelResult{unit: unit, output: out, err: err}
				return err
			})
		}
		waitErr := eg.Wait()
		close(resultCh)

		// Completions are consumed in Node-return order; this is what makes
		// buffer arrival order nondeterministic under parallel execution.
		for res := range resultCh {
			if res.err != nil {
				continue
			}
			if res.unit.batch != nil {
				for i, out := range res.batchOut {
					g.record(rs, res.unit.state, res.unit.batch[i], out)
					if err := g.propagate(ctx, rs, res.unit.state, out); err != nil {
						return err
					}
				}
				continue
			}
			g.record(rs, res.unit.state, res.unit.data, res.output)
			if err := g.propagate(ctx, rs, res.unit.state, res.output); err != nil {
				return err
			}
		}
		if waitErr != nil {
			return waitErr
		}
	}
	return nil
}
