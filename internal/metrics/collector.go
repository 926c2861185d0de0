// Package metrics provides internal metrics collection for the workflow
// engine. This package is internal and should not be imported by external
// projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector instruments workflow execution: node executions, join
// satisfaction, split fan-outs and whole runs.
type Collector struct {
	nodeExecutionsTotal   *prometheus.CounterVec
	nodeExecutionDuration *prometheus.HistogramVec
	joinsSatisfiedTotal   *prometheus.CounterVec
	fanOutUnitsTotal      *prometheus.CounterVec
	runsTotal             *prometheus.CounterVec
	runDuration           *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector creates a collector registered with reg under the given
// namespace. A nil registerer uses the default one; a nil logger falls back
// to a no-op logger.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.nodeExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Total number of node executions",
		},
		[]string{"state", "status"},
	)

	c.nodeExecutionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_execution_duration_seconds",
			Help:      "Node execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"state"},
	)

	c.joinsSatisfiedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "joins_satisfied_total",
			Help:      "Total number of join satisfactions per converging state",
		},
		[]string{"state"},
	)

	c.fanOutUnitsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fan_out_units_total",
			Help:      "Total number of execution units produced by split fan-outs",
		},
		[]string{"state"},
	)

	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of workflow runs",
		},
		[]string{"mode", "status"},
	)

	c.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordNodeExecution records one node execution with its status and
// duration.
func (c *Collector) RecordNodeExecution(state, status string, duration time.Duration) {
	c.nodeExecutionsTotal.WithLabelValues(state, status).Inc()
	c.nodeExecutionDuration.WithLabelValues(state).Observe(duration.Seconds())
}

// RecordJoinSatisfied records a join satisfaction for a converging state.
func (c *Collector) RecordJoinSatisfied(state string) {
	c.joinsSatisfiedTotal.WithLabelValues(state).Inc()
}

// RecordFanOut records the number of units produced by one split fan-out.
func (c *Collector) RecordFanOut(state string, units int) {
	c.fanOutUnitsTotal.WithLabelValues(state).Add(float64(units))
}

// RecordRun records one completed or failed run with its duration.
func (c *Collector) RecordRun(mode, status string, duration time.Duration) {
	c.runsTotal.WithLabelValues(mode, status).Inc()
	c.runDuration.WithLabelValues(mode).Observe(duration.Seconds())
}
