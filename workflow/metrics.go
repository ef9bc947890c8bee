package workflow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the engine's Prometheus instrumentation, namespaced
// "roadmapper":
//
//   - workflows_inflight (gauge): runs currently advancing.
//   - node_latency_ms (histogram, node/status): per-node execution time.
//   - checkpoint_write_ms (histogram): checkpoint persistence latency.
//   - fanout_concepts_total (counter, outcome): fan-out concept outcomes
//     (completed | failed | skipped).
//   - validation_rounds (histogram): validation rounds per run.
type Metrics struct {
	workflowsInflight prometheus.Gauge
	nodeLatency       *prometheus.HistogramVec
	checkpointWrite   prometheus.Histogram
	fanoutConcepts    *prometheus.CounterVec
	validationRounds  prometheus.Histogram
}

// NewMetrics registers the engine metrics with the given registry. Pass a
// fresh prometheus.NewRegistry() in tests for isolation; nil uses the
// default registerer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		workflowsInflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "roadmapper",
			Name:      "workflows_inflight",
			Help:      "Number of workflow runs currently executing",
		}),
		nodeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "roadmapper",
			Name:      "node_latency_ms",
			Help:      "Node execution duration in milliseconds",
			Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 15000, 60000, 300000},
		}, []string{"node", "status"}), // status: success, error, suspended
		checkpointWrite: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "roadmapper",
			Name:      "checkpoint_write_ms",
			Help:      "Checkpoint persistence latency in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000},
		}),
		fanoutConcepts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roadmapper",
			Name:      "fanout_concepts_total",
			Help:      "Fan-out concept outcomes",
		}, []string{"outcome"}), // outcome: completed, failed, skipped
		validationRounds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "roadmapper",
			Name:      "validation_rounds",
			Help:      "Validation rounds taken per workflow run",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
	}
}

func (m *Metrics) runStarted() {
	if m != nil {
		m.workflowsInflight.Inc()
	}
}

func (m *Metrics) runFinished() {
	if m != nil {
		m.workflowsInflight.Dec()
	}
}

func (m *Metrics) observeNode(node, status string, elapsed time.Duration) {
	if m != nil {
		m.nodeLatency.WithLabelValues(node, status).Observe(float64(elapsed.Milliseconds()))
	}
}

func (m *Metrics) observeCheckpoint(elapsed time.Duration) {
	if m != nil {
		m.checkpointWrite.Observe(float64(elapsed.Milliseconds()))
	}
}

func (m *Metrics) countConcept(outcome string) {
	if m != nil {
		m.fanoutConcepts.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) observeValidationRounds(rounds int) {
	if m != nil && rounds > 0 {
		m.validationRounds.Observe(float64(rounds))
	}
}
