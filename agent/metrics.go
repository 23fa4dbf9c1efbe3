package agent

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports manager activity to Prometheus. All record methods are
// nil-safe so the core runs unchanged without metrics.
type Metrics struct {
	TasksSubmitted   prometheus.Counter
	TasksDispatched  prometheus.Counter
	TasksTotal       *prometheus.CounterVec
	QueueDepth       prometheus.Gauge
	DispatchLatency  prometheus.Histogram
	AgentsRegistered prometheus.Gauge
	MessagesTotal    *prometheus.CounterVec
}

// NewMetrics registers manager metrics with the given registerer. Pass
// prometheus.DefaultRegisterer in production, a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TasksSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "swarm",
			Name:      "tasks_submitted_total",
			Help:      "Total tasks submitted to the manager",
		}),
		TasksDispatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "swarm",
			Name:      "tasks_dispatched_total",
			Help:      "Total tasks handed to an agent by the dispatcher",
		}),
		TasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swarm",
			Name:      "tasks_total",
			Help:      "Total finished tasks by status",
		}, []string{"status"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "swarm",
			Name:      "queue_depth",
			Help:      "Number of tasks waiting in the queue",
		}),
		DispatchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "swarm",
			Name:      "dispatch_latency_seconds",
			Help:      "Time from enqueue to agent assignment",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
		AgentsRegistered: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "swarm",
			Name:      "agents_registered",
			Help:      "Number of registered agents",
		}),
		MessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swarm",
			Name:      "messages_total",
			Help:      "Total bus messages by delivery outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) recordSubmitted() {
	if m != nil {
		m.TasksSubmitted.Inc()
	}
}

func (m *Metrics) recordDispatched(waited time.Duration) {
	if m != nil {
		m.TasksDispatched.Inc()
		m.DispatchLatency.Observe(waited.Seconds())
	}
}

func (m *Metrics) recordFinished(status TaskStatus) {
	if m != nil {
		m.TasksTotal.WithLabelValues(string(status)).Inc()
	}
}

func (m *Metrics) setQueueDepth(depth int) {
	if m != nil {
		m.QueueDepth.Set(float64(depth))
	}
}

func (m *Metrics) setAgents(count int) {
	if m != nil {
		m.AgentsRegistered.Set(float64(count))
	}
}

func (m *Metrics) recordMessage(delivered bool) {
	if m != nil {
		outcome := "delivered"
		if !delivered {
			outcome = "failed"
		}
		m.MessagesTotal.WithLabelValues(outcome).Inc()
	}
}
