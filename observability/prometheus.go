package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusHooks wires Hooks up to a small set of in-memory Prometheus
// metrics: a node-count gauge, a per-context queue-depth gauge, a
// handler-duration histogram, and a counter of Futures reaching each
// terminal state. It reports process-local counters only — it persists
// nothing across restarts and talks to no external store.
type PrometheusHooks struct {
	*Hooks

	NodeCount       prometheus.Gauge
	QueueDepth      *prometheus.GaugeVec
	HandlerDuration prometheus.Histogram
	HandlerErrors   prometheus.Counter
	FutureTerminal  *prometheus.CounterVec
}

// NewPrometheusHooks registers its collectors with reg (pass
// prometheus.NewRegistry() for an isolated registry in tests, or
// prometheus.DefaultRegisterer for a process-wide one) and returns a Hooks
// value ready to hand to a Dispatcher or Context.
func NewPrometheusHooks(reg prometheus.Registerer, namespace string) *PrometheusHooks {
	p := &PrometheusHooks{
		NodeCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_nodes",
			Help:      "Number of objects currently registered with the Dispatcher.",
		}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "context_queue_depth",
			Help:      "Pending items in a Context's FIFO, by context name.",
		}, []string{"context"}),
		HandlerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Time spent inside a synchronously-resolved handler.",
			Buckets:   prometheus.DefBuckets,
		}),
		HandlerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Synchronous handler invocations that returned an error.",
		}),
		FutureTerminal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "future_terminal_total",
			Help:      "Futures reaching a terminal state, by state.",
		}, []string{"state"}),
	}
	reg.MustRegister(p.NodeCount, p.QueueDepth, p.HandlerDuration, p.HandlerErrors, p.FutureTerminal)

	p.Hooks = &Hooks{
		OnQueueDepth: func(contextName string, depth int) {
			p.QueueDepth.WithLabelValues(contextName).Set(float64(depth))
		},
		OnHandlerDone: func(correlationID string, duration time.Duration, err error) {
			p.HandlerDuration.Observe(duration.Seconds())
			if err != nil {
				p.HandlerErrors.Inc()
			}
		},
		OnFutureTerminal: func(state string) {
			p.FutureTerminal.WithLabelValues(state).Inc()
		},
		OnNodeAdded: func(string) {
			p.NodeCount.Inc()
		},
		OnNodeRemoved: func(string) {
			p.NodeCount.Dec()
		},
	}
	return p
}
