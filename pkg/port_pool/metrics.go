package port_pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics - Prometheus метрики пула портов.
// Создаются всегда; регистрируются только при переданном Registerer.
type Metrics struct {
	allocated       prometheus.Gauge
	acquireTotal    *prometheus.CounterVec
	releaseTotal    prometheus.Counter
	probeFailures   prometheus.Counter
	commitConflicts prometheus.Counter
	resets          prometheus.Counter
}

// NewMetrics создает метрики пула. reg == nil - метрики не регистрируются.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "media_core"
	}
	factory := promauto.With(reg)
	const subsystem = "port_pool"

	return &Metrics{
		allocated: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "allocated",
			Help:      "Number of ports currently held in the pool ledger",
		}),
		acquireTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "acquire_total",
			Help:      "Port acquisition attempts by strategy and result",
		}, []string{"strategy", "result"}),
		releaseTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "release_total",
			Help:      "Ports removed from the ledger by Release",
		}),
		probeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "probe_failures_total",
			Help:      "Candidates rejected by the OS bind probe",
		}),
		commitConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "commit_conflicts_total",
			Help:      "Probed candidates lost to a concurrent acquisition before commit",
		}),
		resets: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "resets_total",
			Help:      "Administrative ledger resets",
		}),
	}
}

func (m *Metrics) observeAcquire(s Strategy, err error) {
	result := "ok"
	if err != nil {
		result = "exhausted"
	}
	m.acquireTotal.WithLabelValues(s.String(), result).Inc()
}
