package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification module.
type Metrics struct {
	RequestsSubmitted prometheus.Counter
	Decisions         *prometheus.CounterVec
	CacheLookups      *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

// New registers the verification collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "crowdfund_verification_requests_submitted_total",
			Help: "Total number of verification requests submitted",
		}),
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crowdfund_verification_decisions_total",
			Help: "Administrator decisions by outcome",
		}, []string{"decision"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crowdfund_verification_cache_lookups_total",
			Help: "Approval cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crowdfund_verification_operation_duration_seconds",
			Help:    "Duration of verification operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementSubmitted() {
	m.RequestsSubmitted.Inc()
}

func (m *Metrics) IncrementDecision(decision string) {
	m.Decisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) IncrementCacheLookup(result string) {
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveOperation records the duration of an operation started at start.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
