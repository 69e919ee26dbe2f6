package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the campaign ledger.
type Metrics struct {
	CampaignsCreated   prometheus.Counter
	CampaignsCompleted prometheus.Counter
	Contributions      prometheus.Counter
	AmountAccepted     prometheus.Counter
	AmountRefunded     prometheus.Counter
	Withdrawals        *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
}

// New registers the campaign collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CampaignsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "crowdfund_campaigns_created_total",
			Help: "Total number of campaigns created",
		}),
		CampaignsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "crowdfund_campaigns_completed_total",
			Help: "Total number of campaigns that reached their goal",
		}),
		Contributions: factory.NewCounter(prometheus.CounterOpts{
			Name: "crowdfund_contributions_total",
			Help: "Total number of accepted contributions",
		}),
		AmountAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "crowdfund_contribution_amount_accepted_total",
			Help: "Sum of accepted contribution amounts in the smallest currency unit",
		}),
		AmountRefunded: factory.NewCounter(prometheus.CounterOpts{
			Name: "crowdfund_contribution_amount_refunded_total",
			Help: "Sum of contribution amounts refunded because they exceeded the goal",
		}),
		Withdrawals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crowdfund_withdrawals_total",
			Help: "Withdrawal attempts by result (success, transfer_failed)",
		}, []string{"result"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crowdfund_campaign_operation_duration_seconds",
			Help:    "Duration of campaign operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementCreated() {
	m.CampaignsCreated.Inc()
}

func (m *Metrics) ObserveContribution(accepted, refunded int64, completed bool) {
	m.Contributions.Inc()
	m.AmountAccepted.Add(float64(accepted))
	m.AmountRefunded.Add(float64(refunded))
	if completed {
		m.CampaignsCompleted.Inc()
	}
}

func (m *Metrics) IncrementWithdrawal(result string) {
	m.Withdrawals.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
