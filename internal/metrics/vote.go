package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/emilythestrangee/reddit-clone/voteledger/internal/votes"
)

// VoteMetrics records vote engine operations. It implements votes.Hooks.
type VoteMetrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	Conflicts         *prometheus.CounterVec
	Retries           *prometheus.CounterVec
}

var _ votes.Hooks = (*VoteMetrics)(nil)

// NewVoteMetrics creates and registers vote engine metrics on the given registry.
func NewVoteMetrics(reg prometheus.Registerer) *VoteMetrics {
	m := &VoteMetrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vote_operations_total",
			Help:      "Total number of vote engine operations, by operation and result.",
		}, []string{"op", "status"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vote_operation_duration_seconds",
			Help:      "Duration of vote engine operations including retries, in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"op"}),
		Conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vote_write_conflicts_total",
			Help:      "Total number of transaction attempts that hit a write conflict.",
		}, []string{"op"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vote_retries_total",
			Help:      "Total number of retried vote transactions.",
		}, []string{"op"}),
	}

	reg.MustRegister(m.Operations, m.OperationDuration, m.Conflicts, m.Retries)
	return m
}

func (m *VoteMetrics) ObserveOperation(name, status string, dur time.Duration) {
	m.Operations.WithLabelValues(name, status).Inc()
	m.OperationDuration.WithLabelValues(name).Observe(dur.Seconds())
}

func (m *VoteMetrics) IncConflict(name string) {
	m.Conflicts.WithLabelValues(name).Inc()
}

func (m *VoteMetrics) IncRetry(name string) {
	m.Retries.WithLabelValues(name).Inc()
}
