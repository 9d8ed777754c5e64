package merge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Merge outcomes
const (
	OutcomeCommitted = "committed"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// Metrics holds the merge engine's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	merges    *prometheus.CounterVec
	rewired   *prometheus.CounterVec
	rollbacks *prometheus.CounterVec
	duration  prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recmerge_merges_total",
			Help: "Merges attempted, by outcome.",
		}, []string{"outcome"}),
		rewired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recmerge_rewired_rows_total",
			Help: "Rows whose references were rewired to a merge winner, by collection.",
		}, []string{"collection"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recmerge_rollbacks_total",
			Help: "Rollbacks after a failed apply, by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "recmerge_merge_duration_seconds",
			Help:    "Wall time of committed merges.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.merges, m.rewired, m.rollbacks, m.duration)
	}
	return m
}

func (m *Metrics) outcome(outcome string) {
	if m == nil {
		return
	}
	m.merges.WithLabelValues(outcome).Inc()
}

func (m *Metrics) rewiredRows(summary []RewireCount) {
	if m == nil {
		return
	}
	for _, c := range summary {
		m.rewired.WithLabelValues(c.Collection).Add(float64(c.Count))
	}
}

func (m *Metrics) rollback(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.rollbacks.WithLabelValues(result).Inc()
}

func (m *Metrics) observe(start time.Time) {
	if m == nil {
		return
	}
	m.duration.Observe(time.Since(start).Seconds())
}
