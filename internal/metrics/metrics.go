package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors of the generation pipeline. A nil *Metrics is valid and records nothing.
type Metrics struct {
	GenerationTotal      *prometheus.CounterVec   // outcome
	GenerationDuration   *prometheus.HistogramVec // outcome
	CacheLookupTotal     *prometheus.CounterVec   // tier, result
	CreditDecrementTotal *prometheus.CounterVec   // result: applied/guarded
	UpstreamDuration     *prometheus.HistogramVec // provider, result
	JobRunsTotal         *prometheus.CounterVec   // job, result
}

// New registers the collectors on reg. Tests pass a fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		GenerationTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dessert_generation_total",
				Help: "Generation requests by final outcome",
			},
			[]string{"outcome"},
		),
		GenerationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dessert_generation_duration_seconds",
				Help:    "End to end duration of generation requests",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 20, 40, 60},
			},
			[]string{"outcome"},
		),
		CacheLookupTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dessert_cache_lookup_total",
				Help: "Cache lookups by tier and result",
			},
			[]string{"tier", "result"},
		),
		CreditDecrementTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dessert_credit_decrement_total",
				Help: "Guarded credit decrements by result",
			},
			[]string{"result"},
		),
		UpstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dessert_upstream_duration_seconds",
				Help:    "Duration of calls to external AI providers",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "result"},
		),
		JobRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dessert_job_runs_total",
				Help: "Scheduled maintenance job runs",
			},
			[]string{"job", "result"},
		),
	}
}

func (m *Metrics) ObserveGeneration(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.GenerationTotal.WithLabelValues(outcome).Inc()
	m.GenerationDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) CacheLookup(tier, result string) {
	if m == nil {
		return
	}
	m.CacheLookupTotal.WithLabelValues(tier, result).Inc()
}

func (m *Metrics) CreditDecrement(applied bool) {
	if m == nil {
		return
	}
	result := "applied"
	if !applied {
		result = "guarded"
	}
	m.CreditDecrementTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveUpstream(provider string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.UpstreamDuration.WithLabelValues(provider, result).Observe(d.Seconds())
}

func (m *Metrics) JobRun(job string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.JobRunsTotal.WithLabelValues(job, result).Inc()
}
