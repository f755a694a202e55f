package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	poolSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "algomgr_pool_size",
			Help: "Number of handles currently retained by the manager.",
		},
	)

	handlesCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "algomgr_handles_created_total",
			Help: "Total number of managed handles created.",
		},
		[]string{"kind"},
	)

	evictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "algomgr_evictions_total",
			Help: "Total number of handles evicted from the retention pool.",
		},
	)

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "algomgr_runs_total",
			Help: "Total number of finished handle runs.",
		},
		[]string{"name", "outcome"},
	)

	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "algomgr_run_duration_seconds",
			Help:    "Handle run duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"name"},
	)
)

func init() {
	prometheus.MustRegister(poolSize)
	prometheus.MustRegister(handlesCreatedTotal)
	prometheus.MustRegister(evictionsTotal)
	prometheus.MustRegister(runsTotal)
	prometheus.MustRegister(runDuration)

	handlesCreatedTotal.WithLabelValues(KindDirect.String())
	handlesCreatedTotal.WithLabelValues(KindProxy.String())
}

func observeRun(rec RunRecord) {
	runsTotal.WithLabelValues(rec.Name, rec.Outcome).Inc()
	runDuration.WithLabelValues(rec.Name).Observe(rec.Duration().Seconds())
}
