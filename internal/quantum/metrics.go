package quantum

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qsim_jobs_total",
		Help: "Total number of jobs run, by outcome",
	}, []string{"status"})

	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "qsim_job_duration_seconds",
		Help:    "Time spent simulating a job",
		Buckets: prometheus.DefBuckets,
	})

	jobQubits = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "qsim_job_qubits",
		Help:    "Register size requested by jobs",
		Buckets: prometheus.LinearBuckets(2, 2, 15),
	})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qsim_state_cache_hits_total",
		Help: "Total number of final states served from the cache",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qsim_state_cache_misses_total",
		Help: "Total number of cacheable jobs that had to be simulated",
	})
)
