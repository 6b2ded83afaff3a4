package qubit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gatesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qsim_gates_applied_total",
		Help: "Total number of controlled 2x2 gates applied to registers",
	})

	samplesDrawn = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qsim_samples_total",
		Help: "Total number of outcomes drawn from measurement distributions",
	})

	collapses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qsim_collapses_total",
		Help: "Total number of state projections onto a measured outcome",
	})

	collapseNorm = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "qsim_collapse_norm",
		Help:    "L2 norm of the projected state before renormalization",
		Buckets: prometheus.ExponentialBuckets(1e-6, 10, 7),
	})
)
