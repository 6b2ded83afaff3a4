package device

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	poolHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qsim_tensor_pool_hits_total",
		Help: "Total number of successful amplitude buffer pool retrievals",
	})

	poolMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qsim_tensor_pool_misses_total",
		Help: "Total number of amplitude buffer pool misses (allocations)",
	})

	kernelDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qsim_kernel_duration_seconds",
		Help:    "Time spent in amplitude tensor kernels",
		Buckets: []float64{0.00001, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05, 0.25, 1},
	}, []string{"kernel"})
)
