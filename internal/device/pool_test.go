package device

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func getMetricValue(m prometheus.Metric) float64 {
	var metric dto.Metric
	_ = m.Write(&metric)
	if metric.Counter != nil {
		return *metric.Counter.Value
	}
	if metric.Gauge != nil {
		return *metric.Gauge.Value
	}
	return 0
}

func TestCPU_PoolMetrics(t *testing.T) {
	backend := NewCPUBackend()

	// metrics are global, so we track deltas
	startHits := getMetricValue(poolHits)
	startMisses := getMetricValue(poolMisses)

	// A fresh pool has nothing to hand out.
	t1 := backend.GetTensor(10)
	if miss := getMetricValue(poolMisses); miss-startMisses != 1 {
		t.Errorf("Expected 1 miss, got %v", miss-startMisses)
	}

	backend.PutTensor(t1)

	t2 := backend.GetTensor(8)
	hits := getMetricValue(poolHits) - startHits
	misses := getMetricValue(poolMisses) - startMisses
	if hits+misses != 2 {
		t.Errorf("Expected 2 pool lookups, got hits=%v misses=%v", hits, misses)
	}
	if hits == 1 {
		t.Log("Pool Hit Confirmed")
	} else {
		// sync.Pool may drop entries across a GC.
		t.Logf("Missed pool hit! Hits delta: %v, Misses delta: %v", hits, misses)
	}

	backend.PutTensor(t2)
}
