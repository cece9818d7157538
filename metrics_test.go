package ward

import (
	"testing"
	"time"
)

func TestMetricNames(t *testing.T) {
	for id := MetricID(0); id < metricCount; id++ {
		name := id.Name()
		if name == "" || name == "ward_unknown" {
			t.Fatalf("metric %d has no name", id)
		}
	}
	if MetricID(200).Name() != "ward_unknown" {
		t.Fatalf("out-of-range id must map to ward_unknown, got %q", MetricID(200).Name())
	}
}

func TestLatencyHistogramBucketing(t *testing.T) {
	var h latencyHistogram

	// 10us and the clamped negative land in the first bucket, 80us in the
	// second, 3ms in the <=5ms bucket, and 10s overflows.
	h.observe(10 * time.Microsecond)
	h.observe(-5 * time.Millisecond)
	h.observe(80 * time.Microsecond)
	h.observe(3 * time.Millisecond)
	h.observe(10 * time.Second)

	if got := h.buckets[0].value.Load(); got != 2 {
		t.Fatalf("bucket 0: expected 2, got %d", got)
	}
	if got := h.buckets[1].value.Load(); got != 1 {
		t.Fatalf("bucket 1: expected 1, got %d", got)
	}
	if got := h.buckets[5].value.Load(); got != 1 {
		t.Fatalf("bucket 5: expected 1, got %d", got)
	}
	if got := h.buckets[len(verifyLatencyBounds)].value.Load(); got != 1 {
		t.Fatalf("overflow bucket: expected 1, got %d", got)
	}
	if h.count.Load() != 5 {
		t.Fatalf("expected 5 observations, got %d", h.count.Load())
	}
}

func TestMetricsNilBankIsInert(t *testing.T) {
	var m *metricsBank
	m.inc(MetricLoginSuccess)
	m.observeVerify(time.Millisecond)
	if got := m.get(MetricLoginSuccess); got != 0 {
		t.Fatalf("nil bank must read zero, got %d", got)
	}
}
