package otel

import (
	"context"
	"errors"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/wardauth/ward"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot ward.MetricsSnapshot
}

func (f *fakeSource) Metrics() ward.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := ward.MetricsSnapshot{
		Counters:     make(map[string]uint64, len(f.snapshot.Counters)),
		AuditDropped: f.snapshot.AuditDropped,
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	out.VerifyAccessLatency = ward.LatencySnapshot{
		Count:    f.snapshot.VerifyAccessLatency.Count,
		SumNanos: f.snapshot.VerifyAccessLatency.SumNanos,
		Buckets:  append([]ward.LatencyBucket(nil), f.snapshot.VerifyAccessLatency.Buckets...),
	}
	return out
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("ward-test")

	src := &fakeSource{
		snapshot: ward.MetricsSnapshot{
			Counters: map[string]uint64{
				ward.MetricLoginSuccess.Name(): 3,
			},
			VerifyAccessLatency: ward.LatencySnapshot{
				Count:    9,
				SumNanos: 900000,
				Buckets:  []ward.LatencyBucket{{Count: 1}, {Count: 1}, {Count: 1}, {Count: 1}, {Count: 1}, {Count: 1}, {Count: 1}, {Count: 1}, {Count: 1}},
			},
			AuditDropped: 1,
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != ward.MetricLoginSuccess.Name() {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) != 1 {
				t.Fatalf("unexpected data shape for %s: %#v", m.Name, m.Data)
			}
			if got := sum.DataPoints[0].Value; got != 3 {
				t.Fatalf("login success = %d, want 3", got)
			}
			found = true
		}
	}
	if !found {
		t.Fatal("login success counter not collected")
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("ward-test")

	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); !errors.Is(err, ErrNilMeter) {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
	if _, err := NewOTelExporterFromSource(meter, nil); !errors.Is(err, ErrNilSource) {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("ward-test")

	src := &fakeSource{
		snapshot: ward.MetricsSnapshot{
			Counters: map[string]uint64{
				ward.MetricLoginSuccess.Name(): 1,
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[ward.MetricLoginSuccess.Name()] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
