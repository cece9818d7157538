package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/wardauth/ward"
	"github.com/wardauth/ward/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	Metrics() ward.MetricsSnapshot
}

type observedCounter struct {
	name       string
	instrument metric.Int64ObservableCounter
}

type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []observedCounter
	histBuckets  []metric.Int64ObservableGauge
	histCount    metric.Int64ObservableGauge
	histSum      metric.Float64ObservableCounter
	auditDropped metric.Int64ObservableCounter
}

func NewOTelExporter(meter metric.Meter, engine *ward.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &OTelExporter{
		source:      source,
		counters:    make([]observedCounter, 0, len(internaldefs.CounterDefs)),
		histBuckets: make([]metric.Int64ObservableGauge, 0, len(internaldefs.HistogramBoundSuffix)),
	}

	observables := make([]metric.Observable, 0, len(internaldefs.CounterDefs)+len(internaldefs.HistogramBoundSuffix)+3)

	for _, def := range internaldefs.CounterDefs {
		name := def.ID.Name()
		ins, err := meter.Int64ObservableCounter(name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{name: name, instrument: ins})
		observables = append(observables, ins)
	}

	for _, suffix := range internaldefs.HistogramBoundSuffix {
		name := internaldefs.HistogramName + "_bucket_le_" + suffix
		ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
		}
		exporter.histBuckets = append(exporter.histBuckets, ins)
		observables = append(observables, ins)
	}

	histCount, err := meter.Int64ObservableGauge(
		internaldefs.HistogramName+"_count",
		metric.WithDescription("Histogram total sample count."),
	)
	if err != nil {
		return nil, fmt.Errorf("create histogram count gauge: %w", err)
	}
	exporter.histCount = histCount
	observables = append(observables, histCount)

	histSum, err := meter.Float64ObservableCounter(
		internaldefs.HistogramName+"_sum",
		metric.WithDescription("Histogram sample sum in seconds."),
	)
	if err != nil {
		return nil, fmt.Errorf("create histogram sum counter: %w", err)
	}
	exporter.histSum = histSum
	observables = append(observables, histSum)

	auditDropped, err := meter.Int64ObservableCounter(
		internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		snapshot := exporter.source.Metrics()
		for _, c := range exporter.counters {
			observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.name]))
		}

		cumulative := internaldefs.CumulativeBuckets(snapshot.VerifyAccessLatency.Buckets)
		for i, ins := range exporter.histBuckets {
			observer.ObserveInt64(ins, int64(cumulative[i]))
		}
		observer.ObserveInt64(exporter.histCount, int64(snapshot.VerifyAccessLatency.Count))
		observer.ObserveFloat64(exporter.histSum, float64(snapshot.VerifyAccessLatency.SumNanos)/1e9)
		observer.ObserveInt64(exporter.auditDropped, int64(snapshot.AuditDropped))
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
