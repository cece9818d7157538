package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/wardauth/ward"
	"github.com/wardauth/ward/metrics/export/internaldefs"
)

type metricsSource interface {
	Metrics() ward.MetricsSnapshot
}

// PrometheusExporter renders ward metrics in Prometheus text exposition format.
type PrometheusExporter struct {
	source metricsSource
}

// NewPrometheusExporter creates a Prometheus exporter that reads from the given [ward.Engine].
func NewPrometheusExporter(engine *ward.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource creates a Prometheus exporter from a custom
// snapshot source.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render writes the current metrics in Prometheus text exposition format.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.Metrics()
	if len(snapshot.Counters) == 0 && snapshot.VerifyAccessLatency.Count == 0 && snapshot.AuditDropped == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	for _, def := range internaldefs.CounterDefs {
		name := def.ID.Name()
		writeCounter(&b, name, def.Help, snapshot.Counters[name])
	}

	writeHistogram(&b, internaldefs.HistogramName, internaldefs.HistogramHelp, snapshot.VerifyAccessLatency)
	writeCounter(&b, internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, snapshot.AuditDropped)

	return b.String()
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" counter\n")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, name, help string, snap ward.LatencySnapshot) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" histogram\n")

	cumulative := internaldefs.CumulativeBuckets(snap.Buckets)
	for i, le := range internaldefs.HistogramBounds {
		b.WriteString(name)
		b.WriteString("_bucket{le=\"")
		b.WriteString(le)
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatUint(cumulative[i], 10))
		b.WriteByte('\n')
	}

	b.WriteString(name)
	b.WriteString("_count ")
	b.WriteString(strconv.FormatUint(snap.Count, 10))
	b.WriteByte('\n')

	b.WriteString(name)
	b.WriteString("_sum ")
	b.WriteString(strconv.FormatFloat(float64(snap.SumNanos)/1e9, 'f', -1, 64))
	b.WriteByte('\n')
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
