package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/edgefirst-dev/jwt"
	"github.com/edgefirst-dev/jwt/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() jwt.MetricsSnapshot
}

// PrometheusExporter renders Issuer metrics in Prometheus text exposition format.
type PrometheusExporter struct {
	source metricsSource
}

// NewPrometheusExporter creates a Prometheus exporter that reads from iss.
func NewPrometheusExporter(iss *jwt.Issuer) *PrometheusExporter {
	return &PrometheusExporter{source: iss}
}

// NewPrometheusExporterFromSource creates a Prometheus exporter from any value exposing
// MetricsSnapshot.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler returns an http.Handler that serves Render.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render writes the current metrics in Prometheus text exposition format. It returns the
// empty string while metrics are disabled.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && internaldefs.TotalAuditDropped(snapshot) == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	for _, def := range internaldefs.CounterDefs {
		writeCounter(&b, def.Name, def.Help, snapshot.Counters[def.ID])
	}

	for _, def := range internaldefs.HistogramDefs {
		nonCumulative := internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID])
		cumulative := internaldefs.CumulativeBuckets(nonCumulative)
		writeHistogram(&b, def.Name, def.Help, cumulative)
	}

	if purposes := internaldefs.Purposes(snapshot); len(purposes) > 0 {
		for _, def := range internaldefs.PurposeCounterDefs {
			writeHeader(&b, def.Name, def.Help, "counter")
			for _, name := range purposes {
				writeLabeled(&b, def.Name, internaldefs.PurposeLabel, name, def.Value(snapshot.Purposes[name]))
			}
		}
	}

	writeHeader(&b, internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, "counter")
	for _, category := range internaldefs.AuditCategories() {
		writeLabeled(&b, internaldefs.AuditDroppedName, internaldefs.AuditCategoryLabel, category, snapshot.AuditDropped[category])
	}

	return b.String()
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(kind)
	b.WriteByte('\n')
}

func writeLabeled(b *strings.Builder, name, label, value string, n uint64) {
	b.WriteString(name)
	b.WriteByte('{')
	b.WriteString(label)
	b.WriteString(`="`)
	b.WriteString(escapeLabel(value))
	b.WriteString(`"} `)
	b.WriteString(strconv.FormatUint(n, 10))
	b.WriteByte('\n')
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	writeHeader(b, name, help, "counter")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, name, help string, cumulative [8]uint64) {
	writeHeader(b, name, help, "histogram")

	for i, le := range internaldefs.HistogramBounds {
		b.WriteString(name)
		b.WriteString("_bucket{le=\"")
		b.WriteString(le)
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatUint(cumulative[i], 10))
		b.WriteByte('\n')
	}

	count := cumulative[len(cumulative)-1]
	b.WriteString(name)
	b.WriteString("_count ")
	b.WriteString(strconv.FormatUint(count, 10))
	b.WriteByte('\n')

	// Snapshots carry bucket counts only.
	b.WriteString(name)
	b.WriteString("_sum 0\n")
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}

func escapeLabel(v string) string {
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	v = strings.ReplaceAll(v, "\n", "\\n")
	return v
}
