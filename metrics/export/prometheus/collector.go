package prometheus

import (
	"github.com/edgefirst-dev/jwt"
	"github.com/edgefirst-dev/jwt/metrics/export/internaldefs"
	promclient "github.com/prometheus/client_golang/prometheus"
)

// Collector adapts Issuer metrics to a client_golang registry. Values are read from a
// fresh snapshot on every scrape.
type Collector struct {
	source       metricsSource
	counters     []counterDesc
	histograms   []histogramDesc
	purposes     []purposeDesc
	auditDropped *promclient.Desc
}

type counterDesc struct {
	id   jwt.MetricID
	desc *promclient.Desc
}

type histogramDesc struct {
	id   jwt.MetricID
	desc *promclient.Desc
}

type purposeDesc struct {
	value func(jwt.PurposeCounters) uint64
	desc  *promclient.Desc
}

var _ promclient.Collector = (*Collector)(nil)

// NewCollector returns a Collector reading from iss.
func NewCollector(iss *jwt.Issuer) *Collector {
	return NewCollectorFromSource(iss)
}

// NewCollectorFromSource returns a Collector reading from source.
func NewCollectorFromSource(source metricsSource) *Collector {
	c := &Collector{
		source: source,
		auditDropped: promclient.NewDesc(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp,
			[]string{internaldefs.AuditCategoryLabel}, nil),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters = append(c.counters, counterDesc{id: def.ID, desc: promclient.NewDesc(def.Name, def.Help, nil, nil)})
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms = append(c.histograms, histogramDesc{id: def.ID, desc: promclient.NewDesc(def.Name, def.Help, nil, nil)})
	}
	for _, def := range internaldefs.PurposeCounterDefs {
		c.purposes = append(c.purposes, purposeDesc{
			value: def.Value,
			desc:  promclient.NewDesc(def.Name, def.Help, []string{internaldefs.PurposeLabel}, nil),
		})
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *promclient.Desc) {
	for _, d := range c.counters {
		ch <- d.desc
	}
	for _, h := range c.histograms {
		ch <- h.desc
	}
	for _, p := range c.purposes {
		ch <- p.desc
	}
	ch <- c.auditDropped
}

// Collect implements prometheus.Collector. Histograms are only emitted while latency
// histograms are enabled on the source, and purpose series only for purposes that saw a
// key event.
func (c *Collector) Collect(ch chan<- promclient.Metric) {
	if c.source == nil {
		return
	}
	snapshot := c.source.MetricsSnapshot()

	for _, d := range c.counters {
		ch <- promclient.MustNewConstMetric(d.desc, promclient.CounterValue, float64(snapshot.Counters[d.id]))
	}
	for _, h := range c.histograms {
		raw, ok := snapshot.Histograms[h.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for i, bound := range internaldefs.HistogramUpperBounds {
			buckets[bound] = cumulative[i]
		}
		ch <- promclient.MustNewConstHistogram(h.desc, cumulative[len(cumulative)-1], 0, buckets)
	}
	for _, name := range internaldefs.Purposes(snapshot) {
		counts := snapshot.Purposes[name]
		for _, p := range c.purposes {
			ch <- promclient.MustNewConstMetric(p.desc, promclient.CounterValue, float64(p.value(counts)), name)
		}
	}
	for _, category := range internaldefs.AuditCategories() {
		ch <- promclient.MustNewConstMetric(c.auditDropped, promclient.CounterValue,
			float64(snapshot.AuditDropped[category]), category)
	}
}
