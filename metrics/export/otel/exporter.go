package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgefirst-dev/jwt"
	"github.com/edgefirst-dev/jwt/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Constructor errors.
var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() jwt.MetricsSnapshot
}

type observedCounter struct {
	id         jwt.MetricID
	instrument metric.Int64ObservableCounter
}

type observedHistogram struct {
	id      jwt.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// observedPurpose is one per-purpose lifecycle counter, observed once per purpose with a
// "purpose" attribute.
type observedPurpose struct {
	value      func(jwt.PurposeCounters) uint64
	instrument metric.Int64ObservableCounter
}

// OTelExporter publishes Issuer metrics as observable instruments on a caller-owned Meter.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []observedCounter
	histograms   []observedHistogram
	purposes     []observedPurpose
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers instruments reading from iss.
func NewOTelExporter(meter metric.Meter, iss *jwt.Issuer) (*OTelExporter, error) {
	if iss == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, iss)
}

// NewOTelExporterFromSource registers instruments reading from source. One callback
// takes a single snapshot per collection.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		h := observedHistogram{id: def.ID}
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
			if err != nil {
				return nil, fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
			}
			h.buckets[i] = ins
			observables = append(observables, ins)
		}
		countIns, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription("Histogram total sample count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram count gauge %s_count: %w", def.Name, err)
		}
		h.count = countIns
		observables = append(observables, countIns)
		e.histograms = append(e.histograms, h)
	}

	for _, def := range internaldefs.PurposeCounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create purpose counter %s: %w", def.Name, err)
		}
		e.purposes = append(e.purposes, observedPurpose{value: def.Value, instrument: ins})
		observables = append(observables, ins)
	}

	auditDropped, err := meter.Int64ObservableCounter(
		internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()

	for _, c := range e.counters {
		observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[h.id]))
		for i, n := range cumulative {
			observer.ObserveInt64(h.buckets[i], int64(n))
		}
		observer.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	for _, name := range internaldefs.Purposes(snapshot) {
		attrs := metric.WithAttributes(attribute.String(internaldefs.PurposeLabel, name))
		for _, p := range e.purposes {
			observer.ObserveInt64(p.instrument, int64(p.value(snapshot.Purposes[name])), attrs)
		}
	}
	for _, category := range internaldefs.AuditCategories() {
		observer.ObserveInt64(e.auditDropped, int64(snapshot.AuditDropped[category]),
			metric.WithAttributes(attribute.String(internaldefs.AuditCategoryLabel, category)))
	}
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
