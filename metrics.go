package jwt

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricID names one Issuer counter.
type MetricID uint16

const (
	// MetricKeysScanned counts completed storage scans.
	MetricKeysScanned MetricID = iota
	MetricKeysGenerated
	MetricKeysRotated
	// MetricKeyGenerationRace counts KeysFor calls that gave up with ErrKeyGenerationRace.
	MetricKeyGenerationRace
	// MetricLockContention counts generations skipped because another holder of the
	// generation lock already produced a key.
	MetricLockContention
	MetricTokensSigned
	MetricSignFailure
	MetricTokensVerified
	MetricVerifyFailure
	MetricTokensEncrypted
	MetricTokensDecrypted
	MetricDecryptFailure
	MetricRemoteFetch
	MetricRemoteFetchFailure
	MetricRemoteCacheHit
	// MetricKeysForLatency is a histogram of storage scan latency.
	MetricKeysForLatency
	// MetricVerifyLatency is a histogram of Verify latency, key loading included.
	MetricVerifyLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// PurposeCounters are the key lifecycle counts of one purpose.
type PurposeCounters struct {
	Generated uint64
	Rotations uint64
	// Superseded counts pairs stamped expired by rotations.
	Superseded uint64
	Races      uint64
}

type purposeCounters struct {
	generated  atomic.Uint64
	rotations  atomic.Uint64
	superseded atomic.Uint64
	races      atomic.Uint64
}

// Metrics is a set of lock-free counters and fixed-bucket latency histograms, plus key
// lifecycle counters per purpose. A nil or disabled Metrics ignores every call.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
	purposes      sync.Map // purpose name -> *purposeCounters
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
	// Purposes is keyed by purpose name and only holds purposes that saw a key event.
	Purposes map[string]PurposeCounters
	// AuditDropped is keyed by audit category: "key", "token", "jwks", "other".
	AuditDropped map[string]uint64
}

func emptySnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Counters:     map[MetricID]uint64{},
		Histograms:   map[MetricID][]uint64{},
		Purposes:     map[string]PurposeCounters{},
		AuditDropped: map[string]uint64{},
	}
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram for id. Only latency metrics have histograms.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || !isLatencyMetric(id) {
		return
	}
	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) purpose(name string) *purposeCounters {
	if v, ok := m.purposes.Load(name); ok {
		return v.(*purposeCounters)
	}
	v, _ := m.purposes.LoadOrStore(name, &purposeCounters{})
	return v.(*purposeCounters)
}

// KeyGenerated counts a generated pair, overall and for purpose.
func (m *Metrics) KeyGenerated(purpose string) {
	if !m.Enabled() {
		return
	}
	m.Inc(MetricKeysGenerated)
	m.purpose(purpose).generated.Add(1)
}

// KeysRotated counts a rotation of purpose that expired superseded pairs.
func (m *Metrics) KeysRotated(purpose string, superseded int) {
	if !m.Enabled() {
		return
	}
	m.Inc(MetricKeysRotated)
	pc := m.purpose(purpose)
	pc.rotations.Add(1)
	pc.superseded.Add(uint64(max(superseded, 0)))
}

// KeyGenerationRace counts a lookup for purpose that gave up with ErrKeyGenerationRace.
func (m *Metrics) KeyGenerationRace(purpose string) {
	if !m.Enabled() {
		return
	}
	m.Inc(MetricKeyGenerationRace)
	m.purpose(purpose).races.Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter, and every histogram when latency is enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return emptySnapshot()
	}

	s := emptySnapshot()

	for id := MetricID(0); id < metricIDCount; id++ {
		if isLatencyMetric(id) {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for _, id := range []MetricID{MetricKeysForLatency, MetricVerifyLatency} {
			buckets := make([]uint64, histBucketCount)
			for i := range histBucketCount {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}

	m.purposes.Range(func(name, v any) bool {
		pc := v.(*purposeCounters)
		s.Purposes[name.(string)] = PurposeCounters{
			Generated:  pc.generated.Load(),
			Rotations:  pc.rotations.Load(),
			Superseded: pc.superseded.Load(),
			Races:      pc.races.Load(),
		}
		return true
	})

	return s
}

func isLatencyMetric(id MetricID) bool {
	return id == MetricKeysForLatency || id == MetricVerifyLatency
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
