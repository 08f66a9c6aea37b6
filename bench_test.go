package jwt

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edgefirst-dev/jwt/claims"
	"github.com/edgefirst-dev/jwt/storage/memory"
)

func newBenchIssuer(b *testing.B) *Issuer {
	b.Helper()

	iss, err := New().WithStorage(memory.New()).WithMetricsEnabled(true).Build()
	if err != nil {
		b.Fatalf("Build failed: %v", err)
	}
	b.Cleanup(iss.Close)
	return iss
}

func BenchmarkIssuerSign(b *testing.B) {
	iss := newBenchIssuer(b)
	ctx := context.Background()
	c := claims.New(map[string]any{"sub": "user-1", "scope": "read write"})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := iss.Sign(ctx, c); err != nil {
			b.Fatalf("sign: %v", err)
		}
	}
}

func BenchmarkIssuerVerify(b *testing.B) {
	iss := newBenchIssuer(b)
	ctx := context.Background()
	tok, err := iss.Sign(ctx, claims.New(map[string]any{"sub": "user-1"}))
	if err != nil {
		b.Fatalf("sign: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := iss.Verify(ctx, tok); err != nil {
				b.Errorf("verify: %v", err)
				return
			}
		}
	})
}

func BenchmarkMetricsInc(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m.Inc(MetricTokensVerified)
	}
}

func BenchmarkMetricsIncDisabled(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m.Inc(MetricTokensVerified)
	}
}

func BenchmarkMetricsObserveLatencyParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	d := 12 * time.Millisecond
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Observe(MetricVerifyLatency, d)
		}
	})
}

type packedBenchmarkMetrics struct {
	counters [metricIDCount]uint64
}

func (m *packedBenchmarkMetrics) Inc(id MetricID) {
	atomic.AddUint64(&m.counters[id], 1)
}

var mixedHotMetricIDs = [...]MetricID{
	MetricKeysScanned,
	MetricTokensSigned,
	MetricTokensVerified,
	MetricVerifyFailure,
	MetricRemoteCacheHit,
	MetricTokensDecrypted,
}

// The padded and packed variants compare false sharing between hot counters.
func BenchmarkMetricsIncMixedParallelPadded(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		idx := 0
		for pb.Next() {
			m.Inc(mixedHotMetricIDs[idx])
			idx++
			if idx == len(mixedHotMetricIDs) {
				idx = 0
			}
		}
	})
}

func BenchmarkMetricsIncMixedParallelPacked(b *testing.B) {
	m := &packedBenchmarkMetrics{}
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		idx := 0
		for pb.Next() {
			m.Inc(mixedHotMetricIDs[idx])
			idx++
			if idx == len(mixedHotMetricIDs) {
				idx = 0
			}
		}
	})
}
