package internaldefs

import (
	"slices"

	"github.com/edgefirst-dev/jwt"
	"github.com/edgefirst-dev/jwt/internal/audit"
)

// CounterDef binds a jwt.MetricID to its exported name.
type CounterDef struct {
	ID   jwt.MetricID
	Name string
	Help string
}

// HistogramDef binds a latency jwt.MetricID to its exported name.
type HistogramDef struct {
	ID   jwt.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: jwt.MetricKeysScanned, Name: "jwt_keys_scanned_total", Help: "Completed key storage scans."},
	{ID: jwt.MetricKeysGenerated, Name: "jwt_keys_generated_total", Help: "Generated and persisted key pairs."},
	{ID: jwt.MetricKeysRotated, Name: "jwt_keys_rotated_total", Help: "Key rotations."},
	{ID: jwt.MetricKeyGenerationRace, Name: "jwt_key_generation_race_total", Help: "Key lookups that gave up after a generated key stayed invisible."},
	{ID: jwt.MetricLockContention, Name: "jwt_key_lock_contention_total", Help: "Generations skipped because another holder of the lock produced a key."},
	{ID: jwt.MetricTokensSigned, Name: "jwt_tokens_signed_total", Help: "Signed tokens."},
	{ID: jwt.MetricSignFailure, Name: "jwt_sign_failure_total", Help: "Failed sign operations."},
	{ID: jwt.MetricTokensVerified, Name: "jwt_tokens_verified_total", Help: "Successfully verified tokens."},
	{ID: jwt.MetricVerifyFailure, Name: "jwt_verify_failure_total", Help: "Rejected tokens."},
	{ID: jwt.MetricTokensEncrypted, Name: "jwt_tokens_encrypted_total", Help: "Encrypted tokens."},
	{ID: jwt.MetricTokensDecrypted, Name: "jwt_tokens_decrypted_total", Help: "Successfully decrypted tokens."},
	{ID: jwt.MetricDecryptFailure, Name: "jwt_decrypt_failure_total", Help: "Failed decryptions."},
	{ID: jwt.MetricRemoteFetch, Name: "jwt_remote_fetch_total", Help: "Remote JWKS fetches that reached the network."},
	{ID: jwt.MetricRemoteFetchFailure, Name: "jwt_remote_fetch_failure_total", Help: "Failed remote JWKS fetches."},
	{ID: jwt.MetricRemoteCacheHit, Name: "jwt_remote_cache_hit_total", Help: "Remote JWKS lookups served from cache."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: jwt.MetricKeysForLatency, Name: "jwt_keys_scan_latency_seconds", Help: "Key storage scan latency histogram."},
	{ID: jwt.MetricVerifyLatency, Name: "jwt_verify_latency_seconds", Help: "Verify latency histogram, key loading included."},
}

// PurposeLabel is the label carrying the key purpose on PurposeCounterDefs series.
const PurposeLabel = "purpose"

// PurposeCounterDef binds one field of jwt.PurposeCounters to an exported counter.
type PurposeCounterDef struct {
	Name  string
	Help  string
	Value func(jwt.PurposeCounters) uint64
}

// PurposeCounterDefs are exported once per purpose found in a snapshot.
var PurposeCounterDefs = []PurposeCounterDef{
	{
		Name:  "jwt_purpose_keys_generated_total",
		Help:  "Generated key pairs per purpose.",
		Value: func(c jwt.PurposeCounters) uint64 { return c.Generated },
	},
	{
		Name:  "jwt_purpose_rotations_total",
		Help:  "Key rotations per purpose.",
		Value: func(c jwt.PurposeCounters) uint64 { return c.Rotations },
	},
	{
		Name:  "jwt_purpose_keys_superseded_total",
		Help:  "Key pairs expired by rotation per purpose.",
		Value: func(c jwt.PurposeCounters) uint64 { return c.Superseded },
	},
	{
		Name:  "jwt_purpose_generation_race_total",
		Help:  "Key lookups per purpose that gave up after a generated key stayed invisible.",
		Value: func(c jwt.PurposeCounters) uint64 { return c.Races },
	},
}

// Purposes returns the purpose names in s in a stable order.
func Purposes(s jwt.MetricsSnapshot) []string {
	names := make([]string, 0, len(s.Purposes))
	for name := range s.Purposes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// AuditDroppedName is the counter for audit events dropped under backpressure, labelled
// by AuditCategoryLabel.
const AuditDroppedName = "jwt_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure, by event category."

// AuditCategoryLabel is the label carrying the audit event category.
const AuditCategoryLabel = "category"

// AuditCategories are the category label values, always exported even when zero.
func AuditCategories() []string {
	out := make([]string, 0, len(audit.Categories))
	for _, c := range audit.Categories {
		out = append(out, c.String())
	}
	return out
}

// TotalAuditDropped sums the per-category drops of s.
func TotalAuditDropped(s jwt.MetricsSnapshot) uint64 {
	var total uint64
	for _, n := range s.AuditDropped {
		total += n
	}
	return total
}

// HistogramBounds are the bucket upper bounds as exposition labels.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramUpperBounds are the finite bucket upper bounds in seconds. The last bucket is
// implicit +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix are HistogramBounds spelled for instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed eight-bucket array, zero-filling.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
