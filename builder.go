package jwt

import (
	"time"

	"github.com/edgefirst-dev/jwt/internal/audit"
	"github.com/edgefirst-dev/jwt/jwks"
	"github.com/edgefirst-dev/jwt/keys"
	"github.com/edgefirst-dev/jwt/storage"
	redisstore "github.com/edgefirst-dev/jwt/storage/redis"
	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Issuer. A Builder is single use.
type Builder struct {
	config Config
	store  storage.Adapter
	redis  redis.UniversalClient

	logger     logr.Logger
	auditSink  AuditSink
	clock      func() time.Time
	keyOptions []keys.Option

	built bool
}

// New returns a Builder starting from DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		logger: logr.Discard(),
	}
}

// WithConfig replaces the whole configuration. Call it before the other With methods,
// which adjust individual fields.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStorage sets the adapter keys are persisted to. It takes precedence over WithRedis.
func (b *Builder) WithStorage(store storage.Adapter) *Builder {
	b.store = store
	return b
}

// WithRedis stores keys in Redis under Config.Storage.RedisPrefix.
//
// Every Sign and Verify scans the purpose prefix with SCAN ... COUNT Config.Keys.PageSize.
// The default page size of 1 makes each scan cost about one round trip per hash bucket
// of the whole database, so raise Keys.PageSize (100 or more) on shared or large databases.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the logger for the Issuer and its key manager and fetcher.
func (b *Builder) WithLogger(l logr.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink enables auditing into sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithMetricsEnabled toggles the counters read by MetricsSnapshot and the exporters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the scan and verify latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides time.Now for key timestamps, claim defaults, validation, and audit
// event timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithKeyOptions appends options to the key manager after the ones derived from Config.
func (b *Builder) WithKeyOptions(opts ...keys.Option) *Builder {
	b.keyOptions = append(b.keyOptions, opts...)
	return b
}

// Build validates the configuration and returns a ready Issuer. It performs no storage I/O;
// keys are discovered or generated on first use.
func (b *Builder) Build() (*Issuer, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := b.store
	if store == nil {
		if b.redis == nil {
			return nil, ErrStorageRequired
		}
		store = redisstore.NewStore(b.redis, cfg.Storage.RedisPrefix)
	}

	now := b.clock
	if now == nil {
		now = time.Now
	}

	iss := &Issuer{
		config:  cfg,
		signing: keys.Signing.WithAlgorithm(cfg.Keys.SigningAlgorithm),
		metrics: NewMetrics(cfg.Metrics),
		logger:  b.logger,
		now:     now,
	}
	iss.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Now:        now,
	}, b.auditSink)

	opts := []keys.Option{
		keys.WithNamespace(cfg.Keys.Namespace),
		keys.WithPageSize(cfg.Keys.PageSize),
		keys.WithMaxAttempts(cfg.Keys.MaxAttempts),
		keys.WithSerializedGeneration(cfg.Keys.SerializeGeneration, cfg.Keys.LockTTL),
		keys.WithLogger(b.logger.WithName("keys")),
		keys.WithHooks(iss.keyHooks()),
		keys.WithClock(now),
	}
	iss.keys = keys.NewManager(store, append(opts, b.keyOptions...)...)

	iss.fetcher = jwks.NewFetcher(
		jwks.WithCacheTTL(cfg.Remote.CacheTTL),
		jwks.WithRetries(cfg.Remote.Retries),
		jwks.WithTimeout(cfg.Remote.Timeout),
		jwks.WithLocalhost(cfg.Remote.AllowLocalhost),
		jwks.WithLogger(b.logger.WithName("jwks")),
		jwks.WithObserver(iss.observeFetch),
	)

	b.built = true

	return iss, nil
}
