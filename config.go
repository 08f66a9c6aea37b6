package jwt

import (
	"errors"
	"strings"
	"time"

	"github.com/edgefirst-dev/jwt/keys"
)

// Config holds every tunable of an Issuer. Start from DefaultConfig.
type Config struct {
	Keys    KeysConfig    `yaml:"keys"`
	Token   TokenConfig   `yaml:"token"`
	Remote  RemoteConfig  `yaml:"remote"`
	Storage StorageConfig `yaml:"storage"`
	Audit   AuditConfig   `yaml:"audit"`
	Metrics MetricsConfig `yaml:"metrics"`
}

/*
====================================
KEYS CONFIG
====================================
*/

// KeysConfig controls discovery and generation of key pairs.
type KeysConfig struct {
	// Namespace prefixes every storage key, e.g. "tenant-a" gives "tenant-a:signing:key:<id>".
	Namespace string `yaml:"namespace"`
	// SigningAlgorithm is ES256, ES384, or ES512.
	SigningAlgorithm keys.Algorithm `yaml:"signing_algorithm"`
	// PageSize is the storage listing page size used while scanning. The default of 1 suits
	// stores with strict page limits; on Redis it becomes SCAN COUNT, and a scan then takes
	// roughly one round trip per hash bucket of the database, so Redis deployments should
	// set 100 or more.
	PageSize int `yaml:"page_size"`
	// MaxAttempts bounds scans per KeysFor before ErrKeyGenerationRace. At least 2.
	MaxAttempts int `yaml:"max_attempts"`
	// SerializeGeneration takes a storage lock around generation when the adapter supports it.
	SerializeGeneration bool          `yaml:"serialize_generation"`
	LockTTL             time.Duration `yaml:"lock_ttl"`
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig holds claim defaults applied by Sign and checks applied by Verify.
type TokenConfig struct {
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
	// TTL sets exp on signed tokens that carry none. Zero issues open-ended tokens.
	TTL           time.Duration `yaml:"ttl"`
	Leeway        time.Duration `yaml:"leeway"`
	MaxFutureIAT  time.Duration `yaml:"max_future_iat"`
	RequireExpiry bool          `yaml:"require_expiry"`
	// GenerateID sets a random jti on signed tokens that carry none.
	GenerateID bool `yaml:"generate_id"`
}

/*
====================================
REMOTE JWKS CONFIG
====================================
*/

// RemoteConfig controls fetching of external key sets.
type RemoteConfig struct {
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	Retries        int           `yaml:"retries"`
	Timeout        time.Duration `yaml:"timeout"`
	AllowLocalhost bool          `yaml:"allow_localhost"`
}

// StorageConfig applies when the Issuer builds its own Redis adapter.
type StorageConfig struct {
	RedisPrefix string `yaml:"redis_prefix"`
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration Build starts from.
func DefaultConfig() Config {
	return Config{
		Keys: KeysConfig{
			SigningAlgorithm:    keys.ES256,
			PageSize:            keys.DefaultPageSize,
			MaxAttempts:         2,
			SerializeGeneration: true,
			LockTTL:             10 * time.Second,
		},
		Token: TokenConfig{
			TTL:          15 * time.Minute,
			Leeway:       30 * time.Second,
			MaxFutureIAT: 10 * time.Minute,
		},
		Remote: RemoteConfig{
			CacheTTL: 5 * time.Minute,
			Retries:  3,
			Timeout:  10 * time.Second,
		},
		Storage: StorageConfig{
			RedisPrefix: "jwt",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	// Keys
	switch c.Keys.SigningAlgorithm {
	case keys.ES256, keys.ES384, keys.ES512:
	default:
		return errors.New("Keys SigningAlgorithm must be ES256, ES384, or ES512")
	}
	if strings.Contains(c.Keys.Namespace, "*") || strings.TrimSpace(c.Keys.Namespace) != c.Keys.Namespace {
		return errors.New("Keys Namespace must not contain spaces or wildcards")
	}
	if c.Keys.PageSize < 0 {
		return errors.New("Keys PageSize must be >= 0")
	}
	if c.Keys.MaxAttempts < 2 {
		return errors.New("Keys MaxAttempts must be >= 2")
	}
	if c.Keys.SerializeGeneration && c.Keys.LockTTL <= 0 {
		return errors.New("Keys LockTTL must be > 0 when SerializeGeneration is true")
	}

	// Token
	if c.Token.TTL < 0 {
		return errors.New("Token TTL must be >= 0")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 5*time.Minute {
		return errors.New("Token Leeway must be between 0 and 5m")
	}
	if c.Token.MaxFutureIAT < 0 || c.Token.MaxFutureIAT > 24*time.Hour {
		return errors.New("Token MaxFutureIAT must be between 0 and 24h")
	}
	if c.Token.Issuer != strings.TrimSpace(c.Token.Issuer) {
		return errors.New("Token Issuer must not have surrounding whitespace")
	}
	if c.Token.Audience != strings.TrimSpace(c.Token.Audience) {
		return errors.New("Token Audience must not have surrounding whitespace")
	}
	if c.Token.RequireExpiry && c.Token.TTL == 0 {
		return errors.New("Token RequireExpiry needs a TTL so signed tokens carry exp")
	}

	// Remote
	if c.Remote.CacheTTL < 0 {
		return errors.New("Remote CacheTTL must be >= 0")
	}
	if c.Remote.Retries < 0 || c.Remote.Retries > 10 {
		return errors.New("Remote Retries must be between 0 and 10")
	}
	if c.Remote.Timeout <= 0 {
		return errors.New("Remote Timeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
