package jwt

import (
	"context"
	"maps"
	"strings"
	"sync/atomic"
	"time"

	"github.com/edgefirst-dev/jwt/claims"
	"github.com/edgefirst-dev/jwt/internal/audit"
	"github.com/edgefirst-dev/jwt/jwks"
	"github.com/edgefirst-dev/jwt/keys"
	"github.com/edgefirst-dev/jwt/token"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// Issuer signs and verifies tokens with keys managed in storage.
//
// Issuer holds no key material; each operation loads the current key set, generating the
// first pair for a purpose on demand.
type Issuer struct {
	config  Config
	keys    *keys.Manager
	signing keys.Purpose
	fetcher *jwks.Fetcher
	audit   *audit.Dispatcher
	metrics *Metrics
	logger  logr.Logger
	now     func() time.Time
	closed  atomic.Bool
}

// Close stops the audit dispatcher after flushing it. Later calls fail with ErrIssuerClosed.
func (i *Issuer) Close() {
	if i == nil {
		return
	}
	i.closed.Store(true)
	if i.audit != nil {
		i.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded under backpressure.
func (i *Issuer) AuditDropped() uint64 {
	if i == nil {
		return 0
	}
	return i.audit.Dropped()
}

// MetricsSnapshot copies the Issuer counters. Audit drops are included even while metrics
// are disabled.
func (i *Issuer) MetricsSnapshot() MetricsSnapshot {
	if i == nil {
		return emptySnapshot()
	}
	s := i.metrics.Snapshot()
	s.AuditDropped = i.audit.DroppedByCategory()
	return s
}

func (i *Issuer) metricInc(id MetricID) {
	if i == nil || i.metrics == nil {
		return
	}
	i.metrics.Inc(id)
}

// KeyManager exposes the underlying key manager.
func (i *Issuer) KeyManager() *keys.Manager {
	return i.keys
}

// Purpose resolves "signing" or "encryption", applying the configured signing algorithm.
func (i *Issuer) Purpose(name string) (keys.Purpose, error) {
	p, err := keys.ParsePurpose(name)
	if err != nil {
		return keys.Purpose{}, err
	}
	if p.Name == keys.Signing.Name {
		return i.signing, nil
	}
	return p, nil
}

func (i *Issuer) ready() error {
	if i == nil || i.closed.Load() {
		return ErrIssuerClosed
	}
	return nil
}

// SigningKeys returns the signing key set, newest first.
func (i *Issuer) SigningKeys(ctx context.Context) ([]keys.KeyPair, error) {
	if err := i.ready(); err != nil {
		return nil, err
	}
	return i.keys.KeysFor(ctx, i.signing)
}

// EncryptionKeys returns the encryption key set, newest first.
func (i *Issuer) EncryptionKeys(ctx context.Context) ([]keys.KeyPair, error) {
	if err := i.ready(); err != nil {
		return nil, err
	}
	return i.keys.KeysFor(ctx, keys.Encryption)
}

// Rotate expires the current keys of the named purpose and generates a successor.
func (i *Issuer) Rotate(ctx context.Context, purpose string) ([]keys.KeyPair, error) {
	if err := i.ready(); err != nil {
		return nil, err
	}
	p, err := i.Purpose(purpose)
	if err != nil {
		return nil, err
	}
	return i.keys.Rotate(ctx, p)
}

// JWKS returns the public signing key set, rotated keys included.
func (i *Issuer) JWKS(ctx context.Context) (jose.JSONWebKeySet, error) {
	if err := i.ready(); err != nil {
		return jose.JSONWebKeySet{}, err
	}
	pairs, err := i.keys.PublicKeys(ctx, i.signing)
	if err != nil {
		return jose.JSONWebKeySet{}, err
	}
	return jwks.Publish(pairs), nil
}

// Sign signs a copy of c with the newest signing key. Unset iss, aud, and iat take the
// configured defaults, exp is set from Token.TTL when absent, and a jti is generated when
// Token.GenerateID is on. c itself is not modified.
func (i *Issuer) Sign(ctx context.Context, c claims.View) (string, error) {
	if err := i.ready(); err != nil {
		return "", err
	}
	pairs, err := i.keys.KeysFor(ctx, i.signing)
	if err != nil {
		i.metricInc(MetricSignFailure)
		return "", err
	}

	out := claims.New(maps.Clone(c.Payload())).WithClock(i.now)
	i.applyDefaults(out)

	signed, err := token.Sign(out, i.signing.Algorithm, pairs)
	if err != nil {
		i.metricInc(MetricSignFailure)
		return "", err
	}
	i.metricInc(MetricTokensSigned)
	return signed, nil
}

func (i *Issuer) applyDefaults(c *claims.Claims) {
	cfg := i.config.Token
	if c.Issuer() == "" && cfg.Issuer != "" {
		c.SetIssuer(cfg.Issuer)
	}
	if len(c.Audience()) == 0 && cfg.Audience != "" {
		c.SetAudience(cfg.Audience)
	}
	if _, ok := c.IssuedAt(); !ok {
		c.SetIssuedAt(i.now())
	}
	if _, ok := c.ExpiresAt(); !ok && cfg.TTL > 0 {
		c.SetExpiresIn(cfg.TTL)
	}
	if c.ID() == "" && cfg.GenerateID {
		c.SetID(uuid.NewString())
	}
}

func (i *Issuer) verifyOptions() token.VerifyOptions {
	cfg := i.config.Token
	return token.VerifyOptions{
		Audience:      cfg.Audience,
		Issuer:        cfg.Issuer,
		Leeway:        cfg.Leeway,
		RequireExpiry: cfg.RequireExpiry,
		MaxFutureIAT:  cfg.MaxFutureIAT,
		Now:           i.now,
	}
}

// Verify checks tok against the signing key set and the configured issuer and audience.
func (i *Issuer) Verify(ctx context.Context, tok string) (*claims.Claims, error) {
	return VerifyAs(ctx, i, tok, claims.New)
}

// VerifyAs is Issuer.Verify rebuilding the claims through factory.
func VerifyAs[T claims.View](ctx context.Context, i *Issuer, tok string, factory claims.Factory[T]) (T, error) {
	var zero T
	if err := i.ready(); err != nil {
		return zero, err
	}
	start := i.now()
	defer func() {
		if i.metrics.LatencyEnabled() {
			i.metrics.Observe(MetricVerifyLatency, i.now().Sub(start))
		}
	}()

	pairs, err := i.keys.KeysFor(ctx, i.signing)
	if err != nil {
		i.verifyFailed(ctx, tok, err)
		return zero, err
	}
	v, err := token.VerifyAs(tok, pairs, i.verifyOptions(), factory)
	if err != nil {
		i.verifyFailed(ctx, tok, err)
		return zero, err
	}
	i.metricInc(MetricTokensVerified)
	return v, nil
}

// VerifyRemote checks tok against the key set published at url.
func (i *Issuer) VerifyRemote(ctx context.Context, tok, url string) (*claims.Claims, error) {
	if err := i.ready(); err != nil {
		return nil, err
	}
	pairs, err := i.ImportRemote(ctx, url)
	if err != nil {
		i.verifyFailed(ctx, tok, err)
		return nil, err
	}
	c, err := token.Verify(tok, pairs, i.verifyOptions())
	if err != nil {
		i.verifyFailed(ctx, tok, err)
		return nil, err
	}
	i.metricInc(MetricTokensVerified)
	return c, nil
}

func (i *Issuer) verifyFailed(ctx context.Context, tok string, err error) {
	i.metricInc(MetricVerifyFailure)
	kid, _ := token.KeyID(tok)
	i.logger.V(1).Info("token verification failed", "kid", kid, "error", err.Error())
	i.emitAudit(ctx, AuditEventTokenVerifyFailed, false, i.signing.Name, kid, "", err, nil)
}

// Decode returns the payload of tok without verifying it.
func (i *Issuer) Decode(tok string) (*claims.Claims, error) {
	return token.Decode(tok)
}

// ImportRemote fetches a JWKS through the Issuer's cached fetcher.
func (i *Issuer) ImportRemote(ctx context.Context, url string) ([]keys.KeyPair, error) {
	if err := i.ready(); err != nil {
		return nil, err
	}
	return i.fetcher.Import(ctx, url, jwks.ImportOptions{Algorithm: i.signing.Algorithm})
}

func (i *Issuer) observeFetch(url string, cached bool, err error) {
	if cached {
		i.metricInc(MetricRemoteCacheHit)
		return
	}
	i.metricInc(MetricRemoteFetch)
	if err != nil {
		i.metricInc(MetricRemoteFetchFailure)
		i.emitAudit(context.Background(), AuditEventJWKSFetchFailed, false, "", "", "", err, func() map[string]string {
			return map[string]string{"url": url}
		})
	}
}

// Encrypt seals payload for the newest encryption key.
func (i *Issuer) Encrypt(ctx context.Context, payload []byte) (string, error) {
	pairs, err := i.EncryptionKeys(ctx)
	if err != nil {
		return "", err
	}
	out, err := token.Encrypt(payload, pairs, "")
	if err != nil {
		return "", err
	}
	i.metricInc(MetricTokensEncrypted)
	return out, nil
}

// Decrypt opens a JWE sealed by Encrypt, including ones sealed before a rotation.
func (i *Issuer) Decrypt(ctx context.Context, jwe string) ([]byte, error) {
	pairs, err := i.EncryptionKeys(ctx)
	if err != nil {
		return nil, err
	}
	out, err := token.Decrypt(jwe, pairs)
	if err != nil {
		i.metricInc(MetricDecryptFailure)
		i.emitAudit(ctx, AuditEventTokenDecryptFail, false, keys.Encryption.Name, "", "", err, nil)
		return nil, err
	}
	i.metricInc(MetricTokensDecrypted)
	return out, nil
}

// Seal signs c and encrypts the result, producing a nested JWT.
func (i *Issuer) Seal(ctx context.Context, c claims.View) (string, error) {
	signed, err := i.Sign(ctx, c)
	if err != nil {
		return "", err
	}
	return i.Encrypt(ctx, []byte(signed))
}

// Open decrypts and verifies a token produced by Seal.
func (i *Issuer) Open(ctx context.Context, sealed string) (*claims.Claims, error) {
	inner, err := i.Decrypt(ctx, sealed)
	if err != nil {
		return nil, err
	}
	return i.Verify(ctx, string(inner))
}

func (i *Issuer) keyHooks() keys.Hooks {
	return keys.Hooks{
		OnScan: func(_ keys.Purpose, _ int, elapsed time.Duration) {
			i.metricInc(MetricKeysScanned)
			if i.metrics.LatencyEnabled() {
				i.metrics.Observe(MetricKeysForLatency, elapsed)
			}
		},
		OnGenerate: func(ctx context.Context, p keys.Purpose, pair keys.KeyPair) {
			i.metrics.KeyGenerated(p.Name)
			i.emitAudit(ctx, AuditEventKeyGenerated, true, p.Name, pair.ID, "", nil, func() map[string]string {
				return map[string]string{"alg": pair.Algorithm.String()}
			})
		},
		OnRotate: func(ctx context.Context, p keys.Purpose, superseded []string, next keys.KeyPair) {
			i.metrics.KeysRotated(p.Name, len(superseded))
			i.emitAudit(ctx, AuditEventKeyRotated, true, p.Name, next.ID, "", nil, func() map[string]string {
				return map[string]string{"superseded": strings.Join(superseded, ",")}
			})
		},
		OnLockContention: func(keys.Purpose) {
			i.metricInc(MetricLockContention)
		},
		OnRace: func(p keys.Purpose) {
			i.metrics.KeyGenerationRace(p.Name)
			i.emitAudit(context.Background(), AuditEventKeyRace, false, p.Name, "", "", keys.ErrKeyGenerationRace, nil)
		},
	}
}
