package jwt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/edgefirst-dev/jwt/claims"
	"github.com/edgefirst-dev/jwt/keys"
	"github.com/edgefirst-dev/jwt/storage/memory"
	gjwt "github.com/golang-jwt/jwt/v5"
)

func TestIssuerSignVerifyOverRedis(t *testing.T) {
	mr, rdb := newTestRedis(t)
	cfg := DefaultConfig()
	cfg.Token.Issuer = "https://auth.example"
	cfg.Token.Audience = "api"
	cfg.Token.GenerateID = true

	iss, err := New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer iss.Close()
	ctx := context.Background()

	c := claims.New(nil)
	c.SetSubject("user-1")
	tok, err := iss.Sign(ctx, c)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(strings.Split(tok, ".")) != 3 {
		t.Fatalf("not a compact JWT: %q", tok)
	}
	if len(c.Payload()) != 1 {
		t.Fatalf("Sign mutated caller claims: %v", c.Payload())
	}

	got, err := iss.Verify(ctx, tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Subject() != "user-1" || got.Issuer() != "https://auth.example" || got.ID() == "" || got.Expired() {
		t.Fatalf("unexpected claims %v", got.Payload())
	}
	in, ok := got.ExpiresIn()
	if !ok || in <= 0 || in > cfg.Token.TTL {
		t.Fatalf("ExpiresIn = %v, %v", in, ok)
	}

	stored := 0
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, "jwt:signing:key:") {
			stored++
		}
	}
	if stored != 1 {
		t.Fatalf("expected one stored signing key, got %d in %v", stored, mr.Keys())
	}
}

func TestIssuersSharingStorageAgreeOnKeys(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	signer := newTestIssuer(t, func(b *Builder) { b.WithStorage(store) })

	cfg := DefaultConfig()
	cfg.Token.Audience = "api"
	verifier := newTestIssuer(t, func(b *Builder) { b.WithConfig(cfg).WithStorage(store) })

	c := claims.New(nil)
	c.SetAudience("other-service")
	tok, err := signer.Sign(ctx, c)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := signer.Verify(ctx, tok); err != nil {
		t.Fatalf("signer without audience check should accept: %v", err)
	}
	if _, err := verifier.Verify(ctx, tok); !errors.Is(err, gjwt.ErrTokenInvalidAudience) {
		t.Fatalf("expected audience mismatch, got %v", err)
	}

	a, err := signer.SigningKeys(ctx)
	if err != nil {
		t.Fatalf("signer keys: %v", err)
	}
	b, err := verifier.SigningKeys(ctx)
	if err != nil {
		t.Fatalf("verifier keys: %v", err)
	}
	if len(a) != 1 || len(b) != 1 || a[0].ID != b[0].ID {
		t.Fatalf("issuers disagree on keys: %v vs %v", a, b)
	}
}

func TestIssuerKeepsCallerClaims(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	iss := newTestIssuer(t, func(b *Builder) { b.WithClock(func() time.Time { return now }) })

	c := claims.New(nil)
	c.SetIssuer("custom-issuer")
	c.SetExpiresAt(now.Add(time.Hour))
	c.SetIssuedAt(now.Add(-time.Minute))
	tok, err := iss.Sign(context.Background(), c)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := iss.Decode(tok)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Issuer() != "custom-issuer" {
		t.Fatalf("issuer overwritten: %q", got.Issuer())
	}
	exp, _ := got.ExpiresAt()
	if !exp.Equal(now.Add(time.Hour)) {
		t.Fatalf("exp overwritten: %v", exp)
	}
	if got.ID() != "" {
		t.Fatal("jti generated without GenerateID")
	}
}

func TestIssuerOpenEndedTokens(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Token.TTL = 0
	iss := newTestIssuer(t, func(b *Builder) { b.WithConfig(cfg) })
	ctx := context.Background()

	tok, err := iss.Sign(ctx, claims.New(map[string]any{"scope": "read"}))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := iss.Verify(ctx, tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, ok := got.ExpiresAt(); ok || got.Expired() {
		t.Fatal("open-ended token must have no exp and never expire")
	}
}

func TestIssuerRotationKeepsOldTokensValid(t *testing.T) {
	iss := newTestIssuer(t, nil)
	ctx := context.Background()

	old, err := iss.Sign(ctx, claims.New(nil))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	before, err := iss.SigningKeys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}

	after, err := iss.Rotate(ctx, "signing")
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if len(after) != 2 || after[0].ID == before[0].ID || !after[0].Valid() || after[1].Valid() {
		t.Fatalf("unexpected key set after rotation: %+v", after)
	}

	fresh, err := iss.Sign(ctx, claims.New(nil))
	if err != nil {
		t.Fatalf("sign after rotate: %v", err)
	}
	for name, tok := range map[string]string{"old": old, "fresh": fresh} {
		if _, err := iss.Verify(ctx, tok); err != nil {
			t.Fatalf("%s token: %v", name, err)
		}
	}

	set, err := iss.JWKS(ctx)
	if err != nil {
		t.Fatalf("jwks: %v", err)
	}
	if len(set.Keys) != 2 {
		t.Fatalf("expected both keys published, got %d", len(set.Keys))
	}

	if _, err := iss.Rotate(ctx, "bogus"); !errors.Is(err, ErrInvalidPurpose) {
		t.Fatalf("expected ErrInvalidPurpose, got %v", err)
	}
}

func TestIssuerNamespacesIsolateKeys(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	tenant := func(ns string) *Issuer {
		cfg := DefaultConfig()
		cfg.Keys.Namespace = ns
		return newTestIssuer(t, func(b *Builder) { b.WithConfig(cfg).WithStorage(store) })
	}
	a, b := tenant("tenant-a"), tenant("tenant-b")

	tok, err := a.Sign(ctx, claims.New(nil))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := b.Verify(ctx, tok); !errors.Is(err, gjwt.ErrTokenSignatureInvalid) {
		t.Fatalf("tenant b must not accept tenant a tokens: %v", err)
	}
}

func TestIssuerES384(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Keys.SigningAlgorithm = keys.ES384
	iss := newTestIssuer(t, func(b *Builder) { b.WithConfig(cfg) })
	ctx := context.Background()

	tok, err := iss.Sign(ctx, claims.New(nil))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	parsed, _, err := gjwt.NewParser().ParseUnverified(tok, gjwt.MapClaims{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Method.Alg() != "ES384" {
		t.Fatalf("alg = %s", parsed.Method.Alg())
	}
	if _, err := iss.Verify(ctx, tok); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestIssuerSigningAlgorithmChangeOverExistingStore(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	es256 := newTestIssuer(t, func(b *Builder) { b.WithStorage(store) })
	oldTok, err := es256.Sign(ctx, claims.New(nil))
	if err != nil {
		t.Fatalf("sign ES256: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Keys.SigningAlgorithm = keys.ES384
	es384 := newTestIssuer(t, func(b *Builder) { b.WithConfig(cfg).WithStorage(store) })
	for range 3 {
		if _, err := es384.Sign(ctx, claims.New(nil)); err != nil {
			t.Fatalf("sign ES384: %v", err)
		}
	}
	newTok, err := es384.Sign(ctx, claims.New(nil))
	if err != nil {
		t.Fatalf("sign ES384: %v", err)
	}

	pairs, err := es384.SigningKeys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("expected one key per algorithm, got %d", len(pairs))
	}
	if _, err := es384.Verify(ctx, oldTok); err != nil {
		t.Fatalf("ES256 token rejected after switching: %v", err)
	}
	if _, err := es256.Verify(ctx, newTok); err != nil {
		t.Fatalf("ES384 token rejected by ES256 issuer: %v", err)
	}
}

func TestIssuerSealOpen(t *testing.T) {
	iss := newTestIssuer(t, func(b *Builder) { b.WithMetricsEnabled(true) })
	ctx := context.Background()

	c := claims.New(nil)
	c.SetSubject("sealed")
	sealed, err := iss.Seal(ctx, c)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if len(strings.Split(sealed, ".")) != 5 {
		t.Fatalf("not a compact JWE: %q", sealed)
	}
	got, err := iss.Open(ctx, sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got.Subject() != "sealed" {
		t.Fatalf("subject = %q", got.Subject())
	}

	if _, err := iss.Rotate(ctx, "encryption"); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if _, err := iss.Open(ctx, sealed); err != nil {
		t.Fatalf("open after rotation: %v", err)
	}
	if _, err := iss.Decrypt(ctx, "garbage"); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("expected ErrDecrypt, got %v", err)
	}

	snap := iss.MetricsSnapshot()
	if snap.Counters[MetricTokensEncrypted] != 1 || snap.Counters[MetricTokensDecrypted] != 2 || snap.Counters[MetricDecryptFailure] != 1 {
		t.Fatalf("unexpected counters %v", snap.Counters)
	}
}

type tenantClaims struct {
	*claims.Claims
}

func (c tenantClaims) Tenant() string {
	v, _ := c.GetString("tenant")
	return v
}

func (c tenantClaims) Validate() error {
	if c.Tenant() == "" {
		return errors.New("tenant claim required")
	}
	return nil
}

func newTenantClaims(p map[string]any) tenantClaims { return tenantClaims{claims.New(p)} }

func TestVerifyAsSubtype(t *testing.T) {
	iss := newTestIssuer(t, nil)
	ctx := context.Background()

	tok, err := iss.Sign(ctx, claims.New(map[string]any{"tenant": "acme"}))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := VerifyAs(ctx, iss, tok, newTenantClaims)
	if err != nil {
		t.Fatalf("verify as: %v", err)
	}
	if got.Tenant() != "acme" {
		t.Fatalf("tenant = %q", got.Tenant())
	}

	bare, err := iss.Sign(ctx, claims.New(nil))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := VerifyAs(ctx, iss, bare, newTenantClaims); err == nil {
		t.Fatal("expected validator rejection")
	}
}

func TestIssuerClosed(t *testing.T) {
	iss := newTestIssuer(t, nil)
	iss.Close()
	ctx := context.Background()

	if _, err := iss.Sign(ctx, claims.New(nil)); !errors.Is(err, ErrIssuerClosed) {
		t.Fatalf("sign: %v", err)
	}
	if _, err := iss.Verify(ctx, "x.y.z"); !errors.Is(err, ErrIssuerClosed) {
		t.Fatalf("verify: %v", err)
	}
	if _, err := iss.JWKS(ctx); !errors.Is(err, ErrIssuerClosed) {
		t.Fatalf("jwks: %v", err)
	}
	iss.Close()
}

func TestJWKSHandlerAndVerifyRemote(t *testing.T) {
	signer := newTestIssuer(t, nil)
	srv := httptest.NewServer(signer.JWKSHandler(time.Minute))
	t.Cleanup(srv.Close)
	ctx := context.Background()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/jwk-set+json" {
		t.Fatalf("content type = %q", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "public, max-age=60" {
		t.Fatalf("cache control = %q", cc)
	}
	var doc struct {
		Keys []map[string]any `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Keys) != 1 || doc.Keys[0]["kty"] != "EC" {
		t.Fatalf("unexpected document %v", doc)
	}
	if _, ok := doc.Keys[0]["d"]; ok {
		t.Fatal("private key published")
	}

	post, err := http.Post(srv.URL, "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("post status = %d", post.StatusCode)
	}

	cfg := DefaultConfig()
	cfg.Remote.AllowLocalhost = true
	verifier := newTestIssuer(t, func(b *Builder) { b.WithConfig(cfg).WithMetricsEnabled(true) })

	c := claims.New(nil)
	c.SetSubject("remote")
	tok, err := signer.Sign(ctx, c)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	for range 2 {
		got, err := verifier.VerifyRemote(ctx, tok, srv.URL)
		if err != nil {
			t.Fatalf("verify remote: %v", err)
		}
		if got.Subject() != "remote" {
			t.Fatalf("subject = %q", got.Subject())
		}
	}
	snap := verifier.MetricsSnapshot()
	if snap.Counters[MetricRemoteFetch] != 1 || snap.Counters[MetricRemoteCacheHit] != 1 {
		t.Fatalf("unexpected fetch counters %v", snap.Counters)
	}
}

func TestVerifyRemoteRequiresHTTPS(t *testing.T) {
	iss := newTestIssuer(t, func(b *Builder) { b.WithMetricsEnabled(true) })
	_, err := iss.VerifyRemote(context.Background(), "a.b.c", "http://127.0.0.1:1/jwks.json")
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
	if iss.MetricsSnapshot().Counters[MetricRemoteFetchFailure] != 1 {
		t.Fatal("fetch failure not counted")
	}
}
