package token

import (
	"fmt"
	"time"

	"github.com/edgefirst-dev/jwt/claims"
	"github.com/edgefirst-dev/jwt/keys"
	"github.com/golang-jwt/jwt/v5"
)

// VerifyOptions narrows what Verify accepts beyond a valid signature.
type VerifyOptions struct {
	// Audience, when set, must appear in aud.
	Audience string
	// Issuer, when set, must equal iss.
	Issuer string
	// Subject, when set, must equal sub.
	Subject string
	// Leeway tolerates clock skew on exp, nbf, and iat.
	Leeway time.Duration
	// RequireExpiry rejects tokens without exp.
	RequireExpiry bool
	// MaxFutureIAT rejects tokens issued further than this in the future. Zero disables.
	MaxFutureIAT time.Duration
	// Now overrides time.Now for validation and for the returned claims.
	Now func() time.Time
}

func (o VerifyOptions) clock() func() time.Time {
	if o.Now != nil {
		return o.Now
	}
	return time.Now
}

func (o VerifyOptions) parserOptions(methods []string) []jwt.ParserOption {
	options := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithJSONNumber(),
		jwt.WithTimeFunc(o.clock()),
	}
	if o.Leeway > 0 {
		options = append(options, jwt.WithLeeway(o.Leeway))
	}
	if o.Audience != "" {
		options = append(options, jwt.WithAudience(o.Audience))
	}
	if o.Issuer != "" {
		options = append(options, jwt.WithIssuer(o.Issuer))
	}
	if o.Subject != "" {
		options = append(options, jwt.WithSubject(o.Subject))
	}
	if o.RequireExpiry {
		options = append(options, jwt.WithExpirationRequired())
	}
	return options
}

// Sign encodes c as a compact JWT with the first current pair in pairs whose algorithm is
// alg. The header carries alg, typ "JWT", and the pair id as kid.
func Sign(c claims.View, alg keys.Algorithm, pairs []keys.KeyPair) (string, error) {
	method := jwt.GetSigningMethod(string(alg))
	if method == nil {
		return "", fmt.Errorf("%w: %s", keys.ErrUnsupportedAlgorithm, alg)
	}

	var signer *keys.KeyPair
	for i := range pairs {
		if pairs[i].Algorithm == alg && pairs[i].Valid() && pairs[i].CanSign() {
			signer = &pairs[i]
			break
		}
	}
	if signer == nil {
		return "", fmt.Errorf("%w: %s", ErrNoSigningKey, alg)
	}

	tok := jwt.NewWithClaims(method, jwt.MapClaims(c.Payload()))
	tok.Header["kid"] = signer.ID
	return tok.SignedString(signer.PrivateKey)
}

// Verify checks the signature and registered claims of token against pairs and returns
// its claims. The pair whose id matches the kid header is preferred; otherwise the first
// pair carrying a public key is used. Validation failures are the JWT library's errors.
func Verify(token string, pairs []keys.KeyPair, opts VerifyOptions) (*claims.Claims, error) {
	return VerifyAs(token, pairs, opts, claims.New)
}

// VerifyAs is Verify rebuilding the claims through factory. When the built value
// implements claims.Validator its Validate error is returned.
func VerifyAs[T claims.View](token string, pairs []keys.KeyPair, opts VerifyOptions, factory claims.Factory[T]) (T, error) {
	var zero T

	methods := verificationMethods(pairs)
	if len(methods) == 0 {
		return zero, ErrNoVerificationKey
	}

	parser := jwt.NewParser(opts.parserOptions(methods)...)
	parsed, err := parser.ParseWithClaims(token, jwt.MapClaims{}, func(t *jwt.Token) (any, error) {
		pair, ok := selectVerifier(pairs, t)
		if !ok {
			return nil, ErrNoVerificationKey
		}
		if string(pair.Algorithm) != t.Method.Alg() {
			return nil, fmt.Errorf("key %s is %s, token is %s", pair.ID, pair.Algorithm, t.Method.Alg())
		}
		return pair.PublicKey, nil
	})
	if err != nil {
		return zero, err
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return zero, jwt.ErrTokenInvalidClaims
	}
	payload := map[string]any(mc)

	if opts.MaxFutureIAT > 0 {
		if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
			if iat.After(opts.clock()().Add(opts.MaxFutureIAT)) {
				return zero, fmt.Errorf("%w: iat too far in the future", jwt.ErrTokenUsedBeforeIssued)
			}
		}
	}

	return claims.Build(payload, withClock(factory, opts.clock()))
}

// Decode returns the payload of token without checking its signature.
// The result must never be used for trust decisions.
func Decode(token string) (*claims.Claims, error) {
	return DecodeAs(token, claims.New)
}

// DecodeAs is Decode rebuilding the claims through factory.
func DecodeAs[T claims.View](token string, factory claims.Factory[T]) (T, error) {
	var zero T
	parser := jwt.NewParser(jwt.WithJSONNumber())
	parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return zero, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return zero, ErrMalformedToken
	}
	return factory(map[string]any(mc)), nil
}

// KeyID returns the kid header of token without checking its signature.
func KeyID(token string) (string, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	kid, _ := parsed.Header["kid"].(string)
	return kid, nil
}

func verificationMethods(pairs []keys.KeyPair) []string {
	var methods []string
	seen := make(map[keys.Algorithm]bool)
	for _, p := range pairs {
		if p.PublicKey == nil || p.Algorithm.Use() != "sig" || seen[p.Algorithm] {
			continue
		}
		if jwt.GetSigningMethod(string(p.Algorithm)) == nil {
			continue
		}
		seen[p.Algorithm] = true
		methods = append(methods, string(p.Algorithm))
	}
	return methods
}

func selectVerifier(pairs []keys.KeyPair, t *jwt.Token) (keys.KeyPair, bool) {
	if kid, _ := t.Header["kid"].(string); kid != "" {
		for _, p := range pairs {
			if p.ID == kid && p.PublicKey != nil {
				return p, true
			}
		}
	}
	for _, p := range pairs {
		if p.PublicKey != nil && p.Algorithm.Use() == "sig" {
			return p, true
		}
	}
	return keys.KeyPair{}, false
}

// withClock points the base Claims clock at now when the factory output embeds one.
func withClock[T claims.View](factory claims.Factory[T], now func() time.Time) claims.Factory[T] {
	return func(payload map[string]any) T {
		v := factory(payload)
		if c, ok := any(v).(interface {
			WithClock(func() time.Time) *claims.Claims
		}); ok {
			c.WithClock(now)
		}
		return v
	}
}
