package jwt

import (
	"context"

	"github.com/edgefirst-dev/jwt/claims"
)

type clientIPContextKey struct{}
type claimsContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. It is copied into audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithClaims attaches verified claims to ctx.
func WithClaims(ctx context.Context, c claims.View) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, c)
}

// ClaimsFromContext returns claims stored by WithClaims.
func ClaimsFromContext(ctx context.Context) (claims.View, bool) {
	if ctx == nil {
		return nil, false
	}
	c, ok := ctx.Value(claimsContextKey{}).(claims.View)
	return c, ok
}

// ClaimsAs returns the claims stored by WithClaims as T, for subtypes built with VerifyAs.
func ClaimsAs[T claims.View](ctx context.Context) (T, bool) {
	v, ok := ClaimsFromContext(ctx)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}
