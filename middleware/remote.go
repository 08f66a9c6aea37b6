package middleware

import (
	"context"
	"net/http"

	"github.com/edgefirst-dev/jwt"
	"github.com/edgefirst-dev/jwt/claims"
)

// RequireRemote admits requests whose bearer token verifies against the key set published
// at url. iss supplies the fetch cache and the configured issuer and audience checks.
func RequireRemote(iss *jwt.Issuer, url string, opts ...Option) func(http.Handler) http.Handler {
	return guard(iss, func(ctx context.Context, tok string) (claims.View, error) {
		return iss.VerifyRemote(ctx, tok, url)
	}, opts)
}
