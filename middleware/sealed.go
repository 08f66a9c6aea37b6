package middleware

import (
	"context"
	"net/http"

	"github.com/edgefirst-dev/jwt"
	"github.com/edgefirst-dev/jwt/claims"
)

// RequireSealed admits only encrypted nested tokens produced by Issuer.Seal. Plain signed
// tokens are rejected.
func RequireSealed(iss *jwt.Issuer, opts ...Option) func(http.Handler) http.Handler {
	return guard(iss, func(ctx context.Context, tok string) (claims.View, error) {
		return iss.Open(ctx, tok)
	}, opts)
}
