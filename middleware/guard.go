package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/edgefirst-dev/jwt"
	"github.com/edgefirst-dev/jwt/claims"
)

// ErrorHandler writes the response for a rejected request.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Option configures a guard.
type Option func(*options)

type options struct {
	onError ErrorHandler
}

// WithErrorHandler replaces the default 401 response.
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *options) {
		if h != nil {
			o.onError = h
		}
	}
}

func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, _ error) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// Guard admits requests whose bearer token verifies against iss.
func Guard(iss *jwt.Issuer, opts ...Option) func(http.Handler) http.Handler {
	return GuardAs(iss, claims.New, opts...)
}

// GuardAs is Guard rebuilding the verified claims through factory. Handlers retrieve them
// with jwt.ClaimsAs[T].
func GuardAs[T claims.View](iss *jwt.Issuer, factory claims.Factory[T], opts ...Option) func(http.Handler) http.Handler {
	return guard(iss, func(ctx context.Context, tok string) (claims.View, error) {
		return jwt.VerifyAs(ctx, iss, tok, factory)
	}, opts)
}

type verifyFunc func(ctx context.Context, tok string) (claims.View, error)

func guard(iss *jwt.Issuer, verify verifyFunc, opts []Option) func(http.Handler) http.Handler {
	o := options{onError: defaultErrorHandler}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if iss == nil {
				o.onError(w, r, jwt.ErrIssuerClosed)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				o.onError(w, r, jwt.ErrMalformedToken)
				return
			}

			ctx := r.Context()
			if ip := clientIP(r); ip != "" {
				ctx = jwt.WithClientIP(ctx, ip)
			}

			c, err := verify(ctx, token)
			if err != nil {
				o.onError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(jwt.WithClaims(ctx, c)))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
