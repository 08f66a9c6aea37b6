package jwt

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// JWKSHandler serves the public signing key set, typically at /.well-known/jwks.json.
// maxAge sets Cache-Control; zero sends no-store.
func (i *Issuer) JWKSHandler(maxAge time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		set, err := i.JWKS(r.Context())
		if err != nil {
			i.logger.Error(err, "serve jwks")
			http.Error(w, "key set unavailable", http.StatusServiceUnavailable)
			return
		}
		body, err := json.Marshal(set)
		if err != nil {
			http.Error(w, "key set unavailable", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/jwk-set+json")
		if maxAge > 0 {
			w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(maxAge.Seconds())))
		} else {
			w.Header().Set("Cache-Control", "no-store")
		}
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(body)
		}
	})
}
