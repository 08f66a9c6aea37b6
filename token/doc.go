// Package token signs, verifies, decodes, and encrypts compact JWTs against key pairs
// produced by package keys.
//
// # Architecture boundaries
//
// The functions here are stateless. Key selection happens per call over the slice the
// caller passes in, normally the newest-first result of keys.Manager.KeysFor or a
// verification-only set built by package jwks. Signature and registered-claim validation
// are delegated to github.com/golang-jwt/jwt/v5, and JWE to github.com/go-jose/go-jose/v4.
//
// # What this package must NOT do
//
//   - Touch storage or generate keys.
//   - Reinterpret validation errors from the JWT library. Callers match them with
//     errors.Is against jwt.ErrTokenExpired, jwt.ErrTokenInvalidAudience and friends.
//   - Treat the result of Decode as trusted.
package token
