// Package middleware exposes HTTP middleware that admits requests carrying a valid bearer
// token, built on top of jwt.Issuer verification.
//
// # Guards
//
//   - [Guard] verifies against the Issuer's own signing keys.
//   - [GuardAs] does the same and stores a caller-defined claims view.
//   - [RequireRemote] verifies against a key set published at a JWKS URL.
//   - [RequireSealed] accepts only nested tokens produced by Issuer.Seal.
//
// Each guard reads the Authorization header, records the client IP for audit events,
// calls the Issuer, and injects the verified claims into the request context. Handlers
// read them back with jwt.ClaimsFromContext or jwt.ClaimsAs.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Issuer calls. It does NOT implement
// verification itself; every decision is delegated to the Issuer.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Issuer).
//   - Access key storage (Issuer handles I/O).
//   - Make authorization decisions beyond pass/reject from verification.
package middleware
