// Package jwt issues, verifies, and rotates JSON Web Tokens signed with keys that live in
// pluggable storage and are published as a JSON Web Key Set.
//
// The package is designed for concurrent server workloads: Issuer methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// jwt is the public surface. It exposes [Issuer], [Builder], [Config], and value types
// (MetricsSnapshot, AuditEvent). Key discovery and generation live in package keys, the
// token codec in package token, claims access in package claims, and JWKS handling in
// package jwks. Audit dispatch lives under internal/ and is never exported.
//
// # What this package must NOT do
//
//   - Cache private key material between calls. Every Sign re-reads storage.
//   - Expose Redis clients or storage encoding in its public API.
//   - Perform I/O during construction other than what Build documents.
//   - Import any sub-package that re-imports jwt.
package jwt
