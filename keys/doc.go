// Package keys owns the lifecycle of signing and encryption key pairs held in a
// storage.Adapter.
//
// # Lifecycle
//
// [Manager.KeysFor] scans every record stored under a purpose prefix, decodes each one,
// orders the pairs newest first, and returns them when at least one pair has not been
// superseded. When none is valid it generates a pair, persists it, and scans again. The
// number of scans is bounded; a freshly written key that never becomes visible ends in
// [ErrKeyGenerationRace] instead of looping.
//
// Superseded pairs are returned too so tokens signed before a rotation keep verifying.
// Records are never deleted here. The only mutation is stamping expiredAt during
// [Manager.Rotate].
//
// # Concurrency
//
// When the adapter also implements storage.Locker, generation and rotation run under a
// per-purpose lock and re-check the store after acquiring it, so concurrent cold starts
// mint one key. Adapters without a lock accept that racing callers may each mint a key;
// every minted key is valid and the newest one wins for signing.
//
// # What this package must NOT do
//
//   - Sign or verify tokens (see package token).
//   - Cache private key material between calls.
package keys
