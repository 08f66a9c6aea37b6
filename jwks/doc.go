// Package jwks publishes key pairs as a JSON Web Key Set and imports external key sets as
// verification-only key pairs.
//
// # Architecture boundaries
//
// Publish and Marshal project keys.KeyPair values through github.com/go-jose/go-jose/v4 and
// never emit private material. ImportLocal parses a document already in hand; ImportRemote
// and Fetcher retrieve one over HTTP with github.com/hashicorp/go-retryablehttp and keep a
// short-lived copy in a github.com/patrickmn/go-cache cache keyed by URL.
//
// # What this package must NOT do
//
//   - Persist imported keys to storage.
//   - Return key pairs that carry a private key.
package jwks
