package jwks

import (
	"encoding/json"
	"fmt"

	"github.com/edgefirst-dev/jwt/keys"
	"github.com/go-jose/go-jose/v4"
)

// Publish returns the public projection of every pair that has a public key, rotated
// pairs included so that outstanding tokens stay verifiable.
func Publish(pairs []keys.KeyPair) jose.JSONWebKeySet {
	set := jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(pairs))}
	for _, p := range pairs {
		if p.PublicJWK.Key == nil {
			continue
		}
		jwk := p.PublicJWK.Public()
		if !jwk.Valid() {
			continue
		}
		jwk.KeyID = p.ID
		set.Keys = append(set.Keys, jwk)
	}
	return set
}

// Marshal encodes Publish(pairs) as JSON.
func Marshal(pairs []keys.KeyPair) ([]byte, error) {
	return json.Marshal(Publish(pairs))
}

// ImportOptions filters imported keys.
type ImportOptions struct {
	// Algorithm the keys verify. Defaults to ES256. Keys declaring a different alg are skipped.
	Algorithm keys.Algorithm
}

func (o ImportOptions) algorithm() keys.Algorithm {
	if o.Algorithm == "" {
		return keys.ES256
	}
	return o.Algorithm
}

// ImportLocal parses a JWKS document into verification-only key pairs, in document order.
// Keys whose use or alg does not fit the requested algorithm are skipped; a document with no
// usable key fails with ErrInvalidKeySet.
func ImportLocal(data []byte, opts ImportOptions) ([]keys.KeyPair, error) {
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeySet, err)
	}
	return ImportKeySet(set, opts)
}

// ImportKeySet is ImportLocal for an already decoded set.
func ImportKeySet(set jose.JSONWebKeySet, opts ImportOptions) ([]keys.KeyPair, error) {
	alg := opts.algorithm()

	var pairs []keys.KeyPair
	for _, k := range set.Keys {
		if k.Use != "" && k.Use != alg.Use() {
			continue
		}
		if k.Algorithm != "" && k.Algorithm != string(alg) {
			continue
		}
		pub := k.Public()
		if !pub.Valid() || keys.CheckPublicKey(alg, pub.Key) != nil {
			continue
		}
		pub.Algorithm = string(alg)
		pub.Use = alg.Use()
		pairs = append(pairs, keys.KeyPair{
			ID:        k.KeyID,
			Algorithm: alg,
			PublicKey: pub.Key,
			PublicJWK: pub,
		})
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: no %s keys", ErrInvalidKeySet, alg)
	}
	return pairs, nil
}
