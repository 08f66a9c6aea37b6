package keys

import (
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
)

// KeyPair is a decoded key record ready for signing, verifying, or encryption.
//
// PrivateKey is nil for verification-only pairs built from an external JWKS.
// Expired is the zero time while the pair is current.
type KeyPair struct {
	ID         string
	Algorithm  Algorithm
	Created    time.Time
	Expired    time.Time
	PublicKey  crypto.PublicKey
	PrivateKey crypto.PrivateKey
	PublicJWK  jose.JSONWebKey
}

// Valid reports whether the pair has not been superseded.
func (k KeyPair) Valid() bool {
	return k.Expired.IsZero()
}

// CanSign reports whether the pair carries private key material.
func (k KeyPair) CanSign() bool {
	return k.PrivateKey != nil
}

// Record is the persisted form of a KeyPair.
type Record struct {
	ID         string     `json:"id"`
	Algorithm  Algorithm  `json:"alg"`
	PublicKey  string     `json:"publicKey"`
	PrivateKey string     `json:"privateKey"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiredAt  *time.Time `json:"expiredAt,omitempty"`
}

// Codec converts between stored blobs and key pairs using a Provider.
type Codec struct {
	provider Provider
}

// NewCodec returns a Codec that imports and exports key material through p.
func NewCodec(p Provider) *Codec {
	if p == nil {
		p = ECProvider{}
	}
	return &Codec{provider: p}
}

// Encode serializes pair with its PEM-exported material.
func (c *Codec) Encode(pair KeyPair) ([]byte, error) {
	if strings.TrimSpace(pair.ID) == "" {
		return nil, errors.New("key pair has no id")
	}
	if pair.PrivateKey == nil {
		return nil, errors.New("key pair has no private key")
	}
	pub, err := c.provider.ExportPublicPEM(pair.PublicKey)
	if err != nil {
		return nil, err
	}
	priv, err := c.provider.ExportPrivatePEM(pair.PrivateKey)
	if err != nil {
		return nil, err
	}

	rec := Record{
		ID:         pair.ID,
		Algorithm:  pair.Algorithm,
		PublicKey:  pub,
		PrivateKey: priv,
		CreatedAt:  pair.Created.UTC(),
	}
	if !pair.Expired.IsZero() {
		exp := pair.Expired.UTC()
		rec.ExpiredAt = &exp
	}
	return json.Marshal(rec)
}

// Decode imports a stored blob. Any malformed field yields an error wrapping ErrImport.
func (c *Codec) Decode(blob []byte) (KeyPair, error) {
	var rec Record
	if err := json.Unmarshal(blob, &rec); err != nil {
		return KeyPair{}, fmt.Errorf("%w: %v", ErrImport, err)
	}
	if strings.TrimSpace(rec.ID) == "" {
		return KeyPair{}, fmt.Errorf("%w: record has no id", ErrImport)
	}
	if rec.CreatedAt.IsZero() {
		return KeyPair{}, fmt.Errorf("%w: record %s has no createdAt", ErrImport, rec.ID)
	}

	pub, err := c.provider.ImportPublicPEM(rec.Algorithm, rec.PublicKey)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: record %s: %w", ErrImport, rec.ID, err)
	}
	priv, err := c.provider.ImportPrivatePEM(rec.Algorithm, rec.PrivateKey)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: record %s: %w", ErrImport, rec.ID, err)
	}
	if !matchingHalves(pub, priv) {
		return KeyPair{}, fmt.Errorf("%w: record %s: public and private key differ", ErrImport, rec.ID)
	}
	jwk, err := c.provider.PublicJWK(rec.Algorithm, pub)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: record %s: %w", ErrImport, rec.ID, err)
	}
	jwk.KeyID = rec.ID

	pair := KeyPair{
		ID:         rec.ID,
		Algorithm:  rec.Algorithm,
		Created:    rec.CreatedAt,
		PublicKey:  pub,
		PrivateKey: priv,
		PublicJWK:  jwk,
	}
	if rec.ExpiredAt != nil {
		pair.Expired = *rec.ExpiredAt
	}
	return pair, nil
}

// matchingHalves reports whether priv derives pub. Key types without an Equal method
// cannot be compared and fail the check.
func matchingHalves(pub crypto.PublicKey, priv crypto.PrivateKey) bool {
	signer, ok := priv.(crypto.Signer)
	if !ok {
		return false
	}
	derived, ok := signer.Public().(interface{ Equal(crypto.PublicKey) bool })
	return ok && derived.Equal(pub)
}
