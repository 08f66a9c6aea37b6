package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

// Provider generates key pairs and moves them between in-memory handles, PEM text,
// and public JWK projections.
type Provider interface {
	Generate(alg Algorithm) (crypto.PrivateKey, error)
	ExportPublicPEM(key crypto.PublicKey) (string, error)
	ExportPrivatePEM(key crypto.PrivateKey) (string, error)
	ImportPublicPEM(alg Algorithm, data string) (crypto.PublicKey, error)
	ImportPrivatePEM(alg Algorithm, data string) (crypto.PrivateKey, error)
	PublicJWK(alg Algorithm, key crypto.PublicKey) (jose.JSONWebKey, error)
}

// ECProvider implements Provider with NIST curve ECDSA keys. Encryption keys use the same
// key type; ECDH-ES consumes them directly.
type ECProvider struct {
	// Rand defaults to crypto/rand.Reader.
	Rand io.Reader
}

var _ Provider = ECProvider{}

func curveFor(alg Algorithm) (elliptic.Curve, error) {
	switch alg {
	case ES256, ECDHESA128KW:
		return elliptic.P256(), nil
	case ES384:
		return elliptic.P384(), nil
	case ES512:
		return elliptic.P521(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
}

// Generate creates a new private key for alg.
func (p ECProvider) Generate(alg Algorithm) (crypto.PrivateKey, error) {
	curve, err := curveFor(alg)
	if err != nil {
		return nil, err
	}
	r := p.Rand
	if r == nil {
		r = rand.Reader
	}
	return ecdsa.GenerateKey(curve, r)
}

// ExportPublicPEM encodes key as an SPKI "PUBLIC KEY" block.
func (ECProvider) ExportPublicPEM(key crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// ExportPrivatePEM encodes key as a PKCS8 "PRIVATE KEY" block.
func (ECProvider) ExportPrivatePEM(key crypto.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", fmt.Errorf("marshal private key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

// ImportPublicPEM parses an SPKI PEM public key and checks its curve matches alg.
func (ECProvider) ImportPublicPEM(alg Algorithm, data string) (crypto.PublicKey, error) {
	curve, err := curveFor(alg)
	if err != nil {
		return nil, err
	}
	pub, err := jwt.ParseECPublicKeyFromPEM([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	if pub.Curve != curve {
		return nil, fmt.Errorf("public key curve %s does not match %s", pub.Curve.Params().Name, alg)
	}
	return pub, nil
}

// ImportPrivatePEM parses a PKCS8 (or SEC1) PEM private key and checks its curve matches alg.
func (ECProvider) ImportPrivatePEM(alg Algorithm, data string) (crypto.PrivateKey, error) {
	curve, err := curveFor(alg)
	if err != nil {
		return nil, err
	}
	priv, err := jwt.ParseECPrivateKeyFromPEM([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	if priv.Curve != curve {
		return nil, fmt.Errorf("private key curve %s does not match %s", priv.Curve.Params().Name, alg)
	}
	return priv, nil
}

// PublicJWK projects key into a JWK carrying alg and the algorithm's "use".
func (ECProvider) PublicJWK(alg Algorithm, key crypto.PublicKey) (jose.JSONWebKey, error) {
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return jose.JSONWebKey{}, errors.New("public key is not an ECDSA key")
	}
	jwk := jose.JSONWebKey{
		Key:       pub,
		Algorithm: string(alg),
		Use:       alg.Use(),
	}
	if !jwk.Valid() {
		return jose.JSONWebKey{}, errors.New("public key does not form a valid JWK")
	}
	return jwk, nil
}

// CheckPublicKey reports whether key is an ECDSA public key on the curve alg requires.
func CheckPublicKey(alg Algorithm, key crypto.PublicKey) error {
	curve, err := curveFor(alg)
	if err != nil {
		return err
	}
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("%T is not an ECDSA public key", key)
	}
	if pub.Curve != curve {
		return fmt.Errorf("public key curve %s does not match %s", pub.Curve.Params().Name, alg)
	}
	return nil
}
