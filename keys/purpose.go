package keys

import (
	"fmt"
	"strings"
)

// Algorithm is a JOSE algorithm identifier.
type Algorithm string

const (
	// ES256 is ECDSA over P-256 with SHA-256, the default signing algorithm.
	ES256 Algorithm = "ES256"
	// ES384 is ECDSA over P-384 with SHA-384.
	ES384 Algorithm = "ES384"
	// ES512 is ECDSA over P-521 with SHA-512.
	ES512 Algorithm = "ES512"
	// ECDHESA128KW is ECDH-ES key agreement with AES-128 key wrap, the default encryption algorithm.
	ECDHESA128KW Algorithm = "ECDH-ES+A128KW"
)

// Use returns the JWK "use" value for keys of this algorithm.
func (a Algorithm) Use() string {
	switch a {
	case ECDHESA128KW:
		return "enc"
	default:
		return "sig"
	}
}

func (a Algorithm) String() string { return string(a) }

// Purpose selects a storage namespace and the algorithm keys are generated with.
type Purpose struct {
	Name      string
	Prefix    string
	Algorithm Algorithm
}

var (
	// Signing keys sign and verify JWTs.
	Signing = Purpose{Name: "signing", Prefix: "signing:key", Algorithm: ES256}
	// Encryption keys wrap content keys for JWE payloads.
	Encryption = Purpose{Name: "encryption", Prefix: "encryption:key", Algorithm: ECDHESA128KW}
)

// WithAlgorithm returns a copy of p generating keys with alg.
func (p Purpose) WithAlgorithm(alg Algorithm) Purpose {
	p.Algorithm = alg
	return p
}

// ParsePurpose maps "signing" or "encryption" to its Purpose.
func ParsePurpose(name string) (Purpose, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case Signing.Name:
		return Signing, nil
	case Encryption.Name:
		return Encryption, nil
	default:
		return Purpose{}, fmt.Errorf("%w: %q", ErrInvalidPurpose, name)
	}
}

func (p Purpose) validate() error {
	if strings.TrimSpace(p.Prefix) == "" || p.Algorithm == "" {
		return ErrInvalidPurpose
	}
	if strings.HasSuffix(p.Prefix, ":") {
		return fmt.Errorf("%w: prefix %q must not end with ':'", ErrInvalidPurpose, p.Prefix)
	}
	return nil
}
