package jwt

import (
	"errors"

	"github.com/edgefirst-dev/jwt/jwks"
	"github.com/edgefirst-dev/jwt/keys"
	"github.com/edgefirst-dev/jwt/token"
)

// Errors surfaced by Issuer. Key, token, and JWKS failures are the sub-package sentinels,
// so errors.Is works with either name.
var (
	ErrStorage              = keys.ErrStorage
	ErrImport               = keys.ErrImport
	ErrUnsupportedAlgorithm = keys.ErrUnsupportedAlgorithm
	ErrKeyGenerationRace    = keys.ErrKeyGenerationRace
	ErrInvalidPurpose       = keys.ErrInvalidPurpose

	ErrNoSigningKey      = token.ErrNoSigningKey
	ErrNoVerificationKey = token.ErrNoVerificationKey
	ErrMalformedToken    = token.ErrMalformedToken
	ErrNoEncryptionKey   = token.ErrNoEncryptionKey
	ErrDecrypt           = token.ErrDecrypt

	ErrFetch         = jwks.ErrFetch
	ErrInvalidKeySet = jwks.ErrInvalidKeySet
)

var (
	// ErrBuilderUsed is returned when Build is called twice on one Builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrStorageRequired is returned by Build without WithStorage or WithRedis.
	ErrStorageRequired = errors.New("storage adapter or redis client required")
	// ErrIssuerClosed is returned by Issuer methods after Close.
	ErrIssuerClosed = errors.New("issuer closed")
)
