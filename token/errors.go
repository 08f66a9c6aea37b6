package token

import "errors"

var (
	// ErrNoSigningKey is returned by Sign when no current private key matches the algorithm.
	ErrNoSigningKey = errors.New("no signing key for algorithm")
	// ErrNoVerificationKey is returned by Verify when no key pair carries a public key.
	ErrNoVerificationKey = errors.New("no verification key available")
	// ErrMalformedToken is returned by Decode when the token cannot be parsed.
	ErrMalformedToken = errors.New("malformed token")
	// ErrNoEncryptionKey is returned by Encrypt when no key agreement public key is available.
	ErrNoEncryptionKey = errors.New("no encryption key available")
	// ErrDecrypt is returned by Decrypt for unparseable payloads, unknown key ids, and
	// failed decryption.
	ErrDecrypt = errors.New("token decryption failed")
)
