package token

import (
	"fmt"

	"github.com/edgefirst-dev/jwt/keys"
	"github.com/go-jose/go-jose/v4"
)

// Encrypt seals payload as a compact JWE using ECDH-ES+A128KW key agreement and A128GCM
// content encryption. The recipient is the pair whose id is kid, or the first current
// encryption pair when kid is empty.
func Encrypt(payload []byte, pairs []keys.KeyPair, kid string) (string, error) {
	if len(payload) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrNoEncryptionKey)
	}

	var recipient *keys.KeyPair
	for i := range pairs {
		p := &pairs[i]
		if p.Algorithm != keys.ECDHESA128KW || p.PublicKey == nil {
			continue
		}
		if (kid == "" && p.Valid()) || (kid != "" && p.ID == kid) {
			recipient = p
			break
		}
	}
	if recipient == nil {
		return "", ErrNoEncryptionKey
	}

	encrypter, err := jose.NewEncrypter(
		jose.A128GCM,
		jose.Recipient{
			Algorithm: jose.ECDH_ES_A128KW,
			Key:       recipient.PublicKey,
			KeyID:     recipient.ID,
		},
		(&jose.EncrypterOptions{}).WithContentType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("create encrypter: %w", err)
	}
	obj, err := encrypter.Encrypt(payload)
	if err != nil {
		return "", fmt.Errorf("encrypt payload: %w", err)
	}
	return obj.CompactSerialize()
}

// Decrypt opens a compact JWE produced by Encrypt with the private key whose id matches
// the kid header. Rotated pairs still decrypt.
func Decrypt(token string, pairs []keys.KeyPair) ([]byte, error) {
	obj, err := jose.ParseEncrypted(token, []jose.KeyAlgorithm{jose.ECDH_ES_A128KW}, []jose.ContentEncryption{jose.A128GCM})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	kid := obj.Header.KeyID
	if kid == "" {
		return nil, fmt.Errorf("%w: missing kid header", ErrDecrypt)
	}

	for _, p := range pairs {
		if p.ID != kid || p.Algorithm != keys.ECDHESA128KW || p.PrivateKey == nil {
			continue
		}
		out, err := obj.Decrypt(p.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecrypt, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unknown kid %q", ErrDecrypt, kid)
}
