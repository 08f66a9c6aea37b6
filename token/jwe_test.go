package token

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/edgefirst-dev/jwt/keys"
	"github.com/edgefirst-dev/jwt/storage/memory"
)

func encryptionKeys(t *testing.T) (*keys.Manager, []keys.KeyPair) {
	t.Helper()
	m := keys.NewManager(memory.New())
	pairs, err := m.KeysFor(context.Background(), keys.Encryption)
	if err != nil {
		t.Fatalf("keys for encryption: %v", err)
	}
	return m, pairs
}

func TestEncryptDecryptSignedToken(t *testing.T) {
	_, sig := signingKeys(t)
	_, enc := encryptionKeys(t)

	signed, err := Sign(sampleClaims(), keys.ES256, sig)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sealed, err := Encrypt([]byte(signed), enc, "")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if got := len(strings.Split(sealed, ".")); got != 5 {
		t.Fatalf("expected 5 JWE segments, got %d", got)
	}

	opened, err := Decrypt(sealed, enc)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(opened) != signed {
		t.Fatal("decrypted payload differs")
	}
	if _, err := Verify(string(opened), sig, VerifyOptions{}); err != nil {
		t.Fatalf("verify decrypted token: %v", err)
	}
}

func TestDecryptAfterRotation(t *testing.T) {
	m, enc := encryptionKeys(t)
	sealed, err := Encrypt([]byte("payload"), enc, "")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	rotated, err := m.Rotate(context.Background(), keys.Encryption)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if _, err := Decrypt(sealed, rotated); err != nil {
		t.Fatalf("rotated key should still decrypt: %v", err)
	}
	if _, err := Encrypt([]byte("payload"), rotated, enc[0].ID); err != nil {
		t.Fatalf("explicit kid should select rotated key: %v", err)
	}
}

func TestEncryptErrors(t *testing.T) {
	_, sig := signingKeys(t)
	_, enc := encryptionKeys(t)

	if _, err := Encrypt([]byte("x"), sig, ""); !errors.Is(err, ErrNoEncryptionKey) {
		t.Fatalf("signing keys must not encrypt: %v", err)
	}
	if _, err := Encrypt([]byte("x"), enc, "missing"); !errors.Is(err, ErrNoEncryptionKey) {
		t.Fatalf("unknown kid: %v", err)
	}
	if _, err := Encrypt(nil, enc, ""); !errors.Is(err, ErrNoEncryptionKey) {
		t.Fatalf("empty payload: %v", err)
	}
}

func TestDecryptErrors(t *testing.T) {
	_, enc := encryptionKeys(t)
	_, other := encryptionKeys(t)

	sealed, err := Encrypt([]byte("payload"), enc, "")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	public := enc[0]
	public.PrivateKey = nil

	cases := map[string]struct {
		token string
		pairs []keys.KeyPair
	}{
		"garbage":        {"not-a-jwe", enc},
		"unknown kid":    {sealed, other},
		"public only":    {sealed, []keys.KeyPair{public}},
		"no pairs":       {sealed, nil},
		"three segments": {"a.b.c", enc},
	}
	for name, tc := range cases {
		if _, err := Decrypt(tc.token, tc.pairs); !errors.Is(err, ErrDecrypt) {
			t.Fatalf("%s: expected ErrDecrypt, got %v", name, err)
		}
	}
}
