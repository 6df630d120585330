// Package secrets encrypts the SMTP passwords and LLM API keys stored per
// warehouse. Ciphertext is AES-256-GCM, base64url encoded as nonce||sealed;
// the key is derived from the two configured secrets so rotating either one
// invalidates stored ciphertexts.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

var ErrInvalidCiphertext = errors.New("secrets: invalid ciphertext")

// Store seals and opens secret values with a fixed key.
type Store struct {
	aead cipher.AEAD
}

// New derives the AEAD key as SHA-256(encryptionKey ":" jwtSecret).
func New(encryptionKey, jwtSecret string) (*Store, error) {
	key := sha256.Sum256([]byte(encryptionKey + ":" + jwtSecret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Store{aead: aead}, nil
}

// Encrypt seals plain and returns a base64url token.
func (s *Store) Encrypt(plain string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any tampering or key mismatch yields
// ErrInvalidCiphertext.
func (s *Store) Decrypt(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	ns := s.aead.NonceSize()
	if len(raw) < ns {
		return "", ErrInvalidCiphertext
	}
	plain, err := s.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plain), nil
}

// Mask renders a secret for display: first two and last two characters with
// stars in between. Values of four characters or fewer are fully starred.
func Mask(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	return value[:2] + strings.Repeat("*", len(value)-4) + value[len(value)-2:]
}
