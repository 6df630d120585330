// Package ident generates the identifiers the inventory uses: entity ids,
// QR tokens, box short codes, and the hex digests persisted for bearer
// tokens (refresh, reset, invite).
package ident

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewID returns a fresh v4 UUID string.
func NewID() string {
	return uuid.NewString()
}

// NewQRToken returns a URL-safe random token with 24 bytes of entropy.
// It is the sole credential printed on a box label, so it must be globally
// unique; the database enforces that with ix_boxes_qr_token.
func NewQRToken() string {
	return URLToken(24)
}

// URLToken returns a base64url token carrying n random bytes.
func URLToken(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// NewShortCode returns a human-readable BX-HHHHHH code. Short codes are
// low-collision, not unique.
func NewShortCode() string {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return fmt.Sprintf("BX-%s", strings.ToUpper(hex.EncodeToString(b)))
}

// HashToken returns the SHA-256 hex digest under which a bearer token is
// stored. The raw token never touches the database.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
