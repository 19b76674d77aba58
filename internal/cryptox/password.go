// Package cryptox implements the password credential scheme stored on user
// records: a random per-user salt and an argon2id hash, both hex-encoded so
// they round-trip through the JSON state document.
package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const saltSize = 16

// NewSalt returns a fresh random salt, hex-encoded.
func NewSalt() (string, error) {
	b := make([]byte, saltSize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashPassword derives the stored hash for the given password and salt.
func HashPassword(password, saltHex string) (string, error) {
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
	return hex.EncodeToString(key), nil
}

// VerifyPassword reports whether password matches the stored salt and hash.
// The comparison is constant-time.
func VerifyPassword(password, saltHex, hashHex string) bool {
	computed, err := HashPassword(password, saltHex)
	if err != nil {
		return false
	}
	stored, err := hex.DecodeString(hashHex)
	if err != nil {
		return false
	}
	computedRaw, _ := hex.DecodeString(computed)
	return subtle.ConstantTimeCompare(computedRaw, stored) == 1
}
