package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// SecretLength is the exact length of a generated application secret.
const SecretLength = 32

// GenerateSecret returns a URL-safe application secret of exactly
// SecretLength characters, drawn from a cryptographically secure source.
func GenerateSecret() (string, error) {
	// 27 raw bytes encode to 36 base64url characters, comfortably over
	// length; the result is truncated to exactly SecretLength.
	buf := make([]byte, 27)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("error reading random bytes: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)
	if len(secret) < SecretLength {
		return "", fmt.Errorf("generated secret too short: %d characters", len(secret))
	}
	return secret[:SecretLength], nil
}

// HashSecret hashes an application secret for storage. The secret is already
// high entropy; hashing guards against store compromise.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("error hashing secret: %w", err)
	}
	return string(hash), nil
}

// VerifySecret checks an application secret against its stored hash.
func VerifySecret(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
