package vapid

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	publicKeyEnv  = "VAPID_PUBLIC_KEY"
	privateKeyEnv = "VAPID_PRIVATE_KEY"

	publicKeyLen  = 64 // uncompressed P-256 point without the 0x04 prefix
	privateKeyLen = 32 // raw scalar
)

// GenerateKeys creates a fresh P-256 key pair in the format the web push
// protocol expects: the public key is the uncompressed point minus its
// leading 0x04 byte, the private key is the raw 32-byte scalar, both
// base64url-encoded without padding.
func GenerateKeys() (publicKey, privateKey string, err error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("error generating key pair: %w", err)
	}

	pubBytes := priv.PublicKey().Bytes() // 65 bytes: 0x04 || X || Y
	publicKey = base64.RawURLEncoding.EncodeToString(pubBytes[1:])
	privateKey = base64.RawURLEncoding.EncodeToString(priv.Bytes())
	return publicKey, privateKey, nil
}

// ValidateKeys decodes both keys and checks their byte lengths. It is a
// structural check only; it does not verify the keys correspond to each
// other.
func ValidateKeys(publicKey, privateKey string) bool {
	pub, err := decodeKey(publicKey)
	if err != nil || len(pub) != publicKeyLen {
		return false
	}
	priv, err := decodeKey(privateKey)
	if err != nil || len(priv) != privateKeyLen {
		return false
	}
	return true
}

func decodeKey(key string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(key, "="))
}

// EnsureKeys resolves the VAPID key pair: process environment first, then
// the key file, then a freshly generated pair. Generated keys are persisted
// back to the key file; a write failure is logged but non-fatal, the service
// continues with in-memory keys for this run.
func EnsureKeys(keyFile string) (publicKey, privateKey string, generated bool, err error) {
	publicKey = os.Getenv(publicKeyEnv)
	privateKey = os.Getenv(privateKeyEnv)
	if ValidateKeys(publicKey, privateKey) {
		return publicKey, privateKey, false, nil
	}

	vars, readErr := godotenv.Read(keyFile)
	if readErr == nil {
		publicKey = vars[publicKeyEnv]
		privateKey = vars[privateKeyEnv]
		if ValidateKeys(publicKey, privateKey) {
			return publicKey, privateKey, false, nil
		}
	}

	publicKey, privateKey, err = GenerateKeys()
	if err != nil {
		return "", "", false, err
	}

	if vars == nil {
		vars = make(map[string]string)
	}
	vars[publicKeyEnv] = publicKey
	vars[privateKeyEnv] = privateKey
	if writeErr := godotenv.Write(vars, keyFile); writeErr != nil {
		log.Printf("Warning: could not persist VAPID keys to %s: %v. Keys are in-memory only for this run.", keyFile, writeErr)
	}

	return publicKey, privateKey, true, nil
}
