package vapid

import (
	"encoding/base64"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeys(t *testing.T) {
	pub, priv, err := GenerateKeys()
	require.NoError(t, err)

	assert.True(t, ValidateKeys(pub, priv))

	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	require.NoError(t, err)
	assert.Len(t, pubBytes, 64)

	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	require.NoError(t, err)
	assert.Len(t, privBytes, 32)
}

func TestValidateKeys_Rejects(t *testing.T) {
	pub, priv, err := GenerateKeys()
	require.NoError(t, err)

	assert.False(t, ValidateKeys("", priv))
	assert.False(t, ValidateKeys(pub, ""))
	assert.False(t, ValidateKeys("not base64!!", priv))
	// Swapped keys have the wrong lengths on both sides.
	assert.False(t, ValidateKeys(priv, pub))
}

func TestValidateKeys_ToleratesPadding(t *testing.T) {
	pub, priv, err := GenerateKeys()
	require.NoError(t, err)
	assert.True(t, ValidateKeys(pub+"=", priv+"="))
}

func TestEnsureKeys_GeneratesAndPersists(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), ".env")

	pub, priv, generated, err := EnsureKeys(keyFile)
	require.NoError(t, err)
	assert.True(t, generated)
	assert.True(t, ValidateKeys(pub, priv))

	vars, err := godotenv.Read(keyFile)
	require.NoError(t, err)
	assert.Equal(t, pub, vars["VAPID_PUBLIC_KEY"])
	assert.Equal(t, priv, vars["VAPID_PRIVATE_KEY"])

	// A second call reuses the persisted pair.
	pub2, priv2, generated2, err := EnsureKeys(keyFile)
	require.NoError(t, err)
	assert.False(t, generated2)
	assert.Equal(t, pub, pub2)
	assert.Equal(t, priv, priv2)
}

func TestEnsureKeys_EnvWins(t *testing.T) {
	pub, priv, err := GenerateKeys()
	require.NoError(t, err)
	t.Setenv("VAPID_PUBLIC_KEY", pub)
	t.Setenv("VAPID_PRIVATE_KEY", priv)

	gotPub, gotPriv, generated, err := EnsureKeys(filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Equal(t, pub, gotPub)
	assert.Equal(t, priv, gotPriv)
}
