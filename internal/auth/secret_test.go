package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecret_Length(t *testing.T) {
	for i := 0; i < 20; i++ {
		secret, err := GenerateSecret()
		require.NoError(t, err)
		assert.Len(t, secret, SecretLength)
	}
}

func TestGenerateSecret_Unique(t *testing.T) {
	a, err := GenerateSecret()
	require.NoError(t, err)
	b, err := GenerateSecret()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSecretHashRoundTrip(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)

	hash, err := HashSecret(secret)
	require.NoError(t, err)

	assert.True(t, VerifySecret(secret, hash))
	assert.NotEqual(t, secret, hash)

	other, err := GenerateSecret()
	require.NoError(t, err)
	assert.False(t, VerifySecret(other, hash))
}
