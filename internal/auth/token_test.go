// ABOUTME: Tests for JWT generation and verification
// ABOUTME: Covers round trips, expiry, tampering, and secret length enforcement

package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSecret is a 32-byte secret that meets MinSecretLength.
var testSecret = []byte("evobolt-token-test-secret-32byte")

func TestJWT_RoundTrip(t *testing.T) {
	v, err := NewJWTVerifier(testSecret)
	require.NoError(t, err)

	token, err := v.Generate("admin@example.com", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	email, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", email)
}

func TestJWT_Expired(t *testing.T) {
	v, err := NewJWTVerifier(testSecret)
	require.NoError(t, err)

	token, err := v.Generate("admin@example.com", -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWT_WrongSecret(t *testing.T) {
	v1, err := NewJWTVerifier(testSecret)
	require.NoError(t, err)
	v2, err := NewJWTVerifier([]byte("another-32-byte-secret-for-tests"))
	require.NoError(t, err)

	token, err := v1.Generate("admin@example.com", time.Hour)
	require.NoError(t, err)

	_, err = v2.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWT_Garbage(t *testing.T) {
	v, err := NewJWTVerifier(testSecret)
	require.NoError(t, err)

	_, err = v.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewJWTVerifier_ShortSecret(t *testing.T) {
	_, err := NewJWTVerifier([]byte("short"))
	assert.ErrorIs(t, err, ErrSecretTooShort)
}
