package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestAuthenticateRoundTrip(t *testing.T) {
	a, err := New(Config{Secret: testSecret})
	require.NoError(t, err)

	tok, err := a.Sign("u1", []string{"admin", "viewer"}, time.Hour)
	require.NoError(t, err)

	id, err := a.Authenticate(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, []string{"admin", "viewer"}, id.Roles)
	assert.WithinDuration(t, time.Now().Add(time.Hour), id.ExpiresAt, 5*time.Second)
}

func TestAuthenticateExpired(t *testing.T) {
	a, err := New(Config{Secret: testSecret})
	require.NoError(t, err)

	tok, err := a.Sign("u1", nil, -time.Minute)
	require.NoError(t, err)

	_, err = a.Authenticate(tok)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestAuthenticateInvalid(t *testing.T) {
	a, err := New(Config{Secret: testSecret})
	require.NoError(t, err)

	_, err = a.Authenticate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Signed with a different secret.
	other, err := New(Config{Secret: "ffffffffffffffffffffffffffffffff"})
	require.NoError(t, err)
	tok, err := other.Sign("u1", nil, time.Hour)
	require.NoError(t, err)

	_, err = a.Authenticate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateMissingSubject(t *testing.T) {
	a, err := New(Config{Secret: testSecret})
	require.NoError(t, err)

	tok, err := a.Sign("", []string{"admin"}, time.Hour)
	require.NoError(t, err)

	_, err = a.Authenticate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrEmptySecret)

	_, err = New(Config{Secret: testSecret, Algorithm: "RS256"})
	assert.ErrorIs(t, err, ErrInvalidAlgorithm)
}

func TestAlgorithmVariants(t *testing.T) {
	for _, alg := range []string{"HS256", "HS384", "HS512"} {
		a, err := New(Config{Secret: testSecret, Algorithm: alg})
		require.NoError(t, err, alg)

		tok, err := a.Sign("u2", []string{"ops"}, time.Hour)
		require.NoError(t, err, alg)

		id, err := a.Authenticate(tok)
		require.NoError(t, err, alg)
		assert.Equal(t, "u2", id.UserID, alg)
	}
}
