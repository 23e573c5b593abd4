package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccessSecret  = "access-secret-32-characters-lng!"
	testRefreshSecret = "refresh-secret-32-characters-ln!"
)

func newTestTokenManager() *TokenManager {
	return NewTokenManager(testAccessSecret, testRefreshSecret, 15*time.Minute, 7*24*time.Hour)
}

func TestTokenManager_AccessTokenRoundTrip(t *testing.T) {
	tm := newTestTokenManager()

	token, err := tm.IssueAccessToken("user123", "admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := tm.ParseAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user123", claims.UserID)
	assert.Equal(t, "admin", claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenManager_RefreshTokenRoundTrip(t *testing.T) {
	tm := newTestTokenManager()

	token, err := tm.IssueRefreshToken("user123")
	require.NoError(t, err)

	claims, err := tm.ParseRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user123", claims.UserID)
}

func TestTokenManager_CrossSecretRejection(t *testing.T) {
	tm := newTestTokenManager()

	accessToken, err := tm.IssueAccessToken("user123", "user")
	require.NoError(t, err)

	refreshToken, err := tm.IssueRefreshToken("user123")
	require.NoError(t, err)

	// An access token must never verify as a refresh token, and vice versa
	_, err = tm.ParseRefreshToken(accessToken)
	assert.Error(t, err)

	_, err = tm.ParseAccessToken(refreshToken)
	assert.Error(t, err)
}

func TestTokenManager_ExpiredTokenRejected(t *testing.T) {
	tm := NewTokenManager(testAccessSecret, testRefreshSecret, -1*time.Minute, -1*time.Minute)

	token, err := tm.IssueAccessToken("user123", "user")
	require.NoError(t, err)

	_, err = tm.ParseAccessToken(token)
	assert.Error(t, err, "expired token must fail closed")
}

func TestTokenManager_TamperedTokenRejected(t *testing.T) {
	tm := newTestTokenManager()

	token, err := tm.IssueAccessToken("user123", "user")
	require.NoError(t, err)

	tampered := token[:len(token)-2] + "xx"
	_, err = tm.ParseAccessToken(tampered)
	assert.Error(t, err)
}

func TestTokenManager_WrongSecretRejected(t *testing.T) {
	tm := newTestTokenManager()
	other := NewTokenManager("different-secret-32-characters!!", testRefreshSecret, 15*time.Minute, 7*24*time.Hour)

	token, err := tm.IssueAccessToken("user123", "user")
	require.NoError(t, err)

	_, err = other.ParseAccessToken(token)
	assert.Error(t, err)
}
