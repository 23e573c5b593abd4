package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmorrow/taskvault/internal/auth"
	"github.com/lmorrow/taskvault/internal/models"
)

func testTokenManager() *auth.TokenManager {
	cfg := testAuthConfig()
	return auth.NewTokenManager(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessTokenExpiry, cfg.RefreshTokenExpiry)
}

func newSessionService(accounts *MockAccountStore, tokens *MockRefreshTokenStore) *SessionService {
	return NewSessionService(accounts, tokens, testTokenManager(), testLogger(), testAuditLogger())
}

func TestSessionService_CompleteLogin(t *testing.T) {
	account := NewTestAccount("user123", "user@example.com", "Test User")

	var storedHash string
	loginRecorded := false
	accounts := &MockAccountStore{
		RecordLoginFunc: func(ctx context.Context, id string, at time.Time) error {
			loginRecorded = true
			return nil
		},
	}
	tokens := &MockRefreshTokenStore{
		CreateFunc: func(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.RefreshToken, error) {
			storedHash = tokenHash
			return NewTestRefreshToken(userID, tokenHash), nil
		},
	}

	svc := newSessionService(accounts, tokens)
	pair, err := svc.CompleteLogin(context.Background(), account)

	require.NoError(t, err)
	assert.Equal(t, "user123", pair.UserID)
	assert.Equal(t, models.RoleUser, pair.Role)
	assert.True(t, loginRecorded, "a minted session must stamp the login and clear lock counters")
	assert.Equal(t, auth.HashToken(pair.RefreshToken), storedHash, "only the digest of the refresh token is stored")

	claims, err := testTokenManager().ParseAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user123", claims.UserID)
	assert.Equal(t, models.RoleUser, claims.Role)
}

func TestSessionService_Refresh_RotatesToken(t *testing.T) {
	tm := testTokenManager()
	account := NewTestAccount("user123", "user@example.com", "Test User")

	refreshToken, err := tm.IssueRefreshToken("user123")
	require.NoError(t, err)
	oldHash := auth.HashToken(refreshToken)

	var revokedHash, replacedBy, newStoredHash string
	accounts := &MockAccountStore{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			return account, nil
		},
	}
	tokens := &MockRefreshTokenStore{
		FindByUserAndHashFunc: func(ctx context.Context, userID, tokenHash string) (*models.RefreshToken, error) {
			return NewTestRefreshToken(userID, tokenHash), nil
		},
		ConditionalRevokeFunc: func(ctx context.Context, tokenHash, replacedByHash string) (bool, error) {
			revokedHash = tokenHash
			replacedBy = replacedByHash
			return true, nil
		},
		CreateFunc: func(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.RefreshToken, error) {
			newStoredHash = tokenHash
			return NewTestRefreshToken(userID, tokenHash), nil
		},
	}

	svc := NewSessionService(accounts, tokens, tm, testLogger(), testAuditLogger())
	pair, err := svc.Refresh(context.Background(), "", refreshToken)

	require.NoError(t, err)
	assert.NotEqual(t, refreshToken, pair.RefreshToken, "rotation must issue a new refresh token")
	assert.Equal(t, oldHash, revokedHash)
	assert.Equal(t, auth.HashToken(pair.RefreshToken), replacedBy, "old record must link to its replacement")
	assert.Equal(t, auth.HashToken(pair.RefreshToken), newStoredHash)
}

func TestSessionService_Refresh_ReuseOfRevokedTokenRevokesAll(t *testing.T) {
	tm := testTokenManager()
	account := NewTestAccount("user123", "user@example.com", "Test User")

	refreshToken, err := tm.IssueRefreshToken("user123")
	require.NoError(t, err)

	allRevoked := false
	accounts := &MockAccountStore{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			return account, nil
		},
	}
	tokens := &MockRefreshTokenStore{
		FindByUserAndHashFunc: func(ctx context.Context, userID, tokenHash string) (*models.RefreshToken, error) {
			record := NewTestRefreshToken(userID, tokenHash)
			record.IsRevoked = true
			return record, nil
		},
		RevokeAllForUserFunc: func(ctx context.Context, userID string) error {
			allRevoked = true
			assert.Equal(t, "user123", userID)
			return nil
		},
	}

	svc := NewSessionService(accounts, tokens, tm, testLogger(), testAuditLogger())
	pair, err := svc.Refresh(context.Background(), "", refreshToken)

	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Nil(t, pair)
	assert.True(t, allRevoked, "reuse must end every session for the account")
}

func TestSessionService_Refresh_UnknownTokenRevokesAll(t *testing.T) {
	tm := testTokenManager()
	refreshToken, err := tm.IssueRefreshToken("user123")
	require.NoError(t, err)

	allRevoked := false
	tokens := &MockRefreshTokenStore{
		RevokeAllForUserFunc: func(ctx context.Context, userID string) error {
			allRevoked = true
			return nil
		},
	}

	svc := newSessionService(&MockAccountStore{}, tokens)
	_, err = svc.Refresh(context.Background(), "", refreshToken)

	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.True(t, allRevoked, "a signed token absent from the store is a reuse signal")
}

func TestSessionService_Refresh_ExpiredRecord(t *testing.T) {
	tm := testTokenManager()
	refreshToken, err := tm.IssueRefreshToken("user123")
	require.NoError(t, err)

	tokens := &MockRefreshTokenStore{
		FindByUserAndHashFunc: func(ctx context.Context, userID, tokenHash string) (*models.RefreshToken, error) {
			record := NewTestRefreshToken(userID, tokenHash)
			record.ExpiresAt = time.Now().Add(-time.Minute)
			return record, nil
		},
		RevokeAllForUserFunc: func(ctx context.Context, userID string) error {
			t.Fatal("an expired record is not a reuse signal")
			return nil
		},
	}

	svc := newSessionService(&MockAccountStore{}, tokens)
	_, err = svc.Refresh(context.Background(), "", refreshToken)

	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestSessionService_Refresh_MismatchedAccessToken(t *testing.T) {
	tm := testTokenManager()
	refreshToken, err := tm.IssueRefreshToken("user123")
	require.NoError(t, err)
	accessToken, err := tm.IssueAccessToken("other456", models.RoleUser)
	require.NoError(t, err)

	tokens := &MockRefreshTokenStore{
		FindByUserAndHashFunc: func(ctx context.Context, userID, tokenHash string) (*models.RefreshToken, error) {
			t.Fatal("a mismatched pair must be rejected before any lookup")
			return nil, nil
		},
	}

	svc := newSessionService(&MockAccountStore{}, tokens)
	_, err = svc.Refresh(context.Background(), accessToken, refreshToken)

	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestSessionService_Refresh_AcceptsExpiredAccessTokenForBinding(t *testing.T) {
	cfg := testAuthConfig()
	shortAccess := auth.NewTokenManager(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, -time.Minute, cfg.RefreshTokenExpiry)
	tm := testTokenManager()
	account := NewTestAccount("user123", "user@example.com", "Test User")

	refreshToken, err := tm.IssueRefreshToken("user123")
	require.NoError(t, err)
	expiredAccess, err := shortAccess.IssueAccessToken("user123", models.RoleUser)
	require.NoError(t, err)

	accounts := &MockAccountStore{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			return account, nil
		},
	}
	tokens := &MockRefreshTokenStore{
		FindByUserAndHashFunc: func(ctx context.Context, userID, tokenHash string) (*models.RefreshToken, error) {
			return NewTestRefreshToken(userID, tokenHash), nil
		},
	}

	svc := NewSessionService(accounts, tokens, tm, testLogger(), testAuditLogger())
	pair, err := svc.Refresh(context.Background(), expiredAccess, refreshToken)

	require.NoError(t, err, "an expired access token still proves the pair binding")
	assert.NotNil(t, pair)
}

func TestSessionService_Refresh_LostRotationRace(t *testing.T) {
	tm := testTokenManager()
	account := NewTestAccount("user123", "user@example.com", "Test User")

	refreshToken, err := tm.IssueRefreshToken("user123")
	require.NoError(t, err)

	created := false
	accounts := &MockAccountStore{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			return account, nil
		},
	}
	tokens := &MockRefreshTokenStore{
		FindByUserAndHashFunc: func(ctx context.Context, userID, tokenHash string) (*models.RefreshToken, error) {
			return NewTestRefreshToken(userID, tokenHash), nil
		},
		ConditionalRevokeFunc: func(ctx context.Context, tokenHash, replacedByHash string) (bool, error) {
			return false, nil
		},
		CreateFunc: func(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.RefreshToken, error) {
			created = true
			return nil, nil
		},
	}

	svc := NewSessionService(accounts, tokens, tm, testLogger(), testAuditLogger())
	_, err = svc.Refresh(context.Background(), "", refreshToken)

	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.False(t, created, "the race loser must not store a token")
}

func TestSessionService_Refresh_GarbageToken(t *testing.T) {
	svc := newSessionService(&MockAccountStore{}, &MockRefreshTokenStore{})

	_, err := svc.Refresh(context.Background(), "", "not-a-jwt")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestSessionService_Refresh_DeactivatedAccount(t *testing.T) {
	tm := testTokenManager()
	account := NewTestAccountDeactivated("user123", "user@example.com", "Test User", time.Now().Add(time.Hour))

	refreshToken, err := tm.IssueRefreshToken("user123")
	require.NoError(t, err)

	accounts := &MockAccountStore{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			return account, nil
		},
	}
	tokens := &MockRefreshTokenStore{
		FindByUserAndHashFunc: func(ctx context.Context, userID, tokenHash string) (*models.RefreshToken, error) {
			return NewTestRefreshToken(userID, tokenHash), nil
		},
	}

	svc := NewSessionService(accounts, tokens, tm, testLogger(), testAuditLogger())
	_, err = svc.Refresh(context.Background(), "", refreshToken)

	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestSessionService_Logout_RevokesToken(t *testing.T) {
	tm := testTokenManager()
	refreshToken, err := tm.IssueRefreshToken("user123")
	require.NoError(t, err)

	var revokedHash string
	tokens := &MockRefreshTokenStore{
		RevokeFunc: func(ctx context.Context, tokenHash string) error {
			revokedHash = tokenHash
			return nil
		},
	}

	svc := NewSessionService(&MockAccountStore{}, tokens, tm, testLogger(), testAuditLogger())
	err = svc.Logout(context.Background(), refreshToken)

	require.NoError(t, err)
	assert.Equal(t, auth.HashToken(refreshToken), revokedHash)
}

func TestSessionService_Logout_Idempotent(t *testing.T) {
	svc := newSessionService(&MockAccountStore{}, &MockRefreshTokenStore{})

	assert.NoError(t, svc.Logout(context.Background(), ""))
	assert.NoError(t, svc.Logout(context.Background(), "garbage"))
}
