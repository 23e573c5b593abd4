package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lmorrow/taskvault/internal/auth"
	"github.com/lmorrow/taskvault/internal/models"
	pkglogger "github.com/lmorrow/taskvault/pkg/logger"
)

// SessionAccountStore is the slice of account persistence the session layer needs
type SessionAccountStore interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	RecordLogin(ctx context.Context, id string, at time.Time) error
}

// RefreshTokenStore defines the interface for refresh-token persistence
type RefreshTokenStore interface {
	Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.RefreshToken, error)
	FindByUserAndHash(ctx context.Context, userID, tokenHash string) (*models.RefreshToken, error)
	ConditionalRevoke(ctx context.Context, tokenHash, replacedByHash string) (bool, error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}

// SessionService issues token pairs and rotates refresh tokens. Every issued
// refresh token is backed by a stored record keyed on its digest; rotation
// revokes the old record and links it to its replacement.
type SessionService struct {
	accounts    SessionAccountStore
	tokens      RefreshTokenStore
	tm          *auth.TokenManager
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewSessionService(accounts SessionAccountStore, tokens RefreshTokenStore, tm *auth.TokenManager, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *SessionService {
	return &SessionService{
		accounts:    accounts,
		tokens:      tokens,
		tm:          tm,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// CompleteLogin mints a fresh token pair for a fully authenticated account,
// persists the refresh side and stamps the login. Lock counters reset here.
func (s *SessionService) CompleteLogin(ctx context.Context, account *models.Account) (*models.TokenPair, error) {
	pair, err := s.issuePair(ctx, account.ID, account.Role)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.RecordLogin(ctx, account.ID, time.Now()); err != nil {
		s.logger.Error("failed to record login", slog.String("user_id", account.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user logged in", slog.String("user_id", account.ID))
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    account.ID,
		Success:   true,
	})

	return pair, nil
}

// Refresh rotates a refresh token into a new pair.
//
// A structurally valid token that is missing from the store, or whose record
// is already revoked, means a previously rotated token came back: the whole
// lineage is compromised, so every session for the account is revoked. When
// an access token accompanies the request, both tokens must name the same
// account. Two concurrent refreshes with one token yield exactly one winner;
// the loser gets ErrUnauthorized.
func (s *SessionService) Refresh(ctx context.Context, accessToken, refreshToken string) (*models.TokenPair, error) {
	claims, err := s.tm.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, models.ErrUnauthorized
	}

	if accessToken != "" {
		accessClaims, err := s.tm.ParseAccessTokenLenient(accessToken)
		if err != nil {
			return nil, models.ErrUnauthorized
		}
		if accessClaims.UserID != claims.UserID {
			s.logger.Warn("refresh with mismatched token pair",
				slog.String("refresh_user_id", claims.UserID),
				slog.String("access_user_id", accessClaims.UserID))
			return nil, models.ErrUnauthorized
		}
	}

	tokenHash := auth.HashToken(refreshToken)
	record, err := s.tokens.FindByUserAndHash(ctx, claims.UserID, tokenHash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, s.containReuse(ctx, claims.UserID, "unknown_token")
		}
		s.logger.Error("failed to look up refresh token", slog.String("user_id", claims.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if record.IsRevoked {
		return nil, s.containReuse(ctx, claims.UserID, "revoked_token")
	}
	if record.IsExpired(time.Now()) {
		return nil, models.ErrUnauthorized
	}

	account, err := s.accounts.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get account for refresh", slog.String("user_id", claims.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if account.IsDeleted || account.IsLocked(time.Now()) {
		return nil, models.ErrUnauthorized
	}

	pair, newHash, err := s.mintPair(account.ID, account.Role)
	if err != nil {
		return nil, err
	}

	won, err := s.tokens.ConditionalRevoke(ctx, tokenHash, newHash)
	if err != nil {
		s.logger.Error("failed to revoke refresh token", slog.String("user_id", account.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !won {
		// Another request rotated this token first
		s.logger.Info("lost refresh rotation race", slog.String("user_id", account.ID))
		return nil, models.ErrUnauthorized
	}

	if _, err := s.tokens.Create(ctx, account.ID, newHash, time.Now().Add(s.tm.RefreshExpiry())); err != nil {
		s.logger.Error("failed to store rotated refresh token", slog.String("user_id", account.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("session refreshed", slog.String("user_id", account.ID))
	return pair, nil
}

// Logout revokes the presented refresh token. Idempotent: an already revoked
// or unparseable token still logs out cleanly.
func (s *SessionService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	claims, err := s.tm.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil
	}

	if err := s.tokens.Revoke(ctx, auth.HashToken(refreshToken)); err != nil {
		s.logger.Error("failed to revoke refresh token on logout", slog.String("user_id", claims.UserID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("user logged out", slog.String("user_id", claims.UserID))
	return nil
}

// RevokeAll ends every session for the account. Used after password changes,
// deactivation and reuse containment.
func (s *SessionService) RevokeAll(ctx context.Context, userID string) error {
	if err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
		s.logger.Error("failed to revoke all sessions", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}

func (s *SessionService) containReuse(ctx context.Context, userID, reason string) error {
	s.logger.Warn("refresh token reuse detected",
		slog.String("user_id", userID),
		slog.String("reason", reason))
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "refresh_reuse_detected",
		UserID:        userID,
		FailureReason: reason,
		Success:       false,
	})

	if err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
		s.logger.Error("failed to contain token reuse", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	return models.ErrUnauthorized
}

func (s *SessionService) issuePair(ctx context.Context, userID, role string) (*models.TokenPair, error) {
	pair, refreshHash, err := s.mintPair(userID, role)
	if err != nil {
		return nil, err
	}

	if _, err := s.tokens.Create(ctx, userID, refreshHash, time.Now().Add(s.tm.RefreshExpiry())); err != nil {
		s.logger.Error("failed to store refresh token", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return pair, nil
}

func (s *SessionService) mintPair(userID, role string) (*models.TokenPair, string, error) {
	accessToken, err := s.tm.IssueAccessToken(userID, role)
	if err != nil {
		s.logger.Error("failed to issue access token", slog.String("user_id", userID), slog.Any("error", err))
		return nil, "", models.ErrInternalServer
	}

	refreshToken, err := s.tm.IssueRefreshToken(userID)
	if err != nil {
		s.logger.Error("failed to issue refresh token", slog.String("user_id", userID), slog.Any("error", err))
		return nil, "", models.ErrInternalServer
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UserID:       userID,
		Role:         role,
	}, auth.HashToken(refreshToken), nil
}
