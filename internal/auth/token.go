package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lmorrow/taskvault/internal/models"
)

// TokenManager issues and verifies the access/refresh token pair. The two
// token kinds are signed with distinct secrets so one can never be presented
// in place of the other.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(accessSecret, refreshSecret string, accessExpiry, refreshExpiry time.Duration) *TokenManager {
	return &TokenManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
	}
}

func (tm *TokenManager) AccessExpiry() time.Duration  { return tm.accessExpiry }
func (tm *TokenManager) RefreshExpiry() time.Duration { return tm.refreshExpiry }

// IssueAccessToken creates a short-lived access token carrying id and role
func (tm *TokenManager) IssueAccessToken(userID, role string) (string, error) {
	now := time.Now()
	claims := &models.AccessClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.accessExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.accessSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return tokenString, nil
}

// IssueRefreshToken creates a long-lived refresh token carrying only the account id
func (tm *TokenManager) IssueRefreshToken(userID string) (string, error) {
	now := time.Now()
	claims := &models.RefreshClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.refreshExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return tokenString, nil
}

// ParseAccessToken verifies an access token and returns its claims. A decode
// failure is terminal for the token; callers must not retry with it.
func (tm *TokenManager) ParseAccessToken(tokenString string) (*models.AccessClaims, error) {
	claims := &models.AccessClaims{}
	if err := tm.parse(tokenString, claims, tm.accessSecret); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, models.ErrUnauthorized
	}
	return claims, nil
}

// ParseAccessTokenLenient verifies an access token's signature but tolerates
// an elapsed expiry. Used during refresh, where the presented access token is
// usually already expired and only its subject binding matters.
func (tm *TokenManager) ParseAccessTokenLenient(tokenString string) (*models.AccessClaims, error) {
	claims := &models.AccessClaims{}
	err := tm.parse(tokenString, claims, tm.accessSecret)
	if err != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, models.ErrUnauthorized
	}
	return claims, nil
}

// ParseRefreshToken verifies a refresh token and returns its claims
func (tm *TokenManager) ParseRefreshToken(tokenString string) (*models.RefreshClaims, error) {
	claims := &models.RefreshClaims{}
	if err := tm.parse(tokenString, claims, tm.refreshSecret); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, models.ErrUnauthorized
	}
	return claims, nil
}

func (tm *TokenManager) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return models.ErrUnauthorized
	}
	return nil
}
