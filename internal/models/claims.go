package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims is the access-token payload: account id plus role, 15 minute
// expiry by default.
type AccessClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims is the refresh-token payload. It carries only the account id;
// everything else lives in the stored RefreshToken record.
type RefreshClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenPair is a freshly issued access/refresh pair plus the subject it was
// minted for. Returned by session issuance and rotation.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	Role         string
}
