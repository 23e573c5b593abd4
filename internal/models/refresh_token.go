package models

import (
	"time"
)

// RefreshToken is the stored side of an issued refresh token. The plaintext
// value lives only on the client; the record keys on its SHA-256 digest.
// Rotation marks the old record revoked and links it forward via
// ReplacedByTokenHash so a lineage can be traced after a reuse event.
type RefreshToken struct {
	ID                  string
	UserID              string
	TokenHash           string `json:"-"`
	ExpiresAt           time.Time
	IsRevoked           bool
	RevokedAt           *time.Time
	ReplacedByTokenHash *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (t *RefreshToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IsActive reports whether the record is still the valid credential for its lineage.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.IsRevoked && !t.IsExpired(now)
}
