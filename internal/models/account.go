package models

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
	ProviderGithub = "github"
)

// Avatar describes an uploaded profile image stored in object storage
type Avatar struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

type Account struct {
	ID                  string
	Name                string
	Email               string
	PasswordHash        string // empty for OAuth-only accounts
	Role                string // "user", "admin"
	Provider            string // "local", "google", "github"
	ProviderID          *string
	Avatar              *Avatar
	EmailVerified       bool
	LastLoginAt         *time.Time
	FailedLoginAttempts int
	LockUntil           *time.Time
	IsDeleted           bool
	DeletedAt           *time.Time
	ReactivateAt        *time.Time // soft-delete cooldown; reactivation refused before this
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsLocked reports whether the account is inside an active lock window.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockUntil != nil && now.Before(*a.LockUntil)
}

// LockRemaining returns the time left on the lock window, rounded up to whole minutes.
func (a *Account) LockRemaining(now time.Time) time.Duration {
	if !a.IsLocked(now) {
		return 0
	}
	remaining := a.LockUntil.Sub(now)
	return remaining.Truncate(time.Minute) + time.Minute
}

// CanReactivate reports whether the soft-delete cooldown has elapsed.
func (a *Account) CanReactivate(now time.Time) bool {
	if !a.IsDeleted {
		return false
	}
	return a.ReactivateAt == nil || !now.Before(*a.ReactivateAt)
}
