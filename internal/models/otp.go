package models

import (
	"time"
)

// Passcode types. Verification behavior dispatches on these: "signin"
// completes the two-factor login, "password-reset" grants a reset capability.
const (
	OtpTypeSignin        = "signin"
	OtpTypeEmailVerify   = "email-verification"
	OtpTypePasswordReset = "password-reset"
	OtpTypeChangePass    = "password-change"
)

// OtpTypes lists every accepted passcode type.
var OtpTypes = []string{OtpTypeSignin, OtpTypeEmailVerify, OtpTypePasswordReset, OtpTypeChangePass}

// OneTimePasscode is a short-lived numeric credential scoped by (email, type).
// Only the SHA-256 digest of the code is ever stored.
type OneTimePasscode struct {
	ID           string
	Email        string
	Type         string
	CodeHash     string `json:"-"`
	ExpiresAt    time.Time
	NextResendAt time.Time // resend throttle boundary
	IsUsed       bool
	UsedAt       *time.Time
	Attempts     int
	MaxAttempts  int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (o *OneTimePasscode) IsExpired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// AttemptsExhausted reports whether verification must be refused outright,
// even for a correct code.
func (o *OneTimePasscode) AttemptsExhausted() bool {
	return o.Attempts >= o.MaxAttempts
}

// ResendWait returns how long the caller must wait before the next resend,
// rounded up to whole seconds. Zero means a resend is allowed now.
func (o *OneTimePasscode) ResendWait(now time.Time) time.Duration {
	if !now.Before(o.NextResendAt) {
		return 0
	}
	remaining := o.NextResendAt.Sub(now)
	return remaining.Truncate(time.Second) + time.Second
}
