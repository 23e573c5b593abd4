package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound        = errors.New("resource not found")
	ErrConflict        = errors.New("resource already exists")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrBadRequest      = errors.New("bad request")
	ErrTooManyRequests = errors.New("too many requests")
	ErrInternalServer  = errors.New("internal server error")

	// Auth flow errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email address not verified")
	ErrAccountDeactivated = errors.New("account is deactivated")
	ErrOtpInvalid         = errors.New("invalid or expired OTP")
	ErrOtpExhausted       = errors.New("maximum OTP attempts reached")
	ErrEmailDispatch      = errors.New("failed to send email")
)

// AccountLockedError carries the remaining lock window so callers can tell
// the user when to retry. Unwraps to ErrForbidden.
type AccountLockedError struct {
	Remaining time.Duration
}

func (e *AccountLockedError) Error() string {
	minutes := int(e.Remaining.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("account is locked, please try again after %d minutes", minutes)
}

func (e *AccountLockedError) Unwrap() error { return ErrForbidden }

// ResendThrottledError carries the remaining resend cooldown. Unwraps to ErrBadRequest.
type ResendThrottledError struct {
	Wait time.Duration
}

func (e *ResendThrottledError) Error() string {
	seconds := int(e.Wait.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return fmt.Sprintf("please wait %d seconds before requesting another OTP", seconds)
}

func (e *ResendThrottledError) Unwrap() error { return ErrBadRequest }

// ReactivationCooldownError carries the remaining soft-delete cooldown. Unwraps to ErrForbidden.
type ReactivationCooldownError struct {
	Remaining time.Duration
}

func (e *ReactivationCooldownError) Error() string {
	minutes := int(e.Remaining.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("account cannot be reactivated yet, please try again after %d minutes", minutes)
}

func (e *ReactivationCooldownError) Unwrap() error { return ErrForbidden }
