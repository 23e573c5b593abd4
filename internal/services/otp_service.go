package services

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/lmorrow/taskvault/internal/auth"
	"github.com/lmorrow/taskvault/internal/config"
	"github.com/lmorrow/taskvault/internal/models"
	pkglogger "github.com/lmorrow/taskvault/pkg/logger"
)

// OtpAccountStore is the slice of account persistence the passcode layer needs
type OtpAccountStore interface {
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	IncrementFailedLogins(ctx context.Context, id string, maxAttempts int, lockUntil time.Time) (int, error)
	MarkEmailVerified(ctx context.Context, id string) error
}

// OtpStore defines the interface for passcode persistence
type OtpStore interface {
	Create(ctx context.Context, otp *models.OneTimePasscode) (*models.OneTimePasscode, error)
	FindLatest(ctx context.Context, email, otpType string) (*models.OneTimePasscode, error)
	FindLatestPending(ctx context.Context, email, otpType string) (*models.OneTimePasscode, error)
	IncrementAttempts(ctx context.Context, id string) error
	MarkUsed(ctx context.Context, id string) error
	DeleteByEmail(ctx context.Context, email string) error
}

// SessionCompleter mints a session for an account that passed every check
type SessionCompleter interface {
	CompleteLogin(ctx context.Context, account *models.Account) (*models.TokenPair, error)
}

// VerifyOtpResult is what a successful verification yields. Which fields are
// set depends on the passcode type: signin produces a token pair,
// password-reset produces a short-lived reset capability.
type VerifyOtpResult struct {
	Account        *models.Account
	Tokens         *models.TokenPair
	ResetToken     string
	ResetExpiresAt time.Time
}

// OtpService issues and verifies one-time passcodes. Codes are random
// fixed-length decimals, stored hashed, scoped by (email, type), throttled on
// resend and capped on attempts.
type OtpService struct {
	accounts    OtpAccountStore
	otps        OtpStore
	email       EmailService
	sessions    SessionCompleter
	cfg         config.AuthConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewOtpService(accounts OtpAccountStore, otps OtpStore, email EmailService, sessions SessionCompleter, cfg config.AuthConfig, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *OtpService {
	return &OtpService{
		accounts:    accounts,
		otps:        otps,
		email:       email,
		sessions:    sessions,
		cfg:         cfg,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// SendOtp generates, stores and emails a fresh passcode. Issuance is refused
// while an earlier passcode of the same type is inside its resend window, and
// refused outright for locked or deactivated accounts. A passcode whose email
// could not be dispatched is burned so it can never verify.
func (s *OtpService) SendOtp(ctx context.Context, email, otpType string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if !slices.Contains(models.OtpTypes, otpType) {
		return models.ErrBadRequest
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to get account for otp", slog.Any("error", err))
		return models.ErrInternalServer
	}

	now := time.Now()
	if account.IsDeleted {
		return models.ErrAccountDeactivated
	}
	if account.IsLocked(now) {
		return &models.AccountLockedError{Remaining: account.LockRemaining(now)}
	}

	if latest, err := s.otps.FindLatest(ctx, email, otpType); err == nil {
		if wait := latest.ResendWait(now); wait > 0 {
			return &models.ResendThrottledError{Wait: wait}
		}
	} else if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check otp throttle", slog.Any("error", err))
		return models.ErrInternalServer
	}

	generated, err := auth.GenerateOTP(s.cfg.OtpLength, s.cfg.OtpExpiry)
	if err != nil {
		s.logger.Error("failed to generate otp", slog.Any("error", err))
		return models.ErrInternalServer
	}

	otp, err := s.otps.Create(ctx, &models.OneTimePasscode{
		Email:        email,
		Type:         otpType,
		CodeHash:     generated.CodeHash,
		ExpiresAt:    generated.ExpiresAt,
		NextResendAt: now.Add(s.cfg.OtpResendCooldown),
		MaxAttempts:  s.cfg.OtpMaxAttempts,
	})
	if err != nil {
		s.logger.Error("failed to store otp", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.email.SendOtpEmail(ctx, email, otpType, generated.Code, s.cfg.OtpExpiry); err != nil {
		if burnErr := s.otps.MarkUsed(ctx, otp.ID); burnErr != nil {
			s.logger.Error("failed to burn undelivered otp", slog.String("otp_id", otp.ID), slog.Any("error", burnErr))
		}
		return models.ErrEmailDispatch
	}

	s.logger.Info("otp issued",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("otp_type", otpType))
	return nil
}

// VerifyOtp checks a submitted code against the latest pending passcode of
// its type and dispatches on success. The attempt counter is bumped before
// the comparison and is never rolled back; a correct code arriving after the
// cap is refused. Failed signin verifications also count toward the account
// lock.
func (s *OtpService) VerifyOtp(ctx context.Context, email, otpType, code string) (*VerifyOtpResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !slices.Contains(models.OtpTypes, otpType) {
		return nil, models.ErrBadRequest
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrOtpInvalid
		}
		s.logger.Error("failed to get account for otp verification", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := time.Now()
	if account.IsDeleted {
		return nil, models.ErrAccountDeactivated
	}
	if account.IsLocked(now) {
		return nil, &models.AccountLockedError{Remaining: account.LockRemaining(now)}
	}

	otp, err := s.otps.FindLatestPending(ctx, email, otpType)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrOtpInvalid
		}
		s.logger.Error("failed to look up otp", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if otp.AttemptsExhausted() {
		return nil, models.ErrOtpExhausted
	}

	// Count the attempt before comparing, so a failure that aborts later
	// still consumed one try.
	if err := s.otps.IncrementAttempts(ctx, otp.ID); err != nil {
		s.logger.Error("failed to count otp attempt", slog.String("otp_id", otp.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !auth.VerifyHashedToken(code, otp.CodeHash) {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "otp_verification_failed",
			UserID:        account.ID,
			FailureReason: "code_mismatch",
			Success:       false,
		})
		if otpType == models.OtpTypeSignin {
			if _, err := s.accounts.IncrementFailedLogins(ctx, account.ID, s.cfg.LoginMaxAttempts, now.Add(s.cfg.LockDuration)); err != nil {
				s.logger.Error("failed to count failed login", slog.String("user_id", account.ID), slog.Any("error", err))
			}
		}
		return nil, models.ErrOtpInvalid
	}

	if err := s.otps.MarkUsed(ctx, otp.ID); err != nil {
		// Lost to a concurrent verification of the same code
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrOtpInvalid
		}
		s.logger.Error("failed to consume otp", slog.String("otp_id", otp.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	result := &VerifyOtpResult{Account: account}
	switch otpType {
	case models.OtpTypeSignin:
		pair, err := s.sessions.CompleteLogin(ctx, account)
		if err != nil {
			return nil, err
		}
		result.Tokens = pair

	case models.OtpTypeEmailVerify:
		if err := s.accounts.MarkEmailVerified(ctx, account.ID); err != nil {
			s.logger.Error("failed to mark email verified", slog.String("user_id", account.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		s.auditLogger.LogAccountAction("email_verified", account.ID, nil)

	case models.OtpTypePasswordReset:
		expiresAt := now.Add(s.cfg.ResetTokenExpiry)
		result.ResetToken = auth.ResetCapability(account.ID, s.cfg.CryptoSecret, expiresAt)
		result.ResetExpiresAt = expiresAt
	}

	// A successful verification invalidates every outstanding passcode for
	// the address. Best effort; the background sweep catches leftovers.
	if err := s.otps.DeleteByEmail(ctx, email); err != nil {
		s.logger.Warn("failed to sweep passcodes after verification",
			slog.String("email", pkglogger.SanitizedEmail(email)), slog.Any("error", err))
	}

	s.logger.Info("otp verified",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("otp_type", otpType))
	return result, nil
}
