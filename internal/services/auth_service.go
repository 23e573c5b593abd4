package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/lmorrow/taskvault/internal/auth"
	"github.com/lmorrow/taskvault/internal/config"
	"github.com/lmorrow/taskvault/internal/models"
	pkgauth "github.com/lmorrow/taskvault/pkg/auth"
	pkglogger "github.com/lmorrow/taskvault/pkg/logger"
)

// AccountStore defines the interface for account persistence
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	IncrementFailedLogins(ctx context.Context, id string, maxAttempts int, lockUntil time.Time) (int, error)
	SoftDelete(ctx context.Context, id string, deletedAt, reactivateAt time.Time) error
	Reactivate(ctx context.Context, id string) error
	AttachProvider(ctx context.Context, id, provider, providerID string, avatarURL *string) error
	Delete(ctx context.Context, id string) error
}

// PasscodeFlow is the passcode side of the sign-in and recovery flows
type PasscodeFlow interface {
	SendOtp(ctx context.Context, email, otpType string) error
	VerifyOtp(ctx context.Context, email, otpType, code string) (*VerifyOtpResult, error)
}

// SessionIssuer is the session side: minting on full authentication and
// mass revocation on credential changes
type SessionIssuer interface {
	CompleteLogin(ctx context.Context, account *models.Account) (*models.TokenPair, error)
	RevokeAll(ctx context.Context, userID string) error
}

// OAuthProfile is the identity a federated provider asserted for a user
type OAuthProfile struct {
	Provider   string
	ProviderID string
	Email      string
	Name       string
	AvatarURL  *string
}

// AuthService orchestrates registration, the two-step password login and
// account lifecycle. Password logins never mint tokens directly; a correct
// password only earns a signin passcode, and the session is minted when that
// passcode verifies.
type AuthService struct {
	accounts    AccountStore
	otps        PasscodeFlow
	sessions    SessionIssuer
	avatars     AvatarStorage
	timing      *auth.TimingDelay
	cfg         config.AuthConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewAuthService(accounts AccountStore, otps PasscodeFlow, sessions SessionIssuer, avatars AvatarStorage, timing *auth.TimingDelay, cfg config.AuthConfig, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *AuthService {
	return &AuthService{
		accounts:    accounts,
		otps:        otps,
		sessions:    sessions,
		avatars:     avatars,
		timing:      timing,
		cfg:         cfg,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Register creates a local account and sends the email-verification passcode.
// The role is always "user"; nothing in the request can elevate it.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*models.Account, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" {
		return nil, models.ErrBadRequest
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, err
	}

	passwordHash, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	account, err := s.accounts.Create(ctx, &models.Account{
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         models.RoleUser,
		Provider:     models.ProviderLocal,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.logger.Info("registration refused: email taken")
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// Verification can be re-requested, so a failed dispatch does not undo
	// the registration.
	if err := s.otps.SendOtp(ctx, email, models.OtpTypeEmailVerify); err != nil {
		s.logger.Warn("failed to send verification passcode",
			slog.String("user_id", account.ID), slog.Any("error", err))
	}

	s.logger.Info("account registered", slog.String("user_id", account.ID))
	s.auditLogger.LogAccountAction("account_registered", account.ID, nil)
	return account, nil
}

// Login is the first factor of the password flow: it verifies credentials
// and, on success, sends a signin passcode. Unknown emails and wrong
// passwords fail identically, with the response time padded so the two are
// indistinguishable from outside.
func (s *AuthService) Login(ctx context.Context, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		s.timing.Wait(false)
		return models.ErrInvalidCredentials
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logFailedLogin("", "invalid_credentials")
			s.timing.Wait(false)
			return models.ErrInvalidCredentials
		}
		s.logger.Error("failed to get account for login", slog.Any("error", err))
		return models.ErrInternalServer
	}

	now := time.Now()
	if account.IsDeleted {
		s.logFailedLogin(account.ID, "account_deactivated")
		return models.ErrAccountDeactivated
	}
	if account.IsLocked(now) {
		s.logFailedLogin(account.ID, "account_locked")
		return &models.AccountLockedError{Remaining: account.LockRemaining(now)}
	}

	// OAuth-only accounts have no password to check
	if account.PasswordHash == "" {
		s.logFailedLogin(account.ID, "invalid_credentials")
		s.timing.Wait(false)
		return models.ErrInvalidCredentials
	}

	if err := pkgauth.ComparePassword(account.PasswordHash, password); err != nil {
		attempts, incErr := s.accounts.IncrementFailedLogins(ctx, account.ID, s.cfg.LoginMaxAttempts, now.Add(s.cfg.LockDuration))
		if incErr != nil {
			s.logger.Error("failed to count failed login", slog.String("user_id", account.ID), slog.Any("error", incErr))
		} else if attempts >= s.cfg.LoginMaxAttempts {
			s.logger.Warn("account locked after repeated failures", slog.String("user_id", account.ID))
		}
		s.logFailedLogin(account.ID, "invalid_credentials")
		s.timing.Wait(false)
		return models.ErrInvalidCredentials
	}

	if !account.EmailVerified {
		// Re-prompt verification instead of letting the login proceed
		if err := s.otps.SendOtp(ctx, email, models.OtpTypeEmailVerify); err != nil {
			s.logger.Warn("failed to resend verification passcode",
				slog.String("user_id", account.ID), slog.Any("error", err))
		}
		return models.ErrEmailNotVerified
	}

	if err := s.otps.SendOtp(ctx, email, models.OtpTypeSignin); err != nil {
		return err
	}

	s.timing.Wait(true)
	return nil
}

// ChangePassword rotates the password of a signed-in account. It requires
// the current password and a fresh password-change passcode, and ends every
// session on success.
func (s *AuthService) ChangePassword(ctx context.Context, userID, code, currentPassword, newPassword string) error {
	account, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrUnauthorized
		}
		s.logger.Error("failed to get account for password change", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if account.PasswordHash == "" || pkgauth.ComparePassword(account.PasswordHash, currentPassword) != nil {
		s.auditLogger.LogPasswordChange(userID, false)
		return models.ErrInvalidCredentials
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}
	if pkgauth.ComparePassword(account.PasswordHash, newPassword) == nil {
		return models.ErrBadRequest
	}

	if _, err := s.otps.VerifyOtp(ctx, account.Email, models.OtpTypeChangePass, code); err != nil {
		return err
	}

	return s.setPassword(ctx, account.ID, newPassword)
}

// ForgotPassword starts recovery by sending a password-reset passcode.
// Unknown and deactivated emails report success so the endpoint cannot be
// used to probe for accounts; throttling still surfaces, it only fires for
// addresses the caller already proved exist.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	err := s.otps.SendOtp(ctx, strings.ToLower(strings.TrimSpace(email)), models.OtpTypePasswordReset)
	if err == nil || errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrAccountDeactivated) {
		return nil
	}
	return err
}

// ResetPassword redeems a reset capability for a new password and ends every
// session for the account. Deactivated and locked accounts are refused; the
// lock must expire before a recovery flow can touch the password.
func (s *AuthService) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	accountID, err := auth.VerifyResetCapability(resetToken, s.cfg.CryptoSecret, time.Now())
	if err != nil {
		s.logger.Info("reset capability rejected", slog.Any("error", err))
		return models.ErrUnauthorized
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrUnauthorized
		}
		s.logger.Error("failed to get account for reset", slog.String("user_id", accountID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	now := time.Now()
	if account.IsDeleted {
		return models.ErrAccountDeactivated
	}
	if account.IsLocked(now) {
		return &models.AccountLockedError{Remaining: account.LockRemaining(now)}
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}
	if account.PasswordHash != "" && pkgauth.ComparePassword(account.PasswordHash, newPassword) == nil {
		return models.ErrBadRequest
	}

	return s.setPassword(ctx, account.ID, newPassword)
}

// Deactivate soft-deletes the account and ends its sessions. The account can
// be reactivated after the cooldown elapses.
func (s *AuthService) Deactivate(ctx context.Context, userID string) error {
	now := time.Now()
	if err := s.accounts.SoftDelete(ctx, userID, now, now.Add(s.cfg.ReactivationCooldown)); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to deactivate account", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.sessions.RevokeAll(ctx, userID); err != nil {
		return err
	}

	s.logger.Info("account deactivated", slog.String("user_id", userID))
	s.auditLogger.LogAccountAction("account_deactivated", userID, nil)
	return nil
}

// Reactivate lifts a soft delete once the cooldown has elapsed. It requires
// the account password; the caller still signs in normally afterwards.
func (s *AuthService) Reactivate(ctx context.Context, email, password string) error {
	account, err := s.accounts.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.timing.Wait(false)
			return models.ErrInvalidCredentials
		}
		s.logger.Error("failed to get account for reactivation", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if !account.IsDeleted {
		return models.ErrBadRequest
	}
	if account.PasswordHash == "" || pkgauth.ComparePassword(account.PasswordHash, password) != nil {
		s.timing.Wait(false)
		return models.ErrInvalidCredentials
	}

	now := time.Now()
	if account.IsLocked(now) {
		return &models.AccountLockedError{Remaining: account.LockRemaining(now)}
	}
	if !account.CanReactivate(now) {
		return &models.ReactivationCooldownError{Remaining: account.ReactivateAt.Sub(now)}
	}

	if err := s.accounts.Reactivate(ctx, account.ID); err != nil {
		s.logger.Error("failed to reactivate account", slog.String("user_id", account.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("account reactivated", slog.String("user_id", account.ID))
	s.auditLogger.LogAccountAction("account_reactivated", account.ID, nil)
	return nil
}

// DeleteAccount removes the account permanently: stored avatar, todos,
// passcodes, refresh tokens and the account row itself. The removal is
// terminal; nothing is written back to the entity afterwards.
func (s *AuthService) DeleteAccount(ctx context.Context, userID string) error {
	account, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to get account for deletion", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if account.Avatar != nil && account.Avatar.Key != "" {
		if err := s.avatars.Delete(ctx, account.Avatar.Key); err != nil {
			s.logger.Warn("failed to delete avatar during account removal",
				slog.String("user_id", userID), slog.Any("error", err))
		}
	}

	if err := s.accounts.Delete(ctx, userID); err != nil {
		s.logger.Error("failed to delete account", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("account deleted", slog.String("user_id", userID))
	s.auditLogger.LogAccountAction("account_deleted", userID, nil)
	return nil
}

// OAuthLogin signs a user in with a provider-asserted identity, creating the
// account on first contact. Federated logins skip the passcode step; the
// provider already verified the email.
func (s *AuthService) OAuthLogin(ctx context.Context, profile OAuthProfile) (*models.TokenPair, error) {
	email := strings.ToLower(strings.TrimSpace(profile.Email))
	if email == "" || profile.Provider == "" || profile.ProviderID == "" {
		return nil, models.ErrBadRequest
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to get account for oauth login", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}

		var avatar *models.Avatar
		if profile.AvatarURL != nil {
			avatar = &models.Avatar{URL: *profile.AvatarURL}
		}
		account, err = s.accounts.Create(ctx, &models.Account{
			Name:          profile.Name,
			Email:         email,
			Role:          models.RoleUser,
			Provider:      profile.Provider,
			ProviderID:    &profile.ProviderID,
			Avatar:        avatar,
			EmailVerified: true,
		})
		if err != nil {
			s.logger.Error("failed to create oauth account", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		s.auditLogger.LogAccountAction("account_registered", account.ID, map[string]string{"provider": profile.Provider})
	} else {
		now := time.Now()
		if account.IsDeleted {
			return nil, models.ErrAccountDeactivated
		}
		if account.IsLocked(now) {
			return nil, &models.AccountLockedError{Remaining: account.LockRemaining(now)}
		}

		if err := s.accounts.AttachProvider(ctx, account.ID, profile.Provider, profile.ProviderID, profile.AvatarURL); err != nil {
			s.logger.Error("failed to attach provider", slog.String("user_id", account.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
	}

	return s.sessions.CompleteLogin(ctx, account)
}

func (s *AuthService) setPassword(ctx context.Context, userID, newPassword string) error {
	passwordHash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.accounts.UpdatePassword(ctx, userID, passwordHash); err != nil {
		s.logger.Error("failed to update password", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.sessions.RevokeAll(ctx, userID); err != nil {
		return err
	}

	s.auditLogger.LogPasswordChange(userID, true)
	return nil
}

func (s *AuthService) logFailedLogin(userID, reason string) {
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "login_failed",
		UserID:        userID,
		FailureReason: reason,
		Success:       false,
	})
}
