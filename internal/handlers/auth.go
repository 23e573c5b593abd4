package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/lmorrow/taskvault/internal/auth"
	"github.com/lmorrow/taskvault/internal/config"
	"github.com/lmorrow/taskvault/internal/models"
	"github.com/lmorrow/taskvault/internal/services"
	pkgauth "github.com/lmorrow/taskvault/pkg/auth"
	pkghttp "github.com/lmorrow/taskvault/pkg/http"
)

// AuthFlow defines the interface for registration, credential and lifecycle logic
type AuthFlow interface {
	Register(ctx context.Context, name, email, password string) (*models.Account, error)
	Login(ctx context.Context, email, password string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, resetToken, newPassword string) error
	Reactivate(ctx context.Context, email, password string) error
	OAuthLogin(ctx context.Context, profile services.OAuthProfile) (*models.TokenPair, error)
}

// PasscodeFlowInterface defines the interface for one-time passcode operations
type PasscodeFlowInterface interface {
	SendOtp(ctx context.Context, email, otpType string) error
	VerifyOtp(ctx context.Context, email, otpType, code string) (*services.VerifyOtpResult, error)
}

// SessionManager defines the interface for session rotation and revocation
type SessionManager interface {
	Refresh(ctx context.Context, accessToken, refreshToken string) (*models.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	RevokeAll(ctx context.Context, userID string) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthFlow
	otps     PasscodeFlowInterface
	sessions SessionManager
	cookies  *auth.CookieSink
	cfg      config.AuthConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthFlow, otps PasscodeFlowInterface, sessions SessionManager, cookies *auth.CookieSink, cfg config.AuthConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		otps:     otps,
		sessions: sessions,
		cookies:  cookies,
		cfg:      cfg,
	}
}

// Request DTOs

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=1"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SigninRequest represents the request body for the first login step
type SigninRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SendOtpRequest represents the request body for requesting a passcode
type SendOtpRequest struct {
	Email string `json:"email" validate:"required,email"`
	Type  string `json:"type" validate:"required,oneof=signin email-verification password-reset password-change"`
}

// VerifyOtpRequest represents the request body for verifying a passcode
type VerifyOtpRequest struct {
	Email string `json:"email" validate:"required,email"`
	Type  string `json:"type" validate:"required,oneof=signin email-verification password-reset"`
	Code  string `json:"code" validate:"required"`
}

// RefreshRequest represents the request body for token refresh. The token may
// also arrive via cookie, so the body is optional.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ForgotPasswordRequest represents the request body for initiating a password reset
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest represents the request body for completing a password reset
type ResetPasswordRequest struct {
	ResetToken  string `json:"reset_token"`
	NewPassword string `json:"new_password" validate:"required"`
}

// ReactivateRequest represents the request body for reactivating a soft-deleted account
type ReactivateRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// OAuthLoginRequest represents the provider-asserted profile for federated login
type OAuthLoginRequest struct {
	Provider   string  `json:"provider" validate:"required,oneof=google github"`
	ProviderID string  `json:"provider_id" validate:"required"`
	Email      string  `json:"email" validate:"required,email"`
	Name       string  `json:"name" validate:"required,min=1"`
	AvatarURL  *string `json:"avatar_url" validate:"omitempty,url"`
}

// TokenPairResponse represents issued tokens in the HTTP response
type TokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	Role         string `json:"role"`
}

func tokenPairToResponse(pair *models.TokenPair) *TokenPairResponse {
	return &TokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		UserID:       pair.UserID,
		Role:         pair.Role,
	}
}

const registrationAcceptedMessage = "Registration received. If the email is not already registered, a verification code has been sent."

// Register handles account registration
// @Summary Register a new account
// @Accept json
// @Param request body RegisterRequest true "Register request"
// @Produce json
// @Success 202 {object} pkghttp.Envelope
// @Failure 400 {object} pkghttp.Envelope
// @Failure 500 {object} pkghttp.Envelope
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)

	_, err := h.service.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		var pwErr *pkgauth.PasswordValidationError
		if errors.As(err, &pwErr) {
			pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "Password does not meet requirements", pwErr.Errors)
			return
		}
		// A duplicate email gets the same accepted response as a new one to
		// prevent account enumeration.
		if errors.Is(err, models.ErrConflict) {
			pkghttp.WriteSuccess(w, http.StatusAccepted, registrationAcceptedMessage, nil)
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteSuccess(w, http.StatusAccepted, registrationAcceptedMessage, nil)
}

// Signin handles the first login step: credential verification. A correct
// password never returns tokens directly; it triggers a signin passcode email.
// @Summary Verify credentials and send a sign-in passcode
// @Accept json
// @Param request body SigninRequest true "Signin request"
// @Produce json
// @Success 200 {object} pkghttp.Envelope
// @Failure 400 {object} pkghttp.Envelope
// @Failure 401 {object} pkghttp.Envelope
// @Failure 403 {object} pkghttp.Envelope
// @Failure 500 {object} pkghttp.Envelope
// @Router /auth/signin [post]
func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		var lockErr *models.AccountLockedError
		var throttleErr *models.ResendThrottledError
		switch {
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteUnauthorized(w, "Invalid email or password")
		case errors.As(err, &lockErr):
			pkghttp.WriteForbidden(w, lockErr.Error())
		case errors.Is(err, models.ErrAccountDeactivated):
			pkghttp.WriteForbidden(w, "Account is deactivated. Use the reactivate endpoint to restore it.")
		case errors.Is(err, models.ErrEmailNotVerified):
			pkghttp.WriteForbidden(w, "Email address not verified. A new verification code has been sent.")
		case errors.As(err, &throttleErr):
			pkghttp.WriteBadRequest(w, throttleErr.Error())
		case errors.Is(err, models.ErrEmailDispatch):
			pkghttp.WriteInternalError(w, "Failed to send passcode email")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteOK(w, "A sign-in code has been sent to your email", nil)
}

// SendOtp handles passcode (re)issue requests
// @Summary Send a one-time passcode
// @Accept json
// @Param request body SendOtpRequest true "Send OTP request"
// @Produce json
// @Success 202 {object} pkghttp.Envelope
// @Failure 400 {object} pkghttp.Envelope
// @Failure 403 {object} pkghttp.Envelope
// @Failure 500 {object} pkghttp.Envelope
// @Router /auth/otp/send [post]
func (h *AuthHandler) SendOtp(w http.ResponseWriter, r *http.Request) {
	var req SendOtpRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	const acceptedMessage = "If an account exists for this email, a passcode has been sent"

	err := h.otps.SendOtp(r.Context(), req.Email, req.Type)
	if err != nil {
		var lockErr *models.AccountLockedError
		var throttleErr *models.ResendThrottledError
		switch {
		case errors.Is(err, models.ErrNotFound):
			// Unknown addresses get the same accepted response.
			pkghttp.WriteSuccess(w, http.StatusAccepted, acceptedMessage, nil)
		case errors.As(err, &throttleErr):
			pkghttp.WriteBadRequest(w, throttleErr.Error())
		case errors.As(err, &lockErr):
			pkghttp.WriteForbidden(w, lockErr.Error())
		case errors.Is(err, models.ErrAccountDeactivated):
			pkghttp.WriteForbidden(w, "Account is deactivated")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid passcode type")
		case errors.Is(err, models.ErrEmailDispatch):
			pkghttp.WriteInternalError(w, "Failed to send passcode email")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteSuccess(w, http.StatusAccepted, acceptedMessage, nil)
}

// VerifyOtp handles passcode verification. The side effect depends on the
// passcode type: signin completes login and sets session cookies,
// email-verification marks the address verified, password-reset issues a
// short-lived reset capability cookie.
// @Summary Verify a one-time passcode
// @Accept json
// @Param request body VerifyOtpRequest true "Verify OTP request"
// @Produce json
// @Success 200 {object} pkghttp.Envelope
// @Failure 400 {object} pkghttp.Envelope
// @Failure 401 {object} pkghttp.Envelope
// @Failure 403 {object} pkghttp.Envelope
// @Failure 429 {object} pkghttp.Envelope
// @Router /auth/otp/verify [post]
func (h *AuthHandler) VerifyOtp(w http.ResponseWriter, r *http.Request) {
	var req VerifyOtpRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	result, err := h.otps.VerifyOtp(r.Context(), req.Email, req.Type, req.Code)
	if err != nil {
		var lockErr *models.AccountLockedError
		switch {
		case errors.Is(err, models.ErrOtpExhausted):
			pkghttp.WriteTooManyRequests(w, "Maximum passcode attempts reached. Request a new code.")
		case errors.As(err, &lockErr):
			pkghttp.WriteForbidden(w, lockErr.Error())
		case errors.Is(err, models.ErrAccountDeactivated):
			pkghttp.WriteForbidden(w, "Account is deactivated")
		case errors.Is(err, models.ErrOtpInvalid), errors.Is(err, models.ErrNotFound):
			// Unknown emails and wrong codes are indistinguishable.
			pkghttp.WriteUnauthorized(w, "Invalid or expired passcode")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	switch {
	case result.Tokens != nil:
		h.cookies.SetAuthCookies(w, result.Tokens.AccessToken, result.Tokens.RefreshToken, h.cfg.AccessTokenExpiry, h.cfg.RefreshTokenExpiry)
		pkghttp.WriteOK(w, "Signed in successfully", tokenPairToResponse(result.Tokens))
	case result.ResetToken != "":
		h.cookies.SetResetCookie(w, result.ResetToken, h.cfg.ResetTokenExpiry)
		pkghttp.WriteOK(w, "Passcode verified. You may now reset your password.", map[string]string{
			"reset_token": result.ResetToken,
		})
	default:
		pkghttp.WriteOK(w, "Email verified successfully", nil)
	}
}

// Refresh handles token rotation. Tokens arrive via cookies or the request
// body; any failure clears session cookies so clients drop to a signed-out state.
// @Summary Rotate the refresh token and issue a new pair
// @Accept json
// @Produce json
// @Success 200 {object} pkghttp.Envelope
// @Failure 401 {object} pkghttp.Envelope
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := auth.ReadCookie(r, auth.RefreshTokenCookie)
	if refreshToken == "" {
		var req RefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			refreshToken = req.RefreshToken
		}
	}
	if refreshToken == "" {
		pkghttp.WriteUnauthorized(w, "No refresh token provided")
		return
	}

	pair, err := h.sessions.Refresh(r.Context(), bearerToken(r), refreshToken)
	if err != nil {
		h.cookies.ClearAuthCookies(w)
		pkghttp.WriteUnauthorized(w, "Session expired. Please sign in again.")
		return
	}

	h.cookies.SetAuthCookies(w, pair.AccessToken, pair.RefreshToken, h.cfg.AccessTokenExpiry, h.cfg.RefreshTokenExpiry)
	pkghttp.WriteOK(w, "Token refreshed", tokenPairToResponse(pair))
}

// Logout revokes the presented refresh token and clears session cookies.
// Always succeeds so repeated calls are harmless.
// @Summary Sign out of the current session
// @Produce json
// @Success 204
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	refreshToken := auth.ReadCookie(r, auth.RefreshTokenCookie)
	if refreshToken == "" {
		var req RefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			refreshToken = req.RefreshToken
		}
	}

	if refreshToken != "" {
		if err := h.sessions.Logout(r.Context(), refreshToken); err != nil {
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}
	}

	h.cookies.ClearAuthCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll revokes every session for the authenticated account
// @Summary Sign out of all sessions
// @Security BearerAuth
// @Produce json
// @Success 204
// @Failure 401 {object} pkghttp.Envelope
// @Router /auth/logout-all [post]
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.sessions.RevokeAll(r.Context(), claims.UserID); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	h.cookies.ClearAuthCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// ForgotPassword initiates a password reset by sending a reset passcode
// @Summary Request a password reset passcode
// @Accept json
// @Param request body ForgotPasswordRequest true "Forgot password request"
// @Produce json
// @Success 202 {object} pkghttp.Envelope
// @Failure 400 {object} pkghttp.Envelope
// @Router /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	err := h.service.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		var throttleErr *models.ResendThrottledError
		if errors.As(err, &throttleErr) {
			pkghttp.WriteBadRequest(w, throttleErr.Error())
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteSuccess(w, http.StatusAccepted, "If an account exists for this email, a reset code has been sent", nil)
}

// ResetPassword completes a password reset using the capability issued by
// passcode verification. The capability arrives via cookie or body.
// @Summary Reset password with a verified reset capability
// @Accept json
// @Param request body ResetPasswordRequest true "Reset password request"
// @Produce json
// @Success 200 {object} pkghttp.Envelope
// @Failure 400 {object} pkghttp.Envelope
// @Failure 401 {object} pkghttp.Envelope
// @Router /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	resetToken := req.ResetToken
	if resetToken == "" {
		resetToken = auth.ReadCookie(r, auth.ResetTokenCookie)
	}
	if resetToken == "" {
		pkghttp.WriteUnauthorized(w, "No reset token provided")
		return
	}

	err := h.service.ResetPassword(r.Context(), resetToken, req.NewPassword)
	if err != nil {
		var pwErr *pkgauth.PasswordValidationError
		var lockErr *models.AccountLockedError
		switch {
		case errors.As(err, &pwErr):
			pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "Password does not meet requirements", pwErr.Errors)
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "New password must be different from the current password")
		case errors.As(err, &lockErr):
			pkghttp.WriteForbidden(w, lockErr.Error())
		case errors.Is(err, models.ErrAccountDeactivated):
			pkghttp.WriteForbidden(w, "Account is deactivated")
		case errors.Is(err, models.ErrUnauthorized), errors.Is(err, models.ErrNotFound):
			pkghttp.WriteUnauthorized(w, "Invalid or expired reset token")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	h.cookies.ClearResetCookie(w)
	pkghttp.WriteOK(w, "Password reset successfully. Please sign in with your new password.", nil)
}

// Reactivate restores a soft-deleted account after the cooldown has elapsed
// @Summary Reactivate a deactivated account
// @Accept json
// @Param request body ReactivateRequest true "Reactivate request"
// @Produce json
// @Success 200 {object} pkghttp.Envelope
// @Failure 400 {object} pkghttp.Envelope
// @Failure 401 {object} pkghttp.Envelope
// @Failure 403 {object} pkghttp.Envelope
// @Router /auth/reactivate [post]
func (h *AuthHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	var req ReactivateRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	err := h.service.Reactivate(r.Context(), req.Email, req.Password)
	if err != nil {
		var cooldownErr *models.ReactivationCooldownError
		var lockErr *models.AccountLockedError
		switch {
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteUnauthorized(w, "Invalid email or password")
		case errors.As(err, &lockErr):
			pkghttp.WriteForbidden(w, lockErr.Error())
		case errors.As(err, &cooldownErr):
			pkghttp.WriteForbidden(w, cooldownErr.Error())
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Account is not deactivated")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteOK(w, "Account reactivated. Please sign in.", nil)
}

// OAuthLogin handles federated login with a provider-asserted profile. The
// provider has already verified the email, so no passcode step is required.
// @Summary Sign in with an OAuth provider profile
// @Accept json
// @Param request body OAuthLoginRequest true "OAuth login request"
// @Produce json
// @Success 200 {object} pkghttp.Envelope
// @Failure 400 {object} pkghttp.Envelope
// @Failure 403 {object} pkghttp.Envelope
// @Failure 500 {object} pkghttp.Envelope
// @Router /auth/oauth [post]
func (h *AuthHandler) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req OAuthLoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	pair, err := h.service.OAuthLogin(r.Context(), services.OAuthProfile{
		Provider:   req.Provider,
		ProviderID: req.ProviderID,
		Email:      strings.ToLower(strings.TrimSpace(req.Email)),
		Name:       strings.TrimSpace(req.Name),
		AvatarURL:  req.AvatarURL,
	})
	if err != nil {
		var lockErr *models.AccountLockedError
		switch {
		case errors.Is(err, models.ErrAccountDeactivated):
			pkghttp.WriteForbidden(w, "Account is deactivated. Use the reactivate endpoint to restore it.")
		case errors.As(err, &lockErr):
			pkghttp.WriteForbidden(w, lockErr.Error())
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	h.cookies.SetAuthCookies(w, pair.AccessToken, pair.RefreshToken, h.cfg.AccessTokenExpiry, h.cfg.RefreshTokenExpiry)
	pkghttp.WriteOK(w, "Signed in successfully", tokenPairToResponse(pair))
}

// bearerToken extracts the raw access token from the Authorization header or
// the access cookie. Used to bind refresh requests to the session's access token.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return auth.ReadCookie(r, auth.AccessTokenCookie)
}
