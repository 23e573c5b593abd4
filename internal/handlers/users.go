package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lmorrow/taskvault/internal/auth"
	"github.com/lmorrow/taskvault/internal/models"
	pkgauth "github.com/lmorrow/taskvault/pkg/auth"
	pkghttp "github.com/lmorrow/taskvault/pkg/http"
)

// maxAvatarBytes caps profile image uploads at 5 MiB.
const maxAvatarBytes = 5 << 20

// ProfileService defines the interface for profile reads and updates
type ProfileService interface {
	GetProfile(ctx context.Context, userID string) (*models.Account, error)
	UpdateName(ctx context.Context, userID, name string) (*models.Account, error)
	UpdateAvatar(ctx context.Context, userID, filename, contentType string, body io.Reader, size int64) (*models.Account, error)
}

// AccountLifecycle defines the interface for password and account lifecycle operations
type AccountLifecycle interface {
	ChangePassword(ctx context.Context, userID, code, currentPassword, newPassword string) error
	Deactivate(ctx context.Context, userID string) error
	DeleteAccount(ctx context.Context, userID string) error
}

// UserHandler handles profile and account lifecycle HTTP requests
type UserHandler struct {
	profiles  ProfileService
	lifecycle AccountLifecycle
	cookies   *auth.CookieSink
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(profiles ProfileService, lifecycle AccountLifecycle, cookies *auth.CookieSink) *UserHandler {
	return &UserHandler{
		profiles:  profiles,
		lifecycle: lifecycle,
		cookies:   cookies,
	}
}

// Request/Response DTOs

// UpdateNameRequest represents the request body for renaming the account
type UpdateNameRequest struct {
	Name string `json:"name" validate:"required,min=1"`
}

// ChangePasswordRequest represents the request body for changing the password.
// Requires both the current password and a password-change passcode.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
	Code            string `json:"code" validate:"required"`
}

// AvatarResponse represents an uploaded profile image in the HTTP response
type AvatarResponse struct {
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// AccountResponse represents an account in the HTTP response
type AccountResponse struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Email         string          `json:"email"`
	Role          string          `json:"role"`
	Provider      string          `json:"provider"`
	Avatar        *AvatarResponse `json:"avatar,omitempty"`
	EmailVerified bool            `json:"email_verified"`
	LastLoginAt   *string         `json:"last_login_at,omitempty"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
}

// accountToResponse converts an account model to a response DTO
func accountToResponse(account *models.Account) *AccountResponse {
	resp := &AccountResponse{
		ID:            account.ID,
		Name:          account.Name,
		Email:         account.Email,
		Role:          account.Role,
		Provider:      account.Provider,
		EmailVerified: account.EmailVerified,
		CreatedAt:     account.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     account.UpdatedAt.Format(time.RFC3339),
	}
	if account.Avatar != nil {
		resp.Avatar = &AvatarResponse{URL: account.Avatar.URL, Size: account.Avatar.Size}
	}
	if account.LastLoginAt != nil {
		formatted := account.LastLoginAt.Format(time.RFC3339)
		resp.LastLoginAt = &formatted
	}
	return resp
}

// GetProfile returns the authenticated account's profile
// @Summary Get current profile
// @Security BearerAuth
// @Produce json
// @Success 200 {object} pkghttp.Envelope
// @Failure 401 {object} pkghttp.Envelope
// @Failure 404 {object} pkghttp.Envelope
// @Router /users/me [get]
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	account, err := h.profiles.GetProfile(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Account not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteOK(w, "Profile retrieved", accountToResponse(account))
}

// UpdateName renames the authenticated account
// @Summary Update display name
// @Security BearerAuth
// @Accept json
// @Param request body UpdateNameRequest true "Update name request"
// @Produce json
// @Success 200 {object} pkghttp.Envelope
// @Failure 400 {object} pkghttp.Envelope
// @Failure 401 {object} pkghttp.Envelope
// @Router /users/me [patch]
func (h *UserHandler) UpdateName(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req UpdateNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	account, err := h.profiles.UpdateName(r.Context(), claims.UserID, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Name cannot be empty")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "Account not found")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteOK(w, "Profile updated", accountToResponse(account))
}

// UpdateAvatar replaces the profile image. Expects multipart form data with
// an "avatar" file field.
// @Summary Upload a profile image
// @Security BearerAuth
// @Accept mpfd
// @Produce json
// @Success 200 {object} pkghttp.Envelope
// @Failure 400 {object} pkghttp.Envelope
// @Failure 401 {object} pkghttp.Envelope
// @Router /users/me/avatar [put]
func (h *UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes)
	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid multipart form or file too large")
		return
	}

	file, header, err := r.FormFile("avatar")
	if err != nil {
		pkghttp.WriteBadRequest(w, "Missing avatar file")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !isSupportedImageType(contentType) {
		pkghttp.WriteBadRequest(w, "Unsupported image type. Use JPEG, PNG, GIF or WebP.")
		return
	}

	account, err := h.profiles.UpdateAvatar(r.Context(), claims.UserID, header.Filename, contentType, file, header.Size)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Account not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to upload avatar")
		return
	}

	pkghttp.WriteOK(w, "Avatar updated", accountToResponse(account))
}

// ChangePassword replaces the authenticated account's password. Requires the
// current password plus a password-change passcode, and signs out every session.
// @Summary Change password
// @Security BearerAuth
// @Accept json
// @Param request body ChangePasswordRequest true "Change password request"
// @Produce json
// @Success 200 {object} pkghttp.Envelope
// @Failure 400 {object} pkghttp.Envelope
// @Failure 401 {object} pkghttp.Envelope
// @Router /users/me/password [post]
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.lifecycle.ChangePassword(r.Context(), claims.UserID, req.Code, req.CurrentPassword, req.NewPassword)
	if err != nil {
		var pwErr *pkgauth.PasswordValidationError
		switch {
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteUnauthorized(w, "Current password is incorrect")
		case errors.As(err, &pwErr):
			pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "Password does not meet requirements", pwErr.Errors)
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "New password must be different from the current password")
		case errors.Is(err, models.ErrOtpExhausted):
			pkghttp.WriteTooManyRequests(w, "Maximum passcode attempts reached. Request a new code.")
		case errors.Is(err, models.ErrOtpInvalid), errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Invalid or expired passcode")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	// All sessions were revoked, including this one.
	h.cookies.ClearAuthCookies(w)
	pkghttp.WriteOK(w, "Password changed. Please sign in again.", nil)
}

// DeleteAccount deactivates the authenticated account, or permanently removes
// it when ?permanent=true.
// @Summary Deactivate or delete the account
// @Security BearerAuth
// @Param permanent query bool false "Permanently delete instead of deactivating"
// @Produce json
// @Success 204
// @Failure 401 {object} pkghttp.Envelope
// @Router /users/me [delete]
func (h *UserHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var err error
	if strings.EqualFold(r.URL.Query().Get("permanent"), "true") {
		err = h.lifecycle.DeleteAccount(r.Context(), claims.UserID)
	} else {
		err = h.lifecycle.Deactivate(r.Context(), claims.UserID)
	}
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Account not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	h.cookies.ClearAuthCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// isSupportedImageType reports whether a content type is an accepted avatar format
func isSupportedImageType(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}
