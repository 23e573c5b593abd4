package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lmorrow/taskvault/internal/models"
	pkghttp "github.com/lmorrow/taskvault/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

// UserContextKey is the key for storing the authenticated subject in context
const UserContextKey contextKey = "user"

// SessionRefresher rotates a refresh token into a fresh pair. Implemented by
// the session service; declared here so the middleware stays decoupled from it.
type SessionRefresher interface {
	Refresh(ctx context.Context, accessToken, refreshToken string) (*models.TokenPair, error)
}

// AccountFetcher loads accounts for role and restriction checks
type AccountFetcher interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
}

// Authenticate is the passive re-authentication path run on every protected
// request: try the access token first; if it fails for any reason, fall
// through to refresh-token rotation so an expired access token is invisible
// to the caller as long as the refresh token is still valid.
func Authenticate(tm *TokenManager, refresher SessionRefresher, sink *CookieSink, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accessToken := bearerOrCookie(r)

			if accessToken != "" {
				if claims, err := tm.ParseAccessToken(accessToken); err == nil {
					ctx := context.WithValue(r.Context(), UserContextKey, claims)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				logger.Debug("access token invalid or expired, attempting refresh")
			}

			refreshToken := ReadCookie(r, RefreshTokenCookie)
			if refreshToken == "" {
				pkghttp.WriteUnauthorized(w, "Unauthorized, please login.")
				return
			}

			pair, err := refresher.Refresh(r.Context(), "", refreshToken)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "Unauthorized, please login.")
				return
			}

			sink.SetAuthCookies(w, pair.AccessToken, pair.RefreshToken, tm.AccessExpiry(), tm.RefreshExpiry())

			claims := &models.AccessClaims{UserID: pair.UserID, Role: pair.Role}
			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RestrictAccount blocks deactivated, locked and unverified accounts from
// business routes. Must run after Authenticate.
func RestrictAccount(repo AccountFetcher) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUserFromContext(r)
			if claims == nil {
				pkghttp.WriteUnauthorized(w, "Unauthorized, please login.")
				return
			}

			account, err := repo.GetByID(r.Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					pkghttp.WriteUnauthorized(w, "Unauthorized, please login.")
					return
				}
				pkghttp.WriteInternalError(w, "Something went wrong")
				return
			}

			if account.IsDeleted || account.DeletedAt != nil {
				pkghttp.WriteForbidden(w, "Your account has been deactivated.")
				return
			}

			if account.IsLocked(time.Now()) {
				lockErr := &models.AccountLockedError{Remaining: account.LockRemaining(time.Now())}
				pkghttp.WriteForbidden(w, lockErr.Error())
				return
			}

			if !account.EmailVerified {
				pkghttp.WriteForbidden(w, "Email not verified. Please verify your email.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole enforces role-based access. The role is read from the database,
// not the token, so demotions take effect immediately.
func RequireRole(repo AccountFetcher, role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUserFromContext(r)
			if claims == nil {
				pkghttp.WriteUnauthorized(w, "Unauthorized, please login.")
				return
			}

			account, err := repo.GetByID(r.Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					pkghttp.WriteUnauthorized(w, "Unauthorized, please login.")
					return
				}
				pkghttp.WriteInternalError(w, "Something went wrong")
				return
			}

			if account.Role != role {
				pkghttp.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext extracts the authenticated subject from request context
func GetUserFromContext(r *http.Request) *models.AccessClaims {
	claims, ok := r.Context().Value(UserContextKey).(*models.AccessClaims)
	if !ok {
		return nil
	}
	return claims
}

func bearerOrCookie(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	return ReadCookie(r, AccessTokenCookie)
}
