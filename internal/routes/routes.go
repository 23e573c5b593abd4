package routes

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/lmorrow/taskvault/internal/auth"
	"github.com/lmorrow/taskvault/internal/handlers"
	"github.com/lmorrow/taskvault/internal/middleware"
	"github.com/lmorrow/taskvault/internal/models"
	"github.com/lmorrow/taskvault/internal/repositories"
)

// RegisterRoutes wires every endpoint onto the router. Public auth endpoints
// carry per-IP rate limits; everything under the authenticated group runs the
// passive re-authentication middleware plus an account status check, so locked
// and deactivated accounts lose access mid-session.
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	todoHandler *handlers.TodoHandler,
	adminHandler *handlers.AdminHandler,
	tokenManager *auth.TokenManager,
	refresher auth.SessionRefresher,
	cookieSink *auth.CookieSink,
	accountRepo *repositories.AccountRepository,
	logger *slog.Logger,
) {
	credentialLimit := middleware.RateLimitByIP(middleware.CredentialRateLimit())
	sendLimit := middleware.RateLimitByIP(middleware.PasscodeSendRateLimit())

	// Public routes
	router.Group(func(r chi.Router) {
		r.With(sendLimit).Post("/auth/register", authHandler.Register)
		r.With(credentialLimit).Post("/auth/signin", authHandler.Signin)
		r.With(sendLimit).Post("/auth/otp/send", authHandler.SendOtp)
		r.With(credentialLimit).Post("/auth/otp/verify", authHandler.VerifyOtp)
		r.With(credentialLimit).Post("/auth/refresh", authHandler.Refresh)
		r.Post("/auth/logout", authHandler.Logout)
		r.With(sendLimit).Post("/auth/forgot-password", authHandler.ForgotPassword)
		r.With(credentialLimit).Post("/auth/reset-password", authHandler.ResetPassword)
		r.With(credentialLimit).Post("/auth/reactivate", authHandler.Reactivate)
		r.With(credentialLimit).Post("/auth/oauth", authHandler.OAuthLogin)
	})

	// Authenticated routes
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(middleware.GeneralRateLimit()))
		r.Use(auth.Authenticate(tokenManager, refresher, cookieSink, logger))
		r.Use(auth.RestrictAccount(accountRepo))

		r.Post("/auth/logout-all", authHandler.LogoutAll)

		r.Route("/users/me", func(r chi.Router) {
			r.Get("/", userHandler.GetProfile)
			r.Patch("/", userHandler.UpdateName)
			r.Delete("/", userHandler.DeleteAccount)
			r.Put("/avatar", userHandler.UpdateAvatar)
			r.Post("/password", userHandler.ChangePassword)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireRole(accountRepo, models.RoleAdmin))
			r.Get("/stats", adminHandler.Stats)
			r.Get("/accounts/{id}/sessions", adminHandler.AccountSessions)
		})

		r.Route("/todos", func(r chi.Router) {
			r.Post("/", todoHandler.Create)
			r.Get("/", todoHandler.List)
			r.Get("/{id}", todoHandler.Get)
			r.Patch("/{id}", todoHandler.Update)
			r.Delete("/{id}", todoHandler.Delete)
		})
	})
}
