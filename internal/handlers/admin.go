package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lmorrow/taskvault/internal/models"
	pkghttp "github.com/lmorrow/taskvault/pkg/http"
)

// SessionCounter reports active session counts per account
type SessionCounter interface {
	CountActiveForUser(ctx context.Context, userID string) (int, error)
}

// PoolStats exposes connection pool statistics
type PoolStats interface {
	Stats() *pgxpool.Stat
}

// AdminHandler handles operator-only endpoints
type AdminHandler struct {
	sessions SessionCounter
	pool     PoolStats
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(sessions SessionCounter, pool PoolStats) *AdminHandler {
	return &AdminHandler{sessions: sessions, pool: pool}
}

// PoolStatsResponse represents database pool statistics
type PoolStatsResponse struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
}

// AccountSessionsResponse represents an account's active session count
type AccountSessionsResponse struct {
	AccountID      string `json:"account_id"`
	ActiveSessions int    `json:"active_sessions"`
}

// Stats returns database pool statistics
// @Summary Database pool statistics
// @Security BearerAuth
// @Produce json
// @Success 200 {object} pkghttp.Envelope
// @Router /admin/stats [get]
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.pool.Stats()
	pkghttp.WriteOK(w, "Pool statistics", PoolStatsResponse{
		TotalConns:    stats.TotalConns(),
		IdleConns:     stats.IdleConns(),
		AcquiredConns: stats.AcquiredConns(),
		MaxConns:      stats.MaxConns(),
	})
}

// AccountSessions returns the number of active sessions for an account
// @Summary Active sessions for an account
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Produce json
// @Success 200 {object} pkghttp.Envelope
// @Failure 404 {object} pkghttp.Envelope
// @Router /admin/accounts/{id}/sessions [get]
func (h *AdminHandler) AccountSessions(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	count, err := h.sessions.CountActiveForUser(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Account not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteOK(w, "Active sessions", AccountSessionsResponse{
		AccountID:      accountID,
		ActiveSessions: count,
	})
}
