package background

import (
	"context"
	"log/slog"
	"time"
)

// tokenRetention keeps revoked refresh tokens around long enough for reuse
// investigation before they are purged.
const tokenRetention = 30 * 24 * time.Hour

// PasscodePurger removes spent and expired one-time passcodes
type PasscodePurger interface {
	PurgeExpiredUsed(ctx context.Context) (int64, error)
}

// TokenPurger removes refresh tokens past their retention window
type TokenPurger interface {
	PurgeExpiredRevoked(ctx context.Context, retention time.Duration) (int64, error)
}

// CleanupManager periodically purges expired passcodes and stale refresh
// tokens so the hot tables stay small.
type CleanupManager struct {
	otps     PasscodePurger
	tokens   TokenPurger
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(otps PasscodePurger, tokens TokenPurger, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		otps:     otps,
		tokens:   tokens,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task. Blocks until Stop is called or the
// context is cancelled.
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	otpRows, err := cm.otps.PurgeExpiredUsed(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to purge passcodes", slog.Any("error", err))
	}

	tokenRows, err := cm.tokens.PurgeExpiredRevoked(cleanupCtx, tokenRetention)
	if err != nil {
		cm.logger.Error("failed to purge refresh tokens", slog.Any("error", err))
	}

	if otpRows > 0 || tokenRows > 0 {
		cm.logger.Info("cleanup completed",
			slog.Int64("passcodes_deleted", otpRows),
			slog.Int64("tokens_deleted", tokenRows))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
