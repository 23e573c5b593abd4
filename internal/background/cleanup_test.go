package background

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockPasscodePurger struct {
	calls atomic.Int64
}

func (m *mockPasscodePurger) PurgeExpiredUsed(ctx context.Context) (int64, error) {
	m.calls.Add(1)
	return 2, nil
}

type mockTokenPurger struct {
	calls     atomic.Int64
	retention time.Duration
}

func (m *mockTokenPurger) PurgeExpiredRevoked(ctx context.Context, retention time.Duration) (int64, error) {
	m.retention = retention
	m.calls.Add(1)
	return 1, nil
}

func TestCleanupManager_RunsImmediatelyAndStops(t *testing.T) {
	otps := &mockPasscodePurger{}
	tokens := &mockTokenPurger{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cm := NewCleanupManager(otps, tokens, logger, time.Hour)

	done := make(chan struct{})
	go func() {
		cm.Start(context.Background())
		close(done)
	}()

	// The first pass runs before the first tick.
	assert.Eventually(t, func() bool {
		return otps.calls.Load() == 1 && tokens.calls.Load() == 1
	}, time.Second, 10*time.Millisecond)

	cm.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup manager did not stop")
	}

	assert.Equal(t, tokenRetention, tokens.retention)
}

func TestCleanupManager_StopsOnContextCancel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cm := NewCleanupManager(&mockPasscodePurger{}, &mockTokenPurger{}, logger, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cm.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup manager did not honor context cancellation")
	}
}
