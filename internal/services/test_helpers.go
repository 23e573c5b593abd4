package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/lmorrow/taskvault/internal/models"
	pkglogger "github.com/lmorrow/taskvault/pkg/logger"
)

// testLogger returns a logger that discards everything
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAuditLogger() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(testLogger())
}

// MockAccountStore implements the account persistence interfaces for testing
type MockAccountStore struct {
	GetByIDFunc               func(ctx context.Context, id string) (*models.Account, error)
	GetByEmailFunc            func(ctx context.Context, email string) (*models.Account, error)
	CreateFunc                func(ctx context.Context, account *models.Account) (*models.Account, error)
	UpdateProfileFunc         func(ctx context.Context, id string, name string, avatar *models.Avatar) (*models.Account, error)
	UpdatePasswordFunc        func(ctx context.Context, id, passwordHash string) error
	MarkEmailVerifiedFunc     func(ctx context.Context, id string) error
	RecordLoginFunc           func(ctx context.Context, id string, at time.Time) error
	IncrementFailedLoginsFunc func(ctx context.Context, id string, maxAttempts int, lockUntil time.Time) (int, error)
	SoftDeleteFunc            func(ctx context.Context, id string, deletedAt, reactivateAt time.Time) error
	ReactivateFunc            func(ctx context.Context, id string) error
	AttachProviderFunc        func(ctx context.Context, id, provider, providerID string, avatarURL *string) error
	DeleteFunc                func(ctx context.Context, id string) error
}

func (m *MockAccountStore) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountStore) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountStore) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account)
	}
	created := *account
	created.ID = "acct_test"
	return &created, nil
}

func (m *MockAccountStore) UpdateProfile(ctx context.Context, id string, name string, avatar *models.Avatar) (*models.Account, error) {
	if m.UpdateProfileFunc != nil {
		return m.UpdateProfileFunc(ctx, id, name, avatar)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash)
	}
	return nil
}

func (m *MockAccountStore) MarkEmailVerified(ctx context.Context, id string) error {
	if m.MarkEmailVerifiedFunc != nil {
		return m.MarkEmailVerifiedFunc(ctx, id)
	}
	return nil
}

func (m *MockAccountStore) RecordLogin(ctx context.Context, id string, at time.Time) error {
	if m.RecordLoginFunc != nil {
		return m.RecordLoginFunc(ctx, id, at)
	}
	return nil
}

func (m *MockAccountStore) IncrementFailedLogins(ctx context.Context, id string, maxAttempts int, lockUntil time.Time) (int, error) {
	if m.IncrementFailedLoginsFunc != nil {
		return m.IncrementFailedLoginsFunc(ctx, id, maxAttempts, lockUntil)
	}
	return 1, nil
}

func (m *MockAccountStore) SoftDelete(ctx context.Context, id string, deletedAt, reactivateAt time.Time) error {
	if m.SoftDeleteFunc != nil {
		return m.SoftDeleteFunc(ctx, id, deletedAt, reactivateAt)
	}
	return nil
}

func (m *MockAccountStore) Reactivate(ctx context.Context, id string) error {
	if m.ReactivateFunc != nil {
		return m.ReactivateFunc(ctx, id)
	}
	return nil
}

func (m *MockAccountStore) AttachProvider(ctx context.Context, id, provider, providerID string, avatarURL *string) error {
	if m.AttachProviderFunc != nil {
		return m.AttachProviderFunc(ctx, id, provider, providerID, avatarURL)
	}
	return nil
}

func (m *MockAccountStore) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

// MockOtpStore implements OtpStore for testing
type MockOtpStore struct {
	CreateFunc            func(ctx context.Context, otp *models.OneTimePasscode) (*models.OneTimePasscode, error)
	FindLatestFunc        func(ctx context.Context, email, otpType string) (*models.OneTimePasscode, error)
	FindLatestPendingFunc func(ctx context.Context, email, otpType string) (*models.OneTimePasscode, error)
	IncrementAttemptsFunc func(ctx context.Context, id string) error
	MarkUsedFunc          func(ctx context.Context, id string) error
	DeleteByEmailFunc     func(ctx context.Context, email string) error
}

func (m *MockOtpStore) Create(ctx context.Context, otp *models.OneTimePasscode) (*models.OneTimePasscode, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, otp)
	}
	created := *otp
	created.ID = "otp_test"
	return &created, nil
}

func (m *MockOtpStore) FindLatest(ctx context.Context, email, otpType string) (*models.OneTimePasscode, error) {
	if m.FindLatestFunc != nil {
		return m.FindLatestFunc(ctx, email, otpType)
	}
	return nil, models.ErrNotFound
}

func (m *MockOtpStore) FindLatestPending(ctx context.Context, email, otpType string) (*models.OneTimePasscode, error) {
	if m.FindLatestPendingFunc != nil {
		return m.FindLatestPendingFunc(ctx, email, otpType)
	}
	return nil, models.ErrNotFound
}

func (m *MockOtpStore) IncrementAttempts(ctx context.Context, id string) error {
	if m.IncrementAttemptsFunc != nil {
		return m.IncrementAttemptsFunc(ctx, id)
	}
	return nil
}

func (m *MockOtpStore) MarkUsed(ctx context.Context, id string) error {
	if m.MarkUsedFunc != nil {
		return m.MarkUsedFunc(ctx, id)
	}
	return nil
}

func (m *MockOtpStore) DeleteByEmail(ctx context.Context, email string) error {
	if m.DeleteByEmailFunc != nil {
		return m.DeleteByEmailFunc(ctx, email)
	}
	return nil
}

// MockRefreshTokenStore implements RefreshTokenStore for testing
type MockRefreshTokenStore struct {
	CreateFunc            func(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.RefreshToken, error)
	FindByUserAndHashFunc func(ctx context.Context, userID, tokenHash string) (*models.RefreshToken, error)
	ConditionalRevokeFunc func(ctx context.Context, tokenHash, replacedByHash string) (bool, error)
	RevokeFunc            func(ctx context.Context, tokenHash string) error
	RevokeAllForUserFunc  func(ctx context.Context, userID string) error
}

func (m *MockRefreshTokenStore) Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.RefreshToken, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, userID, tokenHash, expiresAt)
	}
	return &models.RefreshToken{ID: "rt_test", UserID: userID, TokenHash: tokenHash, ExpiresAt: expiresAt}, nil
}

func (m *MockRefreshTokenStore) FindByUserAndHash(ctx context.Context, userID, tokenHash string) (*models.RefreshToken, error) {
	if m.FindByUserAndHashFunc != nil {
		return m.FindByUserAndHashFunc(ctx, userID, tokenHash)
	}
	return nil, models.ErrNotFound
}

func (m *MockRefreshTokenStore) ConditionalRevoke(ctx context.Context, tokenHash, replacedByHash string) (bool, error) {
	if m.ConditionalRevokeFunc != nil {
		return m.ConditionalRevokeFunc(ctx, tokenHash, replacedByHash)
	}
	return true, nil
}

func (m *MockRefreshTokenStore) Revoke(ctx context.Context, tokenHash string) error {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, tokenHash)
	}
	return nil
}

func (m *MockRefreshTokenStore) RevokeAllForUser(ctx context.Context, userID string) error {
	if m.RevokeAllForUserFunc != nil {
		return m.RevokeAllForUserFunc(ctx, userID)
	}
	return nil
}

// MockEmailService implements EmailService for testing
type MockEmailService struct {
	SendOtpEmailFunc func(ctx context.Context, email, otpType, code string, ttl time.Duration) error
}

func (m *MockEmailService) SendOtpEmail(ctx context.Context, email, otpType, code string, ttl time.Duration) error {
	if m.SendOtpEmailFunc != nil {
		return m.SendOtpEmailFunc(ctx, email, otpType, code, ttl)
	}
	return nil
}

// MockAvatarStorage implements AvatarStorage for testing
type MockAvatarStorage struct {
	UploadFunc func(ctx context.Context, userID, filename, contentType string, body io.Reader, size int64) (*models.Avatar, error)
	DeleteFunc func(ctx context.Context, key string) error
}

func (m *MockAvatarStorage) Upload(ctx context.Context, userID, filename, contentType string, body io.Reader, size int64) (*models.Avatar, error) {
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, userID, filename, contentType, body, size)
	}
	return &models.Avatar{Key: "uploads/avatars/" + userID + "/test.png", URL: "https://example.com/test.png", Size: size}, nil
}

func (m *MockAvatarStorage) Delete(ctx context.Context, key string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	return nil
}

// MockPasscodeFlow implements PasscodeFlow for testing
type MockPasscodeFlow struct {
	SendOtpFunc   func(ctx context.Context, email, otpType string) error
	VerifyOtpFunc func(ctx context.Context, email, otpType, code string) (*VerifyOtpResult, error)
}

func (m *MockPasscodeFlow) SendOtp(ctx context.Context, email, otpType string) error {
	if m.SendOtpFunc != nil {
		return m.SendOtpFunc(ctx, email, otpType)
	}
	return nil
}

func (m *MockPasscodeFlow) VerifyOtp(ctx context.Context, email, otpType, code string) (*VerifyOtpResult, error) {
	if m.VerifyOtpFunc != nil {
		return m.VerifyOtpFunc(ctx, email, otpType, code)
	}
	return &VerifyOtpResult{}, nil
}

// MockSessionIssuer implements SessionIssuer and SessionCompleter for testing
type MockSessionIssuer struct {
	CompleteLoginFunc func(ctx context.Context, account *models.Account) (*models.TokenPair, error)
	RevokeAllFunc     func(ctx context.Context, userID string) error
}

func (m *MockSessionIssuer) CompleteLogin(ctx context.Context, account *models.Account) (*models.TokenPair, error) {
	if m.CompleteLoginFunc != nil {
		return m.CompleteLoginFunc(ctx, account)
	}
	return &models.TokenPair{
		AccessToken:  "access_" + account.ID,
		RefreshToken: "refresh_" + account.ID,
		UserID:       account.ID,
		Role:         account.Role,
	}, nil
}

func (m *MockSessionIssuer) RevokeAll(ctx context.Context, userID string) error {
	if m.RevokeAllFunc != nil {
		return m.RevokeAllFunc(ctx, userID)
	}
	return nil
}

// MockTodoStore implements TodoStore for testing
type MockTodoStore struct {
	CreateFunc  func(ctx context.Context, userID, title, description string) (*models.Todo, error)
	GetByIDFunc func(ctx context.Context, userID, todoID string) (*models.Todo, error)
	ListFunc    func(ctx context.Context, userID string, filter models.TodoFilter) ([]*models.Todo, int, error)
	UpdateFunc  func(ctx context.Context, userID, todoID string, title, description *string, completed *bool) (*models.Todo, error)
	DeleteFunc  func(ctx context.Context, userID, todoID string) error
}

func (m *MockTodoStore) Create(ctx context.Context, userID, title, description string) (*models.Todo, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, userID, title, description)
	}
	return &models.Todo{ID: "todo_test", UserID: userID, Title: title, Description: description}, nil
}

func (m *MockTodoStore) GetByID(ctx context.Context, userID, todoID string) (*models.Todo, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, userID, todoID)
	}
	return nil, models.ErrNotFound
}

func (m *MockTodoStore) List(ctx context.Context, userID string, filter models.TodoFilter) ([]*models.Todo, int, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, userID, filter)
	}
	return []*models.Todo{}, 0, nil
}

func (m *MockTodoStore) Update(ctx context.Context, userID, todoID string, title, description *string, completed *bool) (*models.Todo, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, userID, todoID, title, description, completed)
	}
	return nil, models.ErrNotFound
}

func (m *MockTodoStore) Delete(ctx context.Context, userID, todoID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, userID, todoID)
	}
	return nil
}

// NewTestAccount builds a verified, active local account
func NewTestAccount(id, email, name string) *models.Account {
	now := time.Now()
	return &models.Account{
		ID:            id,
		Email:         email,
		Name:          name,
		PasswordHash:  "$2a$14$test.hash.placeholder",
		Role:          models.RoleUser,
		Provider:      models.ProviderLocal,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// NewTestAccountLocked builds an account inside an active lock window
func NewTestAccountLocked(id, email, name string) *models.Account {
	account := NewTestAccount(id, email, name)
	lockUntil := time.Now().Add(24 * time.Hour)
	account.LockUntil = &lockUntil
	account.FailedLoginAttempts = 5
	return account
}

// NewTestAccountDeactivated builds a soft-deleted account
func NewTestAccountDeactivated(id, email, name string, reactivateAt time.Time) *models.Account {
	account := NewTestAccount(id, email, name)
	now := time.Now()
	account.IsDeleted = true
	account.DeletedAt = &now
	account.ReactivateAt = &reactivateAt
	return account
}

// NewTestOtp builds a pending passcode with the given stored digest
func NewTestOtp(id, email, otpType, codeHash string) *models.OneTimePasscode {
	now := time.Now()
	return &models.OneTimePasscode{
		ID:           id,
		Email:        email,
		Type:         otpType,
		CodeHash:     codeHash,
		ExpiresAt:    now.Add(5 * time.Minute),
		NextResendAt: now.Add(60 * time.Second),
		MaxAttempts:  5,
		CreatedAt:    now,
	}
}

// NewTestRefreshToken builds an active stored refresh-token record
func NewTestRefreshToken(userID, tokenHash string) *models.RefreshToken {
	now := time.Now()
	return &models.RefreshToken{
		ID:        "rt_" + userID,
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: now.Add(7 * 24 * time.Hour),
		CreatedAt: now,
		UpdatedAt: now,
	}
}
