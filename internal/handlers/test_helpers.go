package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmorrow/taskvault/internal/auth"
	"github.com/lmorrow/taskvault/internal/config"
	"github.com/lmorrow/taskvault/internal/models"
	"github.com/lmorrow/taskvault/internal/services"
	pkghttp "github.com/lmorrow/taskvault/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds access claims to the request context, simulating the
// authentication middleware
func WithAuthContext(req *http.Request, userID string) *http.Request {
	claims := &models.AccessClaims{
		UserID: userID,
		Role:   models.RoleUser,
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// DecodeEnvelope checks the response status and decodes the envelope body
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int) pkghttp.Envelope {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "response status mismatch")
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "application/json"))

	var env pkghttp.Envelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	assert.Equal(t, expectedStatus, env.StatusCode)
	return env
}

// ResponseCookie returns the named cookie set on the recorded response, nil if absent
func ResponseCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func testCookieSink() *auth.CookieSink {
	return auth.NewCookieSink(config.CookieConfig{SameSite: "lax"})
}

func testAuthHandlerConfig() config.AuthConfig {
	return config.AuthConfig{
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
		ResetTokenExpiry:   5 * time.Minute,
	}
}

// Mock service implementations with overridable function fields

type MockAuthFlow struct {
	RegisterFunc       func(ctx context.Context, name, email, password string) (*models.Account, error)
	LoginFunc          func(ctx context.Context, email, password string) error
	ForgotPasswordFunc func(ctx context.Context, email string) error
	ResetPasswordFunc  func(ctx context.Context, resetToken, newPassword string) error
	ReactivateFunc     func(ctx context.Context, email, password string) error
	OAuthLoginFunc     func(ctx context.Context, profile services.OAuthProfile) (*models.TokenPair, error)
}

func (m *MockAuthFlow) Register(ctx context.Context, name, email, password string) (*models.Account, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, name, email, password)
	}
	return &models.Account{ID: "acct_test", Name: name, Email: email}, nil
}

func (m *MockAuthFlow) Login(ctx context.Context, email, password string) error {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password)
	}
	return nil
}

func (m *MockAuthFlow) ForgotPassword(ctx context.Context, email string) error {
	if m.ForgotPasswordFunc != nil {
		return m.ForgotPasswordFunc(ctx, email)
	}
	return nil
}

func (m *MockAuthFlow) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, resetToken, newPassword)
	}
	return nil
}

func (m *MockAuthFlow) Reactivate(ctx context.Context, email, password string) error {
	if m.ReactivateFunc != nil {
		return m.ReactivateFunc(ctx, email, password)
	}
	return nil
}

func (m *MockAuthFlow) OAuthLogin(ctx context.Context, profile services.OAuthProfile) (*models.TokenPair, error) {
	if m.OAuthLoginFunc != nil {
		return m.OAuthLoginFunc(ctx, profile)
	}
	return &models.TokenPair{AccessToken: "access_test", RefreshToken: "refresh_test", UserID: "acct_test", Role: models.RoleUser}, nil
}

type MockPasscodeService struct {
	SendOtpFunc   func(ctx context.Context, email, otpType string) error
	VerifyOtpFunc func(ctx context.Context, email, otpType, code string) (*services.VerifyOtpResult, error)
}

func (m *MockPasscodeService) SendOtp(ctx context.Context, email, otpType string) error {
	if m.SendOtpFunc != nil {
		return m.SendOtpFunc(ctx, email, otpType)
	}
	return nil
}

func (m *MockPasscodeService) VerifyOtp(ctx context.Context, email, otpType, code string) (*services.VerifyOtpResult, error) {
	if m.VerifyOtpFunc != nil {
		return m.VerifyOtpFunc(ctx, email, otpType, code)
	}
	return &services.VerifyOtpResult{}, nil
}

type MockSessionManager struct {
	RefreshFunc   func(ctx context.Context, accessToken, refreshToken string) (*models.TokenPair, error)
	LogoutFunc    func(ctx context.Context, refreshToken string) error
	RevokeAllFunc func(ctx context.Context, userID string) error
}

func (m *MockSessionManager) Refresh(ctx context.Context, accessToken, refreshToken string) (*models.TokenPair, error) {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, accessToken, refreshToken)
	}
	return &models.TokenPair{AccessToken: "access_new", RefreshToken: "refresh_new", UserID: "acct_test", Role: models.RoleUser}, nil
}

func (m *MockSessionManager) Logout(ctx context.Context, refreshToken string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, refreshToken)
	}
	return nil
}

func (m *MockSessionManager) RevokeAll(ctx context.Context, userID string) error {
	if m.RevokeAllFunc != nil {
		return m.RevokeAllFunc(ctx, userID)
	}
	return nil
}

type MockProfileService struct {
	GetProfileFunc   func(ctx context.Context, userID string) (*models.Account, error)
	UpdateNameFunc   func(ctx context.Context, userID, name string) (*models.Account, error)
	UpdateAvatarFunc func(ctx context.Context, userID, filename, contentType string, body io.Reader, size int64) (*models.Account, error)
}

func (m *MockProfileService) GetProfile(ctx context.Context, userID string) (*models.Account, error) {
	if m.GetProfileFunc != nil {
		return m.GetProfileFunc(ctx, userID)
	}
	return &models.Account{ID: userID, Name: "Test User", Email: "test@example.com", Role: models.RoleUser, Provider: models.ProviderLocal}, nil
}

func (m *MockProfileService) UpdateName(ctx context.Context, userID, name string) (*models.Account, error) {
	if m.UpdateNameFunc != nil {
		return m.UpdateNameFunc(ctx, userID, name)
	}
	return &models.Account{ID: userID, Name: name, Email: "test@example.com", Role: models.RoleUser, Provider: models.ProviderLocal}, nil
}

func (m *MockProfileService) UpdateAvatar(ctx context.Context, userID, filename, contentType string, body io.Reader, size int64) (*models.Account, error) {
	if m.UpdateAvatarFunc != nil {
		return m.UpdateAvatarFunc(ctx, userID, filename, contentType, body, size)
	}
	return &models.Account{ID: userID, Name: "Test User", Email: "test@example.com", Role: models.RoleUser, Provider: models.ProviderLocal}, nil
}

type MockAccountLifecycle struct {
	ChangePasswordFunc func(ctx context.Context, userID, code, currentPassword, newPassword string) error
	DeactivateFunc     func(ctx context.Context, userID string) error
	DeleteAccountFunc  func(ctx context.Context, userID string) error
}

func (m *MockAccountLifecycle) ChangePassword(ctx context.Context, userID, code, currentPassword, newPassword string) error {
	if m.ChangePasswordFunc != nil {
		return m.ChangePasswordFunc(ctx, userID, code, currentPassword, newPassword)
	}
	return nil
}

func (m *MockAccountLifecycle) Deactivate(ctx context.Context, userID string) error {
	if m.DeactivateFunc != nil {
		return m.DeactivateFunc(ctx, userID)
	}
	return nil
}

func (m *MockAccountLifecycle) DeleteAccount(ctx context.Context, userID string) error {
	if m.DeleteAccountFunc != nil {
		return m.DeleteAccountFunc(ctx, userID)
	}
	return nil
}

type MockTodoService struct {
	CreateFunc func(ctx context.Context, userID, title, description string) (*models.Todo, error)
	GetFunc    func(ctx context.Context, userID, todoID string) (*models.Todo, error)
	ListFunc   func(ctx context.Context, userID string, filter models.TodoFilter) (*services.TodoPage, error)
	UpdateFunc func(ctx context.Context, userID, todoID string, title, description *string, completed *bool) (*models.Todo, error)
	DeleteFunc func(ctx context.Context, userID, todoID string) error
}

func (m *MockTodoService) Create(ctx context.Context, userID, title, description string) (*models.Todo, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, userID, title, description)
	}
	return &models.Todo{ID: "todo_test", UserID: userID, Title: title, Description: description}, nil
}

func (m *MockTodoService) Get(ctx context.Context, userID, todoID string) (*models.Todo, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, userID, todoID)
	}
	return &models.Todo{ID: todoID, UserID: userID, Title: "Test todo"}, nil
}

func (m *MockTodoService) List(ctx context.Context, userID string, filter models.TodoFilter) (*services.TodoPage, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, userID, filter)
	}
	return &services.TodoPage{Todos: []*models.Todo{}, Limit: 20}, nil
}

func (m *MockTodoService) Update(ctx context.Context, userID, todoID string, title, description *string, completed *bool) (*models.Todo, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, userID, todoID, title, description, completed)
	}
	return &models.Todo{ID: todoID, UserID: userID, Title: "Test todo"}, nil
}

func (m *MockTodoService) Delete(ctx context.Context, userID, todoID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, userID, todoID)
	}
	return nil
}
