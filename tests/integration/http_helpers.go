package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/lmorrow/taskvault/internal/auth"
	"github.com/lmorrow/taskvault/internal/config"
	"github.com/lmorrow/taskvault/internal/handlers"
	"github.com/lmorrow/taskvault/internal/middleware"
	"github.com/lmorrow/taskvault/internal/models"
	"github.com/lmorrow/taskvault/internal/repositories"
	"github.com/lmorrow/taskvault/internal/routes"
	"github.com/lmorrow/taskvault/internal/services"
	pkglogger "github.com/lmorrow/taskvault/pkg/logger"
)

// CapturingEmailService records passcodes instead of sending them, so tests
// can complete OTP flows without a mail provider.
type CapturingEmailService struct {
	mu    sync.Mutex
	codes map[string]string // "email|type" -> latest code
}

func NewCapturingEmailService() *CapturingEmailService {
	return &CapturingEmailService{codes: make(map[string]string)}
}

func (s *CapturingEmailService) SendOtpEmail(ctx context.Context, email, otpType, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[email+"|"+otpType] = code
	return nil
}

// LastCode returns the most recent passcode sent to the address for the given type.
func (s *CapturingEmailService) LastCode(email, otpType string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[email+"|"+otpType]
}

// noopAvatarStorage satisfies the avatar storage interface without touching S3.
type noopAvatarStorage struct{}

func (noopAvatarStorage) Upload(ctx context.Context, userID, filename, contentType string, body io.Reader, size int64) (*models.Avatar, error) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return nil, err
	}
	return &models.Avatar{
		Key:  "avatars/" + userID + "/" + filename,
		URL:  "https://avatars.test.invalid/" + userID + "/" + filename,
		Size: size,
	}, nil
}

func (noopAvatarStorage) Delete(ctx context.Context, key string) error { return nil }

// TestServer runs the full application stack against the test database.
type TestServer struct {
	Server *httptest.Server
	Email  *CapturingEmailService
	Config *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Env:      "test",
			LogLevel: "error",
		},
		Auth: config.AuthConfig{
			AccessTokenSecret:    "integration-access-secret",
			RefreshTokenSecret:   "integration-refresh-secret",
			CryptoSecret:         "integration-crypto-secret",
			AccessTokenExpiry:    15 * time.Minute,
			RefreshTokenExpiry:   7 * 24 * time.Hour,
			ResetTokenExpiry:     5 * time.Minute,
			OtpLength:            6,
			OtpExpiry:            5 * time.Minute,
			OtpResendCooldown:    0, // no throttling between test steps
			OtpMaxAttempts:       5,
			LoginMaxAttempts:     5,
			LockDuration:         24 * time.Hour,
			ReactivationCooldown: 0,
			CleanupInterval:      time.Hour,
		},
		Cookie: config.CookieConfig{SameSite: "lax"},
	}
}

// SetupTestServer wires repositories, services, handlers and routes exactly
// like cmd/api, with email and avatar storage replaced by test doubles.
func SetupTestServer(db *TestDB) *TestServer {
	cfg := testConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditLogger := pkglogger.NewAuditLogger(logger)

	accountRepo := repositories.NewAccountRepository(db.DB)
	otpRepo := repositories.NewOtpRepository(db.DB)
	refreshRepo := repositories.NewRefreshTokenRepository(db.DB)
	todoRepo := repositories.NewTodoRepository(db.DB)

	tokenManager := auth.NewTokenManager(
		cfg.Auth.AccessTokenSecret,
		cfg.Auth.RefreshTokenSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)
	cookieSink := auth.NewCookieSink(cfg.Cookie)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{})

	emailService := NewCapturingEmailService()
	avatarStorage := noopAvatarStorage{}

	sessionService := services.NewSessionService(accountRepo, refreshRepo, tokenManager, logger, auditLogger)
	otpService := services.NewOtpService(accountRepo, otpRepo, emailService, sessionService, cfg.Auth, logger, auditLogger)
	authService := services.NewAuthService(accountRepo, otpService, sessionService, avatarStorage, timingDelay, cfg.Auth, logger, auditLogger)
	userService := services.NewUserService(accountRepo, avatarStorage, logger)
	todoService := services.NewTodoService(todoRepo, logger)

	authHandler := handlers.NewAuthHandler(authService, otpService, sessionService, cookieSink, cfg.Auth)
	userHandler := handlers.NewUserHandler(userService, authService, cookieSink)
	todoHandler := handlers.NewTodoHandler(todoService)
	adminHandler := handlers.NewAdminHandler(refreshRepo, db.DB)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(middleware.ResolveClientIP([]string{"127.0.0.1/32", "::1/128"}))
	router.Use(chimiddleware.Recoverer)

	routes.RegisterRoutes(router, authHandler, userHandler, todoHandler, adminHandler, tokenManager, sessionService, cookieSink, accountRepo, logger)

	return &TestServer{
		Server: httptest.NewServer(router),
		Email:  emailService,
		Config: cfg,
	}
}

func (ts *TestServer) Close() {
	ts.Server.Close()
}

// TestClient is an HTTP client with a cookie jar and a stable synthetic
// client IP, so per-IP rate limits apply per test client rather than to
// the shared loopback address.
type TestClient struct {
	server  *TestServer
	client  *http.Client
	fakeIP  string
	headers map[string]string
}

var clientCounter atomic.Int64

func (ts *TestServer) NewClient() *TestClient {
	jar, _ := cookiejar.New(nil)
	n := clientCounter.Add(1)
	return &TestClient{
		server: ts,
		client: &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
		},
		fakeIP:  fmt.Sprintf("10.42.%d.%d", n/250, n%250+1),
		headers: make(map[string]string),
	}
}

// Cookie returns the current value of a named cookie in the client's jar,
// or an empty string if it is not set.
func (c *TestClient) Cookie(name string) string {
	u, err := url.Parse(c.server.Server.URL)
	if err != nil {
		return ""
	}
	for _, ck := range c.client.Jar.Cookies(u) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

// SetHeader adds a header to every subsequent request from this client.
func (c *TestClient) SetHeader(key, value string) {
	c.headers[key] = value
}

func (c *TestClient) do(method, path string, body any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.server.Server.URL+path, reqBody)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Forwarded-For", c.fakeIP)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	return c.client.Do(req)
}

func (c *TestClient) Post(path string, body any) (*http.Response, error) {
	return c.do(http.MethodPost, path, body)
}

func (c *TestClient) Get(path string) (*http.Response, error) {
	return c.do(http.MethodGet, path, nil)
}

func (c *TestClient) Patch(path string, body any) (*http.Response, error) {
	return c.do(http.MethodPatch, path, body)
}

func (c *TestClient) Delete(path string) (*http.Response, error) {
	return c.do(http.MethodDelete, path, nil)
}

// APIResponse mirrors the envelope every endpoint writes.
type APIResponse struct {
	Success    bool           `json:"success"`
	Message    string         `json:"message"`
	StatusCode int            `json:"status_code"`
	Data       map[string]any `json:"data"`
	Errors     []string       `json:"errors"`
}

// DecodeResponse reads and closes the body, decoding the standard envelope.
func DecodeResponse(resp *http.Response) (*APIResponse, error) {
	defer resp.Body.Close()
	var envelope APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		if err == io.EOF {
			return &envelope, nil
		}
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return &envelope, nil
}
