package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmorrow/taskvault/internal/auth"
	"github.com/lmorrow/taskvault/internal/models"
	"github.com/lmorrow/taskvault/internal/services"
)

func newAuthHandler(flow *MockAuthFlow, otps *MockPasscodeService, sessions *MockSessionManager) *AuthHandler {
	if flow == nil {
		flow = &MockAuthFlow{}
	}
	if otps == nil {
		otps = &MockPasscodeService{}
	}
	if sessions == nil {
		sessions = &MockSessionManager{}
	}
	return NewAuthHandler(flow, otps, sessions, testCookieSink(), testAuthHandlerConfig())
}

func TestAuthHandler_Register_Accepted(t *testing.T) {
	var gotEmail string
	flow := &MockAuthFlow{
		RegisterFunc: func(ctx context.Context, name, email, password string) (*models.Account, error) {
			gotEmail = email
			return &models.Account{ID: "acct_1", Name: name, Email: email}, nil
		},
	}
	h := newAuthHandler(flow, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/auth/register", RegisterRequest{
		Name:     "Jordan",
		Email:    "Jordan@Example.com",
		Password: "Str0ng!Passw0rd",
	})
	w := httptest.NewRecorder()
	h.Register(w, req)

	env := DecodeEnvelope(t, w, http.StatusAccepted)
	assert.True(t, env.Success)
	assert.Equal(t, "jordan@example.com", gotEmail)
}

func TestAuthHandler_Register_DuplicateEmailIndistinguishable(t *testing.T) {
	h := newAuthHandler(&MockAuthFlow{
		RegisterFunc: func(ctx context.Context, name, email, password string) (*models.Account, error) {
			return nil, models.ErrConflict
		},
	}, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/auth/register", RegisterRequest{
		Name:     "Jordan",
		Email:    "taken@example.com",
		Password: "Str0ng!Passw0rd",
	})
	w := httptest.NewRecorder()
	h.Register(w, req)

	env := DecodeEnvelope(t, w, http.StatusAccepted)
	assert.Equal(t, registrationAcceptedMessage, env.Message)
}

func TestAuthHandler_Register_MissingFields(t *testing.T) {
	h := newAuthHandler(nil, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/auth/register", map[string]string{"email": "jordan@example.com"})
	w := httptest.NewRecorder()
	h.Register(w, req)

	DecodeEnvelope(t, w, http.StatusBadRequest)
}

func TestAuthHandler_Signin_SendsPasscode(t *testing.T) {
	h := newAuthHandler(&MockAuthFlow{
		LoginFunc: func(ctx context.Context, email, password string) error {
			return nil
		},
	}, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/auth/signin", SigninRequest{
		Email:    "jordan@example.com",
		Password: "Str0ng!Passw0rd",
	})
	w := httptest.NewRecorder()
	h.Signin(w, req)

	env := DecodeEnvelope(t, w, http.StatusOK)
	assert.Contains(t, env.Message, "sign-in code")
	// No tokens until the passcode is verified.
	assert.Nil(t, env.Data)
	assert.Nil(t, ResponseCookie(w, auth.AccessTokenCookie))
}

func TestAuthHandler_Signin_InvalidCredentials(t *testing.T) {
	h := newAuthHandler(&MockAuthFlow{
		LoginFunc: func(ctx context.Context, email, password string) error {
			return models.ErrInvalidCredentials
		},
	}, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/auth/signin", SigninRequest{
		Email:    "jordan@example.com",
		Password: "wrong",
	})
	w := httptest.NewRecorder()
	h.Signin(w, req)

	env := DecodeEnvelope(t, w, http.StatusUnauthorized)
	assert.Equal(t, "Invalid email or password", env.Message)
}

func TestAuthHandler_Signin_LockedAccount(t *testing.T) {
	h := newAuthHandler(&MockAuthFlow{
		LoginFunc: func(ctx context.Context, email, password string) error {
			return &models.AccountLockedError{Remaining: 30 * time.Minute}
		},
	}, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/auth/signin", SigninRequest{
		Email:    "jordan@example.com",
		Password: "Str0ng!Passw0rd",
	})
	w := httptest.NewRecorder()
	h.Signin(w, req)

	env := DecodeEnvelope(t, w, http.StatusForbidden)
	assert.Contains(t, env.Message, "locked")
}

func TestAuthHandler_Signin_UnverifiedEmail(t *testing.T) {
	h := newAuthHandler(&MockAuthFlow{
		LoginFunc: func(ctx context.Context, email, password string) error {
			return models.ErrEmailNotVerified
		},
	}, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/auth/signin", SigninRequest{
		Email:    "jordan@example.com",
		Password: "Str0ng!Passw0rd",
	})
	w := httptest.NewRecorder()
	h.Signin(w, req)

	env := DecodeEnvelope(t, w, http.StatusForbidden)
	assert.Contains(t, env.Message, "not verified")
}

func TestAuthHandler_SendOtp_UnknownEmailIndistinguishable(t *testing.T) {
	h := newAuthHandler(nil, &MockPasscodeService{
		SendOtpFunc: func(ctx context.Context, email, otpType string) error {
			return models.ErrNotFound
		},
	}, nil)

	req := NewTestRequest(t, http.MethodPost, "/auth/otp/send", SendOtpRequest{
		Email: "ghost@example.com",
		Type:  models.OtpTypeSignin,
	})
	w := httptest.NewRecorder()
	h.SendOtp(w, req)

	env := DecodeEnvelope(t, w, http.StatusAccepted)
	assert.True(t, env.Success)
}

func TestAuthHandler_SendOtp_Throttled(t *testing.T) {
	h := newAuthHandler(nil, &MockPasscodeService{
		SendOtpFunc: func(ctx context.Context, email, otpType string) error {
			return &models.ResendThrottledError{Wait: 42 * time.Second}
		},
	}, nil)

	req := NewTestRequest(t, http.MethodPost, "/auth/otp/send", SendOtpRequest{
		Email: "jordan@example.com",
		Type:  models.OtpTypeSignin,
	})
	w := httptest.NewRecorder()
	h.SendOtp(w, req)

	env := DecodeEnvelope(t, w, http.StatusBadRequest)
	assert.Contains(t, env.Message, "42 seconds")
}

func TestAuthHandler_SendOtp_RejectsUnknownType(t *testing.T) {
	h := newAuthHandler(nil, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/auth/otp/send", SendOtpRequest{
		Email: "jordan@example.com",
		Type:  "totp",
	})
	w := httptest.NewRecorder()
	h.SendOtp(w, req)

	DecodeEnvelope(t, w, http.StatusBadRequest)
}

func TestAuthHandler_VerifyOtp_SigninSetsSessionCookies(t *testing.T) {
	h := newAuthHandler(nil, &MockPasscodeService{
		VerifyOtpFunc: func(ctx context.Context, email, otpType, code string) (*services.VerifyOtpResult, error) {
			return &services.VerifyOtpResult{
				Account: &models.Account{ID: "acct_1", Email: email},
				Tokens:  &models.TokenPair{AccessToken: "access_1", RefreshToken: "refresh_1", UserID: "acct_1", Role: models.RoleUser},
			}, nil
		},
	}, nil)

	req := NewTestRequest(t, http.MethodPost, "/auth/otp/verify", VerifyOtpRequest{
		Email: "jordan@example.com",
		Type:  models.OtpTypeSignin,
		Code:  "123456",
	})
	w := httptest.NewRecorder()
	h.VerifyOtp(w, req)

	env := DecodeEnvelope(t, w, http.StatusOK)
	assert.True(t, env.Success)

	access := ResponseCookie(w, auth.AccessTokenCookie)
	require.NotNil(t, access)
	assert.Equal(t, "access_1", access.Value)
	assert.True(t, access.HttpOnly)

	refresh := ResponseCookie(w, auth.RefreshTokenCookie)
	require.NotNil(t, refresh)
	assert.Equal(t, "refresh_1", refresh.Value)
}

func TestAuthHandler_VerifyOtp_PasswordResetSetsCapabilityCookie(t *testing.T) {
	h := newAuthHandler(nil, &MockPasscodeService{
		VerifyOtpFunc: func(ctx context.Context, email, otpType, code string) (*services.VerifyOtpResult, error) {
			return &services.VerifyOtpResult{
				Account:        &models.Account{ID: "acct_1", Email: email},
				ResetToken:     "acct_1.1757000000.abcdef",
				ResetExpiresAt: time.Now().Add(5 * time.Minute),
			}, nil
		},
	}, nil)

	req := NewTestRequest(t, http.MethodPost, "/auth/otp/verify", VerifyOtpRequest{
		Email: "jordan@example.com",
		Type:  models.OtpTypePasswordReset,
		Code:  "123456",
	})
	w := httptest.NewRecorder()
	h.VerifyOtp(w, req)

	DecodeEnvelope(t, w, http.StatusOK)

	reset := ResponseCookie(w, auth.ResetTokenCookie)
	require.NotNil(t, reset)
	assert.Equal(t, "acct_1.1757000000.abcdef", reset.Value)
	assert.Nil(t, ResponseCookie(w, auth.AccessTokenCookie))
}

func TestAuthHandler_VerifyOtp_WrongCode(t *testing.T) {
	h := newAuthHandler(nil, &MockPasscodeService{
		VerifyOtpFunc: func(ctx context.Context, email, otpType, code string) (*services.VerifyOtpResult, error) {
			return nil, models.ErrOtpInvalid
		},
	}, nil)

	req := NewTestRequest(t, http.MethodPost, "/auth/otp/verify", VerifyOtpRequest{
		Email: "jordan@example.com",
		Type:  models.OtpTypeSignin,
		Code:  "000000",
	})
	w := httptest.NewRecorder()
	h.VerifyOtp(w, req)

	env := DecodeEnvelope(t, w, http.StatusUnauthorized)
	assert.Contains(t, env.Message, "Invalid or expired passcode")
}

func TestAuthHandler_VerifyOtp_ExhaustedAttempts(t *testing.T) {
	h := newAuthHandler(nil, &MockPasscodeService{
		VerifyOtpFunc: func(ctx context.Context, email, otpType, code string) (*services.VerifyOtpResult, error) {
			return nil, models.ErrOtpExhausted
		},
	}, nil)

	req := NewTestRequest(t, http.MethodPost, "/auth/otp/verify", VerifyOtpRequest{
		Email: "jordan@example.com",
		Type:  models.OtpTypeSignin,
		Code:  "123456",
	})
	w := httptest.NewRecorder()
	h.VerifyOtp(w, req)

	DecodeEnvelope(t, w, http.StatusTooManyRequests)
}

func TestAuthHandler_Refresh_FromCookie(t *testing.T) {
	var gotRefresh string
	h := newAuthHandler(nil, nil, &MockSessionManager{
		RefreshFunc: func(ctx context.Context, accessToken, refreshToken string) (*models.TokenPair, error) {
			gotRefresh = refreshToken
			return &models.TokenPair{AccessToken: "access_new", RefreshToken: "refresh_new", UserID: "acct_1", Role: models.RoleUser}, nil
		},
	})

	req := NewTestRequest(t, http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: auth.RefreshTokenCookie, Value: "refresh_old"})
	w := httptest.NewRecorder()
	h.Refresh(w, req)

	DecodeEnvelope(t, w, http.StatusOK)
	assert.Equal(t, "refresh_old", gotRefresh)

	refreshed := ResponseCookie(w, auth.RefreshTokenCookie)
	require.NotNil(t, refreshed)
	assert.Equal(t, "refresh_new", refreshed.Value)
}

func TestAuthHandler_Refresh_FailureClearsCookies(t *testing.T) {
	h := newAuthHandler(nil, nil, &MockSessionManager{
		RefreshFunc: func(ctx context.Context, accessToken, refreshToken string) (*models.TokenPair, error) {
			return nil, models.ErrUnauthorized
		},
	})

	req := NewTestRequest(t, http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: auth.RefreshTokenCookie, Value: "stolen"})
	w := httptest.NewRecorder()
	h.Refresh(w, req)

	DecodeEnvelope(t, w, http.StatusUnauthorized)

	cleared := ResponseCookie(w, auth.RefreshTokenCookie)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestAuthHandler_Refresh_NoToken(t *testing.T) {
	h := newAuthHandler(nil, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/auth/refresh", nil)
	w := httptest.NewRecorder()
	h.Refresh(w, req)

	DecodeEnvelope(t, w, http.StatusUnauthorized)
}

func TestAuthHandler_Logout_IsIdempotent(t *testing.T) {
	calls := 0
	h := newAuthHandler(nil, nil, &MockSessionManager{
		LogoutFunc: func(ctx context.Context, refreshToken string) error {
			calls++
			return nil
		},
	})

	// Without any token the logout still succeeds and clears cookies.
	req := NewTestRequest(t, http.MethodPost, "/auth/logout", nil)
	w := httptest.NewRecorder()
	h.Logout(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, calls)

	req = NewTestRequest(t, http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: auth.RefreshTokenCookie, Value: "refresh_1"})
	w = httptest.NewRecorder()
	h.Logout(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, calls)

	cleared := ResponseCookie(w, auth.AccessTokenCookie)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestAuthHandler_LogoutAll_RequiresAuth(t *testing.T) {
	h := newAuthHandler(nil, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/auth/logout-all", nil)
	w := httptest.NewRecorder()
	h.LogoutAll(w, req)

	DecodeEnvelope(t, w, http.StatusUnauthorized)
}

func TestAuthHandler_LogoutAll_RevokesEverySession(t *testing.T) {
	var revokedUser string
	h := newAuthHandler(nil, nil, &MockSessionManager{
		RevokeAllFunc: func(ctx context.Context, userID string) error {
			revokedUser = userID
			return nil
		},
	})

	req := WithAuthContext(NewTestRequest(t, http.MethodPost, "/auth/logout-all", nil), "acct_1")
	w := httptest.NewRecorder()
	h.LogoutAll(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "acct_1", revokedUser)
}

func TestAuthHandler_ForgotPassword_AlwaysAccepted(t *testing.T) {
	h := newAuthHandler(&MockAuthFlow{
		ForgotPasswordFunc: func(ctx context.Context, email string) error {
			return nil
		},
	}, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/auth/forgot-password", ForgotPasswordRequest{
		Email: "ghost@example.com",
	})
	w := httptest.NewRecorder()
	h.ForgotPassword(w, req)

	DecodeEnvelope(t, w, http.StatusAccepted)
}

func TestAuthHandler_ResetPassword_FromCookie(t *testing.T) {
	var gotToken string
	h := newAuthHandler(&MockAuthFlow{
		ResetPasswordFunc: func(ctx context.Context, resetToken, newPassword string) error {
			gotToken = resetToken
			return nil
		},
	}, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/auth/reset-password", ResetPasswordRequest{
		NewPassword: "N3w!Passw0rd",
	})
	req.AddCookie(&http.Cookie{Name: auth.ResetTokenCookie, Value: "acct_1.1757000000.abcdef"})
	w := httptest.NewRecorder()
	h.ResetPassword(w, req)

	DecodeEnvelope(t, w, http.StatusOK)
	assert.Equal(t, "acct_1.1757000000.abcdef", gotToken)

	cleared := ResponseCookie(w, auth.ResetTokenCookie)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestAuthHandler_ResetPassword_InvalidToken(t *testing.T) {
	h := newAuthHandler(&MockAuthFlow{
		ResetPasswordFunc: func(ctx context.Context, resetToken, newPassword string) error {
			return models.ErrUnauthorized
		},
	}, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/auth/reset-password", ResetPasswordRequest{
		ResetToken:  "tampered",
		NewPassword: "N3w!Passw0rd",
	})
	w := httptest.NewRecorder()
	h.ResetPassword(w, req)

	DecodeEnvelope(t, w, http.StatusUnauthorized)
}

func TestAuthHandler_Reactivate_CooldownActive(t *testing.T) {
	h := newAuthHandler(&MockAuthFlow{
		ReactivateFunc: func(ctx context.Context, email, password string) error {
			return &models.ReactivationCooldownError{Remaining: 12 * time.Hour}
		},
	}, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/auth/reactivate", ReactivateRequest{
		Email:    "jordan@example.com",
		Password: "Str0ng!Passw0rd",
	})
	w := httptest.NewRecorder()
	h.Reactivate(w, req)

	env := DecodeEnvelope(t, w, http.StatusForbidden)
	assert.Contains(t, env.Message, "reactivated")
}

func TestAuthHandler_Reactivate_Success(t *testing.T) {
	h := newAuthHandler(&MockAuthFlow{
		ReactivateFunc: func(ctx context.Context, email, password string) error {
			return nil
		},
	}, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/auth/reactivate", ReactivateRequest{
		Email:    "jordan@example.com",
		Password: "Str0ng!Passw0rd",
	})
	w := httptest.NewRecorder()
	h.Reactivate(w, req)

	DecodeEnvelope(t, w, http.StatusOK)
}

func TestAuthHandler_OAuthLogin_SetsSessionCookies(t *testing.T) {
	var gotProfile services.OAuthProfile
	h := newAuthHandler(&MockAuthFlow{
		OAuthLoginFunc: func(ctx context.Context, profile services.OAuthProfile) (*models.TokenPair, error) {
			gotProfile = profile
			return &models.TokenPair{AccessToken: "access_1", RefreshToken: "refresh_1", UserID: "acct_1", Role: models.RoleUser}, nil
		},
	}, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/auth/oauth", OAuthLoginRequest{
		Provider:   models.ProviderGoogle,
		ProviderID: "google-sub-123",
		Email:      "Jordan@Example.com",
		Name:       "Jordan",
	})
	w := httptest.NewRecorder()
	h.OAuthLogin(w, req)

	DecodeEnvelope(t, w, http.StatusOK)
	assert.Equal(t, "jordan@example.com", gotProfile.Email)
	assert.Equal(t, models.ProviderGoogle, gotProfile.Provider)
	require.NotNil(t, ResponseCookie(w, auth.AccessTokenCookie))
}

func TestAuthHandler_OAuthLogin_RejectsUnknownProvider(t *testing.T) {
	h := newAuthHandler(nil, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/auth/oauth", OAuthLoginRequest{
		Provider:   "myspace",
		ProviderID: "123",
		Email:      "jordan@example.com",
		Name:       "Jordan",
	})
	w := httptest.NewRecorder()
	h.OAuthLogin(w, req)

	DecodeEnvelope(t, w, http.StatusBadRequest)
}
