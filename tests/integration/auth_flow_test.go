package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmorrow/taskvault/internal/auth"
	"github.com/lmorrow/taskvault/internal/models"
)

// registerAndVerify creates an account and completes email verification.
func registerAndVerify(t *testing.T, client *TestClient, acct TestAccount) {
	t.Helper()

	resp, err := client.Post("/auth/register", map[string]string{
		"name":     acct.Name,
		"email":    acct.Email,
		"password": acct.Password,
	})
	require.NoError(t, err)
	env, err := DecodeResponse(resp)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, env.Message)

	code := testServer.Email.LastCode(acct.Email, models.OtpTypeEmailVerify)
	require.NotEmpty(t, code, "expected a verification passcode to be sent")

	resp, err = client.Post("/auth/otp/verify", map[string]string{
		"email": acct.Email,
		"type":  models.OtpTypeEmailVerify,
		"code":  code,
	})
	require.NoError(t, err)
	env, err = DecodeResponse(resp)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
}

// signin completes the two-step credential plus passcode sign-in.
func signin(t *testing.T, client *TestClient, acct TestAccount) {
	t.Helper()

	resp, err := client.Post("/auth/signin", map[string]string{
		"email":    acct.Email,
		"password": acct.Password,
	})
	require.NoError(t, err)
	env, err := DecodeResponse(resp)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)

	code := testServer.Email.LastCode(acct.Email, models.OtpTypeSignin)
	require.NotEmpty(t, code, "expected a sign-in passcode to be sent")

	resp, err = client.Post("/auth/otp/verify", map[string]string{
		"email": acct.Email,
		"type":  models.OtpTypeSignin,
		"code":  code,
	})
	require.NoError(t, err)
	env, err = DecodeResponse(resp)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	require.NotEmpty(t, client.Cookie(auth.AccessTokenCookie))
	require.NotEmpty(t, client.Cookie(auth.RefreshTokenCookie))
}

func TestRegisterVerifySigninFlow(t *testing.T) {
	requireIntegration(t)
	resetTables(t)

	acct := UniqueTestAccount()
	client := testServer.NewClient()

	registerAndVerify(t, client, acct)
	signin(t, client, acct)

	resp, err := client.Get("/users/me")
	require.NoError(t, err)
	env, err := DecodeResponse(resp)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	assert.Equal(t, acct.Email, env.Data["email"])
	assert.Equal(t, true, env.Data["email_verified"])
}

func TestSigninDoesNotIssueTokensBeforePasscode(t *testing.T) {
	requireIntegration(t)
	resetTables(t)

	acct := UniqueTestAccount()
	client := testServer.NewClient()
	registerAndVerify(t, client, acct)

	resp, err := client.Post("/auth/signin", map[string]string{
		"email":    acct.Email,
		"password": acct.Password,
	})
	require.NoError(t, err)
	env, err := DecodeResponse(resp)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	assert.Empty(t, client.Cookie(auth.AccessTokenCookie))
	assert.Empty(t, client.Cookie(auth.RefreshTokenCookie))
}

func TestSigninRequiresVerifiedEmail(t *testing.T) {
	requireIntegration(t)
	resetTables(t)

	acct := UniqueTestAccount()
	client := testServer.NewClient()

	resp, err := client.Post("/auth/register", map[string]string{
		"name":     acct.Name,
		"email":    acct.Email,
		"password": acct.Password,
	})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = client.Post("/auth/signin", map[string]string{
		"email":    acct.Email,
		"password": acct.Password,
	})
	require.NoError(t, err)
	env, err := DecodeResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, env.Message)
}

func TestSigninLocksAfterRepeatedFailures(t *testing.T) {
	requireIntegration(t)
	resetTables(t)

	acct := UniqueTestAccount()
	_, err := SeedAccount(context.Background(), testDB.Pool, acct.Email, acct.Password, true)
	require.NoError(t, err)
	client := testServer.NewClient()

	for i := 0; i < 5; i++ {
		resp, err := client.Post("/auth/signin", map[string]string{
			"email":    acct.Email,
			"password": "Wrong-Passw0rd!",
		})
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	// Correct credentials no longer help once the lock window starts.
	resp, err := client.Post("/auth/signin", map[string]string{
		"email":    acct.Email,
		"password": acct.Password,
	})
	require.NoError(t, err)
	env, err := DecodeResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, env.Message, "locked")
}

func TestRefreshRotationAndReuseDetection(t *testing.T) {
	requireIntegration(t)
	resetTables(t)

	acct := UniqueTestAccount()
	client := testServer.NewClient()
	registerAndVerify(t, client, acct)
	signin(t, client, acct)

	oldRefresh := client.Cookie(auth.RefreshTokenCookie)
	require.NotEmpty(t, oldRefresh)

	resp, err := client.Post("/auth/refresh", nil)
	require.NoError(t, err)
	env, err := DecodeResponse(resp)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)

	newRefresh := client.Cookie(auth.RefreshTokenCookie)
	require.NotEmpty(t, newRefresh)
	require.NotEqual(t, oldRefresh, newRefresh)

	// Replaying the rotated-out token from a cookie-less client trips
	// reuse containment, which revokes the whole session family.
	attacker := testServer.NewClient()
	resp, err = attacker.Post("/auth/refresh", map[string]string{
		"refresh_token": oldRefresh,
	})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = client.Post("/auth/refresh", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var accountID string
	err = testDB.Pool.QueryRow(context.Background(),
		`SELECT id FROM accounts WHERE email = $1`, acct.Email).Scan(&accountID)
	require.NoError(t, err)

	active, err := ActiveTokenCount(context.Background(), testDB.Pool, accountID)
	require.NoError(t, err)
	assert.Zero(t, active, "reuse containment should revoke every live token")
}

func TestLogoutEndsSession(t *testing.T) {
	requireIntegration(t)
	resetTables(t)

	acct := UniqueTestAccount()
	client := testServer.NewClient()
	registerAndVerify(t, client, acct)
	signin(t, client, acct)

	resp, err := client.Post("/auth/logout", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Empty(t, client.Cookie(auth.AccessTokenCookie))
	assert.Empty(t, client.Cookie(auth.RefreshTokenCookie))

	resp, err = client.Get("/users/me")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPasswordResetFlow(t *testing.T) {
	requireIntegration(t)
	resetTables(t)

	acct := UniqueTestAccount()
	client := testServer.NewClient()
	registerAndVerify(t, client, acct)

	resp, err := client.Post("/auth/forgot-password", map[string]string{"email": acct.Email})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	code := testServer.Email.LastCode(acct.Email, models.OtpTypePasswordReset)
	require.NotEmpty(t, code)

	resp, err = client.Post("/auth/otp/verify", map[string]string{
		"email": acct.Email,
		"type":  models.OtpTypePasswordReset,
		"code":  code,
	})
	require.NoError(t, err)
	env, err := DecodeResponse(resp)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	require.NotEmpty(t, client.Cookie(auth.ResetTokenCookie))

	newPassword := "Brand-New-Passw0rd!"
	resp, err = client.Post("/auth/reset-password", map[string]string{
		"new_password": newPassword,
	})
	require.NoError(t, err)
	env, err = DecodeResponse(resp)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)

	// Old password is rejected, new one signs in.
	resp, err = client.Post("/auth/signin", map[string]string{
		"email":    acct.Email,
		"password": acct.Password,
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	acct.Password = newPassword
	signin(t, client, acct)
}

func TestDeactivateAndReactivate(t *testing.T) {
	requireIntegration(t)
	resetTables(t)

	acct := UniqueTestAccount()
	client := testServer.NewClient()
	registerAndVerify(t, client, acct)
	signin(t, client, acct)

	resp, err := client.Delete("/users/me")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = client.Post("/auth/signin", map[string]string{
		"email":    acct.Email,
		"password": acct.Password,
	})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = client.Post("/auth/reactivate", map[string]string{
		"email":    acct.Email,
		"password": acct.Password,
	})
	require.NoError(t, err)
	env, err := DecodeResponse(resp)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)

	signin(t, client, acct)
}

func TestOAuthLoginCreatesSession(t *testing.T) {
	requireIntegration(t)
	resetTables(t)

	client := testServer.NewClient()
	resp, err := client.Post("/auth/oauth", map[string]string{
		"provider":    "google",
		"provider_id": "google-oauth-123",
		"email":       "federated@integration.test",
		"name":        "Federated User",
	})
	require.NoError(t, err)
	env, err := DecodeResponse(resp)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	require.NotEmpty(t, client.Cookie(auth.AccessTokenCookie))

	resp, err = client.Get("/users/me")
	require.NoError(t, err)
	env, err = DecodeResponse(resp)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	assert.Equal(t, "federated@integration.test", env.Data["email"])
	assert.Equal(t, "google", env.Data["provider"])
}
