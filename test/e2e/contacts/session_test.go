package contacts_test

import (
	"net/http"
	"testing"

	"github.com/aussiebroadwan/contacts/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// TestSignupConfirmLogin walks a new account from signup to an
// authenticated request.
func TestSignupConfirmLogin(t *testing.T) {
	svc := startService(t, nil)
	ctx := t.Context()

	_, err := svc.client.Signup(ctx, authsdk.SignupRequest{Username: "ada", Email: "ada@e2e.example.com", Password: testPassword})
	require.NoError(t, err)

	_, err = svc.client.Login(ctx, "ada@e2e.example.com", testPassword)
	require.ErrorIs(t, err, authsdk.ErrEmailNotConfirmed)

	_, err = svc.client.ConfirmEmail(ctx, svc.emailToken(t, "confirm_email"))
	require.NoError(t, err)

	session, err := svc.client.AuthenticateWithPassword(ctx, "ada@e2e.example.com", testPassword)
	require.NoError(t, err)

	me, err := session.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, "ada", me.Username)
	require.True(t, me.EmailConfirmed)
}

// TestRefreshReuseRevokesSession replays a rotated refresh token and checks
// that both the attacker's and the victim's tokens stop working.
func TestRefreshReuseRevokesSession(t *testing.T) {
	svc := startService(t, nil)
	ctx := t.Context()
	svc.signupAndConfirm(t, "reuse@e2e.example.com")

	stolen, err := svc.client.Login(ctx, "reuse@e2e.example.com", testPassword)
	require.NoError(t, err)

	rotated, err := svc.client.Refresh(ctx, stolen.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, stolen.RefreshToken, rotated.RefreshToken)

	_, err = svc.client.Refresh(ctx, stolen.RefreshToken)
	require.ErrorIs(t, err, authsdk.ErrTokenReuseDetected)

	_, err = svc.client.Refresh(ctx, rotated.RefreshToken)
	require.ErrorIs(t, err, authsdk.ErrTokenReuseDetected)

	// Logging in again starts a fresh session.
	_, err = svc.client.Login(ctx, "reuse@e2e.example.com", testPassword)
	require.NoError(t, err)
}

func TestPasswordResetEndsSession(t *testing.T) {
	svc := startService(t, nil)
	ctx := t.Context()
	svc.signupAndConfirm(t, "reset@e2e.example.com")

	before, err := svc.client.Login(ctx, "reset@e2e.example.com", testPassword)
	require.NoError(t, err)

	_, err = svc.client.ForgotPassword(ctx, "reset@e2e.example.com")
	require.NoError(t, err)
	token := svc.emailToken(t, "reset_password")

	_, err = svc.client.ResetPassword(ctx, token, "new-password")
	require.NoError(t, err)

	_, err = svc.client.ResetPassword(ctx, token, "newer-password")
	require.ErrorIs(t, err, authsdk.ErrInvalidOrExpiredToken)

	_, err = svc.client.Refresh(ctx, before.RefreshToken)
	require.Error(t, err)

	_, err = svc.client.Login(ctx, "reset@e2e.example.com", testPassword)
	require.ErrorIs(t, err, authsdk.ErrBadPassword)
	_, err = svc.client.Login(ctx, "reset@e2e.example.com", "new-password")
	require.NoError(t, err)
}

func TestHealth(t *testing.T) {
	svc := startService(t, nil)

	live, err := svc.client.GetLiveness(t.Context())
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)

	ready, err := svc.client.GetReadiness(t.Context())
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Checks["database"])
}

func TestLoginRateLimit(t *testing.T) {
	svc := startService(t, map[string]string{
		"RATELIMIT_STRICT_REQUESTS": "5",
		"RATELIMIT_STRICT_BURST":    "5",
	})

	var apiErr *authsdk.APIError
	for range 10 {
		_, err := svc.client.Login(t.Context(), "nobody@e2e.example.com", "wrong")
		require.ErrorAs(t, err, &apiErr)
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return
		}
	}
	t.Fatal("login was never rate limited")
}
