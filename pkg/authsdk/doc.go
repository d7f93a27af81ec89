/*
Package authsdk is a Go client for the contacts authentication API.

# SDKClient vs Session

SDKClient covers the unauthenticated endpoints: signup, login, refresh, email
confirmation, password reset and health checks.

	client := authsdk.NewSDKClient("https://contacts.example.com")

	user, err := client.Signup(ctx, authsdk.SignupRequest{
		Username: "ada",
		Email:    "ada@example.com",
		Password: "hunter22",
	})

	// After the user follows the link in their inbox
	session, err := client.AuthenticateWithPassword(ctx, "ada@example.com", "hunter22")

A Session holds a token pair and refreshes the access token before it
expires:

	me, err := session.Me(ctx)
	me, err = session.UpdateAvatar(ctx, "me.png", "image/png", file)
	err = session.Logout(ctx)

# Refresh token rotation

Every refresh returns a new refresh token and invalidates the one presented.
Presenting a superseded refresh token is treated as theft: the server revokes
the session and every later refresh fails with ErrTokenReuseDetected until
the user logs in again. Do not copy a Session's refresh token into a second
client.

# Errors

Non-2xx responses are returned as *APIError. The predefined values match by
code, so errors.Is works:

	if errors.Is(err, authsdk.ErrEmailNotConfirmed) {
		_, _ = client.RequestEmail(ctx, email)
	}

The same types are used by the server to write responses.
*/
package authsdk
