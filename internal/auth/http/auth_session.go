package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/contacts/internal/auth/domain"
	"github.com/aussiebroadwan/contacts/internal/auth/service"
	"github.com/aussiebroadwan/contacts/pkg/authsdk"
	"github.com/aussiebroadwan/contacts/pkg/httpx"
)

// LoginHandler serves POST /api/auth/login. It accepts the OAuth2 password
// form, with the email in the username field.
type LoginHandler struct {
	SessionService *service.SessionService
}

// ServeHTTP godoc
//
//	@Summary		Log in
//	@Description	Exchanges an email and password for an access and refresh token. Any earlier refresh token stops working.
//	@Tags			Auth
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			username	formData	string	true	"Email address"
//	@Param			password	formData	string	true	"Password"
//	@Success		200			{object}	authsdk.TokenResponse
//	@Failure		400			{object}	httpx.ErrorBody	"invalid_request"
//	@Failure		401			{object}	httpx.ErrorBody	"unknown_email, email_not_confirmed or bad_password"
//	@Failure		429			{object}	httpx.ErrorBody	"rate_limit_exceeded"
//	@Header			200			{string}	Cache-Control	"no-store"
//	@Router			/api/auth/login [post].
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") &&
		!strings.HasPrefix(ct, "multipart/form-data") {
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "expected form encoded credentials").WriteError(w)
		return
	}

	email := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	if email == "" || password == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.SessionService.Login(r.Context(), email, password)
	if err != nil {
		writeServiceError(w, r, "login", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair))
}

// RefreshHandler serves GET /api/auth/refresh_token. The refresh token is
// presented as a bearer credential.
type RefreshHandler struct {
	SessionService *service.SessionService
}

// ServeHTTP godoc
//
//	@Summary		Rotate the refresh token
//	@Description	Returns a new token pair. The presented refresh token is retired; presenting a retired token revokes the session.
//	@Tags			Auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	authsdk.TokenResponse
//	@Failure		401	{object}	httpx.ErrorBody	"invalid_token, unknown_email or token_reuse_detected"
//	@Failure		429	{object}	httpx.ErrorBody	"rate_limit_exceeded"
//	@Header			200	{string}	Cache-Control	"no-store"
//	@Router			/api/auth/refresh_token [get].
func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, ok := httpx.BearerToken(r)
	if !ok {
		httpx.WriteBearerError(w, "missing bearer token")
		return
	}

	pair, err := h.SessionService.Refresh(r.Context(), raw)
	if err != nil {
		writeServiceError(w, r, "refresh", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair))
}

// LogoutHandler serves POST /api/auth/logout.
type LogoutHandler struct {
	SessionService *service.SessionService
}

// ServeHTTP godoc
//
//	@Summary		Log out
//	@Description	Revokes the caller's refresh token. The access token stays valid until it expires.
//	@Tags			Auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	authsdk.MessageResponse
//	@Failure		401	{object}	httpx.ErrorBody	"invalid_token"
//	@Router			/api/auth/logout [post].
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	email, ok := httpx.EmailFromContext(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	if err := h.SessionService.Logout(r.Context(), email); err != nil {
		writeServiceError(w, r, "logout", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "Logged out"})
}

func tokenResponse(p domain.TokenPair) authsdk.TokenResponse {
	return authsdk.TokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.TokenType,
		ExpiresIn:    int(p.ExpiresIn),
	}
}
