package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/contacts/internal/auth/service"
	"github.com/aussiebroadwan/contacts/pkg/authsdk"
	"github.com/aussiebroadwan/contacts/pkg/httpx"
)

// PasswordHandler serves the password reset endpoints.
type PasswordHandler struct {
	SessionService *service.SessionService
	BaseURL        string
}

// HandleForgot godoc
//
//	@Summary		Request a password reset
//	@Description	Emails a single-use reset link. Unknown addresses get the same response as known ones.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.EmailRequest	true	"email"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Failure		400		{object}	httpx.ErrorBody	"invalid_request"
//	@Failure		429		{object}	httpx.ErrorBody	"rate_limit_exceeded"
//	@Router			/api/auth/forget-password [post].
func (h *PasswordHandler) HandleForgot(w http.ResponseWriter, r *http.Request) {
	var req authsdk.EmailRequest
	if err := decodeJSONBody(w, r, &req); err != nil || strings.TrimSpace(req.Email) == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.SessionService.ForgotPassword(r.Context(), req.Email, baseURL(h.BaseURL, r)); err != nil {
		writeServiceError(w, r, "forgot password", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "Check your email to reset your password"})
}

// HandleReset godoc
//
//	@Summary		Reset a password
//	@Description	Sets a new password with the token from a reset email. Ends any open session.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.ResetPasswordRequest	true	"token, password"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Failure		400		{object}	httpx.ErrorBody	"invalid_request or invalid_or_expired_token"
//	@Failure		401		{object}	httpx.ErrorBody	"unknown_email"
//	@Router			/api/auth/reset-password [post].
func (h *PasswordHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ResetPasswordRequest
	if err := decodeJSONBody(w, r, &req); err != nil || req.Token == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.SessionService.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeServiceError(w, r, "reset password", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "Password has been reset"})
}
