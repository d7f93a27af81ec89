package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/contacts/internal/auth/service"
	"github.com/aussiebroadwan/contacts/pkg/authsdk"
	"github.com/aussiebroadwan/contacts/pkg/httpx"
)

// EmailHandler serves the email confirmation endpoints.
type EmailHandler struct {
	SessionService *service.SessionService
	BaseURL        string
}

// HandleConfirm godoc
//
//	@Summary		Confirm an email address
//	@Description	Redeems the token from a confirmation email. Confirming an address twice succeeds.
//	@Tags			Auth
//	@Produce		json
//	@Param			token	path		string	true	"Email token"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Failure		400		{object}	httpx.ErrorBody	"invalid_or_expired_token or verification_error"
//	@Router			/api/auth/confirmed_email/{token} [get].
func (h *EmailHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if token == "" {
		authsdk.ErrInvalidOrExpiredToken.WriteError(w)
		return
	}

	outcome, err := h.SessionService.ConfirmEmail(r.Context(), token)
	if err != nil {
		// The token verified but names no account.
		if errors.Is(err, service.ErrUnknownEmail) {
			writeAPIError(w, r, "confirm email", authsdk.ErrVerificationError, err)
			return
		}
		writeServiceError(w, r, "confirm email", err)
		return
	}

	msg := "Email confirmed"
	if outcome == service.AlreadyConfirmed {
		msg = "Your email is already confirmed"
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: msg})
}

// HandleRequest godoc
//
//	@Summary		Resend the confirmation email
//	@Description	Queues a new confirmation email. Unknown addresses get the same response as known ones.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.EmailRequest	true	"email"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Failure		400		{object}	httpx.ErrorBody	"invalid_request"
//	@Failure		429		{object}	httpx.ErrorBody	"rate_limit_exceeded"
//	@Router			/api/auth/request_email [post].
func (h *EmailHandler) HandleRequest(w http.ResponseWriter, r *http.Request) {
	var req authsdk.EmailRequest
	if err := decodeJSONBody(w, r, &req); err != nil || strings.TrimSpace(req.Email) == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	err := h.SessionService.SendConfirmation(r.Context(), req.Email, baseURL(h.BaseURL, r))
	switch {
	case errors.Is(err, service.ErrAlreadyConfirmed):
		httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "Your email is already confirmed"})
	case err != nil:
		writeServiceError(w, r, "request email", err)
	default:
		httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "Check your email for confirmation"})
	}
}

func writeAPIError(w http.ResponseWriter, r *http.Request, op string, apiErr *authsdk.APIError, err error) {
	logRejected(r, op, apiErr, err)
	apiErr.WriteError(w)
}
