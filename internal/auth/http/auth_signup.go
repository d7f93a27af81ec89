package http

import (
	"net/http"

	"github.com/aussiebroadwan/contacts/internal/auth/service"
	"github.com/aussiebroadwan/contacts/pkg/authsdk"
	"github.com/aussiebroadwan/contacts/pkg/httpx"
)

// SignupHandler serves POST /api/auth/signup.
type SignupHandler struct {
	UserService *service.UserService
	BaseURL     string
}

// ServeHTTP godoc
//
//	@Summary		Create an account
//	@Description	Creates an unconfirmed account and emails a confirmation link. Login is refused until the address is confirmed.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.SignupRequest	true	"username, email, password"
//	@Success		201		{object}	authsdk.UserResponse
//	@Failure		400		{object}	httpx.ErrorBody	"invalid_request"
//	@Failure		409		{object}	httpx.ErrorBody	"email_taken"
//	@Failure		429		{object}	httpx.ErrorBody	"rate_limit_exceeded"
//	@Router			/api/auth/signup [post].
func (h *SignupHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.SignupRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	user, err := h.UserService.Signup(r.Context(), service.SignupInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		BaseURL:  baseURL(h.BaseURL, r),
	})
	if err != nil {
		writeServiceError(w, r, "signup", err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, userResponse(user))
}
