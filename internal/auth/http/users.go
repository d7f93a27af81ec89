package http

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/aussiebroadwan/contacts/internal/auth/domain"
	"github.com/aussiebroadwan/contacts/internal/auth/service"
	"github.com/aussiebroadwan/contacts/pkg/authsdk"
	"github.com/aussiebroadwan/contacts/pkg/httpx"
)

// MaxAvatarSize caps the avatar upload.
const MaxAvatarSize = 5 << 20

// UsersHandler serves the authenticated /api/users endpoints.
type UsersHandler struct {
	UserService *service.UserService
}

// HandleMe godoc
//
//	@Summary		Current user
//	@Description	Returns the account behind the access token.
//	@Tags			Users
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	authsdk.UserResponse
//	@Failure		401	{object}	httpx.ErrorBody	"invalid_token or unknown_email"
//	@Router			/api/users/me [get].
func (h *UsersHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	email, ok := httpx.EmailFromContext(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	user, err := h.UserService.Me(r.Context(), email)
	if err != nil {
		writeServiceError(w, r, "load user", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, userResponse(user))
}

// HandleAvatar godoc
//
//	@Summary		Upload an avatar
//	@Description	Stores a png, jpeg, gif or webp image of at most 5 MiB and makes it the account's avatar.
//	@Tags			Users
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			file	formData	file	true	"Avatar image"
//	@Success		200		{object}	authsdk.UserResponse
//	@Failure		400		{object}	httpx.ErrorBody	"invalid_request"
//	@Failure		401		{object}	httpx.ErrorBody	"invalid_token"
//	@Failure		413		{object}	httpx.ErrorBody	"invalid_request"
//	@Failure		415		{object}	httpx.ErrorBody	"unsupported_media_type"
//	@Failure		503		{object}	httpx.ErrorBody	"avatars_disabled"
//	@Router			/api/users/avatar [patch].
func (h *UsersHandler) HandleAvatar(w http.ResponseWriter, r *http.Request) {
	email, ok := httpx.EmailFromContext(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	// Leave room for the multipart framing around the file.
	r.Body = http.MaxBytesReader(w, r.Body, MaxAvatarSize+64<<10)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			authsdk.NewAPIError(http.StatusRequestEntityTooLarge, authsdk.ErrorCodeInvalidRequest, "avatar exceeds 5 MiB").WriteError(w)
			return
		}
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "multipart field \"file\" is required").WriteError(w)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxAvatarSize+1))
	if err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if len(data) > MaxAvatarSize {
		authsdk.NewAPIError(http.StatusRequestEntityTooLarge, authsdk.ErrorCodeInvalidRequest, "avatar exceeds 5 MiB").WriteError(w)
		return
	}

	contentType := avatarContentType(hdr.Header.Get("Content-Type"), data)

	user, err := h.UserService.UpdateAvatar(r.Context(), email, bytes.NewReader(data), contentType)
	if err != nil {
		writeServiceError(w, r, "update avatar", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, userResponse(user))
}

// avatarContentType prefers the declared part type and falls back to
// sniffing the bytes.
func avatarContentType(declared string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
		return mt
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}

func userResponse(u domain.User) authsdk.UserResponse {
	return authsdk.UserResponse{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		Avatar:         u.Avatar,
		EmailConfirmed: u.EmailConfirmed,
		CreatedAt:      u.CreatedAt,
	}
}
