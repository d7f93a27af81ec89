package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/contacts/internal/auth/service"
	"github.com/aussiebroadwan/contacts/pkg/authsdk"
	"github.com/aussiebroadwan/contacts/pkg/httpx"
	"github.com/aussiebroadwan/contacts/pkg/jwtx"
	"github.com/aussiebroadwan/contacts/pkg/slogx"
)

// apiError maps a service error onto the response the client sees.
// Anything unrecognised is a 500.
func apiError(err error) *authsdk.APIError {
	switch {
	case errors.Is(err, service.ErrInvalidOrExpiredToken):
		return authsdk.ErrInvalidOrExpiredToken
	case errors.Is(err, service.ErrTokenReuseDetected):
		return authsdk.ErrTokenReuseDetected
	case jwtx.IsTokenError(err):
		return authsdk.ErrInvalidToken
	case errors.Is(err, service.ErrUnknownEmail):
		return authsdk.ErrUnknownEmail
	case errors.Is(err, service.ErrEmailNotConfirmed):
		return authsdk.ErrEmailNotConfirmed
	case errors.Is(err, service.ErrBadPassword):
		return authsdk.ErrBadPassword
	case errors.Is(err, service.ErrEmailTaken):
		return authsdk.ErrEmailTaken
	case errors.Is(err, service.ErrInvalidInput):
		return authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, detail(err))
	case errors.Is(err, service.ErrUnsupportedMedia):
		return authsdk.ErrUnsupportedMediaType
	case errors.Is(err, service.ErrAvatarsDisabled):
		return authsdk.ErrAvatarsDisabled
	default:
		return authsdk.ErrServerError
	}
}

// writeServiceError logs err at a level matching its status and writes the
// mapped response.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	apiErr := apiError(err)
	logRejected(r, op, apiErr, err)

	if apiErr.StatusCode == http.StatusUnauthorized && apiErr.Code == authsdk.ErrorCodeInvalidToken {
		httpx.WriteBearerError(w, apiErr.Detail)
		return
	}
	apiErr.WriteError(w)
}

func logRejected(r *http.Request, op string, apiErr *authsdk.APIError, err error) {
	level := slog.LevelInfo
	if apiErr.StatusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slogx.FromContext(r.Context()).Log(r.Context(), level, op+" failed", "code", apiErr.Code, "err", err)
}

// detail strips the sentinel prefix from a validation error so only the
// human readable part reaches the client.
func detail(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, service.ErrInvalidInput.Error()+": "); i >= 0 {
		return msg[i+len(service.ErrInvalidInput.Error())+2:]
	}
	return msg
}
