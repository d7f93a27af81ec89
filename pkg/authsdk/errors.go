package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/contacts/pkg/httpx"
)

// Error codes carried in the "error" field of every error response.
const (
	ErrorCodeInvalidRequest        = "invalid_request"
	ErrorCodeUnknownEmail          = "unknown_email"
	ErrorCodeEmailNotConfirmed     = "email_not_confirmed"
	ErrorCodeBadPassword           = "bad_password"
	ErrorCodeInvalidToken          = "invalid_token"
	ErrorCodeTokenReuseDetected    = "token_reuse_detected"
	ErrorCodeInvalidOrExpiredToken = "invalid_or_expired_token"
	ErrorCodeVerificationError     = "verification_error"
	ErrorCodeEmailTaken            = "email_taken"
	ErrorCodeUnsupportedMediaType  = "unsupported_media_type"
	ErrorCodeAvatarsDisabled       = "avatars_disabled"
	ErrorCodeRateLimitExceeded     = "rate_limit_exceeded"
	ErrorCodeForbidden             = "forbidden"
	ErrorCodeServerError           = "server_error"
)

// APIError is the error body returned by the contacts API. The server uses
// it to write responses; the client returns it for any non-2xx response.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error"`
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// Is matches on the error code, so errors.Is(err, ErrEmailTaken) works on
// errors decoded by the client.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

// WriteError writes e as a JSON error response.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteError(w, e.StatusCode, e.Code, e.Detail)
}

func NewAPIError(statusCode int, code, detail string) *APIError {
	return &APIError{StatusCode: statusCode, Code: code, Detail: detail}
}

var (
	ErrInvalidRequest = &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       ErrorCodeInvalidRequest,
		Detail:     "the request is malformed or missing required fields",
	}
	ErrUnknownEmail = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       ErrorCodeUnknownEmail,
		Detail:     "Invalid email",
	}
	ErrEmailNotConfirmed = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       ErrorCodeEmailNotConfirmed,
		Detail:     "Email not confirmed",
	}
	ErrBadPassword = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       ErrorCodeBadPassword,
		Detail:     "Invalid password",
	}
	ErrInvalidToken = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       ErrorCodeInvalidToken,
		Detail:     "Could not validate credentials",
	}
	ErrTokenReuseDetected = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       ErrorCodeTokenReuseDetected,
		Detail:     "Invalid refresh token",
	}
	ErrInvalidOrExpiredToken = &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       ErrorCodeInvalidOrExpiredToken,
		Detail:     "Invalid or expired token",
	}
	ErrVerificationError = &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       ErrorCodeVerificationError,
		Detail:     "Verification error",
	}
	ErrEmailTaken = &APIError{
		StatusCode: http.StatusConflict,
		Code:       ErrorCodeEmailTaken,
		Detail:     "Account already exists",
	}
	ErrUnsupportedMediaType = &APIError{
		StatusCode: http.StatusUnsupportedMediaType,
		Code:       ErrorCodeUnsupportedMediaType,
		Detail:     "avatar must be a png, jpeg, gif or webp image",
	}
	ErrAvatarsDisabled = &APIError{
		StatusCode: http.StatusServiceUnavailable,
		Code:       ErrorCodeAvatarsDisabled,
		Detail:     "avatar storage is not configured",
	}
	ErrServerError = &APIError{
		StatusCode: http.StatusInternalServerError,
		Code:       ErrorCodeServerError,
		Detail:     "internal server error",
	}
)

// parseErrorResponse turns a non-2xx response into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var e APIError
	if err := json.Unmarshal(body, &e); err == nil && e.Code != "" {
		e.StatusCode = resp.StatusCode
		return &e
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       ErrorCodeServerError,
		Detail:     fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
