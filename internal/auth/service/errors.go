package service

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownEmail          = errors.New("unknown_email")
	ErrEmailNotConfirmed     = errors.New("email_not_confirmed")
	ErrBadPassword           = errors.New("bad_password")
	ErrTokenReuseDetected    = errors.New("token_reuse_detected")
	ErrInvalidOrExpiredToken = errors.New("invalid_or_expired_token")
	ErrEmailTaken            = errors.New("email_taken")
	ErrInvalidInput          = errors.New("invalid_request")
	ErrUnsupportedMedia      = errors.New("unsupported_media_type")
	ErrAvatarsDisabled       = errors.New("avatars_disabled")
	ErrDependencyFailure     = errors.New("dependency_failure")

	// ErrAlreadyConfirmed is returned by SendConfirmation when there is
	// nothing left to confirm. Callers usually report it as success.
	ErrAlreadyConfirmed = errors.New("already_confirmed")
)

// dependency wraps a collaborator failure so both ErrDependencyFailure and
// the underlying error match with errors.Is.
func dependency(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrDependencyFailure, err)
}
