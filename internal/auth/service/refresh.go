package service

import (
	"context"

	"github.com/aussiebroadwan/contacts/internal/auth/domain"
	"github.com/aussiebroadwan/contacts/internal/auth/store"
	"github.com/aussiebroadwan/contacts/pkg/cryptox"
)

// RefreshTokens keeps the single refresh token a user may hold. Only the
// fingerprint of a token is ever written to the user record.
type RefreshTokens struct {
	Users store.Users
}

// Rotate makes token the user's only valid refresh token. A nil token
// revokes the session.
func (r RefreshTokens) Rotate(ctx context.Context, user domain.User, token *string) error {
	if err := r.Users.UpdateRefreshToken(ctx, user.Email, fingerprintPtr(token)); err != nil {
		return dependency("rotate refresh token", err)
	}
	return nil
}

// RotateFrom replaces presented with next only if presented is still the
// stored token. It reports false when a concurrent rotation won.
func (r RefreshTokens) RotateFrom(ctx context.Context, user domain.User, presented string, next *string) (bool, error) {
	ok, err := r.Users.SwapRefreshToken(ctx, user.Email, cryptox.FingerprintToken(presented), fingerprintPtr(next))
	if err != nil {
		return false, dependency("swap refresh token", err)
	}
	return ok, nil
}

// Matches reports whether presented is the token currently stored for user.
// A user without a session never matches.
func (RefreshTokens) Matches(user domain.User, presented string) bool {
	if !user.HasSession() {
		return false
	}
	return cryptox.FingerprintMatches(*user.RefreshTokenHash, presented)
}

func fingerprintPtr(token *string) *string {
	if token == nil {
		return nil
	}
	fp := cryptox.FingerprintToken(*token)
	return &fp
}
