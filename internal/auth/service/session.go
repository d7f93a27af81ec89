package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aussiebroadwan/contacts/internal/auth/domain"
	"github.com/aussiebroadwan/contacts/internal/auth/obs"
	"github.com/aussiebroadwan/contacts/internal/auth/store"
	"github.com/aussiebroadwan/contacts/pkg/cryptox"
	"github.com/aussiebroadwan/contacts/pkg/jwtx"
	"github.com/aussiebroadwan/contacts/pkg/slogx"
)

// Claim keys carried in token extras.
const (
	ExtraName                = "name"
	ExtraPasswordFingerprint = "pwd"
)

// ConfirmOutcome tells a caller whether ConfirmEmail changed anything.
type ConfirmOutcome int

const (
	Confirmed ConfirmOutcome = iota + 1
	AlreadyConfirmed
)

func (o ConfirmOutcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case AlreadyConfirmed:
		return "already_confirmed"
	default:
		return "unknown"
	}
}

// EmailQueue accepts transactional emails for delivery in the background.
type EmailQueue interface {
	Enqueue(ctx context.Context, msg domain.EmailMessage)
}

// SessionService issues and verifies the tokens that make up a session:
// access/refresh pairs for API calls and email-action tokens for
// confirmation and password reset.
type SessionService struct {
	Store   store.Store
	Codec   *jwtx.Codec
	Hasher  *cryptox.Hasher
	Emails  EmailQueue   // optional; email flows are no-ops without it
	Metrics *obs.Metrics // optional
}

// Login checks credentials and starts a new session. Any refresh token
// issued earlier stops working.
func (s *SessionService) Login(ctx context.Context, email, password string) (domain.TokenPair, error) {
	l := slogx.FromContext(ctx)
	email = normalizeEmail(email)

	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.Metrics.Login("unknown_email")
			return domain.TokenPair{}, ErrUnknownEmail
		}
		return domain.TokenPair{}, dependency("lookup user", err)
	}

	if !user.EmailConfirmed {
		s.Metrics.Login("email_not_confirmed")
		return domain.TokenPair{}, ErrEmailNotConfirmed
	}

	if err := s.Hasher.Verify(password, user.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			l.Warn("stored password hash could not be verified", slogx.Email(email), slog.Any("error", err))
		}
		s.Metrics.Login("bad_password")
		return domain.TokenPair{}, ErrBadPassword
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return domain.TokenPair{}, err
	}

	rt := RefreshTokens{Users: s.Store.Users()}
	if err := rt.Rotate(ctx, user, &pair.RefreshToken); err != nil {
		return domain.TokenPair{}, err
	}

	s.Metrics.Login("ok")
	l.Info("user logged in", slogx.Email(email))
	return pair, nil
}

// Refresh exchanges the current refresh token for a new pair. Presenting
// anything other than the stored token revokes the session and fails with
// ErrTokenReuseDetected, so the legitimate holder has to log in again.
func (s *SessionService) Refresh(ctx context.Context, presented string) (domain.TokenPair, error) {
	l := slogx.FromContext(ctx)

	claims, err := s.Codec.Decode(presented, jwtx.KindRefresh)
	if err != nil {
		s.Metrics.Refresh("invalid_token")
		return domain.TokenPair{}, err
	}

	var (
		pair   domain.TokenPair
		reused bool
	)
	// Reads inside the transaction go to the database, never the cache, so
	// a stale cached fingerprint cannot be mistaken for reuse.
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		rt := RefreshTokens{Users: tx.Users()}

		user, err := tx.Users().GetUserByEmail(ctx, claims.Subject)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrUnknownEmail
			}
			return dependency("lookup user", err)
		}

		if !rt.Matches(user, presented) {
			reused = true
			return rt.Rotate(ctx, user, nil)
		}

		next, err := s.issuePair(user)
		if err != nil {
			return err
		}
		ok, err := rt.RotateFrom(ctx, user, presented, &next.RefreshToken)
		if err != nil {
			return err
		}
		if !ok {
			reused = true
			return rt.Rotate(ctx, user, nil)
		}
		pair = next
		return nil
	})
	if err != nil {
		s.Metrics.Refresh("error")
		return domain.TokenPair{}, err
	}

	if reused {
		l.Warn("refresh token reuse detected, session revoked", slogx.Email(claims.Subject), slog.String("jti", claims.ID))
		s.Metrics.Refresh("reuse_detected")
		s.Metrics.ReuseDetected()
		return domain.TokenPair{}, ErrTokenReuseDetected
	}

	s.Metrics.Refresh("ok")
	return pair, nil
}

// Logout revokes the user's refresh token. Access tokens already handed out
// stay valid until they expire.
func (s *SessionService) Logout(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnknownEmail
		}
		return dependency("lookup user", err)
	}

	if err := (RefreshTokens{Users: s.Store.Users()}).Rotate(ctx, user, nil); err != nil {
		return err
	}
	slogx.FromContext(ctx).Info("user logged out", slogx.Email(email))
	return nil
}

// Authenticate verifies an access token and returns its claims.
func (s *SessionService) Authenticate(_ context.Context, accessToken string) (jwtx.Claims, error) {
	return s.Codec.Decode(accessToken, jwtx.KindAccess)
}

// RequestEmailAction mints an email-action token for email. Nothing is
// persisted.
func (s *SessionService) RequestEmailAction(_ context.Context, email string, extra map[string]string) (string, error) {
	token, _, err := s.Codec.Issue(jwtx.KindEmail, normalizeEmail(email), extra)
	if err != nil {
		return "", fmt.Errorf("issue email token: %w", err)
	}
	return token, nil
}

// ConfirmEmail marks the token's subject as confirmed. Confirming twice is
// not an error: the second call reports AlreadyConfirmed and writes nothing.
func (s *SessionService) ConfirmEmail(ctx context.Context, token string) (ConfirmOutcome, error) {
	claims, err := s.Codec.Decode(token, jwtx.KindEmail)
	if err != nil {
		s.Metrics.Confirmation("invalid_token")
		return 0, fmt.Errorf("%w: %w", ErrInvalidOrExpiredToken, err)
	}

	user, err := s.Store.Users().GetUserByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.Metrics.Confirmation("unknown_email")
			return 0, ErrUnknownEmail
		}
		return 0, dependency("lookup user", err)
	}

	if user.EmailConfirmed {
		s.Metrics.Confirmation(AlreadyConfirmed.String())
		return AlreadyConfirmed, nil
	}

	changed, err := s.Store.Users().ConfirmEmail(ctx, user.Email)
	if err != nil {
		return 0, dependency("confirm email", err)
	}
	if !changed {
		s.Metrics.Confirmation(AlreadyConfirmed.String())
		return AlreadyConfirmed, nil
	}

	s.Metrics.Confirmation(Confirmed.String())
	slogx.FromContext(ctx).Info("email confirmed", slogx.Email(user.Email))
	return Confirmed, nil
}

// SendConfirmation queues a fresh confirmation email. Unknown addresses
// succeed silently so the endpoint cannot be used to probe for accounts.
func (s *SessionService) SendConfirmation(ctx context.Context, email, baseURL string) error {
	user, err := s.Store.Users().GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slogx.FromContext(ctx).Debug("confirmation requested for unknown email", slogx.Email(email))
			return nil
		}
		return dependency("lookup user", err)
	}
	if user.EmailConfirmed {
		return ErrAlreadyConfirmed
	}
	return s.queueConfirmation(ctx, user, baseURL)
}

func (s *SessionService) queueConfirmation(ctx context.Context, user domain.User, baseURL string) error {
	token, err := s.RequestEmailAction(ctx, user.Email, nil)
	if err != nil {
		return err
	}
	s.enqueue(ctx, domain.EmailMessage{
		Kind:     domain.EmailConfirm,
		To:       user.Email,
		Username: user.Username,
		Token:    token,
		BaseURL:  baseURL,
	})
	return nil
}

// ForgotPassword queues a password reset email. The token embeds a
// fingerprint of the current password hash, so it stops working once the
// password changes.
func (s *SessionService) ForgotPassword(ctx context.Context, email, baseURL string) error {
	user, err := s.Store.Users().GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slogx.FromContext(ctx).Debug("password reset requested for unknown email", slogx.Email(email))
			return nil
		}
		return dependency("lookup user", err)
	}

	token, err := s.RequestEmailAction(ctx, user.Email, map[string]string{
		ExtraPasswordFingerprint: cryptox.FingerprintToken(user.PasswordHash),
	})
	if err != nil {
		return err
	}
	s.enqueue(ctx, domain.EmailMessage{
		Kind:     domain.EmailResetPassword,
		To:       user.Email,
		Username: user.Username,
		Token:    token,
		BaseURL:  baseURL,
	})
	return nil
}

// ResetPassword sets a new password using a token from ForgotPassword. The
// refresh token is cleared in the same write, ending any open session.
func (s *SessionService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	claims, err := s.Codec.Decode(token, jwtx.KindEmail)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOrExpiredToken, err)
	}
	pwd, ok := claims.Get(ExtraPasswordFingerprint)
	if !ok {
		return fmt.Errorf("%w: not a password reset token", ErrInvalidOrExpiredToken)
	}

	user, err := s.Store.Users().GetUserByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnknownEmail
		}
		return dependency("lookup user", err)
	}
	if !cryptox.FingerprintMatches(pwd, user.PasswordHash) {
		return fmt.Errorf("%w: token already used", ErrInvalidOrExpiredToken)
	}

	hash, err := s.Hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	replaced, err := s.Store.Users().ReplacePasswordHash(ctx, user.Email, user.PasswordHash, hash)
	if err != nil {
		return dependency("replace password", err)
	}
	if !replaced {
		return fmt.Errorf("%w: token already used", ErrInvalidOrExpiredToken)
	}

	slogx.FromContext(ctx).Info("password reset", slogx.Email(user.Email))
	return nil
}

func (s *SessionService) issuePair(user domain.User) (domain.TokenPair, error) {
	access, _, err := s.Codec.Issue(jwtx.KindAccess, user.Email, map[string]string{ExtraName: user.Username})
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, _, err := s.Codec.Issue(jwtx.KindRefresh, user.Email, nil)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    domain.TokenTypeBearer,
		ExpiresIn:    int64(s.Codec.TTL(jwtx.KindAccess).Seconds()),
	}, nil
}

func (s *SessionService) enqueue(ctx context.Context, msg domain.EmailMessage) {
	if s.Emails == nil {
		slogx.FromContext(ctx).Warn("no email queue configured, dropping message",
			slog.String("kind", string(msg.Kind)), slogx.Email(msg.To))
		return
	}
	s.Emails.Enqueue(ctx, msg)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
