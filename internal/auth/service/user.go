package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/aussiebroadwan/contacts/internal/auth/domain"
	"github.com/aussiebroadwan/contacts/internal/auth/store"
	"github.com/aussiebroadwan/contacts/pkg/cryptox"
	"github.com/aussiebroadwan/contacts/pkg/idx"
	"github.com/aussiebroadwan/contacts/pkg/slogx"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 50
	MinPasswordLength = 6
	MaxPasswordLength = 128
)

// AvatarUploader stores an avatar image and returns its public URL.
type AvatarUploader interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

var avatarExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type UserService struct {
	Store    store.Store
	Hasher   *cryptox.Hasher
	Sessions *SessionService
	Avatars  AvatarUploader // optional
}

type SignupInput struct {
	Username string
	Email    string
	Password string
	BaseURL  string // used to build the confirmation link
}

// Signup creates an unconfirmed account and queues its confirmation email.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (domain.User, error) {
	username := strings.TrimSpace(in.Username)
	if n := len(username); n < MinUsernameLength || n > MaxUsernameLength {
		return domain.User{}, fmt.Errorf("%w: username must be %d to %d characters", ErrInvalidInput, MinUsernameLength, MaxUsernameLength)
	}
	email := normalizeEmail(in.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return domain.User{}, fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	if err := validatePassword(in.Password); err != nil {
		return domain.User{}, err
	}

	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Avatar:       GravatarURL(email),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, dependency("create user", err)
	}

	slogx.FromContext(ctx).Info("user signed up", slogx.Email(email))

	if s.Sessions != nil {
		if err := s.Sessions.queueConfirmation(ctx, user, in.BaseURL); err != nil {
			return domain.User{}, err
		}
	}
	return user, nil
}

// Me returns the account behind an authenticated email.
func (s *UserService) Me(ctx context.Context, email string) (domain.User, error) {
	user, err := s.Store.Users().GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUnknownEmail
		}
		return domain.User{}, dependency("lookup user", err)
	}
	return user, nil
}

// UpdateAvatar uploads a new avatar image and points the account at it.
func (s *UserService) UpdateAvatar(ctx context.Context, email string, body io.Reader, contentType string) (domain.User, error) {
	if s.Avatars == nil {
		return domain.User{}, ErrAvatarsDisabled
	}
	ext, ok := avatarExtensions[strings.ToLower(contentType)]
	if !ok {
		return domain.User{}, fmt.Errorf("%w: %q", ErrUnsupportedMedia, contentType)
	}

	user, err := s.Me(ctx, email)
	if err != nil {
		return domain.User{}, err
	}

	suffix, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return domain.User{}, err
	}
	key := "avatars/" + user.ID + "/" + suffix + ext

	url, err := s.Avatars.Upload(ctx, key, body, contentType)
	if err != nil {
		return domain.User{}, dependency("upload avatar", err)
	}
	if err := s.Store.Users().UpdateAvatar(ctx, user.Email, url); err != nil {
		return domain.User{}, dependency("update avatar", err)
	}

	user.Avatar = url
	return user, nil
}

// GravatarURL is the default avatar for a new account.
func GravatarURL(email string) string {
	sum := md5.Sum([]byte(normalizeEmail(email)))
	return "https://www.gravatar.com/avatar/" + hex.EncodeToString(sum[:]) + "?d=identicon"
}

func validatePassword(password string) error {
	if n := len(password); n < MinPasswordLength || n > MaxPasswordLength {
		return fmt.Errorf("%w: password must be %d to %d characters", ErrInvalidInput, MinPasswordLength, MaxPasswordLength)
	}
	return nil
}
