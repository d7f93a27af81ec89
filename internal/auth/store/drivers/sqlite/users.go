package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/contacts/internal/auth/domain"
	"github.com/aussiebroadwan/contacts/internal/auth/store"
	"github.com/aussiebroadwan/contacts/internal/auth/store/drivers/sqlite/gen"
)

type usersRepo struct {
	q   *gen.Queries
	now func() time.Time
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row, err := r.q.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return mapUser(row), nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := r.now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	err := r.q.CreateUser(ctx, gen.CreateUserParams{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		PasswordHash:   u.PasswordHash,
		Avatar:         u.Avatar,
		EmailConfirmed: u.EmailConfirmed,
		CreatedAt:      u.CreatedAt.UTC(),
		UpdatedAt:      now,
	})
	return mapConstraint(err)
}

func (r *usersRepo) UpdateRefreshToken(ctx context.Context, email string, hash *string) error {
	n, err := r.q.UpdateUserRefreshToken(ctx, gen.UpdateUserRefreshTokenParams{
		RefreshTokenHash: mapOptionalString(hash),
		UpdatedAt:        r.now(),
		Email:            email,
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) SwapRefreshToken(ctx context.Context, email, prev string, next *string) (bool, error) {
	n, err := r.q.SwapUserRefreshToken(ctx, gen.SwapUserRefreshTokenParams{
		RefreshTokenHash:   mapOptionalString(next),
		UpdatedAt:          r.now(),
		Email:              email,
		RefreshTokenHash_2: mapOptionalString(&prev),
	})
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *usersRepo) ConfirmEmail(ctx context.Context, email string) (bool, error) {
	n, err := r.q.ConfirmUserEmail(ctx, gen.ConfirmUserEmailParams{
		UpdatedAt: r.now(),
		Email:     email,
	})
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *usersRepo) ReplacePasswordHash(ctx context.Context, email, prev, next string) (bool, error) {
	n, err := r.q.ReplaceUserPasswordHash(ctx, gen.ReplaceUserPasswordHashParams{
		PasswordHash:   next,
		UpdatedAt:      r.now(),
		Email:          email,
		PasswordHash_2: prev,
	})
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *usersRepo) UpdateAvatar(ctx context.Context, email, url string) error {
	n, err := r.q.UpdateUserAvatar(ctx, gen.UpdateUserAvatarParams{
		Avatar:    url,
		UpdatedAt: r.now(),
		Email:     email,
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) DeleteUnconfirmedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	return r.q.DeleteUnconfirmedUsersBefore(ctx, cutoff.UTC())
}
