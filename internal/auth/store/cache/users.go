package cache

import (
	"context"
	"time"

	"github.com/aussiebroadwan/contacts/internal/auth/domain"
	"github.com/aussiebroadwan/contacts/internal/auth/store"
)

type users struct {
	inner       store.Users
	c           *Store
	readThrough bool

	// record defers eviction until the enclosing transaction ends. When nil
	// eviction happens right after the write.
	record func(emails ...string)
}

func (u *users) touched(ctx context.Context, emails ...string) {
	if u.record != nil {
		u.record(emails...)
		return
	}
	u.c.evict(ctx, emails...)
}

func (u *users) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	if !u.readThrough {
		return u.inner.GetUserByEmail(ctx, email)
	}

	if cached, ok := u.c.lookup(ctx, email); ok {
		u.c.hit()
		return cached, nil
	}
	u.c.miss()

	epoch := u.c.evictions.Load()
	user, err := u.inner.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, err
	}
	if u.c.evictions.Load() == epoch {
		u.c.remember(ctx, user)
	}
	return user, nil
}

func (u *users) CreateUser(ctx context.Context, user domain.User) error {
	err := u.inner.CreateUser(ctx, user)
	u.touched(ctx, user.Email)
	return err
}

func (u *users) UpdateRefreshToken(ctx context.Context, email string, hash *string) error {
	err := u.inner.UpdateRefreshToken(ctx, email, hash)
	u.touched(ctx, email)
	return err
}

func (u *users) SwapRefreshToken(ctx context.Context, email, prev string, next *string) (bool, error) {
	ok, err := u.inner.SwapRefreshToken(ctx, email, prev, next)
	u.touched(ctx, email)
	return ok, err
}

func (u *users) ConfirmEmail(ctx context.Context, email string) (bool, error) {
	ok, err := u.inner.ConfirmEmail(ctx, email)
	u.touched(ctx, email)
	return ok, err
}

func (u *users) ReplacePasswordHash(ctx context.Context, email, prev, next string) (bool, error) {
	ok, err := u.inner.ReplacePasswordHash(ctx, email, prev, next)
	u.touched(ctx, email)
	return ok, err
}

func (u *users) UpdateAvatar(ctx context.Context, email, url string) error {
	err := u.inner.UpdateAvatar(ctx, email, url)
	u.touched(ctx, email)
	return err
}

func (u *users) DeleteUnconfirmedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	deleted, err := u.inner.DeleteUnconfirmedBefore(ctx, cutoff)
	u.touched(ctx, deleted...)
	return deleted, err
}
