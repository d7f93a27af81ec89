package postgres

import (
	"context"
	"time"

	"github.com/aussiebroadwan/contacts/internal/auth/domain"
	"github.com/aussiebroadwan/contacts/internal/auth/store"
	"github.com/jackc/pgx/v5"
)

type usersRepo struct {
	q            querier
	queryTimeout time.Duration
}

func (r *usersRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.queryTimeout)
}

const userColumns = `id, username, email, password_hash, avatar, refresh_token_hash, email_confirmed, created_at, updated_at`

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	u, err := scanUser(r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := r.q.Exec(ctx, `
		INSERT INTO users (id, username, email, password_hash, avatar, email_confirmed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`, u.ID, u.Username, u.Email, u.PasswordHash, u.Avatar, u.EmailConfirmed, createdAt)
	return mapConstraint(err)
}

func (r *usersRepo) UpdateRefreshToken(ctx context.Context, email string, hash *string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tag, err := r.q.Exec(ctx, `
		UPDATE users SET refresh_token_hash = $1, updated_at = now()
		WHERE email = $2
	`, hash, email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SwapRefreshToken relies on the row lock taken by UPDATE: a concurrent
// swap from the same predecessor blocks, then re-evaluates the WHERE
// clause against the committed value and matches nothing.
func (r *usersRepo) SwapRefreshToken(ctx context.Context, email, prev string, next *string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tag, err := r.q.Exec(ctx, `
		UPDATE users SET refresh_token_hash = $1, updated_at = now()
		WHERE email = $2 AND refresh_token_hash = $3
	`, next, email, prev)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *usersRepo) ConfirmEmail(ctx context.Context, email string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tag, err := r.q.Exec(ctx, `
		UPDATE users SET email_confirmed = TRUE, updated_at = now()
		WHERE email = $1 AND NOT email_confirmed
	`, email)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *usersRepo) ReplacePasswordHash(ctx context.Context, email, prev, next string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tag, err := r.q.Exec(ctx, `
		UPDATE users SET password_hash = $1, refresh_token_hash = NULL, updated_at = now()
		WHERE email = $2 AND password_hash = $3
	`, next, email, prev)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *usersRepo) UpdateAvatar(ctx context.Context, email, url string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tag, err := r.q.Exec(ctx, `
		UPDATE users SET avatar = $1, updated_at = now()
		WHERE email = $2
	`, url, email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) DeleteUnconfirmedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.q.Query(ctx, `
		DELETE FROM users
		WHERE NOT email_confirmed AND created_at < $1
		RETURNING email
	`, cutoff)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
