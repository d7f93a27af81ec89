package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/contacts/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this, and the cache package decorates it. Sub-repositories are
// exposed as methods so a Tx-scoped Store can hand out the same repos bound
// to the transaction.
type Store interface {
	Users() Users

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Users is keyed by email, the identity every token carries as its subject.
// Emails are expected to be normalised (trimmed, lower case) by the caller.
type Users interface {
	// GetUserByEmail returns ErrNotFound when no account uses email.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	// Returns ErrAlreadyExists when the email is taken.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateRefreshToken unconditionally replaces the stored refresh token
	// fingerprint; nil clears it.
	UpdateRefreshToken(ctx context.Context, email string, hash *string) error

	// SwapRefreshToken replaces the stored fingerprint only while it still
	// equals prev. It reports false when another writer got there first.
	SwapRefreshToken(ctx context.Context, email, prev string, next *string) (bool, error)

	// ConfirmEmail flips email_confirmed. It reports false when the flag
	// was already set or the user does not exist.
	ConfirmEmail(ctx context.Context, email string) (bool, error)

	// ReplacePasswordHash sets a new password hash while the stored one
	// still equals prev and clears the refresh token in the same write.
	ReplacePasswordHash(ctx context.Context, email, prev, next string) (bool, error)

	// UpdateAvatar stores the public avatar URL.
	UpdateAvatar(ctx context.Context, email, url string) error

	// DeleteUnconfirmedBefore removes accounts that never confirmed their
	// email and were created before cutoff. It returns the removed emails.
	DeleteUnconfirmedBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}
