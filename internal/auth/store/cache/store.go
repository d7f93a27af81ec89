// Package cache decorates a store.Store with a read-through user cache.
//
// Only GetUserByEmail outside a transaction is served from the cache. Every
// write goes to the wrapped store first and then evicts the affected key, so
// the cache never holds data newer than the database. Reads inside a
// transaction always hit the database.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/contacts/internal/auth/domain"
	"github.com/aussiebroadwan/contacts/internal/auth/store"
)

// DefaultTTL is how long a cached user lives.
const DefaultTTL = 5 * time.Minute

const keyPrefix = "contacts:user:"

// Observer receives hit/miss notifications. It may be nil.
type Observer interface {
	CacheHit()
	CacheMiss()
}

// Store wraps an inner store.Store. Methods not overridden here (Close,
// Ping, ApplyMigrations) go straight to the inner store.
type Store struct {
	store.Store

	kv     KV
	ttl    time.Duration
	logger *slog.Logger
	obs    Observer

	// evictions counts evict calls. A read that saw the counter move while
	// it was loading from the database does not populate the cache.
	evictions atomic.Uint64
}

// New returns a caching decorator around inner.
func New(inner store.Store, kv KV, ttl time.Duration, logger *slog.Logger, obs Observer) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{Store: inner, kv: kv, ttl: ttl, logger: logger, obs: obs}
}

func key(email string) string { return keyPrefix + email }

func (s *Store) Users() store.Users {
	return &users{inner: s.Store.Users(), c: s, readThrough: true}
}

// Tx returns a transaction whose writes are evicted from the cache once it
// commits.
func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := s.Store.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &txStore{inner: tx, c: s, ctx: ctx}, nil
}

// WithTx runs fn in a transaction of the inner store and evicts every user
// it wrote to, whether or not the transaction committed.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	var dirty []string
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		wrapped := &txStore{inner: tx, c: s, ctx: ctx}
		defer func() { dirty = wrapped.dirty }()
		return fn(wrapped)
	})
	s.evict(ctx, dirty...)
	return err
}

func (s *Store) lookup(ctx context.Context, email string) (domain.User, bool) {
	b, err := s.kv.Get(ctx, key(email))
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			s.logger.Warn("user cache get failed", "error", err)
		}
		return domain.User{}, false
	}

	var u domain.User
	if err := json.Unmarshal(b, &u); err != nil {
		s.logger.Warn("user cache entry unreadable", "error", err)
		s.evict(ctx, email)
		return domain.User{}, false
	}
	return u, true
}

func (s *Store) remember(ctx context.Context, u domain.User) {
	b, err := json.Marshal(u)
	if err != nil {
		return
	}
	if err := s.kv.Set(ctx, key(u.Email), b, s.ttl); err != nil {
		s.logger.Warn("user cache set failed", "error", err)
	}
}

// evict removes emails from the cache. Failures are logged only; the TTL
// bounds how long a stale entry can survive.
func (s *Store) evict(ctx context.Context, emails ...string) {
	if len(emails) == 0 {
		return
	}
	s.evictions.Add(1)
	keys := make([]string, len(emails))
	for i, e := range emails {
		keys[i] = key(e)
	}
	if err := s.kv.Del(context.WithoutCancel(ctx), keys...); err != nil {
		s.logger.Warn("user cache evict failed", "error", err, "keys", len(keys))
	}
}

func (s *Store) hit() {
	if s.obs != nil {
		s.obs.CacheHit()
	}
}

func (s *Store) miss() {
	if s.obs != nil {
		s.obs.CacheMiss()
	}
}

var _ store.Tx = (*txStore)(nil)

// txStore records the users written through it and evicts them once the
// transaction commits or rolls back.
type txStore struct {
	inner store.Tx

	c     *Store
	ctx   context.Context
	dirty []string
}

func (t *txStore) Users() store.Users {
	return &users{inner: t.inner.Users(), c: t.c, record: func(emails ...string) {
		t.dirty = append(t.dirty, emails...)
	}}
}

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) { return t.inner.Tx(ctx) }

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return t.inner.WithTx(ctx, fn)
}

func (t *txStore) ApplyMigrations() error         { return t.inner.ApplyMigrations() }
func (t *txStore) Close() error                   { return t.inner.Close() }
func (t *txStore) Ping(ctx context.Context) error { return t.inner.Ping(ctx) }

func (t *txStore) Commit() error {
	err := t.inner.Commit()
	t.flush()
	return err
}

func (t *txStore) Rollback() error {
	err := t.inner.Rollback()
	t.flush()
	return err
}

func (t *txStore) flush() {
	t.c.evict(t.ctx, t.dirty...)
	t.dirty = nil
}
