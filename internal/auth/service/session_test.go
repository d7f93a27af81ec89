package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/contacts/internal/auth/domain"
	"github.com/aussiebroadwan/contacts/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/contacts/pkg/cryptox"
	"github.com/aussiebroadwan/contacts/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingQueue struct {
	mu   sync.Mutex
	msgs []domain.EmailMessage
}

func (q *recordingQueue) Enqueue(_ context.Context, msg domain.EmailMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, msg)
}

func (q *recordingQueue) last(t *testing.T) domain.EmailMessage {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	require.NotEmpty(t, q.msgs, "no email was queued")
	return q.msgs[len(q.msgs)-1]
}

func (q *recordingQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}

type fixture struct {
	store    *sqlite.Store
	clock    *clock
	emails   *recordingQueue
	sessions *SessionService
	users    *UserService
}

var testParams = cryptox.Params{Memory: 64, Iterations: 1, Parallelism: 1, KeyLength: 32, SaltLength: 16}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	clk := &clock{now: time.Now().Truncate(time.Second)}
	codec, err := jwtx.NewCodec(jwtx.CodecConfig{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		Issuer: "contacts-test",
		Now:    clk.Now,
	})
	require.NoError(t, err)

	hasher := cryptox.NewHasher("test-pepper", testParams)
	emails := &recordingQueue{}
	sessions := &SessionService{Store: st, Codec: codec, Hasher: hasher, Emails: emails}

	return &fixture{
		store:    st,
		clock:    clk,
		emails:   emails,
		sessions: sessions,
		users:    &UserService{Store: st, Hasher: hasher, Sessions: sessions},
	}
}

// addUser inserts an account directly, bypassing signup.
func (f *fixture) addUser(t *testing.T, email, password string, confirmed bool) domain.User {
	t.Helper()
	hash, err := f.sessions.Hasher.Hash(password)
	require.NoError(t, err)

	u := domain.User{
		ID:             "id-" + email,
		Username:       "user",
		Email:          email,
		PasswordHash:   hash,
		EmailConfirmed: confirmed,
	}
	require.NoError(t, f.store.Users().CreateUser(context.Background(), u))
	return u
}

func (f *fixture) user(t *testing.T, email string) domain.User {
	t.Helper()
	u, err := f.store.Users().GetUserByEmail(context.Background(), email)
	require.NoError(t, err)
	return u
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "ada@example.com", "secret-pw", true)
	f.addUser(t, "pending@example.com", "secret-pw", false)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"unknown email", "nobody@example.com", "secret-pw", ErrUnknownEmail},
		{"unconfirmed", "pending@example.com", "secret-pw", ErrEmailNotConfirmed},
		{"bad password", "ada@example.com", "secret-pX", ErrBadPassword},
		{"empty password", "ada@example.com", "", ErrBadPassword},
		{"ok", "ada@example.com", "secret-pw", nil},
		{"email is normalised", "  ADA@Example.com ", "secret-pw", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, err := f.sessions.Login(context.Background(), tt.email, tt.password)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Empty(t, pair.AccessToken)
				return
			}
			require.NoError(t, err)
			require.Equal(t, domain.TokenTypeBearer, pair.TokenType)
			require.Equal(t, int64(jwtx.DefaultAccessTokenTTL.Seconds()), pair.ExpiresIn)

			access, err := f.sessions.Codec.Decode(pair.AccessToken, jwtx.KindAccess)
			require.NoError(t, err)
			require.Equal(t, "ada@example.com", access.Subject)
			name, ok := access.Get(ExtraName)
			require.True(t, ok)
			require.Equal(t, "user", name)

			u := f.user(t, "ada@example.com")
			require.True(t, u.HasSession())
			require.Equal(t, cryptox.FingerprintToken(pair.RefreshToken), *u.RefreshTokenHash)
		})
	}
}

func TestLogin_RequiresConfirmedEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "a@x.com", "secret-pw", false)

	_, err := f.sessions.Login(ctx, "a@x.com", "secret-pw")
	require.ErrorIs(t, err, ErrEmailNotConfirmed)

	token, err := f.sessions.RequestEmailAction(ctx, "a@x.com", nil)
	require.NoError(t, err)

	outcome, err := f.sessions.ConfirmEmail(ctx, token)
	require.NoError(t, err)
	require.Equal(t, Confirmed, outcome)

	pair, err := f.sessions.Login(ctx, "a@x.com", "secret-pw")
	require.NoError(t, err)

	claims, err := f.sessions.Codec.Decode(pair.AccessToken, jwtx.KindAccess)
	require.NoError(t, err)
	require.Equal(t, "a@x.com", claims.Subject)
	claims, err = f.sessions.Codec.Decode(pair.RefreshToken, jwtx.KindRefresh)
	require.NoError(t, err)
	require.Equal(t, "a@x.com", claims.Subject)
}

func TestRefresh_Rotates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "ada@example.com", "secret-pw", true)

	first, err := f.sessions.Login(ctx, "ada@example.com", "secret-pw")
	require.NoError(t, err)

	second, err := f.sessions.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.Equal(t, cryptox.FingerprintToken(second.RefreshToken), *f.user(t, "ada@example.com").RefreshTokenHash)

	third, err := f.sessions.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, third.AccessToken)
}

func TestRefresh_SupersededTokenRevokesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "ada@example.com", "secret-pw", true)

	old, err := f.sessions.Login(ctx, "ada@example.com", "secret-pw")
	require.NoError(t, err)
	current, err := f.sessions.Login(ctx, "ada@example.com", "secret-pw")
	require.NoError(t, err)

	_, err = f.sessions.Refresh(ctx, old.RefreshToken)
	require.ErrorIs(t, err, ErrTokenReuseDetected)
	require.False(t, f.user(t, "ada@example.com").HasSession())

	// The legitimate token is gone too until the next login.
	_, err = f.sessions.Refresh(ctx, current.RefreshToken)
	require.ErrorIs(t, err, ErrTokenReuseDetected)

	again, err := f.sessions.Login(ctx, "ada@example.com", "secret-pw")
	require.NoError(t, err)
	_, err = f.sessions.Refresh(ctx, again.RefreshToken)
	require.NoError(t, err)
}

func TestRefresh_ReplayAfterRotation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "ada@example.com", "secret-pw", true)

	pair, err := f.sessions.Login(ctx, "ada@example.com", "secret-pw")
	require.NoError(t, err)
	_, err = f.sessions.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	_, err = f.sessions.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenReuseDetected)
	require.False(t, f.user(t, "ada@example.com").HasSession())
}

func TestRefresh_ConcurrentUseHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "ada@example.com", "secret-pw", true)

	pair, err := f.sessions.Login(ctx, "ada@example.com", "secret-pw")
	require.NoError(t, err)

	const n = 4
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.sessions.Refresh(ctx, pair.RefreshToken)
		}()
	}
	wg.Wait()

	var ok, reused int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case err == ErrTokenReuseDetected:
			reused++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, n-1, reused)
}

func TestRefresh_TokenErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "ada@example.com", "secret-pw", true)

	pair, err := f.sessions.Login(ctx, "ada@example.com", "secret-pw")
	require.NoError(t, err)

	t.Run("access token", func(t *testing.T) {
		_, err := f.sessions.Refresh(ctx, pair.AccessToken)
		require.ErrorIs(t, err, jwtx.ErrWrongKind)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := f.sessions.Refresh(ctx, "not-a-jwt")
		require.ErrorIs(t, err, jwtx.ErrMalformed)
	})

	t.Run("foreign signature", func(t *testing.T) {
		other, err := jwtx.NewCodec(jwtx.CodecConfig{Secret: []byte("another-secret-of-32-bytes-long!"), Issuer: "contacts-test"})
		require.NoError(t, err)
		forged, _, err := other.Issue(jwtx.KindRefresh, "ada@example.com", nil)
		require.NoError(t, err)

		_, err = f.sessions.Refresh(ctx, forged)
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("unknown subject", func(t *testing.T) {
		token, _, err := f.sessions.Codec.Issue(jwtx.KindRefresh, "ghost@example.com", nil)
		require.NoError(t, err)
		_, err = f.sessions.Refresh(ctx, token)
		require.ErrorIs(t, err, ErrUnknownEmail)
	})

	// Keep this last: it moves the clock past every token above.
	t.Run("expired", func(t *testing.T) {
		f.clock.Advance(jwtx.DefaultRefreshTokenTTL + time.Second)
		_, err := f.sessions.Refresh(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, jwtx.ErrExpired)
		require.True(t, f.user(t, "ada@example.com").HasSession(), "an expired token is not reuse")
	})
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "ada@example.com", "secret-pw", true)

	pair, err := f.sessions.Login(ctx, "ada@example.com", "secret-pw")
	require.NoError(t, err)

	require.NoError(t, f.sessions.Logout(ctx, "ada@example.com"))
	require.False(t, f.user(t, "ada@example.com").HasSession())

	_, err = f.sessions.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenReuseDetected)

	require.ErrorIs(t, f.sessions.Logout(ctx, "nobody@example.com"), ErrUnknownEmail)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "ada@example.com", "secret-pw", true)

	pair, err := f.sessions.Login(ctx, "ada@example.com", "secret-pw")
	require.NoError(t, err)

	claims, err := f.sessions.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", claims.Subject)
	require.Equal(t, jwtx.KindAccess, claims.Kind)

	_, err = f.sessions.Authenticate(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, jwtx.ErrWrongKind)

	f.clock.Advance(jwtx.DefaultAccessTokenTTL + time.Second)
	_, err = f.sessions.Authenticate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, jwtx.ErrExpired)
}

func TestRequestEmailAction_HasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "ada@example.com", "secret-pw", false)
	before := f.user(t, "ada@example.com")

	token, err := f.sessions.RequestEmailAction(ctx, "Ada@Example.com", map[string]string{"purpose": "test"})
	require.NoError(t, err)

	claims, err := f.sessions.Codec.Decode(token, jwtx.KindEmail)
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", claims.Subject)
	purpose, _ := claims.Get("purpose")
	require.Equal(t, "test", purpose)

	require.Equal(t, before, f.user(t, "ada@example.com"))
	require.Zero(t, f.emails.count())
}

func TestConfirmEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "ada@example.com", "secret-pw", false)

	token, err := f.sessions.RequestEmailAction(ctx, "ada@example.com", nil)
	require.NoError(t, err)

	outcome, err := f.sessions.ConfirmEmail(ctx, token)
	require.NoError(t, err)
	require.Equal(t, Confirmed, outcome)
	confirmed := f.user(t, "ada@example.com")
	require.True(t, confirmed.EmailConfirmed)

	outcome, err = f.sessions.ConfirmEmail(ctx, token)
	require.NoError(t, err)
	require.Equal(t, AlreadyConfirmed, outcome)
	require.Equal(t, confirmed.UpdatedAt, f.user(t, "ada@example.com").UpdatedAt, "second confirmation must not write")
}

func TestConfirmEmail_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "ada@example.com", "secret-pw", true)

	pair, err := f.sessions.Login(ctx, "ada@example.com", "secret-pw")
	require.NoError(t, err)
	ghost, err := f.sessions.RequestEmailAction(ctx, "ghost@example.com", nil)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr []error
	}{
		{"malformed", "garbage", []error{ErrInvalidOrExpiredToken, jwtx.ErrMalformed}},
		{"wrong kind", pair.AccessToken, []error{ErrInvalidOrExpiredToken, jwtx.ErrWrongKind}},
		{"unknown email", ghost, []error{ErrUnknownEmail}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.sessions.ConfirmEmail(ctx, tt.token)
			for _, want := range tt.wantErr {
				require.ErrorIs(t, err, want)
			}
		})
	}

	t.Run("expired", func(t *testing.T) {
		f.addUser(t, "late@example.com", "secret-pw", false)
		token, err := f.sessions.RequestEmailAction(ctx, "late@example.com", nil)
		require.NoError(t, err)

		f.clock.Advance(jwtx.DefaultEmailTokenTTL + time.Second)
		_, err = f.sessions.ConfirmEmail(ctx, token)
		require.ErrorIs(t, err, ErrInvalidOrExpiredToken)
		require.ErrorIs(t, err, jwtx.ErrExpired)
		require.False(t, f.user(t, "late@example.com").EmailConfirmed)
	})
}

func TestSendConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "pending@example.com", "secret-pw", false)
	f.addUser(t, "done@example.com", "secret-pw", true)

	require.NoError(t, f.sessions.SendConfirmation(ctx, "nobody@example.com", "http://localhost"))
	require.Zero(t, f.emails.count())

	require.ErrorIs(t, f.sessions.SendConfirmation(ctx, "done@example.com", "http://localhost"), ErrAlreadyConfirmed)
	require.Zero(t, f.emails.count())

	require.NoError(t, f.sessions.SendConfirmation(ctx, "pending@example.com", "http://localhost/"))
	msg := f.emails.last(t)
	require.Equal(t, domain.EmailConfirm, msg.Kind)
	require.Equal(t, "pending@example.com", msg.To)
	require.Equal(t, "http://localhost/api/auth/confirmed_email/"+msg.Token, msg.Link())

	outcome, err := f.sessions.ConfirmEmail(ctx, msg.Token)
	require.NoError(t, err)
	require.Equal(t, Confirmed, outcome)
}

func TestPasswordReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "ada@example.com", "old-password", true)

	pair, err := f.sessions.Login(ctx, "ada@example.com", "old-password")
	require.NoError(t, err)

	require.NoError(t, f.sessions.ForgotPassword(ctx, "nobody@example.com", "http://localhost"))
	require.Zero(t, f.emails.count())

	require.NoError(t, f.sessions.ForgotPassword(ctx, "ada@example.com", "http://localhost"))
	msg := f.emails.last(t)
	require.Equal(t, domain.EmailResetPassword, msg.Kind)

	require.ErrorIs(t, f.sessions.ResetPassword(ctx, msg.Token, "short"), ErrInvalidInput)

	require.NoError(t, f.sessions.ResetPassword(ctx, msg.Token, "new-password"))
	require.False(t, f.user(t, "ada@example.com").HasSession(), "reset ends the session")

	_, err = f.sessions.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenReuseDetected)

	_, err = f.sessions.Login(ctx, "ada@example.com", "old-password")
	require.ErrorIs(t, err, ErrBadPassword)
	_, err = f.sessions.Login(ctx, "ada@example.com", "new-password")
	require.NoError(t, err)

	err = f.sessions.ResetPassword(ctx, msg.Token, "another-password")
	require.ErrorIs(t, err, ErrInvalidOrExpiredToken, "reset tokens are single use")
}

func TestResetPassword_RejectsConfirmationTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "ada@example.com", "old-password", true)

	token, err := f.sessions.RequestEmailAction(ctx, "ada@example.com", nil)
	require.NoError(t, err)

	err = f.sessions.ResetPassword(ctx, token, "new-password")
	require.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestSession_DependencyFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Close())

	_, err := f.sessions.Login(ctx, "ada@example.com", "secret-pw")
	require.ErrorIs(t, err, ErrDependencyFailure)

	_, err = f.users.Me(ctx, "ada@example.com")
	require.ErrorIs(t, err, ErrDependencyFailure)
}
