package jwtx_test

import (
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/contacts/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// clock is a settable time source. Times are whole seconds since JWT
// NumericDate has second precision.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
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

func newCodec(t *testing.T, clk *clock, mutate ...func(*jwtx.CodecConfig)) *jwtx.Codec {
	t.Helper()
	cfg := jwtx.CodecConfig{
		Secret:     testSecret,
		Algorithm:  jwtx.AlgHS256,
		Issuer:     "contacts",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		EmailTTL:   24 * time.Hour,
		Now:        clk.Now,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := jwtx.NewCodec(cfg)
	require.NoError(t, err)
	return c
}

func TestNewCodec_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     jwtx.CodecConfig
		wantErr bool
	}{
		{"hs256", jwtx.CodecConfig{Secret: testSecret, Algorithm: "HS256"}, false},
		{"hs512", jwtx.CodecConfig{Secret: testSecret, Algorithm: "HS512"}, false},
		{"default algorithm", jwtx.CodecConfig{Secret: testSecret}, false},
		{"unsupported algorithm", jwtx.CodecConfig{Secret: testSecret, Algorithm: "RS256"}, true},
		{"none algorithm", jwtx.CodecConfig{Secret: testSecret, Algorithm: "none"}, true},
		{"empty secret", jwtx.CodecConfig{Algorithm: "HS256"}, true},
		{"short secret", jwtx.CodecConfig{Secret: []byte("short"), Algorithm: "HS256"}, true},
		{"negative ttl", jwtx.CodecConfig{Secret: testSecret, AccessTTL: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := jwtx.NewCodec(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNewCodec_DefaultTTLs(t *testing.T) {
	c, err := jwtx.NewCodec(jwtx.CodecConfig{Secret: testSecret})
	require.NoError(t, err)

	require.Equal(t, jwtx.DefaultAccessTokenTTL, c.TTL(jwtx.KindAccess))
	require.Equal(t, jwtx.DefaultRefreshTokenTTL, c.TTL(jwtx.KindRefresh))
	require.Equal(t, jwtx.DefaultEmailTokenTTL, c.TTL(jwtx.KindEmail))
	require.Equal(t, "HS256", c.Alg())
}

func TestCodec_RoundTrip(t *testing.T) {
	for _, alg := range []string{jwtx.AlgHS256, jwtx.AlgHS512} {
		for _, kind := range []jwtx.Kind{jwtx.KindAccess, jwtx.KindRefresh, jwtx.KindEmail} {
			t.Run(alg+"/"+kind.String(), func(t *testing.T) {
				clk := newClock()
				c := newCodec(t, clk, func(cfg *jwtx.CodecConfig) { cfg.Algorithm = alg })

				token, issued, err := c.Issue(kind, "ada@example.com", map[string]string{"name": "Ada"})
				require.NoError(t, err)

				got, err := c.Decode(token, kind)
				require.NoError(t, err)
				require.Equal(t, "ada@example.com", got.Subject)
				require.Equal(t, kind, got.Kind)
				require.Equal(t, "contacts", got.Issuer)
				require.Equal(t, issued.ID, got.ID)
				require.Equal(t, clk.Now().Add(c.TTL(kind)).Unix(), got.ExpiresAt.Unix())
				require.True(t, got.ExpiresAt.After(got.IssuedAt.Time))

				name, ok := got.Get("name")
				require.True(t, ok)
				require.Equal(t, "Ada", name)
			})
		}
	}
}

func TestCodec_Encode_RejectsNonPositiveTTL(t *testing.T) {
	c := newCodec(t, newClock())
	claims := jwtx.NewClaims(jwtx.KindAccess, "ada@example.com", nil)

	for _, ttl := range []time.Duration{0, -time.Minute} {
		_, err := c.Encode(claims, ttl)
		require.ErrorIs(t, err, jwtx.ErrInvalidClaim)
	}
}

func TestCodec_Encode_RejectsBadClaims(t *testing.T) {
	c := newCodec(t, newClock())

	_, err := c.Encode(jwtx.NewClaims("bogus", "ada@example.com", nil), time.Minute)
	require.ErrorIs(t, err, jwtx.ErrInvalidClaim)

	_, err = c.Encode(jwtx.NewClaims(jwtx.KindAccess, "", nil), time.Minute)
	require.ErrorIs(t, err, jwtx.ErrInvalidClaim)
}

func TestCodec_Decode_Expired(t *testing.T) {
	clk := newClock()
	c := newCodec(t, clk)

	token, err := c.Encode(jwtx.NewClaims(jwtx.KindAccess, "ada@example.com", nil), time.Minute)
	require.NoError(t, err)

	clk.Advance(30 * time.Second)
	_, err = c.Decode(token, jwtx.KindAccess)
	require.NoError(t, err, "token should still be valid before exp")

	clk.Advance(31 * time.Second)
	_, err = c.Decode(token, jwtx.KindAccess)
	require.ErrorIs(t, err, jwtx.ErrExpired)
}

func TestCodec_Decode_ExpiryBoundary(t *testing.T) {
	clk := newClock()
	c := newCodec(t, clk)

	token, claims, err := c.Issue(jwtx.KindAccess, "ada@example.com", nil)
	require.NoError(t, err)

	clk.Advance(claims.ExpiresAt.Sub(clk.Now()))
	_, err = c.Decode(token, jwtx.KindAccess)
	require.NoError(t, err, "a token is still valid at exactly its exp")

	clk.Advance(time.Millisecond)
	_, err = c.Decode(token, jwtx.KindAccess)
	require.ErrorIs(t, err, jwtx.ErrExpired)
}

func TestCodec_Decode_PerKindTTL(t *testing.T) {
	clk := newClock()
	c := newCodec(t, clk)

	access, _, err := c.Issue(jwtx.KindAccess, "ada@example.com", nil)
	require.NoError(t, err)
	refresh, _, err := c.Issue(jwtx.KindRefresh, "ada@example.com", nil)
	require.NoError(t, err)
	email, _, err := c.Issue(jwtx.KindEmail, "ada@example.com", nil)
	require.NoError(t, err)

	clk.Advance(16 * time.Minute)
	_, err = c.Decode(access, jwtx.KindAccess)
	require.ErrorIs(t, err, jwtx.ErrExpired)
	_, err = c.Decode(refresh, jwtx.KindRefresh)
	require.NoError(t, err)
	_, err = c.Decode(email, jwtx.KindEmail)
	require.NoError(t, err)

	clk.Advance(24 * time.Hour)
	_, err = c.Decode(email, jwtx.KindEmail)
	require.ErrorIs(t, err, jwtx.ErrExpired)
	_, err = c.Decode(refresh, jwtx.KindRefresh)
	require.NoError(t, err)

	clk.Advance(7 * 24 * time.Hour)
	_, err = c.Decode(refresh, jwtx.KindRefresh)
	require.ErrorIs(t, err, jwtx.ErrExpired)
}

func TestCodec_Decode_WrongKind(t *testing.T) {
	c := newCodec(t, newClock())
	kinds := []jwtx.Kind{jwtx.KindAccess, jwtx.KindRefresh, jwtx.KindEmail}

	for _, minted := range kinds {
		token, _, err := c.Issue(minted, "ada@example.com", nil)
		require.NoError(t, err)

		for _, expected := range kinds {
			if expected == minted {
				continue
			}
			t.Run(minted.String()+"_as_"+expected.String(), func(t *testing.T) {
				_, err := c.Decode(token, expected)
				require.ErrorIs(t, err, jwtx.ErrWrongKind)
			})
		}
	}
}

func TestCodec_Decode_InvalidSignature(t *testing.T) {
	clk := newClock()
	c := newCodec(t, clk)
	other := newCodec(t, clk, func(cfg *jwtx.CodecConfig) {
		cfg.Secret = []byte("another-secret-another-secret!!!")
	})

	token, _, err := other.Issue(jwtx.KindAccess, "ada@example.com", nil)
	require.NoError(t, err)

	_, err = c.Decode(token, jwtx.KindAccess)
	require.ErrorIs(t, err, jwtx.ErrInvalidSig)
}

func TestCodec_Decode_SignatureCheckedBeforeExpiry(t *testing.T) {
	clk := newClock()
	c := newCodec(t, clk)
	other := newCodec(t, clk, func(cfg *jwtx.CodecConfig) {
		cfg.Secret = []byte("another-secret-another-secret!!!")
	})

	token, _, err := other.Issue(jwtx.KindAccess, "ada@example.com", nil)
	require.NoError(t, err)

	clk.Advance(time.Hour)
	_, err = c.Decode(token, jwtx.KindAccess)
	require.ErrorIs(t, err, jwtx.ErrInvalidSig)
}

func TestCodec_Decode_AlgorithmMismatch(t *testing.T) {
	clk := newClock()
	hs256 := newCodec(t, clk)
	hs512 := newCodec(t, clk, func(cfg *jwtx.CodecConfig) { cfg.Algorithm = jwtx.AlgHS512 })

	token, _, err := hs512.Issue(jwtx.KindAccess, "ada@example.com", nil)
	require.NoError(t, err)

	_, err = hs256.Decode(token, jwtx.KindAccess)
	require.ErrorIs(t, err, jwtx.ErrInvalidSig)
}

func TestCodec_Decode_NoneAlgorithm(t *testing.T) {
	clk := newClock()
	c := newCodec(t, clk)

	claims := jwtx.NewClaims(jwtx.KindAccess, "ada@example.com", nil)
	claims.ExpiresAt = jwt.NewNumericDate(clk.Now().Add(time.Hour))
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = c.Decode(token, jwtx.KindAccess)
	require.ErrorIs(t, err, jwtx.ErrInvalidSig)
}

func TestCodec_Decode_TamperedPayload(t *testing.T) {
	c := newCodec(t, newClock())

	token, _, err := c.Issue(jwtx.KindAccess, "ada@example.com", nil)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	forged := strings.Replace(string(payload), "ada@example.com", "eve@example.com", 1)
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(forged))

	_, err = c.Decode(strings.Join(parts, "."), jwtx.KindAccess)
	require.ErrorIs(t, err, jwtx.ErrInvalidSig)
}

func TestCodec_Decode_Malformed(t *testing.T) {
	c := newCodec(t, newClock())

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"two segments", "abc.def"},
		{"bad base64 header", "!!!.e30.sig"},
		{"header not json", base64.RawURLEncoding.EncodeToString([]byte("nope")) + ".e30.sig"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode(tt.token, jwtx.KindAccess)
			require.ErrorIs(t, err, jwtx.ErrMalformed)
		})
	}
}

func TestCodec_Decode_IssuerMismatch(t *testing.T) {
	clk := newClock()
	c := newCodec(t, clk)
	other := newCodec(t, clk, func(cfg *jwtx.CodecConfig) { cfg.Issuer = "someone-else" })

	token, _, err := other.Issue(jwtx.KindAccess, "ada@example.com", nil)
	require.NoError(t, err)

	_, err = c.Decode(token, jwtx.KindAccess)
	require.ErrorIs(t, err, jwtx.ErrIssuer)
}

func TestCodec_Issue_UniqueTokens(t *testing.T) {
	c := newCodec(t, newClock())

	a, _, err := c.Issue(jwtx.KindRefresh, "ada@example.com", nil)
	require.NoError(t, err)
	b, _, err := c.Issue(jwtx.KindRefresh, "ada@example.com", nil)
	require.NoError(t, err)

	require.NotEqual(t, a, b, "same subject and second must still yield distinct tokens")
}

func TestIsTokenError(t *testing.T) {
	require.True(t, jwtx.IsTokenError(jwtx.ErrExpired))
	require.True(t, jwtx.IsTokenError(jwtx.ErrWrongKind))
	require.False(t, jwtx.IsTokenError(nil))
	require.False(t, jwtx.IsTokenError(jwt.ErrTokenMalformed))
}
