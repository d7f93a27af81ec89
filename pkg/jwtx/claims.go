package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTLs per kind. Each can be overridden through CodecConfig.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	// DefaultEmailTokenTTL is the default lifetime for email-action tokens
	// (confirmation and password reset links).
	DefaultEmailTokenTTL = 24 * time.Hour
)

// Kind tags a token with the purpose it was minted for. A token is only
// accepted where its kind is expected, so a refresh token can never be
// presented as an access token and vice versa.
type Kind string

const (
	KindAccess  Kind = "access_token"
	KindRefresh Kind = "refresh_token"
	KindEmail   Kind = "email_token"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindAccess, KindRefresh, KindEmail:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

// Claims are the claims carried by every token the service mints.
type Claims struct {
	jwt.RegisteredClaims

	// Kind is serialised as "scope" to stay wire compatible with clients of
	// the previous service.
	Kind Kind `json:"scope"`

	// Extra holds small string attributes attached at issue time, such as
	// a display label on access tokens or a password fingerprint on reset
	// tokens.
	Extra map[string]string `json:"ext,omitempty"`
}

// NewClaims builds minimally-correct claims for subject. Timestamps and the
// jti are filled in by Codec.Encode.
func NewClaims(kind Kind, subject string, extra map[string]string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
		Kind:             kind,
		Extra:            extra,
	}
}

// Get returns the extra attribute stored under key.
func (c Claims) Get(key string) (string, bool) {
	v, ok := c.Extra[key]
	return v, ok
}

// NewJTI returns a URL-safe random identifier for the "jti" claim. Two
// tokens for the same subject minted in the same second still differ.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
