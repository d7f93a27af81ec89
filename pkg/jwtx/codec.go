package jwtx

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Supported HMAC algorithms.
const (
	AlgHS256 = "HS256"
	AlgHS512 = "HS512"
)

// minSecretLen is the shortest signing secret NewCodec accepts.
const minSecretLen = 16

// CodecConfig configures a Codec. Each Codec owns its secret.
type CodecConfig struct {
	Secret    []byte
	Algorithm string // HS256 (default) or HS512
	Issuer    string // optional; enforced on decode when set

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	EmailTTL   time.Duration

	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Codec mints and verifies HMAC-signed tokens of every Kind. It holds no
// mutable state and is safe for concurrent use.
type Codec struct {
	secret []byte
	method jwt.SigningMethod
	issuer string
	ttls   map[Kind]time.Duration
	now    func() time.Time
}

// NewCodec validates cfg and returns a ready Codec.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	if len(cfg.Secret) < minSecretLen {
		return nil, fmt.Errorf("jwtx: secret must be at least %d bytes", minSecretLen)
	}

	var method jwt.SigningMethod
	switch cfg.Algorithm {
	case "", AlgHS256:
		method = jwt.SigningMethodHS256
	case AlgHS512:
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("jwtx: unsupported algorithm %q", cfg.Algorithm)
	}

	ttls := map[Kind]time.Duration{
		KindAccess:  orDefault(cfg.AccessTTL, DefaultAccessTokenTTL),
		KindRefresh: orDefault(cfg.RefreshTTL, DefaultRefreshTokenTTL),
		KindEmail:   orDefault(cfg.EmailTTL, DefaultEmailTokenTTL),
	}
	for kind, ttl := range ttls {
		if ttl < 0 {
			return nil, fmt.Errorf("jwtx: negative ttl for %s", kind)
		}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	return &Codec{
		secret: secret,
		method: method,
		issuer: cfg.Issuer,
		ttls:   ttls,
		now:    now,
	}, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d == 0 {
		return def
	}
	return d
}

// Alg returns the JOSE name of the signing algorithm.
func (c *Codec) Alg() string { return c.method.Alg() }

// TTL returns the configured lifetime for kind.
func (c *Codec) TTL(kind Kind) time.Duration { return c.ttls[kind] }

// Encode signs claims with an expiry of now+ttl. The issued-at, not-before,
// jti and issuer claims are filled in when unset. A non-positive ttl is
// rejected with ErrInvalidClaim.
func (c *Codec) Encode(claims Claims, ttl time.Duration) (string, error) {
	token, _, err := c.sign(claims, ttl)
	return token, err
}

// Issue mints a token of kind for subject using the kind's configured TTL.
// The returned claims are exactly what was signed.
func (c *Codec) Issue(kind Kind, subject string, extra map[string]string) (string, Claims, error) {
	return c.sign(NewClaims(kind, subject, extra), c.ttls[kind])
}

func (c *Codec) sign(claims Claims, ttl time.Duration) (string, Claims, error) {
	if ttl <= 0 {
		return "", Claims{}, fmt.Errorf("%w: ttl must be positive, got %s", ErrInvalidClaim, ttl)
	}
	if !claims.Kind.Valid() {
		return "", Claims{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidClaim, claims.Kind)
	}
	if claims.Subject == "" {
		return "", Claims{}, fmt.Errorf("%w: empty subject", ErrInvalidClaim)
	}

	now := c.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if claims.ID == "" {
		claims.ID = NewJTI()
	}
	if claims.Issuer == "" {
		claims.Issuer = c.issuer
	}

	token, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("jwtx: sign: %w", err)
	}
	return token, claims, nil
}

// Decode verifies token and returns its claims. Checks run in a fixed order:
// structure (ErrMalformed), signature and algorithm (ErrInvalidSig), expiry
// (ErrExpired), issuer (ErrIssuer) and finally the kind (ErrWrongKind).
//
// A token is accepted up to and including the second named by its exp claim
// and expired once the clock has passed it.
func (c *Codec) Decode(token string, expected Kind) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return Claims{}, mapParseError(err)
	}
	if err := c.checkTimes(claims); err != nil {
		return Claims{}, err
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return Claims{}, ErrIssuer
	}

	if claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalidClaim)
	}
	if claims.Kind != expected {
		return Claims{}, ErrWrongKind
	}
	return claims, nil
}

func (c *Codec) checkTimes(claims Claims) error {
	if claims.ExpiresAt == nil {
		return fmt.Errorf("%w: missing exp", ErrInvalidClaim)
	}
	now := c.now()
	if now.After(claims.ExpiresAt.Time) {
		return ErrExpired
	}
	if claims.NotBefore != nil && now.Before(claims.NotBefore.Time) {
		return ErrNotYetValid
	}
	if claims.IssuedAt != nil && now.Before(claims.IssuedAt.Time) {
		return ErrNotYetValid
	}
	return nil
}
