package staff

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("invalid session token")

// Claims identifies the member signed in on a terminal.
type Claims struct {
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	Remember bool   `json:"remember,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs HS256 session tokens. Remembered sessions get the long
// TTL.
type TokenIssuer struct {
	secret      []byte
	ttl         time.Duration
	rememberTTL time.Duration
	now         func() time.Time
}

// NewTokenIssuer creates a TokenIssuer.
func NewTokenIssuer(secret []byte, ttl, rememberTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:      secret,
		ttl:         ttl,
		rememberTTL: rememberTTL,
		now:         time.Now,
	}
}

// Issue returns a signed token for m and its expiry.
func (i *TokenIssuer) Issue(m *Member, remember bool) (string, time.Time, error) {
	now := i.now()
	ttl := i.ttl
	if remember {
		ttl = i.rememberTTL
	}
	expires := now.Add(ttl)

	claims := Claims{
		Name:     m.Name,
		Role:     m.Role,
		Remember: remember,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   m.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "sign token")
	}
	return token, expires, nil
}

// Verify parses and validates a token issued by Issue.
func (i *TokenIssuer) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
