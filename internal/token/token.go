package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failures, mapped from the underlying JWT library so that
// callers can branch on the failure class without string matching.
var (
	ErrMalformed    = errors.New("malformed token")
	ErrBadSignature = errors.New("bad signature")
	ErrExpired      = errors.New("expired token")
)

// Claims is the single claim set this service signs: a user identity plus
// issue and expiry instants, all epoch seconds. Tokens are never stored
// server-side; validity is a pure function of signature and expiry.
type Claims struct {
	UserID    string
	IssuedAt  int64
	ExpiresAt int64
}

type sessionClaims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}

// Codec signs and verifies compact HS256 session tokens.
type Codec struct {
	secret []byte
	now    func() time.Time
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret), now: time.Now}
}

// WithClock overrides the verification clock. Tests use this to simulate
// expiry without sleeping.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

// Sign serializes and signs the claims with HMAC-SHA256.
func (c *Codec) Sign(claims Claims) (string, error) {
	sc := sessionClaims{
		UID: claims.UserID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Unix(claims.IssuedAt, 0)),
			ExpiresAt: jwt.NewNumericDate(time.Unix(claims.ExpiresAt, 0)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, sc).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify recomputes the signature and checks the embedded expiry. Failures
// collapse to the Malformed / BadSignature / Expired set; callers map all
// of them to an access-denied response without further detail.
func (c *Codec) Verify(tokenString string) (Claims, error) {
	var sc sessionClaims
	_, err := jwt.ParseWithClaims(tokenString, &sc,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrBadSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpired
		default:
			return Claims{}, ErrMalformed
		}
	}

	out := Claims{UserID: sc.UID}
	if sc.IssuedAt != nil {
		out.IssuedAt = sc.IssuedAt.Unix()
	}
	if sc.ExpiresAt != nil {
		out.ExpiresAt = sc.ExpiresAt.Unix()
	}
	return out, nil
}
