package token

import "time"

// AnonymousUser stands in when the caller does not identify itself.
// Minting is open; the downstream key exchange is gated by possession of
// the signed token.
const AnonymousUser = "anon"

// Minter issues short-lived session tokens. Stateless: the only output is
// the signed token itself.
type Minter struct {
	codec *Codec
	ttl   time.Duration
	now   func() time.Time
}

func NewMinter(codec *Codec, ttl time.Duration) *Minter {
	return &Minter{codec: codec, ttl: ttl, now: time.Now}
}

// WithClock overrides the issue clock, for tests.
func (m *Minter) WithClock(now func() time.Time) *Minter {
	m.now = now
	return m
}

// TTL reports the fixed token lifetime.
func (m *Minter) TTL() time.Duration {
	return m.ttl
}

// Mint issues a token for userID, valid from now for the configured TTL.
func (m *Minter) Mint(userID string) (string, error) {
	if userID == "" {
		userID = AnonymousUser
	}
	now := m.now().Unix()
	return m.codec.Sign(Claims{
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now + int64(m.ttl.Seconds()),
	})
}
