package relay

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Challenger issues and checks authentication challenges. A challenge is an
// HS256 token naming the connection it was issued to (sub), a random nonce
// (jti) and an expiry, so a challenge cannot be replayed on another
// connection or after the auth window.
type Challenger struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewChallenger(secret []byte, ttl time.Duration) *Challenger {
	return &Challenger{secret: secret, ttl: ttl, now: time.Now}
}

// Issue returns a fresh challenge bound to connID.
func (c *Challenger) Issue(connID string) (string, error) {
	now := c.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   connID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiry(now, c.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// expiry is now+ttl rounded up to a whole second. NumericDate keeps whole
// seconds only, and truncating would end the challenge before the auth
// window does. The server's auth timer enforces the exact window.
func expiry(now time.Time, ttl time.Duration) time.Time {
	exp := now.Add(ttl)
	if t := exp.Truncate(time.Second); t.Before(exp) {
		return t.Add(time.Second)
	}
	return exp
}

// Verify checks that challenge was issued by this relay to connID and has not
// expired.
func (c *Challenger) Verify(challenge, connID string) error {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(challenge, claims,
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(connID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return fmt.Errorf("challenge: %w", err)
	}
	if claims.ID == "" {
		return errors.New("challenge: missing nonce")
	}
	return nil
}
