package utils // package utils provides helpers for terminal tokens and sealing customer data

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail signature, expiry or
// claim checks.
var ErrInvalidToken = errors.New("invalid terminal token")

// AccessToken is a signed terminal token along with its expiry.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// TerminalClaims identify who is operating which POS terminal.  They are
// used for keying carts and rate limits, never for authorization.
// The staff id travels as the standard subject claim.
type TerminalClaims struct {
	TerminalID string `json:"terminal_id"`
	jwt.RegisteredClaims
}

// StaffID returns the subject claim.
func (c TerminalClaims) StaffID() string { return c.Subject }

// NewTerminalToken builds and signs an HS256 JWT for a staff member working
// at a terminal.  The token carries sub (staff id), terminal_id, jti, exp
// and iat.
func NewTerminalToken(secret, staffID, terminalID string, ttl time.Duration) (AccessToken, error) {
	if staffID == "" || terminalID == "" {
		return AccessToken{}, errors.New("staff id and terminal id are required")
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)
	jti, err := randomHex(16)
	if err != nil {
		return AccessToken{}, err
	}
	claims := TerminalClaims{
		TerminalID: terminalID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   staffID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseTerminalToken verifies raw and returns its claims.  Only HMAC signed
// tokens are accepted.
func ParseTerminalToken(secret, raw string) (TerminalClaims, error) {
	var claims TerminalClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return TerminalClaims{}, errors.Join(ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.TerminalID == "" {
		return TerminalClaims{}, ErrInvalidToken
	}
	return claims, nil
}

// randomHex returns a hex encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
