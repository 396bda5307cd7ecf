// Package token signs and verifies the gateway session cookie.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const typeGateway = "gateway"

var ErrInvalid = errors.New("invalid session token")

type claims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// Issue returns an HS256 token carrying sessionID, valid for ttl from now.
func Issue(secret []byte, sessionID string, now time.Time, ttl time.Duration) (string, error) {
	c := claims{
		Type: typeGateway,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Parse verifies raw and returns the session id it carries.
func Parse(secret []byte, raw string, now func() time.Time) (string, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(now))
	if err != nil || !parsed.Valid {
		return "", ErrInvalid
	}
	if c.Type != typeGateway || c.Subject == "" {
		return "", ErrInvalid
	}
	return c.Subject, nil
}
