// Package token inspects bearer tokens client-side. The agent holds no
// signing keys, so claims are read without signature verification and are
// used for display and scheduling only, never for authorization decisions.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotAToken is returned when the credential is not parseable as a JWT
// (opaque backend tokens are valid credentials but carry no readable claims).
var ErrNotAToken = errors.New("credential is not a parseable JWT")

// Info holds the claims the agent cares about.
type Info struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Inspect parses the token without verifying its signature and returns the
// subject and validity window. Missing claims stay zero-valued.
func Inspect(tokenString string) (*Info, error) {
	if tokenString == "" {
		return nil, ErrNotAToken
	}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	var claims jwt.RegisteredClaims
	if _, _, err := parser.ParseUnverified(tokenString, &claims); err != nil {
		return nil, ErrNotAToken
	}
	info := &Info{Subject: claims.Subject}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

// ExpiresWithin reports whether the token expires within d of now.
// Opaque tokens and tokens without an exp claim report false; the 401
// refresh path remains the authority for those.
func ExpiresWithin(tokenString string, d time.Duration, now time.Time) bool {
	info, err := Inspect(tokenString)
	if err != nil || info.ExpiresAt.IsZero() {
		return false
	}
	return !info.ExpiresAt.After(now.Add(d))
}
