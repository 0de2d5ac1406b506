// Package auth inspects access tokens handed to the engine.
//
// Token issuance and refresh live in the account layer; the engine only needs
// to know whether the token it was handed is still usable before opening a
// transport connection.
package auth

import (
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// DefaultRefreshWindow is how soon before expiry callers should refresh.
const DefaultRefreshWindow = 10 * time.Minute

// ExpiresAt returns the expiry timestamp embedded in a JWT access token.
//
// The signature is not verified; the server remains the authority. ok is
// false when the token is not a JWT or carries no exp claim.
func ExpiresAt(token string) (time.Time, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// SubjectID returns the participant identity from the token's sub claim.
func SubjectID(token string) (string, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return "", false
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", false
	}
	return sub, true
}

// ExpiringSoon reports whether the token expires within the given window.
//
// Tokens without an exp claim are treated as non-expiring.
func ExpiringSoon(token string, window time.Duration) bool {
	exp, ok := ExpiresAt(token)
	if !ok {
		return false
	}
	return time.Until(exp) <= window
}
