package credstore

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IsValidJWTShape reports whether token looks like a JWT: three non-blank dot-separated parts.
// The signature is never checked here.
func IsValidJWTShape(token string) bool {
	if strings.TrimSpace(token) == "" {
		return false
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return false
		}
	}
	return true
}

// TokenClaims is the subset of claims worth logging
type TokenClaims struct {
	Subject   string
	ExpiresAt time.Time
}

// PeekClaims decodes the claims of a JWT without verifying it. Logging only.
func PeekClaims(token string) (TokenClaims, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenClaims{}, false
	}

	var out TokenClaims
	if sub, err := claims.GetSubject(); err == nil {
		out.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, true
}
