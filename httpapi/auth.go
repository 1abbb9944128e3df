package httpapi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt"
)

var (
	errMissingToken = errors.New("missing or invalid bearer token")
	errMissingSub   = errors.New("token has no sub claim")
)

// subject extracts the user id from an Authorization header. Tokens are
// issued by the identity provider; the signature is checked only when a
// shared secret is configured.
func subject(authHeader, secret string) (string, error) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", errMissingToken
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if raw == "" {
		return "", errMissingToken
	}

	claims := jwt.MapClaims{}
	if secret == "" {
		if _, _, err := new(jwt.Parser).ParseUnverified(raw, claims); err != nil {
			return "", fmt.Errorf("invalid token: %w", err)
		}
	} else {
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil {
			return "", fmt.Errorf("invalid token: %w", err)
		}
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", errMissingSub
	}
	return sub, nil
}
