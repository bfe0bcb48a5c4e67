// Package auth provides JWT bearer authentication for the HTTP API. Tokens
// are issued by an external identity service; this package only verifies
// them and extracts the user identity.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/labstack/echo/v4"
)

const (
	userIDContextKey = "auth.user_id"
	bearerPrefix     = "Bearer "

	// AnonymousUserID identifies requests when authentication is disabled.
	AnonymousUserID = "anonymous"
)

var errInvalidToken = errors.New("invalid or expired token")

// Verifier validates HS256 bearer tokens signed with a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a verifier for the given signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Middleware returns an echo middleware that rejects requests without a
// valid bearer token and stores the token subject as the request's user id.
func (v *Verifier) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(header, bearerPrefix) {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			subject, err := v.verify(strings.TrimPrefix(header, bearerPrefix))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}

			c.Set(userIDContextKey, subject)
			return next(c)
		}
	}
}

func (v *Verifier) verify(tokenString string) (string, error) {
	claims := &jwt.StandardClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", errInvalidToken
	}
	if claims.Subject == "" {
		return "", errInvalidToken
	}
	return claims.Subject, nil
}

// SignToken issues an HS256 token for a user id. Used by tests and by
// operators provisioning service tokens by hand.
func SignToken(secret, userID string, ttl time.Duration) (string, error) {
	claims := jwt.StandardClaims{
		Subject:   userID,
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// UserID returns the authenticated user id for a request, or
// AnonymousUserID when authentication is disabled.
func UserID(c echo.Context) string {
	if id, ok := c.Get(userIDContextKey).(string); ok && id != "" {
		return id
	}
	return AnonymousUserID
}
