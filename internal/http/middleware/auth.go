// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer-token authentication for the back office.
// RequireAuth verifies the JWT issued at login and stores the caller's
// identity in the Gin context; RequireRole restricts a route group to one
// role. Public and external endpoints are mounted outside these guards.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-forms-backend/internal/auth"
)

// Context keys for the authenticated caller.
const (
	ctxKeyUserID   = "userID"
	ctxKeyUsername = "username"
	ctxKeyRole     = "role"
)

// UserID returns the authenticated user ID, or "" for anonymous requests.
func UserID(c *gin.Context) string {
	v, ok := c.Get(ctxKeyUserID)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Role returns the authenticated user's role, or "".
func Role(c *gin.Context) string {
	v, _ := c.Get(ctxKeyRole)
	s, _ := v.(string)
	return s
}

// Authenticate stores the caller identity when the request carries a valid
// "Authorization: Bearer" token and never rejects. Mount it globally so
// rate limiting and idempotency scopes see the user.
func Authenticate(issuer *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearer(c); ok {
			if claims, err := issuer.Parse(token); err == nil {
				setClaims(c, claims)
			}
		}
		c.Next()
	}
}

// RequireAuth rejects requests without a valid "Authorization: Bearer"
// token with 401. On success the user ID, username and role are stored in
// the context and logged by the request logger. Identities already set by
// Authenticate are reused.
func RequireAuth(issuer *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) != "" {
			c.Next()
			return
		}
		token, ok := bearer(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		claims, err := issuer.Parse(token)
		if err != nil {
			abort(c, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

func bearer(c *gin.Context) (string, bool) {
	scheme, token, found := strings.Cut(c.GetHeader("Authorization"), " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

func setClaims(c *gin.Context, claims *auth.Claims) {
	c.Set(ctxKeyUserID, claims.Subject)
	c.Set(ctxKeyUsername, claims.Username)
	c.Set(ctxKeyRole, claims.Role)
}

// RequireRole rejects authenticated callers whose role differs from role
// with 403. It must run after RequireAuth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if Role(c) != role {
			abort(c, http.StatusForbidden, "forbidden", "insufficient role")
			return
		}
		c.Next()
	}
}
