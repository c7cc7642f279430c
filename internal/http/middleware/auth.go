// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the session cookie into an authenticated user. The
// token is read from the "sessionId" cookie, or from an "Authorization:
// Bearer" header for non-browser clients. On success the user id is stored
// in the Gin context under "userID" for the logger, rate limiter and
// idempotency middleware. Handlers read the typed session.Identity attached
// to the request context.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-intent-chat/internal/session"
)

// SessionCookieName is the cookie that carries the opaque session token.
const SessionCookieName = "sessionId"

const ctxKeyUserID = "userID"

// Authenticator resolves a session token into a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// AuthOptions maps authentication failures to response codes.
type AuthOptions struct {
	// Expired reports whether err means the session existed but expired.
	// Such requests get code "session_expired" instead of "unauthorized".
	Expired func(err error) bool
	// Unauthenticated reports whether err is a credential failure. Other
	// errors are logged and answered with 500. Nil treats every error as a
	// credential failure.
	Unauthenticated func(err error) bool
}

// SessionToken returns the token presented by the client, preferring the
// cookie over the Authorization header.
func SessionToken(c *gin.Context) string {
	if v, err := c.Cookie(SessionCookieName); err == nil && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// UserID returns the authenticated user id or "" when the request is
// anonymous.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// RequireSession aborts with 401 unless the request carries a valid session.
func RequireSession(auth Authenticator, opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := SessionToken(c)
		if token == "" {
			abortUnauthorized(c, "unauthorized", "Not authenticated")
			return
		}
		uid, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			if opts.Expired != nil && opts.Expired(err) {
				abortUnauthorized(c, "session_expired", "Session expired")
				return
			}
			if opts.Unauthenticated == nil || opts.Unauthenticated(err) {
				abortUnauthorized(c, "unauthorized", "Invalid session")
				return
			}
			LoggerFrom(c).Error().Err(err).Msg("session lookup failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "internal_error",
				"message":    "internal server error",
			})
			return
		}
		attach(c, uid, token)
		c.Next()
	}
}

// OptionalSession attaches the identity when a valid session is present and
// otherwise lets the request through anonymously.
func OptionalSession(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := SessionToken(c); token != "" {
			if uid, err := auth.Authenticate(c.Request.Context(), token); err == nil {
				attach(c, uid, token)
			}
		}
		c.Next()
	}
}

func attach(c *gin.Context, uid, token string) {
	c.Set(ctxKeyUserID, uid)
	c.Request = c.Request.WithContext(session.WithIdentity(c.Request.Context(), session.Identity{
		UserID: uid,
		Token:  token,
	}))
}

func abortUnauthorized(c *gin.Context, code, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}

// IsExpired is an AuthOptions.Expired helper matching a sentinel.
func IsExpired(sentinel error) func(error) bool { return IsAny(sentinel) }

// IsAny matches err against each sentinel with errors.Is.
func IsAny(sentinels ...error) func(error) bool {
	return func(err error) bool {
		for _, s := range sentinels {
			if errors.Is(err, s) {
				return true
			}
		}
		return false
	}
}
