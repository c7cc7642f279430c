// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them. Service
// errors are translated in one place, writeServiceError, so every endpoint
// reports the same failure the same way.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "conflict",
//	  "message": "Email already registered"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-intent-chat/internal/http/middleware"
	"github.com/tbourn/go-intent-chat/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeValidation       = "validation_failed"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeSessionExpired   = "session_expired"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeInvalidCredentials  = "invalid_credentials"
	ErrCodeOAuthNotConfigured  = "oauth_not_configured"
	ErrCodeOAuthExchangeFailed = "oauth_exchange_failed"
)

// writeServiceError maps a service error onto status, code and message.
// With hideForeign, a conversation owned by someone else is reported as
// missing. Unknown errors become a logged 500 with a generic message.
func writeServiceError(c *gin.Context, err error, hideForeign bool) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		failWith(c, http.StatusBadRequest, ErrorResponse{
			Code:    ErrCodeValidation,
			Message: "Validation failed",
			Errors:  verr.Fields,
		})
	case errors.Is(err, services.ErrEmailTaken):
		fail(c, http.StatusConflict, ErrCodeConflict, "Email already registered")
	case errors.Is(err, services.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, ErrCodeInvalidCredentials, "Invalid email or password")
	case errors.Is(err, services.ErrSessionExpired):
		fail(c, http.StatusUnauthorized, ErrCodeSessionExpired, "Session expired")
	case errors.Is(err, services.ErrUserGone):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "User not found")
	case errors.Is(err, services.ErrUnauthenticated):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "Not authenticated")
	case errors.Is(err, services.ErrForbidden):
		if hideForeign {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "Conversation not found")
			return
		}
		fail(c, http.StatusForbidden, ErrCodeForbidden, "Access denied")
	case errors.Is(err, services.ErrConversationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "Conversation not found")
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "User not found")
	case errors.Is(err, services.ErrOAuthNotConfigured):
		fail(c, http.StatusInternalServerError, ErrCodeOAuthNotConfigured, "OAuth provider not configured")
	case errors.Is(err, services.ErrOAuthExchangeFailed):
		middleware.LoggerFrom(c).Warn().Err(err).Msg("oauth exchange failed")
		fail(c, http.StatusUnauthorized, ErrCodeOAuthExchangeFailed, "OAuth authentication failed")
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("unhandled service error")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}
