// Package services defines the business logic for authentication, sessions,
// conversations, and messages. This file centralizes service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// Translation into user-facing messages and HTTP status codes happens in the
// handler layer.
package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrValidation is the kind shared by every *ValidationError.
var ErrValidation = errors.New("validation failed")

// Authentication errors.
var (
	// ErrEmailTaken is returned by Signup when the email is already registered.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials covers unknown email, missing password, and wrong
	// password alike so callers cannot probe which one failed.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrUnauthenticated means no valid session accompanies the request.
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrInvalidSession is an ErrUnauthenticated for unknown tokens.
	ErrInvalidSession = fmt.Errorf("%w: invalid session", ErrUnauthenticated)

	// ErrUserGone is an ErrUnauthenticated for a live session whose user no
	// longer exists.
	ErrUserGone = fmt.Errorf("%w: user not found", ErrUnauthenticated)

	// ErrSessionExpired means the session existed but has expired.
	ErrSessionExpired = errors.New("session expired")

	// ErrUserNotFound is returned by profile operations on a missing user.
	ErrUserNotFound = errors.New("user not found")

	// ErrOAuthNotConfigured means the provider has no client credentials.
	ErrOAuthNotConfigured = errors.New("oauth provider not configured")

	// ErrOAuthExchangeFailed covers token exchange and user-info failures.
	ErrOAuthExchangeFailed = errors.New("oauth exchange failed")
)

// Conversation errors.
var (
	// ErrConversationNotFound indicates that no conversation has the given id.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrForbidden indicates that the conversation belongs to another user.
	ErrForbidden = errors.New("forbidden")

	// ErrEmptyTitle is returned by Rename for a blank title.
	ErrEmptyTitle = NewValidationError("title", "Title is required")

	// ErrEmptyContent is returned when a message has no content after trimming.
	ErrEmptyContent = NewValidationError("content", "Content is required")

	// ErrContentTooLong is returned when a message exceeds the rune limit.
	ErrContentTooLong = NewValidationError("content", "Content is too long")
)

// ValidationError carries per-field messages. It matches ErrValidation with
// errors.Is.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError returns a ValidationError with one message on field.
func NewValidationError(field, msg string) *ValidationError {
	return (&ValidationError{}).Add(field, msg)
}

// Add appends msg to field and returns e for chaining.
func (e *ValidationError) Add(field, msg string) *ValidationError {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], msg)
	return e
}

// Empty reports whether no field has a message.
func (e *ValidationError) Empty() bool { return e == nil || len(e.Fields) == 0 }

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
