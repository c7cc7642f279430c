// Package handlers exposes the REST endpoints for authentication,
// conversations and the intent catalog.
//
// Handlers are transport-thin: they bind and validate input, call the
// application services through the interfaces below, and translate results
// into HTTP responses (cookies, conditional responses, idempotent replays).
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-intent-chat/internal/domain"
	"github.com/tbourn/go-intent-chat/internal/http/middleware"
	"github.com/tbourn/go-intent-chat/internal/intent"
	"github.com/tbourn/go-intent-chat/internal/services"
	"github.com/tbourn/go-intent-chat/internal/session"
)

//
// Service contracts (context-aware)
//

// AuthService covers signup, login and the session lifecycle.
type AuthService interface {
	Signup(ctx context.Context, email, password, name string) (*services.AuthResult, error)
	Login(ctx context.Context, email, password string) (*services.AuthResult, error)
	OAuthLogin(ctx context.Context, provider, code string) (*services.AuthResult, error)
	Me(ctx context.Context, token string) (*services.PublicUser, error)
	Logout(ctx context.Context, token string) error
	UpdateProfileImage(ctx context.Context, userID, image string) (*services.PublicUser, error)
}

// ConversationService covers owner-scoped conversation operations.
type ConversationService interface {
	Create(ctx context.Context, userID, title string) (*domain.Conversation, error)
	List(ctx context.Context, userID string, limit int) ([]domain.Conversation, error)
	// Stats returns the count and newest update time used for the list ETag.
	Stats(ctx context.Context, userID string) (int64, *time.Time, error)
	Get(ctx context.Context, userID, id string) (*services.ConversationDetail, error)
	AppendMessage(ctx context.Context, userID, id string, in services.NewMessage) (*services.ConversationDetail, error)
	Rename(ctx context.Context, userID, id, title string) (*domain.Conversation, error)
	Delete(ctx context.Context, userID, id string) error
}

// ReplyService classifies text and produces assistant replies.
type ReplyService interface {
	Reply(ctx context.Context, userID, conversationID, content string) (*services.ConversationDetail, error)
	Classify(ctx context.Context, text string) (intent.Result, error)
}

// IntentCatalog lists the intent definitions.
type IntentCatalog interface {
	Intents(ctx context.Context) ([]domain.Intent, error)
}

// IdempotencyRecorder remembers which message a key produced so a retry
// can be replayed.
type IdempotencyRecorder interface {
	Remember(ctx context.Context, userID, conversationID, key, messageID string) error
}

//
// Handler wiring
//

// Options carries transport settings from config.
type Options struct {
	Cookie CookieOptions
	// HideForeign answers 404 instead of 403 for foreign conversations.
	HideForeign bool
	PingMessage string
}

// Handlers groups all HTTP endpoints.
type Handlers struct {
	auth    AuthService
	convs   ConversationService
	replies ReplyService
	intents IntentCatalog
	idem    IdempotencyRecorder
	opts    Options
}

// New constructs Handlers. idem may be nil, which disables recording.
func New(auth AuthService, convs ConversationService, replies ReplyService, intents IntentCatalog, idem IdempotencyRecorder, opts Options) *Handlers {
	if opts.PingMessage == "" {
		opts.PingMessage = "ping"
	}
	return &Handlers{
		auth:    auth,
		convs:   convs,
		replies: replies,
		intents: intents,
		idem:    idem,
		opts:    opts,
	}
}

// userID is the id of the identity attached by middleware.RequireSession.
func userID(c *gin.Context) string {
	if id, ok := session.IdentityFrom(c.Request.Context()); ok {
		return id.UserID
	}
	return ""
}

// sessionToken prefers the token of a validated identity and falls back to
// whatever the client presented.
func sessionToken(c *gin.Context) string {
	if id, ok := session.IdentityFrom(c.Request.Context()); ok && id.Token != "" {
		return id.Token
	}
	return middleware.SessionToken(c)
}
