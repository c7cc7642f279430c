// Conversation HTTP handlers.
//
// This file exposes REST endpoints for conversation resources:
//   - POST   /conversations               (create)
//   - GET    /conversations               (list newest first, ETag support)
//   - GET    /conversations/{id}          (conversation with messages)
//   - POST   /conversations/{id}/messages (append a message)
//   - POST   /conversations/{id}/reply    (user message + classified assistant reply)
//   - PATCH  /conversations/{id}          (rename)
//   - DELETE /conversations/{id}          (delete with messages)
//
// Appends honor the Idempotency-Key header: a retried key replays the
// conversation as it stands and sets `Idempotency-Replayed: true` instead of
// inserting again.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-intent-chat/internal/domain"
	"github.com/tbourn/go-intent-chat/internal/http/middleware"
	"github.com/tbourn/go-intent-chat/internal/services"
	"github.com/tbourn/go-intent-chat/internal/utils"
)

//
// DTOs
//

// CreateConversationRequest is the optional payload for creating a
// conversation. A blank title picks a friendly default.
type CreateConversationRequest struct {
	Title string `json:"title" binding:"max=255" example:"Trip planning"`
}

// RenameConversationRequest is the payload for renaming a conversation.
type RenameConversationRequest struct {
	Title string `json:"title" binding:"max=255" example:"Trip planning (Lisbon)"`
}

// PostMessageRequest appends a message as-is. Role defaults to "user".
type PostMessageRequest struct {
	Content    string   `json:"content" binding:"required" example:"Hello there!"`
	Role       string   `json:"role" binding:"omitempty,oneof=user assistant" example:"user"`
	Intent     *string  `json:"intent" binding:"omitempty,max=64" example:"greeting"`
	Confidence *float64 `json:"confidence" binding:"omitempty,gte=0,lte=1" example:"0.92"`
}

// ReplyRequest is the payload for the reply endpoint.
type ReplyRequest struct {
	Content string `json:"content" binding:"required" example:"Can you help me write an email?"`
}

// ConversationResponse wraps a conversation summary with an acknowledgement.
type ConversationResponse struct {
	Message      string              `json:"message,omitempty" example:"Conversation created"`
	Conversation domain.Conversation `json:"conversation"`
}

// ConversationDetailResponse wraps a conversation and its ordered messages.
type ConversationDetailResponse struct {
	Message      string                      `json:"message,omitempty" example:"Message added"`
	Conversation services.ConversationDetail `json:"conversation"`
}

// ListConversationsResponse lists conversation summaries, newest first.
type ListConversationsResponse struct {
	Conversations []domain.Conversation `json:"conversations"`
}

//
// Helpers
//

// conversationID returns the path id, answering 404 when it cannot name a
// conversation.
func conversationID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "Conversation not found")
		return "", false
	}
	return id, true
}

// replay serves a retried append from current state. It reports whether the
// response was written.
func (h *Handlers) replay(c *gin.Context, id string) bool {
	if !middleware.IsReplay(c) {
		return false
	}
	d, err := h.convs.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		writeServiceError(c, err, h.opts.HideForeign)
		return true
	}
	c.Header(middleware.HeaderIdempotencyReplayed, "true")
	ok(c, http.StatusOK, ConversationDetailResponse{Conversation: *d})
	return true
}

// remember records the newest message under the request's idempotency key.
// Failures are logged; the append already succeeded.
func (h *Handlers) remember(c *gin.Context, id string, d *services.ConversationDetail) {
	key, has := middleware.GetIdempotencyKey(c)
	if !has || h.idem == nil || len(d.Messages) == 0 {
		return
	}
	last := d.Messages[len(d.Messages)-1]
	if err := h.idem.Remember(c.Request.Context(), userID(c), id, key, last.ID); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Str("conversation_id", id).Msg("idempotency record failed")
	}
}

//
// Handlers
//

// CreateConversation godoc
// @ID          createConversation
// @Summary     Create a conversation
// @Description Creates a conversation for the current user. A blank or missing title picks a friendly default.
// @Tags        Conversations
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.CreateConversationRequest  false  "Optional title"
// @Success     201   {object}  handlers.ConversationResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401   {object}  handlers.ErrorResponse  "Not authenticated"
// @Router      /conversations [post]
func (h *Handlers) CreateConversation(c *gin.Context) {
	var req CreateConversationRequest
	if !bindJSON(c, &req, true) {
		return
	}
	conv, err := h.convs.Create(c.Request.Context(), userID(c), req.Title)
	if err != nil {
		writeServiceError(c, err, h.opts.HideForeign)
		return
	}
	ok(c, http.StatusCreated, ConversationResponse{Message: "Conversation created", Conversation: *conv})
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List conversations
// @Description Returns the user's conversations, newest first, without messages. Supports weak ETag via If-None-Match.
// @Tags        Conversations
// @Produce     json
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       limit          query   int     false  "Maximum items"  minimum(1) maximum(50) default(50)
// @Success     200  {object}  handlers.ListConversationsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse  "Not authenticated"
// @Router      /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	limit := utils.ClampLimit(c.Query("limit"), services.DefaultListLimit, services.DefaultListLimit)

	// ETag pre-check (best effort).
	if count, newest, err := h.convs.Stats(ctx, uid); err == nil {
		var ts int64
		if newest != nil {
			ts = newest.UnixNano()
		}
		etag := fmt.Sprintf(`W/"conversations:%s:%d:%d:%d"`, uid, count, ts, limit)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, err := h.convs.List(ctx, uid, limit)
	if err != nil {
		writeServiceError(c, err, h.opts.HideForeign)
		return
	}
	if items == nil {
		items = []domain.Conversation{}
	}
	ok(c, http.StatusOK, ListConversationsResponse{Conversations: items})
}

// GetConversation godoc
// @ID          getConversation
// @Summary     Get a conversation
// @Description Returns the conversation with its messages in insertion order.
// @Tags        Conversations
// @Produce     json
// @Param       id   path      string  true  "Conversation ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.ConversationDetailResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not authenticated"
// @Failure     403  {object}  handlers.ErrorResponse  "Owned by another user"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Router      /conversations/{id} [get]
func (h *Handlers) GetConversation(c *gin.Context) {
	id, found := conversationID(c)
	if !found {
		return
	}
	d, err := h.convs.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		writeServiceError(c, err, h.opts.HideForeign)
		return
	}
	ok(c, http.StatusOK, ConversationDetailResponse{Conversation: *d})
}

// PostMessage godoc
// @ID          postMessage
// @Summary     Append a message
// @Description Appends a message (user by default) and returns the full conversation.
// @Description Supports idempotency via the Idempotency-Key header (same key → no second insert).
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       id               path    string  true   "Conversation ID (UUID)"  format(uuid)
// @Param       body             body    handlers.PostMessageRequest  true  "Message"
// @Success     200  {object}  handlers.ConversationDetailResponse
// @Header      200  {string}  Idempotency-Replayed  "true when served from a previous request"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401  {object}  handlers.ErrorResponse  "Not authenticated"
// @Failure     403  {object}  handlers.ErrorResponse  "Owned by another user"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Router      /conversations/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	id, found := conversationID(c)
	if !found || h.replay(c, id) {
		return
	}

	var req PostMessageRequest
	if !bindJSON(c, &req, false) {
		return
	}
	d, err := h.convs.AppendMessage(c.Request.Context(), userID(c), id, services.NewMessage{
		Content:    req.Content,
		Role:       req.Role,
		Intent:     req.Intent,
		Confidence: req.Confidence,
	})
	if err != nil {
		writeServiceError(c, err, h.opts.HideForeign)
		return
	}
	h.remember(c, id, d)
	ok(c, http.StatusOK, ConversationDetailResponse{Message: "Message added", Conversation: *d})
}

// Reply godoc
// @ID          replyConversation
// @Summary     Send a message and get a reply
// @Description Classifies the content, then stores the user message and a canned assistant reply (with intent and confidence) together.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries"
// @Param       id               path    string  true   "Conversation ID (UUID)"  format(uuid)
// @Param       body             body    handlers.ReplyRequest  true  "User message"
// @Success     200  {object}  handlers.ConversationDetailResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401  {object}  handlers.ErrorResponse  "Not authenticated"
// @Failure     403  {object}  handlers.ErrorResponse  "Owned by another user"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Router      /conversations/{id}/reply [post]
func (h *Handlers) Reply(c *gin.Context) {
	id, found := conversationID(c)
	if !found || h.replay(c, id) {
		return
	}

	var req ReplyRequest
	if !bindJSON(c, &req, false) {
		return
	}
	d, err := h.replies.Reply(c.Request.Context(), userID(c), id, req.Content)
	if err != nil {
		writeServiceError(c, err, h.opts.HideForeign)
		return
	}
	h.remember(c, id, d)
	ok(c, http.StatusOK, ConversationDetailResponse{Message: "Reply added", Conversation: *d})
}

// RenameConversation godoc
// @ID          renameConversation
// @Summary     Rename a conversation
// @Tags        Conversations
// @Accept      json
// @Produce     json
// @Param       id    path      string  true  "Conversation ID (UUID)"  format(uuid)
// @Param       body  body      handlers.RenameConversationRequest  true  "New title"
// @Success     200   {object}  handlers.ConversationResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401   {object}  handlers.ErrorResponse  "Not authenticated"
// @Failure     403   {object}  handlers.ErrorResponse  "Owned by another user"
// @Failure     404   {object}  handlers.ErrorResponse  "Conversation not found"
// @Router      /conversations/{id} [patch]
func (h *Handlers) RenameConversation(c *gin.Context) {
	id, found := conversationID(c)
	if !found {
		return
	}
	var req RenameConversationRequest
	if !bindJSON(c, &req, true) {
		return
	}
	conv, err := h.convs.Rename(c.Request.Context(), userID(c), id, req.Title)
	if err != nil {
		writeServiceError(c, err, h.opts.HideForeign)
		return
	}
	ok(c, http.StatusOK, ConversationResponse{Message: "Conversation updated", Conversation: *conv})
}

// DeleteConversation godoc
// @ID          deleteConversation
// @Summary     Delete a conversation
// @Description Deletes the conversation and all of its messages.
// @Tags        Conversations
// @Produce     json
// @Param       id   path      string  true  "Conversation ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.MessageResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not authenticated"
// @Failure     403  {object}  handlers.ErrorResponse  "Owned by another user"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Router      /conversations/{id} [delete]
func (h *Handlers) DeleteConversation(c *gin.Context) {
	id, found := conversationID(c)
	if !found {
		return
	}
	if err := h.convs.Delete(c.Request.Context(), userID(c), id); err != nil {
		writeServiceError(c, err, h.opts.HideForeign)
		return
	}
	ok(c, http.StatusOK, MessageResponse{Message: "Conversation deleted"})
}
