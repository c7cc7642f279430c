// Package services – ReplyService
//
// ReplyService answers a user message server-side: it classifies the text,
// picks a canned reply for the detected intent, and stores both turns in one
// transaction so a conversation never holds a question without its answer.
package services

import (
	"context"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-intent-chat/internal/domain"
	"github.com/tbourn/go-intent-chat/internal/intent"
)

// ReplyService pairs a ConversationService with a classifier.
type ReplyService struct {
	Conversations *ConversationService
	Classifier    intent.Classifier
}

// NewReplyService constructs a ReplyService.
func NewReplyService(conv *ConversationService, c intent.Classifier) *ReplyService {
	return &ReplyService{Conversations: conv, Classifier: c}
}

// Classify runs the classifier on text after the usual content
// normalization.
func (s *ReplyService) Classify(ctx context.Context, text string) (intent.Result, error) {
	_, span := otel.Tracer("services/ReplyService").Start(ctx, "Classify")
	defer span.End()

	text = normalizeContent(text)
	if text == "" {
		return intent.Result{}, NewValidationError("text", "Text is required")
	}
	if utf8.RuneCountInString(text) > s.Conversations.maxContent() {
		return intent.Result{}, NewValidationError("text", "Text is too long")
	}
	res := s.Classifier.Classify(text)
	span.SetAttributes(attribute.String("intent", res.Label))
	return res, nil
}

// Reply stores content as a user message followed by the assistant's answer
// and returns the refreshed conversation. The stored title is left as is.
func (s *ReplyService) Reply(ctx context.Context, userID, conversationID, content string) (*ConversationDetail, error) {
	ctx, span := otel.Tracer("services/ReplyService").Start(ctx, "Reply",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	conv := s.Conversations
	userMsg, err := conv.buildMessage(NewMessage{Content: content})
	if err != nil {
		return nil, err
	}
	if _, err := conv.authorize(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	res := s.Classifier.Classify(userMsg.Content)
	span.SetAttributes(
		attribute.String("intent", res.Label),
		attribute.Float64("confidence", res.Confidence),
	)

	label, confidence := res.Label, res.Confidence
	assistant := &domain.Message{
		Role:       domain.RoleAssistant,
		Content:    intent.Reply(res.Label, userMsg.Content),
		Intent:     &label,
		Confidence: &confidence,
	}

	if err := conv.insert(ctx, conversationID, userMsg, assistant); err != nil {
		return nil, err
	}
	return conv.Get(ctx, userID, conversationID)
}
