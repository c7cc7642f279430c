package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-intent-chat/internal/domain"
	"github.com/tbourn/go-intent-chat/internal/intent"
)

func newReplySvc(t *testing.T) *ReplyService {
	t.Helper()
	return NewReplyService(newConvSvc(t), intent.NewKeywordClassifier(intent.DefaultCatalog()))
}

func TestReply_StoresBothTurns(t *testing.T) {
	s := newReplySvc(t)
	ctx := context.Background()
	c, _ := s.Conversations.Create(ctx, "u1", "Quiet corner")

	d, err := s.Reply(ctx, "u1", c.ID, "  Hello there ")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if d.MessageCount != 2 || len(d.Messages) != 2 {
		t.Fatalf("unexpected detail: %+v", d)
	}
	if d.Title != "Quiet corner" {
		t.Fatalf("title changed to %q", d.Title)
	}

	u, a := d.Messages[0], d.Messages[1]
	if u.Role != domain.RoleUser || u.Content != "Hello there" || u.Intent != nil {
		t.Fatalf("user message wrong: %+v", u)
	}
	if a.Role != domain.RoleAssistant || a.Intent == nil || *a.Intent != intent.Greeting {
		t.Fatalf("assistant message wrong: %+v", a)
	}
	if a.Confidence == nil || *a.Confidence < 0.85 || *a.Confidence > 0.99 {
		t.Fatalf("confidence out of range: %v", a.Confidence)
	}
	if a.Content != intent.Reply(intent.Greeting, "Hello there") {
		t.Fatalf("reply not deterministic for content: %q", a.Content)
	}
	if a.Seq <= u.Seq {
		t.Fatalf("assistant must follow user: %d <= %d", a.Seq, u.Seq)
	}
}

func TestReply_Errors(t *testing.T) {
	s := newReplySvc(t)
	ctx := context.Background()
	c, _ := s.Conversations.Create(ctx, "owner", "")

	if _, err := s.Reply(ctx, "owner", c.ID, "   "); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("empty: %v", err)
	}
	if _, err := s.Reply(ctx, "intruder", c.ID, "hi"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign: %v", err)
	}
	if _, err := s.Reply(ctx, "owner", "missing", "hi"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("missing: %v", err)
	}
	d, _ := s.Conversations.Get(ctx, "owner", c.ID)
	if d.MessageCount != 0 {
		t.Fatalf("failed replies must not write, count=%d", d.MessageCount)
	}
}

func TestClassify(t *testing.T) {
	s := newReplySvc(t)
	ctx := context.Background()

	res, err := s.Classify(ctx, "what is this?")
	if err != nil || res.Label != intent.Question {
		t.Fatalf("Classify = %+v, %v", res, err)
	}
	if _, err := s.Classify(ctx, " "); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank: %v", err)
	}
}
