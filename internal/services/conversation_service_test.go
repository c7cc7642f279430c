package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-intent-chat/internal/domain"
	"github.com/tbourn/go-intent-chat/internal/repo"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newConvSvc(t *testing.T) *ConversationService {
	t.Helper()
	s := NewConversationService(newSvcDB(t), sqlRepo{})
	s.Now = fixedClock(t0)
	return s
}

func fptr(v float64) *float64 { return &v }
func sptr(v string) *string   { return &v }

func TestNewConversationService_Defaults(t *testing.T) {
	s := NewConversationService(nil, sqlRepo{})
	if s.TitleMaxLen != 120 || s.MaxContentRunes != 8000 || s.Now == nil {
		t.Fatalf("unexpected defaults: %+v", s)
	}
}

func TestNormalizeTitleAndContent(t *testing.T) {
	if got := normalizeTitle("  hello \t\n  world  "); got != "hello world" {
		t.Fatalf("normalizeTitle = %q", got)
	}
	if got := normalizeContent("\r\n a\r\n\r\n\r\n\r\nb \n"); got != "a\n\nb" {
		t.Fatalf("normalizeContent = %q", got)
	}
}

func TestCreate_TitleHandling(t *testing.T) {
	s := newConvSvc(t)
	s.pick = func(n int) int {
		if n != len(FriendlyTitles) {
			t.Fatalf("pick(%d); want %d", n, len(FriendlyTitles))
		}
		return 3
	}
	ctx := context.Background()

	c, err := s.Create(ctx, "u1", "   ")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.Title != FriendlyTitles[3] || c.UserID != "u1" || c.MessageCount != 0 {
		t.Fatalf("unexpected conversation: %+v", c)
	}

	s.TitleMaxLen = 5
	c, err = s.Create(ctx, "u1", "  héllo   wörld ")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.Title != "héllo" {
		t.Fatalf("Title = %q; want clipped by runes", c.Title)
	}
}

func TestList_NewestFirstOwnerScopedAndClamped(t *testing.T) {
	s := newConvSvc(t)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		c, err := s.Create(ctx, "u1", "c")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		// Distinct created_at values.
		s.DB.Model(&domain.Conversation{}).Where("id = ?", c.ID).Update("created_at", t0.Add(time.Duration(i)*time.Minute))
		ids = append(ids, c.ID)
	}
	if _, err := s.Create(ctx, "u2", "other"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.List(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 || got[0].ID != ids[2] || got[2].ID != ids[0] {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got, _ := s.List(ctx, "u1", 2); len(got) != 2 {
		t.Fatalf("limit 2 returned %d", len(got))
	}
	if got, _ := s.List(ctx, "u1", 1000); len(got) != 3 {
		t.Fatalf("over-limit returned %d", len(got))
	}
	if got, _ := s.List(ctx, "nobody", 10); got == nil || len(got) != 0 {
		t.Fatalf("want empty non-nil slice, got %#v", got)
	}
}

func TestGet_Ownership(t *testing.T) {
	s := newConvSvc(t)
	ctx := context.Background()
	c, _ := s.Create(ctx, "owner", "mine")

	d, err := s.Get(ctx, "owner", c.ID)
	if err != nil || d.ID != c.ID || d.Messages == nil || len(d.Messages) != 0 {
		t.Fatalf("Get = %+v, %v", d, err)
	}
	if _, err := s.Get(ctx, "intruder", c.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign: %v", err)
	}
	if _, err := s.Get(ctx, "owner", "missing"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("missing: %v", err)
	}
	if _, err := s.Get(ctx, "owner", ""); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("blank id: %v", err)
	}
}

func TestAppendMessage_OrderCountAndFields(t *testing.T) {
	s := newConvSvc(t)
	ctx := context.Background()
	c, _ := s.Create(ctx, "u1", "chat")

	if _, err := s.AppendMessage(ctx, "u1", c.ID, NewMessage{Content: "  first\r\nline  "}); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	d, err := s.AppendMessage(ctx, "u1", c.ID, NewMessage{
		Content: "second", Role: "assistant", Intent: sptr("greeting"), Confidence: fptr(0.9),
	})
	if err != nil {
		t.Fatalf("append 2: %v", err)
	}
	if _, err := s.AppendMessage(ctx, "u1", c.ID, NewMessage{Content: "third"}); err != nil {
		t.Fatalf("append 3: %v", err)
	}

	d, err = s.Get(ctx, "u1", c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.MessageCount != 3 || d.LastMessageAt == nil || !d.LastMessageAt.Equal(t0) {
		t.Fatalf("unexpected counters: count=%d last=%v", d.MessageCount, d.LastMessageAt)
	}
	want := []string{"first\nline", "second", "third"}
	for i, m := range d.Messages {
		if m.Content != want[i] || m.Seq != i+1 {
			t.Fatalf("msg %d = %q seq %d", i, m.Content, m.Seq)
		}
	}
	if d.Messages[0].Role != domain.RoleUser || d.Messages[0].Intent != nil {
		t.Fatalf("default role/intent wrong: %+v", d.Messages[0])
	}
	m := d.Messages[1]
	if m.Role != domain.RoleAssistant || m.Intent == nil || *m.Intent != "greeting" || m.Confidence == nil || *m.Confidence != 0.9 {
		t.Fatalf("assistant message wrong: %+v", m)
	}
}

func TestAppendMessage_Validation(t *testing.T) {
	s := newConvSvc(t)
	s.MaxContentRunes = 3
	ctx := context.Background()
	c, _ := s.Create(ctx, "u1", "chat")

	if _, err := s.AppendMessage(ctx, "u1", c.ID, NewMessage{Content: " \n\t "}); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("empty: %v", err)
	}
	if _, err := s.AppendMessage(ctx, "u1", c.ID, NewMessage{Content: "abcd"}); !errors.Is(err, ErrContentTooLong) {
		t.Fatalf("too long: %v", err)
	}

	cases := map[string]NewMessage{
		"role":       {Content: "ok", Role: "system"},
		"confidence": {Content: "ok", Confidence: fptr(1.5)},
		"intent":     {Content: "ok", Intent: sptr(strings.Repeat("x", 65))},
	}
	for field, in := range cases {
		_, err := s.AppendMessage(ctx, "u1", c.ID, in)
		var verr *ValidationError
		if !errors.As(err, &verr) || len(verr.Fields[field]) == 0 {
			t.Fatalf("%s: want field error, got %v", field, err)
		}
	}

	d, _ := s.Get(ctx, "u1", c.ID)
	if d.MessageCount != 0 || len(d.Messages) != 0 {
		t.Fatalf("invalid appends must not write: %+v", d)
	}
}

func TestAppendMessage_ForeignAndMissing(t *testing.T) {
	s := newConvSvc(t)
	ctx := context.Background()
	c, _ := s.Create(ctx, "owner", "chat")

	if _, err := s.AppendMessage(ctx, "intruder", c.ID, NewMessage{Content: "hi"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign: %v", err)
	}
	if _, err := s.AppendMessage(ctx, "owner", "nope", NewMessage{Content: "hi"}); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("missing: %v", err)
	}
	n, _ := repo.CountMessages(ctx, s.DB, c.ID)
	if n != 0 {
		t.Fatalf("messages = %d; want 0", n)
	}
}

func TestRename(t *testing.T) {
	s := newConvSvc(t)
	ctx := context.Background()
	c, _ := s.Create(ctx, "u1", "old")

	if _, err := s.Rename(ctx, "u1", c.ID, "   "); !errors.Is(err, ErrEmptyTitle) || !errors.Is(err, ErrValidation) {
		t.Fatalf("blank: %v", err)
	}
	if got, _ := repo.GetConversation(ctx, s.DB, c.ID); got.Title != "old" {
		t.Fatalf("title changed on rejected rename: %q", got.Title)
	}

	r, err := s.Rename(ctx, "u1", c.ID, "  new   name ")
	if err != nil || r.Title != "new name" {
		t.Fatalf("Rename = %+v, %v", r, err)
	}
	if _, err := s.Rename(ctx, "u2", c.ID, "hijack"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign: %v", err)
	}
	if _, err := s.Rename(ctx, "u1", "missing", "x"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("missing: %v", err)
	}
}

func TestDelete_CascadesAndChecksOwner(t *testing.T) {
	s := newConvSvc(t)
	ctx := context.Background()
	c, _ := s.Create(ctx, "u1", "chat")
	if _, err := s.AppendMessage(ctx, "u1", c.ID, NewMessage{Content: "hello"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := s.Delete(ctx, "u2", c.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign delete: %v", err)
	}
	if err := s.Delete(ctx, "u1", c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n, _ := repo.CountMessages(ctx, s.DB, c.ID); n != 0 {
		t.Fatalf("messages left: %d", n)
	}
	if err := s.Delete(ctx, "u1", c.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

// vanishingRepo reports the conversation as already gone at delete time.
type vanishingRepo struct{ sqlRepo }

func (vanishingRepo) DeleteConversation(context.Context, *gorm.DB, string, string) (int64, error) {
	return 0, nil
}

func TestDelete_ConcurrentVanishIsSuccess(t *testing.T) {
	s := newConvSvc(t)
	s.Repo = vanishingRepo{}
	c, _ := s.Create(context.Background(), "u1", "chat")
	if err := s.Delete(context.Background(), "u1", c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestStats(t *testing.T) {
	s := newConvSvc(t)
	ctx := context.Background()
	n, latest, err := s.Stats(ctx, "u1")
	if err != nil || n != 0 || latest != nil {
		t.Fatalf("empty stats = %d %v %v", n, latest, err)
	}
	_, _ = s.Create(ctx, "u1", "a")
	n, latest, err = s.Stats(ctx, "u1")
	if err != nil || n != 1 || latest == nil {
		t.Fatalf("stats = %d %v %v", n, latest, err)
	}
}
