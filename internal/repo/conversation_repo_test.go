package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-intent-chat/internal/domain"
)

func TestCreateConversation_Error_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	c, err := CreateConversation(context.Background(), db, "u1", "t")
	if err == nil || c != nil {
		t.Fatalf("expected error creating without table, got c=%v err=%v", c, err)
	}
}

func TestCreateAndGetConversation(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()

	c, err := CreateConversation(ctx, db, "u1", "Idea lab")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if c.ID == "" || c.UserID != "u1" || c.MessageCount != 0 || c.LastMessageAt != nil {
		t.Fatalf("unexpected conversation: %+v", c)
	}

	got, err := GetConversation(ctx, db, c.ID)
	if err != nil || got.Title != "Idea lab" {
		t.Fatalf("GetConversation: got=%+v err=%v", got, err)
	}
	if _, err := GetConversation(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListConversations_NewestFirst_Limit_OwnerScoped(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"a", "b", "c"} {
		row := &domain.Conversation{ID: id, UserID: "u1", Title: id, CreatedAt: base.Add(time.Duration(i) * time.Minute), UpdatedAt: base}
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	_ = db.Create(&domain.Conversation{ID: "z", UserID: "u2", Title: "z", CreatedAt: base, UpdatedAt: base}).Error

	all, err := ListConversations(ctx, db, "u1", 0)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(all) != 3 || all[0].ID != "c" || all[2].ID != "a" {
		t.Fatalf("unexpected order: %+v", all)
	}

	two, _ := ListConversations(ctx, db, "u1", 2)
	if len(two) != 2 || two[0].ID != "c" {
		t.Fatalf("limit not applied: %+v", two)
	}

	none, err := ListConversations(ctx, db, "nobody", 10)
	if err != nil || none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v err=%v", none, err)
	}
}

func TestUpdateConversationTitle_OwnerScoped(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()
	c, _ := CreateConversation(ctx, db, "u1", "old")

	if err := UpdateConversationTitle(ctx, db, c.ID, "u2", "hijack"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}
	if err := UpdateConversationTitle(ctx, db, c.ID, "u1", "new"); err != nil {
		t.Fatalf("UpdateConversationTitle: %v", err)
	}
	got, _ := GetConversation(ctx, db, c.ID)
	if got.Title != "new" {
		t.Fatalf("title not updated: %q", got.Title)
	}
}

func TestIncrementMessageCount(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()
	c, _ := CreateConversation(ctx, db, "u1", "t")

	at := time.Now().UTC()
	for want := 1; want <= 3; want++ {
		n, err := IncrementMessageCount(ctx, db, c.ID, at)
		if err != nil || n != want {
			t.Fatalf("IncrementMessageCount: n=%d want=%d err=%v", n, want, err)
		}
	}
	got, _ := GetConversation(ctx, db, c.ID)
	if got.MessageCount != 3 || got.LastMessageAt == nil {
		t.Fatalf("denormalized fields not updated: %+v", got)
	}

	if _, err := IncrementMessageCount(ctx, db, "missing", at); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteConversation_Cascades(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()
	c, _ := CreateConversation(ctx, db, "u1", "t")
	keep, _ := CreateConversation(ctx, db, "u1", "keep")

	for _, cid := range []string{c.ID, keep.ID} {
		if err := CreateMessage(ctx, db, &domain.Message{ConversationID: cid, Seq: 1, Role: domain.RoleUser, Content: "hi"}); err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
	}
	if _, err := CreateIdempotency(ctx, db, "u1", c.ID, "k", "m", 200, time.Hour); err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}

	// Foreign owner deletes nothing.
	n, err := DeleteConversation(ctx, db, c.ID, "u2")
	if err != nil || n != 0 {
		t.Fatalf("foreign delete: n=%d err=%v", n, err)
	}

	n, err = DeleteConversation(ctx, db, c.ID, "u1")
	if err != nil || n != 1 {
		t.Fatalf("DeleteConversation: n=%d err=%v", n, err)
	}
	if cnt, _ := CountMessages(ctx, db, c.ID); cnt != 0 {
		t.Fatalf("messages not cascaded: %d", cnt)
	}
	if cnt, _ := CountMessages(ctx, db, keep.ID); cnt != 1 {
		t.Fatalf("other conversation affected: %d", cnt)
	}
	var idem int64
	db.Model(&domain.Idempotency{}).Where("conversation_id = ?", c.ID).Count(&idem)
	if idem != 0 {
		t.Fatalf("idempotency records not removed: %d", idem)
	}

	// Second delete is a no-op.
	if n, err := DeleteConversation(ctx, db, c.ID, "u1"); err != nil || n != 0 {
		t.Fatalf("repeat delete: n=%d err=%v", n, err)
	}
}
