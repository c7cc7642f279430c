// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Conversation model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a conversation is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Ownership is NOT enforced by GetConversation: the service layer loads by id
// and compares the owner itself so it can tell "forbidden" from "missing".
// Mutating helpers take the owner and scope their WHERE clause to it.
//
// Functions:
//
//   - CreateConversation(ctx, db, userID, title) -> *domain.Conversation, error
//   - ListConversations(ctx, db, userID, limit) -> []domain.Conversation, error
//   - GetConversation(ctx, db, id) -> *domain.Conversation, error
//   - UpdateConversationTitle(ctx, db, id, userID, title) -> error
//   - IncrementMessageCount(ctx, db, id, at) -> (int, error)
//   - DeleteConversation(ctx, db, id, userID) -> (int64, error)
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-intent-chat/internal/domain"
)

// CreateConversation inserts a new Conversation owned by userID with the given title.
// The ID is a random UUID and timestamps are set to UTC.
func CreateConversation(ctx context.Context, db *gorm.DB, userID, title string) (*domain.Conversation, error) {
	now := time.Now().UTC()
	c := &domain.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// ListConversations returns up to limit conversations belonging to userID,
// newest first. A non-positive limit means no limit.
func ListConversations(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.Conversation, error) {
	out := []domain.Conversation{}
	q := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// GetConversation fetches a single conversation by ID regardless of owner.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateConversationTitle sets the title of a conversation owned by userID.
// It returns ErrNotFound when no row matched.
func UpdateConversationTitle(ctx context.Context, db *gorm.DB, id, userID, title string) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{"title": title, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// IncrementMessageCount atomically bumps message_count and sets
// last_message_at, returning the new count. Run it inside the same
// transaction as the message insert so the count and the row agree.
func IncrementMessageCount(ctx context.Context, db *gorm.DB, id string, at time.Time) (int, error) {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"message_count":   gorm.Expr("message_count + ?", 1),
			"last_message_at": at,
			"updated_at":      at,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	var row struct{ MessageCount int }
	if err := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Select("message_count").
		Where("id = ?", id).
		Scan(&row).Error; err != nil {
		return 0, err
	}
	return row.MessageCount, nil
}

// DeleteConversation removes a conversation owned by userID together with its
// messages and idempotency records, in one transaction. It returns the number
// of conversation rows deleted (0 when it was already gone).
func DeleteConversation(ctx context.Context, db *gorm.DB, id, userID string) (int64, error) {
	var deleted int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&domain.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&domain.Idempotency{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&domain.Conversation{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	return deleted, err
}
