package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-intent-chat/internal/domain"
)

// SeedIntents upserts the catalog by name. Existing rows get their
// description, keywords, category, color, and threshold overwritten.
func SeedIntents(ctx context.Context, db *gorm.DB, intents []domain.Intent) error {
	if len(intents) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]domain.Intent, len(intents))
	for i, it := range intents {
		it.CreatedAt, it.UpdatedAt = now, now
		rows[i] = it
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"description", "keywords", "category", "color", "confidence_threshold", "updated_at",
		}),
	}).Create(&rows).Error
}

// ListIntents returns the catalog ordered by name.
func ListIntents(ctx context.Context, db *gorm.DB) ([]domain.Intent, error) {
	out := []domain.Intent{}
	err := db.WithContext(ctx).Order("name ASC").Find(&out).Error
	return out, err
}
