package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-intent-chat/internal/domain"
	"github.com/tbourn/go-intent-chat/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// sqlRepo satisfies UserRepo and ConversationRepo with the repo package.
type sqlRepo struct{}

func (sqlRepo) CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	return repo.CreateUser(ctx, db, u)
}
func (sqlRepo) GetUserByID(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return repo.GetUserByID(ctx, db, id)
}
func (sqlRepo) GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	return repo.GetUserByEmail(ctx, db, email)
}
func (sqlRepo) LinkOAuth(ctx context.Context, db *gorm.DB, userID, provider, providerID, image string) error {
	return repo.LinkOAuth(ctx, db, userID, provider, providerID, image)
}
func (sqlRepo) UpdateProfileImage(ctx context.Context, db *gorm.DB, userID, image string) error {
	return repo.UpdateProfileImage(ctx, db, userID, image)
}

func (sqlRepo) CreateConversation(ctx context.Context, db *gorm.DB, userID, title string) (*domain.Conversation, error) {
	return repo.CreateConversation(ctx, db, userID, title)
}
func (sqlRepo) ListConversations(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.Conversation, error) {
	return repo.ListConversations(ctx, db, userID, limit)
}
func (sqlRepo) GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	return repo.GetConversation(ctx, db, id)
}
func (sqlRepo) UpdateConversationTitle(ctx context.Context, db *gorm.DB, id, userID, title string) error {
	return repo.UpdateConversationTitle(ctx, db, id, userID, title)
}
func (sqlRepo) IncrementMessageCount(ctx context.Context, db *gorm.DB, id string, at time.Time) (int, error) {
	return repo.IncrementMessageCount(ctx, db, id, at)
}
func (sqlRepo) DeleteConversation(ctx context.Context, db *gorm.DB, id, userID string) (int64, error) {
	return repo.DeleteConversation(ctx, db, id, userID)
}
func (sqlRepo) ConversationsStats(ctx context.Context, db *gorm.DB, userID string) (int64, *time.Time, error) {
	return repo.ConversationsStats(ctx, db, userID)
}
func (sqlRepo) CreateMessage(ctx context.Context, db *gorm.DB, m *domain.Message) error {
	return repo.CreateMessage(ctx, db, m)
}
func (sqlRepo) ListMessages(ctx context.Context, db *gorm.DB, conversationID string) ([]domain.Message, error) {
	return repo.ListMessages(ctx, db, conversationID)
}

// fixedClock returns a clock frozen at t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }
