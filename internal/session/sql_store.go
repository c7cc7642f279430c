package session

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-intent-chat/internal/domain"
	"github.com/tbourn/go-intent-chat/internal/repo"
)

// SQLStore keeps sessions in the relational database next to users.
// Expired rows stay until Validate touches them or the sweeper runs.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore returns a Store backed by db.
func NewSQLStore(db *gorm.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) Save(ctx context.Context, rec *domain.Session) error {
	return repo.CreateSession(ctx, s.db, rec)
}

func (s *SQLStore) Load(ctx context.Context, id string) (*domain.Session, error) {
	rec, err := repo.GetSession(ctx, s.db, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	return repo.DeleteSession(ctx, s.db, id)
}

func (s *SQLStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return repo.DeleteExpiredSessions(ctx, s.db, now.UTC())
}
