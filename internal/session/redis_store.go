package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-intent-chat/internal/domain"
)

// expiredGrace keeps a Redis key alive briefly past ExpiresAt so Validate can
// still report ErrExpired instead of ErrInvalidSession.
const expiredGrace = time.Hour

// RedisStore keeps sessions as hashes under "<prefix><digest>". Each key
// carries a TTL, so Redis reclaims expired sessions itself and
// DeleteExpired has nothing to do.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore returns a Store on client. An empty prefix defaults to "session:".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "session:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisClient connects to addr and verifies the connection with PING.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (r *RedisStore) key(id string) string { return r.prefix + id }

func (r *RedisStore) Save(ctx context.Context, s *domain.Session) error {
	ttl := s.ExpiresAt.Sub(s.CreatedAt) + expiredGrace
	if ttl <= 0 {
		return nil
	}
	k := r.key(s.ID)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k,
			"user_id", s.UserID,
			"expires_at", s.ExpiresAt.UTC().Format(time.RFC3339Nano),
			"created_at", s.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		p.Expire(ctx, k, ttl)
		return nil
	})
	return err
}

func (r *RedisStore) Load(ctx context.Context, id string) (*domain.Session, error) {
	vals, err := r.client.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 || vals["user_id"] == "" {
		return nil, ErrNotFound
	}
	exp, err := time.Parse(time.RFC3339Nano, vals["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("session: corrupt expires_at: %w", err)
	}
	created, _ := time.Parse(time.RFC3339Nano, vals["created_at"])
	return &domain.Session{ID: id, UserID: vals["user_id"], ExpiresAt: exp, CreatedAt: created}, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}

// DeleteExpired is a no-op: key TTLs reclaim storage.
func (r *RedisStore) DeleteExpired(context.Context, time.Time) (int64, error) { return 0, nil }
