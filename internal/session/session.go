// Package session issues, validates, and revokes opaque bearer tokens that
// bind a browser to a user id for a bounded lifetime.
//
// Tokens are 32 random bytes encoded with base64url. Only the hex SHA-256
// digest of a token reaches the Store, so the persisted form cannot be
// presented back as a cookie. Expired sessions are rejected on validation
// (and deleted eagerly) and swept in the background; see Sweep and RunSweeper.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tbourn/go-intent-chat/internal/domain"
)

// DefaultTTL is the session lifetime when none is configured.
const DefaultTTL = 7 * 24 * time.Hour

// tokenBytes is the amount of randomness per token (256 bits).
const tokenBytes = 32

var (
	// ErrUnauthenticated means no usable credential was presented.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrInvalidSession means the token does not match any live session.
	ErrInvalidSession = fmt.Errorf("%w: invalid session", ErrUnauthenticated)
	// ErrExpired means the session existed but its lifetime has elapsed.
	ErrExpired = errors.New("session expired")
	// ErrNotFound is returned by stores for unknown session ids.
	ErrNotFound = errors.New("session not found")
)

// Store persists session records keyed by token digest.
type Store interface {
	Save(ctx context.Context, s *domain.Session) error
	// Load returns ErrNotFound for unknown ids. It does not check expiry.
	Load(ctx context.Context, id string) (*domain.Session, error)
	// Delete is idempotent.
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes sessions whose expiry is before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Manager is safe for concurrent use; all state lives in the Store.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets the session lifetime. Non-positive values are ignored.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager builds a Manager on top of store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{store: store, ttl: DefaultTTL, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// TTL returns the configured session lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue creates a session for userID and returns the raw token and its expiry.
func (m *Manager) Issue(ctx context.Context, userID string) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, errors.New("session: empty user id")
	}
	token, err := newToken()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("session: generate token: %w", err)
	}
	now := m.now().UTC()
	rec := &domain.Session{
		ID:        Digest(token),
		UserID:    userID,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}
	if err := m.store.Save(ctx, rec); err != nil {
		return "", time.Time{}, fmt.Errorf("session: save: %w", err)
	}
	return token, rec.ExpiresAt, nil
}

// Validate resolves token to a user id.
//
// It returns ErrUnauthenticated for an empty token, ErrInvalidSession when no
// session matches, and ErrExpired when the session is past its expiry. An
// expired session is deleted before returning.
func (m *Manager) Validate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthenticated
	}
	id := Digest(token)
	rec, err := m.store.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return "", ErrInvalidSession
	}
	if err != nil {
		return "", fmt.Errorf("session: load: %w", err)
	}
	if m.now().After(rec.ExpiresAt) {
		_ = m.store.Delete(ctx, id)
		return "", ErrExpired
	}
	return rec.UserID, nil
}

// Revoke deletes the session for token. Unknown or empty tokens are a no-op.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.store.Delete(ctx, Digest(token)); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

// Digest returns the storage key for a raw token.
func Digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
