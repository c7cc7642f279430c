// Package services – ConversationService
//
// ConversationService manages conversations and their messages on behalf of
// an authenticated user. Every operation takes the caller's user id and
// compares it with the stored owner: a conversation that exists but belongs
// to someone else yields ErrForbidden, a missing one ErrConversationNotFound.
//
// Appends run in a single transaction that bumps the conversation's
// message_count (which also yields the message's sequence number) and then
// inserts the message row.
package services

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/go-intent-chat/internal/domain"
	"github.com/tbourn/go-intent-chat/internal/repo"
)

const (
	// DefaultListLimit is both the default and the maximum page size of List.
	DefaultListLimit = 50
	// DefaultTitleMaxLen caps titles by rune count.
	DefaultTitleMaxLen = 120
	// DefaultMaxContentRunes caps message content by rune count.
	DefaultMaxContentRunes = 8000

	maxIntentLen = 64
)

// FriendlyTitles is the pool a conversation created without a title draws from.
var FriendlyTitles = []string{
	"Starlight dialogue",
	"Evening thoughts",
	"Quick exchange",
	"New beginning",
	"Spark of ideas",
	"Quiet corner",
	"Mind garden",
	"Thought stream",
	"Curious mind",
	"Fresh start",
	"Morning brew",
	"Night owl",
	"Brainstorm",
	"Idea lab",
	"Open book",
	"Clear sky",
	"Warm welcome",
	"Friendly chat",
}

// ConversationRepo defines the repository contract required by
// ConversationService.
type ConversationRepo interface {
	CreateConversation(ctx context.Context, db *gorm.DB, userID, title string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.Conversation, error)
	// GetConversation loads by id without an owner filter.
	GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error)
	UpdateConversationTitle(ctx context.Context, db *gorm.DB, id, userID, title string) error
	// IncrementMessageCount returns the new count.
	IncrementMessageCount(ctx context.Context, db *gorm.DB, id string, at time.Time) (int, error)
	DeleteConversation(ctx context.Context, db *gorm.DB, id, userID string) (int64, error)
	ConversationsStats(ctx context.Context, db *gorm.DB, userID string) (int64, *time.Time, error)

	CreateMessage(ctx context.Context, db *gorm.DB, m *domain.Message) error
	ListMessages(ctx context.Context, db *gorm.DB, conversationID string) ([]domain.Message, error)
}

// ConversationDetail is a conversation together with its ordered messages.
type ConversationDetail struct {
	domain.Conversation
	Messages []domain.Message `json:"messages"`
}

// NewMessage is the input of AppendMessage.
type NewMessage struct {
	Content    string
	Role       string // defaults to "user"
	Intent     *string
	Confidence *float64
}

// ConversationService provides the conversation operations.
type ConversationService struct {
	DB   *gorm.DB
	Repo ConversationRepo

	TitleMaxLen     int
	MaxContentRunes int

	// Now is the clock used for message timestamps.
	Now func() time.Time
	// pick returns a value in [0, n); nil means math/rand/v2.
	pick func(n int) int
}

// NewConversationService constructs a ConversationService with default limits.
func NewConversationService(db *gorm.DB, r ConversationRepo) *ConversationService {
	return &ConversationService{
		DB:              db,
		Repo:            r,
		TitleMaxLen:     DefaultTitleMaxLen,
		MaxContentRunes: DefaultMaxContentRunes,
		Now:             time.Now,
	}
}

func convTracer() trace.Tracer { return otel.Tracer("services/ConversationService") }

// Create inserts a conversation owned by userID. A blank title is replaced
// by a random entry of FriendlyTitles.
func (s *ConversationService) Create(ctx context.Context, userID, title string) (*domain.Conversation, error) {
	ctx, span := convTracer().Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	title = s.clip(normalizeTitle(title))
	if title == "" {
		title = s.friendlyTitle()
	}
	return s.Repo.CreateConversation(ctx, s.DB, userID, title)
}

// List returns the user's conversations, newest first. limit is clamped to
// [1, DefaultListLimit]; non-positive means the maximum.
func (s *ConversationService) List(ctx context.Context, userID string, limit int) ([]domain.Conversation, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	ctx, span := convTracer().Start(ctx, "List",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	return s.Repo.ListConversations(ctx, s.DB, userID, limit)
}

// Stats returns the count and latest update time of the user's
// conversations. Handlers derive an ETag from it.
func (s *ConversationService) Stats(ctx context.Context, userID string) (int64, *time.Time, error) {
	return s.Repo.ConversationsStats(ctx, s.DB, userID)
}

// Get returns the conversation with its messages in chronological order.
func (s *ConversationService) Get(ctx context.Context, userID, id string) (*ConversationDetail, error) {
	ctx, span := convTracer().Start(ctx, "Get",
		trace.WithAttributes(
			attribute.String("conversation.id", id),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	c, err := s.authorize(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, c)
}

// AppendMessage adds one message and returns the refreshed conversation.
func (s *ConversationService) AppendMessage(ctx context.Context, userID, id string, in NewMessage) (*ConversationDetail, error) {
	ctx, span := convTracer().Start(ctx, "AppendMessage",
		trace.WithAttributes(
			attribute.String("conversation.id", id),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	m, err := s.buildMessage(in)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, userID, id); err != nil {
		return nil, err
	}
	if err := s.insert(ctx, id, m); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID, id)
}

// Rename sets a new title. A blank title is rejected with ErrEmptyTitle and
// leaves the stored title unchanged.
func (s *ConversationService) Rename(ctx context.Context, userID, id, title string) (*domain.Conversation, error) {
	ctx, span := convTracer().Start(ctx, "Rename",
		trace.WithAttributes(
			attribute.String("conversation.id", id),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	title = s.clip(normalizeTitle(title))
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if _, err := s.authorize(ctx, userID, id); err != nil {
		return nil, err
	}
	if err := s.Repo.UpdateConversationTitle(ctx, s.DB, id, userID, title); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	c, err := s.Repo.GetConversation(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return c, nil
}

// Delete removes the conversation and all of its messages. A row that
// disappears between the ownership check and the delete still counts as
// deleted.
func (s *ConversationService) Delete(ctx context.Context, userID, id string) error {
	ctx, span := convTracer().Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("conversation.id", id),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	if _, err := s.authorize(ctx, userID, id); err != nil {
		return err
	}
	_, err := s.Repo.DeleteConversation(ctx, s.DB, id, userID)
	return err
}

// authorize loads a conversation and checks that userID owns it.
func (s *ConversationService) authorize(ctx context.Context, userID, id string) (*domain.Conversation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrConversationNotFound
	}
	c, err := s.Repo.GetConversation(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	if c.UserID != userID {
		return nil, ErrForbidden
	}
	return c, nil
}

func (s *ConversationService) detail(ctx context.Context, c *domain.Conversation) (*ConversationDetail, error) {
	msgs, err := s.Repo.ListMessages(ctx, s.DB, c.ID)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return &ConversationDetail{Conversation: *c, Messages: msgs}, nil
}

// insert appends msgs to conversation id in one transaction, in order.
func (s *ConversationService) insert(ctx context.Context, id string, msgs ...*domain.Message) error {
	now := s.now()
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range msgs {
			seq, err := s.Repo.IncrementMessageCount(ctx, tx, id, now)
			if err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return ErrConversationNotFound
				}
				return err
			}
			m.ConversationID = id
			m.Seq = seq
			m.CreatedAt = now
			if err := s.Repo.CreateMessage(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

// buildMessage validates and normalizes an append request.
func (s *ConversationService) buildMessage(in NewMessage) (*domain.Message, error) {
	content := normalizeContent(in.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > s.maxContent() {
		return nil, ErrContentTooLong
	}

	verr := &ValidationError{}
	role := strings.ToLower(strings.TrimSpace(in.Role))
	if role == "" {
		role = domain.RoleUser
	}
	if role != domain.RoleUser && role != domain.RoleAssistant {
		verr.Add("role", "Role must be user or assistant")
	}

	var label *string
	if in.Intent != nil {
		if v := strings.TrimSpace(*in.Intent); v != "" {
			if len(v) > maxIntentLen {
				verr.Add("intent", "Intent is too long")
			}
			label = &v
		}
	}

	var conf *float64
	if in.Confidence != nil {
		v := *in.Confidence
		if math.IsNaN(v) || v < 0 || v > 1 {
			verr.Add("confidence", "Confidence must be between 0 and 1")
		}
		conf = &v
	}
	if !verr.Empty() {
		return nil, verr
	}

	return &domain.Message{Role: role, Content: content, Intent: label, Confidence: conf}, nil
}

func (s *ConversationService) maxContent() int {
	if s.MaxContentRunes > 0 {
		return s.MaxContentRunes
	}
	return DefaultMaxContentRunes
}

func (s *ConversationService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *ConversationService) friendlyTitle() string {
	pick := s.pick
	if pick == nil {
		pick = rand.IntN
	}
	return FriendlyTitles[pick(len(FriendlyTitles))]
}

// clip truncates a title to the configured maximum rune length.
func (s *ConversationService) clip(title string) string {
	limit := s.TitleMaxLen
	if limit <= 0 {
		limit = DefaultTitleMaxLen
	}
	if utf8.RuneCountInString(title) > limit {
		return strings.TrimSpace(string([]rune(title)[:limit]))
	}
	return title
}

// normalizeTitle applies NFC, trims, and collapses whitespace runs to one space.
func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(norm.NFC.String(s)), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

var blankLinesRE = regexp.MustCompile(`\n{3,}`)

// normalizeContent converts CRLF to LF, collapses 3+ newlines to a blank
// line, and trims.
func normalizeContent(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = blankLinesRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
