// Package domain defines the persistence models for users, sessions,
// conversations, messages, and the intent catalog. These types are mapped
// with GORM and form the core data layer of the application.
package domain

import (
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// OAuth providers supported for account linkage.
const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
)

// User is an identity record. A user authenticates with a password, an OAuth
// linkage, or both once an existing password account has been linked.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Email: lowercased, unique.
//   - PasswordHash: bcrypt hash; nil for OAuth-only accounts. Never serialized.
//   - Name: display name.
//   - OAuthProvider / OAuthProviderID / OAuthProfileImage: optional linkage.
//   - ProfileImage: data URI or URL shown in the UI (may be empty).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type User struct {
	ID                string    `json:"id"            gorm:"type:char(36);primaryKey"`
	Email             string    `json:"email"         gorm:"type:varchar(320);not null;uniqueIndex:ux_users_email"`
	PasswordHash      *string   `json:"-"             gorm:"type:varchar(100)"`
	Name              string    `json:"name"          gorm:"type:varchar(255);not null"`
	OAuthProvider     *string   `json:"-"             gorm:"column:oauth_provider;type:varchar(16);check:oauth_provider IS NULL OR oauth_provider IN ('google','github')"`
	OAuthProviderID   *string   `json:"-"             gorm:"column:oauth_provider_id;type:varchar(128)"`
	OAuthProfileImage *string   `json:"-"             gorm:"column:oauth_profile_image;type:text"`
	ProfileImage      string    `json:"profileImage" gorm:"type:text;not null;default:''"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// HasPassword reports whether the user can log in with a password.
func (u *User) HasPassword() bool { return u.PasswordHash != nil && *u.PasswordHash != "" }

// IsLinked reports whether the user carries an OAuth linkage.
func (u *User) IsLinked() bool { return u.OAuthProvider != nil && *u.OAuthProvider != "" }

// Session binds an opaque bearer token to a user until ExpiresAt.
//
// The raw token is never persisted: ID holds the hex SHA-256 digest of it,
// so a leaked table cannot be replayed as cookies.
type Session struct {
	ID        string    `gorm:"type:char(64);primaryKey"`
	UserID    string    `gorm:"type:char(36);not null;index"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }

// Conversation is a titled container of messages owned by exactly one user.
// MessageCount and LastMessageAt are denormalized from the messages table and
// updated on every append.
type Conversation struct {
	ID            string     `json:"id"              gorm:"type:char(36);primaryKey"`
	UserID        string     `json:"userId"         gorm:"type:char(36);not null;index:idx_user_conversations,priority:1"`
	Title         string     `json:"title"           gorm:"type:varchar(255);not null;default:'New Chat'"`
	MessageCount  int        `json:"messageCount"   gorm:"not null;default:0"`
	LastMessageAt *time.Time `json:"lastMessageAt"`
	CreatedAt     time.Time  `json:"createdAt"      gorm:"index:idx_user_conversations,priority:2"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message is one utterance within a conversation. Messages are immutable and
// are removed only together with their conversation.
//
// Fields:
//   - ConversationID: owning conversation (FK, cascade on delete).
//   - Seq: 1-based insertion number inside the conversation; breaks ties
//     between identical CreatedAt values.
//   - Role: "user" or "assistant" (enforced by DB constraint).
//   - Intent / Confidence: optional classification; confidence in [0,1].
type Message struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string    `json:"conversationId" gorm:"type:char(36);not null;index:idx_conversation_msgs,priority:1"`
	Seq            int       `json:"-"               gorm:"not null;default:0"`
	Role           string    `json:"role"            gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content        string    `json:"content"         gorm:"type:text;not null"`
	Intent         *string   `json:"intent,omitempty" gorm:"type:varchar(64);index"`
	Confidence     *float64  `json:"confidence,omitempty" gorm:"check:confidence IS NULL OR (confidence >= 0 AND confidence <= 1)"`
	CreatedAt      time.Time `json:"createdAt"      gorm:"index:idx_conversation_msgs,priority:2"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Intent is a catalog entry describing one classification label.
// Keywords are stored comma-joined.
type Intent struct {
	Name                string    `json:"name"                 gorm:"type:varchar(64);primaryKey"`
	Description         string    `json:"description"          gorm:"type:text;not null"`
	Keywords            string    `json:"-"                    gorm:"type:text;not null;default:''"`
	Category            string    `json:"category"             gorm:"type:varchar(32);not null;default:'other'"`
	Color               string    `json:"color"                gorm:"type:varchar(32);not null"`
	ConfidenceThreshold float64   `json:"confidenceThreshold" gorm:"not null;default:0.5;check:confidence_threshold >= 0 AND confidence_threshold <= 1"`
	CreatedAt           time.Time `json:"-"`
	UpdatedAt           time.Time `json:"-"`
}

// TableName returns the database table name for Intent.
func (Intent) TableName() string { return "intents" }
