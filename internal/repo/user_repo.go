// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model
// (the credential store).
//
// Emails are stored lowercased and lookups lowercase their input too.
// A unique-index violation on email surfaces as ErrDuplicate.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-intent-chat/internal/domain"
)

// CreateUser inserts u, assigning an ID and timestamps when missing.
// It returns ErrDuplicate when the email is already registered.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetUserByID fetches a user or returns ErrNotFound.
func GetUserByID(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail fetches a user by case-insensitive email or returns ErrNotFound.
func GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// LinkOAuth attaches a provider identity to an existing user. The profile
// image is only filled when the user has none yet.
func LinkOAuth(ctx context.Context, db *gorm.DB, userID, provider, providerID, image string) error {
	updates := map[string]any{
		"oauth_provider":      provider,
		"oauth_provider_id":   providerID,
		"oauth_profile_image": image,
		"updated_at":          time.Now().UTC(),
	}
	res := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	if image != "" {
		return db.WithContext(ctx).Model(&domain.User{}).
			Where("id = ? AND (profile_image = '' OR profile_image IS NULL)", userID).
			Update("profile_image", image).Error
	}
	return nil
}

// UpdateProfileImage replaces the user's profile image. An empty image clears it.
func UpdateProfileImage(ctx context.Context, db *gorm.DB, userID, image string) error {
	res := db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"profile_image": image, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
