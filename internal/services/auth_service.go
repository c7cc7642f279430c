// Package services – AuthService
//
// AuthService owns signup, password login, OAuth login, and the session
// lifecycle seen from the user's side (who am I, log out). Passwords are
// hashed here before anything reaches the repository; the persisted user
// never leaves this package without being projected to PublicUser.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-intent-chat/internal/domain"
	"github.com/tbourn/go-intent-chat/internal/repo"
	"github.com/tbourn/go-intent-chat/internal/session"
)

// MaxProfileImageLen bounds the stored profile image (data URI or URL).
const MaxProfileImageLen = 700000

// DefaultOAuthTimeout bounds a full OAuth exchange including user info.
const DefaultOAuthTimeout = 10 * time.Second

// UserRepo is the persistence contract AuthService needs.
type UserRepo interface {
	CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error
	GetUserByID(ctx context.Context, db *gorm.DB, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error)
	LinkOAuth(ctx context.Context, db *gorm.DB, userID, provider, providerID, image string) error
	UpdateProfileImage(ctx context.Context, db *gorm.DB, userID, image string) error
}

// Sessions is the subset of *session.Manager used by AuthService.
type Sessions interface {
	Issue(ctx context.Context, userID string) (string, time.Time, error)
	Validate(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
}

// PublicUser is the only user shape exposed to clients.
type PublicUser struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	ProfileImage string `json:"profileImage"`
}

// AuthResult is returned by every successful login path.
type AuthResult struct {
	User      PublicUser
	Token     string
	ExpiresAt time.Time
}

// AuthService authenticates users and manages their sessions.
type AuthService struct {
	DB       *gorm.DB
	Users    UserRepo
	Sessions Sessions

	// Providers maps a provider name ("google", "github") to its adapter.
	Providers map[string]OAuthProvider

	// BcryptCost is passed to HashPassword.
	BcryptCost int
	// OAuthTimeout bounds OAuthLogin's provider calls.
	OAuthTimeout time.Duration
}

// NewAuthService wires an AuthService with default cost and timeout.
func NewAuthService(db *gorm.DB, users UserRepo, sessions Sessions, providers ...OAuthProvider) *AuthService {
	m := make(map[string]OAuthProvider, len(providers))
	for _, p := range providers {
		if p != nil {
			m[p.Name()] = p
		}
	}
	return &AuthService{
		DB:           db,
		Users:        users,
		Sessions:     sessions,
		Providers:    m,
		OAuthTimeout: DefaultOAuthTimeout,
	}
}

func authTracer() trace.Tracer { return otel.Tracer("services/AuthService") }

// Signup registers a password account and logs it in.
func (s *AuthService) Signup(ctx context.Context, email, password, name string) (res *AuthResult, err error) {
	ctx, span := authTracer().Start(ctx, "Signup")
	defer span.End()
	defer func() { recordAuth("signup", err) }()

	email = normalizeEmail(email)
	name = strings.TrimSpace(name)

	verr := &ValidationError{}
	if !looksLikeEmail(email) {
		verr.Add("email", "Invalid email address")
	}
	if len(password) < MinPasswordLen {
		verr.Add("password", fmt.Sprintf("Password must be at least %d characters", MinPasswordLen))
	} else if len(password) > MaxPasswordLen {
		verr.Add("password", fmt.Sprintf("Password must be at most %d bytes", MaxPasswordLen))
	}
	if name == "" {
		verr.Add("name", "Name is required")
	}
	if !verr.Empty() {
		return nil, verr
	}

	if _, err := s.Users.GetUserByEmail(ctx, s.DB, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(password, s.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &domain.User{Email: email, Name: name, PasswordHash: &hash}
	if err := s.Users.CreateUser(ctx, s.DB, u); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", u.ID))

	return s.issue(ctx, u)
}

// Login checks email and password. A malformed email is a validation error;
// every credential failure is reported as ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (res *AuthResult, err error) {
	ctx, span := authTracer().Start(ctx, "Login")
	defer span.End()
	defer func() { recordAuth("login", err) }()

	email = normalizeEmail(email)
	if email != "" && !looksLikeEmail(email) {
		return nil, NewValidationError("email", "Invalid email address")
	}
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := s.Users.GetUserByEmail(ctx, s.DB, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !u.HasPassword() || !CheckPassword(*u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(ctx, u)
}

// OAuthLogin exchanges code with provider and logs in the matching local
// user, linking or creating it as needed. Provider failures leave no local
// state behind.
func (s *AuthService) OAuthLogin(ctx context.Context, provider, code string) (res *AuthResult, err error) {
	ctx, span := authTracer().Start(ctx, "OAuthLogin",
		trace.WithAttributes(attribute.String("oauth.provider", provider)),
	)
	defer span.End()
	defer func() { recordAuth("oauth", err) }()

	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider != domain.ProviderGoogle && provider != domain.ProviderGitHub {
		return nil, NewValidationError("provider", "Unsupported OAuth provider")
	}
	if strings.TrimSpace(code) == "" {
		return nil, NewValidationError("code", "Authorization code is required")
	}
	p, ok := s.Providers[provider]
	if !ok || !p.Configured() {
		return nil, ErrOAuthNotConfigured
	}

	timeout := s.OAuthTimeout
	if timeout <= 0 {
		timeout = DefaultOAuthTimeout
	}
	xctx, cancel := context.WithTimeout(ctx, timeout)
	profile, err := p.Exchange(xctx, code)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOAuthExchangeFailed, err)
	}

	email := normalizeEmail(profile.Email)
	if email == "" {
		email = placeholderEmail(provider, profile)
	}

	u, err := s.Users.GetUserByEmail(ctx, s.DB, email)
	switch {
	case err == nil:
		if !u.IsLinked() {
			if err := s.Users.LinkOAuth(ctx, s.DB, u.ID, provider, profile.ProviderID, profile.AvatarURL); err != nil {
				return nil, err
			}
			if u, err = s.Users.GetUserByID(ctx, s.DB, u.ID); err != nil {
				return nil, err
			}
		}
	case errors.Is(err, repo.ErrNotFound):
		if u, err = s.createOAuthUser(ctx, email, provider, profile); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	return s.issue(ctx, u)
}

func (s *AuthService) createOAuthUser(ctx context.Context, email, provider string, p *OAuthProfile) (*domain.User, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = strings.TrimSpace(p.Login)
	}
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	pid := p.ProviderID
	u := &domain.User{
		Email:         email,
		Name:          name,
		OAuthProvider: &provider,
		ProfileImage:  p.AvatarURL,
	}
	u.OAuthProviderID = &pid
	if p.AvatarURL != "" {
		img := p.AvatarURL
		u.OAuthProfileImage = &img
	}
	if err := s.Users.CreateUser(ctx, s.DB, u); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			// Lost a race with a concurrent first login for the same email.
			return s.Users.GetUserByEmail(ctx, s.DB, email)
		}
		return nil, err
	}
	return u, nil
}

// Authenticate resolves a session token to a user id.
func (s *AuthService) Authenticate(ctx context.Context, token string) (string, error) {
	uid, err := s.Sessions.Validate(ctx, token)
	if err != nil {
		return "", mapSessionError(err)
	}
	return uid, nil
}

// Me returns the user behind token.
func (s *AuthService) Me(ctx context.Context, token string) (*PublicUser, error) {
	ctx, span := authTracer().Start(ctx, "Me")
	defer span.End()

	uid, err := s.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	u, err := s.Users.GetUserByID(ctx, s.DB, uid)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserGone
		}
		return nil, err
	}
	pu := toPublic(u)
	return &pu, nil
}

// Logout revokes token. Unknown and empty tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, token string) (err error) {
	defer func() { recordAuth("logout", err) }()
	return s.Sessions.Revoke(ctx, token)
}

// UpdateProfileImage replaces (or clears, when image is empty) the profile
// image of userID.
func (s *AuthService) UpdateProfileImage(ctx context.Context, userID, image string) (*PublicUser, error) {
	ctx, span := authTracer().Start(ctx, "UpdateProfileImage",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	image = strings.TrimSpace(image)
	if msg := validateProfileImage(image); msg != "" {
		return nil, NewValidationError("profileImage", msg)
	}
	if err := s.Users.UpdateProfileImage(ctx, s.DB, userID, image); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	u, err := s.Users.GetUserByID(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	pu := toPublic(u)
	return &pu, nil
}

// issue creates a session for u. A failure here does not undo user creation.
func (s *AuthService) issue(ctx context.Context, u *domain.User) (*AuthResult, error) {
	token, exp, err := s.Sessions.Issue(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	return &AuthResult{User: toPublic(u), Token: token, ExpiresAt: exp}, nil
}

func mapSessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrExpired):
		return ErrSessionExpired
	case errors.Is(err, session.ErrInvalidSession):
		return ErrInvalidSession
	case errors.Is(err, session.ErrUnauthenticated):
		return ErrUnauthenticated
	default:
		return err
	}
}

func toPublic(u *domain.User) PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email, Name: u.Name, ProfileImage: u.ProfileImage}
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

var emailRE = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func looksLikeEmail(s string) bool { return len(s) <= 320 && emailRE.MatchString(s) }

var dataImageRE = regexp.MustCompile(`^data:image/[a-zA-Z0-9.+-]+;base64,`)

// validateProfileImage returns a user-facing message, or "" when image is
// acceptable.
func validateProfileImage(image string) string {
	if image == "" {
		return ""
	}
	if len(image) > MaxProfileImageLen {
		return "Profile image is too large"
	}
	if dataImageRE.MatchString(image) {
		return ""
	}
	u, err := url.Parse(image)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "Profile image must be an image data URI or an http(s) URL"
	}
	return ""
}
