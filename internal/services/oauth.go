package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/tbourn/go-intent-chat/internal/domain"
)

// Provider endpoints for user info.
const (
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	githubUserURL     = "https://api.github.com/user"
	githubEmailsURL   = "https://api.github.com/user/emails"
)

// OAuthProfile is the identity a provider reports after a code exchange.
type OAuthProfile struct {
	ProviderID string
	Email      string
	Name       string
	Login      string
	AvatarURL  string
}

// OAuthProvider exchanges an authorization code for a profile.
type OAuthProvider interface {
	Name() string
	Configured() bool
	Exchange(ctx context.Context, code string) (*OAuthProfile, error)
}

// OAuthClient is an x/oauth2 backed OAuthProvider for Google or GitHub.
// The endpoint URLs are fields so tests can point them at a fake provider.
type OAuthClient struct {
	Provider    string
	Config      oauth2.Config
	UserInfoURL string
	EmailsURL   string // GitHub only
	// HTTPClient is used for both the token exchange and user-info calls.
	HTTPClient *http.Client
}

var _ OAuthProvider = (*OAuthClient)(nil)

// NewGoogleProvider returns a Google provider. Empty credentials yield a
// provider that reports Configured() == false.
func NewGoogleProvider(clientID, clientSecret, redirectURL string) *OAuthClient {
	return &OAuthClient{
		Provider: domain.ProviderGoogle,
		Config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  redirectURL,
			Scopes:       []string{"email", "profile"},
		},
		UserInfoURL: googleUserInfoURL,
	}
}

// NewGitHubProvider returns a GitHub provider.
func NewGitHubProvider(clientID, clientSecret, redirectURL string) *OAuthClient {
	return &OAuthClient{
		Provider: domain.ProviderGitHub,
		Config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     github.Endpoint,
			RedirectURL:  redirectURL,
			Scopes:       []string{"user:email"},
		},
		UserInfoURL: githubUserURL,
		EmailsURL:   githubEmailsURL,
	}
}

func (p *OAuthClient) Name() string { return p.Provider }

func (p *OAuthClient) Configured() bool {
	return p != nil && p.Config.ClientID != "" && p.Config.ClientSecret != ""
}

// Exchange trades code for a token and fetches the user's profile.
// Every failure, including a non-2xx provider response, is returned as-is;
// the caller decides how to classify it.
func (p *OAuthClient) Exchange(ctx context.Context, code string) (*OAuthProfile, error) {
	if p.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.HTTPClient)
	}
	tok, err := p.Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	client := p.Config.Client(ctx, tok)

	switch p.Provider {
	case domain.ProviderGitHub:
		return p.fetchGitHub(ctx, client)
	default:
		return p.fetchGoogle(ctx, client)
	}
}

func (p *OAuthClient) fetchGoogle(ctx context.Context, client *http.Client) (*OAuthProfile, error) {
	var data struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := getJSON(ctx, client, p.UserInfoURL, &data); err != nil {
		return nil, fmt.Errorf("google userinfo: %w", err)
	}
	if data.ID == "" {
		return nil, fmt.Errorf("google userinfo: missing id")
	}
	return &OAuthProfile{
		ProviderID: data.ID,
		Email:      data.Email,
		Name:       data.Name,
		AvatarURL:  data.Picture,
	}, nil
}

func (p *OAuthClient) fetchGitHub(ctx context.Context, client *http.Client) (*OAuthProfile, error) {
	var data struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Email     string `json:"email"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, client, p.UserInfoURL, &data); err != nil {
		return nil, fmt.Errorf("github user: %w", err)
	}
	if data.ID == 0 {
		return nil, fmt.Errorf("github user: missing id")
	}

	email := data.Email
	if email == "" && p.EmailsURL != "" {
		// Private emails are only listed here; a failure leaves email empty.
		email = p.primaryGitHubEmail(ctx, client)
	}

	return &OAuthProfile{
		ProviderID: strconv.FormatInt(data.ID, 10),
		Email:      email,
		Name:       data.Name,
		Login:      data.Login,
		AvatarURL:  data.AvatarURL,
	}, nil
}

// primaryGitHubEmail prefers the primary verified address, then any verified one.
func (p *OAuthClient) primaryGitHubEmail(ctx context.Context, client *http.Client) string {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, client, p.EmailsURL, &emails); err != nil {
		return ""
	}
	fallback := ""
	for _, e := range emails {
		if !e.Verified {
			continue
		}
		if e.Primary {
			return e.Email
		}
		if fallback == "" {
			fallback = e.Email
		}
	}
	return fallback
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out)
}

// placeholderEmail builds the stand-in address for providers that withhold one.
func placeholderEmail(provider string, p *OAuthProfile) string {
	local := strings.TrimSpace(p.Login)
	if local == "" {
		local = p.ProviderID
	}
	return strings.ToLower(local) + "@" + provider + ".local"
}
