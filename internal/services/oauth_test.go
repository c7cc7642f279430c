package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/oauth2"
)

// fakeOAuthServer stands in for a provider's token and user-info endpoints.
func fakeOAuthServer(t *testing.T, routes map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer"}`))
	})
	for path, h := range routes {
		mux.HandleFunc(path, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func requireBearer(t *testing.T, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q", got)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func pointAt(p *OAuthClient, srv *httptest.Server) {
	p.Config.Endpoint = oauth2.Endpoint{
		AuthURL:   srv.URL + "/auth",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	p.HTTPClient = srv.Client()
}

func TestOAuthClient_Configured(t *testing.T) {
	if NewGoogleProvider("", "", "").Configured() {
		t.Fatalf("empty credentials must not be configured")
	}
	if NewGitHubProvider("id", "", "").Configured() {
		t.Fatalf("missing secret must not be configured")
	}
	g := NewGitHubProvider("id", "secret", "")
	if !g.Configured() || g.Name() != "github" || g.EmailsURL == "" {
		t.Fatalf("unexpected github provider: %+v", g)
	}
	var nilClient *OAuthClient
	if nilClient.Configured() {
		t.Fatalf("nil client must not be configured")
	}
}

func TestOAuthClient_GoogleExchange(t *testing.T) {
	srv := fakeOAuthServer(t, map[string]http.HandlerFunc{
		"/userinfo": requireBearer(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"id": "g-7", "email": "Ann@Example.com", "name": "Ann", "picture": "https://img/ann.png"})
		}),
	})
	p := NewGoogleProvider("id", "secret", "http://localhost/cb")
	pointAt(p, srv)
	p.UserInfoURL = srv.URL + "/userinfo"

	prof, err := p.Exchange(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if prof.ProviderID != "g-7" || prof.Email != "Ann@Example.com" || prof.Name != "Ann" || prof.AvatarURL != "https://img/ann.png" {
		t.Fatalf("unexpected profile: %+v", prof)
	}

	if _, err := p.Exchange(context.Background(), "bad-code"); err == nil {
		t.Fatalf("rejected code must fail")
	}
}

func TestOAuthClient_GitHubEmailFallback(t *testing.T) {
	srv := fakeOAuthServer(t, map[string]http.HandlerFunc{
		"/user": requireBearer(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"id": 99, "login": "octo", "email": "", "name": "", "avatar_url": "https://img/o.png"})
		}),
		"/user/emails": requireBearer(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, []map[string]any{
				{"email": "unverified@x.io", "primary": true, "verified": false},
				{"email": "secondary@x.io", "primary": false, "verified": true},
				{"email": "primary@x.io", "primary": true, "verified": true},
			})
		}),
	})
	p := NewGitHubProvider("id", "secret", "")
	pointAt(p, srv)
	p.UserInfoURL = srv.URL + "/user"
	p.EmailsURL = srv.URL + "/user/emails"

	prof, err := p.Exchange(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if prof.ProviderID != "99" || prof.Login != "octo" || prof.Email != "primary@x.io" {
		t.Fatalf("unexpected profile: %+v", prof)
	}
}

func TestOAuthClient_UserInfoFailure(t *testing.T) {
	srv := fakeOAuthServer(t, map[string]http.HandlerFunc{
		"/user": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
	})
	p := NewGitHubProvider("id", "secret", "")
	pointAt(p, srv)
	p.UserInfoURL = srv.URL + "/user"

	_, err := p.Exchange(context.Background(), "good-code")
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Fatalf("want status error, got %v", err)
	}
}

func TestPrimaryGitHubEmail_FallsBackToAnyVerified(t *testing.T) {
	srv := fakeOAuthServer(t, map[string]http.HandlerFunc{
		"/user/emails": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, []map[string]any{
				{"email": "a@x.io", "primary": false, "verified": false},
				{"email": "b@x.io", "primary": false, "verified": true},
			})
		},
	})
	p := &OAuthClient{EmailsURL: srv.URL + "/user/emails"}
	if got := p.primaryGitHubEmail(context.Background(), srv.Client()); got != "b@x.io" {
		t.Fatalf("got %q; want b@x.io", got)
	}
	p.EmailsURL = srv.URL + "/missing"
	if got := p.primaryGitHubEmail(context.Background(), srv.Client()); got != "" {
		t.Fatalf("failed lookup should yield empty email, got %q", got)
	}
}

func TestPlaceholderEmail(t *testing.T) {
	if got := placeholderEmail("github", &OAuthProfile{Login: " Octo "}); got != "octo@github.local" {
		t.Fatalf("got %q", got)
	}
	if got := placeholderEmail("google", &OAuthProfile{ProviderID: "123"}); got != "123@google.local" {
		t.Fatalf("got %q", got)
	}
}
