package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestMustLoad_Success_NoPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic on valid defaults, got: %v", r)
		}
	}()
	cfg := MustLoad()
	if cfg.APIBasePath == "" {
		t.Fatalf("unexpected empty config from MustLoad")
	}
}

// --- Load defaults ---

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.APIBasePath != "/api" || cfg.PingMessage != "ping" || cfg.Env != EnvDevelopment {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DBDSN != "app.db" || cfg.BcryptCost != 10 || cfg.MaxBodyBytes != 2<<20 || cfg.IntentRefresh != time.Minute {
		t.Fatalf("unexpected app defaults: %+v", cfg)
	}
	if cfg.Session.TTL != 7*24*time.Hour || cfg.Session.Store != SessionStoreSQL || cfg.Session.SweepInterval != 10*time.Minute {
		t.Fatalf("unexpected session defaults: %+v", cfg.Session)
	}
	if cfg.OAuth.Timeout != 10*time.Second || cfg.OAuth.Google.RedirectURL == "" {
		t.Fatalf("unexpected oauth defaults: %+v", cfg.OAuth)
	}
	if cfg.HideForeignConversations || cfg.SecureCookies() {
		t.Fatalf("unexpected security defaults: %+v", cfg)
	}
	if got := cfg.MissingOAuth(); !reflect.DeepEqual(got, []string{"google", "github"}) {
		t.Fatalf("MissingOAuth = %v", got)
	}
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_Overrides(t *testing.T) {
	// Server timeouts / sizes (valid)
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("MAX_BODY_BYTES", "1024")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	// Logging / Docs
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/v2/") // -> "/api/v2"
	t.Setenv("PING_MESSAGE", "pong")

	// App
	t.Setenv("APP_ENV", "Production")
	t.Setenv("DB_DSN", "postgres://u:p@db:5432/chat")
	t.Setenv("DB_PATH", "ignored.db")
	t.Setenv("BCRYPT_COST", "12")
	t.Setenv("HIDE_FOREIGN_CONVERSATIONS", "true")

	// Rate limiting (use invalids for parse to fall back to defaults)
	t.Setenv("RATE_RPS", "x")      // -> default 5.0
	t.Setenv("RATE_BURST", "nope") // -> default 10
	t.Setenv("AUTH_RATE_RPS", "2")
	t.Setenv("AUTH_RATE_BURST", "3")

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")
	t.Setenv("IDEMPOTENCY_TTL", "48h")

	// Sessions
	t.Setenv("SESSION_TTL", "1h")
	t.Setenv("SESSION_STORE", "REDIS")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("REDIS_PASSWORD", "pw")
	t.Setenv("REDIS_DB", "2")

	// OAuth (VITE_ fallback for the client id)
	t.Setenv("VITE_GOOGLE_CLIENT_ID", "gid")
	t.Setenv("GOOGLE_CLIENT_SECRET", "gsecret")
	t.Setenv("GITHUB_CLIENT_ID", "hid")
	t.Setenv("VITE_GITHUB_CLIENT_ID", "ignored")
	t.Setenv("GITHUB_CLIENT_SECRET", "hsecret")
	t.Setenv("OAUTH_TIMEOUT", "3s")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.MaxBodyBytes != 1024 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v2" || cfg.PingMessage != "pong" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}
	if cfg.Env != EnvProduction || cfg.DBDSN != "postgres://u:p@db:5432/chat" || cfg.BcryptCost != 12 || !cfg.HideForeignConversations {
		t.Fatalf("app fields unexpected: %+v", cfg)
	}
	if !cfg.SecureCookies() {
		t.Fatalf("production must imply secure cookies")
	}
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 || cfg.AuthRateRPS != 2 || cfg.AuthRateBurst != 3 {
		t.Fatalf("rate limiting unexpected: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour || cfg.IdempotencyTTL != 48*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}
	if cfg.Session.TTL != time.Hour || cfg.Session.Store != SessionStoreRedis {
		t.Fatalf("session unexpected: %+v", cfg.Session)
	}
	if cfg.Redis != (RedisConfig{Addr: "cache:6379", Password: "pw", DB: 2}) {
		t.Fatalf("redis unexpected: %+v", cfg.Redis)
	}
	if cfg.OAuth.Google.ClientID != "gid" || cfg.OAuth.GitHub.ClientID != "hid" || cfg.OAuth.Timeout != 3*time.Second {
		t.Fatalf("oauth unexpected: %+v", cfg.OAuth)
	}
	if len(cfg.MissingOAuth()) != 0 {
		t.Fatalf("both providers should be configured: %v", cfg.MissingOAuth())
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_LegacyDBPath(t *testing.T) {
	t.Setenv("DB_PATH", "legacy.db")
	cfg, err := Load()
	if err != nil || cfg.DBDSN != "legacy.db" {
		t.Fatalf("DBDSN = %q, %v", cfg.DBDSN, err)
	}
}

func TestSecureCookies_ExplicitFlag(t *testing.T) {
	t.Setenv("COOKIE_SECURE", "true")
	cfg, err := Load()
	if err != nil || !cfg.SecureCookies() {
		t.Fatalf("COOKIE_SECURE should force secure cookies (%v)", err)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name, key, val, want string
	}{
		{"invalid LOG_LEVEL", "LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"invalid APP_ENV", "APP_ENV", "staging", "APP_ENV"},
		{"empty PORT via spaces", "PORT", "   ", "PORT must not be empty"},
		{"non-positive timeouts", "READ_TIMEOUT", "0s", "timeouts must be positive"},
		{"max header bytes <= 0", "MAX_HEADER_BYTES", "0", "MAX_HEADER_BYTES"},
		{"max body bytes <= 0", "MAX_BODY_BYTES", "-1", "MAX_BODY_BYTES"},
		{"bcrypt cost low", "BCRYPT_COST", "4", "BCRYPT_COST"},
		{"bcrypt cost high", "BCRYPT_COST", "15", "BCRYPT_COST"},
		{"rate rps negative", "RATE_RPS", "-1", "RATE_RPS"},
		{"auth rate burst < 1", "AUTH_RATE_BURST", "0", "AUTH_RATE_BURST"},
		{"hsts max age negative", "HSTS_MAX_AGE", "-1s", "HSTS_MAX_AGE"},
		{"idempotency ttl non-positive", "IDEMPOTENCY_TTL", "0s", "IDEMPOTENCY_TTL"},
		{"intent refresh negative", "INTENT_REFRESH_INTERVAL", "-1s", "INTENT_REFRESH_INTERVAL"},
		{"session ttl non-positive", "SESSION_TTL", "0s", "SESSION_TTL"},
		{"unknown session store", "SESSION_STORE", "memcached", "SESSION_STORE"},
		{"sweep interval non-positive", "SESSION_SWEEP_INTERVAL", "-1m", "SESSION_SWEEP_INTERVAL"},
		{"negative redis db", "REDIS_DB", "-1", "REDIS_DB"},
		{"oauth timeout non-positive", "OAUTH_TIMEOUT", "0s", "OAUTH_TIMEOUT"},
		{"otel sample ratio out of range", "OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil || !containsErr(err, tc.want) {
				t.Fatalf("expected %s validation error, got: %v", tc.want, err)
			}
		})
	}

	t.Run("redis store needs an address", func(t *testing.T) {
		t.Setenv("SESSION_STORE", "redis")
		t.Setenv("REDIS_ADDR", " ")
		if _, err := Load(); err == nil || !containsErr(err, "REDIS_ADDR") {
			t.Fatalf("expected REDIS_ADDR validation error, got: %v", err)
		}
	})
}

// --- helpers ---

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_getfloat_getint_getdur(t *testing.T) {
	t.Setenv("F_VALID", "3.14")
	if getfloat("F_VALID", 0) != 3.14 {
		t.Fatalf("getfloat parse failed")
	}
	t.Setenv("F_BAD", "nope")
	if getfloat("F_BAD", 1.23) != 1.23 {
		t.Fatalf("getfloat default on bad parse failed")
	}

	t.Setenv("I_VALID", " 42 ")
	if getint("I_VALID", 0) != 42 {
		t.Fatalf("getint parse failed")
	}
	t.Setenv("I_BAD", "x")
	if getint("I_BAD", 7) != 7 {
		t.Fatalf("getint default on bad parse failed")
	}

	t.Setenv("D_VALID", "150ms")
	if getdur("D_VALID", time.Second) != 150*time.Millisecond {
		t.Fatalf("getdur parse failed")
	}
	t.Setenv("D_BAD", "zzz")
	if getdur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur default on bad parse failed")
	}
}

func TestHelpers_getbool(t *testing.T) {
	for i, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on", "On"} {
		k := "B_T_" + string(rune('a'+i))
		t.Setenv(k, v)
		if !getbool(k, false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	for i, v := range []string{"0", "false", "FALSE", " no ", "N", "off", "Off"} {
		k := "B_F_" + string(rune('a'+i))
		t.Setenv(k, v)
		if getbool(k, true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	t.Setenv("B_EMPTY", "")
	if !getbool("B_EMPTY", true) || getbool("B_EMPTY", false) {
		t.Fatalf("getbool default behavior unexpected")
	}
}

func TestHelpers_splitCSV_and_normalizeBasePath(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitCSV mismatch: got %#v", got)
	}

	for in, want := range map[string]string{"": "/", "v1": "/v1", "/v1/": "/v1", " / ": "/"} {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
}

// Ensure the ambient environment does not leak into tests.
func TestMain(m *testing.M) {
	for _, k := range []string{
		"PORT", "APP_ENV", "DB_DSN", "DB_PATH", "SESSION_STORE", "COOKIE_SECURE",
		"GOOGLE_CLIENT_ID", "VITE_GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET",
		"GITHUB_CLIENT_ID", "VITE_GITHUB_CLIENT_ID", "GITHUB_CLIENT_SECRET",
	} {
		os.Unsetenv(k)
	}
	os.Exit(m.Run())
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}
