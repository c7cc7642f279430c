// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, the database, sessions, OAuth providers,
// rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-intent-chat/internal/sysutil"
)

// Application environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Session store backends.
const (
	SessionStoreSQL   = "sql"
	SessionStoreRedis = "redis"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS and cookies.
type SecurityConfig struct {
	EnableHSTS   bool
	HSTSMaxAge   time.Duration
	CookieSecure bool // COOKIE_SECURE; implied by APP_ENV=production
}

// SessionConfig controls session lifetime and storage.
type SessionConfig struct {
	TTL           time.Duration // SESSION_TTL
	Store         string        // SESSION_STORE: sql|redis
	SweepInterval time.Duration // SESSION_SWEEP_INTERVAL (expired sessions and idempotency keys)
}

// RedisConfig is used when Session.Store is "redis".
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ProviderConfig holds one OAuth client registration.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Configured reports whether both client id and secret are set.
func (p ProviderConfig) Configured() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// OAuthConfig groups the OAuth providers.
type OAuthConfig struct {
	Google  ProviderConfig
	GitHub  ProviderConfig
	Timeout time.Duration // OAUTH_TIMEOUT
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-intent-chat")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	MaxBodyBytes      int64         // request body cap
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes
	PingMessage    string // body of GET {base}/ping

	// App
	Env        string // development|production|test
	DBDSN      string // SQLite path/DSN or postgres URL
	BcryptCost int    // 10..14

	// HideForeignConversations answers 404 instead of 403 for
	// conversations owned by someone else.
	HideForeignConversations bool

	// Rate limiting
	RateRPS       float64 // tokens per second (>= 0)
	RateBurst     int     // bucket size (>= 1)
	AuthRateRPS   float64 // stricter limiter on /auth routes
	AuthRateBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// IntentRefresh is how often the reply classifier is rebuilt from the
	// stored catalog. Zero builds it once at startup.
	IntentRefresh time.Duration

	Session SessionConfig
	Redis   RedisConfig
	OAuth   OAuthConfig

	// Observability
	OTEL OTELConfig
}

// SecureCookies reports whether the session cookie must carry Secure.
func (c Config) SecureCookies() bool {
	return c.Security.CookieSecure || c.Env == EnvProduction
}

// MissingOAuth lists the providers without credentials. The server still
// starts; the corresponding login route answers "not configured".
func (c Config) MissingOAuth() []string {
	var out []string
	if !c.OAuth.Google.Configured() {
		out = append(out, "google")
	}
	if !c.OAuth.GitHub.Configured() {
		out = append(out, "github")
	}
	return out
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:      int64(getint("MAX_BODY_BYTES", 2<<20)),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api")),
		PingMessage:    getenv("PING_MESSAGE", "ping"),

		// App
		Env:                      strings.ToLower(getenv("APP_ENV", EnvDevelopment)),
		DBDSN:                    sysutil.FirstNonEmpty(os.Getenv("DB_DSN"), os.Getenv("DB_PATH"), "app.db"),
		BcryptCost:               getint("BCRYPT_COST", 10),
		HideForeignConversations: getbool("HIDE_FOREIGN_CONVERSATIONS", false),

		// Rate limiting
		RateRPS:       getfloat("RATE_RPS", 5.0),
		RateBurst:     getint("RATE_BURST", 10),
		AuthRateRPS:   getfloat("AUTH_RATE_RPS", 0.5),
		AuthRateBurst: getint("AUTH_RATE_BURST", 5),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS:   getbool("ENABLE_HSTS", false),
			HSTSMaxAge:   getdur("HSTS_MAX_AGE", 180*24*time.Hour),
			CookieSecure: getbool("COOKIE_SECURE", false),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),
		IntentRefresh:  getdur("INTENT_REFRESH_INTERVAL", time.Minute),

		Session: SessionConfig{
			TTL:           getdur("SESSION_TTL", 7*24*time.Hour),
			Store:         strings.ToLower(getenv("SESSION_STORE", SessionStoreSQL)),
			SweepInterval: getdur("SESSION_SWEEP_INTERVAL", 10*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getint("REDIS_DB", 0),
		},
		OAuth: OAuthConfig{
			Google: ProviderConfig{
				ClientID:     sysutil.FirstNonEmpty(os.Getenv("GOOGLE_CLIENT_ID"), os.Getenv("VITE_GOOGLE_CLIENT_ID")),
				ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
				RedirectURL:  getenv("GOOGLE_REDIRECT_URL", "http://localhost:8080/auth/google/callback"),
			},
			GitHub: ProviderConfig{
				ClientID:     sysutil.FirstNonEmpty(os.Getenv("GITHUB_CLIENT_ID"), os.Getenv("VITE_GITHUB_CLIENT_ID")),
				ClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
				RedirectURL:  os.Getenv("GITHUB_REDIRECT_URL"),
			},
			Timeout: getdur("OAUTH_TIMEOUT", 10*time.Second),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-intent-chat"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}
	cfg.DBDSN = strings.TrimSpace(cfg.DBDSN)
	cfg.OAuth.Google.ClientID = strings.TrimSpace(cfg.OAuth.Google.ClientID)
	cfg.OAuth.GitHub.ClientID = strings.TrimSpace(cfg.OAuth.GitHub.ClientID)

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	switch cfg.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return cfg, errors.New("APP_ENV must be one of: development, production, test")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return cfg, errors.New("MAX_BODY_BYTES must be > 0")
	}
	if cfg.DBDSN == "" {
		return cfg, errors.New("DB_DSN must not be empty")
	}
	if cfg.BcryptCost < 10 || cfg.BcryptCost > 14 {
		return cfg, errors.New("BCRYPT_COST must be between 10 and 14")
	}
	if cfg.RateRPS < 0 || cfg.AuthRateRPS < 0 {
		return cfg, errors.New("RATE_RPS and AUTH_RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 || cfg.AuthRateBurst < 1 {
		return cfg, errors.New("RATE_BURST and AUTH_RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.IntentRefresh < 0 {
		return cfg, errors.New("INTENT_REFRESH_INTERVAL must be >= 0")
	}
	if cfg.Session.TTL <= 0 {
		return cfg, errors.New("SESSION_TTL must be > 0")
	}
	if cfg.Session.SweepInterval <= 0 {
		return cfg, errors.New("SESSION_SWEEP_INTERVAL must be > 0")
	}
	switch cfg.Session.Store {
	case SessionStoreSQL:
	case SessionStoreRedis:
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			return cfg, errors.New("REDIS_ADDR must not be empty when SESSION_STORE=redis")
		}
	default:
		return cfg, errors.New("SESSION_STORE must be one of: sql, redis")
	}
	if cfg.Redis.DB < 0 {
		return cfg, errors.New("REDIS_DB must be >= 0")
	}
	if cfg.OAuth.Timeout <= 0 {
		return cfg, errors.New("OAUTH_TIMEOUT must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
