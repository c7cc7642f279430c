// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, session authentication, idempotency, and rate
// limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Credentialed CORS only for explicitly allowed origins
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-intent-chat/docs"
	"github.com/tbourn/go-intent-chat/internal/config"
	"github.com/tbourn/go-intent-chat/internal/domain"
	"github.com/tbourn/go-intent-chat/internal/http/handlers"
	"github.com/tbourn/go-intent-chat/internal/http/middleware"
	"github.com/tbourn/go-intent-chat/internal/intent"
	"github.com/tbourn/go-intent-chat/internal/repo"
	"github.com/tbourn/go-intent-chat/internal/services"
)

// userRepoShim adapts the repository free functions to services.UserRepo.
type userRepoShim struct{}

func (userRepoShim) CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	return repo.CreateUser(ctx, db, u)
}

func (userRepoShim) GetUserByID(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return repo.GetUserByID(ctx, db, id)
}

func (userRepoShim) GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	return repo.GetUserByEmail(ctx, db, email)
}

func (userRepoShim) LinkOAuth(ctx context.Context, db *gorm.DB, userID, provider, providerID, image string) error {
	return repo.LinkOAuth(ctx, db, userID, provider, providerID, image)
}

func (userRepoShim) UpdateProfileImage(ctx context.Context, db *gorm.DB, userID, image string) error {
	return repo.UpdateProfileImage(ctx, db, userID, image)
}

// conversationRepoShim adapts the repository free functions to
// services.ConversationRepo.
type conversationRepoShim struct{}

func (conversationRepoShim) CreateConversation(ctx context.Context, db *gorm.DB, userID, title string) (*domain.Conversation, error) {
	return repo.CreateConversation(ctx, db, userID, title)
}

func (conversationRepoShim) ListConversations(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.Conversation, error) {
	return repo.ListConversations(ctx, db, userID, limit)
}

func (conversationRepoShim) GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	return repo.GetConversation(ctx, db, id)
}

func (conversationRepoShim) UpdateConversationTitle(ctx context.Context, db *gorm.DB, id, userID, title string) error {
	return repo.UpdateConversationTitle(ctx, db, id, userID, title)
}

func (conversationRepoShim) IncrementMessageCount(ctx context.Context, db *gorm.DB, id string, at time.Time) (int, error) {
	return repo.IncrementMessageCount(ctx, db, id, at)
}

func (conversationRepoShim) DeleteConversation(ctx context.Context, db *gorm.DB, id, userID string) (int64, error) {
	return repo.DeleteConversation(ctx, db, id, userID)
}

func (conversationRepoShim) ConversationsStats(ctx context.Context, db *gorm.DB, userID string) (int64, *time.Time, error) {
	return repo.ConversationsStats(ctx, db, userID)
}

func (conversationRepoShim) CreateMessage(ctx context.Context, db *gorm.DB, m *domain.Message) error {
	return repo.CreateMessage(ctx, db, m)
}

func (conversationRepoShim) ListMessages(ctx context.Context, db *gorm.DB, conversationID string) ([]domain.Message, error) {
	return repo.ListMessages(ctx, db, conversationID)
}

// intentCatalog serves the stored catalog, or the built-in one when the
// intents table has not been seeded.
type intentCatalog struct{ db *gorm.DB }

func (c intentCatalog) Intents(ctx context.Context) ([]domain.Intent, error) {
	rows, err := repo.ListIntents(ctx, c.db)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return intent.DefaultCatalog().Records(), nil
	}
	return rows, nil
}

// classifier builds the keyword classifier from the stored catalog, falling
// back to the built-in catalog when nothing is seeded.
func (c intentCatalog) classifier(ctx context.Context) (*intent.KeywordClassifier, error) {
	rows, err := repo.ListIntents(ctx, c.db)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return intent.NewKeywordClassifier(intent.DefaultCatalog()), nil
	}
	return intent.NewKeywordClassifier(intent.FromRecords(rows)), nil
}

// catalogClassifier rebuilds the classifier from the catalog at most once
// per interval, so seeding a running server takes effect without a restart.
// A failed rebuild keeps the previous classifier.
type catalogClassifier struct {
	load     func(ctx context.Context) (*intent.KeywordClassifier, error)
	interval time.Duration // 0: build once
	now      func() time.Time

	mu       sync.Mutex
	current  *intent.KeywordClassifier
	loadedAt time.Time
}

func newCatalogClassifier(cat intentCatalog, interval time.Duration) *catalogClassifier {
	cc := &catalogClassifier{load: cat.classifier, interval: interval, now: time.Now}
	cc.get()
	return cc
}

// Classify satisfies intent.Classifier.
func (cc *catalogClassifier) Classify(text string) intent.Result {
	return cc.get().Classify(text)
}

func (cc *catalogClassifier) get() *intent.KeywordClassifier {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	now := cc.now()
	if cc.current != nil && (cc.interval <= 0 || now.Sub(cc.loadedAt) < cc.interval) {
		return cc.current
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	clf, err := cc.load(ctx)
	switch {
	case err == nil:
		cc.current = clf
	case cc.current == nil:
		log.Warn().Err(err).Msg("intent catalog unavailable; using built-in catalog")
		cc.current = intent.NewKeywordClassifier(intent.DefaultCatalog())
	default:
		log.Warn().Err(err).Msg("intent catalog refresh failed; keeping previous classifier")
	}
	cc.loadedAt = now
	return cc.current
}

// idempotencyStore backs the Idempotency-Key flow with the idempotency table.
type idempotencyStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// Lookup satisfies middleware.IdempotencyLookup.
func (s idempotencyStore) Lookup(ctx context.Context, userID, conversationID, key string, now time.Time) (bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, userID, conversationID, key, now)
	if err != nil || rec == nil {
		return false, nil
	}
	return true, nil
}

// Remember satisfies handlers.IdempotencyRecorder. A concurrent request that
// already recorded the key wins.
func (s idempotencyStore) Remember(ctx context.Context, userID, conversationID, key, messageID string) error {
	_, err := repo.CreateIdempotency(ctx, s.db, userID, conversationID, key, messageID, http.StatusOK, s.ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the public API under cfg.APIBasePath.
//
// sessions is the session manager (SQL- or Redis-backed) and providers are
// the OAuth adapters; both are built by the caller from cfg.
//
// Global middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Gzip
//  8. CORS and Security headers
//
// Session authentication, the per-user rate limiter and the idempotency
// validator run per route group, after the session has been resolved.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, sessions services.Sessions, providers []services.OAuthProvider, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 2 << 20
	}
	r.Use(limitBody(maxBody))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Compress responses (conversation payloads grow with history)
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", "/swagger"})))

	// 8) CORS posture. The session cookie needs credentialed requests, which
	// browsers only allow with an explicit origin.
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", middleware.HeaderIdempotencyReplayed}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Set("Access-Control-Allow-Credentials", "true")
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	apiBase := cfg.APIBasePath
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		EnablePolicy:    true,
		NoStorePrefixes: []string{joinPath(apiBase, "/auth")},
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = apiBase
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/sessions
	authSvc := services.NewAuthService(db, userRepoShim{}, sessions, providers...)
	if cfg.BcryptCost > 0 {
		authSvc.BcryptCost = cfg.BcryptCost
	}
	if cfg.OAuth.Timeout > 0 {
		authSvc.OAuthTimeout = cfg.OAuth.Timeout
	}

	convSvc := services.NewConversationService(db, conversationRepoShim{})

	catalog := intentCatalog{db: db}
	replySvc := services.NewReplyService(convSvc, newCatalogClassifier(catalog, cfg.IntentRefresh))

	idemTTL := cfg.IdempotencyTTL
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	idem := idempotencyStore{db: db, ttl: idemTTL}

	h := handlers.New(authSvc, convSvc, replySvc, catalog, idem, handlers.Options{
		Cookie:      handlers.CookieOptions{Secure: cfg.SecureCookies(), TTL: cfg.Session.TTL},
		HideForeign: cfg.HideForeignConversations,
		PingMessage: cfg.PingMessage,
	})

	// Stricter per-IP limiter for credential endpoints, per-user limiter for
	// everything behind a session.
	authLimit := middleware.NewRateLimiter("auth", cfg.AuthRateRPS, cfg.AuthRateBurst, middleware.KeyByIP()).Handler()
	userLimit := middleware.NewRateLimiter("api", cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).Handler()
	requireSession := middleware.RequireSession(authSvc, middleware.AuthOptions{
		Expired:         middleware.IsExpired(services.ErrSessionExpired),
		Unauthenticated: middleware.IsAny(services.ErrUnauthenticated),
	})
	optionalSession := middleware.OptionalSession(authSvc)
	idemCheck := middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idem.Lookup)

	api := groupWithPrefix(r, apiBase)
	{
		api.GET("/ping", h.Ping)
		api.GET("/intents", optionalSession, userLimit, h.ListIntents)

		// Auth (public)
		auth := api.Group("/auth")
		auth.POST("/signup", authLimit, h.Signup)
		auth.POST("/login", authLimit, h.Login)
		auth.POST("/google", authLimit, h.GoogleLogin)
		auth.POST("/github", authLimit, h.GitHubLogin)
		auth.POST("/logout", optionalSession, h.Logout)
		auth.GET("/me", h.Me)
	}

	// Session required. Keyed appends check for a replay before the per-user
	// limiter so a retry of a stored result does not spend a token.
	authed := api.Group("", requireSession)
	{
		authed.PATCH("/auth/profile", userLimit, h.UpdateProfile)

		authed.POST("/conversations", userLimit, h.CreateConversation)
		authed.GET("/conversations", userLimit, h.ListConversations)
		authed.GET("/conversations/:id", userLimit, h.GetConversation)
		authed.PATCH("/conversations/:id", userLimit, h.RenameConversation)
		authed.DELETE("/conversations/:id", userLimit, h.DeleteConversation)
		authed.POST("/conversations/:id/messages", idemCheck, userLimit, h.PostMessage)
		authed.POST("/conversations/:id/reply", idemCheck, userLimit, h.Reply)

		authed.POST("/intents/classify", userLimit, h.Classify)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

// joinPath appends suffix to a base path that may be empty or "/".
func joinPath(base, suffix string) string {
	if base == "" || base == "/" {
		return suffix
	}
	return base + suffix
}
