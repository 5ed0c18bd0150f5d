// Package httpapi mounts the forms API on a Gin engine: the middleware
// chain, the three surfaces (back office behind a JWT, anonymous public fill,
// allow-listed external consumers) and the services behind them.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-forms-backend/internal/auth"
	"github.com/tbourn/go-forms-backend/internal/cache"
	"github.com/tbourn/go-forms-backend/internal/config"
	"github.com/tbourn/go-forms-backend/internal/domain"
	"github.com/tbourn/go-forms-backend/internal/formlock"
	"github.com/tbourn/go-forms-backend/internal/http/handlers"
	"github.com/tbourn/go-forms-backend/internal/http/middleware"
	"github.com/tbourn/go-forms-backend/internal/repo"
	"github.com/tbourn/go-forms-backend/internal/services"
	"github.com/tbourn/go-forms-backend/internal/storage"
)

// formRepoShim adapts the repository free functions to the services.FormRepo
// interface expected by the FormService.
type formRepoShim struct{}

func (formRepoShim) CreateForm(ctx context.Context, db *gorm.DB, f *domain.Form) error {
	return repo.CreateForm(ctx, db, f)
}

func (formRepoShim) GetForm(ctx context.Context, db *gorm.DB, id string) (*domain.Form, error) {
	return repo.GetForm(ctx, db, id)
}

func (formRepoShim) GetFormByAlias(ctx context.Context, db *gorm.DB, alias string) (*domain.Form, error) {
	return repo.GetFormByAlias(ctx, db, alias)
}

func (formRepoShim) GetFormWithFields(ctx context.Context, db *gorm.DB, id string) (*domain.Form, error) {
	return repo.GetFormWithFields(ctx, db, id)
}

// CountForms proxies repo.CountForms (pagination support).
func (formRepoShim) CountForms(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountForms(ctx, db)
}

// ListFormsPage proxies repo.ListFormsPage (pagination support).
func (formRepoShim) ListFormsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Form, error) {
	return repo.ListFormsPage(ctx, db, offset, limit)
}

func (formRepoShim) ListPublishedForms(ctx context.Context, db *gorm.DB) ([]domain.Form, error) {
	return repo.ListPublishedForms(ctx, db)
}

func (formRepoShim) AliasTaken(ctx context.Context, db *gorm.DB, alias, exceptID string) (bool, error) {
	return repo.AliasTaken(ctx, db, alias, exceptID)
}

func (formRepoShim) UpdateForm(ctx context.Context, db *gorm.DB, id string, updates map[string]any) error {
	return repo.UpdateForm(ctx, db, id, updates)
}

func (formRepoShim) DeleteForm(ctx context.Context, db *gorm.DB, id string) error {
	return repo.DeleteForm(ctx, db, id)
}

func (formRepoShim) CreateField(ctx context.Context, db *gorm.DB, f *domain.Field) error {
	return repo.CreateField(ctx, db, f)
}

func (formRepoShim) FormFilePaths(ctx context.Context, db *gorm.DB, formID string) ([]string, error) {
	return repo.FormFilePaths(ctx, db, formID)
}

// FormsStats proxies repo.FormsStats (ETag support).
func (formRepoShim) FormsStats(ctx context.Context, db *gorm.DB) (int64, *time.Time, error) {
	return repo.FormsStats(ctx, db)
}

// Deps carries the infrastructure the router builds services on.
type Deps struct {
	DB    *gorm.DB
	Files *storage.Store
	Cache *cache.Cache
}

// NewFormService builds the form service over the repository functions.
// A non-positive ttl keeps the service default.
func NewFormService(d Deps, ttl time.Duration) *services.FormService {
	svc := services.NewFormService(d.DB, formRepoShim{}, d.Files, d.Cache)
	if ttl > 0 {
		svc.CacheTTL = ttl
	}
	return svc
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and returns the services it built, so callers can run startup tasks
// (admin bootstrap) against the same instances.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured logs, PII scrubbed unless LOG_REDACT=false
//  4. Recovery: capture panics after logger
//  5. Body size limiter (uploads travel base64 encoded in JSON)
//  6. Gzip
//  7. Metrics
//  8. Authenticate: optional bearer token, so limits and idempotency
//     scopes see the user
//  9. Idempotency validator (before rate limiting to allow bypass on replay)
//  10. Rate limiter (per user/IP, per-method cost, bypass on replay)
//  11. CORS and baseline security headers
//
// Route groups add their own cache policy; /files is CSP-sandboxed.
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) *services.UserService {
	r.HandleMethodNotAllowed = true
	db := d.DB
	apiBase := cfg.APIBasePath // e.g. "/api/v1"

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging
	if cfg.LogRedact {
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{
			MaskHeaders: []string{"X-API-Key"},
			MaskQuery:   []string{"fileName", "q"},
		}))
	} else {
		r.Use(middleware.Logger())
	}

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit, with headroom for base64 and JSON framing
	r.Use(limitBody(bodyLimit(cfg.MaxUploadBytes)))

	// 6) Compression for large listings and tables
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Identify callers holding a token
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTTTL)
	r.Use(middleware.Authenticate(issuer))

	// 9) Idempotency validation (before rate limiting). The route parameter
	// may be an alias; records are stored against the form ID.
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idempotencyLookup(db)))

	// 10) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.Rate.RPS, cfg.Rate.Burst, middleware.KeyByUserOrIP()).WithCosts(cfg.Rate.Costs)
	r.Use(rl.Handler())

	// 11) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Content-Disposition", "Idempotency-Replayed"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
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
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
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
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/storage/cache
	formSvc := NewFormService(d, cfg.CacheTTL)
	order := services.NewOrderManager(db, formlock.New(), d.Files)
	userSvc := &services.UserService{DB: db, Issuer: issuer}

	handlers.RegisterValidators()
	h := handlers.New(handlers.Deps{
		Forms:  formSvc,
		Fields: &services.FieldService{DB: db, Order: order, SuggestK: 10},
		Responses: &services.ResponseService{
			DB:             db,
			Files:          d.Files,
			MaxUploadBytes: cfg.MaxUploadBytes,
			IdempotencyTTL: cfg.IdempotencyTTL,
		},
		Templates: &services.TemplateService{DB: db, Files: d.Files},
		Documents: &services.DocumentService{DB: db},
		Users:     userSvc,
		Files:     d.Files,
	})

	api := groupWithPrefix(r, apiBase)

	// Anonymous: login, catalogue of field types, public fill
	api.POST("/auth/login", middleware.CacheControl(middleware.CacheNone), h.Login)
	api.GET("/field-types", h.ListFieldTypes)
	public := api.Group("/public")
	{
		public.GET("/forms/:idOrAlias", h.PublicForm)
		public.POST("/forms/:idOrAlias/responses", h.PublicSubmit)
	}

	// External consumers, restricted by origin/IP
	ext := api.Group("/external",
		middleware.AllowList(cfg.Endpoints.AllowedOrigins, cfg.Endpoints.AllowedIPs),
		middleware.CacheControl(middleware.CachePrivate),
	)
	{
		ext.GET("/forms", h.ExternalForms)
		ext.GET("/forms/:id/responses", h.ExternalResponses)
		ext.GET("/responses/:id/documents", h.ExternalDocuments)
	}

	// Back office. Its data is personal: browsers may keep it only to revalidate.
	admin := api.Group("", middleware.RequireAuth(issuer), middleware.CacheControl(middleware.CachePrivate))
	{
		admin.GET("/users/me", h.Me)
		admin.GET("/users", middleware.RequireRole(domain.RoleAdmin), h.ListUsers)
		admin.POST("/users", middleware.RequireRole(domain.RoleAdmin), h.CreateUser)

		// Forms
		admin.GET("/forms", h.ListForms)
		admin.POST("/forms", h.CreateForm)
		admin.POST("/forms/import", h.ImportForm)
		admin.GET("/forms/:id", h.GetForm)
		admin.PUT("/forms/:id", h.UpdateForm)
		admin.DELETE("/forms/:id", h.DeleteForm)
		admin.POST("/forms/:id/publish", h.PublishForm)
		admin.POST("/forms/:id/unpublish", h.UnpublishForm)
		admin.POST("/forms/:id/duplicate", h.DuplicateForm)
		admin.GET("/forms/:id/export", h.ExportForm)
		admin.GET("/forms/:id/dependents", h.ListDependents)

		// Fields
		admin.GET("/forms/:id/fields", h.ListFields)
		admin.POST("/forms/:id/fields", h.CreateField)
		admin.GET("/fields/:id", h.GetField)
		admin.PUT("/fields/:id", h.UpdateField)
		admin.DELETE("/fields/:id", h.DeleteField)
		admin.POST("/fields/:id/reset", h.ResetField)
		admin.POST("/fields/:id/move", h.MoveField)

		// Options and file associations
		admin.POST("/fields/:id/options", h.CreateOption)
		admin.POST("/fields/:id/options/import", h.ImportOptions)
		admin.GET("/fields/:id/options/search", h.SuggestOptions)
		admin.DELETE("/options/:id", h.DeleteOption)
		admin.POST("/fields/:id/associations", h.CreateAssociation)
		admin.DELETE("/associations/:id", h.DeleteAssociation)

		// Responses
		admin.GET("/forms/:id/responses", h.ListResponses)
		admin.POST("/forms/:id/responses", h.CreateResponse)
		admin.GET("/forms/:id/responses/table", h.ResponseTable)
		admin.POST("/forms/:id/responses/delete", h.DeleteResponses)
		admin.GET("/responses/:id", h.GetResponse)
		admin.PUT("/responses/:id", h.UpdateResponse)
		admin.DELETE("/responses/:id", h.DeleteResponse)
		admin.GET("/responses/:id/documents", h.ResponseDocuments)

		// Templates and stored files
		admin.GET("/templates", h.ListTemplates)
		admin.POST("/templates", h.CreateTemplate)
		admin.GET("/templates/:id", h.GetTemplate)
		admin.PUT("/templates/:id", h.UpdateTemplate)
		admin.DELETE("/templates/:id", h.DeleteTemplate)
		admin.GET("/files", middleware.SandboxUploads(), h.ServeFile)
	}

	return userSvc
}

// idempotencyLookup finds a live idempotency record for a form given by ID
// or alias. Unknown forms and keys are misses, not errors.
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, scope, form, key string, now time.Time) (bool, error) {
		f, err := repo.GetForm(ctx, db, form)
		if errors.Is(err, repo.ErrNotFound) {
			f, err = repo.GetFormByAlias(ctx, db, form)
		}
		if err != nil {
			return false, ignoreNotFound(err)
		}
		if _, err := repo.GetIdempotency(ctx, db, scope, f.ID, key, now); err != nil {
			return false, ignoreNotFound(err)
		}
		return true, nil
	}
}

func ignoreNotFound(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	return err
}

// bodyLimit is the request cap for a given upload size: base64 inflates
// payloads by 4/3, plus room for the surrounding JSON.
func bodyLimit(maxUpload int64) int64 {
	if maxUpload <= 0 {
		return 1 << 20
	}
	return maxUpload*4/3 + 1<<20
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

func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return base + p
}
