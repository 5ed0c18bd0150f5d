package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-forms-backend/internal/cache"
	"github.com/tbourn/go-forms-backend/internal/config"
	"github.com/tbourn/go-forms-backend/internal/domain"
	"github.com/tbourn/go-forms-backend/internal/http/middleware"
	"github.com/tbourn/go-forms-backend/internal/repo"
	"github.com/tbourn/go-forms-backend/internal/services"
	"github.com/tbourn/go-forms-backend/internal/storage"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:    "/api/v1",
		LogRedact:      true,
		MaxUploadBytes: 1 << 20,
		CacheTTL:       time.Minute,
		IdempotencyTTL: time.Hour,
		Auth:           config.AuthConfig{JWTSecret: "router-test-secret", JWTTTL: time.Hour},
		Rate:           config.RateConfig{RPS: 100, Burst: 50, Costs: map[string]int{"POST": 2}},
		CORS:           config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		Security:       config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
	}
}

type testServer struct {
	r     *gin.Engine
	db    *gorm.DB
	users *services.UserService
}

func newServer(t *testing.T, cfg config.Config) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	db := newTestDB(t)
	r := gin.New()
	users := RegisterRoutes(r, Deps{DB: db, Files: store, Cache: cache.New(nil)}, cfg)
	return &testServer{r: r, db: db, users: users}
}

func (s *testServer) do(method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

// login bootstraps the admin account and returns its token.
func (s *testServer) login(t *testing.T) string {
	t.Helper()
	if _, err := s.users.Bootstrap(context.Background(), "admin", "change-me-please"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	w := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "admin", "password": "change-me-please"})
	if w.Code != http.StatusOK {
		t.Fatalf("login = %d %s", w.Code, w.Body.String())
	}
	var sess services.Session
	if err := json.Unmarshal(w.Body.Bytes(), &sess); err != nil || sess.Token == "" {
		t.Fatalf("login body: %v %s", err, w.Body.String())
	}
	return sess.Token
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	s := newServer(t, testConfig())

	// /health works
	w := s.do(http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}

	// /metrics is wired
	w = s.do(http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || len(w.Body.Bytes()) == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	if w = s.do(http.MethodGet, "/nope", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (POST /health)
	if w = s.do(http.MethodPost, "/health", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}

	// Swagger is off by default
	if w = s.do(http.MethodGet, "/swagger/index.html", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger should be disabled, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.APIBasePath = "/api/v2"
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	cfg.LogRedact = false
	s := newServer(t, cfg)

	w := s.do(http.MethodGet, "/health", "", nil, "Origin", "http://example.com")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
	if w = s.do(http.MethodGet, "/api/v2/field-types", "", nil); w.Code != http.StatusOK {
		t.Fatalf("GET field-types under custom base = %d", w.Code)
	}
}

func TestRegisterRoutes_BackOfficeRequiresToken(t *testing.T) {
	s := newServer(t, testConfig())

	if w := s.do(http.MethodGet, "/api/v1/forms", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous list expected 401, got %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/v1/forms", "garbage", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token expected 401, got %d", w.Code)
	}
	if w := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "admin", "password": "nope-nope"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad login expected 401, got %d", w.Code)
	}

	token := s.login(t)
	w := s.do(http.MethodPost, "/api/v1/forms", token, map[string]string{"name": "Inscriptions"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create form = %d %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Cache-Control"); got != "private, no-cache" {
		t.Fatalf("back office Cache-Control = %q", got)
	}
	if w = s.do(http.MethodGet, "/api/v1/users", token, nil); w.Code != http.StatusOK {
		t.Fatalf("admin lists users, got %d", w.Code)
	}

	// Editors cannot manage accounts.
	_, err := s.users.Create(context.Background(), services.UserInput{
		Username: "ed", Email: "ed@localhost", Role: domain.RoleEditor, Password: "editor-password",
	})
	if err != nil {
		t.Fatalf("create editor: %v", err)
	}
	w = s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "ed", "password": "editor-password"})
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("login Cache-Control = %q", got)
	}
	var sess services.Session
	_ = json.Unmarshal(w.Body.Bytes(), &sess)
	if w = s.do(http.MethodGet, "/api/v1/users", sess.Token, nil); w.Code != http.StatusForbidden {
		t.Fatalf("editor listing users expected 403, got %d", w.Code)
	}
	if w = s.do(http.MethodGet, "/api/v1/forms", sess.Token, nil); w.Code != http.StatusOK {
		t.Fatalf("editor lists forms, got %d", w.Code)
	}
}

func TestRegisterRoutes_PublicSubmitReplayByAlias(t *testing.T) {
	s := newServer(t, testConfig())
	token := s.login(t)

	w := s.do(http.MethodPost, "/api/v1/forms", token, map[string]string{"name": "Sortie", "alias": "sortie"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create form = %d", w.Code)
	}
	var form domain.Form
	_ = json.Unmarshal(w.Body.Bytes(), &form)
	w = s.do(http.MethodPost, "/api/v1/forms/"+form.ID+"/fields", token, map[string]string{"name": "Nom", "type": "text"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create field = %d %s", w.Code, w.Body.String())
	}
	var field domain.Field
	_ = json.Unmarshal(w.Body.Bytes(), &field)
	if w = s.do(http.MethodPost, "/api/v1/forms/"+form.ID+"/publish", token, nil); w.Code != http.StatusOK {
		t.Fatalf("publish = %d", w.Code)
	}

	body := map[string]any{"answers": []map[string]string{{"field_id": field.ID, "value": "Camille"}}}
	w = s.do(http.MethodPost, "/api/v1/public/forms/sortie/responses", "", body, middleware.HeaderIdempotencyKey, "submit-1")
	if w.Code != http.StatusCreated {
		t.Fatalf("first submit = %d %s", w.Code, w.Body.String())
	}
	w = s.do(http.MethodPost, "/api/v1/public/forms/sortie/responses", "", body, middleware.HeaderIdempotencyKey, "submit-1")
	if w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay = %d replayed=%q", w.Code, w.Header().Get("Idempotency-Replayed"))
	}

	var n int64
	if err := s.db.Model(&domain.Response{}).Where("form_id = ?", form.ID).Count(&n).Error; err != nil || n != 1 {
		t.Fatalf("expected one stored response, got %d (%v)", n, err)
	}
}

func TestRegisterRoutes_ExternalAllowList(t *testing.T) {
	cfg := testConfig()
	s := newServer(t, cfg)
	if w := s.do(http.MethodGet, "/api/v1/external/forms", "", nil); w.Code != http.StatusForbidden {
		t.Fatalf("empty allow list expected 403, got %d", w.Code)
	}

	cfg.Endpoints = config.EndpointsConfig{AllowedOrigins: []string{"https://portail.example.org"}}
	s = newServer(t, cfg)
	if w := s.do(http.MethodGet, "/api/v1/external/forms", "", nil, "Origin", "https://portail.example.org/"); w.Code != http.StatusOK {
		t.Fatalf("allowed origin expected 200, got %d", w.Code)
	}
}

func TestRegisterRoutes_FilesAreSandboxed(t *testing.T) {
	s := newServer(t, testConfig())
	token := s.login(t)

	w := s.do(http.MethodGet, "/api/v1/files?fileName=missing.txt", token, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing file expected 404, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Security-Policy"); got != "default-src 'none'; sandbox" {
		t.Fatalf("expected sandbox CSP, got %q", got)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_bodyLimit(t *testing.T) {
	if got := bodyLimit(0); got != 1<<20 {
		t.Fatalf("bodyLimit(0) = %d", got)
	}
	if got := bodyLimit(3 << 20); got != 5<<20 {
		t.Fatalf("bodyLimit(3MiB) = %d, want 5MiB", got)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })

	// non-root prefix
	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
	if got := joinPath("/", "/files"); got != "/files" {
		t.Fatalf("joinPath root = %q", got)
	}
	if got := joinPath("/api/v1", "/files"); got != "/api/v1/files" {
		t.Fatalf("joinPath = %q", got)
	}
}

func Test_formRepoShim_Proxies(t *testing.T) {
	db := newTestDB(t)
	shim := formRepoShim{}
	ctx := context.Background()

	alias := "inscriptions"
	f := &domain.Form{Name: "Inscriptions", Alias: &alias, Status: domain.FormStatusDraft}
	if err := shim.CreateForm(ctx, db, f); err != nil {
		t.Fatalf("CreateForm: %v", err)
	}
	if got, err := shim.GetFormByAlias(ctx, db, alias); err != nil || got.ID != f.ID {
		t.Fatalf("GetFormByAlias: %v %+v", err, got)
	}
	if taken, err := shim.AliasTaken(ctx, db, alias, ""); err != nil || !taken {
		t.Fatalf("AliasTaken: %v %v", taken, err)
	}
	if err := shim.CreateField(ctx, db, &domain.Field{FormID: f.ID, Name: "Nom", Type: "text", Order: 1}); err != nil {
		t.Fatalf("CreateField: %v", err)
	}
	got, err := shim.GetFormWithFields(ctx, db, f.ID)
	if err != nil || len(got.Fields) != 1 {
		t.Fatalf("GetFormWithFields: %v %+v", err, got)
	}
	if n, err := shim.CountForms(ctx, db); err != nil || n != 1 {
		t.Fatalf("CountForms: %d %v", n, err)
	}
	if page, err := shim.ListFormsPage(ctx, db, 0, 10); err != nil || len(page) != 1 {
		t.Fatalf("ListFormsPage: %d %v", len(page), err)
	}
	if n, ts, err := shim.FormsStats(ctx, db); err != nil || n != 1 || ts == nil {
		t.Fatalf("FormsStats: %d %v %v", n, ts, err)
	}
	if err := shim.UpdateForm(ctx, db, f.ID, map[string]any{"status": domain.FormStatusPublished}); err != nil {
		t.Fatalf("UpdateForm: %v", err)
	}
	if pub, err := shim.ListPublishedForms(ctx, db); err != nil || len(pub) != 1 {
		t.Fatalf("ListPublishedForms: %d %v", len(pub), err)
	}
	if paths, err := shim.FormFilePaths(ctx, db, f.ID); err != nil || len(paths) != 0 {
		t.Fatalf("FormFilePaths: %v %v", paths, err)
	}
	if err := shim.DeleteForm(ctx, db, f.ID); err != nil {
		t.Fatalf("DeleteForm: %v", err)
	}
	if _, err := shim.GetForm(ctx, db, f.ID); err == nil {
		t.Fatalf("GetForm after delete should fail")
	}
}
