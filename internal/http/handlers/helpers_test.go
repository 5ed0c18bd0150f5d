package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-forms-backend/internal/auth"
	"github.com/tbourn/go-forms-backend/internal/cache"
	"github.com/tbourn/go-forms-backend/internal/domain"
	"github.com/tbourn/go-forms-backend/internal/formlock"
	"github.com/tbourn/go-forms-backend/internal/http/middleware"
	"github.com/tbourn/go-forms-backend/internal/repo"
	"github.com/tbourn/go-forms-backend/internal/services"
	"github.com/tbourn/go-forms-backend/internal/storage"
)

// ---------- test DB + repo shim ----------

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
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

	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// testFormRepo implements services.FormRepo using the repo package (like router.go).
type testFormRepo struct{}

func (testFormRepo) CreateForm(ctx context.Context, db *gorm.DB, f *domain.Form) error {
	return repo.CreateForm(ctx, db, f)
}
func (testFormRepo) GetForm(ctx context.Context, db *gorm.DB, id string) (*domain.Form, error) {
	return repo.GetForm(ctx, db, id)
}
func (testFormRepo) GetFormByAlias(ctx context.Context, db *gorm.DB, alias string) (*domain.Form, error) {
	return repo.GetFormByAlias(ctx, db, alias)
}
func (testFormRepo) GetFormWithFields(ctx context.Context, db *gorm.DB, id string) (*domain.Form, error) {
	return repo.GetFormWithFields(ctx, db, id)
}
func (testFormRepo) CountForms(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountForms(ctx, db)
}
func (testFormRepo) ListFormsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Form, error) {
	return repo.ListFormsPage(ctx, db, offset, limit)
}
func (testFormRepo) ListPublishedForms(ctx context.Context, db *gorm.DB) ([]domain.Form, error) {
	return repo.ListPublishedForms(ctx, db)
}
func (testFormRepo) AliasTaken(ctx context.Context, db *gorm.DB, alias, exceptID string) (bool, error) {
	return repo.AliasTaken(ctx, db, alias, exceptID)
}
func (testFormRepo) UpdateForm(ctx context.Context, db *gorm.DB, id string, updates map[string]any) error {
	return repo.UpdateForm(ctx, db, id, updates)
}
func (testFormRepo) DeleteForm(ctx context.Context, db *gorm.DB, id string) error {
	return repo.DeleteForm(ctx, db, id)
}
func (testFormRepo) CreateField(ctx context.Context, db *gorm.DB, f *domain.Field) error {
	return repo.CreateField(ctx, db, f)
}
func (testFormRepo) FormFilePaths(ctx context.Context, db *gorm.DB, formID string) ([]string, error) {
	return repo.FormFilePaths(ctx, db, formID)
}
func (testFormRepo) FormsStats(ctx context.Context, db *gorm.DB) (int64, *time.Time, error) {
	return repo.FormsStats(ctx, db)
}

// ---------- server ----------

type testEnv struct {
	db     *gorm.DB
	store  *storage.Store
	issuer *auth.Issuer
	users  *services.UserService
	r      *gin.Engine
}

// newTestServer wires real services over an in-memory database and mounts
// every handler without authentication.
func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	RegisterValidators()

	db := newTestDB(t)
	store, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	issuer := auth.NewIssuer("test-secret", time.Hour)
	order := services.NewOrderManager(db, formlock.New(), store)
	users := &services.UserService{DB: db, Issuer: issuer}

	h := New(Deps{
		Forms:     services.NewFormService(db, testFormRepo{}, store, cache.New(nil)),
		Fields:    &services.FieldService{DB: db, Order: order},
		Responses: &services.ResponseService{DB: db, Files: store, IdempotencyTTL: time.Hour},
		Templates: &services.TemplateService{DB: db, Files: store},
		Documents: &services.DocumentService{DB: db},
		Users:     users,
		Files:     store,
	})

	r := gin.New()
	r.Use(middleware.Authenticate(issuer))
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))

	r.GET("/field-types", h.ListFieldTypes)
	r.POST("/auth/login", h.Login)
	r.GET("/users/me", middleware.RequireAuth(issuer), h.Me)
	r.GET("/users", h.ListUsers)
	r.POST("/users", h.CreateUser)

	r.GET("/forms", h.ListForms)
	r.POST("/forms", h.CreateForm)
	r.POST("/forms/import", h.ImportForm)
	r.GET("/forms/:id", h.GetForm)
	r.PUT("/forms/:id", h.UpdateForm)
	r.DELETE("/forms/:id", h.DeleteForm)
	r.POST("/forms/:id/publish", h.PublishForm)
	r.POST("/forms/:id/unpublish", h.UnpublishForm)
	r.POST("/forms/:id/duplicate", h.DuplicateForm)
	r.GET("/forms/:id/export", h.ExportForm)
	r.GET("/forms/:id/fields", h.ListFields)
	r.POST("/forms/:id/fields", h.CreateField)
	r.GET("/forms/:id/dependents", h.ListDependents)
	r.GET("/forms/:id/responses", h.ListResponses)
	r.POST("/forms/:id/responses", h.CreateResponse)
	r.GET("/forms/:id/responses/table", h.ResponseTable)
	r.POST("/forms/:id/responses/delete", h.DeleteResponses)

	r.GET("/fields/:id", h.GetField)
	r.PUT("/fields/:id", h.UpdateField)
	r.DELETE("/fields/:id", h.DeleteField)
	r.POST("/fields/:id/reset", h.ResetField)
	r.POST("/fields/:id/move", h.MoveField)
	r.POST("/fields/:id/options", h.CreateOption)
	r.POST("/fields/:id/options/import", h.ImportOptions)
	r.GET("/fields/:id/options/search", h.SuggestOptions)
	r.POST("/fields/:id/associations", h.CreateAssociation)
	r.DELETE("/options/:id", h.DeleteOption)
	r.DELETE("/associations/:id", h.DeleteAssociation)

	r.GET("/responses/:id", h.GetResponse)
	r.PUT("/responses/:id", h.UpdateResponse)
	r.DELETE("/responses/:id", h.DeleteResponse)
	r.GET("/responses/:id/documents", h.ResponseDocuments)

	r.GET("/templates", h.ListTemplates)
	r.POST("/templates", h.CreateTemplate)
	r.GET("/templates/:id", h.GetTemplate)
	r.PUT("/templates/:id", h.UpdateTemplate)
	r.DELETE("/templates/:id", h.DeleteTemplate)

	r.GET("/files", h.ServeFile)

	r.GET("/public/forms/:idOrAlias", h.PublicForm)
	r.POST("/public/forms/:idOrAlias/responses", h.PublicSubmit)
	r.GET("/external/forms", h.ExternalForms)
	r.GET("/external/forms/:id/responses", h.ExternalResponses)
	r.GET("/external/responses/:id/documents", h.ExternalDocuments)

	return &testEnv{db: db, store: store, issuer: issuer, users: users, r: r}
}

// do sends a request with an optional JSON body and extra headers
// given as name/value pairs.
func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T: %v (body=%s)", v, err, w.Body.String())
	}
	return v
}

// mustCreate posts body and decodes the created resource.
func mustCreate[T any](t *testing.T, e *testEnv, path string, body any) T {
	t.Helper()
	w := e.do(t, http.MethodPost, path, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST %s: status=%d body=%s", path, w.Code, w.Body.String())
	}
	return decode[T](t, w)
}
