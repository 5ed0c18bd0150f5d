package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-forms-backend/internal/auth"
	"github.com/tbourn/go-forms-backend/internal/cache"
	"github.com/tbourn/go-forms-backend/internal/domain"
	"github.com/tbourn/go-forms-backend/internal/formlock"
	"github.com/tbourn/go-forms-backend/internal/repo"
	"github.com/tbourn/go-forms-backend/internal/storage"
)

// ---------- test helpers ----------

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
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
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// formRepo proxies the repository free functions for FormService.
type formRepo struct{}

func (formRepo) CreateForm(ctx context.Context, db *gorm.DB, f *domain.Form) error {
	return repo.CreateForm(ctx, db, f)
}
func (formRepo) GetForm(ctx context.Context, db *gorm.DB, id string) (*domain.Form, error) {
	return repo.GetForm(ctx, db, id)
}
func (formRepo) GetFormByAlias(ctx context.Context, db *gorm.DB, alias string) (*domain.Form, error) {
	return repo.GetFormByAlias(ctx, db, alias)
}
func (formRepo) GetFormWithFields(ctx context.Context, db *gorm.DB, id string) (*domain.Form, error) {
	return repo.GetFormWithFields(ctx, db, id)
}
func (formRepo) CountForms(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountForms(ctx, db)
}
func (formRepo) ListFormsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Form, error) {
	return repo.ListFormsPage(ctx, db, offset, limit)
}
func (formRepo) ListPublishedForms(ctx context.Context, db *gorm.DB) ([]domain.Form, error) {
	return repo.ListPublishedForms(ctx, db)
}
func (formRepo) AliasTaken(ctx context.Context, db *gorm.DB, alias, exceptID string) (bool, error) {
	return repo.AliasTaken(ctx, db, alias, exceptID)
}
func (formRepo) UpdateForm(ctx context.Context, db *gorm.DB, id string, updates map[string]any) error {
	return repo.UpdateForm(ctx, db, id, updates)
}
func (formRepo) DeleteForm(ctx context.Context, db *gorm.DB, id string) error {
	return repo.DeleteForm(ctx, db, id)
}
func (formRepo) CreateField(ctx context.Context, db *gorm.DB, f *domain.Field) error {
	return repo.CreateField(ctx, db, f)
}
func (formRepo) FormFilePaths(ctx context.Context, db *gorm.DB, formID string) ([]string, error) {
	return repo.FormFilePaths(ctx, db, formID)
}
func (formRepo) FormsStats(ctx context.Context, db *gorm.DB) (int64, *time.Time, error) {
	return repo.FormsStats(ctx, db)
}

// memFiles is an in-memory FileStore.
type memFiles struct {
	mu      sync.Mutex
	n       int
	files   map[string]storage.Blob
	removed []string
}

func newMemFiles() *memFiles { return &memFiles{files: map[string]storage.Blob{}} }

func (m *memFiles) Save(folder, name string, blob storage.Blob) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	rel := path.Join(storage.Slug(folder), fmt.Sprintf("%s-%d", storage.Slug(name), m.n))
	m.files[rel] = blob
	return rel, nil
}

func (m *memFiles) Remove(rel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, rel)
	m.removed = append(m.removed, rel)
	return nil
}

func (m *memFiles) has(rel string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[rel]
	return ok
}

func (m *memFiles) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

// fixture wires every service over one database.
type fixture struct {
	db        *gorm.DB
	files     *memFiles
	order     *OrderManager
	forms     *FormService
	fields    *FieldService
	responses *ResponseService
	docs      *DocumentService
	templates *TemplateService
	users     *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	files := newMemFiles()
	order := NewOrderManager(db, formlock.New(), files)
	return &fixture{
		db:        db,
		files:     files,
		order:     order,
		forms:     NewFormService(db, formRepo{}, files, cache.New(nil)),
		fields:    &FieldService{DB: db, Order: order},
		responses: &ResponseService{DB: db, Files: files, IdempotencyTTL: time.Hour},
		docs:      &DocumentService{DB: db},
		templates: &TemplateService{DB: db, Files: files},
		users:     &UserService{DB: db, Issuer: auth.NewIssuer("test-secret", time.Hour)},
	}
}

func strptr(s string) *string { return &s }

func (fx *fixture) form(t *testing.T, name string) *domain.Form {
	t.Helper()
	f, err := fx.forms.Create(context.Background(), FormInput{Name: &name})
	if err != nil {
		t.Fatalf("create form: %v", err)
	}
	return f
}

func (fx *fixture) field(t *testing.T, formID string, in FieldInput) *domain.Field {
	t.Helper()
	f, err := fx.fields.Create(context.Background(), formID, in)
	if err != nil {
		t.Fatalf("create field %q: %v", in.Name, err)
	}
	return f
}

func (fx *fixture) publish(t *testing.T, formID string) {
	t.Helper()
	if _, err := fx.forms.SetPublished(context.Background(), formID, true); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

// orders returns field names keyed by position.
func (fx *fixture) orders(t *testing.T, formID string) map[int]string {
	t.Helper()
	fields, err := repo.ListFields(context.Background(), fx.db, formID)
	if err != nil {
		t.Fatalf("list fields: %v", err)
	}
	out := make(map[int]string, len(fields))
	for _, f := range fields {
		out[f.Order] = f.Name
	}
	return out
}

// assertDense fails unless positions are exactly 1..N.
func (fx *fixture) assertDense(t *testing.T, formID string) {
	t.Helper()
	fields, err := repo.ListFieldOrder(context.Background(), fx.db, formID)
	if err != nil {
		t.Fatalf("list order: %v", err)
	}
	for i, f := range fields {
		if f.Order != i+1 {
			t.Fatalf("positions not dense: index %d has order %d (%+v)", i, f.Order, fields)
		}
	}
}

func dataURL(mime, body string) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString([]byte(body))
}
