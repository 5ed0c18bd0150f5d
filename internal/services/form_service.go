// Package services – FormService
//
// FormService manages the lifecycle of forms: creation as drafts, metadata
// updates with alias uniqueness, publication, duplication and deletion. It
// also serves the public, read-only view of published forms through the
// versioned Redis cache.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-forms-backend/internal/cache"
	"github.com/tbourn/go-forms-backend/internal/domain"
	"github.com/tbourn/go-forms-backend/internal/repo"
	"github.com/tbourn/go-forms-backend/internal/storage"
	"github.com/tbourn/go-forms-backend/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// publicFormsVersionKey versions every cached public form definition.
const publicFormsVersionKey = "forms:public:version"

// copySuffix is appended to the name of duplicated forms.
const copySuffix = "-copie"

// FormRepo defines the repository contract required by FormService.
type FormRepo interface {
	// CreateForm inserts a form and its nested fields, if any.
	CreateForm(ctx context.Context, db *gorm.DB, f *domain.Form) error

	// GetForm fetches a form without fields.
	GetForm(ctx context.Context, db *gorm.DB, id string) (*domain.Form, error)

	// GetFormByAlias fetches a form by its alias.
	GetFormByAlias(ctx context.Context, db *gorm.DB, alias string) (*domain.Form, error)

	// GetFormWithFields fetches a form with ordered fields, options and
	// file associations.
	GetFormWithFields(ctx context.Context, db *gorm.DB, id string) (*domain.Form, error)

	// CountForms returns the total number of forms for pagination.
	CountForms(ctx context.Context, db *gorm.DB) (int64, error)

	// ListFormsPage returns a page of forms, newest first.
	ListFormsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Form, error)

	// ListPublishedForms returns every published form by name.
	ListPublishedForms(ctx context.Context, db *gorm.DB) ([]domain.Form, error)

	// AliasTaken reports whether alias is used by another form.
	AliasTaken(ctx context.Context, db *gorm.DB, alias, exceptID string) (bool, error)

	// UpdateForm applies column updates.
	UpdateForm(ctx context.Context, db *gorm.DB, id string, updates map[string]any) error

	// DeleteForm removes a form and everything it owns.
	DeleteForm(ctx context.Context, db *gorm.DB, id string) error

	// CreateField inserts a field with nested options and associations.
	CreateField(ctx context.Context, db *gorm.DB, f *domain.Field) error

	// FormFilePaths lists stored uploads answering the form.
	FormFilePaths(ctx context.Context, db *gorm.DB, formID string) ([]string, error)

	// FormsStats returns count and latest update for ETag computation.
	FormsStats(ctx context.Context, db *gorm.DB) (int64, *time.Time, error)
}

// FormInput carries the editable metadata of a form. Nil pointers leave the
// stored value unchanged on update.
type FormInput struct {
	Name               *string
	Description        *string
	Alias              *string
	IsNotifying        *bool
	NotificationEmails []string
}

// FormService provides form-level operations.
type FormService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the form repository used by this service.
	Repo FormRepo
	// Files removes uploads when forms are deleted. Optional.
	Files FileStore
	// Cache holds public form definitions. A disabled cache is fine.
	Cache *cache.Cache
	// CacheTTL bounds the lifetime of cached public forms.
	CacheTTL time.Duration
}

// NewFormService constructs a FormService with a five minute public cache.
func NewFormService(db *gorm.DB, r FormRepo, files FileStore, c *cache.Cache) *FormService {
	return &FormService{DB: db, Repo: r, Files: files, Cache: c, CacheTTL: 5 * time.Minute}
}

// ListPage returns a page of forms and the total count.
// It applies defaults for invalid page/pageSize.
func (s *FormService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Form, int64, error) {
	tr := otel.Tracer("services/FormService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	_, pageSize, offset := utils.Normalize(page, pageSize)

	total, err := s.Repo.CountForms(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Form{}, 0, nil
	}
	items, err := s.Repo.ListFormsPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// Stats returns the number of forms and the latest update time.
func (s *FormService) Stats(ctx context.Context) (int64, *time.Time, error) {
	return s.Repo.FormsStats(ctx, s.DB)
}

// ListPublished returns every published form, without fields.
func (s *FormService) ListPublished(ctx context.Context) ([]domain.Form, error) {
	return s.Repo.ListPublishedForms(ctx, s.DB)
}

// Get returns a form with its fields, options and file associations.
func (s *FormService) Get(ctx context.Context, id string) (*domain.Form, error) {
	tr := otel.Tracer("services/FormService")
	ctx, span := tr.Start(ctx, "Get", trace.WithAttributes(attribute.String("form.id", id)))
	defer span.End()

	f, err := s.Repo.GetFormWithFields(ctx, s.DB, id)
	if err != nil {
		return nil, notFound(err, ErrFormNotFound)
	}
	return f, nil
}

// Resolve returns the form addressed by id or, failing that, by alias,
// with its fields.
func (s *FormService) Resolve(ctx context.Context, idOrAlias string) (*domain.Form, error) {
	f, err := s.Get(ctx, idOrAlias)
	if !errors.Is(err, ErrFormNotFound) {
		return f, err
	}
	byAlias, err := s.Repo.GetFormByAlias(ctx, s.DB, normalizeAlias(idOrAlias))
	if err != nil {
		return nil, notFound(err, ErrFormNotFound)
	}
	return s.Get(ctx, byAlias.ID)
}

// Public returns a published form for end users. File associations are
// stripped. Results are cached until the next form mutation.
func (s *FormService) Public(ctx context.Context, idOrAlias string) (*domain.Form, error) {
	tr := otel.Tracer("services/FormService")
	ctx, span := tr.Start(ctx, "Public", trace.WithAttributes(attribute.String("form.key", idOrAlias)))
	defer span.End()

	ver := s.Cache.GetVersion(ctx, publicFormsVersionKey)
	key := fmt.Sprintf("forms:public:v%d:%s", ver, idOrAlias)

	var cached domain.Form
	if ok, err := s.Cache.Get(ctx, key, &cached); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("public form cache read failed")
	} else if ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return &cached, nil
	}

	f, err := s.Resolve(ctx, idOrAlias)
	if err != nil {
		return nil, err
	}
	if !f.IsPublished() {
		return nil, ErrFormNotPublished
	}
	for i := range f.Fields {
		f.Fields[i].FileAssociations = nil
	}
	if err := s.Cache.Set(ctx, key, f, s.CacheTTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("public form cache write failed")
	}
	return f, nil
}

// Create inserts a new draft form. Name defaults to "Nouveau formulaire".
func (s *FormService) Create(ctx context.Context, in FormInput) (*domain.Form, error) {
	tr := otel.Tracer("services/FormService")
	ctx, span := tr.Start(ctx, "Create")
	defer span.End()

	f := &domain.Form{Name: "Nouveau formulaire", Status: domain.FormStatusDraft}
	if in.Name != nil {
		if n := normalizeTitle(*in.Name); n != "" {
			f.Name = n
		}
	}
	if in.Description != nil {
		f.Description = strings.TrimSpace(*in.Description)
	}
	if in.IsNotifying != nil {
		f.IsNotifying = *in.IsNotifying
	}
	f.SetEmails(in.NotificationEmails)

	if in.Alias != nil {
		alias, err := s.checkAlias(ctx, *in.Alias, "")
		if err != nil {
			return nil, err
		}
		f.Alias = alias
	}
	if err := s.Repo.CreateForm(ctx, s.DB, f); err != nil {
		if repo.IsDuplicate(err) {
			return nil, ErrAliasTaken
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("form.id", f.ID))
	return f, nil
}

// Update changes the metadata of a form. Metadata stays editable once the
// form is published.
func (s *FormService) Update(ctx context.Context, id string, in FormInput) (*domain.Form, error) {
	tr := otel.Tracer("services/FormService")
	ctx, span := tr.Start(ctx, "Update", trace.WithAttributes(attribute.String("form.id", id)))
	defer span.End()

	if _, err := s.Repo.GetForm(ctx, s.DB, id); err != nil {
		return nil, notFound(err, ErrFormNotFound)
	}

	updates := map[string]any{}
	if in.Name != nil {
		if n := normalizeTitle(*in.Name); n != "" {
			updates["name"] = n
		}
	}
	if in.Description != nil {
		updates["description"] = strings.TrimSpace(*in.Description)
	}
	if in.IsNotifying != nil {
		updates["is_notifying"] = *in.IsNotifying
	}
	if in.NotificationEmails != nil {
		var tmp domain.Form
		tmp.SetEmails(in.NotificationEmails)
		updates["notification_emails"] = tmp.NotificationEmails
	}
	if in.Alias != nil {
		alias, err := s.checkAlias(ctx, *in.Alias, id)
		if err != nil {
			return nil, err
		}
		updates["alias"] = alias
	}

	if err := s.Repo.UpdateForm(ctx, s.DB, id, updates); err != nil {
		if repo.IsDuplicate(err) {
			return nil, ErrAliasTaken
		}
		return nil, notFound(err, ErrFormNotFound)
	}
	s.invalidatePublic(ctx)
	return s.Get(ctx, id)
}

// SetPublished publishes or withdraws a form.
func (s *FormService) SetPublished(ctx context.Context, id string, published bool) (*domain.Form, error) {
	tr := otel.Tracer("services/FormService")
	ctx, span := tr.Start(ctx, "SetPublished",
		trace.WithAttributes(
			attribute.String("form.id", id),
			attribute.Bool("published", published),
		),
	)
	defer span.End()

	status := domain.FormStatusDraft
	if published {
		status = domain.FormStatusPublished
	}
	if err := s.Repo.UpdateForm(ctx, s.DB, id, map[string]any{"status": status}); err != nil {
		return nil, notFound(err, ErrFormNotFound)
	}
	s.invalidatePublic(ctx)
	return s.Get(ctx, id)
}

// Delete removes a form with its fields and responses, then the uploads
// those responses referenced.
func (s *FormService) Delete(ctx context.Context, id string) error {
	tr := otel.Tracer("services/FormService")
	ctx, span := tr.Start(ctx, "Delete", trace.WithAttributes(attribute.String("form.id", id)))
	defer span.End()

	var paths []string
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if paths, err = s.Repo.FormFilePaths(ctx, tx, id); err != nil {
			return err
		}
		return s.Repo.DeleteForm(ctx, tx, id)
	})
	if err != nil {
		return notFound(err, ErrFormNotFound)
	}
	s.invalidatePublic(ctx)
	removeFiles(ctx, s.Files, paths)
	return nil
}

// Duplicate copies a form with its fields, options and file associations
// into a new draft named "<name>-copie". Conditional references point to
// the copied fields. Responses are not copied.
func (s *FormService) Duplicate(ctx context.Context, id string) (*domain.Form, error) {
	tr := otel.Tracer("services/FormService")
	ctx, span := tr.Start(ctx, "Duplicate", trace.WithAttributes(attribute.String("form.id", id)))
	defer span.End()

	src, err := s.Repo.GetFormWithFields(ctx, s.DB, id)
	if err != nil {
		return nil, notFound(err, ErrFormNotFound)
	}

	cp := &domain.Form{
		Name:               src.Name + copySuffix,
		Description:        src.Description,
		Status:             domain.FormStatusDraft,
		IsNotifying:        src.IsNotifying,
		NotificationEmails: src.NotificationEmails,
	}
	fields := copyFields(src.Fields)

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.Repo.CreateForm(ctx, tx, cp); err != nil {
			return err
		}
		for i := range fields {
			fields[i].FormID = cp.ID
			if err := s.Repo.CreateField(ctx, tx, &fields[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("copy.id", cp.ID))
	return s.Get(ctx, cp.ID)
}

// copyFields clones fields with fresh IDs, remapping conditional
// references to the clones. References leaving the set are dropped.
func copyFields(src []domain.Field) []domain.Field {
	ids := make(map[string]string, len(src))
	for _, f := range src {
		ids[f.ID] = uuid.NewString()
	}
	out := make([]domain.Field, 0, len(src))
	for i, f := range src {
		c := f
		c.ID = ids[f.ID]
		c.Order = i + 1
		c.Answers = nil
		if f.ConditionalInputID != nil {
			if mapped, ok := ids[*f.ConditionalInputID]; ok {
				c.ConditionalInputID = &mapped
			} else {
				c.IsConditional = false
				c.ConditionalInputID = nil
				c.ConditionalValue = nil
			}
		}
		c.Options = make([]domain.Option, len(f.Options))
		for j, o := range f.Options {
			c.Options[j] = domain.Option{OptionName: o.OptionName, OptionValue: o.OptionValue, Order: o.Order}
		}
		c.FileAssociations = make([]domain.FileAssociation, len(f.FileAssociations))
		for j, a := range f.FileAssociations {
			c.FileAssociations[j] = domain.FileAssociation{TemplateFileID: a.TemplateFileID, Value: a.Value}
		}
		out = append(out, c)
	}
	return out
}

// checkAlias normalizes alias and ensures no other form uses it. An alias
// that normalizes to nothing clears the alias.
func (s *FormService) checkAlias(ctx context.Context, raw, exceptID string) (*string, error) {
	alias := normalizeAlias(raw)
	if alias == "" {
		return nil, nil
	}
	taken, err := s.Repo.AliasTaken(ctx, s.DB, alias, exceptID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrAliasTaken
	}
	return &alias, nil
}

func (s *FormService) invalidatePublic(ctx context.Context) {
	s.Cache.IncrementVersion(ctx, publicFormsVersionKey)
}

// normalizeAlias turns free text into a URL-safe alias.
func normalizeAlias(s string) string {
	return storage.Slug(s)
}
