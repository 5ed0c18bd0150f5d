package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-forms-backend/internal/domain"
	"github.com/tbourn/go-forms-backend/internal/repo"
	"github.com/tbourn/go-forms-backend/internal/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TemplateInput describes a template file upload or edit. Content is a
// base64 data URL; on update an empty Content keeps the stored document.
type TemplateInput struct {
	Name        *string
	Description *string
	FileName    string
	Content     string
}

// TemplateService manages the template documents responses are mapped onto.
type TemplateService struct {
	DB    *gorm.DB
	Files FileStore
}

// List returns every template file by name.
func (s *TemplateService) List(ctx context.Context) ([]domain.TemplateFile, error) {
	return repo.ListTemplates(ctx, s.DB)
}

// Get returns one template file.
func (s *TemplateService) Get(ctx context.Context, id string) (*domain.TemplateFile, error) {
	t, err := repo.GetTemplate(ctx, s.DB, id)
	if err != nil {
		return nil, notFound(err, ErrTemplateNotFound)
	}
	return t, nil
}

// Create stores the uploaded document and its metadata. The name defaults
// to the uploaded file name.
func (s *TemplateService) Create(ctx context.Context, in TemplateInput) (*domain.TemplateFile, error) {
	tr := otel.Tracer("services/TemplateService")
	ctx, span := tr.Start(ctx, "Create")
	defer span.End()

	blob, err := s.decode(in)
	if err != nil {
		return nil, err
	}
	t := &domain.TemplateFile{Name: strings.TrimSpace(in.FileName)}
	if in.Name != nil && strings.TrimSpace(*in.Name) != "" {
		t.Name = normalizeTitle(*in.Name)
	}
	if t.Name == "" {
		return nil, invalid("Le nom du modèle est requis")
	}
	if in.Description != nil {
		t.Description = strings.TrimSpace(*in.Description)
	}

	rel, err := s.Files.Save(storage.TemplateFolder, firstNonEmpty(in.FileName, t.Name), blob)
	if err != nil {
		return nil, err
	}
	t.Path, t.Size, t.MimeType = rel, blob.Size(), blob.MimeType
	if err := repo.CreateTemplate(ctx, s.DB, t); err != nil {
		removeFiles(ctx, s.Files, []string{rel})
		return nil, err
	}
	span.SetAttributes(attribute.String("template.id", t.ID))
	return t, nil
}

// Update renames or describes a template file and, when Content is set,
// replaces its document. The replacement must have the same mime type.
func (s *TemplateService) Update(ctx context.Context, id string, in TemplateInput) (*domain.TemplateFile, error) {
	tr := otel.Tracer("services/TemplateService")
	ctx, span := tr.Start(ctx, "Update", trace.WithAttributes(attribute.String("template.id", id)))
	defer span.End()

	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
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

	var saved string
	if strings.TrimSpace(in.Content) != "" {
		blob, err := s.decode(in)
		if err != nil {
			return nil, err
		}
		if !storage.SameType(cur.MimeType, blob.MimeType) {
			return nil, ErrTemplateTypeMismatch
		}
		if saved, err = s.Files.Save(storage.TemplateFolder, firstNonEmpty(in.FileName, cur.Name), blob); err != nil {
			return nil, err
		}
		updates["path"] = saved
		updates["size"] = blob.Size()
	}

	if err := repo.UpdateTemplate(ctx, s.DB, id, updates); err != nil {
		if saved != "" {
			removeFiles(ctx, s.Files, []string{saved})
		}
		return nil, notFound(err, ErrTemplateNotFound)
	}
	if saved != "" {
		removeFiles(ctx, s.Files, []string{cur.Path})
	}
	return s.Get(ctx, id)
}

// Delete removes a template file, its associations and its document.
func (s *TemplateService) Delete(ctx context.Context, id string) error {
	tr := otel.Tracer("services/TemplateService")
	ctx, span := tr.Start(ctx, "Delete", trace.WithAttributes(attribute.String("template.id", id)))
	defer span.End()

	cur, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := repo.DeleteTemplate(ctx, s.DB, id); err != nil {
		return notFound(err, ErrTemplateNotFound)
	}
	removeFiles(ctx, s.Files, []string{cur.Path})
	return nil
}

func (s *TemplateService) decode(in TemplateInput) (storage.Blob, error) {
	if s.Files == nil {
		return storage.Blob{}, ErrInvalidFile
	}
	blob, err := storage.DecodeDataURL(in.Content)
	if err != nil || blob.Size() == 0 {
		return storage.Blob{}, ErrInvalidFile
	}
	return blob, nil
}
