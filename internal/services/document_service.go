package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-forms-backend/internal/conditional"
	"github.com/tbourn/go-forms-backend/internal/domain"
	"github.com/tbourn/go-forms-backend/internal/fieldtype"
	"github.com/tbourn/go-forms-backend/internal/repo"
	"github.com/tbourn/go-forms-backend/internal/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MappedEntry is one placeholder substitution for a template file.
type MappedEntry struct {
	Key      string           `json:"key"`
	Type     fieldtype.Kind   `json:"type"`
	Value    string           `json:"value"`
	FileSpec *domain.FileSpec `json:"file_spec,omitempty"`
}

// DocumentPayload is everything a document generator needs to fill one
// template file from one response.
type DocumentPayload struct {
	FileName   string        `json:"file_name"`
	FileType   string        `json:"file_type"`
	FilePath   string        `json:"file_path"`
	MappedData []MappedEntry `json:"mapped_data"`
}

// DocumentService maps responses onto the template files their fields are
// associated with.
type DocumentService struct {
	DB *gorm.DB
}

// MapResponse builds the document payloads of a response, keyed by template
// file ID.
func (s *DocumentService) MapResponse(ctx context.Context, responseID string) (map[string]*DocumentPayload, error) {
	tr := otel.Tracer("services/DocumentService")
	ctx, span := tr.Start(ctx, "MapResponse", trace.WithAttributes(attribute.String("response.id", responseID)))
	defer span.End()

	r, err := repo.GetResponse(ctx, s.DB, responseID)
	if err != nil {
		return nil, notFound(err, ErrResponseNotFound)
	}
	form, err := repo.GetFormWithFields(ctx, s.DB, r.FormID)
	if err != nil {
		return nil, notFound(err, ErrFormNotFound)
	}
	out := MapDocuments(form.Fields, r.Inputs)
	span.SetAttributes(attribute.Int("documents", len(out)))
	return out, nil
}

// MapDocuments walks inputs in order and appends, for every file association
// of the answered field that names a placeholder key, one entry to the
// payload of the association's template file. Payloads are created on
// first use. Entries keep input order.
func MapDocuments(fields []domain.Field, inputs []domain.ResponseInput) map[string]*DocumentPayload {
	byID := conditional.Index(fields)
	out := make(map[string]*DocumentPayload)
	for _, in := range inputs {
		f, ok := byID[in.FieldID]
		if !ok {
			continue
		}
		for _, a := range f.FileAssociations {
			key := strings.TrimSpace(a.Value)
			if key == "" || a.TemplateFile == nil {
				continue
			}
			doc, ok := out[a.TemplateFileID]
			if !ok {
				doc = &DocumentPayload{
					FileName:   a.TemplateFile.Name,
					FileType:   storage.Extension(a.TemplateFile.MimeType),
					FilePath:   a.TemplateFile.Path,
					MappedData: []MappedEntry{},
				}
				out[a.TemplateFileID] = doc
			}
			doc.MappedData = append(doc.MappedData, MappedEntry{
				Key:      key,
				Type:     fieldtype.Resolve(f.Type),
				Value:    in.Value,
				FileSpec: in.FileSpec,
			})
		}
	}
	return out
}
