// Package handlers exposes the REST endpoints of the forms backend.
//
// Handlers are transport-thin: they bind and validate input, call the
// application services, and translate results and service errors into HTTP
// responses (including conditional responses and idempotent replays).
package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-forms-backend/internal/domain"
	"github.com/tbourn/go-forms-backend/internal/fieldtype"
	"github.com/tbourn/go-forms-backend/internal/search"
	"github.com/tbourn/go-forms-backend/internal/services"
	"github.com/tbourn/go-forms-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// FormService defines form lifecycle operations consumed by HTTP handlers.
type FormService interface {
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Form, int64, error)
	Stats(ctx context.Context) (int64, *time.Time, error)
	ListPublished(ctx context.Context) ([]domain.Form, error)
	Resolve(ctx context.Context, idOrAlias string) (*domain.Form, error)
	Public(ctx context.Context, idOrAlias string) (*domain.Form, error)
	Create(ctx context.Context, in services.FormInput) (*domain.Form, error)
	Update(ctx context.Context, id string, in services.FormInput) (*domain.Form, error)
	SetPublished(ctx context.Context, id string, published bool) (*domain.Form, error)
	Delete(ctx context.Context, id string) error
	Duplicate(ctx context.Context, id string) (*domain.Form, error)
	Export(ctx context.Context, id string) (*services.FormDocument, error)
	Import(ctx context.Context, doc *services.FormDocument) (*domain.Form, error)
}

// FieldService defines field, option and file association operations.
type FieldService interface {
	List(ctx context.Context, formID string) ([]domain.Field, error)
	Get(ctx context.Context, id string) (*domain.Field, error)
	Create(ctx context.Context, formID string, in services.FieldInput) (*domain.Field, error)
	CreateDefault(ctx context.Context, formID string) (*domain.Field, error)
	Update(ctx context.Context, id string, in services.FieldInput) (*domain.Field, error)
	Reset(ctx context.Context, id string) (*domain.Field, error)
	Move(ctx context.Context, id, direction string) (*domain.Field, error)
	Delete(ctx context.Context, id string) error
	Dependents(ctx context.Context, formID string) (map[string][]string, error)

	CreateOption(ctx context.Context, fieldID string, in services.OptionInput) (*domain.Option, error)
	ImportOptions(ctx context.Context, fieldID string, r io.Reader) ([]domain.Option, error)
	DeleteOption(ctx context.Context, optionID string) error
	SuggestOptions(ctx context.Context, fieldID, query string) ([]search.Result, error)

	CreateAssociation(ctx context.Context, fieldID string, in services.AssociationInput) (*domain.FileAssociation, error)
	DeleteAssociation(ctx context.Context, id string) error
}

// ResponseService defines response operations.
type ResponseService interface {
	Submit(ctx context.Context, formID string, answers []fieldtype.Answer, opt services.SubmitOptions) (*domain.Response, bool, error)
	CreateEmpty(ctx context.Context, formID string) (*domain.Response, error)
	Get(ctx context.Context, id string) (*domain.Response, error)
	ListPage(ctx context.Context, formID string, page, pageSize int) ([]domain.Response, int64, error)
	IDs(ctx context.Context, formID string) ([]string, error)
	Stats(ctx context.Context, formID string) (int64, *time.Time, error)
	Update(ctx context.Context, responseID string, answers []fieldtype.Answer) (*domain.Response, error)
	Delete(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, formID string, ids []string) (int64, error)
	Table(ctx context.Context, formID string, page, pageSize int) (*services.Table, error)
	Summaries(ctx context.Context, formID string) ([]services.Summary, error)
}

// TemplateService defines template file operations.
type TemplateService interface {
	List(ctx context.Context) ([]domain.TemplateFile, error)
	Get(ctx context.Context, id string) (*domain.TemplateFile, error)
	Create(ctx context.Context, in services.TemplateInput) (*domain.TemplateFile, error)
	Update(ctx context.Context, id string, in services.TemplateInput) (*domain.TemplateFile, error)
	Delete(ctx context.Context, id string) error
}

// DocumentService maps responses onto template files.
type DocumentService interface {
	MapResponse(ctx context.Context, responseID string) (map[string]*services.DocumentPayload, error)
}

// UserService defines back-office account operations.
type UserService interface {
	Create(ctx context.Context, in services.UserInput) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Get(ctx context.Context, id string) (*domain.User, error)
	Login(ctx context.Context, username, password string) (*services.Session, error)
}

// FileOpener serves stored uploads.
type FileOpener interface {
	Open(rel string) (*os.File, string, error)
}

//
// Handler wiring
//

// Deps lists the services the handlers depend on.
type Deps struct {
	Forms     FormService
	Fields    FieldService
	Responses ResponseService
	Templates TemplateService
	Documents DocumentService
	Users     UserService
	Files     FileOpener
}

// Handlers groups every HTTP endpoint of the API.
type Handlers struct {
	forms     FormService
	fields    FieldService
	responses ResponseService
	templates TemplateService
	documents DocumentService
	users     UserService
	files     FileOpener
}

// New constructs and returns a Handlers instance bound to the given services.
func New(d Deps) *Handlers {
	return &Handlers{
		forms:     d.Forms,
		fields:    d.Fields,
		responses: d.Responses,
		templates: d.Templates,
		documents: d.Documents,
		users:     d.Users,
		files:     d.Files,
	}
}

//
// Shared DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	page, pageSize, _ = utils.Normalize(
		utils.AtoiDefault(c.Query("page"), utils.DefaultPage),
		utils.AtoiDefault(c.Query("page_size"), utils.DefaultPageSize),
	)
	return
}

// weakETag sets a weak ETag built from a collection's size and latest
// update, and reports whether the client's If-None-Match already matches.
func weakETag(c *gin.Context, scope string, count int64, maxTS *time.Time) bool {
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	etag := fmt.Sprintf(`W/"%s:%d:%d"`, scope, count, ts)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}
