// Package services – ResponseService
//
// ResponseService validates and stores end-user submissions, updates their
// answers in place, deletes them together with their uploaded files, and
// projects them into tables for the back office.
//
// Observability: all write paths are OpenTelemetry-instrumented; spans carry
// form and response identifiers.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-forms-backend/internal/conditional"
	"github.com/tbourn/go-forms-backend/internal/domain"
	"github.com/tbourn/go-forms-backend/internal/fieldtype"
	"github.com/tbourn/go-forms-backend/internal/repo"
	"github.com/tbourn/go-forms-backend/internal/storage"
	"github.com/tbourn/go-forms-backend/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Messages returned by ValidateResponse besides the per-type ones.
const (
	msgRequired     = "Le champ \"%s\" est requis"
	msgUnknownField = "Le champ n'existe pas"
	msgRepeated     = "Le champ \"%s\" a reçu plusieurs réponses"
)

// summaryFields is how many leading fields a response summary shows.
const summaryFields = 2

// ValidateResponse checks a submission against the fields of form and
// returns user-facing messages; an empty result accepts the submission.
//
// Blank answers count as absent. A missing answer to a required field is
// reported unless the field is conditional and its condition does not hold
// for the submitted answers. Answers to fields that are hidden or whose
// condition does not hold are accepted and validated like any other. A
// field may be answered once per submission.
func ValidateResponse(form *domain.Form, answers []fieldtype.Answer) []string {
	byID := conditional.Index(form.Fields)
	given := make(map[string]fieldtype.Answer, len(answers))
	values := make(conditional.Answers, len(answers))

	msgs := repeatedAnswers(byID, answers)
	if len(msgs) > 0 {
		return msgs
	}
	for _, a := range answers {
		if _, ok := byID[a.FieldID]; !ok {
			msgs = append(msgs, msgUnknownField)
			continue
		}
		if a.IsBlank() {
			continue
		}
		given[a.FieldID] = a
		values[a.FieldID] = a.Value
	}

	for i := range form.Fields {
		f := &form.Fields[i]
		a, ok := given[f.ID]
		if !ok {
			if !f.IsRequired {
				continue
			}
			if f.IsConditional && !conditional.IsActive(f, byID, values) {
				continue
			}
			msgs = append(msgs, fmt.Sprintf(msgRequired, f.Name))
			continue
		}
		msgs = append(msgs, fieldtype.Validate(f, a)...)
	}
	return msgs
}

// repeatedAnswers reports every known field answered more than once,
// blank answers included.
func repeatedAnswers(byID map[string]*domain.Field, answers []fieldtype.Answer) []string {
	count := make(map[string]int, len(answers))
	var msgs []string
	for _, a := range answers {
		f, ok := byID[a.FieldID]
		if !ok {
			continue
		}
		if count[a.FieldID]++; count[a.FieldID] == 2 {
			msgs = append(msgs, fmt.Sprintf(msgRepeated, f.Name))
		}
	}
	return msgs
}

// SubmitOptions tunes Submit.
type SubmitOptions struct {
	// RequirePublished refuses drafts (public submissions).
	RequirePublished bool
	// Scope and IdempotencyKey deduplicate retried submissions when the key
	// is set. Scope identifies the caller.
	Scope          string
	IdempotencyKey string
}

// ResponseService provides response-level operations.
type ResponseService struct {
	DB    *gorm.DB
	Files FileStore

	// MaxUploadBytes caps each decoded file answer. Zero disables the cap.
	MaxUploadBytes int64
	// IdempotencyTTL is how long a submission key replays its response.
	IdempotencyTTL time.Duration
}

// Submit validates answers against the form's fields and stores a new
// response. Uploaded files are written before the transaction and removed
// again when it fails. With an idempotency key, a retry returns the
// response created first and replayed is true.
func (s *ResponseService) Submit(ctx context.Context, formID string, answers []fieldtype.Answer, opt SubmitOptions) (resp *domain.Response, replayed bool, err error) {
	tr := otel.Tracer("services/ResponseService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("form.id", formID),
			attribute.Int("answers.count", len(answers)),
		),
	)
	defer span.End()

	form, err := repo.GetFormWithFields(ctx, s.DB, formID)
	if err != nil {
		return nil, false, notFound(err, ErrFormNotFound)
	}
	if opt.RequirePublished && !form.IsPublished() {
		return nil, false, ErrFormNotPublished
	}

	if opt.IdempotencyKey != "" {
		rec, err := repo.GetIdempotency(ctx, s.DB, opt.Scope, form.ID, opt.IdempotencyKey, time.Now().UTC())
		if err == nil {
			r, err := s.Get(ctx, rec.ResponseID)
			return r, err == nil, err
		}
		if !isNotFound(err) {
			return nil, false, err
		}
	}

	if msgs := ValidateResponse(form, answers); len(msgs) > 0 {
		responsesRejected.Inc()
		return nil, false, invalid(msgs...)
	}

	byID := conditional.Index(form.Fields)
	r := &domain.Response{FormID: form.ID}
	var saved []string
	for _, a := range answers {
		if a.IsBlank() {
			continue
		}
		in, err := s.buildInput(form, byID[a.FieldID], a)
		if err != nil {
			removeFiles(ctx, s.Files, saved)
			return nil, false, err
		}
		if in.FileSpec != nil {
			saved = append(saved, in.Value)
		}
		r.Inputs = append(r.Inputs, *in)
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateResponse(ctx, tx, r); err != nil {
			return err
		}
		if opt.IdempotencyKey == "" {
			return nil
		}
		_, err := repo.CreateIdempotency(ctx, tx, opt.Scope, form.ID, opt.IdempotencyKey, r.ID, http.StatusCreated, s.IdempotencyTTL)
		return err
	})
	if err != nil {
		removeFiles(ctx, s.Files, saved)
		if errors.Is(err, repo.ErrDuplicate) && opt.IdempotencyKey != "" {
			// a concurrent retry with the same key won the insert
			if rec, gerr := repo.GetIdempotency(ctx, s.DB, opt.Scope, form.ID, opt.IdempotencyKey, time.Now().UTC()); gerr == nil {
				r, err := s.Get(ctx, rec.ResponseID)
				return r, err == nil, err
			}
		}
		return nil, false, err
	}

	responsesSubmitted.Inc()
	span.SetAttributes(attribute.String("response.id", r.ID))
	out, err := s.Get(ctx, r.ID)
	return out, false, err
}

// CreateEmpty stores a response without answers, to be filled through
// Update.
func (s *ResponseService) CreateEmpty(ctx context.Context, formID string) (*domain.Response, error) {
	tr := otel.Tracer("services/ResponseService")
	ctx, span := tr.Start(ctx, "CreateEmpty", trace.WithAttributes(attribute.String("form.id", formID)))
	defer span.End()

	if _, err := repo.GetForm(ctx, s.DB, formID); err != nil {
		return nil, notFound(err, ErrFormNotFound)
	}
	r := &domain.Response{FormID: formID}
	if err := repo.CreateResponse(ctx, s.DB, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns a response with its answers.
func (s *ResponseService) Get(ctx context.Context, id string) (*domain.Response, error) {
	r, err := repo.GetResponse(ctx, s.DB, id)
	if err != nil {
		return nil, notFound(err, ErrResponseNotFound)
	}
	return r, nil
}

// ListPage returns a page of a form's responses with their answers, newest
// first, and the total count.
func (s *ResponseService) ListPage(ctx context.Context, formID string, page, pageSize int) ([]domain.Response, int64, error) {
	if _, err := repo.GetForm(ctx, s.DB, formID); err != nil {
		return nil, 0, notFound(err, ErrFormNotFound)
	}
	_, pageSize, offset := utils.Normalize(page, pageSize)
	total, err := repo.CountResponses(ctx, s.DB, formID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Response{}, 0, nil
	}
	items, err := repo.ListResponsesPage(ctx, s.DB, formID, offset, pageSize)
	return items, total, err
}

// IDs returns the IDs of every response of a form, newest first.
func (s *ResponseService) IDs(ctx context.Context, formID string) ([]string, error) {
	if _, err := repo.GetForm(ctx, s.DB, formID); err != nil {
		return nil, notFound(err, ErrFormNotFound)
	}
	ids, err := repo.ListResponseIDs(ctx, s.DB, formID)
	if ids == nil {
		ids = []string{}
	}
	return ids, err
}

// Stats returns the number of responses of a form and the latest update.
func (s *ResponseService) Stats(ctx context.Context, formID string) (int64, *time.Time, error) {
	return repo.ResponsesStats(ctx, s.DB, formID)
}

// Update writes the given answers into an existing response. Answers to
// fields without a stored answer are created, others are rewritten in
// place. A blank answer clears the stored value. Replaced files are removed
// after the transaction commits.
func (s *ResponseService) Update(ctx context.Context, responseID string, answers []fieldtype.Answer) (*domain.Response, error) {
	tr := otel.Tracer("services/ResponseService")
	ctx, span := tr.Start(ctx, "Update",
		trace.WithAttributes(
			attribute.String("response.id", responseID),
			attribute.Int("answers.count", len(answers)),
		),
	)
	defer span.End()

	r, err := s.Get(ctx, responseID)
	if err != nil {
		return nil, err
	}
	form, err := repo.GetFormWithFields(ctx, s.DB, r.FormID)
	if err != nil {
		return nil, notFound(err, ErrFormNotFound)
	}
	byID := conditional.Index(form.Fields)

	msgs := repeatedAnswers(byID, answers)
	for _, a := range answers {
		f, ok := byID[a.FieldID]
		if !ok {
			msgs = append(msgs, msgUnknownField)
			continue
		}
		msgs = append(msgs, fieldtype.Validate(f, a)...)
	}
	if len(msgs) > 0 {
		responsesRejected.Inc()
		return nil, invalid(msgs...)
	}

	var saved, replaced []string
	inputs := make([]*domain.ResponseInput, len(answers))
	for i, a := range answers {
		if a.IsBlank() {
			inputs[i] = &domain.ResponseInput{FieldID: a.FieldID}
			continue
		}
		in, err := s.buildInput(form, byID[a.FieldID], a)
		if err != nil {
			removeFiles(ctx, s.Files, saved)
			return nil, err
		}
		if in.FileSpec != nil {
			saved = append(saved, in.Value)
		}
		inputs[i] = in
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, next := range inputs {
			cur, err := repo.GetInput(ctx, tx, responseID, next.FieldID)
			if isNotFound(err) {
				if next.Value == "" {
					continue
				}
				next.ResponseID = responseID
				if err := repo.CreateInput(ctx, tx, next); err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return err
			}
			if cur.FileSpec != nil && cur.Value != "" && cur.Value != next.Value {
				replaced = append(replaced, cur.Value)
			}
			if err := repo.UpdateInputValue(ctx, tx, cur.ID, next.Value); err != nil {
				return err
			}
			if cur.FileSpec != nil || next.FileSpec != nil {
				if err := repo.ReplaceFileSpec(ctx, tx, cur.ID, next.FileSpec); err != nil {
					return err
				}
			}
		}
		return repo.TouchResponse(ctx, tx, responseID)
	})
	if err != nil {
		removeFiles(ctx, s.Files, saved)
		return nil, notFound(err, ErrResponseNotFound)
	}
	removeFiles(ctx, s.Files, replaced)
	return s.Get(ctx, responseID)
}

// Delete removes a response and its uploaded files.
func (s *ResponseService) Delete(ctx context.Context, id string) error {
	tr := otel.Tracer("services/ResponseService")
	ctx, span := tr.Start(ctx, "Delete", trace.WithAttributes(attribute.String("response.id", id)))
	defer span.End()

	var paths []string
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if paths, err = repo.StoredFilePaths(ctx, tx, []string{id}); err != nil {
			return err
		}
		return repo.DeleteResponse(ctx, tx, id)
	})
	if err != nil {
		return notFound(err, ErrResponseNotFound)
	}
	removeFiles(ctx, s.Files, paths)
	return nil
}

// DeleteMany removes the listed responses of a form and their uploaded
// files, and returns how many were deleted. IDs of other forms are ignored.
func (s *ResponseService) DeleteMany(ctx context.Context, formID string, ids []string) (int64, error) {
	tr := otel.Tracer("services/ResponseService")
	ctx, span := tr.Start(ctx, "DeleteMany",
		trace.WithAttributes(
			attribute.String("form.id", formID),
			attribute.Int("ids.count", len(ids)),
		),
	)
	defer span.End()

	if _, err := repo.GetForm(ctx, s.DB, formID); err != nil {
		return 0, notFound(err, ErrFormNotFound)
	}
	var (
		paths []string
		n     int64
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owned, err := repo.ListResponseIDs(ctx, tx, formID)
		if err != nil {
			return err
		}
		keep := make(map[string]struct{}, len(owned))
		for _, id := range owned {
			keep[id] = struct{}{}
		}
		var mine []string
		for _, id := range ids {
			if _, ok := keep[id]; ok {
				mine = append(mine, id)
			}
		}
		if paths, err = repo.StoredFilePaths(ctx, tx, mine); err != nil {
			return err
		}
		n, err = repo.DeleteResponses(ctx, tx, formID, mine)
		return err
	})
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int64("deleted", n))
	removeFiles(ctx, s.Files, paths)
	return n, nil
}

// Table is the tabular view of a page of responses.
type Table struct {
	Columns []fieldtype.Column `json:"columns"`
	Rows    []TableRow         `json:"rows"`
	Total   int64              `json:"total"`
}

// TableRow holds the cells of one response keyed by field ID.
type TableRow struct {
	ResponseID string                    `json:"response_id"`
	CreatedAt  time.Time                 `json:"created_at"`
	Cells      map[string]fieldtype.Cell `json:"cells"`
}

// Table projects a page of a form's responses into columns (one per field)
// and rows of cells.
func (s *ResponseService) Table(ctx context.Context, formID string, page, pageSize int) (*Table, error) {
	tr := otel.Tracer("services/ResponseService")
	ctx, span := tr.Start(ctx, "Table", trace.WithAttributes(attribute.String("form.id", formID)))
	defer span.End()

	form, err := repo.GetFormWithFields(ctx, s.DB, formID)
	if err != nil {
		return nil, notFound(err, ErrFormNotFound)
	}
	responses, total, err := s.ListPage(ctx, formID, page, pageSize)
	if err != nil {
		return nil, err
	}

	t := &Table{Total: total, Columns: make([]fieldtype.Column, len(form.Fields)), Rows: make([]TableRow, 0, len(responses))}
	for i := range form.Fields {
		t.Columns[i] = fieldtype.BuildColumn(&form.Fields[i])
	}
	for _, r := range responses {
		byField := make(map[string]*domain.ResponseInput, len(r.Inputs))
		for i := range r.Inputs {
			byField[r.Inputs[i].FieldID] = &r.Inputs[i]
		}
		row := TableRow{ResponseID: r.ID, CreatedAt: r.CreatedAt, Cells: make(map[string]fieldtype.Cell, len(form.Fields))}
		for i := range form.Fields {
			f := &form.Fields[i]
			row.Cells[f.ID] = fieldtype.BuildCell(f, byField[f.ID])
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Summary is the compact view of a response served to external consumers:
// the stored answers to the first fields of the form.
type Summary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Values    []string  `json:"values"`
}

// Summaries lists every response of a form with the answers to its first
// two fields.
func (s *ResponseService) Summaries(ctx context.Context, formID string) ([]Summary, error) {
	form, err := repo.GetFormWithFields(ctx, s.DB, formID)
	if err != nil {
		return nil, notFound(err, ErrFormNotFound)
	}
	lead := form.Fields
	if len(lead) > summaryFields {
		lead = lead[:summaryFields]
	}
	responses, err := repo.ListResponsesPage(ctx, s.DB, formID, 0, 0)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(responses))
	for _, r := range responses {
		sm := Summary{ID: r.ID, CreatedAt: r.CreatedAt, Values: make([]string, len(lead))}
		for i, f := range lead {
			for _, in := range r.Inputs {
				if in.FieldID == f.ID {
					sm.Values[i] = in.Value
					break
				}
			}
		}
		out = append(out, sm)
	}
	return out, nil
}

// buildInput converts a validated, non-blank answer into its stored form.
// File answers are decoded and written to storage; the input then holds the
// storage path.
func (s *ResponseService) buildInput(form *domain.Form, f *domain.Field, a fieldtype.Answer) (*domain.ResponseInput, error) {
	k := fieldtype.Resolve(f.Type)
	if k != fieldtype.File {
		return &domain.ResponseInput{FieldID: f.ID, Value: canonical(k, f, a.Value)}, nil
	}

	blob, err := storage.DecodeDataURL(a.Value)
	if err != nil {
		return nil, invalid(fmt.Sprintf("Le fichier %s est illisible", a.FileName))
	}
	if s.MaxUploadBytes > 0 && blob.Size() > s.MaxUploadBytes {
		return nil, invalid(fmt.Sprintf("Le fichier %s est trop volumineux", a.FileName))
	}
	if s.Files == nil {
		return nil, ErrInvalidFile
	}
	mt := a.MimeType
	if mt == "" {
		mt = blob.MimeType
	}
	rel, err := s.Files.Save(form.Name, a.FileName, blob)
	if err != nil {
		return nil, err
	}
	return &domain.ResponseInput{
		FieldID:  f.ID,
		Value:    rel,
		FileSpec: &domain.FileSpec{Name: a.FileName, Size: blob.Size(), MimeType: mt},
	}, nil
}

// canonical re-encodes a raw answer through the registry so equivalent
// inputs are stored identically. Undecodable values are kept as sent.
func canonical(k fieldtype.Kind, f *domain.Field, raw string) string {
	v, err := fieldtype.Deserialize(k, raw, f.Options, f.IsMultiple)
	if err != nil {
		return raw
	}
	out, err := fieldtype.Serialize(k, v)
	if err != nil || out == "" {
		return raw
	}
	return out
}
