// Package services – FieldService
//
// FieldService edits the fields of draft forms together with their options
// and file associations. Positions are delegated to OrderManager so that
// every field creation, move and deletion keeps the 1..N ordering dense.
//
// Observability: public methods that write are OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-forms-backend/internal/conditional"
	"github.com/tbourn/go-forms-backend/internal/domain"
	"github.com/tbourn/go-forms-backend/internal/fieldtype"
	"github.com/tbourn/go-forms-backend/internal/repo"
	"github.com/tbourn/go-forms-backend/internal/search"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Names given to fields created with default settings.
const (
	defaultFieldName  = "Titre"
	defaultFieldLabel = "Label"
)

// FieldInput is the editable state of a field. On update, nil Options or
// FileAssociations leave the stored ones untouched; an empty slice clears
// them.
type FieldInput struct {
	Name               string
	Label              string
	Placeholder        string
	Type               string
	IsRequired         bool
	IsMultiple         bool
	IsHidden           bool
	IsConditional      bool
	DefaultValue       *string
	ConditionalInputID *string
	ConditionalValue   *string
	Options            []OptionInput
	FileAssociations   []AssociationInput
}

// OptionInput is one option of a choice field. A blank value takes the name.
type OptionInput struct {
	OptionName  string
	OptionValue string
}

// AssociationInput binds a field to a placeholder key of a template file.
type AssociationInput struct {
	TemplateFileID string
	Value          string
}

// FieldService provides field, option and file association operations.
type FieldService struct {
	DB    *gorm.DB
	Order *OrderManager

	// SuggestK caps option suggestions.
	SuggestK int
}

// List returns the fields of a form ordered by position.
func (s *FieldService) List(ctx context.Context, formID string) ([]domain.Field, error) {
	if _, err := repo.GetForm(ctx, s.DB, formID); err != nil {
		return nil, notFound(err, ErrFormNotFound)
	}
	return repo.ListFields(ctx, s.DB, formID)
}

// Get returns one field with its options and file associations.
func (s *FieldService) Get(ctx context.Context, id string) (*domain.Field, error) {
	f, err := repo.GetField(ctx, s.DB, id)
	if err != nil {
		return nil, notFound(err, ErrFieldNotFound)
	}
	return f, nil
}

// Create validates in and appends the new field at the end of the form.
func (s *FieldService) Create(ctx context.Context, formID string, in FieldInput) (*domain.Field, error) {
	tr := otel.Tracer("services/FieldService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("form.id", formID),
			attribute.String("field.type", in.Type),
		),
	)
	defer span.End()

	form, err := s.draftForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	siblings, err := repo.ListFields(ctx, s.DB, form.ID)
	if err != nil {
		return nil, err
	}

	f := &domain.Field{FormID: form.ID}
	applyInput(f, in)
	f.Options = buildOptions(nil, in.Options)
	f.FileAssociations = buildAssociations(in.FileAssociations)
	if err := checkField(f, in, siblings); err != nil {
		return nil, err
	}
	if err := s.checkTemplates(ctx, s.DB, f.FileAssociations); err != nil {
		return nil, err
	}
	if err := s.Order.Append(ctx, f); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("field.id", f.ID))
	return s.Get(ctx, f.ID)
}

// CreateDefault appends a text field named "Titre" labelled "Label".
func (s *FieldService) CreateDefault(ctx context.Context, formID string) (*domain.Field, error) {
	return s.Create(ctx, formID, FieldInput{
		Name:  defaultFieldName,
		Label: defaultFieldLabel,
		Type:  string(fieldtype.Text),
	})
}

// Update replaces the settings of a field. Options and associations are
// replaced only when provided.
func (s *FieldService) Update(ctx context.Context, id string, in FieldInput) (*domain.Field, error) {
	tr := otel.Tracer("services/FieldService")
	ctx, span := tr.Start(ctx, "Update", trace.WithAttributes(attribute.String("field.id", id)))
	defer span.End()

	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.draftForm(ctx, cur.FormID); err != nil {
		return nil, err
	}
	siblings, err := repo.ListFields(ctx, s.DB, cur.FormID)
	if err != nil {
		return nil, err
	}

	next := *cur
	applyInput(&next, in)
	if in.Options != nil {
		next.Options = buildOptions(nil, in.Options)
	}
	if in.FileAssociations != nil {
		next.FileAssociations = buildAssociations(in.FileAssociations)
	}
	if err := checkField(&next, in, siblings); err != nil {
		return nil, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.UpdateField(ctx, tx, id, map[string]any{
			"name":                 next.Name,
			"label":                next.Label,
			"placeholder":          next.Placeholder,
			"type":                 next.Type,
			"is_required":          next.IsRequired,
			"is_multiple":          next.IsMultiple,
			"is_hidden":            next.IsHidden,
			"is_conditional":       next.IsConditional,
			"default_value":        next.DefaultValue,
			"conditional_input_id": next.ConditionalInputID,
			"conditional_value":    next.ConditionalValue,
		}); err != nil {
			return notFound(err, ErrFieldNotFound)
		}
		if in.Options != nil {
			if err := repo.DeleteOptionsForField(ctx, tx, id); err != nil {
				return err
			}
			for i := range next.Options {
				next.Options[i].FieldID = id
				if err := repo.CreateOption(ctx, tx, &next.Options[i]); err != nil {
					return err
				}
			}
		}
		if in.FileAssociations != nil {
			if err := s.checkTemplates(ctx, tx, next.FileAssociations); err != nil {
				return err
			}
			if err := repo.DeleteAssociationsForField(ctx, tx, id); err != nil {
				return err
			}
			for i := range next.FileAssociations {
				next.FileAssociations[i].FieldID = id
				if err := repo.CreateAssociation(ctx, tx, &next.FileAssociations[i]); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Reset turns a field back into a plain text field: default value and
// options are removed, the multiple flag is cleared.
func (s *FieldService) Reset(ctx context.Context, id string) (*domain.Field, error) {
	tr := otel.Tracer("services/FieldService")
	ctx, span := tr.Start(ctx, "Reset", trace.WithAttributes(attribute.String("field.id", id)))
	defer span.End()

	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.draftForm(ctx, cur.FormID); err != nil {
		return nil, err
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.UpdateField(ctx, tx, id, map[string]any{
			"type":          string(fieldtype.Text),
			"default_value": nil,
			"is_multiple":   false,
		}); err != nil {
			return notFound(err, ErrFieldNotFound)
		}
		return repo.DeleteOptionsForField(ctx, tx, id)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Move swaps a field with its neighbor. See OrderManager.Move.
func (s *FieldService) Move(ctx context.Context, id, direction string) (*domain.Field, error) {
	return s.Order.Move(ctx, id, direction)
}

// Delete removes a field. See OrderManager.DeleteField.
func (s *FieldService) Delete(ctx context.Context, id string) error {
	return s.Order.DeleteField(ctx, id)
}

// Dependents returns the IDs of the fields conditioned on each field of a
// form.
func (s *FieldService) Dependents(ctx context.Context, formID string) (map[string][]string, error) {
	fields, err := s.List(ctx, formID)
	if err != nil {
		return nil, err
	}
	return conditional.Dependents(fields), nil
}

// CreateOption adds an option to a field. A value already used by the field
// is suffixed with the first free counter: red, red2, red3, ...
func (s *FieldService) CreateOption(ctx context.Context, fieldID string, in OptionInput) (*domain.Option, error) {
	tr := otel.Tracer("services/FieldService")
	ctx, span := tr.Start(ctx, "CreateOption", trace.WithAttributes(attribute.String("field.id", fieldID)))
	defer span.End()

	created, err := s.addOptions(ctx, fieldID, []OptionInput{in})
	if err != nil {
		return nil, err
	}
	return &created[0], nil
}

// ImportOptions parses pasted options (see search.ParseOptions) and appends
// them to the field, suffixing duplicate values.
func (s *FieldService) ImportOptions(ctx context.Context, fieldID string, r io.Reader) ([]domain.Option, error) {
	tr := otel.Tracer("services/FieldService")
	ctx, span := tr.Start(ctx, "ImportOptions", trace.WithAttributes(attribute.String("field.id", fieldID)))
	defer span.End()

	pairs, err := search.ParseOptions(r)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, invalid("Aucune option à importer")
	}
	in := make([]OptionInput, len(pairs))
	for i, p := range pairs {
		in[i] = OptionInput{OptionName: p.Name, OptionValue: p.Value}
	}
	span.SetAttributes(attribute.Int("options.count", len(in)))
	return s.addOptions(ctx, fieldID, in)
}

func (s *FieldService) addOptions(ctx context.Context, fieldID string, in []OptionInput) ([]domain.Option, error) {
	f, err := s.Get(ctx, fieldID)
	if err != nil {
		return nil, err
	}
	if _, err := s.draftForm(ctx, f.FormID); err != nil {
		return nil, err
	}
	if !fieldtype.Resolve(f.Type).Props().CanHaveOptions {
		return nil, invalid(fmt.Sprintf("Le champ \"%s\" n'accepte pas d'options", f.Name))
	}
	if msgs := checkOptionInputs(in); len(msgs) > 0 {
		return nil, invalid(msgs...)
	}

	var created []domain.Option
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := repo.ListOptions(ctx, tx, fieldID)
		if err != nil {
			return err
		}
		created = buildOptions(existing, in)
		for i := range created {
			created[i].FieldID = fieldID
			if err := repo.CreateOption(ctx, tx, &created[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// DeleteOption removes one option of a draft form's field.
func (s *FieldService) DeleteOption(ctx context.Context, optionID string) error {
	o, err := repo.GetOption(ctx, s.DB, optionID)
	if err != nil {
		return notFound(err, ErrOptionNotFound)
	}
	f, err := s.Get(ctx, o.FieldID)
	if err != nil {
		return err
	}
	if _, err := s.draftForm(ctx, f.FormID); err != nil {
		return err
	}
	return notFound(repo.DeleteOption(ctx, s.DB, optionID), ErrOptionNotFound)
}

// Articles and prepositions carry no signal in option labels such as
// "Carte d'identité" or "Permis de conduire".
var suggestStopwords = []string{"le", "la", "les", "l", "de", "des", "du", "d", "et", "a", "au", "aux", "en", "un", "une"}

// maxSuggestOptions bounds the options indexed per suggestion request.
const maxSuggestOptions = 5000

// SuggestOptions ranks the options of a field against a partial query, for
// autocomplete inputs. An empty query lists the first options.
func (s *FieldService) SuggestOptions(ctx context.Context, fieldID, query string) ([]search.Result, error) {
	f, err := s.Get(ctx, fieldID)
	if err != nil {
		return nil, err
	}
	entries := make([]search.Entry, len(f.Options))
	for i, o := range f.Options {
		entries[i] = search.Entry{ID: o.ID, Label: o.OptionName, Value: o.OptionValue}
	}
	k := s.SuggestK
	if k <= 0 {
		k = 10
	}
	out := search.NewIndex(entries,
		search.WithMinQueryRunes(1),
		search.WithStopwords(suggestStopwords),
		search.WithMaxDocs(maxSuggestOptions),
	).TopK(query, k)
	if out == nil {
		out = []search.Result{}
	}
	return out, nil
}

// CreateAssociation binds a field to a placeholder key of a template file.
func (s *FieldService) CreateAssociation(ctx context.Context, fieldID string, in AssociationInput) (*domain.FileAssociation, error) {
	tr := otel.Tracer("services/FieldService")
	ctx, span := tr.Start(ctx, "CreateAssociation",
		trace.WithAttributes(
			attribute.String("field.id", fieldID),
			attribute.String("template.id", in.TemplateFileID),
		),
	)
	defer span.End()

	f, err := s.Get(ctx, fieldID)
	if err != nil {
		return nil, err
	}
	if _, err := s.draftForm(ctx, f.FormID); err != nil {
		return nil, err
	}
	as := buildAssociations([]AssociationInput{in})
	if err := s.checkTemplates(ctx, s.DB, as); err != nil {
		return nil, err
	}
	a := &as[0]
	a.FieldID = fieldID
	if err := repo.CreateAssociation(ctx, s.DB, a); err != nil {
		return nil, err
	}
	return a, nil
}

// DeleteAssociation removes a file association.
func (s *FieldService) DeleteAssociation(ctx context.Context, id string) error {
	a, err := repo.GetAssociation(ctx, s.DB, id)
	if err != nil {
		return notFound(err, ErrAssociationNotFound)
	}
	f, err := s.Get(ctx, a.FieldID)
	if err != nil {
		return err
	}
	if _, err := s.draftForm(ctx, f.FormID); err != nil {
		return err
	}
	return notFound(repo.DeleteAssociation(ctx, s.DB, id), ErrAssociationNotFound)
}

// draftForm loads a form and refuses published ones.
func (s *FieldService) draftForm(ctx context.Context, formID string) (*domain.Form, error) {
	form, err := repo.GetForm(ctx, s.DB, formID)
	if err != nil {
		return nil, notFound(err, ErrFormNotFound)
	}
	if form.IsPublished() {
		return nil, ErrFormPublished
	}
	return form, nil
}

func (s *FieldService) checkTemplates(ctx context.Context, db *gorm.DB, as []domain.FileAssociation) error {
	for _, a := range as {
		if _, err := repo.GetTemplate(ctx, db, a.TemplateFileID); err != nil {
			return notFound(err, ErrTemplateNotFound)
		}
	}
	return nil
}

// applyInput copies the scalar settings of in onto f. Conditional settings
// are dropped when the field is not conditional.
func applyInput(f *domain.Field, in FieldInput) {
	f.Name = normalizeTitle(in.Name)
	f.Label = strings.TrimSpace(in.Label)
	f.Placeholder = strings.TrimSpace(in.Placeholder)
	f.Type = strings.TrimSpace(in.Type)
	if f.Type == "" {
		f.Type = string(fieldtype.Text)
	}
	f.IsRequired = in.IsRequired
	f.IsMultiple = in.IsMultiple
	f.IsHidden = in.IsHidden
	f.IsConditional = in.IsConditional
	f.DefaultValue = in.DefaultValue
	if f.DefaultValue != nil && *f.DefaultValue == "" {
		f.DefaultValue = nil
	}
	f.ConditionalInputID, f.ConditionalValue = nil, nil
	if in.IsConditional {
		f.ConditionalInputID = in.ConditionalInputID
		f.ConditionalValue = in.ConditionalValue
	}
}

// checkField validates a field about to be stored. siblings are the fields
// currently stored for the form, f included on update.
func checkField(f *domain.Field, in FieldInput, siblings []domain.Field) error {
	var msgs []string
	if f.Name == "" {
		msgs = append(msgs, "Le nom du champ est requis")
	}
	k, err := fieldtype.Parse(f.Type)
	if err != nil {
		return invalid(append(msgs, fmt.Sprintf("Le type de champ \"%s\" n'existe pas", f.Type))...)
	}
	props := k.Props()
	if f.IsRequired && f.IsHidden {
		msgs = append(msgs, "Un champ masqué ne peut pas être requis")
	}
	if len(in.Options) > 0 && !props.CanHaveOptions {
		msgs = append(msgs, fmt.Sprintf("Le champ \"%s\" n'accepte pas d'options", f.Name))
	}
	msgs = append(msgs, checkOptionInputs(in.Options)...)
	if f.Placeholder != "" && !props.CanHavePlaceholder {
		f.Placeholder = ""
	}

	byID := conditional.Index(siblings)
	switch err := conditional.CheckReference(f, byID); {
	case err == nil:
	case errors.Is(err, conditional.ErrMissingReference), errors.Is(err, conditional.ErrMissingValue):
		msgs = append(msgs, "Un champ conditionnel doit indiquer le champ de référence et la valeur attendue")
	case errors.Is(err, conditional.ErrSelfReference):
		msgs = append(msgs, "Un champ ne peut pas dépendre de lui-même")
	default:
		msgs = append(msgs, "Le champ de référence n'existe pas dans ce formulaire")
	}

	if len(msgs) == 0 {
		msgs = append(msgs, fieldtype.ValidateDefault(f)...)
	}
	return invalid(msgs...)
}

func checkOptionInputs(in []OptionInput) []string {
	var msgs []string
	for _, o := range in {
		name, value := strings.TrimSpace(o.OptionName), strings.TrimSpace(o.OptionValue)
		if name == "" && value == "" {
			msgs = append(msgs, "Une option doit avoir un nom")
			continue
		}
		if strings.Contains(value, fieldtype.Separator) || (value == "" && strings.Contains(name, fieldtype.Separator)) {
			msgs = append(msgs, fmt.Sprintf("La valeur d'option \"%s\" ne peut pas contenir \"%s\"", firstNonEmpty(value, name), fieldtype.Separator))
		}
	}
	return msgs
}

// buildOptions turns inputs into options positioned after existing ones,
// suffixing values that collide with existing or earlier values.
func buildOptions(existing []domain.Option, in []OptionInput) []domain.Option {
	used := make(map[string]struct{}, len(existing)+len(in))
	next := 1
	for _, o := range existing {
		used[o.OptionValue] = struct{}{}
		if o.Order >= next {
			next = o.Order + 1
		}
	}
	out := make([]domain.Option, 0, len(in))
	for _, o := range in {
		name, value := strings.TrimSpace(o.OptionName), strings.TrimSpace(o.OptionValue)
		if name == "" {
			name = value
		}
		if value == "" {
			value = name
		}
		if value == "" {
			continue
		}
		value = uniqueValue(value, used)
		used[value] = struct{}{}
		out = append(out, domain.Option{OptionName: name, OptionValue: value, Order: next})
		next++
	}
	return out
}

// uniqueValue returns v, or v followed by the first counter from 2 upward
// that is not in used.
func uniqueValue(v string, used map[string]struct{}) string {
	if _, ok := used[v]; !ok {
		return v
	}
	for n := 2; ; n++ {
		c := v + strconv.Itoa(n)
		if _, ok := used[c]; !ok {
			return c
		}
	}
}

func buildAssociations(in []AssociationInput) []domain.FileAssociation {
	out := make([]domain.FileAssociation, 0, len(in))
	for _, a := range in {
		out = append(out, domain.FileAssociation{
			TemplateFileID: strings.TrimSpace(a.TemplateFileID),
			Value:          strings.TrimSpace(a.Value),
		})
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
