// Package conditional decides whether a field is shown to the person filling
// a form, given the answers collected so far, and maintains the derived
// index of fields conditioned on another field.
package conditional

import (
	"errors"

	"github.com/tbourn/go-forms-backend/internal/domain"
	"github.com/tbourn/go-forms-backend/internal/fieldtype"
)

// Reference errors reported by CheckReference.
var (
	ErrMissingReference = errors.New("conditional field requires a conditional input id")
	ErrMissingValue     = errors.New("conditional field requires a conditional value")
	ErrSelfReference    = errors.New("a field cannot be conditioned on itself")
	ErrForeignReference = errors.New("conditional input must belong to the same form")
)

// Answers maps field IDs to stored answer values.
type Answers map[string]string

// IsActive reports whether f is visible given answers. byID indexes the
// fields of f's form.
//
// IsHidden always hides the field. A non-conditional field is active. A
// conditional field is active only when the referenced field has an answer
// that matches ConditionalValue under the referenced field's type; a
// missing reference or a missing answer hides it.
func IsActive(f *domain.Field, byID map[string]*domain.Field, answers Answers) bool {
	if f.IsHidden {
		return false
	}
	if !f.IsConditional {
		return true
	}
	if f.ConditionalInputID == nil || f.ConditionalValue == nil {
		return false
	}
	ref, ok := byID[*f.ConditionalInputID]
	if !ok {
		return false
	}
	got, ok := answers[ref.ID]
	if !ok {
		return false
	}
	return fieldtype.CompareForCondition(fieldtype.Resolve(ref.Type), got, *f.ConditionalValue)
}

// Index builds the id → field lookup used by IsActive.
func Index(fields []domain.Field) map[string]*domain.Field {
	out := make(map[string]*domain.Field, len(fields))
	for i := range fields {
		out[fields[i].ID] = &fields[i]
	}
	return out
}

// Dependents maps each field ID to the IDs of the fields conditioned on it,
// in the order they appear in fields.
func Dependents(fields []domain.Field) map[string][]string {
	out := make(map[string][]string)
	for _, f := range fields {
		if !f.IsConditional || f.ConditionalInputID == nil {
			continue
		}
		out[*f.ConditionalInputID] = append(out[*f.ConditionalInputID], f.ID)
	}
	return out
}

// CheckReference validates the conditional settings of f against the
// fields of its form. Non-conditional fields always pass.
func CheckReference(f *domain.Field, byID map[string]*domain.Field) error {
	if !f.IsConditional {
		return nil
	}
	if f.ConditionalInputID == nil || *f.ConditionalInputID == "" {
		return ErrMissingReference
	}
	if f.ConditionalValue == nil || *f.ConditionalValue == "" {
		return ErrMissingValue
	}
	if *f.ConditionalInputID == f.ID {
		return ErrSelfReference
	}
	ref, ok := byID[*f.ConditionalInputID]
	if !ok || ref.FormID != f.FormID {
		return ErrForeignReference
	}
	return nil
}
