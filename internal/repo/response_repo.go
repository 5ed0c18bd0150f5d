package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-forms-backend/internal/domain"
)

// CreateResponse inserts r with its inputs and their file specs, assigning
// IDs and UTC timestamps where unset.
func CreateResponse(ctx context.Context, db *gorm.DB, r *domain.Response) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	for i := range r.Inputs {
		in := &r.Inputs[i]
		if in.ID == "" {
			in.ID = uuid.NewString()
		}
		in.ResponseID = r.ID
		in.CreatedAt, in.UpdatedAt = now, now
		if in.FileSpec != nil {
			if in.FileSpec.ID == "" {
				in.FileSpec.ID = uuid.NewString()
			}
			in.FileSpec.ResponseInputID = in.ID
		}
	}
	return translate(db.WithContext(ctx).Create(r).Error)
}

// inputsByFieldPosition orders preloaded inputs the way their fields are
// laid out in the form. Inputs of a missing field sort last.
func inputsByFieldPosition(tx *gorm.DB) *gorm.DB {
	return tx.Order("COALESCE((SELECT fields.position FROM fields WHERE fields.id = response_inputs.field_id), 2147483647) asc, response_inputs.id asc")
}

// GetResponse fetches a response with its inputs, in field order, and
// their file specs.
func GetResponse(ctx context.Context, db *gorm.DB, id string) (*domain.Response, error) {
	var r domain.Response
	err := db.WithContext(ctx).
		Preload("Inputs", inputsByFieldPosition).
		Preload("Inputs.FileSpec").
		Where("id = ?", id).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CountResponses returns the number of responses of a form.
func CountResponses(ctx context.Context, db *gorm.DB, formID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Response{}).
		Where("form_id = ?", formID).
		Count(&total).Error
	return total, err
}

// ListResponsesPage returns the responses of a form, newest first, with
// inputs loaded in field order. A non-positive limit returns every response.
func ListResponsesPage(ctx context.Context, db *gorm.DB, formID string, offset, limit int) ([]domain.Response, error) {
	q := db.WithContext(ctx).
		Preload("Inputs", inputsByFieldPosition).
		Preload("Inputs.FileSpec").
		Where("form_id = ?", formID).
		Order("created_at desc, id asc")
	if limit > 0 {
		q = q.Offset(offset).Limit(limit)
	}
	var out []domain.Response
	err := q.Find(&out).Error
	return out, err
}

// ListResponseIDs returns the IDs of a form's responses, newest first.
func ListResponseIDs(ctx context.Context, db *gorm.DB, formID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Response{}).
		Where("form_id = ?", formID).
		Order("created_at desc, id asc").
		Pluck("id", &ids).Error
	return ids, err
}

// GetInput fetches the answer of one field within a response.
func GetInput(ctx context.Context, db *gorm.DB, responseID, fieldID string) (*domain.ResponseInput, error) {
	var in domain.ResponseInput
	err := db.WithContext(ctx).
		Preload("FileSpec").
		Where("response_id = ? AND field_id = ?", responseID, fieldID).
		First(&in).Error
	if err != nil {
		return nil, err
	}
	return &in, nil
}

// CreateInput inserts one answer (and its file spec) into an existing response.
func CreateInput(ctx context.Context, db *gorm.DB, in *domain.ResponseInput) error {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	in.CreatedAt, in.UpdatedAt = now, now
	if in.FileSpec != nil {
		if in.FileSpec.ID == "" {
			in.FileSpec.ID = uuid.NewString()
		}
		in.FileSpec.ResponseInputID = in.ID
	}
	return translate(db.WithContext(ctx).Create(in).Error)
}

// UpdateInputValue rewrites the stored value of an answer in place.
func UpdateInputValue(ctx context.Context, db *gorm.DB, id, value string) error {
	res := db.WithContext(ctx).
		Model(&domain.ResponseInput{}).
		Where("id = ?", id).
		Updates(map[string]any{"value": value, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ReplaceFileSpec deletes any file spec of an answer and stores spec instead.
// A nil spec only deletes.
func ReplaceFileSpec(ctx context.Context, db *gorm.DB, inputID string, spec *domain.FileSpec) error {
	if err := db.WithContext(ctx).Where("response_input_id = ?", inputID).Delete(&domain.FileSpec{}).Error; err != nil {
		return err
	}
	if spec == nil {
		return nil
	}
	spec.ID = uuid.NewString()
	spec.ResponseInputID = inputID
	return db.WithContext(ctx).Create(spec).Error
}

// TouchResponse bumps updated_at of a response.
func TouchResponse(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.Response{}).
		Where("id = ?", id).
		Update("updated_at", time.Now().UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// StoredFilePaths returns the stored paths of every file answer belonging
// to the given responses.
func StoredFilePaths(ctx context.Context, db *gorm.DB, responseIDs []string) ([]string, error) {
	if len(responseIDs) == 0 {
		return nil, nil
	}
	var paths []string
	err := db.WithContext(ctx).
		Model(&domain.ResponseInput{}).
		Joins("JOIN file_specs ON file_specs.response_input_id = response_inputs.id").
		Where("response_inputs.response_id IN ? AND response_inputs.value <> ''", responseIDs).
		Pluck("response_inputs.value", &paths).Error
	return paths, err
}

// DeleteResponses removes the given responses of a form and returns how
// many rows were deleted. Inputs and file specs cascade.
func DeleteResponses(ctx context.Context, db *gorm.DB, formID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Where("form_id = ? AND id IN ?", formID, ids).
		Delete(&domain.Response{})
	return res.RowsAffected, res.Error
}

// DeleteResponse removes one response.
func DeleteResponse(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Response{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FieldFilePaths returns the stored paths of every file answer to fieldID.
func FieldFilePaths(ctx context.Context, db *gorm.DB, fieldID string) ([]string, error) {
	var paths []string
	err := db.WithContext(ctx).
		Model(&domain.ResponseInput{}).
		Joins("JOIN file_specs ON file_specs.response_input_id = response_inputs.id").
		Where("response_inputs.field_id = ? AND response_inputs.value <> ''", fieldID).
		Pluck("response_inputs.value", &paths).Error
	return paths, err
}

// FormFilePaths returns the stored paths of every file answer to any
// response of formID.
func FormFilePaths(ctx context.Context, db *gorm.DB, formID string) ([]string, error) {
	var paths []string
	err := db.WithContext(ctx).
		Model(&domain.ResponseInput{}).
		Joins("JOIN file_specs ON file_specs.response_input_id = response_inputs.id").
		Joins("JOIN responses ON responses.id = response_inputs.response_id").
		Where("responses.form_id = ? AND response_inputs.value <> ''", formID).
		Pluck("response_inputs.value", &paths).Error
	return paths, err
}
