package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-forms-backend/internal/domain"
)

func preloadField(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Options", func(tx *gorm.DB) *gorm.DB { return tx.Order("position asc, id asc") }).
		Preload("FileAssociations.TemplateFile")
}

// ListFields returns the fields of a form ordered by position, with options
// and file associations loaded.
func ListFields(ctx context.Context, db *gorm.DB, formID string) ([]domain.Field, error) {
	var out []domain.Field
	err := preloadField(db.WithContext(ctx)).
		Where("form_id = ?", formID).
		Order("position asc, id asc").
		Find(&out).Error
	return out, err
}

// ListFieldOrder returns only id and position of the fields of a form,
// ordered by position then id.
func ListFieldOrder(ctx context.Context, db *gorm.DB, formID string) ([]domain.Field, error) {
	var out []domain.Field
	err := db.WithContext(ctx).
		Select("id", "position").
		Where("form_id = ?", formID).
		Order("position asc, id asc").
		Find(&out).Error
	return out, err
}

// GetField fetches a field with its options and file associations.
func GetField(ctx context.Context, db *gorm.DB, id string) (*domain.Field, error) {
	var f domain.Field
	if err := preloadField(db.WithContext(ctx)).Where("id = ?", id).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// MaxFieldOrder returns the highest position used in a form, or 0.
func MaxFieldOrder(ctx context.Context, db *gorm.DB, formID string) (int, error) {
	var row struct{ Max *int }
	err := db.WithContext(ctx).
		Model(&domain.Field{}).
		Select("MAX(position) AS max").
		Where("form_id = ?", formID).
		Scan(&row).Error
	if err != nil || row.Max == nil {
		return 0, err
	}
	return *row.Max, nil
}

// CreateField inserts f together with any nested options and file
// associations, assigning IDs where unset.
func CreateField(ctx context.Context, db *gorm.DB, f *domain.Field) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now
	for i := range f.Options {
		if f.Options[i].ID == "" {
			f.Options[i].ID = uuid.NewString()
		}
		f.Options[i].FieldID = f.ID
	}
	for i := range f.FileAssociations {
		if f.FileAssociations[i].ID == "" {
			f.FileAssociations[i].ID = uuid.NewString()
		}
		f.FileAssociations[i].FieldID = f.ID
		f.FileAssociations[i].TemplateFile = nil
	}
	return translate(db.WithContext(ctx).Omit("Answers").Create(f).Error)
}

// UpdateField applies column updates to a field. It returns ErrNotFound when
// no row matched.
func UpdateField(ctx context.Context, db *gorm.DB, id string, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Field{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetFieldOrder writes the position of one field.
func SetFieldOrder(ctx context.Context, db *gorm.DB, id string, order int) error {
	res := db.WithContext(ctx).
		Model(&domain.Field{}).
		Where("id = ?", id).
		Update("position", order)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// NeighborField returns the field directly above ("up") or below ("down")
// position order in the same form, or ErrNotFound at the boundary.
func NeighborField(ctx context.Context, db *gorm.DB, formID string, order int, up bool) (*domain.Field, error) {
	q := db.WithContext(ctx).Where("form_id = ?", formID)
	if up {
		q = q.Where("position < ?", order).Order("position desc, id desc")
	} else {
		q = q.Where("position > ?", order).Order("position asc, id asc")
	}
	var f domain.Field
	if err := q.First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// ClearConditionsOn turns every field conditioned on fieldID back into a
// plain field and returns how many were changed.
func ClearConditionsOn(ctx context.Context, db *gorm.DB, fieldID string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Field{}).
		Where("conditional_input_id = ?", fieldID).
		Updates(map[string]any{
			"is_conditional":       false,
			"conditional_input_id": nil,
			"conditional_value":    nil,
			"updated_at":           time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// DeleteField removes a field; options, file associations and answers
// follow through ON DELETE CASCADE.
func DeleteField(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Field{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
