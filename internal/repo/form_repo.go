// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Form model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They perform persistence and query
// composition only; publication rules and alias policy live in services.
//
// Error semantics:
//   - Missing rows yield gorm.ErrRecordNotFound (ErrNotFound).
//   - Unique violations (alias) yield ErrDuplicate.
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-forms-backend/internal/domain"
)

// CreateForm inserts f, assigning an ID and UTC timestamps when unset.
// Nested Fields are inserted too when present.
func CreateForm(ctx context.Context, db *gorm.DB, f *domain.Form) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = domain.FormStatusDraft
	}
	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now
	return translate(db.WithContext(ctx).Create(f).Error)
}

// CountForms returns the total number of forms.
func CountForms(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Form{}).Count(&total).Error
	return total, err
}

// ListFormsPage returns forms ordered by creation time descending.
func ListFormsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Form, error) {
	var out []domain.Form
	err := db.WithContext(ctx).
		Order("created_at desc, id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListPublishedForms returns every published form ordered by name.
func ListPublishedForms(ctx context.Context, db *gorm.DB) ([]domain.Form, error) {
	var out []domain.Form
	err := db.WithContext(ctx).
		Where("status = ?", domain.FormStatusPublished).
		Order("name asc, id asc").
		Find(&out).Error
	return out, err
}

// GetForm fetches a form by ID without its fields.
func GetForm(ctx context.Context, db *gorm.DB, id string) (*domain.Form, error) {
	var f domain.Form
	if err := db.WithContext(ctx).Where("id = ?", id).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// GetFormByAlias fetches a form by its alias.
func GetFormByAlias(ctx context.Context, db *gorm.DB, alias string) (*domain.Form, error) {
	var f domain.Form
	if err := db.WithContext(ctx).Where("alias = ?", alias).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// GetFormWithFields fetches a form together with its fields (ordered by
// position), their options and file associations.
func GetFormWithFields(ctx context.Context, db *gorm.DB, id string) (*domain.Form, error) {
	var f domain.Form
	err := db.WithContext(ctx).
		Preload("Fields", func(tx *gorm.DB) *gorm.DB { return tx.Order("position asc, id asc") }).
		Preload("Fields.Options", func(tx *gorm.DB) *gorm.DB { return tx.Order("position asc, id asc") }).
		Preload("Fields.FileAssociations.TemplateFile").
		Where("id = ?", id).
		First(&f).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// AliasTaken reports whether alias is used by a form other than exceptID.
func AliasTaken(ctx context.Context, db *gorm.DB, alias, exceptID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Form{}).
		Where("alias = ? AND id <> ?", alias, exceptID).
		Count(&n).Error
	return n > 0, err
}

// UpdateForm applies column updates to the form with the given id and bumps
// updated_at. It returns ErrNotFound when no row matched.
func UpdateForm(ctx context.Context, db *gorm.DB, id string, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Form{}).
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

// BumpOrderVersion increments forms.order_version when it still equals
// expected. It returns ErrStaleVersion when another writer got there first.
func BumpOrderVersion(ctx context.Context, db *gorm.DB, formID string, expected int64) error {
	res := db.WithContext(ctx).
		Model(&domain.Form{}).
		Where("id = ? AND order_version = ?", formID, expected).
		Updates(map[string]any{
			"order_version": gorm.Expr("order_version + 1"),
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleVersion
	}
	return nil
}

// DeleteForm removes a form; fields, options, associations and responses
// follow through ON DELETE CASCADE.
func DeleteForm(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Form{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
