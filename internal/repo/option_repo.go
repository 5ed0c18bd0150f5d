package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-forms-backend/internal/domain"
)

// ListOptions returns the options of a field ordered by position.
func ListOptions(ctx context.Context, db *gorm.DB, fieldID string) ([]domain.Option, error) {
	var out []domain.Option
	err := db.WithContext(ctx).
		Where("field_id = ?", fieldID).
		Order("position asc, id asc").
		Find(&out).Error
	return out, err
}

// GetOption fetches an option by ID.
func GetOption(ctx context.Context, db *gorm.DB, id string) (*domain.Option, error) {
	var o domain.Option
	if err := db.WithContext(ctx).Where("id = ?", id).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateOption inserts o. A value already used by the same field yields
// ErrDuplicate.
func CreateOption(ctx context.Context, db *gorm.DB, o *domain.Option) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return translate(db.WithContext(ctx).Create(o).Error)
}

// DeleteOption removes one option.
func DeleteOption(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Option{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteOptionsForField removes every option of a field.
func DeleteOptionsForField(ctx context.Context, db *gorm.DB, fieldID string) error {
	return db.WithContext(ctx).Where("field_id = ?", fieldID).Delete(&domain.Option{}).Error
}

// CreateAssociation inserts a file association.
func CreateAssociation(ctx context.Context, db *gorm.DB, a *domain.FileAssociation) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.TemplateFile = nil
	return db.WithContext(ctx).Create(a).Error
}

// GetAssociation fetches a file association by ID.
func GetAssociation(ctx context.Context, db *gorm.DB, id string) (*domain.FileAssociation, error) {
	var a domain.FileAssociation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteAssociation removes one file association.
func DeleteAssociation(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.FileAssociation{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteAssociationsForField removes every file association of a field.
func DeleteAssociationsForField(ctx context.Context, db *gorm.DB, fieldID string) error {
	return db.WithContext(ctx).Where("field_id = ?", fieldID).Delete(&domain.FileAssociation{}).Error
}
