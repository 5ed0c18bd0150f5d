package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-forms-backend/internal/domain"
)

// CreateTemplate inserts a template file row.
func CreateTemplate(ctx context.Context, db *gorm.DB, t *domain.TemplateFile) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	return db.WithContext(ctx).Create(t).Error
}

// ListTemplates returns every template file ordered by name.
func ListTemplates(ctx context.Context, db *gorm.DB) ([]domain.TemplateFile, error) {
	var out []domain.TemplateFile
	err := db.WithContext(ctx).Order("name asc, id asc").Find(&out).Error
	return out, err
}

// GetTemplate fetches a template file by ID.
func GetTemplate(ctx context.Context, db *gorm.DB, id string) (*domain.TemplateFile, error) {
	var t domain.TemplateFile
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTemplate applies column updates to a template file.
func UpdateTemplate(ctx context.Context, db *gorm.DB, id string, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.TemplateFile{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteTemplate removes a template file row; its associations cascade.
func DeleteTemplate(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.TemplateFile{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
