package domain

import "time"

// Idempotency represents a recorded response submission, keyed by
// (scope, form_id, key). Scope identifies the caller (user or client IP).
// It enables safe retries of submissions by returning the originally created
// response without storing a duplicate.
type Idempotency struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Scope      string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_scope_form_key,priority:1"`
	FormID     string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_scope_form_key,priority:2"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_scope_form_key,priority:3"`
	ResponseID string    `gorm:"type:TEXT NOT NULL"`
	Status     int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	ExpiresAt  time.Time `gorm:"index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
