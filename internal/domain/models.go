// Package domain defines the persistence models for forms, their fields and
// options, end-user responses, and the template files responses are mapped
// onto. These types are mapped with GORM and form the core data layer of the
// forms backend.
package domain

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// FormStatus is the publication state of a Form.
type FormStatus string

const (
	FormStatusDraft     FormStatus = "draft"
	FormStatusPublished FormStatus = "published"
)

// Form is a questionnaire built by an admin and filled by end users.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Alias: optional human-friendly identifier, unique when set.
//   - Status: draft until published; published forms refuse structural edits.
//   - NotificationEmails: JSON array of addresses notified on new responses.
//   - OrderVersion: bumped by every field-order mutation (optimistic lock).
type Form struct {
	ID                 string         `json:"id"                  gorm:"type:char(36);primaryKey"`
	Name               string         `json:"name"                gorm:"type:varchar(255);not null"`
	Description        string         `json:"description"         gorm:"type:text"`
	Alias              *string        `json:"alias,omitempty"     gorm:"type:varchar(128);uniqueIndex:ux_forms_alias"`
	Status             FormStatus     `json:"status"              gorm:"type:varchar(16);not null;default:'draft';check:status IN ('draft','published')"`
	IsNotifying        bool           `json:"is_notifying"        gorm:"not null;default:false"`
	NotificationEmails datatypes.JSON `json:"notification_emails" swaggertype:"array,string"`
	OrderVersion       int64          `json:"order_version"       gorm:"not null;default:0"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`

	Fields    []Field    `json:"fields,omitempty" gorm:"foreignKey:FormID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Responses []Response `json:"-"                gorm:"foreignKey:FormID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Form.
func (Form) TableName() string { return "forms" }

// IsPublished reports whether the form accepts public responses.
func (f *Form) IsPublished() bool { return f.Status == FormStatusPublished }

// Emails decodes NotificationEmails. Malformed JSON yields nil.
func (f *Form) Emails() []string {
	if len(f.NotificationEmails) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(f.NotificationEmails, &out); err != nil {
		return nil
	}
	return out
}

// SetEmails encodes addrs into NotificationEmails.
func (f *Form) SetEmails(addrs []string) {
	if addrs == nil {
		addrs = []string{}
	}
	b, _ := json.Marshal(addrs)
	f.NotificationEmails = datatypes.JSON(b)
}

// Field is one question of a Form. Order is 1-based and dense within a form.
// A conditional field carries both ConditionalInputID and ConditionalValue;
// the inverse relation ("fields conditioned on me") is derived on read.
type Field struct {
	ID                 string    `json:"id"                             gorm:"type:char(36);primaryKey"`
	FormID             string    `json:"form_id"                        gorm:"type:char(36);not null;index:idx_form_fields,priority:1"`
	Name               string    `json:"name"                           gorm:"type:varchar(255);not null"`
	Label              string    `json:"label"                          gorm:"type:varchar(255)"`
	Placeholder        string    `json:"placeholder"                    gorm:"type:varchar(255)"`
	Type               string    `json:"type"                           gorm:"type:varchar(32);not null;default:'text'"`
	Order              int       `json:"order"                          gorm:"column:position;not null;index:idx_form_fields,priority:2"`
	IsRequired         bool      `json:"is_required"                    gorm:"not null;default:false"`
	IsMultiple         bool      `json:"is_multiple"                    gorm:"not null;default:false"`
	IsHidden           bool      `json:"is_hidden"                      gorm:"not null;default:false"`
	IsConditional      bool      `json:"is_conditional"                 gorm:"not null;default:false"`
	DefaultValue       *string   `json:"default_value,omitempty"        gorm:"type:text"`
	ConditionalInputID *string   `json:"conditional_input_id,omitempty" gorm:"type:char(36);index"`
	ConditionalValue   *string   `json:"conditional_value,omitempty"    gorm:"type:text"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`

	Options          []Option          `json:"options,omitempty"           gorm:"foreignKey:FieldID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	FileAssociations []FileAssociation `json:"file_associations,omitempty" gorm:"foreignKey:FieldID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Answers          []ResponseInput   `json:"-"                           gorm:"foreignKey:FieldID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Field.
func (Field) TableName() string { return "fields" }

// Option is one selectable value of a choice field. OptionValue is unique
// per field.
type Option struct {
	ID          string `json:"id"           gorm:"type:char(36);primaryKey"`
	FieldID     string `json:"field_id"     gorm:"type:char(36);not null;index;uniqueIndex:ux_option_field_value,priority:1"`
	OptionName  string `json:"option_name"  gorm:"type:varchar(255);not null"`
	OptionValue string `json:"option_value" gorm:"type:varchar(255);not null;uniqueIndex:ux_option_field_value,priority:2"`
	Order       int    `json:"order"        gorm:"column:position;not null;default:0"`
}

// TableName returns the database table name for Option.
func (Option) TableName() string { return "options" }

// FileAssociation binds a field to a placeholder key of a template file.
type FileAssociation struct {
	ID             string `json:"id"               gorm:"type:char(36);primaryKey"`
	FieldID        string `json:"field_id"         gorm:"type:char(36);not null;index"`
	TemplateFileID string `json:"template_file_id" gorm:"type:char(36);not null;index"`
	Value          string `json:"value"            gorm:"type:varchar(255)"`

	TemplateFile *TemplateFile `json:"template_file,omitempty" gorm:"foreignKey:TemplateFileID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for FileAssociation.
func (FileAssociation) TableName() string { return "file_associations" }

// Response is one end-user submission of a Form.
type Response struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	FormID    string    `json:"form_id"    gorm:"type:char(36);not null;index:idx_form_responses,priority:1"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_form_responses,priority:2"`
	UpdatedAt time.Time `json:"updated_at"`

	Inputs []ResponseInput `json:"inputs,omitempty" gorm:"foreignKey:ResponseID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Response.
func (Response) TableName() string { return "responses" }

// ResponseInput is one field's answer within a Response, stored in the
// canonical string encoding of the field's type.
type ResponseInput struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	ResponseID string    `json:"response_id" gorm:"type:char(36);not null;uniqueIndex:ux_response_field,priority:1"`
	FieldID    string    `json:"field_id"    gorm:"type:char(36);not null;index;uniqueIndex:ux_response_field,priority:2"`
	Value      string    `json:"value"       gorm:"type:text;not null;default:''"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	FileSpec *FileSpec `json:"file_spec,omitempty" gorm:"foreignKey:ResponseInputID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ResponseInput.
func (ResponseInput) TableName() string { return "response_inputs" }

// FileSpec describes an uploaded file answering a file field.
type FileSpec struct {
	ID              string `json:"id"                gorm:"type:char(36);primaryKey"`
	ResponseInputID string `json:"response_input_id" gorm:"type:char(36);not null;uniqueIndex"`
	Name            string `json:"name"              gorm:"type:varchar(255);not null"`
	Size            int64  `json:"size"              gorm:"not null"`
	MimeType        string `json:"mime_type"         gorm:"type:varchar(255);not null"`
}

// TableName returns the database table name for FileSpec.
func (FileSpec) TableName() string { return "file_specs" }

// TemplateFile is an uploaded document whose placeholders are substituted
// with response data by an external generator.
type TemplateFile struct {
	ID          string    `json:"id"          gorm:"type:char(36);primaryKey"`
	Name        string    `json:"name"        gorm:"type:varchar(255);not null"`
	Description string    `json:"description" gorm:"type:text"`
	Size        int64     `json:"size"        gorm:"not null;default:0"`
	MimeType    string    `json:"mime_type"   gorm:"type:varchar(255);not null"`
	Path        string    `json:"path"        gorm:"type:varchar(512);not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for TemplateFile.
func (TemplateFile) TableName() string { return "template_files" }

// User roles.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
)

// User is a back-office account allowed to build forms.
type User struct {
	ID           string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Username     string    `json:"username"   gorm:"type:varchar(64);not null;uniqueIndex"`
	Email        string    `json:"email"      gorm:"type:varchar(255);not null;uniqueIndex"`
	FirstName    string    `json:"first_name" gorm:"type:varchar(255)"`
	LastName     string    `json:"last_name"  gorm:"type:varchar(255)"`
	Role         string    `json:"role"       gorm:"type:varchar(16);not null;default:'editor';check:role IN ('admin','editor')"`
	PasswordHash string    `json:"-"          gorm:"type:varchar(255);not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }
