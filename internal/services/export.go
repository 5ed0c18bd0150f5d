package services

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/tbourn/go-forms-backend/internal/conditional"
	"github.com/tbourn/go-forms-backend/internal/domain"
	"github.com/tbourn/go-forms-backend/internal/fieldtype"
)

// FormDocument is the portable definition of a form, without responses and
// template associations. Fields reference each other by Key.
type FormDocument struct {
	Name               string          `yaml:"name"                          json:"name"`
	Description        string          `yaml:"description,omitempty"         json:"description,omitempty"`
	Alias              string          `yaml:"alias,omitempty"               json:"alias,omitempty"`
	IsNotifying        bool            `yaml:"is_notifying,omitempty"        json:"is_notifying,omitempty"`
	NotificationEmails []string        `yaml:"notification_emails,omitempty" json:"notification_emails,omitempty"`
	Fields             []FieldDocument `yaml:"fields"                        json:"fields"`
}

// FieldDocument is one field of a FormDocument.
type FieldDocument struct {
	Key              string           `yaml:"key"                         json:"key"`
	Name             string           `yaml:"name"                        json:"name"`
	Label            string           `yaml:"label,omitempty"             json:"label,omitempty"`
	Placeholder      string           `yaml:"placeholder,omitempty"       json:"placeholder,omitempty"`
	Type             string           `yaml:"type"                        json:"type"`
	IsRequired       bool             `yaml:"required,omitempty"          json:"required,omitempty"`
	IsMultiple       bool             `yaml:"multiple,omitempty"          json:"multiple,omitempty"`
	IsHidden         bool             `yaml:"hidden,omitempty"            json:"hidden,omitempty"`
	DefaultValue     *string          `yaml:"default,omitempty"           json:"default,omitempty"`
	ConditionalOn    string           `yaml:"conditional_on,omitempty"    json:"conditional_on,omitempty"`
	ConditionalValue string           `yaml:"conditional_value,omitempty" json:"conditional_value,omitempty"`
	Options          []OptionDocument `yaml:"options,omitempty"           json:"options,omitempty"`
}

// OptionDocument is one option of a FieldDocument.
type OptionDocument struct {
	Name  string `yaml:"name"  json:"name"`
	Value string `yaml:"value" json:"value"`
}

// Export returns the portable definition of a form.
func (s *FormService) Export(ctx context.Context, id string) (*FormDocument, error) {
	f, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	doc := &FormDocument{
		Name:               f.Name,
		Description:        f.Description,
		IsNotifying:        f.IsNotifying,
		NotificationEmails: f.Emails(),
		Fields:             make([]FieldDocument, 0, len(f.Fields)),
	}
	if f.Alias != nil {
		doc.Alias = *f.Alias
	}
	for _, fl := range f.Fields {
		fd := FieldDocument{
			Key:          fl.ID,
			Name:         fl.Name,
			Label:        fl.Label,
			Placeholder:  fl.Placeholder,
			Type:         fl.Type,
			IsRequired:   fl.IsRequired,
			IsMultiple:   fl.IsMultiple,
			IsHidden:     fl.IsHidden,
			DefaultValue: fl.DefaultValue,
		}
		if fl.IsConditional && fl.ConditionalInputID != nil && fl.ConditionalValue != nil {
			fd.ConditionalOn = *fl.ConditionalInputID
			fd.ConditionalValue = *fl.ConditionalValue
		}
		for _, o := range fl.Options {
			fd.Options = append(fd.Options, OptionDocument{Name: o.OptionName, Value: o.OptionValue})
		}
		doc.Fields = append(doc.Fields, fd)
	}
	return doc, nil
}

// Import creates a new draft form from a portable definition. Field keys
// only need to be unique within the document.
func (s *FormService) Import(ctx context.Context, doc *FormDocument) (*domain.Form, error) {
	name, desc, notify := doc.Name, doc.Description, doc.IsNotifying
	in := FormInput{Name: &name, Description: &desc, IsNotifying: &notify, NotificationEmails: doc.NotificationEmails}
	if doc.Alias != "" {
		alias := doc.Alias
		in.Alias = &alias
	}

	fields, err := documentFields(doc.Fields)
	if err != nil {
		return nil, err
	}

	form, err := s.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range fields {
			fields[i].FormID = form.ID
			if err := s.Repo.CreateField(ctx, tx, &fields[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if derr := s.Repo.DeleteForm(ctx, s.DB, form.ID); derr != nil {
			return nil, fmt.Errorf("%w (cleanup: %v)", err, derr)
		}
		return nil, err
	}
	return s.Get(ctx, form.ID)
}

// documentFields converts document fields into domain fields with fresh IDs
// and validates types, keys and conditional references.
func documentFields(docs []FieldDocument) ([]domain.Field, error) {
	ids := make(map[string]string, len(docs))
	var msgs []string
	for i, d := range docs {
		key := d.Key
		if key == "" {
			key = fmt.Sprintf("#%d", i+1)
		}
		if _, dup := ids[key]; dup {
			msgs = append(msgs, fmt.Sprintf("Clé de champ dupliquée : %s", key))
			continue
		}
		ids[key] = uuid.NewString()
	}

	out := make([]domain.Field, 0, len(docs))
	for i, d := range docs {
		key := d.Key
		if key == "" {
			key = fmt.Sprintf("#%d", i+1)
		}
		f := domain.Field{
			ID:           ids[key],
			Name:         normalizeTitle(d.Name),
			Label:        d.Label,
			Placeholder:  d.Placeholder,
			Type:         d.Type,
			Order:        i + 1,
			IsRequired:   d.IsRequired,
			IsMultiple:   d.IsMultiple,
			IsHidden:     d.IsHidden,
			DefaultValue: d.DefaultValue,
		}
		if f.Type == "" {
			f.Type = string(fieldtype.Text)
		}
		if _, err := fieldtype.Parse(f.Type); err != nil {
			msgs = append(msgs, fmt.Sprintf("Le type de champ \"%s\" n'existe pas", f.Type))
		}
		if f.Name == "" {
			msgs = append(msgs, "Le nom du champ est requis")
		}
		if d.ConditionalOn != "" {
			ref, ok := ids[d.ConditionalOn]
			if !ok {
				msgs = append(msgs, fmt.Sprintf("Le champ de référence %s n'existe pas dans ce formulaire", d.ConditionalOn))
			}
			val := d.ConditionalValue
			f.IsConditional, f.ConditionalInputID, f.ConditionalValue = true, &ref, &val
		}
		opts := make([]OptionInput, len(d.Options))
		for j, o := range d.Options {
			opts[j] = OptionInput{OptionName: o.Name, OptionValue: o.Value}
		}
		msgs = append(msgs, checkOptionInputs(opts)...)
		f.Options = buildOptions(nil, opts)
		out = append(out, f)
	}

	byID := conditional.Index(out)
	for i := range out {
		if err := conditional.CheckReference(&out[i], byID); err != nil {
			msgs = append(msgs, fmt.Sprintf("Le champ \"%s\" a une condition invalide", out[i].Name))
		}
	}
	if err := invalid(msgs...); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeFormDocument reads a FormDocument in YAML or JSON.
func DecodeFormDocument(r io.Reader) (*FormDocument, error) {
	var doc FormDocument
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode form document: %w", err)
	}
	return &doc, nil
}

// EncodeFormDocument writes doc as YAML.
func EncodeFormDocument(w io.Writer, doc *FormDocument) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
