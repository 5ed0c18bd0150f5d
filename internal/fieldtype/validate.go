package fieldtype

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tbourn/go-forms-backend/internal/domain"
)

// Answer is one submitted answer. File answers carry the upload as a base64
// data URL in Value plus its metadata.
type Answer struct {
	FieldID  string `json:"field_id"            binding:"required"`
	Value    string `json:"value"`
	FileName string `json:"file_name,omitempty"`
	Size     int64  `json:"size,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// IsBlank reports whether the answer carries nothing: no value and no file
// metadata. Blank answers are treated as absent.
func (a Answer) IsBlank() bool {
	return strings.TrimSpace(a.Value) == "" && a.FileName == "" && a.MimeType == "" && a.Size == 0
}

// IsFile reports whether the answer carries upload metadata.
func (a Answer) IsFile() bool {
	return a.FileName != "" && a.MimeType != "" && a.Size > 0
}

// Validate checks a non-blank answer against the rules of the field's type
// and returns user-facing messages. An empty result means the answer is valid.
func Validate(f *domain.Field, a Answer) []string {
	if a.IsBlank() {
		return nil
	}
	k := Resolve(f.Type)
	switch k {
	case File:
		if !a.IsFile() {
			return []string{fmt.Sprintf("Le fichier %s est requis", f.Name)}
		}
	case Checkbox:
		if a.Value != "true" && a.Value != "false" {
			return []string{fmt.Sprintf("La réponse au champ \"%s\" n'est pas un booléen", f.Name)}
		}
	case Radio, Select:
		if !hasOption(f.Options, a.Value) {
			return []string{notAnOption(f)}
		}
	case Autocomplete:
		if f.IsMultiple {
			for _, m := range SplitMulti(a.Value) {
				if !hasOption(f.Options, m) {
					return []string{notAnOption(f)}
				}
			}
			return nil
		}
		if !hasOption(f.Options, a.Value) {
			return []string{notAnOption(f)}
		}
	case Tags:
		if len(f.Options) == 0 {
			return nil
		}
		for _, m := range SplitMulti(a.Value) {
			if !hasOption(f.Options, m) {
				return []string{notAnOption(f)}
			}
		}
	case Number:
		if _, err := strconv.ParseFloat(strings.TrimSpace(a.Value), 64); err != nil {
			return []string{fmt.Sprintf("Le champ \"%s\" doit être un nombre", f.Name)}
		}
	case Date:
		if _, ok := ParseDate(a.Value); !ok {
			return []string{fmt.Sprintf("Le champ \"%s\" doit être une date valide", f.Name)}
		}
	case Rating:
		n, err := strconv.Atoi(strings.TrimSpace(a.Value))
		if err != nil || n < 0 || n > MaxRating {
			return []string{fmt.Sprintf("La note du champ \"%s\" doit être un entier entre 0 et %d", f.Name, MaxRating)}
		}
	}
	return nil
}

// ValidateDefault checks a field's default value. Kinds that cannot carry a
// default reject any non-empty value.
func ValidateDefault(f *domain.Field) []string {
	if f.DefaultValue == nil || *f.DefaultValue == "" {
		return nil
	}
	k := Resolve(f.Type)
	if !k.Props().CanHaveDefault {
		return []string{fmt.Sprintf("Le champ \"%s\" ne peut pas avoir de valeur par défaut", f.Name)}
	}
	return Validate(f, Answer{FieldID: f.ID, Value: *f.DefaultValue})
}

func hasOption(opts []domain.Option, v string) bool {
	for _, o := range opts {
		if o.OptionValue == v {
			return true
		}
	}
	return false
}

func notAnOption(f *domain.Field) string {
	return fmt.Sprintf("La réponse au champ \"%s\" ne correspond pas aux options du formulaire", f.Name)
}
