// Package fieldtype is the registry of field types a form can contain.
//
// The set of types is closed: Kind enumerates them and every behavior
// (serialization, validation, conditional comparison, tabular projection,
// editor capabilities) is a switch over Kind. Stored tags that do not name a
// known Kind are resolved to Text with a warning; creating or updating a
// field with such a tag is rejected by Parse.
package fieldtype

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Kind is a field type tag as stored in fields.type.
type Kind string

const (
	Text         Kind = "text"
	Number       Kind = "number"
	Checkbox     Kind = "checkbox"
	Radio        Kind = "radio"
	Select       Kind = "select"
	Date         Kind = "date"
	Autocomplete Kind = "autocomplete"
	Tags         Kind = "tags"
	File         Kind = "file"
	Textarea     Kind = "textarea"
	Rating       Kind = "rating"
)

// MaxRating is the highest accepted rating value.
const MaxRating = 5

// ErrUnknownKind is returned by Parse for tags outside the registry.
var ErrUnknownKind = errors.New("unknown field type")

var all = []Kind{Text, Number, Checkbox, Radio, Select, Date, Autocomplete, Tags, File, Textarea, Rating}

var unknownKinds = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "forms_unknown_field_type_total",
	Help: "Stored field type tags that were not recognised and fell back to text.",
})

// warnedKinds holds the unknown tags already logged by Resolve.
var warnedKinds sync.Map

func init() {
	prometheus.MustRegister(unknownKinds)
}

// All returns every registered kind in display order.
func All() []Kind {
	out := make([]Kind, len(all))
	copy(out, all)
	return out
}

// Valid reports whether k is a registered kind.
func (k Kind) Valid() bool {
	switch k {
	case Text, Number, Checkbox, Radio, Select, Date, Autocomplete, Tags, File, Textarea, Rating:
		return true
	}
	return false
}

// Parse maps a tag to its Kind. Matching ignores case and surrounding space.
func Parse(tag string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(tag)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, tag)
	}
	return k, nil
}

// Resolve maps a stored tag to its Kind, falling back to Text for unknown
// tags. Every fallback is counted; each distinct tag is logged once.
func Resolve(tag string) Kind {
	k, err := Parse(tag)
	if err != nil {
		unknownKinds.Inc()
		if _, seen := warnedKinds.LoadOrStore(tag, struct{}{}); !seen {
			log.Warn().Str("type", tag).Msg("unknown field type, using text behavior")
		}
		return Text
	}
	return k
}

// Label is the French display name shown in the form editor.
func (k Kind) Label() string {
	switch k {
	case Text:
		return "Texte"
	case Number:
		return "Nombre"
	case Checkbox:
		return "Case à cocher"
	case Radio:
		return "Bouton radio"
	case Select:
		return "Liste déroulante"
	case Date:
		return "Date"
	case Autocomplete:
		return "Auto-complétion"
	case Tags:
		return "Tags"
	case File:
		return "Fichier"
	case Textarea:
		return "Zone de texte"
	case Rating:
		return "Note"
	}
	return string(k)
}

// Props describes which editor settings apply to a kind.
type Props struct {
	CanHaveDefault     bool `json:"can_have_default"`
	CanHaveOptions     bool `json:"can_have_options"`
	CanHavePlaceholder bool `json:"can_have_placeholder"`
	CanHaveLabel       bool `json:"can_have_label"`
}

// Props returns the editor capabilities of k.
func (k Kind) Props() Props {
	p := Props{CanHaveDefault: true, CanHavePlaceholder: true, CanHaveLabel: true}
	switch k {
	case Radio:
		p.CanHaveOptions = true
		p.CanHavePlaceholder = false
	case Select, Autocomplete, Tags:
		p.CanHaveOptions = true
	case File:
		p.CanHaveDefault = false
	case Rating:
		p.CanHavePlaceholder = false
		p.CanHaveLabel = false
	}
	return p
}

// IsChoice reports whether answers must come from the field's options.
func (k Kind) IsChoice() bool {
	switch k {
	case Radio, Select, Autocomplete:
		return true
	}
	return false
}

// Descriptor is the public view of a kind served to form editors.
type Descriptor struct {
	Type  Kind   `json:"type"`
	Label string `json:"label"`
	Props Props  `json:"props"`
}

// Describe returns the descriptors of every kind.
func Describe() []Descriptor {
	out := make([]Descriptor, 0, len(all))
	for _, k := range all {
		out = append(out, Descriptor{Type: k, Label: k.Label(), Props: k.Props()})
	}
	return out
}
