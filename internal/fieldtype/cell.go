package fieldtype

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tbourn/go-forms-backend/internal/domain"
)

// CellKind tells a table renderer how to present a cell.
type CellKind string

const (
	CellText     CellKind = "text"
	CellNumber   CellKind = "number"
	CellBoolean  CellKind = "boolean"
	CellDropdown CellKind = "dropdown"
	CellTags     CellKind = "tags"
	CellDate     CellKind = "date"
	CellRating   CellKind = "rating"
	CellButton   CellKind = "button"
)

const (
	// TextPreviewRunes caps text shown in a cell before truncation.
	TextPreviewRunes = 30
	// TagColor is the background of tag chips.
	TagColor = "#e7e7e7"
	// EmptyDate is shown for unanswered or unreadable dates.
	EmptyDate = "Non renseigné"
	// FileButtonTitle labels the button opening a file answer.
	FileButtonTitle = "Détails"
)

// Column describes one field as a table column.
type Column struct {
	FieldID  string   `json:"field_id"`
	Title    string   `json:"title"`
	Type     Kind     `json:"type"`
	CellKind CellKind `json:"cell_kind"`
	Order    int      `json:"order"`
}

// Cell is the tabular projection of one response input.
type Cell struct {
	Kind          CellKind `json:"kind"`
	Value         any      `json:"value"`
	Display       string   `json:"display"`
	AllowedValues []string `json:"allowed_values,omitempty"`
	Color         string   `json:"color,omitempty"`
	Title         string   `json:"title,omitempty"`
	Link          string   `json:"link,omitempty"`
}

// CellKindOf returns the cell presentation used for kind k.
func CellKindOf(k Kind) CellKind {
	switch k {
	case Number:
		return CellNumber
	case Checkbox:
		return CellBoolean
	case Radio, Select, Autocomplete:
		return CellDropdown
	case Tags:
		return CellTags
	case Date:
		return CellDate
	case Rating:
		return CellRating
	case File:
		return CellButton
	}
	return CellText
}

// BuildColumn projects a field into a column header.
func BuildColumn(f *domain.Field) Column {
	k := Resolve(f.Type)
	title := f.Label
	if title == "" {
		title = f.Name
	}
	return Column{FieldID: f.ID, Title: title, Type: k, CellKind: CellKindOf(k), Order: f.Order}
}

// BuildCell projects one stored answer of field f into a table cell. A nil
// input renders as an empty cell of the right kind.
func BuildCell(f *domain.Field, in *domain.ResponseInput) Cell {
	k := Resolve(f.Type)
	stored := ""
	if in != nil {
		stored = in.Value
	}
	c := Cell{Kind: CellKindOf(k)}

	switch k {
	case Number:
		if n, err := strconv.ParseFloat(strings.TrimSpace(stored), 64); err == nil {
			c.Value = n
		}
		c.Display = stored
	case Checkbox:
		checked := stored == "true"
		c.Value = checked
		c.Display = "Non"
		if checked {
			c.Display = "Oui"
		}
	case Radio, Select, Autocomplete:
		c.AllowedValues = optionValues(f.Options)
		c.Value = stored
		c.Display = optionNames(stored, f.Options)
	case Tags:
		members := SplitMulti(stored)
		c.Value = members
		c.Display = strings.Join(members, ", ")
		c.Color = TagColor
	case Date:
		if t, ok := ParseDate(stored); ok {
			c.Value = t.Format("2006-01-02")
			c.Display = t.Format("02/01/2006")
		} else {
			c.Display = EmptyDate
		}
	case Rating:
		n, err := strconv.Atoi(strings.TrimSpace(stored))
		if err != nil {
			n = 0
		}
		n = clamp(n, 0, MaxRating)
		c.Value = n
		c.Display = strings.Repeat("★", n) + strings.Repeat("☆", MaxRating-n)
	case File:
		c.Title = FileButtonTitle
		c.Link = stored
		if in != nil && in.FileSpec != nil {
			c.Value = in.FileSpec.Name
			c.Display = in.FileSpec.Name
		}
	default:
		c.Value = stored
		c.Display = truncate(stored, TextPreviewRunes)
	}
	return c
}

func optionValues(opts []domain.Option) []string {
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		out = append(out, o.OptionValue)
	}
	return out
}

// optionNames renders the option names of every member of stored.
func optionNames(stored string, opts []domain.Option) string {
	members := SplitMulti(stored)
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, resolveOption(m, opts).OptionName)
	}
	return strings.Join(names, ", ")
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
