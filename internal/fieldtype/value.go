package fieldtype

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-forms-backend/internal/domain"
)

// Separator joins the members of multi-valued answers (tags, multiple
// autocomplete) in their stored form.
const Separator = ";"

var (
	// ErrValueMismatch is returned when a Value does not belong to the kind.
	ErrValueMismatch = errors.New("value does not match field type")
	// ErrMalformed is returned when a stored string cannot be decoded.
	ErrMalformed = errors.New("malformed stored value")
)

// Value is an in-memory answer. A nil Value means "not answered".
type Value interface {
	isValue()
}

type (
	// TextValue answers text and textarea fields.
	TextValue string
	// NumberValue answers number fields.
	NumberValue float64
	// BoolValue answers checkbox fields.
	BoolValue bool
	// ChoiceValue is the selected option value of a radio or select field.
	ChoiceValue string
	// OptionValue is the resolved option of a single autocomplete answer.
	OptionValue domain.Option
	// OptionList holds the resolved options of a multiple autocomplete answer.
	OptionList []domain.Option
	// TagsValue answers tags fields.
	TagsValue []string
	// DateValue answers date fields. Only the calendar day is significant.
	DateValue time.Time
	// RatingValue answers rating fields, 0..MaxRating.
	RatingValue int
)

// FileValue is a stored upload: Path locates the content, Spec describes it.
type FileValue struct {
	Path string
	Spec *domain.FileSpec
}

func (TextValue) isValue()   {}
func (NumberValue) isValue() {}
func (BoolValue) isValue()   {}
func (ChoiceValue) isValue() {}
func (OptionValue) isValue() {}
func (OptionList) isValue()  {}
func (TagsValue) isValue()   {}
func (DateValue) isValue()   {}
func (RatingValue) isValue() {}
func (FileValue) isValue()   {}

// Serialize converts v into the canonical string stored in a response input.
// A nil v serializes to "".
func Serialize(k Kind, v Value) (string, error) {
	if v == nil {
		return "", nil
	}
	switch k {
	case Text, Textarea:
		if s, ok := v.(TextValue); ok {
			return string(s), nil
		}
	case Number:
		if n, ok := v.(NumberValue); ok {
			f := float64(n)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return "", fmt.Errorf("%w: number must be finite", ErrValueMismatch)
			}
			return strconv.FormatFloat(f, 'f', -1, 64), nil
		}
	case Checkbox:
		if b, ok := v.(BoolValue); ok {
			return strconv.FormatBool(bool(b)), nil
		}
	case Radio, Select:
		if c, ok := v.(ChoiceValue); ok {
			return string(c), nil
		}
	case Date:
		if d, ok := v.(DateValue); ok {
			return time.Time(d).Format(time.RFC3339), nil
		}
	case Autocomplete:
		switch o := v.(type) {
		case OptionValue:
			return o.OptionValue, nil
		case OptionList:
			vals := make([]string, 0, len(o))
			for _, opt := range o {
				vals = append(vals, opt.OptionValue)
			}
			return JoinMulti(vals), nil
		}
	case Tags:
		if t, ok := v.(TagsValue); ok {
			return JoinMulti(t), nil
		}
	case File:
		if f, ok := v.(FileValue); ok {
			return f.Path, nil
		}
	case Rating:
		if r, ok := v.(RatingValue); ok {
			if r < 0 || r > MaxRating {
				return "", fmt.Errorf("%w: rating out of range", ErrValueMismatch)
			}
			return strconv.Itoa(int(r)), nil
		}
	}
	return "", fmt.Errorf("%w: %T for %s", ErrValueMismatch, v, k)
}

// Deserialize decodes a stored string back into a Value. options are the
// field's options and are used to resolve autocomplete answers; multiple
// autocomplete fields always decode to an OptionList. An empty stored
// string decodes to nil.
func Deserialize(k Kind, stored string, options []domain.Option, multiple bool) (Value, error) {
	if stored == "" {
		return nil, nil
	}
	switch k {
	case Number:
		f, err := strconv.ParseFloat(strings.TrimSpace(stored), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrMalformed, stored)
		}
		return NumberValue(f), nil
	case Checkbox:
		switch stored {
		case "true":
			return BoolValue(true), nil
		case "false":
			return BoolValue(false), nil
		}
		return nil, fmt.Errorf("%w: %q is not a boolean", ErrMalformed, stored)
	case Radio, Select:
		return ChoiceValue(stored), nil
	case Date:
		t, ok := ParseDate(stored)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a date", ErrMalformed, stored)
		}
		return DateValue(t), nil
	case Autocomplete:
		members := SplitMulti(stored)
		resolved := make(OptionList, 0, len(members))
		for _, m := range members {
			resolved = append(resolved, resolveOption(m, options))
		}
		if !multiple && len(resolved) == 1 {
			return OptionValue(resolved[0]), nil
		}
		return resolved, nil
	case Tags:
		return TagsValue(SplitMulti(stored)), nil
	case File:
		return FileValue{Path: stored}, nil
	case Rating:
		n, err := strconv.Atoi(strings.TrimSpace(stored))
		if err != nil || n < 0 || n > MaxRating {
			return nil, fmt.Errorf("%w: %q is not a rating", ErrMalformed, stored)
		}
		return RatingValue(n), nil
	}
	return TextValue(stored), nil
}

// SplitMulti splits a stored multi-valued answer, trimming members and
// dropping empty ones.
func SplitMulti(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	parts := strings.Split(s, Separator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinMulti is the inverse of SplitMulti.
func JoinMulti(members []string) string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return strings.Join(out, Separator)
}

// ParseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD days.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func resolveOption(value string, options []domain.Option) domain.Option {
	for _, o := range options {
		if o.OptionValue == value {
			return o
		}
	}
	return domain.Option{OptionName: value, OptionValue: value}
}
