package fieldtype

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tbourn/go-forms-backend/internal/domain"
)

var colourOptions = []domain.Option{
	{ID: "o1", OptionName: "Rouge", OptionValue: "red"},
	{ID: "o2", OptionName: "Bleu", OptionValue: "blue"},
}

func TestSerializeDeserialize_RoundTrip(t *testing.T) {
	cases := []struct {
		name     string
		kind     Kind
		value    Value
		stored   string
		multiple bool
	}{
		{"text", Text, TextValue("hello"), "hello", false},
		{"textarea", Textarea, TextValue("line1\nline2"), "line1\nline2", false},
		{"number int", Number, NumberValue(18), "18", false},
		{"number float", Number, NumberValue(2.5), "2.5", false},
		{"checkbox true", Checkbox, BoolValue(true), "true", false},
		{"checkbox false", Checkbox, BoolValue(false), "false", false},
		{"radio", Radio, ChoiceValue("red"), "red", false},
		{"select", Select, ChoiceValue("blue"), "blue", false},
		{"autocomplete single", Autocomplete, OptionValue(colourOptions[0]), "red", false},
		{"autocomplete multiple", Autocomplete, OptionList(colourOptions), "red;blue", true},
		{"autocomplete multiple with one option", Autocomplete, OptionList{colourOptions[0]}, "red", true},
		{"tags", Tags, TagsValue{"a", "b"}, "a;b", false},
		{"file", File, FileValue{Path: "photo/cat-1.png"}, "photo/cat-1.png", false},
		{"rating", Rating, RatingValue(4), "4", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Serialize(tc.kind, tc.value)
			if err != nil {
				t.Fatalf("Serialize: %v", err)
			}
			if s != tc.stored {
				t.Fatalf("Serialize = %q, want %q", s, tc.stored)
			}
			back, err := Deserialize(tc.kind, s, colourOptions, tc.multiple)
			if err != nil {
				t.Fatalf("Deserialize: %v", err)
			}
			if diff := cmp.Diff(tc.value, back); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDate_RoundTripKeepsCalendarDay(t *testing.T) {
	loc := time.FixedZone("CEST", 2*3600)
	in := time.Date(2024, 3, 5, 0, 30, 0, 0, loc) // 2024-03-04 in UTC

	s, err := Serialize(Date, DateValue(in))
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	v, err := Deserialize(Date, s, nil, false)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	got := time.Time(v.(DateValue))
	if got.Year() != 2024 || got.Month() != time.March || got.Day() != 5 {
		t.Fatalf("calendar day lost: %s -> %s", s, got)
	}

	// Plain days are accepted too.
	v, err = Deserialize(Date, "2023-12-31", nil, false)
	if err != nil || time.Time(v.(DateValue)).Day() != 31 {
		t.Fatalf("plain day not decoded: %v %v", v, err)
	}
}

func TestSerialize_NilIsEmpty(t *testing.T) {
	for _, k := range All() {
		s, err := Serialize(k, nil)
		if err != nil || s != "" {
			t.Fatalf("%s: Serialize(nil) = %q, %v", k, s, err)
		}
		v, err := Deserialize(k, "", nil, false)
		if err != nil || v != nil {
			t.Fatalf("%s: Deserialize(\"\") = %v, %v", k, v, err)
		}
	}
}

func TestSerialize_RejectsMismatchedValues(t *testing.T) {
	cases := []struct {
		kind  Kind
		value Value
	}{
		{Number, TextValue("12")},
		{Checkbox, TextValue("true")},
		{Tags, TextValue("a;b")},
		{Rating, RatingValue(6)},
		{Rating, RatingValue(-1)},
		{Number, NumberValue(math.Inf(1))},
		{Autocomplete, ChoiceValue("red")},
	}
	for _, tc := range cases {
		if _, err := Serialize(tc.kind, tc.value); !errors.Is(err, ErrValueMismatch) {
			t.Fatalf("Serialize(%s, %#v) err = %v, want ErrValueMismatch", tc.kind, tc.value, err)
		}
	}
}

func TestDeserialize_Malformed(t *testing.T) {
	cases := []struct {
		kind   Kind
		stored string
	}{
		{Number, "abc"},
		{Checkbox, "yes"},
		{Date, "31/12/2023"},
		{Rating, "9"},
		{Rating, "x"},
	}
	for _, tc := range cases {
		if _, err := Deserialize(tc.kind, tc.stored, nil, false); !errors.Is(err, ErrMalformed) {
			t.Fatalf("Deserialize(%s, %q) err = %v, want ErrMalformed", tc.kind, tc.stored, err)
		}
	}
}

func TestDeserialize_AutocompleteUnknownOptionKeepsValue(t *testing.T) {
	v, err := Deserialize(Autocomplete, "green", colourOptions, false)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	want := OptionValue(domain.Option{OptionName: "green", OptionValue: "green"})
	if diff := cmp.Diff(want, v); diff != "" {
		t.Fatalf("unexpected option (-want +got):\n%s", diff)
	}
}

func TestSplitJoinMulti(t *testing.T) {
	if got := SplitMulti(" a ; ;b;"); !cmp.Equal(got, []string{"a", "b"}) {
		t.Fatalf("SplitMulti = %#v", got)
	}
	if got := SplitMulti("  "); len(got) != 0 {
		t.Fatalf("SplitMulti blank = %#v", got)
	}
	if got := JoinMulti([]string{" x", "", "y "}); got != "x;y" {
		t.Fatalf("JoinMulti = %q", got)
	}
}
