package fieldtype

import "testing"

func TestCompareForCondition(t *testing.T) {
	cases := []struct {
		name      string
		kind      Kind
		candidate string
		expected  string
		want      bool
	}{
		{"text equal", Text, "oui", "oui", true},
		{"text differs by case", Text, "Oui", "oui", false},
		{"tags same set other order", Tags, "b;a", "a;b", true},
		{"tags duplicates ignored", Tags, "a;a;b", "b;a", true},
		{"tags subset", Tags, "a", "a;b", false},
		{"autocomplete set", Autocomplete, "x;y", "y;x", true},
		{"date same day different time", Date, "2024-05-01T23:00:00Z", "2024-05-01", true},
		{"date different day", Date, "2024-05-02", "2024-05-01", false},
		{"date unparsable falls back to string", Date, "soon", "soon", true},
		{"checkbox true", Checkbox, "true", "true", true},
		{"checkbox false vs empty expected", Checkbox, "false", "", true},
		{"checkbox mismatch", Checkbox, "true", "false", false},
		{"number numeric equality", Number, "18.0", "18", true},
		{"number differs", Number, "17", "18", false},
		{"number non numeric", Number, "abc", "abc", true},
		{"rating numeric", Rating, "3", "3", true},
		{"select", Select, "red", "red", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CompareForCondition(tc.kind, tc.candidate, tc.expected); got != tc.want {
				t.Fatalf("CompareForCondition(%s, %q, %q) = %v, want %v", tc.kind, tc.candidate, tc.expected, got, tc.want)
			}
		})
	}
}
