package fieldtype

import (
	"strconv"
	"strings"
)

// CompareForCondition reports whether candidate (an answer in stored form)
// satisfies expected (a conditional value in stored form) for a field of
// kind k. Comparison is type aware:
//   - tags and autocomplete compare member sets
//   - date compares calendar days
//   - checkbox compares booleans
//   - number and rating compare numerically
//
// Everything else is compared as plain strings.
func CompareForCondition(k Kind, candidate, expected string) bool {
	switch k {
	case Tags, Autocomplete:
		return sameSet(SplitMulti(candidate), SplitMulti(expected))
	case Date:
		a, okA := ParseDate(candidate)
		b, okB := ParseDate(expected)
		if !okA || !okB {
			return candidate == expected
		}
		ay, am, ad := a.Date()
		by, bm, bd := b.Date()
		return ay == by && am == bm && ad == bd
	case Checkbox:
		return (strings.TrimSpace(candidate) == "true") == (strings.TrimSpace(expected) == "true")
	case Number, Rating:
		a, errA := strconv.ParseFloat(strings.TrimSpace(candidate), 64)
		b, errB := strconv.ParseFloat(strings.TrimSpace(expected), 64)
		if errA != nil || errB != nil {
			return candidate == expected
		}
		return a == b
	}
	return candidate == expected
}

func sameSet(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	other := make(map[string]struct{}, len(b))
	for _, v := range b {
		if _, ok := set[v]; !ok {
			return false
		}
		other[v] = struct{}{}
	}
	return len(set) == len(other)
}
