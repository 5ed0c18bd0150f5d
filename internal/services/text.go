package services

import "strings"

// normalizeTitle trims a form or field title and folds inner runs of
// whitespace into single spaces.
func normalizeTitle(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
