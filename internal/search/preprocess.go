package search

import (
	"bufio"
	"io"
	"strings"
)

// Pair is one option parsed from pasted text.
type Pair struct {
	Name  string
	Value string
}

// ParseOptions reads options pasted by an admin, one per line. Accepted
// shapes:
//
//	Rouge                 name and value are both "Rouge"
//	Rouge = red           name "Rouge", value "red"
//	| Rouge | red |       Markdown table row; separator rows are skipped
//
// Blank lines and a Markdown header row whose cells read "name"/"value"
// (any case) are ignored. Duplicates are kept; callers decide how to
// disambiguate them.
func ParseOptions(r io.Reader) ([]Pair, error) {
	var out []Pair
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		// table row: "| ... |"
		if strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|") {
			raw := strings.Trim(line, "|")
			cols := strings.Split(raw, "|")

			allSep := true
			cleaned := make([]string, 0, len(cols))
			for _, c := range cols {
				cell := strings.TrimSpace(c)
				if cell != "" {
					cleaned = append(cleaned, cell)
				}
				tmp := strings.ReplaceAll(cell, ":", "")
				tmp = strings.ReplaceAll(tmp, "-", "")
				if strings.TrimSpace(tmp) != "" {
					allSep = false
				}
			}
			if allSep || len(cleaned) == 0 || isHeader(cleaned) {
				continue
			}
			if len(cleaned) == 1 {
				out = append(out, Pair{Name: cleaned[0], Value: cleaned[0]})
				continue
			}
			out = append(out, Pair{Name: cleaned[0], Value: cleaned[1]})
			continue
		}

		if name, value, ok := strings.Cut(line, "="); ok {
			name, value = strings.TrimSpace(name), strings.TrimSpace(value)
			if name == "" {
				name = value
			}
			if value == "" {
				value = name
			}
			if name != "" {
				out = append(out, Pair{Name: name, Value: value})
			}
			continue
		}
		out = append(out, Pair{Name: line, Value: line})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func isHeader(cells []string) bool {
	if len(cells) < 2 {
		return false
	}
	first, second := strings.ToLower(cells[0]), strings.ToLower(cells[1])
	return (first == "name" || first == "nom") && (second == "value" || second == "valeur")
}
