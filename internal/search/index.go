// Package search ranks the options of a choice field against what a user is
// typing, for autocomplete suggestions.
//
// The index is built once from a snapshot of entries and is read-only
// afterwards, so it is safe for concurrent use. Matching is case and accent
// insensitive, and a query word matches any entry word it is a prefix of.
//
// Scoring is the Jaccard similarity between the query word set and each
// entry's word set, counting prefix matches as shared words:
// score = |Q ∩ E| / |Q ∪ E|.
package search

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Entry is one searchable item.
type Entry struct {
	ID    string `json:"id"`
	Label string `json:"label"` // what users see and type against
	Value string `json:"value"` // secondary text, matched as well
}

// Result is a ranked entry with its similarity score.
type Result struct {
	Entry
	Score float64 `json:"score"`
}

// Index is the minimal interface implemented by all search indices.
type Index interface {
	TopK(query string, k int) []Result
	Len() int
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	minQueryRunes int
	stopwords     map[string]struct{}
	maxDocs       int
}

func defaultConfig() config {
	return config{
		minQueryRunes: 1,
		stopwords:     nil,
		maxDocs:       0,
	}
}

// WithMinQueryRunes ignores queries shorter than n runes.
func WithMinQueryRunes(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.minQueryRunes = n
		}
	}
}

func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = fold(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

type doc struct {
	entry  Entry
	tokens map[string]struct{}
}

type index struct {
	cfg  config
	docs []doc
}

// NewIndex builds an Index over entries. Entries without any word are
// skipped.
func NewIndex(entries []Entry, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	docs := make([]doc, 0, len(entries))
	for _, e := range entries {
		toks := tokenize(e.Label+" "+e.Value, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		docs = append(docs, doc{entry: e, tokens: toks})
		if cfg.maxDocs > 0 && len(docs) >= cfg.maxDocs {
			break
		}
	}
	return &index{cfg: cfg, docs: docs}
}

// NewIndexFromStrings builds an Index whose entries are the given labels.
func NewIndexFromStrings(labels []string, opts ...Option) Index {
	entries := make([]Entry, 0, len(labels))
	for _, l := range labels {
		entries = append(entries, Entry{Label: l})
	}
	return NewIndex(entries, opts...)
}

func (i *index) Len() int { return len(i.docs) }

// TopK returns up to k best-matching entries. An empty query returns the
// first k entries in index order with a zero score.
func (i *index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 {
		return nil
	}
	if k <= 0 {
		k = 10
	}
	if strings.TrimSpace(q) == "" {
		if k > len(i.docs) {
			k = len(i.docs)
		}
		out := make([]Result, k)
		for n := 0; n < k; n++ {
			out[n] = Result{Entry: i.docs[n].entry}
		}
		return out
	}
	if utf8.RuneCountInString(strings.TrimSpace(q)) < i.cfg.minQueryRunes {
		return nil
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}
	qLen := len(qTokens)

	type scored struct {
		entry    Entry
		score    float64
		lenRunes int
	}

	buf := make([]scored, 0, min(k*4, len(i.docs)))
	for _, d := range i.docs {
		over := prefixOverlap(qTokens, d.tokens)
		if over == 0 {
			continue
		}
		union := float64(qLen + len(d.tokens) - over)
		if union <= 0 {
			continue
		}
		buf = append(buf, scored{
			entry:    d.entry,
			score:    float64(over) / union,
			lenRunes: utf8.RuneCountInString(d.entry.Label),
		})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		if buf[a].lenRunes != buf[b].lenRunes {
			return buf[a].lenRunes < buf[b].lenRunes
		}
		return buf[a].entry.Label < buf[b].entry.Label
	})

	if k > len(buf) {
		k = len(buf)
	}
	out := make([]Result, k)
	for n := 0; n < k; n++ {
		out[n] = Result{Entry: buf[n].entry, Score: buf[n].score}
	}
	return out
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(fold(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

// prefixOverlap counts query words that prefix at least one entry word.
func prefixOverlap(q, d map[string]struct{}) int {
	n := 0
	for qw := range q {
		if _, ok := d[qw]; ok {
			n++
			continue
		}
		for dw := range d {
			if strings.HasPrefix(dw, qw) {
				n++
				break
			}
		}
	}
	return n
}
