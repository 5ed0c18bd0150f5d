package search

import (
	"testing"
)

func labels(rs []Result) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Label
	}
	return out
}

func TestOptionsAndDefaults(t *testing.T) {
	def := defaultConfig()
	if def.minQueryRunes != 1 || def.stopwords != nil || def.maxDocs != 0 {
		t.Fatalf("defaultConfig unexpected: %#v", def)
	}

	cfg := def
	WithMinQueryRunes(3)(&cfg)
	if cfg.minQueryRunes != 3 {
		t.Fatalf("WithMinQueryRunes failed: %d", cfg.minQueryRunes)
	}
	WithMinQueryRunes(-1)(&cfg)
	if cfg.minQueryRunes != 3 {
		t.Fatalf("negative minQueryRunes should be ignored")
	}

	WithStopwords([]string{"  Le ", "", "Été"})(&cfg)
	if _, ok := cfg.stopwords["le"]; !ok {
		t.Fatalf("WithStopwords missing 'le': %#v", cfg.stopwords)
	}
	if _, ok := cfg.stopwords["ete"]; !ok {
		t.Fatalf("stopwords should be accent folded: %#v", cfg.stopwords)
	}
	WithStopwords(nil)(&cfg)
	if len(cfg.stopwords) != 2 {
		t.Fatalf("empty stopwords should not reset the set")
	}

	WithMaxDocs(2)(&cfg)
	WithMaxDocs(0)(&cfg)
	if cfg.maxDocs != 2 {
		t.Fatalf("WithMaxDocs = %d", cfg.maxDocs)
	}
}

func TestTopK_PrefixAndAccents(t *testing.T) {
	idx := NewIndex([]Entry{
		{ID: "1", Label: "Île-de-France", Value: "idf"},
		{ID: "2", Label: "Provence-Alpes-Côte d'Azur", Value: "paca"},
		{ID: "3", Label: "Bretagne", Value: "bretagne"},
		{ID: "4", Label: "Centre-Val de Loire", Value: "cvl"},
	})
	if idx.Len() != 4 {
		t.Fatalf("Len = %d", idx.Len())
	}

	got := idx.TopK("ile", 5)
	if len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("accent-insensitive prefix failed: %+v", got)
	}

	got = idx.TopK("COTE", 5)
	if len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("case-insensitive match failed: %+v", got)
	}

	got = idx.TopK("bre", 5)
	if len(got) != 1 || got[0].Label != "Bretagne" || got[0].Score <= 0 {
		t.Fatalf("prefix match failed: %+v", got)
	}

	if got := idx.TopK("zzz", 5); got != nil {
		t.Fatalf("no match should be nil, got %+v", got)
	}
}

func TestTopK_RankingAndTies(t *testing.T) {
	idx := NewIndexFromStrings([]string{"rouge vif", "rouge", "rose"})

	got := labels(idx.TopK("rouge", 3))
	if len(got) != 2 || got[0] != "rouge" || got[1] != "rouge vif" {
		t.Fatalf("ranking = %v", got)
	}

	// "ro" prefixes all three; shorter labels win ties, then lexical order.
	got = labels(idx.TopK("ro", 2))
	if len(got) != 2 || got[0] != "rose" || got[1] != "rouge" {
		t.Fatalf("tie-break = %v", got)
	}
}

func TestTopK_EmptyQueryListsFirstEntries(t *testing.T) {
	idx := NewIndexFromStrings([]string{"a", "b", "c"})
	got := labels(idx.TopK("  ", 2))
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("empty query = %v", got)
	}
	if got := idx.TopK("", 0); len(got) != 3 {
		t.Fatalf("default k should cover all three, got %d", len(got))
	}
}

func TestTopK_MinQueryStopwordsMaxDocs(t *testing.T) {
	idx := NewIndexFromStrings([]string{"le chat", "la souris", "le chien"},
		WithMinQueryRunes(2), WithStopwords([]string{"le", "la"}), WithMaxDocs(2))

	if idx.Len() != 2 {
		t.Fatalf("WithMaxDocs not applied: %d", idx.Len())
	}
	if got := idx.TopK("c", 5); got != nil {
		t.Fatalf("query below min runes should be ignored: %+v", got)
	}
	if got := idx.TopK("le", 5); got != nil {
		t.Fatalf("stopword-only query should be nil: %+v", got)
	}
	if got := labels(idx.TopK("ch", 5)); len(got) != 1 || got[0] != "le chat" {
		t.Fatalf("got %v", got)
	}
}

func TestNewIndex_SkipsEmptyEntries(t *testing.T) {
	idx := NewIndex([]Entry{{ID: "x", Label: "   "}, {ID: "y", Label: "--"}, {ID: "z", Label: "ok"}})
	if idx.Len() != 1 {
		t.Fatalf("Len = %d", idx.Len())
	}
	var empty Index = NewIndex(nil)
	if empty.TopK("ok", 3) != nil {
		t.Fatalf("empty index should return nil")
	}
}
