package research

import (
	"testing"
)

func TestDedupeAndNumber(t *testing.T) {
	sources := []Source{
		{URL: "https://a.example/one", Title: "One"},
		{URL: "https://b.example/two", Title: "Two"},
		{URL: "https://a.example/one/", Title: "One again"}, // trailing slash dup
		{URL: "", Title: "no url"},
		{URL: "https://c.example/three", Title: "Three"},
	}

	numbered := dedupeAndNumber(sources, 60)
	if len(numbered) != 3 {
		t.Fatalf("expected 3 unique sources, got %d", len(numbered))
	}
	for i, s := range numbered {
		if s.Number != i+1 {
			t.Fatalf("source %d has number %d", i, s.Number)
		}
	}
	if numbered[0].Title != "One" {
		t.Fatalf("first occurrence should win, got %q", numbered[0].Title)
	}
}

func TestDedupeAndNumber_Cap(t *testing.T) {
	var sources []Source
	for i := 0; i < 100; i++ {
		sources = append(sources, Source{URL: "https://example.com/" + string(rune('a'+i%26)) + string(rune('0'+i/26))})
	}
	numbered := dedupeAndNumber(sources, 60)
	if len(numbered) > 60 {
		t.Fatalf("cap not applied: %d", len(numbered))
	}
}

func TestSelectSources_OverlapAndFallback(t *testing.T) {
	numbered := []Source{
		{Number: 1, Title: "Quantum computing hardware", Snippet: "qubits and gates"},
		{Number: 2, Title: "Classical algorithms", Snippet: "sorting"},
		{Number: 3, Title: "Quantum error correction", FullText: "surface codes for quantum machines"},
		{Number: 4, Title: "Cooking pasta", Snippet: "boil water"},
	}

	matched := selectSources(numbered, "Quantum hardware progress", 1, 2)
	for _, s := range matched {
		if s.Number == 4 {
			t.Fatalf("unrelated source selected")
		}
	}
	if len(matched) < 2 {
		t.Fatalf("expected quantum sources matched, got %d", len(matched))
	}

	// Nothing overlaps: fall back to the top of the list.
	fallback := selectSources(numbered, "zzzz yyyy xxxx", 3, 2)
	if len(fallback) != 2 || fallback[0].Number != 1 || fallback[1].Number != 2 {
		t.Fatalf("expected top-2 fallback, got %+v", fallback)
	}
}

func TestExtractCitations_RangeAndDedup(t *testing.T) {
	text := "Claims [2] and [1] repeat [2], cite [7] out of range, and [0] is invalid."
	got := extractCitations(text, 5)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("expected [1 2], got %v", got)
	}

	if got := extractCitations("no markers here", 5); len(got) != 0 {
		t.Fatalf("expected none, got %v", got)
	}
}

func TestExtractCitations_HugeNumberDropped(t *testing.T) {
	// A number too long for int must be discarded, not wrapped into range.
	text := "see [2] and [99999999999999999999999999]"
	got := extractCitations(text, 5)
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected [2], got %v", got)
	}
}

func TestSignificantWords(t *testing.T) {
	words := significantWords("The Rise of Large Language Models")
	for _, w := range words {
		if len(w) <= 3 {
			t.Fatalf("short word kept: %q", w)
		}
	}
	want := map[string]bool{"rise": true, "large": true, "language": true, "models": true}
	for _, w := range words {
		if !want[w] {
			t.Fatalf("unexpected word %q", w)
		}
	}
}
