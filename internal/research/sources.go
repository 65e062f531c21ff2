package research

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Source is one gathered reference. Number is assigned once, after
// deduplication, and is reused verbatim as the inline [N] citation marker.
type Source struct {
	Number     int    `json:"number"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	Domain     string `json:"domain"`
	Snippet    string `json:"snippet,omitempty"`
	FullText   string `json:"fullText,omitempty"`
	Image      string `json:"image,omitempty"`
	VerticalID string `json:"verticalId"`
	Provider   string `json:"provider"`
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(u.Host, "www.")
}

// dedupeAndNumber keeps the first occurrence of each URL, assigns stable
// 1-based numbers in gathering order, and caps the list.
func dedupeAndNumber(sources []Source, max int) []Source {
	seen := make(map[string]bool, len(sources))
	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		key := strings.TrimRight(s.URL, "/")
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		s.Number = len(out) + 1
		out = append(out, s)
		if len(out) >= max {
			break
		}
	}
	return out
}

var wordRe = regexp.MustCompile(`[a-zA-Z0-9]+`)

// significantWords lowercases and drops short filler tokens.
func significantWords(s string) []string {
	words := wordRe.FindAllString(strings.ToLower(s), -1)
	out := words[:0]
	for _, w := range words {
		if len(w) > 3 {
			out = append(out, w)
		}
	}
	return out
}

// selectSources picks the numbered sources whose text overlaps the section
// heading's significant words. When too few match, it falls back to the
// top-ranked sources so every section has something to cite.
func selectSources(numbered []Source, heading string, minMatched, fallbackTop int) []Source {
	words := significantWords(heading)
	var matched []Source
	for _, s := range numbered {
		hay := strings.ToLower(s.Title + " " + s.Snippet + " " + s.FullText)
		for _, w := range words {
			if strings.Contains(hay, w) {
				matched = append(matched, s)
				break
			}
		}
	}
	if len(matched) >= minMatched {
		return matched
	}
	if fallbackTop > len(numbered) {
		fallbackTop = len(numbered)
	}
	return numbered[:fallbackTop]
}

var citationRe = regexp.MustCompile(`\[(\d+)\]`)

// extractCitations returns the unique citation numbers appearing in text,
// sorted, with anything outside [1, max] dropped.
func extractCitations(text string, max int) []int {
	matches := citationRe.FindAllStringSubmatch(text, -1)
	seen := make(map[int]bool)
	var out []int
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > max || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func countWords(s string) int {
	return len(strings.Fields(s))
}
