package search

import "context"

// WebResult is one ranked document from a web search provider.
type WebResult struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	FullText string `json:"fullText,omitempty"`
	Image    string `json:"image,omitempty"`
}

type WebSearcher interface {
	Search(ctx context.Context, query string, count int) ([]WebResult, error)
}

// NarrativeResult is a single synthesized answer plus the URLs it cites.
type NarrativeResult struct {
	Content      string   `json:"content"`
	CitationURLs []string `json:"citationUrls"`
}

type NarrativeSearcher interface {
	Search(ctx context.Context, query string) (*NarrativeResult, error)
}

// Paper is academic metadata; abstracts stand in for full text.
type Paper struct {
	Title    string   `json:"title"`
	Abstract string   `json:"abstract"`
	URL      string   `json:"url"`
	Year     int      `json:"year"`
	Authors  []string `json:"authors"`
}

type AcademicSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]Paper, error)
}
