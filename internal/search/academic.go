package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SemanticScholarClient queries the Semantic Scholar graph API for paper
// metadata and abstracts. No API key is required at low volume.
type SemanticScholarClient struct {
	BaseURL string
	Client  *http.Client
}

func NewSemanticScholarClient(baseURL string, timeout time.Duration) *SemanticScholarClient {
	if baseURL == "" {
		baseURL = "https://api.semanticscholar.org/graph/v1"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SemanticScholarClient{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
	}
}

type semanticScholarResp struct {
	Data []struct {
		Title    string `json:"title"`
		Abstract string `json:"abstract"`
		URL      string `json:"url"`
		Year     int    `json:"year"`
		Authors  []struct {
			Name string `json:"name"`
		} `json:"authors"`
	} `json:"data"`
}

func (c *SemanticScholarClient) Search(ctx context.Context, query string, limit int) ([]Paper, error) {
	if limit <= 0 || limit > 20 {
		limit = 5
	}

	u := fmt.Sprintf("%s/paper/search?query=%s&limit=%d&fields=title,abstract,url,year,authors",
		strings.TrimRight(c.BaseURL, "/"), url.QueryEscape(query), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("semanticscholar: status %d", resp.StatusCode)
	}

	var decoded semanticScholarResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}

	out := make([]Paper, 0, len(decoded.Data))
	for _, p := range decoded.Data {
		authors := make([]string, 0, len(p.Authors))
		for _, a := range p.Authors {
			authors = append(authors, a.Name)
		}
		out = append(out, Paper{
			Title:    p.Title,
			Abstract: p.Abstract,
			URL:      p.URL,
			Year:     p.Year,
			Authors:  authors,
		})
	}
	return out, nil
}
