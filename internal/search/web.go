package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// BraveClient queries the Brave web search API.
type BraveClient struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewBraveClient(baseURL, apiKey string, timeout time.Duration) *BraveClient {
	if baseURL == "" {
		baseURL = "https://api.search.brave.com/res/v1"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BraveClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: timeout},
	}
}

type braveResp struct {
	Web struct {
		Results []struct {
			URL           string   `json:"url"`
			Title         string   `json:"title"`
			Description   string   `json:"description"`
			ExtraSnippets []string `json:"extra_snippets,omitempty"`
			Thumbnail     struct {
				Src string `json:"src"`
			} `json:"thumbnail"`
		} `json:"results"`
	} `json:"web"`
}

func (c *BraveClient) Search(ctx context.Context, query string, count int) ([]WebResult, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("brave: api key is required")
	}
	if count <= 0 || count > 20 {
		count = 10
	}

	u := fmt.Sprintf("%s/web/search?q=%s&count=%d",
		strings.TrimRight(c.BaseURL, "/"), url.QueryEscape(query), count)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("brave: status %d", resp.StatusCode)
	}

	var decoded braveResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}

	out := make([]WebResult, 0, len(decoded.Web.Results))
	for _, r := range decoded.Web.Results {
		out = append(out, WebResult{
			URL:      r.URL,
			Title:    r.Title,
			Snippet:  r.Description,
			FullText: strings.Join(r.ExtraSnippets, "\n"),
			Image:    r.Thumbnail.Src,
		})
	}
	return out, nil
}
