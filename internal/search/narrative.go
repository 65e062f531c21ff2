package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// PerplexityClient asks a synthesis-style search provider for one narrative
// answer with its citation URLs.
type PerplexityClient struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
}

func NewPerplexityClient(baseURL, apiKey, model string, timeout time.Duration) *PerplexityClient {
	if baseURL == "" {
		baseURL = "https://api.perplexity.ai"
	}
	if model == "" {
		model = "sonar"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &PerplexityClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		Client:  &http.Client{Timeout: timeout},
	}
}

type perplexityReq struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

type perplexityResp struct {
	Citations []string `json:"citations"`
	Choices   []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *PerplexityClient) Search(ctx context.Context, query string) (*NarrativeResult, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("perplexity: api key is required")
	}

	reqBody := perplexityReq{Model: c.Model}
	reqBody.Messages = append(reqBody.Messages, struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{Role: "user", Content: query})

	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/chat/completions", strings.TrimRight(c.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("perplexity: status %d", resp.StatusCode)
	}

	var decoded perplexityResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	if len(decoded.Choices) == 0 {
		return nil, errors.New("perplexity: empty response")
	}

	return &NarrativeResult{
		Content:      decoded.Choices[0].Message.Content,
		CitationURLs: decoded.Citations,
	}, nil
}
