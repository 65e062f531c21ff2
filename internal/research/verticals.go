package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/quillforge/engine/internal/generate"
)

// Vertical is one angle of inquiry within a deep-research job.
type Vertical struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	SearchQueries []string `json:"searchQueries"`
	Status        string   `json:"status"`
	SourcesCount  int      `json:"sourcesCount"`
}

const (
	VerticalPending   = "pending"
	VerticalSearching = "searching"
	VerticalCompleted = "completed"
	VerticalError     = "error"
)

const planSystemPrompt = `You decompose research questions into distinct angles. Respond with exactly one JSON object: {"verticals": [{"name": "...", "description": "...", "queries": ["...", "..."]}]}. Produce 4 to 6 verticals.`

type planDraft struct {
	Verticals []struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Queries     []string `json:"queries"`
	} `json:"verticals"`
}

// planVerticals maps the query to research angles with one remote call.
// Any failure falls back to three generic verticals; planning never fails
// the job.
func (o *Orchestrator) planVerticals(ctx context.Context, query string) []Vertical {
	prompt := fmt.Sprintf("Research question: %s\nPlan the research angles.", query)
	out, err := o.provider.Generate(ctx, planSystemPrompt, prompt, planMaxTokens)
	if err != nil {
		o.log.Warn("planning call failed, using fallback verticals", "error", err)
		return fallbackVerticals(query)
	}

	var draft planDraft
	if err := generate.DecodeJSON(out, &draft); err != nil {
		o.log.Warn("planning output unparseable, using fallback verticals", "error", err)
		return fallbackVerticals(query)
	}
	if len(draft.Verticals) == 0 {
		return fallbackVerticals(query)
	}

	out6 := draft.Verticals
	if len(out6) > 6 {
		out6 = out6[:6]
	}
	verticals := make([]Vertical, 0, len(out6))
	for i, v := range out6 {
		name := strings.TrimSpace(v.Name)
		if name == "" {
			continue
		}
		queries := v.Queries
		if len(queries) == 0 {
			queries = []string{fmt.Sprintf("%s %s", query, name)}
		}
		verticals = append(verticals, Vertical{
			ID:            fmt.Sprintf("v%d", i+1),
			Name:          name,
			Description:   strings.TrimSpace(v.Description),
			SearchQueries: queries,
			Status:        VerticalPending,
		})
	}
	if len(verticals) == 0 {
		return fallbackVerticals(query)
	}
	return verticals
}

func fallbackVerticals(query string) []Vertical {
	return []Vertical{
		{
			ID:            "v1",
			Name:          "Overview",
			SearchQueries: []string{query, query + " introduction"},
			Status:        VerticalPending,
		},
		{
			ID:            "v2",
			Name:          "Current Research",
			SearchQueries: []string{query + " recent research", query + " latest findings"},
			Status:        VerticalPending,
		},
		{
			ID:            "v3",
			Name:          "Applications",
			SearchQueries: []string{query + " applications", query + " in practice"},
			Status:        VerticalPending,
		},
	}
}
