package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/quillforge/engine/internal/job"
)

// PendingContent is the placeholder a stub carries until its section
// resolves.
const PendingContent = "Loading..."

// ErrorContent replaces a section whose generation call failed. One bad
// section degrades quality; it never aborts the job.
const ErrorContent = "Error generating content"

// Stub is one leaf unit of planned content.
type Stub struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Options []string `json:"options,omitempty"`
}

// Skeleton is the fast outline artifact. Exactly one of the kind-specific
// stub lists is populated; the field names are part of the client contract.
type Skeleton struct {
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Sections  []Stub `json:"sections,omitempty"`
	Questions []Stub `json:"questions,omitempty"`
	Cards     []Stub `json:"cards,omitempty"`
	Events    []Stub `json:"events,omitempty"`
	Items     []Stub `json:"items,omitempty"`
}

// Stubs returns whichever kind-specific list is populated.
func (s *Skeleton) Stubs() []Stub {
	switch {
	case len(s.Sections) > 0:
		return s.Sections
	case len(s.Questions) > 0:
		return s.Questions
	case len(s.Cards) > 0:
		return s.Cards
	case len(s.Events) > 0:
		return s.Events
	case len(s.Items) > 0:
		return s.Items
	}
	return nil
}

func (s *Skeleton) setStubs(stubs []Stub) {
	switch s.Kind {
	case job.KindQuiz:
		s.Questions = stubs
	case job.KindFlashcards:
		s.Cards = stubs
	case job.KindTimeline:
		s.Events = stubs
	case job.KindComparison:
		s.Items = stubs
	default:
		s.Sections = stubs
	}
}

// NewSkeleton builds the kind-specific outline shape from the minimal
// {title, items[]} draft the model returns.
func NewSkeleton(kind, title string, itemTitles []string) *Skeleton {
	if kind == "" {
		kind = job.KindArticle
	}
	sk := &Skeleton{Kind: kind, Title: title}
	stubs := make([]Stub, 0, len(itemTitles))
	for i, t := range itemTitles {
		stub := Stub{
			ID:      fmt.Sprintf("s%d", i+1),
			Title:   strings.TrimSpace(t),
			Content: PendingContent,
		}
		if kind == job.KindQuiz {
			stub.Options = []string{}
		}
		stubs = append(stubs, stub)
	}
	sk.setStubs(stubs)
	return sk
}

const skeletonSystemPrompt = `You plan content outlines. Respond with exactly one JSON object of the form {"title": "...", "items": ["...", "..."]} and nothing else. Keep it short.`

// outlineDraft is the minimal shape expected back from the skeleton call.
type outlineDraft struct {
	Title string   `json:"title"`
	Items []string `json:"items"`
}

// BuildSkeleton issues one deliberately small generation call and maps the
// result into the kind-specific skeleton. Any failure, timeout, or
// unparseable output yields no skeleton rather than an error; the caller
// falls through to single-pass generation.
func (g *Generator) BuildSkeleton(ctx context.Context, p job.OutlineParams) *Skeleton {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", p.Query)
	fmt.Fprintf(&b, "Content kind: %s\n", kindOrDefault(p.ContentKind))
	if p.SupportingText != "" {
		fmt.Fprintf(&b, "Supporting material:\n%s\n", truncate(p.SupportingText, 2000))
	}
	b.WriteString("List 4-8 item titles for this content.")

	out, err := g.provider.Generate(ctx, skeletonSystemPrompt, b.String(), skeletonMaxTokens)
	if err != nil {
		g.log.Warn("skeleton call failed", "error", err)
		return nil
	}

	var draft outlineDraft
	if err := DecodeJSON(out, &draft); err != nil {
		g.log.Warn("skeleton output unparseable", "error", err)
		return nil
	}
	if len(draft.Items) == 0 {
		return nil
	}
	title := draft.Title
	if strings.TrimSpace(title) == "" {
		title = p.Query
	}
	return NewSkeleton(kindOrDefault(p.ContentKind), title, draft.Items)
}

func kindOrDefault(kind string) string {
	if kind == "" {
		return job.KindArticle
	}
	return kind
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
