package job

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ContentKind tags the shape of an outline-document job.
const (
	KindArticle    = "article"
	KindQuiz       = "quiz"
	KindFlashcards = "flashcards"
	KindTimeline   = "timeline"
	KindComparison = "comparison"
)

// OutlineParams is the input for generate_outline_document jobs.
type OutlineParams struct {
	Query          string `json:"query"`
	ContentKind    string `json:"contentKind"`
	SupportingText string `json:"supportingText,omitempty"`
}

// ResearchParams is the input for deep_research jobs.
type ResearchParams struct {
	Query string `json:"query"`
}

var contentKinds = map[string]bool{
	KindArticle:    true,
	KindQuiz:       true,
	KindFlashcards: true,
	KindTimeline:   true,
	KindComparison: true,
}

// ValidateParams checks the params blob against the schema for the given job
// type. Validation happens once, at the queue manager boundary; generation
// code may assume params already parse.
func ValidateParams(t Type, raw json.RawMessage) error {
	switch t {
	case TypeOutlineDocument:
		var p OutlineParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("%w: params: %v", ErrValidation, err)
		}
		if strings.TrimSpace(p.Query) == "" {
			return fmt.Errorf("%w: query is required", ErrValidation)
		}
		if p.ContentKind != "" && !contentKinds[p.ContentKind] {
			return fmt.Errorf("%w: unknown contentKind %q", ErrValidation, p.ContentKind)
		}
		return nil
	case TypeDeepResearch:
		var p ResearchParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("%w: params: %v", ErrValidation, err)
		}
		if strings.TrimSpace(p.Query) == "" {
			return fmt.Errorf("%w: query is required", ErrValidation)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown job type %q", ErrValidation, t)
	}
}
