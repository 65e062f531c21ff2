package research

import (
	"fmt"
	"strings"
)

// ReportSection is one generated research section. Citations holds the raw
// [N] numbers found in the text; Sources holds the resolved entries.
type ReportSection struct {
	Heading   string   `json:"heading"`
	Content   string   `json:"content"`
	WordCount int      `json:"wordCount"`
	Citations []int    `json:"citations"`
	Sources   []Source `json:"sources,omitempty"`
	Images    []string `json:"images,omitempty"`
}

// Report is the final deep-research artifact.
type Report struct {
	Title              string          `json:"title"`
	Abstract           string          `json:"abstract"`
	KeyFindings        []string        `json:"keyFindings"`
	Methodology        string          `json:"methodology"`
	Limitations        string          `json:"limitations"`
	Sections           []ReportSection `json:"sections"`
	Sources            []Source        `json:"sources"`
	HeroImages         []string        `json:"heroImages,omitempty"`
	WordCount          int             `json:"wordCount"`
	ReadingTimeMinutes int             `json:"readingTimeMinutes"`
}

const reportLimitations = "This report was assembled automatically from public web, synthesis, and academic search results; coverage depends on what those providers returned, and individual claims should be verified against the cited sources."

func buildMethodology(query string, verticals []Vertical, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research on %q was organized into %d verticals: ", query, len(verticals))
	names := make([]string, len(verticals))
	for i, v := range verticals {
		names[i] = fmt.Sprintf("%s (%d sources)", v.Name, v.SourcesCount)
	}
	b.WriteString(strings.Join(names, ", "))
	fmt.Fprintf(&b, ". %d sources were gathered in total from web, synthesis, and academic search providers, then deduplicated and numbered for citation.", total)
	return b.String()
}

// assembleReport merges everything into the final artifact.
func assembleReport(query string, synth synthesis, verticals []Vertical, sections []ReportSection, numbered []Source, gathered int) *Report {
	words := 0
	for _, s := range sections {
		words += s.WordCount
	}

	var heroes []string
	for _, s := range numbered {
		if s.Image == "" {
			continue
		}
		heroes = append(heroes, s.Image)
		if len(heroes) >= 4 {
			break
		}
	}

	reading := (words + 199) / 200

	return &Report{
		Title:              synth.Title,
		Abstract:           synth.Abstract,
		KeyFindings:        synth.KeyFindings,
		Methodology:        buildMethodology(query, verticals, gathered),
		Limitations:        reportLimitations,
		Sections:           sections,
		Sources:            numbered,
		HeroImages:         heroes,
		WordCount:          words,
		ReadingTimeMinutes: reading,
	}
}
