package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quillforge/engine/internal/generate"
	"github.com/quillforge/engine/internal/job"
	"github.com/quillforge/engine/internal/llm"
	"github.com/quillforge/engine/internal/logger"
	"github.com/quillforge/engine/internal/search"
)

const (
	planMaxTokens      = 600
	synthesisMaxTokens = 1200
	sectionMaxTokens   = 1400

	maxSynthesisSources = 50
	synthesisTruncate   = 500
	maxNumberedSources  = 60
	webResultCount      = 10
	academicLimit       = 5
	minMatchedSources   = 3
	fallbackTopSources  = 8
)

// Orchestrator runs deep_research jobs through four phases: plan, gather,
// synthesize, generate. Each phase degrades to a fallback on failure; only
// a total absence of providers at the start is a hard error.
type Orchestrator struct {
	repo      *job.Repo
	provider  llm.Provider
	web       search.WebSearcher
	narrative search.NarrativeSearcher
	academic  search.AcademicSearcher
	log       *logger.Logger

	sectionDelay time.Duration
}

func NewOrchestrator(repo *job.Repo, provider llm.Provider, web search.WebSearcher, narrative search.NarrativeSearcher, academic search.AcademicSearcher, log *logger.Logger, sectionDelay time.Duration) *Orchestrator {
	return &Orchestrator{
		repo:         repo,
		provider:     provider,
		web:          web,
		narrative:    narrative,
		academic:     academic,
		log:          log.With("component", "ResearchOrchestrator"),
		sectionDelay: sectionDelay,
	}
}

// synthesis is what Phase 3 proposes: report framing plus section headings.
type synthesis struct {
	Title       string   `json:"title"`
	Abstract    string   `json:"abstract"`
	KeyFindings []string `json:"keyFindings"`
	Sections    []string `json:"sections"`
}

func (o *Orchestrator) Run(ctx context.Context, j *job.Job) error {
	if o.provider == nil {
		return errors.New("no text generation provider configured")
	}
	if o.web == nil && o.narrative == nil && o.academic == nil {
		return errors.New("no search providers configured")
	}

	var p job.ResearchParams
	if err := json.Unmarshal(j.Params, &p); err != nil {
		return fmt.Errorf("params: %w", err)
	}

	// Phase 1 — planning
	_ = o.repo.UpdateProgress(ctx, j.ID, job.Progress{
		Message: "planning research angles",
		Phase:   "planning",
	})
	verticals := o.planVerticals(ctx, p.Query)

	// Phase 2 — gathering
	sources, gathered := o.gather(ctx, j.ID, p.Query, verticals)
	if !o.live(ctx, j.ID) {
		return nil
	}

	// Phase 3 — synthesis
	_ = o.repo.UpdateProgress(ctx, j.ID, job.Progress{
		Message: fmt.Sprintf("synthesizing %d sources", len(sources)),
		Phase:   "synthesis",
	})
	synth := o.synthesize(ctx, p.Query, verticals, sources)

	// The proposed section headings become the job's skeleton so polling
	// clients get an outline before any section text exists.
	sk := generate.NewSkeleton("report", synth.Title, synth.Sections)
	if skJSON, err := job.MarshalValue(sk); err == nil {
		if err := o.repo.SetSkeleton(ctx, j.ID, skJSON); err != nil {
			return err
		}
	}

	// Phase 4 — generation
	numbered := dedupeAndNumber(sources, maxNumberedSources)
	sections := o.generateSections(ctx, j.ID, p.Query, synth, numbered)
	if !o.live(ctx, j.ID) {
		return nil
	}

	report := assembleReport(p.Query, synth, verticals, sections, numbered, gathered)
	result, err := job.MarshalValue(report)
	if err != nil {
		return err
	}
	if _, err := o.repo.MarkComplete(ctx, j.ID, result); err != nil {
		return err
	}
	o.log.Info("research complete", "job_id", j.ID,
		"sections", len(sections), "sources", len(numbered), "words", report.WordCount)
	return nil
}

// gather queries each vertical sequentially so progress stays fine-grained,
// but fans out across providers inside a vertical. Every provider call is
// independently fault-tolerant: a failure logs and contributes zero items.
func (o *Orchestrator) gather(ctx context.Context, jobID, query string, verticals []Vertical) ([]Source, int) {
	var (
		mu      sync.Mutex
		sources []Source
	)

	for vi := range verticals {
		v := &verticals[vi]
		v.Status = VerticalSearching

		if !o.live(ctx, jobID) {
			return sources, len(sources)
		}

		before := len(sources)
		var eg errgroup.Group

		if o.web != nil {
			eg.Go(func() error {
				for _, q := range v.SearchQueries {
					results, err := o.web.Search(ctx, q, webResultCount)
					if err != nil {
						o.log.Warn("web search failed", "vertical", v.Name, "query", q, "error", err)
						continue
					}
					mu.Lock()
					for _, r := range results {
						sources = append(sources, Source{
							URL:        r.URL,
							Title:      r.Title,
							Domain:     domainOf(r.URL),
							Snippet:    r.Snippet,
							FullText:   r.FullText,
							Image:      r.Image,
							VerticalID: v.ID,
							Provider:   "web",
						})
					}
					mu.Unlock()
				}
				return nil
			})
		}

		if o.narrative != nil {
			eg.Go(func() error {
				q := v.SearchQueries[0]
				res, err := o.narrative.Search(ctx, q)
				if err != nil {
					o.log.Warn("narrative search failed", "vertical", v.Name, "error", err)
					return nil
				}
				mu.Lock()
				sources = append(sources, Source{
					URL:        fmt.Sprintf("narrative://%s", v.ID),
					Title:      fmt.Sprintf("Synthesized answer: %s", q),
					FullText:   res.Content,
					VerticalID: v.ID,
					Provider:   "narrative",
				})
				for _, cu := range res.CitationURLs {
					sources = append(sources, Source{
						URL:        cu,
						Title:      domainOf(cu),
						Domain:     domainOf(cu),
						Snippet:    "Cited by synthesized answer",
						VerticalID: v.ID,
						Provider:   "narrative",
					})
				}
				mu.Unlock()
				return nil
			})
		}

		if o.academic != nil {
			eg.Go(func() error {
				papers, err := o.academic.Search(ctx, v.SearchQueries[0], academicLimit)
				if err != nil {
					o.log.Warn("academic search failed", "vertical", v.Name, "error", err)
					return nil
				}
				mu.Lock()
				for _, paper := range papers {
					snippet := paper.Title
					if paper.Year > 0 {
						snippet = fmt.Sprintf("%s (%d)", paper.Title, paper.Year)
					}
					sources = append(sources, Source{
						URL:        paper.URL,
						Title:      paper.Title,
						Domain:     domainOf(paper.URL),
						Snippet:    snippet,
						FullText:   paper.Abstract,
						VerticalID: v.ID,
						Provider:   "academic",
					})
				}
				mu.Unlock()
				return nil
			})
		}

		_ = eg.Wait()

		v.SourcesCount = len(sources) - before
		v.Status = VerticalCompleted

		reading := ""
		if len(sources) > before {
			reading = sources[len(sources)-1].Title
		}
		_ = o.repo.UpdateProgress(ctx, jobID, job.Progress{
			Current: vi + 1,
			Total:   len(verticals),
			Message: gatherMessage(v.Name, len(sources), reading),
			Phase:   "gathering",
		})
	}

	return sources, len(sources)
}

func gatherMessage(vertical string, total int, reading string) string {
	if reading == "" {
		return fmt.Sprintf("%s: %d sources gathered", vertical, total)
	}
	return fmt.Sprintf("%s: %d sources gathered, reading %q", vertical, total, reading)
}

const synthesisSystemPrompt = `You synthesize research corpora into report plans. Respond with exactly one JSON object: {"title": "...", "abstract": "...", "keyFindings": ["..."], "sections": ["..."]}. The abstract is about 300 words, keyFindings has 5-7 entries, sections has 10-15 ordered headings.`

// synthesize feeds a capped, truncated slice of the corpus to one call and
// falls back to a trivial vertical-derived structure on any failure.
func (o *Orchestrator) synthesize(ctx context.Context, query string, verticals []Vertical, sources []Source) synthesis {
	fallback := func() synthesis {
		s := synthesis{Title: query}
		for _, v := range verticals {
			s.Sections = append(s.Sections, v.Name)
		}
		return s
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Research question: %s\n\nGathered sources:\n", query)
	capped := sources
	if len(capped) > maxSynthesisSources {
		capped = capped[:maxSynthesisSources]
	}
	for i, s := range capped {
		text := s.FullText
		if text == "" {
			text = s.Snippet
		}
		if len(text) > synthesisTruncate {
			text = text[:synthesisTruncate]
		}
		fmt.Fprintf(&b, "%d. %s — %s\n", i+1, s.Title, text)
	}
	b.WriteString("\nPlan the report.")

	out, err := o.provider.Generate(ctx, synthesisSystemPrompt, b.String(), synthesisMaxTokens)
	if err != nil {
		o.log.Warn("synthesis call failed, using vertical-derived structure", "error", err)
		return fallback()
	}

	var synth synthesis
	if err := generate.DecodeJSON(out, &synth); err != nil {
		o.log.Warn("synthesis output unparseable, using vertical-derived structure", "error", err)
		return fallback()
	}
	if strings.TrimSpace(synth.Title) == "" {
		synth.Title = query
	}
	if len(synth.Sections) == 0 {
		synth.Sections = fallback().Sections
	}
	return synth
}

const sectionSystemPrompt = `You write one section of a research report at a time. Write 500-700 words of grounded prose. Cite sources strictly with inline [N] markers matching the numbered source list you are given; never invent numbers outside that list. Return only the section text.`

// generateSections writes each planned section sequentially, resolving its
// [N] markers against the numbered source list. A failed section is
// recorded with placeholder text and generation continues.
func (o *Orchestrator) generateSections(ctx context.Context, jobID, query string, synth synthesis, numbered []Source) []ReportSection {
	sections := make([]ReportSection, 0, len(synth.Sections))

	for i, heading := range synth.Sections {
		if !o.live(ctx, jobID) {
			return sections
		}

		selected := selectSources(numbered, heading, minMatchedSources, fallbackTopSources)

		var b strings.Builder
		fmt.Fprintf(&b, "Report: %s\nResearch question: %s\n", synth.Title, query)
		fmt.Fprintf(&b, "All sections, in order:\n- %s\n", strings.Join(synth.Sections, "\n- "))
		fmt.Fprintf(&b, "Write the section titled %q.\n\nNumbered sources:\n", heading)
		for _, s := range selected {
			text := s.FullText
			if text == "" {
				text = s.Snippet
			}
			if len(text) > synthesisTruncate {
				text = text[:synthesisTruncate]
			}
			fmt.Fprintf(&b, "[%d] %s — %s\n", s.Number, s.Title, text)
		}

		content, err := o.provider.Generate(ctx, sectionSystemPrompt, b.String(), sectionMaxTokens)
		if err != nil {
			o.log.Warn("section generation failed", "job_id", jobID, "heading", heading, "error", err)
			content = generate.ErrorContent
		}

		citations := extractCitations(content, len(numbered))
		var cited []Source
		var images []string
		for _, n := range citations {
			src := numbered[n-1]
			cited = append(cited, src)
			if src.Image != "" {
				images = append(images, src.Image)
			}
		}

		section := ReportSection{
			Heading:   heading,
			Content:   content,
			WordCount: countWords(content),
			Citations: citations,
			Sources:   cited,
			Images:    images,
		}
		sections = append(sections, section)

		if payload, merr := json.Marshal(section); merr == nil {
			_ = o.repo.AppendReadySection(ctx, jobID, job.ReadySection{
				SectionID: fmt.Sprintf("s%d", i+1),
				Content:   payload,
				Order:     i,
			})
		}
		_ = o.repo.UpdateProgress(ctx, jobID, job.Progress{
			Current: i + 1,
			Total:   len(synth.Sections),
			Message: fmt.Sprintf("wrote %q", heading),
			Phase:   "generating",
		})

		// Throttle provider call rate between sections.
		if o.sectionDelay > 0 && i < len(synth.Sections)-1 {
			select {
			case <-ctx.Done():
				return sections
			case <-time.After(o.sectionDelay):
			}
		}
	}
	return sections
}

func (o *Orchestrator) live(ctx context.Context, jobID string) bool {
	s, err := o.repo.StatusOf(ctx, jobID)
	if err != nil {
		return false
	}
	return !s.Terminal()
}
