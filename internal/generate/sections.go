package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/quillforge/engine/internal/job"
	"github.com/quillforge/engine/internal/llm"
	"github.com/quillforge/engine/internal/logger"
)

const (
	skeletonMaxTokens   = 400
	sectionMaxTokens    = 900
	singlePassMaxTokens = 2000
)

// Generator runs generate_outline_document jobs: skeleton first, then one
// generation task per stub with bounded concurrency, then ordered assembly.
type Generator struct {
	repo      *job.Repo
	provider  llm.Provider
	log       *logger.Logger
	batchSize int
}

func NewGenerator(repo *job.Repo, provider llm.Provider, log *logger.Logger, batchSize int) *Generator {
	if batchSize <= 0 {
		batchSize = 3
	}
	return &Generator{
		repo:      repo,
		provider:  provider,
		log:       log.With("component", "SectionGenerator"),
		batchSize: batchSize,
	}
}

// sectionPayload is what lands in readySections for each completed stub.
type sectionPayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Run executes one job to completion. The returned error is a total,
// permanent failure; per-section failures are absorbed into placeholder
// content instead.
func (g *Generator) Run(ctx context.Context, j *job.Job) error {
	if g.provider == nil {
		return errors.New("no text generation provider configured")
	}

	var p job.OutlineParams
	if err := json.Unmarshal(j.Params, &p); err != nil {
		return fmt.Errorf("params: %w", err)
	}

	sk := g.BuildSkeleton(ctx, p)
	if sk == nil {
		// No skeleton is not an error: fall through to one full-document
		// call with nothing progressive about it.
		return g.singlePass(ctx, j.ID, p)
	}

	skJSON, err := job.MarshalValue(sk)
	if err != nil {
		return err
	}
	if err := g.repo.SetSkeleton(ctx, j.ID, skJSON); err != nil {
		return err
	}

	stubs := sk.Stubs()
	siblings := make([]string, len(stubs))
	for i, s := range stubs {
		siblings[i] = s.Title
	}

	results := make([]string, len(stubs))
	var done atomic.Int64

	_ = g.repo.UpdateProgress(ctx, j.ID, job.Progress{
		Current: 0,
		Total:   len(stubs),
		Message: "generating sections",
		Phase:   "generating",
	})

	for start := 0; start < len(stubs); start += g.batchSize {
		end := start + g.batchSize
		if end > len(stubs) {
			end = len(stubs)
		}

		var eg errgroup.Group
		for i := start; i < end; i++ {
			i := i
			stub := stubs[i]
			eg.Go(func() error {
				content, err := g.generateSection(ctx, sk.Title, stub.Title, siblings, p)
				if err != nil {
					g.log.Warn("section generation failed",
						"job_id", j.ID, "section", stub.ID, "error", err)
					content = ErrorContent
				}
				results[i] = content

				if !g.live(ctx, j.ID) {
					return nil
				}
				payload, merr := json.Marshal(sectionPayload{Title: stub.Title, Content: content})
				if merr != nil {
					return nil
				}
				if aerr := g.repo.AppendReadySection(ctx, j.ID, job.ReadySection{
					SectionID: stub.ID,
					Content:   payload,
					Order:     i,
				}); aerr != nil {
					g.log.Warn("ready section write failed", "job_id", j.ID, "error", aerr)
				}
				_ = g.repo.UpdateProgress(ctx, j.ID, job.Progress{
					Current: int(done.Add(1)),
					Total:   len(stubs),
					Message: fmt.Sprintf("completed %q", stub.Title),
					Phase:   "generating",
				})
				return nil
			})
		}
		_ = eg.Wait()

		if !g.live(ctx, j.ID) {
			g.log.Info("job no longer live, skipping remaining sections", "job_id", j.ID)
			return nil
		}
	}

	// Final assembly restores declared skeleton order regardless of the
	// order sections finished in.
	assembled := *sk
	filled := make([]Stub, len(stubs))
	copy(filled, stubs)
	for i := range filled {
		filled[i].Content = results[i]
	}
	assembled.setStubs(filled)

	result, err := job.MarshalValue(&assembled)
	if err != nil {
		return err
	}
	if _, err := g.repo.MarkComplete(ctx, j.ID, result); err != nil {
		return err
	}
	g.log.Info("job complete", "job_id", j.ID, "sections", len(stubs))
	return nil
}

// singlePass generates the whole document in one call when no skeleton
// could be produced.
func (g *Generator) singlePass(ctx context.Context, jobID string, p job.OutlineParams) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Write complete %s content about: %s\n", kindOrDefault(p.ContentKind), p.Query)
	if p.SupportingText != "" {
		fmt.Fprintf(&b, "Use this supporting material:\n%s\n", truncate(p.SupportingText, 4000))
	}

	out, err := g.provider.Generate(ctx, "You write well-structured content.", b.String(), singlePassMaxTokens)
	if err != nil {
		return err
	}

	result, err := job.MarshalValue(map[string]any{
		"title":   p.Query,
		"kind":    kindOrDefault(p.ContentKind),
		"content": out,
	})
	if err != nil {
		return err
	}
	_, err = g.repo.MarkComplete(ctx, jobID, result)
	return err
}

func (g *Generator) generateSection(ctx context.Context, docTitle, stubTitle string, siblings []string, p job.OutlineParams) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Document: %s\n", docTitle)
	fmt.Fprintf(&b, "Original request: %s\n", p.Query)
	fmt.Fprintf(&b, "All sections, in order:\n- %s\n", strings.Join(siblings, "\n- "))
	fmt.Fprintf(&b, "Write only the content for the section titled %q.", stubTitle)
	if p.SupportingText != "" {
		fmt.Fprintf(&b, "\nSupporting material:\n%s", truncate(p.SupportingText, 2000))
	}

	system := fmt.Sprintf("You write one %s section at a time, aware of the overall document structure. Return only the section content.",
		kindOrDefault(p.ContentKind))
	return g.provider.Generate(ctx, system, b.String(), sectionMaxTokens)
}

// live reports whether the job is still worth writing to. A cancelled job
// is terminal; its in-flight calls are ignored rather than aborted.
func (g *Generator) live(ctx context.Context, jobID string) bool {
	s, err := g.repo.StatusOf(ctx, jobID)
	if err != nil {
		return false
	}
	return !s.Terminal()
}
