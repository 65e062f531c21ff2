package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/quillforge/engine/internal/generate"
	"github.com/quillforge/engine/internal/job"
	"github.com/quillforge/engine/internal/logger"
	"github.com/quillforge/engine/internal/research"
)

// Executor runs one job to completion. It is the only writer of a job's
// terminal state besides Cancel; provider failures inside it never reach
// the submitter, they end up in the job's error field or are absorbed.
type Executor struct {
	repo     *job.Repo
	outline  *generate.Generator
	research *research.Orchestrator
	log      *logger.Logger
}

func New(repo *job.Repo, outline *generate.Generator, orchestrator *research.Orchestrator, log *logger.Logger) *Executor {
	return &Executor{
		repo:     repo,
		outline:  outline,
		research: orchestrator,
		log:      log.With("component", "Executor"),
	}
}

// Execute claims a queued job and dispatches by type. Errors returned here
// are already recorded on the job; callers only need them for ack/nack
// decisions.
func (e *Executor) Execute(ctx context.Context, jobID string) error {
	start := time.Now()

	if err := e.repo.MarkProcessing(ctx, jobID); err != nil {
		return err
	}

	j, err := e.repo.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status.Terminal() {
		// Cancelled (or swept) between enqueue and pickup.
		return nil
	}

	switch j.Type {
	case job.TypeOutlineDocument:
		err = e.outline.Run(ctx, j)
	case job.TypeDeepResearch:
		err = e.research.Run(ctx, j)
	default:
		err = fmt.Errorf("unknown job type %q", j.Type)
	}

	if err != nil {
		_, _ = e.repo.MarkError(ctx, jobID, err.Error())
		e.log.Error("job failed", "job_id", jobID, "type", j.Type,
			"cost", time.Since(start).String(), "error", err)
		return err
	}

	e.log.Info("job done", "job_id", jobID, "type", j.Type,
		"cost", time.Since(start).String())
	return nil
}
