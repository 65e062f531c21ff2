package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/quillforge/engine/internal/generate"
	"github.com/quillforge/engine/internal/job"
	"github.com/quillforge/engine/internal/logger"
	"github.com/quillforge/engine/internal/research"
	"github.com/quillforge/engine/internal/search"
)

// textProvider returns fixed text for outline calls and errors for
// research planning/synthesis so research jobs take the fallback path.
type textProvider struct{}

func (textProvider) Generate(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	if strings.Contains(systemPrompt, "decompose research questions") ||
		strings.Contains(systemPrompt, "synthesize research corpora") {
		return "", errors.New("unavailable")
	}
	return "plain text output", nil
}

type emptyWeb struct{}

func (emptyWeb) Search(ctx context.Context, query string, count int) ([]search.WebResult, error) {
	return nil, nil
}

func newExecutor(t *testing.T) (*Executor, *job.Repo) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&job.Job{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	repo := job.NewRepo(db)
	log := logger.NewNop()
	outline := generate.NewGenerator(repo, textProvider{}, log, 3)
	orchestrator := research.NewOrchestrator(repo, textProvider{}, emptyWeb{}, nil, nil, log, 0)
	return New(repo, outline, orchestrator, log), repo
}

func queueJob(t *testing.T, repo *job.Repo, typ job.Type, params any) *job.Job {
	t.Helper()
	j := &job.Job{
		ID:      job.NewID(),
		Type:    typ,
		OwnerID: "owner1",
		Status:  job.StatusQueued,
		Params:  job.JSON(job.RawParams(params)),
	}
	if err := repo.Create(context.Background(), j); err != nil {
		t.Fatalf("create: %v", err)
	}
	return j
}

func TestExecute_OutlineJobCompletes(t *testing.T) {
	exec, repo := newExecutor(t)
	j := queueJob(t, repo, job.TypeOutlineDocument, job.OutlineParams{Query: "topic", ContentKind: job.KindArticle})

	if err := exec.Execute(context.Background(), j.ID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got, _ := repo.Get(context.Background(), j.ID)
	if got.Status != job.StatusComplete {
		t.Fatalf("expected complete, got %s", got.Status)
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Fatalf("timestamps not recorded")
	}
	var result map[string]any
	if err := json.Unmarshal(got.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result["content"] != "plain text output" {
		t.Fatalf("unexpected result: %v", result)
	}
}

func TestExecute_ResearchJobCompletes(t *testing.T) {
	exec, repo := newExecutor(t)
	j := queueJob(t, repo, job.TypeDeepResearch, job.ResearchParams{Query: "topic"})

	if err := exec.Execute(context.Background(), j.ID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got, _ := repo.Get(context.Background(), j.ID)
	if got.Status != job.StatusComplete {
		t.Fatalf("expected complete, got %s", got.Status)
	}
}

func TestExecute_UnknownTypeMarksError(t *testing.T) {
	exec, repo := newExecutor(t)
	j := queueJob(t, repo, job.Type("bogus"), map[string]string{"query": "x"})

	err := exec.Execute(context.Background(), j.ID)
	if err == nil {
		t.Fatalf("expected error for unknown type")
	}

	got, _ := repo.Get(context.Background(), j.ID)
	if got.Status != job.StatusError {
		t.Fatalf("expected error status, got %s", got.Status)
	}
	if got.Error == nil || !strings.Contains(*got.Error, "unknown job type") {
		t.Fatalf("error not recorded: %v", got.Error)
	}
}

func TestExecute_CancelledBeforePickupIsNoop(t *testing.T) {
	exec, repo := newExecutor(t)
	j := queueJob(t, repo, job.TypeOutlineDocument, job.OutlineParams{Query: "topic"})

	if _, err := repo.MarkError(context.Background(), j.ID, "cancelled by user"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if err := exec.Execute(context.Background(), j.ID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got, _ := repo.Get(context.Background(), j.ID)
	if got.Status != job.StatusError || got.Error == nil || *got.Error != "cancelled by user" {
		t.Fatalf("cancelled state overwritten: %s", got.Status)
	}
}

func TestExecute_MissingJob(t *testing.T) {
	exec, _ := newExecutor(t)
	err := exec.Execute(context.Background(), job.NewID())
	if !errors.Is(err, job.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
