package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/quillforge/engine/internal/logger"
)

type noopQueue struct {
	enqueued []string
}

func (q *noopQueue) Enqueue(ctx context.Context, jobID string) error {
	q.enqueued = append(q.enqueued, jobID)
	return nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Job{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestManager(t *testing.T, ownerCap int) (*Manager, *Repo, *gorm.DB) {
	t.Helper()
	db := openTestDB(t)
	repo := NewRepo(db)
	m := NewManager(repo, &noopQueue{}, nil, logger.NewNop(), ownerCap, 24*time.Hour)
	return m, repo, db
}

func outlineParams(query string) json.RawMessage {
	return RawParams(OutlineParams{Query: query, ContentKind: KindArticle})
}

func TestSubmit_StatusQueuedImmediately(t *testing.T) {
	m, _, _ := newTestManager(t, 5)

	id, err := m.Submit(context.Background(), "owner1", TypeOutlineDocument, outlineParams("Photosynthesis"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	v, err := m.GetStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if v.Status != StatusQueued {
		t.Fatalf("expected queued, got %s", v.Status)
	}
	if v.TotalSections != 0 || v.CompletedSections != 0 {
		t.Fatalf("expected zero section counts before skeleton, got %d/%d",
			v.CompletedSections, v.TotalSections)
	}
	if v.ReadySections == nil {
		t.Fatalf("readySections should be an empty list, not nil")
	}
}

func TestSubmit_Validation(t *testing.T) {
	m, _, _ := newTestManager(t, 5)
	ctx := context.Background()

	cases := []struct {
		name   string
		owner  string
		typ    Type
		params json.RawMessage
	}{
		{"missing owner", "", TypeOutlineDocument, outlineParams("x")},
		{"missing params", "owner1", TypeOutlineDocument, nil},
		{"unknown type", "owner1", Type("make_sandwich"), outlineParams("x")},
		{"empty query", "owner1", TypeOutlineDocument, RawParams(OutlineParams{ContentKind: KindArticle})},
		{"bad kind", "owner1", TypeOutlineDocument, RawParams(OutlineParams{Query: "x", ContentKind: "sonnet"})},
		{"research empty query", "owner1", TypeDeepResearch, RawParams(ResearchParams{})},
	}
	for _, tc := range cases {
		if _, err := m.Submit(ctx, tc.owner, tc.typ, tc.params); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected ErrValidation, got %v", tc.name, err)
		}
	}
}

func TestSubmit_CapacityCap(t *testing.T) {
	ownerCap := 3
	m, _, _ := newTestManager(t, ownerCap)
	ctx := context.Background()

	for i := 0; i < ownerCap; i++ {
		if _, err := m.Submit(ctx, "owner1", TypeOutlineDocument, outlineParams("topic")); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	if _, err := m.Submit(ctx, "owner1", TypeOutlineDocument, outlineParams("topic")); !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected ErrCapacity on submission %d, got %v", ownerCap+1, err)
	}

	// A different owner is unaffected.
	if _, err := m.Submit(ctx, "owner2", TypeOutlineDocument, outlineParams("topic")); err != nil {
		t.Fatalf("other owner submit: %v", err)
	}
}

func TestSubmit_CapFreesOnTerminal(t *testing.T) {
	m, repo, _ := newTestManager(t, 1)
	ctx := context.Background()

	id, err := m.Submit(ctx, "owner1", TypeOutlineDocument, outlineParams("topic"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := m.Submit(ctx, "owner1", TypeOutlineDocument, outlineParams("topic")); !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}

	if _, err := repo.MarkError(ctx, id, "boom"); err != nil {
		t.Fatalf("mark error: %v", err)
	}
	if _, err := m.Submit(ctx, "owner1", TypeOutlineDocument, outlineParams("topic")); err != nil {
		t.Fatalf("submit after terminal: %v", err)
	}
}

func TestCancel_SecondCallAlreadyFinished(t *testing.T) {
	m, _, _ := newTestManager(t, 5)
	ctx := context.Background()

	id, err := m.Submit(ctx, "owner1", TypeOutlineDocument, outlineParams("topic"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := m.Cancel(ctx, id); err != nil {
		t.Fatalf("first cancel: %v", err)
	}

	v, err := m.GetStatus(ctx, id)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if v.Status != StatusError {
		t.Fatalf("expected error status, got %s", v.Status)
	}
	if v.Error != "cancelled by user" {
		t.Fatalf("unexpected cancel reason: %q", v.Error)
	}

	if err := m.Cancel(ctx, id); !errors.Is(err, ErrAlreadyFinished) {
		t.Fatalf("expected ErrAlreadyFinished, got %v", err)
	}
}

func TestCancel_NotFound(t *testing.T) {
	m, _, _ := newTestManager(t, 5)
	if err := m.Cancel(context.Background(), "01NOPE0000000000000000000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestList_MostRecentFirst(t *testing.T) {
	m, _, db := newTestManager(t, 10)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := m.Submit(ctx, "owner1", TypeOutlineDocument, outlineParams("topic"))
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		// Spread creation times so ordering is deterministic.
		created := time.Now().Add(time.Duration(i-3) * time.Minute)
		if err := db.Model(&Job{}).Where("id = ?", id).Update("created_at", created).Error; err != nil {
			t.Fatalf("backdate: %v", err)
		}
		ids = append(ids, id)
	}

	jobs, err := m.List(ctx, "owner1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != ids[2] || jobs[2].ID != ids[0] {
		t.Fatalf("expected most-recent-first order, got %s %s %s", jobs[0].ID, jobs[1].ID, jobs[2].ID)
	}
}

func TestResumeInterrupted_ReenqueuesPersistedWork(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	// Jobs left behind by a previous process, one per non-terminal status,
	// plus a finished one that must stay untouched.
	statuses := []Status{StatusQueued, StatusProcessing, StatusSkeletonReady}
	var want []string
	for _, s := range statuses {
		j := &Job{
			ID:      NewID(),
			Type:    TypeOutlineDocument,
			OwnerID: "owner1",
			Status:  s,
			Params:  JSON(outlineParams("topic")),
		}
		if err := repo.Create(ctx, j); err != nil {
			t.Fatalf("create %s: %v", s, err)
		}
		want = append(want, j.ID)
	}
	done := &Job{
		ID:      NewID(),
		Type:    TypeOutlineDocument,
		OwnerID: "owner1",
		Status:  StatusComplete,
		Params:  JSON(outlineParams("topic")),
	}
	if err := repo.Create(ctx, done); err != nil {
		t.Fatalf("create complete: %v", err)
	}

	// A fresh manager, as after a restart.
	q := &noopQueue{}
	m := NewManager(repo, q, nil, logger.NewNop(), 5, 24*time.Hour)
	if err := m.ResumeInterrupted(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}

	if len(q.enqueued) != len(want) {
		t.Fatalf("expected %d re-enqueued jobs, got %d", len(want), len(q.enqueued))
	}
	enqueued := make(map[string]bool, len(q.enqueued))
	for _, id := range q.enqueued {
		enqueued[id] = true
	}
	for _, id := range want {
		if !enqueued[id] {
			t.Fatalf("job %s not re-enqueued", id)
		}
	}
	if enqueued[done.ID] {
		t.Fatalf("terminal job re-enqueued")
	}
}

func TestRetention_SweepDeletesExpired(t *testing.T) {
	m, _, db := newTestManager(t, 5)
	ctx := context.Background()

	fresh, err := m.Submit(ctx, "owner1", TypeOutlineDocument, outlineParams("topic"))
	if err != nil {
		t.Fatalf("submit fresh: %v", err)
	}
	stale, err := m.Submit(ctx, "owner1", TypeOutlineDocument, outlineParams("topic"))
	if err != nil {
		t.Fatalf("submit stale: %v", err)
	}

	old := time.Now().Add(-25 * time.Hour)
	if err := db.Model(&Job{}).Where("id = ?", stale).Update("created_at", old).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}

	m.SweepExpired(ctx)

	if _, err := m.GetStatus(ctx, stale); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected stale job gone, got %v", err)
	}
	if _, err := m.GetStatus(ctx, fresh); err != nil {
		t.Fatalf("fresh job should survive: %v", err)
	}

	jobs, err := m.List(ctx, "owner1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != fresh {
		t.Fatalf("expected only fresh job listed, got %d", len(jobs))
	}
}
