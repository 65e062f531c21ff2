package job

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/quillforge/engine/internal/logger"
)

// Enqueuer hands accepted jobs to whatever executes them: an in-process
// worker pool or a broker publisher.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string) error
}

// StatusCache is an optional short-TTL cache in front of the polling read
// path. Implemented by the redis store; nil disables caching.
type StatusCache interface {
	Get(ctx context.Context, jobID string) ([]byte, bool)
	Set(ctx context.Context, jobID string, view []byte)
	Del(ctx context.Context, jobID string)
}

// Manager accepts submissions, enforces the per-owner cap, and serves the
// status read path. It holds no authoritative in-memory state; a restarted
// manager continues from whatever the store says.
type Manager struct {
	repo     *Repo
	queue    Enqueuer
	cache    StatusCache
	log      *logger.Logger
	ownerCap int
	ttl      time.Duration
}

func NewManager(repo *Repo, queue Enqueuer, cache StatusCache, log *logger.Logger, ownerCap int, ttl time.Duration) *Manager {
	if ownerCap <= 0 {
		ownerCap = 5
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{
		repo:     repo,
		queue:    queue,
		cache:    cache,
		log:      log.With("component", "JobManager"),
		ownerCap: ownerCap,
		ttl:      ttl,
	}
}

// Submit validates, persists a queued record, and schedules execution. It
// returns as soon as the record is durable; generation happens elsewhere.
func (m *Manager) Submit(ctx context.Context, ownerID string, t Type, params json.RawMessage) (string, error) {
	if strings.TrimSpace(ownerID) == "" {
		return "", fmt.Errorf("%w: ownerId is required", ErrValidation)
	}
	if t == "" {
		return "", fmt.Errorf("%w: type is required", ErrValidation)
	}
	if len(params) == 0 {
		return "", fmt.Errorf("%w: params are required", ErrValidation)
	}
	if err := ValidateParams(t, params); err != nil {
		return "", err
	}

	active, err := m.repo.CountActive(ctx, ownerID)
	if err != nil {
		return "", err
	}
	if active >= int64(m.ownerCap) {
		return "", fmt.Errorf("%w: %d active jobs (cap %d)", ErrCapacity, active, m.ownerCap)
	}

	progress, err := MarshalValue(Progress{Message: "queued"})
	if err != nil {
		return "", err
	}

	j := &Job{
		ID:       NewID(),
		Type:     t,
		OwnerID:  ownerID,
		Status:   StatusQueued,
		Params:   JSON(params),
		Progress: progress,
	}
	if err := m.repo.Create(ctx, j); err != nil {
		return "", err
	}

	if err := m.queue.Enqueue(ctx, j.ID); err != nil {
		// The record exists but will never run; fail it so pollers are not
		// left watching a queued job forever.
		_, _ = m.repo.MarkError(ctx, j.ID, "failed to schedule job")
		m.log.Error("enqueue failed", "job_id", j.ID, "error", err)
		return "", err
	}

	m.log.Info("job accepted", "job_id", j.ID, "type", t, "owner_id", ownerID)
	return j.ID, nil
}

// GetStatus returns the current projection for a job.
func (m *Manager) GetStatus(ctx context.Context, jobID string) (*StatusView, error) {
	if m.cache != nil {
		if b, ok := m.cache.Get(ctx, jobID); ok {
			var v StatusView
			if err := json.Unmarshal(b, &v); err == nil {
				return &v, nil
			}
		}
	}

	j, err := m.repo.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	v := View(j)

	if m.cache != nil {
		if b, err := json.Marshal(v); err == nil {
			m.cache.Set(ctx, jobID, b)
		}
	}
	return v, nil
}

// Cancel transitions a live job straight to error. The background task is
// not interrupted; it notices the terminal status on its next write.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	j, err := m.repo.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status.Terminal() {
		return ErrAlreadyFinished
	}
	updated, err := m.repo.MarkError(ctx, jobID, "cancelled by user")
	if err != nil {
		return err
	}
	if !updated {
		// Lost the race with the job finishing on its own.
		return ErrAlreadyFinished
	}
	if m.cache != nil {
		m.cache.Del(ctx, jobID)
	}
	m.log.Info("job cancelled", "job_id", jobID)
	return nil
}

// ResumeInterrupted re-enqueues persisted jobs a previous process accepted
// but never finished. Needed in single-binary mode, where the work queue is
// in-memory and dies with the process; a broker retains its own messages.
// Re-running a partially generated job is safe: section appends are
// idempotent on SectionID and terminal jobs freeze.
func (m *Manager) ResumeInterrupted(ctx context.Context) error {
	ids, err := m.repo.IDsByStatus(ctx, StatusQueued, StatusProcessing, StatusSkeletonReady)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := m.queue.Enqueue(ctx, id); err != nil {
			m.log.Error("resume enqueue failed", "job_id", id, "error", err)
			return err
		}
	}
	if len(ids) > 0 {
		m.log.Info("resumed interrupted jobs", "count", len(ids))
	}
	return nil
}

// List returns the owner's jobs, most recent first.
func (m *Manager) List(ctx context.Context, ownerID string, limit int) ([]Job, error) {
	return m.repo.ListByOwner(ctx, ownerID, limit)
}

// SweepExpired deletes jobs older than the retention TTL regardless of
// status.
func (m *Manager) SweepExpired(ctx context.Context) {
	n, err := m.repo.DeleteOlderThan(ctx, time.Now().Add(-m.ttl))
	if err != nil {
		m.log.Warn("retention sweep failed", "error", err)
		return
	}
	if n > 0 {
		m.log.Info("retention sweep", "deleted", n)
	}
}

// StartRetention sweeps once immediately and then on a ticker until the
// context ends.
func (m *Manager) StartRetention(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	m.SweepExpired(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.SweepExpired(ctx)
			}
		}
	}()
}
