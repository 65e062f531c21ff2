package job

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"
)

var terminalStatuses = []Status{StatusComplete, StatusError}

// Repo is the only component that touches persisted job state. All mutating
// queries are guarded so terminal jobs are never written again; a background
// task whose job was cancelled simply sees its writes no-op.
type Repo struct {
	db *gorm.DB

	// Per-job locks serialize read-modify-write of the ready sections
	// column; neither sqlite nor mysql has a portable list-append.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db, locks: make(map[string]*sync.Mutex)}
}

func (r *Repo) lockFor(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}

func (r *Repo) Create(ctx context.Context, j *Job) error {
	return r.db.WithContext(ctx).Create(j).Error
}

func (r *Repo) Get(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

// StatusOf is a light point read used for cooperative cancellation checks.
func (r *Repo) StatusOf(ctx context.Context, id string) (Status, error) {
	var j Job
	if err := r.db.WithContext(ctx).Select("status").First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return j.Status, nil
}

// CountActive counts the owner's jobs that still occupy a worker slot.
func (r *Repo) CountActive(ctx context.Context, ownerID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Job{}).
		Where("owner_id = ? AND status NOT IN ?", ownerID, terminalStatuses).
		Count(&n).Error
	return n, err
}

func (r *Repo) ListByOwner(ctx context.Context, ownerID string, limit int) ([]Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var jobs []Job
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// IDsByStatus returns job ids in any of the given statuses, oldest first.
// Used on startup to re-drive work that was accepted but never finished.
func (r *Repo) IDsByStatus(ctx context.Context, statuses ...Status) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&Job{}).
		Where("status IN ?", statuses).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *Repo) MarkProcessing(ctx context.Context, id string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, StatusQueued).
		Updates(map[string]any{
			"status":     StatusProcessing,
			"started_at": now,
		}).Error
}

// SetSkeleton writes the outline artifact and advances the job to
// skeleton_ready, the first point at which a polling client sees anything.
func (r *Repo) SetSkeleton(ctx context.Context, id string, skeleton JSON) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses).
		Updates(map[string]any{
			"status":   StatusSkeletonReady,
			"skeleton": skeleton,
		}).Error
}

func (r *Repo) UpdateProgress(ctx context.Context, id string, p Progress) error {
	v, err := MarshalValue(p)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses).
		Update("progress", v).Error
}

// AppendReadySection appends one completed section under the job's lock so
// two sections finishing in the same instant cannot clobber each other. The
// append is idempotent on SectionID: a redelivered job re-runs from scratch,
// and its sections must not land twice.
func (r *Repo) AppendReadySection(ctx context.Context, id string, s ReadySection) error {
	l := r.lockFor(id)
	l.Lock()
	defer l.Unlock()

	j, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if j.Status.Terminal() {
		return nil
	}

	sections := j.ReadySectionList()
	for _, existing := range sections {
		if existing.SectionID == s.SectionID {
			return nil
		}
	}
	sections = append(sections, s)
	v, err := MarshalValue(sections)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses).
		Update("ready_sections", v).Error
}

// MarkComplete writes the final artifact. Returns false when the job was
// already terminal (e.g. cancelled while generating) and nothing was written.
func (r *Repo) MarkComplete(ctx context.Context, id string, result JSON) (bool, error) {
	now := time.Now()
	tx := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses).
		Updates(map[string]any{
			"status":       StatusComplete,
			"result":       result,
			"error":        nil,
			"completed_at": now,
		})
	return tx.RowsAffected > 0, tx.Error
}

func (r *Repo) MarkError(ctx context.Context, id string, reason string) (bool, error) {
	now := time.Now()
	tx := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses).
		Updates(map[string]any{
			"status":       StatusError,
			"error":        reason,
			"result":       nil,
			"completed_at": now,
		})
	return tx.RowsAffected > 0, tx.Error
}

// DeleteOlderThan removes all jobs created before the cutoff, regardless of
// status. Pure cleanup; also drops any per-job locks that can no longer be
// used.
func (r *Repo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var expired []Job
	if err := r.db.WithContext(ctx).Select("id").
		Where("created_at < ?", cutoff).
		Find(&expired).Error; err != nil {
		return 0, err
	}
	tx := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&Job{})
	if tx.Error != nil {
		return 0, tx.Error
	}
	r.mu.Lock()
	for _, j := range expired {
		delete(r.locks, j.ID)
	}
	r.mu.Unlock()
	return tx.RowsAffected, nil
}

// rawMessage is a convenience for building params in tests and callers.
func RawParams(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
