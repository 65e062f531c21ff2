package job

import (
	"encoding/json"
	"time"
)

// StatusView is the read-only projection handed to polling clients. It
// computes nothing the stored record does not already imply.
type StatusView struct {
	ID      string `json:"id"`
	Type    Type   `json:"type"`
	Status  Status `json:"status"`
	OwnerID string `json:"ownerId"`

	Progress *Progress `json:"progress,omitempty"`

	Skeleton      json.RawMessage `json:"skeleton,omitempty"`
	ReadySections []ReadySection  `json:"readySections"`

	TotalSections     int `json:"totalSections"`
	CompletedSections int `json:"completedSections"`

	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// stubListKeys are the kind-specific fields a skeleton may carry its stub
// list under. Exactly one is populated per skeleton.
var stubListKeys = []string{"sections", "questions", "cards", "events", "items"}

// SkeletonSectionCount derives the declared section total from the skeleton
// snapshot alone.
func SkeletonSectionCount(skeleton []byte) int {
	if len(skeleton) == 0 {
		return 0
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(skeleton, &m); err != nil {
		return 0
	}
	for _, key := range stubListKeys {
		raw, ok := m[key]
		if !ok {
			continue
		}
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			continue
		}
		if len(list) > 0 {
			return len(list)
		}
	}
	return 0
}

// View projects a stored job into its client-facing shape.
func View(j *Job) *StatusView {
	v := &StatusView{
		ID:            j.ID,
		Type:          j.Type,
		Status:        j.Status,
		OwnerID:       j.OwnerID,
		Skeleton:      json.RawMessage(j.Skeleton),
		ReadySections: j.ReadySectionList(),
		Result:        json.RawMessage(j.Result),
		CreatedAt:     j.CreatedAt,
		StartedAt:     j.StartedAt,
		CompletedAt:   j.CompletedAt,
	}
	if v.ReadySections == nil {
		v.ReadySections = []ReadySection{}
	}
	if len(j.Progress) > 0 {
		var p Progress
		if err := json.Unmarshal(j.Progress, &p); err == nil {
			v.Progress = &p
		}
	}
	if j.Error != nil {
		v.Error = *j.Error
	}
	v.TotalSections = SkeletonSectionCount(j.Skeleton)
	v.CompletedSections = len(v.ReadySections)
	return v
}
