package job

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

type Status string

const (
	StatusQueued        Status = "queued"
	StatusProcessing    Status = "processing"
	StatusSkeletonReady Status = "skeleton_ready"
	StatusComplete      Status = "complete"
	StatusError         Status = "error"
)

// Terminal reports whether no further transitions may happen.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

type Type string

const (
	TypeOutlineDocument Type = "generate_outline_document"
	TypeDeepResearch    Type = "deep_research"
)

// Progress is coarse-grained and overwritten whole on each update.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
	Phase   string `json:"phase,omitempty"`
}

// ReadySection is one completed unit of progressive work.
type ReadySection struct {
	SectionID string          `json:"sectionId"`
	Content   json.RawMessage `json:"content"`
	Order     int             `json:"order"`
}

// JSON stores an opaque JSON document in a text column.
type JSON json.RawMessage

func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(value any) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append(JSON(nil), v...)
	case string:
		*j = JSON(v)
	default:
		return fmt.Errorf("job: cannot scan %T into JSON", value)
	}
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return errors.New("job: UnmarshalJSON on nil JSON")
	}
	*j = append((*j)[:0], data...)
	return nil
}

// MarshalValue marshals v into a JSON column value.
func MarshalValue(v any) (JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return JSON(b), nil
}

type Job struct {
	ID      string `gorm:"primaryKey;size:26" json:"id"` // ULID length
	Type    Type   `gorm:"type:varchar(40);index;not null" json:"type"`
	OwnerID string `gorm:"type:varchar(64);index;not null" json:"ownerId"`
	Status  Status `gorm:"type:varchar(16);index;not null" json:"status"`

	Params JSON `gorm:"type:text" json:"params,omitempty"`

	Progress      JSON `gorm:"type:text" json:"progress,omitempty"`
	Skeleton      JSON `gorm:"type:text" json:"skeleton,omitempty"`
	ReadySections JSON `gorm:"type:text" json:"readySections,omitempty"`

	// Filled when complete
	Result JSON `gorm:"type:text" json:"result,omitempty"`

	// Filled when errored
	Error *string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt   time.Time  `gorm:"index" json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func (Job) TableName() string { return "content_jobs" }

// ReadySectionList decodes the append-only ready sections column.
func (j *Job) ReadySectionList() []ReadySection {
	if len(j.ReadySections) == 0 {
		return nil
	}
	var out []ReadySection
	if err := json.Unmarshal(j.ReadySections, &out); err != nil {
		return nil
	}
	return out
}

func NewID() string {
	return ulid.Make().String()
}
