package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docreader/constants"
)

// ProcessingJob tracks one unit of pipeline work against a document.
// Options and Metadata are kept as raw JSON; callers decode what they need.
type ProcessingJob struct {
	ID          uuid.UUID           `json:"id" sql:"id"`
	DocumentID  uuid.UUID           `json:"document_id" sql:"document_id"`
	Kind        constants.JobKind   `json:"kind" sql:"kind"`
	Status      constants.JobStatus `json:"status" sql:"status"`
	Progress    int64               `json:"progress" sql:"progress"`
	Options     JSON                `json:"options,omitempty" sql:"options"`
	Metadata    JSON                `json:"metadata,omitempty" sql:"metadata"`
	Error       *string             `json:"error,omitempty" sql:"error"`
	CreatedAt   time.Time           `json:"created_at" sql:"created_at"`
	StartedAt   *time.Time          `json:"started_at,omitempty" sql:"started_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty" sql:"completed_at"`
	UpdatedAt   time.Time           `json:"updated_at" sql:"updated_at"`
}

// MetadataMap decodes Metadata; an empty or invalid payload yields an empty map.
func (j *ProcessingJob) MetadataMap() map[string]any {
	m := map[string]any{}
	if err := j.Metadata.Decode(&m); err != nil {
		return map[string]any{}
	}
	return m
}
