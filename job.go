package scheduler

import (
	"time"

	"github.com/google/uuid"
)

// Job is the stored query definition a schedule fires. The scheduler
// only ever reads it; everything else about jobs lives in the web layer.
type Job struct {
	ID           uuid.UUID
	Name         string
	QueryString  string
	ConnectionID uuid.NullUUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsActive reports whether the job can run: a job with no connection
// attached has nothing to run against.
func (j *Job) IsActive() bool {
	return j.ConnectionID.Valid
}
