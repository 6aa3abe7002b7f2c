package scheduler

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrTrackerTransition = errors.New("scheduler: illegal tracker transition")

const TrackerVersion = 1

// Tracker records one execution attempt of a job, from the moment the
// checker queues it to its final outcome. Status only ever moves forward:
// QUEUED → RUNNING → SUCCESS or FAILED, and SUCCESS → EXPIRED once the
// result outlives its TTL.
type Tracker struct {
	ID          uuid.UUID
	JobID       uuid.UUID
	ScheduleID  uuid.NullUUID
	ScheduledOn time.Time
	RanOn       sql.NullTime
	Duration    int64 // milliseconds
	Status      TrackStatus
	ErrorString sql.NullString
	Version     int
}

// NewTracker queues a tracker for a job. scheduleID is zero for manual
// runs.
func NewTracker(clock Clock, jobID uuid.UUID, scheduleID uuid.NullUUID) *Tracker {
	return &Tracker{
		ID:          uuid.New(),
		JobID:       jobID,
		ScheduleID:  scheduleID,
		ScheduledOn: clock.Now(),
		Status:      Queued,
		Version:     TrackerVersion,
	}
}

// Start marks the execution as picked up by a worker.
func (t *Tracker) Start(clock Clock) error {
	if !t.Status.IsQueued() {
		return fmt.Errorf("%w: start from %s", ErrTrackerTransition, t.Status)
	}

	t.RanOn = sql.NullTime{Time: clock.Now(), Valid: true}
	t.Status = Running

	return nil
}

// Complete settles the execution with its outcome and runtime in
// milliseconds.
func (t *Tracker) Complete(success bool, durationMS int64, errString string) error {
	if !t.Status.IsRunning() {
		return fmt.Errorf("%w: complete from %s", ErrTrackerTransition, t.Status)
	}

	if success {
		t.Status = Success
	} else {
		t.Status = Failed
	}
	t.Duration = durationMS
	t.ErrorString = sql.NullString{String: errString, Valid: errString != ""}

	return nil
}

// CheckExpiration flips a SUCCESS tracker to EXPIRED once its result has
// outlived ttl, and reports whether it did so the caller knows to persist
// the change. There is no background sweep; every read path is expected
// to call this first.
func (t *Tracker) CheckExpiration(clock Clock, ttl time.Duration) bool {
	if !t.Status.IsSuccess() || !t.RanOn.Valid {
		return false
	}

	age := time.Duration(t.Duration)*time.Millisecond + clock.Now().Sub(t.RanOn.Time)
	if age > ttl {
		t.Status = Expired

		return true
	}

	return false
}

func (t *Tracker) String() string {
	return fmt.Sprintf("<Tracker %s: Job %s %s>", t.ID, t.JobID, t.Status)
}
