package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var _ workQueue = (*ExecutionQueue)(nil)

// ExecutionQueue hands execution requests to the workers through the
// executions table. The tracker id is the primary key, so a request can
// be admitted at most once no matter how many times the checker retries
// it.
type ExecutionQueue struct {
	db *sqlx.DB
}

func NewExecutionQueue(db *sqlx.DB) *ExecutionQueue {
	return &ExecutionQueue{db: db}
}

// Enqueue admits the request unless a request for the same tracker is
// already queued. It reports whether this call was the admitting one.
func (q *ExecutionQueue) Enqueue(ctx context.Context, req ExecutionRequest) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
			INSERT INTO executions (
				tracker_id,
				job_id,
				execute_timeout_ms,
				enqueue_ttl_ms,
				result_ttl_ms
			) VALUES (
				$1, $2, $3, $4, $5
			)
			ON CONFLICT (tracker_id) DO NOTHING
		`,
		req.TrackerID,
		req.JobID,
		req.ExecuteTimeout.Milliseconds(),
		req.EnqueueTTL.Milliseconds(),
		req.ResultTTL.Milliseconds(),
	)
	if err != nil {
		return false, fmt.Errorf("%w: failed to enqueue execution", err)
	}

	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return count == 1, nil
}

// Execution is a queued request as the workers see it.
type Execution struct {
	TrackerID      uuid.UUID      `db:"tracker_id"`
	JobID          uuid.UUID      `db:"job_id"`
	ExecuteTimeout int64          `db:"execute_timeout_ms"`
	EnqueueTTL     int64          `db:"enqueue_ttl_ms"`
	ResultTTL      int64          `db:"result_ttl_ms"`
	Result         sql.NullString `db:"result"`
	EnqueuedAt     time.Time      `db:"enqueued_at"`
}

// Expired reports whether the request sat unclaimed in the queue past its
// enqueue TTL.
func (e *Execution) Expired(clock Clock) bool {
	return clock.Now().Sub(e.EnqueuedAt) > time.Duration(e.EnqueueTTL)*time.Millisecond
}

func (q *ExecutionQueue) Find(ctx context.Context, trackerID uuid.UUID) (*Execution, error) {
	var exec Execution
	if err := q.db.GetContext(ctx, &exec, `
		SELECT *
		FROM executions
		WHERE tracker_id = $1
	`, trackerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: execution %s", ErrNotFound, trackerID)
		}

		return nil, fmt.Errorf("%w: failed to find execution", err)
	}

	return &exec, nil
}

// SetResult stores the worker's output for the tracker's execution.
func (q *ExecutionQueue) SetResult(ctx context.Context, trackerID uuid.UUID, result string) error {
	res, err := q.db.ExecContext(ctx, `
			UPDATE executions
			SET result = $1
			WHERE tracker_id = $2
		`,
		result,
		trackerID,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to set execution result", err)
	}

	return checkUpdated(res)
}
