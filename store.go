package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	_ "embed"
)

//go:embed migration.sql
var migration string

var (
	ErrNotFound   = errors.New("store: not found")
	ErrNotUpdated = errors.New("store: not updated")
)

var _ checkerStore = (*Store)(nil)

// Store is the postgres persistence layer for jobs, schedules and
// trackers.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin migration", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration); err != nil {
		return fmt.Errorf("%w: failed to apply migration", err)
	}

	return tx.Commit()
}

// scheduleRow is the flat column shape of a schedule. The recurrence
// variant is split into one column per field on the way in and rebuilt on
// the way out.
type scheduleRow struct {
	ID           uuid.UUID    `db:"id"`
	JobID        uuid.UUID    `db:"job_id"`
	UserID       uuid.UUID    `db:"user_id"`
	ScheduleType ScheduleType `db:"schedule_type"`
	MinuteOfHour int          `db:"minute_of_hour"`
	HourOfDay    int          `db:"hour_of_day"`
	DayOfWeek    int          `db:"day_of_week"`
	DayOfMonth   int          `db:"day_of_month"`
	NextRun      sql.NullTime `db:"next_run"`
	IsActive     bool         `db:"is_active"`
	IsDeleted    bool         `db:"is_deleted"`
	CreatedOn    time.Time    `db:"created_on"`
	LastUpdated  time.Time    `db:"last_updated"`
	Version      int          `db:"version"`
}

func (r scheduleRow) toDomain() (*Schedule, error) {
	rec, err := NewRecurrence(r.ScheduleType, r.MinuteOfHour, r.HourOfDay, r.DayOfWeek, r.DayOfMonth)
	if err != nil {
		return nil, err
	}

	return &Schedule{
		ID:         r.ID,
		JobID:      r.JobID,
		UserID:     r.UserID,
		Recurrence: rec,
		NextRun:    r.NextRun,
		Active:     r.IsActive,
		Deleted:    r.IsDeleted,
		CreatedAt:  r.CreatedOn,
		UpdatedAt:  r.LastUpdated,
		Version:    r.Version,
	}, nil
}

// recurrenceColumns flattens a recurrence into its stored fields, leaving
// the columns the variant does not use at their schema defaults.
func recurrenceColumns(rec Recurrence) (minute, hour, weekday, day int) {
	day = 1

	switch r := rec.(type) {
	case EveryHour:
		minute = r.Minute
	case EveryDay:
		minute, hour = r.Minute, r.Hour
	case EveryWeek:
		minute, hour, weekday = r.Minute, r.Hour, r.Weekday
	case EveryMonth:
		minute, hour, day = r.Minute, r.Hour, r.Day
	}

	return
}

func (s *Store) CreateSchedule(ctx context.Context, schedule *Schedule) error {
	minute, hour, weekday, day := recurrenceColumns(schedule.Recurrence)

	if err := s.db.QueryRowxContext(ctx, `
			INSERT INTO schedules (
				job_id,
				user_id,
				schedule_type,
				minute_of_hour,
				hour_of_day,
				day_of_week,
				day_of_month,
				next_run,
				is_active,
				is_deleted,
				version
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
			)
			RETURNING id, created_on, last_updated
		`,
		schedule.JobID,
		schedule.UserID,
		schedule.Recurrence.Type(),
		minute,
		hour,
		weekday,
		day,
		schedule.NextRun,
		schedule.Active,
		schedule.Deleted,
		schedule.Version,
	).Scan(&schedule.ID, &schedule.CreatedAt, &schedule.UpdatedAt); err != nil {
		return fmt.Errorf("%w: failed to insert schedule", err)
	}

	return nil
}

func (s *Store) FindSchedule(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	var row scheduleRow
	if err := s.db.GetContext(ctx, &row, `
		SELECT *
		FROM schedules
		WHERE id = $1
	`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: schedule %s", ErrNotFound, id)
		}

		return nil, fmt.Errorf("%w: failed to find schedule", err)
	}

	return row.toDomain()
}

func (s *Store) ListSchedules(ctx context.Context, userID uuid.UUID) ([]Schedule, error) {
	var rows []scheduleRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT *
		FROM schedules
		WHERE user_id = $1
		AND NOT is_deleted
		ORDER BY created_on
	`, userID); err != nil {
		return nil, fmt.Errorf("%w: failed to list schedules", err)
	}

	schedules := make([]Schedule, 0, len(rows))
	for _, row := range rows {
		schedule, err := row.toDomain()
		if err != nil {
			return nil, err
		}

		schedules = append(schedules, *schedule)
	}

	return schedules, nil
}

// UpdateSchedule persists a redefinition: the recurrence fields, next_run
// and both activity flags.
func (s *Store) UpdateSchedule(ctx context.Context, schedule *Schedule) error {
	minute, hour, weekday, day := recurrenceColumns(schedule.Recurrence)

	res, err := s.db.ExecContext(ctx, `
			UPDATE schedules
			SET
				schedule_type = $1,
				minute_of_hour = $2,
				hour_of_day = $3,
				day_of_week = $4,
				day_of_month = $5,
				next_run = $6,
				is_active = $7,
				is_deleted = $8,
				last_updated = now()
			WHERE id = $9
		`,
		schedule.Recurrence.Type(),
		minute,
		hour,
		weekday,
		day,
		schedule.NextRun,
		schedule.Active,
		schedule.Deleted,
		schedule.ID,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to update schedule", err)
	}

	return checkUpdated(res)
}

// SoftDeleteSchedule hides a schedule from every read path without losing
// the tracker history that references it.
func (s *Store) SoftDeleteSchedule(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE schedules
		SET
			is_deleted = true,
			last_updated = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("%w: failed to delete schedule", err)
	}

	return checkUpdated(res)
}

// FindDue returns the effectively active schedules whose next_run falls in
// [from, to), each carrying whether its job is runnable.
func (s *Store) FindDue(ctx context.Context, from, to time.Time) ([]DueSchedule, error) {
	type dueRow struct {
		scheduleRow
		JobActive bool `db:"job_active"`
	}

	var rows []dueRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT
			s.*,
			(j.connection_id IS NOT NULL) AS job_active
		FROM schedules s
		JOIN jobs j ON j.id = s.job_id
		WHERE s.is_active
		AND NOT s.is_deleted
		AND s.next_run >= $1
		AND s.next_run < $2
		ORDER BY s.next_run
	`, from, to); err != nil {
		return nil, fmt.Errorf("%w: failed to find due schedules", err)
	}

	due := make([]DueSchedule, 0, len(rows))
	for _, row := range rows {
		schedule, err := row.toDomain()
		if err != nil {
			return nil, err
		}

		due = append(due, DueSchedule{Schedule: *schedule, JobActive: row.JobActive})
	}

	return due, nil
}

func (s *Store) UpdateNextRun(ctx context.Context, schedule *Schedule) error {
	res, err := s.db.ExecContext(ctx, `
			UPDATE schedules
			SET
				next_run = $1,
				last_updated = now()
			WHERE id = $2
		`,
		schedule.NextRun,
		schedule.ID,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to update next run", err)
	}

	return checkUpdated(res)
}

type trackerRow struct {
	ID          uuid.UUID      `db:"id"`
	JobID       uuid.UUID      `db:"job_id"`
	ScheduleID  uuid.NullUUID  `db:"schedule_id"`
	ScheduledOn time.Time      `db:"scheduled_on"`
	RanOn       sql.NullTime   `db:"ran_on"`
	Duration    int64          `db:"duration"`
	Status      TrackStatus    `db:"status"`
	ErrorString sql.NullString `db:"error_string"`
	Version     int            `db:"version"`
}

func (r trackerRow) toDomain() *Tracker {
	return &Tracker{
		ID:          r.ID,
		JobID:       r.JobID,
		ScheduleID:  r.ScheduleID,
		ScheduledOn: r.ScheduledOn,
		RanOn:       r.RanOn,
		Duration:    r.Duration,
		Status:      r.Status,
		ErrorString: r.ErrorString,
		Version:     r.Version,
	}
}

func (s *Store) CreateTracker(ctx context.Context, tracker *Tracker) error {
	if _, err := s.db.ExecContext(ctx, `
			INSERT INTO trackers (
				id,
				job_id,
				schedule_id,
				scheduled_on,
				ran_on,
				duration,
				status,
				error_string,
				version
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9
			)
		`,
		tracker.ID,
		tracker.JobID,
		tracker.ScheduleID,
		tracker.ScheduledOn,
		tracker.RanOn,
		tracker.Duration,
		tracker.Status,
		tracker.ErrorString,
		tracker.Version,
	); err != nil {
		return fmt.Errorf("%w: failed to insert tracker", err)
	}

	return nil
}

func (s *Store) FindTracker(ctx context.Context, id uuid.UUID) (*Tracker, error) {
	var row trackerRow
	if err := s.db.GetContext(ctx, &row, `
		SELECT *
		FROM trackers
		WHERE id = $1
	`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: tracker %s", ErrNotFound, id)
		}

		return nil, fmt.Errorf("%w: failed to find tracker", err)
	}

	return row.toDomain(), nil
}

func (s *Store) ListTrackersByJob(ctx context.Context, jobID uuid.UUID, limit int) ([]Tracker, error) {
	var rows []trackerRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT *
		FROM trackers
		WHERE job_id = $1
		ORDER BY scheduled_on DESC
		LIMIT $2
	`, jobID, limit); err != nil {
		return nil, fmt.Errorf("%w: failed to list trackers", err)
	}

	trackers := make([]Tracker, 0, len(rows))
	for _, row := range rows {
		trackers = append(trackers, *row.toDomain())
	}

	return trackers, nil
}

// UpdateTracker persists a status transition along with its outcome
// fields.
func (s *Store) UpdateTracker(ctx context.Context, tracker *Tracker) error {
	res, err := s.db.ExecContext(ctx, `
			UPDATE trackers
			SET
				ran_on = $1,
				duration = $2,
				status = $3,
				error_string = $4
			WHERE id = $5
		`,
		tracker.RanOn,
		tracker.Duration,
		tracker.Status,
		tracker.ErrorString,
		tracker.ID,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to update tracker", err)
	}

	return checkUpdated(res)
}

type jobRow struct {
	ID           uuid.UUID     `db:"id"`
	Name         string        `db:"name"`
	QueryString  string        `db:"query_string"`
	ConnectionID uuid.NullUUID `db:"connection_id"`
	CreatedOn    time.Time     `db:"created_on"`
	LastUpdated  time.Time     `db:"last_updated"`
}

func (r jobRow) toDomain() *Job {
	return &Job{
		ID:           r.ID,
		Name:         r.Name,
		QueryString:  r.QueryString,
		ConnectionID: r.ConnectionID,
		CreatedAt:    r.CreatedOn,
		UpdatedAt:    r.LastUpdated,
	}
}

func (s *Store) CreateJob(ctx context.Context, job *Job) error {
	if err := s.db.QueryRowxContext(ctx, `
			INSERT INTO jobs (
				name,
				query_string,
				connection_id
			) VALUES (
				$1, $2, $3
			)
			RETURNING id, created_on, last_updated
		`,
		job.Name,
		job.QueryString,
		job.ConnectionID,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return fmt.Errorf("%w: failed to insert job", err)
	}

	return nil
}

func (s *Store) FindJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	var row jobRow
	if err := s.db.GetContext(ctx, &row, `
		SELECT *
		FROM jobs
		WHERE id = $1
	`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: job %s", ErrNotFound, id)
		}

		return nil, fmt.Errorf("%w: failed to find job", err)
	}

	return row.toDomain(), nil
}

func checkUpdated(res sql.Result) error {
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count != 1 {
		return ErrNotUpdated
	}

	return nil
}
