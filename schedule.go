package scheduler

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidSchedule = errors.New("scheduler: invalid schedule")

// DefaultInterval is the checker's default poll period, also used as the
// look-ahead when a schedule is created with a start time that is about
// to pass.
const DefaultInterval = time.Minute

type ScheduleType string

const (
	Once    ScheduleType = "ONCE"
	Hourly  ScheduleType = "HOURLY"
	Daily   ScheduleType = "DAILY"
	Weekly  ScheduleType = "WEEKLY"
	Monthly ScheduleType = "MONTHLY"
)

func (t ScheduleType) String() string {
	return string(t)
}

func (t ScheduleType) Valid() bool {
	switch t {
	case
		Once,
		Hourly,
		Daily,
		Weekly,
		Monthly:
		return true
	default:
		return false
	}
}

// Recurrence is the closed set of firing patterns a schedule can have.
// Each variant carries only the fields that matter for its own type.
type Recurrence interface {
	Type() ScheduleType
	Validate() error
}

// periodic variants know how to find their next occurrence on or after a
// reference time.
type periodic interface {
	Recurrence
	nextFrom(base time.Time) time.Time
}

// OneShot fires exactly once at the schedule's next_run and never advances.
type OneShot struct{}

func (OneShot) Type() ScheduleType { return Once }
func (OneShot) Validate() error    { return nil }

// EveryHour fires at a fixed minute of every hour.
type EveryHour struct {
	Minute int
}

func (EveryHour) Type() ScheduleType { return Hourly }

func (r EveryHour) Validate() error {
	if !ValidMinuteOfHour(r.Minute) {
		return fmt.Errorf("%w: minute of hour %d", ErrInvalidSchedule, r.Minute)
	}

	return nil
}

func (r EveryHour) nextFrom(base time.Time) time.Time {
	cand := time.Date(base.Year(), base.Month(), base.Day(), base.Hour(), r.Minute, base.Second(), 0, base.Location())

	// One extra minute of look-ahead, with the tie broken one second
	// before the target minute so a boundary poll is not re-selected.
	if !base.Add(time.Minute).Before(cand.Add(-time.Second)) {
		cand = cand.Add(time.Hour)
	}

	return cand
}

// EveryDay fires at a fixed hour and minute of every day.
type EveryDay struct {
	Minute int
	Hour   int
}

func (EveryDay) Type() ScheduleType { return Daily }

func (r EveryDay) Validate() error {
	if !ValidMinuteOfHour(r.Minute) {
		return fmt.Errorf("%w: minute of hour %d", ErrInvalidSchedule, r.Minute)
	}
	if !ValidHourOfDay(r.Hour) {
		return fmt.Errorf("%w: hour of day %d", ErrInvalidSchedule, r.Hour)
	}

	return nil
}

func (r EveryDay) nextFrom(base time.Time) time.Time {
	cand := time.Date(base.Year(), base.Month(), base.Day(), r.Hour, r.Minute, base.Second(), 0, base.Location())
	if !base.Before(cand) {
		cand = cand.AddDate(0, 0, 1)
	}

	return cand
}

// EveryWeek fires at a fixed hour and minute of a fixed weekday,
// Monday being weekday 0.
type EveryWeek struct {
	Minute  int
	Hour    int
	Weekday int
}

func (EveryWeek) Type() ScheduleType { return Weekly }

func (r EveryWeek) Validate() error {
	if !ValidMinuteOfHour(r.Minute) {
		return fmt.Errorf("%w: minute of hour %d", ErrInvalidSchedule, r.Minute)
	}
	if !ValidHourOfDay(r.Hour) {
		return fmt.Errorf("%w: hour of day %d", ErrInvalidSchedule, r.Hour)
	}
	if !ValidDayOfWeek(r.Weekday) {
		return fmt.Errorf("%w: day of week %d", ErrInvalidSchedule, r.Weekday)
	}

	return nil
}

func (r EveryWeek) nextFrom(base time.Time) time.Time {
	cand := time.Date(base.Year(), base.Month(), base.Day(), r.Hour, r.Minute, base.Second(), 0, base.Location())
	cand = cand.AddDate(0, 0, daysUntilWeekday(cand.Weekday(), r.Weekday))
	if !base.Before(cand) {
		cand = cand.AddDate(0, 0, 7)
	}

	return cand
}

// EveryMonth fires at a fixed hour and minute of a fixed day of every
// month. Days past the end of a short month clamp to its last day.
type EveryMonth struct {
	Minute int
	Hour   int
	Day    int
}

func (EveryMonth) Type() ScheduleType { return Monthly }

func (r EveryMonth) Validate() error {
	if !ValidMinuteOfHour(r.Minute) {
		return fmt.Errorf("%w: minute of hour %d", ErrInvalidSchedule, r.Minute)
	}
	if !ValidHourOfDay(r.Hour) {
		return fmt.Errorf("%w: hour of day %d", ErrInvalidSchedule, r.Hour)
	}
	if !ValidDayOfMonth(r.Day) {
		return fmt.Errorf("%w: day of month %d", ErrInvalidSchedule, r.Day)
	}

	return nil
}

func (r EveryMonth) nextFrom(base time.Time) time.Time {
	cand := dateClamped(base.Year(), base.Month(), r.Day, r.Hour, r.Minute, base.Second(), base.Location())
	if !base.Before(cand) {
		cand = addMonthClamped(cand, r.Day)
	}

	return cand
}

// RecurrenceAt builds the recurrence of the given type anchored to the
// calendar components of t.
func RecurrenceAt(typ ScheduleType, t time.Time) (Recurrence, error) {
	switch typ {
	case Once:
		return OneShot{}, nil
	case Hourly:
		return EveryHour{Minute: t.Minute()}, nil
	case Daily:
		return EveryDay{Minute: t.Minute(), Hour: t.Hour()}, nil
	case Weekly:
		return EveryWeek{Minute: t.Minute(), Hour: t.Hour(), Weekday: mondayIndexed(t.Weekday())}, nil
	case Monthly:
		return EveryMonth{Minute: t.Minute(), Hour: t.Hour(), Day: t.Day()}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidSchedule, typ)
	}
}

// NewRecurrence rebuilds a recurrence from stored fields.
func NewRecurrence(typ ScheduleType, minute, hour, weekday, day int) (Recurrence, error) {
	switch typ {
	case Once:
		return OneShot{}, nil
	case Hourly:
		return EveryHour{Minute: minute}, nil
	case Daily:
		return EveryDay{Minute: minute, Hour: hour}, nil
	case Weekly:
		return EveryWeek{Minute: minute, Hour: hour, Weekday: weekday}, nil
	case Monthly:
		return EveryMonth{Minute: minute, Hour: hour, Day: day}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidSchedule, typ)
	}
}

const ScheduleVersion = 1

// Schedule decides when its owning job should fire next.
type Schedule struct {
	ID         uuid.UUID
	JobID      uuid.UUID
	UserID     uuid.UUID
	Recurrence Recurrence
	NextRun    sql.NullTime
	Active     bool
	Deleted    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Version    int
}

// NewSchedule anchors a schedule of the given type to start and computes
// its first next_run. A one-shot whose start is not in the future is
// rejected.
func NewSchedule(clock Clock, jobID, userID uuid.UUID, typ ScheduleType, start time.Time, active bool) (*Schedule, error) {
	rec, err := RecurrenceAt(typ, start)
	if err != nil {
		return nil, err
	}

	s := &Schedule{
		JobID:      jobID,
		UserID:     userID,
		Recurrence: rec,
		Active:     active,
		Version:    ScheduleVersion,
	}

	if err := s.SetStartTime(clock, start); err != nil {
		return nil, err
	}

	return s, nil
}

// IsActive is the schedule's effective activity: switched on by its owner
// and not soft-deleted.
func (s *Schedule) IsActive() bool {
	return s.Active && !s.Deleted
}

// Validate reports whether the schedule can fire in the future. Only the
// fields relevant to the schedule's own type are checked.
func (s *Schedule) Validate(clock Clock) error {
	if _, ok := s.Recurrence.(OneShot); ok {
		if !s.NextRun.Valid || !s.NextRun.Time.After(clock.Now()) {
			return fmt.Errorf("%w: one-shot start time is not in the future", ErrInvalidSchedule)
		}

		return nil
	}

	return s.Recurrence.Validate()
}

// SetStartTime re-anchors the schedule to start: the recurrence fields are
// rederived from start's calendar components and next_run is set to start
// itself. A start time less than a minute away is pulled forward to the
// first legal future occurrence so the naive next_run cannot already have
// passed when the checker first sees it.
func (s *Schedule) SetStartTime(clock Clock, start time.Time) error {
	rec, err := RecurrenceAt(s.Recurrence.Type(), start)
	if err != nil {
		return err
	}

	s.Recurrence = rec
	s.NextRun = sql.NullTime{Time: start, Valid: true}

	if start.Before(clock.Now().Add(time.Minute)) {
		return s.Advance(clock, false, DefaultInterval)
	}

	return nil
}

// Advance recomputes next_run to the first occurrence past the checker's
// look-ahead window [now, now+interval). A schedule whose next_run is
// beyond the window is left untouched, which makes repeated calls within
// one poll period idempotent; a schedule due inside the window moves one
// full period ahead. One-shots never advance. The result always lands on
// a minute boundary.
func (s *Schedule) Advance(clock Clock, validated bool, interval time.Duration) error {
	if !validated {
		if err := s.Validate(clock); err != nil {
			return err
		}
	}

	p, ok := s.Recurrence.(periodic)
	if !ok {
		return nil
	}

	horizon := clock.Now().Add(interval)
	if s.NextRun.Valid && s.NextRun.Time.After(horizon) {
		return nil
	}

	s.NextRun = sql.NullTime{Time: atMinute(p.nextFrom(horizon)), Valid: true}

	return nil
}

func (s *Schedule) String() string {
	return fmt.Sprintf("<Schedule %s of Job %s>", s.ID, s.JobID)
}

// mondayIndexed converts Go's Sunday-first weekday to the stored
// Monday=0 convention.
func mondayIndexed(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// daysUntilWeekday returns how many days forward from d until the
// Monday-indexed target weekday, zero when already there.
func daysUntilWeekday(d time.Weekday, target int) int {
	goTarget := time.Weekday((target + 1) % 7)

	return (int(goTarget) - int(d) + 7) % 7
}

func atMinute(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func dateClamped(year int, month time.Month, day, hour, minute, second int, loc *time.Location) time.Time {
	if max := daysIn(year, month); day > max {
		day = max
	}

	return time.Date(year, month, day, hour, minute, second, 0, loc)
}

// addMonthClamped moves t one month forward, re-targeting day and
// clamping it to the new month's length.
func addMonthClamped(t time.Time, day int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), 0, t.Location()).AddDate(0, 1, 0)

	return dateClamped(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Location())
}
