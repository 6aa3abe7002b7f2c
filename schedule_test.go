package scheduler

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func at(t *testing.T, value string) time.Time {
	t.Helper()

	parsed, err := time.Parse("2006-01-02 15:04:05", value)
	require.NoError(t, err)

	return parsed
}

func scheduleWith(rec Recurrence, nextRun time.Time) *Schedule {
	return &Schedule{
		ID:         uuid.New(),
		JobID:      uuid.New(),
		UserID:     uuid.New(),
		Recurrence: rec,
		NextRun:    sql.NullTime{Time: nextRun, Valid: true},
		Active:     true,
		Version:    ScheduleVersion,
	}
}

func TestAdvance(t *testing.T) {
	tests := []struct {
		name     string
		rec      Recurrence
		nextRun  string
		now      string
		interval time.Duration
		want     string
	}{
		{
			name:     "hourly due on the hour moves to the next hour",
			rec:      EveryHour{Minute: 0},
			nextRun:  "2016-09-01 01:00:00",
			now:      "2016-09-01 01:00:00",
			interval: time.Minute,
			want:     "2016-09-01 02:00:00",
		},
		{
			name:     "hourly due at the half hour moves to the next half hour",
			rec:      EveryHour{Minute: 30},
			nextRun:  "2016-09-01 01:30:00",
			now:      "2016-09-01 01:29:30",
			interval: time.Minute,
			want:     "2016-09-01 02:30:00",
		},
		{
			name:     "hourly stays in the current hour when the minute is still ahead",
			rec:      EveryHour{Minute: 59},
			nextRun:  "2016-09-01 01:00:30",
			now:      "2016-09-01 01:00:00",
			interval: time.Minute,
			want:     "2016-09-01 01:59:00",
		},
		{
			name:     "hourly beyond the window is untouched",
			rec:      EveryHour{Minute: 30},
			nextRun:  "2016-09-01 01:30:00",
			now:      "2016-09-01 01:00:05",
			interval: time.Minute,
			want:     "2016-09-01 01:30:00",
		},
		{
			name:     "daily due moves to tomorrow",
			rec:      EveryDay{Minute: 0, Hour: 2},
			nextRun:  "2016-09-01 02:00:00",
			now:      "2016-09-01 02:00:10",
			interval: time.Minute,
			want:     "2016-09-02 02:00:00",
		},
		{
			name:     "daily beyond the window is untouched",
			rec:      EveryDay{Minute: 0, Hour: 2},
			nextRun:  "2016-09-01 02:00:00",
			now:      "2016-09-01 01:00:00",
			interval: time.Minute,
			want:     "2016-09-01 02:00:00",
		},
		{
			name:     "weekly due on its own weekday moves a full week",
			rec:      EveryWeek{Minute: 0, Hour: 10, Weekday: 3},
			nextRun:  "2016-09-01 10:00:00",
			now:      "2016-09-01 10:00:30",
			interval: time.Minute,
			want:     "2016-09-08 10:00:00",
		},
		{
			name:     "weekly due before its weekday lands later the same week",
			rec:      EveryWeek{Minute: 0, Hour: 10, Weekday: 5},
			nextRun:  "2016-09-01 10:00:00",
			now:      "2016-09-01 10:00:30",
			interval: time.Minute,
			want:     "2016-09-03 10:00:00",
		},
		{
			name:     "monthly due on the 31st clamps to the leap february",
			rec:      EveryMonth{Minute: 0, Hour: 0, Day: 31},
			nextRun:  "2016-01-31 00:00:00",
			now:      "2016-01-31 00:00:30",
			interval: time.Minute,
			want:     "2016-02-29 00:00:00",
		},
		{
			name:     "monthly beyond the window is untouched",
			rec:      EveryMonth{Minute: 0, Hour: 0, Day: 15},
			nextRun:  "2016-09-15 00:00:00",
			now:      "2016-09-01 00:00:00",
			interval: time.Minute,
			want:     "2016-09-15 00:00:00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{now: at(t, tt.now)}
			s := scheduleWith(tt.rec, at(t, tt.nextRun))

			require.NoError(t, s.Advance(clock, false, tt.interval))

			require.True(t, s.NextRun.Valid)
			assert.Equal(t, at(t, tt.want), s.NextRun.Time)
		})
	}
}

func TestAdvanceDailyAcrossMissedDays(t *testing.T) {
	// Days were missed; a single advance lands on the next occurrence
	// after the window, not on a stale day.
	clock := &fakeClock{now: at(t, "2016-09-04 23:59:13")}
	s := scheduleWith(EveryDay{Minute: 0, Hour: 0}, at(t, "2016-09-02 00:00:00"))

	require.NoError(t, s.Advance(clock, false, 30*time.Second))
	assert.Equal(t, at(t, "2016-09-05 00:00:00"), s.NextRun.Time)
}

func TestNewScheduleDailyAtCreationInstant(t *testing.T) {
	clock := &fakeClock{now: at(t, "2016-09-01 00:00:00")}

	s, err := NewSchedule(clock, uuid.New(), uuid.New(), Daily, clock.now, true)
	require.NoError(t, err)

	// Today's occurrence is inside the one-minute guard, so the first
	// firing is tomorrow.
	assert.Equal(t, at(t, "2016-09-02 00:00:00"), s.NextRun.Time)
}

func TestNewScheduleWeeklyAnchoredToCreationDay(t *testing.T) {
	// 2016-09-01 is a Thursday; anchoring to it pushes the first firing
	// a full week out.
	clock := &fakeClock{now: at(t, "2016-09-01 00:00:00")}

	s, err := NewSchedule(clock, uuid.New(), uuid.New(), Weekly, clock.now, true)
	require.NoError(t, err)

	assert.Equal(t, EveryWeek{Minute: 0, Hour: 0, Weekday: 3}, s.Recurrence)
	assert.Equal(t, at(t, "2016-09-08 00:00:00"), s.NextRun.Time)

	clock.now = at(t, "2016-09-09 23:59:13")
	require.NoError(t, s.Advance(clock, false, 30*time.Second))
	assert.Equal(t, at(t, "2016-09-15 00:00:00"), s.NextRun.Time)
}

func TestAdvanceIsIdempotentWithinWindow(t *testing.T) {
	clock := &fakeClock{now: at(t, "2016-09-01 01:00:00")}
	s := scheduleWith(EveryHour{Minute: 0}, at(t, "2016-09-01 01:00:00"))

	require.NoError(t, s.Advance(clock, false, time.Minute))
	first := s.NextRun.Time

	require.NoError(t, s.Advance(clock, false, time.Minute))
	assert.Equal(t, first, s.NextRun.Time)
}

func TestAdvanceOneShotNeverMoves(t *testing.T) {
	clock := &fakeClock{now: at(t, "2016-09-01 01:00:00")}
	s := scheduleWith(OneShot{}, at(t, "2016-09-01 02:00:00"))

	require.NoError(t, s.Advance(clock, false, time.Minute))
	assert.Equal(t, at(t, "2016-09-01 02:00:00"), s.NextRun.Time)
}

func TestAdvanceRejectsInvalidRecurrence(t *testing.T) {
	clock := &fakeClock{now: at(t, "2016-09-01 01:00:00")}
	s := scheduleWith(EveryHour{Minute: 75}, at(t, "2016-09-01 01:00:00"))

	err := s.Advance(clock, false, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	// Checker callers validate up front and skip the re-check.
	require.NoError(t, s.Advance(clock, true, time.Minute))
}

func TestAdvanceAlwaysLandsOnTheMinute(t *testing.T) {
	clock := &fakeClock{now: at(t, "2016-09-01 01:29:47")}
	s := scheduleWith(EveryHour{Minute: 30}, at(t, "2016-09-01 01:30:13"))

	require.NoError(t, s.Advance(clock, false, time.Minute))
	assert.Zero(t, s.NextRun.Time.Second())
}

func TestValidate(t *testing.T) {
	clock := &fakeClock{now: at(t, "2016-09-01 01:00:00")}

	tests := []struct {
		name    string
		rec     Recurrence
		nextRun time.Time
		wantErr bool
	}{
		{name: "hourly ok", rec: EveryHour{Minute: 30}},
		{name: "hourly bad minute", rec: EveryHour{Minute: 60}, wantErr: true},
		{name: "daily ok", rec: EveryDay{Minute: 0, Hour: 23}},
		{name: "daily bad hour", rec: EveryDay{Minute: 0, Hour: 24}, wantErr: true},
		{name: "weekly ok", rec: EveryWeek{Minute: 0, Hour: 0, Weekday: 6}},
		{name: "weekly bad weekday", rec: EveryWeek{Minute: 0, Hour: 0, Weekday: 7}, wantErr: true},
		{name: "monthly ok", rec: EveryMonth{Minute: 0, Hour: 0, Day: 31}},
		{name: "monthly bad day", rec: EveryMonth{Minute: 0, Hour: 0, Day: 0}, wantErr: true},
		{name: "one-shot in the future", rec: OneShot{}, nextRun: at(t, "2016-09-01 02:00:00")},
		{name: "one-shot in the past", rec: OneShot{}, nextRun: at(t, "2016-09-01 00:59:00"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := scheduleWith(tt.rec, tt.nextRun)

			err := s.Validate(clock)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSchedule)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewScheduleFutureStartIsKeptVerbatim(t *testing.T) {
	clock := &fakeClock{now: at(t, "2016-09-01 00:00:00")}
	start := at(t, "2016-09-02 10:30:45")

	s, err := NewSchedule(clock, uuid.New(), uuid.New(), Daily, start, true)
	require.NoError(t, err)

	assert.Equal(t, EveryDay{Minute: 30, Hour: 10}, s.Recurrence)
	assert.Equal(t, start, s.NextRun.Time)
}

func TestNewSchedulePastStartIsPulledForward(t *testing.T) {
	clock := &fakeClock{now: at(t, "2016-09-01 01:00:00")}
	start := at(t, "2016-09-01 00:15:00")

	s, err := NewSchedule(clock, uuid.New(), uuid.New(), Hourly, start, true)
	require.NoError(t, err)

	assert.Equal(t, EveryHour{Minute: 15}, s.Recurrence)
	assert.Equal(t, at(t, "2016-09-01 01:15:00"), s.NextRun.Time)
}

func TestNewScheduleOneShotInThePastIsRejected(t *testing.T) {
	clock := &fakeClock{now: at(t, "2016-09-01 01:00:00")}

	_, err := NewSchedule(clock, uuid.New(), uuid.New(), Once, at(t, "2016-09-01 00:00:00"), true)
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestNewScheduleUnknownType(t *testing.T) {
	clock := &fakeClock{now: at(t, "2016-09-01 01:00:00")}

	_, err := NewSchedule(clock, uuid.New(), uuid.New(), ScheduleType("YEARLY"), at(t, "2016-10-01 00:00:00"), true)
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestIsActive(t *testing.T) {
	s := scheduleWith(EveryHour{Minute: 0}, time.Time{})

	assert.True(t, s.IsActive())

	s.Deleted = true
	assert.False(t, s.IsActive())

	s.Deleted = false
	s.Active = false
	assert.False(t, s.IsActive())
}

func TestRecurrenceRoundTrip(t *testing.T) {
	start := time.Date(2016, 9, 1, 10, 30, 0, 0, time.UTC) // a Thursday

	tests := []struct {
		typ  ScheduleType
		want Recurrence
	}{
		{typ: Once, want: OneShot{}},
		{typ: Hourly, want: EveryHour{Minute: 30}},
		{typ: Daily, want: EveryDay{Minute: 30, Hour: 10}},
		{typ: Weekly, want: EveryWeek{Minute: 30, Hour: 10, Weekday: 3}},
		{typ: Monthly, want: EveryMonth{Minute: 30, Hour: 10, Day: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			rec, err := RecurrenceAt(tt.typ, start)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec)
		})
	}
}

func TestMondayIndexed(t *testing.T) {
	assert.Equal(t, 0, mondayIndexed(time.Monday))
	assert.Equal(t, 3, mondayIndexed(time.Thursday))
	assert.Equal(t, 6, mondayIndexed(time.Sunday))
}
