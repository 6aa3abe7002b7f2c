package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Crontab renders a schedule's recurrence as a standard five-field cron
// expression, for display and for cross-checking against a second parser.
// One-shots render the calendar components of their single firing, the
// way a crontab pins a specific minute/hour/day/month.
func Crontab(s *Schedule) string {
	switch r := s.Recurrence.(type) {
	case EveryHour:
		return fmt.Sprintf("%d * * * *", r.Minute)
	case EveryDay:
		return fmt.Sprintf("%d %d * * *", r.Minute, r.Hour)
	case EveryWeek:
		// Crontab weekdays are Sunday-first.
		return fmt.Sprintf("%d %d * * %d", r.Minute, r.Hour, (r.Weekday+1)%7)
	case EveryMonth:
		return fmt.Sprintf("%d %d %d * *", r.Minute, r.Hour, r.Day)
	default:
		t := s.NextRun.Time
		return onceSpec(t)
	}
}

func onceSpec(t time.Time) string {
	return fmt.Sprintf("%d %d %d %d *",
		t.Minute(),
		t.Hour(),
		t.Day(),
		int(t.Month()),
	)
}

// ValidateCrontab checks the rendered expression against the standard
// cron parser.
func ValidateCrontab(s *Schedule) error {
	_, err := cron.ParseStandard(Crontab(s))

	return err
}
