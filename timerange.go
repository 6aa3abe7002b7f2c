package scheduler

import "fmt"

// InRange reports whether floor <= value <= ceiling. A floor above the
// ceiling is a programmer error, not bad input.
func InRange(value, floor, ceiling int) bool {
	if floor > ceiling {
		panic(fmt.Sprintf("scheduler: range floor %d above ceiling %d", floor, ceiling))
	}

	return floor <= value && value <= ceiling
}

// ValidMinuteOfHour reports whether value is a minute of an hour.
func ValidMinuteOfHour(value int) bool {
	return InRange(value, 0, 59)
}

// ValidHourOfDay reports whether value is an hour of a day.
func ValidHourOfDay(value int) bool {
	return InRange(value, 0, 23)
}

// ValidDayOfWeek reports whether value is a weekday, Monday being 0.
func ValidDayOfWeek(value int) bool {
	return InRange(value, 0, 6)
}

// ValidDayOfMonth reports whether value is a day of a month.
func ValidDayOfMonth(value int) bool {
	return InRange(value, 1, 31)
}
