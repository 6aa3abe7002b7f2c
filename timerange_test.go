package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInRange(t *testing.T) {
	assert.True(t, InRange(5, 0, 10))
	assert.True(t, InRange(0, 0, 10))
	assert.True(t, InRange(10, 0, 10))
	assert.False(t, InRange(-1, 0, 10))
	assert.False(t, InRange(11, 0, 10))
}

func TestInRangePanicsOnInvertedBounds(t *testing.T) {
	assert.Panics(t, func() {
		InRange(5, 10, 0)
	})
}

func TestTimeFieldValidators(t *testing.T) {
	tests := []struct {
		name  string
		valid func(int) bool
		ok    []int
		bad   []int
	}{
		{name: "minute of hour", valid: ValidMinuteOfHour, ok: []int{0, 30, 59}, bad: []int{-1, 60}},
		{name: "hour of day", valid: ValidHourOfDay, ok: []int{0, 12, 23}, bad: []int{-1, 24}},
		{name: "day of week", valid: ValidDayOfWeek, ok: []int{0, 3, 6}, bad: []int{-1, 7}},
		{name: "day of month", valid: ValidDayOfMonth, ok: []int{1, 15, 31}, bad: []int{0, 32}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, v := range tt.ok {
				assert.True(t, tt.valid(v), "value %d", v)
			}
			for _, v := range tt.bad {
				assert.False(t, tt.valid(v), "value %d", v)
			}
		})
	}
}
