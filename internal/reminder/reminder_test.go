package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock(t *testing.T) {
	r := &Reminder{TimeOfDay: "09:30"}
	hour, minute, err := r.Clock()
	assert.NoError(t, err)
	assert.Equal(t, 9, hour)
	assert.Equal(t, 30, minute)

	for _, bad := range []string{"", "9:30:00", "25:00", "09:61", "morning"} {
		r := &Reminder{TimeOfDay: bad}
		_, _, err := r.Clock()
		assert.Error(t, err, "Clock(%q) should fail", bad)
	}
}

func TestFiresOn(t *testing.T) {
	daily := &Reminder{Recurrence: RecurrenceDaily}
	for d := time.Sunday; d <= time.Saturday; d++ {
		assert.True(t, daily.FiresOn(d))
	}

	weekly := &Reminder{Recurrence: RecurrenceWeekly, WeeklyDays: []int{1, 5}}
	assert.True(t, weekly.FiresOn(time.Monday))
	assert.True(t, weekly.FiresOn(time.Friday))
	assert.False(t, weekly.FiresOn(time.Sunday))
	assert.False(t, weekly.FiresOn(time.Wednesday))
}

func TestValidate(t *testing.T) {
	ok := New("rem1", "usr1", "Medication", "", "09:00", RecurrenceDaily, nil)
	assert.NoError(t, ok.Validate())

	weekly := New("rem2", "usr1", "Walk", "", "18:00", RecurrenceWeekly, []int{0, 6})
	assert.NoError(t, weekly.Validate())

	cases := []struct {
		name string
		r    *Reminder
	}{
		{"bad time", New("r", "u", "t", "", "9am", RecurrenceDaily, nil)},
		{"bad recurrence", New("r", "u", "t", "", "09:00", "monthly", nil)},
		{"weekly without days", New("r", "u", "t", "", "09:00", RecurrenceWeekly, nil)},
		{"weekday out of range", New("r", "u", "t", "", "09:00", RecurrenceWeekly, []int{7})},
		{"negative weekday", New("r", "u", "t", "", "09:00", RecurrenceWeekly, []int{-1})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.r.Validate())
		})
	}
}
