package schedule

import (
	"testing"
	"time"

	"remindme/internal/reminder"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newYorkReminder(tod, recurrence string, days []int) *reminder.OwnerReminder {
	return &reminder.OwnerReminder{
		Reminder: reminder.Reminder{
			ID:         "rem1",
			OwnerID:    "usr1",
			Title:      "Morning medication",
			TimeOfDay:  tod,
			Recurrence: recurrence,
			WeeklyDays: days,
			Active:     true,
		},
		OwnerName:  "Alice",
		OwnerEmail: "alice@example.com",
		Timezone:   "America/New_York",
	}
}

// at builds a UTC instant from a local New York wall-clock time.
func at(t *testing.T, y int, m time.Month, d, hour, min int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return time.Date(y, m, d, hour, min, 0, 0, loc).UTC()
}

func TestIsDueExactMinute(t *testing.T) {
	r := newYorkReminder("09:00", reminder.RecurrenceDaily, nil)

	// 2025-06-04 is a Wednesday
	due, err := IsDue(r, at(t, 2025, time.June, 4, 9, 0))
	require.NoError(t, err)
	assert.True(t, due)

	due, err = IsDue(r, at(t, 2025, time.June, 4, 8, 59))
	require.NoError(t, err)
	assert.False(t, due, "one minute early must not fire")

	due, err = IsDue(r, at(t, 2025, time.June, 4, 9, 1))
	require.NoError(t, err)
	assert.False(t, due, "a skipped minute is not caught up")
}

func TestIsDueHonorsTimezone(t *testing.T) {
	r := newYorkReminder("09:00", reminder.RecurrenceDaily, nil)

	// 09:00 UTC is 05:00 in New York
	due, err := IsDue(r, time.Date(2025, time.June, 4, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, due)

	// 13:00 UTC is 09:00 EDT
	due, err = IsDue(r, time.Date(2025, time.June, 4, 13, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, due)
}

func TestIsDueWeeklyDays(t *testing.T) {
	// Monday, Wednesday, Friday
	r := newYorkReminder("09:00", reminder.RecurrenceWeekly, []int{1, 3, 5})

	// 2025-06-02 is a Monday
	due, err := IsDue(r, at(t, 2025, time.June, 2, 9, 0))
	require.NoError(t, err)
	assert.True(t, due)

	// 2025-06-03 is a Tuesday
	due, err = IsDue(r, at(t, 2025, time.June, 3, 9, 0))
	require.NoError(t, err)
	assert.False(t, due)

	// Sunday is 0
	sun := newYorkReminder("09:00", reminder.RecurrenceWeekly, []int{0})
	due, err = IsDue(sun, at(t, 2025, time.June, 1, 9, 0))
	require.NoError(t, err)
	assert.True(t, due)
}

func TestIsDueLastTriggeredSameDay(t *testing.T) {
	r := newYorkReminder("09:00", reminder.RecurrenceDaily, nil)

	prev := at(t, 2025, time.June, 4, 9, 0)
	r.LastTriggered = &prev

	due, err := IsDue(r, at(t, 2025, time.June, 4, 9, 0))
	require.NoError(t, err)
	assert.False(t, due, "already fired on today's local date")

	due, err = IsDue(r, at(t, 2025, time.June, 5, 9, 0))
	require.NoError(t, err)
	assert.True(t, due, "next local day fires again")
}

// The date guard compares local dates, so a trigger recorded late on one UTC
// day must not suppress the next local-day firing.
func TestIsDueLastTriggeredLocalDateNotUTC(t *testing.T) {
	r := newYorkReminder("22:00", reminder.RecurrenceDaily, nil)

	// 22:00 EDT on June 4 is 02:00 UTC on June 5
	prev := at(t, 2025, time.June, 4, 22, 0)
	r.LastTriggered = &prev

	due, err := IsDue(r, at(t, 2025, time.June, 5, 22, 0))
	require.NoError(t, err)
	assert.True(t, due)
}

func TestIsDueDSTSpringForward(t *testing.T) {
	// 02:30 does not exist on 2025-03-09 in New York; the reminder simply
	// never matches that day.
	r := newYorkReminder("02:30", reminder.RecurrenceDaily, nil)

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	start := time.Date(2025, time.March, 9, 1, 0, 0, 0, loc).UTC()
	fired := 0
	for min := 0; min < 4*60; min++ {
		due, err := IsDue(r, start.Add(time.Duration(min)*time.Minute))
		require.NoError(t, err)
		if due {
			fired++
		}
	}
	assert.Zero(t, fired, "nonexistent local time must not fire")
}

func TestIsDueDSTFallBackFiresOnce(t *testing.T) {
	// 01:30 occurs twice on 2025-11-02 in New York. The date guard limits
	// the reminder to a single firing.
	r := newYorkReminder("01:30", reminder.RecurrenceDaily, nil)

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	start := time.Date(2025, time.November, 2, 0, 0, 0, 0, loc).UTC()
	fired := 0
	for min := 0; min < 4*60; min++ {
		now := start.Add(time.Duration(min) * time.Minute)
		due, err := IsDue(r, now)
		require.NoError(t, err)
		if due {
			fired++
			trig := now
			r.LastTriggered = &trig
		}
	}
	assert.Equal(t, 1, fired)
}

func TestIsDueInvalidInputs(t *testing.T) {
	r := newYorkReminder("09:00", reminder.RecurrenceDaily, nil)
	r.Timezone = "Mars/Olympus_Mons"
	_, err := IsDue(r, time.Now())
	assert.Error(t, err)

	r = newYorkReminder("25:99", reminder.RecurrenceDaily, nil)
	_, err = IsDue(r, time.Now())
	assert.Error(t, err)
}

func TestNextAt(t *testing.T) {
	loc := time.UTC

	// Wednesday noon, next Monday 09:00
	after := time.Date(2025, time.June, 4, 12, 0, 0, 0, loc)
	next := NextAt(after, time.Monday, 9, 0, loc)
	assert.Equal(t, time.Date(2025, time.June, 9, 9, 0, 0, 0, loc), next)

	// Monday 08:00, same day 09:00
	after = time.Date(2025, time.June, 2, 8, 0, 0, 0, loc)
	next = NextAt(after, time.Monday, 9, 0, loc)
	assert.Equal(t, time.Date(2025, time.June, 2, 9, 0, 0, 0, loc), next)

	// Exactly Monday 09:00 rolls a full week
	after = time.Date(2025, time.June, 2, 9, 0, 0, 0, loc)
	next = NextAt(after, time.Monday, 9, 0, loc)
	assert.Equal(t, time.Date(2025, time.June, 9, 9, 0, 0, 0, loc), next)
}
