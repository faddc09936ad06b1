package schedule

import (
	"fmt"
	"time"

	"remindme/internal/reminder"
)

// IsDue reports whether a reminder should fire at the given instant. It is a
// pure function with no side effects.
//
// A reminder is due when the owner's local clock reads exactly the stored
// hour and minute (a minute skipped during scheduler downtime is not caught
// up later) and, for weekly recurrence, the local weekday is in the stored
// set. A reminder whose last trigger falls on today's local calendar date is
// never due again the same day; that date guard doubles as the idempotence
// guard for overlapping ticks.
//
// Around daylight-saving transitions a local clock time can occur twice or
// not at all. The date guard collapses a doubled occurrence to a single
// firing, and a nonexistent local time simply never matches. Both are
// accepted behavior.
//
// An unparseable timezone or time of day returns an error with due=false so
// the caller can log and skip the reminder without aborting the scan.
func IsDue(r *reminder.OwnerReminder, now time.Time) (bool, error) {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return false, fmt.Errorf("invalid timezone %q: %w", r.Timezone, err)
	}
	hour, minute, err := r.Clock()
	if err != nil {
		return false, err
	}

	local := now.In(loc)
	if local.Hour() != hour || local.Minute() != minute {
		return false, nil
	}
	if !r.FiresOn(local.Weekday()) {
		return false, nil
	}
	if r.LastTriggered != nil && sameDate(r.LastTriggered.In(loc), local) {
		return false, nil
	}
	return true, nil
}

// NextAt returns the first instant strictly after the given time that falls
// on the given weekday at hour:minute in loc. Used to arm the weekly report
// timer.
func NextAt(after time.Time, day time.Weekday, hour, minute int, loc *time.Location) time.Time {
	t := after.In(loc)
	next := time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, loc)
	for !next.After(after) || next.Weekday() != day {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
