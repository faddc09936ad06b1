package reminder

import (
	"errors"
	"fmt"
	"time"
)

const (
	RecurrenceDaily  = "daily"
	RecurrenceWeekly = "weekly"
)

// Reminder is a recurring reminder owned by a single user. TimeOfDay is a
// naive "HH:MM" clock time interpreted in the owner's timezone. WeeklyDays
// uses Go's time.Weekday numbering (0 = Sunday) and must be non-empty for
// weekly recurrence; daily recurrence ignores it.
type Reminder struct {
	ID            string     `json:"id"`
	OwnerID       string     `json:"owner_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	TimeOfDay     string     `json:"reminder_time"`
	Recurrence    string     `json:"recurrence_type"`
	WeeklyDays    []int      `json:"weekly_days,omitempty"`
	Active        bool       `json:"is_active"`
	LastTriggered *time.Time `json:"last_triggered,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func New(id, ownerID, title, description, timeOfDay, recurrence string, weeklyDays []int) *Reminder {
	now := time.Now().UTC()
	return &Reminder{
		ID:          id,
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
		TimeOfDay:   timeOfDay,
		Recurrence:  recurrence,
		WeeklyDays:  weeklyDays,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clock parses TimeOfDay into its hour and minute components.
func (r *Reminder) Clock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", r.TimeOfDay)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q: %w", r.TimeOfDay, err)
	}
	return t.Hour(), t.Minute(), nil
}

// FiresOn reports whether the reminder recurs on the given weekday.
func (r *Reminder) FiresOn(day time.Weekday) bool {
	if r.Recurrence != RecurrenceWeekly {
		return true
	}
	for _, d := range r.WeeklyDays {
		if time.Weekday(d) == day {
			return true
		}
	}
	return false
}

// Validate checks the recurrence invariants.
func (r *Reminder) Validate() error {
	if _, _, err := r.Clock(); err != nil {
		return err
	}
	switch r.Recurrence {
	case RecurrenceDaily:
	case RecurrenceWeekly:
		if len(r.WeeklyDays) == 0 {
			return errors.New("weekly recurrence requires at least one weekday")
		}
		for _, d := range r.WeeklyDays {
			if d < 0 || d > 6 {
				return fmt.Errorf("invalid weekday %d: must be 0 (Sunday) through 6 (Saturday)", d)
			}
		}
	default:
		return fmt.Errorf("invalid recurrence type %q", r.Recurrence)
	}
	return nil
}

// OwnerReminder is a reminder joined with the owning user's delivery and
// timezone details, the row shape the scheduler scans.
type OwnerReminder struct {
	Reminder
	OwnerName  string `json:"owner_name"`
	OwnerEmail string `json:"owner_email"`
	Timezone   string `json:"timezone"`
}
