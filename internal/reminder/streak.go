package reminder

import "time"

// StreakState tracks consecutive completions for one (owner, reminder) pair.
// LongestStreak is monotonic non-decreasing; only the streak ledger mutates
// these rows.
type StreakState struct {
	ID            string     `json:"id"`
	OwnerID       string     `json:"owner_id"`
	ReminderID    string     `json:"reminder_id"`
	CurrentStreak int        `json:"current_streak"`
	LongestStreak int        `json:"longest_streak"`
	LastCompleted *time.Time `json:"last_completed,omitempty"`
	LastUpdated   time.Time  `json:"last_updated"`
}

// CompletionStats aggregates completion rows over a reporting window.
type CompletionStats struct {
	Total          int     `json:"total"`
	Completed      int     `json:"completed"`
	Missed         int     `json:"missed"`
	CompletionRate float64 `json:"completion_rate"`
}

// StreakSummary is a streak joined with its reminder title, used for
// report snapshots and the streaks listing.
type StreakSummary struct {
	StreakState
	Title string `json:"title"`
}

// WeeklyReport is the persisted weekly performance report for one user.
// Snapshot holds the serialized report payload that was mailed; rows are
// written once and never mutated.
type WeeklyReport struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	WeekStart time.Time       `json:"week_start"`
	WeekEnd   time.Time       `json:"week_end"`
	Stats     CompletionStats `json:"stats"`
	Snapshot  []byte          `json:"report_data"`
	SentAt    time.Time       `json:"sent_at"`
}
