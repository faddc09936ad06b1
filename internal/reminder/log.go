package reminder

import "time"

const (
	LogStatusSent   = "sent"
	LogStatusFailed = "failed"
)

const (
	CompletionCompleted = "completed"
	CompletionMissed    = "missed"
)

// TriggerLog records one firing of a reminder. Rows are immutable once
// written; at most one Completion ever references a log.
type TriggerLog struct {
	ID          string    `json:"id"`
	ReminderID  string    `json:"reminder_id"`
	OwnerID     string    `json:"owner_id"`
	TriggeredAt time.Time `json:"triggered_at"`
	Status      string    `json:"status"`
}

// PendingLog is a trigger log joined with its reminder and owner, the row
// shape the miss detector and the pending-completions listing consume.
type PendingLog struct {
	TriggerLog
	Title      string `json:"title"`
	TimeOfDay  string `json:"reminder_time"`
	Recurrence string `json:"recurrence_type"`
	OwnerName  string `json:"owner_name"`
	OwnerEmail string `json:"owner_email"`
	Timezone   string `json:"timezone"`
}

// Completion acknowledges (or records the miss of) a single trigger log.
// ScheduledTime is copied from the log's TriggeredAt for reporting.
type Completion struct {
	ID            string    `json:"id"`
	ReminderID    string    `json:"reminder_id"`
	OwnerID       string    `json:"owner_id"`
	LogID         string    `json:"log_id"`
	CompletedAt   time.Time `json:"completed_at"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Status        string    `json:"status"`
}
