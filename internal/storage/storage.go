package storage

import (
	"context"
	"errors"
	"time"

	"remindme/internal/reminder"
	"remindme/internal/user"
)

// ErrNotFound is returned when a requested record does not exist. Backends
// wrap it with context; callers match with errors.Is.
var ErrNotFound = errors.New("not found")

// Storage defines the interface for data persistence for users, reminders,
// trigger logs, completions, streaks, and weekly reports.
//
// InsertCompletionIfAbsent is the one hard concurrency contract: at most one
// completion row may ever exist per trigger log, even when the miss detector
// and a user completion race. Backends enforce it with a uniqueness
// constraint (or equivalent check-and-set) on log_id and report
// inserted=false to the loser.
type Storage interface {
	// User operations
	CreateUser(ctx context.Context, u *user.User) error
	GetUser(ctx context.Context, id string) (*user.User, error)
	ListUsers(ctx context.Context) ([]*user.User, error)
	DeleteUser(ctx context.Context, id string) error

	// Reminder operations
	CreateReminder(ctx context.Context, r *reminder.Reminder) error
	GetReminder(ctx context.Context, id, ownerID string) (*reminder.Reminder, error)
	ListReminders(ctx context.Context, ownerID string) ([]*reminder.Reminder, error)
	UpdateReminder(ctx context.Context, r *reminder.Reminder) error
	DeleteReminder(ctx context.Context, id, ownerID string) error

	// Scheduler queries
	ListActiveReminders(ctx context.Context) ([]*reminder.OwnerReminder, error)
	UpdateLastTriggered(ctx context.Context, reminderID string, at time.Time) error

	// Trigger log operations
	AppendTriggerLog(ctx context.Context, log *reminder.TriggerLog) error
	GetTriggerLog(ctx context.Context, id, ownerID string) (*reminder.TriggerLog, error)
	// ListUnacknowledgedLogs returns sent logs triggered at or before
	// olderThan that have no completion and whose reminder still exists.
	ListUnacknowledgedLogs(ctx context.Context, olderThan time.Time) ([]*reminder.PendingLog, error)
	ListPendingLogs(ctx context.Context, ownerID string, limit int) ([]*reminder.PendingLog, error)

	// Completion operations
	InsertCompletionIfAbsent(ctx context.Context, c *reminder.Completion) (inserted bool, err error)
	ListCompletions(ctx context.Context, reminderID, ownerID string, limit int) ([]*reminder.Completion, error)
	AggregateCompletions(ctx context.Context, ownerID string, since time.Time) (reminder.CompletionStats, error)

	// Streak operations
	GetOrCreateStreak(ctx context.Context, ownerID, reminderID string) (*reminder.StreakState, error)
	SaveStreak(ctx context.Context, s *reminder.StreakState) error
	ListStreaks(ctx context.Context, ownerID string) ([]*reminder.StreakSummary, error)

	// Weekly report operations
	SaveWeeklyReport(ctx context.Context, r *reminder.WeeklyReport) error
}
