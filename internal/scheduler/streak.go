package scheduler

import (
	"context"
	"errors"
	"fmt"

	"remindme/internal/reminder"

	"github.com/google/uuid"
)

// ErrAlreadyCompleted is returned when a trigger log already has a
// completion row, whether from the user or the miss detector.
var ErrAlreadyCompleted = errors.New("reminder log already has a completion")

// OnUserCompletion records a user acknowledging a triggered reminder and
// advances the streak. This is the user half of the race against the miss
// detector; the completion insert decides the winner.
func (s *Scheduler) OnUserCompletion(ctx context.Context, logID, ownerID string) (*reminder.Completion, error) {
	log, err := s.store.GetTriggerLog(ctx, logID, ownerID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	completion := &reminder.Completion{
		ID:            uuid.NewString(),
		ReminderID:    log.ReminderID,
		OwnerID:       ownerID,
		LogID:         log.ID,
		CompletedAt:   now,
		ScheduledTime: log.TriggeredAt,
		Status:        reminder.CompletionCompleted,
	}
	inserted, err := s.store.InsertCompletionIfAbsent(ctx, completion)
	if err != nil {
		return nil, fmt.Errorf("failed to insert completion: %w", err)
	}
	if !inserted {
		return nil, ErrAlreadyCompleted
	}

	if err := s.UpdateStreak(ctx, log.ReminderID, ownerID, true); err != nil {
		return nil, err
	}
	s.log.Infow("reminder completed", "log_id", logID, "reminder_id", log.ReminderID)
	return completion, nil
}

// UpdateStreak applies one completion or miss to the (owner, reminder)
// streak, creating the row lazily. A completion extends the current streak
// and may raise the longest; a miss resets the current streak and leaves
// the longest untouched. Callers guarantee at most one invocation per
// trigger log via the completion uniqueness guard.
func (s *Scheduler) UpdateStreak(ctx context.Context, reminderID, ownerID string, completed bool) error {
	st, err := s.store.GetOrCreateStreak(ctx, ownerID, reminderID)
	if err != nil {
		return fmt.Errorf("failed to load streak: %w", err)
	}

	now := s.now().UTC()
	if completed {
		st.CurrentStreak++
		if st.CurrentStreak > st.LongestStreak {
			st.LongestStreak = st.CurrentStreak
		}
		st.LastCompleted = &now
	} else {
		st.CurrentStreak = 0
	}
	st.LastUpdated = now

	if err := s.store.SaveStreak(ctx, st); err != nil {
		return fmt.Errorf("failed to save streak: %w", err)
	}
	return nil
}
