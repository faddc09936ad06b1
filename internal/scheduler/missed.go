package scheduler

import (
	"context"
	"fmt"

	"remindme/internal/reminder"

	"github.com/google/uuid"
)

// DetectMissed records a missed completion for every sent trigger log older
// than the miss threshold that nobody acknowledged. Runs after every
// dispatch pass; per-log failures are logged and do not stop the sweep.
func (s *Scheduler) DetectMissed(ctx context.Context) error {
	cutoff := s.now().UTC().Add(-s.cfg.MissedThreshold)
	logs, err := s.store.ListUnacknowledgedLogs(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list unacknowledged logs: %w", err)
	}

	for _, log := range logs {
		if err := s.markMissed(ctx, log); err != nil {
			s.log.Errorw("failed to mark reminder as missed",
				"log_id", log.ID, "reminder_id", log.ReminderID, "error", err)
		}
	}
	return nil
}

// markMissed inserts the missed completion for one log. The insert races
// the user completion path; whoever loses observes inserted=false and
// no-ops, so the streak ledger runs at most once per log.
func (s *Scheduler) markMissed(ctx context.Context, log *reminder.PendingLog) error {
	now := s.now().UTC()
	completion := &reminder.Completion{
		ID:            uuid.NewString(),
		ReminderID:    log.ReminderID,
		OwnerID:       log.OwnerID,
		LogID:         log.ID,
		CompletedAt:   now,
		ScheduledTime: log.TriggeredAt,
		Status:        reminder.CompletionMissed,
	}
	inserted, err := s.store.InsertCompletionIfAbsent(ctx, completion)
	if err != nil {
		return fmt.Errorf("failed to insert missed completion: %w", err)
	}
	if !inserted {
		// Completed (or already marked missed) concurrently.
		return nil
	}

	if err := s.UpdateStreak(ctx, log.ReminderID, log.OwnerID, false); err != nil {
		return err
	}

	dctx, cancel := context.WithTimeout(ctx, s.cfg.DeliveryTimeout)
	defer cancel()
	if err := s.sink.SendMissed(dctx, log); err != nil {
		s.log.Warnw("missed notification delivery failed",
			"log_id", log.ID, "email", log.OwnerEmail, "error", err)
	}

	s.log.Infow("reminder marked as missed",
		"log_id", log.ID, "reminder_id", log.ReminderID, "title", log.Title)
	return nil
}
