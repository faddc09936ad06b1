package scheduler

import (
	"context"
	"fmt"

	"remindme/internal/reminder"
	"remindme/internal/schedule"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// dispatchDue evaluates every active reminder against the current instant
// and dispatches the due ones over a bounded worker pool. One reminder's
// failure never blocks the rest of the batch.
func (s *Scheduler) dispatchDue(ctx context.Context) error {
	reminders, err := s.store.ListActiveReminders(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active reminders: %w", err)
	}

	now := s.now().UTC()
	sem := semaphore.NewWeighted(s.cfg.DispatchWorkers)
	g, gctx := errgroup.WithContext(ctx)

	for _, r := range reminders {
		due, err := schedule.IsDue(r, now)
		if err != nil {
			// Bad timezone or time of day fails closed: skip this
			// reminder, keep scanning.
			s.log.Warnw("skipping reminder with invalid schedule",
				"reminder_id", r.ID, "error", err)
			continue
		}
		if !due {
			continue
		}

		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		r := r
		g.Go(func() error {
			defer sem.Release(1)
			if err := s.Dispatch(gctx, r); err != nil {
				s.log.Errorw("failed to dispatch reminder",
					"reminder_id", r.ID, "title", r.Title, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Dispatch fires one due reminder: deliver, append a trigger log row, and
// advance last_triggered. The log row is written whether or not delivery
// succeeded so the miss detector can still act on a failed send, and the
// last_triggered date guard makes a re-run safe if the process dies between
// the two writes.
func (s *Scheduler) Dispatch(ctx context.Context, r *reminder.OwnerReminder) error {
	now := s.now().UTC()

	dctx, cancel := context.WithTimeout(ctx, s.cfg.DeliveryTimeout)
	sendErr := s.sink.SendReminder(dctx, r)
	cancel()

	status := reminder.LogStatusSent
	if sendErr != nil {
		status = reminder.LogStatusFailed
		s.log.Warnw("reminder delivery failed",
			"reminder_id", r.ID, "email", r.OwnerEmail, "error", sendErr)
	}

	log := &reminder.TriggerLog{
		ID:          uuid.NewString(),
		ReminderID:  r.ID,
		OwnerID:     r.OwnerID,
		TriggeredAt: now,
		Status:      status,
	}
	if err := s.store.AppendTriggerLog(ctx, log); err != nil {
		return fmt.Errorf("failed to append trigger log: %w", err)
	}
	if err := s.store.UpdateLastTriggered(ctx, r.ID, now); err != nil {
		return fmt.Errorf("failed to update last triggered: %w", err)
	}

	s.log.Infow("reminder triggered",
		"reminder_id", r.ID, "title", r.Title, "log_id", log.ID, "status", status)
	return nil
}
