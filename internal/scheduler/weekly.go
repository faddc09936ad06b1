package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"remindme/internal/reminder"
	"remindme/internal/user"

	"github.com/google/uuid"
)

const reportWindow = 7 * 24 * time.Hour

// reportSnapshot is the serialized payload persisted with each weekly
// report and handed to delivery.
type reportSnapshot struct {
	Total          int                       `json:"total"`
	Completed      int                       `json:"completed"`
	Missed         int                       `json:"missed"`
	CompletionRate float64                   `json:"completion_rate"`
	TotalStreak    int                       `json:"total_streak"`
	TopStreaks     []*reminder.StreakSummary `json:"streaks"`
}

// RunWeeklyTick aggregates the prior seven days of completions for every
// user into a persisted report and delivers it. Users with no completion
// rows in the window are skipped; one user failing never aborts the rest.
func (s *Scheduler) RunWeeklyTick(ctx context.Context) error {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	for _, u := range users {
		if err := s.reportForUser(ctx, u); err != nil {
			s.log.Errorw("failed to generate weekly report",
				"user_id", u.ID, "error", err)
		}
	}
	return nil
}

func (s *Scheduler) reportForUser(ctx context.Context, u *user.User) error {
	now := s.now().UTC()
	weekStart := now.Add(-reportWindow)

	stats, err := s.store.AggregateCompletions(ctx, u.ID, weekStart)
	if err != nil {
		return fmt.Errorf("failed to aggregate completions: %w", err)
	}
	if stats.Total == 0 {
		return nil
	}

	streaks, err := s.store.ListStreaks(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("failed to list streaks: %w", err)
	}

	report, err := BuildReport(u.ID, weekStart, now, stats, streaks)
	if err != nil {
		return err
	}
	if err := s.store.SaveWeeklyReport(ctx, report); err != nil {
		return fmt.Errorf("failed to save weekly report: %w", err)
	}

	dctx, cancel := context.WithTimeout(ctx, s.cfg.DeliveryTimeout)
	defer cancel()
	if err := s.sink.SendWeeklyReport(dctx, u.Name, u.Email, report); err != nil {
		s.log.Warnw("weekly report delivery failed",
			"user_id", u.ID, "email", u.Email, "error", err)
	}

	s.log.Infow("weekly report sent", "user_id", u.ID,
		"completed", stats.Completed, "missed", stats.Missed)
	return nil
}

// BuildReport assembles the weekly report row, including the top-five
// streak snapshot. Exposed for snapshot tests.
func BuildReport(ownerID string, weekStart, weekEnd time.Time, stats reminder.CompletionStats, streaks []*reminder.StreakSummary) (*reminder.WeeklyReport, error) {
	totalStreak := 0
	for _, st := range streaks {
		totalStreak += st.CurrentStreak
	}
	top := streaks
	if len(top) > 5 {
		top = top[:5]
	}

	snapshot, err := json.Marshal(reportSnapshot{
		Total:          stats.Total,
		Completed:      stats.Completed,
		Missed:         stats.Missed,
		CompletionRate: stats.CompletionRate,
		TotalStreak:    totalStreak,
		TopStreaks:     top,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report snapshot: %w", err)
	}

	return &reminder.WeeklyReport{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		WeekStart: weekStart,
		WeekEnd:   weekEnd,
		Stats:     stats,
		Snapshot:  snapshot,
		SentAt:    weekEnd,
	}, nil
}
