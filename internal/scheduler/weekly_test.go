package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"remindme/internal/reminder"
	"remindme/internal/storage"
	"remindme/internal/user"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWeeklyTickSkipsIdleUsers(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	sink := &fakeSink{}
	now := time.Date(2025, time.June, 9, 9, 0, 0, 0, time.UTC)
	s := newTestScheduler(store, sink, now)

	active := user.New("usr-active", "Alice", "alice@example.com", "UTC")
	idle := user.New("usr-idle", "Bob", "bob@example.com", "UTC")
	require.NoError(t, store.CreateUser(ctx, active))
	require.NoError(t, store.CreateUser(ctx, idle))

	r := reminder.New("rem1", active.ID, "Morning medication", "", "09:00", reminder.RecurrenceDaily, nil)
	require.NoError(t, store.CreateReminder(ctx, r))

	scheduled := now.Add(-2 * 24 * time.Hour)
	require.NoError(t, store.AppendTriggerLog(ctx, &reminder.TriggerLog{
		ID: "log1", ReminderID: r.ID, OwnerID: active.ID,
		TriggeredAt: scheduled, Status: reminder.LogStatusSent,
	}))
	inserted, err := store.InsertCompletionIfAbsent(ctx, &reminder.Completion{
		ID: "cmp1", ReminderID: r.ID, OwnerID: active.ID, LogID: "log1",
		CompletedAt:   scheduled.Add(5 * time.Minute),
		ScheduledTime: scheduled,
		Status:        reminder.CompletionCompleted,
	})
	require.NoError(t, err)
	require.True(t, inserted)

	require.NoError(t, s.RunWeeklyTick(ctx))

	require.Len(t, sink.reports, 1, "only the user with completions gets a report")
	assert.Equal(t, []string{"alice@example.com"}, sink.reportTo)

	report := sink.reports[0]
	assert.Equal(t, active.ID, report.OwnerID)
	assert.Equal(t, 1, report.Stats.Total)
	assert.Equal(t, 1, report.Stats.Completed)
	assert.True(t, report.WeekEnd.Equal(now))
	assert.True(t, report.WeekStart.Equal(now.Add(-7*24*time.Hour)))
}

func TestRunWeeklyTickWindowExcludesOldCompletions(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	sink := &fakeSink{}
	now := time.Date(2025, time.June, 9, 9, 0, 0, 0, time.UTC)
	s := newTestScheduler(store, sink, now)

	u := user.New("usr1", "Alice", "alice@example.com", "UTC")
	require.NoError(t, store.CreateUser(ctx, u))
	r := reminder.New("rem1", u.ID, "Morning medication", "", "09:00", reminder.RecurrenceDaily, nil)
	require.NoError(t, store.CreateReminder(ctx, r))

	// Ten days old, outside the seven-day window
	old := now.Add(-10 * 24 * time.Hour)
	require.NoError(t, store.AppendTriggerLog(ctx, &reminder.TriggerLog{
		ID: "log-old", ReminderID: r.ID, OwnerID: u.ID,
		TriggeredAt: old, Status: reminder.LogStatusSent,
	}))
	_, err := store.InsertCompletionIfAbsent(ctx, &reminder.Completion{
		ID: "cmp-old", ReminderID: r.ID, OwnerID: u.ID, LogID: "log-old",
		CompletedAt: old, ScheduledTime: old,
		Status: reminder.CompletionCompleted,
	})
	require.NoError(t, err)

	require.NoError(t, s.RunWeeklyTick(ctx))
	assert.Empty(t, sink.reports)
}

func TestBuildReportTopFiveStreaks(t *testing.T) {
	var streaks []*reminder.StreakSummary
	for i := 0; i < 7; i++ {
		streaks = append(streaks, &reminder.StreakSummary{
			StreakState: reminder.StreakState{
				ID:            fmt.Sprintf("s%d", i),
				OwnerID:       "usr1",
				ReminderID:    fmt.Sprintf("rem%d", i),
				CurrentStreak: 10 - i,
			},
		})
	}
	stats := reminder.CompletionStats{Total: 7, Completed: 7, CompletionRate: 100}
	end := time.Date(2025, time.June, 9, 9, 0, 0, 0, time.UTC)

	report, err := BuildReport("usr1", end.Add(-7*24*time.Hour), end, stats, streaks)
	require.NoError(t, err)

	var snap struct {
		TotalStreak int                       `json:"total_streak"`
		TopStreaks  []*reminder.StreakSummary `json:"streaks"`
	}
	require.NoError(t, json.Unmarshal(report.Snapshot, &snap))
	assert.Len(t, snap.TopStreaks, 5)
	assert.Equal(t, 10+9+8+7+6+5+4, snap.TotalStreak, "total counts every streak, not just the top five")
	assert.Equal(t, "s0", snap.TopStreaks[0].ID)
}

func TestReportSnapshotGolden(t *testing.T) {
	updated := time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)
	streaks := []*reminder.StreakSummary{
		{
			StreakState: reminder.StreakState{
				ID: "s1", OwnerID: "usr1", ReminderID: "rem1",
				CurrentStreak: 5, LongestStreak: 7, LastUpdated: updated,
			},
			Title: "Morning medication",
		},
		{
			StreakState: reminder.StreakState{
				ID: "s2", OwnerID: "usr1", ReminderID: "rem2",
				CurrentStreak: 2, LongestStreak: 4, LastUpdated: updated,
			},
			Title: "Evening walk",
		},
	}
	stats := reminder.CompletionStats{Total: 10, Completed: 8, Missed: 2, CompletionRate: 80}
	end := time.Date(2025, time.June, 9, 9, 0, 0, 0, time.UTC)

	report, err := BuildReport("usr1", end.Add(-7*24*time.Hour), end, stats, streaks)
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithNameSuffix(".golden.json"))
	g.Assert(t, "weekly_report_snapshot", report.Snapshot)
}
