package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"remindme/internal/reminder"
	"remindme/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendSentLog(t *testing.T, store storage.Storage, id, reminderID, ownerID string, at time.Time) *reminder.TriggerLog {
	t.Helper()
	log := &reminder.TriggerLog{
		ID:          id,
		ReminderID:  reminderID,
		OwnerID:     ownerID,
		TriggeredAt: at,
		Status:      reminder.LogStatusSent,
	}
	require.NoError(t, store.AppendTriggerLog(context.Background(), log))
	return log
}

func TestOnUserCompletion(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	now := time.Date(2025, time.June, 4, 13, 10, 0, 0, time.UTC)
	s := newTestScheduler(store, &fakeSink{}, now)

	u, r := seedReminder(t, store, "13:00")
	log := appendSentLog(t, store, "log1", r.ID, u.ID, now.Add(-10*time.Minute))

	c, err := s.OnUserCompletion(ctx, log.ID, u.ID)
	require.NoError(t, err)
	assert.Equal(t, reminder.CompletionCompleted, c.Status)
	assert.Equal(t, log.ID, c.LogID)
	assert.True(t, c.ScheduledTime.Equal(log.TriggeredAt))

	st, err := store.GetOrCreateStreak(ctx, u.ID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.CurrentStreak)
	assert.Equal(t, 1, st.LongestStreak)
	require.NotNil(t, st.LastCompleted)
	assert.True(t, st.LastCompleted.Equal(now))
}

func TestOnUserCompletionTwiceRejected(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	now := time.Date(2025, time.June, 4, 13, 10, 0, 0, time.UTC)
	s := newTestScheduler(store, &fakeSink{}, now)

	u, r := seedReminder(t, store, "13:00")
	log := appendSentLog(t, store, "log1", r.ID, u.ID, now.Add(-10*time.Minute))

	_, err := s.OnUserCompletion(ctx, log.ID, u.ID)
	require.NoError(t, err)

	_, err = s.OnUserCompletion(ctx, log.ID, u.ID)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)

	st, err := store.GetOrCreateStreak(ctx, u.ID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.CurrentStreak, "streak advances once per log")
}

func TestOnUserCompletionUnknownLog(t *testing.T) {
	store := storage.NewMemoryStorage()
	s := newTestScheduler(store, &fakeSink{}, time.Now().UTC())
	seedReminder(t, store, "13:00")

	_, err := s.OnUserCompletion(context.Background(), "nope", "usr1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestOnUserCompletionWrongOwner(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	now := time.Now().UTC()
	s := newTestScheduler(store, &fakeSink{}, now)

	u, r := seedReminder(t, store, "13:00")
	log := appendSentLog(t, store, "log1", r.ID, u.ID, now)

	_, err := s.OnUserCompletion(ctx, log.ID, "someone-else")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// A completion followed by a miss on the next log: the current streak grows
// then resets, while the longest streak only ratchets up.
func TestStreakLifecycle(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	now := time.Date(2025, time.June, 4, 13, 45, 0, 0, time.UTC)
	s := newTestScheduler(store, &fakeSink{}, now)

	u, r := seedReminder(t, store, "13:00")

	st, err := store.GetOrCreateStreak(ctx, u.ID, r.ID)
	require.NoError(t, err)
	st.CurrentStreak = 4
	st.LongestStreak = 6
	require.NoError(t, store.SaveStreak(ctx, st))

	log1 := appendSentLog(t, store, "log1", r.ID, u.ID, now.Add(-50*time.Minute))
	_, err = s.OnUserCompletion(ctx, log1.ID, u.ID)
	require.NoError(t, err)

	st, err = store.GetOrCreateStreak(ctx, u.ID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, st.CurrentStreak)
	assert.Equal(t, 6, st.LongestStreak)

	appendSentLog(t, store, "log2", r.ID, u.ID, now.Add(-45*time.Minute))
	require.NoError(t, s.DetectMissed(ctx))

	st, err = store.GetOrCreateStreak(ctx, u.ID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, st.CurrentStreak)
	assert.Equal(t, 6, st.LongestStreak)
}

// LongestStreak ratchets when the current streak passes it.
func TestStreakRaisesLongest(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	now := time.Date(2025, time.June, 4, 13, 10, 0, 0, time.UTC)
	s := newTestScheduler(store, &fakeSink{}, now)

	u, r := seedReminder(t, store, "13:00")

	st, err := store.GetOrCreateStreak(ctx, u.ID, r.ID)
	require.NoError(t, err)
	st.CurrentStreak = 6
	st.LongestStreak = 6
	require.NoError(t, store.SaveStreak(ctx, st))

	log := appendSentLog(t, store, "log1", r.ID, u.ID, now.Add(-5*time.Minute))
	_, err = s.OnUserCompletion(ctx, log.ID, u.ID)
	require.NoError(t, err)

	st, err = store.GetOrCreateStreak(ctx, u.ID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, st.CurrentStreak)
	assert.Equal(t, 7, st.LongestStreak)
}

// The user completing at the same instant the miss detector fires: exactly
// one completion row wins, and the streak ledger runs exactly once.
func TestUserCompletionRacesMissDetector(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	sink := &fakeSink{}
	now := time.Date(2025, time.June, 4, 13, 45, 0, 0, time.UTC)
	s := newTestScheduler(store, sink, now)

	u, r := seedReminder(t, store, "13:00")
	log := appendSentLog(t, store, "log1", r.ID, u.ID, now.Add(-45*time.Minute))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.OnUserCompletion(ctx, log.ID, u.ID)
	}()
	go func() {
		defer wg.Done()
		s.DetectMissed(ctx)
	}()
	wg.Wait()

	comps, err := store.ListCompletions(ctx, r.ID, u.ID, 10)
	require.NoError(t, err)
	require.Len(t, comps, 1, "exactly one completion row per log")

	st, err := store.GetOrCreateStreak(ctx, u.ID, r.ID)
	require.NoError(t, err)
	switch comps[0].Status {
	case reminder.CompletionCompleted:
		assert.Equal(t, 1, st.CurrentStreak)
		assert.Equal(t, 0, sink.missedCount(), "losing miss path must not notify")
	case reminder.CompletionMissed:
		assert.Equal(t, 0, st.CurrentStreak)
	default:
		t.Fatalf("unexpected completion status %q", comps[0].Status)
	}
}
