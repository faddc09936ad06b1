package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"remindme/internal/reminder"
	"remindme/internal/scheduler"
	"remindme/internal/storage"
	"remindme/internal/user"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	store  *storage.MemoryStorage
	router *mux.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := storage.NewMemoryStorage()
	log := zap.NewNop().Sugar()
	sched := scheduler.New(store, &nopSink{}, scheduler.DefaultConfig(), log)

	router := mux.NewRouter()
	New(store, sched, nil, log).Routes(router)
	return &testEnv{store: store, router: router}
}

type nopSink struct{}

func (nopSink) SendReminder(context.Context, *reminder.OwnerReminder) error { return nil }
func (nopSink) SendMissed(context.Context, *reminder.PendingLog) error      { return nil }
func (nopSink) SendWeeklyReport(context.Context, string, string, *reminder.WeeklyReport) error {
	return nil
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) seedUser(t *testing.T) *user.User {
	t.Helper()
	u := user.New("usr1", "Alice", "alice@example.com", "UTC")
	require.NoError(t, e.store.CreateUser(context.Background(), u))
	return u
}

func TestCreateUser(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, "POST", "/users", "", map[string]string{
		"name":     "Alice",
		"email":    "alice@example.com",
		"timezone": "America/New_York",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var got user.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "America/New_York", got.Timezone)
}

func TestCreateUserValidation(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, "POST", "/users", "", map[string]string{"name": "Alice", "email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, "POST", "/users", "", map[string]string{
		"name": "Alice", "email": "alice@example.com", "timezone": "Nowhere/Void",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateReminder(t *testing.T) {
	e := newTestEnv(t)
	u := e.seedUser(t)

	w := e.do(t, "POST", "/reminders", u.ID, map[string]any{
		"title":           "Morning medication",
		"reminder_time":   "09:00",
		"recurrence_type": "weekly",
		"weekly_days":     []int{1, 3, 5},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var got reminder.Reminder
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, u.ID, got.OwnerID)
	assert.True(t, got.Active)
	assert.Equal(t, []int{1, 3, 5}, got.WeeklyDays)
}

func TestCreateReminderRequiresUserHeader(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, "POST", "/reminders", "", map[string]any{
		"title": "x", "reminder_time": "09:00", "recurrence_type": "daily",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateReminderValidation(t *testing.T) {
	e := newTestEnv(t)
	u := e.seedUser(t)

	// Unknown recurrence type
	w := e.do(t, "POST", "/reminders", u.ID, map[string]any{
		"title": "x", "reminder_time": "09:00", "recurrence_type": "monthly",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Weekly without days
	w = e.do(t, "POST", "/reminders", u.ID, map[string]any{
		"title": "x", "reminder_time": "09:00", "recurrence_type": "weekly",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unparseable clock time
	w = e.do(t, "POST", "/reminders", u.ID, map[string]any{
		"title": "x", "reminder_time": "25:99", "recurrence_type": "daily",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Out-of-range weekday
	w = e.do(t, "POST", "/reminders", u.ID, map[string]any{
		"title": "x", "reminder_time": "09:00", "recurrence_type": "weekly",
		"weekly_days": []int{7},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReminderOwnerScoping(t *testing.T) {
	e := newTestEnv(t)
	u := e.seedUser(t)
	other := user.New("usr2", "Bob", "bob@example.com", "UTC")
	require.NoError(t, e.store.CreateUser(context.Background(), other))

	w := e.do(t, "POST", "/reminders", u.ID, map[string]any{
		"title": "Morning medication", "reminder_time": "09:00", "recurrence_type": "daily",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created reminder.Reminder
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = e.do(t, "GET", "/reminders/"+created.ID, other.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, "GET", "/reminders/"+created.ID, u.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateReminderPatch(t *testing.T) {
	e := newTestEnv(t)
	u := e.seedUser(t)

	w := e.do(t, "POST", "/reminders", u.ID, map[string]any{
		"title": "Morning medication", "reminder_time": "09:00", "recurrence_type": "daily",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created reminder.Reminder
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = e.do(t, "PATCH", "/reminders/"+created.ID, u.ID, map[string]any{
		"reminder_time": "21:30",
		"is_active":     false,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var updated reminder.Reminder
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "21:30", updated.TimeOfDay)
	assert.False(t, updated.Active)

	// A patch that breaks the recurrence invariants is rejected
	w = e.do(t, "PATCH", "/reminders/"+created.ID, u.ID, map[string]any{
		"recurrence_type": "weekly",
		"weekly_days":     []int{},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCompleteReminderFlow(t *testing.T) {
	e := newTestEnv(t)
	u := e.seedUser(t)
	ctx := context.Background()

	r := reminder.New("rem1", u.ID, "Morning medication", "", "09:00", reminder.RecurrenceDaily, nil)
	require.NoError(t, e.store.CreateReminder(ctx, r))
	log := &reminder.TriggerLog{
		ID: "log1", ReminderID: r.ID, OwnerID: u.ID,
		TriggeredAt: time.Now().UTC().Add(-5 * time.Minute),
		Status:      reminder.LogStatusSent,
	}
	require.NoError(t, e.store.AppendTriggerLog(ctx, log))

	w := e.do(t, "GET", "/completions/pending", u.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pending []*reminder.PendingLog
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	require.Len(t, pending, 1)

	w = e.do(t, "POST", "/completions/"+log.ID+"/complete", u.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Completing twice is rejected
	w = e.do(t, "POST", "/completions/"+log.ID+"/complete", u.ID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown log
	w = e.do(t, "POST", "/completions/nope/complete", u.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Pending view drains and history grows
	w = e.do(t, "GET", "/completions/pending", u.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	pending = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	assert.Empty(t, pending)

	w = e.do(t, "GET", "/completions/history/"+r.ID, u.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []*reminder.Completion
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, reminder.CompletionCompleted, history[0].Status)

	w = e.do(t, "GET", "/streaks/"+r.ID, u.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st reminder.StreakState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 1, st.CurrentStreak)
}

func TestAnalyticsSummary(t *testing.T) {
	e := newTestEnv(t)
	u := e.seedUser(t)
	ctx := context.Background()

	r := reminder.New("rem1", u.ID, "Morning medication", "", "09:00", reminder.RecurrenceDaily, nil)
	require.NoError(t, e.store.CreateReminder(ctx, r))

	now := time.Now().UTC()
	require.NoError(t, e.store.AppendTriggerLog(ctx, &reminder.TriggerLog{
		ID: "log1", ReminderID: r.ID, OwnerID: u.ID,
		TriggeredAt: now.Add(-time.Hour), Status: reminder.LogStatusSent,
	}))
	_, err := e.store.InsertCompletionIfAbsent(ctx, &reminder.Completion{
		ID: "cmp1", ReminderID: r.ID, OwnerID: u.ID, LogID: "log1",
		CompletedAt: now, ScheduledTime: now.Add(-time.Hour),
		Status: reminder.CompletionCompleted,
	})
	require.NoError(t, err)

	w := e.do(t, "GET", "/analytics/summary", u.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var summary struct {
		TotalActiveReminders int                      `json:"total_active_reminders"`
		Stats                reminder.CompletionStats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.TotalActiveReminders)
	assert.Equal(t, 1, summary.Stats.Completed)
	assert.Equal(t, float64(100), summary.Stats.CompletionRate)
}
