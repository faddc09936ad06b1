package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"remindme/internal/reminder"
	"remindme/internal/user"
)

// MemoryStorage is an in-memory backend for development and tests. All
// methods return copies so callers never share mutable state with the store.
type MemoryStorage struct {
	users       map[string]*user.User
	reminders   map[string]*reminder.Reminder
	logs        map[string]*reminder.TriggerLog
	completions map[string]*reminder.Completion
	byLogID     map[string]string // log ID -> completion ID, the uniqueness guard
	streaks     map[string]*reminder.StreakState
	reports     []*reminder.WeeklyReport
	mu          sync.Mutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:       make(map[string]*user.User),
		reminders:   make(map[string]*reminder.Reminder),
		logs:        make(map[string]*reminder.TriggerLog),
		completions: make(map[string]*reminder.Completion),
		byLogID:     make(map[string]string),
		streaks:     make(map[string]*reminder.StreakState),
	}
}

// User operations
func (m *MemoryStorage) CreateUser(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStorage) GetUser(_ context.Context, id string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStorage) ListUsers(_ context.Context) ([]*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*user.User
	for _, u := range m.users {
		cp := *u
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (m *MemoryStorage) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

// Reminder operations
func (m *MemoryStorage) CreateReminder(_ context.Context, r *reminder.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reminders[r.ID] = copyReminder(r)
	return nil
}

func (m *MemoryStorage) GetReminder(_ context.Context, id, ownerID string) (*reminder.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok || r.OwnerID != ownerID {
		return nil, fmt.Errorf("reminder %s: %w", id, ErrNotFound)
	}
	return copyReminder(r), nil
}

func (m *MemoryStorage) ListReminders(_ context.Context, ownerID string) ([]*reminder.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*reminder.Reminder
	for _, r := range m.reminders {
		if r.OwnerID == ownerID {
			list = append(list, copyReminder(r))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

func (m *MemoryStorage) UpdateReminder(_ context.Context, r *reminder.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.reminders[r.ID]
	if !ok || existing.OwnerID != r.OwnerID {
		return fmt.Errorf("reminder %s: %w", r.ID, ErrNotFound)
	}
	m.reminders[r.ID] = copyReminder(r)
	return nil
}

func (m *MemoryStorage) DeleteReminder(_ context.Context, id, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.reminders[id]; ok && r.OwnerID == ownerID {
		delete(m.reminders, id)
	}
	return nil
}

// Scheduler queries
func (m *MemoryStorage) ListActiveReminders(_ context.Context) ([]*reminder.OwnerReminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*reminder.OwnerReminder
	for _, r := range m.reminders {
		if !r.Active {
			continue
		}
		u, ok := m.users[r.OwnerID]
		if !ok {
			continue
		}
		list = append(list, &reminder.OwnerReminder{
			Reminder:   *copyReminder(r),
			OwnerName:  u.Name,
			OwnerEmail: u.Email,
			Timezone:   u.Timezone,
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (m *MemoryStorage) UpdateLastTriggered(_ context.Context, reminderID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[reminderID]
	if !ok {
		return fmt.Errorf("reminder %s: %w", reminderID, ErrNotFound)
	}
	t := at
	r.LastTriggered = &t
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Trigger log operations
func (m *MemoryStorage) AppendTriggerLog(_ context.Context, log *reminder.TriggerLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *log
	m.logs[log.ID] = &cp
	return nil
}

func (m *MemoryStorage) GetTriggerLog(_ context.Context, id, ownerID string) (*reminder.TriggerLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logs[id]
	if !ok || l.OwnerID != ownerID {
		return nil, fmt.Errorf("trigger log %s: %w", id, ErrNotFound)
	}
	cp := *l
	return &cp, nil
}

func (m *MemoryStorage) ListUnacknowledgedLogs(_ context.Context, olderThan time.Time) ([]*reminder.PendingLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*reminder.PendingLog
	for _, l := range m.logs {
		if l.Status != reminder.LogStatusSent || l.TriggeredAt.After(olderThan) {
			continue
		}
		if _, acked := m.byLogID[l.ID]; acked {
			continue
		}
		pl := m.joinLog(l)
		if pl == nil {
			continue
		}
		list = append(list, pl)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].TriggeredAt.Before(list[j].TriggeredAt) })
	return list, nil
}

func (m *MemoryStorage) ListPendingLogs(_ context.Context, ownerID string, limit int) ([]*reminder.PendingLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*reminder.PendingLog
	for _, l := range m.logs {
		if l.OwnerID != ownerID {
			continue
		}
		if _, acked := m.byLogID[l.ID]; acked {
			continue
		}
		if pl := m.joinLog(l); pl != nil {
			list = append(list, pl)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].TriggeredAt.After(list[j].TriggeredAt) })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// joinLog attaches reminder and owner fields. Returns nil when the reminder
// no longer exists; orphaned logs are never surfaced.
func (m *MemoryStorage) joinLog(l *reminder.TriggerLog) *reminder.PendingLog {
	r, ok := m.reminders[l.ReminderID]
	if !ok {
		return nil
	}
	pl := &reminder.PendingLog{
		TriggerLog: *l,
		Title:      r.Title,
		TimeOfDay:  r.TimeOfDay,
		Recurrence: r.Recurrence,
	}
	if u, ok := m.users[l.OwnerID]; ok {
		pl.OwnerName = u.Name
		pl.OwnerEmail = u.Email
		pl.Timezone = u.Timezone
	}
	return pl
}

// Completion operations
func (m *MemoryStorage) InsertCompletionIfAbsent(_ context.Context, c *reminder.Completion) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byLogID[c.LogID]; exists {
		return false, nil
	}
	cp := *c
	m.completions[c.ID] = &cp
	m.byLogID[c.LogID] = c.ID
	return true, nil
}

func (m *MemoryStorage) ListCompletions(_ context.Context, reminderID, ownerID string, limit int) ([]*reminder.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*reminder.Completion
	for _, c := range m.completions {
		if c.ReminderID == reminderID && c.OwnerID == ownerID {
			cp := *c
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ScheduledTime.After(list[j].ScheduledTime) })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *MemoryStorage) AggregateCompletions(_ context.Context, ownerID string, since time.Time) (reminder.CompletionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats reminder.CompletionStats
	for _, c := range m.completions {
		if c.OwnerID != ownerID || c.ScheduledTime.Before(since) {
			continue
		}
		stats.Total++
		switch c.Status {
		case reminder.CompletionCompleted:
			stats.Completed++
		case reminder.CompletionMissed:
			stats.Missed++
		}
	}
	if stats.Total > 0 {
		stats.CompletionRate = float64(stats.Completed) / float64(stats.Total) * 100
	}
	return stats, nil
}

// Streak operations
func (m *MemoryStorage) GetOrCreateStreak(_ context.Context, ownerID, reminderID string) (*reminder.StreakState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ownerID + "|" + reminderID
	s, ok := m.streaks[key]
	if !ok {
		s = &reminder.StreakState{
			ID:          key,
			OwnerID:     ownerID,
			ReminderID:  reminderID,
			LastUpdated: time.Now().UTC(),
		}
		m.streaks[key] = s
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStorage) SaveStreak(_ context.Context, s *reminder.StreakState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.streaks[s.OwnerID+"|"+s.ReminderID] = &cp
	return nil
}

func (m *MemoryStorage) ListStreaks(_ context.Context, ownerID string) ([]*reminder.StreakSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*reminder.StreakSummary
	for _, s := range m.streaks {
		if s.OwnerID != ownerID {
			continue
		}
		sum := &reminder.StreakSummary{StreakState: *s}
		if r, ok := m.reminders[s.ReminderID]; ok {
			sum.Title = r.Title
		}
		list = append(list, sum)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CurrentStreak > list[j].CurrentStreak })
	return list, nil
}

// Weekly report operations
func (m *MemoryStorage) SaveWeeklyReport(_ context.Context, r *reminder.WeeklyReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	cp.Snapshot = append([]byte(nil), r.Snapshot...)
	m.reports = append(m.reports, &cp)
	return nil
}

func copyReminder(r *reminder.Reminder) *reminder.Reminder {
	cp := *r
	if r.WeeklyDays != nil {
		cp.WeeklyDays = append([]int(nil), r.WeeklyDays...)
	}
	if r.LastTriggered != nil {
		t := *r.LastTriggered
		cp.LastTriggered = &t
	}
	return &cp
}

var _ Storage = (*MemoryStorage)(nil)
