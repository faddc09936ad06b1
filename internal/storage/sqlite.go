package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"remindme/internal/reminder"
	"remindme/internal/user"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage persists everything in a single SQLite database. The
// UNIQUE(log_id) constraint on reminder_completions enforces the
// exactly-once completion contract at the storage layer.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// Serialized access keeps the single writer happy under the
	// concurrent dispatch pool.
	db.SetMaxOpenConns(1)

	s := &SQLiteStorage{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT UNIQUE NOT NULL,
			timezone TEXT NOT NULL DEFAULT 'UTC',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reminders (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			reminder_time TEXT NOT NULL,
			recurrence_type TEXT NOT NULL CHECK(recurrence_type IN ('daily', 'weekly')),
			weekly_days TEXT, -- JSON array of weekday numbers
			is_active INTEGER NOT NULL DEFAULT 1,
			last_triggered TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS reminder_logs (
			id TEXT PRIMARY KEY,
			reminder_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			triggered_at TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'sent',
			FOREIGN KEY (reminder_id) REFERENCES reminders(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS reminder_completions (
			id TEXT PRIMARY KEY,
			reminder_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			log_id TEXT UNIQUE,
			completed_at TEXT NOT NULL,
			scheduled_time TEXT NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('completed', 'missed')),
			FOREIGN KEY (log_id) REFERENCES reminder_logs(id) ON DELETE SET NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_streaks (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			reminder_id TEXT NOT NULL,
			current_streak INTEGER NOT NULL DEFAULT 0,
			longest_streak INTEGER NOT NULL DEFAULT 0,
			last_completed TEXT,
			last_updated TEXT NOT NULL,
			UNIQUE(user_id, reminder_id)
		)`,
		`CREATE TABLE IF NOT EXISTS weekly_reports (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			week_start TEXT NOT NULL,
			week_end TEXT NOT NULL,
			total_reminders INTEGER NOT NULL,
			completed_count INTEGER NOT NULL,
			missed_count INTEGER NOT NULL,
			completion_rate REAL NOT NULL,
			report_data TEXT NOT NULL,
			sent_at TEXT NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %q: %w", query, err)
		}
	}
	return nil
}

// User operations
func (s *SQLiteStorage) CreateUser(ctx context.Context, u *user.User) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, name, email, timezone, created_at) VALUES (?, ?, ?, ?, ?)",
		u.ID, u.Name, u.Email, u.Timezone, formatTime(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetUser(ctx context.Context, id string) (*user.User, error) {
	var u user.User
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, email, timezone, created_at FROM users WHERE id = ?", id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Timezone, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if u.CreatedAt, err = parseTimeString(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created at: %w", err)
	}
	return &u, nil
}

func (s *SQLiteStorage) ListUsers(ctx context.Context) ([]*user.User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, email, timezone, created_at FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*user.User
	for rows.Next() {
		var u user.User
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Timezone, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if u.CreatedAt, err = parseTimeString(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created at: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

func (s *SQLiteStorage) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// Reminder operations
func (s *SQLiteStorage) CreateReminder(ctx context.Context, r *reminder.Reminder) error {
	daysJSON, err := json.Marshal(r.WeeklyDays)
	if err != nil {
		return fmt.Errorf("failed to marshal weekly days: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO reminders
		(id, user_id, title, description, reminder_time, recurrence_type, weekly_days,
		is_active, last_triggered, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.OwnerID, r.Title, r.Description, r.TimeOfDay, r.Recurrence,
		string(daysJSON), r.Active, formatTimePtr(r.LastTriggered),
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create reminder: %w", err)
	}
	return nil
}

const reminderColumns = `id, user_id, title, description, reminder_time,
	recurrence_type, weekly_days, is_active, last_triggered, created_at, updated_at`

func (s *SQLiteStorage) GetReminder(ctx context.Context, id, ownerID string) (*reminder.Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE id = ? AND user_id = ?`, id, ownerID)
	r, err := scanReminder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("reminder %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return r, nil
}

func (s *SQLiteStorage) ListReminders(ctx context.Context, ownerID string) ([]*reminder.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE user_id = ? ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	defer rows.Close()

	var reminders []*reminder.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

func (s *SQLiteStorage) UpdateReminder(ctx context.Context, r *reminder.Reminder) error {
	daysJSON, err := json.Marshal(r.WeeklyDays)
	if err != nil {
		return fmt.Errorf("failed to marshal weekly days: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE reminders SET
		title = ?, description = ?, reminder_time = ?, recurrence_type = ?,
		weekly_days = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		r.Title, r.Description, r.TimeOfDay, r.Recurrence, string(daysJSON),
		r.Active, formatTime(time.Now().UTC()), r.ID, r.OwnerID)
	if err != nil {
		return fmt.Errorf("failed to update reminder: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("reminder %s: %w", r.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStorage) DeleteReminder(ctx context.Context, id, ownerID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM reminders WHERE id = ? AND user_id = ?", id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}
	return nil
}

// Scheduler queries
func (s *SQLiteStorage) ListActiveReminders(ctx context.Context) ([]*reminder.OwnerReminder, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		r.id, r.user_id, r.title, r.description, r.reminder_time, r.recurrence_type,
		r.weekly_days, r.is_active, r.last_triggered, r.created_at, r.updated_at,
		u.name, u.email, u.timezone
		FROM reminders r
		JOIN users u ON r.user_id = u.id
		WHERE r.is_active = 1
		ORDER BY r.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active reminders: %w", err)
	}
	defer rows.Close()

	var reminders []*reminder.OwnerReminder
	for rows.Next() {
		var or reminder.OwnerReminder
		var daysJSON string
		var description, lastTriggered sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&or.ID, &or.OwnerID, &or.Title, &description, &or.TimeOfDay,
			&or.Recurrence, &daysJSON, &or.Active, &lastTriggered, &createdAt, &updatedAt,
			&or.OwnerName, &or.OwnerEmail, &or.Timezone); err != nil {
			return nil, fmt.Errorf("failed to scan active reminder: %w", err)
		}
		or.Description = description.String
		if err := finishReminder(&or.Reminder, daysJSON, lastTriggered, createdAt, updatedAt); err != nil {
			return nil, err
		}
		reminders = append(reminders, &or)
	}
	return reminders, rows.Err()
}

func (s *SQLiteStorage) UpdateLastTriggered(ctx context.Context, reminderID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE reminders SET last_triggered = ?, updated_at = ? WHERE id = ?",
		formatTime(at), formatTime(time.Now().UTC()), reminderID)
	if err != nil {
		return fmt.Errorf("failed to update last triggered: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("reminder %s: %w", reminderID, ErrNotFound)
	}
	return nil
}

// Trigger log operations
func (s *SQLiteStorage) AppendTriggerLog(ctx context.Context, log *reminder.TriggerLog) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO reminder_logs (id, reminder_id, user_id, triggered_at, status) VALUES (?, ?, ?, ?, ?)",
		log.ID, log.ReminderID, log.OwnerID, formatTime(log.TriggeredAt), log.Status)
	if err != nil {
		return fmt.Errorf("failed to append trigger log: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetTriggerLog(ctx context.Context, id, ownerID string) (*reminder.TriggerLog, error) {
	var l reminder.TriggerLog
	var triggeredAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, reminder_id, user_id, triggered_at, status FROM reminder_logs WHERE id = ? AND user_id = ?",
		id, ownerID).
		Scan(&l.ID, &l.ReminderID, &l.OwnerID, &triggeredAt, &l.Status)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("trigger log %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get trigger log: %w", err)
	}
	if l.TriggeredAt, err = parseTimeString(triggeredAt); err != nil {
		return nil, fmt.Errorf("failed to parse triggered at: %w", err)
	}
	return &l, nil
}

const pendingLogQuery = `SELECT
	rl.id, rl.reminder_id, rl.user_id, rl.triggered_at, rl.status,
	r.title, r.reminder_time, r.recurrence_type,
	u.name, u.email, u.timezone
	FROM reminder_logs rl
	JOIN reminders r ON rl.reminder_id = r.id
	JOIN users u ON rl.user_id = u.id
	LEFT JOIN reminder_completions rc ON rl.id = rc.log_id
	WHERE rc.id IS NULL`

func (s *SQLiteStorage) ListUnacknowledgedLogs(ctx context.Context, olderThan time.Time) ([]*reminder.PendingLog, error) {
	rows, err := s.db.QueryContext(ctx,
		pendingLogQuery+` AND rl.status = 'sent' AND rl.triggered_at <= ? ORDER BY rl.triggered_at`,
		formatTime(olderThan))
	if err != nil {
		return nil, fmt.Errorf("failed to list unacknowledged logs: %w", err)
	}
	defer rows.Close()
	return scanPendingLogs(rows)
}

func (s *SQLiteStorage) ListPendingLogs(ctx context.Context, ownerID string, limit int) ([]*reminder.PendingLog, error) {
	rows, err := s.db.QueryContext(ctx,
		pendingLogQuery+` AND rl.user_id = ? ORDER BY rl.triggered_at DESC LIMIT ?`,
		ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending logs: %w", err)
	}
	defer rows.Close()
	return scanPendingLogs(rows)
}

func scanPendingLogs(rows *sql.Rows) ([]*reminder.PendingLog, error) {
	var logs []*reminder.PendingLog
	for rows.Next() {
		var pl reminder.PendingLog
		var triggeredAt string
		if err := rows.Scan(&pl.ID, &pl.ReminderID, &pl.OwnerID, &triggeredAt, &pl.Status,
			&pl.Title, &pl.TimeOfDay, &pl.Recurrence,
			&pl.OwnerName, &pl.OwnerEmail, &pl.Timezone); err != nil {
			return nil, fmt.Errorf("failed to scan pending log: %w", err)
		}
		var err error
		if pl.TriggeredAt, err = parseTimeString(triggeredAt); err != nil {
			return nil, fmt.Errorf("failed to parse triggered at: %w", err)
		}
		logs = append(logs, &pl)
	}
	return logs, rows.Err()
}

// Completion operations
func (s *SQLiteStorage) InsertCompletionIfAbsent(ctx context.Context, c *reminder.Completion) (bool, error) {
	// INSERT OR IGNORE rides the UNIQUE(log_id) constraint; the loser of a
	// concurrent insert sees zero rows affected, not an error.
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO reminder_completions
		(id, reminder_id, user_id, log_id, completed_at, scheduled_time, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ReminderID, c.OwnerID, c.LogID,
		formatTime(c.CompletedAt), formatTime(c.ScheduledTime), c.Status)
	if err != nil {
		return false, fmt.Errorf("failed to insert completion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStorage) ListCompletions(ctx context.Context, reminderID, ownerID string, limit int) ([]*reminder.Completion, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, reminder_id, user_id, log_id, completed_at, scheduled_time, status
		FROM reminder_completions
		WHERE reminder_id = ? AND user_id = ?
		ORDER BY scheduled_time DESC LIMIT ?`,
		reminderID, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}
	defer rows.Close()

	var completions []*reminder.Completion
	for rows.Next() {
		var c reminder.Completion
		var logID sql.NullString
		var completedAt, scheduledTime string
		if err := rows.Scan(&c.ID, &c.ReminderID, &c.OwnerID, &logID,
			&completedAt, &scheduledTime, &c.Status); err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		c.LogID = logID.String
		if c.CompletedAt, err = parseTimeString(completedAt); err != nil {
			return nil, fmt.Errorf("failed to parse completed at: %w", err)
		}
		if c.ScheduledTime, err = parseTimeString(scheduledTime); err != nil {
			return nil, fmt.Errorf("failed to parse scheduled time: %w", err)
		}
		completions = append(completions, &c)
	}
	return completions, rows.Err()
}

func (s *SQLiteStorage) AggregateCompletions(ctx context.Context, ownerID string, since time.Time) (reminder.CompletionStats, error) {
	var stats reminder.CompletionStats
	err := s.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'missed' THEN 1 ELSE 0 END), 0)
		FROM reminder_completions
		WHERE user_id = ? AND scheduled_time >= ?`,
		ownerID, formatTime(since)).
		Scan(&stats.Total, &stats.Completed, &stats.Missed)
	if err != nil {
		return stats, fmt.Errorf("failed to aggregate completions: %w", err)
	}
	if stats.Total > 0 {
		stats.CompletionRate = float64(stats.Completed) / float64(stats.Total) * 100
	}
	return stats, nil
}

// Streak operations
func (s *SQLiteStorage) GetOrCreateStreak(ctx context.Context, ownerID, reminderID string) (*reminder.StreakState, error) {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO user_streaks
		(id, user_id, reminder_id, current_streak, longest_streak, last_updated)
		VALUES (?, ?, ?, 0, 0, ?)`,
		ownerID+"|"+reminderID, ownerID, reminderID, formatTime(time.Now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("failed to create streak: %w", err)
	}

	var st reminder.StreakState
	var lastCompleted sql.NullString
	var lastUpdated string
	err = s.db.QueryRowContext(ctx, `SELECT
		id, user_id, reminder_id, current_streak, longest_streak, last_completed, last_updated
		FROM user_streaks WHERE user_id = ? AND reminder_id = ?`,
		ownerID, reminderID).
		Scan(&st.ID, &st.OwnerID, &st.ReminderID, &st.CurrentStreak, &st.LongestStreak,
			&lastCompleted, &lastUpdated)
	if err != nil {
		return nil, fmt.Errorf("failed to get streak: %w", err)
	}
	if st.LastCompleted, err = parseTimePtr(lastCompleted); err != nil {
		return nil, fmt.Errorf("failed to parse last completed: %w", err)
	}
	if st.LastUpdated, err = parseTimeString(lastUpdated); err != nil {
		return nil, fmt.Errorf("failed to parse last updated: %w", err)
	}
	return &st, nil
}

func (s *SQLiteStorage) SaveStreak(ctx context.Context, st *reminder.StreakState) error {
	_, err := s.db.ExecContext(ctx, `UPDATE user_streaks SET
		current_streak = ?, longest_streak = ?, last_completed = ?, last_updated = ?
		WHERE user_id = ? AND reminder_id = ?`,
		st.CurrentStreak, st.LongestStreak, formatTimePtr(st.LastCompleted),
		formatTime(st.LastUpdated), st.OwnerID, st.ReminderID)
	if err != nil {
		return fmt.Errorf("failed to save streak: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ListStreaks(ctx context.Context, ownerID string) ([]*reminder.StreakSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		us.id, us.user_id, us.reminder_id, us.current_streak, us.longest_streak,
		us.last_completed, us.last_updated, COALESCE(r.title, '')
		FROM user_streaks us
		LEFT JOIN reminders r ON us.reminder_id = r.id
		WHERE us.user_id = ?
		ORDER BY us.current_streak DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list streaks: %w", err)
	}
	defer rows.Close()

	var streaks []*reminder.StreakSummary
	for rows.Next() {
		var sum reminder.StreakSummary
		var lastCompleted sql.NullString
		var lastUpdated string
		if err := rows.Scan(&sum.ID, &sum.OwnerID, &sum.ReminderID, &sum.CurrentStreak,
			&sum.LongestStreak, &lastCompleted, &lastUpdated, &sum.Title); err != nil {
			return nil, fmt.Errorf("failed to scan streak: %w", err)
		}
		if sum.LastCompleted, err = parseTimePtr(lastCompleted); err != nil {
			return nil, fmt.Errorf("failed to parse last completed: %w", err)
		}
		if sum.LastUpdated, err = parseTimeString(lastUpdated); err != nil {
			return nil, fmt.Errorf("failed to parse last updated: %w", err)
		}
		streaks = append(streaks, &sum)
	}
	return streaks, rows.Err()
}

// Weekly report operations
func (s *SQLiteStorage) SaveWeeklyReport(ctx context.Context, r *reminder.WeeklyReport) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO weekly_reports
		(id, user_id, week_start, week_end, total_reminders, completed_count,
		missed_count, completion_rate, report_data, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.OwnerID, formatTime(r.WeekStart), formatTime(r.WeekEnd),
		r.Stats.Total, r.Stats.Completed, r.Stats.Missed, r.Stats.CompletionRate,
		string(r.Snapshot), formatTime(r.SentAt))
	if err != nil {
		return fmt.Errorf("failed to save weekly report: %w", err)
	}
	return nil
}

// Row scanning helpers

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*reminder.Reminder, error) {
	var r reminder.Reminder
	var daysJSON string
	var description, lastTriggered sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&r.ID, &r.OwnerID, &r.Title, &description, &r.TimeOfDay,
		&r.Recurrence, &daysJSON, &r.Active, &lastTriggered, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan reminder: %w", err)
	}
	r.Description = description.String
	if err := finishReminder(&r, daysJSON, lastTriggered, createdAt, updatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func finishReminder(r *reminder.Reminder, daysJSON string, lastTriggered sql.NullString, createdAt, updatedAt string) error {
	if daysJSON != "" && daysJSON != "null" {
		if err := json.Unmarshal([]byte(daysJSON), &r.WeeklyDays); err != nil {
			return fmt.Errorf("failed to unmarshal weekly days: %w", err)
		}
	}
	var err error
	if r.LastTriggered, err = parseTimePtr(lastTriggered); err != nil {
		return fmt.Errorf("failed to parse last triggered: %w", err)
	}
	if r.CreatedAt, err = parseTimeString(createdAt); err != nil {
		return fmt.Errorf("failed to parse created at: %w", err)
	}
	if r.UpdatedAt, err = parseTimeString(updatedAt); err != nil {
		return fmt.Errorf("failed to parse updated at: %w", err)
	}
	return nil
}

// Time helpers. Times are stored as UTC RFC 3339 strings so lexicographic
// comparison in SQL matches chronological order.

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z07:00")
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTimeString(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseTimeString parses a time string in ISO 8601 format
func parseTimeString(timeStr string) (time.Time, error) {
	formats := []string{
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, timeStr); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse time string: %s", timeStr)
}

var _ Storage = (*SQLiteStorage)(nil)
