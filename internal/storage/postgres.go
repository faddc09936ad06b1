package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"remindme/internal/reminder"
	"remindme/internal/user"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage persists everything in PostgreSQL via a pgx pool. The
// unique constraint on reminder_completions.log_id enforces the exactly-once
// completion contract; InsertCompletionIfAbsent uses ON CONFLICT DO NOTHING
// so race losers observe inserted=false instead of an error.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

func NewPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	s := &PostgresStorage{pool: pool}
	if err := s.createTables(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (p *PostgresStorage) Close() {
	p.pool.Close()
}

func (p *PostgresStorage) createTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT UNIQUE NOT NULL,
			timezone TEXT NOT NULL DEFAULT 'UTC',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reminders (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			reminder_time TEXT NOT NULL,
			recurrence_type TEXT NOT NULL CHECK(recurrence_type IN ('daily', 'weekly')),
			weekly_days JSONB,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			last_triggered TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reminder_logs (
			id TEXT PRIMARY KEY,
			reminder_id TEXT NOT NULL REFERENCES reminders(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			triggered_at TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL DEFAULT 'sent'
		)`,
		`CREATE TABLE IF NOT EXISTS reminder_completions (
			id TEXT PRIMARY KEY,
			reminder_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			log_id TEXT UNIQUE REFERENCES reminder_logs(id) ON DELETE SET NULL,
			completed_at TIMESTAMPTZ NOT NULL,
			scheduled_time TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('completed', 'missed'))
		)`,
		`CREATE TABLE IF NOT EXISTS user_streaks (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			reminder_id TEXT NOT NULL,
			current_streak INTEGER NOT NULL DEFAULT 0,
			longest_streak INTEGER NOT NULL DEFAULT 0,
			last_completed TIMESTAMPTZ,
			last_updated TIMESTAMPTZ NOT NULL,
			UNIQUE(user_id, reminder_id)
		)`,
		`CREATE TABLE IF NOT EXISTS weekly_reports (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			week_start TIMESTAMPTZ NOT NULL,
			week_end TIMESTAMPTZ NOT NULL,
			total_reminders INTEGER NOT NULL,
			completed_count INTEGER NOT NULL,
			missed_count INTEGER NOT NULL,
			completion_rate DOUBLE PRECISION NOT NULL,
			report_data JSONB NOT NULL,
			sent_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, query := range queries {
		if _, err := p.pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query %q: %w", query, err)
		}
	}
	return nil
}

// User operations
func (p *PostgresStorage) CreateUser(ctx context.Context, u *user.User) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, timezone, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Name, u.Email, u.Timezone, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (p *PostgresStorage) GetUser(ctx context.Context, id string) (*user.User, error) {
	var u user.User
	err := p.pool.QueryRow(ctx,
		`SELECT id, name, email, timezone, created_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Timezone, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (p *PostgresStorage) ListUsers(ctx context.Context) ([]*user.User, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, name, email, timezone, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*user.User
	for rows.Next() {
		var u user.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Timezone, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

func (p *PostgresStorage) DeleteUser(ctx context.Context, id string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// Reminder operations
func (p *PostgresStorage) CreateReminder(ctx context.Context, r *reminder.Reminder) error {
	daysJSON, err := json.Marshal(r.WeeklyDays)
	if err != nil {
		return fmt.Errorf("failed to marshal weekly days: %w", err)
	}
	_, err = p.pool.Exec(ctx, `INSERT INTO reminders
		(id, user_id, title, description, reminder_time, recurrence_type, weekly_days,
		is_active, last_triggered, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.OwnerID, r.Title, r.Description, r.TimeOfDay, r.Recurrence,
		daysJSON, r.Active, r.LastTriggered, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create reminder: %w", err)
	}
	return nil
}

func (p *PostgresStorage) GetReminder(ctx context.Context, id, ownerID string) (*reminder.Reminder, error) {
	row := p.pool.QueryRow(ctx, `SELECT
		id, user_id, title, description, reminder_time, recurrence_type,
		weekly_days, is_active, last_triggered, created_at, updated_at
		FROM reminders WHERE id = $1 AND user_id = $2`, id, ownerID)
	r, err := p.scanReminder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("reminder %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return r, nil
}

func (p *PostgresStorage) ListReminders(ctx context.Context, ownerID string) ([]*reminder.Reminder, error) {
	rows, err := p.pool.Query(ctx, `SELECT
		id, user_id, title, description, reminder_time, recurrence_type,
		weekly_days, is_active, last_triggered, created_at, updated_at
		FROM reminders WHERE user_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	defer rows.Close()

	var reminders []*reminder.Reminder
	for rows.Next() {
		r, err := p.scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

func (p *PostgresStorage) UpdateReminder(ctx context.Context, r *reminder.Reminder) error {
	daysJSON, err := json.Marshal(r.WeeklyDays)
	if err != nil {
		return fmt.Errorf("failed to marshal weekly days: %w", err)
	}
	tag, err := p.pool.Exec(ctx, `UPDATE reminders SET
		title = $1, description = $2, reminder_time = $3, recurrence_type = $4,
		weekly_days = $5, is_active = $6, updated_at = $7
		WHERE id = $8 AND user_id = $9`,
		r.Title, r.Description, r.TimeOfDay, r.Recurrence, daysJSON,
		r.Active, time.Now().UTC(), r.ID, r.OwnerID)
	if err != nil {
		return fmt.Errorf("failed to update reminder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reminder %s: %w", r.ID, ErrNotFound)
	}
	return nil
}

func (p *PostgresStorage) DeleteReminder(ctx context.Context, id, ownerID string) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM reminders WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}
	return nil
}

// Scheduler queries
func (p *PostgresStorage) ListActiveReminders(ctx context.Context) ([]*reminder.OwnerReminder, error) {
	rows, err := p.pool.Query(ctx, `SELECT
		r.id, r.user_id, r.title, r.description, r.reminder_time, r.recurrence_type,
		r.weekly_days, r.is_active, r.last_triggered, r.created_at, r.updated_at,
		u.name, u.email, u.timezone
		FROM reminders r
		JOIN users u ON r.user_id = u.id
		WHERE r.is_active
		ORDER BY r.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active reminders: %w", err)
	}
	defer rows.Close()

	var reminders []*reminder.OwnerReminder
	for rows.Next() {
		var or reminder.OwnerReminder
		var daysJSON []byte
		if err := rows.Scan(&or.ID, &or.OwnerID, &or.Title, &or.Description, &or.TimeOfDay,
			&or.Recurrence, &daysJSON, &or.Active, &or.LastTriggered, &or.CreatedAt, &or.UpdatedAt,
			&or.OwnerName, &or.OwnerEmail, &or.Timezone); err != nil {
			return nil, fmt.Errorf("failed to scan active reminder: %w", err)
		}
		if err := unmarshalDays(daysJSON, &or.WeeklyDays); err != nil {
			return nil, err
		}
		reminders = append(reminders, &or)
	}
	return reminders, rows.Err()
}

func (p *PostgresStorage) UpdateLastTriggered(ctx context.Context, reminderID string, at time.Time) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE reminders SET last_triggered = $1, updated_at = $2 WHERE id = $3`,
		at, time.Now().UTC(), reminderID)
	if err != nil {
		return fmt.Errorf("failed to update last triggered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reminder %s: %w", reminderID, ErrNotFound)
	}
	return nil
}

// Trigger log operations
func (p *PostgresStorage) AppendTriggerLog(ctx context.Context, log *reminder.TriggerLog) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO reminder_logs (id, reminder_id, user_id, triggered_at, status)
		VALUES ($1, $2, $3, $4, $5)`,
		log.ID, log.ReminderID, log.OwnerID, log.TriggeredAt, log.Status)
	if err != nil {
		return fmt.Errorf("failed to append trigger log: %w", err)
	}
	return nil
}

func (p *PostgresStorage) GetTriggerLog(ctx context.Context, id, ownerID string) (*reminder.TriggerLog, error) {
	var l reminder.TriggerLog
	err := p.pool.QueryRow(ctx,
		`SELECT id, reminder_id, user_id, triggered_at, status
		FROM reminder_logs WHERE id = $1 AND user_id = $2`, id, ownerID).
		Scan(&l.ID, &l.ReminderID, &l.OwnerID, &l.TriggeredAt, &l.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("trigger log %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get trigger log: %w", err)
	}
	return &l, nil
}

const pgPendingLogQuery = `SELECT
	rl.id, rl.reminder_id, rl.user_id, rl.triggered_at, rl.status,
	r.title, r.reminder_time, r.recurrence_type,
	u.name, u.email, u.timezone
	FROM reminder_logs rl
	JOIN reminders r ON rl.reminder_id = r.id
	JOIN users u ON rl.user_id = u.id
	LEFT JOIN reminder_completions rc ON rl.id = rc.log_id
	WHERE rc.id IS NULL`

func (p *PostgresStorage) ListUnacknowledgedLogs(ctx context.Context, olderThan time.Time) ([]*reminder.PendingLog, error) {
	rows, err := p.pool.Query(ctx,
		pgPendingLogQuery+` AND rl.status = 'sent' AND rl.triggered_at <= $1 ORDER BY rl.triggered_at`,
		olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to list unacknowledged logs: %w", err)
	}
	defer rows.Close()
	return p.scanPendingLogs(rows)
}

func (p *PostgresStorage) ListPendingLogs(ctx context.Context, ownerID string, limit int) ([]*reminder.PendingLog, error) {
	rows, err := p.pool.Query(ctx,
		pgPendingLogQuery+` AND rl.user_id = $1 ORDER BY rl.triggered_at DESC LIMIT $2`,
		ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending logs: %w", err)
	}
	defer rows.Close()
	return p.scanPendingLogs(rows)
}

func (p *PostgresStorage) scanPendingLogs(rows pgx.Rows) ([]*reminder.PendingLog, error) {
	var logs []*reminder.PendingLog
	for rows.Next() {
		var pl reminder.PendingLog
		if err := rows.Scan(&pl.ID, &pl.ReminderID, &pl.OwnerID, &pl.TriggeredAt, &pl.Status,
			&pl.Title, &pl.TimeOfDay, &pl.Recurrence,
			&pl.OwnerName, &pl.OwnerEmail, &pl.Timezone); err != nil {
			return nil, fmt.Errorf("failed to scan pending log: %w", err)
		}
		logs = append(logs, &pl)
	}
	return logs, rows.Err()
}

// Completion operations
func (p *PostgresStorage) InsertCompletionIfAbsent(ctx context.Context, c *reminder.Completion) (bool, error) {
	tag, err := p.pool.Exec(ctx, `INSERT INTO reminder_completions
		(id, reminder_id, user_id, log_id, completed_at, scheduled_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (log_id) DO NOTHING`,
		c.ID, c.ReminderID, c.OwnerID, c.LogID, c.CompletedAt, c.ScheduledTime, c.Status)
	if err != nil {
		return false, fmt.Errorf("failed to insert completion: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *PostgresStorage) ListCompletions(ctx context.Context, reminderID, ownerID string, limit int) ([]*reminder.Completion, error) {
	rows, err := p.pool.Query(ctx, `SELECT
		id, reminder_id, user_id, COALESCE(log_id, ''), completed_at, scheduled_time, status
		FROM reminder_completions
		WHERE reminder_id = $1 AND user_id = $2
		ORDER BY scheduled_time DESC LIMIT $3`,
		reminderID, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}
	defer rows.Close()

	var completions []*reminder.Completion
	for rows.Next() {
		var c reminder.Completion
		if err := rows.Scan(&c.ID, &c.ReminderID, &c.OwnerID, &c.LogID,
			&c.CompletedAt, &c.ScheduledTime, &c.Status); err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		completions = append(completions, &c)
	}
	return completions, rows.Err()
}

func (p *PostgresStorage) AggregateCompletions(ctx context.Context, ownerID string, since time.Time) (reminder.CompletionStats, error) {
	var stats reminder.CompletionStats
	err := p.pool.QueryRow(ctx, `SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'missed' THEN 1 ELSE 0 END), 0)
		FROM reminder_completions
		WHERE user_id = $1 AND scheduled_time >= $2`,
		ownerID, since).
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
func (p *PostgresStorage) GetOrCreateStreak(ctx context.Context, ownerID, reminderID string) (*reminder.StreakState, error) {
	_, err := p.pool.Exec(ctx, `INSERT INTO user_streaks
		(id, user_id, reminder_id, current_streak, longest_streak, last_updated)
		VALUES ($1, $2, $3, 0, 0, $4)
		ON CONFLICT (user_id, reminder_id) DO NOTHING`,
		ownerID+"|"+reminderID, ownerID, reminderID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create streak: %w", err)
	}

	var st reminder.StreakState
	err = p.pool.QueryRow(ctx, `SELECT
		id, user_id, reminder_id, current_streak, longest_streak, last_completed, last_updated
		FROM user_streaks WHERE user_id = $1 AND reminder_id = $2`,
		ownerID, reminderID).
		Scan(&st.ID, &st.OwnerID, &st.ReminderID, &st.CurrentStreak, &st.LongestStreak,
			&st.LastCompleted, &st.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("failed to get streak: %w", err)
	}
	return &st, nil
}

func (p *PostgresStorage) SaveStreak(ctx context.Context, st *reminder.StreakState) error {
	_, err := p.pool.Exec(ctx, `UPDATE user_streaks SET
		current_streak = $1, longest_streak = $2, last_completed = $3, last_updated = $4
		WHERE user_id = $5 AND reminder_id = $6`,
		st.CurrentStreak, st.LongestStreak, st.LastCompleted, st.LastUpdated,
		st.OwnerID, st.ReminderID)
	if err != nil {
		return fmt.Errorf("failed to save streak: %w", err)
	}
	return nil
}

func (p *PostgresStorage) ListStreaks(ctx context.Context, ownerID string) ([]*reminder.StreakSummary, error) {
	rows, err := p.pool.Query(ctx, `SELECT
		us.id, us.user_id, us.reminder_id, us.current_streak, us.longest_streak,
		us.last_completed, us.last_updated, COALESCE(r.title, '')
		FROM user_streaks us
		LEFT JOIN reminders r ON us.reminder_id = r.id
		WHERE us.user_id = $1
		ORDER BY us.current_streak DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list streaks: %w", err)
	}
	defer rows.Close()

	var streaks []*reminder.StreakSummary
	for rows.Next() {
		var sum reminder.StreakSummary
		if err := rows.Scan(&sum.ID, &sum.OwnerID, &sum.ReminderID, &sum.CurrentStreak,
			&sum.LongestStreak, &sum.LastCompleted, &sum.LastUpdated, &sum.Title); err != nil {
			return nil, fmt.Errorf("failed to scan streak: %w", err)
		}
		streaks = append(streaks, &sum)
	}
	return streaks, rows.Err()
}

// Weekly report operations
func (p *PostgresStorage) SaveWeeklyReport(ctx context.Context, r *reminder.WeeklyReport) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO weekly_reports
		(id, user_id, week_start, week_end, total_reminders, completed_count,
		missed_count, completion_rate, report_data, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.OwnerID, r.WeekStart, r.WeekEnd,
		r.Stats.Total, r.Stats.Completed, r.Stats.Missed, r.Stats.CompletionRate,
		r.Snapshot, r.SentAt)
	if err != nil {
		return fmt.Errorf("failed to save weekly report: %w", err)
	}
	return nil
}

func (p *PostgresStorage) scanReminder(row pgx.Row) (*reminder.Reminder, error) {
	var r reminder.Reminder
	var daysJSON []byte
	if err := row.Scan(&r.ID, &r.OwnerID, &r.Title, &r.Description, &r.TimeOfDay,
		&r.Recurrence, &daysJSON, &r.Active, &r.LastTriggered, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan reminder: %w", err)
	}
	if err := unmarshalDays(daysJSON, &r.WeeklyDays); err != nil {
		return nil, err
	}
	return &r, nil
}

func unmarshalDays(data []byte, days *[]int) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, days); err != nil {
		return fmt.Errorf("failed to unmarshal weekly days: %w", err)
	}
	return nil
}

var _ Storage = (*PostgresStorage)(nil)
