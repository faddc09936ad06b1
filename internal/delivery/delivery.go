package delivery

import (
	"context"

	"remindme/internal/reminder"

	"go.uber.org/zap"
)

// Sink delivers reminder notifications to a user. Implementations may fail
// transiently; callers treat failures as non-fatal and bound each call with
// a context deadline.
type Sink interface {
	// SendReminder notifies the owner that a reminder is due now.
	SendReminder(ctx context.Context, r *reminder.OwnerReminder) error
	// SendMissed notifies the owner that a triggered reminder went
	// unacknowledged past the miss threshold.
	SendMissed(ctx context.Context, log *reminder.PendingLog) error
	// SendWeeklyReport delivers the rendered weekly report payload.
	SendWeeklyReport(ctx context.Context, name, email string, report *reminder.WeeklyReport) error
}

// LogSink writes deliveries to the log instead of sending them. Used in
// development and tests.
type LogSink struct {
	log *zap.SugaredLogger
}

func NewLogSink(log *zap.SugaredLogger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) SendReminder(_ context.Context, r *reminder.OwnerReminder) error {
	s.log.Infow("delivering reminder", "title", r.Title, "email", r.OwnerEmail, "time", r.TimeOfDay)
	return nil
}

func (s *LogSink) SendMissed(_ context.Context, log *reminder.PendingLog) error {
	s.log.Infow("delivering missed notice", "title", log.Title, "email", log.OwnerEmail, "triggered_at", log.TriggeredAt)
	return nil
}

func (s *LogSink) SendWeeklyReport(_ context.Context, name, email string, report *reminder.WeeklyReport) error {
	s.log.Infow("delivering weekly report", "email", email,
		"completed", report.Stats.Completed, "missed", report.Stats.Missed)
	return nil
}

var _ Sink = (*LogSink)(nil)
