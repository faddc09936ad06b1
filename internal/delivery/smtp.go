package delivery

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"remindme/internal/reminder"

	"go.uber.org/zap"
)

// SMTPConfig holds the mail transport settings.
type SMTPConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
}

// SMTPSink sends plain-text notification mail over SMTP.
type SMTPSink struct {
	cfg SMTPConfig
	log *zap.SugaredLogger

	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSink(cfg SMTPConfig, log *zap.SugaredLogger) *SMTPSink {
	return &SMTPSink{cfg: cfg, log: log, send: smtp.SendMail}
}

func (s *SMTPSink) SendReminder(ctx context.Context, r *reminder.OwnerReminder) error {
	body := fmt.Sprintf("Hi %s,\n\nIt's time for: %s\n", r.OwnerName, r.Title)
	if r.Description != "" {
		body += "\n" + r.Description + "\n"
	}
	body += fmt.Sprintf("\nScheduled for %s (%s).\n", r.TimeOfDay, r.Timezone)
	return s.mail(ctx, r.OwnerEmail, "Reminder: "+r.Title, body)
}

func (s *SMTPSink) SendMissed(ctx context.Context, log *reminder.PendingLog) error {
	body := fmt.Sprintf("Hi %s,\n\nYou missed: %s\n\nIt was scheduled for %s and triggered at %s.\nComplete it from your dashboard to keep your streak going next time.\n",
		log.OwnerName, log.Title, log.TimeOfDay, log.TriggeredAt.Format(time.RFC1123))
	return s.mail(ctx, log.OwnerEmail, "Missed reminder: "+log.Title, body)
}

func (s *SMTPSink) SendWeeklyReport(ctx context.Context, name, email string, report *reminder.WeeklyReport) error {
	body := fmt.Sprintf("Hi %s,\n\nYour week in review (%s - %s):\n\n  Reminders triggered: %d\n  Completed:           %d\n  Missed:              %d\n  Completion rate:     %.1f%%\n",
		name,
		report.WeekStart.Format("Jan 2"), report.WeekEnd.Format("Jan 2"),
		report.Stats.Total, report.Stats.Completed, report.Stats.Missed,
		report.Stats.CompletionRate)
	return s.mail(ctx, email, "Your weekly reminder report", body)
}

func (s *SMTPSink) mail(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := s.send(addr, auth, s.cfg.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	s.log.Debugw("mail sent", "to", to, "subject", subject)
	return nil
}

var _ Sink = (*SMTPSink)(nil)
