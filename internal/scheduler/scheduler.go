package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"remindme/internal/delivery"
	"remindme/internal/schedule"
	"remindme/internal/storage"

	"go.uber.org/zap"
)

// Config holds the scheduler cadence knobs.
type Config struct {
	// MissedThreshold is how long a sent trigger may go unacknowledged
	// before it is recorded as missed.
	MissedThreshold time.Duration `toml:"missed_threshold"`
	// DispatchWorkers bounds concurrent reminder dispatches within a tick.
	DispatchWorkers int64 `toml:"dispatch_workers"`
	// DeliveryTimeout bounds each delivery call so a slow sink cannot
	// stall the scan.
	DeliveryTimeout time.Duration `toml:"delivery_timeout"`
	// ReportWeekday and ReportHour place the weekly report tick in
	// server-local time.
	ReportWeekday time.Weekday `toml:"report_weekday"`
	ReportHour    int          `toml:"report_hour"`
}

func DefaultConfig() Config {
	return Config{
		MissedThreshold: 30 * time.Minute,
		DispatchWorkers: 8,
		DeliveryTimeout: 10 * time.Second,
		ReportWeekday:   time.Monday,
		ReportHour:      9,
	}
}

// Scheduler drives the recurring-reminder lifecycle: a minute tick that
// fires due reminders and detects misses, and a weekly tick that sends
// performance reports. It also exposes the user-facing completion path so
// both completion call sites share one streak ledger.
type Scheduler struct {
	store storage.Storage
	sink  delivery.Sink
	cfg   Config
	log   *zap.SugaredLogger

	// ticking guards against overlapping minute ticks; an in-progress
	// tick causes the next one to be skipped, never queued.
	ticking atomic.Bool

	// now is swappable in tests.
	now func() time.Time
}

func New(store storage.Storage, sink delivery.Sink, cfg Config, log *zap.SugaredLogger) *Scheduler {
	if cfg.DispatchWorkers <= 0 {
		cfg.DispatchWorkers = DefaultConfig().DispatchWorkers
	}
	if cfg.MissedThreshold <= 0 {
		cfg.MissedThreshold = DefaultConfig().MissedThreshold
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = DefaultConfig().DeliveryTimeout
	}
	return &Scheduler{
		store: store,
		sink:  sink,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
}

// Start launches the minute and weekly loops. Both stop when ctx is
// cancelled; an in-flight tick finishes before its loop exits.
func (s *Scheduler) Start(ctx context.Context) {
	go s.minuteLoop(ctx)
	go s.weeklyLoop(ctx)
	s.log.Infow("reminder scheduler started",
		"missed_threshold", s.cfg.MissedThreshold,
		"report_weekday", s.cfg.ReportWeekday.String(),
		"report_hour", s.cfg.ReportHour)
}

func (s *Scheduler) minuteLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunMinuteTick(ctx); err != nil && ctx.Err() == nil {
				s.log.Errorw("minute tick failed", "error", err)
			}
		}
	}
}

func (s *Scheduler) weeklyLoop(ctx context.Context) {
	for {
		next := schedule.NextAt(s.now(), s.cfg.ReportWeekday, s.cfg.ReportHour, 0, time.Local)
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if err := s.RunWeeklyTick(ctx); err != nil && ctx.Err() == nil {
				s.log.Errorw("weekly tick failed", "error", err)
			}
		}
	}
}

// RunMinuteTick scans all active reminders, dispatches the due ones, then
// sweeps for missed triggers. Ticks never overlap: if the previous tick is
// still running the call is a no-op.
func (s *Scheduler) RunMinuteTick(ctx context.Context) error {
	if !s.ticking.CompareAndSwap(false, true) {
		s.log.Warnw("previous tick still running, skipping")
		return nil
	}
	defer s.ticking.Store(false)

	if err := s.dispatchDue(ctx); err != nil {
		// The scan failing wholesale still lets miss detection run; the
		// two halves of the tick are independent.
		s.log.Errorw("reminder scan failed", "error", err)
	}
	return s.DetectMissed(ctx)
}
