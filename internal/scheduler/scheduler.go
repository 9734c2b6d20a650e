// Package scheduler runs recurring LeadPipe jobs, such as outreach campaigns,
// on cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler provides cron-based job scheduling. A job whose previous run is
// still in progress is skipped rather than run concurrently.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler. Expressions use the
// standard 5 fields (min, hour, dom, month, dow) or descriptors such as
// "@hourly" and "@every 30m".
func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	logger := slogLogger{}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules task under name using expr and returns the entry id.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(name, expr string, task func()) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(expr, func() {
		start := time.Now()
		slog.Info("Scheduler: job started", "job", name)
		task()
		slog.Info("Scheduler: job finished", "job", name, "elapsed", time.Since(start))
	})
	if err != nil {
		return 0, fmt.Errorf("invalid schedule %q for job %s: %w", expr, name, err)
	}
	slog.Info("Scheduler: job scheduled", "job", name, "schedule", expr, "next_run", s.Next(id))
	return id, nil
}

// Remove unschedules a job.
func (s *Scheduler) Remove(id cron.EntryID) {
	s.cron.Remove(id)
}

// Next returns the next activation time of a job, or the zero time if it is unknown.
func (s *Scheduler) Next(id cron.EntryID) time.Time {
	return s.cron.Entry(id).Next
}

// Stop stops the scheduler and waits up to ctx for running jobs to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop interrupted: %w", ctx.Err())
	}
}

// slogLogger routes cron's internal logging to slog.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("Scheduler: cron "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("Scheduler: cron "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
