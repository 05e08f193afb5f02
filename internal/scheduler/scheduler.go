// Package scheduler runs a job on a cron schedule until its context is
// cancelled. A run that is still going when the next tick arrives makes that
// tick a no-op.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	apperrors "github.com/vlikcc/yargisalzeka.V2/pkg/errors"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks a five-field cron expression (or a descriptor such as
// @daily) and returns its next activation after now.
func Validate(schedule string, now time.Time) (time.Time, error) {
	sched, err := parser.Parse(schedule)
	if err != nil {
		return time.Time{}, apperrors.Newf(apperrors.ErrConfiguration, "scheduler", "invalid cron schedule %q: %v", schedule, err)
	}
	return sched.Next(now), nil
}

// Run schedules job and blocks until ctx is done, then waits for a running
// job to finish.
func Run(ctx context.Context, schedule string, name string, job func(ctx context.Context)) error {
	logger := slog.Default().With("component", "scheduler", "job", name)
	next, err := Validate(schedule, time.Now())
	if err != nil {
		return err
	}

	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(schedule, func() {
		logger.Info("scheduled run starting")
		job(ctx)
	}); err != nil {
		return fmt.Errorf("scheduling %s: %w", name, err)
	}

	c.Start()
	logger.Info("scheduler started", "schedule", schedule, "next_run", next)
	<-ctx.Done()

	stopped := c.Stop()
	<-stopped.Done()
	logger.Info("scheduler stopped")
	return nil
}
