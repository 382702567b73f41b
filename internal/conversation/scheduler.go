// ABOUTME: Drives reconciliation cycles from a cron schedule
// ABOUTME: Overlapping ticks are skipped and there is no backoff between failures

package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Run executes one cycle immediately and then one per scheduler tick until ctx is cancelled.
// A tick that fires while a cycle is still running is dropped.
func (s *Service) Run(ctx context.Context) error {
	schedule := s.scheduleSpec()
	clog := cronLogger{logger: s.logger}

	c := cron.New(
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)

	id, err := c.AddFunc(schedule, func() {
		// Listing failures are already logged; the next tick is the retry.
		_, _ = s.RunCycle(ctx)
	})
	if err != nil {
		return fmt.Errorf("parsing poll schedule %q: %w", schedule, err)
	}

	s.logger.Info("poll loop starting", "schedule", schedule)

	first := c.Entry(id).WrappedJob
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		first.Run()
	}()

	c.Start()
	<-ctx.Done()

	stopped := c.Stop()
	<-stopped.Done()
	<-firstDone

	s.logger.Info("poll loop stopped")
	return nil
}

func (s *Service) scheduleSpec() string {
	if s.opts.Schedule != "" {
		return s.opts.Schedule
	}
	return "@every " + s.opts.Interval.String()
}

// cronLogger adapts slog to cron.Logger
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("scheduler: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("scheduler: "+msg, append(keysAndValues, "error", err)...)
}
