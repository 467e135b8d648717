// Package scheduler runs the app's periodic background jobs on a cron.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultPruneSpec runs session pruning at minute 0 of every hour.
const DefaultPruneSpec = "0 * * * *"

// jobTimeout bounds a single run so a stuck store can't pile up runs.
const jobTimeout = time.Minute

// SessionPruner deletes expired sessions. *service.AuthService satisfies it.
type SessionPruner interface {
	PruneSessions(ctx context.Context) (int64, error)
}

type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// New creates a stopped scheduler. Panicking jobs are recovered and logged,
// and a job still running when its next tick arrives is skipped.
func New(logger *slog.Logger) *Scheduler {
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
	}
}

// AddSessionPruning registers the expired-session sweep on a standard
// 5-field cron spec (or a descriptor such as "@hourly").
func (s *Scheduler) AddSessionPruning(spec string, p SessionPruner) error {
	_, err := s.cron.AddFunc(spec, s.pruneJob(p))
	return err
}

func (s *Scheduler) pruneJob(p SessionPruner) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		start := time.Now()
		n, err := p.PruneSessions(ctx)
		if err != nil {
			s.logger.Error("session pruning failed", slog.String("error", err.Error()))
			return
		}
		s.logger.Debug("session pruning finished",
			slog.Int64("deleted", n),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.cron.Entries())))
}

// Stop stops scheduling new runs and waits for running jobs, or until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out; a job is still running")
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{slog.String("error", err.Error())}, keysAndValues...)...)
}
