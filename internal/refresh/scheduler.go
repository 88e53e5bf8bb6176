// Package refresh recomputes tracked wallet metrics on a cron schedule.
package refresh

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Task is a unit of scheduled work.
type Task interface {
	Run() error
	Name() string
}

// Scheduler manages background jobs.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewScheduler creates a scheduler using the standard five-field cron
// parser, which also accepts descriptors such as "@hourly" and
// "@every 15m".
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(),
		logger: logger.With("component", "scheduler"),
	}
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// AddJob registers a task with a cron schedule. Runs of the same task
// never overlap; a tick that fires while the previous run is active is
// skipped.
func (s *Scheduler) AddJob(schedule string, job Task) error {
	wrapped := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		s.logger.Debug("running job", "job", job.Name())
		if err := job.Run(); err != nil {
			s.logger.Error("job failed", "job", job.Name(), "error", err)
			return
		}
		s.logger.Debug("job completed", "job", job.Name())
	}))

	if _, err := s.cron.AddJob(schedule, wrapped); err != nil {
		return err
	}

	s.logger.Info("job registered", "job", job.Name(), "schedule", schedule)
	return nil
}

// RunNow executes a task immediately, outside its schedule.
func (s *Scheduler) RunNow(job Task) error {
	s.logger.Info("running job immediately", "job", job.Name())
	return job.Run()
}
