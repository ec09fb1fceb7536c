// Package worker runs the periodic reconciliation jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	apperrors "github.com/whale-role-bot/internal/errors"
	"github.com/whale-role-bot/internal/logging"
)

// Job is one periodic task
type Job struct {
	Name string
	// Spec is a robfig/cron spec such as "@every 5m". Empty disables the job.
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler runs jobs on cron specs. A job never overlaps itself and each run
// is bounded by the cycle timeout.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration

	mu      sync.Mutex
	ctx     context.Context
	running bool
	jobs    []string
}

// NewScheduler creates a new scheduler
func NewScheduler(timeout time.Duration) *Scheduler {
	logger := cronLogger{logger: logging.WithField("component", "scheduler")}

	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		)),
		timeout: timeout,
		ctx:     context.Background(),
	}
}

// Register adds a job. Jobs with an empty spec are skipped.
func (s *Scheduler) Register(job Job) error {
	if job.Spec == "" {
		logging.WithField("job", job.Name).Info("Job disabled, no schedule configured")
		return nil
	}

	_, err := s.cron.AddFunc(job.Spec, func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		s.runJob(ctx, job)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", job.Spec, job.Name, err)
	}

	s.mu.Lock()
	s.jobs = append(s.jobs, job.Name)
	s.mu.Unlock()
	return nil
}

// Start begins running registered jobs. ctx is the parent of every run.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.ctx = ctx

	s.cron.Start()
	logging.WithField("jobs", s.jobs).Info("Scheduler started")
	return nil
}

// Stop stops scheduling and waits for running jobs until ctx expires
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
		logging.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop timed out: %w", ctx.Err())
	}
}

// Jobs returns the names of the scheduled jobs
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.jobs...)
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	logger := logging.FromContext(ctx).WithField("job", job.Name)
	start := time.Now()

	err := job.Run(ctx)
	switch {
	case errors.Is(err, apperrors.ErrCycleInProgress):
		logger.Info("Skipping scheduled run, another cycle is in progress")
	case err != nil:
		logger.WithError(err).WithField("duration", time.Since(start).String()).Error("Scheduled job failed")
	default:
		logger.WithField("duration", time.Since(start).String()).Debug("Scheduled job completed")
	}
}

// cronLogger adapts the application logger to cron.Logger
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(keyValues(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(keyValues(keysAndValues)).WithError(err).Error(msg)
}

func keyValues(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
