// Package scheduler runs the engine's background maintenance jobs on cron
// schedules: cache pruning and frontier warm-up.
package scheduler

import (
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/ballast/internal/events"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// Scheduler manages background jobs
type Scheduler struct {
	cron   *cron.Cron
	events *events.Manager
	log    zerolog.Logger
}

// New creates a new scheduler. The event manager is optional; nil disables
// job lifecycle events.
func New(eventManager *events.Manager, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		events: eventManager,
		log:    log.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "0 */5 * * * *"      - Every 5 minutes
//   - "@hourly"            - Every hour
//   - "0 0 9 * * MON-FRI"  - 9 AM weekdays
//   - "@every 30s"         - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.runJob(job)
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return s.runJob(job)
}

func (s *Scheduler) runJob(job Job) error {
	jobID := uuid.New().String()
	start := time.Now()

	s.log.Debug().Str("job", job.Name()).Msg("Running job")
	s.events.EmitTyped("scheduler", &events.JobStatusData{
		JobID:     jobID,
		JobType:   job.Name(),
		Status:    "started",
		Timestamp: start,
	})

	err := job.Run()
	elapsed := time.Since(start)

	if err != nil {
		s.log.Error().
			Err(err).
			Str("job", job.Name()).
			Dur("elapsed", elapsed).
			Msg("Job failed")
		s.events.EmitTyped("scheduler", &events.JobStatusData{
			JobID:     jobID,
			JobType:   job.Name(),
			Status:    "failed",
			Error:     err.Error(),
			Duration:  elapsed.Seconds(),
			Timestamp: time.Now(),
		})
		return err
	}

	s.log.Debug().Str("job", job.Name()).Dur("elapsed", elapsed).Msg("Job completed")
	s.events.EmitTyped("scheduler", &events.JobStatusData{
		JobID:     jobID,
		JobType:   job.Name(),
		Status:    "completed",
		Duration:  elapsed.Seconds(),
		Timestamp: time.Now(),
	})
	return nil
}
