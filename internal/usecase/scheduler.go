package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/ports"
)

// Scheduler wires the cron driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop the recurring digest job.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, pipeline: pipeline, logger: logger}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	job := func(trigger time.Time) {
		if err := s.pipeline.ProcessDay(ctx, trigger); err != nil {
			s.logger.Error("scheduled pipeline run failed", "trigger", trigger, "error", err)
		}
	}
	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	return s.driver.Stop(ctx)
}
