package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/ports"
)

// CronScheduler triggers pipeline runs on a cron expression in the
// configured timezone.
type CronScheduler struct {
	expression string
	location   *time.Location
	cron       *cron.Cron
	logger     *slog.Logger
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds the driver; jobs are registered on Start.
func NewCronScheduler(expression string, location *time.Location, logger *slog.Logger) *CronScheduler {
	if location == nil {
		location = time.UTC
	}
	return &CronScheduler{
		expression: expression,
		location:   location,
		logger:     logger,
	}
}

// Start registers the job and begins the schedule.
func (s *CronScheduler) Start(_ context.Context, job func(time.Time)) error {
	c := cron.New(cron.WithLocation(s.location))

	if _, err := c.AddFunc(s.expression, func() {
		job(time.Now().In(s.location))
	}); err != nil {
		return fmt.Errorf("register cron job %q: %w", s.expression, err)
	}

	s.cron = c
	c.Start()
	s.logger.Info("scheduler started", "expression", s.expression, "timezone", s.location.String())
	return nil
}

// Stop halts the schedule and waits for a running job to finish or the
// context to expire.
func (s *CronScheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
