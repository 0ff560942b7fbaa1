package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/domain"
)

// runDistribution executes one claimed job. A watchdog marks the job
// timed_out at the soft deadline; whichever of watchdog and worker reaches
// the terminal update first wins, so the job row never stays pending.
func (s *Server) runDistribution(job domain.DistributionJob, input userInput, responseURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.softDeadline)
	defer cancel()

	var once sync.Once
	finish := func(done domain.DistributionJob) {
		once.Do(func() { s.completeJob(done, responseURL) })
	}

	watchdog := time.AfterFunc(s.softDeadline, func() {
		timedOut := job
		timedOut.Status = domain.JobTimedOut
		timedOut.CompletedAt = time.Now()
		finish(timedOut)
	})
	defer watchdog.Stop()

	fail := func(stage string, err error) {
		s.logger.Error("distribution aborted", "record", job.RecordID, "stage", stage, "error", err)
		failed := job
		failed.Status = domain.JobFailure
		failed.CompletedAt = time.Now()
		finish(failed)
	}

	if err := s.repository.ApplyUserInput(ctx, job.RecordID, input.Theme, input.ContentType, input.Angle); err != nil {
		fail("apply user input", err)
		return
	}

	rec, err := s.repository.GetRecord(ctx, job.RecordID)
	if err != nil {
		fail("load record", err)
		return
	}

	done := s.router.Distribute(ctx, job, rec)
	if ctx.Err() != nil {
		done.Status = domain.JobTimedOut
	}
	finish(done)
}

// completeJob persists the terminal job state and tells the user how it went.
func (s *Server) completeJob(job domain.DistributionJob, responseURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.jobs.Complete(ctx, job); err != nil {
		s.logger.Error("persist job completion failed",
			"record", job.RecordID, "nonce", job.Nonce, "error", err)
	}

	s.logger.Info("distribution job finished",
		"record", job.RecordID, "nonce", job.Nonce, "status", job.Status)

	// Every interaction ends with a user-visible terminal message: through
	// the response URL when one was captured, otherwise into the channel.
	msg := statusMessage(job)
	var err error
	if responseURL != "" {
		err = s.notifier.Respond(ctx, responseURL, msg, false)
	} else {
		err = s.notifier.PostMessage(ctx, msg)
	}
	if err != nil {
		s.logger.Warn("terminal update failed", "record", job.RecordID, "error", err)
	}
}

func statusMessage(job domain.DistributionJob) string {
	switch job.Status {
	case domain.JobSuccess:
		return fmt.Sprintf(":white_check_mark: Pushed to %s.", strings.Join(job.Sinks, ", "))
	case domain.JobPartialFailure:
		return fmt.Sprintf(":warning: Partially pushed; failed sinks: %s.",
			strings.Join(job.FailedSinks(), ", "))
	case domain.JobTimedOut:
		return ":hourglass: Push timed out; some destinations may still be pending."
	default:
		return ":x: Push failed for all destinations."
	}
}
