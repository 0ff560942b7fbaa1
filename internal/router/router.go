package router

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/domain"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/ports"
)

const maxSinkRetries = 2 // attempts = retries + 1

// Router fans one curation record out to the requested sinks. Every write
// is idempotent by record ID, so a re-routed job converges on the same
// external rows instead of duplicating them.
type Router struct {
	sinks         map[string]ports.Sink
	repository    ports.DigestRepository
	retryInterval time.Duration
	logger        *slog.Logger
}

// New indexes the available sinks by name.
func New(sinks []ports.Sink, repository ports.DigestRepository, logger *slog.Logger) *Router {
	byName := make(map[string]ports.Sink, len(sinks))
	for _, s := range sinks {
		byName[s.Name()] = s
	}
	return &Router{
		sinks:         byName,
		repository:    repository,
		retryInterval: 500 * time.Millisecond,
		logger:        logger,
	}
}

// Distribute writes the record to each of the job's sinks concurrently and
// returns the job with per-sink results and an aggregate status. Sink state
// transitions are persisted as they happen so a crash mid-job leaves an
// accurate trail.
func (r *Router) Distribute(ctx context.Context, job domain.DistributionJob, rec domain.CurationRecord) domain.DistributionJob {
	results := make([]domain.SinkResult, len(job.Sinks))

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range job.Sinks {
		g.Go(func() error {
			result := r.writeOne(gctx, name, rec)
			mu.Lock()
			results[i] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	job.Results = results
	job.Status = aggregate(results)
	job.CompletedAt = time.Now()

	if failed := job.FailedSinks(); len(failed) > 0 {
		r.logger.Warn("distribution incomplete",
			"record", job.RecordID, "status", job.Status, "failed_sinks", failed)
	} else {
		r.logger.Info("distribution complete", "record", job.RecordID, "sinks", job.Sinks)
	}
	return job
}

// writeOne drives a single sink through pending, retries and terminal state.
func (r *Router) writeOne(ctx context.Context, name string, rec domain.CurationRecord) domain.SinkResult {
	result := domain.SinkResult{Sink: name}

	sink, ok := r.sinks[name]
	if !ok {
		result.Err = "sink not configured"
		return result
	}

	r.setState(ctx, rec.ID, name, domain.SinkState{Status: domain.SinkPending})

	attempts := 0
	op := func() error {
		attempts++
		externalID, err := sink.CreateOrUpdate(ctx, rec)
		if err == nil {
			result.ExternalID = externalID
			return nil
		}
		if domain.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.retryInterval

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, maxSinkRetries), ctx))
	result.Attempts = attempts

	if err != nil {
		result.Err = err.Error()
		r.setState(ctx, rec.ID, name, domain.SinkState{Status: domain.SinkFailed})
		return result
	}

	r.setState(ctx, rec.ID, name, domain.SinkState{Status: domain.SinkStored, ExternalID: result.ExternalID})
	return result
}

// setState persists with a detached context so terminal states survive the
// job deadline expiring mid-write.
func (r *Router) setState(ctx context.Context, recordID, sink string, state domain.SinkState) {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := r.repository.SetSinkState(persistCtx, recordID, sink, state); err != nil {
		r.logger.Error("persist sink state failed",
			"record", recordID, "sink", sink, "status", state.Status, "error", err)
	}
}

func aggregate(results []domain.SinkResult) domain.JobStatus {
	ok := 0
	for _, res := range results {
		if res.OK() {
			ok++
		}
	}
	switch {
	case ok == len(results):
		return domain.JobSuccess
	case ok == 0:
		return domain.JobFailure
	default:
		return domain.JobPartialFailure
	}
}
