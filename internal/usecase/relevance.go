package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/domain"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/ports"
)

const scoringRetries = 2

// RelevanceFilter is the Stage-1 filter: deduped candidates are scored in
// bounded batches and globally re-ranked; only the top K survive.
type RelevanceFilter struct {
	scorer        ports.Scorer
	batchSize     int
	topK          int
	workers       int
	retryInterval time.Duration
	logger        *slog.Logger
}

// NewRelevanceFilter builds the stage from pipeline bounds.
func NewRelevanceFilter(scorer ports.Scorer, batchSize, topK, workers int, logger *slog.Logger) *RelevanceFilter {
	if batchSize <= 0 {
		batchSize = 40
	}
	if topK <= 0 {
		topK = 10
	}
	if workers <= 0 {
		workers = 5
	}
	return &RelevanceFilter{
		scorer:        scorer,
		batchSize:     batchSize,
		topK:          topK,
		workers:       workers,
		retryInterval: 500 * time.Millisecond,
		logger:        logger,
	}
}

// TopK scores all candidates and returns the K best by relevance score.
// A batch that keeps failing after retries is excluded and logged; the stage
// errors only when every batch failed.
func (f *RelevanceFilter) TopK(ctx context.Context, candidates []domain.CandidateItem) ([]domain.ScoredCandidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	batches := partition(candidates, f.batchSize)
	results := make([][]domain.ScoredCandidate, len(batches))

	var mu sync.Mutex
	succeeded := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)

	for i, batch := range batches {
		g.Go(func() error {
			scored, err := f.scoreWithRetry(gctx, batch)
			if err != nil {
				f.logger.Warn("scoring batch degraded, excluding from ranking",
					"batch", i, "size", len(batch), "error", err)
				return nil
			}
			mu.Lock()
			results[i] = scored
			succeeded++
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if succeeded == 0 {
		return nil, fmt.Errorf("stage 1: all %d scoring batches failed", len(batches))
	}

	var merged []domain.ScoredCandidate
	for _, scored := range results {
		merged = append(merged, scored...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].RelevanceScore != merged[j].RelevanceScore {
			return merged[i].RelevanceScore > merged[j].RelevanceScore
		}
		return merged[i].ImpactScore > merged[j].ImpactScore
	})

	if len(merged) > f.topK {
		merged = merged[:f.topK]
	}
	for i := range merged {
		merged[i].Rank = i
	}

	f.logger.Info("stage 1 complete", "batches", len(batches), "succeeded", succeeded, "selected", len(merged))
	return merged, nil
}

// scoreWithRetry retries transient failures with exponential backoff and
// splits the batch in half on capacity errors.
func (f *RelevanceFilter) scoreWithRetry(ctx context.Context, batch []domain.CandidateItem) ([]domain.ScoredCandidate, error) {
	var scored []domain.ScoredCandidate

	op := func() error {
		var err error
		scored, err = f.scorer.ScoreBatch(ctx, batch)
		if err == nil {
			return nil
		}
		if domain.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.retryInterval

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, scoringRetries), ctx))
	if err == nil {
		return scored, nil
	}

	var capErr *domain.CapacityError
	if errors.As(err, &capErr) && len(batch) > 1 {
		mid := len(batch) / 2
		left, lErr := f.scoreWithRetry(ctx, batch[:mid])
		right, rErr := f.scoreWithRetry(ctx, batch[mid:])
		if lErr != nil && rErr != nil {
			return nil, fmt.Errorf("split batch failed: %w", lErr)
		}
		if lErr != nil {
			f.logger.Warn("split half degraded, excluding from ranking",
				"size", mid, "error", lErr)
		}
		if rErr != nil {
			f.logger.Warn("split half degraded, excluding from ranking",
				"size", len(batch)-mid, "error", rErr)
		}
		return append(left, right...), nil
	}

	return nil, err
}

func partition(candidates []domain.CandidateItem, size int) [][]domain.CandidateItem {
	var batches [][]domain.CandidateItem
	for start := 0; start < len(candidates); start += size {
		end := min(start+size, len(candidates))
		batches = append(batches, candidates[start:end])
	}
	return batches
}
