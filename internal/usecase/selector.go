package usecase

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/domain"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/ports"
)

// SelectDiverse picks the final n candidates from the Stage-1 ranking under
// the diversity constraint: no more than maxPerSource selections share one
// source. Input must already be ordered by Rank (score descending, ties by
// impact score then original order), which makes the selection deterministic.
func SelectDiverse(ranked []domain.ScoredCandidate, n, maxPerSource int) []domain.ScoredCandidate {
	if n <= 0 || len(ranked) == 0 {
		return nil
	}
	if maxPerSource <= 0 {
		maxPerSource = 2
	}

	perSource := make(map[string]int)
	selected := make([]domain.ScoredCandidate, 0, n)

	for _, cand := range ranked {
		if perSource[cand.Source] >= maxPerSource {
			continue
		}
		perSource[cand.Source]++
		selected = append(selected, cand)
		if len(selected) == n {
			break
		}
	}

	return selected
}

// EnrichmentStage runs the Stage-2 synthesis calls with bounded concurrency.
type EnrichmentStage struct {
	enricher ports.Enricher
	workers  int
	logger   *slog.Logger
}

// NewEnrichmentStage builds the stage.
func NewEnrichmentStage(enricher ports.Enricher, workers int, logger *slog.Logger) *EnrichmentStage {
	if workers <= 0 {
		workers = 5
	}
	return &EnrichmentStage{enricher: enricher, workers: workers, logger: logger}
}

// EnrichAll synthesizes enrichment for every selected candidate. A failed or
// malformed synthesis degrades that one item to its raw excerpt, flagged for
// reprocessing; the item still ships.
func (s *EnrichmentStage) EnrichAll(ctx context.Context, selected []domain.ScoredCandidate) []domain.Enrichment {
	enrichments := make([]domain.Enrichment, len(selected))

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, cand := range selected {
		g.Go(func() error {
			enrichment, err := s.enricher.Enrich(gctx, cand)
			if err != nil {
				s.logger.Warn("enrichment degraded", "url", cand.URL, "error", err)
				enrichment = domain.Enrichment{Degraded: true}
			}
			mu.Lock()
			enrichments[i] = enrichment
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return enrichments
}
