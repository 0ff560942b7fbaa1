package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/domain"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/ports"
)

// PipelineDeps wires all driven adapters into the curation pipeline.
type PipelineDeps struct {
	Source     ports.CandidateSource
	Seen       ports.SeenStore
	Filter     *RelevanceFilter
	Enrichment *EnrichmentStage
	Enricher   ports.Enricher
	Repository ports.DigestRepository
	Publisher  ports.DigestPublisher
	FinalN     int
	MaxPerSrc  int
	Logger     *slog.Logger
}

// Pipeline implements the daily curation workflow: dedup, two-stage
// filtering, enrichment, digest assembly, publish. Stages are barriers; no
// partial digest is ever stored or published.
type Pipeline struct {
	source     ports.CandidateSource
	seen       ports.SeenStore
	filter     *RelevanceFilter
	enrichment *EnrichmentStage
	enricher   ports.Enricher
	repository ports.DigestRepository
	publisher  ports.DigestPublisher
	finalN     int
	maxPerSrc  int
	logger     *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	finalN := deps.FinalN
	if finalN <= 0 {
		finalN = 5
	}
	maxPerSrc := deps.MaxPerSrc
	if maxPerSrc <= 0 {
		maxPerSrc = 2
	}
	return &Pipeline{
		source:     deps.Source,
		seen:       deps.Seen,
		filter:     deps.Filter,
		enrichment: deps.Enrichment,
		enricher:   deps.Enricher,
		repository: deps.Repository,
		publisher:  deps.Publisher,
		finalN:     finalN,
		maxPerSrc:  maxPerSrc,
		logger:     deps.Logger,
	}
}

// ProcessDay assembles and publishes the digest for one calendar date.
// Re-running for the same date replaces the stored digest; record IDs for
// unchanged (date, url) pairs are preserved.
func (p *Pipeline) ProcessDay(ctx context.Context, day time.Time) error {
	digestDate := day.Format("2006-01-02")

	candidates, err := p.source.FetchDaily(ctx, day)
	if err != nil {
		p.notify(ctx, "fetch", err)
		return fmt.Errorf("fetch daily: %w", err)
	}
	if len(candidates) == 0 {
		p.logger.Info("no candidates for date", "date", digestDate)
		return nil
	}

	deduped := Deduplicate(candidates, p.logger)
	deduped, err = p.dropSeen(ctx, deduped)
	if err != nil {
		p.logger.Warn("seen-URL lookup unavailable, continuing without window", "error", err)
	}
	if len(deduped) == 0 {
		p.logger.Info("all candidates already curated within window", "date", digestDate)
		return nil
	}

	ranked, err := p.filter.TopK(ctx, deduped)
	if err != nil {
		p.notify(ctx, "stage1", err)
		return fmt.Errorf("stage 1: %w", err)
	}

	selected := SelectDiverse(ranked, p.finalN, p.maxPerSrc)
	if len(selected) == 0 {
		p.logger.Info("nothing selected for digest", "date", digestDate)
		return nil
	}

	enrichments := p.enrichment.EnrichAll(ctx, selected)

	overview, insights, err := p.enricher.Overview(ctx, selected)
	if err != nil {
		p.logger.Warn("overview synthesis failed, using fallback", "error", err)
		overview = fmt.Sprintf("Daily digest for %s: %d articles selected from %d candidates.",
			digestDate, len(selected), len(candidates))
		insights = nil
	}

	records := make([]domain.CurationRecord, len(selected))
	for i, cand := range selected {
		records[i] = domain.CurationRecord{
			ID:             uuid.NewString(),
			Title:          cand.Title,
			URL:            cand.URL,
			Source:         cand.Source,
			DigestDate:     digestDate,
			RelevanceScore: cand.RelevanceScore,
			ImpactScore:    cand.ImpactScore,
			RawExcerpt:     cand.RawExcerpt,
			Enrichment:     enrichments[i],
		}
	}

	digest := domain.Digest{
		Date:           digestDate,
		Overview:       overview,
		Insights:       insights,
		TotalProcessed: len(candidates),
	}

	records, err = p.repository.UpsertDigest(ctx, digest, records)
	if err != nil {
		p.notify(ctx, "assemble", err)
		return fmt.Errorf("store digest: %w", err)
	}
	digest.RecordIDs = make([]string, len(records))
	for i, rec := range records {
		digest.RecordIDs[i] = rec.ID
	}

	if err := p.publisher.PublishDigest(ctx, digest, records); err != nil {
		p.notify(ctx, "publish", err)
		return fmt.Errorf("publish digest: %w", err)
	}

	// URLs enter the seen window only after a successful publish; a failed
	// delivery leaves the date re-runnable.
	p.markSeen(ctx, deduped)

	p.logger.Info("digest published",
		"date", digestDate, "processed", len(candidates), "selected", len(records))
	return nil
}

// dropSeen removes candidates whose normalized URL was curated within the
// rolling window. A store failure degrades to keeping everything.
func (p *Pipeline) dropSeen(ctx context.Context, candidates []domain.CandidateItem) ([]domain.CandidateItem, error) {
	if p.seen == nil || len(candidates) == 0 {
		return candidates, nil
	}

	urls := make([]string, len(candidates))
	for i, cand := range candidates {
		urls[i] = NormalizeURL(cand.URL)
	}

	seen, err := p.seen.Seen(ctx, urls)
	if err != nil {
		return candidates, err
	}

	kept := candidates[:0]
	for i, cand := range candidates {
		if seen[urls[i]] {
			p.logger.Debug("dropped candidate seen in window", "url", cand.URL)
			continue
		}
		kept = append(kept, cand)
	}
	return kept, nil
}

func (p *Pipeline) markSeen(ctx context.Context, candidates []domain.CandidateItem) {
	if p.seen == nil {
		return
	}
	urls := make([]string, len(candidates))
	for i, cand := range candidates {
		urls[i] = NormalizeURL(cand.URL)
	}
	if err := p.seen.MarkSeen(ctx, urls); err != nil {
		p.logger.Warn("failed to record seen URLs", "error", err)
	}
}

func (p *Pipeline) notify(ctx context.Context, stage string, err error) {
	if p.publisher != nil {
		p.publisher.NotifyError(ctx, stage, err)
	}
}
