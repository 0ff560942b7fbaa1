package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/domain"
)

func rankedFixture() []domain.ScoredCandidate {
	items := []struct {
		title  string
		source string
		score  float64
	}{
		{"a1", "alpha", 95},
		{"a2", "alpha", 90},
		{"a3", "alpha", 85},
		{"b1", "beta", 80},
		{"c1", "gamma", 75},
		{"b2", "beta", 70},
		{"d1", "delta", 65},
	}
	ranked := make([]domain.ScoredCandidate, len(items))
	for i, item := range items {
		ranked[i] = domain.ScoredCandidate{
			CandidateItem:  domain.CandidateItem{Title: item.title, Source: item.source},
			RelevanceScore: item.score,
			Rank:           i,
		}
	}
	return ranked
}

func TestSelectDiverseEnforcesSourceCap(t *testing.T) {
	t.Parallel()

	selected := SelectDiverse(rankedFixture(), 5, 2)

	if len(selected) != 5 {
		t.Fatalf("expected 5 selections, got %d", len(selected))
	}

	perSource := make(map[string]int)
	for _, cand := range selected {
		perSource[cand.Source]++
	}
	if perSource["alpha"] != 2 {
		t.Fatalf("expected alpha capped at 2, got %d", perSource["alpha"])
	}

	// a3 is skipped for the cap; b1 takes its slot.
	if selected[2].Title != "b1" {
		t.Fatalf("expected b1 third, got %s", selected[2].Title)
	}
}

func TestSelectDiverseDeterministic(t *testing.T) {
	t.Parallel()

	first := SelectDiverse(rankedFixture(), 5, 2)
	second := SelectDiverse(rankedFixture(), 5, 2)

	for i := range first {
		if first[i].Title != second[i].Title {
			t.Fatalf("selection diverged at %d: %s vs %s", i, first[i].Title, second[i].Title)
		}
	}
}

func TestSelectDiverseShortInput(t *testing.T) {
	t.Parallel()

	selected := SelectDiverse(rankedFixture()[:3], 5, 2)
	if len(selected) != 2 {
		t.Fatalf("expected 2 under source cap, got %d", len(selected))
	}
}

type fakeEnricher struct {
	enrich   func(domain.ScoredCandidate) (domain.Enrichment, error)
	overview func([]domain.ScoredCandidate) (string, []string, error)
}

func (f *fakeEnricher) Enrich(_ context.Context, cand domain.ScoredCandidate) (domain.Enrichment, error) {
	return f.enrich(cand)
}

func (f *fakeEnricher) Overview(_ context.Context, selected []domain.ScoredCandidate) (string, []string, error) {
	if f.overview == nil {
		return "overview", nil, nil
	}
	return f.overview(selected)
}

func TestEnrichAllDegradesFailedItems(t *testing.T) {
	t.Parallel()

	enricher := &fakeEnricher{enrich: func(cand domain.ScoredCandidate) (domain.Enrichment, error) {
		if cand.Title == "b1" {
			return domain.Enrichment{}, errors.New("synthesis failed")
		}
		return domain.Enrichment{ShortSummary: "summary of " + cand.Title}, nil
	}}

	stage := NewEnrichmentStage(enricher, 3, discardLogger())
	selected := SelectDiverse(rankedFixture(), 5, 2)
	enrichments := stage.EnrichAll(context.Background(), selected)

	if len(enrichments) != len(selected) {
		t.Fatalf("expected %d enrichments, got %d", len(selected), len(enrichments))
	}

	for i, cand := range selected {
		if cand.Title == "b1" {
			if !enrichments[i].Degraded {
				t.Fatal("expected failed item marked degraded")
			}
			continue
		}
		if enrichments[i].Degraded {
			t.Fatalf("item %s unexpectedly degraded", cand.Title)
		}
		if enrichments[i].ShortSummary == "" {
			t.Fatalf("item %s missing summary", cand.Title)
		}
	}
}
