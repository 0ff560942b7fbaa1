package domain

import "time"

// CandidateItem is a raw scraped content unit prior to curation. Candidates
// live only for the duration of one pipeline run unless selected.
type CandidateItem struct {
	Title       string
	URL         string
	Source      string
	PublishedAt time.Time
	ScrapedAt   time.Time
	RawExcerpt  string
}

// ScoredCandidate carries Stage-1 scoring output alongside the candidate.
// Rank is the candidate's position after the global re-rank; it doubles as
// the deterministic tie-breaker in Stage-2.
type ScoredCandidate struct {
	CandidateItem
	RelevanceScore float64
	ImpactScore    float64
	Themes         []string
	Rank           int
}
