package ports

import (
	"context"
	"errors"
	"time"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/domain"
)

// ErrNotFound is returned by repositories when a keyed lookup misses.
var ErrNotFound = errors.New("not found")

// CandidateSource pulls the day's scraped candidates from upstream
// collaborators (feeds, accounts). Acquisition mechanics live behind it.
type CandidateSource interface {
	FetchDaily(ctx context.Context, day time.Time) ([]domain.CandidateItem, error)
}

// Scorer runs one bounded batch through the external scoring call.
// Implementations return *domain.CapacityError when the batch exceeds the
// model context limit so the caller can split and retry.
type Scorer interface {
	ScoreBatch(ctx context.Context, batch []domain.CandidateItem) ([]domain.ScoredCandidate, error)
}

// Enricher synthesizes structured enrichment for a selected candidate and
// the digest-level overview.
type Enricher interface {
	Enrich(ctx context.Context, cand domain.ScoredCandidate) (domain.Enrichment, error)
	Overview(ctx context.Context, selected []domain.ScoredCandidate) (overview string, insights []string, err error)
}

// DigestRepository persists digests and curation records.
type DigestRepository interface {
	// UpsertDigest atomically replaces the digest for the records' date and
	// upserts the records by (date, url), preserving existing record IDs.
	// It returns the records with their stable IDs filled in.
	UpsertDigest(ctx context.Context, digest domain.Digest, records []domain.CurationRecord) ([]domain.CurationRecord, error)
	GetRecord(ctx context.Context, id string) (domain.CurationRecord, error)
	ApplyUserInput(ctx context.Context, id, theme, contentType, angle string) error
	SetSinkState(ctx context.Context, recordID, sink string, state domain.SinkState) error
}

// SeenStore remembers normalized URLs across runs within a rolling window.
type SeenStore interface {
	Seen(ctx context.Context, urls []string) (map[string]bool, error)
	MarkSeen(ctx context.Context, urls []string) error
}

// DigestPublisher pushes the assembled digest to the messaging collaborator.
// Each published item carries the record ID as its opaque reference.
type DigestPublisher interface {
	PublishDigest(ctx context.Context, digest domain.Digest, records []domain.CurationRecord) error
	NotifyError(ctx context.Context, stage string, err error)
}

// Sink is one external archive destination. CreateOrUpdate is idempotent by
// CurationRecord.ID: repeat calls update the same external record.
type Sink interface {
	Name() string
	CreateOrUpdate(ctx context.Context, rec domain.CurationRecord) (externalID string, err error)
}

// JobStore persists distribution jobs and enforces the idempotency key.
type JobStore interface {
	// Claim atomically registers a pending job for (RecordID, Nonce).
	// It returns false when the key was already claimed.
	Claim(ctx context.Context, job domain.DistributionJob) (bool, error)
	Complete(ctx context.Context, job domain.DistributionJob) error
}

// Scheduler controls when pipeline runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
