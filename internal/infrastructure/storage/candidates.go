package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/domain"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/ports"
)

// CandidateStore reads the day's scraped candidates. Upstream collectors
// write into scraped_candidates; this process only consumes.
type CandidateStore struct {
	db *sql.DB
}

var _ ports.CandidateSource = (*CandidateStore)(nil)

// NewCandidateStore wires a sql.DB implementation.
func NewCandidateStore(db *sql.DB) *CandidateStore {
	return &CandidateStore{db: db}
}

// FetchDaily returns candidates scraped during the given calendar day, in
// scrape order.
func (s *CandidateStore) FetchDaily(ctx context.Context, day time.Time) ([]domain.CandidateItem, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	query, args, err := psql.
		Select("title", "url", "source", "published_at", "scraped_at", "excerpt").
		From("scraped_candidates").
		Where(sq.And{
			sq.GtOrEq{"scraped_at": start},
			sq.Lt{"scraped_at": end},
		}).
		OrderBy("scraped_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build candidates query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var items []domain.CandidateItem
	for rows.Next() {
		var item domain.CandidateItem
		var published sql.NullTime
		if err := rows.Scan(&item.Title, &item.URL, &item.Source, &published, &item.ScrapedAt, &item.RawExcerpt); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		if published.Valid {
			item.PublishedAt = published.Time
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return items, nil
}
