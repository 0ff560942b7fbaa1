package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/domain"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/ports"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresRepository persists digests, curation records and per-sink
// distribution state in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

var _ ports.DigestRepository = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// UpsertDigest replaces the digest row for the date and upserts every record
// by (digest_date, url) in one transaction. Records that already exist keep
// their IDs, so references held by published messages stay valid across
// re-runs. Returned records carry the stable IDs.
func (r *PostgresRepository) UpsertDigest(ctx context.Context, digest domain.Digest, records []domain.CurationRecord) ([]domain.CurationRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	digestQuery := `INSERT INTO digests (date, overview, insights, total_processed, updated_at)
	                VALUES ($1, $2, $3, $4, NOW())
	                ON CONFLICT (date) DO UPDATE
	                SET overview = EXCLUDED.overview,
	                    insights = EXCLUDED.insights,
	                    total_processed = EXCLUDED.total_processed,
	                    updated_at = NOW()`

	if _, err := tx.ExecContext(ctx, digestQuery,
		digest.Date, digest.Overview, pq.StringArray(digest.Insights), digest.TotalProcessed,
	); err != nil {
		return nil, fmt.Errorf("upsert digest: %w", err)
	}

	recordQuery := `INSERT INTO curation_records
	                (id, digest_date, title, url, source, relevance_score, impact_score, raw_excerpt, enrichment, created_at, updated_at)
	                VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	                ON CONFLICT (digest_date, url) DO UPDATE
	                SET title = EXCLUDED.title,
	                    source = EXCLUDED.source,
	                    relevance_score = EXCLUDED.relevance_score,
	                    impact_score = EXCLUDED.impact_score,
	                    raw_excerpt = EXCLUDED.raw_excerpt,
	                    enrichment = EXCLUDED.enrichment,
	                    updated_at = NOW()
	                RETURNING id`

	out := make([]domain.CurationRecord, len(records))
	for i, rec := range records {
		enrichment, err := json.Marshal(rec.Enrichment)
		if err != nil {
			return nil, fmt.Errorf("marshal enrichment: %w", err)
		}

		var id string
		if err := tx.QueryRowContext(ctx, recordQuery,
			rec.ID, rec.DigestDate, rec.Title, rec.URL, rec.Source,
			rec.RelevanceScore, rec.ImpactScore, rec.RawExcerpt, enrichment,
		).Scan(&id); err != nil {
			return nil, fmt.Errorf("upsert record %s: %w", rec.URL, err)
		}

		out[i] = rec
		out[i].ID = id
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit digest: %w", err)
	}
	return out, nil
}

// GetRecord loads one curation record with its distribution state.
func (r *PostgresRepository) GetRecord(ctx context.Context, id string) (domain.CurationRecord, error) {
	query, args, err := psql.
		Select("id", "digest_date", "title", "url", "source",
			"relevance_score", "impact_score", "raw_excerpt", "enrichment",
			"user_theme", "user_content_type", "user_angle", "created_at", "updated_at").
		From("curation_records").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.CurationRecord{}, fmt.Errorf("build record query: %w", err)
	}

	var rec domain.CurationRecord
	var enrichment []byte
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&rec.ID, &rec.DigestDate, &rec.Title, &rec.URL, &rec.Source,
		&rec.RelevanceScore, &rec.ImpactScore, &rec.RawExcerpt, &enrichment,
		&rec.UserTheme, &rec.UserContentType, &rec.UserAngle, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CurationRecord{}, ports.ErrNotFound
	}
	if err != nil {
		return domain.CurationRecord{}, fmt.Errorf("query record: %w", err)
	}

	if err := json.Unmarshal(enrichment, &rec.Enrichment); err != nil {
		return domain.CurationRecord{}, fmt.Errorf("unmarshal enrichment: %w", err)
	}

	rec.Distribution, err = r.loadDistribution(ctx, rec.ID)
	if err != nil {
		return domain.CurationRecord{}, err
	}
	return rec, nil
}

func (r *PostgresRepository) loadDistribution(ctx context.Context, recordID string) (map[string]domain.SinkState, error) {
	query, args, err := psql.
		Select("sink", "status", "external_id").
		From("distribution_state").
		Where(sq.Eq{"record_id": recordID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build distribution query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query distribution: %w", err)
	}
	defer rows.Close()

	dist := make(map[string]domain.SinkState)
	for rows.Next() {
		var sink string
		var state domain.SinkState
		if err := rows.Scan(&sink, &state.Status, &state.ExternalID); err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		dist[sink] = state
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return dist, nil
}

// ApplyUserInput stores the editorial fields collected from the interaction
// modal.
func (r *PostgresRepository) ApplyUserInput(ctx context.Context, id, theme, contentType, angle string) error {
	query, args, err := psql.
		Update("curation_records").
		Set("user_theme", theme).
		Set("user_content_type", contentType).
		Set("user_angle", angle).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build user input query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("apply user input: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// SetSinkState upserts the per-sink delivery status for a record.
func (r *PostgresRepository) SetSinkState(ctx context.Context, recordID, sink string, state domain.SinkState) error {
	query := `INSERT INTO distribution_state (record_id, sink, status, external_id, updated_at)
	          VALUES ($1, $2, $3, $4, NOW())
	          ON CONFLICT (record_id, sink) DO UPDATE
	          SET status = EXCLUDED.status,
	              external_id = EXCLUDED.external_id,
	              updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, recordID, sink, state.Status, state.ExternalID); err != nil {
		return fmt.Errorf("set sink state: %w", err)
	}
	return nil
}
