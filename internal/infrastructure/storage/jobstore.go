package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/domain"
	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/ports"
)

// PostgresJobStore enforces distribution idempotency through the
// (record_id, nonce) primary key.
type PostgresJobStore struct {
	db *sql.DB
}

var _ ports.JobStore = (*PostgresJobStore)(nil)

// NewPostgresJobStore wires a sql.DB implementation.
func NewPostgresJobStore(db *sql.DB) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

// Claim registers a pending job. The insert is the idempotency authority:
// a second claim for the same (record_id, nonce) affects zero rows and
// returns false regardless of which process attempts it.
func (s *PostgresJobStore) Claim(ctx context.Context, job domain.DistributionJob) (bool, error) {
	query := `INSERT INTO distribution_jobs (record_id, nonce, sinks, user_id, status, created_at)
	          VALUES ($1, $2, $3, $4, $5, NOW())
	          ON CONFLICT (record_id, nonce) DO NOTHING`

	res, err := s.db.ExecContext(ctx, query,
		job.RecordID, job.Nonce, pq.StringArray(job.Sinks), job.User, job.Status)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim job rows: %w", err)
	}
	return n == 1, nil
}

// Complete stores the terminal status and per-sink results of a claimed job.
func (s *PostgresJobStore) Complete(ctx context.Context, job domain.DistributionJob) error {
	results, err := json.Marshal(job.Results)
	if err != nil {
		return fmt.Errorf("marshal job results: %w", err)
	}

	query := `UPDATE distribution_jobs
	          SET status = $3, results = $4, completed_at = NOW()
	          WHERE record_id = $1 AND nonce = $2`

	res, err := s.db.ExecContext(ctx, query, job.RecordID, job.Nonce, job.Status, results)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ports.ErrNotFound
	}
	return nil
}
