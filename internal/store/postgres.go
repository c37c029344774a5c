// Package store provides the PostgreSQL-backed CandidateStore.
//
// The candidates table keeps the history ledger as a jsonb array in
// status_history; the compare-and-swap primitive is a single
// conditional UPDATE, so the status change and the ledger append are
// one indivisible statement from the perspective of concurrent writers.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"talenttrack/pipeline-service/internal/pipeline"
)

// Postgres implements pipeline.CandidateStore on a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ pipeline.CandidateStore = (*Postgres)(nil)

// NewPostgres returns a store backed by pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const candidateColumns = `id, name, current_status, status_history, created_at`

// FindByID returns the candidate or pipeline.ErrNotFound.
func (s *Postgres) FindByID(ctx context.Context, id string) (*pipeline.Candidate, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+candidateColumns+`
		 FROM candidates
		 WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	cand, err := scanCandidate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pipeline.ErrNotFound
		}
		return nil, fmt.Errorf("findById: %w", err)
	}
	return cand, nil
}

// FindAll returns candidates for analytics, oldest first. With
// activeOnly, soft-deleted candidates are excluded.
func (s *Postgres) FindAll(ctx context.Context, activeOnly bool) ([]pipeline.Candidate, error) {
	q := `SELECT ` + candidateColumns + ` FROM candidates`
	if activeOnly {
		q += ` WHERE deleted_at IS NULL`
	}
	q += ` ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("findAll query: %w", err)
	}
	defer rows.Close()

	candidates := make([]pipeline.Candidate, 0)
	for rows.Next() {
		cand, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("findAll scan: %w", err)
		}
		candidates = append(candidates, *cand)
	}
	return candidates, rows.Err()
}

// CompareAndSwapStatus appends entry to the ledger (trimmed to the most
// recent pipeline.MaxHistoryEntries records) and sets current_status,
// guarded on the stored status still matching expected. RowsAffected
// tells us whether the guard held; no row is touched when it did not.
func (s *Postgres) CompareAndSwapStatus(ctx context.Context, id string, expected pipeline.Status, entry pipeline.StatusHistoryEntry, newStatus pipeline.Status) (bool, error) {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("marshal history entry: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE candidates
		 SET current_status = $1::candidate_status,
		     status_history = (
		       SELECT COALESCE(jsonb_agg(elem ORDER BY idx), '[]'::jsonb)
		       FROM jsonb_array_elements(status_history || $2::jsonb) WITH ORDINALITY AS t(elem, idx)
		       WHERE idx > jsonb_array_length(status_history || $2::jsonb) - $5
		     ),
		     updated_at = NOW()
		 WHERE id = $3
		   AND current_status = $4::candidate_status
		   AND deleted_at IS NULL`,
		string(newStatus),
		fmt.Sprintf("[%s]", entryJSON),
		id,
		string(expected),
		pipeline.MaxHistoryEntries,
	)
	if err != nil {
		return false, fmt.Errorf("compareAndSwapStatus: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// scanCandidate maps one row onto a Candidate, decoding the jsonb
// ledger. A malformed or null ledger degrades to empty history rather
// than failing the read.
func scanCandidate(row pgx.Row) (*pipeline.Candidate, error) {
	var (
		cand      pipeline.Candidate
		statusStr string
		rawHist   []byte
	)
	if err := row.Scan(&cand.ID, &cand.Name, &statusStr, &rawHist, &cand.DateCreated); err != nil {
		return nil, err
	}
	cand.CurrentStatus = pipeline.Status(statusStr)
	if len(rawHist) > 0 {
		if err := json.Unmarshal(rawHist, &cand.StatusHistory); err != nil {
			cand.StatusHistory = nil
		}
	}
	return &cand, nil
}
