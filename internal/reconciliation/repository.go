package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greenpass/greenpass/internal/shared"
)

const recordColumns = `id, agent_id, period_start, period_end, opening_float, counts, counted_total, expected_cash,
variance, classification, takings, COALESCE(notes, ''), status, reviewed_by, reviewed_at, COALESCE(review_notes, ''),
created_at`

// Repository persists reconciliations in cash_reconciliations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec            Record
		counts         []byte
		takings        []byte
		classification string
		stat           string
	)
	err := row.Scan(&rec.ID, &rec.AgentID, &rec.PeriodStart, &rec.PeriodEnd, &rec.Result.OpeningFloat, &counts,
		&rec.Result.CountedTotal, &rec.Result.ExpectedCash, &rec.Result.Variance, &classification, &takings,
		&rec.Notes, &stat, &rec.ReviewedBy, &rec.ReviewedAt, &rec.ReviewNotes, &rec.CreatedAt)
	if err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(counts, &rec.Result.Counts); err != nil {
		return Record{}, fmt.Errorf("decode counts: %w", err)
	}
	if len(takings) > 0 {
		if err := json.Unmarshal(takings, &rec.Takings); err != nil {
			return Record{}, fmt.Errorf("decode takings: %w", err)
		}
	}
	rec.Result.Expected = rec.Result.OpeningFloat.Add(rec.Result.ExpectedCash)
	rec.Result.Classification = Classification(classification)
	rec.Status = Status(stat)
	return rec, nil
}

// Insert stores a reconciliation.
func (r *Repository) Insert(ctx context.Context, rec Record) (Record, error) {
	counts, err := json.Marshal(rec.Result.Counts)
	if err != nil {
		return Record{}, err
	}
	takings, err := json.Marshal(rec.Takings)
	if err != nil {
		return Record{}, err
	}
	err = r.pool.QueryRow(ctx, `INSERT INTO cash_reconciliations (agent_id, period_start, period_end, opening_float,
counts, counted_total, expected_cash, variance, classification, takings, notes, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13)
RETURNING id`,
		rec.AgentID, rec.PeriodStart, rec.PeriodEnd, rec.Result.OpeningFloat, counts, rec.Result.CountedTotal,
		rec.Result.ExpectedCash, rec.Result.Variance, string(rec.Result.Classification), takings, rec.Notes,
		string(rec.Status), rec.CreatedAt).Scan(&rec.ID)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Get fetches a reconciliation by id.
func (r *Repository) Get(ctx context.Context, id int64) (Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM cash_reconciliations WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fmt.Errorf("reconciliation %d: %w", id, shared.ErrNotFound)
		}
		return Record{}, err
	}
	return rec, nil
}

// Review moves a pending record to status.
func (r *Repository) Review(ctx context.Context, id int64, status Status, reviewer int64, notes string, now time.Time) (Record, bool, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, `UPDATE cash_reconciliations
SET status=$2, reviewed_by=$3, review_notes=NULLIF($4, ''), reviewed_at=$5
WHERE id=$1 AND status='pending'
RETURNING `+recordColumns, id, string(status), reviewer, notes, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return rec, true, nil
}
