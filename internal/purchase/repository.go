package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greenpass/greenpass/internal/passport"
	"github.com/greenpass/greenpass/internal/shared"
)

const sessionColumns = `id, COALESCE(customer_name, ''), customer_email, COALESCE(customer_phone, ''), passport_sealed,
quantity, unit_price, total_amount, currency, status, COALESCE(gateway_ref, ''), batch_id, expires_at, completed_at,
created_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool  *pgxpool.Pool
	codec passport.Codec
}

// NewRepository constructs a repository. Passport data is stored through codec.
func NewRepository(pool *pgxpool.Pool, codec passport.Codec) *Repository {
	if codec == nil {
		codec = passport.PlainCodec{}
	}
	return &Repository{pool: pool, codec: codec}
}

func (r *Repository) scan(row pgx.Row) (Session, error) {
	var (
		s      Session
		sealed []byte
		status string
	)
	err := row.Scan(&s.ID, &s.Customer.Name, &s.Customer.Email, &s.Customer.Phone, &sealed,
		&s.Quantity, &s.UnitPrice, &s.Total, &s.Currency, &status, &s.GatewayRef, &s.BatchID, &s.ExpiresAt, &s.CompletedAt,
		&s.CreatedAt)
	if err != nil {
		return Session{}, err
	}
	s.Status = Status(status)
	if len(sealed) > 0 {
		p, err := r.codec.Open(sealed)
		if err != nil {
			return Session{}, fmt.Errorf("open session passport: %w", err)
		}
		s.Passport = &p
	}
	return s, nil
}

// Insert stores a new session.
func (r *Repository) Insert(ctx context.Context, s Session) (Session, error) {
	var sealed []byte
	if s.Passport != nil {
		var err error
		if sealed, err = r.codec.Seal(*s.Passport); err != nil {
			return Session{}, err
		}
	}
	return r.scan(r.pool.QueryRow(ctx, `INSERT INTO purchase_sessions (id, customer_name, customer_email, customer_phone,
passport_sealed, quantity, unit_price, total_amount, currency, status, expires_at, created_at)
VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING `+sessionColumns,
		s.ID, s.Customer.Name, s.Customer.Email, s.Customer.Phone, sealed, s.Quantity, s.UnitPrice, s.Total,
		s.Currency, string(s.Status), s.ExpiresAt, s.CreatedAt))
}

// Get returns a session.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Session, error) {
	s, err := r.scan(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM purchase_sessions WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, fmt.Errorf("purchase session %s: %w", id, shared.ErrNotFound)
		}
		return Session{}, err
	}
	return s, nil
}

// Complete marks a pending session completed.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID, gatewayRef string, batchID int64, now time.Time) (Session, bool, error) {
	s, err := r.scan(r.pool.QueryRow(ctx, `UPDATE purchase_sessions
SET status='completed', gateway_ref=NULLIF($2, ''), batch_id=$3, completed_at=$4
WHERE id=$1 AND status='pending'
RETURNING `+sessionColumns, id, gatewayRef, batchID, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, false, nil
		}
		return Session{}, false, err
	}
	return s, true, nil
}
