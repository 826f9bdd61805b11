package voucher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greenpass/greenpass/internal/passport"
	"github.com/greenpass/greenpass/internal/platform/db"
	"github.com/greenpass/greenpass/internal/shared"
)

const voucherColumns = `id, code, batch_id, kind, face_value, currency, status, passport_sealed,
valid_from, valid_until, registered_at, used_at, COALESCE(used_by, 0), voided_at, COALESCE(void_reason, ''), created_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool  *pgxpool.Pool
	codec passport.Codec
}

// NewRepository constructs a repository. Passport snapshots are stored through codec.
func NewRepository(pool *pgxpool.Pool, codec passport.Codec) *Repository {
	if codec == nil {
		codec = passport.PlainCodec{}
	}
	return &Repository{pool: pool, codec: codec}
}

func scanVoucher(row pgx.Row, codec passport.Codec) (Voucher, error) {
	var (
		v      Voucher
		kind   string
		status string
		sealed []byte
	)
	if err := row.Scan(&v.ID, &v.Code, &v.BatchID, &kind, &v.FaceValue, &v.Currency, &status, &sealed,
		&v.ValidFrom, &v.ValidUntil, &v.RegisteredAt, &v.UsedAt, &v.UsedBy, &v.VoidedAt, &v.VoidReason, &v.CreatedAt); err != nil {
		return Voucher{}, err
	}
	v.Kind = Kind(kind)
	v.Status = Status(status)
	if len(sealed) > 0 {
		p, err := codec.Open(sealed)
		if err != nil {
			return Voucher{}, fmt.Errorf("voucher %s: %w", v.Code, err)
		}
		v.Passport = &p
	}
	return v, nil
}

func scanVouchers(rows pgx.Rows, codec passport.Codec) ([]Voucher, error) {
	defer rows.Close()
	var out []Voucher
	for rows.Next() {
		v, err := scanVoucher(rows, codec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// conditional runs an UPDATE ... RETURNING and reports whether a row matched.
func conditional(row pgx.Row, codec passport.Codec) (Voucher, bool, error) {
	v, err := scanVoucher(row, codec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, false, nil
		}
		return Voucher{}, false, err
	}
	return v, true, nil
}

// Insert writes a voucher inside the caller's transaction. It reports false
// without error when the code is already taken.
func Insert(ctx context.Context, q db.DBTX, codec passport.Codec, n NewVoucher, now time.Time) (Voucher, bool, error) {
	var (
		sealed []byte
		index  *string
		regAt  *time.Time
	)
	if n.Passport != nil {
		var err error
		if sealed, err = codec.Seal(*n.Passport); err != nil {
			return Voucher{}, false, err
		}
		idx := codec.Index(n.Passport.Number)
		index = &idx
		regAt = &now
	}
	row := q.QueryRow(ctx, `INSERT INTO vouchers (code, batch_id, kind, face_value, currency, status, passport_sealed,
passport_index, valid_from, valid_until, registered_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (code) DO NOTHING
RETURNING `+voucherColumns,
		n.Code, n.BatchID, string(n.Kind), n.FaceValue, n.Currency, string(n.InitialStatus()), sealed,
		index, n.ValidFrom, n.ValidUntil, regAt, now)
	return conditional(row, codec)
}

// GetByCode fetches a voucher.
func (r *Repository) GetByCode(ctx context.Context, code string) (Voucher, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE code=$1`, code)
	v, err := scanVoucher(row, r.codec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, fmt.Errorf("voucher %s: %w", code, shared.ErrNotFound)
		}
		return Voucher{}, err
	}
	return v, nil
}

// ListByBatch returns vouchers of a batch ordered by id.
func (r *Repository) ListByBatch(ctx context.Context, batchID int64) ([]Voucher, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE batch_id=$1 ORDER BY id`, batchID)
	if err != nil {
		return nil, err
	}
	return scanVouchers(rows, r.codec)
}

// ListByPassport returns vouchers whose blind index matches number.
func (r *Repository) ListByPassport(ctx context.Context, number string) ([]Voucher, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE passport_index=$1 ORDER BY registered_at DESC`, r.codec.Index(number))
	if err != nil {
		return nil, err
	}
	return scanVouchers(rows, r.codec)
}

// BindPassport activates a pending voucher that has not expired.
func (r *Repository) BindPassport(ctx context.Context, code string, p passport.Passport, now time.Time) (Voucher, bool, error) {
	sealed, err := r.codec.Seal(p)
	if err != nil {
		return Voucher{}, false, err
	}
	row := r.pool.QueryRow(ctx, `UPDATE vouchers
SET status='active', passport_sealed=$2, passport_index=$3, registered_at=$4
WHERE code=$1 AND status='pending_passport' AND passport_sealed IS NULL AND valid_until >= $4
RETURNING `+voucherColumns, code, sealed, r.codec.Index(p.Number), now)
	return conditional(row, r.codec)
}

// MarkUsed flips an active, unexpired voucher to used.
func (r *Repository) MarkUsed(ctx context.Context, code string, actorID int64, now time.Time) (Voucher, bool, error) {
	row := r.pool.QueryRow(ctx, `UPDATE vouchers
SET status='used', used_at=$3, used_by=NULLIF($2, 0)
WHERE code=$1 AND status='active' AND used_at IS NULL AND valid_until >= $3
RETURNING `+voucherColumns, code, actorID, now)
	return conditional(row, r.codec)
}

// Void cancels a voucher that has not been used.
func (r *Repository) Void(ctx context.Context, code, reason string, now time.Time) (Voucher, bool, error) {
	row := r.pool.QueryRow(ctx, `UPDATE vouchers
SET status='void', voided_at=$3, void_reason=$2
WHERE code=$1 AND status IN ('pending_passport', 'active')
RETURNING `+voucherColumns, code, reason, now)
	return conditional(row, r.codec)
}
