package quotation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greenpass/greenpass/internal/invoice"
	"github.com/greenpass/greenpass/internal/platform/db"
	"github.com/greenpass/greenpass/internal/shared"
)

const quotationColumns = `id, number, customer_name, customer_email, customer_phone, customer_address, customer_tin,
discount_rate, subtotal, discount_amount, gst_rate, gst_amount, total_amount, currency, status, valid_until,
COALESCE(notes, ''), COALESCE(created_by, 0), sent_at, approved_at, approved_by, converted_at, invoice_id,
created_at, updated_at`

const lineColumns = `id, quotation_id, description, quantity, unit_price, line_total, line_order`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func scanQuotation(row pgx.Row) (Quotation, error) {
	var q Quotation
	var status string
	err := row.Scan(&q.ID, &q.Number, &q.Customer.Name, &q.Customer.Email, &q.Customer.Phone, &q.Customer.Address,
		&q.Customer.TIN, &q.DiscountRate, &q.Subtotal, &q.DiscountAmount, &q.GSTRate, &q.GSTAmount, &q.TotalAmount,
		&q.Currency, &status, &q.ValidUntil, &q.Notes, &q.CreatedBy, &q.SentAt, &q.ApprovedAt, &q.ApprovedBy,
		&q.ConvertedAt, &q.InvoiceID, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return Quotation{}, err
	}
	q.Status = Status(status)
	return q, nil
}

func selectQuotation(ctx context.Context, q db.DBTX, id int64) (Quotation, error) {
	quote, err := scanQuotation(q.QueryRow(ctx, `SELECT `+quotationColumns+` FROM quotations WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quotation{}, fmt.Errorf("quotation %d: %w", id, shared.ErrNotFound)
		}
		return Quotation{}, err
	}
	quote.Lines, err = selectLines(ctx, q, id)
	return quote, err
}

func selectLines(ctx context.Context, q db.DBTX, id int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT `+lineColumns+` FROM quotation_lines WHERE quotation_id=$1 ORDER BY line_order, id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.QuotationID, &l.Description, &l.Quantity, &l.UnitPrice, &l.LineTotal, &l.LineOrder); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (t *txRepo) NextNumber(ctx context.Context, at time.Time) (string, error) {
	var seq int64
	if err := t.tx.QueryRow(ctx, `SELECT nextval('quotation_number_seq')`).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("QUO-%s-%04d", at.Format("200601"), seq), nil
}

func (t *txRepo) Insert(ctx context.Context, q Quotation) (Quotation, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO quotations (number, customer_name, customer_email, customer_phone,
customer_address, customer_tin, discount_rate, subtotal, discount_amount, gst_rate, gst_amount, total_amount,
currency, status, valid_until, notes, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NULLIF($16, ''), NULLIF($17, 0), $18, $18)
RETURNING id`,
		q.Number, q.Customer.Name, q.Customer.Email, q.Customer.Phone, q.Customer.Address, q.Customer.TIN,
		q.DiscountRate, q.Subtotal, q.DiscountAmount, q.GSTRate, q.GSTAmount, q.TotalAmount, q.Currency,
		string(q.Status), q.ValidUntil, q.Notes, q.CreatedBy, q.CreatedAt).Scan(&q.ID)
	if err != nil {
		return Quotation{}, err
	}
	for i := range q.Lines {
		l := &q.Lines[i]
		l.QuotationID = q.ID
		err := t.tx.QueryRow(ctx, `INSERT INTO quotation_lines (quotation_id, description, quantity, unit_price, line_total, line_order)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`, q.ID, l.Description, l.Quantity, l.UnitPrice, l.LineTotal, l.LineOrder).Scan(&l.ID)
		if err != nil {
			return Quotation{}, err
		}
	}
	return q, nil
}

func (t *txRepo) Get(ctx context.Context, id int64) (Quotation, error) {
	return selectQuotation(ctx, t.tx, id)
}

func (t *txRepo) Transition(ctx context.Context, id int64, from, to Status, actorID int64, now time.Time) (Quotation, bool, error) {
	args := []any{id, string(from), string(to), now}
	var stamp string
	switch to {
	case StatusSent:
		stamp = "sent_at=$4"
	case StatusApproved:
		stamp = "approved_at=$4, approved_by=NULLIF($5::bigint, 0)"
		args = append(args, actorID)
	case StatusConverted:
		stamp = "converted_at=$4"
	default:
		return Quotation{}, false, fmt.Errorf("quotation %d: unknown target %s: %w", id, to, shared.ErrInvalidTransition)
	}
	row := t.tx.QueryRow(ctx, `UPDATE quotations SET status=$3, `+stamp+`, updated_at=$4
WHERE id=$1 AND status=$2 AND valid_until >= $4
RETURNING `+quotationColumns, args...)
	q, err := scanQuotation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quotation{}, false, nil
		}
		return Quotation{}, false, err
	}
	q.Lines, err = selectLines(ctx, t.tx, id)
	if err != nil {
		return Quotation{}, false, err
	}
	return q, true, nil
}

func (t *txRepo) CreateInvoice(ctx context.Context, in invoice.NewInvoice, now time.Time) (invoice.Invoice, error) {
	number, err := invoice.NextNumberTx(ctx, t.tx, now)
	if err != nil {
		return invoice.Invoice{}, err
	}
	inv, err := invoice.InsertTx(ctx, t.tx, in, number, now)
	if err != nil {
		if db.IsUniqueViolation(err, "invoices_quotation_id_key") {
			return invoice.Invoice{}, fmt.Errorf("quotation %d already invoiced: %w", *in.QuotationID, shared.ErrInvalidTransition)
		}
		return invoice.Invoice{}, err
	}
	return inv, nil
}

func (t *txRepo) LinkInvoice(ctx context.Context, id, invoiceID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE quotations SET invoice_id=$2 WHERE id=$1`, id, invoiceID)
	return err
}

// Get returns a quotation with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Quotation, error) {
	return selectQuotation(ctx, r.pool, id)
}

// List returns quotation headers newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Quotation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+quotationColumns+` FROM quotations
WHERE ($1 = '' OR customer_name ILIKE '%' || $1 || '%')
AND ($2 = '' OR CASE WHEN status IN ('draft', 'sent', 'approved') AND $3::timestamptz > valid_until
	THEN 'expired' ELSE status END = $2)
ORDER BY created_at DESC, id DESC LIMIT $4`, filter.Customer, string(filter.Status), filter.AsOf, filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Quotation
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
