package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greenpass/greenpass/internal/money"
	"github.com/greenpass/greenpass/internal/platform/db"
	"github.com/greenpass/greenpass/internal/shared"
)

const amountPaid = `COALESCE((SELECT SUM(p.amount) FROM invoice_payments p WHERE p.invoice_id = i.id), 0)::bigint`

const invoiceColumns = `i.id, i.number, i.quotation_id, i.customer_name, i.customer_email, i.customer_phone,
i.customer_address, i.customer_tin, i.description, i.voucher_count, i.unit_price, i.subtotal, i.discount_rate,
i.discount_amount, i.gst_rate, i.gst_amount, i.total_amount, ` + amountPaid + `,
i.currency, i.payment_terms, i.issued_at, i.due_date, i.cancelled_at, COALESCE(i.cancel_reason, ''),
i.vouchers_generated, i.vouchers_generated_at, COALESCE(i.created_by, 0), i.created_at`

// Columns is the select list ScanInvoice expects, with invoices aliased as i.
const Columns = invoiceColumns

const paymentColumns = `id, invoice_id, amount, method, COALESCE(reference, ''), COALESCE(notes, ''),
COALESCE(recorded_by, 0), paid_at, created_at`

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

// ScanInvoice reads a row selected with the invoice column list.
func ScanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.QuotationID, &inv.Customer.Name, &inv.Customer.Email,
		&inv.Customer.Phone, &inv.Customer.Address, &inv.Customer.TIN, &inv.Description, &inv.VoucherCount,
		&inv.UnitPrice, &inv.Subtotal, &inv.DiscountRate, &inv.DiscountAmount, &inv.GSTRate, &inv.GSTAmount,
		&inv.TotalAmount, &inv.AmountPaid, &inv.Currency, &inv.PaymentTerms, &inv.IssuedAt, &inv.DueDate,
		&inv.CancelledAt, &inv.CancelReason, &inv.VouchersGenerated, &inv.VouchersGeneratedAt, &inv.CreatedBy,
		&inv.CreatedAt)
	return inv, err
}

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	var method string
	if err := row.Scan(&p.ID, &p.InvoiceID, &p.Amount, &method, &p.Reference, &p.Notes, &p.RecordedBy, &p.PaidAt, &p.CreatedAt); err != nil {
		return Payment{}, err
	}
	p.Method = PaymentMethod(method)
	return p, nil
}

// SelectByID loads an invoice header with its derived amount paid.
func SelectByID(ctx context.Context, q db.DBTX, id int64) (Invoice, error) {
	inv, err := ScanInvoice(q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices i WHERE i.id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, fmt.Errorf("invoice %d: %w", id, shared.ErrNotFound)
		}
		return Invoice{}, err
	}
	return inv, nil
}

// NextNumberTx allocates the next INV-YYYYMM-NNNN number.
func NextNumberTx(ctx context.Context, q db.DBTX, at time.Time) (string, error) {
	var seq int64
	if err := q.QueryRow(ctx, `SELECT nextval('invoice_number_seq')`).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("INV-%s-%04d", at.Format("200601"), seq), nil
}

// InsertTx writes an invoice header using q.
func InsertTx(ctx context.Context, q db.DBTX, in NewInvoice, number string, now time.Time) (Invoice, error) {
	var id int64
	err := q.QueryRow(ctx, `INSERT INTO invoices (number, quotation_id, customer_name, customer_email, customer_phone,
customer_address, customer_tin, description, voucher_count, unit_price, subtotal, discount_rate, discount_amount,
gst_rate, gst_amount, total_amount, currency, payment_terms, issued_at, due_date, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, NULLIF($21, 0), $22)
RETURNING id`,
		number, in.QuotationID, in.Customer.Name, in.Customer.Email, in.Customer.Phone, in.Customer.Address,
		in.Customer.TIN, in.Description, in.VoucherCount, in.UnitPrice, in.Totals.Subtotal, in.Totals.DiscountRate,
		in.Totals.DiscountAmount, in.Totals.GSTRate, in.Totals.GSTAmount, in.Totals.Total, in.Currency,
		in.PaymentTerms, in.IssuedAt, in.DueDate, in.CreatedBy, now).Scan(&id)
	if err != nil {
		return Invoice{}, err
	}
	return Invoice{
		ID:             id,
		Number:         number,
		QuotationID:    in.QuotationID,
		Customer:       in.Customer,
		Description:    in.Description,
		VoucherCount:   in.VoucherCount,
		UnitPrice:      in.UnitPrice,
		Subtotal:       in.Totals.Subtotal,
		DiscountRate:   in.Totals.DiscountRate,
		DiscountAmount: in.Totals.DiscountAmount,
		GSTRate:        in.Totals.GSTRate,
		GSTAmount:      in.Totals.GSTAmount,
		TotalAmount:    in.Totals.Total,
		Currency:       in.Currency,
		PaymentTerms:   in.PaymentTerms,
		IssuedAt:       in.IssuedAt,
		DueDate:        in.DueDate,
		CreatedBy:      in.CreatedBy,
		CreatedAt:      now,
	}, nil
}

func (t *txRepo) NextNumber(ctx context.Context, at time.Time) (string, error) {
	return NextNumberTx(ctx, t.tx, at)
}

func (t *txRepo) Insert(ctx context.Context, in NewInvoice, number string, now time.Time) (Invoice, error) {
	return InsertTx(ctx, t.tx, in, number, now)
}

func (t *txRepo) LockForPayment(ctx context.Context, id int64) (Invoice, error) {
	var locked int64
	if err := t.tx.QueryRow(ctx, `SELECT id FROM invoices WHERE id=$1 FOR UPDATE`, id).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, fmt.Errorf("invoice %d: %w", id, shared.ErrNotFound)
		}
		return Invoice{}, err
	}
	// Separate statement so the payment sum is read after the lock is held.
	return SelectByID(ctx, t.tx, id)
}

func (t *txRepo) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO invoice_payments (invoice_id, amount, method, reference, notes, recorded_by, paid_at, created_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, 0), $7, $8)
RETURNING `+paymentColumns, p.InvoiceID, p.Amount, string(p.Method), p.Reference, p.Notes, p.RecordedBy, p.PaidAt, p.CreatedAt)
	return scanPayment(row)
}

func (t *txRepo) Cancel(ctx context.Context, id int64, reason string, now time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE invoices SET cancelled_at=$2, cancel_reason=$3
WHERE id=$1 AND cancelled_at IS NULL AND vouchers_generated = false
AND NOT EXISTS (SELECT 1 FROM invoice_payments WHERE invoice_id=$1)`, id, now, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Get returns invoice header and payments.
func (r *Repository) Get(ctx context.Context, id int64) (Invoice, error) {
	inv, err := SelectByID(ctx, r.pool, id)
	if err != nil {
		return Invoice{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM invoice_payments WHERE invoice_id=$1 ORDER BY paid_at, id`, id)
	if err != nil {
		return Invoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return Invoice{}, err
		}
		inv.Payments = append(inv.Payments, p)
	}
	return inv, rows.Err()
}

// invoiceStatus mirrors Invoice.Status with $5 as the evaluation instant.
const invoiceStatus = `CASE WHEN i.cancelled_at IS NOT NULL THEN 'cancelled'
WHEN ` + amountPaid + ` >= i.total_amount THEN 'paid'
WHEN $5::timestamptz > i.due_date THEN 'overdue'
WHEN ` + amountPaid + ` = 0 THEN 'pending'
ELSE 'partial' END`

// List returns invoice headers newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices i
WHERE ($1 = '' OR i.customer_name ILIKE '%' || $1 || '%')
AND ($2::timestamptz IS NULL OR i.issued_at >= $2)
AND ($3::timestamptz IS NULL OR i.issued_at < $3)
AND ($4 = '' OR `+invoiceStatus+` = $4)
ORDER BY i.issued_at DESC, i.id DESC LIMIT $6`,
		filter.Customer, filter.From, filter.To, string(filter.Status), filter.AsOf, filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := ScanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// CashSummary totals payments per method in [from, to).
func (r *Repository) CashSummary(ctx context.Context, from, to time.Time, recordedBy int64) (MethodTotals, error) {
	rows, err := r.pool.Query(ctx, `SELECT method, SUM(amount)::bigint FROM invoice_payments
WHERE paid_at >= $1 AND paid_at < $2 AND ($3 = 0 OR recorded_by = $3)
GROUP BY method`, from, to, recordedBy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(MethodTotals)
	for rows.Next() {
		var method string
		var total money.Amount
		if err := rows.Scan(&method, &total); err != nil {
			return nil, err
		}
		out[PaymentMethod(method)] = total
	}
	return out, rows.Err()
}
