package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greenpass/greenpass/internal/invoice"
	"github.com/greenpass/greenpass/internal/money"
	"github.com/greenpass/greenpass/internal/passport"
	"github.com/greenpass/greenpass/internal/platform/db"
	"github.com/greenpass/greenpass/internal/shared"
	"github.com/greenpass/greenpass/internal/voucher"
)

const batchColumns = `id, source, invoice_id, COALESCE(sale_reference, ''), kind, COALESCE(customer_name, ''),
voucher_count, unit_price, discount_rate, discount_amount, gst_amount, total_amount, currency,
COALESCE(payment_method, ''), amount_collected, change_given, COALESCE(generated_by, 0), generated_at`

// claimInvoice marks an invoice as generated only while it is fully paid and
// not cancelled. The guard is re-checked against the latest committed row.
const claimInvoice = `UPDATE invoices i SET vouchers_generated = true, vouchers_generated_at = $2
WHERE i.id = $1 AND i.vouchers_generated = false AND i.cancelled_at IS NULL
AND i.total_amount = COALESCE((SELECT SUM(p.amount) FROM invoice_payments p WHERE p.invoice_id = i.id), 0)
RETURNING `

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool     *pgxpool.Pool
	codec    passport.Codec
	vouchers *voucher.Repository
}

// NewRepository constructs a repository sharing the voucher passport codec.
func NewRepository(pool *pgxpool.Pool, codec passport.Codec) *Repository {
	if codec == nil {
		codec = passport.PlainCodec{}
	}
	return &Repository{pool: pool, codec: codec, vouchers: voucher.NewRepository(pool, codec)}
}

type txRepo struct {
	tx    pgx.Tx
	codec passport.Codec
}

// WithTx wraps callback in a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, codec: r.codec})
	})
}

func scanBatch(row pgx.Row) (Batch, error) {
	var b Batch
	var source, kind, method string
	err := row.Scan(&b.ID, &source, &b.InvoiceID, &b.SaleReference, &kind, &b.Customer.Name, &b.Count, &b.UnitPrice,
		&b.DiscountRate, &b.DiscountAmount, &b.GSTAmount, &b.Total, &b.Currency, &method, &b.AmountCollected,
		&b.ChangeGiven, &b.GeneratedBy, &b.GeneratedAt)
	if err != nil {
		return Batch{}, err
	}
	b.Source = Source(source)
	b.Kind = voucher.Kind(kind)
	b.PaymentMethod = invoice.PaymentMethod(method)
	return b, nil
}

func (t *txRepo) ClaimInvoice(ctx context.Context, invoiceID int64, now time.Time) (invoice.Invoice, bool, error) {
	inv, err := invoice.ScanInvoice(t.tx.QueryRow(ctx, claimInvoice+invoice.Columns, invoiceID, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return invoice.Invoice{}, false, nil
		}
		return invoice.Invoice{}, false, err
	}
	return inv, true, nil
}

func (t *txRepo) GetInvoice(ctx context.Context, invoiceID int64) (invoice.Invoice, error) {
	return invoice.SelectByID(ctx, t.tx, invoiceID)
}

func (t *txRepo) InsertBatch(ctx context.Context, b Batch) (Batch, bool, error) {
	var method *string
	if b.PaymentMethod != "" {
		m := string(b.PaymentMethod)
		method = &m
	}
	err := t.tx.QueryRow(ctx, `INSERT INTO voucher_batches (source, invoice_id, sale_reference, kind, customer_name,
voucher_count, unit_price, discount_rate, discount_amount, gst_amount, total_amount, currency, payment_method,
amount_collected, change_given, generated_by, generated_at)
VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NULLIF($16, 0), $17)
ON CONFLICT DO NOTHING
RETURNING id`,
		string(b.Source), b.InvoiceID, b.SaleReference, string(b.Kind), b.Customer.Name, b.Count, b.UnitPrice,
		b.DiscountRate, b.DiscountAmount, b.GSTAmount, b.Total, b.Currency, method, b.AmountCollected, b.ChangeGiven,
		b.GeneratedBy, b.GeneratedAt).Scan(&b.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, false, nil
		}
		return Batch{}, false, err
	}
	return b, true, nil
}

func (t *txRepo) InsertVoucher(ctx context.Context, n voucher.NewVoucher, now time.Time) (voucher.Voucher, bool, error) {
	return voucher.Insert(ctx, t.tx, t.codec, n, now)
}

// Get returns a batch with its vouchers.
func (r *Repository) Get(ctx context.Context, id int64) (Batch, error) {
	b, err := scanBatch(r.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM voucher_batches WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, fmt.Errorf("batch %d: %w", id, shared.ErrNotFound)
		}
		return Batch{}, err
	}
	b.Vouchers, err = r.vouchers.ListByBatch(ctx, id)
	return b, err
}

// ForInvoice returns the batch generated for an invoice.
func (r *Repository) ForInvoice(ctx context.Context, invoiceID int64) (Batch, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM voucher_batches WHERE invoice_id=$1`, invoiceID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, fmt.Errorf("batch for invoice %d: %w", invoiceID, shared.ErrNotFound)
		}
		return Batch{}, err
	}
	return r.Get(ctx, id)
}

// ForSale returns the batch issued under a sale reference.
func (r *Repository) ForSale(ctx context.Context, reference string) (Batch, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM voucher_batches WHERE sale_reference=$1`, reference).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, fmt.Errorf("batch for sale %s: %w", reference, shared.ErrNotFound)
		}
		return Batch{}, err
	}
	return r.Get(ctx, id)
}

// DirectSaleCash totals counter sale takings per payment method.
func (r *Repository) DirectSaleCash(ctx context.Context, from, to time.Time, agentID int64) (invoice.MethodTotals, error) {
	rows, err := r.pool.Query(ctx, `SELECT payment_method, SUM(total_amount)::bigint FROM voucher_batches
WHERE source = 'direct_sale' AND generated_at >= $1 AND generated_at < $2 AND ($3 = 0 OR generated_by = $3)
GROUP BY payment_method`, from, to, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(invoice.MethodTotals)
	for rows.Next() {
		var method string
		var total money.Amount
		if err := rows.Scan(&method, &total); err != nil {
			return nil, err
		}
		out[invoice.PaymentMethod(method)] = total
	}
	return out, rows.Err()
}
