package invoice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/greenpass/greenpass/internal/money"
	"github.com/greenpass/greenpass/internal/settings"
	"github.com/greenpass/greenpass/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Invoice, error)
	List(ctx context.Context, filter ListFilter) ([]Invoice, error)
	CashSummary(ctx context.Context, from, to time.Time, recordedBy int64) (MethodTotals, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	NextNumber(ctx context.Context, at time.Time) (string, error)
	Insert(ctx context.Context, in NewInvoice, number string, now time.Time) (Invoice, error)
	// LockForPayment loads the invoice with its current amount paid and holds
	// a row lock until the transaction ends.
	LockForPayment(ctx context.Context, id int64) (Invoice, error)
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	Cancel(ctx context.Context, id int64, reason string, now time.Time) (bool, error)
}

// Service manages invoices and the payment ledger.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the invoice service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateInput describes a directly raised invoice.
type CreateInput struct {
	Customer     shared.Customer
	Description  string
	VoucherCount int
	UnitPrice    money.Amount
	DiscountRate money.Rate
	DueDate      *time.Time
	CreatedBy    int64
}

// PaymentInput describes a payment being recorded.
type PaymentInput struct {
	Amount     money.Amount
	Method     PaymentMethod
	Reference  string
	Notes      string
	RecordedBy int64
	PaidAt     *time.Time
}

// PaymentTerms renders the terms line for a due period.
func PaymentTerms(days int) string {
	return fmt.Sprintf("Net %d days", days)
}

// Draft validates input and prices a new invoice against snap.
func Draft(in CreateInput, snap settings.Snapshot, now time.Time) (NewInvoice, error) {
	customer := in.Customer.Normalize()
	if customer.Name == "" {
		return NewInvoice{}, shared.Invalid("customer name is required")
	}
	if in.VoucherCount < 1 || in.VoucherCount > MaxVouchersPerDocument {
		return NewInvoice{}, shared.Invalid("voucher count must be between 1 and %d", MaxVouchersPerDocument)
	}
	if in.UnitPrice < 0 {
		return NewInvoice{}, shared.Invalid("unit price must not be negative")
	}
	if !in.DiscountRate.Valid() {
		return NewInvoice{}, shared.Invalid("discount must be between 0 and 100 percent")
	}
	unit := in.UnitPrice
	if unit == 0 {
		unit = snap.DefaultFee
	}
	due := now.AddDate(0, 0, snap.InvoiceDueDays)
	if in.DueDate != nil {
		if in.DueDate.Before(now) {
			return NewInvoice{}, shared.Invalid("due date must not be in the past")
		}
		due = *in.DueDate
	}
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		desc = fmt.Sprintf("Exit fee vouchers x %d", in.VoucherCount)
	}
	subtotal, err := unit.Mul(int64(in.VoucherCount))
	if err != nil {
		return NewInvoice{}, shared.Invalid("invoice subtotal is too large: %v", err)
	}
	return NewInvoice{
		Customer:     customer,
		Description:  desc,
		VoucherCount: in.VoucherCount,
		UnitPrice:    unit,
		Totals:       ComputeTotals(subtotal, in.DiscountRate, snap),
		Currency:     snap.Currency,
		PaymentTerms: PaymentTerms(snap.InvoiceDueDays),
		IssuedAt:     now,
		DueDate:      due,
		CreatedBy:    in.CreatedBy,
	}, nil
}

// Create raises an invoice without a quotation.
func (s *Service) Create(ctx context.Context, in CreateInput, snap settings.Snapshot) (Invoice, error) {
	now := s.now()
	draft, err := Draft(in, snap, now)
	if err != nil {
		return Invoice{}, err
	}
	var created Invoice
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx, now)
		if err != nil {
			return err
		}
		created, err = tx.Insert(ctx, draft, number, now)
		return err
	})
	if err != nil {
		return Invoice{}, shared.Storage("create invoice", err)
	}
	s.logger.Info("invoice created", slog.String("number", created.Number), slog.String("total", created.TotalAmount.String()))
	return created, nil
}

// Get returns the invoice with its payments.
func (s *Service) Get(ctx context.Context, id int64) (Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return Invoice{}, shared.Storage("get invoice", err)
	}
	return inv, nil
}

// List returns invoices matching filter. Status is derived at the service
// clock and filtered before the limit applies.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	filter.AsOf = s.now()
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Storage("list invoices", err)
	}
	return items, nil
}

// RecordPayment appends a payment. Concurrent calls for one invoice are
// serialized by the row lock so the overpayment check sees the latest total.
func (s *Service) RecordPayment(ctx context.Context, id int64, in PaymentInput) (Invoice, Payment, error) {
	if in.Amount <= 0 {
		return Invoice{}, Payment{}, shared.Invalid("payment amount must be positive")
	}
	in.Method = PaymentMethod(strings.ToUpper(strings.TrimSpace(string(in.Method))))
	if !in.Method.Valid() {
		return Invoice{}, Payment{}, shared.Invalid("unsupported payment method %q", in.Method)
	}
	now := s.now()
	paidAt := now
	if in.PaidAt != nil {
		paidAt = *in.PaidAt
	}
	var (
		updated Invoice
		payment Payment
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockForPayment(ctx, id)
		if err != nil {
			return err
		}
		if err := inv.CheckPayment(in.Amount); err != nil {
			return err
		}
		payment, err = tx.InsertPayment(ctx, Payment{
			InvoiceID:  id,
			Amount:     in.Amount,
			Method:     in.Method,
			Reference:  strings.TrimSpace(in.Reference),
			Notes:      strings.TrimSpace(in.Notes),
			RecordedBy: in.RecordedBy,
			PaidAt:     paidAt,
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}
		inv.AmountPaid = inv.AmountPaid.Add(in.Amount)
		inv.Payments = append(inv.Payments, payment)
		updated = inv
		return nil
	})
	if err != nil {
		return Invoice{}, Payment{}, shared.Storage("record payment", err)
	}
	s.logger.Info("invoice payment recorded",
		slog.String("number", updated.Number),
		slog.String("amount", in.Amount.String()),
		slog.String("method", string(in.Method)),
		slog.String("status", string(updated.Status(now))))
	return updated, payment, nil
}

// Cancel voids an invoice that has no payments and no vouchers.
func (s *Service) Cancel(ctx context.Context, id int64, reason string) (Invoice, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Invoice{}, shared.Invalid("cancellation reason is required")
	}
	now := s.now()
	var cancelled Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockForPayment(ctx, id)
		if err != nil {
			return err
		}
		if err := inv.CheckCancel(); err != nil {
			return err
		}
		ok, err := tx.Cancel(ctx, id, reason, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("invoice %d changed concurrently: %w", id, shared.ErrInvalidTransition)
		}
		inv.CancelledAt = &now
		inv.CancelReason = reason
		cancelled = inv
		return nil
	})
	if err != nil {
		return Invoice{}, shared.Storage("cancel invoice", err)
	}
	return cancelled, nil
}

// CashSummary totals payments per method for a trading period.
func (s *Service) CashSummary(ctx context.Context, from, to time.Time, recordedBy int64) (MethodTotals, error) {
	if !to.After(from) {
		return nil, shared.Invalid("period end must be after start")
	}
	totals, err := s.repo.CashSummary(ctx, from, to, recordedBy)
	if err != nil {
		return nil, shared.Storage("cash summary", err)
	}
	return totals, nil
}
