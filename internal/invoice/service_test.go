package invoice

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/greenpass/greenpass/internal/money"
	"github.com/greenpass/greenpass/internal/settings"
	"github.com/greenpass/greenpass/internal/shared"
)

type memoryInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[int64]Invoice
	payments []Payment
	seq      int64
}

func newMemoryInvoiceRepo() *memoryInvoiceRepo {
	return &memoryInvoiceRepo{invoices: make(map[int64]Invoice)}
}

// WithTx holds the repository lock for the whole callback, standing in for
// the row lock, and discards writes when fn fails.
func (m *memoryInvoiceRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	invoices := make(map[int64]Invoice, len(m.invoices))
	for k, v := range m.invoices {
		invoices[k] = v
	}
	payments := append([]Payment(nil), m.payments...)
	seq := m.seq
	if err := fn(ctx, memoryInvoiceTx{m}); err != nil {
		m.invoices, m.payments, m.seq = invoices, payments, seq
		return err
	}
	return nil
}

func (m *memoryInvoiceRepo) load(id int64) (Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return Invoice{}, fmt.Errorf("invoice %d: %w", id, shared.ErrNotFound)
	}
	inv.AmountPaid = 0
	inv.Payments = nil
	for _, p := range m.payments {
		if p.InvoiceID == id {
			inv.AmountPaid += p.Amount
			inv.Payments = append(inv.Payments, p)
		}
	}
	return inv, nil
}

func (m *memoryInvoiceRepo) Get(_ context.Context, id int64) (Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(id)
}

func (m *memoryInvoiceRepo) List(_ context.Context, filter ListFilter) ([]Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Invoice
	for id := range m.invoices {
		inv, _ := m.load(id)
		if filter.Customer != "" && !strings.Contains(strings.ToLower(inv.Customer.Name), strings.ToLower(filter.Customer)) {
			continue
		}
		if filter.Status != "" && inv.Status(filter.AsOf) != filter.Status {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].IssuedAt.Equal(out[b].IssuedAt) {
			return out[a].IssuedAt.After(out[b].IssuedAt)
		}
		return out[a].ID > out[b].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memoryInvoiceRepo) CashSummary(_ context.Context, from, to time.Time, recordedBy int64) (MethodTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(MethodTotals)
	for _, p := range m.payments {
		if p.PaidAt.Before(from) || !p.PaidAt.Before(to) {
			continue
		}
		if recordedBy != 0 && p.RecordedBy != recordedBy {
			continue
		}
		out[p.Method] += p.Amount
	}
	return out, nil
}

type memoryInvoiceTx struct{ m *memoryInvoiceRepo }

func (t memoryInvoiceTx) NextNumber(_ context.Context, at time.Time) (string, error) {
	t.m.seq++
	return fmt.Sprintf("INV-%s-%04d", at.Format("200601"), t.m.seq), nil
}

func (t memoryInvoiceTx) Insert(_ context.Context, in NewInvoice, number string, now time.Time) (Invoice, error) {
	id := int64(len(t.m.invoices) + 1)
	inv := Invoice{
		ID: id, Number: number, QuotationID: in.QuotationID, Customer: in.Customer, Description: in.Description,
		VoucherCount: in.VoucherCount, UnitPrice: in.UnitPrice, Subtotal: in.Totals.Subtotal,
		DiscountRate: in.Totals.DiscountRate, DiscountAmount: in.Totals.DiscountAmount, GSTRate: in.Totals.GSTRate,
		GSTAmount: in.Totals.GSTAmount, TotalAmount: in.Totals.Total, Currency: in.Currency,
		PaymentTerms: in.PaymentTerms, IssuedAt: in.IssuedAt, DueDate: in.DueDate, CreatedBy: in.CreatedBy, CreatedAt: now,
	}
	t.m.invoices[id] = inv
	return inv, nil
}

func (t memoryInvoiceTx) LockForPayment(_ context.Context, id int64) (Invoice, error) {
	return t.m.load(id)
}

func (t memoryInvoiceTx) InsertPayment(_ context.Context, p Payment) (Payment, error) {
	p.ID = int64(len(t.m.payments) + 1)
	t.m.payments = append(t.m.payments, p)
	return p, nil
}

func (t memoryInvoiceTx) Cancel(_ context.Context, id int64, reason string, now time.Time) (bool, error) {
	inv, err := t.m.load(id)
	if err != nil {
		return false, err
	}
	if inv.CancelledAt != nil || inv.VouchersGenerated || inv.AmountPaid > 0 {
		return false, nil
	}
	stored := t.m.invoices[id]
	stored.CancelledAt = &now
	stored.CancelReason = reason
	t.m.invoices[id] = stored
	return true, nil
}

var testNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newInvoiceService(t *testing.T) (*Service, *memoryInvoiceRepo) {
	t.Helper()
	repo := newMemoryInvoiceRepo()
	svc := NewService(repo, nil)
	svc.SetClock(func() time.Time { return testNow })
	return svc, repo
}

func corporateInvoice(t *testing.T, svc *Service) Invoice {
	t.Helper()
	inv, err := svc.Create(context.Background(), CreateInput{
		Customer:     shared.Customer{Name: " Ok Tedi Mining ", Email: "AP@OKTEDI.COM"},
		VoucherCount: 10,
		UnitPrice:    money.FromMinor(5000),
		DiscountRate: money.Percent(10),
		CreatedBy:    3,
	}, settings.Defaults())
	require.NoError(t, err)
	return inv
}

func TestCreatePricesInvoice(t *testing.T) {
	svc, _ := newInvoiceService(t)
	inv := corporateInvoice(t, svc)

	assert.Equal(t, "INV-202503-0001", inv.Number)
	assert.Equal(t, "Ok Tedi Mining", inv.Customer.Name)
	assert.Equal(t, "ap@oktedi.com", inv.Customer.Email)
	assert.Equal(t, money.FromMinor(50000), inv.Subtotal)
	assert.Equal(t, money.FromMinor(5000), inv.DiscountAmount)
	assert.Equal(t, money.FromMinor(45000), inv.TotalAmount)
	assert.Equal(t, testNow.AddDate(0, 0, 30), inv.DueDate)
	assert.Equal(t, "Net 30 days", inv.PaymentTerms)
	assert.Equal(t, StatusPending, inv.Status(testNow))
}

func TestCreateAppliesGSTAndDefaultFee(t *testing.T) {
	svc, _ := newInvoiceService(t)
	snap := settings.Defaults()
	snap.GSTEnabled = true
	inv, err := svc.Create(context.Background(), CreateInput{
		Customer:     shared.Customer{Name: "Air Niugini"},
		VoucherCount: 3,
	}, snap)
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(50), inv.UnitPrice)
	assert.Equal(t, money.FromMajor(150), inv.Subtotal)
	assert.Equal(t, money.FromMajor(15), inv.GSTAmount)
	assert.Equal(t, money.FromMajor(165), inv.TotalAmount)
}

func TestCreateValidatesInput(t *testing.T) {
	svc, _ := newInvoiceService(t)
	ctx := context.Background()
	snap := settings.Defaults()

	_, err := svc.Create(ctx, CreateInput{VoucherCount: 1}, snap)
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Create(ctx, CreateInput{Customer: shared.Customer{Name: "X"}, VoucherCount: 1001}, snap)
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Create(ctx, CreateInput{Customer: shared.Customer{Name: "X"}, VoucherCount: 1, DiscountRate: money.Percent(101)}, snap)
	require.ErrorIs(t, err, shared.ErrValidation)
	past := testNow.Add(-time.Hour)
	_, err = svc.Create(ctx, CreateInput{Customer: shared.Customer{Name: "X"}, VoucherCount: 1, DueDate: &past}, snap)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPartialThenFullPayment(t *testing.T) {
	svc, _ := newInvoiceService(t)
	inv := corporateInvoice(t, svc)
	ctx := context.Background()

	updated, payment, err := svc.RecordPayment(ctx, inv.ID, PaymentInput{Amount: 20000, Method: "cash", RecordedBy: 4})
	require.NoError(t, err)
	assert.Equal(t, MethodCash, payment.Method)
	assert.Equal(t, money.FromMinor(20000), updated.AmountPaid)
	assert.Equal(t, StatusPartial, updated.Status(testNow))
	assert.Equal(t, money.FromMinor(25000), updated.BalanceDue())
	require.ErrorIs(t, updated.CheckVoucherEligibility(), shared.ErrNotEligible)

	updated, _, err = svc.RecordPayment(ctx, inv.ID, PaymentInput{Amount: 25000, Method: MethodBankTransfer, Reference: "BSP-991"})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, updated.Status(testNow))
	assert.NoError(t, updated.CheckVoucherEligibility())

	stored, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Payments, 2)
	assert.Equal(t, stored.TotalAmount, stored.AmountPaid)
}

func TestOverpaymentRejectedWhole(t *testing.T) {
	svc, _ := newInvoiceService(t)
	inv := corporateInvoice(t, svc)
	ctx := context.Background()

	_, _, err := svc.RecordPayment(ctx, inv.ID, PaymentInput{Amount: 40000, Method: MethodCard})
	require.NoError(t, err)

	_, _, err = svc.RecordPayment(ctx, inv.ID, PaymentInput{Amount: 5001, Method: MethodCard})
	require.ErrorIs(t, err, shared.ErrOverpayment)
	var over *shared.OverpaymentError
	require.ErrorAs(t, err, &over)
	assert.Equal(t, money.FromMinor(5000), over.BalanceDue)

	stored, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromMinor(40000), stored.AmountPaid)
	assert.Len(t, stored.Payments, 1)
}

func TestRecordPaymentValidation(t *testing.T) {
	svc, _ := newInvoiceService(t)
	inv := corporateInvoice(t, svc)
	ctx := context.Background()

	_, _, err := svc.RecordPayment(ctx, inv.ID, PaymentInput{Amount: 0, Method: MethodCash})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, _, err = svc.RecordPayment(ctx, inv.ID, PaymentInput{Amount: 100, Method: "BITCOIN"})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, _, err = svc.RecordPayment(ctx, 999, PaymentInput{Amount: 100, Method: MethodCash})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestConcurrentPaymentsNeverExceedTotal(t *testing.T) {
	svc, _ := newInvoiceService(t)
	inv := corporateInvoice(t, svc)

	var (
		mu       sync.Mutex
		accepted int
		rejected int
	)
	var g errgroup.Group
	for i := 0; i < 12; i++ {
		g.Go(func() error {
			_, _, err := svc.RecordPayment(context.Background(), inv.ID, PaymentInput{Amount: 5000, Method: MethodCash})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, shared.ErrOverpayment):
				rejected++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 9, accepted)
	assert.Equal(t, 3, rejected)

	stored, err := svc.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.TotalAmount, stored.AmountPaid)
}

func TestStatusDerivation(t *testing.T) {
	due := testNow.AddDate(0, 0, 30)
	inv := Invoice{TotalAmount: 45000, DueDate: due}
	assert.Equal(t, StatusPending, inv.Status(testNow))
	assert.Equal(t, StatusOverdue, inv.Status(due.Add(time.Second)))

	inv.AmountPaid = 100
	assert.Equal(t, StatusPartial, inv.Status(testNow))
	assert.Equal(t, StatusOverdue, inv.Status(due.Add(time.Second)))

	inv.AmountPaid = 45000
	assert.Equal(t, StatusPaid, inv.Status(due.Add(time.Hour)))

	cancelled := testNow
	inv.CancelledAt = &cancelled
	assert.Equal(t, StatusCancelled, inv.Status(testNow))
}

func TestListFiltersStatusBeforeLimit(t *testing.T) {
	svc, _ := newInvoiceService(t)
	ctx := context.Background()
	pending := corporateInvoice(t, svc)
	for i := 0; i < 3; i++ {
		inv := corporateInvoice(t, svc)
		_, _, err := svc.RecordPayment(ctx, inv.ID, PaymentInput{Amount: inv.TotalAmount, Method: MethodCash})
		require.NoError(t, err)
	}

	got, err := svc.List(ctx, ListFilter{Status: StatusPending, Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pending.ID, got[0].ID)

	paid, err := svc.List(ctx, ListFilter{Status: StatusPaid, Limit: 2})
	require.NoError(t, err)
	require.Len(t, paid, 2)
	assert.Greater(t, paid[0].ID, paid[1].ID)

	none, err := svc.List(ctx, ListFilter{Status: StatusOverdue})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCancelRules(t *testing.T) {
	svc, _ := newInvoiceService(t)
	ctx := context.Background()
	paid := corporateInvoice(t, svc)
	open := corporateInvoice(t, svc)

	_, _, err := svc.RecordPayment(ctx, paid.ID, PaymentInput{Amount: 100, Method: MethodCash})
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, paid.ID, "customer withdrew")
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = svc.Cancel(ctx, open.ID, " ")
	require.ErrorIs(t, err, shared.ErrValidation)
	cancelled, err := svc.Cancel(ctx, open.ID, "duplicate")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status(testNow))

	_, _, err = svc.RecordPayment(ctx, open.ID, PaymentInput{Amount: 100, Method: MethodCash})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	reason, ok := shared.EligibilityReasonOf(cancelled.CheckVoucherEligibility())
	require.True(t, ok)
	assert.Equal(t, shared.ReasonCancelled, reason)
}

func TestCashSummaryByMethod(t *testing.T) {
	svc, _ := newInvoiceService(t)
	inv := corporateInvoice(t, svc)
	ctx := context.Background()

	_, _, err := svc.RecordPayment(ctx, inv.ID, PaymentInput{Amount: 10000, Method: MethodCash, RecordedBy: 4})
	require.NoError(t, err)
	_, _, err = svc.RecordPayment(ctx, inv.ID, PaymentInput{Amount: 7000, Method: MethodEFTPOS, RecordedBy: 4})
	require.NoError(t, err)
	_, _, err = svc.RecordPayment(ctx, inv.ID, PaymentInput{Amount: 3000, Method: MethodCash, RecordedBy: 5})
	require.NoError(t, err)

	totals, err := svc.CashSummary(ctx, testNow.Add(-time.Hour), testNow.Add(time.Hour), 4)
	require.NoError(t, err)
	assert.Equal(t, money.FromMinor(10000), totals[MethodCash])
	assert.Equal(t, money.FromMinor(7000), totals[MethodEFTPOS])
	assert.Equal(t, money.FromMinor(17000), totals.Total())

	_, err = svc.CashSummary(ctx, testNow, testNow, 0)
	require.ErrorIs(t, err, shared.ErrValidation)
}
