package batch

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/greenpass/greenpass/internal/invoice"
	"github.com/greenpass/greenpass/internal/money"
	"github.com/greenpass/greenpass/internal/passport"
	"github.com/greenpass/greenpass/internal/settings"
	"github.com/greenpass/greenpass/internal/shared"
	"github.com/greenpass/greenpass/internal/voucher"
)

var testNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type memoryBatchRepo struct {
	mu       sync.Mutex
	invoices map[int64]invoice.Invoice
	batches  map[int64]Batch
	vouchers map[string]voucher.Voucher
}

func newMemoryBatchRepo() *memoryBatchRepo {
	return &memoryBatchRepo{
		invoices: make(map[int64]invoice.Invoice),
		batches:  make(map[int64]Batch),
		vouchers: make(map[string]voucher.Voucher),
	}
}

func (m *memoryBatchRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	invoices := make(map[int64]invoice.Invoice, len(m.invoices))
	for k, v := range m.invoices {
		invoices[k] = v
	}
	batches := make(map[int64]Batch, len(m.batches))
	for k, v := range m.batches {
		batches[k] = v
	}
	vouchers := make(map[string]voucher.Voucher, len(m.vouchers))
	for k, v := range m.vouchers {
		vouchers[k] = v
	}
	if err := fn(ctx, memoryBatchTx{m}); err != nil {
		m.invoices, m.batches, m.vouchers = invoices, batches, vouchers
		return err
	}
	return nil
}

func (m *memoryBatchRepo) Get(_ context.Context, id int64) (Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return Batch{}, fmt.Errorf("batch %d: %w", id, shared.ErrNotFound)
	}
	return b, nil
}

func (m *memoryBatchRepo) ForInvoice(ctx context.Context, invoiceID int64) (Batch, error) {
	m.mu.Lock()
	var id int64
	for _, b := range m.batches {
		if b.InvoiceID != nil && *b.InvoiceID == invoiceID {
			id = b.ID
		}
	}
	m.mu.Unlock()
	return m.Get(ctx, id)
}

func (m *memoryBatchRepo) ForSale(ctx context.Context, reference string) (Batch, error) {
	m.mu.Lock()
	var id int64
	for _, b := range m.batches {
		if b.SaleReference == reference {
			id = b.ID
		}
	}
	m.mu.Unlock()
	return m.Get(ctx, id)
}

func (m *memoryBatchRepo) DirectSaleCash(_ context.Context, from, to time.Time, agentID int64) (invoice.MethodTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(invoice.MethodTotals)
	for _, b := range m.batches {
		if b.Source != SourceDirectSale || b.GeneratedAt.Before(from) || !b.GeneratedAt.Before(to) {
			continue
		}
		if agentID != 0 && b.GeneratedBy != agentID {
			continue
		}
		out[b.PaymentMethod] += b.Total
	}
	return out, nil
}

func (m *memoryBatchRepo) voucherCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.vouchers)
}

type memoryBatchTx struct{ m *memoryBatchRepo }

func (t memoryBatchTx) ClaimInvoice(_ context.Context, id int64, now time.Time) (invoice.Invoice, bool, error) {
	inv, ok := t.m.invoices[id]
	if !ok || inv.VouchersGenerated || inv.CancelledAt != nil || inv.AmountPaid != inv.TotalAmount {
		return invoice.Invoice{}, false, nil
	}
	inv.VouchersGenerated = true
	inv.VouchersGeneratedAt = &now
	t.m.invoices[id] = inv
	return inv, true, nil
}

func (t memoryBatchTx) GetInvoice(_ context.Context, id int64) (invoice.Invoice, error) {
	inv, ok := t.m.invoices[id]
	if !ok {
		return invoice.Invoice{}, fmt.Errorf("invoice %d: %w", id, shared.ErrNotFound)
	}
	return inv, nil
}

func (t memoryBatchTx) InsertBatch(_ context.Context, b Batch) (Batch, bool, error) {
	for _, existing := range t.m.batches {
		if b.InvoiceID != nil && existing.InvoiceID != nil && *b.InvoiceID == *existing.InvoiceID {
			return Batch{}, false, nil
		}
		if b.SaleReference != "" && b.SaleReference == existing.SaleReference {
			return Batch{}, false, nil
		}
	}
	b.ID = int64(len(t.m.batches) + 1)
	t.m.batches[b.ID] = b
	return b, true, nil
}

func (t memoryBatchTx) InsertVoucher(_ context.Context, n voucher.NewVoucher, now time.Time) (voucher.Voucher, bool, error) {
	if _, taken := t.m.vouchers[n.Code]; taken {
		return voucher.Voucher{}, false, nil
	}
	v := voucher.Voucher{
		ID: int64(len(t.m.vouchers) + 1), Code: n.Code, BatchID: n.BatchID, Kind: n.Kind, FaceValue: n.FaceValue,
		Currency: n.Currency, Status: n.InitialStatus(), Passport: n.Passport, ValidFrom: n.ValidFrom,
		ValidUntil: n.ValidUntil, CreatedAt: now,
	}
	t.m.vouchers[n.Code] = v
	return v, true, nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []GeneratedEvent
}

func (p *capturePublisher) BatchGenerated(_ context.Context, evt GeneratedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

type countingRecorder struct {
	mu        sync.Mutex
	generated map[string]int
	rejected  map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{generated: map[string]int{}, rejected: map[string]int{}}
}

func (r *countingRecorder) BatchGenerated(source string, vouchers int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generated[source] += vouchers
}

func (r *countingRecorder) BatchRejected(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected[reason]++
}

type fixture struct {
	svc      *Service
	repo     *memoryBatchRepo
	events   *capturePublisher
	recorder *countingRecorder
}

func newFixture(opts ...Option) fixture {
	f := fixture{repo: newMemoryBatchRepo(), events: &capturePublisher{}, recorder: newCountingRecorder()}
	opts = append([]Option{
		WithPublisher(f.events),
		WithRecorder(f.recorder),
		WithClock(func() time.Time { return testNow }),
	}, opts...)
	f.svc = NewService(f.repo, nil, opts...)
	return f
}

// seedInvoice stores a 10 voucher invoice totalling 450.00 with paid recorded.
func (f fixture) seedInvoice(paid money.Amount) int64 {
	id := int64(len(f.repo.invoices) + 1)
	f.repo.invoices[id] = invoice.Invoice{
		ID: id, Number: fmt.Sprintf("INV-202503-%04d", id), VoucherCount: 10, UnitPrice: money.FromMajor(50),
		Subtotal: money.FromMajor(500), DiscountRate: money.Percent(10), DiscountAmount: money.FromMajor(50),
		TotalAmount: money.FromMajor(450), AmountPaid: paid, Currency: "PGK",
		Customer: shared.Customer{Name: "Kumul Mining Ltd"},
	}
	return id
}

func TestGenerateFromPaidInvoice(t *testing.T) {
	f := newFixture()
	id := f.seedInvoice(money.FromMajor(450))

	b, err := f.svc.GenerateFromInvoice(context.Background(), id, 4, settings.Defaults())
	require.NoError(t, err)

	assert.Equal(t, SourceInvoice, b.Source)
	require.NotNil(t, b.InvoiceID)
	assert.Equal(t, id, *b.InvoiceID)
	require.Len(t, b.Vouchers, 10)

	seen := map[string]bool{}
	var sum money.Amount
	for _, v := range b.Vouchers {
		assert.True(t, voucher.ValidFormat(v.Code), v.Code)
		assert.False(t, seen[v.Code], "duplicate code %s", v.Code)
		seen[v.Code] = true
		sum = sum.Add(v.FaceValue)
		assert.Equal(t, voucher.StatusPendingPassport, v.Status)
		assert.Equal(t, voucher.KindCorporate, v.Kind)
		assert.Equal(t, testNow.Add(365*24*time.Hour), v.ValidUntil)
		assert.Equal(t, money.FromMajor(45), v.FaceValue)
	}
	assert.Equal(t, b.Total, sum)
	assert.True(t, f.repo.invoices[id].VouchersGenerated)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, b.Codes(), f.events.events[0].VoucherCodes)
	assert.Equal(t, 10, f.recorder.generated[string(SourceInvoice)])
}

func TestGenerateFromPartiallyPaidInvoice(t *testing.T) {
	f := newFixture()
	id := f.seedInvoice(money.FromMajor(200))

	_, err := f.svc.GenerateFromInvoice(context.Background(), id, 4, settings.Defaults())
	require.ErrorIs(t, err, shared.ErrNotEligible)
	reason, ok := shared.EligibilityReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, shared.ReasonNotPaid, reason)

	assert.Zero(t, f.repo.voucherCount())
	assert.False(t, f.repo.invoices[id].VouchersGenerated)
	assert.Empty(t, f.events.events)
	assert.Equal(t, 1, f.recorder.rejected[string(shared.ReasonNotPaid)])
}

func TestGenerateTwiceFailsWithAlreadyGenerated(t *testing.T) {
	f := newFixture()
	id := f.seedInvoice(money.FromMajor(450))
	_, err := f.svc.GenerateFromInvoice(context.Background(), id, 4, settings.Defaults())
	require.NoError(t, err)

	_, err = f.svc.GenerateFromInvoice(context.Background(), id, 4, settings.Defaults())
	reason, ok := shared.EligibilityReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, shared.ReasonAlreadyGenerated, reason)
	assert.Equal(t, 10, f.repo.voucherCount())
}

func TestConcurrentGenerationIssuesOneBatch(t *testing.T) {
	f := newFixture()
	id := f.seedInvoice(money.FromMajor(450))

	var (
		mu        sync.Mutex
		succeeded int
		already   int
	)
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := f.svc.GenerateFromInvoice(context.Background(), id, 4, settings.Defaults())
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return nil
			}
			if reason, ok := shared.EligibilityReasonOf(err); ok && reason == shared.ReasonAlreadyGenerated {
				already++
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 7, already)
	assert.Equal(t, 10, f.repo.voucherCount())
	assert.Len(t, f.repo.batches, 1)
}

func TestGenerateFromCancelledInvoice(t *testing.T) {
	f := newFixture()
	id := f.seedInvoice(0)
	inv := f.repo.invoices[id]
	inv.CancelledAt = &testNow
	f.repo.invoices[id] = inv

	_, err := f.svc.GenerateFromInvoice(context.Background(), id, 4, settings.Defaults())
	reason, ok := shared.EligibilityReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, shared.ReasonCancelled, reason)
}

func TestGenerateFromMissingInvoice(t *testing.T) {
	f := newFixture()
	_, err := f.svc.GenerateFromInvoice(context.Background(), 42, 4, settings.Defaults())
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCodeCollisionRetries(t *testing.T) {
	entropy := append(make([]byte, voucher.CodeLength), bytes.Repeat([]byte{1}, voucher.CodeLength)...)
	f := newFixture(WithCodeGenerator(voucher.NewCodeGeneratorFrom(bytes.NewReader(entropy), 3)))
	f.repo.vouchers["22222222"] = voucher.Voucher{Code: "22222222"}

	b, err := f.svc.GenerateFromDirectSale(context.Background(), DirectSale{Reference: "S-1", Count: 1}, settings.Defaults())
	require.NoError(t, err)
	require.Len(t, b.Vouchers, 1)
	assert.Equal(t, "33333333", b.Vouchers[0].Code)
}

func TestCodeSpaceExhaustedRollsBack(t *testing.T) {
	f := newFixture(WithCodeGenerator(voucher.NewCodeGeneratorFrom(bytes.NewReader(make([]byte, 64)), 2)))
	f.repo.vouchers["22222222"] = voucher.Voucher{Code: "22222222"}
	id := f.seedInvoice(money.FromMajor(450))

	_, err := f.svc.GenerateFromInvoice(context.Background(), id, 4, settings.Defaults())
	require.ErrorIs(t, err, shared.ErrCodeSpaceExhausted)
	assert.False(t, f.repo.invoices[id].VouchersGenerated)
	assert.Empty(t, f.repo.batches)
	assert.Equal(t, 1, f.repo.voucherCount())
}

func TestDirectSaleWithChange(t *testing.T) {
	f := newFixture()
	b, err := f.svc.GenerateFromDirectSale(context.Background(), DirectSale{
		Reference: "POS-0001",
		Count:     3,
		Method:    "cash",
		Collected: money.FromMajor(200),
		AgentID:   11,
	}, settings.Defaults())
	require.NoError(t, err)

	assert.Equal(t, SourceDirectSale, b.Source)
	assert.Equal(t, invoice.MethodCash, b.PaymentMethod)
	assert.Equal(t, money.FromMajor(150), b.Total)
	assert.Equal(t, money.FromMajor(50), b.ChangeGiven)
	require.Len(t, b.Vouchers, 3)
	for _, v := range b.Vouchers {
		assert.Equal(t, voucher.KindIndividual, v.Kind)
		assert.Equal(t, voucher.StatusPendingPassport, v.Status)
	}

	_, err = f.svc.GenerateFromDirectSale(context.Background(), DirectSale{Reference: "POS-0001", Count: 3}, settings.Defaults())
	reason, ok := shared.EligibilityReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, shared.ReasonAlreadyGenerated, reason)
	assert.Equal(t, 3, f.repo.voucherCount())

	cash, err := f.svc.DirectSaleCash(context.Background(), testNow.Add(-time.Hour), testNow.Add(time.Hour), 11)
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(150), cash[invoice.MethodCash])
}

func TestDirectSaleWithPassportIsActive(t *testing.T) {
	f := newFixture()
	b, err := f.svc.GenerateFromDirectSale(context.Background(), DirectSale{
		Reference: "POS-0002",
		Count:     1,
		Passport: &passport.Passport{
			Number: "pa 123456", Surname: "Kila", GivenName: "Mary", Nationality: "PNG", Sex: "f",
		},
	}, settings.Defaults())
	require.NoError(t, err)
	require.Len(t, b.Vouchers, 1)
	v := b.Vouchers[0]
	assert.Equal(t, voucher.StatusActive, v.Status)
	require.NotNil(t, v.Passport)
	assert.Equal(t, "PA123456", v.Passport.Number)
	assert.Equal(t, "POS-0002", b.SaleReference)
}

func TestDirectSaleValidation(t *testing.T) {
	holder := &passport.Passport{Number: "PA123456", Surname: "Kila", GivenName: "Mary"}
	cases := map[string]DirectSale{
		"missing reference":  {Count: 1},
		"blank reference":    {Reference: "   ", Count: 1},
		"long reference":     {Reference: strings.Repeat("R", MaxSaleReference+1), Count: 1},
		"zero count":         {Reference: "V-1", Count: 0},
		"too many":           {Reference: "V-1", Count: invoice.MaxVouchersPerDocument + 1},
		"short cash":         {Reference: "V-1", Count: 2, Collected: money.FromMajor(60)},
		"bad method":         {Reference: "V-1", Count: 1, Method: "barter"},
		"passport for group": {Reference: "V-1", Count: 2, Passport: holder},
		"negative face":      {Reference: "V-1", Count: 1, FaceValue: -5},
	}
	for name, sale := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			_, err := f.svc.GenerateFromDirectSale(context.Background(), sale, settings.Defaults())
			require.ErrorIs(t, err, shared.ErrValidation)
			assert.Zero(t, f.repo.voucherCount())
		})
	}
}

func TestDirectSaleRetryIssuesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	for i := 0; i < 2; i++ {
		_, err := f.svc.GenerateFromDirectSale(ctx, DirectSale{Count: 2}, settings.Defaults())
		require.ErrorIs(t, err, shared.ErrValidation)
	}
	assert.Zero(t, f.repo.voucherCount())
	assert.Empty(t, f.repo.batches)

	sale := DirectSale{Reference: " POS-0009 ", Count: 2}
	first, err := f.svc.GenerateFromDirectSale(ctx, sale, settings.Defaults())
	require.NoError(t, err)
	assert.Equal(t, "POS-0009", first.SaleReference)

	_, err = f.svc.GenerateFromDirectSale(ctx, sale, settings.Defaults())
	reason, ok := shared.EligibilityReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, shared.ReasonAlreadyGenerated, reason)
	assert.Equal(t, 2, f.repo.voucherCount())
	assert.Len(t, f.repo.batches, 1)

	found, err := f.svc.ForSale(ctx, "POS-0009")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
	_, err = f.svc.ForSale(ctx, "POS-0010")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestFaceValuesSumToDiscountedTotal(t *testing.T) {
	f := newFixture()
	b, err := f.svc.GenerateFromDirectSale(context.Background(), DirectSale{
		Reference:    "POS-0003",
		Count:        3,
		FaceValue:    money.FromMinor(3333),
		DiscountRate: money.Percent(7),
	}, settings.Defaults())
	require.NoError(t, err)

	var sum money.Amount
	for _, v := range b.Vouchers {
		sum = sum.Add(v.FaceValue)
	}
	assert.Equal(t, b.Total, sum)
	assert.Equal(t, money.FromMinor(9299), b.Total)
}
