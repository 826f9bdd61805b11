package purchase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenpass/greenpass/internal/batch"
	"github.com/greenpass/greenpass/internal/invoice"
	"github.com/greenpass/greenpass/internal/money"
	"github.com/greenpass/greenpass/internal/passport"
	"github.com/greenpass/greenpass/internal/settings"
	"github.com/greenpass/greenpass/internal/shared"
	"github.com/greenpass/greenpass/internal/voucher"
)

var testNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type memorySessionRepo struct {
	mu           sync.Mutex
	sessions     map[uuid.UUID]Session
	failComplete error
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{sessions: make(map[uuid.UUID]Session)}
}

func (m *memorySessionRepo) Insert(_ context.Context, s Session) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return s, nil
}

func (m *memorySessionRepo) Get(_ context.Context, id uuid.UUID) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("purchase session %s: %w", id, shared.ErrNotFound)
	}
	return s, nil
}

func (m *memorySessionRepo) Complete(_ context.Context, id uuid.UUID, gatewayRef string, batchID int64, now time.Time) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failComplete != nil {
		err := m.failComplete
		m.failComplete = nil
		return Session{}, false, err
	}
	s, ok := m.sessions[id]
	if !ok || s.Status != StatusPending {
		return Session{}, false, nil
	}
	s.Status = StatusCompleted
	s.GatewayRef = gatewayRef
	s.BatchID = &batchID
	s.CompletedAt = &now
	m.sessions[id] = s
	return s, true, nil
}

// memoryIssuer issues at most one batch per sale reference.
type memoryIssuer struct {
	mu      sync.Mutex
	batches map[string]batch.Batch
	issued  int
}

func newMemoryIssuer() *memoryIssuer {
	return &memoryIssuer{batches: make(map[string]batch.Batch)}
}

func (m *memoryIssuer) GenerateFromDirectSale(_ context.Context, sale batch.DirectSale, snap settings.Snapshot) (batch.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.batches[sale.Reference]; ok {
		return batch.Batch{}, shared.NotEligible("sale "+sale.Reference, shared.ReasonAlreadyGenerated)
	}
	subtotal, err := sale.FaceValue.Mul(int64(sale.Count))
	if err != nil {
		return batch.Batch{}, err
	}
	totals := invoice.ComputeTotals(subtotal, 0, snap)
	if sale.Collected < totals.Total {
		return batch.Batch{}, shared.Invalid("amount collected %s is less than total %s", sale.Collected, totals.Total)
	}
	m.issued++
	b := batch.Batch{
		ID:            int64(len(m.batches) + 1),
		Source:        batch.SourceDirectSale,
		SaleReference: sale.Reference,
		Count:         sale.Count,
		Total:         totals.Total,
		PaymentMethod: sale.Method,
		Customer:      sale.Customer,
	}
	for i := 0; i < sale.Count; i++ {
		b.Vouchers = append(b.Vouchers, voucher.Voucher{Code: fmt.Sprintf("ONL%05d", len(m.batches)*100+i)})
	}
	m.batches[sale.Reference] = b
	return b, nil
}

func (m *memoryIssuer) ForSale(_ context.Context, reference string) (batch.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[reference]
	if !ok {
		return batch.Batch{}, fmt.Errorf("batch for sale %s: %w", reference, shared.ErrNotFound)
	}
	return b, nil
}

type fixture struct {
	svc    *Service
	repo   *memorySessionRepo
	issuer *memoryIssuer
	clock  *time.Time
}

func newFixture() fixture {
	clock := testNow
	f := fixture{repo: newMemorySessionRepo(), issuer: newMemoryIssuer(), clock: &clock}
	f.svc = NewService(f.repo, f.issuer, nil, WithClock(func() time.Time { return *f.clock }))
	return f
}

func (f fixture) open(t *testing.T, quantity int) Session {
	t.Helper()
	sess, err := f.svc.Create(context.Background(), CreateInput{
		Customer: shared.Customer{Email: " Traveller@Example.COM "},
		Quantity: quantity,
	}, settings.Defaults())
	require.NoError(t, err)
	return sess
}

func TestCreatePricesSession(t *testing.T) {
	f := newFixture()
	sess := f.open(t, 2)

	assert.Equal(t, StatusPending, sess.Status)
	assert.Equal(t, "traveller@example.com", sess.Customer.Email)
	assert.Equal(t, money.FromMajor(50), sess.UnitPrice)
	assert.Equal(t, money.FromMajor(100), sess.Total)
	assert.Equal(t, "PGK", sess.Currency)
	assert.Equal(t, testNow.Add(DefaultTTL), sess.ExpiresAt)
	assert.Equal(t, ReferencePrefix+sess.ID.String(), sess.Reference())
	assert.LessOrEqual(t, len(sess.Reference()), batch.MaxSaleReference)

	single := f.open(t, 0)
	assert.Equal(t, 1, single.Quantity)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	holder := &passport.Passport{Number: "P1234567", Surname: "Kila", GivenName: "Ruth", Nationality: "PNG"}

	cases := []struct {
		name string
		in   CreateInput
	}{
		{"missing email", CreateInput{Quantity: 1}},
		{"negative quantity", CreateInput{Customer: shared.Customer{Email: "a@b.pg"}, Quantity: -1}},
		{"too many", CreateInput{Customer: shared.Customer{Email: "a@b.pg"}, Quantity: invoice.MaxVouchersPerDocument + 1}},
		{"passport for many", CreateInput{Customer: shared.Customer{Email: "a@b.pg"}, Quantity: 2, Passport: holder}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.in, settings.Defaults())
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}
	assert.Empty(t, f.repo.sessions)
}

func TestRepeatedWebhookIssuesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	sess := f.open(t, 2)

	done, first, err := f.svc.Complete(ctx, sess.ID, "ch_001", settings.Defaults())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, "ch_001", done.GatewayRef)
	require.NotNil(t, done.BatchID)
	assert.Equal(t, first.ID, *done.BatchID)
	assert.Len(t, first.Vouchers, 2)
	assert.Equal(t, invoice.MethodCard, first.PaymentMethod)
	assert.Equal(t, sess.Reference(), first.SaleReference)

	for i := 0; i < 3; i++ {
		again, b, err := f.svc.Complete(ctx, sess.ID, "ch_001", settings.Defaults())
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, again.Status)
		assert.Equal(t, first.ID, b.ID)
	}
	assert.Equal(t, 1, f.issuer.issued)
	assert.Len(t, f.issuer.batches, 1)
}

func TestCompleteRecoversAfterIssuedBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	sess := f.open(t, 1)

	f.repo.failComplete = errors.New("connection reset")
	_, _, err := f.svc.Complete(ctx, sess.ID, "ch_002", settings.Defaults())
	require.Error(t, err)
	stored, err := f.svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Equal(t, 1, f.issuer.issued)

	done, b, err := f.svc.Complete(ctx, sess.ID, "ch_002", settings.Defaults())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, int64(1), b.ID)
	assert.Equal(t, 1, f.issuer.issued)
}

func TestExpiredSessionDoesNotIssue(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	sess := f.open(t, 1)

	*f.clock = testNow.Add(DefaultTTL + time.Second)
	stored, err := f.svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Equal(t, StatusExpired, stored.EffectiveStatus(*f.clock))

	_, _, err = f.svc.Complete(ctx, sess.ID, "ch_003", settings.Defaults())
	require.ErrorIs(t, err, shared.ErrExpired)
	assert.Zero(t, f.issuer.issued)

	_, err = f.svc.Batch(ctx, stored)
	assert.ErrorIs(t, err, shared.ErrNotActive)
}

func TestCompleteUnknownSession(t *testing.T) {
	f := newFixture()
	_, _, err := f.svc.Complete(context.Background(), uuid.New(), "", settings.Defaults())
	require.ErrorIs(t, err, shared.ErrNotFound)
	assert.Zero(t, f.issuer.issued)
}

func TestCompleteRejectsLongGatewayRef(t *testing.T) {
	f := newFixture()
	sess := f.open(t, 1)
	long := make([]byte, MaxGatewayRef+1)
	for i := range long {
		long[i] = 'x'
	}
	_, _, err := f.svc.Complete(context.Background(), sess.ID, string(long), settings.Defaults())
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.Zero(t, f.issuer.issued)
}
