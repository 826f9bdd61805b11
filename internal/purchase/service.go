package purchase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/greenpass/greenpass/internal/batch"
	"github.com/greenpass/greenpass/internal/invoice"
	"github.com/greenpass/greenpass/internal/passport"
	"github.com/greenpass/greenpass/internal/settings"
	"github.com/greenpass/greenpass/internal/shared"
)

// MaxGatewayRef bounds the gateway transaction id kept on a session.
const MaxGatewayRef = 128

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Insert(ctx context.Context, s Session) (Session, error)
	Get(ctx context.Context, id uuid.UUID) (Session, error)
	// Complete moves a pending session to completed. applied is false when
	// the session is no longer pending.
	Complete(ctx context.Context, id uuid.UUID, gatewayRef string, batchID int64, now time.Time) (s Session, applied bool, err error)
}

// Issuer issues and looks up counter sale batches.
type Issuer interface {
	GenerateFromDirectSale(ctx context.Context, sale batch.DirectSale, snap settings.Snapshot) (batch.Batch, error)
	ForSale(ctx context.Context, reference string) (batch.Batch, error)
}

// Service opens and completes purchase sessions.
type Service struct {
	repo   RepositoryPort
	issuer Issuer
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, issuer Issuer, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{repo: repo, issuer: issuer, logger: logger, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput carries a checkout request.
type CreateInput struct {
	Customer shared.Customer
	Passport *passport.Passport
	Quantity int
}

// Create prices a session at the current default fee.
func (s *Service) Create(ctx context.Context, in CreateInput, snap settings.Snapshot) (Session, error) {
	in.Customer = in.Customer.Normalize()
	if in.Customer.Email == "" {
		return Session{}, shared.Invalid("customer email is required")
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	if in.Quantity < 1 || in.Quantity > invoice.MaxVouchersPerDocument {
		return Session{}, shared.Invalid("voucher count must be between 1 and %d", invoice.MaxVouchersPerDocument)
	}
	if in.Passport != nil {
		if in.Quantity != 1 {
			return Session{}, shared.Invalid("passport data can only be captured for a single voucher")
		}
		p := in.Passport.Normalize()
		if err := p.Validate(); err != nil {
			return Session{}, err
		}
		in.Passport = &p
	}
	subtotal, err := snap.DefaultFee.Mul(int64(in.Quantity))
	if err != nil {
		return Session{}, shared.Invalid("purchase total is too large: %v", err)
	}
	totals := invoice.ComputeTotals(subtotal, 0, snap)

	now := s.now()
	sess, err := s.repo.Insert(ctx, Session{
		ID:        uuid.New(),
		Customer:  in.Customer,
		Passport:  in.Passport,
		Quantity:  in.Quantity,
		UnitPrice: snap.DefaultFee,
		Total:     totals.Total,
		Currency:  snap.Currency,
		Status:    StatusPending,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	})
	if err != nil {
		return Session{}, shared.Storage("create purchase session", err)
	}
	return sess, nil
}

// Get returns a session.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Session, error) {
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return Session{}, shared.Storage("get purchase session", err)
	}
	return sess, nil
}

// Batch returns the vouchers issued for a completed session.
func (s *Service) Batch(ctx context.Context, sess Session) (batch.Batch, error) {
	if sess.Status != StatusCompleted {
		return batch.Batch{}, fmt.Errorf("purchase session %s is %s: %w", sess.ID, sess.EffectiveStatus(s.now()), shared.ErrNotActive)
	}
	return s.issuer.ForSale(ctx, sess.Reference())
}

// Complete issues the session's vouchers after the gateway confirms payment.
// Repeated confirmations return the batch issued the first time.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, gatewayRef string, snap settings.Snapshot) (Session, batch.Batch, error) {
	gatewayRef = strings.TrimSpace(gatewayRef)
	if len(gatewayRef) > MaxGatewayRef {
		return Session{}, batch.Batch{}, shared.Invalid("gateway reference must be at most %d characters", MaxGatewayRef)
	}
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return Session{}, batch.Batch{}, shared.Storage("get purchase session", err)
	}
	now := s.now()
	switch sess.EffectiveStatus(now) {
	case StatusCompleted:
		b, err := s.issuer.ForSale(ctx, sess.Reference())
		return sess, b, err
	case StatusExpired:
		return Session{}, batch.Batch{}, fmt.Errorf("purchase session %s: %w", id, shared.ErrExpired)
	}

	b, err := s.issuer.GenerateFromDirectSale(ctx, batch.DirectSale{
		Reference: sess.Reference(),
		Count:     sess.Quantity,
		FaceValue: sess.UnitPrice,
		Method:    invoice.MethodCard,
		Collected: sess.Total,
		Customer:  sess.Customer,
		Passport:  sess.Passport,
	}, snap)
	if reason, ok := shared.EligibilityReasonOf(err); ok && reason == shared.ReasonAlreadyGenerated {
		b, err = s.issuer.ForSale(ctx, sess.Reference())
	}
	if err != nil {
		return Session{}, batch.Batch{}, err
	}

	done, applied, err := s.repo.Complete(ctx, id, gatewayRef, b.ID, now)
	if err != nil {
		return Session{}, batch.Batch{}, shared.Storage("complete purchase session", err)
	}
	if !applied {
		if done, err = s.repo.Get(ctx, id); err != nil {
			return Session{}, batch.Batch{}, shared.Storage("get purchase session", err)
		}
	}
	s.logger.Info("purchase completed",
		slog.String("session", id.String()),
		slog.Int64("batch_id", b.ID),
		slog.Int("vouchers", len(b.Vouchers)))
	return done, b, nil
}
