package batch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"


	"github.com/greenpass/greenpass/internal/invoice"
	"github.com/greenpass/greenpass/internal/money"
	"github.com/greenpass/greenpass/internal/passport"
	"github.com/greenpass/greenpass/internal/settings"
	"github.com/greenpass/greenpass/internal/shared"
	"github.com/greenpass/greenpass/internal/voucher"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Batch, error)
	ForInvoice(ctx context.Context, invoiceID int64) (Batch, error)
	ForSale(ctx context.Context, reference string) (Batch, error)
	DirectSaleCash(ctx context.Context, from, to time.Time, agentID int64) (invoice.MethodTotals, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	// ClaimInvoice flips vouchers_generated on a fully paid, uncancelled
	// invoice. applied is false when any of those conditions fail.
	ClaimInvoice(ctx context.Context, invoiceID int64, now time.Time) (inv invoice.Invoice, applied bool, err error)
	GetInvoice(ctx context.Context, invoiceID int64) (invoice.Invoice, error)
	// InsertBatch reports false when the invoice or sale reference already
	// has a batch.
	InsertBatch(ctx context.Context, b Batch) (Batch, bool, error)
	InsertVoucher(ctx context.Context, n voucher.NewVoucher, now time.Time) (voucher.Voucher, bool, error)
}

// Service issues voucher batches for paid invoices and counter sales.
type Service struct {
	repo     RepositoryPort
	codes    *voucher.CodeGenerator
	events   Publisher
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// Option customises Service.
type Option func(*Service)

// WithPublisher sets the batch event publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// WithRecorder sets the telemetry recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithCodeGenerator overrides the voucher code source.
func WithCodeGenerator(g *voucher.CodeGenerator) Option {
	return func(s *Service) {
		if g != nil {
			s.codes = g
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

// NewService constructs the batch service.
func NewService(repo RepositoryPort, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:     repo,
		codes:    voucher.NewCodeGenerator(),
		events:   noopPublisher{},
		recorder: noopRecorder{},
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateFromInvoice issues the invoice's vouchers exactly once. The claim,
// batch row and vouchers commit together.
func (s *Service) GenerateFromInvoice(ctx context.Context, invoiceID, actorID int64, snap settings.Snapshot) (Batch, error) {
	now := s.now()
	var out Batch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, applied, err := tx.ClaimInvoice(ctx, invoiceID, now)
		if err != nil {
			return err
		}
		if !applied {
			current, err := tx.GetInvoice(ctx, invoiceID)
			if err != nil {
				return err
			}
			if err := current.CheckVoucherEligibility(); err != nil {
				return err
			}
			return fmt.Errorf("invoice %s changed concurrently: %w", current.Number, shared.ErrInvalidTransition)
		}
		id := inv.ID
		b, ok, err := tx.InsertBatch(ctx, Batch{
			Source:         SourceInvoice,
			InvoiceID:      &id,
			Kind:           voucher.KindCorporate,
			Customer:       inv.Customer,
			Count:          inv.VoucherCount,
			UnitPrice:      inv.UnitPrice,
			DiscountRate:   inv.DiscountRate,
			DiscountAmount: inv.DiscountAmount,
			GSTAmount:      inv.GSTAmount,
			Total:          inv.TotalAmount,
			Currency:       inv.Currency,
			GeneratedBy:    actorID,
			GeneratedAt:    now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return shared.NotEligible("invoice "+inv.Number, shared.ReasonAlreadyGenerated)
		}
		b.Vouchers, err = s.issue(ctx, tx, b, nil, snap, now)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return Batch{}, s.reject("generate invoice vouchers", err)
	}
	s.committed(ctx, out)
	return out, nil
}

// MaxSaleReference bounds the caller supplied sale reference.
const MaxSaleReference = 64

// GenerateFromDirectSale issues vouchers for a counter sale paid in full. The
// sale reference is the idempotency key: a repeat returns ReasonAlreadyGenerated.
func (s *Service) GenerateFromDirectSale(ctx context.Context, sale DirectSale, snap settings.Snapshot) (Batch, error) {
	sale.Reference = strings.TrimSpace(sale.Reference)
	if sale.Reference == "" {
		return Batch{}, shared.Invalid("sale reference is required")
	}
	if len(sale.Reference) > MaxSaleReference {
		return Batch{}, shared.Invalid("sale reference must be at most %d characters", MaxSaleReference)
	}
	if sale.Count < 1 || sale.Count > invoice.MaxVouchersPerDocument {
		return Batch{}, shared.Invalid("voucher count must be between 1 and %d", invoice.MaxVouchersPerDocument)
	}
	if sale.FaceValue < 0 {
		return Batch{}, shared.Invalid("face value must not be negative")
	}
	if !sale.DiscountRate.Valid() {
		return Batch{}, shared.Invalid("discount must be between 0 and 100 percent")
	}
	sale.Method = invoice.PaymentMethod(strings.ToUpper(strings.TrimSpace(string(sale.Method))))
	if sale.Method == "" {
		sale.Method = invoice.MethodCash
	}
	if !sale.Method.Valid() {
		return Batch{}, shared.Invalid("unsupported payment method %q", sale.Method)
	}
	if sale.Passport != nil {
		if sale.Count != 1 {
			return Batch{}, shared.Invalid("passport data can only be captured for a single voucher")
		}
		p := sale.Passport.Normalize()
		if err := p.Validate(); err != nil {
			return Batch{}, err
		}
		sale.Passport = &p
	}
	face := sale.FaceValue
	if face == 0 {
		face = snap.DefaultFee
	}
	subtotal, err := face.Mul(int64(sale.Count))
	if err != nil {
		return Batch{}, shared.Invalid("sale total is too large: %v", err)
	}
	totals := invoice.ComputeTotals(subtotal, sale.DiscountRate, snap)
	collected := sale.Collected
	if collected == 0 {
		collected = totals.Total
	}
	change, err := Change(totals.Total, collected)
	if err != nil {
		return Batch{}, err
	}

	now := s.now()
	var out Batch
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, ok, err := tx.InsertBatch(ctx, Batch{
			Source:          SourceDirectSale,
			SaleReference:   sale.Reference,
			Kind:            voucher.KindIndividual,
			Customer:        sale.Customer.Normalize(),
			Count:           sale.Count,
			UnitPrice:       face,
			DiscountRate:    totals.DiscountRate,
			DiscountAmount:  totals.DiscountAmount,
			GSTAmount:       totals.GSTAmount,
			Total:           totals.Total,
			Currency:        snap.Currency,
			PaymentMethod:   sale.Method,
			AmountCollected: collected,
			ChangeGiven:     change,
			GeneratedBy:     sale.AgentID,
			GeneratedAt:     now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return shared.NotEligible("sale "+sale.Reference, shared.ReasonAlreadyGenerated)
		}
		b.Vouchers, err = s.issue(ctx, tx, b, sale.Passport, snap, now)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return Batch{}, s.reject("generate direct sale vouchers", err)
	}
	s.committed(ctx, out)
	return out, nil
}

// issue inserts b.Count vouchers whose face values sum exactly to b.Total.
func (s *Service) issue(ctx context.Context, tx TxRepository, b Batch, holder *passport.Passport, snap settings.Snapshot, now time.Time) ([]voucher.Voucher, error) {
	faces := money.Split(b.Total, b.Count)
	out := make([]voucher.Voucher, 0, b.Count)
	batchID := b.ID
	for _, face := range faces {
		var issued voucher.Voucher
		_, err := s.codes.Issue(ctx, func(code string) (bool, error) {
			v, ok, err := tx.InsertVoucher(ctx, voucher.NewVoucher{
				Code:       code,
				BatchID:    &batchID,
				Kind:       b.Kind,
				FaceValue:  face,
				Currency:   b.Currency,
				Passport:   holder,
				ValidFrom:  now,
				ValidUntil: now.Add(snap.VoucherValidity),
			}, now)
			if ok {
				issued = v
			}
			return ok, err
		})
		if err != nil {
			return nil, err
		}
		out = append(out, issued)
	}
	return out, nil
}

func (s *Service) reject(op string, err error) error {
	if reason, ok := shared.EligibilityReasonOf(err); ok {
		s.recorder.BatchRejected(string(reason))
	}
	return shared.Storage(op, err)
}

func (s *Service) committed(ctx context.Context, b Batch) {
	s.recorder.BatchGenerated(string(b.Source), len(b.Vouchers))
	s.logger.Info("voucher batch generated",
		slog.Int64("batch_id", b.ID),
		slog.String("source", string(b.Source)),
		slog.Int("vouchers", len(b.Vouchers)),
		slog.String("total", b.Total.String()))
	evt := GeneratedEvent{
		BatchID:       b.ID,
		Source:        b.Source,
		InvoiceID:     b.InvoiceID,
		SaleReference: b.SaleReference,
		VoucherCodes:  b.Codes(),
		GeneratedBy:   b.GeneratedBy,
	}
	if err := s.events.BatchGenerated(ctx, evt); err != nil {
		s.logger.Warn("publish batch generated", slog.Int64("batch_id", b.ID), slog.Any("error", err))
	}
}

// Get returns a batch with its vouchers.
func (s *Service) Get(ctx context.Context, id int64) (Batch, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return Batch{}, shared.Storage("get batch", err)
	}
	return b, nil
}

// ForInvoice returns the batch generated for an invoice.
func (s *Service) ForInvoice(ctx context.Context, invoiceID int64) (Batch, error) {
	b, err := s.repo.ForInvoice(ctx, invoiceID)
	if err != nil {
		return Batch{}, shared.Storage("get invoice batch", err)
	}
	return b, nil
}

// ForSale returns the batch issued under a sale reference.
func (s *Service) ForSale(ctx context.Context, reference string) (Batch, error) {
	b, err := s.repo.ForSale(ctx, strings.TrimSpace(reference))
	if err != nil {
		return Batch{}, shared.Storage("get sale batch", err)
	}
	return b, nil
}

// DirectSaleCash totals counter sale takings per method in [from, to).
func (s *Service) DirectSaleCash(ctx context.Context, from, to time.Time, agentID int64) (invoice.MethodTotals, error) {
	if !to.After(from) {
		return nil, shared.Invalid("period end must be after start")
	}
	totals, err := s.repo.DirectSaleCash(ctx, from, to, agentID)
	if err != nil {
		return nil, shared.Storage("direct sale cash", err)
	}
	return totals, nil
}
