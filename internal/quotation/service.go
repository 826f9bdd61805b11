package quotation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/greenpass/greenpass/internal/invoice"
	"github.com/greenpass/greenpass/internal/money"
	"github.com/greenpass/greenpass/internal/settings"
	"github.com/greenpass/greenpass/internal/shared"
)

// DefaultValidity applies when a quotation is created without valid_until.
const DefaultValidity = 30 * 24 * time.Hour

// approvalModule tags quotation entries in the approvals table.
const approvalModule = "quotation"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Quotation, error)
	List(ctx context.Context, filter ListFilter) ([]Quotation, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	NextNumber(ctx context.Context, at time.Time) (string, error)
	Insert(ctx context.Context, q Quotation) (Quotation, error)
	Get(ctx context.Context, id int64) (Quotation, error)
	// Transition moves id from one status to another only while the quotation
	// is unexpired at now. applied is false when the guard did not match.
	Transition(ctx context.Context, id int64, from, to Status, actorID int64, now time.Time) (q Quotation, applied bool, err error)
	CreateInvoice(ctx context.Context, in invoice.NewInvoice, now time.Time) (invoice.Invoice, error)
	LinkInvoice(ctx context.Context, id, invoiceID int64) error
}

// Service coordinates the quotation workflow.
type Service struct {
	repo      RepositoryPort
	events    Publisher
	approvals ApprovalPort
	logger    *slog.Logger
	now       func() time.Time
}

// Option customises Service.
type Option func(*Service)

// WithPublisher sets the converted-event publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// WithApprovals records send and approve actions.
func WithApprovals(a ApprovalPort) Option {
	return func(s *Service) { s.approvals = a }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs the quotation service.
func NewService(repo RepositoryPort, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{repo: repo, events: noopPublisher{}, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LineInput describes one requested line.
type LineInput struct {
	Description string
	Quantity    int64
	UnitPrice   money.Amount
}

// CreateInput describes a quotation request.
type CreateInput struct {
	Customer     shared.Customer
	Lines        []LineInput
	DiscountRate money.Rate
	ValidUntil   *time.Time
	Notes        string
	CreatedBy    int64
}

// Draft validates input and prices the quotation against snap.
func Draft(in CreateInput, snap settings.Snapshot, now time.Time) (Quotation, error) {
	customer := in.Customer.Normalize()
	if customer.Name == "" {
		return Quotation{}, shared.Invalid("customer name is required")
	}
	if len(in.Lines) == 0 {
		return Quotation{}, shared.Invalid("at least one line is required")
	}
	if !in.DiscountRate.Valid() {
		return Quotation{}, shared.Invalid("discount must be between 0 and 100 percent")
	}
	validUntil := now.Add(DefaultValidity)
	if in.ValidUntil != nil {
		if !in.ValidUntil.After(now) {
			return Quotation{}, shared.Invalid("valid_until must be in the future")
		}
		validUntil = *in.ValidUntil
	}

	lines := make([]Line, 0, len(in.Lines))
	var subtotal money.Amount
	var count int64
	for i, l := range in.Lines {
		if l.Quantity <= 0 {
			return Quotation{}, shared.Invalid("line %d: quantity must be positive", i+1)
		}
		if l.UnitPrice < 0 {
			return Quotation{}, shared.Invalid("line %d: unit price must not be negative", i+1)
		}
		price := l.UnitPrice
		if price == 0 {
			price = snap.DefaultFee
		}
		desc := strings.TrimSpace(l.Description)
		if desc == "" {
			desc = "Exit fee voucher"
		}
		total, err := price.Mul(l.Quantity)
		if err != nil || subtotal > money.MaxAmount-total {
			return Quotation{}, shared.Invalid("line %d: total is too large", i+1)
		}
		subtotal = subtotal.Add(total)
		count += l.Quantity
		lines = append(lines, Line{Description: desc, Quantity: l.Quantity, UnitPrice: price, LineTotal: total, LineOrder: i + 1})
	}
	if count > invoice.MaxVouchersPerDocument {
		return Quotation{}, shared.Invalid("a quotation may cover at most %d vouchers", invoice.MaxVouchersPerDocument)
	}

	totals := invoice.ComputeTotals(subtotal, in.DiscountRate, snap)
	return Quotation{
		Customer:       customer,
		Lines:          lines,
		DiscountRate:   totals.DiscountRate,
		Subtotal:       totals.Subtotal,
		DiscountAmount: totals.DiscountAmount,
		GSTRate:        totals.GSTRate,
		GSTAmount:      totals.GSTAmount,
		TotalAmount:    totals.Total,
		Currency:       snap.Currency,
		Status:         StatusDraft,
		ValidUntil:     validUntil,
		Notes:          strings.TrimSpace(in.Notes),
		CreatedBy:      in.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Create stores a draft quotation.
func (s *Service) Create(ctx context.Context, in CreateInput, snap settings.Snapshot) (Quotation, error) {
	now := s.now()
	draft, err := Draft(in, snap, now)
	if err != nil {
		return Quotation{}, err
	}
	var created Quotation
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx, now)
		if err != nil {
			return err
		}
		draft.Number = number
		created, err = tx.Insert(ctx, draft)
		return err
	})
	if err != nil {
		return Quotation{}, shared.Storage("create quotation", err)
	}
	s.logger.Info("quotation created", slog.String("number", created.Number), slog.String("total", created.TotalAmount.String()))
	return created, nil
}

// Get returns a quotation with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Quotation, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return Quotation{}, shared.Storage("get quotation", err)
	}
	return q, nil
}

// List returns quotations matching filter, evaluating expiry lazily.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Quotation, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	filter.AsOf = s.now()
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Storage("list quotations", err)
	}
	return items, nil
}

// MarkSent moves a draft to sent.
func (s *Service) MarkSent(ctx context.Context, id, actorID int64) (Quotation, error) {
	q, err := s.transition(ctx, id, StatusDraft, StatusSent, actorID)
	if err != nil {
		return Quotation{}, err
	}
	s.recordApproval(ctx, q, actorID, shared.ApprovalSubmit)
	return q, nil
}

// Approve moves a sent quotation to approved.
func (s *Service) Approve(ctx context.Context, id, actorID int64) (Quotation, error) {
	q, err := s.transition(ctx, id, StatusSent, StatusApproved, actorID)
	if err != nil {
		return Quotation{}, err
	}
	s.recordApproval(ctx, q, actorID, shared.ApprovalApprove)
	return q, nil
}

func (s *Service) transition(ctx context.Context, id int64, from, to Status, actorID int64) (Quotation, error) {
	now := s.now()
	var out Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, applied, err := tx.Transition(ctx, id, from, to, actorID, now)
		if err != nil {
			return err
		}
		if !applied {
			return explain(ctx, tx, id, to, now)
		}
		out = q
		return nil
	})
	if err != nil {
		return Quotation{}, shared.Storage("quotation "+string(to), err)
	}
	s.logger.Info("quotation transitioned", slog.String("number", out.Number), slog.String("status", string(to)))
	return out, nil
}

// ConvertToInvoice creates the invoice for an approved quotation. The status
// change and invoice insert commit together; a second call fails.
func (s *Service) ConvertToInvoice(ctx context.Context, id, actorID int64, snap settings.Snapshot) (Quotation, invoice.Invoice, error) {
	now := s.now()
	var (
		converted Quotation
		created   invoice.Invoice
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, applied, err := tx.Transition(ctx, id, StatusApproved, StatusConverted, actorID, now)
		if err != nil {
			return err
		}
		if !applied {
			return explain(ctx, tx, id, StatusConverted, now)
		}
		qid := q.ID
		created, err = tx.CreateInvoice(ctx, invoice.NewInvoice{
			QuotationID:  &qid,
			Customer:     q.Customer,
			Description:  fmt.Sprintf("Exit fee vouchers per quotation %s", q.Number),
			VoucherCount: q.VoucherCount(),
			UnitPrice:    q.UnitPrice(),
			Totals: invoice.Totals{
				Subtotal:       q.Subtotal,
				DiscountRate:   q.DiscountRate,
				DiscountAmount: q.DiscountAmount,
				Net:            q.Subtotal.Diff(q.DiscountAmount),
				GSTRate:        q.GSTRate,
				GSTAmount:      q.GSTAmount,
				Total:          q.TotalAmount,
			},
			Currency:     q.Currency,
			PaymentTerms: invoice.PaymentTerms(snap.InvoiceDueDays),
			IssuedAt:     now,
			DueDate:      now.AddDate(0, 0, snap.InvoiceDueDays),
			CreatedBy:    actorID,
		}, now)
		if err != nil {
			return err
		}
		if err := tx.LinkInvoice(ctx, q.ID, created.ID); err != nil {
			return err
		}
		q.InvoiceID = &created.ID
		converted = q
		return nil
	})
	if err != nil {
		return Quotation{}, invoice.Invoice{}, shared.Storage("convert quotation", err)
	}
	s.logger.Info("quotation converted",
		slog.String("quotation", converted.Number),
		slog.String("invoice", created.Number),
		slog.String("total", created.TotalAmount.String()))
	evt := ConvertedEvent{QuotationID: converted.ID, QuotationNumber: converted.Number, InvoiceID: created.ID, InvoiceNumber: created.Number}
	if err := s.events.QuotationConverted(ctx, evt); err != nil {
		s.logger.Warn("publish quotation converted", slog.String("quotation", converted.Number), slog.Any("error", err))
	}
	return converted, created, nil
}

func explain(ctx context.Context, tx TxRepository, id int64, to Status, now time.Time) error {
	current, err := tx.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := current.CheckTransition(to, now); err != nil {
		return err
	}
	return fmt.Errorf("quotation %s changed concurrently: %w", current.Number, shared.ErrInvalidTransition)
}

// Approvals returns the submit/approve history of a quotation.
func (s *Service) Approvals(ctx context.Context, id int64) ([]shared.ApprovalLog, error) {
	q, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.approvals == nil {
		return nil, nil
	}
	logs, err := s.approvals.List(ctx, approvalModule, RefID(q.Number))
	if err != nil {
		return nil, shared.Storage("list quotation approvals", err)
	}
	return logs, nil
}

// RefID derives the stable approval reference for a quotation.
func RefID(number string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("greenpass/quotation/"+number))
}

func (s *Service) recordApproval(ctx context.Context, q Quotation, actorID int64, action shared.ApprovalAction) {
	if s.approvals == nil || actorID == 0 {
		return
	}
	err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  approvalModule,
		RefID:   RefID(q.Number),
		ActorID: actorID,
		Action:  action,
		Note:    q.Number,
		At:      s.now(),
	})
	if err != nil {
		s.logger.Warn("record quotation approval", slog.String("number", q.Number), slog.Any("error", err))
	}
}
