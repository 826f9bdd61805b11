package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/greenpass/greenpass/internal/invoice"
	"github.com/greenpass/greenpass/internal/money"
	"github.com/greenpass/greenpass/internal/shared"
)

// Status tracks supervisor review of a submitted count.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Decision is a reviewer's verdict.
type Decision string

const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
)

// Record is a persisted reconciliation.
type Record struct {
	ID          int64                `json:"id"`
	AgentID     int64                `json:"agent_id"`
	PeriodStart time.Time            `json:"period_start"`
	PeriodEnd   time.Time            `json:"period_end"`
	Result      Result               `json:"result"`
	Takings     invoice.MethodTotals `json:"takings"`
	Notes       string               `json:"notes,omitempty"`
	Status      Status               `json:"status"`
	ReviewedBy  *int64               `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time           `json:"reviewed_at,omitempty"`
	ReviewNotes string               `json:"review_notes,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

// Ledger reports takings per payment method for an agent and period.
type Ledger interface {
	CashSummary(ctx context.Context, from, to time.Time, agentID int64) (invoice.MethodTotals, error)
}

// LedgerFunc adapts a function to Ledger.
type LedgerFunc func(ctx context.Context, from, to time.Time, agentID int64) (invoice.MethodTotals, error)

// CashSummary calls f.
func (f LedgerFunc) CashSummary(ctx context.Context, from, to time.Time, agentID int64) (invoice.MethodTotals, error) {
	return f(ctx, from, to, agentID)
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Insert(ctx context.Context, r Record) (Record, error)
	Get(ctx context.Context, id int64) (Record, error)
	// Review moves a pending record to status; applied is false when the
	// record is no longer pending.
	Review(ctx context.Context, id int64, status Status, reviewer int64, notes string, now time.Time) (Record, bool, error)
}

// ApprovalRecorder appends to the shared approval history.
type ApprovalRecorder interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

const approvalModule = "cash_reconciliation"

// Service prepares and records drawer reconciliations. It only reads the
// payment ledger.
type Service struct {
	repo      RepositoryPort
	ledgers   []Ledger
	approvals ApprovalRecorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the service; expected cash sums every ledger.
func NewService(repo RepositoryPort, logger *slog.Logger, ledgers ...Ledger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ledgers: ledgers, logger: logger, now: time.Now}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetApprovals records submissions and reviews in the approval history.
func (s *Service) SetApprovals(a ApprovalRecorder) {
	s.approvals = a
}

// RefID derives the approval reference for a stored reconciliation.
func RefID(id int64) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("greenpass/reconciliation/%d", id)))
}

func (s *Service) recordApproval(ctx context.Context, rec Record, actorID int64, action shared.ApprovalAction, note string) {
	if s.approvals == nil || actorID == 0 {
		return
	}
	err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  approvalModule,
		RefID:   RefID(rec.ID),
		ActorID: actorID,
		Action:  action,
		Note:    note,
		At:      s.now(),
	})
	if err != nil {
		s.logger.Warn("record reconciliation approval", slog.Int64("id", rec.ID), slog.Any("error", err))
	}
}

// PrepareInput describes a drawer count.
type PrepareInput struct {
	AgentID      int64
	From         time.Time
	To           time.Time
	OpeningFloat money.Amount
	Counts       []DenominationCount
	Notes        string
}

// Prepare computes the reconciliation without persisting it.
func (s *Service) Prepare(ctx context.Context, in PrepareInput) (Record, error) {
	if !in.To.After(in.From) {
		return Record{}, shared.Invalid("period end must be after start")
	}
	takings := make(invoice.MethodTotals)
	for _, l := range s.ledgers {
		totals, err := l.CashSummary(ctx, in.From, in.To, in.AgentID)
		if err != nil {
			return Record{}, shared.Storage("load takings", err)
		}
		for method, amount := range totals {
			takings[method] = takings[method].Add(amount)
		}
	}
	res, err := Calculate(Input{
		OpeningFloat: in.OpeningFloat,
		Counts:       in.Counts,
		ExpectedCash: takings[invoice.MethodCash],
	})
	if err != nil {
		return Record{}, err
	}
	return Record{
		AgentID:     in.AgentID,
		PeriodStart: in.From,
		PeriodEnd:   in.To,
		Result:      res,
		Takings:     takings,
		Notes:       strings.TrimSpace(in.Notes),
		Status:      StatusPending,
	}, nil
}

// Submit stores a pending reconciliation for review.
func (s *Service) Submit(ctx context.Context, in PrepareInput) (Record, error) {
	rec, err := s.Prepare(ctx, in)
	if err != nil {
		return Record{}, err
	}
	rec.CreatedAt = s.now()
	rec, err = s.repo.Insert(ctx, rec)
	if err != nil {
		return Record{}, shared.Storage("submit reconciliation", err)
	}
	s.logger.Info("cash reconciliation submitted",
		slog.Int64("id", rec.ID),
		slog.Int64("agent_id", rec.AgentID),
		slog.String("variance", rec.Result.Variance.String()),
		slog.String("classification", string(rec.Result.Classification)))
	s.recordApproval(ctx, rec, rec.AgentID, shared.ApprovalSubmit, rec.Result.Variance.String())
	return rec, nil
}

// Get returns a stored reconciliation.
func (s *Service) Get(ctx context.Context, id int64) (Record, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return Record{}, shared.Storage("get reconciliation", err)
	}
	return rec, nil
}

// Review approves or rejects a pending reconciliation.
func (s *Service) Review(ctx context.Context, id int64, decision Decision, reviewer int64, notes string) (Record, error) {
	var (
		status Status
		action shared.ApprovalAction
	)
	switch decision {
	case Approve:
		status, action = StatusApproved, shared.ApprovalApprove
	case Reject:
		status, action = StatusRejected, shared.ApprovalReject
	default:
		return Record{}, shared.Invalid("decision must be approve or reject")
	}
	if reviewer == 0 {
		return Record{}, shared.Invalid("reviewer is required")
	}
	rec, applied, err := s.repo.Review(ctx, id, status, reviewer, strings.TrimSpace(notes), s.now())
	if err != nil {
		return Record{}, shared.Storage("review reconciliation", err)
	}
	if !applied {
		current, err := s.repo.Get(ctx, id)
		if err != nil {
			return Record{}, shared.Storage("review reconciliation", err)
		}
		return Record{}, fmt.Errorf("reconciliation %d is %s: %w", id, current.Status, shared.ErrInvalidTransition)
	}
	s.logger.Info("cash reconciliation reviewed", slog.Int64("id", id), slog.String("status", string(status)))
	s.recordApproval(ctx, rec, reviewer, action, rec.ReviewNotes)
	return rec, nil
}
