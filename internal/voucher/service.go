package voucher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/greenpass/greenpass/internal/passport"
	"github.com/greenpass/greenpass/internal/shared"
)

// RepositoryPort describes repository operations used by Service. The
// transition methods are conditional updates: applied is false when the
// voucher was not in the required state at write time.
type RepositoryPort interface {
	GetByCode(ctx context.Context, code string) (Voucher, error)
	ListByBatch(ctx context.Context, batchID int64) ([]Voucher, error)
	ListByPassport(ctx context.Context, number string) ([]Voucher, error)
	BindPassport(ctx context.Context, code string, p passport.Passport, now time.Time) (v Voucher, applied bool, err error)
	MarkUsed(ctx context.Context, code string, actorID int64, now time.Time) (v Voucher, applied bool, err error)
	Void(ctx context.Context, code, reason string, now time.Time) (v Voucher, applied bool, err error)
}

// Service drives the voucher state machine.
type Service struct {
	repo     RepositoryPort
	events   Publisher
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
	lookups  singleflight.Group
}

// Option customises Service.
type Option func(*Service)

// WithPublisher sets the outbound event publisher.
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

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs the voucher service.
func NewService(repo RepositoryPort, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:     repo,
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

func parseCode(code string) (string, error) {
	code = NormalizeCode(code)
	if !ValidFormat(code) {
		return "", shared.Invalid("voucher code %q has an invalid format", code)
	}
	return code, nil
}

// Get returns the voucher by code.
func (s *Service) Get(ctx context.Context, code string) (Voucher, error) {
	code, err := parseCode(code)
	if err != nil {
		return Voucher{}, err
	}
	v, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return Voucher{}, shared.Storage("get voucher", err)
	}
	return v, nil
}

// ListByBatch returns vouchers issued in a batch.
func (s *Service) ListByBatch(ctx context.Context, batchID int64) ([]Voucher, error) {
	items, err := s.repo.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, shared.Storage("list batch vouchers", err)
	}
	return items, nil
}

// ListByPassport returns vouchers registered to a passport number.
func (s *Service) ListByPassport(ctx context.Context, number string) ([]Voucher, error) {
	number = passport.Passport{Number: number}.Normalize().Number
	if number == "" {
		return nil, shared.Invalid("passport number is required")
	}
	items, err := s.repo.ListByPassport(ctx, number)
	if err != nil {
		return nil, shared.Storage("list passport vouchers", err)
	}
	return items, nil
}

// Validate performs the read-only gate check. Concurrent checks for the same
// code share one lookup.
func (s *Service) Validate(ctx context.Context, code string) (Validation, error) {
	code, err := parseCode(code)
	if err != nil {
		return Validation{}, err
	}
	ch := s.lookups.DoChan(code, func() (any, error) {
		return s.repo.GetByCode(context.WithoutCancel(ctx), code)
	})
	select {
	case <-ctx.Done():
		return Validation{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, shared.ErrNotFound) {
				return Validation{Code: code, Result: CheckNotFound, Message: "Voucher not found"}, nil
			}
			return Validation{}, shared.Storage("validate voucher", res.Err)
		}
		return Inspect(res.Val.(Voucher), s.now()), nil
	}
}

// BindPassport registers a passport against a pending voucher.
func (s *Service) BindPassport(ctx context.Context, code string, p passport.Passport) (Voucher, error) {
	code, err := parseCode(code)
	if err != nil {
		return Voucher{}, err
	}
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return Voucher{}, err
	}
	now := s.now()
	v, applied, err := s.repo.BindPassport(ctx, code, p, now)
	if err != nil {
		return Voucher{}, shared.Storage("bind passport", err)
	}
	if !applied {
		return Voucher{}, s.explain(ctx, code, func(cur Voucher) error { return cur.CanBind(now) })
	}
	s.logger.Info("voucher passport bound", slog.String("code", v.Code), slog.String("passport", p.Masked()))
	return v, nil
}

// Redeem marks an active voucher used. A repeat call yields ErrAlreadyUsed.
func (s *Service) Redeem(ctx context.Context, code string, actorID int64) (Voucher, error) {
	code, err := parseCode(code)
	if err != nil {
		return Voucher{}, err
	}
	now := s.now()
	v, applied, err := s.repo.MarkUsed(ctx, code, actorID, now)
	if err != nil {
		return Voucher{}, shared.Storage("redeem voucher", err)
	}
	if !applied {
		err := s.explain(ctx, code, func(cur Voucher) error { return cur.CanRedeem(now) })
		s.recorder.RedemptionOutcome(outcomeOf(err))
		return Voucher{}, err
	}
	s.recorder.RedemptionOutcome("redeemed")
	usedAt := now
	if v.UsedAt != nil {
		usedAt = *v.UsedAt
	}
	evt := RedeemedEvent{VoucherID: v.ID, Code: v.Code, UsedAt: usedAt, ActorID: actorID}
	if err := s.events.VoucherRedeemed(ctx, evt); err != nil {
		s.logger.Warn("publish voucher redeemed", slog.String("code", v.Code), slog.Any("error", err))
	}
	return v, nil
}

// Void cancels an unused voucher.
func (s *Service) Void(ctx context.Context, code, reason string) (Voucher, error) {
	code, err := parseCode(code)
	if err != nil {
		return Voucher{}, err
	}
	if reason == "" {
		return Voucher{}, shared.Invalid("void reason is required")
	}
	v, applied, err := s.repo.Void(ctx, code, reason, s.now())
	if err != nil {
		return Voucher{}, shared.Storage("void voucher", err)
	}
	if !applied {
		return Voucher{}, s.explain(ctx, code, func(cur Voucher) error { return cur.CanVoid() })
	}
	s.logger.Info("voucher voided", slog.String("code", v.Code), slog.String("reason", reason))
	return v, nil
}

// explain re-reads the voucher after a conditional update matched no row and
// reports which rule blocked the transition.
func (s *Service) explain(ctx context.Context, code string, check func(Voucher) error) error {
	cur, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return shared.Storage("reload voucher", err)
	}
	if err := check(cur); err != nil {
		return err
	}
	return fmt.Errorf("voucher %s changed concurrently: %w", code, shared.ErrInvalidTransition)
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, shared.ErrAlreadyUsed):
		return "already_used"
	case errors.Is(err, shared.ErrExpired):
		return "expired"
	case errors.Is(err, shared.ErrNotActive):
		return "not_active"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
