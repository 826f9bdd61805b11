package voucher

import (
	"context"
	"time"
)

// RedeemedEvent is emitted after a redemption commits.
type RedeemedEvent struct {
	VoucherID int64     `json:"voucher_id"`
	Code      string    `json:"voucher_code"`
	UsedAt    time.Time `json:"used_at"`
	ActorID   int64     `json:"actor_id,omitempty"`
}

// Publisher hands committed voucher events to downstream collaborators.
type Publisher interface {
	VoucherRedeemed(ctx context.Context, evt RedeemedEvent) error
}

// Recorder receives redemption outcomes for telemetry.
type Recorder interface {
	RedemptionOutcome(outcome string)
}

type noopPublisher struct{}

func (noopPublisher) VoucherRedeemed(context.Context, RedeemedEvent) error { return nil }

type noopRecorder struct{}

func (noopRecorder) RedemptionOutcome(string) {}
