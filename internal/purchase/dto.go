package purchase

import (
	"time"

	"github.com/greenpass/greenpass/internal/batch"
	"github.com/greenpass/greenpass/internal/money"
)

// CreateRequest is the payload for POST /purchases.
type CreateRequest struct {
	Email    string         `json:"email" validate:"required,email,max=200"`
	Name     string         `json:"name" validate:"max=200"`
	Phone    string         `json:"phone" validate:"max=50"`
	Quantity int            `json:"quantity" validate:"gte=0,lte=1000"`
	Passport map[string]any `json:"passport"`
}

// WebhookEvent is the gateway notification body.
type WebhookEvent struct {
	SessionID  string `json:"session_id" validate:"required,uuid"`
	Status     string `json:"status" validate:"required,max=32"`
	GatewayRef string `json:"gateway_ref" validate:"max=128"`
}

// Response renders a session. Batch is set once the session completes.
type Response struct {
	ID          string          `json:"id"`
	Status      Status          `json:"status"`
	Email       string          `json:"email"`
	Quantity    int             `json:"quantity"`
	UnitPrice   money.Amount    `json:"unit_price"`
	Total       money.Amount    `json:"total_amount"`
	Currency    string          `json:"currency"`
	Reference   string          `json:"sale_reference"`
	ExpiresAt   time.Time       `json:"expires_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Batch       *batch.Response `json:"batch,omitempty"`
}

// NewResponse renders s as of now.
func NewResponse(s Session, b *batch.Batch, now time.Time) Response {
	out := Response{
		ID:          s.ID.String(),
		Status:      s.EffectiveStatus(now),
		Email:       s.Customer.Email,
		Quantity:    s.Quantity,
		UnitPrice:   s.UnitPrice,
		Total:       s.Total,
		Currency:    s.Currency,
		Reference:   s.Reference(),
		ExpiresAt:   s.ExpiresAt,
		CompletedAt: s.CompletedAt,
	}
	if b != nil {
		r := batch.NewResponse(*b, now)
		out.Batch = &r
	}
	return out
}
