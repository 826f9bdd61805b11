package voucher

import (
	"time"

	"github.com/greenpass/greenpass/internal/money"
)

// VoidRequest is the payload for POST /vouchers/{code}/void.
type VoidRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// Holder is the masked passport view returned to clients.
type Holder struct {
	Name        string `json:"name"`
	Number      string `json:"passport_number"`
	Nationality string `json:"nationality,omitempty"`
}

// Response renders a voucher with its effective status.
type Response struct {
	Code         string       `json:"voucher_code"`
	BatchID      *int64       `json:"batch_id,omitempty"`
	Kind         Kind         `json:"kind"`
	FaceValue    money.Amount `json:"face_value"`
	Currency     string       `json:"currency"`
	Status       Status       `json:"status"`
	Holder       *Holder      `json:"holder,omitempty"`
	ValidFrom    time.Time    `json:"valid_from"`
	ValidUntil   time.Time    `json:"valid_until"`
	RegisteredAt *time.Time   `json:"registered_at,omitempty"`
	UsedAt       *time.Time   `json:"used_at,omitempty"`
	VoidedAt     *time.Time   `json:"voided_at,omitempty"`
	VoidReason   string       `json:"void_reason,omitempty"`
}

// NewResponse renders v as of now.
func NewResponse(v Voucher, now time.Time) Response {
	out := Response{
		Code:         v.Code,
		BatchID:      v.BatchID,
		Kind:         v.Kind,
		FaceValue:    v.FaceValue,
		Currency:     v.Currency,
		Status:       v.EffectiveStatus(now),
		ValidFrom:    v.ValidFrom,
		ValidUntil:   v.ValidUntil,
		RegisteredAt: v.RegisteredAt,
		UsedAt:       v.UsedAt,
		VoidedAt:     v.VoidedAt,
		VoidReason:   v.VoidReason,
	}
	if v.Passport != nil {
		out.Holder = &Holder{Name: v.Passport.FullName(), Number: v.Passport.Masked(), Nationality: v.Passport.Nationality}
	}
	return out
}

// NewResponses renders a list of vouchers.
func NewResponses(items []Voucher, now time.Time) []Response {
	out := make([]Response, 0, len(items))
	for _, v := range items {
		out = append(out, NewResponse(v, now))
	}
	return out
}
