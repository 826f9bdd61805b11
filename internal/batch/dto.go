package batch

import (
	"time"

	"github.com/greenpass/greenpass/internal/invoice"
	"github.com/greenpass/greenpass/internal/money"
	"github.com/greenpass/greenpass/internal/shared"
	"github.com/greenpass/greenpass/internal/voucher"
)

// SaleRequest is the payload for POST /sales.
type SaleRequest struct {
	Reference       string         `json:"sale_reference" validate:"required,max=64"`
	Count           int            `json:"quantity" validate:"required,gte=1,lte=1000"`
	FaceValue       money.Amount   `json:"face_value" validate:"gte=0"`
	DiscountRate    money.Rate     `json:"discount_rate" validate:"gte=0,lte=10000"`
	PaymentMethod   string         `json:"payment_method" validate:"max=20"`
	AmountCollected money.Amount   `json:"amount_collected" validate:"gte=0"`
	CustomerName    string         `json:"customer_name" validate:"max=200"`
	CustomerEmail   string         `json:"customer_email" validate:"omitempty,email"`
	CustomerPhone   string         `json:"customer_phone" validate:"max=50"`
	Passport        map[string]any `json:"passport"`
}

// Response renders a batch with its vouchers.
type Response struct {
	ID              int64                 `json:"id"`
	Source          Source                `json:"source"`
	InvoiceID       *int64                `json:"invoice_id,omitempty"`
	SaleReference   string                `json:"sale_reference,omitempty"`
	Kind            voucher.Kind          `json:"kind"`
	Customer        shared.Customer       `json:"customer"`
	Count           int                   `json:"quantity"`
	UnitPrice       money.Amount          `json:"unit_price"`
	DiscountRate    money.Rate            `json:"discount_rate"`
	DiscountAmount  money.Amount          `json:"discount_amount"`
	GSTAmount       money.Amount          `json:"gst_amount"`
	Total           money.Amount          `json:"total_amount"`
	Currency        string                `json:"currency"`
	PaymentMethod   invoice.PaymentMethod `json:"payment_method,omitempty"`
	AmountCollected money.Amount          `json:"amount_collected"`
	ChangeGiven     money.Amount          `json:"change_given"`
	GeneratedAt     time.Time             `json:"generated_at"`
	Vouchers        []voucher.Response    `json:"vouchers"`
}

// NewResponse renders b as of now.
func NewResponse(b Batch, now time.Time) Response {
	return Response{
		ID:              b.ID,
		Source:          b.Source,
		InvoiceID:       b.InvoiceID,
		SaleReference:   b.SaleReference,
		Kind:            b.Kind,
		Customer:        b.Customer,
		Count:           b.Count,
		UnitPrice:       b.UnitPrice,
		DiscountRate:    b.DiscountRate,
		DiscountAmount:  b.DiscountAmount,
		GSTAmount:       b.GSTAmount,
		Total:           b.Total,
		Currency:        b.Currency,
		PaymentMethod:   b.PaymentMethod,
		AmountCollected: b.AmountCollected,
		ChangeGiven:     b.ChangeGiven,
		GeneratedAt:     b.GeneratedAt,
		Vouchers:        voucher.NewResponses(b.Vouchers, now),
	}
}
