package invoice

import (
	"time"

	"github.com/greenpass/greenpass/internal/money"
	"github.com/greenpass/greenpass/internal/shared"
)

// CreateRequest is the payload for POST /invoices.
type CreateRequest struct {
	Customer struct {
		Name    string `json:"name" validate:"required,max=200"`
		Email   string `json:"email" validate:"omitempty,email"`
		Phone   string `json:"phone" validate:"max=50"`
		Address string `json:"address" validate:"max=500"`
		TIN     string `json:"tin" validate:"max=50"`
	} `json:"customer"`
	Description  string       `json:"description" validate:"max=500"`
	VoucherCount int          `json:"voucher_count" validate:"required,gte=1,lte=1000"`
	UnitPrice    money.Amount `json:"unit_price" validate:"gte=0"`
	DiscountRate money.Rate   `json:"discount_rate" validate:"gte=0,lte=10000"`
	DueDate      string       `json:"due_date"`
}

// PaymentRequest is the payload for POST /invoices/{id}/payments.
type PaymentRequest struct {
	Amount    money.Amount `json:"amount" validate:"gt=0"`
	Method    string       `json:"payment_method" validate:"required"`
	Reference string       `json:"reference" validate:"max=100"`
	Notes     string       `json:"notes" validate:"max=1000"`
	PaidAt    string       `json:"paid_at"`
}

// CancelRequest is the payload for POST /invoices/{id}/cancel.
type CancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// Response renders an invoice with its derived status and balance.
type Response struct {
	ID                  int64             `json:"id"`
	Number              string            `json:"invoice_number"`
	QuotationID         *int64            `json:"quotation_id,omitempty"`
	Customer            shared.Customer   `json:"customer"`
	Description         string            `json:"description"`
	VoucherCount        int               `json:"voucher_count"`
	UnitPrice           money.Amount      `json:"unit_price"`
	Subtotal            money.Amount      `json:"subtotal"`
	DiscountRate        money.Rate        `json:"discount_rate"`
	DiscountAmount      money.Amount      `json:"discount_amount"`
	GSTRate             money.Rate        `json:"gst_rate"`
	GSTAmount           money.Amount      `json:"gst_amount"`
	TotalAmount         money.Amount      `json:"total_amount"`
	AmountPaid          money.Amount      `json:"amount_paid"`
	BalanceDue          money.Amount      `json:"balance_due"`
	Currency            string            `json:"currency"`
	Status              Status            `json:"status"`
	PaymentTerms        string            `json:"payment_terms"`
	IssuedAt            time.Time         `json:"issued_at"`
	DueDate             time.Time         `json:"due_date"`
	CancelledAt         *time.Time        `json:"cancelled_at,omitempty"`
	CancelReason        string            `json:"cancel_reason,omitempty"`
	VouchersGenerated   bool              `json:"vouchers_generated"`
	VouchersGeneratedAt *time.Time        `json:"vouchers_generated_at,omitempty"`
	Payments            []PaymentResponse `json:"payments,omitempty"`
}

// PaymentResponse renders one ledger entry.
type PaymentResponse struct {
	ID         int64         `json:"id"`
	Amount     money.Amount  `json:"amount"`
	Method     PaymentMethod `json:"payment_method"`
	Reference  string        `json:"reference,omitempty"`
	Notes      string        `json:"notes,omitempty"`
	RecordedBy int64         `json:"recorded_by,omitempty"`
	PaidAt     time.Time     `json:"paid_at"`
}

// NewResponse renders inv as of now.
func NewResponse(inv Invoice, now time.Time) Response {
	out := Response{
		ID:                  inv.ID,
		Number:              inv.Number,
		QuotationID:         inv.QuotationID,
		Customer:            inv.Customer,
		Description:         inv.Description,
		VoucherCount:        inv.VoucherCount,
		UnitPrice:           inv.UnitPrice,
		Subtotal:            inv.Subtotal,
		DiscountRate:        inv.DiscountRate,
		DiscountAmount:      inv.DiscountAmount,
		GSTRate:             inv.GSTRate,
		GSTAmount:           inv.GSTAmount,
		TotalAmount:         inv.TotalAmount,
		AmountPaid:          inv.AmountPaid,
		BalanceDue:          inv.BalanceDue(),
		Currency:            inv.Currency,
		Status:              inv.Status(now),
		PaymentTerms:        inv.PaymentTerms,
		IssuedAt:            inv.IssuedAt,
		DueDate:             inv.DueDate,
		CancelledAt:         inv.CancelledAt,
		CancelReason:        inv.CancelReason,
		VouchersGenerated:   inv.VouchersGenerated,
		VouchersGeneratedAt: inv.VouchersGeneratedAt,
	}
	for _, p := range inv.Payments {
		out.Payments = append(out.Payments, newPaymentResponse(p))
	}
	return out
}

func newPaymentResponse(p Payment) PaymentResponse {
	return PaymentResponse{
		ID:         p.ID,
		Amount:     p.Amount,
		Method:     p.Method,
		Reference:  p.Reference,
		Notes:      p.Notes,
		RecordedBy: p.RecordedBy,
		PaidAt:     p.PaidAt,
	}
}
