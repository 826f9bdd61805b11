package quotation

import (
	"github.com/greenpass/greenpass/internal/money"
	"github.com/greenpass/greenpass/internal/shared"
)

// CreateRequest is the payload for POST /quotations.
type CreateRequest struct {
	Customer     CustomerRequest `json:"customer"`
	Lines        []LineRequest   `json:"lines" validate:"required,min=1,dive"`
	DiscountRate money.Rate      `json:"discount_rate" validate:"gte=0,lte=10000"`
	ValidUntil   string          `json:"valid_until"`
	Notes        string          `json:"notes" validate:"max=2000"`
}

// CustomerRequest carries buyer details.
type CustomerRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone" validate:"max=50"`
	Address string `json:"address" validate:"max=500"`
	TIN     string `json:"tin" validate:"max=50"`
}

// Customer converts the request into the shared value.
func (c CustomerRequest) Customer() shared.Customer {
	return shared.Customer{Name: c.Name, Email: c.Email, Phone: c.Phone, Address: c.Address, TIN: c.TIN}
}

// LineRequest is one priced line.
type LineRequest struct {
	Description string       `json:"description" validate:"max=500"`
	Quantity    int64        `json:"quantity" validate:"required,gt=0"`
	UnitPrice   money.Amount `json:"unit_price" validate:"gte=0"`
}

// ConvertResponse pairs the converted quotation with its invoice summary.
type ConvertResponse struct {
	Quotation     Quotation    `json:"quotation"`
	InvoiceID     int64        `json:"invoice_id"`
	InvoiceNumber string       `json:"invoice_number"`
	InvoiceTotal  money.Amount `json:"invoice_total"`
}
