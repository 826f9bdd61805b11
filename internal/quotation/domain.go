package quotation

import (
	"fmt"
	"time"

	"github.com/greenpass/greenpass/internal/money"
	"github.com/greenpass/greenpass/internal/shared"
)

// Status enumerates quotation lifecycle states.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusApproved  Status = "approved"
	StatusExpired   Status = "expired"
	StatusConverted Status = "converted"
)

// Quotation is a proposed voucher sale awaiting customer approval.
type Quotation struct {
	ID             int64           `json:"id"`
	Number         string          `json:"number"`
	Customer       shared.Customer `json:"customer"`
	Lines          []Line          `json:"lines"`
	DiscountRate   money.Rate      `json:"discount_rate"`
	Subtotal       money.Amount    `json:"subtotal"`
	DiscountAmount money.Amount    `json:"discount_amount"`
	GSTRate        money.Rate      `json:"gst_rate"`
	GSTAmount      money.Amount    `json:"gst_amount"`
	TotalAmount    money.Amount    `json:"total_amount"`
	Currency       string          `json:"currency"`
	Status         Status          `json:"status"`
	ValidUntil     time.Time       `json:"valid_until"`
	Notes          string          `json:"notes,omitempty"`
	CreatedBy      int64           `json:"created_by"`
	SentAt         *time.Time      `json:"sent_at,omitempty"`
	ApprovedAt     *time.Time      `json:"approved_at,omitempty"`
	ApprovedBy     *int64          `json:"approved_by,omitempty"`
	ConvertedAt    *time.Time      `json:"converted_at,omitempty"`
	InvoiceID      *int64          `json:"invoice_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Line is a priced quotation row; Quantity is a voucher count.
type Line struct {
	ID          int64        `json:"id"`
	QuotationID int64        `json:"quotation_id"`
	Description string       `json:"description"`
	Quantity    int64        `json:"quantity"`
	UnitPrice   money.Amount `json:"unit_price"`
	LineTotal   money.Amount `json:"line_total"`
	LineOrder   int          `json:"line_order"`
}

// Expired reports whether now is past valid_until.
func (q Quotation) Expired(now time.Time) bool {
	return now.After(q.ValidUntil)
}

// EffectiveStatus folds lazy expiry into the stored status. Expired is terminal.
func (q Quotation) EffectiveStatus(now time.Time) Status {
	switch q.Status {
	case StatusDraft, StatusSent, StatusApproved:
		if q.Expired(now) {
			return StatusExpired
		}
	}
	return q.Status
}

// VoucherCount sums line quantities.
func (q Quotation) VoucherCount() int {
	var n int64
	for _, l := range q.Lines {
		n += l.Quantity
	}
	return int(n)
}

// UnitPrice returns the shared line price, or the average when lines differ.
func (q Quotation) UnitPrice() money.Amount {
	if len(q.Lines) == 0 {
		return 0
	}
	first := q.Lines[0].UnitPrice
	for _, l := range q.Lines[1:] {
		if l.UnitPrice != first {
			return q.Subtotal / money.Amount(q.VoucherCount())
		}
	}
	return first
}

var transitions = map[Status]Status{
	StatusSent:      StatusDraft,
	StatusApproved:  StatusSent,
	StatusConverted: StatusApproved,
}

// CheckTransition validates moving to target at now.
func (q Quotation) CheckTransition(target Status, now time.Time) error {
	from, ok := transitions[target]
	if !ok {
		return fmt.Errorf("quotation %s: unknown target %s: %w", q.Number, target, shared.ErrInvalidTransition)
	}
	current := q.EffectiveStatus(now)
	if current == StatusExpired {
		return fmt.Errorf("quotation %s expired %s: %w: %w", q.Number, q.ValidUntil.Format(time.DateOnly),
			shared.ErrInvalidTransition, shared.ErrExpired)
	}
	if current != from {
		return fmt.Errorf("quotation %s is %s, cannot become %s: %w", q.Number, current, target, shared.ErrInvalidTransition)
	}
	return nil
}

// ListFilter narrows quotation listings.
type ListFilter struct {
	Status   Status
	Customer string
	Limit    int
	// AsOf is the instant expiry is evaluated at.
	AsOf time.Time
}
