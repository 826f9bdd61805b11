package invoice

import (
	"fmt"
	"time"

	"github.com/greenpass/greenpass/internal/money"
	"github.com/greenpass/greenpass/internal/settings"
	"github.com/greenpass/greenpass/internal/shared"
)

// Status is derived from amounts and dates; it is never stored.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPartial   Status = "partial"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

// PaymentMethod enumerates accepted tender types.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "CASH"
	MethodCard         PaymentMethod = "CARD"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodEFTPOS       PaymentMethod = "EFTPOS"
	MethodCheque       PaymentMethod = "CHEQUE"
	MethodOther        PaymentMethod = "OTHER"
)

// PaymentMethods lists methods in display order.
var PaymentMethods = []PaymentMethod{MethodCash, MethodCard, MethodBankTransfer, MethodEFTPOS, MethodCheque, MethodOther}

// Valid reports whether m is a known method.
func (m PaymentMethod) Valid() bool {
	for _, known := range PaymentMethods {
		if m == known {
			return true
		}
	}
	return false
}

// MaxVouchersPerDocument caps the number of vouchers a single document may carry.
const MaxVouchersPerDocument = 1000

// Invoice is a billable document.
type Invoice struct {
	ID                  int64
	Number              string
	QuotationID         *int64
	Customer            shared.Customer
	Description         string
	VoucherCount        int
	UnitPrice           money.Amount
	Subtotal            money.Amount
	DiscountRate        money.Rate
	DiscountAmount      money.Amount
	GSTRate             money.Rate
	GSTAmount           money.Amount
	TotalAmount         money.Amount
	AmountPaid          money.Amount
	Currency            string
	PaymentTerms        string
	IssuedAt            time.Time
	DueDate             time.Time
	CancelledAt         *time.Time
	CancelReason        string
	VouchersGenerated   bool
	VouchersGeneratedAt *time.Time
	CreatedBy           int64
	CreatedAt           time.Time
	Payments            []Payment
}

// Payment is an append-only ledger entry against an invoice.
type Payment struct {
	ID         int64
	InvoiceID  int64
	Amount     money.Amount
	Method     PaymentMethod
	Reference  string
	Notes      string
	RecordedBy int64
	PaidAt     time.Time
	CreatedAt  time.Time
}

// Status derives the invoice status at now.
func (i Invoice) Status(now time.Time) Status {
	switch {
	case i.CancelledAt != nil:
		return StatusCancelled
	case i.AmountPaid >= i.TotalAmount:
		return StatusPaid
	case !i.DueDate.IsZero() && now.After(i.DueDate):
		return StatusOverdue
	case i.AmountPaid == 0:
		return StatusPending
	default:
		return StatusPartial
	}
}

// BalanceDue returns the outstanding amount.
func (i Invoice) BalanceDue() money.Amount {
	due, err := i.TotalAmount.Sub(i.AmountPaid)
	if err != nil {
		return 0
	}
	return due
}

// CheckVoucherEligibility explains whether vouchers may be generated now.
func (i Invoice) CheckVoucherEligibility() error {
	switch {
	case i.VouchersGenerated:
		return shared.NotEligible(i.ref(), shared.ReasonAlreadyGenerated)
	case i.CancelledAt != nil:
		return shared.NotEligible(i.ref(), shared.ReasonCancelled)
	case i.AmountPaid != i.TotalAmount:
		return shared.NotEligible(i.ref(), shared.ReasonNotPaid)
	}
	return nil
}

// CheckPayment validates a payment amount against the current balance.
func (i Invoice) CheckPayment(amount money.Amount) error {
	if amount <= 0 {
		return shared.Invalid("payment amount must be positive")
	}
	if i.CancelledAt != nil {
		return fmt.Errorf("%s is cancelled: %w", i.ref(), shared.ErrInvalidTransition)
	}
	if i.AmountPaid.Add(amount) > i.TotalAmount {
		return &shared.OverpaymentError{InvoiceID: i.ID, Attempted: amount, BalanceDue: i.BalanceDue()}
	}
	return nil
}

// CheckCancel validates that the invoice can still be cancelled.
func (i Invoice) CheckCancel() error {
	switch {
	case i.CancelledAt != nil:
		return fmt.Errorf("%s already cancelled: %w", i.ref(), shared.ErrInvalidTransition)
	case i.VouchersGenerated:
		return fmt.Errorf("%s has generated vouchers: %w", i.ref(), shared.ErrInvalidTransition)
	case i.AmountPaid > 0:
		return fmt.Errorf("%s has recorded payments: %w", i.ref(), shared.ErrInvalidTransition)
	}
	return nil
}

func (i Invoice) ref() string {
	if i.Number != "" {
		return "invoice " + i.Number
	}
	return fmt.Sprintf("invoice %d", i.ID)
}

// Totals is the priced breakdown of a document.
type Totals struct {
	Subtotal       money.Amount
	DiscountRate   money.Rate
	DiscountAmount money.Amount
	Net            money.Amount
	GSTRate        money.Rate
	GSTAmount      money.Amount
	Total          money.Amount
}

// ComputeTotals applies the discount then GST from the settings snapshot. The
// net amount is rounded once from the subtotal so that
// net == round(subtotal × (1 − discount)).
func ComputeTotals(subtotal money.Amount, discount money.Rate, snap settings.Snapshot) Totals {
	net := subtotal.Percentage(discount.Complement())
	gst := snap.GST(net)
	return Totals{
		Subtotal:       subtotal,
		DiscountRate:   discount,
		DiscountAmount: subtotal.Diff(net),
		Net:            net,
		GSTRate:        snap.EffectiveGSTRate(),
		GSTAmount:      gst,
		Total:          net.Add(gst),
	}
}

// NewInvoice is the insert payload for an invoice.
type NewInvoice struct {
	QuotationID  *int64
	Customer     shared.Customer
	Description  string
	VoucherCount int
	UnitPrice    money.Amount
	Totals       Totals
	Currency     string
	PaymentTerms string
	IssuedAt     time.Time
	DueDate      time.Time
	CreatedBy    int64
}

// ListFilter narrows invoice listings.
type ListFilter struct {
	Status   Status
	Customer string
	From     *time.Time
	To       *time.Time
	Limit    int
	// AsOf is the instant Status is evaluated at.
	AsOf time.Time
}

// MethodTotals sums payments per method.
type MethodTotals map[PaymentMethod]money.Amount

// Total sums all methods.
func (m MethodTotals) Total() money.Amount {
	var total money.Amount
	for _, v := range m {
		total = total.Add(v)
	}
	return total
}
