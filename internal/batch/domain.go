package batch

import (
	"time"

	"github.com/greenpass/greenpass/internal/invoice"
	"github.com/greenpass/greenpass/internal/money"
	"github.com/greenpass/greenpass/internal/passport"
	"github.com/greenpass/greenpass/internal/shared"
	"github.com/greenpass/greenpass/internal/voucher"
)

// Source identifies what paid for a batch.
type Source string

const (
	SourceInvoice    Source = "invoice"
	SourceDirectSale Source = "direct_sale"
)

// Batch is one issuance of vouchers.
type Batch struct {
	ID              int64
	Source          Source
	InvoiceID       *int64
	SaleReference   string
	Kind            voucher.Kind
	Customer        shared.Customer
	Count           int
	UnitPrice       money.Amount
	DiscountRate    money.Rate
	DiscountAmount  money.Amount
	GSTAmount       money.Amount
	Total           money.Amount
	Currency        string
	PaymentMethod   invoice.PaymentMethod
	AmountCollected money.Amount
	ChangeGiven     money.Amount
	GeneratedBy     int64
	GeneratedAt     time.Time
	Vouchers        []voucher.Voucher
}

// Codes lists the voucher codes in issue order.
func (b Batch) Codes() []string {
	codes := make([]string, 0, len(b.Vouchers))
	for _, v := range b.Vouchers {
		codes = append(codes, v.Code)
	}
	return codes
}

// DirectSale is a counter sale paid on the spot.
type DirectSale struct {
	// Reference is the client supplied sale key; a repeated reference
	// returns ReasonAlreadyGenerated instead of issuing twice.
	Reference    string
	Count        int
	FaceValue    money.Amount
	DiscountRate money.Rate
	Method       invoice.PaymentMethod
	Collected    money.Amount
	Customer     shared.Customer
	Passport     *passport.Passport
	AgentID      int64
}

// Change returns collected minus total, or a validation error when short.
func Change(total, collected money.Amount) (money.Amount, error) {
	change, err := collected.Sub(total)
	if err != nil {
		return 0, shared.Invalid("amount collected %s is less than total %s", collected, total)
	}
	return change, nil
}
