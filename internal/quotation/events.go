package quotation

import (
	"context"

	"github.com/google/uuid"

	"github.com/greenpass/greenpass/internal/shared"
)

// ConvertedEvent is emitted after a quotation becomes an invoice.
type ConvertedEvent struct {
	QuotationID     int64  `json:"quotation_id"`
	QuotationNumber string `json:"quotation_number"`
	InvoiceID       int64  `json:"invoice_id"`
	InvoiceNumber   string `json:"invoice_number"`
}

// Publisher hands committed quotation events to downstream collaborators.
type Publisher interface {
	QuotationConverted(ctx context.Context, evt ConvertedEvent) error
}

// ApprovalPort records and reads approval history.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error)
}

type noopPublisher struct{}

func (noopPublisher) QuotationConverted(context.Context, ConvertedEvent) error { return nil }
