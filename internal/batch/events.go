package batch

import "context"

// GeneratedEvent is emitted once a batch has committed.
type GeneratedEvent struct {
	BatchID       int64    `json:"batch_id"`
	Source        Source   `json:"source"`
	InvoiceID     *int64   `json:"invoice_id,omitempty"`
	SaleReference string   `json:"sale_reference,omitempty"`
	VoucherCodes  []string `json:"voucher_codes"`
	GeneratedBy   int64    `json:"generated_by,omitempty"`
}

// Publisher hands committed batch events to downstream collaborators.
type Publisher interface {
	BatchGenerated(ctx context.Context, evt GeneratedEvent) error
}

// Recorder receives batch telemetry.
type Recorder interface {
	BatchGenerated(source string, vouchers int)
	BatchRejected(reason string)
}

type noopPublisher struct{}

func (noopPublisher) BatchGenerated(context.Context, GeneratedEvent) error { return nil }

type noopRecorder struct{}

func (noopRecorder) BatchGenerated(string, int) {}
func (noopRecorder) BatchRejected(string)       {}
