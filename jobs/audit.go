package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/hibiken/asynq"

	"github.com/greenpass/greenpass/internal/batch"
	jobmetrics "github.com/greenpass/greenpass/internal/jobs"
	"github.com/greenpass/greenpass/internal/quotation"
	"github.com/greenpass/greenpass/internal/shared"
	"github.com/greenpass/greenpass/internal/voucher"
)

// AuditWriter persists audit records.
type AuditWriter interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AuditHandlers turns engine events into audit_logs rows.
type AuditHandlers struct {
	audit   AuditWriter
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewAuditHandlers wires the audit task handlers.
func NewAuditHandlers(audit AuditWriter, metrics *jobmetrics.Metrics, logger *slog.Logger) *AuditHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditHandlers{audit: audit, metrics: metrics, logger: logger}
}

// TaskHandlers lists the handlers for worker registration.
func (h *AuditHandlers) TaskHandlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskBatchGenerated, Handler: h.HandleBatchGenerated},
		{Type: TaskVoucherRedeemed, Handler: h.HandleVoucherRedeemed},
		{Type: TaskQuotationConverted, Handler: h.HandleQuotationConverted},
	}
}

// HandleBatchGenerated records a committed voucher batch.
func (h *AuditHandlers) HandleBatchGenerated(ctx context.Context, task *asynq.Task) error {
	tracker := h.metrics.Track(TaskBatchGenerated)
	var evt batch.GeneratedEvent
	if err := decode(task, &evt); err != nil {
		return tracker.End(err)
	}
	meta := map[string]any{
		"source":        string(evt.Source),
		"voucher_count": len(evt.VoucherCodes),
		"voucher_codes": evt.VoucherCodes,
	}
	if evt.InvoiceID != nil {
		meta["invoice_id"] = *evt.InvoiceID
	}
	if evt.SaleReference != "" {
		meta["sale_reference"] = evt.SaleReference
	}
	return tracker.End(h.record(ctx, shared.AuditLog{
		ActorID:  evt.GeneratedBy,
		Action:   "voucher.batch_generated",
		Entity:   "voucher_batch",
		EntityID: strconv.FormatInt(evt.BatchID, 10),
		Meta:     meta,
	}))
}

// HandleVoucherRedeemed records a redemption.
func (h *AuditHandlers) HandleVoucherRedeemed(ctx context.Context, task *asynq.Task) error {
	tracker := h.metrics.Track(TaskVoucherRedeemed)
	var evt voucher.RedeemedEvent
	if err := decode(task, &evt); err != nil {
		return tracker.End(err)
	}
	return tracker.End(h.record(ctx, shared.AuditLog{
		ActorID:  evt.ActorID,
		Action:   "voucher.redeemed",
		Entity:   "voucher",
		EntityID: evt.Code,
		Meta:     map[string]any{"voucher_id": evt.VoucherID},
		At:       evt.UsedAt,
	}))
}

// HandleQuotationConverted records a quotation conversion.
func (h *AuditHandlers) HandleQuotationConverted(ctx context.Context, task *asynq.Task) error {
	tracker := h.metrics.Track(TaskQuotationConverted)
	var evt quotation.ConvertedEvent
	if err := decode(task, &evt); err != nil {
		return tracker.End(err)
	}
	return tracker.End(h.record(ctx, shared.AuditLog{
		Action:   "quotation.converted",
		Entity:   "quotation",
		EntityID: evt.QuotationNumber,
		Meta: map[string]any{
			"quotation_id":   evt.QuotationID,
			"invoice_id":     evt.InvoiceID,
			"invoice_number": evt.InvoiceNumber,
		},
	}))
}

func (h *AuditHandlers) record(ctx context.Context, log shared.AuditLog) error {
	if err := h.audit.Record(ctx, log); err != nil {
		h.logger.Warn("audit write failed", slog.String("action", log.Action), slog.String("entity_id", log.EntityID), slog.Any("error", err))
		return err
	}
	h.metrics.AddAudited(log.Entity, 1)
	return nil
}

func decode(task *asynq.Task, target any) error {
	if err := json.Unmarshal(task.Payload(), target); err != nil {
		return fmt.Errorf("decode %s: %v: %w", task.Type(), err, asynq.SkipRetry)
	}
	return nil
}
