package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/greenpass/greenpass/internal/batch"
	"github.com/greenpass/greenpass/internal/invoice"
	"github.com/greenpass/greenpass/internal/observability"
	"github.com/greenpass/greenpass/internal/platform/httpx"
	"github.com/greenpass/greenpass/internal/purchase"
	"github.com/greenpass/greenpass/internal/quotation"
	"github.com/greenpass/greenpass/internal/reconciliation"
	"github.com/greenpass/greenpass/internal/voucher"
	"github.com/greenpass/greenpass/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger      *slog.Logger
	Config      *Config
	Metrics     *observability.Metrics
	Idempotency httpx.IdempotencyStore
	// Ready reports backing store health for /healthz; nil means always ready.
	Ready func(context.Context) error

	QuotationHandler      *quotation.Handler
	InvoiceHandler        *invoice.Handler
	BatchHandler          *batch.Handler
	VoucherHandler        *voucher.Handler
	PurchaseHandler       *purchase.Handler
	ReconciliationHandler *reconciliation.Handler
	JobHandler            *jobs.Handler
}

// NewRouter constructs the chi.Router with GreenPass defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:      params.Logger,
		Config:      params.Config,
		Metrics:     params.Metrics,
		Idempotency: params.Idempotency,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Ready != nil {
			if err := params.Ready(r.Context()); err != nil {
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	publicRPM := 0
	if params.Config != nil {
		publicRPM = params.Config.PublicRateLimitRPM
	}

	r.Route("/api", func(r chi.Router) {
		if params.QuotationHandler != nil {
			r.Route("/quotations", params.QuotationHandler.MountRoutes)
		}
		r.Route("/invoices", func(r chi.Router) {
			if params.InvoiceHandler != nil {
				params.InvoiceHandler.MountRoutes(r)
			}
			if params.BatchHandler != nil {
				params.BatchHandler.MountInvoiceRoutes(r)
			}
		})
		if params.BatchHandler != nil {
			r.Route("/sales", params.BatchHandler.MountSaleRoutes)
			r.Route("/batches", params.BatchHandler.MountRoutes)
		}
		if params.VoucherHandler != nil {
			r.Route("/vouchers", func(r chi.Router) {
				params.VoucherHandler.MountRoutes(r, publicRPM)
			})
		}
		if params.PurchaseHandler != nil {
			r.Route("/purchases", func(r chi.Router) {
				params.PurchaseHandler.MountRoutes(r, publicRPM)
			})
		}
		if params.ReconciliationHandler != nil {
			r.Route("/reconciliations", params.ReconciliationHandler.MountRoutes)
		}
	})

	return r
}
