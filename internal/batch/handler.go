package batch

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/greenpass/greenpass/internal/invoice"
	"github.com/greenpass/greenpass/internal/passport"
	"github.com/greenpass/greenpass/internal/platform/httpx"
	"github.com/greenpass/greenpass/internal/settings"
	"github.com/greenpass/greenpass/internal/shared"
)

// Handler serves batch generation endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	settings settings.Source
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, source settings.Source) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, settings: source}
}

// MountInvoiceRoutes adds the voucher sub-resource to an invoice router.
func (h *Handler) MountInvoiceRoutes(r chi.Router) {
	r.Post("/{id}/vouchers", h.generateFromInvoice)
	r.Get("/{id}/vouchers", h.forInvoice)
}

// MountSaleRoutes registers the direct sale endpoint.
func (h *Handler) MountSaleRoutes(r chi.Router) {
	r.Post("/", h.directSale)
}

// MountRoutes registers batch lookups.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}", h.show)
}

func (h *Handler) generateFromInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	snap, err := h.settings.Snapshot(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := h.service.GenerateFromInvoice(r.Context(), id, httpx.ActorID(r), snap)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewResponse(b, h.service.now()))
}

func (h *Handler) forInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := h.service.ForInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewResponse(b, h.service.now()))
}

func (h *Handler) directSale(w http.ResponseWriter, r *http.Request) {
	var req SaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	snap, err := h.settings.Snapshot(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale := DirectSale{
		Reference:    req.Reference,
		Count:        req.Count,
		FaceValue:    req.FaceValue,
		DiscountRate: req.DiscountRate,
		Method:       invoice.PaymentMethod(req.PaymentMethod),
		Collected:    req.AmountCollected,
		Customer:     shared.Customer{Name: req.CustomerName, Email: req.CustomerEmail, Phone: req.CustomerPhone},
		AgentID:      httpx.ActorID(r),
	}
	if len(req.Passport) > 0 {
		p := passport.FromFields(req.Passport)
		sale.Passport = &p
	}
	b, err := h.service.GenerateFromDirectSale(r.Context(), sale, snap)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewResponse(b, h.service.now()))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewResponse(b, h.service.now()))
}
