package invoice

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/greenpass/greenpass/internal/platform/httpx"
	"github.com/greenpass/greenpass/internal/settings"
	"github.com/greenpass/greenpass/internal/shared"
)

// Handler serves the invoice endpoints.
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

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	due, err := httpx.Until("due_date", req.DueDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	snap, err := h.settings.Snapshot(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Create(r.Context(), CreateInput{
		Customer: shared.Customer{
			Name:    req.Customer.Name,
			Email:   req.Customer.Email,
			Phone:   req.Customer.Phone,
			Address: req.Customer.Address,
			TIN:     req.Customer.TIN,
		},
		Description:  req.Description,
		VoucherCount: req.VoucherCount,
		UnitPrice:    req.UnitPrice,
		DiscountRate: req.DiscountRate,
		DueDate:      due,
		CreatedBy:    httpx.ActorID(r),
	}, snap)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewResponse(inv, h.service.now()))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewResponse(inv, h.service.now()))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from, err := httpx.Date("from", query.Get("from"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := httpx.Until("to", query.Get("to"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, _ := strconv.Atoi(query.Get("limit"))
	items, err := h.service.List(r.Context(), ListFilter{
		Status:   Status(query.Get("status")),
		Customer: query.Get("customer"),
		From:     from,
		To:       to,
		Limit:    limit,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	now := h.service.now()
	out := make([]Response, 0, len(items))
	for _, inv := range items {
		out = append(out, NewResponse(inv, now))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req PaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	paidAt, err := httpx.Date("paid_at", req.PaidAt)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, payment, err := h.service.RecordPayment(r.Context(), id, PaymentInput{
		Amount:     req.Amount,
		Method:     PaymentMethod(req.Method),
		Reference:  req.Reference,
		Notes:      req.Notes,
		RecordedBy: httpx.ActorID(r),
		PaidAt:     paidAt,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"payment": newPaymentResponse(payment),
		"invoice": NewResponse(inv, h.service.now()),
	})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("invoice cancelled", slog.String("number", inv.Number), slog.Int64("actor_id", httpx.ActorID(r)))
	httpx.JSON(w, http.StatusOK, NewResponse(inv, h.service.now()))
}
