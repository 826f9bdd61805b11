package quotation

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/greenpass/greenpass/internal/platform/httpx"
	"github.com/greenpass/greenpass/internal/settings"
)

// Handler serves the quotation endpoints.
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
	validUntil, err := httpx.Until("valid_until", req.ValidUntil)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	snap, err := h.settings.Snapshot(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	lines := make([]LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, LineInput{Description: l.Description, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	q, err := h.service.Create(r.Context(), CreateInput{
		Customer:     req.Customer.Customer(),
		Lines:        lines,
		DiscountRate: req.DiscountRate,
		ValidUntil:   validUntil,
		Notes:        req.Notes,
		CreatedBy:    httpx.ActorID(r),
	}, snap)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, h.present(q))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.present(q))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	items, err := h.service.List(r.Context(), ListFilter{
		Status:   Status(query.Get("status")),
		Customer: query.Get("customer"),
		Limit:    limit,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]Quotation, 0, len(items))
	for _, q := range items {
		out = append(out, h.present(q))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.MarkSent)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Approve)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id, actorID int64) (Quotation, error)) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := apply(r.Context(), id, httpx.ActorID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.present(q))
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
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
	q, inv, err := h.service.ConvertToInvoice(r.Context(), id, httpx.ActorID(r), snap)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ConvertResponse{
		Quotation:     h.present(q),
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.Number,
		InvoiceTotal:  inv.TotalAmount,
	})
}

func (h *Handler) approvals(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	logs, err := h.service.Approvals(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	type entry struct {
		ActorID int64     `json:"actor_id"`
		Action  string    `json:"action"`
		At      time.Time `json:"at"`
	}
	out := make([]entry, 0, len(logs))
	for _, l := range logs {
		out = append(out, entry{ActorID: l.ActorID, Action: string(l.Action), At: l.At})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// present reports the lazily evaluated status.
func (h *Handler) present(q Quotation) Quotation {
	q.Status = q.EffectiveStatus(h.service.now())
	return q
}
