package reconciliation

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/greenpass/greenpass/internal/money"
	"github.com/greenpass/greenpass/internal/platform/httpx"
	"github.com/greenpass/greenpass/internal/shared"
)

// CountRequest is the body for preview and submit.
type CountRequest struct {
	AgentID      int64               `json:"agent_id" validate:"gte=0"`
	From         string              `json:"period_start" validate:"required"`
	To           string              `json:"period_end" validate:"required"`
	OpeningFloat money.Amount        `json:"opening_float" validate:"gte=0"`
	Counts       []DenominationCount `json:"counts" validate:"dive"`
	Notes        string              `json:"notes" validate:"max=2000"`
}

// ReviewRequest is the body for POST /reconciliations/{id}/review.
type ReviewRequest struct {
	Decision Decision `json:"decision" validate:"required,oneof=approve reject"`
	Notes    string   `json:"notes" validate:"max=2000"`
}

// Handler serves the reconciliation endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/preview", h.preview)
	r.Post("/", h.submit)
	r.Get("/{id}", h.show)
	r.Post("/{id}/review", h.review)
}

// input decodes a count request. The submitting agent defaults to the
// caller, and a bare end date includes that whole day.
func (h *Handler) input(r *http.Request) (PrepareInput, error) {
	var req CountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return PrepareInput{}, err
	}
	from, err := httpx.Date("period_start", req.From)
	if err != nil {
		return PrepareInput{}, err
	}
	to, err := httpx.Date("period_end", req.To)
	if err != nil {
		return PrepareInput{}, err
	}
	end := *to
	if len(req.To) == len(time.DateOnly) {
		end = end.AddDate(0, 0, 1)
	}
	agent := req.AgentID
	if agent == 0 {
		agent = httpx.ActorID(r)
	}
	if agent == 0 {
		return PrepareInput{}, shared.Invalid("agent_id is required")
	}
	return PrepareInput{
		AgentID:      agent,
		From:         *from,
		To:           end,
		OpeningFloat: req.OpeningFloat,
		Counts:       req.Counts,
		Notes:        req.Notes,
	}, nil
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	in, err := h.input(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.Prepare(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	in, err := h.input(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.Submit(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ReviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.Review(r.Context(), id, req.Decision, httpx.ActorID(r), req.Notes)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}
