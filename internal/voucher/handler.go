package voucher

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/greenpass/greenpass/internal/passport"
	"github.com/greenpass/greenpass/internal/platform/httpx"
	"github.com/greenpass/greenpass/internal/shared"
)

// Handler serves the voucher endpoints.
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

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewResponse(v, h.service.now()))
}

func (h *Handler) byPassport(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListByPassport(r.Context(), r.URL.Query().Get("passport"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": NewResponses(items, h.service.now())})
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Validate(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	body := map[string]any{
		"voucher_code": res.Code,
		"result":       res.Result,
		"valid":        res.Valid,
		"message":      res.Message,
	}
	if res.Voucher != nil {
		body["voucher"] = NewResponse(*res.Voucher, h.service.now())
	}
	httpx.JSON(w, http.StatusOK, body)
}

// registerPassport accepts the loosely keyed passport payload used by the
// public registration form and scanners.
func (h *Handler) registerPassport(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		httpx.RespondError(w, shared.Invalid("malformed request body: %v", err))
		return
	}
	v, err := h.service.BindPassport(r.Context(), chi.URLParam(r, "code"), passport.FromFields(fields))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewResponse(v, h.service.now()))
}

func (h *Handler) redeem(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.Redeem(r.Context(), chi.URLParam(r, "code"), httpx.ActorID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewResponse(v, h.service.now()))
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	var req VoidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.Void(r.Context(), chi.URLParam(r, "code"), req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("voucher void requested", slog.String("code", v.Code), slog.Int64("actor_id", httpx.ActorID(r)))
	httpx.JSON(w, http.StatusOK, NewResponse(v, h.service.now()))
}
