package purchase

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"github.com/greenpass/greenpass/internal/passport"
	"github.com/greenpass/greenpass/internal/platform/httpx"
	"github.com/greenpass/greenpass/internal/settings"
	"github.com/greenpass/greenpass/internal/shared"
)

const maxWebhookBody = 64 << 10

// Handler serves the public checkout endpoints and the gateway webhook.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	settings settings.Source
	secret   []byte
}

// NewHandler builds a Handler. Webhooks are refused while secret is empty.
func NewHandler(logger *slog.Logger, service *Service, source settings.Source, secret string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, settings: source, secret: []byte(secret)}
}

// MountRoutes registers the purchase endpoints. Customer facing routes are
// limited per IP; the webhook is authenticated by signature instead.
func (h *Handler) MountRoutes(r chi.Router, publicPerMinute int) {
	r.Post("/webhook", h.webhook)
	r.Group(func(r chi.Router) {
		if publicPerMinute > 0 {
			r.Use(httprate.LimitByIP(publicPerMinute, time.Minute))
		}
		r.Post("/", h.create)
		r.Get("/{id}", h.show)
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	snap, err := h.settings.Snapshot(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := CreateInput{
		Customer: shared.Customer{Name: req.Name, Email: req.Email, Phone: req.Phone},
		Quantity: req.Quantity,
	}
	if len(req.Passport) > 0 {
		p := passport.FromFields(req.Passport)
		in.Passport = &p
	}
	sess, err := h.service.Create(r.Context(), in, snap)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewResponse(sess, nil, h.service.now()))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.Invalid("invalid id"))
		return
	}
	sess, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if sess.Status != StatusCompleted {
		httpx.JSON(w, http.StatusOK, NewResponse(sess, nil, h.service.now()))
		return
	}
	b, err := h.service.Batch(r.Context(), sess)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewResponse(sess, &b, h.service.now()))
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	if len(h.secret) == 0 {
		httpx.Problem(w, http.StatusServiceUnavailable, "Webhook Disabled", "payment webhook secret is not configured")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		httpx.RespondError(w, shared.Invalid("unreadable webhook body"))
		return
	}
	if !Verify(h.secret, body, r.Header.Get(SignatureHeader)) {
		h.logger.Warn("webhook signature rejected", slog.String("remote", r.RemoteAddr))
		httpx.Problem(w, http.StatusUnauthorized, "Invalid Signature", "webhook signature does not match")
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	var evt WebhookEvent
	if err := httpx.DecodeJSON(r, &evt); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !paid(evt.Status) {
		h.logger.Info("webhook ignored", slog.String("session", evt.SessionID), slog.String("status", evt.Status))
		httpx.JSON(w, http.StatusOK, map[string]any{"received": true, "completed": false})
		return
	}
	id, err := uuid.Parse(evt.SessionID)
	if err != nil {
		httpx.RespondError(w, shared.Invalid("invalid session_id"))
		return
	}
	snap, err := h.settings.Snapshot(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sess, b, err := h.service.Complete(r.Context(), id, evt.GatewayRef, snap)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"received":   true,
		"completed":  true,
		"session_id": sess.ID.String(),
		"batch_id":   b.ID,
	})
}
