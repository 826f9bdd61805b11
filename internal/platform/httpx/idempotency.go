package httpx

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/greenpass/greenpass/internal/shared"
)

// IdempotencyHeader names the client supplied replay key.
const IdempotencyHeader = "Idempotency-Key"

// ReplayedHeader marks a response served from the idempotency store.
const ReplayedHeader = "Idempotent-Replayed"

// IdempotencyStore reserves keys and keeps completed responses.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key, fingerprint string) (shared.StoredResponse, bool, error)
	Complete(ctx context.Context, key, fingerprint string, resp shared.StoredResponse) error
	Release(ctx context.Context, key string) error
}

// Idempotency replays the stored response for POST requests that repeat an
// Idempotency-Key. Server errors release the key so the client can retry.
func Idempotency(store IdempotencyStore, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyHeader)
			if store == nil || key == "" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > 255 {
				Problem(w, http.StatusBadRequest, "Bad Request", "idempotency key too long")
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				Problem(w, http.StatusBadRequest, "Bad Request", "unreadable request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			fp := fingerprint(r, body)

			ctx := r.Context()
			stored, found, err := store.Reserve(ctx, key, fp)
			switch {
			case errors.Is(err, shared.ErrIdempotencyInFlight):
				Problem(w, http.StatusConflict, "Conflict", err.Error())
				return
			case errors.Is(err, shared.ErrIdempotencyMismatch):
				Problem(w, http.StatusUnprocessableEntity, "Unprocessable Entity", err.Error())
				return
			case err != nil:
				logger.Warn("idempotency store unavailable", slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			case found:
				if stored.ContentType != "" {
					w.Header().Set("Content-Type", stored.ContentType)
				}
				w.Header().Set(ReplayedHeader, "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Body)
				return
			}

			rec := &capture{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status >= http.StatusInternalServerError {
				if err := store.Release(context.WithoutCancel(ctx), key); err != nil {
					logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", err))
				}
				return
			}
			resp := shared.StoredResponse{
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			}
			if err := store.Complete(context.WithoutCancel(ctx), key, fp, resp); err != nil {
				logger.Warn("store idempotent response", slog.String("key", key), slog.Any("error", err))
			}
		})
	}
}

func fingerprint(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{0})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{0})
	h.Write([]byte(r.Header.Get(ActorHeader)))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type capture struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (c *capture) WriteHeader(status int) {
	if !c.wroteHeader {
		c.status = status
		c.wroteHeader = true
	}
	c.ResponseWriter.WriteHeader(status)
}

func (c *capture) Write(b []byte) (int, error) {
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
