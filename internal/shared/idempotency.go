package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrIdempotencyInFlight indicates the key is held by a request still running.
	ErrIdempotencyInFlight = errors.New("idempotent request still in progress")
	// ErrIdempotencyMismatch indicates the key was reused with a different request.
	ErrIdempotencyMismatch = errors.New("idempotency key reused with a different request")
)

const (
	idempotencyPending = "pending"
	idempotencyDone    = "done"
)

// StoredResponse is a completed response kept for replay.
type StoredResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

type idempotencyEntry struct {
	State       string          `json:"state"`
	Fingerprint string          `json:"fingerprint"`
	Response    *StoredResponse `json:"response,omitempty"`
}

// IdempotencyStore keeps Idempotency-Key reservations and responses in Redis.
type IdempotencyStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewIdempotencyStore constructs the store. Entries expire after ttl.
func NewIdempotencyStore(client redis.UniversalClient, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{client: client, ttl: ttl, prefix: "greenpass:idem:"}
}

// Reserve claims key for a request with the given fingerprint. When the key
// already holds a completed response for the same request it is returned with
// found=true.
func (s *IdempotencyStore) Reserve(ctx context.Context, key, fingerprint string) (StoredResponse, bool, error) {
	if s == nil {
		return StoredResponse{}, false, errors.New("idempotency store not initialised")
	}
	if key == "" {
		return StoredResponse{}, false, errors.New("idempotency key required")
	}
	pending, err := json.Marshal(idempotencyEntry{State: idempotencyPending, Fingerprint: fingerprint})
	if err != nil {
		return StoredResponse{}, false, err
	}
	ok, err := s.client.SetNX(ctx, s.prefix+key, pending, s.ttl).Result()
	if err != nil {
		return StoredResponse{}, false, fmt.Errorf("idempotency reserve: %w", err)
	}
	if ok {
		return StoredResponse{}, false, nil
	}

	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return s.Reserve(ctx, key, fingerprint)
	}
	if err != nil {
		return StoredResponse{}, false, fmt.Errorf("idempotency load: %w", err)
	}
	var entry idempotencyEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return StoredResponse{}, false, fmt.Errorf("idempotency decode: %w", err)
	}
	switch {
	case entry.Fingerprint != fingerprint:
		return StoredResponse{}, false, ErrIdempotencyMismatch
	case entry.State != idempotencyDone || entry.Response == nil:
		return StoredResponse{}, false, ErrIdempotencyInFlight
	}
	return *entry.Response, true, nil
}

// Complete stores the response for a reserved key.
func (s *IdempotencyStore) Complete(ctx context.Context, key, fingerprint string, resp StoredResponse) error {
	if s == nil {
		return nil
	}
	raw, err := json.Marshal(idempotencyEntry{State: idempotencyDone, Fingerprint: fingerprint, Response: &resp})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+key, raw, s.ttl).Err()
}

// Release drops a reservation so the request can be retried.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	return s.client.Del(ctx, s.prefix+key).Err()
}
