// Package purchase tracks online checkout sessions. A session is priced when
// the customer starts checkout and turns into a voucher batch once the payment
// gateway confirms the charge.
package purchase

import (
	"time"

	"github.com/google/uuid"

	"github.com/greenpass/greenpass/internal/money"
	"github.com/greenpass/greenpass/internal/passport"
	"github.com/greenpass/greenpass/internal/shared"
)

// Status of a purchase session. Expired is never stored; it is derived from
// expires_at while the session is still pending.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
)

// ReferencePrefix marks batches issued for an online purchase.
const ReferencePrefix = "ONLINE-"

// DefaultTTL is how long a customer has to finish paying.
const DefaultTTL = 30 * time.Minute

// Session is a priced online checkout.
type Session struct {
	ID          uuid.UUID
	Customer    shared.Customer
	Passport    *passport.Passport
	Quantity    int
	UnitPrice   money.Amount
	Total       money.Amount
	Currency    string
	Status      Status
	GatewayRef  string
	BatchID     *int64
	ExpiresAt   time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// EffectiveStatus folds lazy expiry into the stored status.
func (s Session) EffectiveStatus(now time.Time) Status {
	if s.Status == StatusPending && now.After(s.ExpiresAt) {
		return StatusExpired
	}
	return s.Status
}

// Reference is the sale reference the session's batch is issued under.
func (s Session) Reference() string {
	return ReferencePrefix + s.ID.String()
}
