package voucher

import (
	"fmt"
	"time"

	"github.com/greenpass/greenpass/internal/money"
	"github.com/greenpass/greenpass/internal/passport"
	"github.com/greenpass/greenpass/internal/shared"
)

// Status enumerates voucher lifecycle states.
type Status string

const (
	StatusPendingPassport Status = "pending_passport"
	StatusActive          Status = "active"
	StatusUsed            Status = "used"
	StatusExpired         Status = "expired"
	StatusVoid            Status = "void"
)

// Kind distinguishes walk-up vouchers from bulk corporate ones.
type Kind string

const (
	KindIndividual Kind = "individual"
	KindCorporate  Kind = "corporate"
)

// Voucher is a single-use exit credential.
type Voucher struct {
	ID           int64
	Code         string
	BatchID      *int64
	Kind         Kind
	FaceValue    money.Amount
	Currency     string
	Status       Status
	Passport     *passport.Passport
	ValidFrom    time.Time
	ValidUntil   time.Time
	RegisteredAt *time.Time
	UsedAt       *time.Time
	UsedBy       int64
	VoidedAt     *time.Time
	VoidReason   string
	CreatedAt    time.Time
}

// NewVoucher is the insert payload for a voucher.
type NewVoucher struct {
	Code       string
	BatchID    *int64
	Kind       Kind
	FaceValue  money.Amount
	Currency   string
	Passport   *passport.Passport
	ValidFrom  time.Time
	ValidUntil time.Time
}

// InitialStatus is active when the voucher is created with passport data.
func (n NewVoucher) InitialStatus() Status {
	if n.Passport != nil {
		return StatusActive
	}
	return StatusPendingPassport
}

// Expired reports whether now is past the validity window.
func (v Voucher) Expired(now time.Time) bool {
	return now.After(v.ValidUntil)
}

// EffectiveStatus folds lazy expiry into the stored status.
func (v Voucher) EffectiveStatus(now time.Time) Status {
	switch v.Status {
	case StatusPendingPassport, StatusActive:
		if v.Expired(now) {
			return StatusExpired
		}
	}
	return v.Status
}

// CanBind checks whether a passport may be bound at now.
func (v Voucher) CanBind(now time.Time) error {
	switch {
	case v.Passport != nil || v.Status == StatusActive || v.Status == StatusUsed:
		return fmt.Errorf("voucher %s: %w", v.Code, shared.ErrAlreadyBound)
	case v.Status == StatusVoid:
		return fmt.Errorf("voucher %s is void: %w", v.Code, shared.ErrNotActive)
	case v.Expired(now):
		return fmt.Errorf("voucher %s expired %s: %w", v.Code, v.ValidUntil.Format(time.DateOnly), shared.ErrExpired)
	case v.Status != StatusPendingPassport:
		return fmt.Errorf("voucher %s is %s: %w", v.Code, v.Status, shared.ErrInvalidTransition)
	}
	return nil
}

// CanRedeem checks whether the voucher may be marked used at now.
func (v Voucher) CanRedeem(now time.Time) error {
	switch v.Status {
	case StatusUsed:
		return fmt.Errorf("voucher %s: %w", v.Code, shared.ErrAlreadyUsed)
	case StatusPendingPassport, StatusVoid:
		return fmt.Errorf("voucher %s is %s: %w", v.Code, v.Status, shared.ErrNotActive)
	case StatusActive:
		if v.Expired(now) {
			return fmt.Errorf("voucher %s expired %s: %w", v.Code, v.ValidUntil.Format(time.DateOnly), shared.ErrExpired)
		}
		return nil
	}
	return fmt.Errorf("voucher %s is %s: %w", v.Code, v.Status, shared.ErrNotActive)
}

// CanVoid checks whether the voucher may be voided.
func (v Voucher) CanVoid() error {
	switch v.Status {
	case StatusPendingPassport, StatusActive:
		return nil
	case StatusUsed:
		return fmt.Errorf("voucher %s: %w", v.Code, shared.ErrAlreadyUsed)
	}
	return fmt.Errorf("voucher %s is %s: %w", v.Code, v.Status, shared.ErrInvalidTransition)
}

// Check is the outcome of a read-only scanner lookup.
type Check string

const (
	CheckValid           Check = "valid"
	CheckUsed            Check = "used"
	CheckExpired         Check = "expired"
	CheckPendingPassport Check = "pending_passport"
	CheckVoid            Check = "void"
	CheckNotFound        Check = "not_found"
)

// Validation reports whether a voucher can be accepted at the gate.
type Validation struct {
	Code    string   `json:"code"`
	Result  Check    `json:"result"`
	Valid   bool     `json:"valid"`
	Message string   `json:"message"`
	Voucher *Voucher `json:"-"`
}

// Inspect classifies the voucher without changing it.
func Inspect(v Voucher, now time.Time) Validation {
	out := Validation{Code: v.Code, Voucher: &v}
	switch v.EffectiveStatus(now) {
	case StatusActive:
		out.Result, out.Valid, out.Message = CheckValid, true, "Voucher is valid"
	case StatusUsed:
		msg := "Voucher has already been used"
		if v.UsedAt != nil {
			msg += " on " + v.UsedAt.Format("2006-01-02 15:04")
		}
		out.Result, out.Message = CheckUsed, msg
	case StatusExpired:
		out.Result, out.Message = CheckExpired, "Voucher expired on "+v.ValidUntil.Format(time.DateOnly)
	case StatusPendingPassport:
		out.Result, out.Message = CheckPendingPassport, "Voucher has no passport registered"
	case StatusVoid:
		out.Result, out.Message = CheckVoid, "Voucher has been voided"
	}
	return out
}
