package shared

import (
	"errors"
	"fmt"

	"github.com/greenpass/greenpass/internal/money"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a malformed or incomplete request payload.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition indicates a state change not legal from the current state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrNotEligible indicates voucher generation preconditions are unmet.
	ErrNotEligible = errors.New("not eligible for voucher generation")
	// ErrOverpayment indicates a payment larger than the outstanding balance.
	ErrOverpayment = errors.New("payment amount exceeds invoice balance")
	// ErrAlreadyBound indicates a voucher already carries a passport.
	ErrAlreadyBound = errors.New("voucher already registered to a passport")
	// ErrAlreadyUsed indicates a voucher was redeemed before.
	ErrAlreadyUsed = errors.New("voucher already used")
	// ErrExpired indicates the document is past its validity window.
	ErrExpired = errors.New("expired")
	// ErrNotActive indicates a voucher that cannot be redeemed in its current state.
	ErrNotActive = errors.New("voucher not active")
	// ErrCodeSpaceExhausted indicates the code generator could not find a free code.
	ErrCodeSpaceExhausted = errors.New("voucher code space exhausted")
)

// EligibilityReason names why voucher generation was refused.
type EligibilityReason string

const (
	// ReasonNotPaid means the invoice still has a balance due.
	ReasonNotPaid EligibilityReason = "not_paid"
	// ReasonAlreadyGenerated means a batch already exists for the source.
	ReasonAlreadyGenerated EligibilityReason = "already_generated"
	// ReasonCancelled means the invoice was cancelled.
	ReasonCancelled EligibilityReason = "cancelled"
)

// NotEligibleError carries the reason a generation request was refused.
type NotEligibleError struct {
	Reason EligibilityReason
	Source string
}

func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Source, ErrNotEligible.Error(), e.Reason)
}

// Is matches ErrNotEligible.
func (e *NotEligibleError) Is(target error) bool { return target == ErrNotEligible }

// NotEligible builds a NotEligibleError.
func NotEligible(source string, reason EligibilityReason) error {
	return &NotEligibleError{Source: source, Reason: reason}
}

// EligibilityReasonOf extracts the reason code from err, if any.
func EligibilityReasonOf(err error) (EligibilityReason, bool) {
	var ne *NotEligibleError
	if errors.As(err, &ne) {
		return ne.Reason, true
	}
	return "", false
}

// StorageError wraps store failures that are not business rule violations.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "storage: " + e.Op + ": " + e.Err.Error() }

// Unwrap exposes the underlying driver error.
func (e *StorageError) Unwrap() error { return e.Err }

// Storage wraps err unless it already is a known business error.
func Storage(op string, err error) error {
	if err == nil || IsBusiness(err) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsBusiness reports whether err is one of the recoverable rule violations.
func IsBusiness(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrValidation, ErrInvalidTransition, ErrNotEligible, ErrOverpayment,
		ErrAlreadyBound, ErrAlreadyUsed, ErrExpired, ErrNotActive, ErrCodeSpaceExhausted,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Invalid wraps a validation message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// OverpaymentError reports the balance that was exceeded.
type OverpaymentError struct {
	InvoiceID  int64
	Attempted  money.Amount
	BalanceDue money.Amount
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("invoice %d: %s (attempted %s, balance due %s)", e.InvoiceID, ErrOverpayment.Error(), e.Attempted, e.BalanceDue)
}

// Is matches ErrOverpayment.
func (e *OverpaymentError) Is(target error) bool { return target == ErrOverpayment }
