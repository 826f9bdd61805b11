// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/greenpass/greenpass/internal/shared"
)

var reasonDetail = map[shared.EligibilityReason]string{
	shared.ReasonNotPaid:   "Invoice must be fully paid before generating vouchers",
	shared.ReasonCancelled: "Invoice has been cancelled",
}

func notEligibleDetail(e *shared.NotEligibleError) string {
	if e.Reason == shared.ReasonAlreadyGenerated {
		if e.Source == "" {
			return "Vouchers have already been generated"
		}
		return "Vouchers have already been generated for " + e.Source
	}
	return reasonDetail[e.Reason]
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var (
		notEligible *shared.NotEligibleError
		overpaid    *shared.OverpaymentError
	)
	switch {
	case errors.As(err, &notEligible):
		detail := notEligibleDetail(notEligible)
		if detail == "" {
			detail = err.Error()
		}
		JSON(w, http.StatusConflict, ProblemDetail{
			Type:   "not_eligible",
			Title:  "Not Eligible",
			Status: http.StatusConflict,
			Detail: detail,
			Reason: string(notEligible.Reason),
		})
	case errors.As(err, &overpaid):
		JSON(w, http.StatusUnprocessableEntity, ProblemDetail{
			Type:       "overpayment",
			Title:      "Overpayment",
			Status:     http.StatusUnprocessableEntity,
			Detail:     "Payment amount exceeds invoice balance",
			BalanceDue: overpaid.BalanceDue.String(),
		})
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrAlreadyUsed):
		Problem(w, http.StatusConflict, "Already Used", "Voucher has already been used")
	case errors.Is(err, shared.ErrAlreadyBound):
		Problem(w, http.StatusConflict, "Already Registered", "Voucher already has passport details")
	case errors.Is(err, shared.ErrExpired):
		Problem(w, http.StatusGone, "Expired", err.Error())
	case errors.Is(err, shared.ErrNotActive):
		Problem(w, http.StatusConflict, "Not Active", err.Error())
	case errors.Is(err, shared.ErrInvalidTransition):
		Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, shared.ErrCodeSpaceExhausted):
		Problem(w, http.StatusServiceUnavailable, "Code Space Exhausted", "Unable to allocate voucher codes, retry later")
	default:
		slog.Default().Error("request failed", slog.Any("error", err))
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
