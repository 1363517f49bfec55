package bidding

import (
	"errors"
	"net/http"

	"github.com/atmx/auction-engine/internal/auction"
)

var (
	ErrBusy            = errors.New("bidding: auction is busy, retry")
	ErrMissingCaller   = errors.New("bidding: missing or invalid X-Caller-Address header")
	ErrArchiveDisabled = errors.New("bidding: archiving is not configured")
	ErrCustodyDisabled = errors.New("bidding: in-process custody is not enabled")
)

// statusFor maps engine and service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrMissingCaller):
		return http.StatusUnauthorized
	case errors.Is(err, auction.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, auction.ErrInvalidAmount),
		errors.Is(err, auction.ErrZeroAddress):
		return http.StatusBadRequest
	case errors.Is(err, auction.ErrBelowFloor),
		errors.Is(err, auction.ErrIncrementTooLow),
		errors.Is(err, auction.ErrInsufficientAuthorization):
		return http.StatusUnprocessableEntity
	case errors.Is(err, auction.ErrStateClosed),
		errors.Is(err, auction.ErrDurationNotElapsed),
		errors.Is(err, auction.ErrNoEligibleWinner),
		errors.Is(err, auction.ErrAlreadyFinalized),
		errors.Is(err, auction.ErrNotFinalized),
		errors.Is(err, auction.ErrAlreadyWithdrawn),
		errors.Is(err, auction.ErrNothingToWithdraw),
		errors.Is(err, auction.ErrPaused),
		errors.Is(err, auction.ErrNotPaused),
		errors.Is(err, auction.ErrItemNotEscrowed):
		return http.StatusConflict
	case errors.Is(err, ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrArchiveDisabled), errors.Is(err, ErrCustodyDisabled):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// reason is the metrics label for a rejected bid.
func reason(err error) string {
	switch {
	case errors.Is(err, auction.ErrBelowFloor):
		return "below_floor"
	case errors.Is(err, auction.ErrIncrementTooLow):
		return "increment_too_low"
	case errors.Is(err, auction.ErrInsufficientAuthorization):
		return "insufficient_authorization"
	case errors.Is(err, auction.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, auction.ErrPaused):
		return "paused"
	case errors.Is(err, auction.ErrStateClosed):
		return "closed"
	case errors.Is(err, ErrBusy):
		return "busy"
	default:
		return "other"
	}
}
