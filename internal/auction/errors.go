package auction

import (
	"errors"

	"github.com/atmx/auction-engine/internal/increment"
)

// All errors are local validation failures and are not retryable: the caller
// must change its input or wait. A rejected operation has no effect.
var (
	// ErrStateClosed is returned for bids after finalization and for phase
	// advancement out of the last phase.
	ErrStateClosed = errors.New("auction: bidding closed")

	// ErrBelowFloor and ErrIncrementTooLow come from the pricing rule so that
	// errors.Is works regardless of which layer reports them.
	ErrBelowFloor      = increment.ErrBelowFloor
	ErrIncrementTooLow = increment.ErrIncrementTooLow
	ErrInvalidAmount   = increment.ErrInvalidAmount

	// ErrInsufficientAuthorization is returned when moving the payment asset
	// into custody fails, typically for lack of allowance or balance.
	ErrInsufficientAuthorization = errors.New("auction: payment transfer not authorized")

	ErrDurationNotElapsed = errors.New("auction: phase minimum duration not elapsed")
	ErrNoEligibleWinner   = errors.New("auction: no eligible winner")
	ErrAlreadyFinalized   = errors.New("auction: already finalized")
	ErrNotFinalized       = errors.New("auction: not finalized")
	ErrAlreadyWithdrawn   = errors.New("auction: proceeds already withdrawn")
	ErrUnauthorized       = errors.New("auction: caller is not the administrator")
	ErrNothingToWithdraw  = errors.New("auction: nothing to withdraw")
	ErrPaused             = errors.New("auction: paused")
	ErrNotPaused          = errors.New("auction: not paused")
	ErrZeroAddress        = errors.New("auction: zero address")
	ErrInvalidConfig      = errors.New("auction: invalid configuration")
	ErrItemNotEscrowed    = errors.New("auction: engine does not hold the item")
)
