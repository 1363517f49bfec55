// Package increment implements the pricing rules of a continuous clearing
// auction: the floor price every cumulative total must meet, and the
// minimum-increment rule a challenger must clear to take the lead.
//
// Amounts are whole base units of the payment asset; fractional amounts are
// rejected rather than rounded.
package increment

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidRule is returned when a rule is constructed with a negative
	// floor or percentage, or a fractional floor.
	ErrInvalidRule = errors.New("increment: floor and percent must be non-negative whole numbers")

	// ErrInvalidAmount is returned for amounts that are not strictly
	// positive whole numbers.
	ErrInvalidAmount = errors.New("increment: amount must be a positive whole number")

	// ErrBelowFloor is returned when a cumulative total is under the floor price.
	ErrBelowFloor = errors.New("increment: total below floor price")

	// ErrIncrementTooLow is returned when a challenger's total does not
	// clear the current high bid by the required percentage.
	ErrIncrementTooLow = errors.New("increment: total below minimum increment")

	hundred = decimal.NewFromInt(100)
)

// Rule holds the immutable pricing parameters of one auction.
// It is stateless; the current high bid is passed in.
type Rule struct {
	floor   decimal.Decimal
	percent int64
	enforce bool
}

// NewRule creates a pricing rule. percent is the minimum raise over the
// current high bid, in whole percent, applied only when enforce is true.
func NewRule(floor decimal.Decimal, percent int64, enforce bool) (*Rule, error) {
	if floor.IsNegative() || !floor.IsInteger() || percent < 0 {
		return nil, ErrInvalidRule
	}
	return &Rule{floor: floor, percent: percent, enforce: enforce}, nil
}

// Floor returns the floor price.
func (r *Rule) Floor() decimal.Decimal { return r.floor }

// Percent returns the minimum-increment percentage.
func (r *Rule) Percent() int64 { return r.percent }

// Enforced reports whether the minimum-increment rule is active.
func (r *Rule) Enforced() bool { return r.enforce }

// MinimumRaise returns high * percent / 100, truncated toward zero.
func (r *Rule) MinimumRaise(high decimal.Decimal) decimal.Decimal {
	if high.Sign() <= 0 || r.percent == 0 {
		return decimal.Zero
	}
	return high.Mul(decimal.NewFromInt(r.percent)).Div(hundred).Truncate(0)
}

// MinimumNextTotal returns the smallest cumulative total a challenger needs
// to be accepted while high is the current high bid.
func (r *Rule) MinimumNextTotal(high decimal.Decimal) decimal.Decimal {
	least := r.floor
	if r.enforce && high.Sign() > 0 {
		if need := high.Add(r.MinimumRaise(high)); need.GreaterThan(least) {
			least = need
		}
	}
	return least
}

// ValidateAmount checks that amount is a strictly positive whole number.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.Sign() <= 0 || !amount.IsInteger() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return nil
}

// Check validates a new cumulative total against the floor and, for anyone
// other than the incumbent leader, against the minimum increment over high.
//
// The incumbent leader is exempt from the increment rule and may defend the
// lead with any positive addition. This weakens the "meaningful raise"
// property of the rule.
func (r *Rule) Check(newTotal, high decimal.Decimal, isLeader bool) error {
	if newTotal.LessThan(r.floor) {
		return fmt.Errorf("%w: total %s, floor %s", ErrBelowFloor, newTotal, r.floor)
	}
	if !r.enforce || isLeader || high.Sign() <= 0 {
		return nil
	}
	need := high.Add(r.MinimumRaise(high))
	if newTotal.LessThan(need) {
		return fmt.Errorf("%w: total %s, need at least %s", ErrIncrementTooLow, newTotal, need)
	}
	return nil
}
