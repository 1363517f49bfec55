package increment

import (
	"errors"
	"testing"

	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

func d(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func mustRule(t *testing.T, floor int64, percent int64, enforce bool) *Rule {
	t.Helper()
	r, err := NewRule(d(floor), percent, enforce)
	check.NoError(t, err)
	return r
}

func TestNewRule_Invalid(t *testing.T) {
	_, err := NewRule(d(-1), 5, true)
	check.True(t, errors.Is(err, ErrInvalidRule))

	_, err = NewRule(d(100), -5, true)
	check.True(t, errors.Is(err, ErrInvalidRule))

	_, err = NewRule(decimal.NewFromFloat(10.5), 5, true)
	check.True(t, errors.Is(err, ErrInvalidRule))
}

func TestMinimumRaise_Truncates(t *testing.T) {
	r := mustRule(t, 0, 5, true)

	check.True(t, r.MinimumRaise(d(1000)).Equal(d(50)))
	// 1001 * 5 / 100 = 50.05 -> 50
	check.True(t, r.MinimumRaise(d(1001)).Equal(d(50)))
	// 19 * 5 / 100 = 0.95 -> 0
	check.True(t, r.MinimumRaise(d(19)).Equal(decimal.Zero))
	check.True(t, r.MinimumRaise(decimal.Zero).Equal(decimal.Zero))
}

func TestCheck_Floor(t *testing.T) {
	r := mustRule(t, 1000, 5, true)

	err := r.Check(d(999), decimal.Zero, false)
	check.True(t, errors.Is(err, ErrBelowFloor))

	check.NoError(t, r.Check(d(1000), decimal.Zero, false))
}

func TestCheck_ChallengerNeedsIncrement(t *testing.T) {
	r := mustRule(t, 1000, 5, true)

	err := r.Check(d(1000), d(1000), false)
	check.True(t, errors.Is(err, ErrIncrementTooLow))

	err = r.Check(d(1049), d(1000), false)
	check.True(t, errors.Is(err, ErrIncrementTooLow))

	check.NoError(t, r.Check(d(1050), d(1000), false))
}

func TestCheck_LeaderExempt(t *testing.T) {
	r := mustRule(t, 1000, 5, true)
	check.NoError(t, r.Check(d(1001), d(1000), true))
}

func TestCheck_NotEnforced(t *testing.T) {
	r := mustRule(t, 1000, 5, false)
	// Matching is allowed; the tie-break decides the leader.
	check.NoError(t, r.Check(d(1000), d(1000), false))
}

func TestMinimumNextTotal(t *testing.T) {
	r := mustRule(t, 1000, 5, true)
	check.True(t, r.MinimumNextTotal(decimal.Zero).Equal(d(1000)))
	check.True(t, r.MinimumNextTotal(d(2000)).Equal(d(2100)))

	loose := mustRule(t, 1000, 5, false)
	check.True(t, loose.MinimumNextTotal(d(2000)).Equal(d(1000)))
}

func TestValidateAmount(t *testing.T) {
	check.NoError(t, ValidateAmount(d(1)))
	check.True(t, errors.Is(ValidateAmount(decimal.Zero), ErrInvalidAmount))
	check.True(t, errors.Is(ValidateAmount(d(-3)), ErrInvalidAmount))
	check.True(t, errors.Is(ValidateAmount(decimal.NewFromFloat(1.5)), ErrInvalidAmount))
}
