package marginpool

import "margind/native/fixed"

const (
	secondsPerHour = 3600
	secondsPer2H   = secondsPerHour * 2
	secondsPer12H  = secondsPerHour * 12
	secondsPerDay  = secondsPerHour * 24
	secondsPerWeek = secondsPerDay * 7
	secondsPerYear = 31_536_000

	// MaxAccrualSeconds bounds how much time a single accrual pass may cover.
	// A pool that has fallen further behind catches up over repeated calls,
	// keeping per-call compounding cost and precision loss bounded.
	MaxAccrualSeconds = secondsPerWeek
)

// compoundInterest converts an annualized rate into the effective rate for
// the given interval assuming continuous compounding. The term counts are
// calibrated for the interval guards below under the assumption that the
// rate does not exceed two.
func compoundInterest(rate fixed.Number, seconds int64) fixed.Number {
	if rate.Cmp(fixed.FromU64(2)) > 0 {
		panic("margin pool: interest rate too large to compound")
	}

	var terms int
	switch {
	case seconds <= secondsPer2H:
		terms = 5
	case seconds <= secondsPer12H:
		terms = 6
	case seconds <= secondsPerDay:
		terms = 7
	case seconds <= secondsPerWeek:
		terms = 10
	default:
		panic("margin pool: accrual interval exceeds one week")
	}

	x := rate.MulU64(uint64(seconds)).DivU64(secondsPerYear)
	return fixed.Expm1(x, terms)
}
