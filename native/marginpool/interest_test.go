package marginpool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"margind/native/fixed"
)

func ratePool(borrowed, depositTokens uint64) *Pool {
	pool := &Pool{
		Config: Config{
			Flags:            PoolAllowLending,
			UtilizationRate1: 5000,
			UtilizationRate2: 8000,
			BorrowRate0:      100,
			BorrowRate1:      500,
			BorrowRate2:      1000,
			BorrowRate3:      10000,
		},
		Borrowed:      fixed.FromU64(borrowed),
		DepositTokens: depositTokens,
		DepositNotes:  1_000_000,
	}
	return pool
}

func TestInterestRateRegimes(t *testing.T) {
	cases := []struct {
		name          string
		borrowed      uint64
		depositTokens uint64
		want          string
	}{
		{"zero utilization", 0, 1_000_000, "0.01"},
		{"mid first regime", 250_000, 750_000, "0.03"},
		{"first transition", 500_000, 500_000, "0.05"},
		{"mid second regime", 650_000, 350_000, "0.075"},
		{"second transition", 800_000, 200_000, "0.1"},
		{"mid third regime", 900_000, 100_000, "0.55"},
		{"full utilization", 1_000_000, 0, "1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pool := ratePool(tc.borrowed, tc.depositTokens)
			require.Equal(t, tc.want, pool.InterestRate().String())
		})
	}
}

func TestInterestRateEmptyPool(t *testing.T) {
	pool := ratePool(0, 0)
	pool.DepositNotes = 0
	require.Equal(t, "0.01", pool.InterestRate().String())
}

func TestAccrueInterestCatchUp(t *testing.T) {
	pool := openPool(t)
	require.NoError(t, pool.Deposit(FullAmount{Tokens: 1_000_000, Notes: 1_000_000}))
	require.NoError(t, pool.Borrow(FullAmount{Tokens: 500_000, Notes: 500_000}))
	pool.Config.ManagementFeeRate = 1000
	pool.Config.BorrowRate0 = 500
	pool.Config.BorrowRate1 = 500
	pool.Config.BorrowRate2 = 500
	pool.Config.BorrowRate3 = 500
	pool.Config.UtilizationRate1 = 5000
	pool.Config.UtilizationRate2 = 8000

	// Three weeks behind: the first two passes cover a week each and report
	// not caught up, the third finishes.
	target := int64(3 * MaxAccrualSeconds)
	require.False(t, pool.AccrueInterest(target))
	require.Equal(t, int64(MaxAccrualSeconds), pool.AccruedUntil)
	require.False(t, pool.AccrueInterest(target))
	require.True(t, pool.AccrueInterest(target))
	require.Equal(t, target, pool.AccruedUntil)

	// Flat 5% over three weeks is a bit under 0.3% interest.
	interest := pool.Borrowed.Sub(fixed.FromU64(500_000))
	require.True(t, interest.Cmp(fixed.FromU64(1_400)) > 0)
	require.True(t, interest.Cmp(fixed.FromU64(1_500)) < 0)

	// A tenth of the interest was skimmed as fees.
	expectedFees := interest.Mul(fixed.FromBps(1000))
	diff := expectedFees.SaturatingSub(pool.UncollectedFees).Add(pool.UncollectedFees.SaturatingSub(expectedFees))
	require.True(t, diff.Cmp(fixed.One()) < 0)

	// Nothing further to accrue.
	require.True(t, pool.AccrueInterest(target))
}

func TestAccrueInterestNegativeInterval(t *testing.T) {
	pool := openPool(t)
	pool.AccruedUntil = 100
	require.Panics(t, func() { pool.AccrueInterest(50) })
}

func TestCompoundInterestTerms(t *testing.T) {
	rate := fixed.FromBps(1000) // 10% annual

	// Continuous compounding always beats the linear rate and stays close
	// for short intervals.
	for _, seconds := range []int64{60, secondsPer2H, secondsPer12H, secondsPerDay, secondsPerWeek} {
		linear := rate.MulU64(uint64(seconds)).DivU64(secondsPerYear)
		compounded := compoundInterest(rate, seconds)
		require.True(t, compounded.Cmp(linear) >= 0, "interval %d", seconds)
		// The premium over linear is tiny at these scales.
		premium := compounded.Sub(linear)
		require.True(t, premium.Cmp(fixed.FromDecimal(1, -5)) < 0, "interval %d", seconds)
	}

	require.Panics(t, func() { compoundInterest(rate, secondsPerWeek+1) })
	require.Panics(t, func() { compoundInterest(fixed.FromU64(3), 60) })
}

// Exercises a full deposit, borrow, accrue, repay, withdraw, collect cycle
// and verifies the exchange rates settle back where they should.
func TestPoolRatesLifecycle(t *testing.T) {
	exponent := int32(-6)
	clock := int64(1_735_689_600) // 2025-01-01
	pool := &Pool{
		Config: Config{
			Flags:             PoolAllowLending,
			UtilizationRate1:  50,
			UtilizationRate2:  80,
			BorrowRate0:       50,
			BorrowRate1:       200,
			BorrowRate2:       1000,
			BorrowRate3:       15000,
			ManagementFeeRate: 2000,
			DepositLimit:      10_000_000,
			BorrowLimit:       7_000_000,
		},
		AccruedUntil: clock,
	}

	valueAt := func(rate fixed.Number, notes uint64) uint64 {
		return fixed.FromDecimal(notes, exponent).Mul(rate).AsU64(exponent)
	}

	depositor := FullAmount{Notes: 1_000_000}
	borrower := FullAmount{Notes: 500_000}

	depositor.Tokens = valueAt(pool.DepositNoteExchangeRate(), depositor.Notes)
	borrower.Tokens = valueAt(pool.LoanNoteExchangeRate(), borrower.Notes)
	require.Equal(t, uint64(1_000_000), depositor.Tokens)
	require.Equal(t, uint64(500_000), borrower.Tokens)

	require.NoError(t, pool.Deposit(FullAmount{Tokens: 1_000_000, Notes: 1_000_000}))
	poolTokens := uint64(1_000_000)
	require.NoError(t, pool.Borrow(FullAmount{Tokens: 500_000, Notes: 500_000}))
	poolTokens -= 500_000

	// Accrue a month of interest.
	clock += 2_678_400
	for !pool.AccrueInterest(clock) {
	}

	depositor.Tokens = valueAt(pool.DepositNoteExchangeRate(), depositor.Notes)
	borrower.Tokens = valueAt(pool.LoanNoteExchangeRate(), borrower.Notes)

	// The borrower owes exactly the pool's outstanding debt.
	require.Equal(t, pool.Borrowed.AsU64(0), borrower.Tokens)
	require.Equal(t, pool.LoanNotes, borrower.Notes)
	require.True(t, borrower.Tokens > 500_000)

	// Repay the full loan.
	require.NoError(t, pool.Repay(borrower))
	poolTokens += borrower.Tokens
	require.Equal(t, uint64(0), pool.LoanNotes)
	require.Equal(t, uint64(1_000_000), pool.LoanNoteExchangeRate().AsU64(exponent))

	// The depositor takes everything their notes are worth.
	depositor.Tokens = valueAt(pool.DepositNoteExchangeRate(), depositor.Notes)
	require.NoError(t, pool.Withdraw(depositor))
	poolTokens -= depositor.Tokens
	require.Equal(t, uint64(0), pool.DepositNotes)

	// Whatever tokens remain are the uncollected fees, give or take the
	// sub-token rounding remainders left behind by repay and withdraw.
	require.InDelta(t, float64(pool.DepositTokens), float64(pool.UncollectedFees.AsU64Ceil(0)), 1)
	require.Equal(t, uint64(1_000_000), pool.DepositNoteExchangeRate().AsU64(exponent))

	// Fee collection mints notes for all but the fractional remainder.
	collected := pool.CollectFees()
	require.InDelta(t, float64(poolTokens), float64(collected), 1)
	require.Equal(t, collected, pool.DepositNotes)
	require.Equal(t, poolTokens, pool.DepositTokens)

	// The loan rate stays pinned at 1.0 and the deposit rate does not dip
	// below it.
	require.Equal(t, uint64(1_000_000), pool.LoanNoteExchangeRate().AsU64(exponent))
	require.True(t, pool.DepositNoteExchangeRate().AsU64(exponent) >= 1_000_000)
}

func TestAccrueBeforeOperation(t *testing.T) {
	pool := ratePool(100_000, 100_000)
	pool.AccruedUntil = 1_000

	require.NoError(t, pool.AccrueBeforeOperation(1_000+3600))
	require.Equal(t, int64(1_000+3600), pool.AccruedUntil)

	// More than a full accrual window behind cannot catch up in one pass.
	err := pool.AccrueBeforeOperation(pool.AccruedUntil + MaxAccrualSeconds + 1)
	require.ErrorIs(t, err, ErrInterestAccrualBehind)
}
