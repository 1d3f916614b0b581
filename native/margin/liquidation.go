package margin

import (
	"math"
	"math/big"

	"margind/core/types"
	"margind/native/fixed"
)

const (
	// LiquidationTimeoutSeconds is how long a liquidator holds exclusive
	// control before anyone may end the liquidation.
	LiquidationTimeoutSeconds = 60

	// LiquidationFeeBps is the liquidator's fee on fee-eligible tokens.
	LiquidationFeeBps = 500

	// liquidationMaxEquityLossBps caps the equity a liquidation may burn,
	// as a proportion of liabilities.
	liquidationMaxEquityLossBps = 500

	// liquidationMaxEquityLossConstant is the flat allowance added on top,
	// in whole value units, so dust-sized accounts stay liquidatable.
	liquidationMaxEquityLossConstant = 1

	// liquidationMaxCollateralIncreaseBps caps how far above the required
	// collateral a liquidation may leave the account.
	liquidationMaxCollateralIncreaseBps = 1000

	// MaxLiquidationFeeMints is how many distinct mints a liquidation can
	// accrue fees in.
	MaxLiquidationFeeMints = 6
)

// LiquidationFee is an accrued fee owed to the liquidator in one mint.
type LiquidationFee struct {
	Mint   types.Address `json:"mint"`
	Amount uint64        `json:"amount"`
}

// Liquidation tracks the running totals of an in-progress liquidation.
type Liquidation struct {
	// EquityLoss accumulates the equity burned across liquidation steps.
	EquityLoss fixed.Signed `json:"equityLoss"`

	// MaxEquityLoss bounds EquityLoss over the whole liquidation.
	MaxEquityLoss fixed.Signed `json:"maxEquityLoss"`

	// CollateralChange accumulates the change in available collateral.
	CollateralChange fixed.Signed `json:"collateralChange"`

	// MaxAvailableCollateralLimit bounds where available collateral may be
	// left; liquidating further than necessary is not allowed.
	MaxAvailableCollateralLimit fixed.Signed `json:"maxAvailableCollateralLimit"`

	// StartTime is when the liquidation began, unix seconds.
	StartTime int64 `json:"startTime"`

	// CollectingFees is set once fee collection starts; further liquidation
	// steps are then refused.
	CollectingFees bool `json:"collectingFees"`

	Fees [MaxLiquidationFeeMints]LiquidationFee `json:"fees"`
}

// NewLiquidation builds the state for a fresh liquidation.
func NewLiquidation(startTime int64, maxEquityLoss, maxAvailableCollateralLimit fixed.Signed) *Liquidation {
	return &Liquidation{
		EquityLoss:                  fixed.SignedZero(),
		MaxEquityLoss:               maxEquityLoss,
		CollateralChange:            fixed.SignedZero(),
		MaxAvailableCollateralLimit: maxAvailableCollateralLimit,
		StartTime:                   startTime,
	}
}

// AccrueFee adds a fee owed to the liquidator, reusing the slot for the mint
// or claiming an empty one.
func (l *Liquidation) AccrueFee(mint types.Address, amount uint64) error {
	for i := range l.Fees {
		if l.Fees[i].Mint == mint {
			if l.Fees[i].Amount > math.MaxUint64-amount {
				return ErrMathOpFailed
			}
			l.Fees[i].Amount += amount
			return nil
		}
	}
	for i := range l.Fees {
		if l.Fees[i].Mint.IsZero() {
			l.Fees[i] = LiquidationFee{Mint: mint, Amount: amount}
			return nil
		}
	}
	return ErrLiquidationFeeSlotsFull
}

// Fee returns the accrued fee amount for a mint.
func (l *Liquidation) Fee(mint types.Address) (uint64, bool) {
	for i := range l.Fees {
		if l.Fees[i].Mint == mint {
			return l.Fees[i].Amount, true
		}
	}
	return 0, false
}

// ClearFee empties the slot for a mint.
func (l *Liquidation) ClearFee(mint types.Address) bool {
	for i := range l.Fees {
		if l.Fees[i].Mint == mint {
			l.Fees[i] = LiquidationFee{}
			return true
		}
	}
	return false
}

func maxEquityLoss(v *Valuation) fixed.Signed {
	m := fixed.SignedFromBps(liquidationMaxEquityLossBps)
	b := fixed.SignedFromU64(liquidationMaxEquityLossConstant)
	return m.Mul(v.Liabilities).Add(b)
}

func maxAvailableCollateralLimit(v *Valuation) fixed.Signed {
	return v.RequiredCollateral.Mul(fixed.SignedFromBps(liquidationMaxCollateralIncreaseBps))
}

// LiquidateBegin puts the account under the liquidator's control. The
// permit must grant liquidation in the account's airspace and the account
// must verifiably be unhealthy. Beginning again with the same liquidator is
// a no-op; a competing liquidator is refused.
func (a *Account) LiquidateBegin(liquidator types.Address, permit *Permit, now int64) error {
	if err := permit.Validate(a.Airspace, liquidator, PermitLiquidate); err != nil {
		return err
	}

	valuation, err := a.Valuation(uint64(now))
	if err != nil {
		return err
	}
	if err := valuation.VerifyUnhealthy(); err != nil {
		return err
	}

	switch {
	case a.Liquidator == liquidator:
		return nil
	case a.Liquidator.IsZero():
		a.Liquidator = liquidator
	default:
		return ErrLiquidating
	}

	a.Liquidation = NewLiquidation(now, maxEquityLoss(valuation), maxAvailableCollateralLimit(valuation))
	return nil
}

// LiquidatorInvoke runs adapter calls on behalf of the active liquidator and
// accrues the fee earned by them. The fee is based on the lower of the
// external token inflow and the amount repaid in the fee mint, so a
// liquidator cannot inflate it by over-trading.
func (a *Account) LiquidatorInvoke(inv *Invoker, liquidator, feeMint types.Address, calls []AdapterCall, now int64) error {
	if err := a.verifyActiveLiquidator(liquidator); err != nil {
		return err
	}
	if a.Liquidation.CollectingFees {
		return ErrLiquidating
	}

	startValue, err := a.Valuation(uint64(now))
	if err != nil {
		return err
	}

	changes, err := inv.InvokeMany(a, calls, true, now)
	if err != nil {
		return err
	}

	// Net external inflow and net repayment of the fee mint decide the
	// fee-eligible amount. Sums of u64 balances can exceed int64, so the
	// running totals stay in big.Int.
	increases := new(big.Int)
	repayments := new(big.Int)
	for _, c := range changes {
		if c.Mint != feeMint {
			continue
		}
		tokens := new(big.Int).SetUint64(c.Tokens)
		switch c.Cause {
		case CauseExternalIncrease:
			increases.Add(increases, tokens)
		case CauseExternalDecrease:
			increases.Sub(increases, tokens)
		case CauseRepay:
			repayments.Add(repayments, tokens)
		case CauseBorrow:
			repayments.Sub(repayments, tokens)
		}
	}
	if repayments.Sign() < 0 {
		return ErrLiquidationLostValue
	}

	eligible := increases
	if repayments.Cmp(increases) < 0 {
		eligible = repayments
	}
	if eligible.Sign() < 0 {
		eligible.SetInt64(0)
	}
	eligibleTokens := uint64(math.MaxUint64)
	if eligible.IsUint64() {
		eligibleTokens = eligible.Uint64()
	}

	feeExponent := int32(0)
	if p := a.GetPosition(feeMint); p != nil {
		feeExponent = p.Exponent
	}
	feeRate := fixed.SignedFromBps(LiquidationFeeBps)
	fee := feeRate.Div(fixed.SignedOne().Add(feeRate)).Mul(fixed.SignedFromDecimal(eligibleTokens, feeExponent))
	feeTokens := fee.AsU64(feeExponent)
	if feeTokens > 0 {
		if err := a.Liquidation.AccrueFee(feeMint, feeTokens); err != nil {
			return err
		}
	}

	return a.updateAndVerifyLiquidation(startValue, now)
}

// updateAndVerifyLiquidation folds the step's effect into the liquidation
// totals and enforces the loss bounds.
func (a *Account) updateAndVerifyLiquidation(startValue *Valuation, now int64) error {
	endValue, err := a.Valuation(uint64(now))
	if err != nil {
		return err
	}

	liq := a.Liquidation
	liq.EquityLoss = liq.EquityLoss.Add(startValue.Equity.Sub(endValue.Equity))
	liq.CollateralChange = liq.CollateralChange.Add(endValue.AvailableCollateral().Sub(startValue.AvailableCollateral()))

	if liq.EquityLoss.Cmp(liq.MaxEquityLoss) > 0 {
		return ErrLiquidationLostValue
	}
	if liq.CollateralChange.Sign() < 0 {
		// A liquidation step must not reduce available collateral.
		return ErrLiquidationLostValue
	}
	if endValue.AvailableCollateral().Cmp(liq.MaxAvailableCollateralLimit) > 0 {
		return ErrLiquidationLostValue
	}
	return nil
}

// CollectLiquidationFee pays out the fee accrued in one mint. The fee value
// first absorbs any equity the liquidation lost; only the remainder is paid
// in tokens at the oracle price. Returns the token amount to transfer to the
// liquidator; the caller settles the transfer, updates the position balance,
// and must verify the account values healthy afterwards.
func (a *Account) CollectLiquidationFee(liquidator, mint types.Address, price PriceInfo) (uint64, error) {
	if err := a.verifyActiveLiquidator(liquidator); err != nil {
		return 0, err
	}
	liq := a.Liquidation
	liq.CollectingFees = true

	accrued, ok := liq.Fee(mint)
	if !ok {
		return 0, ErrInvalidLiquidationFeeMint
	}

	priceNum, err := price.Number()
	if err != nil {
		return 0, err
	}

	exponent := int32(0)
	if p := a.GetPosition(mint); p != nil {
		exponent = p.Exponent
	}

	fee := fixed.SignedFromDecimal(accrued, exponent).Mul(priceNum)
	switch {
	case liq.EquityLoss.Sign() <= 0:
		// Nothing was lost, the whole fee may be taken.
	case liq.EquityLoss.Cmp(fee) > 0:
		liq.EquityLoss = liq.EquityLoss.Sub(fee)
		fee = fixed.SignedZero()
	default:
		fee = fee.Sub(liq.EquityLoss)
		liq.EquityLoss = fixed.SignedZero()
	}

	liq.ClearFee(mint)
	return fee.Div(priceNum).AsU64(exponent), nil
}

// LiquidateEnd releases the account. The liquidator may end at any time;
// once the timeout has elapsed anyone may.
func (a *Account) LiquidateEnd(caller types.Address, now int64) error {
	if !a.IsLiquidating() {
		return ErrNotLiquidating
	}
	timedOut := now-a.Liquidation.StartTime >= LiquidationTimeoutSeconds
	if caller != a.Liquidator && !timedOut {
		return ErrUnauthorizedLiquidator
	}
	a.Liquidator = types.ZeroAddress
	a.Liquidation = nil
	return nil
}

func (a *Account) verifyActiveLiquidator(liquidator types.Address) error {
	if !a.IsLiquidating() || a.Liquidation == nil {
		return ErrNotLiquidating
	}
	if liquidator != a.Liquidator {
		return ErrUnauthorizedLiquidator
	}
	return nil
}
