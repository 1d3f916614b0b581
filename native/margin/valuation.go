package margin

import (
	"margind/core/types"
	"margind/native/fixed"
)

// StalePosition records collateral excluded from a valuation and why.
type StalePosition struct {
	Token  types.Address
	Reason error
}

// Valuation summarizes an account's worth at one instant. Stale collateral
// is excluded from the totals and recorded; a stale claim fails the whole
// valuation since debt can never be ignored.
type Valuation struct {
	// Equity is the net asset value of all positions, ignoring collateral
	// weights and leverage.
	Equity fixed.Signed

	// Liabilities is the total claim value, ignoring leverage.
	Liabilities fixed.Signed

	// RequiredCollateral covers the price risk exposure of the claims.
	RequiredCollateral fixed.Signed

	// WeightedCollateral is the deposit value counted toward collateral.
	WeightedCollateral fixed.Signed

	// EffectiveCollateral is weighted collateral minus liabilities.
	EffectiveCollateral fixed.Signed

	// StaleCollateral lists the collateral positions left out of the
	// totals.
	StaleCollateral []StalePosition

	// PastDue is set when any claim must be repaid immediately.
	PastDue bool
}

// Valuation prices every held position at the given unix-seconds timestamp.
func (a *Account) Valuation(timestamp uint64) (*Valuation, error) {
	v := &Valuation{
		Equity:              fixed.SignedZero(),
		Liabilities:         fixed.SignedZero(),
		RequiredCollateral:  fixed.SignedZero(),
		WeightedCollateral:  fixed.SignedZero(),
		EffectiveCollateral: fixed.SignedZero(),
	}

	err := a.ForEachPosition(func(p *Position) error {
		if p.Balance == 0 {
			return nil
		}

		var staleReason error
		balanceAge := timestamp - p.BalanceTimestamp
		priceQuoteAge := timestamp - p.Price.Timestamp
		switch {
		case !p.Price.Valid:
			staleReason = ErrInvalidPrice
		case p.MaxStaleness > 0 && balanceAge > p.MaxStaleness:
			staleReason = ErrOutdatedBalance
		case priceQuoteAge > MaxPriceQuoteAgeSeconds:
			staleReason = ErrOutdatedPrice
		}

		if p.Kind.normalize() == TokenClaim {
			if staleReason != nil {
				return staleReason
			}
			if p.Flags&PositionPastDue != 0 {
				v.PastDue = true
			}
			v.Equity = v.Equity.Sub(p.Value)
			v.Liabilities = v.Liabilities.Add(p.Value)
			v.RequiredCollateral = v.RequiredCollateral.Add(p.RequiredCollateralValue())
			return nil
		}

		if staleReason != nil {
			v.StaleCollateral = append(v.StaleCollateral, StalePosition{Token: p.Token, Reason: staleReason})
			return nil
		}
		v.Equity = v.Equity.Add(p.Value)
		v.WeightedCollateral = v.WeightedCollateral.Add(p.CollateralValue())
		return nil
	})
	if err != nil {
		return nil, err
	}

	v.EffectiveCollateral = v.WeightedCollateral.Sub(v.Liabilities)
	return v, nil
}

// AvailableCollateral is the effective collateral left after the required
// amount is set aside.
func (v *Valuation) AvailableCollateral() fixed.Signed {
	return v.EffectiveCollateral.Sub(v.RequiredCollateral)
}

// VerifyHealthy fails when the account cannot cover its collateral
// requirement.
func (v *Valuation) VerifyHealthy() error {
	if v.RequiredCollateral.Cmp(v.EffectiveCollateral) > 0 {
		return ErrUnhealthy
	}
	return nil
}

// VerifyUnhealthy fails when the account actually is healthy. Unhealthiness
// cannot be proven while collateral was excluded as stale, so that case is
// rejected outright. A past-due claim counts as unhealthy regardless of
// collateral.
func (v *Valuation) VerifyUnhealthy() error {
	if len(v.StaleCollateral) > 0 {
		return ErrStalePositions
	}
	if v.RequiredCollateral.Cmp(v.EffectiveCollateral) > 0 {
		return nil
	}
	if v.PastDue {
		return nil
	}
	return ErrHealthy
}
