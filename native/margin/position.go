package margin

import (
	"log/slog"

	"margind/core/types"
	"margind/native/fixed"
	"margind/native/oracle"
)

const (
	// MaxAccountPositions is the capacity of the position arena.
	MaxAccountPositions = 32

	// MaxUserPositions is how many positions an account may normally hold.
	// The remaining slots are reserved for liquidators, which may need to
	// register extra positions while unwinding an account.
	MaxUserPositions = 24

	// MaxOracleConfidenceBps is the widest confidence interval, relative to
	// the average price, a usable oracle quote may carry.
	MaxOracleConfidenceBps = 500

	// MaxOracleStalenessSeconds is the oldest publish time a usable oracle
	// quote may carry.
	MaxOracleStalenessSeconds = 60

	// MaxPriceQuoteAgeSeconds bounds the age of a position price during
	// valuation.
	MaxPriceQuoteAgeSeconds = oracle.MaxPriceQuoteAgeSeconds
)

// PositionFlags are set by the managing adapter.
type PositionFlags uint8

const (
	// PositionRequired blocks the user from closing the position until the
	// adapter clears the flag, even at zero balance.
	PositionRequired PositionFlags = 1 << 0

	// PositionPastDue marks a claim that must be repaid immediately. On any
	// other kind the flag is stored but ignored.
	PositionPastDue PositionFlags = 1 << 1
)

// PriceInfo is the price bookkeeping attached to a position.
type PriceInfo struct {
	// Value is the price mantissa at Exponent.
	Value int64 `json:"value"`

	// Timestamp is when the price was valid, unix seconds.
	Timestamp uint64 `json:"timestamp"`

	// Exponent scales Value.
	Exponent int32 `json:"exponent"`

	// Valid marks whether the price may be used for valuation.
	Valid bool `json:"valid"`
}

// NewValidPrice builds a usable price record.
func NewValidPrice(exponent int32, value int64, timestamp uint64) PriceInfo {
	return PriceInfo{Value: value, Exponent: exponent, Timestamp: timestamp, Valid: true}
}

// NewInvalidPrice builds a price record that valuation will reject.
func NewInvalidPrice() PriceInfo {
	return PriceInfo{}
}

// Number converts the price for valuation.
func (p PriceInfo) Number() (fixed.Signed, error) {
	if !p.Valid {
		return fixed.SignedZero(), ErrInvalidPrice
	}
	return fixed.SignedFromPrice(p.Value, p.Exponent), nil
}

// PriceInfoFromChange validates a resolved oracle price against the
// confidence and staleness windows, producing an invalid record when the
// quote is unusable rather than an error.
func PriceInfoFromChange(px oracle.PriceChange, now int64) PriceInfo {
	if px.Twap == 0 {
		return NewInvalidPrice()
	}
	maxConfidence := fixed.SignedFromBps(MaxOracleConfidenceBps)
	ema := fixed.SignedFromPrice(px.Twap, px.Exponent)
	confidence := fixed.SignedFromDecimal(px.Confidence, px.Exponent)
	if confidence.Div(ema).Cmp(maxConfidence) > 0 {
		return NewInvalidPrice()
	}
	if now-px.PublishTime > MaxOracleStalenessSeconds {
		return NewInvalidPrice()
	}
	return NewValidPrice(px.Exponent, px.Value, uint64(now))
}

// Position is one token balance held by a margin account.
type Position struct {
	// Token is the mint of the asset.
	Token types.Address `json:"token"`

	// Custodian is the account holding the tokens.
	Custodian types.Address `json:"custodian"`

	// Adapter manages the asset; the zero address means the margin engine
	// owns the position directly.
	Adapter types.Address `json:"adapter"`

	// Value is the cached USD value, balance times price.
	Value fixed.Signed `json:"value"`

	Balance          uint64    `json:"balance"`
	BalanceTimestamp uint64    `json:"balanceTimestamp"`
	Price            PriceInfo `json:"price"`
	Kind             TokenKind `json:"kind"`

	// Exponent scales Balance into whole tokens.
	Exponent int32 `json:"exponent"`

	// ValueModifier weighs the position when counting collateral, at
	// exponent -2.
	ValueModifier uint16 `json:"valueModifier"`

	// MaxStaleness bounds the balance age in seconds, zero meaning
	// unconstrained.
	MaxStaleness uint64 `json:"maxStaleness"`

	Flags    PositionFlags `json:"flags"`
	Features TokenFeatures `json:"features"`
}

func (p *Position) calculateValue() {
	balance := fixed.SignedFromDecimal(p.Balance, p.Exponent)
	price := fixed.SignedFromPrice(p.Price.Value, p.Price.Exponent)
	p.Value = balance.Mul(price)
}

// CollateralValue is the position value weighted by the value modifier.
func (p *Position) CollateralValue() fixed.Signed {
	return fixed.SignedFromDecimal(uint64(p.ValueModifier), -2).Mul(p.Value)
}

// RequiredCollateralValue is the collateral a claim of this size demands,
// the debt divided by the configured leverage. A claim with no leverage
// configured requires unbounded collateral.
func (p *Position) RequiredCollateralValue() fixed.Signed {
	modifier := fixed.SignedFromDecimal(uint64(p.ValueModifier), -2)
	if modifier.IsZero() {
		slog.Warn("no leverage configured for claim", "token", p.Token)
		return fixed.SignedMax()
	}
	return p.Value.Div(modifier)
}

// SetBalance updates the balance and recomputes the cached value.
func (p *Position) SetBalance(balance, timestamp uint64) {
	p.Balance = balance
	p.BalanceTimestamp = timestamp
	p.calculateValue()
}

// SetPrice updates the price and recomputes the cached value.
func (p *Position) SetPrice(price PriceInfo) {
	p.Price = price
	p.calculateValue()
}

// Approvals captures who signed off on registering or closing a position.
type Approvals struct {
	// Authority is set when the account owner (or the active liquidator)
	// signed the request.
	Authority bool

	// Adapters lists adapter programs whose return data requested the
	// change.
	Adapters []types.Address
}

// allows reports whether the approvals authorize registering or closing this
// position. Plain collateral belongs to the user alone; claims and adapter
// collateral additionally need the managing adapter's consent.
func (p *Position) allows(approvals Approvals) bool {
	adapterApproved := false
	for _, adapter := range approvals.Adapters {
		if adapter == p.Adapter {
			adapterApproved = true
		}
	}
	switch p.Kind.normalize() {
	case TokenCollateral:
		return approvals.Authority && !adapterApproved
	default:
		return approvals.Authority && adapterApproved
	}
}
