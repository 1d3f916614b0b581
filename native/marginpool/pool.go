// Package marginpool implements the lending pool accounting: note/token
// exchange, interest accrual and fee collection. Pools never move tokens
// themselves; they record the balances the surrounding engine settles.
package marginpool

import (
	"fmt"
	"math"

	"margind/core/types"
	"margind/native/fixed"
	"margind/native/oracle"
)

// bpsExponent is the decimal exponent of basis-point values.
const bpsExponent = -4

// MaxPoolUtilRatioAfterBorrowBps is the utilization ceiling enforced on new
// borrows, in basis points.
const MaxPoolUtilRatioAfterBorrowBps = 9500

// PoolVersion is the current pool layout version.
const PoolVersion = 0

// Pool flag bits.
const (
	// PoolDisabled blocks all token movement for the pool.
	PoolDisabled uint64 = 1 << 0
	// PoolAllowLending permits deposits to be lent out.
	PoolAllowLending uint64 = 1 << 1
)

// Config holds the tunable parameters of a pool.
type Config struct {
	// Flags is a bit set of the Pool* flag constants.
	Flags uint64 `json:"flags" toml:"flags" yaml:"flags"`
	// UtilizationRate1 is the utilization (bps) where the first rate regime
	// transitions to the second.
	UtilizationRate1 uint16 `json:"utilizationRate1" toml:"utilization_rate_1" yaml:"utilization_rate_1"`
	// UtilizationRate2 is the utilization (bps) where the second rate regime
	// transitions to the third.
	UtilizationRate2 uint16 `json:"utilizationRate2" toml:"utilization_rate_2" yaml:"utilization_rate_2"`
	// BorrowRate0 is the borrow rate (bps) at zero utilization.
	BorrowRate0 uint16 `json:"borrowRate0" toml:"borrow_rate_0" yaml:"borrow_rate_0"`
	// BorrowRate1 is the borrow rate (bps) at the first transition.
	BorrowRate1 uint16 `json:"borrowRate1" toml:"borrow_rate_1" yaml:"borrow_rate_1"`
	// BorrowRate2 is the borrow rate (bps) at the second transition.
	BorrowRate2 uint16 `json:"borrowRate2" toml:"borrow_rate_2" yaml:"borrow_rate_2"`
	// BorrowRate3 is the borrow rate (bps) at full utilization.
	BorrowRate3 uint16 `json:"borrowRate3" toml:"borrow_rate_3" yaml:"borrow_rate_3"`
	// ManagementFeeRate is the fraction (bps) of accrued interest skimmed as
	// protocol fees.
	ManagementFeeRate uint16 `json:"managementFeeRate" toml:"management_fee_rate" yaml:"management_fee_rate"`
	// DepositLimit caps the pool's custodied tokens.
	DepositLimit uint64 `json:"depositLimit" toml:"deposit_limit" yaml:"deposit_limit"`
	// BorrowLimit caps the pool's outstanding debt.
	BorrowLimit uint64 `json:"borrowLimit" toml:"borrow_limit" yaml:"borrow_limit"`
}

// Pool is the accounting state of one lending pool.
type Pool struct {
	Version         uint8                   `json:"version"`
	Airspace        types.Address           `json:"airspace"`
	Address         types.Address           `json:"address"`
	Vault           types.Address           `json:"vault"`
	FeeDestination  types.Address           `json:"feeDestination"`
	DepositNoteMint types.Address           `json:"depositNoteMint"`
	LoanNoteMint    types.Address           `json:"loanNoteMint"`
	TokenMint       types.Address           `json:"tokenMint"`
	Config          Config                  `json:"config"`
	Oracle          oracle.TokenPriceOracle `json:"oracle"`

	// Borrowed and UncollectedFees stay in fixed point so accrual drift
	// never rounds away.
	Borrowed        fixed.Number `json:"borrowed"`
	UncollectedFees fixed.Number `json:"uncollectedFees"`

	DepositTokens uint64 `json:"depositTokens"`
	DepositNotes  uint64 `json:"depositNotes"`
	LoanNotes     uint64 `json:"loanNotes"`
	AccruedUntil  int64  `json:"accruedUntil"`
}

// NewPool initializes an empty pool for tokenMint. The pool address, vault
// and note mints are derived deterministically from the airspace and mint.
func NewPool(airspace, tokenMint, feeDestination types.Address, cfg Config, orc oracle.TokenPriceOracle, now int64) *Pool {
	address := types.DeriveAddress([]byte("margin-pool"), airspace.Bytes(), tokenMint.Bytes())
	return &Pool{
		Version:         PoolVersion,
		Airspace:        airspace,
		Address:         address,
		Vault:           types.DeriveAddress([]byte("vault"), address.Bytes()),
		FeeDestination:  feeDestination,
		DepositNoteMint: types.DeriveAddress([]byte("deposit-notes"), address.Bytes()),
		LoanNoteMint:    types.DeriveAddress([]byte("loan-notes"), address.Bytes()),
		TokenMint:       tokenMint,
		Config:          cfg,
		Oracle:          orc,
		AccruedUntil:    now,
	}
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

func (p *Pool) disabled() bool {
	return p.Config.Flags&PoolDisabled != 0
}

// totalValue is everything owned by or owed to the pool.
func (p *Pool) totalValue() fixed.Number {
	return p.Borrowed.Add(fixed.FromU64(p.DepositTokens))
}

// UtilizationRate is the borrowed share of the pool's total value.
func (p *Pool) UtilizationRate() fixed.Number {
	return p.Borrowed.Div(p.totalValue())
}

// DepositNoteExchangeRate is the tokens-per-note rate for deposit notes.
// When only uncollected fees remain (deposit notes zero) the rate pins to 1.
func (p *Pool) DepositNoteExchangeRate() fixed.Number {
	notes := p.DepositNotes
	if notes == 0 {
		notes = 1
	}
	value := p.totalValue().SaturatingSub(p.UncollectedFees)
	if value.Cmp(fixed.One()) < 0 {
		value = fixed.One()
	}
	return value.Div(fixed.FromU64(notes))
}

// LoanNoteExchangeRate is the tokens-per-note rate for loan notes.
func (p *Pool) LoanNoteExchangeRate() fixed.Number {
	notes := p.LoanNotes
	if notes == 0 {
		notes = 1
	}
	borrowed := p.Borrowed
	if borrowed.Cmp(fixed.One()) < 0 {
		borrowed = fixed.One()
	}
	return borrowed.Div(fixed.FromU64(notes))
}

// Deposit records supplied tokens and the notes minted against them.
func (p *Pool) Deposit(amount FullAmount) error {
	if p.disabled() {
		return ErrDisabled
	}
	tokens, ok := addU64(p.DepositTokens, amount.Tokens)
	if !ok {
		return ErrSetMathOp
	}
	if tokens > p.Config.DepositLimit {
		return fmt.Errorf("%w: %d exceeds limit %d", ErrDepositLimitReached, tokens, p.Config.DepositLimit)
	}
	notes, ok := addU64(p.DepositNotes, amount.Notes)
	if !ok {
		return ErrSetMathOp
	}
	p.DepositTokens = tokens
	p.DepositNotes = notes
	return nil
}

// Withdraw records tokens released from the vault and the notes burned.
func (p *Pool) Withdraw(amount FullAmount) error {
	if p.disabled() {
		return ErrDisabled
	}
	if amount.Tokens > p.DepositTokens || amount.Notes > p.DepositNotes {
		return ErrInsufficientLiquidity
	}
	p.DepositTokens -= amount.Tokens
	p.DepositNotes -= amount.Notes
	return nil
}

// Borrow records a loan from the vault: tokens leave the deposit pool and
// loan notes are minted for the debt.
func (p *Pool) Borrow(amount FullAmount) error {
	if p.disabled() {
		return ErrDisabled
	}
	if p.Config.Flags&PoolAllowLending == 0 {
		return ErrDepositsOnly
	}
	if amount.Tokens > p.DepositTokens {
		return ErrInsufficientLiquidity
	}
	notes, ok := addU64(p.LoanNotes, amount.Notes)
	if !ok {
		return ErrSetMathOp
	}
	borrowed, err := p.Borrowed.AddChecked(fixed.FromU64(amount.Tokens))
	if err != nil {
		return fmt.Errorf("margin pool: %w", err)
	}
	if borrowed.Cmp(fixed.FromU64(p.Config.BorrowLimit)) > 0 {
		return fmt.Errorf("%w: limit %d", ErrBorrowLimitReached, p.Config.BorrowLimit)
	}
	postUtil := borrowed.Div(borrowed.Add(fixed.FromU64(p.DepositTokens - amount.Tokens)))
	if postUtil.AsU64(bpsExponent) > MaxPoolUtilRatioAfterBorrowBps {
		return ErrExceedsMaxBorrowUtilRatio
	}

	p.DepositTokens -= amount.Tokens
	p.LoanNotes = notes
	p.Borrowed = borrowed
	return nil
}

// Repay records debt repayment: tokens return to the vault and loan notes
// are burned. Rounding on the final repayment may overshoot the precise debt
// by less than a token, hence the ceiling comparison and saturating update.
func (p *Pool) Repay(amount FullAmount) error {
	if p.disabled() {
		return ErrDisabled
	}
	if amount.Notes > p.LoanNotes {
		return ErrInsufficientLiquidity
	}
	tokens, ok := addU64(p.DepositTokens, amount.Tokens)
	if !ok {
		return ErrSetMathOp
	}
	if p.Borrowed.AsU64Ceil(0) < amount.Tokens {
		return ErrRepaymentExceedsTotalOutstanding
	}
	p.DepositTokens = tokens
	p.LoanNotes -= amount.Notes
	p.Borrowed = p.Borrowed.SaturatingSub(fixed.FromU64(amount.Tokens))
	return nil
}

// MarginRepay settles a loan against deposit notes without tokens moving:
// deposit notes and loan notes are burned together.
func (p *Pool) MarginRepay(repay, withdraw FullAmount) error {
	if p.disabled() {
		return ErrDisabled
	}
	if withdraw.Notes > p.DepositNotes {
		return ErrInsufficientLiquidity
	}
	if repay.Notes > p.LoanNotes {
		return ErrInsufficientLiquidity
	}
	if p.Borrowed.AsU64Ceil(0) < repay.Tokens {
		return ErrRepaymentExceedsTotalOutstanding
	}
	p.DepositNotes -= withdraw.Notes
	p.LoanNotes -= repay.Notes
	p.Borrowed = p.Borrowed.SaturatingSub(fixed.FromU64(repay.Tokens))
	return nil
}

// AccrueInterest advances accrual to time, covering at most
// MaxAccrualSeconds per call. It reports whether accrual fully caught up;
// false means the caller should call again before allowing user operations.
func (p *Pool) AccrueInterest(time int64) bool {
	behind := time - p.AccruedUntil
	if behind < 0 {
		panic("margin pool: accrual over a negative interval")
	}
	if behind == 0 {
		return true
	}
	toAccrue := behind
	if toAccrue > MaxAccrualSeconds {
		toAccrue = MaxAccrualSeconds
	}

	compound := compoundInterest(p.InterestRate(), toAccrue)
	feeRate := fixed.FromBps(p.Config.ManagementFeeRate)
	interest := p.Borrowed.Mul(compound)

	p.Borrowed = p.Borrowed.Add(interest)
	p.UncollectedFees = p.UncollectedFees.Add(interest.Mul(feeRate))
	p.AccruedUntil += toAccrue

	return behind == toAccrue
}

// AccrueBeforeOperation accrues up to now and fails when a single pass
// cannot catch up. User operations must not run against stale accrual.
func (p *Pool) AccrueBeforeOperation(now int64) error {
	if !p.AccrueInterest(now) {
		return ErrInterestAccrualBehind
	}
	return nil
}

// InterestRate evaluates the three-regime borrow rate curve at the current
// utilization.
func (p *Pool) InterestRate() fixed.Number {
	borrow0 := fixed.FromBps(p.Config.BorrowRate0)

	// Empty pool charges the base rate.
	if p.DepositNotes == 0 {
		return borrow0
	}

	utilRate := p.UtilizationRate()

	util1 := fixed.FromBps(p.Config.UtilizationRate1)
	borrow1 := fixed.FromBps(p.Config.BorrowRate1)
	if utilRate.Cmp(util1) <= 0 {
		return fixed.Interpolate(utilRate, fixed.Zero(), util1, borrow0, borrow1)
	}

	util2 := fixed.FromBps(p.Config.UtilizationRate2)
	borrow2 := fixed.FromBps(p.Config.BorrowRate2)
	if utilRate.Cmp(util2) <= 0 {
		return fixed.Interpolate(utilRate, util1, util2, borrow1, borrow2)
	}

	borrow3 := fixed.FromBps(p.Config.BorrowRate3)
	if utilRate.Cmp(fixed.One()) < 0 {
		return fixed.Interpolate(utilRate, util2, fixed.One(), borrow2, borrow3)
	}
	return borrow3
}

// CollectFees converts the uncollected fee balance into deposit notes for
// the fee destination, preserving the sub-note remainder. It returns the
// number of notes minted.
func (p *Pool) CollectFees() uint64 {
	rate := p.DepositNoteExchangeRate()
	feeNotes := p.UncollectedFees.Div(rate).AsU64(0)
	if feeNotes == 0 {
		return 0
	}
	collected := fixed.FromU64(feeNotes).Mul(rate)
	p.UncollectedFees = p.UncollectedFees.SaturatingSub(collected)
	notes, ok := addU64(p.DepositNotes, feeNotes)
	if !ok {
		panic("margin pool: deposit note overflow collecting fees")
	}
	p.DepositNotes = notes
	return feeNotes
}

// ConvertAmount expands a single-sided amount into its token and note sides
// for the given action, rounding in the pool's favour.
func (p *Pool) ConvertAmount(amount Amount, action PoolAction) (FullAmount, error) {
	var rate fixed.Number
	switch action {
	case ActionDeposit, ActionWithdraw:
		rate = p.DepositNoteExchangeRate()
	case ActionRepay, ActionBorrow:
		rate = p.LoanNoteExchangeRate()
	}

	full := convertWithRounding(amount, roundingFor(action, amount.Kind), rate)

	// A conversion that zeroes one side while the other is positive either
	// drains the pool or destroys user funds, so it is rejected outright.
	if (full.Notes == 0 && full.Tokens > 0) || (full.Tokens == 0 && full.Notes > 0) {
		return FullAmount{}, ErrInvalidAmount
	}
	return full, nil
}

func convertWithRounding(amount Amount, rounding roundingDirection, rate fixed.Number) FullAmount {
	switch amount.Kind {
	case AmountTokens:
		quotient := fixed.FromU64(amount.Value).Div(rate)
		notes := quotient.AsU64(0)
		if rounding == roundUp {
			notes = quotient.AsU64Ceil(0)
		}
		return FullAmount{Tokens: amount.Value, Notes: notes}
	default:
		product := fixed.FromU64(amount.Value).Mul(rate)
		tokens := product.AsU64(0)
		if rounding == roundUp {
			tokens = product.AsU64Ceil(0)
		}
		return FullAmount{Tokens: tokens, Notes: amount.Value}
	}
}

// CalculateFullAmount resolves a TokenChange into the concrete FullAmount to
// move, given the current source and destination balances.
func (p *Pool) CalculateFullAmount(source, destination FullAmount, change TokenChange, action PoolAction) (FullAmount, error) {
	if change.Kind == ChangeShiftBy {
		return p.ConvertAmount(Tokens(change.Tokens), action)
	}
	return p.calculateSetAmount(change.Kind, source, destination, change.Tokens, action)
}

func (p *Pool) calculateSetAmount(kind ChangeKind, source, destination FullAmount, target uint64, action PoolAction) (FullAmount, error) {
	switch {
	case action == ActionBorrow && kind == ChangeSetDestinationTo:
		// Borrow however much tops the deposit destination up to the target.
		tokens, ok := subU64(target, destination.Tokens)
		if !ok {
			return FullAmount{}, ErrSetMathOp
		}
		return p.ConvertAmount(Tokens(tokens), ActionBorrow)
	case action == ActionDeposit && kind == ChangeSetDestinationTo:
		tokens, ok := subU64(target, destination.Tokens)
		if !ok {
			return FullAmount{}, ErrSetMathOp
		}
		return p.ConvertAmount(Tokens(tokens), ActionDeposit)
	case action == ActionRepay && kind == ChangeSetDestinationTo:
		// Repay down to the target outstanding balance.
		tokens, ok := subU64(destination.Tokens, target)
		if !ok {
			return FullAmount{}, ErrSetMathOp
		}
		return p.ConvertAmount(Tokens(tokens), ActionRepay)
	case action == ActionWithdraw && kind == ChangeSetDestinationTo:
		tokens, ok := subU64(target, destination.Tokens)
		if !ok {
			return FullAmount{}, ErrSetMathOp
		}
		return p.ConvertAmount(Tokens(tokens), ActionWithdraw)
	case action == ActionBorrow && kind == ChangeSetSourceTo:
		// Borrow until the deposit source holds the target value.
		tokens, ok := subU64(target, source.Tokens)
		if !ok {
			return FullAmount{}, ErrSetMathOp
		}
		return p.ConvertAmount(Tokens(tokens), ActionBorrow)
	case action == ActionDeposit && kind == ChangeSetSourceTo:
		// Deposit everything above the target left in the source account.
		tokens, ok := subU64(source.Tokens, target)
		if !ok {
			return FullAmount{}, ErrSetMathOp
		}
		return p.ConvertAmount(Tokens(tokens), ActionDeposit)
	case action == ActionRepay && kind == ChangeSetSourceTo:
		// Drain the source down to the target, but never past the debt.
		drain, ok := subU64(source.Tokens, target)
		if !ok {
			return FullAmount{}, ErrSetMathOp
		}
		borrowed := destination.Tokens
		if borrowed < drain {
			drain = borrowed
		}
		return p.ConvertAmount(Tokens(drain), ActionRepay)
	case action == ActionWithdraw && kind == ChangeSetSourceTo:
		tokens, ok := subU64(source.Tokens, target)
		if !ok {
			return FullAmount{}, ErrSetMathOp
		}
		return p.ConvertAmount(Tokens(tokens), ActionWithdraw)
	}
	return FullAmount{}, ErrInvalidSetTo
}

// NotePrices derives deposit and loan note prices from the underlying token
// price by scaling with the current exchange rates.
func (p *Pool) NotePrices(price oracle.PriceChange) (deposit, loan oracle.PriceChange, err error) {
	if price.Value <= 0 {
		return oracle.PriceChange{}, oracle.PriceChange{}, ErrInvalidPoolPrice
	}
	exponent := price.Exponent
	value := fixed.FromDecimal(uint64(price.Value), exponent)
	conf := fixed.FromDecimal(price.Confidence, exponent)
	ema := price.Twap
	if ema < 0 {
		ema = 0
	}
	twap := fixed.FromDecimal(uint64(ema), exponent)

	depositRate := p.DepositNoteExchangeRate()
	loanRate := p.LoanNoteExchangeRate()

	deposit = oracle.PriceChange{
		Value:       int64(value.Mul(depositRate).AsU64Rounded(exponent)),
		Confidence:  conf.Mul(depositRate).AsU64Rounded(exponent),
		Twap:        int64(twap.Mul(depositRate).AsU64Rounded(exponent)),
		PublishTime: price.PublishTime,
		Exponent:    exponent,
	}
	loan = oracle.PriceChange{
		Value:       int64(value.Mul(loanRate).AsU64Rounded(exponent)),
		Confidence:  conf.Mul(loanRate).AsU64Rounded(exponent),
		Twap:        int64(twap.Mul(loanRate).AsU64Rounded(exponent)),
		PublishTime: price.PublishTime,
		Exponent:    exponent,
	}
	return deposit, loan, nil
}

func addU64(a, b uint64) (uint64, bool) {
	if a > math.MaxUint64-b {
		return 0, false
	}
	return a + b, true
}

func subU64(a, b uint64) (uint64, bool) {
	if b > a {
		return 0, false
	}
	return a - b, true
}
