package marginpool

import "errors"

var (
	// ErrDisabled is returned for any token movement while the pool's
	// disabled flag is set.
	ErrDisabled = errors.New("margin pool: pool is disabled")
	// ErrInterestAccrualBehind is returned when user operations run before
	// accrual has caught up to the present.
	ErrInterestAccrualBehind = errors.New("margin pool: interest accrual is too far behind")
	// ErrDepositsOnly is returned for borrows against a pool without the
	// lending flag.
	ErrDepositsOnly = errors.New("margin pool: pool only allows deposits")
	// ErrInsufficientLiquidity is returned when the vault cannot cover a
	// withdrawal or borrow.
	ErrInsufficientLiquidity = errors.New("margin pool: insufficient liquidity")
	// ErrInvalidAmount is returned when a conversion leaves exactly one of
	// tokens or notes zero while the other is not.
	ErrInvalidAmount = errors.New("margin pool: invalid amount")
	// ErrInvalidPoolPrice is returned when the pool oracle cannot produce a
	// usable price.
	ErrInvalidPoolPrice = errors.New("margin pool: invalid pool price")
	// ErrInvalidSetTo is returned for malformed set-to token changes.
	ErrInvalidSetTo = errors.New("margin pool: invalid set-to value for token change")
	// ErrRepaymentExceedsTotalOutstanding is returned when a repayment is
	// larger than the pool's outstanding debt beyond rounding effects.
	ErrRepaymentExceedsTotalOutstanding = errors.New("margin pool: repayment exceeds total outstanding")
	// ErrExceedsMaxBorrowUtilRatio is returned when a borrow would push
	// utilization above the ceiling for new borrows.
	ErrExceedsMaxBorrowUtilRatio = errors.New("margin pool: borrow exceeds max utilization ratio")
	// ErrSetMathOp is returned when resolving a set-to change under or
	// overflows a token balance.
	ErrSetMathOp = errors.New("margin pool: token math operation overflowed")
	// ErrDepositLimitReached is returned when a deposit exceeds the pool's
	// deposit limit.
	ErrDepositLimitReached = errors.New("margin pool: deposit limit reached")
	// ErrBorrowLimitReached is returned when a borrow exceeds the pool's
	// borrow limit.
	ErrBorrowLimitReached = errors.New("margin pool: borrow limit reached")
)
