package margin

import "errors"

var (
	// ErrNoAdapterResult is returned when an adapter that was expected to
	// report position changes returned nothing.
	ErrNoAdapterResult = errors.New("margin: no adapter result")
	// ErrWrongProgramAdapterResult is returned when the reported result was
	// produced by a different program than the one invoked.
	ErrWrongProgramAdapterResult = errors.New("margin: adapter result from wrong program")
	// ErrUnauthorizedInvocation is returned when the caller is not the
	// account owner.
	ErrUnauthorizedInvocation = errors.New("margin: unauthorized invocation")
	// ErrMaxPositions is returned when an account cannot hold another
	// position.
	ErrMaxPositions = errors.New("margin: account cannot record any additional positions")
	// ErrUnknownPosition is returned when looking up a position the account
	// does not hold.
	ErrUnknownPosition = errors.New("margin: unknown position")
	// ErrCloseNonZeroPosition is returned when closing a position that still
	// has a balance.
	ErrCloseNonZeroPosition = errors.New("margin: cannot close position with nonzero balance")
	// ErrPositionAlreadyRegistered is returned when re-registering a
	// position that already exists.
	ErrPositionAlreadyRegistered = errors.New("margin: position already registered")
	// ErrAccountNotEmpty is returned when closing an account that still has
	// positions.
	ErrAccountNotEmpty = errors.New("margin: account not empty")
	// ErrPositionNotRegistered is returned when operating on a position that
	// was never registered or whose custodian does not match.
	ErrPositionNotRegistered = errors.New("margin: position not registered")
	// ErrCloseRequiredPosition is returned when closing a position the
	// adapter marked as required.
	ErrCloseRequiredPosition = errors.New("margin: cannot close required position")
	// ErrInvalidPositionOwner is returned when the approvals on hand do not
	// authorize registering or closing the position.
	ErrInvalidPositionOwner = errors.New("margin: approvals do not authorize this position")
	// ErrPositionNotRegisterable is returned when an adapter-requested
	// registration cannot be satisfied from the supplied material.
	ErrPositionNotRegisterable = errors.New("margin: position not registerable")
	// ErrInvalidPositionAdapter is returned when an adapter touches a
	// position it does not manage.
	ErrInvalidPositionAdapter = errors.New("margin: wrong adapter for position")
	// ErrOutdatedPrice is returned when a claim's price is older than the
	// valuation allows.
	ErrOutdatedPrice = errors.New("margin: position price is outdated")
	// ErrInvalidPrice is returned when a claim carries an invalid price.
	ErrInvalidPrice = errors.New("margin: invalid position price")
	// ErrOutdatedBalance is returned when a claim's balance has not been
	// refreshed within its max staleness.
	ErrOutdatedBalance = errors.New("margin: position balance is outdated")
	// ErrAccountConstraintViolation is returned when an operation the
	// account's constraints deny is attempted.
	ErrAccountConstraintViolation = errors.New("margin: operation denied by account constraints")
	// ErrUnhealthy is returned when the account does not meet collateral
	// requirements.
	ErrUnhealthy = errors.New("margin: account unhealthy")
	// ErrHealthy is returned when liquidation is attempted on an account
	// that meets collateral requirements.
	ErrHealthy = errors.New("margin: account is healthy")
	// ErrLiquidating is returned when the owner acts, or another liquidator
	// begins, while a liquidation is in progress.
	ErrLiquidating = errors.New("margin: account is being liquidated")
	// ErrNotLiquidating is returned when liquidation-only operations run
	// outside a liquidation.
	ErrNotLiquidating = errors.New("margin: account is not being liquidated")
	// ErrStalePositions is returned when unhealthiness cannot be proven
	// because collateral was excluded as stale.
	ErrStalePositions = errors.New("margin: stale collateral positions")
	// ErrUnauthorizedLiquidator is returned when someone other than the
	// active liquidator acts during a liquidation.
	ErrUnauthorizedLiquidator = errors.New("margin: unauthorized liquidator")
	// ErrLiquidationLostValue is returned when a liquidation step loses more
	// account value than permitted.
	ErrLiquidationLostValue = errors.New("margin: liquidation lost too much value")
	// ErrLiquidationFeeSlotsFull is returned when liquidation fees are
	// accrued in more distinct mints than slots exist.
	ErrLiquidationFeeSlotsFull = errors.New("margin: liquidation fee slots full")
	// ErrInvalidLiquidationFeeMint is returned when collecting a fee for a
	// mint with no accrued slot.
	ErrInvalidLiquidationFeeMint = errors.New("margin: no liquidation fee accrued for mint")
	// ErrWrongAirspace is returned when airspaces of the involved records do
	// not match.
	ErrWrongAirspace = errors.New("margin: wrong airspace")
	// ErrInvalidConfigStaleness is returned when a token config carries an
	// unusable staleness bound.
	ErrInvalidConfigStaleness = errors.New("margin: invalid max staleness in token config")
	// ErrInvalidConfigTokenKind is returned when a config update changes the
	// token kind.
	ErrInvalidConfigTokenKind = errors.New("margin: token kind cannot change")
	// ErrInvalidConfigUnderlyingMint is returned when a config update omits
	// or changes the underlying mint.
	ErrInvalidConfigUnderlyingMint = errors.New("margin: underlying mint missing or changed")
	// ErrInvalidConfigAdmin is returned when a config update switches the
	// admin variant or the adapter address.
	ErrInvalidConfigAdmin = errors.New("margin: token admin cannot change")
	// ErrInvalidConfigModifier is returned when a value modifier exceeds the
	// cap for the token kind.
	ErrInvalidConfigModifier = errors.New("margin: value modifier exceeds limit")
	// ErrInvalidOracle is returned when a token is administered without a
	// price oracle where one is required.
	ErrInvalidOracle = errors.New("margin: invalid oracle")
	// ErrAlreadyJoinedAirspace is returned when an account joins an airspace
	// it is already part of.
	ErrAlreadyJoinedAirspace = errors.New("margin: account already joined airspace")
	// ErrInsufficientPermissions is returned when a permit does not grant
	// the required permissions.
	ErrInsufficientPermissions = errors.New("margin: insufficient permissions")
	// ErrPermitNotOwned is returned when a permit belongs to a different
	// owner.
	ErrPermitNotOwned = errors.New("margin: permit not owned by caller")
	// ErrIncorrectProgramReturnData is returned when a known-external
	// program also reports an adapter result.
	ErrIncorrectProgramReturnData = errors.New("margin: external program may not return adapter results")
	// ErrMathOpFailed is returned when internal arithmetic over or
	// underflows.
	ErrMathOpFailed = errors.New("margin: math operation failed")
	// ErrInvalidFeatureFlags is returned for unknown or conflicting token
	// feature combinations.
	ErrInvalidFeatureFlags = errors.New("margin: invalid feature flags")
	// ErrRestrictedToken is returned when a restricted token is registered
	// into an account without the matching feature.
	ErrRestrictedToken = errors.New("margin: restricted token not allowed for account")
	// ErrTokenFeatureViolation is returned when held balances no longer
	// satisfy the account's feature flags.
	ErrTokenFeatureViolation = errors.New("margin: token feature violation")
)
