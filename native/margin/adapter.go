package margin

import (
	"log/slog"

	"margind/core/types"
	"margind/native/oracle"
)

// BalanceChangeCause explains why a position balance moved during an
// invocation.
type BalanceChangeCause uint8

const (
	// CauseDefault should not be encountered in the wild.
	CauseDefault BalanceChangeCause = iota
	// CauseBorrow marks tokens borrowed from a pool.
	CauseBorrow
	// CauseRepay marks tokens repaid to a pool.
	CauseRepay
	// CauseExternalIncrease marks an inflow caused by an external program,
	// such as the receiving leg of a swap.
	CauseExternalIncrease
	// CauseExternalDecrease marks an outflow caused by an external program.
	CauseExternalDecrease
)

// TokenBalanceChange reports one balance movement to the caller. The
// liquidation fee calculation depends on these being reported faithfully,
// which is why external-program movements are observed rather than trusted.
type TokenBalanceChange struct {
	Mint   types.Address      `json:"mint"`
	Tokens uint64             `json:"tokens"`
	Cause  BalanceChangeCause `json:"cause"`
}

// PositionChangeKind discriminates the changes an adapter may request.
type PositionChangeKind uint8

const (
	// ChangePrice updates the position price.
	ChangePrice PositionChangeKind = iota
	// ChangeFlags sets or clears adapter flags on the position.
	ChangeFlags
	// ChangeRegister registers a position, or asserts it is registered.
	ChangeRegister
	// ChangeClose closes a position.
	ChangeClose
	// ChangeTokens reports a balance movement for fee assessment.
	ChangeTokens
)

// PositionChange is one change an adapter requests on a position.
type PositionChange struct {
	Kind PositionChangeKind

	// Price applies for ChangePrice.
	Price oracle.PriceChange

	// Flags and Set apply for ChangeFlags; flags set in Flags are assigned
	// the value of Set, others are untouched.
	Flags PositionFlags
	Set   bool

	// Custodian applies for ChangeRegister and ChangeClose.
	Custodian types.Address

	// Tokens applies for ChangeTokens.
	Tokens TokenBalanceChange
}

// MintChanges groups the requested changes for one mint.
type MintChanges struct {
	Mint    types.Address
	Changes []PositionChange
}

// AdapterResult is what an adapter reports back after executing.
type AdapterResult struct {
	// Program is the adapter that produced the result. A trusted result is
	// only accepted when it matches the invoked program.
	Program types.Address

	PositionChanges []MintChanges
}

// AdapterCall is one adapter invocation to run against an account.
type AdapterCall struct {
	// Program identifies the adapter; it must be configured with the
	// invoker.
	Program types.Address

	// Execute performs the adapter's work against the account. A nil result
	// means the adapter had nothing to report.
	Execute func(acct *Account) (*AdapterResult, error)
}

// TokenLedger reads custodied token balances.
type TokenLedger interface {
	Balance(custodian types.Address) (uint64, bool)
}

// TokenSource looks up token configs for position auto-registration.
type TokenSource interface {
	TokenConfig(airspace, mint types.Address) (*TokenConfig, bool)
}

// Invoker routes adapter calls against margin accounts. Configured adapters
// may report position changes; known external programs are instead observed
// through balance snapshots, since their return data cannot be trusted.
type Invoker struct {
	adapters   map[types.Address]AdapterConfig
	external   map[types.Address]struct{}
	safeReturn map[types.Address]struct{}
	ledger     TokenLedger
	tokens     TokenSource
	log        *slog.Logger
}

// NewInvoker builds an invoker over the given balance ledger and token
// config source.
func NewInvoker(ledger TokenLedger, tokens TokenSource, log *slog.Logger) *Invoker {
	if log == nil {
		log = slog.Default()
	}
	return &Invoker{
		adapters:   make(map[types.Address]AdapterConfig),
		external:   make(map[types.Address]struct{}),
		safeReturn: make(map[types.Address]struct{}),
		ledger:     ledger,
		tokens:     tokens,
		log:        log,
	}
}

// RegisterAdapter allows a program to be invoked within its airspace.
func (inv *Invoker) RegisterAdapter(cfg AdapterConfig) {
	inv.adapters[cfg.AdapterProgram] = cfg
}

// AddKnownExternalProgram marks a program whose balance effects are observed
// through snapshots.
func (inv *Invoker) AddKnownExternalProgram(program types.Address) {
	inv.external[program] = struct{}{}
}

// AddSafeReturnDataProgram marks a program whose adapter results may be
// trusted.
func (inv *Invoker) AddSafeReturnDataProgram(program types.Address) {
	inv.safeReturn[program] = struct{}{}
}

// InvokeMany runs a sequence of adapter calls, stopping at the first
// failure.
func (inv *Invoker) InvokeMany(acct *Account, calls []AdapterCall, signed bool, now int64) ([]TokenBalanceChange, error) {
	var changes []TokenBalanceChange
	for _, call := range calls {
		stepChanges, err := inv.Invoke(acct, call, signed, now)
		if err != nil {
			return nil, err
		}
		changes = append(changes, stepChanges...)
	}
	return changes, nil
}

// Invoke runs one adapter call. signed marks whether the account authority
// backs the invocation, which decides what the adapter may register or
// close.
func (inv *Invoker) Invoke(acct *Account, call AdapterCall, signed bool, now int64) ([]TokenBalanceChange, error) {
	cfg, ok := inv.adapters[call.Program]
	if !ok {
		return nil, ErrUnauthorizedInvocation
	}
	if cfg.Airspace != acct.Airspace {
		return nil, ErrWrongAirspace
	}

	_, isExternal := inv.external[call.Program]

	var opening map[types.Address]uint64
	if isExternal {
		opening = inv.snapshotBalances(acct)
	}

	result, err := call.Execute(acct)
	if err != nil {
		return nil, err
	}

	inv.refreshBalances(acct, now)

	var changes []TokenBalanceChange
	if isExternal {
		changes = inv.reconcileBalances(acct, opening)
	}

	if result != nil {
		if isExternal {
			return nil, ErrIncorrectProgramReturnData
		}
		if _, safe := inv.safeReturn[call.Program]; safe {
			if result.Program.IsZero() {
				return nil, ErrNoAdapterResult
			}
			if result.Program != call.Program {
				return nil, ErrWrongProgramAdapterResult
			}
			for _, mc := range result.PositionChanges {
				applied, err := inv.applyChanges(acct, call.Program, mc.Mint, mc.Changes, signed, now)
				if err != nil {
					return nil, err
				}
				changes = append(changes, applied...)
			}
		}
	}

	return changes, nil
}

// snapshotBalances records the custodied balance of every held position
// before handing control to an external program.
func (inv *Invoker) snapshotBalances(acct *Account) map[types.Address]uint64 {
	opening := make(map[types.Address]uint64)
	acct.ForEachPosition(func(p *Position) error {
		if balance, ok := inv.ledger.Balance(p.Custodian); ok {
			opening[p.Token] = balance
		}
		return nil
	})
	return opening
}

// refreshBalances re-reads every custodied balance from the ledger.
func (inv *Invoker) refreshBalances(acct *Account, now int64) {
	acct.ForEachPosition(func(p *Position) error {
		if balance, ok := inv.ledger.Balance(p.Custodian); ok {
			p.SetBalance(balance, uint64(now))
		}
		return nil
	})
}

// reconcileBalances turns snapshot deltas into reported external movements.
func (inv *Invoker) reconcileBalances(acct *Account, opening map[types.Address]uint64) []TokenBalanceChange {
	var changes []TokenBalanceChange
	acct.ForEachPosition(func(p *Position) error {
		before, ok := opening[p.Token]
		if !ok {
			return nil
		}
		switch {
		case p.Balance > before:
			changes = append(changes, TokenBalanceChange{
				Mint:   p.Token,
				Tokens: p.Balance - before,
				Cause:  CauseExternalIncrease,
			})
		case p.Balance < before:
			changes = append(changes, TokenBalanceChange{
				Mint:   p.Token,
				Tokens: before - p.Balance,
				Cause:  CauseExternalDecrease,
			})
		}
		return nil
	})
	return changes
}

func (inv *Invoker) applyChanges(acct *Account, program, mint types.Address, changes []PositionChange, signed bool, now int64) ([]TokenBalanceChange, error) {
	if p := acct.GetPosition(mint); p != nil {
		// Engine-owned positions may be touched by any adapter.
		if p.Adapter != program && !p.Adapter.IsZero() {
			return nil, ErrInvalidPositionAdapter
		}
	}

	approvals := Approvals{Authority: signed, Adapters: []types.Address{program}}

	var reported []TokenBalanceChange
	for _, change := range changes {
		position := acct.GetPosition(mint)
		switch change.Kind {
		case ChangePrice:
			if position != nil {
				position.SetPrice(PriceInfoFromChange(change.Price, now))
			}
		case ChangeFlags:
			if position == nil {
				return nil, ErrPositionNotRegistered
			}
			if change.Set {
				position.Flags |= change.Flags
			} else {
				position.Flags &^= change.Flags
			}
		case ChangeRegister:
			if position != nil {
				if position.Custodian != change.Custodian {
					return nil, ErrPositionNotRegisterable
				}
				return nil, ErrPositionAlreadyRegistered
			}
			if err := inv.registerPosition(acct, approvals, mint, change.Custodian, now); err != nil {
				return nil, err
			}
		case ChangeClose:
			if position == nil {
				return nil, ErrPositionNotRegistered
			}
			if position.Custodian != change.Custodian {
				return nil, ErrPositionNotRegisterable
			}
			if err := acct.UnregisterPosition(mint, change.Custodian, approvals); err != nil {
				return nil, err
			}
		case ChangeTokens:
			reported = append(reported, change.Tokens)
		}
	}
	return reported, nil
}

// registerPosition auto-registers a position an adapter asked for, sourcing
// the metadata from the token config.
func (inv *Invoker) registerPosition(acct *Account, approvals Approvals, mint, custodian types.Address, now int64) error {
	cfg, ok := inv.tokens.TokenConfig(acct.Airspace, mint)
	if !ok {
		return ErrPositionNotRegisterable
	}
	posCfg := PositionConfigFromToken(cfg, custodian, cfg.AdapterProgram())
	if _, err := acct.RegisterPosition(posCfg, approvals); err != nil {
		return err
	}
	if balance, ok := inv.ledger.Balance(custodian); ok {
		if _, err := acct.SetPositionBalance(mint, custodian, balance, uint64(now)); err != nil {
			return err
		}
	}
	inv.log.Debug("registered position from adapter result",
		"account", acct.Address.Short(),
		"mint", mint.Short(),
		"adapter", cfg.AdapterProgram().Short(),
	)
	return nil
}
