package marginpool

// AmountKind marks whether an Amount counts tokens or pool notes.
type AmountKind uint8

const (
	// AmountTokens counts underlying tokens.
	AmountTokens AmountKind = iota
	// AmountNotes counts pool accounting notes.
	AmountNotes
)

// Amount is a user-supplied quantity in either unit.
type Amount struct {
	Kind  AmountKind
	Value uint64
}

// Tokens builds a token-denominated amount.
func Tokens(value uint64) Amount {
	return Amount{Kind: AmountTokens, Value: value}
}

// Notes builds a note-denominated amount.
func Notes(value uint64) Amount {
	return Amount{Kind: AmountNotes, Value: value}
}

// FullAmount carries both sides of a token/note conversion.
type FullAmount struct {
	Tokens uint64 `json:"tokens"`
	Notes  uint64 `json:"notes"`
}

// PoolAction identifies the operation an amount is converted for; it decides
// which exchange rate applies and which way rounding goes.
type PoolAction uint8

const (
	// ActionBorrow mints claim notes against the vault.
	ActionBorrow PoolAction = iota
	// ActionDeposit mints collateral notes for supplied tokens.
	ActionDeposit
	// ActionRepay burns claim notes for returned tokens.
	ActionRepay
	// ActionWithdraw burns collateral notes for released tokens.
	ActionWithdraw
)

func (a PoolAction) String() string {
	switch a {
	case ActionBorrow:
		return "borrow"
	case ActionDeposit:
		return "deposit"
	case ActionRepay:
		return "repay"
	case ActionWithdraw:
		return "withdraw"
	}
	return "unknown"
}

type roundingDirection uint8

const (
	roundDown roundingDirection = iota
	roundUp
)

// roundingFor picks the direction that favours the pool. The exchange rate is
// notes:tokens, so converting supplied notes multiplies by the rate and
// converting supplied tokens divides by it.
//
//	| Instruction | Note Action     | Direction      | Rounding |
//	| Deposit     | Mint Collateral | Tokens > Notes | Down     |
//	| Deposit     | Mint Collateral | Notes > Tokens | Up       |
//	| Withdraw    | Burn Collateral | Tokens > Notes | Up       |
//	| Withdraw    | Burn Collateral | Notes > Tokens | Down     |
//	| Borrow      | Mint Claim      | Tokens > Notes | Up       |
//	| Borrow      | Mint Claim      | Notes > Tokens | Down     |
//	| Repay       | Burn Claim      | Tokens > Notes | Down     |
//	| Repay       | Burn Claim      | Notes > Tokens | Up       |
func roundingFor(action PoolAction, kind AmountKind) roundingDirection {
	switch {
	case action == ActionBorrow && kind == AmountTokens,
		action == ActionDeposit && kind == AmountNotes,
		action == ActionRepay && kind == AmountNotes,
		action == ActionWithdraw && kind == AmountTokens:
		return roundUp
	default:
		return roundDown
	}
}

// ChangeKind discriminates how a TokenChange describes its target.
type ChangeKind uint8

const (
	// ChangeShiftBy moves a relative number of tokens.
	ChangeShiftBy ChangeKind = iota
	// ChangeSetSourceTo drains or fills until the source account holds the
	// target value.
	ChangeSetSourceTo
	// ChangeSetDestinationTo moves until the destination account holds the
	// target value.
	ChangeSetDestinationTo
)

// TokenChange is the caller's description of a desired balance movement.
type TokenChange struct {
	Kind   ChangeKind
	Tokens uint64
}

// ShiftBy moves balances by a relative token amount.
func ShiftBy(tokens uint64) TokenChange {
	return TokenChange{Kind: ChangeShiftBy, Tokens: tokens}
}

// SetSourceTo leaves the source account with exactly the target tokens.
func SetSourceTo(tokens uint64) TokenChange {
	return TokenChange{Kind: ChangeSetSourceTo, Tokens: tokens}
}

// SetDestinationTo fills the destination account to exactly the target
// tokens.
func SetDestinationTo(tokens uint64) TokenChange {
	return TokenChange{Kind: ChangeSetDestinationTo, Tokens: tokens}
}
