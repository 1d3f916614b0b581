package margin

import (
	"encoding/binary"

	"margind/core/types"
)

// AccountVersion is the current version written into new margin accounts.
const AccountVersion = 1

// Account is one user's margin account within an airspace. It tracks the
// registered positions and, while one is active, the liquidation state.
type Account struct {
	Version uint8 `json:"version"`

	// Seed disambiguates multiple accounts per owner.
	Seed uint16 `json:"seed"`

	// Address is derived from owner, airspace and seed.
	Address types.Address `json:"address"`

	// Owner generally has to sign for any changes to the account.
	Owner types.Address `json:"owner"`

	// Airspace the account belongs to.
	Airspace types.Address `json:"airspace"`

	// Liquidator is the active liquidator, zero outside a liquidation.
	Liquidator types.Address `json:"liquidator,omitempty"`

	Features    AccountFeatureFlags `json:"features,omitempty"`
	Constraints AccountConstraints  `json:"constraints,omitempty"`

	Positions PositionList `json:"positions"`

	// Liquidation holds the running totals while a liquidation is active.
	Liquidation *Liquidation `json:"liquidation,omitempty"`
}

// AccountAddress derives the deterministic address for an account.
func AccountAddress(owner, airspace types.Address, seed uint16) types.Address {
	var seedBytes [2]byte
	binary.LittleEndian.PutUint16(seedBytes[:], seed)
	return types.DeriveAddress([]byte("margin-account"), owner.Bytes(), airspace.Bytes(), seedBytes[:])
}

// NewAccount initializes an empty margin account.
func NewAccount(airspace, owner types.Address, seed uint16, features AccountFeatureFlags) *Account {
	return &Account{
		Version:  AccountVersion,
		Seed:     seed,
		Address:  AccountAddress(owner, airspace, seed),
		Owner:    owner,
		Airspace: airspace,
		Features: features &^ AccountViolation,
	}
}

// IsLiquidating reports whether a liquidator currently controls the account.
func (a *Account) IsLiquidating() bool {
	return !a.Liquidator.IsZero()
}

// VerifyNotLiquidating rejects owner-path operations during a liquidation.
func (a *Account) VerifyNotLiquidating() error {
	if a.IsLiquidating() {
		return ErrLiquidating
	}
	return nil
}

// VerifyAuthority checks that the caller may act on the account: the owner
// outside a liquidation, the liquidator during one. The liquidation relaxes
// the owner check but never grants the owner's rights to anyone else.
func (a *Account) VerifyAuthority(authority types.Address) error {
	if a.IsLiquidating() {
		if authority == a.Owner {
			return ErrLiquidating
		}
		if authority != a.Liquidator {
			return ErrUnauthorizedLiquidator
		}
		return nil
	}
	if authority != a.Owner {
		return ErrUnauthorizedInvocation
	}
	return nil
}

// VerifyConstraints rejects the operation when any of the denied constraint
// bits are set on the account.
func (a *Account) VerifyConstraints(denied AccountConstraints) error {
	if a.Constraints&denied != 0 {
		return ErrAccountConstraintViolation
	}
	return nil
}

// VerifyEmpty gates closing the account on all positions being gone.
func (a *Account) VerifyEmpty() error {
	if a.Positions.Length > 0 {
		return ErrAccountNotEmpty
	}
	return nil
}

// PositionConfig is the material needed to register a position.
type PositionConfig struct {
	Mint          types.Address
	Decimals      uint8
	Custodian     types.Address
	Airspace      types.Address
	Adapter       types.Address
	Kind          TokenKind
	ValueModifier uint16
	MaxStaleness  uint64
	Features      TokenFeatures
}

// PositionConfigFromToken builds registration material from a token config.
func PositionConfigFromToken(cfg *TokenConfig, custodian, adapter types.Address) PositionConfig {
	return PositionConfig{
		Mint:          cfg.Mint,
		Decimals:      cfg.Decimals,
		Custodian:     custodian,
		Airspace:      cfg.Airspace,
		Adapter:       adapter,
		Kind:          cfg.Kind,
		ValueModifier: cfg.ValueModifier,
		MaxStaleness:  cfg.MaxStaleness,
		Features:      cfg.Features,
	}
}

// RegisterPosition reserves space for a new position. Registering a mint the
// account already holds returns the existing key without changes. Ordinary
// users stop at MaxUserPositions; a liquidator may fill the whole arena.
func (a *Account) RegisterPosition(cfg PositionConfig, approvals Approvals) (PositionKey, error) {
	if !a.IsLiquidating() && a.Positions.Length >= MaxUserPositions {
		return PositionKey{}, ErrMaxPositions
	}
	if a.Airspace != cfg.Airspace {
		return PositionKey{}, ErrWrongAirspace
	}
	if !a.Features.IsEmpty() {
		compatible, err := a.Features.CompatibleWith(cfg.Features)
		if err != nil {
			return PositionKey{}, err
		}
		if !compatible {
			return PositionKey{}, ErrRestrictedToken
		}
	} else if cfg.Features.Contains(FeatureRestricted) {
		// An unrestricted account cannot hold restricted tokens.
		return PositionKey{}, ErrRestrictedToken
	}

	key, position, err := a.Positions.Add(cfg.Mint)
	if err != nil {
		return PositionKey{}, err
	}
	if position != nil {
		position.Exponent = -int32(cfg.Decimals)
		position.Custodian = cfg.Custodian
		position.Adapter = cfg.Adapter
		position.Kind = cfg.Kind.normalize()
		position.Balance = 0
		position.ValueModifier = cfg.ValueModifier
		position.MaxStaleness = cfg.MaxStaleness
		if cfg.Features.Contains(FeatureRestricted) {
			position.Features = cfg.Features
		}
		if !position.allows(approvals) {
			a.Positions.Remove(cfg.Mint, cfg.Custodian)
			return PositionKey{}, ErrInvalidPositionOwner
		}
	}
	return key, nil
}

// UnregisterPosition frees a previously registered position.
func (a *Account) UnregisterPosition(mint, custodian types.Address, approvals Approvals) error {
	removed, err := a.Positions.Remove(mint, custodian)
	if err != nil {
		return err
	}
	if !removed.allows(approvals) {
		a.restorePosition(removed)
		return ErrInvalidPositionOwner
	}
	if removed.Balance != 0 {
		a.restorePosition(removed)
		return ErrCloseNonZeroPosition
	}
	if removed.Flags&PositionRequired != 0 {
		a.restorePosition(removed)
		return ErrCloseRequiredPosition
	}
	return nil
}

// restorePosition puts back a position that failed post-removal checks.
func (a *Account) restorePosition(p Position) {
	_, slot, err := a.Positions.Add(p.Token)
	if err == nil && slot != nil {
		*slot = p
	}
}

// RefreshPositionMetadata re-syncs kind, modifier, staleness and features
// from an updated token config without touching balance or price.
func (a *Account) RefreshPositionMetadata(mint types.Address, kind TokenKind, valueModifier uint16, maxStaleness uint64, features TokenFeatures) (Position, error) {
	position := a.Positions.Get(mint)
	if position == nil {
		return Position{}, ErrPositionNotRegistered
	}
	position.Kind = kind.normalize()
	position.ValueModifier = valueModifier
	position.MaxStaleness = maxStaleness
	position.Features = features
	return *position, nil
}

// GetPosition returns the position for a mint, or nil.
func (a *Account) GetPosition(mint types.Address) *Position {
	return a.Positions.Get(mint)
}

// HasPosition reports whether the account holds a position for the mint.
func (a *Account) HasPosition(mint types.Address) bool {
	return a.Positions.Get(mint) != nil
}

// SetPositionBalance updates a position balance. The custodian must match
// the registered one.
func (a *Account) SetPositionBalance(mint, custodian types.Address, balance, timestamp uint64) (Position, error) {
	position := a.Positions.Get(mint)
	if position == nil || position.Custodian != custodian {
		return Position{}, ErrPositionNotRegistered
	}
	position.SetBalance(balance, timestamp)
	return *position, nil
}

// SetPositionPrice updates a position price.
func (a *Account) SetPositionPrice(mint types.Address, price PriceInfo) error {
	position := a.Positions.Get(mint)
	if position == nil {
		return ErrPositionNotRegistered
	}
	position.SetPrice(price)
	return nil
}

// ForEachPosition visits the occupied arena slots.
func (a *Account) ForEachPosition(fn func(*Position) error) error {
	for i := range a.Positions.Positions {
		p := &a.Positions.Positions[i]
		if p.Token.IsZero() {
			continue
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

// AssertPositionFeatureViolation checks held balances against the account's
// feature flags and clears the violation marker when satisfied. An account
// whose nonzero positions carry no features is always fine; otherwise the
// position features must map exactly onto the account flags.
func (a *Account) AssertPositionFeatureViolation() error {
	var positionFeatures TokenFeatures
	for i := range a.Positions.Positions {
		p := &a.Positions.Positions[i]
		if !p.Token.IsZero() && p.Balance > 0 {
			positionFeatures |= p.Features
		}
	}
	if positionFeatures == 0 {
		return nil
	}

	a.Features &^= AccountViolation

	if a.Features.IsEmpty() && positionFeatures.Contains(FeatureRestricted) {
		return ErrTokenFeatureViolation
	}
	compatible, err := a.Features.CompatibleWith(positionFeatures)
	if err != nil {
		return err
	}
	if !compatible {
		return ErrTokenFeatureViolation
	}
	return nil
}
