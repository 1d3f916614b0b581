package margin

import (
	"math/bits"

	"margind/core/types"
	"margind/native/oracle"
)

// TokenConfigVersion is the current version written into new token configs.
const TokenConfigVersion = 2

// TokenKind describes how a token balance counts toward an account.
type TokenKind uint32

const (
	// TokenCollateral can be used as collateral.
	TokenCollateral TokenKind = iota + 1
	// TokenClaim represents a debt that needs to be repaid.
	TokenClaim
	// TokenAdapterCollateral is collateral custodied by a trusted adapter;
	// the balance mirrors what the adapter holds.
	TokenAdapterCollateral
)

func (k TokenKind) String() string {
	switch k {
	case TokenClaim:
		return "claim"
	case TokenAdapterCollateral:
		return "adapter-collateral"
	default:
		return "collateral"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k TokenKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, accepting the names
// String produces.
func (k *TokenKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "collateral":
		*k = TokenCollateral
	case "claim":
		*k = TokenClaim
	case "adapter-collateral":
		*k = TokenAdapterCollateral
	default:
		return ErrInvalidConfigTokenKind
	}
	return nil
}

// normalize maps unknown kind values to collateral, matching how stored
// positions with a zeroed kind are read back.
func (k TokenKind) normalize() TokenKind {
	switch k {
	case TokenCollateral, TokenClaim, TokenAdapterCollateral:
		return k
	default:
		return TokenCollateral
	}
}

// TokenFeatures restricts the kinds of positions an account may register.
type TokenFeatures uint16

const (
	// FeatureRestricted marks that token restrictions should be enforced.
	FeatureRestricted TokenFeatures = 1 << 0
	// FeatureUSDStablecoin marks a USD denominated stablecoin.
	FeatureUSDStablecoin TokenFeatures = 1 << 1
	// FeatureSOLBased marks SOL or a SOL based staking derivative.
	FeatureSOLBased TokenFeatures = 1 << 2
	// FeatureWBTCBased marks WBTC or a WBTC derivative.
	FeatureWBTCBased TokenFeatures = 1 << 3

	allTokenFeatures = FeatureRestricted | FeatureUSDStablecoin | FeatureSOLBased | FeatureWBTCBased
)

// Contains reports whether every bit in other is set.
func (f TokenFeatures) Contains(other TokenFeatures) bool {
	return f&other == other
}

// stripped returns the features with the restriction bit cleared.
func (f TokenFeatures) stripped() TokenFeatures {
	return f &^ FeatureRestricted
}

// IsValid reports whether at most one flag besides the restriction bit is
// set.
func (f TokenFeatures) IsValid() bool {
	return bits.OnesCount16(uint16(f.stripped())) <= 1
}

// Validate checks that the features are a usable configuration. Restriction
// alone, unknown bits, or more than one denomination flag are rejected.
func (f TokenFeatures) Validate() error {
	if f&^allTokenFeatures != 0 {
		return ErrInvalidFeatureFlags
	}
	if f == FeatureRestricted {
		return ErrInvalidFeatureFlags
	}
	if !f.IsValid() {
		return ErrInvalidFeatureFlags
	}
	return nil
}

// AccountFeatureFlags mirror token features on the account itself, plus a
// violation marker the engine sets when held balances stop matching.
type AccountFeatureFlags uint16

const (
	// AccountViolation marks an account whose positions violate its feature
	// flags; it must be remedied before further operations.
	AccountViolation AccountFeatureFlags = 1 << 0
	// AccountAcceptsStablecoins limits the account to USD stablecoins.
	AccountAcceptsStablecoins AccountFeatureFlags = 1 << 1
	// AccountAcceptsSOLBased limits the account to SOL based tokens.
	AccountAcceptsSOLBased AccountFeatureFlags = 1 << 2
	// AccountAcceptsWBTCBased limits the account to WBTC based tokens.
	AccountAcceptsWBTCBased AccountFeatureFlags = 1 << 3
)

// AccountFlagsFromTokenFeatures converts token features into the matching
// account flags, rejecting invalid feature combinations. The violation bit
// never carries over.
func AccountFlagsFromTokenFeatures(f TokenFeatures) (AccountFeatureFlags, error) {
	if err := f.Validate(); err != nil {
		// An empty set is a valid account configuration even though it is
		// not a valid restricted-token configuration.
		if f != 0 {
			return 0, err
		}
	}
	flags := AccountFeatureFlags(f) &^ AccountViolation
	return flags, nil
}

// IsEmpty reports whether no flags are set.
func (f AccountFeatureFlags) IsEmpty() bool { return f == 0 }

// CompatibleWith reports whether the account flags exactly match the account
// flags derived from the token features.
func (f AccountFeatureFlags) CompatibleWith(features TokenFeatures) (bool, error) {
	other, err := AccountFlagsFromTokenFeatures(features)
	if err != nil {
		return false, err
	}
	return f&^AccountViolation == other, nil
}

// AccountConstraints deny classes of operations on a margin account. An
// account with any constraint can only be released by the adapter that set
// it.
type AccountConstraints uint8

const (
	// DenyWithdrawals blocks withdrawing to the owner's wallet.
	DenyWithdrawals AccountConstraints = 1 << 0
	// DenyDeposits blocks deposits by this account into pools or vaults.
	DenyDeposits AccountConstraints = 1 << 1
	// DenyTransfers blocks transfers between margin accounts.
	DenyTransfers AccountConstraints = 1 << 2
)

// TokenAdminKind discriminates who administers a token.
type TokenAdminKind uint8

const (
	// AdminMargin means the margin engine administers the token directly,
	// pricing it through an oracle.
	AdminMargin TokenAdminKind = iota
	// AdminAdapter means an adapter program owns position management.
	AdminAdapter
)

// MarshalText implements encoding.TextMarshaler.
func (k TokenAdminKind) MarshalText() ([]byte, error) {
	if k == AdminAdapter {
		return []byte("adapter"), nil
	}
	return []byte("margin"), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *TokenAdminKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "margin":
		*k = AdminMargin
	case "adapter":
		*k = AdminAdapter
	default:
		return ErrInvalidConfigAdmin
	}
	return nil
}

// TokenAdmin identifies the authority over position state for a token.
type TokenAdmin struct {
	Kind    TokenAdminKind          `json:"kind" yaml:"kind"`
	Adapter types.Address           `json:"adapter,omitempty" yaml:"adapter,omitempty"`
	Oracle  oracle.TokenPriceOracle `json:"oracle,omitempty" yaml:"oracle,omitempty"`
}

// TokenConfig specifies how a token behaves as a margin account position
// within one airspace.
type TokenConfig struct {
	Mint           types.Address `json:"mint" yaml:"mint"`
	UnderlyingMint types.Address `json:"underlyingMint" yaml:"underlying_mint"`
	Airspace       types.Address `json:"airspace" yaml:"airspace"`
	Kind           TokenKind     `json:"kind" yaml:"kind"`
	Decimals       uint8         `json:"decimals" yaml:"decimals"`

	// ValueModifier weighs the token value when counting collateral, at
	// exponent -2. For claims it acts as the maximum leverage instead.
	ValueModifier uint16 `json:"valueModifier" yaml:"value_modifier"`

	// MaxStaleness bounds how old a balance may be, in seconds. Zero means
	// unconstrained.
	MaxStaleness uint64 `json:"maxStaleness" yaml:"max_staleness"`

	Admin    TokenAdmin    `json:"admin" yaml:"admin"`
	Features TokenFeatures `json:"features" yaml:"features"`
	Version  uint8         `json:"version" yaml:"version"`
}

// AdapterProgram returns the managing adapter, or the zero address when the
// margin engine administers the token itself.
func (c *TokenConfig) AdapterProgram() types.Address {
	if c.Admin.Kind == AdminAdapter {
		return c.Admin.Adapter
	}
	return types.ZeroAddress
}

// Oracle returns the configured price oracle for margin-administered tokens.
func (c *TokenConfig) Oracle() (oracle.TokenPriceOracle, error) {
	if c.Admin.Kind != AdminMargin {
		return oracle.TokenPriceOracle{}, ErrInvalidOracle
	}
	return c.Admin.Oracle, nil
}

// MaxTokenStalenessSeconds is the largest balance staleness bound a token
// config may declare. Adapters whose values change externally should set a
// nonzero bound; zero means the balance is always reported accurately.
const MaxTokenStalenessSeconds = 40

// Validate checks a config for internal consistency.
func (c *TokenConfig) Validate() error {
	if c.Features != 0 {
		if err := c.Features.Validate(); err != nil {
			return err
		}
	}
	if c.MaxStaleness > MaxTokenStalenessSeconds {
		return ErrInvalidConfigStaleness
	}
	switch c.Kind.normalize() {
	case TokenClaim:
		if c.ValueModifier > 10_000 {
			return ErrInvalidConfigModifier
		}
	default:
		if c.ValueModifier > 100 {
			return ErrInvalidConfigModifier
		}
	}
	return nil
}

// VerifyUpdate checks that an update respects the immutable parts of an
// existing config. The token kind and underlying mint never change, the
// non-restriction feature bits cannot change once set, and the admin variant
// is fixed with only the oracle address of margin-administered tokens
// remaining mutable.
func (c *TokenConfig) VerifyUpdate(update *TokenConfig) error {
	if update.Kind != c.Kind {
		return ErrInvalidConfigTokenKind
	}
	if c.UnderlyingMint.IsZero() || update.UnderlyingMint != c.UnderlyingMint {
		return ErrInvalidConfigUnderlyingMint
	}
	if existing := c.Features.stripped(); existing != 0 && update.Features.stripped() != existing {
		return ErrInvalidFeatureFlags
	}
	if update.Admin.Kind != c.Admin.Kind {
		return ErrInvalidConfigAdmin
	}
	if c.Admin.Kind == AdminAdapter && update.Admin.Adapter != c.Admin.Adapter {
		return ErrInvalidConfigAdmin
	}
	return nil
}

// Permissions are airspace-level grants required for privileged actions.
type Permissions uint32

const (
	// PermitLiquidate allows liquidating margin accounts in the airspace.
	PermitLiquidate Permissions = 1 << 0
	// PermitRefreshPositionConfig allows re-syncing position metadata from
	// token configs.
	PermitRefreshPositionConfig Permissions = 1 << 1
	// PermitOperateVaults allows operating margin vaults.
	PermitOperateVaults Permissions = 1 << 2
)

// Contains reports whether every bit in other is granted.
func (p Permissions) Contains(other Permissions) bool {
	return p&other == other
}

// Permit records the actions an address may perform within an airspace.
type Permit struct {
	Airspace    types.Address `json:"airspace" yaml:"airspace"`
	Owner       types.Address `json:"owner" yaml:"owner"`
	Permissions Permissions   `json:"permissions" yaml:"permissions"`
}

// Validate checks the permit against the caller and the permissions the
// operation requires.
func (p *Permit) Validate(airspace, owner types.Address, required Permissions) error {
	if airspace != p.Airspace {
		return ErrWrongAirspace
	}
	if owner != p.Owner {
		return ErrPermitNotOwned
	}
	if !p.Permissions.Contains(required) {
		return ErrInsufficientPermissions
	}
	return nil
}

// AdapterConfig allows a program to be invoked as an adapter within an
// airspace.
type AdapterConfig struct {
	Airspace       types.Address `json:"airspace" yaml:"airspace"`
	AdapterProgram types.Address `json:"adapterProgram" yaml:"adapter_program"`
}
