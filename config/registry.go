package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"margind/core/types"
	"margind/native/margin"
	"margind/native/marginpool"
)

// Registry is the parsed token registry file: the airspace's token configs,
// approved adapter programs and pool definitions.
type Registry struct {
	Airspace types.Address          `yaml:"airspace"`
	Tokens   []margin.TokenConfig   `yaml:"tokens"`
	Adapters []margin.AdapterConfig `yaml:"adapters"`
	Permits  []margin.Permit        `yaml:"permits"`
	Pools    []PoolSeed             `yaml:"pools"`

	byMint map[types.Address]*margin.TokenConfig
}

// PoolSeed declares a margin pool to create on first start.
type PoolSeed struct {
	TokenMint      types.Address     `yaml:"token_mint"`
	FeeDestination types.Address     `yaml:"fee_destination"`
	Config         marginpool.Config `yaml:"config"`
}

// LoadRegistry reads and validates a registry file.
func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRegistry(raw)
}

// ParseRegistry decodes registry YAML and validates every entry.
func ParseRegistry(raw []byte) (*Registry, error) {
	reg := &Registry{}
	if err := yaml.Unmarshal(raw, reg); err != nil {
		return nil, fmt.Errorf("config: parsing registry: %w", err)
	}
	reg.byMint = make(map[types.Address]*margin.TokenConfig, len(reg.Tokens))
	for i := range reg.Tokens {
		token := &reg.Tokens[i]
		if token.Airspace.IsZero() {
			token.Airspace = reg.Airspace
		}
		if token.Version == 0 {
			token.Version = margin.TokenConfigVersion
		}
		if token.Mint.IsZero() {
			return nil, fmt.Errorf("config: registry token %d has no mint", i)
		}
		if token.UnderlyingMint.IsZero() {
			token.UnderlyingMint = token.Mint
		}
		if err := token.Validate(); err != nil {
			return nil, fmt.Errorf("config: registry token %s: %w", token.Mint.Short(), err)
		}
		if _, dup := reg.byMint[token.Mint]; dup {
			return nil, fmt.Errorf("config: registry token %s declared twice", token.Mint.Short())
		}
		reg.byMint[token.Mint] = token
	}
	for i := range reg.Adapters {
		if reg.Adapters[i].Airspace.IsZero() {
			reg.Adapters[i].Airspace = reg.Airspace
		}
	}
	for i := range reg.Permits {
		permit := &reg.Permits[i]
		if permit.Airspace.IsZero() {
			permit.Airspace = reg.Airspace
		}
		if permit.Owner.IsZero() {
			return nil, fmt.Errorf("config: registry permit %d has no owner", i)
		}
	}
	return reg, nil
}

// Permit returns the permit granted to owner within the registry airspace.
func (r *Registry) Permit(owner types.Address) (*margin.Permit, bool) {
	for i := range r.Permits {
		if r.Permits[i].Owner == owner && r.Permits[i].Airspace == r.Airspace {
			return &r.Permits[i], true
		}
	}
	return nil, false
}

// TokenConfig implements margin.TokenSource over the registry.
func (r *Registry) TokenConfig(airspace, mint types.Address) (*margin.TokenConfig, bool) {
	token, ok := r.byMint[mint]
	if !ok || token.Airspace != airspace {
		return nil, false
	}
	return token, true
}
