package fixed

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// NumberPrecision is the number of decimal places carried by Number.
const NumberPrecision = 15

// ErrOverflow is returned by the checked arithmetic helpers when a result
// no longer fits the underlying representation.
var ErrOverflow = errors.New("fixed: arithmetic overflow")

var numberOne = pow10(NumberPrecision)

func pow10(n int32) *uint256.Int {
	out := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := int32(0); i < n; i++ {
		out.Mul(out, ten)
	}
	return out
}

// Number is an unsigned fixed-point decimal with 15 places of precision,
// backed by a 256-bit integer so chained exchange-rate math keeps headroom
// well past u64 token amounts.
type Number struct {
	v uint256.Int
}

// Zero returns the zero Number.
func Zero() Number { return Number{} }

// One returns the Number 1.0.
func One() Number {
	var n Number
	n.v.Set(numberOne)
	return n
}

// FromU64 converts a token amount into a Number.
func FromU64(value uint64) Number {
	var n Number
	n.v.Mul(uint256.NewInt(value), numberOne)
	return n
}

// FromDecimal interprets value as value*10^exponent. Exponents below
// -NumberPrecision lose the digits beyond the internal precision.
func FromDecimal(value uint64, exponent int32) Number {
	var n Number
	shift := NumberPrecision + exponent
	if shift >= 0 {
		n.v.Mul(uint256.NewInt(value), pow10(shift))
	} else {
		n.v.Div(uint256.NewInt(value), pow10(-shift))
	}
	return n
}

// FromBps converts basis points into their fractional Number value.
func FromBps(bps uint16) Number {
	return FromDecimal(uint64(bps), -4)
}

// Add returns n + other.
func (n Number) Add(other Number) Number {
	var out Number
	if _, carry := out.v.AddOverflow(&n.v, &other.v); carry {
		panic("fixed: Number addition overflow")
	}
	return out
}

// AddChecked returns n + other, or ErrOverflow instead of wrapping. Used on
// accumulator paths where the inputs are not already bounded.
func (n Number) AddChecked(other Number) (Number, error) {
	var out Number
	if _, carry := out.v.AddOverflow(&n.v, &other.v); carry {
		return Number{}, ErrOverflow
	}
	return out, nil
}

// Sub returns n - other and panics when other exceeds n. Callers that can
// legitimately underflow use SaturatingSub or SubChecked.
func (n Number) Sub(other Number) Number {
	var out Number
	if _, borrow := out.v.SubOverflow(&n.v, &other.v); borrow {
		panic("fixed: Number subtraction underflow")
	}
	return out
}

// SubChecked returns n - other, or ErrOverflow when other exceeds n.
func (n Number) SubChecked(other Number) (Number, error) {
	var out Number
	if _, borrow := out.v.SubOverflow(&n.v, &other.v); borrow {
		return Number{}, ErrOverflow
	}
	return out, nil
}

// SaturatingSub returns n - other, clamped at zero.
func (n Number) SaturatingSub(other Number) Number {
	if n.v.Lt(&other.v) {
		return Number{}
	}
	return n.Sub(other)
}

// Mul returns n * other.
func (n Number) Mul(other Number) Number {
	var out Number
	if _, overflow := out.v.MulOverflow(&n.v, &other.v); overflow {
		panic("fixed: Number multiplication overflow")
	}
	out.v.Div(&out.v, numberOne)
	return out
}

// MulChecked returns n * other, or ErrOverflow.
func (n Number) MulChecked(other Number) (Number, error) {
	var out Number
	if _, overflow := out.v.MulOverflow(&n.v, &other.v); overflow {
		return Number{}, ErrOverflow
	}
	out.v.Div(&out.v, numberOne)
	return out, nil
}

// Div returns n / other. Division by zero is a programming error on the
// paths that reach here, so it panics rather than returning an error.
func (n Number) Div(other Number) Number {
	if other.v.IsZero() {
		panic("fixed: Number division by zero")
	}
	var out Number
	if _, overflow := out.v.MulOverflow(&n.v, numberOne); overflow {
		panic("fixed: Number division overflow")
	}
	out.v.Div(&out.v, &other.v)
	return out
}

// DivU64 returns n / value for a plain integer divisor.
func (n Number) DivU64(value uint64) Number {
	if value == 0 {
		panic("fixed: Number division by zero")
	}
	var out Number
	out.v.Div(&n.v, uint256.NewInt(value))
	return out
}

// MulU64 returns n * value for a plain integer multiplier.
func (n Number) MulU64(value uint64) Number {
	var out Number
	if _, overflow := out.v.MulOverflow(&n.v, uint256.NewInt(value)); overflow {
		panic("fixed: Number multiplication overflow")
	}
	return out
}

// AsU64 truncates the value at the target exponent.
func (n Number) AsU64(exponent int32) uint64 {
	return n.convert(exponent, Zero())
}

// AsU64Ceil rounds the value up at the target exponent.
func (n Number) AsU64Ceil(exponent int32) uint64 {
	shift := NumberPrecision + exponent
	var scaled uint256.Int
	if shift >= 0 {
		divisor := pow10(shift)
		var rem uint256.Int
		scaled.DivMod(&n.v, divisor, &rem)
		if !rem.IsZero() {
			scaled.AddUint64(&scaled, 1)
		}
	} else {
		scaled.Mul(&n.v, pow10(-shift))
	}
	if !scaled.IsUint64() {
		panic("fixed: Number does not fit u64")
	}
	return scaled.Uint64()
}

// AsU64Rounded rounds the value half-up at the target exponent.
func (n Number) AsU64Rounded(exponent int32) uint64 {
	var half Number
	if shift := NumberPrecision + exponent; shift > 0 {
		half.v.Div(pow10(shift), uint256.NewInt(2))
	}
	return n.convert(exponent, half)
}

func (n Number) convert(exponent int32, bias Number) uint64 {
	shift := NumberPrecision + exponent
	var scaled uint256.Int
	scaled.Add(&n.v, &bias.v)
	if shift >= 0 {
		scaled.Div(&scaled, pow10(shift))
	} else {
		scaled.Mul(&scaled, pow10(-shift))
	}
	if !scaled.IsUint64() {
		panic("fixed: Number does not fit u64")
	}
	return scaled.Uint64()
}

// Cmp compares n and other, returning -1, 0 or 1.
func (n Number) Cmp(other Number) int {
	return n.v.Cmp(&other.v)
}

// IsZero reports whether the value is exactly zero.
func (n Number) IsZero() bool {
	return n.v.IsZero()
}

// String renders the value as a plain decimal.
func (n Number) String() string {
	var whole, frac uint256.Int
	whole.DivMod(&n.v, numberOne, &frac)
	fracDigits := strings.TrimRight(fmt.Sprintf("%0*s", NumberPrecision, frac.Dec()), "0")
	if fracDigits == "" {
		return whole.Dec()
	}
	return whole.Dec() + "." + fracDigits
}

// Float64 approximates the value for reporting. Not suitable for
// accounting math.
func (n Number) Float64() float64 {
	f, _ := new(big.Float).SetInt(n.v.ToBig()).Float64()
	return f / 1e15
}

// ParseNumber reads a plain decimal produced by String. Digits beyond the
// internal precision are rejected rather than silently dropped.
func ParseNumber(s string) (Number, error) {
	s = strings.TrimSpace(s)
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > NumberPrecision {
		return Number{}, fmt.Errorf("fixed: %q exceeds %d decimal places", s, NumberPrecision)
	}
	mantissa := whole + frac + strings.Repeat("0", NumberPrecision-len(frac))
	var n Number
	if err := n.v.SetFromDecimal(mantissa); err != nil {
		return Number{}, fmt.Errorf("fixed: parse %q: %w", s, err)
	}
	return n, nil
}

// MarshalText implements encoding.TextMarshaler.
func (n Number) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *Number) UnmarshalText(text []byte) error {
	parsed, err := ParseNumber(string(text))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}
