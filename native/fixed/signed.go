package fixed

import (
	"errors"
	"math/big"
	"strings"
)

// SignedPrecision is the number of decimal places carried by Signed.
const SignedPrecision = 10

var (
	signedOne = bigPow10(SignedPrecision)

	// signedMax caps modifier-free collateral requirements. It stands in for
	// "infinite" when a position carries a zero leverage modifier.
	signedMax = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
)

func bigPow10(n int32) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// Signed is a signed fixed-point decimal with 10 places of precision, used
// for account valuation where equity and collateral changes can go negative.
// Values are immutable; every operation allocates a fresh result.
type Signed struct {
	v *big.Int
}

// SignedZero returns the zero value.
func SignedZero() Signed { return Signed{v: new(big.Int)} }

// SignedOne returns 1.0.
func SignedOne() Signed { return Signed{v: new(big.Int).Set(signedOne)} }

// SignedMax returns the largest representable value.
func SignedMax() Signed { return Signed{v: new(big.Int).Set(signedMax)} }

// SignedFromU64 converts a token amount.
func SignedFromU64(value uint64) Signed {
	out := new(big.Int).SetUint64(value)
	return Signed{v: out.Mul(out, signedOne)}
}

// SignedFromDecimal interprets value as value*10^exponent.
func SignedFromDecimal(value uint64, exponent int32) Signed {
	out := new(big.Int).SetUint64(value)
	return Signed{v: rescale(out, exponent)}
}

// SignedFromPrice interprets a possibly negative oracle mantissa at the
// given exponent.
func SignedFromPrice(value int64, exponent int32) Signed {
	out := big.NewInt(value)
	return Signed{v: rescale(out, exponent)}
}

// SignedFromBps converts basis points into their fractional value.
func SignedFromBps(bps uint16) Signed {
	return SignedFromDecimal(uint64(bps), -4)
}

func rescale(mantissa *big.Int, exponent int32) *big.Int {
	shift := SignedPrecision + exponent
	if shift >= 0 {
		return mantissa.Mul(mantissa, bigPow10(shift))
	}
	return mantissa.Quo(mantissa, bigPow10(-shift))
}

func (s Signed) mantissa() *big.Int {
	if s.v == nil {
		return new(big.Int)
	}
	return s.v
}

// Add returns s + other.
func (s Signed) Add(other Signed) Signed {
	return Signed{v: new(big.Int).Add(s.mantissa(), other.mantissa())}
}

// Sub returns s - other.
func (s Signed) Sub(other Signed) Signed {
	return Signed{v: new(big.Int).Sub(s.mantissa(), other.mantissa())}
}

// SafeSub returns s - other, or ErrOverflow when the result would be
// negative. Used where a negative result indicates corrupted accounting.
func (s Signed) SafeSub(other Signed) (Signed, error) {
	out := new(big.Int).Sub(s.mantissa(), other.mantissa())
	if out.Sign() < 0 {
		return Signed{}, ErrOverflow
	}
	return Signed{v: out}, nil
}

// Mul returns s * other.
func (s Signed) Mul(other Signed) Signed {
	out := new(big.Int).Mul(s.mantissa(), other.mantissa())
	return Signed{v: out.Quo(out, signedOne)}
}

// Div returns s / other, panicking on a zero divisor.
func (s Signed) Div(other Signed) Signed {
	if other.mantissa().Sign() == 0 {
		panic("fixed: Signed division by zero")
	}
	out := new(big.Int).Mul(s.mantissa(), signedOne)
	return Signed{v: out.Quo(out, other.mantissa())}
}

// Neg returns -s.
func (s Signed) Neg() Signed {
	return Signed{v: new(big.Int).Neg(s.mantissa())}
}

// AsU64 truncates the value at the target exponent. Negative values are a
// programming error on the conversion paths and panic.
func (s Signed) AsU64(exponent int32) uint64 {
	m := s.mantissa()
	if m.Sign() < 0 {
		panic("fixed: negative Signed converted to u64")
	}
	shift := SignedPrecision + exponent
	out := new(big.Int).Set(m)
	if shift >= 0 {
		out.Quo(out, bigPow10(shift))
	} else {
		out.Mul(out, bigPow10(-shift))
	}
	if !out.IsUint64() {
		panic("fixed: Signed does not fit u64")
	}
	return out.Uint64()
}

// Cmp compares s and other, returning -1, 0 or 1.
func (s Signed) Cmp(other Signed) int {
	return s.mantissa().Cmp(other.mantissa())
}

// Sign returns -1, 0 or 1 according to the sign of the value.
func (s Signed) Sign() int { return s.mantissa().Sign() }

// IsZero reports whether the value is exactly zero.
func (s Signed) IsZero() bool { return s.mantissa().Sign() == 0 }

// String renders the value as a plain decimal.
func (s Signed) String() string {
	m := s.mantissa()
	sign := ""
	abs := new(big.Int).Abs(m)
	if m.Sign() < 0 {
		sign = "-"
	}
	whole := new(big.Int)
	frac := new(big.Int)
	whole.QuoRem(abs, signedOne, frac)
	digits := strings.TrimRight(padLeft(frac.String(), SignedPrecision), "0")
	if digits == "" {
		return sign + whole.String()
	}
	return sign + whole.String() + "." + digits
}

// ParseSigned reads a plain decimal produced by String.
func ParseSigned(s string) (Signed, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > SignedPrecision {
		return Signed{}, errors.New("fixed: too many decimal places for Signed")
	}
	mantissa, ok := new(big.Int).SetString(whole+frac+strings.Repeat("0", SignedPrecision-len(frac)), 10)
	if !ok {
		return Signed{}, errors.New("fixed: malformed Signed literal")
	}
	if neg {
		mantissa.Neg(mantissa)
	}
	return Signed{v: mantissa}, nil
}

// MarshalText implements encoding.TextMarshaler.
func (s Signed) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Signed) UnmarshalText(text []byte) error {
	parsed, err := ParseSigned(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func padLeft(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}
