package types

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"lukechampine.com/blake3"
)

// AddressLength is the byte length of protocol identities.
const AddressLength = 32

// ErrInvalidAddress is returned when decoding malformed address text.
var ErrInvalidAddress = errors.New("types: invalid address")

// Address identifies accounts, mints, vaults and programs. The zero value is
// the sentinel "no address" and doubles as the core-program owner marker on
// positions.
type Address [AddressLength]byte

// ZeroAddress is the empty sentinel address.
var ZeroAddress Address

// ParseAddress decodes a hex address with optional 0x prefix.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != AddressLength {
		return Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, AddressLength, len(raw))
	}
	var a Address
	copy(a[:], raw)
	return a, nil
}

// DeriveAddress produces a deterministic identity from the given seeds,
// mirroring how program-derived accounts are addressed. The same seeds always
// yield the same address.
func DeriveAddress(seeds ...[]byte) Address {
	h := blake3.New(AddressLength, nil)
	for _, seed := range seeds {
		_, _ = h.Write(seed)
	}
	var a Address
	copy(a[:], h.Sum(nil))
	return a
}

// IsZero reports whether the address is the empty sentinel.
func (a Address) IsZero() bool { return a == ZeroAddress }

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out
}

// String renders the address as 0x-prefixed hex.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Short renders a truncated form for log lines.
func (a Address) Short() string {
	full := hex.EncodeToString(a[:])
	return "0x" + full[:8] + ".." + full[len(full)-4:]
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Compare orders addresses lexicographically by raw bytes.
func (a Address) Compare(other Address) int {
	for i := 0; i < AddressLength; i++ {
		switch {
		case a[i] < other[i]:
			return -1
		case a[i] > other[i]:
			return 1
		}
	}
	return 0
}
