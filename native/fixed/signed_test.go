package fixed

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignedFromPrice(t *testing.T) {
	price := SignedFromPrice(123_450_000, -8) // 1.2345
	require.Equal(t, "1.2345", price.String())

	neg := SignedFromPrice(-500, -2)
	require.Equal(t, "-5", neg.String())
	require.Equal(t, -1, neg.Sign())
}

func TestSignedArithmetic(t *testing.T) {
	a := SignedFromU64(100)
	b := SignedFromU64(40)

	require.Equal(t, "140", a.Add(b).String())
	require.Equal(t, "60", a.Sub(b).String())
	require.Equal(t, "-60", b.Sub(a).String())
	require.Equal(t, "4000", a.Mul(b).String())
	require.Equal(t, "2.5", a.Div(b).String())
	require.Equal(t, "-100", a.Neg().String())
}

func TestSignedSafeSub(t *testing.T) {
	a := SignedFromU64(10)
	b := SignedFromU64(3)

	out, err := a.SafeSub(b)
	require.NoError(t, err)
	require.Equal(t, "7", out.String())

	_, err = b.SafeSub(a)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestSignedAsU64(t *testing.T) {
	v := SignedFromDecimal(123_456, -3)
	require.Equal(t, uint64(123), v.AsU64(0))
	require.Equal(t, uint64(123_456), v.AsU64(-3))
	require.Panics(t, func() { SignedFromPrice(-1, 0).AsU64(0) })
}

func TestSignedZeroValue(t *testing.T) {
	var zero Signed
	require.True(t, zero.IsZero())
	require.Equal(t, "0", zero.String())
	require.Equal(t, "5", zero.Add(SignedFromU64(5)).String())
	require.True(t, SignedMax().Cmp(SignedFromU64(1<<62)) > 0)
}

func TestSignedBps(t *testing.T) {
	require.Equal(t, "0.05", SignedFromBps(500).String())
	fee := SignedFromBps(500).Div(SignedOne().Add(SignedFromBps(500)))
	// 0.05/1.05 = 0.047619...
	require.Equal(t, "0.0476190476", fee.String())
}
