package txpack

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"margind/core/types"
)

func payloadIx(size int) Instruction {
	return Instruction{
		Program: lookupAddr("program"),
		Accounts: []AccountMeta{
			{Address: lookupAddr("state"), Writable: true},
		},
		Data: make([]byte, size),
	}
}

func TestFakeEncodeSize(t *testing.T) {
	payer := lookupAddr("payer")
	b := FromInstructions(payloadIx(100))

	raw, err := base64.StdEncoding.DecodeString(b.FakeEncode(payer))
	require.NoError(t, err)

	// 1 signature count + 64 signature + 3 header + 1 key count +
	// 3 keys + blockhash + 1 instruction count + instruction body
	// (program index, account count, account index, data length, data).
	expected := 1 + 64 + 3 + 1 + 3*32 + 32 + 1 + (1 + 1 + 1 + 1 + 100)
	require.Len(t, raw, expected)
}

func TestFakeEncodeWithLookupShrinks(t *testing.T) {
	payer := lookupAddr("payer")
	ix := Instruction{Program: lookupAddr("program")}
	var addrs []types.Address
	for i := 0; i < 20; i++ {
		addr := lookupAddr(string(rune('A' + i)))
		addrs = append(addrs, addr)
		ix.Accounts = append(ix.Accounts, AccountMeta{Address: addr})
	}
	b := FromInstructions(ix)
	table := LookupTable{Key: lookupAddr("table"), Addresses: addrs}

	plain := len(b.FakeEncode(payer))
	packed := len(b.FakeEncodeWithLookup(payer, []LookupTable{table}))
	require.Less(t, packed, plain)
}

func TestCondenseMergesSmallGroups(t *testing.T) {
	payer := lookupAddr("payer")
	txs := []Builder{
		FromInstructions(payloadIx(10), payloadIx(11)),
		FromInstructions(payloadIx(12)),
		FromInstructions(payloadIx(13)),
	}

	out := Condense(txs, payer, nil)
	require.Len(t, out, 1)
	require.Len(t, out[0].Instructions, 4)

	// Instruction order is preserved across the merge.
	sizes := make([]int, 0, 4)
	for _, ix := range out[0].Instructions {
		sizes = append(sizes, len(ix.Data))
	}
	require.Equal(t, []int{10, 11, 12, 13}, sizes)
}

func TestCondenseRightBiasesFinalTransaction(t *testing.T) {
	payer := lookupAddr("payer")

	// Each instruction adds 104 encoded bytes on a 198 byte base; six fit
	// under the limit, seven do not.
	var txs []Builder
	for i := 0; i < 14; i++ {
		txs = append(txs, FromInstructions(payloadIx(100)))
	}

	right := Condense(txs, payer, nil)
	require.Len(t, right, 3)
	require.Len(t, right[0].Instructions, 2)
	require.Len(t, right[1].Instructions, 6)
	require.Len(t, right[2].Instructions, 6)

	fast := CondenseFast(txs, payer, nil)
	require.Len(t, fast, 3)
	require.Len(t, fast[0].Instructions, 6)
	require.Len(t, fast[1].Instructions, 6)
	require.Len(t, fast[2].Instructions, 2)
}

func TestCondenseKeepsOversizeGroupIntact(t *testing.T) {
	payer := lookupAddr("payer")
	txs := []Builder{
		FromInstructions(payloadIx(2000)),
		FromInstructions(payloadIx(10)),
	}

	// A group that cannot fit on its own is never split; the input comes
	// back unmerged.
	out := Condense(txs, payer, nil)
	require.Len(t, out, 2)
	require.Len(t, out[0].Instructions, 1)
	require.Equal(t, 2000, len(out[0].Instructions[0].Data))
}

func TestCondenseEmpty(t *testing.T) {
	require.Empty(t, Condense(nil, lookupAddr("payer"), nil))
}
