package txpack

import (
	"math"

	"margind/core/types"
)

// condenseAttempts caps the merge loop; if exceeded the input is returned
// unmerged.
const condenseAttempts = 20

// Condense combines the instructions in the builders into the smallest
// number of transactions that respect the rules:
//   - instructions grouped in one builder stay in the same transaction
//   - no transaction exceeds the encoded size limit
//   - instruction order is preserved
//
// Bundling is biased toward the final transaction, which usually carries the
// user action the preceding state refreshes exist for.
func Condense(txs []Builder, payer types.Address, tables []LookupTable) []Builder {
	return CondenseRight(txs, payer, tables)
}

// CondenseFast merges greedily from the front. Use when grouping does not
// matter and delivery in the fewest transactions does.
func CondenseFast(txs []Builder, payer types.Address, tables []LookupTable) []Builder {
	return CondenseLeft(txs, payer, tables)
}

// CondenseRight maximizes the size of the last transaction rather than the
// first.
func CondenseRight(txs []Builder, payer types.Address, tables []LookupTable) []Builder {
	return deepReverse(CondenseLeft(deepReverse(txs), payer, tables))
}

// CondenseLeft maximizes the size of the first transaction rather than the
// last.
func CondenseLeft(txs []Builder, payer types.Address, tables []LookupTable) []Builder {
	useful := ExcludeUselessLookupTables(instructions(txs), tables)
	shrink := append([]Builder(nil), txs...)
	var condensed []Builder
	for attempts := 0; attempts < condenseAttempts; attempts++ {
		if len(shrink) == 0 {
			return condensed
		}
		next := findFirstCondensed(shrink, payer, useful)
		merged := join(shrink[:next])
		if len(merged.Instructions) > 0 {
			condensed = append(condensed, merged)
		}
		shrink = shrink[next:]
	}
	return txs
}

// findFirstCondensed searches for the largest run of builders starting at
// index 0 that merges into a single transaction under the size limit. A
// ratio-guided jump usually converges in a few probes; when it stalls, the
// search falls back to bisection.
func findFirstCondensed(txs []Builder, payer types.Address, tables []LookupTable) int {
	tryLen := len(txs)
	lo, hi := min(len(txs), 1), tryLen
	for lo != hi {
		probe := join(txs[:tryLen])
		var size int
		if len(tables) == 0 {
			size = len(probe.FakeEncode(payer))
		} else {
			size = len(probe.FakeEncodeWithLookup(payer, tables))
		}
		if size > MaxTransactionSize {
			hi = tryLen - 1
		} else {
			lo = tryLen
		}
		ratio := float64(MaxTransactionSize) / float64(size)
		maybeTry := int(math.Round(ratio * float64(tryLen)))
		maybeTry = min(hi, max(lo, maybeTry))
		if maybeTry == tryLen {
			tryLen = int(math.Round(float64(lo+hi) / 2))
		} else {
			tryLen = maybeTry
		}
	}
	return lo
}
