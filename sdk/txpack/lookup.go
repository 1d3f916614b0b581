package txpack

import (
	"sort"

	"margind/core/types"
)

// perfectSearchLimit bounds the candidate count for the exhaustive search;
// above it only the dominance filter runs.
const perfectSearchLimit = 10

// OptimizeLookupTables selects a subset of lookup tables for the provided
// instructions to minimize encoded transaction size.
//
// The output is guaranteed optimal as long as fewer than ten tables both
// provide more than one needed address and are not subsumed by another table.
// Past that, a dominance filter keeps the result good but possibly imperfect.
func OptimizeLookupTables(ixs []Instruction, tables []LookupTable) []LookupTable {
	if len(tables) == 0 {
		return nil
	}
	deduped := excludeSubsetsAndUseless(tableIntersections(ixs, tables), 0)
	if len(deduped) == 1 {
		return []LookupTable{tables[deduped[0].table]}
	}
	if len(deduped) < perfectSearchLimit {
		return pick(tables, perfectlyOptimize(deduped))
	}
	return pick(tables, indexes(excludeSubsetsAndUseless(deduped, 1)))
}

// PerfectlyOptimizeLookupTables always selects the ideal table subset. The
// search is exponential in the number of useful tables, so callers must know
// the input is small.
func PerfectlyOptimizeLookupTables(ixs []Instruction, tables []LookupTable) []LookupTable {
	if len(tables) == 0 {
		return nil
	}
	deduped := excludeSubsetsAndUseless(tableIntersections(ixs, tables), 0)
	if len(deduped) == 1 {
		return []LookupTable{tables[deduped[0].table]}
	}
	return pick(tables, perfectlyOptimize(deduped))
}

// ExcludeUselessLookupTables drops tables that cannot help the instructions:
// tables providing at most one needed address, and tables whose contribution
// is covered entirely by a table with at least as many matches. Useful as a
// first-pass filter before the instructions are grouped into transactions.
func ExcludeUselessLookupTables(ixs []Instruction, tables []LookupTable) []LookupTable {
	return basicOptimization(ixs, tables, 0)
}

// RoughlyOptimizeLookupTables quickly estimates an optimal set, additionally
// dropping tables that add only one address over some other table. Good for
// ballpark size estimates.
func RoughlyOptimizeLookupTables(ixs []Instruction, tables []LookupTable) []LookupTable {
	return basicOptimization(ixs, tables, 1)
}

type intersection struct {
	table     int
	addresses map[types.Address]struct{}
}

func indexes(isects []intersection) []int {
	out := make([]int, len(isects))
	for i, isect := range isects {
		out[i] = isect.table
	}
	return out
}

func pick(tables []LookupTable, tableIndexes []int) []LookupTable {
	sort.Ints(tableIndexes)
	out := make([]LookupTable, 0, len(tableIndexes))
	for _, i := range tableIndexes {
		out = append(out, tables[i])
	}
	return out
}

func basicOptimization(ixs []Instruction, tables []LookupTable, maxNovel int) []LookupTable {
	if len(tables) == 0 {
		return nil
	}
	kept := excludeSubsetsAndUseless(tableIntersections(ixs, tables), maxNovel)
	return pick(tables, indexes(kept))
}

// tableIntersections computes, per table, the set of addresses the table
// shares with the instructions. Tables providing at most one address are
// dropped up front.
func tableIntersections(ixs []Instruction, tables []LookupTable) []intersection {
	needed := make(map[types.Address]struct{})
	for _, ix := range ixs {
		for _, acct := range ix.Accounts {
			needed[acct.Address] = struct{}{}
		}
	}
	var out []intersection
	for i, table := range tables {
		isect := make(map[types.Address]struct{})
		for _, addr := range table.Addresses {
			if _, ok := needed[addr]; ok {
				isect[addr] = struct{}{}
			}
		}
		if len(isect) > 1 {
			out = append(out, intersection{table: i, addresses: isect})
		}
	}
	return out
}

// excludeSubsetsAndUseless removes any intersection that adds at most
// maxNovel addresses over a later (larger or equal sized) one.
func excludeSubsetsAndUseless(isects []intersection, maxNovel int) []intersection {
	sort.SliceStable(isects, func(i, j int) bool {
		return len(isects[i].addresses) < len(isects[j].addresses)
	})
	var kept []intersection
outer:
	for i, candidate := range isects {
		for _, larger := range isects[i+1:] {
			if numNotIn(candidate.addresses, larger.addresses) <= maxNovel {
				continue outer
			}
		}
		kept = append(kept, candidate)
	}
	return kept
}

func numNotIn(sub, sup map[types.Address]struct{}) int {
	n := 0
	for addr := range sub {
		if _, ok := sup[addr]; !ok {
			n++
		}
	}
	return n
}

// perfectlyOptimize brute-forces every combination of tables and keeps the
// one with the best byte adjustment: each selected table costs its 32-byte
// key, each covered address shrinks from 32 bytes to a 1-byte index.
func perfectlyOptimize(isects []intersection) []int {
	best := []int{}
	bestScore := 0
	for combo := 1; combo < 1<<len(isects); combo++ {
		combined := make(map[types.Address]struct{})
		count := 0
		for i := range isects {
			if combo&(1<<i) == 0 {
				continue
			}
			count++
			for addr := range isects[i].addresses {
				combined[addr] = struct{}{}
			}
		}
		score := (count-len(combined))*32 + len(combined)
		if score < bestScore {
			bestScore = score
			best = best[:0]
			for i := range isects {
				if combo&(1<<i) != 0 {
					best = append(best, isects[i].table)
				}
			}
		}
	}
	return best
}
