package txpack

import (
	"testing"

	"github.com/stretchr/testify/require"

	"margind/core/types"
)

func lookupAddr(name string) types.Address {
	return types.DeriveAddress([]byte("txpack-test"), []byte(name))
}

func namedIx(accounts ...string) Instruction {
	ix := Instruction{Program: lookupAddr("program")}
	for _, name := range accounts {
		ix.Accounts = append(ix.Accounts, AccountMeta{Address: lookupAddr(name)})
	}
	return ix
}

func namedTable(key string, accounts ...string) LookupTable {
	table := LookupTable{Key: lookupAddr(key)}
	for _, name := range accounts {
		table.Addresses = append(table.Addresses, lookupAddr(name))
	}
	return table
}

func tableNames(t *testing.T, tables []LookupTable, names map[types.Address]string) []string {
	t.Helper()
	out := []string{}
	for _, table := range tables {
		name, ok := names[table.Key]
		require.True(t, ok, "unexpected table %s", table.Key.Short())
		out = append(out, name)
	}
	return out
}

type optimizerCase struct {
	name string
	ixs  [][]string
	// tables are name -> addresses pairs, order preserved.
	tables [][]string
	// expected holds the optimal selection; roughExpected overrides the
	// expectation for the rough estimate when it legitimately differs.
	expected      []string
	roughExpected []string
}

func TestOptimizeLookupTables(t *testing.T) {
	cases := []optimizerCase{
		{
			name:     "no tables",
			ixs:      [][]string{{"true", "false"}},
			expected: []string{},
		},
		{
			name:     "no instructions",
			tables:   [][]string{{"good", "true", "false"}, {"bad", "true", "red"}},
			expected: []string{},
		},
		{
			name:     "basic",
			ixs:      [][]string{{"true", "false"}},
			tables:   [][]string{{"good", "true", "false"}, {"bad", "true", "red"}},
			expected: []string{"good"},
		},
		{
			name: "hierarchy",
			ixs:  [][]string{{"a", "b", "c"}, {"d", "e", "f", "g", "h"}},
			tables: [][]string{
				{"complete", "a", "b", "c", "d", "e", "f", "g", "h"},
				{"-1", "b", "c", "d", "e", "f", "g", "h"},
				{"-2", "c", "d", "e", "f", "g", "h"},
				{"-3", "d", "e", "f", "g", "h"},
				{"-4", "e", "f", "g", "h"},
				{"-5", "f", "g", "h"},
				{"-6", "g", "h"},
				{"-7", "h"},
			},
			expected: []string{"complete"},
		},
		{
			name: "diagonal hierarchy",
			ixs:  [][]string{{"a", "b", "c"}, {"d", "e", "f", "g", "h"}},
			tables: [][]string{
				{"best", "a", "b", "c", "d", "e", "f", "g"},
				{"-1", "b", "c", "d", "e", "f", "h"},
				{"-2", "c", "d", "e", "g", "h"},
				{"-3", "d", "f", "g", "h"},
				{"-5", "f", "g", "h"},
				{"-6", "g", "h"},
				{"-7", "h"},
			},
			expected: []string{"best"},
		},
		{
			name: "multi",
			ixs:  [][]string{{"red", "green", "blue", "true", "false"}},
			tables: [][]string{
				{"bool", "true", "false"},
				{"color", "red", "green", "blue"},
			},
			expected: []string{"bool", "color"},
		},
		{
			name: "weak overlap loses",
			ixs:  [][]string{{"red", "green", "blue", "true", "false", "n", "s", "e", "w"}},
			tables: [][]string{
				{"bool", "true", "false"},
				{"color", "red", "green", "blue"},
				{"direction", "n", "s", "e", "w"},
				{"weak", "red", "green", "true", "n", "s", "e"},
			},
			expected:      []string{"bool", "color", "direction"},
			roughExpected: []string{"weak"},
		},
		{
			name: "strong overlap wins",
			ixs:  [][]string{{"red", "green", "blue", "true", "false", "n", "s", "e", "w"}},
			tables: [][]string{
				{"bool", "true", "false"},
				{"color", "red", "green", "blue"},
				{"direction", "n", "s", "e", "w"},
				{"strong", "red", "green", "true", "false", "n", "s", "e"},
			},
			expected: []string{"strong"},
		},
		{
			name: "strong pair wins",
			ixs:  [][]string{{"red", "green", "blue", "true", "false", "n", "s", "e", "w"}},
			tables: [][]string{
				{"bool", "true", "false"},
				{"color", "red", "green", "blue"},
				{"direction", "n", "s", "e", "w"},
				{"one", "true", "red", "n"},
				{"two", "false", "green", "s", "e", "w"},
			},
			expected:      []string{"one", "two"},
			roughExpected: []string{"color", "one", "two"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var ixs []Instruction
			for _, accounts := range tc.ixs {
				ixs = append(ixs, namedIx(accounts...))
			}
			var tables []LookupTable
			names := make(map[types.Address]string)
			for _, spec := range tc.tables {
				tables = append(tables, namedTable(spec[0], spec[1:]...))
				names[lookupAddr(spec[0])] = spec[0]
			}

			perfect := PerfectlyOptimizeLookupTables(ixs, tables)
			require.ElementsMatch(t, tc.expected, tableNames(t, perfect, names), "perfect")

			balanced := OptimizeLookupTables(ixs, tables)
			require.ElementsMatch(t, tc.expected, tableNames(t, balanced, names), "balanced")

			roughExpected := tc.expected
			if tc.roughExpected != nil {
				roughExpected = tc.roughExpected
			}
			rough := RoughlyOptimizeLookupTables(ixs, tables)
			require.ElementsMatch(t, roughExpected, tableNames(t, rough, names), "rough")
		})
	}
}

func TestExcludeUselessLookupTables(t *testing.T) {
	ixs := []Instruction{namedIx("a", "b", "c")}
	tables := []LookupTable{
		namedTable("useful", "a", "b"),
		namedTable("single", "c", "x"),
		namedTable("unrelated", "x", "y", "z"),
	}
	names := map[types.Address]string{
		lookupAddr("useful"):    "useful",
		lookupAddr("single"):    "single",
		lookupAddr("unrelated"): "unrelated",
	}
	kept := ExcludeUselessLookupTables(ixs, tables)
	require.ElementsMatch(t, []string{"useful"}, tableNames(t, kept, names))
}
