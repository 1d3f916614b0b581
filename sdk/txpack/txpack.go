// Package txpack builds, sizes and bundles protocol transactions. A Builder
// groups instructions that must land in the same transaction; Condense merges
// builders into the fewest transactions that fit the wire size limit, and the
// lookup-table optimizer picks the table subset that minimizes encoded size.
package txpack

import (
	"margind/core/types"
)

// MaxTransactionSize is the encoded transaction size limit in bytes.
const MaxTransactionSize = 1232

// AccountMeta names an account an instruction touches.
type AccountMeta struct {
	Address  types.Address `json:"address"`
	Signer   bool          `json:"signer,omitempty"`
	Writable bool          `json:"writable,omitempty"`
}

// Instruction is a single program invocation.
type Instruction struct {
	Program  types.Address `json:"program"`
	Accounts []AccountMeta `json:"accounts"`
	Data     []byte        `json:"data,omitempty"`
}

// LookupTable maps addresses to compact one-byte indexes. Transactions that
// reference a table spend 32 bytes once and one byte per looked-up address
// instead of 32 bytes per address.
type LookupTable struct {
	Key       types.Address   `json:"key"`
	Addresses []types.Address `json:"addresses"`
}

func (t *LookupTable) contains(addr types.Address) bool {
	for _, a := range t.Addresses {
		if a == addr {
			return true
		}
	}
	return false
}

// Builder is a group of instructions expected to execute in the same
// transaction. Builders can be concatenated, and Condense merges many of them
// into as few transactions as fit.
type Builder struct {
	Instructions []Instruction

	// Signers are additional required signer addresses beyond the payer,
	// typically accounts being initialized by the included instructions.
	Signers []types.Address
}

// FromInstructions wraps instructions in a single Builder group.
func FromInstructions(instructions ...Instruction) Builder {
	return Builder{Instructions: instructions}
}

// Concat appends another builder's instructions and signers.
func (b Builder) Concat(other Builder) Builder {
	b.Instructions = append(b.Instructions, other.Instructions...)
	b.Signers = append(b.Signers, other.Signers...)
	return b
}

// Prune drops duplicate signers and signers no instruction requires.
func (b *Builder) Prune() {
	seen := make(map[types.Address]struct{}, len(b.Signers))
	kept := b.Signers[:0]
	for _, signer := range b.Signers {
		if _, dup := seen[signer]; dup || !b.needsSignature(signer) {
			continue
		}
		seen[signer] = struct{}{}
		kept = append(kept, signer)
	}
	b.Signers = kept
}

func (b *Builder) needsSignature(addr types.Address) bool {
	for _, ix := range b.Instructions {
		for _, meta := range ix.Accounts {
			if meta.Signer && meta.Address == addr {
				return true
			}
		}
	}
	return false
}

// join merges a run of builders into one group.
func join(txs []Builder) Builder {
	var out Builder
	for _, tx := range txs {
		out = out.Concat(tx)
	}
	return out
}

// deepReverse reverses the builder order and each builder's instruction
// order, so that condensing from the left becomes condensing from the right.
func deepReverse(txs []Builder) []Builder {
	out := make([]Builder, len(txs))
	for i, tx := range txs {
		reversed := Builder{
			Instructions: make([]Instruction, len(tx.Instructions)),
			Signers:      tx.Signers,
		}
		for j, ix := range tx.Instructions {
			reversed.Instructions[len(tx.Instructions)-1-j] = ix
		}
		out[len(txs)-1-i] = reversed
	}
	return out
}

// instructions iterates every instruction across all builders.
func instructions(txs []Builder) []Instruction {
	var out []Instruction
	for _, tx := range txs {
		out = append(out, tx.Instructions...)
	}
	return out
}
