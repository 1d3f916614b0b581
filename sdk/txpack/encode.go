package txpack

import (
	"encoding/base64"

	"margind/core/types"
)

const (
	signatureSize   = 64
	blockhashSize   = 32
	versionedPrefix = 0x80
)

type keyMeta struct {
	address  types.Address
	signer   bool
	writable bool
	program  bool
}

type tableLookup struct {
	key      types.Address
	writable []byte
	readonly []byte
}

// compiled is a transaction message resolved to an ordered key list, ready
// to encode.
type compiled struct {
	requiredSignatures int
	readonlySigned     int
	readonlyUnsigned   int
	keys               []types.Address
	lookups            []tableLookup
	instructions       []Instruction

	// indexOf covers static keys and looked-up addresses.
	indexOf map[types.Address]int
}

// compile resolves instructions against the payer and optional lookup tables
// into a message. Keys order: payer, writable signers, readonly signers,
// writable non-signers, readonly non-signers; looked-up addresses follow the
// static keys table by table, writable before readonly.
func compile(ixs []Instruction, payer types.Address, tables []LookupTable) compiled {
	metas := make(map[types.Address]*keyMeta)
	var order []types.Address
	touch := func(addr types.Address) *keyMeta {
		if m, ok := metas[addr]; ok {
			return m
		}
		m := &keyMeta{address: addr}
		metas[addr] = m
		order = append(order, addr)
		return m
	}

	payerMeta := touch(payer)
	payerMeta.signer = true
	payerMeta.writable = true
	for _, ix := range ixs {
		touch(ix.Program).program = true
		for _, acct := range ix.Accounts {
			m := touch(acct.Address)
			m.signer = m.signer || acct.Signer
			m.writable = m.writable || acct.Writable
		}
	}
	c := compiled{instructions: ixs, indexOf: make(map[types.Address]int)}

	// Non-signer, non-program addresses move into lookup tables when a
	// selected table provides them. First table providing wins.
	looked := make(map[types.Address]int)
	lookups := make([]tableLookup, len(tables))
	for i, table := range tables {
		lookups[i].key = table.Key
		for _, addr := range order {
			if _, taken := looked[addr]; taken {
				continue
			}
			m := metas[addr]
			if m.signer || m.program || addr == payer || !table.contains(addr) {
				continue
			}
			looked[addr] = i
		}
	}

	appendClass := func(signer, writable bool) {
		for _, addr := range order {
			m := metas[addr]
			if addr == payer || m.signer != signer || m.writable != writable {
				continue
			}
			if _, external := looked[addr]; external {
				continue
			}
			c.indexOf[addr] = len(c.keys)
			c.keys = append(c.keys, addr)
		}
	}

	c.indexOf[payer] = 0
	c.keys = append(c.keys, payer)
	appendClass(true, true)
	writableSigned := len(c.keys)
	appendClass(true, false)
	c.requiredSignatures = len(c.keys)
	c.readonlySigned = c.requiredSignatures - writableSigned
	appendClass(false, true)
	writableTotal := len(c.keys)
	appendClass(false, false)
	c.readonlyUnsigned = len(c.keys) - writableTotal

	// Looked-up address indexes continue after the static keys, writable
	// entries of every table before any readonly entries.
	next := len(c.keys)
	for class := 0; class < 2; class++ {
		for i := range lookups {
			for _, addr := range tables[i].Addresses {
				tableIdx, ok := looked[addr]
				if !ok || tableIdx != i {
					continue
				}
				writable := metas[addr].writable
				if (class == 0) != writable {
					continue
				}
				rowIndex := byte(positionIn(tables[i].Addresses, addr))
				if writable {
					lookups[i].writable = append(lookups[i].writable, rowIndex)
				} else {
					lookups[i].readonly = append(lookups[i].readonly, rowIndex)
				}
				c.indexOf[addr] = next
				next++
			}
		}
	}
	for i := range lookups {
		if len(lookups[i].writable) > 0 || len(lookups[i].readonly) > 0 {
			c.lookups = append(c.lookups, lookups[i])
		}
	}
	return c
}

func positionIn(addresses []types.Address, addr types.Address) int {
	for i, a := range addresses {
		if a == addr {
			return i
		}
	}
	return -1
}

// encode serializes the message with placeholder signatures, producing bytes
// of the same length a submitted transaction would have.
func (c *compiled) encode() []byte {
	var out []byte
	out = appendShortvec(out, c.requiredSignatures)
	out = append(out, make([]byte, c.requiredSignatures*signatureSize)...)

	if len(c.lookups) > 0 {
		out = append(out, versionedPrefix)
	}
	out = append(out, byte(c.requiredSignatures), byte(c.readonlySigned), byte(c.readonlyUnsigned))
	out = appendShortvec(out, len(c.keys))
	for _, key := range c.keys {
		out = append(out, key[:]...)
	}
	out = append(out, make([]byte, blockhashSize)...)
	out = appendShortvec(out, len(c.instructions))
	for _, ix := range c.instructions {
		out = append(out, byte(c.indexOf[ix.Program]))
		out = appendShortvec(out, len(ix.Accounts))
		for _, acct := range ix.Accounts {
			out = append(out, byte(c.indexOf[acct.Address]))
		}
		out = appendShortvec(out, len(ix.Data))
		out = append(out, ix.Data...)
	}
	if len(c.lookups) > 0 {
		out = appendShortvec(out, len(c.lookups))
		for _, lookup := range c.lookups {
			out = append(out, lookup.key[:]...)
			out = appendShortvec(out, len(lookup.writable))
			out = append(out, lookup.writable...)
			out = appendShortvec(out, len(lookup.readonly))
			out = append(out, lookup.readonly...)
		}
	}
	return out
}

func appendShortvec(out []byte, n int) []byte {
	for {
		if n < 0x80 {
			return append(out, byte(n))
		}
		out = append(out, byte(n&0x7f)|0x80)
		n >>= 7
	}
}

// FakeEncode serializes the builder with placeholder signatures into the
// base64 form a submitted transaction takes, for size measurement.
func (b Builder) FakeEncode(payer types.Address) string {
	c := compile(b.Instructions, payer, nil)
	return base64.StdEncoding.EncodeToString(c.encode())
}

// FakeEncodeWithLookup is FakeEncode against the optimal subset of the given
// lookup tables.
func (b Builder) FakeEncodeWithLookup(payer types.Address, tables []LookupTable) string {
	optimal := OptimizeLookupTables(b.Instructions, tables)
	c := compile(b.Instructions, payer, optimal)
	return base64.StdEncoding.EncodeToString(c.encode())
}
