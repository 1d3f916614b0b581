package margin

import (
	"sort"

	"margind/core/types"
)

// PositionKey locates a position in the arena by mint.
type PositionKey struct {
	// Mint is the position's token mint.
	Mint types.Address `json:"mint"`

	// Index is the arena slot the position occupies.
	Index int `json:"index"`
}

// PositionList is the fixed arena of positions held by one account. A sorted
// key map over the occupied slots keeps lookups to a binary search while
// slots themselves never move.
type PositionList struct {
	Length    int                              `json:"length"`
	Keys      [MaxAccountPositions]PositionKey `json:"keys"`
	Positions [MaxAccountPositions]Position    `json:"positions"`
}

// Add reserves a slot for a new position. When the mint is already present
// the existing key is returned with a nil position; otherwise the returned
// position points at the freshly claimed slot, which the caller must
// initialize.
func (l *PositionList) Add(mint types.Address) (PositionKey, *Position, error) {
	for _, key := range l.Keys[:l.Length] {
		if key.Mint == mint {
			return key, nil, nil
		}
	}

	free := -1
	for i := range l.Positions {
		if l.Positions[i].Token.IsZero() {
			free = i
			break
		}
	}
	if free < 0 {
		return PositionKey{}, nil, ErrMaxPositions
	}

	key := PositionKey{Mint: mint, Index: free}
	l.Keys[l.Length] = key
	l.Length++
	sort.Slice(l.Keys[:l.Length], func(i, j int) bool {
		return l.Keys[i].Mint.Compare(l.Keys[j].Mint) < 0
	})

	position := &l.Positions[free]
	position.Token = mint
	return key, position, nil
}

// Remove frees the slot for a mint. The registered custodian must match the
// one provided.
func (l *PositionList) Remove(mint, custodian types.Address) (Position, error) {
	mapIndex, ok := l.mapIndex(mint)
	if !ok {
		return Position{}, ErrPositionNotRegistered
	}
	key := l.Keys[mapIndex]
	removed := l.Positions[key.Index]
	if removed.Custodian != custodian {
		return Position{}, ErrPositionNotRegistered
	}

	l.Positions[key.Index] = Position{}
	copy(l.Keys[mapIndex:l.Length-1], l.Keys[mapIndex+1:l.Length])
	l.Keys[l.Length-1] = PositionKey{}
	l.Length--

	return removed, nil
}

// Get returns the position for a mint, or nil when absent. The pointer
// aliases the arena slot and stays valid until the position is removed.
func (l *PositionList) Get(mint types.Address) *Position {
	key, ok := l.GetKey(mint)
	if !ok {
		return nil
	}
	return &l.Positions[key.Index]
}

// GetKey returns the arena key for a mint.
func (l *PositionList) GetKey(mint types.Address) (PositionKey, bool) {
	i, ok := l.mapIndex(mint)
	if !ok {
		return PositionKey{}, false
	}
	return l.Keys[i], true
}

// ByKey resolves a previously obtained key, falling back to a fresh lookup
// when the slot no longer holds the expected mint.
func (l *PositionList) ByKey(key PositionKey) *Position {
	if key.Index >= 0 && key.Index < MaxAccountPositions {
		if p := &l.Positions[key.Index]; p.Token == key.Mint {
			return p
		}
	}
	return l.Get(key.Mint)
}

func (l *PositionList) mapIndex(mint types.Address) (int, bool) {
	keys := l.Keys[:l.Length]
	i := sort.Search(len(keys), func(i int) bool {
		return keys[i].Mint.Compare(mint) >= 0
	})
	if i < len(keys) && keys[i].Mint == mint {
		return i, true
	}
	return 0, false
}
