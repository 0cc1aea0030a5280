// Package territory tracks block ownership and occupation progress.
package territory

import (
	"errors"
	"sort"
)

// occupationTarget is the progress at which a sole occupier takes ownership.
const occupationTarget = 3

// ErrBlockNotFound indicates a lookup for an unknown block id.
var ErrBlockNotFound = errors.New("block not found")

// Block is one location on the scenario grid.
type Block struct {
	ID    string `json:"id"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Label string `json:"label"`
	// Points is the victory value assigned by the scenario editor.
	Points int `json:"points"`
	// OwnerFactionID is empty while the block is unowned.
	OwnerFactionID string `json:"ownerFactionId,omitempty"`
	// Progress counts consecutive global turns of sole occupation, 0-3.
	Progress int `json:"progress"`
}

// Map is the authoritative block collection. Like the roster store it is
// owned by the host's event loop; ownership and progress are mutated only
// through the ledger tick and combat victory transfer.
type Map struct {
	blocks map[string]Block
}

// NewMap creates an empty block map.
func NewMap() *Map {
	return &Map{blocks: make(map[string]Block)}
}

// Put inserts or replaces a block.
func (m *Map) Put(b Block) {
	m.blocks[b.ID] = b
}

// Get returns the block with the given id.
func (m *Map) Get(id string) (Block, error) {
	b, ok := m.blocks[id]
	if !ok {
		return Block{}, ErrBlockNotFound
	}
	return b, nil
}

// Blocks returns all blocks ordered by id.
func (m *Map) Blocks() []Block {
	out := make([]Block, 0, len(m.blocks))
	for _, b := range m.blocks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ReplaceAll swaps the whole block collection, used by clients applying
// authoritative territory snapshots.
func (m *Map) ReplaceAll(blocks []Block) {
	m.blocks = make(map[string]Block, len(blocks))
	for _, b := range blocks {
		m.blocks[b.ID] = b
	}
}

// Transfer assigns ownership of a block to a faction and resets its
// occupation progress. Used by combat victory resolution.
func (m *Map) Transfer(blockID, factionID string) error {
	b, ok := m.blocks[blockID]
	if !ok {
		return ErrBlockNotFound
	}
	b.OwnerFactionID = factionID
	b.Progress = 0
	m.blocks[blockID] = b
	return nil
}

// Presence reports which factions occupy each block. The input maps a block
// id to the set of faction ids with at least one member there.
type Presence func(blockID string) map[string]bool

// Tick advances occupation for every block by one global turn.
//
// A block progresses only while exactly one faction is present and that
// faction is not already the owner; ownership transfers once progress
// reaches the target. Any other presence pattern resets progress to zero.
// Tick returns the ids of blocks whose owner changed, ordered by id.
func (m *Map) Tick(presence Presence) []string {
	var transferred []string
	for id, b := range m.blocks {
		present := presence(id)
		if len(present) != 1 {
			b.Progress = 0
			m.blocks[id] = b
			continue
		}
		var sole string
		for factionID := range present {
			sole = factionID
		}
		if sole == b.OwnerFactionID {
			b.Progress = 0
			m.blocks[id] = b
			continue
		}
		b.Progress++
		if b.Progress >= occupationTarget {
			b.OwnerFactionID = sole
			b.Progress = 0
			transferred = append(transferred, id)
		}
		m.blocks[id] = b
	}
	sort.Strings(transferred)
	return transferred
}

// RandomUnowned picks an unowned block using the provided roll function,
// which must return a value in [1, n] for n options. When every block is
// owned it falls back to any block. It returns false only for an empty map.
func (m *Map) RandomUnowned(roll func(n int) int) (Block, bool) {
	var unowned []Block
	for _, b := range m.Blocks() {
		if b.OwnerFactionID == "" {
			unowned = append(unowned, b)
		}
	}
	candidates := unowned
	if len(candidates) == 0 {
		candidates = m.Blocks()
	}
	if len(candidates) == 0 {
		return Block{}, false
	}
	return candidates[roll(len(candidates))-1], true
}
