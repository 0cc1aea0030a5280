// Package roster holds the player, team, and faction state for a match.
package roster

import (
	"errors"
	"sort"
)

// ErrProfileNotFound indicates a lookup for an unknown player id.
var ErrProfileNotFound = errors.New("player profile not found")

// ErrFactionNotFound indicates a lookup for an unknown faction id.
var ErrFactionNotFound = errors.New("faction not found")

// Store is the authoritative collection of factions and player profiles.
//
// The store is owned by the host's event loop and is not safe for concurrent
// mutation; clients hold read-only copies that incoming snapshots replace
// wholesale.
type Store struct {
	factions map[string]Faction
	profiles map[string]PlayerProfile
}

// NewStore creates an empty roster store.
func NewStore() *Store {
	return &Store{
		factions: make(map[string]Faction),
		profiles: make(map[string]PlayerProfile),
	}
}

// PutFaction inserts or replaces a faction.
func (s *Store) PutFaction(f Faction) {
	s.factions[f.ID] = f
}

// Faction returns the faction with the given id.
func (s *Store) Faction(id string) (Faction, error) {
	f, ok := s.factions[id]
	if !ok {
		return Faction{}, ErrFactionNotFound
	}
	return f, nil
}

// Factions returns all factions ordered by id.
func (s *Store) Factions() []Faction {
	out := make([]Faction, 0, len(s.factions))
	for _, f := range s.factions {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Put inserts or replaces a player profile.
func (s *Store) Put(p PlayerProfile) {
	s.profiles[p.ID] = p
}

// Get returns the profile with the given id.
func (s *Store) Get(id string) (PlayerProfile, error) {
	p, ok := s.profiles[id]
	if !ok {
		return PlayerProfile{}, ErrProfileNotFound
	}
	return p, nil
}

// Profiles returns all profiles ordered by id.
func (s *Store) Profiles() []PlayerProfile {
	out := make([]PlayerProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AtBlock returns the profiles currently located at the given block,
// ordered by id.
func (s *Store) AtBlock(blockID string) []PlayerProfile {
	var out []PlayerProfile
	for _, p := range s.profiles {
		if p.BlockID == blockID && blockID != "" {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FactionsAt returns the set of faction ids with at least one member located
// at the given block.
func (s *Store) FactionsAt(blockID string) map[string]bool {
	present := make(map[string]bool)
	for _, p := range s.AtBlock(blockID) {
		present[p.FactionID] = true
	}
	return present
}

// SameTeam reports whether two players share both faction and team.
func (s *Store) SameTeam(aID, bID string) bool {
	a, okA := s.profiles[aID]
	b, okB := s.profiles[bID]
	return okA && okB && a.FactionID == b.FactionID && a.TeamID == b.TeamID
}

// ByName returns the profile with the given display name, if any.
func (s *Store) ByName(name string) (PlayerProfile, bool) {
	for _, p := range s.profiles {
		if p.Name == name {
			return p.Clone(), true
		}
	}
	return PlayerProfile{}, false
}

// ReplaceAll swaps the whole profile collection. Clients use this to apply
// authoritative roster snapshots as full overwrites.
func (s *Store) ReplaceAll(factions []Faction, profiles []PlayerProfile) {
	s.factions = make(map[string]Faction, len(factions))
	for _, f := range factions {
		s.factions[f.ID] = f
	}
	s.profiles = make(map[string]PlayerProfile, len(profiles))
	for _, p := range profiles {
		s.profiles[p.ID] = p.Clone()
	}
}
