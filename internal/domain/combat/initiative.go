package combat

import (
	"fmt"
	"sort"

	"blockwar/internal/domain/roster"
)

// StartSession opens combat at a block for the given co-present players.
//
// Initiative is computed once: factions are ordered by their summed agility
// descending, members within a faction by individual agility descending.
// Ties break lexicographically by id at both levels so recomputation is
// deterministic for the same combatants.
func StartSession(blockID string, present []roster.PlayerProfile) (*Session, *Rejection) {
	var combatants []roster.PlayerProfile
	factions := make(map[string]bool)
	for _, p := range present {
		if !p.Alive() {
			continue
		}
		combatants = append(combatants, p)
		factions[p.FactionID] = true
	}
	if len(combatants) == 0 {
		return nil, reject(RejectionCodeActorNotEligible, "no combatants with hit points remain at the block")
	}
	if len(factions) < 2 {
		return nil, reject(RejectionCodeNoOpposition, "combat needs at least two factions at the block")
	}

	session := &Session{
		BlockID:       blockID,
		Active:        true,
		TurnOrder:     initiative(combatants),
		Round:         1,
		Phase:         PhaseAction,
		FactionDamage: make(map[string]int),
		Fled:          make(map[string]bool),
	}
	session.CurrentTurnID = session.TurnOrder[0]
	session.logEvent(Event{
		Kind: "started",
		Text: fmt.Sprintf("combat started at %s with %d combatants", blockID, len(combatants)),
	})
	return session, nil
}

func initiative(combatants []roster.PlayerProfile) []string {
	sums := make(map[string]int)
	members := make(map[string][]roster.PlayerProfile)
	var factionIDs []string
	for _, p := range combatants {
		if _, seen := sums[p.FactionID]; !seen {
			factionIDs = append(factionIDs, p.FactionID)
		}
		sums[p.FactionID] += p.Stats.Agility
		members[p.FactionID] = append(members[p.FactionID], p)
	}

	sort.Slice(factionIDs, func(i, j int) bool {
		if sums[factionIDs[i]] != sums[factionIDs[j]] {
			return sums[factionIDs[i]] > sums[factionIDs[j]]
		}
		return factionIDs[i] < factionIDs[j]
	})

	order := make([]string, 0, len(combatants))
	for _, factionID := range factionIDs {
		group := members[factionID]
		sort.Slice(group, func(i, j int) bool {
			if group[i].Stats.Agility != group[j].Stats.Agility {
				return group[i].Stats.Agility > group[j].Stats.Agility
			}
			return group[i].ID < group[j].ID
		})
		for _, p := range group {
			order = append(order, p.ID)
		}
	}
	return order
}
