package combat

import (
	"testing"

	"blockwar/internal/domain/roster"
)

// scriptDice feeds predetermined rolls and check values to combat resolution.
type scriptDice struct {
	rolls  []int
	checks []int
}

func (d *scriptDice) Roll(sides int) int {
	if len(d.rolls) == 0 {
		return 1
	}
	value := d.rolls[0]
	d.rolls = d.rolls[1:]
	if value > sides {
		value = sides
	}
	return value
}

func (d *scriptDice) Check(threshold int) (int, bool) {
	if len(d.checks) == 0 {
		return 1, 1 >= threshold
	}
	value := d.checks[0]
	d.checks = d.checks[1:]
	return value, value >= threshold
}

func fighter(id, factionID, teamID string, agility int) roster.PlayerProfile {
	return roster.PlayerProfile{
		ID:        id,
		Name:      id,
		FactionID: factionID,
		TeamID:    teamID,
		Stats:     roster.Stats{HitPoints: 3, Attack: 5, Defense: 3, Agility: agility, Spirit: 3},
		HP:        30,
		BlockID:   "b1",
	}
}

func storeWith(t *testing.T, profiles ...roster.PlayerProfile) *roster.Store {
	t.Helper()
	store := roster.NewStore()
	for _, p := range profiles {
		store.Put(p)
	}
	return store
}

func startAt(t *testing.T, store *roster.Store, blockID string) *Session {
	t.Helper()
	session, rej := StartSession(blockID, store.AtBlock(blockID))
	if rej != nil {
		t.Fatalf("start session: %s", rej.Code)
	}
	return session
}

func mustGet(t *testing.T, store *roster.Store, id string) roster.PlayerProfile {
	t.Helper()
	p, err := store.Get(id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return p
}
