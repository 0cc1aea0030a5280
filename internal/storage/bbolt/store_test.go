package bbolt

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"blockwar/internal/domain/combat"
	"blockwar/internal/domain/roster"
	"blockwar/internal/domain/territory"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "match.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func TestSaveAndLoadMatchRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	faction := roster.Faction{
		ID:    "A",
		Name:  "Alpha",
		Color: "#c0392b",
		Teams: []roster.Team{{ID: "t1", Name: "Vanguard", FactionID: "A"}},
	}
	profile := roster.PlayerProfile{
		ID:             "p1",
		Name:           "ines",
		FactionID:      "A",
		TeamID:         "t1",
		Stats:          roster.Stats{HitPoints: 3, Attack: 5, Defense: 3, Agility: 4, Spirit: 2},
		HP:             17,
		Inventory:      []string{"rope", "medkit"},
		BlockID:        "b1",
		LastActionTurn: 4,
	}
	block := territory.Block{ID: "b1", X: 1, Y: 2, Label: "Old Mill", Points: 2, OwnerFactionID: "A", Progress: 1}

	if err := store.SaveFaction(ctx, faction); err != nil {
		t.Fatalf("save faction: %v", err)
	}
	if err := store.SaveProfile(ctx, profile); err != nil {
		t.Fatalf("save profile: %v", err)
	}
	if err := store.SaveBlock(ctx, block); err != nil {
		t.Fatalf("save block: %v", err)
	}
	if err := store.SaveGlobalTurn(ctx, 7); err != nil {
		t.Fatalf("save global turn: %v", err)
	}

	factions, profiles, blocks, turn, err := store.LoadMatch(ctx)
	if err != nil {
		t.Fatalf("load match: %v", err)
	}
	if len(factions) != 1 || !reflect.DeepEqual(factions[0], faction) {
		t.Fatalf("unexpected factions %+v", factions)
	}
	if len(profiles) != 1 || !reflect.DeepEqual(profiles[0], profile) {
		t.Fatalf("expected %+v, got %+v", profile, profiles[0])
	}
	if len(blocks) != 1 || blocks[0] != block {
		t.Fatalf("unexpected blocks %+v", blocks)
	}
	if turn != 7 {
		t.Fatalf("expected global turn 7, got %d", turn)
	}
}

func TestSaveProfileOverwrites(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	profile := roster.PlayerProfile{
		ID:        "p1",
		Name:      "ines",
		FactionID: "A",
		Stats:     roster.Stats{HitPoints: 3, Attack: 3, Defense: 3, Agility: 3, Spirit: 3},
		HP:        30,
	}
	if err := store.SaveProfile(ctx, profile); err != nil {
		t.Fatalf("first save: %v", err)
	}
	profile.HP = 12
	profile.BlockID = "b2"
	if err := store.SaveProfile(ctx, profile); err != nil {
		t.Fatalf("second save: %v", err)
	}

	_, profiles, _, _, err := store.LoadMatch(ctx)
	if err != nil {
		t.Fatalf("load match: %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("expected one profile, got %d", len(profiles))
	}
	if profiles[0].HP != 12 || profiles[0].BlockID != "b2" {
		t.Fatalf("expected overwritten profile, got %+v", profiles[0])
	}
}

func TestAppendEventsKeepsOrderPerBlock(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := []combat.Event{
		{Kind: "started", Round: 1, Text: "combat started at b1"},
		{Kind: "attacked", Round: 1, ActorID: "p1", TargetID: "p2", Amount: 18, Text: "p1 hit p2 for 18"},
	}
	if err := store.AppendEvents(ctx, "b1", first); err != nil {
		t.Fatalf("append b1 events: %v", err)
	}
	if err := store.AppendEvents(ctx, "b2", []combat.Event{{Kind: "started", Round: 1, Text: "combat started at b2"}}); err != nil {
		t.Fatalf("append b2 events: %v", err)
	}

	events, err := store.Events(ctx, "b1")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if !reflect.DeepEqual(events, first) {
		t.Fatalf("expected %+v, got %+v", first, events)
	}
}

func TestAppendEventsNoopOnEmpty(t *testing.T) {
	store := openTestStore(t)
	if err := store.AppendEvents(context.Background(), "b1", nil); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestSessionsSurviveSaveDeleteLoad(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := &combat.Session{
		BlockID:       "b1",
		Active:        true,
		CurrentTurnID: "p1",
		TurnOrder:     []string{"p1", "p2"},
		Round:         2,
		Phase:         combat.PhaseResponse,
		Pending:       &combat.PendingAction{Kind: combat.ActionAttack, SourceID: "p1", TargetID: "p2", Damage: 18, DieSize: 30},
		Log:           []combat.Event{{Kind: "started", Round: 1, Text: "combat started at b1"}},
		FactionDamage: map[string]int{"A": 5, "B": 18},
		Fled:          map[string]bool{},
	}
	second := &combat.Session{
		BlockID:       "b2",
		Active:        true,
		TurnOrder:     []string{"p3", "p4"},
		Round:         1,
		Phase:         combat.PhaseAction,
		Log:           []combat.Event{},
		FactionDamage: map[string]int{},
		Fled:          map[string]bool{"p4": true},
	}

	if err := store.SaveSession(ctx, first); err != nil {
		t.Fatalf("save first session: %v", err)
	}
	if err := store.SaveSession(ctx, second); err != nil {
		t.Fatalf("save second session: %v", err)
	}
	if err := store.DeleteSession(ctx, "b2"); err != nil {
		t.Fatalf("delete session: %v", err)
	}

	sessions, err := store.LoadSessions(ctx)
	if err != nil {
		t.Fatalf("load sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(sessions))
	}
	if !reflect.DeepEqual(sessions["b1"], first) {
		t.Fatalf("expected %+v, got %+v", first, sessions["b1"])
	}
}
