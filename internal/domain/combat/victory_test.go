package combat

import "testing"

func TestEliminationLeavesLastFactionStanding(t *testing.T) {
	target := fighter("b1-player", "B", "t1", 1)
	target.HP = 20
	store := storeWith(t,
		fighter("a1", "A", "t1", 5),
		target,
	)
	session := startAt(t, store, "b1")

	session.Action(store, &scriptDice{rolls: []int{25}}, "a1", ActionAttack, "b1-player")
	res := session.Respond(store, &scriptDice{rolls: []int{5}}, "b1-player", ResponseDefend, "")
	if res.Rejection != nil {
		t.Fatalf("defend rejected: %+v", res.Rejection)
	}

	if hp := mustGet(t, store, "b1-player").HP; hp != 0 {
		t.Fatalf("expected target at 0 hp, got %d", hp)
	}
	if !res.Ended {
		t.Fatal("expected combat to end on elimination")
	}
	if res.Winner != "A" || res.Draw {
		t.Fatalf("expected faction A victory, got winner %q draw %v", res.Winner, res.Draw)
	}
	if session.Active {
		t.Fatal("expected inactive session")
	}
}

func TestFleeingLastOpponentEndsCombat(t *testing.T) {
	store := storeWith(t,
		fighter("a1", "A", "t1", 5),
		fighter("b1-player", "B", "t1", 1),
	)
	session := startAt(t, store, "b1")

	if res := session.Action(store, &scriptDice{checks: []int{2}}, "a1", ActionHeal, "a1"); res.Rejection != nil {
		t.Fatalf("heal rejected: %+v", res.Rejection)
	}
	res := session.Action(store, &scriptDice{checks: []int{19}}, "b1-player", ActionFlee, "")
	if res.Rejection != nil {
		t.Fatalf("flee rejected: %+v", res.Rejection)
	}

	if !res.Ended || res.Winner != "A" {
		t.Fatalf("expected faction A to win after the flee, got %+v", res)
	}
}

func TestRoundLimitAwardsLowestDamageFaction(t *testing.T) {
	store := storeWith(t,
		fighter("a1", "A", "t1", 5),
		fighter("b1-player", "B", "t1", 1),
	)
	session := &Session{
		BlockID:       "b1",
		Active:        true,
		CurrentTurnID: "b1-player",
		TurnOrder:     []string{"a1", "b1-player"},
		Round:         5,
		Phase:         PhaseAction,
		FactionDamage: map[string]int{"A": 40, "B": 55},
		Fled:          map[string]bool{},
	}

	// The last player of round five burns their turn; the wrap pushes the
	// round count past the limit and forces the damage tiebreak.
	res := session.Action(store, &scriptDice{checks: []int{2}}, "b1-player", ActionHeal, "b1-player")
	if res.Rejection != nil {
		t.Fatalf("heal rejected: %+v", res.Rejection)
	}

	if !res.Ended {
		t.Fatal("expected combat settled at the round limit")
	}
	if res.Winner != "A" || res.Draw {
		t.Fatalf("expected faction A (40 < 55) to win, got winner %q draw %v", res.Winner, res.Draw)
	}
	if session.Round != 6 {
		t.Fatalf("expected round 6, got %d", session.Round)
	}
}

func TestRoundLimitEqualDamageDraws(t *testing.T) {
	store := storeWith(t,
		fighter("a1", "A", "t1", 5),
		fighter("b1-player", "B", "t1", 1),
	)
	session := &Session{
		BlockID:       "b1",
		Active:        true,
		CurrentTurnID: "b1-player",
		TurnOrder:     []string{"a1", "b1-player"},
		Round:         5,
		Phase:         PhaseAction,
		FactionDamage: map[string]int{"A": 40, "B": 40},
		Fled:          map[string]bool{},
	}

	res := session.Action(store, &scriptDice{checks: []int{2}}, "b1-player", ActionHeal, "b1-player")
	if !res.Ended || !res.Draw || res.Winner != "" {
		t.Fatalf("expected a draw, got %+v", res)
	}
}

func TestEndedSessionIgnoresFurtherInput(t *testing.T) {
	target := fighter("b1-player", "B", "t1", 1)
	target.HP = 20
	store := storeWith(t,
		fighter("a1", "A", "t1", 5),
		target,
	)
	session := startAt(t, store, "b1")
	session.Action(store, &scriptDice{rolls: []int{25}}, "a1", ActionAttack, "b1-player")
	session.Respond(store, &scriptDice{rolls: []int{5}}, "b1-player", ResponseDefend, "")
	if session.Active {
		t.Fatal("expected ended session")
	}

	logLen := len(session.Log)
	if res := session.Action(store, &scriptDice{rolls: []int{30}}, "a1", ActionAttack, "b1-player"); res.Rejection == nil || res.Rejection.Code != RejectionCodeNotActive {
		t.Fatalf("expected %s, got %+v", RejectionCodeNotActive, res.Rejection)
	}
	if res := session.Respond(store, &scriptDice{rolls: []int{5}}, "b1-player", ResponseDefend, ""); res.Rejection == nil || res.Rejection.Code != RejectionCodeNotActive {
		t.Fatalf("expected %s, got %+v", RejectionCodeNotActive, res.Rejection)
	}
	if len(session.Log) != logLen {
		t.Fatal("expected no log growth after the session ended")
	}
}

func TestAdminStopEndsWithoutWinner(t *testing.T) {
	store := storeWith(t,
		fighter("a1", "A", "t1", 5),
		fighter("b1-player", "B", "t1", 1),
	)
	session := startAt(t, store, "b1")

	res := session.Stop("stopped by admin")
	if !res.Ended || !res.Draw || res.Winner != "" {
		t.Fatalf("expected drawn stop, got %+v", res)
	}
	if session.Active {
		t.Fatal("expected inactive session")
	}
}
