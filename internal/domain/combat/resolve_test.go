package combat

import (
	"reflect"
	"testing"
)

func TestActionRejectsOutOfTurnSender(t *testing.T) {
	store := storeWith(t,
		fighter("a1", "A", "t1", 5),
		fighter("b1-player", "B", "t1", 1),
	)
	session := startAt(t, store, "b1")
	before := session.Clone()

	res := session.Action(store, &scriptDice{}, "b1-player", ActionAttack, "a1")
	if res.Rejection == nil || res.Rejection.Code != RejectionCodeNotYourTurn {
		t.Fatalf("expected %s, got %+v", RejectionCodeNotYourTurn, res.Rejection)
	}
	if !reflect.DeepEqual(session, before) {
		t.Fatal("rejected action mutated session state")
	}
	if mustGet(t, store, "a1").HP != 30 {
		t.Fatal("rejected action mutated roster state")
	}
}

func TestAttackEntersResponsePhaseWithoutAdvancing(t *testing.T) {
	store := storeWith(t,
		fighter("a1", "A", "t1", 5),
		fighter("b1-player", "B", "t1", 1),
	)
	session := startAt(t, store, "b1")

	res := session.Action(store, &scriptDice{rolls: []int{30}}, "a1", ActionAttack, "b1-player")
	if res.Rejection != nil {
		t.Fatalf("unexpected rejection %+v", res.Rejection)
	}
	if session.Phase != PhaseResponse {
		t.Fatalf("expected RESPONSE phase, got %s", session.Phase)
	}
	if session.CurrentTurnID != "a1" {
		t.Fatalf("expected turn to stay with a1, got %s", session.CurrentTurnID)
	}
	pending := session.Pending
	if pending == nil {
		t.Fatal("expected a pending action")
	}
	if pending.Damage != 30 || pending.DieSize != 30 || pending.SourceID != "a1" || pending.TargetID != "b1-player" {
		t.Fatalf("unexpected pending action %+v", pending)
	}
	if mustGet(t, store, "b1-player").HP != 30 {
		t.Fatal("damage applied before response resolution")
	}
}

func TestDefendAppliesMitigatedDamageToFactionLedger(t *testing.T) {
	store := storeWith(t,
		fighter("a1", "A", "t1", 5),
		fighter("b1-player", "B", "t1", 1),
	)
	session := startAt(t, store, "b1")

	if res := session.Action(store, &scriptDice{rolls: []int{30}}, "a1", ActionAttack, "b1-player"); res.Rejection != nil {
		t.Fatalf("attack rejected: %+v", res.Rejection)
	}
	res := session.Respond(store, &scriptDice{rolls: []int{12}}, "b1-player", ResponseDefend, "")
	if res.Rejection != nil {
		t.Fatalf("defend rejected: %+v", res.Rejection)
	}

	// 30 pending minus 12 mitigation: exactly 18 applied and tallied.
	if hp := mustGet(t, store, "b1-player").HP; hp != 12 {
		t.Fatalf("expected 12 hp after 18 damage, got %d", hp)
	}
	if got := session.FactionDamage["B"]; got != 18 {
		t.Fatalf("expected faction B ledger at 18, got %d", got)
	}
	if session.Pending != nil {
		t.Fatal("expected pending action cleared")
	}
	if session.Phase != PhaseAction {
		t.Fatalf("expected ACTION phase, got %s", session.Phase)
	}
	if session.CurrentTurnID != "b1-player" {
		t.Fatalf("expected turn to advance to b1-player, got %s", session.CurrentTurnID)
	}
}

func TestDefendNeverAppliesNegativeDamage(t *testing.T) {
	store := storeWith(t,
		fighter("a1", "A", "t1", 5),
		fighter("b1-player", "B", "t1", 1),
	)
	session := startAt(t, store, "b1")

	session.Action(store, &scriptDice{rolls: []int{5}}, "a1", ActionAttack, "b1-player")
	res := session.Respond(store, &scriptDice{rolls: []int{18}}, "b1-player", ResponseDefend, "")
	if res.Rejection != nil {
		t.Fatalf("defend rejected: %+v", res.Rejection)
	}

	if hp := mustGet(t, store, "b1-player").HP; hp != 30 {
		t.Fatalf("expected no damage, got hp %d", hp)
	}
	if got := session.FactionDamage["B"]; got != 0 {
		t.Fatalf("expected empty ledger, got %d", got)
	}
}

func TestCounterHitsBothSides(t *testing.T) {
	store := storeWith(t,
		fighter("a1", "A", "t1", 5),
		fighter("b1-player", "B", "t1", 1),
	)
	session := startAt(t, store, "b1")

	session.Action(store, &scriptDice{rolls: []int{10}}, "a1", ActionAttack, "b1-player")
	res := session.Respond(store, &scriptDice{rolls: []int{18}}, "b1-player", ResponseCounter, "")
	if res.Rejection != nil {
		t.Fatalf("counter rejected: %+v", res.Rejection)
	}

	if hp := mustGet(t, store, "b1-player").HP; hp != 20 {
		t.Fatalf("expected target at 20 hp after full damage, got %d", hp)
	}
	if hp := mustGet(t, store, "a1").HP; hp != 12 {
		t.Fatalf("expected attacker at 12 hp after counter, got %d", hp)
	}
	if session.FactionDamage["B"] != 10 || session.FactionDamage["A"] != 18 {
		t.Fatalf("unexpected ledger %v", session.FactionDamage)
	}
}

func TestCoverSubstitutesTeammateAsRecipient(t *testing.T) {
	store := storeWith(t,
		fighter("a1", "A", "t1", 5),
		fighter("b-target", "B", "t1", 1),
		fighter("b-cover", "B", "t1", 1),
	)
	session := startAt(t, store, "b1")

	session.Action(store, &scriptDice{rolls: []int{20}}, "a1", ActionAttack, "b-target")
	res := session.Respond(store, &scriptDice{rolls: []int{6}}, "b-cover", ResponseCover, "")
	if res.Rejection != nil {
		t.Fatalf("cover rejected: %+v", res.Rejection)
	}

	if hp := mustGet(t, store, "b-target").HP; hp != 30 {
		t.Fatalf("expected untouched target, got hp %d", hp)
	}
	if hp := mustGet(t, store, "b-cover").HP; hp != 16 {
		t.Fatalf("expected coverer at 16 hp, got %d", hp)
	}
	if session.FactionDamage["B"] != 14 {
		t.Fatalf("expected 14 tallied under B, got %d", session.FactionDamage["B"])
	}
}

func TestCoverRejectsTargetAndCrossTeam(t *testing.T) {
	crossTeam := fighter("b-other", "B", "t2", 1)
	store := storeWith(t,
		fighter("a1", "A", "t1", 5),
		fighter("b-target", "B", "t1", 1),
		crossTeam,
	)
	session := startAt(t, store, "b1")
	session.Action(store, &scriptDice{rolls: []int{20}}, "a1", ActionAttack, "b-target")

	if res := session.Respond(store, &scriptDice{}, "b-target", ResponseCover, ""); res.Rejection == nil || res.Rejection.Code != RejectionCodeNotResponder {
		t.Fatalf("expected target cover rejected, got %+v", res.Rejection)
	}
	if res := session.Respond(store, &scriptDice{}, "b-other", ResponseCover, ""); res.Rejection == nil || res.Rejection.Code != RejectionCodeNotResponder {
		t.Fatalf("expected cross-team cover rejected, got %+v", res.Rejection)
	}
	if session.Pending == nil {
		t.Fatal("expected pending action to survive rejections")
	}
}

func TestHealResponseNetsDamageThenHeal(t *testing.T) {
	store := storeWith(t,
		fighter("a1", "A", "t1", 5),
		fighter("b1-player", "B", "t1", 1),
	)
	session := startAt(t, store, "b1")

	session.Action(store, &scriptDice{rolls: []int{10}}, "a1", ActionAttack, "b1-player")
	// Damage 10 lands first, then an 18-point heal is capped at max HP.
	res := session.Respond(store, &scriptDice{rolls: []int{18}, checks: []int{15}}, "b1-player", ResponseHeal, "b1-player")
	if res.Rejection != nil {
		t.Fatalf("heal response rejected: %+v", res.Rejection)
	}

	if hp := mustGet(t, store, "b1-player").HP; hp != 30 {
		t.Fatalf("expected hp back at max 30, got %d", hp)
	}
	if session.FactionDamage["B"] != 10 {
		t.Fatalf("expected full pending damage tallied, got %d", session.FactionDamage["B"])
	}
}

func TestFleeResponseSuccessAvoidsPendingDamage(t *testing.T) {
	store := storeWith(t,
		fighter("a1", "A", "t1", 5),
		fighter("b-target", "B", "t1", 1),
		fighter("b-other", "B", "t1", 1),
	)
	session := startAt(t, store, "b1")

	session.Action(store, &scriptDice{rolls: []int{25}}, "a1", ActionAttack, "b-target")
	res := session.Respond(store, &scriptDice{checks: []int{19}}, "b-target", ResponseFlee, "")
	if res.Rejection != nil {
		t.Fatalf("flee response rejected: %+v", res.Rejection)
	}

	if hp := mustGet(t, store, "b-target").HP; hp != 30 {
		t.Fatalf("expected no damage on successful flee, got hp %d", hp)
	}
	if !session.Fled["b-target"] {
		t.Fatal("expected target marked as fled")
	}
	if !session.Active {
		t.Fatal("expected combat to continue while b-other stands")
	}
}

func TestFleeResponseFailureTakesFullDamage(t *testing.T) {
	store := storeWith(t,
		fighter("a1", "A", "t1", 5),
		fighter("b-target", "B", "t1", 1),
		fighter("b-other", "B", "t1", 1),
	)
	session := startAt(t, store, "b1")

	session.Action(store, &scriptDice{rolls: []int{25}}, "a1", ActionAttack, "b-target")
	res := session.Respond(store, &scriptDice{checks: []int{2}}, "b-target", ResponseFlee, "")
	if res.Rejection != nil {
		t.Fatalf("flee response rejected: %+v", res.Rejection)
	}

	if hp := mustGet(t, store, "b-target").HP; hp != 5 {
		t.Fatalf("expected full 25 damage, got hp %d", hp)
	}
	if session.Fled["b-target"] {
		t.Fatal("expected target still in the fight")
	}
}

func TestHealActionAlwaysAdvancesTurn(t *testing.T) {
	store := storeWith(t,
		fighter("a1", "A", "t1", 5),
		fighter("a2", "A", "t1", 4),
		fighter("b1-player", "B", "t1", 1),
	)
	session := startAt(t, store, "b1")

	// Failed check still costs the turn.
	res := session.Action(store, &scriptDice{checks: []int{2}}, "a1", ActionHeal, "a2")
	if res.Rejection != nil {
		t.Fatalf("heal rejected: %+v", res.Rejection)
	}
	if session.CurrentTurnID != "a2" {
		t.Fatalf("expected turn advanced to a2, got %s", session.CurrentTurnID)
	}
	if hp := mustGet(t, store, "a2").HP; hp != 30 {
		t.Fatalf("expected no healing on failed check, got hp %d", hp)
	}
}

func TestHealActionRejectsEnemies(t *testing.T) {
	store := storeWith(t,
		fighter("a1", "A", "t1", 5),
		fighter("b1-player", "B", "t1", 1),
	)
	session := startAt(t, store, "b1")

	res := session.Action(store, &scriptDice{checks: []int{20}}, "a1", ActionHeal, "b1-player")
	if res.Rejection == nil || res.Rejection.Code != RejectionCodeInvalidTarget {
		t.Fatalf("expected %s, got %+v", RejectionCodeInvalidTarget, res.Rejection)
	}
}

func TestFleeThresholdTightensWithRounds(t *testing.T) {
	cases := map[int]int{0: 18, 1: 18, 2: 16, 3: 14, 4: 12, 5: 10, 9: 10}
	for round, want := range cases {
		if got := fleeThreshold(round); got != want {
			t.Fatalf("round %d: expected threshold %d, got %d", round, want, got)
		}
	}
}
