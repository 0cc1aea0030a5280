package combat

import (
	"fmt"

	"blockwar/internal/dice"
	"blockwar/internal/domain/roster"
)

const (
	fleeBase = 20
	healBase = 18
)

// fleeThreshold tightens as the round count grows: 20 - 2 x clamp(round, 1, 5).
func fleeThreshold(round int) int {
	if round < 1 {
		round = 1
	}
	if round > 5 {
		round = 5
	}
	return fleeBase - 2*round
}

// healThreshold loosens with spirit: 18 - 2 x clamp(spirit, 1, 5).
func healThreshold(spirit int) int {
	if spirit < 1 {
		spirit = 1
	}
	if spirit > 5 {
		spirit = 5
	}
	return healBase - 2*spirit
}

// Action resolves the current turn holder's action. Attack leaves the session
// in the RESPONSE phase awaiting a reaction; heal and flee advance the turn.
func (s *Session) Action(r Roster, d Dice, actorID string, kind ActionKind, targetID string) Result {
	if s == nil || !s.Active {
		return rejected(RejectionCodeNotActive, "no active combat at the block")
	}
	if s.Paused() {
		return rejected(RejectionCodePaused, "combat is paused until the next global turn")
	}
	if s.Phase != PhaseAction {
		return rejected(RejectionCodeWrongPhase, "an attack is awaiting its response")
	}
	if actorID != s.CurrentTurnID {
		return rejected(RejectionCodeNotYourTurn, "not the acting player's turn")
	}
	actor, err := r.Get(actorID)
	if err != nil || !s.eligible(actor) {
		return rejected(RejectionCodeActorNotEligible, "acting player cannot fight here")
	}

	switch kind {
	case ActionAttack:
		return s.attack(r, d, actor, targetID)
	case ActionHeal:
		return s.healAction(r, d, actor, targetID)
	case ActionFlee:
		return s.fleeAction(r, d, actor)
	default:
		return rejected(RejectionCodeUnknownAction, fmt.Sprintf("unknown action %q", kind))
	}
}

func (s *Session) attack(r Roster, d Dice, actor roster.PlayerProfile, targetID string) Result {
	var res Result
	target, err := r.Get(targetID)
	if err != nil || targetID == actor.ID || !s.inTurnOrder(targetID) || !s.eligible(target) {
		return rejected(RejectionCodeInvalidTarget, "attack target is not a valid combatant")
	}

	die := dice.StatDie(actor.Stats.Attack)
	damage := d.Roll(die)
	s.Pending = &PendingAction{
		Kind:     ActionAttack,
		SourceID: actor.ID,
		TargetID: targetID,
		Damage:   damage,
		DieSize:  die,
	}
	s.Phase = PhaseResponse
	res.Events = append(res.Events, s.logEvent(Event{
		Kind:     "attack",
		ActorID:  actor.ID,
		TargetID: targetID,
		Amount:   damage,
		Text:     fmt.Sprintf("%s attacks %s for %d (d%d)", actor.Name, target.Name, damage, die),
	}))
	return res
}

func (s *Session) healAction(r Roster, d Dice, actor roster.PlayerProfile, targetID string) Result {
	var res Result
	target, err := r.Get(targetID)
	if err != nil || !s.inTurnOrder(targetID) || target.FactionID != actor.FactionID || target.BlockID != s.BlockID {
		return rejected(RejectionCodeInvalidTarget, "heal target is not an ally at the block")
	}

	value, ok := d.Check(healThreshold(actor.Stats.Spirit))
	if ok {
		amount := s.applyHeal(r, d, actor, targetID)
		res.Events = append(res.Events, s.logEvent(Event{
			Kind:     "heal",
			ActorID:  actor.ID,
			TargetID: targetID,
			Amount:   amount,
			Text:     fmt.Sprintf("%s heals %s for %d (rolled %d)", actor.Name, target.Name, amount, value),
		}))
	} else {
		res.Events = append(res.Events, s.logEvent(Event{
			Kind:     "heal_failed",
			ActorID:  actor.ID,
			TargetID: targetID,
			Text:     fmt.Sprintf("%s fails to heal %s (rolled %d)", actor.Name, target.Name, value),
		}))
	}

	// Heal advances the turn regardless of success.
	s.finishAdvance(r, s.advanceTurn(r), &res)
	return res
}

func (s *Session) fleeAction(r Roster, d Dice, actor roster.PlayerProfile) Result {
	var res Result
	value, ok := d.Check(fleeThreshold(s.Round))
	if ok {
		s.Fled[actor.ID] = true
		res.Events = append(res.Events, s.logEvent(Event{
			Kind:    "fled",
			ActorID: actor.ID,
			Text:    fmt.Sprintf("%s flees the fight (rolled %d)", actor.Name, value),
		}))
		if v := s.evaluateVictory(r, false); v.decided {
			s.end(v, &res)
			return res
		}
	} else {
		res.Events = append(res.Events, s.logEvent(Event{
			Kind:    "flee_failed",
			ActorID: actor.ID,
			Text:    fmt.Sprintf("%s fails to flee (rolled %d)", actor.Name, value),
		}))
	}

	s.finishAdvance(r, s.advanceTurn(r), &res)
	return res
}

// Respond resolves the reaction to the pending attack. Only the designated
// target may defend, counter, or flee; covering is reserved for an ally
// sharing both faction and team with the target, and a heal response may come
// from the target or such an ally.
func (s *Session) Respond(r Roster, d Dice, responderID string, kind ResponseKind, healTargetID string) Result {
	if s == nil || !s.Active {
		return rejected(RejectionCodeNotActive, "no active combat at the block")
	}
	if s.Phase != PhaseResponse || s.Pending == nil {
		return rejected(RejectionCodeWrongPhase, "no attack is awaiting a response")
	}
	pending := *s.Pending
	responder, err := r.Get(responderID)
	if err != nil {
		return rejected(RejectionCodeNotResponder, "unknown responder")
	}

	switch kind {
	case ResponseDefend, ResponseCounter, ResponseFlee:
		if responderID != pending.TargetID {
			return rejected(RejectionCodeNotResponder, "only the attack target may respond this way")
		}
	case ResponseCover:
		if responderID == pending.TargetID || !r.SameTeam(responderID, pending.TargetID) || !s.eligible(responder) {
			return rejected(RejectionCodeNotResponder, "cover requires an eligible teammate of the target")
		}
	case ResponseHeal:
		if responderID != pending.TargetID && !r.SameTeam(responderID, pending.TargetID) {
			return rejected(RejectionCodeNotResponder, "heal response requires the target or a teammate")
		}
	default:
		return rejected(RejectionCodeUnknownAction, fmt.Sprintf("unknown response %q", kind))
	}

	var res Result
	switch kind {
	case ResponseDefend:
		mitigation := d.Roll(dice.StatDie(responder.Stats.Defense))
		applied := pending.Damage - mitigation
		if applied < 0 {
			applied = 0
		}
		s.applyDamage(r, &res, pending.TargetID, applied)
		res.Events = append(res.Events, s.logEvent(Event{
			Kind:     "defend",
			ActorID:  responderID,
			TargetID: pending.SourceID,
			Amount:   applied,
			Text:     fmt.Sprintf("%s blocks %d, takes %d", responder.Name, mitigation, applied),
		}))
	case ResponseCounter:
		s.applyDamage(r, &res, pending.TargetID, pending.Damage)
		counterDamage := d.Roll(dice.StatDie(responder.Stats.Attack))
		s.applyDamage(r, &res, pending.SourceID, counterDamage)
		res.Events = append(res.Events, s.logEvent(Event{
			Kind:     "counter",
			ActorID:  responderID,
			TargetID: pending.SourceID,
			Amount:   counterDamage,
			Text:     fmt.Sprintf("%s takes %d and counters for %d", responder.Name, pending.Damage, counterDamage),
		}))
	case ResponseCover:
		mitigation := d.Roll(dice.StatDie(responder.Stats.Defense))
		applied := pending.Damage - mitigation
		if applied < 0 {
			applied = 0
		}
		s.applyDamage(r, &res, responderID, applied)
		res.Events = append(res.Events, s.logEvent(Event{
			Kind:     "cover",
			ActorID:  responderID,
			TargetID: pending.TargetID,
			Amount:   applied,
			Text:     fmt.Sprintf("%s covers for the target, blocks %d, takes %d", responder.Name, mitigation, applied),
		}))
	case ResponseHeal:
		healTarget := healTargetID
		if healTarget == "" {
			healTarget = responderID
		}
		if healTarget != responderID && !r.SameTeam(responderID, healTarget) {
			return rejected(RejectionCodeInvalidTarget, "heal response target must be a teammate")
		}
		if !s.inTurnOrder(healTarget) {
			return rejected(RejectionCodeInvalidTarget, "heal response target is not in the fight")
		}
		// Damage lands first; a coinciding heal target nets damage-then-heal.
		s.applyDamage(r, &res, pending.TargetID, pending.Damage)
		healTargetName := healTarget
		if p, err := r.Get(healTarget); err == nil {
			healTargetName = p.Name
		}
		value, ok := d.Check(healThreshold(responder.Stats.Spirit))
		if ok {
			amount := s.applyHeal(r, d, responder, healTarget)
			res.Events = append(res.Events, s.logEvent(Event{
				Kind:     "heal",
				ActorID:  responderID,
				TargetID: healTarget,
				Amount:   amount,
				Text:     fmt.Sprintf("%s heals %s for %d after the hit (rolled %d)", responder.Name, healTargetName, amount, value),
			}))
		} else {
			res.Events = append(res.Events, s.logEvent(Event{
				Kind:     "heal_failed",
				ActorID:  responderID,
				TargetID: healTarget,
				Text:     fmt.Sprintf("%s fails the heal after the hit (rolled %d)", responder.Name, value),
			}))
		}
	case ResponseFlee:
		value, ok := d.Check(fleeThreshold(s.Round))
		if ok {
			s.Fled[responderID] = true
			res.Events = append(res.Events, s.logEvent(Event{
				Kind:    "fled",
				ActorID: responderID,
				Text:    fmt.Sprintf("%s escapes the attack (rolled %d)", responder.Name, value),
			}))
		} else {
			s.applyDamage(r, &res, responderID, pending.Damage)
			res.Events = append(res.Events, s.logEvent(Event{
				Kind:    "flee_failed",
				ActorID: responderID,
				Amount:  pending.Damage,
				Text:    fmt.Sprintf("%s fails to escape and takes %d (rolled %d)", responder.Name, pending.Damage, value),
			}))
		}
	}

	s.Pending = nil
	s.Phase = PhaseAction

	if v := s.evaluateVictory(r, false); v.decided {
		s.end(v, &res)
		return res
	}
	s.finishAdvance(r, s.advanceTurn(r), &res)
	return res
}

// Stop ends the session without a winner, used by the admin stop operation.
func (s *Session) Stop(reason string) Result {
	var res Result
	if s == nil || !s.Active {
		return rejected(RejectionCodeNotActive, "no active combat at the block")
	}
	s.end(verdict{draw: true, reason: reason}, &res)
	return res
}

// applyDamage deducts hit points from the victim and accumulates the amount
// under the victim's faction in the session damage ledger.
func (s *Session) applyDamage(r Roster, res *Result, victimID string, amount int) {
	victim, err := r.Get(victimID)
	if err != nil {
		return
	}
	victim.HP -= amount
	r.Put(victim)
	s.FactionDamage[victim.FactionID] += amount
	if !victim.Alive() {
		res.Events = append(res.Events, s.logEvent(Event{
			Kind:     "defeated",
			TargetID: victimID,
			Text:     fmt.Sprintf("%s is defeated", victim.Name),
		}))
	}
}

// applyHeal rolls the heal amount from the healer's spirit die and raises the
// target's hit points, capped at their maximum. It returns the amount
// actually restored.
func (s *Session) applyHeal(r Roster, d Dice, healer roster.PlayerProfile, targetID string) int {
	target, err := r.Get(targetID)
	if err != nil {
		return 0
	}
	amount := d.Roll(dice.StatDie(healer.Stats.Spirit))
	if max := target.MaxHP(); target.HP+amount > max {
		amount = max - target.HP
	}
	if amount < 0 {
		amount = 0
	}
	target.HP += amount
	r.Put(target)
	return amount
}
