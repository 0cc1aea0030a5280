package combat

import (
	"fmt"

	"blockwar/internal/domain/roster"
)

// roundLimit is the round count past which combat is settled by damage taken.
const roundLimit = 5

func (s *Session) eligible(p roster.PlayerProfile) bool {
	return p.Alive() && p.BlockID == s.BlockID && !s.Fled[p.ID]
}

type advanceOutcome int

const (
	// advanceNext moved the turn to the next eligible player.
	advanceNext advanceOutcome = iota
	// advancePaused ended the round; the session waits for a global turn.
	advancePaused
	// advanceRoundLimit ended the round past the round limit.
	advanceRoundLimit
	// advanceNoEligible found no eligible player in the whole order.
	advanceNoEligible
)

// advanceTurn scans forward circularly from the current turn holder for the
// next eligible player. Wrapping past index zero increments the round counter
// and marks the round over. This single scan serves every action and response
// branch, including flee.
func (s *Session) advanceTurn(r Roster) advanceOutcome {
	n := len(s.TurnOrder)
	if n == 0 {
		return advanceNoEligible
	}
	cur := 0
	for i, id := range s.TurnOrder {
		if id == s.CurrentTurnID {
			cur = i
			break
		}
	}

	roundOver := false
	for step := 1; step <= n; step++ {
		idx := (cur + step) % n
		if idx == 0 && !roundOver {
			roundOver = true
			s.Round++
		}
		p, err := r.Get(s.TurnOrder[idx])
		if err != nil || !s.eligible(p) {
			continue
		}
		if roundOver {
			if s.Round > roundLimit {
				return advanceRoundLimit
			}
			s.CurrentTurnID = ""
			s.logEvent(Event{
				Kind: "round_ended",
				Text: fmt.Sprintf("round %d ended at %s", s.Round-1, s.BlockID),
			})
			return advancePaused
		}
		s.CurrentTurnID = s.TurnOrder[idx]
		return advanceNext
	}
	return advanceNoEligible
}

// Resume gives a paused session its next turn, scanning the turn order from
// the top for the first eligible player still at the block. It reports false
// when no player qualifies, in which case the caller removes the session.
func (s *Session) Resume(r Roster) (Event, bool) {
	if !s.Paused() {
		return Event{}, false
	}
	for _, id := range s.TurnOrder {
		p, err := r.Get(id)
		if err != nil || !s.eligible(p) {
			continue
		}
		s.CurrentTurnID = id
		evt := s.logEvent(Event{
			Kind:    "resumed",
			ActorID: id,
			Text:    fmt.Sprintf("round %d resumed at %s", s.Round, s.BlockID),
		})
		return evt, true
	}
	return Event{}, false
}

// finishAdvance folds a turn-advance outcome into the session, ending it when
// the round limit was breached or nobody can act.
func (s *Session) finishAdvance(r Roster, outcome advanceOutcome, result *Result) {
	switch outcome {
	case advanceRoundLimit:
		verdict := s.evaluateVictory(r, true)
		s.end(verdict, result)
	case advanceNoEligible:
		s.end(verdict{draw: true, reason: "no combatants remain"}, result)
	}
}
