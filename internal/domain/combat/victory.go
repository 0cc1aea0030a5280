package combat

import "fmt"

// verdict is the outcome of a victory evaluation.
type verdict struct {
	decided bool
	winner  string
	draw    bool
	reason  string
}

// evaluateVictory inspects the factions still viable at the block: members
// with hit points remaining who have not fled. Exactly one viable faction
// wins outright; none is a draw. Past the round limit (forced evaluation) the
// faction with the lowest cumulative damage taken wins, equal damage drawing.
func (s *Session) evaluateVictory(r Roster, forced bool) verdict {
	viable := make(map[string]int)
	for _, id := range s.TurnOrder {
		p, err := r.Get(id)
		if err != nil {
			continue
		}
		if p.BlockID != s.BlockID {
			continue
		}
		if _, seen := viable[p.FactionID]; !seen {
			viable[p.FactionID] = 0
		}
		if p.Alive() && !s.Fled[p.ID] {
			viable[p.FactionID]++
		}
	}

	var standing []string
	for factionID, count := range viable {
		if count > 0 {
			standing = append(standing, factionID)
		}
	}

	switch len(standing) {
	case 0:
		return verdict{decided: true, draw: true, reason: "no combatants remain"}
	case 1:
		return verdict{decided: true, winner: standing[0], reason: "last faction standing"}
	}

	if !forced {
		return verdict{}
	}

	// Round limit breached with two or more viable factions: the side that
	// soaked the least damage takes the block.
	winner := ""
	lowest := 0
	tied := false
	for _, factionID := range standing {
		damage := s.FactionDamage[factionID]
		switch {
		case winner == "" || damage < lowest:
			winner = factionID
			lowest = damage
			tied = false
		case damage == lowest:
			tied = true
		}
	}
	if tied {
		return verdict{decided: true, draw: true, reason: "equal damage at round limit"}
	}
	return verdict{decided: true, winner: winner, reason: "lowest damage at round limit"}
}

// end closes the session and records the outcome on the result. The caller
// (the host engine) transfers block ownership and relocates the losers.
func (s *Session) end(v verdict, result *Result) {
	s.Active = false
	s.CurrentTurnID = ""
	s.Pending = nil
	s.Phase = PhaseAction

	text := fmt.Sprintf("combat at %s ended in a draw: %s", s.BlockID, v.reason)
	if v.winner != "" {
		text = fmt.Sprintf("combat at %s won by faction %s: %s", s.BlockID, v.winner, v.reason)
	}
	evt := s.logEvent(Event{Kind: "ended", Text: text})

	result.Events = append(result.Events, evt)
	result.Ended = true
	result.Winner = v.winner
	result.Draw = v.winner == ""
}
