package roster

import "errors"

const (
	statMin = 1
	statMax = 5

	hitPointsPerRating = 10
)

// ErrInvalidStat indicates a stat rating outside the 1-5 range.
var ErrInvalidStat = errors.New("stat ratings must be between 1 and 5")

// Stats holds the five combat-relevant ratings, each ranged 1-5.
type Stats struct {
	HitPoints int `json:"hitPoints"`
	Attack    int `json:"attack"`
	Defense   int `json:"defense"`
	Agility   int `json:"agility"`
	Spirit    int `json:"spirit"`
}

// Validate checks every rating is within the allowed range.
func (s Stats) Validate() error {
	for _, rating := range []int{s.HitPoints, s.Attack, s.Defense, s.Agility, s.Spirit} {
		if rating < statMin || rating > statMax {
			return ErrInvalidStat
		}
	}
	return nil
}

// PlayerProfile is the mutable per-participant combat state. Profiles are
// never destroyed during a session: a defeated player stays in the roster
// with HP at or below zero and is skipped by turn advancement.
type PlayerProfile struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	FactionID string   `json:"factionId"`
	TeamID    string   `json:"teamId"`
	Stats     Stats    `json:"stats"`
	HP        int      `json:"hp"`
	Inventory []string `json:"inventory"`
	// BlockID is the player's current location; empty means off the map.
	BlockID string `json:"blockId,omitempty"`
	// LastActionTurn gates one out-of-combat action per global turn.
	// Zero means the player has not acted yet.
	LastActionTurn int `json:"lastActionTurn,omitempty"`
}

// MaxHP derives maximum hit points from the hit-point rating.
func (p PlayerProfile) MaxHP() int {
	rating := p.Stats.HitPoints
	if rating < statMin {
		rating = statMin
	}
	if rating > statMax {
		rating = statMax
	}
	return rating * hitPointsPerRating
}

// Alive reports whether the player has hit points remaining.
func (p PlayerProfile) Alive() bool {
	return p.HP > 0
}

// Clone returns a deep copy of the profile.
func (p PlayerProfile) Clone() PlayerProfile {
	clone := p
	clone.Inventory = append([]string(nil), p.Inventory...)
	return clone
}
