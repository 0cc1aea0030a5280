// Package dice implements the dice rolls used by combat resolution.
package dice

import "math/rand"

// CheckSides is the die used for heal and flee success checks.
const CheckSides = 20

// Roller produces rolls from a seeded source.
//
// A Roller is deterministic with respect to its seed and the sequence of
// calls made against it, so a combat exchange replayed with the same seed
// and the same call order produces identical results.
type Roller struct {
	rng *rand.Rand
}

// New creates a roller seeded with the provided value.
func New(seed int64) *Roller {
	return &Roller{rng: rand.New(rand.NewSource(seed))}
}

// Roll rolls a single die with the given number of sides, returning a value
// in [1, sides]. Non-positive sides are treated as a one-sided die so combat
// resolution never stalls on malformed stats.
func (r *Roller) Roll(sides int) int {
	if sides < 1 {
		sides = 1
	}
	return r.rng.Intn(sides) + 1
}

// Check rolls a d20 against a threshold and reports whether the roll met it.
func (r *Roller) Check(threshold int) (int, bool) {
	value := r.Roll(CheckSides)
	return value, value >= threshold
}

// StatDie maps a 1-5 stat rating to the die size rolled for it. Ratings are
// clamped into range, so a rating of 5 rolls a d30.
func StatDie(stat int) int {
	if stat < 1 {
		stat = 1
	}
	if stat > 5 {
		stat = 5
	}
	return 6 * stat
}
