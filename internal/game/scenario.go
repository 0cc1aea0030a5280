package game

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"blockwar/internal/domain/roster"
	"blockwar/internal/domain/territory"
)

// Scenario describes the starting setup of a match: the factions playing and
// the block grid they contest. Scenarios are authored as JSON and loaded by
// the host at startup.
type Scenario struct {
	Factions []roster.Faction  `json:"factions"`
	Blocks   []territory.Block `json:"blocks"`
}

// LoadScenario decodes a scenario from JSON.
func LoadScenario(r io.Reader) (Scenario, error) {
	var s Scenario
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return Scenario{}, fmt.Errorf("decode scenario: %w", err)
	}
	return s, nil
}

// DefaultScenario returns a two-faction four-by-four grid with a higher-value
// center, enough for a quick match without an authored file.
func DefaultScenario() Scenario {
	s := Scenario{
		Factions: []roster.Faction{
			{ID: "crimson", Name: "Crimson Pact", Color: "#c0392b"},
			{ID: "cobalt", Name: "Cobalt Union", Color: "#2980b9"},
		},
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			points := 1
			if (x == 1 || x == 2) && (y == 1 || y == 2) {
				points = 2
			}
			s.Blocks = append(s.Blocks, territory.Block{
				ID:     fmt.Sprintf("b-%d-%d", x, y),
				X:      x,
				Y:      y,
				Label:  fmt.Sprintf("Block %d,%d", x, y),
				Points: points,
			})
		}
	}
	return s
}

// Seed installs a scenario into the engine's collections. Existing ids are
// left untouched so seeding after a journal restore never clobbers match
// state.
func (e *Engine) Seed(ctx context.Context, s Scenario) {
	for _, f := range s.Factions {
		if _, err := e.roster.Faction(f.ID); err == nil {
			continue
		}
		e.roster.PutFaction(f)
		if e.journal != nil {
			if err := e.journal.SaveFaction(ctx, f); err != nil {
				log.Printf("save faction %s: %v", f.ID, err)
			}
		}
	}
	for _, b := range s.Blocks {
		if _, err := e.blocks.Get(b.ID); err == nil {
			continue
		}
		e.blocks.Put(b)
		e.persistBlock(ctx, b)
	}
}
