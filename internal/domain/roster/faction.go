package roster

// Faction is a side in the scenario. Factions are immutable once a match is
// running except through explicit admin edits.
type Faction struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Teams []Team `json:"teams"`
}

// Team is a squad inside a faction. Every player belongs to exactly one team
// within exactly one faction.
type Team struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	FactionID string `json:"factionId"`
}
