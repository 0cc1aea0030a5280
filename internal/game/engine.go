// Package game hosts the authoritative match engine. One engine instance
// lives on the host; every request routed by the replication layer is applied
// here synchronously to completion before the next is handled.
package game

import (
	"context"
	"fmt"
	"log"

	"blockwar/internal/domain/combat"
	"blockwar/internal/domain/roster"
	"blockwar/internal/domain/territory"
	"blockwar/internal/platform/id"
)

// Engine-level rejection codes. Combat-rule rejections come from the combat
// package; these cover routing, authorization, and profile validation.
const (
	RejectionCodeUnauthorized   = "UNAUTHORIZED"
	RejectionCodeUnknownPlayer  = "UNKNOWN_PLAYER"
	RejectionCodeUnknownFaction = "UNKNOWN_FACTION"
	RejectionCodeUnknownBlock   = "UNKNOWN_BLOCK"
	RejectionCodeAlreadyActed   = "ALREADY_ACTED_THIS_TURN"
	RejectionCodeInCombat       = "IN_COMBAT"
	RejectionCodeInvalidStats   = "INVALID_STATS"
)

// Journal persists accepted mutations so a restarted host can reload the
// match. All journal writes are best-effort: a failed write is logged and
// never blocks combat resolution.
type Journal interface {
	AppendEvents(ctx context.Context, blockID string, events []combat.Event) error
	SaveProfile(ctx context.Context, p roster.PlayerProfile) error
	SaveBlock(ctx context.Context, b territory.Block) error
	SaveFaction(ctx context.Context, f roster.Faction) error
	SaveGlobalTurn(ctx context.Context, turn int) error
	SaveSession(ctx context.Context, s *combat.Session) error
	DeleteSession(ctx context.Context, blockID string) error
}

// EndedCombat describes a session leaving the global collection.
type EndedCombat struct {
	BlockID string `json:"blockId"`
	Winner  string `json:"winner,omitempty"`
	Draw    bool   `json:"draw"`
}

// Change reports which authoritative collections a handled request mutated,
// so the replication layer knows what to rebroadcast. A rejection means
// nothing changed.
type Change struct {
	Roster    bool
	Territory bool
	Combat    bool
	Ended     []EndedCombat
	Events    []combat.Event
	Rejection *combat.Rejection
}

func rejectedChange(code, message string) Change {
	return Change{Rejection: &combat.Rejection{Code: code, Message: message}}
}

// Snapshot is the full authoritative state broadcast to participants.
type Snapshot struct {
	GlobalTurn int                        `json:"globalTurn"`
	Factions   []roster.Faction           `json:"factions"`
	Profiles   []roster.PlayerProfile     `json:"profiles"`
	Blocks     []territory.Block          `json:"blocks"`
	Sessions   map[string]*combat.Session `json:"sessions"`
}

// Engine owns the authoritative match state: the roster, the block map, and
// the global combat collection keyed by block id.
type Engine struct {
	roster     *roster.Store
	blocks     *territory.Map
	sessions   map[string]*combat.Session
	dice       combat.Dice
	journal    Journal
	globalTurn int
}

// New creates an engine with the provided collaborators. The journal may be
// nil for an unpersisted match.
func New(rosterStore *roster.Store, blocks *territory.Map, d combat.Dice, journal Journal) *Engine {
	return &Engine{
		roster:     rosterStore,
		blocks:     blocks,
		sessions:   make(map[string]*combat.Session),
		dice:       d,
		journal:    journal,
		globalTurn: 1,
	}
}

// Restore replaces engine state from persisted data, used at host startup.
func (e *Engine) Restore(globalTurn int, sessions map[string]*combat.Session) {
	if globalTurn > 0 {
		e.globalTurn = globalTurn
	}
	if sessions != nil {
		e.sessions = sessions
	}
}

// GlobalTurn returns the current macro-tick counter.
func (e *Engine) GlobalTurn() int {
	return e.globalTurn
}

// Session returns the combat session for a block, if one is active.
func (e *Engine) Session(blockID string) (*combat.Session, bool) {
	s, ok := e.sessions[blockID]
	return s, ok
}

// Snapshot assembles the full authoritative state.
func (e *Engine) Snapshot() Snapshot {
	sessions := make(map[string]*combat.Session, len(e.sessions))
	for blockID, s := range e.sessions {
		sessions[blockID] = s.Clone()
	}
	return Snapshot{
		GlobalTurn: e.globalTurn,
		Factions:   e.roster.Factions(),
		Profiles:   e.roster.Profiles(),
		Blocks:     e.blocks.Blocks(),
		Sessions:   sessions,
	}
}

// JoinRequest carries a newly created or reattaching profile.
type JoinRequest struct {
	Name      string       `json:"name"`
	FactionID string       `json:"factionId"`
	TeamID    string       `json:"teamId"`
	Stats     roster.Stats `json:"stats"`
	BlockID   string       `json:"blockId,omitempty"`
}

// Join creates a profile for a new participant, or reattaches an existing
// profile by display name so a reconnecting peer resumes its player.
func (e *Engine) Join(ctx context.Context, req JoinRequest) (string, Change) {
	if existing, ok := e.roster.ByName(req.Name); ok {
		return existing.ID, Change{Roster: true}
	}
	if err := req.Stats.Validate(); err != nil {
		return "", rejectedChange(RejectionCodeInvalidStats, err.Error())
	}
	if _, err := e.roster.Faction(req.FactionID); err != nil {
		return "", rejectedChange(RejectionCodeUnknownFaction, "unknown faction")
	}
	playerID, err := id.NewID()
	if err != nil {
		return "", rejectedChange(RejectionCodeInvalidStats, "id generation failed")
	}
	profile := roster.PlayerProfile{
		ID:        playerID,
		Name:      req.Name,
		FactionID: req.FactionID,
		TeamID:    req.TeamID,
		Stats:     req.Stats,
		BlockID:   req.BlockID,
	}
	profile.HP = profile.MaxHP()
	e.roster.Put(profile)
	e.persistProfile(ctx, profile)
	return playerID, Change{Roster: true}
}

// ProfileEdit is a partial profile update. Nil fields are left unchanged.
type ProfileEdit struct {
	Name      *string       `json:"name,omitempty"`
	Stats     *roster.Stats `json:"stats,omitempty"`
	HP        *int          `json:"hp,omitempty"`
	Inventory []string      `json:"inventory,omitempty"`
	BlockID   *string       `json:"blockId,omitempty"`
}

// UpdateProfile applies a self-edit or an admin edit to a profile. Stat and
// hit-point edits are reserved for the admin.
func (e *Engine) UpdateProfile(ctx context.Context, playerID string, edit ProfileEdit, admin bool) Change {
	profile, err := e.roster.Get(playerID)
	if err != nil {
		return rejectedChange(RejectionCodeUnknownPlayer, "unknown player")
	}
	if edit.Name != nil {
		profile.Name = *edit.Name
	}
	if edit.Inventory != nil {
		profile.Inventory = append([]string(nil), edit.Inventory...)
	}
	if edit.Stats != nil {
		if !admin {
			return rejectedChange(RejectionCodeUnauthorized, "stat edits require the admin")
		}
		if err := edit.Stats.Validate(); err != nil {
			return rejectedChange(RejectionCodeInvalidStats, err.Error())
		}
		profile.Stats = *edit.Stats
	}
	if edit.HP != nil {
		if !admin {
			return rejectedChange(RejectionCodeUnauthorized, "hit-point edits require the admin")
		}
		profile.HP = *edit.HP
	}
	if edit.BlockID != nil {
		if !admin {
			return rejectedChange(RejectionCodeUnauthorized, "location edits use the move request")
		}
		profile.BlockID = *edit.BlockID
	}
	if profile.HP > profile.MaxHP() {
		profile.HP = profile.MaxHP()
	}
	e.roster.Put(profile)
	e.persistProfile(ctx, profile)
	return Change{Roster: true}
}

// Move relocates a player, gated to one out-of-combat action per global turn
// and refused while the player is fighting at their current block.
func (e *Engine) Move(ctx context.Context, playerID, blockID string) Change {
	profile, err := e.roster.Get(playerID)
	if err != nil {
		return rejectedChange(RejectionCodeUnknownPlayer, "unknown player")
	}
	if _, err := e.blocks.Get(blockID); err != nil {
		return rejectedChange(RejectionCodeUnknownBlock, "unknown block")
	}
	if profile.LastActionTurn >= e.globalTurn {
		return rejectedChange(RejectionCodeAlreadyActed, "one action per global turn")
	}
	// A paused session is the between-rounds window; repositioning is allowed
	// then, and the session resolves the absence on resume.
	if s, ok := e.sessions[profile.BlockID]; ok && s.Active && !s.Paused() && !s.Fled[playerID] && profile.Alive() {
		return rejectedChange(RejectionCodeInCombat, "cannot move mid-round")
	}
	profile.BlockID = blockID
	profile.LastActionTurn = e.globalTurn
	e.roster.Put(profile)
	e.persistProfile(ctx, profile)
	return Change{Roster: true}
}

// StartCombat opens a session at a block. The actor must be the admin or a
// player present at the block.
func (e *Engine) StartCombat(ctx context.Context, actorID, blockID string, admin bool) Change {
	if _, err := e.blocks.Get(blockID); err != nil {
		return rejectedChange(RejectionCodeUnknownBlock, "unknown block")
	}
	if _, ok := e.sessions[blockID]; ok {
		return rejectedChange(combat.RejectionCodeAlreadyActive, "combat already active at the block")
	}
	if !admin {
		actor, err := e.roster.Get(actorID)
		if err != nil || actor.BlockID != blockID {
			return rejectedChange(RejectionCodeUnauthorized, "combat can be started only by the admin or a player at the block")
		}
	}
	session, rej := combat.StartSession(blockID, e.roster.AtBlock(blockID))
	if rej != nil {
		return Change{Rejection: rej}
	}
	e.sessions[blockID] = session
	e.journalEvents(ctx, blockID, session.Log)
	e.persistSession(ctx, session)
	return Change{Combat: true, Events: append([]combat.Event(nil), session.Log...)}
}

// StopCombat removes a session without declaring a winner. Admin only.
func (e *Engine) StopCombat(ctx context.Context, blockID string, admin bool) Change {
	if !admin {
		return rejectedChange(RejectionCodeUnauthorized, "stopping combat requires the admin")
	}
	session, ok := e.sessions[blockID]
	if !ok {
		return rejectedChange(combat.RejectionCodeNotActive, "no active combat at the block")
	}
	res := session.Stop("stopped by admin")
	return e.settle(ctx, session, res)
}

// Action routes a turn action into the block's combat session.
func (e *Engine) Action(ctx context.Context, actorID, blockID string, kind combat.ActionKind, targetID string) Change {
	session, ok := e.sessions[blockID]
	if !ok {
		return rejectedChange(combat.RejectionCodeNotActive, "no active combat at the block")
	}
	res := session.Action(e.roster, e.dice, actorID, kind, targetID)
	return e.settle(ctx, session, res)
}

// Respond routes a reaction to the pending attack at a block.
func (e *Engine) Respond(ctx context.Context, responderID, blockID string, kind combat.ResponseKind, healTargetID string) Change {
	session, ok := e.sessions[blockID]
	if !ok {
		return rejectedChange(combat.RejectionCodeNotActive, "no active combat at the block")
	}
	res := session.Respond(e.roster, e.dice, responderID, kind, healTargetID)
	return e.settle(ctx, session, res)
}

// settle folds a combat result into engine state: journaling events,
// persisting touched profiles, and running victory side effects when the
// session ended.
func (e *Engine) settle(ctx context.Context, session *combat.Session, res combat.Result) Change {
	if res.Rejection != nil {
		return Change{Rejection: res.Rejection}
	}
	change := Change{Combat: true, Roster: true, Events: res.Events}
	e.journalEvents(ctx, session.BlockID, res.Events)
	for _, memberID := range session.TurnOrder {
		if p, err := e.roster.Get(memberID); err == nil {
			e.persistProfile(ctx, p)
		}
	}
	if !res.Ended {
		e.persistSession(ctx, session)
		return change
	}

	delete(e.sessions, session.BlockID)
	e.deleteSession(ctx, session.BlockID)
	change.Ended = append(change.Ended, EndedCombat{BlockID: session.BlockID, Winner: res.Winner, Draw: res.Draw})
	if res.Winner == "" {
		return change
	}

	// Decisive outcome: the block changes hands and the losing factions'
	// survivors scatter to unowned ground.
	if err := e.blocks.Transfer(session.BlockID, res.Winner); err != nil {
		log.Printf("transfer block %s: %v", session.BlockID, err)
	} else {
		change.Territory = true
		if b, err := e.blocks.Get(session.BlockID); err == nil {
			e.persistBlock(ctx, b)
		}
	}
	for _, memberID := range session.TurnOrder {
		p, err := e.roster.Get(memberID)
		if err != nil || !p.Alive() || p.FactionID == res.Winner || p.BlockID != session.BlockID {
			continue
		}
		if refuge, ok := e.blocks.RandomUnowned(e.dice.Roll); ok {
			p.BlockID = refuge.ID
			e.roster.Put(p)
			e.persistProfile(ctx, p)
		}
	}
	return change
}

// AdvanceGlobalTurn performs the macro-tick: occupation progression over
// every block, then resumption (or removal) of paused combat sessions.
// Admin only.
func (e *Engine) AdvanceGlobalTurn(ctx context.Context, admin bool) Change {
	if !admin {
		return rejectedChange(RejectionCodeUnauthorized, "advancing the global turn requires the admin")
	}
	e.globalTurn++
	change := Change{Territory: true}

	transferred := e.blocks.Tick(e.roster.FactionsAt)
	for _, b := range e.blocks.Blocks() {
		e.persistBlock(ctx, b)
	}
	if len(transferred) > 0 {
		log.Printf("global turn %d: %d blocks changed hands", e.globalTurn, len(transferred))
	}

	for blockID, session := range e.sessions {
		if !session.Paused() {
			continue
		}
		evt, ok := session.Resume(e.roster)
		if !ok {
			// Nobody eligible remains; the session leaves the collection
			// with no winner declared.
			delete(e.sessions, blockID)
			e.deleteSession(ctx, blockID)
			change.Ended = append(change.Ended, EndedCombat{BlockID: blockID, Draw: true})
			change.Combat = true
			continue
		}
		change.Combat = true
		change.Events = append(change.Events, evt)
		e.journalEvents(ctx, blockID, []combat.Event{evt})
		e.persistSession(ctx, session)
	}

	if e.journal != nil {
		if err := e.journal.SaveGlobalTurn(ctx, e.globalTurn); err != nil {
			log.Printf("save global turn: %v", err)
		}
	}
	return change
}

func (e *Engine) persistProfile(ctx context.Context, p roster.PlayerProfile) {
	if e.journal == nil {
		return
	}
	if err := e.journal.SaveProfile(ctx, p); err != nil {
		log.Printf("save profile %s: %v", p.ID, err)
	}
}

func (e *Engine) persistBlock(ctx context.Context, b territory.Block) {
	if e.journal == nil {
		return
	}
	if err := e.journal.SaveBlock(ctx, b); err != nil {
		log.Printf("save block %s: %v", b.ID, err)
	}
}

func (e *Engine) persistSession(ctx context.Context, s *combat.Session) {
	if e.journal == nil {
		return
	}
	if err := e.journal.SaveSession(ctx, s); err != nil {
		log.Printf("save session %s: %v", s.BlockID, err)
	}
}

func (e *Engine) deleteSession(ctx context.Context, blockID string) {
	if e.journal == nil {
		return
	}
	if err := e.journal.DeleteSession(ctx, blockID); err != nil {
		log.Printf("delete session %s: %v", blockID, err)
	}
}

func (e *Engine) journalEvents(ctx context.Context, blockID string, events []combat.Event) {
	if e.journal == nil || len(events) == 0 {
		return
	}
	if err := e.journal.AppendEvents(ctx, blockID, events); err != nil {
		log.Printf("journal events for %s: %v", blockID, err)
	}
}

// Announce validates an announcement request. The message itself is relayed
// by the replication layer; the engine only checks the recipient exists.
func (e *Engine) Announce(targetID string) *combat.Rejection {
	if targetID == "" {
		return nil
	}
	if _, err := e.roster.Get(targetID); err != nil {
		return &combat.Rejection{Code: RejectionCodeUnknownPlayer, Message: fmt.Sprintf("unknown player %s", targetID)}
	}
	return nil
}
