package replication

import (
	"encoding/json"
	"fmt"
	"sync"

	"blockwar/internal/domain/combat"
	"blockwar/internal/domain/roster"
	"blockwar/internal/domain/territory"
	"blockwar/internal/game"
)

// ClientState is a participant's mirror of the host's authoritative state.
// It is apply-only: every frame overwrites the affected slice of the cache
// and local code never mutates it directly.
//
// Unlike the host-side collections, the mirror is mutex-guarded because the
// relay read loop and the rendering side touch it from different goroutines.
type ClientState struct {
	mu            sync.Mutex
	loaded        bool
	playerID      string
	admin         bool
	globalTurn    int
	roster        *roster.Store
	blocks        *territory.Map
	sessions      map[string]*combat.Session
	ended         []game.EndedCombat
	announcements []AnnouncementPayload
	rejections    []RejectPayload
}

// NewClientState creates an empty mirror awaiting its first snapshot.
func NewClientState() *ClientState {
	return &ClientState{
		roster:   roster.NewStore(),
		blocks:   territory.NewMap(),
		sessions: make(map[string]*combat.Session),
	}
}

// Apply folds one host frame into the mirror. Unknown frame types are
// ignored so older clients tolerate newer hosts.
func (c *ClientState) Apply(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch frame.Type {
	case TypeJoinAccepted:
		var payload JoinAcceptedPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return fmt.Errorf("decode join.accepted: %w", err)
		}
		c.playerID = payload.PlayerID
		c.admin = payload.Admin
	case TypeStateSnapshot:
		var snapshot game.Snapshot
		if err := json.Unmarshal(frame.Payload, &snapshot); err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
		c.roster.ReplaceAll(snapshot.Factions, snapshot.Profiles)
		c.blocks.ReplaceAll(snapshot.Blocks)
		c.sessions = make(map[string]*combat.Session, len(snapshot.Sessions))
		for blockID, session := range snapshot.Sessions {
			c.sessions[blockID] = session
		}
		c.globalTurn = snapshot.GlobalTurn
		c.loaded = true
	case TypeCombatUpdated:
		var payload CombatUpdatedPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return fmt.Errorf("decode combat.updated: %w", err)
		}
		if payload.Session != nil {
			c.sessions[payload.BlockID] = payload.Session
		}
	case TypeCombatEnded:
		var payload game.EndedCombat
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return fmt.Errorf("decode combat.ended: %w", err)
		}
		delete(c.sessions, payload.BlockID)
		c.ended = append(c.ended, payload)
	case TypeAnnouncement:
		var payload AnnouncementPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return fmt.Errorf("decode announcement: %w", err)
		}
		c.announcements = append(c.announcements, payload)
	case TypeReject:
		var payload RejectPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return fmt.Errorf("decode reject: %w", err)
		}
		c.rejections = append(c.rejections, payload)
	}
	return nil
}

// Loaded reports whether the first snapshot has arrived. Until then the
// mirror renders a loading state and issues no requests.
func (c *ClientState) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// PlayerID returns the player this connection is bound to.
func (c *ClientState) PlayerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

// Admin reports whether the host granted this connection the admin seat.
func (c *ClientState) Admin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.admin
}

// GlobalTurn returns the mirrored macro-tick counter.
func (c *ClientState) GlobalTurn() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.globalTurn
}

// Profile returns the mirrored profile for a player.
func (c *ClientState) Profile(playerID string) (roster.PlayerProfile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roster.Get(playerID)
}

// Profiles returns every mirrored profile ordered by id.
func (c *ClientState) Profiles() []roster.PlayerProfile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roster.Profiles()
}

// Block returns the mirrored block for an id.
func (c *ClientState) Block(blockID string) (territory.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocks.Get(blockID)
}

// Blocks returns every mirrored block ordered by id.
func (c *ClientState) Blocks() []territory.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocks.Blocks()
}

// Session returns the mirrored combat session at a block, if any.
func (c *ClientState) Session(blockID string) (*combat.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[blockID]
	return s, ok
}

// EndedCombats returns the combats the mirror has seen conclude.
func (c *ClientState) EndedCombats() []game.EndedCombat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]game.EndedCombat(nil), c.ended...)
}

// Announcements returns relayed announcements in arrival order.
func (c *ClientState) Announcements() []AnnouncementPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]AnnouncementPayload(nil), c.announcements...)
}

// Rejections returns the rejections addressed to this participant.
func (c *ClientState) Rejections() []RejectPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]RejectPayload(nil), c.rejections...)
}
