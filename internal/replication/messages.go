// Package replication defines the wire protocol between the host and its
// participants, and the client-side state cache that applies authoritative
// snapshots.
//
// Every frame is a JSON envelope with a type, an optional request id echoed
// on rejections, and a type-specific payload. The host is the only writer of
// state frames; participants only ever send requests.
package replication

import (
	"encoding/json"
	"log"

	"blockwar/internal/domain/combat"
	"blockwar/internal/game"
)

// Request frame types, sent by participants to the host.
const (
	TypeJoin           = "join"
	TypeProfileUpdate  = "profile.update"
	TypeMove           = "move"
	TypeCombatStart    = "combat.start"
	TypeCombatStop     = "combat.stop"
	TypeCombatAction   = "combat.action"
	TypeCombatResponse = "combat.response"
	TypeTurnAdvance    = "turn.advance"
	TypeAnnounce       = "announce"
)

// State frame types, sent by the host. Snapshots are idempotent overwrites;
// a participant that missed a delta self-heals on the next snapshot.
const (
	TypeJoinAccepted  = "join.accepted"
	TypeReject        = "reject"
	TypeStateSnapshot = "state.snapshot"
	TypeCombatUpdated = "combat.updated"
	TypeCombatEnded   = "combat.ended"
	TypeAnnouncement  = "announcement"
)

// Frame is the envelope for every message on the wire.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// JoinPayload opens a participant session. AdminToken claims the admin seat
// when it matches the host's configured token.
type JoinPayload struct {
	game.JoinRequest
	AdminToken string `json:"adminToken,omitempty"`
}

// JoinAcceptedPayload confirms a join and binds the connection to a player.
type JoinAcceptedPayload struct {
	PlayerID string `json:"playerId"`
	Admin    bool   `json:"admin"`
}

// ProfileUpdatePayload edits a profile. TargetID defaults to the sender's
// player; only the admin may name someone else.
type ProfileUpdatePayload struct {
	TargetID string           `json:"targetId,omitempty"`
	Edit     game.ProfileEdit `json:"edit"`
}

// MovePayload relocates the sender's player.
type MovePayload struct {
	BlockID string `json:"blockId"`
}

// CombatStartPayload opens combat at a block.
type CombatStartPayload struct {
	BlockID string `json:"blockId"`
}

// CombatStopPayload force-ends combat at a block.
type CombatStopPayload struct {
	BlockID string `json:"blockId"`
}

// CombatActionPayload is a turn-holder action.
type CombatActionPayload struct {
	BlockID  string `json:"blockId"`
	Kind     string `json:"kind"`
	TargetID string `json:"targetId,omitempty"`
}

// CombatResponsePayload is a reaction to a pending attack.
type CombatResponsePayload struct {
	BlockID      string `json:"blockId"`
	Kind         string `json:"kind"`
	HealTargetID string `json:"healTargetId,omitempty"`
}

// AnnouncePayload carries a free-text message, either broadcast or addressed
// to a single player.
type AnnouncePayload struct {
	TargetID string `json:"targetId,omitempty"`
	Text     string `json:"text"`
}

// AnnouncementPayload is the relayed form of an announcement.
type AnnouncementPayload struct {
	FromID string `json:"fromId,omitempty"`
	Text   string `json:"text"`
}

// RejectPayload explains a declined request. Rejections are delivered only to
// the request sender.
type RejectPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CombatUpdatedPayload carries one session's new state plus the events the
// triggering request produced.
type CombatUpdatedPayload struct {
	BlockID string          `json:"blockId"`
	Session *combat.Session `json:"session"`
	Events  []combat.Event  `json:"events,omitempty"`
}

// MustJSON marshals a payload, logging instead of failing on the kinds of
// values this package controls end to end.
func MustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("marshal frame payload: %v", err)
		return nil
	}
	return b
}
