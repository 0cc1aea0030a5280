// Package combat implements the per-block combat session state machine:
// initiative, turn advancement, action and response resolution, faction
// damage bookkeeping, and victory evaluation.
//
// A session exists for a block exactly while combat is active there. All
// mutation happens through session methods invoked by the host engine; every
// illegal request is answered with a rejection and leaves state unchanged.
package combat

import "blockwar/internal/domain/roster"

// Phase is the in-round state of an active session.
type Phase string

const (
	// PhaseAction waits on the current-turn player's action.
	PhaseAction Phase = "ACTION"
	// PhaseResponse waits on the reaction to a pending attack.
	PhaseResponse Phase = "RESPONSE"
)

// ActionKind is a turn-holder action.
type ActionKind string

const (
	ActionAttack ActionKind = "attack"
	ActionHeal   ActionKind = "heal"
	ActionFlee   ActionKind = "flee"
)

// ResponseKind is a reaction to a pending attack.
type ResponseKind string

const (
	ResponseDefend  ResponseKind = "defend"
	ResponseCounter ResponseKind = "counter"
	ResponseCover   ResponseKind = "cover"
	ResponseHeal    ResponseKind = "heal"
	ResponseFlee    ResponseKind = "flee"
)

// Rejection codes follow the SCREAMING_SNAKE convention and are delivered
// only to the request sender, never broadcast.
const (
	RejectionCodeNotActive        = "COMBAT_NOT_ACTIVE"
	RejectionCodePaused           = "COMBAT_PAUSED"
	RejectionCodeAlreadyActive    = "COMBAT_ALREADY_ACTIVE"
	RejectionCodeNoOpposition     = "COMBAT_NEEDS_OPPOSING_FACTIONS"
	RejectionCodeNotYourTurn      = "NOT_YOUR_TURN"
	RejectionCodeWrongPhase       = "WRONG_PHASE"
	RejectionCodeInvalidTarget    = "INVALID_TARGET"
	RejectionCodeNotResponder     = "NOT_RESPONDER"
	RejectionCodeUnknownAction    = "UNKNOWN_ACTION"
	RejectionCodeActorNotEligible = "ACTOR_NOT_ELIGIBLE"
)

// Rejection captures why a combat request was declined.
type Rejection struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func reject(code, message string) *Rejection {
	return &Rejection{Code: code, Message: message}
}

// Dice supplies the rolls combat resolution needs.
type Dice interface {
	// Roll returns a value in [1, sides].
	Roll(sides int) int
	// Check rolls a d20 against a threshold and reports success.
	Check(threshold int) (int, bool)
}

// Roster is the slice of player state combat resolution reads and mutates.
type Roster interface {
	Get(id string) (roster.PlayerProfile, error)
	Put(p roster.PlayerProfile)
	SameTeam(aID, bID string) bool
}

// PendingAction is the in-flight attack awaiting a response. It exists only
// while the session phase is RESPONSE and is cleared on resolution.
type PendingAction struct {
	Kind     ActionKind `json:"kind"`
	SourceID string     `json:"sourceId"`
	TargetID string     `json:"targetId"`
	Damage   int        `json:"damage"`
	DieSize  int        `json:"dieSize"`
}

// Event is one append-only combat log entry. Events double as the deltas
// journaled and broadcast by the replication layer.
type Event struct {
	Kind     string `json:"kind"`
	Round    int    `json:"round"`
	ActorID  string `json:"actorId,omitempty"`
	TargetID string `json:"targetId,omitempty"`
	Amount   int    `json:"amount,omitempty"`
	Text     string `json:"text"`
}

// Result reports what a combat operation did.
type Result struct {
	Events    []Event
	Rejection *Rejection
	// Ended is set when the operation ended the session. Winner carries the
	// faction awarded the block; it is empty on a draw or when no combatants
	// remained.
	Ended  bool
	Winner string
	Draw   bool
}

func rejected(code, message string) Result {
	return Result{Rejection: reject(code, message)}
}

// Session is one combat encounter scoped to a single block.
type Session struct {
	BlockID       string          `json:"blockId"`
	Active        bool            `json:"active"`
	CurrentTurnID string          `json:"currentTurnId,omitempty"`
	TurnOrder     []string        `json:"turnOrder"`
	Round         int             `json:"round"`
	Phase         Phase           `json:"phase"`
	Pending       *PendingAction  `json:"pending,omitempty"`
	Log           []Event         `json:"log"`
	FactionDamage map[string]int  `json:"factionDamage"`
	Fled          map[string]bool `json:"fled"`
}

// Paused reports whether the session is waiting on a global-turn advance.
func (s *Session) Paused() bool {
	return s.Active && s.CurrentTurnID == ""
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	clone.TurnOrder = append([]string(nil), s.TurnOrder...)
	clone.Log = append([]Event(nil), s.Log...)
	clone.FactionDamage = make(map[string]int, len(s.FactionDamage))
	for k, v := range s.FactionDamage {
		clone.FactionDamage[k] = v
	}
	clone.Fled = make(map[string]bool, len(s.Fled))
	for k, v := range s.Fled {
		clone.Fled[k] = v
	}
	if s.Pending != nil {
		pending := *s.Pending
		clone.Pending = &pending
	}
	return &clone
}

func (s *Session) logEvent(evt Event) Event {
	evt.Round = s.Round
	s.Log = append(s.Log, evt)
	return evt
}

func (s *Session) inTurnOrder(id string) bool {
	for _, member := range s.TurnOrder {
		if member == id {
			return true
		}
	}
	return false
}
