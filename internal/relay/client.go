package relay

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"golang.org/x/net/websocket"

	"blockwar/internal/domain/combat"
	"blockwar/internal/game"
	"blockwar/internal/replication"
)

// Client is a participant connection to a host. Incoming state frames are
// applied to the mirror on a background read loop; outgoing requests are
// serialized through a write mutex.
type Client struct {
	conn    *websocket.Conn
	state   *replication.ClientState
	writeMu sync.Mutex
	encoder *json.Encoder
	done    chan struct{}
}

// Dial connects to a host's HTTP base URL and starts the read loop.
func Dial(httpURL string) (*Client, error) {
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
	conn, err := websocket.Dial(wsURL, "", httpURL)
	if err != nil {
		return nil, fmt.Errorf("dial host %s: %w", wsURL, err)
	}

	c := &Client{
		conn:    conn,
		state:   replication.NewClientState(),
		encoder: json.NewEncoder(conn),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	decoder := json.NewDecoder(c.conn)
	for {
		var frame replication.Frame
		if err := decoder.Decode(&frame); err != nil {
			return
		}
		if err := c.state.Apply(frame); err != nil {
			log.Printf("apply %s frame: %v", frame.Type, err)
		}
	}
}

// State returns the mirrored authoritative state.
func (c *Client) State() *replication.ClientState {
	return c.state
}

// Done is closed when the connection's read loop ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) send(frameType string, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.encoder.Encode(replication.Frame{
		Type:    frameType,
		Payload: replication.MustJSON(payload),
	})
}

// Join requests a player binding, creating a profile or reattaching by name.
func (c *Client) Join(req game.JoinRequest, adminToken string) error {
	return c.send(replication.TypeJoin, replication.JoinPayload{
		JoinRequest: req,
		AdminToken:  adminToken,
	})
}

// UpdateProfile edits a profile; an empty targetID means the bound player.
func (c *Client) UpdateProfile(targetID string, edit game.ProfileEdit) error {
	return c.send(replication.TypeProfileUpdate, replication.ProfileUpdatePayload{
		TargetID: targetID,
		Edit:     edit,
	})
}

// Move relocates the bound player.
func (c *Client) Move(blockID string) error {
	return c.send(replication.TypeMove, replication.MovePayload{BlockID: blockID})
}

// StartCombat opens combat at a block.
func (c *Client) StartCombat(blockID string) error {
	return c.send(replication.TypeCombatStart, replication.CombatStartPayload{BlockID: blockID})
}

// StopCombat force-ends combat at a block. Admin only.
func (c *Client) StopCombat(blockID string) error {
	return c.send(replication.TypeCombatStop, replication.CombatStopPayload{BlockID: blockID})
}

// Action submits the bound player's turn action.
func (c *Client) Action(blockID string, kind combat.ActionKind, targetID string) error {
	return c.send(replication.TypeCombatAction, replication.CombatActionPayload{
		BlockID:  blockID,
		Kind:     string(kind),
		TargetID: targetID,
	})
}

// Respond submits the bound player's reaction to a pending attack.
func (c *Client) Respond(blockID string, kind combat.ResponseKind, healTargetID string) error {
	return c.send(replication.TypeCombatResponse, replication.CombatResponsePayload{
		BlockID:      blockID,
		Kind:         string(kind),
		HealTargetID: healTargetID,
	})
}

// AdvanceTurn requests the global macro-tick. Admin only.
func (c *Client) AdvanceTurn() error {
	return c.send(replication.TypeTurnAdvance, struct{}{})
}

// Announce relays a message to everyone, or to one player when targetID is
// set.
func (c *Client) Announce(targetID, text string) error {
	return c.send(replication.TypeAnnounce, replication.AnnouncePayload{
		TargetID: targetID,
		Text:     text,
	})
}
