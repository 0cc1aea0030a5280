// Package relay hosts the websocket surface of the host process. It accepts
// participant connections, routes request frames into the game engine one at
// a time, and broadcasts authoritative state back out.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/websocket"

	"blockwar/internal/domain/combat"
	"blockwar/internal/game"
	"blockwar/internal/replication"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3

	maxAnnouncementRunes = 500
)

var tracer = otel.Tracer("blockwar/relay")

// Server owns the participant connections and serializes every request into
// the engine. The engine itself is single-threaded; the server mutex is what
// makes that true across connections.
type Server struct {
	mu           sync.Mutex
	engine       *game.Engine
	adminToken   string
	adminClaimed bool
	peers        map[*peer]struct{}
}

// NewServer wraps an engine for websocket access. An empty adminToken grants
// the admin seat to the first participant that joins.
func NewServer(engine *game.Engine, adminToken string) *Server {
	return &Server{
		engine:     engine,
		adminToken: adminToken,
		peers:      make(map[*peer]struct{}),
	}
}

type peer struct {
	mu       sync.Mutex
	encoder  *json.Encoder
	playerID string
	admin    bool
}

func (p *peer) writeFrame(frame replication.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// Handler returns the HTTP routes for the host: a health check and the
// websocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(s.handleConn)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})
	return mux
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readHeaderTimeout, shutdownTimeout time.Duration) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	log.Printf("host listening on %s", addr)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		err := httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

func (s *Server) handleConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	ctx := context.Background()
	if request := conn.Request(); request != nil {
		ctx = request.Context()
	}

	decoder := json.NewDecoder(conn)
	p := &peer{encoder: json.NewEncoder(conn)}
	s.mu.Lock()
	s.peers[p] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.peers, p)
		s.mu.Unlock()
	}()

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame replication.Frame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeReject(p, "", "INVALID_ARGUMENT", "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeReject(p, frame.RequestID, "INVALID_ARGUMENT", "payload too large")
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeReject(p, frame.RequestID, "RESOURCE_EXHAUSTED", "rate limit exceeded")
			return
		}

		s.dispatch(ctx, p, frame)
	}
}

func (s *Server) dispatch(ctx context.Context, p *peer, frame replication.Frame) {
	ctx, span := tracer.Start(ctx, "relay.frame", trace.WithAttributes(
		attribute.String("frame.type", frame.Type),
	))
	defer span.End()

	if frame.Type == replication.TypeJoin {
		s.handleJoin(ctx, p, frame)
		return
	}
	if p.playerID == "" {
		_ = writeReject(p, frame.RequestID, game.RejectionCodeUnauthorized, "join before sending requests")
		return
	}

	switch frame.Type {
	case replication.TypeProfileUpdate:
		s.handleProfileUpdate(ctx, p, frame)
	case replication.TypeMove:
		var payload replication.MovePayload
		if !decodePayload(p, frame, &payload) {
			return
		}
		s.apply(p, frame, func() game.Change {
			return s.engine.Move(ctx, p.playerID, payload.BlockID)
		})
	case replication.TypeCombatStart:
		var payload replication.CombatStartPayload
		if !decodePayload(p, frame, &payload) {
			return
		}
		s.applyCombat(p, frame, payload.BlockID, func() game.Change {
			return s.engine.StartCombat(ctx, p.playerID, payload.BlockID, p.admin)
		})
	case replication.TypeCombatStop:
		var payload replication.CombatStopPayload
		if !decodePayload(p, frame, &payload) {
			return
		}
		s.applyCombat(p, frame, payload.BlockID, func() game.Change {
			return s.engine.StopCombat(ctx, payload.BlockID, p.admin)
		})
	case replication.TypeCombatAction:
		var payload replication.CombatActionPayload
		if !decodePayload(p, frame, &payload) {
			return
		}
		s.applyCombat(p, frame, payload.BlockID, func() game.Change {
			return s.engine.Action(ctx, p.playerID, payload.BlockID, combat.ActionKind(payload.Kind), payload.TargetID)
		})
	case replication.TypeCombatResponse:
		var payload replication.CombatResponsePayload
		if !decodePayload(p, frame, &payload) {
			return
		}
		s.applyCombat(p, frame, payload.BlockID, func() game.Change {
			return s.engine.Respond(ctx, p.playerID, payload.BlockID, combat.ResponseKind(payload.Kind), payload.HealTargetID)
		})
	case replication.TypeTurnAdvance:
		s.apply(p, frame, func() game.Change {
			return s.engine.AdvanceGlobalTurn(ctx, p.admin)
		})
	case replication.TypeAnnounce:
		s.handleAnnounce(p, frame)
	default:
		_ = writeReject(p, frame.RequestID, "INVALID_ARGUMENT", "unsupported frame type")
	}
}

func (s *Server) handleJoin(ctx context.Context, p *peer, frame replication.Frame) {
	var payload replication.JoinPayload
	if !decodePayload(p, frame, &payload) {
		return
	}

	s.mu.Lock()
	playerID, change := s.engine.Join(ctx, payload.JoinRequest)
	if change.Rejection != nil {
		s.mu.Unlock()
		_ = writeReject(p, frame.RequestID, change.Rejection.Code, change.Rejection.Message)
		return
	}
	p.playerID = playerID
	if s.adminToken != "" {
		p.admin = payload.AdminToken == s.adminToken
	} else if !s.adminClaimed {
		p.admin = true
		s.adminClaimed = true
	}
	snapshot := s.engine.Snapshot()
	recipients := s.peersLocked()
	s.mu.Unlock()

	_ = p.writeFrame(replication.Frame{
		Type:      replication.TypeJoinAccepted,
		RequestID: frame.RequestID,
		Payload: replication.MustJSON(replication.JoinAcceptedPayload{
			PlayerID: playerID,
			Admin:    p.admin,
		}),
	})
	// The join changed the roster, so everyone gets the fresh snapshot. It
	// doubles as the joining peer's initial load.
	broadcast(recipients, snapshotFrame(snapshot))
}

func (s *Server) handleProfileUpdate(ctx context.Context, p *peer, frame replication.Frame) {
	var payload replication.ProfileUpdatePayload
	if !decodePayload(p, frame, &payload) {
		return
	}
	targetID := payload.TargetID
	if targetID == "" {
		targetID = p.playerID
	}
	if targetID != p.playerID && !p.admin {
		_ = writeReject(p, frame.RequestID, game.RejectionCodeUnauthorized, "editing another profile requires the admin")
		return
	}
	s.apply(p, frame, func() game.Change {
		return s.engine.UpdateProfile(ctx, targetID, payload.Edit, p.admin)
	})
}

func (s *Server) handleAnnounce(p *peer, frame replication.Frame) {
	var payload replication.AnnouncePayload
	if !decodePayload(p, frame, &payload) {
		return
	}
	text := strings.TrimSpace(payload.Text)
	if text == "" {
		_ = writeReject(p, frame.RequestID, "INVALID_ARGUMENT", "text is required")
		return
	}
	if utf8.RuneCountInString(text) > maxAnnouncementRunes {
		_ = writeReject(p, frame.RequestID, "INVALID_ARGUMENT", "text must be at most 500 characters")
		return
	}

	s.mu.Lock()
	if rej := s.engine.Announce(payload.TargetID); rej != nil {
		s.mu.Unlock()
		_ = writeReject(p, frame.RequestID, rej.Code, rej.Message)
		return
	}
	var recipients []*peer
	for recipient := range s.peers {
		if payload.TargetID == "" || recipient.playerID == payload.TargetID || recipient == p {
			recipients = append(recipients, recipient)
		}
	}
	s.mu.Unlock()

	broadcast(recipients, replication.Frame{
		Type: replication.TypeAnnouncement,
		Payload: replication.MustJSON(replication.AnnouncementPayload{
			FromID: p.playerID,
			Text:   text,
		}),
	})
}

// apply runs a request against the engine under the server mutex and either
// answers the sender with a rejection or broadcasts the resulting state.
func (s *Server) apply(p *peer, frame replication.Frame, op func() game.Change) {
	s.applyCombat(p, frame, "", op)
}

// applyCombat is apply with an optional combat delta: when blockID names a
// surviving session, its new state rides along with the snapshot broadcast.
func (s *Server) applyCombat(p *peer, frame replication.Frame, blockID string, op func() game.Change) {
	s.mu.Lock()
	change := op()
	if change.Rejection != nil {
		s.mu.Unlock()
		_ = writeReject(p, frame.RequestID, change.Rejection.Code, change.Rejection.Message)
		return
	}

	var frames []replication.Frame
	if blockID != "" {
		if session, ok := s.engine.Session(blockID); ok {
			frames = append(frames, replication.Frame{
				Type: replication.TypeCombatUpdated,
				Payload: replication.MustJSON(replication.CombatUpdatedPayload{
					BlockID: blockID,
					Session: session.Clone(),
					Events:  change.Events,
				}),
			})
		}
	}
	for _, ended := range change.Ended {
		frames = append(frames, replication.Frame{
			Type:    replication.TypeCombatEnded,
			Payload: replication.MustJSON(ended),
		})
	}
	frames = append(frames, snapshotFrame(s.engine.Snapshot()))
	recipients := s.peersLocked()
	s.mu.Unlock()

	for _, out := range frames {
		broadcast(recipients, out)
	}
}

// BroadcastSnapshot pushes the current authoritative state to every peer.
// The host calls this on a timer so missed deltas self-heal.
func (s *Server) BroadcastSnapshot() {
	s.mu.Lock()
	frame := snapshotFrame(s.engine.Snapshot())
	recipients := s.peersLocked()
	s.mu.Unlock()
	broadcast(recipients, frame)
}

func (s *Server) peersLocked() []*peer {
	recipients := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		recipients = append(recipients, p)
	}
	return recipients
}

func snapshotFrame(snapshot game.Snapshot) replication.Frame {
	return replication.Frame{
		Type:    replication.TypeStateSnapshot,
		Payload: replication.MustJSON(snapshot),
	}
}

func broadcast(recipients []*peer, frame replication.Frame) {
	for _, recipient := range recipients {
		_ = recipient.writeFrame(frame)
	}
}

func decodePayload(p *peer, frame replication.Frame, v any) bool {
	if err := json.Unmarshal(frame.Payload, v); err != nil {
		_ = writeReject(p, frame.RequestID, "INVALID_ARGUMENT", "invalid payload")
		return false
	}
	return true
}

func writeReject(p *peer, requestID, code, message string) error {
	return p.writeFrame(replication.Frame{
		Type:      replication.TypeReject,
		RequestID: requestID,
		Payload: replication.MustJSON(replication.RejectPayload{
			Code:    code,
			Message: message,
		}),
	})
}
