// Package bbolt provides the BoltDB-backed match journal, a single-file
// alternative to the SQLite backend for hosts that prefer a pure key-value
// store. Records are stored as JSON keyed by id; combat events live in a
// nested bucket per block with monotonic sequence keys.
package bbolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"blockwar/internal/domain/combat"
	"blockwar/internal/domain/roster"
	"blockwar/internal/domain/territory"
	"blockwar/internal/game"
)

const (
	factionBucket = "factions"
	profileBucket = "profiles"
	blockBucket   = "blocks"
	sessionBucket = "sessions"
	eventBucket   = "events"
	stateBucket   = "state"

	globalTurnKey = "global_turn"
)

// Store persists match state in BoltDB.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB match journal at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{factionBucket, profileBucket, blockBucket, sessionBucket, eventBucket, stateBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func (s *Store) putJSON(ctx context.Context, bucket, id string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s id is required", bucket)
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", bucket, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("%s bucket is missing", bucket)
		}
		return b.Put([]byte(id), payload)
	})
}

// SaveFaction upserts one faction record.
func (s *Store) SaveFaction(ctx context.Context, f roster.Faction) error {
	if err := s.putJSON(ctx, factionBucket, f.ID, f); err != nil {
		return fmt.Errorf("save faction: %w", err)
	}
	return nil
}

// SaveProfile upserts one player profile record.
func (s *Store) SaveProfile(ctx context.Context, p roster.PlayerProfile) error {
	if err := s.putJSON(ctx, profileBucket, p.ID, p); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// SaveBlock upserts one block record.
func (s *Store) SaveBlock(ctx context.Context, b territory.Block) error {
	if err := s.putJSON(ctx, blockBucket, b.ID, b); err != nil {
		return fmt.Errorf("save block: %w", err)
	}
	return nil
}

// SaveGlobalTurn records the macro-tick counter.
func (s *Store) SaveGlobalTurn(ctx context.Context, turn int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(stateBucket))
		if b == nil {
			return fmt.Errorf("state bucket is missing")
		}
		return b.Put([]byte(globalTurnKey), []byte(strconv.Itoa(turn)))
	})
	if err != nil {
		return fmt.Errorf("save global turn: %w", err)
	}
	return nil
}

// SaveSession upserts a combat session's full state, keyed by block.
func (s *Store) SaveSession(ctx context.Context, session *combat.Session) error {
	if session == nil {
		return fmt.Errorf("session is required")
	}
	if err := s.putJSON(ctx, sessionBucket, session.BlockID, session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// DeleteSession removes a block's persisted combat session, if any.
func (s *Store) DeleteSession(ctx context.Context, blockID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(sessionBucket))
		if b == nil {
			return fmt.Errorf("sessions bucket is missing")
		}
		return b.Delete([]byte(blockID))
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// AppendEvents appends combat log entries for a block in one transaction.
// Each block's events live in a nested bucket keyed by a monotonic sequence,
// so iteration order is append order.
func (s *Store) AppendEvents(ctx context.Context, blockID string, events []combat.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if len(events) == 0 {
		return nil
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		parent := tx.Bucket([]byte(eventBucket))
		if parent == nil {
			return fmt.Errorf("events bucket is missing")
		}
		b, err := parent.CreateBucketIfNotExists([]byte(blockID))
		if err != nil {
			return fmt.Errorf("create block event bucket: %w", err)
		}
		for _, evt := range events {
			seq, err := b.NextSequence()
			if err != nil {
				return fmt.Errorf("event sequence: %w", err)
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				return fmt.Errorf("marshal event: %w", err)
			}
			if err := b.Put(seqKey(seq), payload); err != nil {
				return fmt.Errorf("put event: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append events: %w", err)
	}
	return nil
}

// Events returns a block's journaled combat events in append order.
func (s *Store) Events(ctx context.Context, blockID string) ([]combat.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	var events []combat.Event
	err := s.db.View(func(tx *bbolt.Tx) error {
		parent := tx.Bucket([]byte(eventBucket))
		if parent == nil {
			return fmt.Errorf("events bucket is missing")
		}
		b := parent.Bucket([]byte(blockID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, payload []byte) error {
			var evt combat.Event
			if err := json.Unmarshal(payload, &evt); err != nil {
				return fmt.Errorf("unmarshal event: %w", err)
			}
			events = append(events, evt)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// LoadMatch reads the persisted roster, block map, and global turn so a
// restarted host can resume a match. Bucket iteration is byte-ordered, so
// records come back sorted by id.
func (s *Store) LoadMatch(ctx context.Context) ([]roster.Faction, []roster.PlayerProfile, []territory.Block, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, 0, err
	}
	if s == nil || s.db == nil {
		return nil, nil, nil, 0, fmt.Errorf("storage is not configured")
	}

	var (
		factions []roster.Faction
		profiles []roster.PlayerProfile
		blocks   []territory.Block
		turn     int
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		if err := eachJSON(tx, factionBucket, func(f roster.Faction) {
			factions = append(factions, f)
		}); err != nil {
			return err
		}
		if err := eachJSON(tx, profileBucket, func(p roster.PlayerProfile) {
			profiles = append(profiles, p)
		}); err != nil {
			return err
		}
		if err := eachJSON(tx, blockBucket, func(b territory.Block) {
			blocks = append(blocks, b)
		}); err != nil {
			return err
		}

		state := tx.Bucket([]byte(stateBucket))
		if state == nil {
			return fmt.Errorf("state bucket is missing")
		}
		if raw := state.Get([]byte(globalTurnKey)); raw != nil {
			parsed, err := strconv.Atoi(string(raw))
			if err != nil {
				return fmt.Errorf("parse global turn: %w", err)
			}
			turn = parsed
		}
		return nil
	})
	if err != nil {
		return nil, nil, nil, 0, fmt.Errorf("load match: %w", err)
	}
	return factions, profiles, blocks, turn, nil
}

// LoadSessions reads every persisted combat session, keyed by block id.
func (s *Store) LoadSessions(ctx context.Context) (map[string]*combat.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	sessions := make(map[string]*combat.Session)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return eachJSON(tx, sessionBucket, func(session combat.Session) {
			copied := session
			sessions[copied.BlockID] = &copied
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	return sessions, nil
}

func eachJSON[T any](tx *bbolt.Tx, bucket string, visit func(T)) error {
	b := tx.Bucket([]byte(bucket))
	if b == nil {
		return fmt.Errorf("%s bucket is missing", bucket)
	}
	return b.ForEach(func(_, payload []byte) error {
		var record T
		if err := json.Unmarshal(payload, &record); err != nil {
			return fmt.Errorf("unmarshal %s record: %w", bucket, err)
		}
		visit(record)
		return nil
	})
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

var _ game.Journal = (*Store)(nil)
