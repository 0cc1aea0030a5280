// Package sqlite provides the SQLite-backed match journal. The journal lets
// a restarted host reload the roster, the block map, and the global turn, and
// keeps an append-only record of combat events.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"blockwar/internal/domain/combat"
	"blockwar/internal/domain/roster"
	"blockwar/internal/domain/territory"
	"blockwar/internal/game"
	"blockwar/internal/platform/storage/sqlitemigrate"
	"blockwar/internal/storage/sqlite/migrations"
)

const globalTurnKey = "global_turn"

// Store persists match state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Open opens a SQLite match journal and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveFaction upserts one faction record.
func (s *Store) SaveFaction(ctx context.Context, f roster.Faction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(f.ID) == "" {
		return fmt.Errorf("faction id is required")
	}
	teams, err := json.Marshal(f.Teams)
	if err != nil {
		return fmt.Errorf("marshal teams: %w", err)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO factions (id, name, color, teams, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name,
		   color = excluded.color,
		   teams = excluded.teams,
		   updated_at = excluded.updated_at`,
		f.ID,
		f.Name,
		f.Color,
		string(teams),
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save faction: %w", err)
	}
	return nil
}

// SaveProfile upserts one player profile record.
func (s *Store) SaveProfile(ctx context.Context, p roster.PlayerProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("profile id is required")
	}
	inventory, err := json.Marshal(p.Inventory)
	if err != nil {
		return fmt.Errorf("marshal inventory: %w", err)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO profiles (
		   id, name, faction_id, team_id,
		   hit_points, attack, defense, agility, spirit,
		   hp, inventory, block_id, last_action_turn, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name,
		   faction_id = excluded.faction_id,
		   team_id = excluded.team_id,
		   hit_points = excluded.hit_points,
		   attack = excluded.attack,
		   defense = excluded.defense,
		   agility = excluded.agility,
		   spirit = excluded.spirit,
		   hp = excluded.hp,
		   inventory = excluded.inventory,
		   block_id = excluded.block_id,
		   last_action_turn = excluded.last_action_turn,
		   updated_at = excluded.updated_at`,
		p.ID,
		p.Name,
		p.FactionID,
		p.TeamID,
		p.Stats.HitPoints,
		p.Stats.Attack,
		p.Stats.Defense,
		p.Stats.Agility,
		p.Stats.Spirit,
		p.HP,
		string(inventory),
		p.BlockID,
		p.LastActionTurn,
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// SaveBlock upserts one block record.
func (s *Store) SaveBlock(ctx context.Context, b territory.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(b.ID) == "" {
		return fmt.Errorf("block id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO blocks (id, x, y, label, points, owner_faction_id, progress, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   x = excluded.x,
		   y = excluded.y,
		   label = excluded.label,
		   points = excluded.points,
		   owner_faction_id = excluded.owner_faction_id,
		   progress = excluded.progress,
		   updated_at = excluded.updated_at`,
		b.ID,
		b.X,
		b.Y,
		b.Label,
		b.Points,
		b.OwnerFactionID,
		b.Progress,
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save block: %w", err)
	}
	return nil
}

// SaveGlobalTurn records the macro-tick counter.
func (s *Store) SaveGlobalTurn(ctx context.Context, turn int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO match_state (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		globalTurnKey,
		turn,
	)
	if err != nil {
		return fmt.Errorf("save global turn: %w", err)
	}
	return nil
}

// SaveSession upserts a combat session's full state as JSON, keyed by block.
func (s *Store) SaveSession(ctx context.Context, session *combat.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if session == nil || strings.TrimSpace(session.BlockID) == "" {
		return fmt.Errorf("session block id is required")
	}
	state, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO combat_sessions (block_id, state, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (block_id) DO UPDATE SET
		   state = excluded.state,
		   updated_at = excluded.updated_at`,
		session.BlockID,
		string(state),
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// DeleteSession removes a block's persisted combat session, if any.
func (s *Store) DeleteSession(ctx context.Context, blockID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM combat_sessions WHERE block_id = ?`, blockID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// LoadSessions reads every persisted combat session, keyed by block id.
func (s *Store) LoadSessions(ctx context.Context) (map[string]*combat.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `SELECT block_id, state FROM combat_sessions ORDER BY block_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	defer rows.Close()

	sessions := make(map[string]*combat.Session)
	for rows.Next() {
		var blockID, state string
		if err := rows.Scan(&blockID, &state); err != nil {
			return nil, fmt.Errorf("load sessions: %w", err)
		}
		var session combat.Session
		if err := json.Unmarshal([]byte(state), &session); err != nil {
			return nil, fmt.Errorf("unmarshal session for %s: %w", blockID, err)
		}
		sessions[blockID] = &session
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	return sessions, nil
}

// AppendEvents appends combat log entries for a block in one transaction.
func (s *Store) AppendEvents(ctx context.Context, blockID string, events []combat.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event transaction: %w", err)
	}
	now := toMillis(time.Now())
	for _, evt := range events {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO combat_events (block_id, kind, round, actor_id, target_id, amount, text, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			blockID,
			evt.Kind,
			evt.Round,
			evt.ActorID,
			evt.TargetID,
			evt.Amount,
			evt.Text,
			now,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit events: %w", err)
	}
	return nil
}

// Events returns a block's journaled combat events in append order.
func (s *Store) Events(ctx context.Context, blockID string) ([]combat.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT kind, round, actor_id, target_id, amount, text
		   FROM combat_events
		  WHERE block_id = ?
		  ORDER BY id ASC`,
		blockID,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []combat.Event
	for rows.Next() {
		var evt combat.Event
		if err := rows.Scan(&evt.Kind, &evt.Round, &evt.ActorID, &evt.TargetID, &evt.Amount, &evt.Text); err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// LoadMatch reads the persisted roster, block map, and global turn so a
// restarted host can resume a match.
func (s *Store) LoadMatch(ctx context.Context) ([]roster.Faction, []roster.PlayerProfile, []territory.Block, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, 0, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, nil, nil, 0, fmt.Errorf("storage is not configured")
	}

	factions, err := s.loadFactions(ctx)
	if err != nil {
		return nil, nil, nil, 0, err
	}
	profiles, err := s.loadProfiles(ctx)
	if err != nil {
		return nil, nil, nil, 0, err
	}
	blocks, err := s.loadBlocks(ctx)
	if err != nil {
		return nil, nil, nil, 0, err
	}

	var turn int
	err = s.sqlDB.QueryRowContext(
		ctx,
		`SELECT value FROM match_state WHERE key = ?`,
		globalTurnKey,
	).Scan(&turn)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil, 0, fmt.Errorf("load global turn: %w", err)
	}

	return factions, profiles, blocks, turn, nil
}

func (s *Store) loadFactions(ctx context.Context) ([]roster.Faction, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT id, name, color, teams FROM factions ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("load factions: %w", err)
	}
	defer rows.Close()

	var factions []roster.Faction
	for rows.Next() {
		var f roster.Faction
		var teams string
		if err := rows.Scan(&f.ID, &f.Name, &f.Color, &teams); err != nil {
			return nil, fmt.Errorf("load factions: %w", err)
		}
		if err := json.Unmarshal([]byte(teams), &f.Teams); err != nil {
			return nil, fmt.Errorf("unmarshal teams for %s: %w", f.ID, err)
		}
		factions = append(factions, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load factions: %w", err)
	}
	return factions, nil
}

func (s *Store) loadProfiles(ctx context.Context) ([]roster.PlayerProfile, error) {
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, name, faction_id, team_id,
		        hit_points, attack, defense, agility, spirit,
		        hp, inventory, block_id, last_action_turn
		   FROM profiles
		  ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	defer rows.Close()

	var profiles []roster.PlayerProfile
	for rows.Next() {
		var p roster.PlayerProfile
		var inventory string
		if err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.FactionID,
			&p.TeamID,
			&p.Stats.HitPoints,
			&p.Stats.Attack,
			&p.Stats.Defense,
			&p.Stats.Agility,
			&p.Stats.Spirit,
			&p.HP,
			&inventory,
			&p.BlockID,
			&p.LastActionTurn,
		); err != nil {
			return nil, fmt.Errorf("load profiles: %w", err)
		}
		if err := json.Unmarshal([]byte(inventory), &p.Inventory); err != nil {
			return nil, fmt.Errorf("unmarshal inventory for %s: %w", p.ID, err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	return profiles, nil
}

func (s *Store) loadBlocks(ctx context.Context) ([]territory.Block, error) {
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, x, y, label, points, owner_faction_id, progress
		   FROM blocks
		  ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("load blocks: %w", err)
	}
	defer rows.Close()

	var blocks []territory.Block
	for rows.Next() {
		var b territory.Block
		if err := rows.Scan(&b.ID, &b.X, &b.Y, &b.Label, &b.Points, &b.OwnerFactionID, &b.Progress); err != nil {
			return nil, fmt.Errorf("load blocks: %w", err)
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load blocks: %w", err)
	}
	return blocks, nil
}

var _ game.Journal = (*Store)(nil)
