// Package host parses host command flags and composes the match process: the
// engine, the journal, the scenario, and the websocket relay.
package host

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"blockwar/internal/dice"
	"blockwar/internal/domain/combat"
	"blockwar/internal/domain/roster"
	"blockwar/internal/domain/territory"
	"blockwar/internal/game"
	"blockwar/internal/platform/config"
	"blockwar/internal/platform/otel"
	"blockwar/internal/relay"
	"blockwar/internal/storage/bbolt"
	"blockwar/internal/storage/sqlite"
)

// Config holds host command configuration.
type Config struct {
	Addr              string        `env:"BLOCKWAR_ADDR"               envDefault:":8090"`
	DBPath            string        `env:"BLOCKWAR_DB_PATH"`
	DBDriver          string        `env:"BLOCKWAR_DB_DRIVER"          envDefault:"sqlite"`
	ScenarioPath      string        `env:"BLOCKWAR_SCENARIO_PATH"`
	AdminToken        string        `env:"BLOCKWAR_ADMIN_TOKEN"`
	SnapshotInterval  time.Duration `env:"BLOCKWAR_SNAPSHOT_INTERVAL" envDefault:"5s"`
	DiceSeed          int64         `env:"BLOCKWAR_DICE_SEED"`
	ReadHeaderTimeout time.Duration `env:"BLOCKWAR_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `env:"BLOCKWAR_SHUTDOWN_TIMEOUT"   envDefault:"10s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "host HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "match journal path (empty disables persistence)")
	fs.StringVar(&cfg.DBDriver, "db-driver", cfg.DBDriver, "match journal backend: sqlite or bbolt")
	fs.StringVar(&cfg.ScenarioPath, "scenario", cfg.ScenarioPath, "scenario JSON path (empty uses the default grid)")
	fs.StringVar(&cfg.AdminToken, "admin-token", cfg.AdminToken, "token claiming the admin seat (empty grants it to the first join)")
	fs.DurationVar(&cfg.SnapshotInterval, "snapshot-interval", cfg.SnapshotInterval, "interval between full state broadcasts")
	fs.Int64Var(&cfg.DiceSeed, "dice-seed", cfg.DiceSeed, "dice seed (zero seeds from the clock)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// matchJournal is the full persistence surface a journal backend provides:
// the engine's write interface plus the startup load path.
type matchJournal interface {
	game.Journal
	LoadMatch(ctx context.Context) ([]roster.Faction, []roster.PlayerProfile, []territory.Block, int, error)
	LoadSessions(ctx context.Context) (map[string]*combat.Session, error)
	Close() error
}

func openJournal(driver, path string) (matchJournal, error) {
	switch driver {
	case "", "sqlite":
		return sqlite.Open(path)
	case "bbolt":
		return bbolt.Open(path)
	default:
		return nil, fmt.Errorf("unknown db driver %q", driver)
	}
}

// Run builds the host process and serves it until the context ends.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := otel.Setup(ctx, "blockwar-host")
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("shutdown tracing: %v", err)
		}
	}()

	seed := cfg.DiceSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	roller := dice.New(seed)

	rosterStore := roster.NewStore()
	blocks := territory.NewMap()

	var journal game.Journal
	var sessions map[string]*combat.Session
	globalTurn := 0
	if cfg.DBPath != "" {
		store, err := openJournal(cfg.DBDriver, cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open match journal: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("close match journal: %v", err)
			}
		}()

		factions, profiles, persisted, turn, err := store.LoadMatch(ctx)
		if err != nil {
			return fmt.Errorf("load match: %w", err)
		}
		for _, f := range factions {
			rosterStore.PutFaction(f)
		}
		for _, p := range profiles {
			rosterStore.Put(p)
		}
		for _, b := range persisted {
			blocks.Put(b)
		}
		sessions, err = store.LoadSessions(ctx)
		if err != nil {
			return fmt.Errorf("load sessions: %w", err)
		}
		if len(profiles) > 0 || turn > 0 {
			log.Printf("restored match: %d profiles, %d blocks, %d combat sessions, global turn %d",
				len(profiles), len(persisted), len(sessions), turn)
		}
		journal = store
		globalTurn = turn
	}

	engine := game.New(rosterStore, blocks, roller, journal)
	engine.Restore(globalTurn, sessions)

	scenario := game.DefaultScenario()
	if cfg.ScenarioPath != "" {
		f, err := os.Open(cfg.ScenarioPath)
		if err != nil {
			return fmt.Errorf("open scenario: %w", err)
		}
		scenario, err = game.LoadScenario(f)
		_ = f.Close()
		if err != nil {
			return err
		}
	}
	engine.Seed(ctx, scenario)

	server := relay.NewServer(engine, cfg.AdminToken)

	interval := cfg.SnapshotInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				server.BroadcastSnapshot()
			}
		}
	}()

	return server.ListenAndServe(ctx, cfg.Addr, cfg.ReadHeaderTimeout, cfg.ShutdownTimeout)
}
