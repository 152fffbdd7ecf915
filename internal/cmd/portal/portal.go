// Package portal parses portal command flags and starts the game portal
// service.
package portal

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pixellator/wsz6/internal/checkpoint"
	checkpointsqlite "github.com/pixellator/wsz6/internal/checkpoint/sqlite"
	"github.com/pixellator/wsz6/internal/formulation"
	"github.com/pixellator/wsz6/internal/formulation/builtin"
	"github.com/pixellator/wsz6/internal/formulation/luarules"
	"github.com/pixellator/wsz6/internal/games"
	entrypoint "github.com/pixellator/wsz6/internal/platform/cmd"
	"github.com/pixellator/wsz6/internal/platform/logging"
	portalsvc "github.com/pixellator/wsz6/internal/portal"
	"github.com/pixellator/wsz6/internal/transport/ws"
)

// Config holds portal command configuration.
type Config struct {
	Addr     string `env:"WSZ6_ADDR" envDefault:":8080"`
	LogLevel string `env:"WSZ6_LOG_LEVEL" envDefault:"info"`
	DBPath   string `env:"WSZ6_DB_PATH"`
	GamesDir string `env:"WSZ6_GAMES_DIR"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The portal listen address")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Checkpoint database path (empty keeps checkpoints in memory)")
	fs.StringVar(&cfg.GamesDir, "games-dir", cfg.GamesDir, "Directory of Lua rule modules served alongside the built-in games")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the portal service.
func Run(ctx context.Context, cfg Config) error {
	if err := logging.Init(cfg.LogLevel); err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServicePortal, func(ctx context.Context) error {
		store, err := openStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				zap.L().Warn("close checkpoint store", zap.Error(err))
			}
		}()

		registry := portalsvc.NewRegistry(newLoader(cfg), store)
		defer registry.Close()

		return ws.NewServer(cfg.Addr, registry).ListenAndServe(ctx)
	})
}

func openStore(path string) (checkpoint.Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		zap.L().Info("checkpoint store in memory; pauses will not survive restarts")
		return checkpoint.NewMemoryStore(), nil
	}
	store, err := checkpointsqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	zap.L().Info("checkpoint store opened", zap.String("path", path))
	return store, nil
}

// newLoader assembles the rule-module catalog: built-in games first, then an
// optional directory of Lua modules. Built-in slugs win on collision.
func newLoader(cfg Config) formulation.Loader {
	reg := builtin.NewRegistry()
	games.RegisterAll(reg)

	loaders := formulation.MultiLoader{reg}
	if dir := strings.TrimSpace(cfg.GamesDir); dir != "" {
		loaders = append(loaders, luarules.NewLoader(dir))
		zap.L().Info("serving lua rule modules", zap.String("dir", dir))
	}
	return loaders
}
