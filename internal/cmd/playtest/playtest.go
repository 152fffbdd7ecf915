// Package playtest parses playtest command flags and runs a terminal
// play-through of a single rule module. It is the formulation author's
// workbench: the same engine and seat rules as the portal, minus the
// network.
package playtest

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/pixellator/wsz6/internal/formulation"
	"github.com/pixellator/wsz6/internal/formulation/builtin"
	"github.com/pixellator/wsz6/internal/formulation/luarules"
	"github.com/pixellator/wsz6/internal/games"
	entrypoint "github.com/pixellator/wsz6/internal/platform/cmd"
	"github.com/pixellator/wsz6/internal/platform/id"
	"github.com/pixellator/wsz6/internal/platform/logging"
)

const title = "WSZ6 Playtest: Interactive Play-Through Driver"

// Config holds playtest command configuration.
type Config struct {
	Game     string `env:"WSZ6_GAME"`
	GamesDir string `env:"WSZ6_GAMES_DIR"`
	LogLevel string `env:"WSZ6_LOG_LEVEL" envDefault:"error"`
}

// ParseConfig parses environment and flags into a Config. The game slug may
// also be given as the first positional argument.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Game, "game", cfg.Game, "Slug of the game to play")
	fs.StringVar(&cfg.GamesDir, "games-dir", cfg.GamesDir, "Directory of Lua rule modules to load from")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.Game == "" && fs.NArg() > 0 {
		cfg.Game = fs.Arg(0)
	}
	return cfg, nil
}

// Run plays one session on stdin/stdout.
func Run(ctx context.Context, cfg Config) error {
	if err := logging.Init(cfg.LogLevel); err != nil {
		return err
	}

	reg := builtin.NewRegistry()
	games.RegisterAll(reg)

	slug := strings.TrimSpace(cfg.Game)
	if slug == "" {
		return fmt.Errorf("no game selected; built-in games: %s", strings.Join(reg.Slugs(), ", "))
	}

	loader := formulation.MultiLoader{reg}
	if dir := strings.TrimSpace(cfg.GamesDir); dir != "" {
		loader = append(loader, luarules.NewLoader(dir))
	}

	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServicePlaytest, func(ctx context.Context) error {
		err := runSession(ctx, loader, slug, os.Stdin, os.Stdout)
		if errors.Is(err, formulation.ErrUnknownGame) {
			return fmt.Errorf("%w (built-in games: %s)", err, strings.Join(reg.Slugs(), ", "))
		}
		return err
	})
}

// runSession loads slug through loader and drives one full play-through over
// the given reader and writer.
func runSession(ctx context.Context, loader formulation.Loader, slug string, in io.Reader, out io.Writer) error {
	playthroughID, err := id.NewID()
	if err != nil {
		return fmt.Errorf("generate playthrough id: %w", err)
	}

	inst, err := loader.Load(ctx, slug, playthroughID)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := inst.Close(); cerr != nil {
			zap.L().Warn("close rule module", zap.Error(cerr))
		}
	}()

	form := inst.Formulation()
	version := form.Metadata.Version
	if version == "" {
		version = "?"
	}
	fmt.Fprintf(out, "%s\n\n", title)
	fmt.Fprintf(out, "Formulation: %s  (version %s)\n", form.Metadata.Name, version)
	if form.Metadata.Brief != "" {
		fmt.Fprintf(out, "Description: %s\n", form.Metadata.Brief)
	}

	c, err := newConsole(playthroughID, form, in, out)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "\nSeats:")
	for roleNum, role := range form.Roles.Roles {
		if p, ok := c.seats.PlayerAt(roleNum); ok {
			fmt.Fprintf(out, "  %s: %s\n", role.Name, p.Name)
		}
	}

	if _, err := c.eng.Start(ctx, nil); err != nil {
		return fmt.Errorf("start play-through: %w", err)
	}

	err = c.run(ctx)
	fmt.Fprintln(out, "\nSession finished.  Goodbye!")
	return err
}
