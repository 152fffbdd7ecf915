package luarules

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Shopify/go-lua"
	"go.uber.org/zap"

	"github.com/pixellator/wsz6/internal/formulation"
	"github.com/pixellator/wsz6/internal/platform/id"
)

const visSuffix = "_vis.lua"

// LoadError reports a rule script that exists but cannot be used: parse
// errors, runtime errors while defining the game, or a formulation that
// fails validation.
type LoadError struct {
	Slug string
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("load rules %s (%s): %v", e.Slug, e.Path, e.Err)
	}
	return fmt.Sprintf("load rules %s: %v", e.Slug, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Loader loads Lua rule modules from a games directory, one subdirectory per
// game slug. Each Load interprets the script in a fresh Lua machine.
type Loader struct {
	root string

	mu   sync.Mutex
	open map[string]struct{}
}

var _ formulation.Loader = (*Loader)(nil)

// NewLoader returns a loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{root: dir, open: make(map[string]struct{})}
}

// Load implements formulation.Loader. Slugs without a game directory report
// ErrUnknownGame so a composed loader can keep searching; anything wrong
// inside an existing directory is a LoadError.
func (ld *Loader) Load(ctx context.Context, slug, playthroughID string) (formulation.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gameDir := filepath.Join(ld.root, slug)
	if info, err := os.Stat(gameDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", formulation.ErrUnknownGame, slug)
	}
	path, err := findRuleFile(gameDir, slug)
	if err != nil {
		return nil, &LoadError{Slug: slug, Err: err}
	}

	l := lua.NewState()
	lua.OpenLibraries(l)
	registerRuleAPI(l)

	if err := lua.LoadFile(l, path, ""); err != nil {
		return nil, &LoadError{Slug: slug, Path: path, Err: err}
	}
	if err := l.ProtectedCall(0, 1, 0); err != nil {
		return nil, &LoadError{Slug: slug, Path: path, Err: err}
	}
	if l.TypeOf(-1) != lua.TypeUserData {
		return nil, &LoadError{Slug: slug, Path: path,
			Err: errors.New("rule script must return a Formulation")}
	}
	ud := l.ToUserData(-1)
	l.Pop(1)
	def, ok := ud.(*ruleDef)
	if !ok || def == nil {
		return nil, &LoadError{Slug: slug, Path: path,
			Err: errors.New("rule script returned an invalid Formulation")}
	}

	if def.renderRef == noRef {
		def.renderRef = discoverVis(l, gameDir)
	}

	instanceID, err := id.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate instance key: %w", err)
	}

	in := &Instance{
		slug: slug,
		key:  slug + "-" + instanceID,
		ld:   ld,
		l:    l,
		def:  def,
	}
	form, err := in.buildFormulation()
	if err != nil {
		return nil, &LoadError{Slug: slug, Path: path, Err: err}
	}
	in.form = form

	ld.mu.Lock()
	ld.open[in.key] = struct{}{}
	ld.mu.Unlock()

	zap.L().Debug("loaded rule module",
		zap.String("slug", slug),
		zap.String("playthrough_id", playthroughID),
		zap.String("instance", in.key))
	return in, nil
}

// Open returns the keys of instances loaded but not yet closed, sorted.
// Useful for verifying that finished play-throughs released their modules.
func (ld *Loader) Open() []string {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	keys := make([]string, 0, len(ld.open))
	for k := range ld.open {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (ld *Loader) release(key string) {
	ld.mu.Lock()
	delete(ld.open, key)
	ld.mu.Unlock()
}

// findRuleFile locates the game's rule script. Search order: the slug with
// hyphens written as underscores, the slug itself, then a lone non-vis .lua
// file anywhere in the directory.
func findRuleFile(gameDir, slug string) (string, error) {
	candidates := []string{
		filepath.Join(gameDir, strings.ReplaceAll(slug, "-", "_")+".lua"),
		filepath.Join(gameDir, slug+".lua"),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}

	entries, err := os.ReadDir(gameDir)
	if err != nil {
		return "", fmt.Errorf("read game directory: %w", err)
	}
	var scripts []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".lua") || strings.HasSuffix(name, visSuffix) {
			continue
		}
		scripts = append(scripts, name)
	}
	if len(scripts) == 0 {
		return "", errors.New("no rule script found")
	}
	sort.Strings(scripts)
	return filepath.Join(gameDir, scripts[0]), nil
}

// discoverVis loads the companion *_vis.lua render hook, if the directory
// has exactly one. The hook runs in the same interpreter as the rule script
// so it can reach helper globals the rules define. Any trouble degrades to
// no renderer, never to a load failure.
func discoverVis(l *lua.State, gameDir string) int {
	entries, err := os.ReadDir(gameDir)
	if err != nil {
		return noRef
	}
	var visFiles []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), visSuffix) {
			visFiles = append(visFiles, e.Name())
		}
	}
	if len(visFiles) == 0 {
		return noRef
	}
	if len(visFiles) > 1 {
		zap.L().Warn("multiple vis scripts found, skipping auto-discovery",
			zap.String("dir", gameDir), zap.Strings("files", visFiles))
		return noRef
	}

	path := filepath.Join(gameDir, visFiles[0])
	base := l.Top()
	if err := lua.LoadFile(l, path, ""); err != nil {
		zap.L().Warn("vis script failed to parse", zap.String("path", path), zap.Error(err))
		l.SetTop(base)
		return noRef
	}
	if err := l.ProtectedCall(0, 1, 0); err != nil {
		zap.L().Warn("vis script failed to run", zap.String("path", path), zap.Error(err))
		l.SetTop(base)
		return noRef
	}
	if l.TypeOf(-1) != lua.TypeFunction {
		zap.L().Warn("vis script must return a render function", zap.String("path", path))
		l.SetTop(base)
		return noRef
	}
	ref := storeRef(l, -1)
	l.SetTop(base)
	return ref
}
