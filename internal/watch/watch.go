// Package watch restarts long-running work when files change.
//
// A Watcher registers every directory below its root with fsnotify,
// collects changed paths that match its doublestar patterns, and after a
// quiet period cancels the running function and starts it again.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/kiln/internal/errors"
	"github.com/Iron-Ham/kiln/internal/logging"
)

// DefaultDebounce is the quiet period used when Config.Debounce is zero.
const DefaultDebounce = 200 * time.Millisecond

// skipDirs are never watched.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
}

// Config configures a Watcher.
type Config struct {
	// Root is the directory whose tree is watched.
	Root string
	// Patterns are doublestar globs relative to Root, e.g. "src/**/*.ts".
	Patterns []string
	Debounce time.Duration
	Logger   *logging.Logger
	// OnRestart is called with the changed paths before each restart.
	OnRestart func(changed []string)
	// OnExit is called when the function returns while no restart was
	// pending. The watcher keeps waiting for the next change.
	OnExit func(err error)
}

// Watcher reruns a function whenever matching files change.
type Watcher struct {
	cfg     Config
	root    string
	fsw     *fsnotify.Watcher
	logger  *logging.Logger
	pending map[string]struct{}
}

// New validates the patterns and opens the underlying fsnotify watcher.
func New(cfg Config) (*Watcher, error) {
	if len(cfg.Patterns) == 0 {
		return nil, errors.NewDiagnosticError("Nothing to watch").
			WithContent("A watch was requested without any file patterns.").
			WithCause(errors.ErrInvalidInput)
	}
	for _, p := range cfg.Patterns {
		if !doublestar.ValidatePattern(filepath.ToSlash(p)) {
			return nil, errors.NewDiagnosticError("Invalid watch pattern").
				WithContent(fmt.Sprintf("%q is not a valid glob.", p)).
				WithSuggestion("Use doublestar globs relative to the project root, e.g. src/**/*.go.").
				WithCause(errors.ErrInvalidPattern)
		}
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	return &Watcher{
		cfg:     cfg,
		root:    root,
		fsw:     fsw,
		logger:  logger.With("watch_root", root),
		pending: make(map[string]struct{}),
	}, nil
}

// Match reports whether the root-relative path matches a pattern.
func (w *Watcher) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, p := range w.cfg.Patterns {
		if ok, _ := doublestar.Match(filepath.ToSlash(p), rel); ok {
			return true
		}
	}
	return false
}

// Close releases the fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func skipDir(name string) bool {
	return skipDirs[name] || (strings.HasPrefix(name, ".") && name != ".")
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// Run starts fn and restarts it after matching changes until ctx is done.
// fn must return once its context is canceled. Run returns nil on
// cancellation and an error only when the tree cannot be watched.
func (w *Watcher) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}

	var (
		cancel context.CancelFunc
		done   chan error
	)
	start := func() {
		var runCtx context.Context
		runCtx, cancel = context.WithCancel(ctx)
		done = make(chan error, 1)
		go func(ch chan<- error) { ch <- fn(runCtx) }(done)
	}
	stop := func() {
		if done != nil {
			cancel()
			<-done
			done = nil
		}
	}
	defer stop()

	debounce := time.NewTimer(w.cfg.Debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	start()
	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-done:
			done = nil
			cancel()
			w.logger.Debug("watched process exited", "error", err)
			if w.cfg.OnExit != nil {
				w.cfg.OnExit(err)
			}

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.handle(ev) {
				debounce.Reset(w.cfg.Debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("file watcher error", "error", err)

		case <-debounce.C:
			changed := w.drain()
			if len(changed) == 0 {
				continue
			}
			w.logger.Info("restarting after file changes", "changed", changed)
			stop()
			if w.cfg.OnRestart != nil {
				w.cfg.OnRestart(changed)
			}
			start()
		}
	}
}

// handle records a matching change and reports whether one was recorded.
// New directories are added to the watch.
func (w *Watcher) handle(ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !skipDir(filepath.Base(ev.Name)) {
				if err := w.addRecursive(ev.Name); err != nil {
					w.logger.Warn("failed to watch new directory", "path", ev.Name, "error", err)
				}
			}
			return false
		}
	}
	if ev.Op == fsnotify.Chmod {
		return false
	}

	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") || !w.Match(rel) {
		return false
	}
	w.pending[filepath.ToSlash(rel)] = struct{}{}
	return true
}

func (w *Watcher) drain() []string {
	changed := make([]string, 0, len(w.pending))
	for p := range w.pending {
		changed = append(changed, p)
	}
	clear(w.pending)
	sort.Strings(changed)
	return changed
}
