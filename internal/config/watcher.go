package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file when it changes on disk and publishes the
// latest valid snapshot. Components that must follow runtime tuning (policy
// cache TTL, auto-blocking settings, link expiry) read through Snapshot()
// instead of holding a *Config captured at startup.
//
// A reload that fails to parse or validate keeps the previous snapshot; the
// running process never adopts a broken configuration.
type Watcher struct {
	path    string
	current atomic.Pointer[Config]
}

// NewWatcher wraps an already-loaded configuration. path is the file to watch;
// when empty the watcher still serves snapshots but never reloads.
func NewWatcher(initial *Config, path string) *Watcher {
	w := &Watcher{path: path}
	w.current.Store(initial)
	return w
}

// Snapshot returns the most recent valid configuration. The returned value
// must be treated as read-only.
func (w *Watcher) Snapshot() *Config {
	return w.current.Load()
}

// Start watches the config file until ctx is cancelled. Editors and config
// management tools often replace the file (write temp, rename over), which
// fsnotify reports as Create or Rename on the directory entry, so the parent
// directory is watched rather than the file itself.
func (w *Watcher) Start(ctx context.Context) error {
	if w.path == "" {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return err
	}

	go func() {
		defer fw.Close()

		// Debounce: a single save can produce several events in quick
		// succession.
		var pending <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(w.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				pending = time.After(200 * time.Millisecond)
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "error", err)
			case <-pending:
				pending = nil
				w.reload()
			}
		}
	}()

	return nil
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		slog.Error("config reload failed, keeping previous configuration", "path", w.path, "error", err)
		return
	}
	w.current.Store(cfg)
	slog.Info("configuration reloaded",
		"path", w.path,
		"policy_cache_ttl", cfg.Policy.CacheTTL,
		"auto_blocking_enabled", cfg.Policy.AutoBlocking.Enabled,
		"auto_blocking_threshold", cfg.Policy.AutoBlocking.Threshold)
}
