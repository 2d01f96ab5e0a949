package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc receives the freshly loaded config and its diff against the
// previous one. It is only called when the diff has reloadable changes.
type ReloadFunc func(cfg *Config, diff ConfigDiff)

const reloadDebounce = 500 * time.Millisecond

// Watch reloads the config file at path whenever it changes on disk and
// calls fn with the result. The parent directory is watched so editors that
// replace the file atomically are handled. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, current *Config, fn ReloadFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(reloadDebounce)
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "error", err)
		case <-fire:
			fire = nil
			next, err := LoadFile(path)
			if err != nil {
				slog.Error("config reload failed", "error", err)
				continue
			}
			diff := Diff(current, next)
			for _, field := range diff.NonReloadable {
				slog.Warn("config field changed but requires restart", "field", field)
			}
			if !diff.HasChanges() {
				continue
			}
			slog.Info("config reloaded",
				"agents_added", diff.AgentsAdded,
				"agents_removed", diff.AgentsRemoved,
				"agents_changed", diff.AgentsChanged,
			)
			current = next
			fn(next, diff)
		}
	}
}
