package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"checkerminer/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file when it changes on disk.
// The parent directory is watched so editors that replace the file via
// rename are still seen.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange func(*Config)
}

// NewWatcher creates a watcher for path. onChange receives every config that
// loads successfully; invalid edits are logged and skipped.
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{
		path:     abs,
		watcher:  w,
		debounce: 200 * time.Millisecond,
		onChange: onChange,
	}, nil
}

// Run processes events until ctx is done. It always closes the underlying
// fsnotify watcher before returning.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logging.BootWarn("config watcher error: %v", err)

		case <-pending:
			pending = nil
			cfg, err := Load(w.path)
			if err != nil {
				logging.BootWarn("config reload failed, keeping previous config: %v", err)
				continue
			}
			logging.Boot("config reloaded from %s", w.path)
			if w.onChange != nil {
				w.onChange(cfg)
			}
		}
	}
}
